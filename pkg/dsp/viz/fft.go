package viz

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/norasector/pktlink/pkg/dsp/filters/fir"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

const (
	MIX_AVG = 0.10

	// Blackman coherent gain
	windowGain = 0.42
)

// FFTPlotter shows the averaged power spectrum of the last len real samples.
type FFTPlotter struct {
	mu           sync.Mutex
	bufFloat     []float32
	sampleRate   int
	len          int
	averagePower []float64
	name         string
	plotOptions  []PlotOptions

	fft    *fourier.FFT
	window []float32
}

func NewFFTPlotterFloat(name string, len, sampleRate int) *FFTPlotter {
	return &FFTPlotter{
		bufFloat:     make([]float32, len),
		averagePower: make([]float64, len/2+1),
		len:          len,
		sampleRate:   sampleRate,
		name:         name,
		fft:          fourier.NewFFT(len),
		window:       fir.BlackmanWindow(len),
	}
}

func (f *FFTPlotter) Name() string {
	return f.name
}

func (p *FFTPlotter) AppendFloat(s []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(s) >= p.len {
		copy(p.bufFloat, s[len(s)-p.len:])
		return
	}
	copy(p.bufFloat, p.bufFloat[len(s):])
	copy(p.bufFloat[p.len-len(s):], s)
}

func (pb *FFTPlotter) AddPlotOption(opt PlotOptions) {
	pb.mu.Lock()
	pb.plotOptions = append(pb.plotOptions, opt)
	pb.mu.Unlock()
}

// Spectrum windows the buffer, folds it into the running average and returns
// frequency/power(dB) pairs for the non-negative half of the spectrum.
func (pb *FFTPlotter) Spectrum() plotter.XYs {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	data := make([]float64, pb.len)
	for i := range data {
		data[i] = float64(pb.bufFloat[i]) * float64(pb.window[i]) / (windowGain * float64(pb.len))
	}
	coeffs := pb.fft.Coefficients(nil, data)

	ret := make(plotter.XYs, 0, len(coeffs))
	for i, c := range coeffs {
		pb.averagePower[i] = ((1.0 - MIX_AVG) * pb.averagePower[i]) + (MIX_AVG * cmplx.Abs(c))
		if pb.averagePower[i] == 0 {
			continue
		}
		ret = append(ret, plotter.XY{
			X: pb.fft.Freq(i) * float64(pb.sampleRate),
			Y: 20 * math.Log10(pb.averagePower[i]),
		})
	}
	return ret
}

func (pb *FFTPlotter) GetImage() (*ImageContainer, error) {
	pts := pb.Spectrum()
	if len(pts) == 0 {
		return nil, ErrNotEnoughData
	}

	pb.mu.Lock()
	opts := append([]PlotOptions(nil), pb.plotOptions...)
	pb.mu.Unlock()

	p := plotWithDefaults()
	p.Title.Text = pb.name
	p.Y.Label.Text = "Power (dB)"
	p.X.Label.Text = "Frequency"
	p.Y.Max = 0
	p.Y.Min = -100

	for _, opt := range opts {
		opt(p)
	}

	p.Add(plotter.NewGrid())
	if err := plotutil.AddLines(p, "frequency", pts); err != nil {
		return nil, err
	}

	return render(pb.name, p)
}
