package viz

import (
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

type PlotType int

const (
	PlotTypeDefault PlotType = iota
	PlotTypeScatter
	PlotTypeLines
)

// TimeDomainPlotter keeps the last size samples appended to it.
type TimeDomainPlotter struct {
	mu          sync.Mutex
	bufFloat    []float32
	size        int
	name        string
	plotFunc    func(*plot.Plot, ...interface{}) error
	plotOptions []PlotOptions
}

func NewTimeDomainPlotter(name string, size int) *TimeDomainPlotter {
	return &TimeDomainPlotter{
		bufFloat: make([]float32, 0, size),
		size:     size,
		name:     name,
		plotFunc: plotutil.AddScatters,
	}
}

func (t *TimeDomainPlotter) Name() string {
	return t.name
}

func (t *TimeDomainPlotter) SetPlotType(tp PlotType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch tp {
	case PlotTypeLines:
		t.plotFunc = plotutil.AddLines
	default:
		t.plotFunc = plotutil.AddScatters
	}
}

func (tp *TimeDomainPlotter) AppendFloat(f []float32) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	tp.bufFloat = append(tp.bufFloat, f...)
	if len(tp.bufFloat) > tp.size {
		tp.bufFloat = append(tp.bufFloat[:0], tp.bufFloat[len(tp.bufFloat)-tp.size:]...)
	}
}

func (tp *TimeDomainPlotter) AddPlotOption(opt PlotOptions) {
	tp.mu.Lock()
	tp.plotOptions = append(tp.plotOptions, opt)
	tp.mu.Unlock()
}

func (tp *TimeDomainPlotter) GetImage() (*ImageContainer, error) {
	tp.mu.Lock()
	if len(tp.bufFloat) < tp.size {
		tp.mu.Unlock()
		return nil, ErrNotEnoughData
	}
	pts := make(plotter.XYs, tp.size)
	for i := 0; i < tp.size; i++ {
		pts[i] = plotter.XY{X: float64(i), Y: float64(tp.bufFloat[i])}
	}
	plotFunc := tp.plotFunc
	opts := append([]PlotOptions(nil), tp.plotOptions...)
	tp.mu.Unlock()

	p := plotWithDefaults()
	p.Title.Text = tp.name
	p.Y.Label.Text = "Amplitude"
	p.Y.Min = -4
	p.Y.Max = 4
	p.X.Label.Text = "t"

	for _, opt := range opts {
		opt(p)
	}

	p.Add(plotter.NewGrid())
	if err := plotFunc(p, "f(t)", pts); err != nil {
		return nil, err
	}

	return render(tp.name, p)
}
