package mixer

import (
	"math"
	"math/cmplx"
)

// samples between renormalizations of the rotating phasor
const renormInterval = 1024

// WaveformMixer shifts a complex signal by a fixed frequency, the way a receiver tuned
// off the carrier sees it. The local oscillator is a unit phasor advanced by complex
// multiplication.
type WaveformMixer struct {
	sampleRate int
	frequency  float64
	phasor     complex128
	step       complex128
	count      int
}

func NewWaveformMixer(sampleRate int, frequency float64) *WaveformMixer {
	sin, cos := math.Sincos(2 * math.Pi * frequency / float64(sampleRate))
	return &WaveformMixer{
		sampleRate: sampleRate,
		frequency:  frequency,
		phasor:     1,
		step:       complex(cos, sin),
	}
}

func (w *WaveformMixer) Frequency() float64 {
	return w.frequency
}

func (w *WaveformMixer) WorkBuffer(input []complex64, output []complex64) int {
	for i, s := range input {
		output[i] = complex64(w.phasor) * s
		w.phasor *= w.step

		w.count++
		if w.count == renormInterval {
			w.phasor /= complex(cmplx.Abs(w.phasor), 0)
			w.count = 0
		}
	}
	return len(input)
}

func (w *WaveformMixer) PredictOutputSize(inputSize int) int {
	return inputSize
}
