package fm

import "math"

const tau = 2 * math.Pi

// Modulator integrates a real baseband signal into the phase of a unit complex carrier.
// An input of 1 advances the phase by sensitivity radians per sample.
type Modulator struct {
	sensitivity float64
	phase       float64
}

func NewModulator(sensitivity float64) *Modulator {
	return &Modulator{sensitivity: sensitivity}
}

// NewFSKModulator sets the sensitivity for binary FSK with modulation index h, where a
// ±1 input holds for samplesPerSymbol samples.
func NewFSKModulator(h float64, samplesPerSymbol int) *Modulator {
	return NewModulator(math.Pi * h / float64(samplesPerSymbol))
}

func (m *Modulator) Sensitivity() float64 {
	return m.sensitivity
}

func (m *Modulator) PredictOutputSize(inputSize int) int {
	return inputSize
}

func (m *Modulator) WorkBuffer(input []float32, output []complex64) int {
	for i, s := range input {
		m.phase += m.sensitivity * float64(s)
		if m.phase > math.Pi {
			m.phase -= tau
		} else if m.phase < -math.Pi {
			m.phase += tau
		}
		sin, cos := math.Sincos(m.phase)
		output[i] = complex(float32(cos), float32(sin))
	}
	return len(input)
}
