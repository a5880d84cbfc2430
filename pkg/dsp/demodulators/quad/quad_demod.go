package quad

import (
	"math"

	"github.com/racerxdl/segdsp/dsp"
)

// QuadDemod is a quadrature FM discriminator: each output is gain times the phase step
// from the previous input sample to the current one.
type QuadDemod struct {
	gain    float32
	last    complex64
	samples []complex64
}

func MakeQuadDemod(gain float32) *QuadDemod {
	return &QuadDemod{
		gain: gain,
	}
}

func (f *QuadDemod) WorkBuffer(input []complex64, output []float32) int {
	if len(input) == 0 {
		return 0
	}

	f.samples = append(append(f.samples[:0], f.last), input...)
	steps := dsp.MultiplyConjugate(f.samples[1:], f.samples, len(input))

	for i, s := range steps {
		output[i] = f.gain * float32(math.Atan2(float64(imag(s)), float64(real(s))))
	}

	f.last = input[len(input)-1]
	return len(input)
}

func (f *QuadDemod) PredictOutputSize(inputLength int) int {
	return inputLength
}
