package fm

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFSKModulatorPhaseSteps(t *testing.T) {
	m := NewFSKModulator(0.5, 4)
	assert.InDelta(t, math.Pi/8, m.Sensitivity(), 1e-12)

	in := []float32{1, 1, 1, 1, -1, -1, -1, -1}
	out := make([]complex64, m.PredictOutputSize(len(in)))
	n := m.WorkBuffer(in, out)
	assert.Equal(t, len(in), n)

	// a symbol of +1 turns the carrier a quarter turn with h = 0.5
	assert.InDelta(t, math.Pi/2, cmplx.Phase(complex128(out[3])), 1e-5)
	assert.InDelta(t, 0, cmplx.Phase(complex128(out[7])), 1e-5)
	for _, s := range out {
		assert.InDelta(t, 1, cmplx.Abs(complex128(s)), 1e-5)
	}
}

func TestModulatorWrapsPhase(t *testing.T) {
	m := NewModulator(3)
	in := make([]float32, 100)
	for i := range in {
		in[i] = 1
	}
	m.WorkBuffer(in, make([]complex64, len(in)))
	assert.LessOrEqual(t, math.Abs(m.phase), math.Pi)
}
