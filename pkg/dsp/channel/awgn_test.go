package channel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestAWGNZeroSigmaPassesThrough(t *testing.T) {
	in := []float32{1, -1, 0.5}
	out := make([]float32, len(in))
	n := NewAWGN(0, 1).WorkBuffer(in, out)
	require.Equal(t, len(in), n)
	assert.Equal(t, in, out)
}

func TestAWGNStatistics(t *testing.T) {
	const sigma = 0.5
	in := make([]float32, 20000)
	out := make([]float32, len(in))
	NewAWGN(sigma, 7).WorkBuffer(in, out)

	samples := make([]float64, len(out))
	for i, v := range out {
		samples[i] = float64(v)
	}
	mean, std := stat.MeanStdDev(samples, nil)
	assert.InDelta(t, 0, mean, 0.02)
	assert.InDelta(t, sigma, std, 0.02)
}

func TestAWGNDeterministicPerSeed(t *testing.T) {
	in := make([]float32, 64)
	a := make([]float32, len(in))
	b := make([]float32, len(in))
	c := make([]float32, len(in))
	NewAWGN(1, 42).WorkBuffer(in, a)
	NewAWGN(1, 42).WorkBuffer(in, b)
	NewAWGN(1, 43).WorkBuffer(in, c)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.False(t, math.IsNaN(float64(a[0])))
}

func TestComplexAWGN(t *testing.T) {
	in := make([]complex64, 20000)
	out := make([]complex64, len(in))
	require.Equal(t, len(in), NewComplexAWGN(0.3, 9).WorkBuffer(in, out))

	re := make([]float64, len(out))
	im := make([]float64, len(out))
	for n, v := range out {
		re[n], im[n] = float64(real(v)), float64(imag(v))
	}
	_, stdI := stat.MeanStdDev(re, nil)
	_, stdQ := stat.MeanStdDev(im, nil)
	assert.InDelta(t, 0.3, stdI, 0.02)
	assert.InDelta(t, 0.3, stdQ, 0.02)
	assert.Less(t, math.Abs(stat.Correlation(re, im, nil)), 0.05)

	clean := []complex64{1 + 1i, -1}
	passed := make([]complex64, 2)
	NewComplexAWGN(0, 1).WorkBuffer(clean, passed)
	assert.Equal(t, clean, passed)
}
