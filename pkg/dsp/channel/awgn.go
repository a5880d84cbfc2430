package channel

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// AWGN adds white gaussian noise with a fixed standard deviation. A zero sigma passes
// samples through untouched.
type AWGN struct {
	sigma float64
	noise distuv.Normal
}

// NewAWGN seeds its own source so runs with the same seed see the same noise.
func NewAWGN(sigma float64, seed uint64) *AWGN {
	return &AWGN{
		sigma: sigma,
		noise: distuv.Normal{
			Mu:    0,
			Sigma: sigma,
			Src:   rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
		},
	}
}

func (a *AWGN) Sigma() float64 {
	return a.sigma
}

func (a *AWGN) PredictOutputSize(inputSize int) int {
	return inputSize
}

func (a *AWGN) WorkBuffer(input, output []float32) int {
	if a.sigma <= 0 {
		return copy(output, input)
	}
	for i := 0; i < len(input); i++ {
		output[i] = input[i] + float32(a.noise.Rand())
	}
	return len(input)
}

// ComplexAWGN adds independent noise of the given sigma to I and Q.
type ComplexAWGN struct {
	i, q *AWGN
}

func NewComplexAWGN(sigma float64, seed uint64) *ComplexAWGN {
	return &ComplexAWGN{
		i: NewAWGN(sigma, seed),
		q: NewAWGN(sigma, ^seed),
	}
}

func (a *ComplexAWGN) PredictOutputSize(inputSize int) int {
	return inputSize
}

func (a *ComplexAWGN) WorkBuffer(input, output []complex64) int {
	if a.i.sigma <= 0 {
		return copy(output, input)
	}
	for n, s := range input {
		output[n] = complex(real(s)+float32(a.i.noise.Rand()), imag(s)+float32(a.q.noise.Rand()))
	}
	return len(input)
}
