package rmsagc

import (
	"math"
)

// RMSAGC is a root-mean-squared automatic gain controller. It tracks the running mean
// power and scales each sample so the output RMS settles at the reference level.
type RMSAGC struct {
	alpha     float64
	beta      float64
	reference float64
	average   float64
}

// NewRMSAGC takes the averaging weight for each new sample and the output reference level.
func NewRMSAGC(alpha float64, reference float64) *RMSAGC {
	r := &RMSAGC{
		alpha:     alpha,
		beta:      1 - alpha,
		reference: reference,
	}
	r.Reset()
	return r
}

func (r *RMSAGC) Reset() {
	r.average = 1.0
}

// Gain is the factor currently applied to incoming samples.
func (r *RMSAGC) Gain() float64 {
	if r.average <= 0 {
		return r.reference
	}
	return r.reference / math.Sqrt(r.average)
}

func (r *RMSAGC) PredictOutputSize(inputSize int) int {
	return inputSize
}

func (r *RMSAGC) WorkBuffer(input, output []float32) int {
	for i := 0; i < len(input); i++ {
		cur := float64(input[i])
		r.average = r.beta*r.average + r.alpha*cur*cur
		output[i] = float32(cur * r.Gain())
	}
	return len(input)
}

func (r *RMSAGC) Work(data []float32) []float32 {
	ret := make([]float32, len(data))
	r.WorkBuffer(data, ret)
	return ret
}
