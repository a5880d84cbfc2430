package fir

import "math"

// FloatFilter is a streaming float filter such as segdsp's FloatFirFilter.
type FloatFilter interface {
	WorkBuffer([]float32, []float32) int
	PredictOutputSize(int) int
}

// MeasureDelay pushes an impulse through a fresh filter and returns the output index of
// the strongest response. For a symmetric filter that is its group delay in samples.
// The filter is left dirty; use a throwaway instance.
func MeasureDelay(f FloatFilter, ntaps int) int {
	impulse := make([]float32, 2*ntaps+1)
	impulse[0] = 1
	out := make([]float32, f.PredictOutputSize(len(impulse)))
	n := f.WorkBuffer(impulse, out)

	peak, peakIdx := 0.0, 0
	for i, v := range out[:n] {
		if a := math.Abs(float64(v)); a > peak {
			peak, peakIdx = a, i
		}
	}
	return peakIdx
}
