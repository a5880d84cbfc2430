package fir

import (
	"fmt"
	"math"
)

type WindowType int

const (
	Hamming WindowType = iota
	Hann
	Blackman
)

type WindowFunc func(int) []float32

var (
	windowMaxAttenuation = map[WindowType]int{
		Hamming:  53,
		Hann:     44,
		Blackman: 74,
	}
	windowFuncs = map[WindowType]WindowFunc{
		Hamming:  HammingWindow,
		Hann:     HannWindow,
		Blackman: BlackmanWindow,
	}
)

func (w WindowType) String() string {
	switch w {
	case Hamming:
		return "hamming"
	case Hann:
		return "hann"
	case Blackman:
		return "blackman"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// Window returns ntaps coefficients of the given window.
func Window(winType WindowType, ntaps int) ([]float32, error) {
	fn, ok := windowFuncs[winType]
	if !ok {
		return nil, fmt.Errorf("unknown window type %s", winType)
	}
	if ntaps < 2 {
		return nil, fmt.Errorf("window needs at least 2 taps, got %d", ntaps)
	}
	return fn(ntaps), nil
}

func cosWindow(ntaps int, c0, c1, c2 float64) []float32 {
	ret := make([]float32, ntaps)
	M := float64(ntaps - 1)

	for i := 0; i < ntaps; i++ {
		fi := float64(i)
		ret[i] = float32(c0 - c1*math.Cos((2*math.Pi*fi)/M) +
			c2*math.Cos((4*math.Pi*fi)/M))
	}
	return ret
}

func BlackmanWindow(ntaps int) []float32 {
	return cosWindow(ntaps, 0.42, 0.5, 0.08)
}

func HammingWindow(ntaps int) []float32 {
	return cosWindow(ntaps, 0.54, 0.46, 0)
}

func HannWindow(ntaps int) []float32 {
	return cosWindow(ntaps, 0.5, 0.5, 0)
}
