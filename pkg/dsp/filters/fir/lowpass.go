package fir

import (
	"fmt"
	"math"
)

// computeNTaps sizes a filter from the window's stopband attenuation. The result is odd
// so the filter has a whole-sample group delay.
func computeNTaps(sampleRate float64, transitionWidth float64, winType WindowType) int {
	maxAttenuation := windowMaxAttenuation[winType]
	ntaps := int(float64(maxAttenuation) * sampleRate / (22.0 * transitionWidth))
	ntaps |= 1

	return ntaps
}

// MakeLowPass designs a windowed-sinc lowpass whose passband gain is gain.
func MakeLowPass(gain, sampleRate, cutFrequency, transitionWidth float64, winType WindowType) ([]float32, error) {
	if cutFrequency <= 0 || cutFrequency >= sampleRate/2 {
		return nil, fmt.Errorf("cutoff %.1f must be inside (0, %.1f)", cutFrequency, sampleRate/2)
	}
	if transitionWidth <= 0 {
		return nil, fmt.Errorf("transition width must be positive, got %.1f", transitionWidth)
	}

	nTaps := computeNTaps(sampleRate, transitionWidth, winType)
	if nTaps < 3 {
		nTaps = 3
	}
	w, err := Window(winType, nTaps)
	if err != nil {
		return nil, err
	}
	taps := make([]float32, nTaps)

	M := (nTaps - 1) / 2
	fwT0 := 2 * math.Pi * cutFrequency / sampleRate

	for i := -M; i <= M; i++ {
		if i == 0 {
			taps[i+M] = float32(fwT0 / math.Pi * float64(w[i+M]))
		} else {
			fi := float64(i)
			taps[i+M] = float32(math.Sin(fi*fwT0) / (fi * math.Pi) * float64(w[i+M]))
		}
	}

	fmax := float64(taps[M])
	for i := 1; i <= M; i++ {
		fmax += 2 * float64(taps[i+M])
	}

	gain /= fmax
	for i := 0; i < nTaps; i++ {
		taps[i] = float32(float64(taps[i]) * gain)
	}

	return taps, nil
}
