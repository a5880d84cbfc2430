package rmsagc

import (
	"math"
	"testing"
)

func TestRMSAGCSettles(t *testing.T) {
	agc := NewRMSAGC(0.05, 1)

	in := make([]float32, 400)
	for i := range in {
		in[i] = 0.1
		if i%2 == 0 {
			in[i] = -0.1
		}
	}
	out := agc.Work(in)

	for i, v := range out[len(out)-10:] {
		if math.Abs(math.Abs(float64(v))-1) > 0.01 {
			t.Errorf("sample %d = %f, want magnitude 1", i, v)
		}
	}
	if (out[len(out)-1] < 0) != (in[len(in)-1] < 0) {
		t.Errorf("sign flipped")
	}
	if g := agc.Gain(); math.Abs(g-10) > 0.1 {
		t.Errorf("Gain() = %f, want ~10", g)
	}

	agc.Reset()
	if g := agc.Gain(); g != 1 {
		t.Errorf("Gain() after reset = %f", g)
	}
}

func TestRMSAGCZeroInput(t *testing.T) {
	agc := NewRMSAGC(1, 1)
	out := agc.Work([]float32{0, 0})
	for _, v := range out {
		if v != 0 {
			t.Errorf("got %f for zero input", v)
		}
	}
}
