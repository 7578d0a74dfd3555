package mer

import (
	"math"
	"testing"
)

func TestMER_DecimatesByFrameLen(t *testing.T) {
	m := New(Config{M: 4, Alpha: 0.1, FrameLen: 4})

	in := make([]complex64, 12) // noiseless QPSK points -> zero error
	a := complex64(complex(1/math.Sqrt2, 1/math.Sqrt2))
	for i := range in {
		in[i] = a
	}
	out := m.Work(nil, in, true)

	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3 (one per frame)", len(out))
	}
	for i, v := range out {
		if math.IsInf(float64(v), 1) == false {
			t.Errorf("out[%d] = %v, want +Inf for zero error", i, v)
		}
	}
}

func TestMER_DisabledWhenUnconnected(t *testing.T) {
	m := New(Config{M: 2, Alpha: 0.1, FrameLen: 2, Disable: true})
	in := make([]complex64, 4)
	out := m.Work(nil, in, false)

	if out != nil {
		t.Errorf("expected no output when disabled and unconnected, got %v", out)
	}
}

func TestMER_ProducesNonInfiniteSNRWithError(t *testing.T) {
	m := New(Config{M: 2, Alpha: 1, FrameLen: 1}) // alpha=1: avgErr tracks latest sample exactly
	in := []complex64{1.1}                         // slices to +1, squared error = 0.01
	out := m.Work(nil, in, true)

	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	want := float32(10 * math.Log10(1/0.01))
	if math.Abs(float64(out[0]-want)) > 1e-3 {
		t.Errorf("out[0] = %v, want %v", out[0], want)
	}
}
