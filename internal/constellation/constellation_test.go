package constellation

import (
	"math"
	"testing"
)

func TestBPSK_SliceDemap(t *testing.T) {
	c := New(BPSK)

	tests := []struct {
		in       complex128
		wantIdx  int
		wantReal float64
	}{
		{0.8, 1, 1},
		{-1.3, 0, -1},
		{complex(0, 0.5), 1, 1}, // imaginary axis masked for BPSK
	}
	for _, tt := range tests {
		if idx := c.Demap(tt.in); idx != tt.wantIdx {
			t.Errorf("Demap(%v) = %d, want %d", tt.in, idx, tt.wantIdx)
		}
		if s := c.Slice(tt.in); real(s) != tt.wantReal {
			t.Errorf("Slice(%v) = %v, want real %v", tt.in, s, tt.wantReal)
		}
	}
}

func TestQPSK_Table(t *testing.T) {
	c := New(QPSK)
	const want = 1 / math.Sqrt2

	wantPoints := []complex128{
		complex(-want, -want),
		complex(want, -want),
		complex(-want, want),
		complex(want, want),
	}
	for i, p := range wantPoints {
		if got := c.Point(i); got != p {
			t.Errorf("Point(%d) = %v, want %v", i, got, p)
		}
	}
}

func TestQPSK_SliceDemapRoundTrip(t *testing.T) {
	c := New(QPSK)
	for i := 0; i < 4; i++ {
		p := c.Point(i)
		if idx := c.Demap(p); idx != i {
			t.Errorf("Demap(Point(%d)) = %d, want %d", i, idx, i)
		}
		if s := c.Slice(p * 0.3); s != p {
			t.Errorf("Slice(0.3*Point(%d)) = %v, want %v", i, s, p)
		}
	}
}

func TestBPSK_BitsPerSymbol(t *testing.T) {
	if BPSK.BitsPerSymbol() != 1 {
		t.Errorf("BPSK.BitsPerSymbol() = %d, want 1", BPSK.BitsPerSymbol())
	}
	if QPSK.BitsPerSymbol() != 2 {
		t.Errorf("QPSK.BitsPerSymbol() = %d, want 2", QPSK.BitsPerSymbol())
	}
}
