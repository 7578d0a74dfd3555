package cfr

import (
	"math"
	"testing"

	"github.com/Blockstream/gr-blocksat/internal/tag"
)

func TestNew_RejectsBadConfig(t *testing.T) {
	cases := []Config{
		{FFTLen: 1024, Alpha: 1, M: 3, FrameLen: 100, Sps: 1},
		{FFTLen: 1000, Alpha: 1, M: 4, FrameLen: 100, Sps: 1},
		{FFTLen: 1024, Alpha: 1, M: 4, FrameLen: 0, Sps: 1},
		{FFTLen: 1024, Alpha: 1, M: 4, FrameLen: 100, Sps: 0},
	}
	for i, cfg := range cases {
		if _, err := New(cfg); err == nil {
			t.Errorf("case %d: expected configuration error, got nil", i)
		}
	}
}

func TestCFR_SettlesOnQPSKPeak(t *testing.T) {
	const fftLen = 1024
	c, err := New(Config{
		FFTLen:   fftLen,
		Alpha:    1,
		M:        4,
		SleepPer: 1,
		FrameLen: 10000,
		Sps:      1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const trueFreq = 0.03
	in := make([]complex64, fftLen)
	for i := range in {
		theta := 2 * math.Pi * trueFreq * float64(i)
		in[i] = complex64(complex(math.Cos(theta), math.Sin(theta)))
	}
	out := make([]complex64, fftLen)
	var tags tag.Stream

	c.Work(out, in, nil, &tags)

	wantPhaseInc := 2 * math.Pi * trueFreq
	if math.Abs(c.Frequency()-wantPhaseInc) > 2*math.Pi*(1.0/float64(4*fftLen)) {
		t.Errorf("Frequency() = %v, want near %v", c.Frequency(), wantPhaseInc)
	}
}

func TestCFR_Reset(t *testing.T) {
	c, err := New(Config{FFTLen: 64, Alpha: 1, M: 2, FrameLen: 64, Sps: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.fE = 0.1
	c.phaseInc = 1
	c.phaseAccum = 1
	c.Reset()

	if c.fE != 0 || c.phaseInc != 0 || c.phaseAccum != 0 {
		t.Errorf("Reset did not zero state: %+v", c)
	}
}
