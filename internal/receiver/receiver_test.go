package receiver

import (
	"math"
	"testing"

	"github.com/Blockstream/gr-blocksat/internal/agc"
	"github.com/Blockstream/gr-blocksat/internal/cfr"
	"github.com/Blockstream/gr-blocksat/internal/cpr"
	"github.com/Blockstream/gr-blocksat/internal/framesync"
	"github.com/Blockstream/gr-blocksat/internal/mer"
	"github.com/Blockstream/gr-blocksat/internal/tag"
	"github.com/Blockstream/gr-blocksat/internal/turbo"
)

func minimalPreamble(n int) []complex64 {
	out := make([]complex64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	return out
}

func baseConfig() Config {
	preamble := minimalPreamble(2)
	return Config{
		AGC: agc.Config{Rate: 1e-3, Reference: 1, InitialGain: 1, MaxGain: 100},
		CFR: cfr.Config{FFTLen: 16, Alpha: 1, M: 2, FrameLen: 18, Sps: 1},
		FrameSync: framesync.Config{
			Preamble: preamble, FrameLen: 18, M: 2, NSuccessToLock: 3,
		},
		CPR: cpr.Config{
			Preamble: preamble, NoiseBW: 0.01, DampFactor: 0.707,
			M: 2, FrameLen: 18,
		},
		MER:     mer.Config{M: 2, Alpha: 0.01},
		DemapM:  2,
		DemapN0: 1.0,
		Turbo:   turbo.Config{K: 2, PunctureEn: true, NIte: 1},
	}
}

func TestNewBackend_RejectsMismatchedFrameLayout(t *testing.T) {
	cfg := baseConfig()
	cfg.Turbo.K = 40 // any K whose codeword length won't match DataLen()*rate
	cfg.Turbo.PunctureEn = false

	chain, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := NewBackend(cfg, chain.Bus()); err == nil {
		t.Fatal("expected a layout-mismatch error, got nil")
	}
}

func TestNewBackend_AcceptsConsistentFrameLayout(t *testing.T) {
	cfg := baseConfig() // DataLen()=16, rate=1, punctured K=2 -> N=16
	chain, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := NewBackend(cfg, chain.Bus()); err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
}

func TestChain_ForecastRoundsUpToFFTLen(t *testing.T) {
	cfg := baseConfig()
	chain, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := chain.Forecast(1); got != chain.FFTLen() {
		t.Errorf("Forecast(1) = %d, want %d", got, chain.FFTLen())
	}
	if got := chain.Forecast(chain.FFTLen() + 1); got != 2*chain.FFTLen() {
		t.Errorf("Forecast(FFTLen+1) = %d, want %d", got, 2*chain.FFTLen())
	}
}

func TestChain_WorkRewritesTagOffsetsToAbsolute(t *testing.T) {
	cfg := baseConfig()
	chain, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const blockOffset = 1000
	const trueFreq = 0.0625 // a clean peak: 2 cycles over a 16-sample, M=2 FFT block
	in := make([]complex64, chain.FFTLen())
	for i := range in {
		theta := 2 * math.Pi * trueFreq * float64(i)
		in[i] = complex64(complex(math.Cos(theta), math.Sin(theta)))
	}
	out := make([]complex64, chain.FFTLen())
	var tags tag.Stream

	chain.Work(blockOffset, out, in, &tags)

	got := tags.All()
	if len(got) == 0 {
		t.Fatal("expected at least one cfo tag from a clear frequency offset")
	}
	for _, tg := range got {
		if tg.Offset < blockOffset {
			t.Errorf("tag offset %d was not rewritten to an absolute offset >= %d", tg.Offset, blockOffset)
		}
	}
}

func TestReplayFilter_DecimatesAndCarriesRemainder(t *testing.T) {
	f := NewReplayFilter(3)

	in := make([]complex64, 7)
	for i := range in {
		in[i] = complex(float32(i), 0)
	}

	out := f.Work(in, nil)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if real(out[0]) != 0 || real(out[1]) != 3 {
		t.Errorf("out = %v, want every 3rd sample starting at 0", out)
	}

	// The trailing sample (index 6) should carry over and combine with
	// the next call's input.
	out2 := f.Work([]complex64{9, 9}, nil)
	if len(out2) != 1 || real(out2[0]) != 6 {
		t.Errorf("out2 = %v, want [6] from the carried-over remainder", out2)
	}
}

func TestReplayFilter_ConvertsTagsToSymbolOffsetsAndDropsOthers(t *testing.T) {
	f := NewReplayFilter(4)

	in := make([]complex64, 8)
	var tags tag.Stream
	tags.Add(tag.FloatTag(8, tag.CFO, 0.5))  // lands on a boundary
	tags.Add(tag.FloatTag(10, tag.CFO, 0.1)) // does not

	f.Work(in, &tags)

	got := tags.All()
	if len(got) != 1 {
		t.Fatalf("len(tags) = %d, want 1 after dropping the off-boundary tag", len(got))
	}
	if got[0].Offset != 2 {
		t.Errorf("tag offset = %d, want 2 (8/4)", got[0].Offset)
	}
}
