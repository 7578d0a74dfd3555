package turbo

import (
	"testing"

	"github.com/Blockstream/gr-blocksat/internal/turbo/bcjr"
	"github.com/Blockstream/gr-blocksat/internal/turbo/interleaver"
)

// encodeRSC runs info through the trellis, always choosing the bit that
// zeroes the register for the final tailSteps, and returns the full
// (info+tail) systematic and parity bit sequences.
func encodeRSC(tr *bcjr.Trellis, info []int, tailSteps int) (sys, par []int) {
	state := 0
	sys = make([]int, len(info)+tailSteps)
	par = make([]int, len(info)+tailSteps)
	for i, bit := range info {
		p := tr.Parity[state][bit]
		sys[i] = bit
		par[i] = p
		state = tr.NextState[state][bit]
	}
	for i := 0; i < tailSteps; i++ {
		bit := 0
		for b := 0; b <= 1; b++ {
			if tr.NextState[state][b]&1 == 0 {
				bit = b
				break
			}
		}
		p := tr.Parity[state][bit]
		sys[len(info)+i] = bit
		par[len(info)+i] = p
		state = tr.NextState[state][bit]
	}
	return sys, par
}

func bipolarLLR(bit int, confidence float32) float32 {
	if bit == 1 {
		return confidence
	}
	return -confidence
}

// buildMotherCodeword encodes info through both constituent encoders
// (the second over the interleaved sequence) and lays out the result the
// way Decoder.DecodeSIHO expects: K triplets then two tail blocks.
func buildMotherCodeword(t *testing.T, k int, info []int, tailSteps int) []float32 {
	t.Helper()
	tr := bcjr.NewTrellis(fbPoly, fwPoly)
	il := interleaver.New(k)

	sys1, par1 := encodeRSC(tr, info, tailSteps)

	infoF := make([]float64, k)
	for i, b := range info {
		infoF[i] = float64(b)
	}
	interleavedF := make([]float64, k)
	il.Permute(infoF, interleavedF)
	interleavedInfo := make([]int, k)
	for i, v := range interleavedF {
		interleavedInfo[i] = int(v)
	}
	sys2, par2 := encodeRSC(tr, interleavedInfo, tailSteps)

	const conf = 20.0
	out := make([]float32, 3*k+2*2*tailSteps)
	for i := 0; i < k; i++ {
		out[3*i] = bipolarLLR(sys1[i], conf)
		out[3*i+1] = bipolarLLR(par1[i], conf)
		out[3*i+2] = bipolarLLR(par2[i], conf)
	}
	base := 3 * k
	for i := 0; i < tailSteps; i++ {
		out[base+2*i] = bipolarLLR(sys1[k+i], conf)
		out[base+2*i+1] = bipolarLLR(par1[k+i], conf)
	}
	base2 := base + 2*tailSteps
	for i := 0; i < tailSteps; i++ {
		out[base2+2*i] = bipolarLLR(sys2[k+i], conf)
		out[base2+2*i+1] = bipolarLLR(par2[k+i], conf)
	}
	return out
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cases := []Config{
		{K: 0, NIte: 4},
		{K: 8, NIte: 0},
		{K: 7, NIte: 4, PunctureEn: true},
	}
	for i, cfg := range cases {
		if _, err := New(cfg); err == nil {
			t.Errorf("case %d: expected configuration error, got nil", i)
		}
	}
}

func TestDecodeSIHO_NoiselessRoundTrip(t *testing.T) {
	const k = 40
	d, err := New(Config{K: k, NIte: 6})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	info := make([]int, k)
	for i := range info {
		info[i] = (i*7 + 3) % 2
	}

	codeword := buildMotherCodeword(t, k, info, d.tailSteps)
	if len(codeword) != d.N() {
		t.Fatalf("codeword length = %d, want %d", len(codeword), d.N())
	}

	bitsOut := make([]byte, k)
	d.DecodeSIHO(codeword, bitsOut)

	for i, want := range info {
		if int(bitsOut[i]) != want {
			t.Errorf("bit %d: decoded %d, want %d", i, bitsOut[i], want)
		}
	}
}

func TestDecodeSIHO_FlipLLRs(t *testing.T) {
	const k = 40
	d, err := New(Config{K: k, NIte: 6, FlipLLRs: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	info := make([]int, k)
	for i := range info {
		info[i] = (i + 1) % 2
	}
	codeword := buildMotherCodeword(t, k, info, d.tailSteps)
	for i := range codeword {
		codeword[i] = -codeword[i] // pre-flip to compensate FlipLLRs
	}

	bitsOut := make([]byte, k)
	d.DecodeSIHO(codeword, bitsOut)

	for i, want := range info {
		if int(bitsOut[i]) != want {
			t.Errorf("bit %d: decoded %d, want %d", i, bitsOut[i], want)
		}
	}
}

func TestDecodeSIHO_Punctured(t *testing.T) {
	const k = 40
	d, err := New(Config{K: k, NIte: 6, PunctureEn: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	info := make([]int, k)
	for i := range info {
		info[i] = (i * 3) % 2
	}
	mother := buildMotherCodeword(t, k, info, d.tailSteps)

	// Puncture the mother codeword down to the wire length by selecting
	// exactly the positions Depuncture would have reinserted as zero.
	wire := make([]float32, 0, d.N())
	tailBits := 2 * d.tailSteps
	for i := 0; i < k; i++ {
		col := i % 2
		if col == 0 {
			wire = append(wire, mother[3*i], mother[3*i+1]) // sys, par1
		} else {
			wire = append(wire, mother[3*i], mother[3*i+2]) // sys, par2
		}
	}
	wire = append(wire, mother[3*k:3*k+2*tailBits]...) // both encoders' tails

	if len(wire) != d.N() {
		t.Fatalf("wire length = %d, want %d", len(wire), d.N())
	}

	bitsOut := make([]byte, k)
	d.DecodeSIHO(wire, bitsOut)

	for i, want := range info {
		if int(bitsOut[i]) != want {
			t.Errorf("bit %d: decoded %d, want %d", i, bitsOut[i], want)
		}
	}
}
