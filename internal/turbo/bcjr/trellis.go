// Package bcjr implements a max-log-MAP (BCJR) soft-in/soft-out decoder
// for the 8-state recursive systematic convolutional code used by the
// turbo decoder.
package bcjr

// NumStates is the number of encoder states for a memory-3 RSC code.
const NumStates = 8

// Trellis holds the per-state, per-input-bit transition table for an
// 8-state recursive systematic convolutional encoder.
type Trellis struct {
	NextState [NumStates][2]int
	Parity    [NumStates][2]int
}

func bits4(v int) [4]int {
	return [4]int{(v >> 3) & 1, (v >> 2) & 1, (v >> 1) & 1, v & 1}
}

// NewTrellis builds the trellis for feedback polynomial fb and
// feedforward (parity) polynomial fw, both given as Go integer constants
// written in octal so the source reads the way the polynomials are
// conventionally quoted (013, 015). Bit 3 of each is the leading/self tap;
// bits 2,1,0 tap the register values from one, two and three steps back,
// held in stages s0 (newest), s1 and s2 (oldest).
func NewTrellis(fb, fw int) *Trellis {
	fbBits := bits4(fb)
	fwBits := bits4(fw)

	t := &Trellis{}
	for state := 0; state < NumStates; state++ {
		s2, s1, s0 := (state>>2)&1, (state>>1)&1, state&1
		for d := 0; d <= 1; d++ {
			a := d ^ (fbBits[1] & s0) ^ (fbBits[2] & s1) ^ (fbBits[3] & s2)
			p := a ^ (fwBits[1] & s0) ^ (fwBits[2] & s1) ^ (fwBits[3] & s2)
			t.NextState[state][d] = (s1 << 2) | (s0 << 1) | a
			t.Parity[state][d] = p
		}
	}
	return t
}
