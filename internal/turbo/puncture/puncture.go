// Package puncture implements the rate-1/2 turbo code puncturing pattern:
// keep both systematic bits of a pair, keep parity1 from the first and
// parity2 from the second.
package puncture

// Pattern[stream][column] is true where that (systematic, parity1,
// parity2) bit survives puncturing; column cycles with period 2 over
// pairs of info bits.
var Pattern = [3][2]bool{
	{true, true},  // systematic: always kept
	{true, false}, // parity1: kept on the first bit of each pair
	{false, true}, // parity2: kept on the second bit of each pair
}

// PuncturedLen returns the wire length of a rate-1/2 punctured codeword
// for k info bits (assumed even) and tailBits unpunctured tail bits:
// (k/2)*4 + tailBits.
func PuncturedLen(k, tailBits int) int {
	return (k/2)*4 + tailBits
}

// Depuncture expands a punctured codeword back to the mother rate-1/3
// layout: k (systematic, parity1, parity2) triplets followed by tailBits
// unpunctured termination bits, inserting erasure (zero) LLRs at every
// punctured position.
func Depuncture(in []float32, k, tailBits int) []float32 {
	out := make([]float32, 3*k+tailBits)
	pos := 0
	for i := 0; i < k; i++ {
		col := i % 2
		if Pattern[0][col] {
			out[3*i] = in[pos]
			pos++
		}
		if Pattern[1][col] {
			out[3*i+1] = in[pos]
			pos++
		}
		if Pattern[2][col] {
			out[3*i+2] = in[pos]
			pos++
		}
	}
	copy(out[3*k:], in[pos:pos+tailBits])
	return out
}
