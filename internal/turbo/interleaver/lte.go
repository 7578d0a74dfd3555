// Package interleaver implements the quadratic permutation polynomial
// (QPP) interleaver used between the two constituent decoders of the
// turbo code.
package interleaver

// table holds the 3GPP TS 36.212 QPP parameters (f1, f2) for a
// representative subset of standard turbo code block sizes.
var table = map[int][2]int{
	40:   {3, 10},
	48:   {7, 12},
	56:   {19, 42},
	64:   {7, 16},
	128:  {31, 64},
	256:  {137, 32},
	512:  {73, 128},
	1024: {349, 256},
	2048: {331, 256},
	4096: {133, 512},
	6144: {263, 384},
}

// LTE is a QPP interleaver: pi(i) = (f1*i + f2*i^2) mod K.
type LTE struct {
	k      int
	f1, f2 int
	perm   []int
}

// New builds the interleaver for a block of k bits. If k is not one of
// the standard 3GPP sizes in table, f1/f2 are derived with a deterministic
// fallback: f1 is the smallest odd value coprime to k and f2 is the product
// of k's distinct prime factors; this always yields a valid permutation but
// is not itself a 3GPP-standard parameter pair.
func New(k int) *LTE {
	f1, f2 := lookupOrFallback(k)
	l := &LTE{k: k, f1: f1, f2: f2, perm: make([]int, k)}
	for i := 0; i < k; i++ {
		l.perm[i] = (f1*i + f2*i*i) % k
	}
	return l
}

func lookupOrFallback(k int) (int, int) {
	if fp, ok := table[k]; ok {
		return fp[0], fp[1]
	}
	f2 := 1
	for p, r := 2, k; r > 1; p++ {
		if r%p == 0 {
			f2 *= p
			for r%p == 0 {
				r /= p
			}
		}
	}
	f1 := 1
	for f1 < k && gcd(f1, k) != 1 {
		f1 += 2
	}
	if f1 >= k {
		f1 = 1
	}
	return f1, f2
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// K returns the interleaver block length.
func (l *LTE) K() int { return l.k }

// Permute scatters in into out under the forward permutation:
// out[pi(i)] = in[i].
func (l *LTE) Permute(in, out []float64) {
	for i, j := range l.perm {
		out[j] = in[i]
	}
}

// Deinterleave gathers in under the inverse permutation:
// out[i] = in[pi(i)].
func (l *LTE) Deinterleave(in, out []float64) {
	for i, j := range l.perm {
		out[i] = in[j]
	}
}
