// Package softdemap converts complex symbols to log-likelihood ratios
// given a noise energy estimate, for BPSK or QPSK.
package softdemap

import "math"

// Demapper produces LLRs for a fixed constellation order and noise energy.
type Demapper struct {
	m     int
	scale float64 // precomputed scaling constant c
}

// New builds a demapper. M must be 2 (BPSK) or 4 (QPSK); n0 is the noise
// energy per two dimensions.
func New(m int, n0 float64) *Demapper {
	d := &Demapper{m: m}
	if m == 4 {
		d.scale = -2 * math.Sqrt2 / n0
	} else {
		d.scale = -4 / n0
	}
	return d
}

// Rate returns the number of LLRs produced per input symbol: 2 for
// QPSK, 1 for BPSK.
func (d *Demapper) Rate() int {
	if d.m == 4 {
		return 2
	}
	return 1
}

// Work appends the LLRs for in to out and returns the updated slice.
// For QPSK each symbol contributes (LLR_MSB, LLR_LSB) in that order;
// for BPSK each symbol contributes a single LLR.
func (d *Demapper) Work(out []float32, in []complex64) []float32 {
	for _, y := range in {
		if d.m == 4 {
			out = append(out, float32(d.scale*float64(imag(y))), float32(d.scale*float64(real(y))))
		} else {
			out = append(out, float32(d.scale*float64(real(y))))
		}
	}
	return out
}

// SetN0 recomputes the scaling constant for a new noise energy estimate.
// Must only be called between Work invocations.
func (d *Demapper) SetN0(n0 float64) {
	if d.m == 4 {
		d.scale = -2 * math.Sqrt2 / n0
	} else {
		d.scale = -4 / n0
	}
}
