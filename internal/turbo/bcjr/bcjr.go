package bcjr

import "math"

var negInf = math.Inf(-1)

// Decoder runs max-log-MAP decoding passes against a fixed trellis. It
// holds no per-call state, so a single instance is reused across both
// constituent decodes and every turbo iteration.
type Decoder struct {
	trellis *Trellis
}

// NewDecoder builds a decoder bound to trellis.
func NewDecoder(trellis *Trellis) *Decoder {
	return &Decoder{trellis: trellis}
}

// Decode runs one SISO pass over a tail-terminated trellis of len(sysLLR)
// steps: the final state is assumed to be 0. sysLLR, parLLR and aPriori
// must all have equal length. It returns the a posteriori LLR per step and
// the extrinsic LLR (appLLR minus the systematic and a priori terms), the
// value the calling code passes on as the other constituent decoder's a
// priori input.
func (d *Decoder) Decode(sysLLR, parLLR, aPriori []float64) (appLLR, extrinsic []float64) {
	n := len(sysLLR)
	t := d.trellis

	alpha := make([][NumStates]float64, n+1)
	beta := make([][NumStates]float64, n+1)
	for s := 1; s < NumStates; s++ {
		alpha[0][s] = negInf
		beta[n][s] = negInf
	}

	gamma := func(k, sPrev, bit int) float64 {
		p := t.Parity[sPrev][bit]
		u := float64(2*bit - 1)
		x := float64(2*p - 1)
		return 0.5*u*(sysLLR[k]+aPriori[k]) + 0.5*x*parLLR[k]
	}

	for k := 1; k <= n; k++ {
		for s := 0; s < NumStates; s++ {
			alpha[k][s] = negInf
		}
		for sPrev := 0; sPrev < NumStates; sPrev++ {
			if alpha[k-1][sPrev] == negInf {
				continue
			}
			for bit := 0; bit <= 1; bit++ {
				sNext := t.NextState[sPrev][bit]
				v := alpha[k-1][sPrev] + gamma(k-1, sPrev, bit)
				if v > alpha[k][sNext] {
					alpha[k][sNext] = v
				}
			}
		}
	}

	for k := n - 1; k >= 0; k-- {
		for s := 0; s < NumStates; s++ {
			beta[k][s] = negInf
		}
		for sPrev := 0; sPrev < NumStates; sPrev++ {
			for bit := 0; bit <= 1; bit++ {
				sNext := t.NextState[sPrev][bit]
				if beta[k+1][sNext] == negInf {
					continue
				}
				v := beta[k+1][sNext] + gamma(k, sPrev, bit)
				if v > beta[k][sPrev] {
					beta[k][sPrev] = v
				}
			}
		}
	}

	appLLR = make([]float64, n)
	extrinsic = make([]float64, n)
	for k := 0; k < n; k++ {
		max0, max1 := negInf, negInf
		for sPrev := 0; sPrev < NumStates; sPrev++ {
			if alpha[k][sPrev] == negInf {
				continue
			}
			for bit := 0; bit <= 1; bit++ {
				sNext := t.NextState[sPrev][bit]
				if beta[k+1][sNext] == negInf {
					continue
				}
				v := alpha[k][sPrev] + gamma(k, sPrev, bit) + beta[k+1][sNext]
				if bit == 1 {
					if v > max1 {
						max1 = v
					}
				} else if v > max0 {
					max0 = v
				}
			}
		}
		appLLR[k] = max1 - max0
		extrinsic[k] = appLLR[k] - sysLLR[k] - aPriori[k]
	}
	return appLLR, extrinsic
}
