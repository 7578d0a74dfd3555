// Package turbo implements the rate-1/3 (optionally rate-1/2 punctured)
// turbo decoder: two max-log-MAP passes over an 8-state recursive
// systematic constituent code, exchanging extrinsic information through
// an LTE interleaver.
package turbo

import (
	"fmt"
	"math"

	"github.com/Blockstream/gr-blocksat/internal/turbo/bcjr"
	"github.com/Blockstream/gr-blocksat/internal/turbo/interleaver"
	"github.com/Blockstream/gr-blocksat/internal/turbo/puncture"
)

// Constituent RSC polynomials, written in octal so the source matches how
// they're conventionally named: feedback 013, feedforward (parity) 015.
const (
	fbPoly = 013
	fwPoly = 015
)

// Config holds the turbo decoder construction parameters.
type Config struct {
	K          int // dataword length in bits
	PunctureEn bool
	NIte       int // maximum number of decoding iterations
	FlipLLRs   bool
}

func (c Config) validate() error {
	if c.K <= 0 {
		return fmt.Errorf("turbo: K must be positive, got %d", c.K)
	}
	if c.PunctureEn && c.K%2 != 0 {
		return fmt.Errorf("turbo: K must be even when puncturing is enabled, got %d", c.K)
	}
	if c.NIte <= 0 {
		return fmt.Errorf("turbo: NIte must be positive, got %d", c.NIte)
	}
	return nil
}

// Decoder is one turbo decoder instance bound to a fixed K.
type Decoder struct {
	cfg       Config
	dec       *bcjr.Decoder
	il        *interleaver.LTE
	tailSteps int // trellis termination steps per constituent encoder
	tailBits  int // 2*tailSteps: tail bits emitted by one encoder
	n         int // mother (rate-1/3) codeword length: 3K + 2*tailBits
	nWire     int // wire codeword length read per call (n, or punctured)
}

// New builds a turbo decoder from cfg.
func New(cfg Config) (*Decoder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxPoly := fwPoly
	if fbPoly > maxPoly {
		maxPoly = fbPoly
	}
	tailBits := int(2 * math.Floor(math.Log2(float64(maxPoly))))
	tailSteps := tailBits / 2
	n := 3*cfg.K + 2*tailBits

	nWire := n
	if cfg.PunctureEn {
		nWire = puncture.PuncturedLen(cfg.K, 2*tailBits)
	}

	trellis := bcjr.NewTrellis(fbPoly, fwPoly)
	return &Decoder{
		cfg:       cfg,
		dec:       bcjr.NewDecoder(trellis),
		il:        interleaver.New(cfg.K),
		tailSteps: tailSteps,
		tailBits:  tailBits,
		n:         n,
		nWire:     nWire,
	}, nil
}

// K returns the dataword length.
func (d *Decoder) K() int { return d.cfg.K }

// N returns the wire codeword length expected per DecodeSIHO call (after
// puncturing, if enabled).
func (d *Decoder) N() int { return d.nWire }

// DecodeSIHO decodes one codeword of N() LLRs in llrIn into K() hard bits
// (0/1), written as bytes to bitsOut.
func (d *Decoder) DecodeSIHO(llrIn []float32, bitsOut []byte) {
	mother := llrIn
	if d.cfg.PunctureEn {
		mother = puncture.Depuncture(llrIn, d.cfg.K, 2*d.tailBits)
	}

	k := d.cfg.K
	steps := k + d.tailSteps

	sys1 := make([]float64, steps)
	par1 := make([]float64, steps)
	sys2 := make([]float64, steps)
	par2 := make([]float64, steps)

	sign := 1.0
	if d.cfg.FlipLLRs {
		sign = -1.0
	}

	// Mother codeword layout: K triplets (sys, par1, par2), then
	// tailBits termination bits (sys,par pairs) for encoder 1, then
	// tailBits termination bits for encoder 2.
	for i := 0; i < k; i++ {
		sys1[i] = sign * float64(mother[3*i])
		par1[i] = sign * float64(mother[3*i+1])
		par2[i] = sign * float64(mother[3*i+2])
	}
	tailBase1 := 3 * k
	for i := 0; i < d.tailSteps; i++ {
		sys1[k+i] = sign * float64(mother[tailBase1+2*i])
		par1[k+i] = sign * float64(mother[tailBase1+2*i+1])
	}
	tailBase2 := tailBase1 + d.tailBits
	for i := 0; i < d.tailSteps; i++ {
		sys2[k+i] = sign * float64(mother[tailBase2+2*i])
		par2[k+i] = sign * float64(mother[tailBase2+2*i+1])
	}
	d.il.Permute(sys1[:k], sys2[:k])

	extrFor1 := make([]float64, steps)
	aFor2 := make([]float64, steps)
	var appLLR2 []float64

	for iter := 0; iter < d.cfg.NIte; iter++ {
		_, e1 := d.dec.Decode(sys1, par1, extrFor1)
		d.il.Permute(e1[:k], aFor2[:k])

		app2, e2 := d.dec.Decode(sys2, par2, aFor2)
		appLLR2 = app2
		d.il.Deinterleave(e2[:k], extrFor1[:k])
	}

	final := make([]float64, k)
	d.il.Deinterleave(appLLR2[:k], final)
	for i := 0; i < k; i++ {
		if final[i] > 0 {
			bitsOut[i] = 1
		} else {
			bitsOut[i] = 0
		}
	}
}
