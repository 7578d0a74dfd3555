// Package cpr implements data-aided carrier phase recovery: a per-symbol
// PI-controlled NCO that locks to known preamble/pilot symbols and tracks
// decision-directed on payload data, with an optional per-frame reset.
package cpr

import (
	"fmt"
	"math"

	"github.com/Blockstream/gr-blocksat/internal/constellation"
	"github.com/Blockstream/gr-blocksat/internal/dsp"
	"github.com/Blockstream/gr-blocksat/internal/tag"
)

// Config holds the CPR construction parameters.
type Config struct {
	Preamble         []complex64
	TrackingSyms     []complex64
	NoiseBW          float64 // Bn*T
	DampFactor       float64 // zeta
	M                int
	DataAided        bool
	ResetPerFrame    bool
	TrackingInterval int
	FrameLen         int
	DebugStats       bool
	SNRAlpha         float64
}

func (c Config) validate() error {
	if c.M != 2 && c.M != 4 {
		return fmt.Errorf("cpr: M must be 2 or 4, got %d", c.M)
	}
	if c.FrameLen < len(c.Preamble) {
		return fmt.Errorf("cpr: FrameLen must be >= preamble length")
	}
	if c.DampFactor <= 0 {
		return fmt.Errorf("cpr: DampFactor must be > 0")
	}
	if c.NoiseBW <= 0 {
		return fmt.Errorf("cpr: NoiseBW must be > 0")
	}
	payloadLen := c.FrameLen - len(c.Preamble)
	if c.TrackingInterval != 0 {
		period := c.TrackingInterval + len(c.TrackingSyms)
		if payloadLen%period != 0 {
			return fmt.Errorf("cpr: payload length %d not divisible by tracking period %d", payloadLen, period)
		}
	}
	return nil
}

// CPR is one carrier phase recovery block instance.
type CPR struct {
	cfg Config

	preambleLen          int
	payloadLen           int
	trackingLen          int
	trackingEn           bool
	dataPlusTrackingSpan int
	dataLen              int

	k1, k2 float64

	phi        float64 // NCO phase accumulator
	integrator float64
	phiFS      float64 // held frame-sync phase

	avgErr float64 // exponentially averaged preamble squared error

	slicer *constellation.Constellation
}

// New builds a CPR block, returning a configuration error if cfg is invalid.
func New(cfg Config) (*CPR, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	preambleLen := len(cfg.Preamble)
	payloadLen := cfg.FrameLen - preambleLen
	trackingLen := len(cfg.TrackingSyms)
	trackingEn := cfg.TrackingInterval != 0

	dataPlusTrackingSpan := cfg.TrackingInterval + trackingLen
	dataLen := payloadLen
	if trackingEn {
		nTrackingSeqs := payloadLen / dataPlusTrackingSpan
		dataLen = payloadLen - nTrackingSeqs*trackingLen
	}

	order := constellation.BPSK
	if cfg.M == 4 {
		order = constellation.QPSK
	}

	zeta := cfg.DampFactor
	bnTs := cfg.NoiseBW
	thetaN := bnTs / (zeta + 1/(4*zeta))
	k1 := (4 * zeta * thetaN) / (1 + 2*zeta*thetaN + thetaN*thetaN)
	k2 := (4 * thetaN * thetaN) / (1 + 2*zeta*thetaN + thetaN*thetaN)

	return &CPR{
		cfg:                  cfg,
		preambleLen:          preambleLen,
		payloadLen:           payloadLen,
		trackingLen:          trackingLen,
		trackingEn:           trackingEn,
		dataPlusTrackingSpan: dataPlusTrackingSpan,
		dataLen:              dataLen,
		k1:                   k1,
		k2:                   k2,
		slicer:               constellation.New(order),
	}, nil
}

// DataLen returns the number of data symbols produced per frame.
func (c *CPR) DataLen() int { return c.dataLen }

func (c *CPR) loopStep(e float64) {
	c.integrator += e * c.k2
	c.phi = dsp.WrapPi(c.phi + e*c.k1 + c.integrator)
}

func derotate(x complex64, phi float64) complex64 {
	rot := complex(math.Cos(-phi), math.Sin(-phi))
	return complex64(complex128(x) * rot)
}

// Work processes len(in)/FrameLen whole frames from in, writing the
// de-rotated data symbols into outSym and their phase errors into
// outErr (both sized DataLen()*nFrames), and returns the number of
// symbols consumed and produced. blockOffset aligns inTags, from which
// an fs_phase_corr tag at each frame's first symbol updates the held
// frame-sync phase.
func (c *CPR) Work(blockOffset int64, in []complex64, outSym []complex64, outErr []float32, inTags *tag.Stream) (nConsumed, nProduced int) {
	nFrames := len(in) / c.cfg.FrameLen

	for iFrame := 0; iFrame < nFrames; iFrame++ {
		off := iFrame * c.cfg.FrameLen
		absOff := blockOffset + int64(off)
		frame := in[off : off+c.cfg.FrameLen]
		nConsumed += c.cfg.FrameLen

		if inTags != nil {
			if tg, ok := inTags.Find(tag.FSPhaseCorr, absOff); ok {
				c.phiFS = tg.Float
			}
		}
		if c.cfg.ResetPerFrame {
			c.phi = c.phiFS
			c.integrator = 0
		}

		i := 0
		for k := 0; k < c.preambleLen; k++ {
			x := frame[i]
			xd := derotate(x, c.phi)
			p := c.cfg.Preamble[k]

			phiErr := float64(imag(xd))*float64(real(p)) - float64(real(xd))*float64(imag(p))
			c.loopStep(phiErr)

			if c.cfg.SNRAlpha > 0 {
				diff := complex128(xd) - complex128(p)
				sqErr := real(diff)*real(diff) + imag(diff)*imag(diff)
				c.avgErr = (1-c.cfg.SNRAlpha)*c.avgErr + c.cfg.SNRAlpha*sqErr
			}
			i++
		}

		j := 0
		for j < c.payloadLen {
			for k := 0; (k < c.cfg.TrackingInterval || c.cfg.TrackingInterval == 0) && j < c.payloadLen; k++ {
				x := frame[i]
				xd := derotate(x, c.phi)
				sliced := c.slicer.Slice(complex128(xd))

				phiErr := float64(imag(xd))*real(sliced) - float64(real(xd))*imag(sliced)
				if c.cfg.DataAided {
					phiErr = 0
				}
				c.loopStep(phiErr)

				outSym[nProduced] = xd
				outErr[nProduced] = float32(phiErr)
				nProduced++

				j++
				i++
			}
			if j == c.payloadLen {
				break
			}

			for k := 0; k < c.trackingLen; k++ {
				x := frame[i]
				xd := derotate(x, c.phi)
				pilot := c.cfg.TrackingSyms[k]

				phiErr := float64(imag(xd))*float64(real(pilot)) - float64(real(xd))*float64(imag(pilot))
				c.loopStep(phiErr)

				j++
				i++
			}
		}
	}

	return nConsumed, nProduced
}

// SNR returns 10*log10(1/avgErr), the data-aided SNR estimate from the
// exponentially averaged preamble squared error.
func (c *CPR) SNR() float64 {
	if c.avgErr <= 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(1/c.avgErr)
}

// Phase returns the current NCO phase accumulator, wrapped to (-pi, pi].
func (c *CPR) Phase() float64 { return c.phi }
