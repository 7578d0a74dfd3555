// Package cfr implements feed-forward coarse carrier-frequency recovery:
// periodic power-N FFT peak detection with a timing-aligned correction
// update driven by frame-start feedback from the frame synchronizer.
package cfr

import (
	"fmt"
	"math"

	"github.com/Blockstream/gr-blocksat/internal/dsp"
	"github.com/Blockstream/gr-blocksat/internal/tag"
)

// Config holds the CFR construction parameters.
type Config struct {
	FFTLen   int     // N_fft, must be a power of two
	Alpha    float64 // spectrum averaging coefficient, in (0, 1]
	M        int     // constellation order: 2 (BPSK) or 4 (QPSK)
	SleepPer int     // process 1 of every SleepPer blocks
	FrameLen int      // frame length in symbols
	Sps      int      // samples per symbol
	Debug    bool
}

func (c Config) validate() error {
	if c.M != 2 && c.M != 4 {
		return fmt.Errorf("cfr: M must be 2 or 4, got %d", c.M)
	}
	if !dsp.IsPowerOfTwo(c.FFTLen) {
		return fmt.Errorf("cfr: FFTLen must be a power of two, got %d", c.FFTLen)
	}
	if c.FrameLen <= 0 {
		return fmt.Errorf("cfr: FrameLen must be positive, got %d", c.FrameLen)
	}
	if c.Sps <= 0 {
		return fmt.Errorf("cfr: Sps must be positive, got %d", c.Sps)
	}
	if c.SleepPer <= 0 {
		c.SleepPer = 1
	}
	return nil
}

// CFR is one coarse-frequency-recovery block instance.
type CFR struct {
	cfg Config

	beta         float64
	halfFFTLen   int
	deltaF       float64
	frameLenOver int

	fE          float64
	phaseInc    float64
	phaseAccum  float64
	iBlock      int
	iSample     int
	pendUpdate  bool
	pendFE      float64
	startIndex  int // in samples, already multiplied by sps

	avgBuffer  []float32
	magBuffer  []float32
	raiseBuf   []complex64
	fftBuf     []complex128
}

// New builds a CFR block, returning a configuration error if cfg is invalid.
func New(cfg Config) (*CFR, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.SleepPer <= 0 {
		cfg.SleepPer = 1
	}
	return &CFR{
		cfg:          cfg,
		beta:         1 - cfg.Alpha,
		halfFFTLen:   cfg.FFTLen / 2,
		deltaF:       1.0 / (float64(cfg.M) * float64(cfg.FFTLen)),
		frameLenOver: cfg.FrameLen * cfg.Sps,
		avgBuffer:    make([]float32, cfg.FFTLen),
		magBuffer:    make([]float32, cfg.FFTLen),
		raiseBuf:     make([]complex64, cfg.FFTLen),
		fftBuf:       make([]complex128, cfg.FFTLen),
	}, nil
}

// ReceiveStartIndex polls bus for a pending FS start_index message,
// converting it from symbol index to sample index via sps, as the
// original message handler does on receipt.
func (c *CFR) ReceiveStartIndex(bus *tag.Bus) {
	if v, ok := bus.TryReceive(); ok {
		c.startIndex = int(v) * c.cfg.Sps
	}
}

// Work processes len(in)/FFTLen whole FFT blocks from in, writing the
// frequency-corrected output into out (len(out) must equal the number
// of samples consumed, a multiple of FFTLen); trailing samples that
// don't fill a whole block are left unconsumed and the returned count
// reflects only the samples produced. fftOut, if non-nil, receives the
// averaged power spectrum per processed block (nil when the optional
// spectrum port is unused). tags receives cfo tags at block-relative
// offsets.
func (c *CFR) Work(out, in []complex64, fftOut []float32, tags *tag.Stream) int {
	n := c.cfg.FFTLen
	nBlocks := len(in) / n

	for ib := 0; ib < nBlocks; ib++ {
		off := ib * n
		inBlock := in[off : off+n]
		outBlock := out[off : off+n]

		if c.iBlock == 0 {
			c.estimateFrequency(inBlock)
		}

		iSampleNext := (c.iSample + n) % c.frameLenOver

		var startInRange bool
		var iUpdate int
		if iSampleNext <= c.iSample {
			startInRange = c.startIndex >= c.iSample || c.startIndex < iSampleNext
			if c.startIndex < c.iSample {
				iUpdate = (c.frameLenOver - c.iSample) + c.startIndex
			} else {
				iUpdate = c.startIndex - c.iSample
			}
		} else {
			startInRange = c.startIndex >= c.iSample && c.startIndex < iSampleNext
			iUpdate = c.startIndex - c.iSample
		}

		if c.pendUpdate && startInRange {
			c.phaseAccum = dsp.Rotator(outBlock[:iUpdate], inBlock[:iUpdate], c.phaseAccum, -c.phaseInc)

			c.fE = c.pendFE
			c.phaseInc = 2 * math.Pi * c.fE
			c.pendUpdate = false

			if tags != nil {
				tags.Add(tag.FloatTag(int64(off+iUpdate), tag.CFO, c.fE))
			}

			c.phaseAccum = dsp.Rotator(outBlock[iUpdate:], inBlock[iUpdate:], c.phaseAccum, -c.phaseInc)
		} else {
			c.phaseAccum = dsp.Rotator(outBlock, inBlock, c.phaseAccum, -c.phaseInc)
		}

		if fftOut != nil {
			copy(fftOut[off:off+n], c.avgBuffer)
		}

		c.iSample = iSampleNext
		c.iBlock = (c.iBlock + 1) % c.cfg.SleepPer
	}

	return nBlocks * n
}

// estimateFrequency raises inBlock to the M-th power, FFTs it, updates
// the smoothed spectrum average and marks a pending correction if the
// new peak-derived estimate differs from the current one.
func (c *CFR) estimateFrequency(inBlock []complex64) {
	dsp.RaisePower(c.raiseBuf, inBlock, c.cfg.M)

	for i, v := range c.raiseBuf {
		c.fftBuf[i] = complex128(v)
	}
	spectrum := dsp.FFT(c.fftBuf)

	for i, v := range spectrum {
		re, im := real(v), imag(v)
		c.magBuffer[i] = float32(re*re + im*im)
	}
	for i := range c.avgBuffer {
		c.avgBuffer[i] = c.avgBuffer[i]*float32(c.beta) + c.magBuffer[i]*float32(c.cfg.Alpha)
	}

	iMax := dsp.IndexMax(c.avgBuffer)
	iMaxShifted := iMax
	if iMax > c.halfFFTLen {
		iMaxShifted = iMax - c.cfg.FFTLen
	}
	fE := float64(iMaxShifted) * c.deltaF

	c.pendUpdate = fE != c.fE
	c.pendFE = fE
}

// Frequency returns the current phase increment in radians/sample.
func (c *CFR) Frequency() float64 { return c.phaseInc }

// Reset zeroes the frequency-estimate state, as if waking from sleep.
func (c *CFR) Reset() {
	c.fE = 0
	c.phaseInc = 0
	c.phaseAccum = 0
	c.iBlock = 0
}
