// Package framesync implements the preamble matched filter and lock/unlock
// state machine that recovers frame timing, and feeds a frame-start
// estimate back to the coarse frequency recovery block.
package framesync

import (
	"fmt"
	"math"

	"github.com/Blockstream/gr-blocksat/internal/dsp"
	"github.com/Blockstream/gr-blocksat/internal/tag"
)

// Config holds the frame synchronizer construction parameters.
type Config struct {
	Preamble        []complex64
	FrameLen        int
	M               int
	NSuccessToLock  int
	EnableGainEQ    bool // DEBUG_GAIN_EQ: telemetry-only, never applied to output
	EnablePhaseCorr bool
	EnableFreqCorr  bool
	DebugLevel      int
}

func (c Config) validate() error {
	if len(c.Preamble) == 0 {
		return fmt.Errorf("framesync: preamble must be non-empty")
	}
	if c.FrameLen < len(c.Preamble) {
		return fmt.Errorf("framesync: FrameLen (%d) must be >= preamble length (%d)", c.FrameLen, len(c.Preamble))
	}
	if c.M != 2 && c.M != 4 {
		return fmt.Errorf("framesync: M must be 2 or 4, got %d", c.M)
	}
	if c.NSuccessToLock <= 0 {
		return fmt.Errorf("framesync: NSuccessToLock must be positive")
	}
	return nil
}

// FS is one frame synchronizer block instance.
type FS struct {
	cfg Config

	preambleLen int
	peakDelay   int
	l           int // weighting window half-length

	pmf         *matchedFilter
	pmfTapConj  []complex128 // un-flipped conjugate preamble, for the locked dot product
	wWindow     []float64

	locked           bool
	lastIFrameStart  int
	acquiredStart    int
	successCnt       int
	failCnt          int
	magPMFPeak       float64
	eqGain           float64
	avgFreqOffset    float64
	fineAlpha        float64
	fineBeta         float64
	startIdxCFO      int64

	magBuf  []float32
	derotBuf []complex64
}

// New builds a frame synchronizer, returning a configuration error if
// cfg is invalid.
func New(cfg Config) (*FS, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	n := len(cfg.Preamble)
	taps := make([]complex128, n)
	tapConj := make([]complex128, n)
	for i, p := range cfg.Preamble {
		taps[i] = cmplxConj(complex128(cfg.Preamble[n-1-i]))
		tapConj[i] = cmplxConj(complex128(p))
	}

	l := n / 2
	w := make([]float64, l)
	for m := 0; m < l; m++ {
		num := 3 * (sq(2*float64(l)+1) - sq(2*float64(m)+1))
		den := (sq(2*float64(l)+1) - 1) * (2*float64(l) + 1)
		w[m] = num / den
	}

	return &FS{
		cfg:         cfg,
		preambleLen: n,
		peakDelay:   2*n - 1,
		l:           l,
		pmf:         newMatchedFilter(taps, n),
		pmfTapConj:  tapConj,
		wWindow:     w,
		fineAlpha:   0.1,
		fineBeta:    0.9,
		magBuf:      make([]float32, cfg.FrameLen),
		derotBuf:    make([]complex64, n),
	}, nil
}

func sq(x float64) float64 { return x * x }

func cmplxConj(x complex128) complex128 {
	return complex(real(x), -imag(x))
}

// Work processes len(in)/FrameLen whole frames from in, writing the
// passed-through (and, at lock transitions, partial) samples to out and
// returning the number of samples produced. blockOffset is the absolute
// sample offset of in[0] within the stream, used to align inTags/outTags.
// inTags carries cfo tags produced upstream by cfr; outTags receives
// fs_phase, fs_phase_corr and fs_fine_cfo tags. startBus publishes the
// start_index feedback message read by cfr.
func (f *FS) Work(blockOffset int64, out, in []complex64, inTags *tag.Stream, outTags *tag.Stream, startBus *tag.Bus) int {
	nFrames := len(in) / f.cfg.FrameLen
	nProduced := 0

	for iFrame := 0; iFrame < nFrames; iFrame++ {
		off := iFrame * f.cfg.FrameLen
		absOff := blockOffset + int64(off)
		frame := in[off : off+f.cfg.FrameLen]

		var pmfPeak complex128

		if !f.locked {
			pmfOut := f.pmf.FilterN(frame)
			for i, v := range pmfOut {
				f.magBuf[i] = dsp.Abs(v)
			}
			iMax := dsp.IndexMax(f.magBuf)

			iFrameStart := ((iMax - f.peakDelay) % f.cfg.FrameLen)
			if iFrameStart < 0 {
				iFrameStart += f.cfg.FrameLen
			}

			pmfPeak = complex128(pmfOut[iMax])
			f.magPMFPeak = cmplxAbs(pmfPeak)

			if iFrameStart == f.lastIFrameStart {
				f.successCnt++
			} else {
				f.successCnt = 0
			}
			f.lastIFrameStart = iFrameStart

			if f.successCnt == f.cfg.NSuccessToLock {
				f.locked = true
				f.acquiredStart = iFrameStart

				n := copy(out[nProduced:], frame[iFrameStart:])
				nProduced += n

				f.startIdxCFO = int64(iFrameStart)
				startBus.Publish(f.startIdxCFO)
			}
		} else {
			if inTags != nil {
				lo := absOff + int64(f.acquiredStart) - int64(f.preambleLen)
				hi := absOff + int64(f.acquiredStart) + int64(f.preambleLen)
				for _, tg := range inTags.InWindow(tag.CFO, lo, hi) {
					tagOffsetErr := (tg.Offset - absOff) - int64(f.acquiredStart)
					f.startIdxCFO -= tagOffsetErr
					if tagOffsetErr != 0 {
						startBus.Publish(f.startIdxCFO)
					}
					f.avgFreqOffset = 0
				}
			}

			preamble := frame[f.acquiredStart : f.acquiredStart+f.preambleLen]

			if f.cfg.EnableFreqCorr {
				freqOffset := f.estFreqOffset(preamble)
				f.avgFreqOffset = f.fineAlpha*freqOffset + f.fineBeta*f.avgFreqOffset
				if outTags != nil {
					outTags.Add(tag.FloatTag(absOff+int64(f.acquiredStart), tag.FSFineCFO, f.avgFreqOffset))
				}
			}

			dsp.Rotator(f.derotBuf, preamble, 0, -2*math.Pi*f.avgFreqOffset)
			pmfPeak = 0
			for i, v := range f.derotBuf {
				pmfPeak += complex128(v) * f.pmfTapConj[i]
			}
			f.magPMFPeak = cmplxAbs(pmfPeak)

			if f.cfg.EnableGainEQ && f.magPMFPeak > 0 {
				f.eqGain = float64(f.preambleLen) / f.magPMFPeak
			}

			if f.magPMFPeak < 0.2*float64(f.preambleLen) {
				f.failCnt++
			} else {
				f.failCnt = 0
			}

			if f.failCnt == f.cfg.NSuccessToLock {
				f.locked = false
				f.successCnt = 0
				f.failCnt = 0

				n := copy(out[nProduced:], in[off:off+f.acquiredStart])
				nProduced += n
			} else {
				n := copy(out[nProduced:], frame)
				nProduced += n
			}
		}

		if f.locked && f.cfg.EnablePhaseCorr && outTags != nil {
			phase := math.Atan2(imag(pmfPeak), real(pmfPeak))
			phaseOffset := absOff + int64(f.acquiredStart)
			outTags.Add(tag.FloatTag(phaseOffset, tag.FSPhase, phase))
			outTags.Add(tag.FloatTag(phaseOffset, tag.FSPhaseCorr, phase))
		}
	}

	return nProduced
}

// estFreqOffset computes the residual fine CFO from a single received
// preamble window (modulation removed by multiplying with the conjugate
// preamble) per the weighted auto-correlation estimator.
func (f *FS) estFreqOffset(preamble []complex64) float64 {
	n := f.preambleLen
	u := make([]complex128, n)
	for i, v := range preamble {
		u[i] = complex128(v) * f.pmfTapConj[i]
	}

	angle := make([]float64, f.l+1)
	for m := 1; m < f.l+2; m++ {
		var sum complex128
		for k := 0; k < n-m; k++ {
			sum += cmplxConj(u[k]) * u[k+m]
		}
		r := sum / complex(float64(n-m), 0)
		angle[m-1] = math.Atan2(imag(r), real(r))
	}

	var weightedSum float64
	for m := 0; m < f.l; m++ {
		d := angle[m+1] - angle[m]
		if d > math.Pi {
			d -= 2 * math.Pi
		} else if d < -math.Pi {
			d += 2 * math.Pi
		}
		weightedSum += d * f.wWindow[m]
	}

	freqOffset := weightedSum / (2 * math.Pi)
	if freqOffset > 0.5 {
		return 0.5
	}
	if freqOffset < -0.5 {
		return -0.5
	}
	return freqOffset
}

func cmplxAbs(x complex128) float64 {
	return math.Hypot(real(x), imag(x))
}

// MagPMFPeak returns the most recent PMF peak magnitude, normalized by
// preamble length assuming unit symbol energy.
func (f *FS) MagPMFPeak() float64 {
	return f.magPMFPeak / float64(f.preambleLen)
}

// Locked reports whether the synchronizer currently holds frame lock.
func (f *FS) Locked() bool {
	return f.locked
}

// EqGain returns the gain-equalization telemetry value; it is only
// meaningful when Config.EnableGainEQ is set, and is never applied to
// the output stream.
func (f *FS) EqGain() float64 {
	return f.eqGain
}
