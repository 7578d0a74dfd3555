// Package mer implements the modulation error ratio estimator: a running
// average of the sliced symbol error, decimated to one estimate per frame.
package mer

import (
	"math"

	"github.com/Blockstream/gr-blocksat/internal/constellation"
)

// Config holds the MER estimator construction parameters.
type Config struct {
	M        int     // constellation order: 2 (BPSK) or 4 (QPSK)
	Alpha    float64 // IIR averaging coefficient
	FrameLen int     // decimation factor: one SNR sample emitted per FrameLen input symbols
	Disable  bool    // skip work when the output port is unconnected
}

// MER is one MER estimator block instance.
type MER struct {
	cfg    Config
	slicer *constellation.Constellation
	avgErr float64
}

// New builds a MER estimator from cfg.
func New(cfg Config) *MER {
	order := constellation.BPSK
	if cfg.M == 4 {
		order = constellation.QPSK
	}
	return &MER{cfg: cfg, slicer: constellation.New(order)}
}

// Work consumes in (a multiple of FrameLen symbols) and, unless
// connected is false and Disable is set, appends one SNR-in-dB value per
// frame to out, returning the updated slice.
func (m *MER) Work(out []float32, in []complex64, connected bool) []float32 {
	if m.cfg.Disable && !connected {
		return out
	}

	n := 0
	for _, y := range in {
		sliced := complex64(m.slicer.Slice(complex128(y)))
		diff := complex128(y - sliced)
		e := real(diff)*real(diff) + imag(diff)*imag(diff)
		m.avgErr = (1-m.cfg.Alpha)*m.avgErr + m.cfg.Alpha*e

		n++
		if n == m.cfg.FrameLen {
			out = append(out, float32(m.snrFromAvgErr()))
			n = 0
		}
	}
	return out
}

func (m *MER) snrFromAvgErr() float64 {
	if m.avgErr <= 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(1/m.avgErr)
}

// SetAlpha updates the averaging coefficient. Must only be called
// between Work invocations.
func (m *MER) SetAlpha(alpha float64) { m.cfg.Alpha = alpha }

// SNR returns the most recent SNR-in-dB estimate.
func (m *MER) SNR() float64 { return m.snrFromAvgErr() }

// Enable clears the Disable flag.
func (m *MER) Enable() { m.cfg.Disable = false }

// Disable sets the Disable flag.
func (m *MER) Disable() { m.cfg.Disable = true }
