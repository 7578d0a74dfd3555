// Package agc implements the automatic gain control block: a scalar gain
// loop that drives mean output power toward a reference level.
package agc

import "math"

// AGC adapts a scalar gain g so that the mean power of x*sqrt(g) tracks
// a reference r^2.
type AGC struct {
	gain  float64
	ref   float64
	rate  float64
	gMax  float64
	level bool // whether to also produce the inverse-amplitude stream
}

// Config holds the AGC construction parameters.
type Config struct {
	Rate          float64 // mu, adaptation rate
	Reference     float64 // r
	InitialGain   float64 // g0
	MaxGain       float64 // g_max, <= 0 disables saturation
	EmitLevelPort bool    // emit 1/sqrt(g) on a second output stream
}

// New builds an AGC block from cfg.
func New(cfg Config) *AGC {
	return &AGC{
		gain:  cfg.InitialGain,
		ref:   cfg.Reference,
		rate:  cfg.Rate,
		gMax:  cfg.MaxGain,
		level: cfg.EmitLevelPort,
	}
}

// Work processes in, writing the gain-adjusted output into out (which
// may alias in), and if the level port is enabled, the inverse amplitude
// 1/sqrt(g) per sample into level. level may be nil when the level port
// is disabled.
func (a *AGC) Work(out, in []complex64, level []float32) {
	for i, x := range in {
		y := complex64(complex128(x) * complex(math.Sqrt(a.gain), 0))
		out[i] = y

		mag2 := real(y)*real(y) + imag(y)*imag(y)
		a.gain += a.rate * (a.ref*a.ref - float64(mag2))
		if a.gMax > 0 && a.gain > a.gMax {
			a.gain = a.gMax
		}

		if a.level && level != nil {
			level[i] = float32(1 / math.Sqrt(a.gain))
		}
	}
}

// SetRate updates mu. Must only be called between Work invocations.
func (a *AGC) SetRate(mu float64) { a.rate = mu }

// Rate returns the current adaptation rate.
func (a *AGC) Rate() float64 { return a.rate }

// SetReference updates r.
func (a *AGC) SetReference(r float64) { a.ref = r }

// Reference returns the current reference level.
func (a *AGC) Reference() float64 { return a.ref }

// SetGain forces the current gain value.
func (a *AGC) SetGain(g float64) { a.gain = g }

// Gain returns the current gain value.
func (a *AGC) Gain() float64 { return a.gain }

// SetMaxGain updates g_max. A value <= 0 disables saturation.
func (a *AGC) SetMaxGain(gMax float64) { a.gMax = gMax }

// MaxGain returns the current max gain.
func (a *AGC) MaxGain() float64 { return a.gMax }
