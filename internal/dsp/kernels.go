package dsp

import (
	"math"
	"math/cmplx"
)

// WrapPi wraps an angle in radians to (−π, π].
func WrapPi(phase float64) float64 {
	for phase <= -math.Pi {
		phase += 2 * math.Pi
	}
	for phase > math.Pi {
		phase -= 2 * math.Pi
	}
	return phase
}

// WrapPi32 is the complex64-path variant of WrapPi.
func WrapPi32(phase float32) float32 {
	for phase <= -math.Pi {
		phase += 2 * math.Pi
	}
	for phase > math.Pi {
		phase -= 2 * math.Pi
	}
	return phase
}

// RaisePower raises every sample in src to the given power (2 for BPSK,
// 4 for QPSK) in order to strip modulation ahead of the coarse-frequency
// FFT, writing the result into dst. dst and src may overlap. The
// original gr-blocksat C++ blocks dispatch this to a hand-written VOLK
// SIMD kernel selected at runtime by detected CPU features; there is no
// equivalent SIMD binding in the Go ecosystem pack this module draws
// from, so this is a plain scalar loop.
func RaisePower(dst, src []complex64, power int) {
	for i, s := range src {
		dst[i] = raiseOne(s, power)
	}
}

func raiseOne(x complex64, power int) complex64 {
	v := complex128(x)
	switch power {
	case 2:
		return complex64(v * v)
	case 4:
		v2 := v * v
		return complex64(v2 * v2)
	default:
		r := complex128(1)
		for k := 0; k < power; k++ {
			r *= v
		}
		return complex64(r)
	}
}

// MagnitudeSquared writes |src[i]|^2 into dst.
func MagnitudeSquared(dst []float32, src []complex64) {
	for i, s := range src {
		re, im := real(s), imag(s)
		dst[i] = re*re + im*im
	}
}

// IndexMax returns the index of the largest value in x.
func IndexMax(x []float32) int {
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}

// Rotator applies a complex exponential rotation to src, writing into
// dst. phase0 is the starting phase accumulator value (radians,
// wrapped) and phaseInc is the per-sample phase increment; it returns
// the phase accumulator after rotating len(src) samples, wrapped to
// (−π, π]. dst and src may be the same slice.
func Rotator(dst, src []complex64, phase0, phaseInc float64) float64 {
	phase := phase0
	for i, s := range src {
		dst[i] = complex64(complex128(s) * cmplx.Exp(complex(0, phase)))
		phase = WrapPi(phase + phaseInc)
	}
	return phase
}

// Abs returns |x|.
func Abs(x complex64) float32 {
	return float32(cmplx.Abs(complex128(x)))
}

// Atan2C returns atan2(Im(x), Re(x)), the angle of x.
func Atan2C(x complex64) float64 {
	return math.Atan2(float64(imag(x)), float64(real(x)))
}
