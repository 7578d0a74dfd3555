package framesync

// matchedFilter is a direct-form FIR correlator that carries its
// convolution history and an additional pure output delay across
// successive FilterN calls. The extra delay (preambleLen samples, as
// New configures it) places the preamble matched filter's peak
// preambleLen samples past where the raw correlation itself peaks, i.e.
// 2*preambleLen-1 samples past the frame start, matching the
// frame-start recovery formula used while unlocked.
type matchedFilter struct {
	taps    []complex128
	history []complex128 // the len(taps)-1 most recent input samples from prior calls
	pending []complex64  // raw correlator outputs computed but not yet emitted
}

func newMatchedFilter(taps []complex128, delay int) *matchedFilter {
	return &matchedFilter{
		taps:    taps,
		history: make([]complex128, len(taps)-1),
		pending: make([]complex64, delay),
	}
}

// FilterN convolves in against the filter taps and returns one delayed
// output sample per input sample.
func (m *matchedFilter) FilterN(in []complex64) []complex64 {
	hlen := len(m.history)
	buf := make([]complex128, hlen+len(in))
	copy(buf, m.history)
	for i, v := range in {
		buf[hlen+i] = complex128(v)
	}

	raw := make([]complex64, len(in))
	for n := range in {
		var sum complex128
		for k, t := range m.taps {
			sum += buf[n+hlen-k] * t
		}
		raw[n] = complex64(sum)
	}
	if hlen > 0 {
		copy(m.history, buf[len(buf)-hlen:])
	}

	combined := append(append([]complex64{}, m.pending...), raw...)
	out := combined[:len(in)]
	m.pending = append([]complex64{}, combined[len(in):]...)
	return out
}
