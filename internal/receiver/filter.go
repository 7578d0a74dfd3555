package receiver

import "github.com/Blockstream/gr-blocksat/internal/tag"

// ReplayFilter stands in for the matched filter and symbol-timing
// recovery spec.md explicitly keeps out of scope ("sample-rate
// conversion / matched filtering (done by external filter kernels)").
// It performs no filtering at all: it just picks every Sps-th sample,
// which only recovers correct symbol timing for inputs whose timing is
// already resolved (synthetic test vectors, or a raw-file capture
// recorded at exactly one sample per symbol with Sps left at 1). A real
// antenna-fed receiver replaces this stage with an RRC matched filter
// and a polyphase (Gardner/Mueller-Muller) clock recovery loop.
type ReplayFilter struct {
	sps   int
	carry []complex64
}

// NewReplayFilter builds a passthrough decimator for the given
// samples-per-symbol. sps < 1 is treated as 1 (no decimation).
func NewReplayFilter(sps int) *ReplayFilter {
	if sps < 1 {
		sps = 1
	}
	return &ReplayFilter{sps: sps}
}

// Work decimates in by Sps, carrying over any remainder to the next
// call, and rewrites any tags in tags from absolute sample offsets to
// absolute symbol offsets in place (a tag that doesn't land on an Sps
// boundary is dropped, since there is no corresponding symbol-rate
// position for it once decimation has happened).
func (r *ReplayFilter) Work(in []complex64, tags *tag.Stream) []complex64 {
	all := append(r.carry, in...)
	n := len(all) / r.sps
	out := make([]complex64, n)
	for i := 0; i < n; i++ {
		out[i] = all[i*r.sps]
	}
	r.carry = append(r.carry[:0], all[n*r.sps:]...)

	if tags == nil {
		return out
	}
	kept := tags.All()[:0]
	for _, t := range tags.All() {
		if t.Offset%int64(r.sps) != 0 {
			continue
		}
		t.Offset /= int64(r.sps)
		kept = append(kept, t)
	}
	*tags = tag.Stream{}
	for _, t := range kept {
		tags.Add(t)
	}
	return out
}
