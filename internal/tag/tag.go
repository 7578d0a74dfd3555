// Package tag carries the typed, per-sample-offset annotations and the
// small feedback channels that components use to coordinate across the
// synchronization chain without sharing mutable state.
package tag

// Key names the cross-component tag/message vocabulary. Keeping these
// as a closed set of constants (rather than free-form strings) mirrors
// the fixed symbol-key table the blocks agree on at construction.
type Key string

const (
	StartIndex   Key = "start_index"    // FS -> CFR, integer symbol index
	CFO          Key = "cfo"            // CFR -> FS, float normalized frequency
	FSPhase      Key = "fs_phase"       // FS -> CPR, float radians
	FSPhaseCorr  Key = "fs_phase_corr"  // FS -> CPR, float radians
	FSFineCFO    Key = "fs_fine_cfo"    // FS -> downstream, float normalized frequency
)

// Tag is a typed annotation attached to a sample offset within a block's
// output stream.
type Tag struct {
	Offset int64 // sample/symbol index the tag refers to, relative to stream start
	Key    Key
	Int    int64   // populated when the tag value is an integer (e.g. StartIndex)
	Float  float64 // populated when the tag value is a float (e.g. CFO, FSPhase)
}

// IntTag builds an integer-valued tag.
func IntTag(offset int64, key Key, v int64) Tag {
	return Tag{Offset: offset, Key: key, Int: v}
}

// FloatTag builds a float-valued tag.
func FloatTag(offset int64, key Key, v float64) Tag {
	return Tag{Offset: offset, Key: key, Float: v}
}

// Stream accumulates tags produced while processing one work invocation's
// worth of output; components append to it and the scheduler carries it
// alongside the sample buffer to the downstream block.
type Stream struct {
	tags []Tag
}

// Add appends t to the stream.
func (s *Stream) Add(t Tag) {
	s.tags = append(s.tags, t)
}

// All returns the tags accumulated so far, in offset order of insertion.
func (s *Stream) All() []Tag {
	return s.tags
}

// Find returns the first tag with the given key at exactly offset, and
// whether one was found.
func (s *Stream) Find(key Key, offset int64) (Tag, bool) {
	for _, t := range s.tags {
		if t.Key == key && t.Offset == offset {
			return t, true
		}
	}
	return Tag{}, false
}

// InWindow returns every tag with the given key whose offset lies in
// [lo, hi).
func (s *Stream) InWindow(key Key, lo, hi int64) []Tag {
	var out []Tag
	for _, t := range s.tags {
		if t.Key == key && t.Offset >= lo && t.Offset < hi {
			out = append(out, t)
		}
	}
	return out
}

// Reset clears the stream for reuse.
func (s *Stream) Reset() {
	s.tags = s.tags[:0]
}
