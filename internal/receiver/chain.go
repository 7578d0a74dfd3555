package receiver

import (
	"fmt"
	"math"

	"github.com/Blockstream/gr-blocksat/internal/agc"
	"github.com/Blockstream/gr-blocksat/internal/cfr"
	"github.com/Blockstream/gr-blocksat/internal/cpr"
	"github.com/Blockstream/gr-blocksat/internal/framesync"
	"github.com/Blockstream/gr-blocksat/internal/mer"
	"github.com/Blockstream/gr-blocksat/internal/softdemap"
	"github.com/Blockstream/gr-blocksat/internal/tag"
	"github.com/Blockstream/gr-blocksat/internal/turbo"
)

// Config aggregates every component's construction parameters into one
// place, the way a flowgraph's top-level block wiring does. MER's
// FrameLen and the turbo decoder's codeword length are derived, not
// taken from the caller, since they must exactly match CPR's per-frame
// data-symbol count for the pipeline to stay aligned; see NewBackend.
type Config struct {
	AGC       agc.Config
	CFR       cfr.Config
	FrameSync framesync.Config
	CPR       cpr.Config
	MER       mer.Config
	DemapM    int     // constellation order for the soft demapper: 2 or 4
	DemapN0   float64 // initial noise energy estimate
	Turbo     turbo.Config
}

// Chain is the sample-rate front end (AGC, CFR) of the receiver. Its
// output is not yet symbol-rate: spec.md explicitly places matched
// filtering and resampling out of scope ("done by external filter
// kernels"), so the boundary between Chain and Backend is exactly that
// external stage. A caller with real RF input supplies its own matched
// filter/symbol-timing recovery between the two; ReplayFilter in this
// package is a passthrough stand-in for sps=1 test inputs only.
type Chain struct {
	cfg Config
	agc *agc.AGC
	cfr *cfr.CFR
	bus *tag.Bus

	fftLen int
}

// Backend is the symbol-rate back end (frame sync, carrier phase
// recovery, MER, soft demapper, turbo decoder).
type Backend struct {
	cfg Config
	fs  *framesync.FS
	cpr *cpr.CPR
	mer *mer.MER
	dem *softdemap.Demapper
	fec *turbo.Decoder

	frameLen int

	// fsCarry holds frame-sync output left over from the previous Work
	// call because it fell short of a whole FrameLen chunk: fs.Work
	// legitimately emits a short partial frame across a lock-acquire or
	// lock-loss transition, and without carrying that remainder forward
	// it would be dropped outright rather than completed by the next
	// call's samples, the same way Chain/Run carry a short FFTLen/
	// FrameLen remainder at every other stage boundary in this package.
	// fsCarryOffset is the absolute symbol offset of fsCarry[0], tracked
	// independently of the offset argument Work receives (which only
	// describes the *new* samples arriving this call), and fsCarryTags
	// holds the cfo/fs_phase_corr tags whose offsets fall at or past
	// fsCarryOffset and so belong to the carried remainder.
	fsCarry       []complex64
	fsCarryOffset int64
	fsCarryTags   tag.Stream
}

// Telemetry is one snapshot of receiver state, pushed non-blocking to
// any consumer (e.g. internal/monitor) in the style of a dropped-on-full
// status broadcast: a stale reader never stalls the pipeline.
type Telemetry struct {
	Locked  bool
	SNRDB   float64
	CoarseHz float64 // CFR's normalized frequency estimate, in cycles/sample
	FineCFO float64  // FS's residual fine CFO estimate, normalized
}

// New constructs the sample-rate front end (AGC, CFR). The check that
// Backend's per-frame data rate lines up with the turbo codeword length
// is made by NewBackend.
func New(cfg Config) (*Chain, error) {
	a := agc.New(cfg.AGC)

	c, err := cfr.New(cfg.CFR)
	if err != nil {
		return nil, fmt.Errorf("receiver: cfr: %w", err)
	}

	return &Chain{
		cfg:    cfg,
		agc:    a,
		cfr:    c,
		bus:    tag.NewBus(),
		fftLen: cfg.CFR.FFTLen,
	}, nil
}

// Bus returns the start_index feedback bus shared with a Backend built
// from the same Config via NewBackend(cfg, chain.Bus()).
func (c *Chain) Bus() *tag.Bus { return c.bus }

// FFTLen returns the block size Work expects len(in) to be a multiple of.
func (c *Chain) FFTLen() int { return c.fftLen }

// Frequency returns CFR's current normalized coarse frequency estimate,
// in cycles/sample, for telemetry (Telemetry.CoarseHz).
func (c *Chain) Frequency() float64 { return c.cfr.Frequency() / (2 * math.Pi) }

// Forecast implements Block: CFR's rate is fixed 1:1 on whole FFTLen
// blocks, so noutput output samples need the same count of input
// samples, rounded up to the next FFTLen multiple.
func (c *Chain) Forecast(noutput int) int {
	return ceilDiv(noutput, c.fftLen) * c.fftLen
}

// Work runs one AGC+CFR pass over in (which must be a multiple of
// FFTLen()), writing len(in) corrected samples to out and any cfo tags
// produced to tags. offset is the absolute sample offset of in[0]; cfr
// itself tags at offsets relative to in, so Work rewrites them to
// absolute stream offsets before returning, since every downstream
// consumer (framesync.Work's inTags window query) expects absolute tags.
func (c *Chain) Work(offset int64, out, in []complex64, tags *tag.Stream) int {
	c.cfr.ReceiveStartIndex(c.bus)

	agcOut := make([]complex64, len(in))
	c.agc.Work(agcOut, in, nil)

	var local tag.Stream
	n := c.cfr.Work(out, agcOut, nil, &local)

	if tags != nil {
		for _, t := range local.All() {
			t.Offset += offset
			tags.Add(t)
		}
	}
	return n
}

// NewBackend constructs the symbol-rate back end, sharing bus with the
// Chain that produced the upstream cfo tags. It fails unless CPR's
// per-frame data-symbol count times the demapper rate equals exactly one
// turbo codeword's worth of soft bits, since this orchestrator does not
// buffer LLRs across frame boundaries.
func NewBackend(cfg Config, bus *tag.Bus) (*Backend, error) {
	fs, err := framesync.New(cfg.FrameSync)
	if err != nil {
		return nil, fmt.Errorf("receiver: framesync: %w", err)
	}

	cp, err := cpr.New(cfg.CPR)
	if err != nil {
		return nil, fmt.Errorf("receiver: cpr: %w", err)
	}

	merCfg := cfg.MER
	merCfg.FrameLen = cp.DataLen()
	m := mer.New(merCfg)

	dem := softdemap.New(cfg.DemapM, cfg.DemapN0)

	fec, err := turbo.New(cfg.Turbo)
	if err != nil {
		return nil, fmt.Errorf("receiver: turbo: %w", err)
	}

	llrPerFrame := cp.DataLen() * dem.Rate()
	if llrPerFrame != fec.N() {
		return nil, fmt.Errorf(
			"receiver: CPR produces %d LLRs per frame (DataLen=%d * demap rate=%d) but turbo codeword length is %d; "+
				"configure FrameSync/CPR/Turbo so one frame carries exactly one codeword",
			llrPerFrame, cp.DataLen(), dem.Rate(), fec.N())
	}

	return &Backend{
		cfg:      cfg,
		fs:       fs,
		cpr:      cp,
		mer:      m,
		dem:      dem,
		fec:      fec,
		frameLen: cfg.FrameSync.FrameLen,
	}, nil
}

// FrameLen returns the symbol count Work expects len(in) to be a
// multiple of.
func (b *Backend) FrameLen() int { return b.frameLen }

// Forecast implements Block. Frame-sync production is lock-state
// dependent (it can emit a short partial frame at a lock transition),
// so this is a safe upper-bound estimate rather than an exact count:
// one extra frame's worth of input covers any in-flight transition.
func (b *Backend) Forecast(noutput int) int {
	return ceilDiv(noutput, b.frameLen)*b.frameLen + b.frameLen
}

// Work runs one FS+CPR+MER+softdemap+turbo pass over in (a multiple of
// FrameLen(), already matched-filtered to symbol rate), decoding every
// complete frame into K() bits appended to bitsOut, and returns the
// updated slice along with a telemetry snapshot (its SNRDB is left zero
// if no frame completed this call). fs.Work's output is not
// itself guaranteed to be a FrameLen multiple (a lock-acquire or
// lock-loss transition legitimately produces a short partial frame), so
// any remainder is carried into the next call rather than dropped; see
// the fsCarry* fields.
func (b *Backend) Work(offset int64, in []complex64, inTags *tag.Stream, bus *tag.Bus, bitsOut []byte) ([]byte, Telemetry) {
	fsRaw := make([]complex64, len(in))
	var fsTags tag.Stream
	nFS := b.fs.Work(offset, fsRaw, in, inTags, &fsTags, bus)
	fsRaw = fsRaw[:nFS]

	combinedOffset := offset
	if len(b.fsCarry) > 0 {
		combinedOffset = b.fsCarryOffset
	}
	combined := append(append([]complex64{}, b.fsCarry...), fsRaw...)

	var mergedTags tag.Stream
	for _, t := range b.fsCarryTags.All() {
		mergedTags.Add(t)
	}
	for _, t := range fsTags.All() {
		mergedTags.Add(t)
	}

	nFrames := len(combined) / b.frameLen
	usable := nFrames * b.frameLen
	fsOut := combined[:usable]

	remainderOffset := combinedOffset + int64(usable)
	b.fsCarry = append([]complex64{}, combined[usable:]...)
	b.fsCarryOffset = remainderOffset
	b.fsCarryTags = tag.Stream{}
	for _, t := range mergedTags.All() {
		if t.Offset >= remainderOffset {
			b.fsCarryTags.Add(t)
		}
	}

	outSym := make([]complex64, b.cpr.DataLen()*nFrames)
	outErr := make([]float32, b.cpr.DataLen()*nFrames)
	_, nSym := b.cpr.Work(combinedOffset, fsOut, outSym, outErr, &mergedTags)
	outSym = outSym[:nSym]

	snrOut := b.mer.Work(nil, outSym, true)

	llrs := b.dem.Work(nil, outSym)

	codeword := b.fec.N()
	bits := make([]byte, b.fec.K())
	for off := 0; off+codeword <= len(llrs); off += codeword {
		b.fec.DecodeSIHO(llrs[off:off+codeword], bits)
		bitsOut = append(bitsOut, bits...)
	}

	tel := Telemetry{Locked: b.fs.Locked()}
	if len(snrOut) > 0 {
		tel.SNRDB = float64(snrOut[len(snrOut)-1])
	}
	if fineTags := fsTags.All(); len(fineTags) > 0 {
		for i := len(fineTags) - 1; i >= 0; i-- {
			if fineTags[i].Key == tag.FSFineCFO {
				tel.FineCFO = fineTags[i].Float
				break
			}
		}
	}
	return bitsOut, tel
}
