package receiver

import (
	"context"

	"github.com/Blockstream/gr-blocksat/internal/tag"
)

// Run wires Chain, a ReplayFilter and Backend into a running pipeline,
// generalizing the goroutine-per-direction pattern a duplex transport
// uses for its send/receive halves into one goroutine per pipeline
// stage: a sample-rate stage (AGC+CFR), a symbol-timing stage (the
// external-filter stand-in) and a symbol-rate stage (FS+CPR+MER+
// softdemap+turbo). Each stage owns a private carry-over buffer so the
// caller's chunking of samples never has to respect FFTLen/FrameLen
// alignment itself.
//
// Run returns immediately. bits receives every decoded codeword's K()
// bits in order; telemetry receives a non-blocking, drop-on-full status
// snapshot after every Backend.Work call on a batch of whole frames
// (matching the teacher's
// WSHub.Broadcast pattern: a slow telemetry consumer never stalls
// decoding). Both channels close once samples closes or ctx is
// cancelled.
func Run(ctx context.Context, cfg Config, samples <-chan []complex64) (bits <-chan []byte, telemetry <-chan Telemetry, err error) {
	chain, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}
	backend, err := NewBackend(cfg, chain.Bus())
	if err != nil {
		return nil, nil, err
	}
	filter := NewReplayFilter(cfg.CFR.Sps)

	type sampleBlock struct {
		offset int64
		data   []complex64
		tags   *tag.Stream
	}

	frontOut := make(chan sampleBlock, 4)
	symOut := make(chan sampleBlock, 4)
	bitsCh := make(chan []byte, 4)
	telCh := make(chan Telemetry, 1)

	// Stage 1: AGC + CFR, carrying over samples until a whole FFTLen
	// block is available.
	go func() {
		defer close(frontOut)
		var carry []complex64
		var pos int64

		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-samples:
				if !ok {
					return
				}
				carry = append(carry, chunk...)
				usable := (len(carry) / chain.FFTLen()) * chain.FFTLen()
				if usable == 0 {
					continue
				}
				in := carry[:usable]
				out := make([]complex64, usable)
				tags := &tag.Stream{}
				chain.Work(pos, out, in, tags)

				select {
				case frontOut <- sampleBlock{offset: pos, data: out, tags: tags}:
				case <-ctx.Done():
					return
				}

				pos += int64(usable)
				rest := make([]complex64, len(carry)-usable)
				copy(rest, carry[usable:])
				carry = rest
			}
		}
	}()

	// Stage 2: the matched-filter/timing-recovery stand-in, decimating
	// sample-rate blocks down to symbol rate.
	go func() {
		defer close(symOut)
		var symPos int64

		for {
			select {
			case <-ctx.Done():
				return
			case blk, ok := <-frontOut:
				if !ok {
					return
				}
				tags := blk.tags
				out := filter.Work(blk.data, tags)
				if len(out) == 0 {
					continue
				}

				select {
				case symOut <- sampleBlock{offset: symPos, data: out, tags: tags}:
				case <-ctx.Done():
					return
				}
				symPos += int64(len(out))
			}
		}
	}()

	// Stage 3: FS + CPR + MER + softdemap + turbo, carrying over
	// symbols until a whole frame is available.
	go func() {
		defer close(bitsCh)
		defer close(telCh)
		var carry []complex64
		var carryTags tag.Stream
		var pos int64

		for {
			select {
			case <-ctx.Done():
				return
			case blk, ok := <-symOut:
				if !ok {
					return
				}
				carry = append(carry, blk.data...)
				for _, t := range blk.tags.All() {
					carryTags.Add(t)
				}

				usable := (len(carry) / backend.FrameLen()) * backend.FrameLen()
				if usable == 0 {
					continue
				}
				in := carry[:usable]

				var bitsOut []byte
				bitsOut, tel := backend.Work(pos, in, &carryTags, chain.Bus(), bitsOut)
				tel.CoarseHz = chain.Frequency()

				if len(bitsOut) > 0 {
					select {
					case bitsCh <- bitsOut:
					case <-ctx.Done():
						return
					}
				}

				select {
				case telCh <- tel:
				default:
				}

				pos += int64(usable)
				rest := make([]complex64, len(carry)-usable)
				copy(rest, carry[usable:])
				carry = rest
				carryTags.Reset()
			}
		}
	}()

	return bitsCh, telCh, nil
}
