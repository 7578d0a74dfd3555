package iqsource

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// ReplaySource streams complex64 samples out of a raw binary file: each
// sample is two little-endian float32 values (I, Q), with no header —
// the format a test bench would dump a captured or synthetic baseband
// record into. It is meant for deterministic, reproducible runs of
// receiver.Run without a soundcard attached.
type ReplaySource struct {
	r         *bufio.Reader
	f         *os.File
	chunkSize int
}

// OpenReplay opens path for reading. chunkSize controls how many
// samples Stream pushes per channel send.
func OpenReplay(path string, chunkSize int) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("iqsource: open replay file: %w", err)
	}
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	return &ReplaySource{r: bufio.NewReader(f), f: f, chunkSize: chunkSize}, nil
}

// Close releases the underlying file.
func (r *ReplaySource) Close() error { return r.f.Close() }

// ReadBlock reads up to chunkSize samples, returning a shorter final
// block at end of file and io.EOF once nothing remains.
func (r *ReplaySource) ReadBlock() ([]complex64, error) {
	out := make([]complex64, 0, r.chunkSize)
	for i := 0; i < r.chunkSize; i++ {
		var reBits, imBits uint32
		if err := binary.Read(r.r, binary.LittleEndian, &reBits); err != nil {
			if err == io.EOF && len(out) > 0 {
				return out, nil
			}
			return out, err
		}
		if err := binary.Read(r.r, binary.LittleEndian, &imBits); err != nil {
			return out, fmt.Errorf("iqsource: truncated sample: %w", err)
		}
		out = append(out, complex(math.Float32frombits(reBits), math.Float32frombits(imBits)))
	}
	return out, nil
}

// Stream launches a goroutine pushing successive blocks until ctx is
// cancelled or the file is exhausted, closing the returned channel in
// either case. A genuine read error (anything but io.EOF) is sent to
// errc (buffered, capacity 1, non-blocking).
func (r *ReplaySource) Stream(ctx context.Context) (<-chan []complex64, <-chan error) {
	out := make(chan []complex64, 4)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			block, err := r.ReadBlock()
			if len(block) > 0 {
				select {
				case out <- block:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					select {
					case errc <- err:
					default:
					}
				}
				return
			}
		}
	}()

	return out, errc
}
