package iqsource

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// FramesPerBuf is the stereo frame count PortAudio delivers per
// callback/read; a complex64 sample is produced per frame.
const FramesPerBuf = 1024

const stereoChannels = 2 // left = I, right = Q

// Init initializes PortAudio. Must be called once before any Soundcard
// is opened, and Terminate called on shutdown.
func Init() error { return portaudio.Initialize() }

// Terminate cleans up PortAudio.
func Terminate() error { return portaudio.Terminate() }

// Soundcard reads a stereo input stream and reinterprets it as a
// complex baseband stream: the left channel is the in-phase component,
// the right channel is quadrature. This only makes sense fed from an
// SDR whose I/Q outputs are wired to the two channels of a stereo
// capture device (e.g. an RTL-SDR dongle's audio-style I/Q dongle, or a
// line-in carrying a quadrature downconverter's output) — it is not a
// substitute for an RF front end.
type Soundcard struct {
	sampleRate float64
	stream     *portaudio.Stream
	buf        []float32 // interleaved L,R,L,R,...

	mu sync.Mutex
}

// NewSoundcard opens the default stereo input device at sampleRate.
func NewSoundcard(sampleRate float64) (*Soundcard, error) {
	s := &Soundcard{
		sampleRate: sampleRate,
		buf:        make([]float32, FramesPerBuf*stereoChannels),
	}
	stream, err := portaudio.OpenDefaultStream(
		stereoChannels, 0, sampleRate, FramesPerBuf, s.buf,
	)
	if err != nil {
		return nil, fmt.Errorf("iqsource: open stereo input: %w", err)
	}
	s.stream = stream
	return s, nil
}

// Start begins capture.
func (s *Soundcard) Start() error {
	if s.stream == nil {
		return fmt.Errorf("iqsource: stream not opened")
	}
	return s.stream.Start()
}

// Stop halts capture without closing the underlying device.
func (s *Soundcard) Stop() error {
	if s.stream == nil {
		return nil
	}
	return s.stream.Stop()
}

// Close releases the underlying device.
func (s *Soundcard) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	return err
}

// ReadBlock blocks until one FramesPerBuf-sized block is captured and
// returns it as complex64 I/Q samples.
func (s *Soundcard) ReadBlock() ([]complex64, error) {
	if s.stream == nil {
		return nil, fmt.Errorf("iqsource: stream not opened")
	}
	if err := s.stream.Read(); err != nil {
		return nil, fmt.Errorf("iqsource: read: %w", err)
	}
	out := make([]complex64, FramesPerBuf)
	for i := range out {
		out[i] = complex(s.buf[2*i], s.buf[2*i+1])
	}
	return out, nil
}

// Stream launches a goroutine that repeatedly calls ReadBlock and
// pushes each block to the returned channel until ctx is cancelled or a
// read fails, in which case the channel is closed and the error, if
// any, is sent to errc (buffered, capacity 1, non-blocking).
func (s *Soundcard) Stream(ctx context.Context) (<-chan []complex64, <-chan error) {
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
			block, err := s.ReadBlock()
			if err != nil {
				select {
				case errc <- err:
				default:
				}
				return
			}
			select {
			case out <- block:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errc
}
