package framesync

import (
	"testing"

	"github.com/Blockstream/gr-blocksat/internal/tag"
)

func TestNew_RejectsBadConfig(t *testing.T) {
	cases := []Config{
		{Preamble: nil, FrameLen: 8, M: 2, NSuccessToLock: 3},
		{Preamble: make([]complex64, 4), FrameLen: 2, M: 2, NSuccessToLock: 3},
		{Preamble: make([]complex64, 4), FrameLen: 8, M: 3, NSuccessToLock: 3},
		{Preamble: make([]complex64, 4), FrameLen: 8, M: 2, NSuccessToLock: 0},
	}
	for i, cfg := range cases {
		if _, err := New(cfg); err == nil {
			t.Errorf("case %d: expected configuration error, got nil", i)
		}
	}
}

func buildFrame(preamble []complex64, payload []complex64) []complex64 {
	frame := make([]complex64, len(preamble)+len(payload))
	copy(frame, preamble)
	copy(frame[len(preamble):], payload)
	return frame
}

func TestFS_LocksOnRepeatedFrames(t *testing.T) {
	preamble := []complex64{1, -1, 1, -1}
	payload := []complex64{1, 1, 1, 1}
	frame := buildFrame(preamble, payload)
	frameLen := len(frame)

	fs, err := New(Config{
		Preamble:       preamble,
		FrameLen:       frameLen,
		M:              2,
		NSuccessToLock: 3,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const nFrames = 8
	in := make([]complex64, 0, nFrames*frameLen)
	for i := 0; i < nFrames; i++ {
		in = append(in, frame...)
	}
	out := make([]complex64, len(in))
	bus := tag.NewBus()

	nProduced := fs.Work(0, out, in, nil, nil, bus)

	if !fs.Locked() {
		t.Fatalf("expected FS to be locked after %d repeated noiseless frames", nFrames)
	}
	if nProduced <= 0 {
		t.Errorf("nProduced = %d, want > 0", nProduced)
	}
	if _, ok := bus.TryReceive(); !ok {
		t.Errorf("expected a start_index publication on lock")
	}
}

func TestFS_UnlocksOnNoise(t *testing.T) {
	preamble := []complex64{1, -1, 1, -1}
	payload := []complex64{1, 1, 1, 1}
	frame := buildFrame(preamble, payload)
	frameLen := len(frame)

	fs, err := New(Config{
		Preamble:       preamble,
		FrameLen:       frameLen,
		M:              2,
		NSuccessToLock: 3,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	lockIn := make([]complex64, 0, 8*frameLen)
	for i := 0; i < 8; i++ {
		lockIn = append(lockIn, frame...)
	}
	lockOut := make([]complex64, len(lockIn))
	bus := tag.NewBus()
	fs.Work(0, lockOut, lockIn, nil, nil, bus)
	if !fs.Locked() {
		t.Fatalf("setup: expected FS to be locked before noise phase")
	}

	noiseFrame := make([]complex64, frameLen)
	for i := range noiseFrame {
		// constant sequence: the preamble's taps sum to zero, so its
		// correlation magnitude is 0 at every offset
		noiseFrame[i] = complex(0, 1)
	}
	noiseIn := make([]complex64, 0, 5*frameLen)
	for i := 0; i < 5; i++ {
		noiseIn = append(noiseIn, noiseFrame...)
	}
	noiseOut := make([]complex64, len(noiseIn))
	fs.Work(int64(len(lockIn)), noiseOut, noiseIn, nil, nil, bus)

	if fs.Locked() {
		t.Errorf("expected FS to unlock after sustained low-correlation input")
	}
}

func TestFS_MagPMFPeakNormalization(t *testing.T) {
	preamble := []complex64{1, -1, 1, -1}
	fs, err := New(Config{Preamble: preamble, FrameLen: 8, M: 2, NSuccessToLock: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fs.magPMFPeak = float64(len(preamble))
	if got := fs.MagPMFPeak(); got != 1 {
		t.Errorf("MagPMFPeak() = %v, want 1 (normalized by preamble length)", got)
	}
}
