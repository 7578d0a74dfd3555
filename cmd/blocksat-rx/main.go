// Command blocksat-rx is a thin demo binary: it wires an iqsource into
// a receiver.Chain/Backend pair and optionally serves a live telemetry
// dashboard. It is not meant to replace the flowgraph a production
// deployment would build around the same internal packages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Blockstream/gr-blocksat/internal/agc"
	"github.com/Blockstream/gr-blocksat/internal/cfr"
	"github.com/Blockstream/gr-blocksat/internal/cpr"
	"github.com/Blockstream/gr-blocksat/internal/framesync"
	"github.com/Blockstream/gr-blocksat/internal/iqsource"
	"github.com/Blockstream/gr-blocksat/internal/mer"
	"github.com/Blockstream/gr-blocksat/internal/monitor"
	"github.com/Blockstream/gr-blocksat/internal/receiver"
	"github.com/Blockstream/gr-blocksat/internal/turbo"
)

// defaultPreamble is a fixed 32-symbol BPSK sequence standing in for
// the frame preamble a real link would negotiate out of band. Both
// ends of any real link must agree on the same sequence; this one has
// no special correlation properties beyond being fixed and known.
var defaultPreamble = buildPreamble([]int{
	1, 1, 1, 0, 0, 0, 1, 0, 0, 1, 1, 0, 1, 0, 1, 1,
	0, 0, 1, 1, 1, 0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 1,
})

func buildPreamble(bits []int) []complex64 {
	out := make([]complex64, len(bits))
	for i, b := range bits {
		if b == 1 {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	return out
}

func main() {
	addr := flag.String("addr", "0.0.0.0:8080", "telemetry dashboard address")
	dashboard := flag.Bool("dashboard", true, "serve the telemetry dashboard")
	listDevices := flag.Bool("list-devices", false, "list IQ capture devices and exit")
	replayFile := flag.String("replay-file", "", "raw complex64 file to replay instead of a soundcard")
	sampleRate := flag.Float64("sample-rate", 48000, "soundcard sample rate (ignored with -replay-file)")

	m := flag.Int("m", 4, "constellation order: 2 (BPSK) or 4 (QPSK)")
	sps := flag.Int("sps", 1, "samples per symbol (the built-in ReplayFilter only handles already-aligned sps=1 inputs correctly)")
	fftLen := flag.Int("fft-len", 1024, "CFR FFT length, must be a power of two")
	frameLen := flag.Int("frame-len", 256, "frame length in symbols")
	k := flag.Int("k", 218, "turbo dataword length in bits; must satisfy frame-len-minus-preamble times demap rate == turbo codeword length (with puncturing) or 3*K+12 == that product (without)")
	punct := flag.Bool("puncture", true, "enable rate-1/2 turbo puncturing")
	niter := flag.Int("turbo-iterations", 6, "turbo decoder iterations")
	flag.Parse()

	if *listDevices {
		if err := iqsource.PrintDevices(); err != nil {
			log.Fatalf("list devices: %v", err)
		}
		return
	}

	cfg := receiver.Config{
		AGC: agc.Config{Rate: 1e-3, Reference: 1.0, InitialGain: 1.0, MaxGain: 100},
		CFR: cfr.Config{FFTLen: *fftLen, M: *m, Alpha: 0.1, Sps: *sps, FrameLen: *frameLen},
		FrameSync: framesync.Config{
			Preamble: defaultPreamble, FrameLen: *frameLen, M: *m,
			NSuccessToLock: 3, EnablePhaseCorr: true, EnableFreqCorr: true,
		},
		CPR: cpr.Config{
			Preamble: defaultPreamble, NoiseBW: 0.01, DampFactor: 0.707,
			M: *m, DataAided: true, FrameLen: *frameLen,
		},
		MER:     mer.Config{M: *m, Alpha: 0.01},
		DemapM:  *m,
		DemapN0: 1.0,
		Turbo:   turbo.Config{K: *k, PunctureEn: *punct, NIte: *niter},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var samples <-chan []complex64
	var srcErr <-chan error
	var closeSrc func() error

	if *replayFile != "" {
		src, err := iqsource.OpenReplay(*replayFile, 4096)
		if err != nil {
			log.Fatalf("open replay file: %v", err)
		}
		samples, srcErr = src.Stream(ctx)
		closeSrc = src.Close
	} else {
		if err := iqsource.Init(); err != nil {
			log.Fatalf("init portaudio: %v", err)
		}
		defer iqsource.Terminate()

		src, err := iqsource.NewSoundcard(*sampleRate)
		if err != nil {
			log.Fatalf("open soundcard: %v", err)
		}
		if err := src.Start(); err != nil {
			log.Fatalf("start soundcard: %v", err)
		}
		samples, srcErr = src.Stream(ctx)
		closeSrc = src.Close
	}
	defer closeSrc()

	bits, telemetry, err := receiver.Run(ctx, cfg, samples)
	if err != nil {
		log.Fatalf("start receiver: %v", err)
	}

	if *dashboard {
		handlers := monitor.NewHandlers()
		handlers.SetActive(true)
		srv := monitor.NewServer(*addr, handlers, "")
		go func() {
			if err := srv.Start(); err != nil {
				log.Printf("monitor: server error: %v", err)
			}
		}()
		go func() {
			for t := range telemetry {
				handlers.Observe(t)
			}
		}()
	} else {
		go func() {
			for range telemetry {
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nshutting down...")
		cancel()
	}()

	for block := range bits {
		if err := writeBits(os.Stdout, block); err != nil {
			log.Printf("write bits: %v", err)
		}
	}
	if err, ok := <-srcErr; ok {
		log.Printf("source error: %v", err)
	}
}

func writeBits(w *os.File, bits []byte) error {
	_, err := w.Write(bits)
	return err
}
