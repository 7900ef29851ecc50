// Command eqplay plays a WAV file through the equalizer on the default
// audio device.
//
// Usage:
//
//	eqplay [flags] input.wav
//
// Playback stops at the end of the file or on interrupt.
//
// Examples:
//
//	eqplay -band 60:6 song.wav
//	eqplay -notch 6000 -notch-depth 20 -solo right song.wav
//	eqplay -left-preset l.json -right-preset r.json -balance 0.4 song.wav
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/algo-eqgraph/device"
	"github.com/cwbudde/algo-eqgraph/device/miniaudio"
	"github.com/cwbudde/algo-eqgraph/dsp/eq"
	"github.com/cwbudde/algo-eqgraph/internal/cliutil"
	"github.com/cwbudde/algo-eqgraph/internal/wavio"
)

func main() {
	var setup cliutil.Setup

	cliutil.RegisterSetup(flag.CommandLine, &setup)
	tail := flag.Duration("tail", 250*time.Millisecond, "silence played after the file ends")
	verbose := flag.Bool("v", false, "verbose logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: eqplay [flags] input.wav\n\nFlags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	log := cliutil.NewLogger(os.Stderr, *verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Arg(0), &setup, miniaudio.Output{}, *tail, log); err != nil {
		fmt.Fprintf(os.Stderr, "eqplay: %v\n", err)
		os.Exit(1)
	}
}

const pollInterval = 20 * time.Millisecond

func run(ctx context.Context, path string, setup *cliutil.Setup, out device.Output, tail time.Duration, log *slog.Logger) error {
	clip, err := wavio.ReadFile(path)
	if err != nil {
		return err
	}

	src := wavio.NewSource(clip)
	e := eq.New(
		eq.WithSampleRate(float64(clip.SampleRate)),
		eq.WithOutput(out),
		eq.WithSource(src),
		eq.WithLogger(log),
	)
	defer e.Dispose()

	if err := setup.Apply(e); err != nil {
		return err
	}

	if err := e.Initialize(ctx); err != nil {
		return err
	}

	log.Info("playing", "path", path, "rate", clip.SampleRate,
		"seconds", float64(clip.Frames())/float64(clip.SampleRate), "mode", e.Mode().String())

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for !src.Done() {
		select {
		case <-ctx.Done():
			log.Info("interrupted")
			return nil
		case <-ticker.C:
		}
	}

	select {
	case <-ctx.Done():
	case <-time.After(tail):
	}

	st := e.Stats()
	log.Debug("playback done", "passthroughs", st.Passthroughs, "rebuilds", st.Rebuilds)

	return nil
}
