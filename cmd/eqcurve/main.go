// Command eqcurve prints the magnitude response of an equalizer setting.
//
// Usage:
//
//	eqcurve [flags]
//
// Without a preset or bands it prints the flat default nine-band curve.
// The curve is the fast approximation unless -live routes the filter graph,
// in which case it is computed from the realised biquad stages.
//
// Examples:
//
//	eqcurve -band 1000:6 -band 4000:-3:2
//	eqcurve -preset warm.json -points 31 -live
//	eqcurve -notch 6000 -notch-depth 20 -verify
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/cwbudde/algo-eqgraph/dsp/eq"
	"github.com/cwbudde/algo-eqgraph/internal/cliutil"
	"github.com/cwbudde/algo-eqgraph/measure/response"
)

func main() {
	var sel cliutil.Selection

	flag.StringVar(&sel.Preset, "preset", "", "JSON preset file (- for stdin)")
	flag.Var(&sel.Bands, "band", "extra band as freq:gain[:q] (repeatable)")
	flag.Float64Var(&sel.NotchFreq, "notch", 0, "add a notch cut at this frequency in Hz")
	flag.Float64Var(&sel.NotchDepth, "notch-depth", 12, "notch depth in dB")
	flag.Float64Var(&sel.NotchQ, "notch-q", 8, "notch Q")

	points := flag.Int("points", 31, "number of log-spaced frequency points")
	rate := flag.Float64("rate", 48000, "sample rate in Hz")
	disabled := flag.Bool("disabled", false, "show the curve with the EQ disabled")
	live := flag.Bool("live", false, "route the filter graph and print the exact curve")
	verify := flag.Bool("verify", false, "cross-check the exact curve against an FFT measurement (implies -live)")
	fftSize := flag.Int("fft", response.DefaultFFTSize, "FFT size for -verify")
	verbose := flag.Bool("v", false, "verbose logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: eqcurve [flags]\n\nFlags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg := runConfig{
		points:   *points,
		rate:     *rate,
		disabled: *disabled,
		live:     *live || *verify,
		verify:   *verify,
		fftSize:  *fftSize,
	}

	log := cliutil.NewLogger(os.Stderr, *verbose)

	if err := run(os.Stdout, &sel, cfg, log); err != nil {
		fmt.Fprintf(os.Stderr, "eqcurve: %v\n", err)
		os.Exit(1)
	}
}

type runConfig struct {
	points   int
	rate     float64
	disabled bool
	live     bool
	verify   bool
	fftSize  int
}

func run(w io.Writer, sel *cliutil.Selection, cfg runConfig, log *slog.Logger) error {
	bands, err := sel.Resolve()
	if err != nil {
		return err
	}

	e := eq.New(
		eq.WithSampleRate(cfg.rate),
		eq.WithRampTime(0),
		eq.WithMaxBands(max(eq.DefaultMaxBands, len(bands))),
		eq.WithLogger(log),
	)
	defer e.Dispose()

	if cfg.live {
		if err := e.Initialize(context.Background()); err != nil {
			return err
		}
	}

	if err := e.SetUnifiedBands(bands); err != nil {
		return err
	}

	if cfg.disabled {
		if err := e.SetEQEnabled(false); err != nil {
			return err
		}
	}

	resp := e.FrequencyResponse(cfg.points)
	log.Debug("curve computed", "points", resp.Len(), "exact", resp.Exact(), "bands", len(bands))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Hz\tdB\t")

	for i := 0; i < resp.Len(); i++ {
		fmt.Fprintf(tw, "%.1f\t%+.2f\t\n", resp.Frequency(i), resp.LeftDB(i))
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	kind := "approximate"
	if resp.Exact() {
		kind = "exact"
	}

	fmt.Fprintf(w, "\n%s curve, %d bands, approximation error %.2f dB\n",
		kind, len(bands), e.ApproximationError(eq.DefaultResponsePoints))

	if !cfg.verify {
		return nil
	}

	m, err := response.Measure(e, cfg.rate, cfg.fftSize)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "measured vs exact: max deviation %.3f dB (fft %d)\n",
		response.MaxDeviation(e.FrequencyResponse(eq.DefaultResponsePoints), m), cfg.fftSize)

	return nil
}
