// Package cliutil holds flag parsing and preset loading shared by the
// equalizer commands.
package cliutil

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-eqgraph/dsp/eq"
)

// BandList is a repeatable flag of "freq:gain[:q]" band specs.
type BandList []eq.Band

func (l *BandList) String() string {
	if l == nil {
		return ""
	}

	parts := make([]string, len(*l))
	for i, b := range *l {
		parts[i] = fmt.Sprintf("%g:%g:%g", b.Frequency, b.Gain, b.Q)
	}

	return strings.Join(parts, ",")
}

// Set parses one band spec and appends it.
func (l *BandList) Set(s string) error {
	b, err := ParseBand(s)
	if err != nil {
		return err
	}

	b.ID = fmt.Sprintf("cli-%d", len(*l)+1)
	*l = append(*l, b)

	return nil
}

// ParseBand parses "freq:gain[:q]". Q defaults to eq.DefaultQ.
func ParseBand(s string) (eq.Band, error) {
	fields := strings.Split(s, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return eq.Band{}, fmt.Errorf("band %q: want freq:gain[:q]", s)
	}

	vals := [3]float64{0, 0, eq.DefaultQ}
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return eq.Band{}, fmt.Errorf("band %q: %w", s, err)
		}

		vals[i] = v
	}

	b := eq.Band{Frequency: vals[0], Gain: vals[1], Q: vals[2]}
	if err := b.Validate(); err != nil {
		return eq.Band{}, err
	}

	return b, nil
}

// LoadPreset reads a JSON preset from path. "-" reads stdin.
func LoadPreset(path string) (eq.Preset, error) {
	if path == "-" {
		return eq.DecodePreset(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return eq.Preset{}, err
	}
	defer f.Close()

	return eq.DecodePreset(f)
}

// Selection combines the band sources a command accepts. A preset replaces
// the default bands, extra bands are appended, and a notch frequency above
// zero adds a notch cut.
type Selection struct {
	Preset     string
	Bands      BandList
	NotchFreq  float64
	NotchDepth float64
	NotchQ     float64
}

// Resolve returns the band set described by s. An empty selection yields
// the default flat bands.
func (s *Selection) Resolve() ([]eq.Band, error) {
	bands := eq.DefaultBands()

	if s.Preset != "" {
		p, err := LoadPreset(s.Preset)
		if err != nil {
			return nil, fmt.Errorf("load preset: %w", err)
		}

		bands = p.Bands
	}

	if s.NotchFreq > 0 {
		notch := eq.NotchPreset(s.NotchFreq, s.NotchDepth, s.NotchQ)
		bands = append(bands, notch.Bands[len(notch.Bands)-1])
	}

	return append(bands, s.Bands...), nil
}

// NewLogger returns a text logger on w at Info, or Debug when verbose.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Setup is the full engine configuration a command can express on its
// command line. Split-ear mode is used when either ear has a preset.
type Setup struct {
	Unified Selection
	Left    Selection
	Right   Selection
	Balance float64
	Solo    eq.Solo
	Bypass  bool
}

// Split reports whether the setup needs independent ears.
func (s *Setup) Split() bool {
	return s.Left.Preset != "" || s.Right.Preset != ""
}

// Apply pushes the setup into e. An ear without its own preset follows the
// shared bands.
func (s *Setup) Apply(e *eq.Engine) error {
	bands, err := s.Unified.Resolve()
	if err != nil {
		return err
	}

	if err := e.SetUnifiedBands(bands); err != nil {
		return err
	}

	if s.Split() {
		for _, side := range []struct {
			ch  eq.Channel
			sel *Selection
		}{
			{eq.ChannelLeft, &s.Left},
			{eq.ChannelRight, &s.Right},
		} {
			b := bands
			if side.sel.Preset != "" {
				if b, err = side.sel.Resolve(); err != nil {
					return err
				}
			}

			if err := e.SetBands(side.ch, b); err != nil {
				return err
			}
		}

		if err := e.SetSplitEarMode(true); err != nil {
			return err
		}
	}

	if err := e.SetBalance(s.Balance); err != nil {
		return err
	}

	if err := e.SetSoloMode(s.Solo); err != nil {
		return err
	}

	return e.SetEQEnabled(!s.Bypass)
}

// ParseSolo maps "", "none", "left" and "right" to a Solo value.
func ParseSolo(s string) (eq.Solo, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return eq.SoloNone, nil
	case "left", "l":
		return eq.SoloLeft, nil
	case "right", "r":
		return eq.SoloRight, nil
	default:
		return eq.SoloNone, fmt.Errorf("unknown solo %q: want none, left or right", s)
	}
}

// RegisterSetup binds the shared setup flags on fs.
func RegisterSetup(fs *flag.FlagSet, s *Setup) {
	fs.StringVar(&s.Unified.Preset, "preset", "", "JSON preset file for both ears")
	fs.Var(&s.Unified.Bands, "band", "extra band as freq:gain[:q] (repeatable)")
	fs.Float64Var(&s.Unified.NotchFreq, "notch", 0, "add a notch cut at this frequency in Hz")
	fs.Float64Var(&s.Unified.NotchDepth, "notch-depth", 12, "notch depth in dB")
	fs.Float64Var(&s.Unified.NotchQ, "notch-q", 8, "notch Q")
	fs.StringVar(&s.Left.Preset, "left-preset", "", "JSON preset for the left ear (enables split-ear mode)")
	fs.StringVar(&s.Right.Preset, "right-preset", "", "JSON preset for the right ear (enables split-ear mode)")
	fs.Float64Var(&s.Balance, "balance", 0.5, "stereo balance from 0 (left) to 1 (right)")
	fs.BoolVar(&s.Bypass, "bypass", false, "disable the EQ and apply only balance")
	fs.Func("solo", "solo one ear: none, left or right", func(v string) error {
		solo, err := ParseSolo(v)
		s.Solo = solo

		return err
	})
}
