package eq

import (
	"log/slog"
	"time"

	"github.com/cwbudde/algo-eqgraph/device"
	"github.com/cwbudde/algo-eqgraph/dsp/core"
)

const (
	// DefaultRampTime is the duration of every parameter transition.
	DefaultRampTime = 50 * time.Millisecond
	// DefaultMaxBands is the per-channel stage budget.
	DefaultMaxBands = 31
	// DefaultDebounce delays DragBand propagation.
	DefaultDebounce = 30 * time.Millisecond
)

// Source supplies input audio to Render. Read fills up to len(left) frames
// and returns how many it wrote; the remainder is rendered as silence.
type Source interface {
	Read(left, right []float64) int
}

type config struct {
	proc     core.ProcessorConfig
	ramp     time.Duration
	maxBands int
	debounce time.Duration
	output   device.Output
	source   Source
	logger   *slog.Logger
	bands    [numChannels][]Band
}

// Option configures an Engine.
type Option func(*config)

func defaultConfig() config {
	cfg := config{
		proc:     core.DefaultProcessorConfig(),
		ramp:     DefaultRampTime,
		maxBands: DefaultMaxBands,
		debounce: DefaultDebounce,
		output:   device.Null{},
		logger:   slog.New(slog.DiscardHandler),
	}

	for ch := range cfg.bands {
		cfg.bands[ch] = DefaultBands()
	}

	return cfg
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return cfg
}

// WithSampleRate sets the processing sample rate. Non-positive values are ignored.
func WithSampleRate(sampleRate float64) Option {
	return func(cfg *config) {
		core.WithSampleRate(sampleRate)(&cfg.proc)
	}
}

// WithBlockSize sets the control quantum in frames. Ramps advance once per block.
func WithBlockSize(frames int) Option {
	return func(cfg *config) {
		core.WithBlockSize(frames)(&cfg.proc)
	}
}

// WithRampTime sets the transition time. Zero makes parameter changes immediate.
func WithRampTime(d time.Duration) Option {
	return func(cfg *config) {
		if d >= 0 {
			cfg.ramp = d
		}
	}
}

// WithMaxBands sets the per-channel stage budget. Cascades longer than this
// fail to route and the engine degrades to bypass.
func WithMaxBands(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.maxBands = n
		}
	}
}

// WithDebounce sets the DragBand debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(cfg *config) {
		if d >= 0 {
			cfg.debounce = d
		}
	}
}

// WithOutput sets the device Initialize acquires a stream from.
func WithOutput(out device.Output) Option {
	return func(cfg *config) {
		if out != nil {
			cfg.output = out
		}
	}
}

// WithSource sets the input pulled by Render.
func WithSource(src Source) Option {
	return func(cfg *config) {
		cfg.source = src
	}
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithDefaultBands sets the initial band set of every channel.
func WithDefaultBands(bands []Band) Option {
	return func(cfg *config) {
		for ch := range cfg.bands {
			cfg.bands[ch] = cloneBands(bands)
		}
	}
}
