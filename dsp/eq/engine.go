package eq

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-eqgraph/device"
	"github.com/cwbudde/algo-eqgraph/dsp/core"
	"gonum.org/v1/gonum/floats"
)

// Stats are engine counters, mainly for tests and diagnostics.
type Stats struct {
	Rebuilds           int
	DisconnectWarnings int
	Mutations          uint64
	ResponseComputes   int
	// Passthroughs counts Process blocks skipped because the graph was busy.
	Passthroughs int64
}

// Engine is a stereo parametric equalizer. Control methods are safe for
// concurrent use and are applied in arrival order. Process and Render are
// the realtime path; they never block and must not run concurrently with
// themselves.
type Engine struct {
	cfg   config
	log   *slog.Logger
	queue mutationQueue
	sched *Scheduler

	// mu guards the band model and the graph. Process only try-locks it.
	mu         sync.RWMutex
	state      State
	mode       Mode
	eqEnabled  bool
	earEnabled [numChannels]bool
	bands      [numChannels][]Band
	balance    float64
	solo       Solo
	router     router
	stream     device.Stream
	gate       *renderGate
	scratch    []float64

	cacheMu          sync.Mutex
	cache            responseCache
	responseComputes int

	frames       atomic.Int64
	passthroughs atomic.Int64
	disposeOnce  sync.Once
}

// New creates an uninitialized engine with the default band set on every
// channel, the EQ enabled and the balance centred.
func New(opts ...Option) *Engine {
	cfg := applyOptions(opts)

	e := &Engine{
		cfg:       cfg,
		log:       cfg.logger,
		sched:     NewScheduler(),
		mode:      ModeUnified,
		eqEnabled: true,
		balance:   0.5,
		solo:      SoloNone,
		router: router{
			sampleRate: cfg.proc.SampleRate,
			maxStages:  cfg.maxBands,
			auto:       automator{ramp: cfg.ramp.Seconds()},
			log:        cfg.logger,
		},
		scratch: make([]float64, cfg.proc.BlockSize),
	}

	for ch := range e.bands {
		e.earEnabled[ch] = true
		e.bands[ch] = cloneBands(cfg.bands[ch])
	}

	return e
}

// SampleRate returns the processing sample rate.
func (e *Engine) SampleRate() float64 { return e.cfg.proc.SampleRate }

// Now returns the audio clock in seconds: frames processed / sample rate.
func (e *Engine) Now() float64 {
	return float64(e.frames.Load()) / e.cfg.proc.SampleRate
}

// Initialize acquires an output stream and routes the graph. Calling it
// again replaces the stream and rebuilds. The new stream is acquired before
// the old graph is torn down, so a failure leaves the engine unchanged.
func (e *Engine) Initialize(ctx context.Context) error {
	return e.queue.do(func() error {
		e.mu.RLock()
		st := e.state
		e.mu.RUnlock()

		switch st {
		case StateDisposed:
			return ErrDisposed
		case StateUnusable:
			return ErrUnusable
		}

		gate := &renderGate{}

		stream, err := e.cfg.output.Open(ctx, device.Config{
			SampleRate:      e.cfg.proc.SampleRate,
			FramesPerBuffer: e.cfg.proc.BlockSize,
		}, gate.render(e))
		if err != nil {
			return &InitError{Op: "open output", Err: err}
		}

		// Only one stream may render at a time: silence the old callback
		// before the new device starts.
		e.mu.RLock()
		oldGate := e.gate
		e.mu.RUnlock()

		oldGate.set(false)
		gate.set(true)

		if err := stream.Start(); err != nil {
			gate.set(false)

			if cerr := stream.Close(); cerr != nil {
				e.log.Warn("eq close after failed start", "err", cerr)
			}

			oldGate.set(true)

			return &InitError{Op: "start stream", Err: err}
		}

		e.mu.Lock()
		old := e.stream
		e.router.teardown()
		e.stream = stream
		e.gate = gate
		e.state = StateInitialized
		e.invalidate()
		err = e.reconcileLocked()
		e.mu.Unlock()

		if old != nil {
			if cerr := old.Close(); cerr != nil {
				e.log.Warn("eq close previous stream", "err", cerr)
			}
		}

		if err != nil {
			return err
		}

		e.log.Info("eq engine initialized",
			"sample_rate", e.cfg.proc.SampleRate,
			"mode", e.Mode().String())

		return nil
	})
}

// Dispose releases the stream and graph and cancels pending drags. Later
// control calls are no-ops; Initialize returns ErrDisposed.
func (e *Engine) Dispose() {
	e.disposeOnce.Do(func() {
		e.sched.Close()

		_ = e.queue.do(func() error {
			e.mu.Lock()
			stream := e.stream
			gate := e.gate
			e.stream, e.gate = nil, nil
			e.router.teardown()
			e.state = StateDisposed
			e.invalidate()
			e.mu.Unlock()

			gate.set(false)

			if stream != nil {
				if err := stream.Close(); err != nil {
					e.log.Warn("eq close stream", "err", err)
				}
			}

			return nil
		})
	})
}

// mutate applies fn to the band model and converges the graph.
func (e *Engine) mutate(op string, fn func()) error {
	return e.queue.do(func() error {
		e.mu.Lock()
		defer e.mu.Unlock()

		switch e.state {
		case StateDisposed:
			return nil
		case StateUnusable:
			return ErrUnusable
		}

		fn()
		e.invalidate()
		e.log.Debug("eq mutation", "op", op)

		return e.reconcileLocked()
	})
}

func (e *Engine) reconcileLocked() error {
	if e.state != StateInitialized && e.state != StateRouted {
		return nil
	}

	t := e.targetLocked()
	if err := e.router.reconcile(&t, e.Now()); err != nil {
		e.state = StateUnusable
		return err
	}

	e.state = StateRouted

	return nil
}

func (e *Engine) targetLocked() routeTarget {
	l, r := ChannelGains(e.balance, e.solo)

	return routeTarget{
		mode:       e.mode,
		eqEnabled:  e.eqEnabled,
		earEnabled: e.earEnabled,
		bands:      e.bands,
		leftGain:   l,
		rightGain:  r,
	}
}

func (e *Engine) invalidate() {
	e.cacheMu.Lock()
	e.cache.invalidate()
	e.cacheMu.Unlock()
}

func mustChannel(ch Channel) {
	if !ch.valid() {
		panic(fmt.Sprintf("eq: unknown channel %d", int(ch)))
	}
}

// SetEQEnabled switches the whole EQ on or off. Stored bands are kept;
// disabled stages run at 0 dB, and the unified cascade is bypassed.
func (e *Engine) SetEQEnabled(enabled bool) error {
	return e.mutate("eq-enabled", func() { e.eqEnabled = enabled })
}

// SetSplitEarMode selects ModeSplitEar (true) or ModeUnified (false).
func (e *Engine) SetSplitEarMode(split bool) error {
	return e.mutate("split-ear", func() {
		if split {
			e.mode = ModeSplitEar
		} else {
			e.mode = ModeUnified
		}
	})
}

// SetBalance sets the stereo balance, clamped to [0, 1]. NaN centres it.
func (e *Engine) SetBalance(balance float64) error {
	if math.IsNaN(balance) {
		balance = 0.5
	}

	balance = core.Clamp(balance, 0, 1)

	return e.mutate("balance", func() { e.balance = balance })
}

// SetSoloMode sets the solo state.
func (e *Engine) SetSoloMode(solo Solo) error {
	return e.mutate("solo", func() { e.solo = solo })
}

// SetEarEnabled enables or disables the bands of one channel.
func (e *Engine) SetEarEnabled(ch Channel, enabled bool) error {
	mustChannel(ch)
	return e.mutate("ear-enabled", func() { e.earEnabled[ch] = enabled })
}

func (e *Engine) SetUnifiedEnabled(enabled bool) error {
	return e.SetEarEnabled(ChannelUnified, enabled)
}

func (e *Engine) SetLeftEarEnabled(enabled bool) error {
	return e.SetEarEnabled(ChannelLeft, enabled)
}

func (e *Engine) SetRightEarEnabled(enabled bool) error {
	return e.SetEarEnabled(ChannelRight, enabled)
}

// SetBands replaces the band set of ch. The slice is copied.
func (e *Engine) SetBands(ch Channel, bands []Band) error {
	mustChannel(ch)

	bands = cloneBands(bands)
	if bands == nil {
		bands = []Band{}
	}

	return e.mutate("bands", func() { e.bands[ch] = bands })
}

func (e *Engine) SetUnifiedBands(bands []Band) error { return e.SetBands(ChannelUnified, bands) }

func (e *Engine) SetLeftEarBands(bands []Band) error { return e.SetBands(ChannelLeft, bands) }

func (e *Engine) SetRightEarBands(bands []Band) error { return e.SetBands(ChannelRight, bands) }

// ApplyPreset replaces the band set of ch with the preset's bands.
func (e *Engine) ApplyPreset(ch Channel, p Preset) error {
	e.log.Debug("eq apply preset", "channel", ch.String(), "preset", p.ID)
	return e.SetBands(ch, p.Bands)
}

func (e *Engine) ApplyUnifiedPreset(p Preset) error { return e.ApplyPreset(ChannelUnified, p) }

func (e *Engine) ApplyLeftPreset(p Preset) error { return e.ApplyPreset(ChannelLeft, p) }

func (e *Engine) ApplyRightPreset(p Preset) error { return e.ApplyPreset(ChannelRight, p) }

// UpdateBand replaces band index of ch.
func (e *Engine) UpdateBand(ch Channel, index int, band Band) error {
	mustChannel(ch)

	e.mu.RLock()
	n := len(e.bands[ch])
	e.mu.RUnlock()

	if index < 0 || index >= n {
		return fmt.Errorf("%w: %s[%d], have %d", ErrBandIndex, ch, index, n)
	}

	return e.mutate("update-band", func() {
		if index >= len(e.bands[ch]) {
			return
		}

		// copy on write; Bands snapshots never alias the model
		bands := cloneBands(e.bands[ch])
		bands[index] = band
		e.bands[ch] = bands
	})
}

// DragBand schedules UpdateBand after the debounce interval. A newer drag of
// the same band replaces a pending one. The returned task may be cancelled.
func (e *Engine) DragBand(ch Channel, index int, band Band) *Task {
	mustChannel(ch)

	key := fmt.Sprintf("drag/%s/%d", ch, index)

	return e.sched.Debounce(key, e.cfg.debounce, func() {
		if err := e.UpdateBand(ch, index, band); err != nil {
			e.log.Warn("eq drag", "channel", ch.String(), "index", index, "err", err)
		}
	})
}

// PendingDrags returns the number of drags waiting for their debounce.
func (e *Engine) PendingDrags() int { return e.sched.Pending() }

// Bands returns a copy of the band set of ch.
func (e *Engine) Bands(ch Channel) []Band {
	mustChannel(ch)

	e.mu.RLock()
	defer e.mu.RUnlock()

	return cloneBands(e.bands[ch])
}

func (e *Engine) UnifiedBands() []Band { return e.Bands(ChannelUnified) }

func (e *Engine) LeftEarBands() []Band { return e.Bands(ChannelLeft) }

func (e *Engine) RightEarBands() []Band { return e.Bands(ChannelRight) }

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.state
}

func (e *Engine) Mode() Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.mode
}

// Degraded reports whether the graph fell back to a source-to-output bypass.
func (e *Engine) Degraded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.router.degraded
}

func (e *Engine) EQEnabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.eqEnabled
}

func (e *Engine) EarEnabled(ch Channel) bool {
	mustChannel(ch)

	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.earEnabled[ch]
}

func (e *Engine) Balance() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.balance
}

func (e *Engine) Solo() Solo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.solo
}

// Gains returns the left and right gains derived from balance and solo.
func (e *Engine) Gains() (left, right float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return ChannelGains(e.balance, e.solo)
}

// StageCount returns the number of live stages in ch's arena.
func (e *Engine) StageCount(ch Channel) int {
	mustChannel(ch)

	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.router.stages(ch))
}

// Connections lists the live edges as "from->to".
func (e *Engine) Connections() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.router.connections()
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	s := Stats{
		Rebuilds:           e.router.rebuilds,
		DisconnectWarnings: e.router.disconnectWarnings,
	}
	e.mu.RUnlock()

	e.queue.mu.Lock()
	s.Mutations = e.queue.applied
	e.queue.mu.Unlock()

	e.cacheMu.Lock()
	s.ResponseComputes = e.responseComputes
	e.cacheMu.Unlock()

	s.Passthroughs = e.passthroughs.Load()

	return s
}

// Process filters one stereo block in place on the audio clock. If a
// control mutation holds the graph, the block passes through unfiltered.
func (e *Engine) Process(left, right []float64) {
	n := min(len(left), len(right))
	if n == 0 {
		return
	}

	if !e.mu.TryRLock() {
		e.passthroughs.Add(1)
		e.frames.Add(int64(n))

		return
	}

	if e.state == StateRouted {
		fs := e.cfg.proc.SampleRate
		block := e.cfg.proc.BlockSize
		start := e.frames.Load()

		for off := 0; off < n; off += block {
			end := min(off+block, n)
			t0 := float64(start+int64(off)) / fs
			t1 := float64(start+int64(end)) / fs
			e.router.process(left[off:end], right[off:end], t0, t1, e.scratch)
		}
	}

	e.mu.RUnlock()
	e.frames.Add(int64(n))
}

// Render pulls the next block from the source and processes it. It is the
// stream callback installed by Initialize, which admits one stream at a time.
func (e *Engine) Render(left, right []float64) {
	n := min(len(left), len(right))

	read := 0
	if src := e.cfg.source; src != nil {
		read = src.Read(left[:n], right[:n])
	}

	for i := read; i < n; i++ {
		left[i], right[i] = 0, 0
	}

	e.Process(left[:n], right[:n])
}

// FrequencyResponse returns the magnitude response at n log-spaced points
// (n <= 0 means DefaultResponsePoints). It never fails: with a routed graph
// the curve is exact, otherwise it is approximated from the band model.
// Repeated calls without an intervening mutation return the same snapshot.
func (e *Engine) FrequencyResponse(n int) *Response {
	if n <= 0 {
		n = DefaultResponsePoints
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	if r, ok := e.cache.get(n); ok {
		return r
	}

	r := e.computeResponseLocked(n)
	e.cache.store(r)
	e.responseComputes++

	return r
}

func (e *Engine) enabledLocked(ch Channel) bool {
	return e.eqEnabled && e.earEnabled[ch]
}

func (e *Engine) computeResponseLocked(n int) *Response {
	axis := FrequencyAxis(n)
	r := &Response{
		frequencies: float32Axis(axis),
		left:        make([]float32, n),
		right:       make([]float32, n),
	}

	fs := e.cfg.proc.SampleRate
	live := e.state == StateRouted && !e.router.degraded

	switch e.mode {
	case ModeUnified:
		if live {
			exactCurveDB(e.router.stages(ChannelUnified), fs, axis, r.left)
		} else {
			approxCurveDB(e.bands[ChannelUnified], e.enabledLocked(ChannelUnified), axis, r.left)
		}

		copy(r.right, r.left)
	case ModeSplitEar:
		for _, side := range [...]struct {
			ch  Channel
			out []float32
		}{{ChannelLeft, r.left}, {ChannelRight, r.right}} {
			switch {
			case !e.enabledLocked(side.ch):
				flatDB(side.out)
			case live:
				exactCurveDB(e.router.stages(side.ch), fs, axis, side.out)
			default:
				approxCurveDB(e.bands[side.ch], true, axis, side.out)
			}
		}
	default:
		panic(fmt.Sprintf("eq: unknown mode %d", int(e.mode)))
	}

	r.exact = live

	return r
}

// ApproximationError returns the largest absolute difference in dB between
// the approximate curve and the exact cascade response for the current band
// model, over n axis points. It does not need a live graph.
func (e *Engine) ApproximationError(n int) float64 {
	if n <= 0 {
		n = DefaultResponsePoints
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	axis := FrequencyAxis(n)
	exact := make([]float32, n)
	approx := make([]float32, n)

	var channels []Channel

	switch e.mode {
	case ModeUnified:
		channels = []Channel{ChannelUnified}
	case ModeSplitEar:
		channels = []Channel{ChannelLeft, ChannelRight}
	default:
		panic(fmt.Sprintf("eq: unknown mode %d", int(e.mode)))
	}

	worst := 0.0

	for _, ch := range channels {
		enabled := e.enabledLocked(ch)
		exactCurveDB(BuildCascade(e.bands[ch], enabled, e.cfg.proc.SampleRate), e.cfg.proc.SampleRate, axis, exact)
		approxCurveDB(e.bands[ch], enabled, axis, approx)

		d := floats.Distance(widen(exact), widen(approx), math.Inf(1))
		worst = math.Max(worst, d)
	}

	return worst
}

func widen(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}

	return out
}
