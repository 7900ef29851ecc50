package eq

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwbudde/algo-eqgraph/device"
	"github.com/cwbudde/algo-eqgraph/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingOutput opens Null streams and remembers them.
type recordingOutput struct {
	mu      sync.Mutex
	streams []*device.NullStream
	failAt  int // 1-based Open call that fails; 0 never
	calls   int
}

func (o *recordingOutput) Open(ctx context.Context, cfg device.Config, render device.RenderFunc) (device.Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls++
	if o.calls == o.failAt {
		return nil, device.ErrUnavailable
	}

	st, err := device.Null{}.Open(ctx, cfg, render)
	if err != nil {
		return nil, err
	}

	ns := st.(*device.NullStream)
	o.streams = append(o.streams, ns)

	return ns, nil
}

func newRoutedEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()

	e := New(opts...)
	require.NoError(t, e.Initialize(context.Background()))
	require.Equal(t, StateRouted, e.State())
	t.Cleanup(e.Dispose)

	return e
}

func boosted(freq, gain float64) []Band {
	bands := DefaultBands()
	for i := range bands {
		if bands[i].Frequency == freq {
			bands[i].Gain = gain
		}
	}

	return bands
}

func maxOf(curve []float32) float32 {
	m := float32(math.Inf(-1))
	for _, v := range curve {
		m = max(m, v)
	}

	return m
}

func TestNewEngineDefaults(t *testing.T) {
	e := New()

	assert.Equal(t, StateUninitialized, e.State())
	assert.Equal(t, ModeUnified, e.Mode())
	assert.True(t, e.EQEnabled())
	assert.Equal(t, 0.5, e.Balance())
	assert.Equal(t, SoloNone, e.Solo())
	assert.Equal(t, DefaultBands(), e.UnifiedBands())
	assert.Equal(t, DefaultBands(), e.LeftEarBands())
	assert.Equal(t, DefaultBands(), e.RightEarBands())
	assert.Equal(t, 48000.0, e.SampleRate())
	assert.Empty(t, e.Connections())

	for _, ch := range []Channel{ChannelUnified, ChannelLeft, ChannelRight} {
		assert.True(t, e.EarEnabled(ch))
	}
}

func TestDefaultBandsApproximateFlat(t *testing.T) {
	e := New()

	r := e.FrequencyResponse(200)
	require.Equal(t, 200, r.Len())
	assert.False(t, r.Exact())
	testutil.RequireCurveWithin(t, r.LeftMagnitudesDB(), 0, 0.1)
	testutil.RequireCurveWithin(t, r.RightMagnitudesDB(), 0, 0.1)
}

func TestFrequencyResponseShape(t *testing.T) {
	e := New()

	for _, n := range []int{1, 2, 7, 200, 513} {
		r := e.FrequencyResponse(n)
		require.Equal(t, n, r.Len())
		assert.Len(t, r.Frequencies(), n)
		assert.Len(t, r.LeftMagnitudesDB(), n)
		assert.Len(t, r.RightMagnitudesDB(), n)
		assert.InDelta(t, 20, r.Frequency(0), 1e-3)

		if n > 1 {
			assert.InDelta(t, 20000, r.Frequency(n-1), 0.01)
		}
	}

	assert.Equal(t, DefaultResponsePoints, e.FrequencyResponse(0).Len())
	assert.Equal(t, DefaultResponsePoints, e.FrequencyResponse(-5).Len())
}

func TestInitializeRoutesUnified(t *testing.T) {
	e := newRoutedEngine(t)

	assert.Equal(t, 9, e.StageCount(ChannelUnified))
	assert.Zero(t, e.StageCount(ChannelLeft))
	assert.False(t, e.Degraded())
	assert.Equal(t, 1, e.Stats().Rebuilds)

	conns := e.Connections()
	assert.Contains(t, conns, "source->unified[0]")
	assert.Contains(t, conns, "unified[8]->splitter")
	assert.Contains(t, conns, "splitter->gain.left")
	assert.Contains(t, conns, "gain.right->merger")
	assert.Contains(t, conns, "merger->output")
}

func TestExactResponseFromLiveStages(t *testing.T) {
	e := newRoutedEngine(t)
	require.NoError(t, e.SetUnifiedBands(boosted(1000, 6)))

	r := e.FrequencyResponse(200)
	assert.True(t, r.Exact())
	assert.InDelta(t, 6, maxOf(r.LeftMagnitudesDB()), 0.1)
	assert.Equal(t, r.LeftMagnitudesDB(), r.RightMagnitudesDB())
}

func TestSetSplitEarModeIdempotent(t *testing.T) {
	e := newRoutedEngine(t)
	before := e.Stats().Rebuilds

	require.NoError(t, e.SetSplitEarMode(true))
	assert.Equal(t, before+1, e.Stats().Rebuilds)

	require.NoError(t, e.SetSplitEarMode(true))
	assert.Equal(t, before+1, e.Stats().Rebuilds)

	assert.Equal(t, ModeSplitEar, e.Mode())
	assert.Equal(t, 9, e.StageCount(ChannelLeft))
	assert.Equal(t, 9, e.StageCount(ChannelRight))
	assert.Zero(t, e.StageCount(ChannelUnified))
	assert.Contains(t, e.Connections(), "splitter->left[0]")
	assert.Contains(t, e.Connections(), "right[8]->gain.right")

	require.NoError(t, e.SetSplitEarMode(false))
	assert.Equal(t, before+2, e.Stats().Rebuilds)
	assert.Equal(t, 9, e.StageCount(ChannelUnified))
}

func TestParameterUpdateDoesNotRebuild(t *testing.T) {
	e := newRoutedEngine(t)
	before := e.Stats().Rebuilds

	require.NoError(t, e.SetUnifiedBands(boosted(250, -3)))
	require.NoError(t, e.SetBalance(0.2))
	require.NoError(t, e.SetSoloMode(SoloRight))
	require.NoError(t, e.UpdateBand(ChannelUnified, 0, Band{ID: "band-1", Frequency: 70, Gain: 2, Q: 1}))

	assert.Equal(t, before, e.Stats().Rebuilds)
}

func TestBandCountChangeRebuilds(t *testing.T) {
	e := newRoutedEngine(t)
	before := e.Stats().Rebuilds

	require.NoError(t, e.ApplyUnifiedPreset(NotchPreset(4000, 20, 10)))
	assert.Equal(t, before+1, e.Stats().Rebuilds)
	assert.Equal(t, 10, e.StageCount(ChannelUnified))

	// an inactive channel never touches the live graph
	require.NoError(t, e.SetLeftEarBands(DefaultBands()[:3]))
	assert.Equal(t, before+1, e.Stats().Rebuilds)
}

func TestPresetRoundTrip(t *testing.T) {
	p := Preset{ID: "p", Name: "P", Bands: boosted(500, 4.5)}

	for _, enabled := range []bool{true, false} {
		e := newRoutedEngine(t)
		require.NoError(t, e.SetEQEnabled(enabled))
		require.NoError(t, e.ApplyUnifiedPreset(p))
		assert.Equal(t, p.Bands, e.UnifiedBands())
	}

	e := New()
	require.NoError(t, e.ApplyLeftPreset(p))
	require.NoError(t, e.ApplyRightPreset(p))
	assert.Equal(t, p.Bands, e.LeftEarBands())
	assert.Equal(t, p.Bands, e.RightEarBands())

	// callers cannot alias the model
	got := e.LeftEarBands()
	got[0].Gain = 40
	p.Bands[1].Gain = 40
	assert.Zero(t, e.LeftEarBands()[0].Gain)
	assert.Zero(t, e.LeftEarBands()[1].Gain)
}

func TestDisableKeepsBandsAndFlattens(t *testing.T) {
	e := newRoutedEngine(t)
	bands := boosted(1000, 9)
	bands[2].Gain = -5
	require.NoError(t, e.SetUnifiedBands(bands))
	require.NoError(t, e.SetEQEnabled(false))

	r := e.FrequencyResponse(200)
	testutil.RequireCurveWithin(t, r.LeftMagnitudesDB(), 0, 0.01)
	testutil.RequireCurveWithin(t, r.RightMagnitudesDB(), 0, 0.01)
	assert.Equal(t, bands, e.UnifiedBands())

	// unified cascade is bypassed while disabled
	assert.Zero(t, e.StageCount(ChannelUnified))
	assert.Contains(t, e.Connections(), "source->splitter")

	require.NoError(t, e.SetEQEnabled(true))
	assert.InDelta(t, 9, maxOf(e.FrequencyResponse(200).LeftMagnitudesDB()), 0.5)
}

func TestDisableApproximate(t *testing.T) {
	e := New()
	require.NoError(t, e.SetUnifiedBands(boosted(1000, 9)))
	require.NoError(t, e.SetEQEnabled(false))

	testutil.RequireCurveWithin(t, e.FrequencyResponse(100).LeftMagnitudesDB(), 0, 0.01)
	assert.Equal(t, 9.0, e.UnifiedBands()[4].Gain)
}

func TestSplitEarDisabledEarIsFlat(t *testing.T) {
	e := newRoutedEngine(t)
	require.NoError(t, e.SetSplitEarMode(true))
	require.NoError(t, e.SetLeftEarBands(boosted(2000, 6)))
	require.NoError(t, e.SetRightEarBands(boosted(2000, -6)))

	r := e.FrequencyResponse(200)
	assert.InDelta(t, 6, maxOf(r.LeftMagnitudesDB()), 0.1)
	assert.Greater(t, float32(-5.5), minOf(r.RightMagnitudesDB()))

	require.NoError(t, e.SetLeftEarEnabled(false))

	r = e.FrequencyResponse(200)
	testutil.RequireCurveWithin(t, r.LeftMagnitudesDB(), 0, 0)
	assert.Greater(t, float32(-5.5), minOf(r.RightMagnitudesDB()))
	assert.Equal(t, 6.0, e.LeftEarBands()[5].Gain)
}

func minOf(curve []float32) float32 {
	m := float32(math.Inf(1))
	for _, v := range curve {
		m = min(m, v)
	}

	return m
}

func TestBalanceAndSoloGains(t *testing.T) {
	e := New()

	cases := []struct {
		balance     float64
		solo        Solo
		left, right float64
	}{
		{0.5, SoloNone, 1, 1},
		{0, SoloNone, 1, 0},
		{1, SoloNone, 0, 1},
		{-2, SoloNone, 1, 0},
		{0.5, SoloLeft, 1, 0},
		{0.5, SoloRight, 0, 1},
	}

	for _, tc := range cases {
		require.NoError(t, e.SetBalance(tc.balance))
		require.NoError(t, e.SetSoloMode(tc.solo))

		l, r := e.Gains()
		assert.Equal(t, tc.left, l, "balance %v solo %v", tc.balance, tc.solo)
		assert.Equal(t, tc.right, r, "balance %v solo %v", tc.balance, tc.solo)
	}

	require.NoError(t, e.SetBalance(math.NaN()))
	assert.Equal(t, 0.5, e.Balance())
	require.NoError(t, e.SetBalance(3))
	assert.Equal(t, 1.0, e.Balance())
}

func TestResponseCache(t *testing.T) {
	for _, initialized := range []bool{false, true} {
		e := New()
		if initialized {
			require.NoError(t, e.Initialize(context.Background()))
		}

		a := e.FrequencyResponse(200)
		b := e.FrequencyResponse(200)
		assert.Same(t, a, b)
		assert.Equal(t, 1, e.Stats().ResponseComputes)

		require.NoError(t, e.UpdateBand(ChannelUnified, 4, Band{ID: "band-5", Frequency: 1000, Gain: 6, Q: math.Sqrt2}))

		c := e.FrequencyResponse(200)
		assert.NotSame(t, a, c)
		assert.NotEqual(t, a.LeftMagnitudesDB(), c.LeftMagnitudesDB())

		// point count change recomputes too
		d := e.FrequencyResponse(100)
		assert.NotSame(t, c, d)
		assert.Equal(t, 3, e.Stats().ResponseComputes)

		e.Dispose()
	}
}

func TestEveryMutationInvalidatesCache(t *testing.T) {
	e := newRoutedEngine(t)

	mutations := map[string]func() error{
		"eq enabled": func() error { return e.SetEQEnabled(true) },
		"split ear":  func() error { return e.SetSplitEarMode(false) },
		"balance":    func() error { return e.SetBalance(0.5) },
		"solo":       func() error { return e.SetSoloMode(SoloNone) },
		"ear enable": func() error { return e.SetRightEarEnabled(true) },
		"bands":      func() error { return e.SetUnifiedBands(e.UnifiedBands()) },
		"preset":     func() error { return e.ApplyRightPreset(Preset{Bands: DefaultBands()}) },
	}

	for name, m := range mutations {
		before := e.FrequencyResponse(64)
		require.NoError(t, m(), name)
		assert.NotSame(t, before, e.FrequencyResponse(64), name)
	}
}

func TestUpdateBandIndex(t *testing.T) {
	e := New()

	err := e.UpdateBand(ChannelLeft, 9, Band{Frequency: 100, Q: 1})
	assert.ErrorIs(t, err, ErrBandIndex)

	err = e.UpdateBand(ChannelLeft, -1, Band{Frequency: 100, Q: 1})
	assert.ErrorIs(t, err, ErrBandIndex)

	require.NoError(t, e.UpdateBand(ChannelLeft, 8, Band{ID: "x", Frequency: 12000, Gain: -2, Q: 3}))
	assert.Equal(t, "x", e.LeftEarBands()[8].ID)
	assert.Equal(t, "band-9", e.RightEarBands()[8].ID)
}

func TestRampOnAudioClock(t *testing.T) {
	e := newRoutedEngine(t, WithRampTime(50*time.Millisecond))

	require.NoError(t, e.UpdateBand(ChannelUnified, 4, Band{ID: "band-5", Frequency: 1000, Gain: 6, Q: math.Sqrt2}))

	stage := e.router.stages(ChannelUnified)[4]
	_, g, _ := stage.Params(e.Now())
	assert.Zero(t, g)

	_, target, _ := stage.Target()
	assert.Equal(t, 6.0, target)

	// the analyzer reports the scheduled destination immediately
	assert.InDelta(t, 6, maxOf(e.FrequencyResponse(200).LeftMagnitudesDB()), 0.1)

	left, right := make([]float64, 1200), make([]float64, 1200)
	e.Process(left, right) // 25 ms

	_, g, _ = stage.Params(e.Now())
	assert.InDelta(t, 3, g, 1e-6)

	// supersede mid-ramp: the new ramp starts from the value reached
	require.NoError(t, e.UpdateBand(ChannelUnified, 4, Band{ID: "band-5", Frequency: 1000, Gain: 0, Q: math.Sqrt2}))
	_, g, _ = stage.Params(e.Now())
	assert.InDelta(t, 3, g, 1e-6)

	e.Process(left, right)
	_, g, _ = stage.Params(e.Now())
	assert.InDelta(t, 1.5, g, 1e-6)

	e.Process(left, right)
	_, g, _ = stage.Params(e.Now())
	assert.InDelta(t, 0, g, 1e-9)
}

func TestProcessAppliesEQAndBalance(t *testing.T) {
	e := newRoutedEngine(t, WithRampTime(0))
	require.NoError(t, e.SetUnifiedBands(boosted(1000, 6)))
	require.NoError(t, e.SetBalance(0.25))

	const n = 48000
	left := testutil.DeterministicSine(1000, testSampleRate, 0.25, n)
	right := testutil.DeterministicSine(1000, testSampleRate, 0.25, n)
	inRMS := testutil.RMS(left[n-4800:])

	e.Process(left, right)

	gain := math.Pow(10, 6.0/20)
	assert.InDelta(t, gain, testutil.RMS(left[n-4800:])/inRMS, 0.01)
	assert.InDelta(t, gain*0.5, testutil.RMS(right[n-4800:])/inRMS, 0.01)
	assert.InDelta(t, 1.0, e.Now(), 1e-12)
}

func TestProcessBypassedWhenDisabled(t *testing.T) {
	e := newRoutedEngine(t, WithRampTime(0))
	require.NoError(t, e.SetUnifiedBands(boosted(1000, 6)))
	require.NoError(t, e.SetEQEnabled(false))

	in := testutil.DeterministicNoise(7, 0.5, 2048)
	left := append([]float64(nil), in...)
	right := append([]float64(nil), in...)

	e.Process(left, right)
	testutil.RequireSliceNearlyEqual(t, left, in, 0)
	testutil.RequireSliceNearlyEqual(t, right, in, 0)
}

func TestProcessPassesThroughWhileGraphBusy(t *testing.T) {
	e := newRoutedEngine(t, WithRampTime(0))
	require.NoError(t, e.SetUnifiedBands(boosted(1000, 12)))

	in := testutil.DeterministicSine(1000, testSampleRate, 0.5, 512)
	left := append([]float64(nil), in...)
	right := append([]float64(nil), in...)

	e.mu.Lock()
	e.Process(left, right)
	e.mu.Unlock()

	testutil.RequireSliceNearlyEqual(t, left, in, 0)
	assert.Equal(t, int64(1), e.Stats().Passthroughs)
	assert.InDelta(t, 512/testSampleRate, e.Now(), 1e-12)
}

func TestProcessUninitializedPassesThrough(t *testing.T) {
	e := New()

	in := testutil.DeterministicNoise(3, 1, 300)
	left := append([]float64(nil), in...)
	right := append([]float64(nil), in...)

	e.Process(left, right[:100])
	testutil.RequireSliceNearlyEqual(t, left, in, 0)
	assert.InDelta(t, 100/testSampleRate, e.Now(), 1e-12)
}

type constSource float64

func (c constSource) Read(left, right []float64) int {
	half := len(left) / 2
	for i := 0; i < half; i++ {
		left[i], right[i] = float64(c), float64(c)
	}

	return half
}

func TestRenderPullsSource(t *testing.T) {
	out := &recordingOutput{}
	e := newRoutedEngine(t, WithOutput(out), WithSource(constSource(0.5)), WithDefaultBands(nil), WithRampTime(0))
	require.NoError(t, e.SetBalance(0))

	left, right := testutil.DC(9, 8), testutil.DC(9, 8)
	require.NoError(t, out.streams[0].Pump(left, right))

	assert.Equal(t, []float64{0.5, 0.5, 0.5, 0.5, 0, 0, 0, 0}, left)
	assert.Equal(t, make([]float64, 8), right)
	assert.Equal(t, int64(8), out.streams[0].Frames())
}

func TestInitializeFailure(t *testing.T) {
	e := New(WithOutput(device.Failing{}))

	err := e.Initialize(context.Background())

	var ierr *InitError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "open output", ierr.Op)
	assert.ErrorIs(t, err, device.ErrUnavailable)
	assert.Equal(t, StateUninitialized, e.State())

	// still answers with the approximation
	assert.Equal(t, 200, e.FrequencyResponse(0).Len())
}

func TestReinitializeIsAllOrNothing(t *testing.T) {
	out := &recordingOutput{failAt: 2}
	e := newRoutedEngine(t, WithOutput(out))
	require.NoError(t, e.SetSplitEarMode(true))

	conns := e.Connections()
	rebuilds := e.Stats().Rebuilds

	err := e.Initialize(context.Background())
	var ierr *InitError
	require.ErrorAs(t, err, &ierr)

	assert.Equal(t, StateRouted, e.State())
	assert.Equal(t, conns, e.Connections())
	assert.Equal(t, rebuilds, e.Stats().Rebuilds)
	assert.False(t, out.streams[0].Closed())

	// third attempt succeeds, replaces the stream and rebuilds once
	require.NoError(t, e.Initialize(context.Background()))
	require.Len(t, out.streams, 2)
	assert.True(t, out.streams[0].Closed())
	assert.False(t, out.streams[1].Closed())
	assert.Equal(t, rebuilds+1, e.Stats().Rebuilds)
	assert.Equal(t, ModeSplitEar, e.Mode())
}

// threadedOutput opens streams that render from their own goroutine, like a
// device callback thread.
type threadedOutput struct {
	failStart atomic.Bool
	opened    atomic.Int32
}

func (o *threadedOutput) Open(_ context.Context, cfg device.Config, render device.RenderFunc) (device.Stream, error) {
	o.opened.Add(1)
	return &threadedStream{cfg: cfg, render: render, fail: o.failStart.Load()}, nil
}

type threadedStream struct {
	cfg    device.Config
	render device.RenderFunc
	fail   bool

	stop chan struct{}
	done chan struct{}
}

func (s *threadedStream) Start() error {
	if s.fail {
		return device.ErrUnavailable
	}

	s.stop, s.done = make(chan struct{}), make(chan struct{})

	go func() {
		defer close(s.done)

		left, right := make([]float64, 64), make([]float64, 64)
		for {
			select {
			case <-s.stop:
				return
			default:
				s.render(left, right)
			}
		}
	}()

	return nil
}

func (s *threadedStream) Close() error {
	if s.stop != nil {
		close(s.stop)
		<-s.done
	}

	return nil
}

func (s *threadedStream) SampleRate() float64 { return s.cfg.SampleRate }

// overlapSource records how many Render calls read from it at once.
type overlapSource struct {
	inflight atomic.Int32
	peak     atomic.Int32
	reads    atomic.Int64
}

func (s *overlapSource) Read(left, right []float64) int {
	n := s.inflight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}

	s.reads.Add(1)
	time.Sleep(20 * time.Microsecond)
	s.inflight.Add(-1)

	return 0
}

func TestReinitializeRendersFromOneStream(t *testing.T) {
	out := &threadedOutput{}
	src := &overlapSource{}
	e := New(WithOutput(out), WithSource(src))
	t.Cleanup(e.Dispose)

	for i := 0; i < 20; i++ {
		require.NoError(t, e.Initialize(context.Background()))
		time.Sleep(time.Millisecond)
	}

	// A stream that fails to start leaves the current one rendering.
	out.failStart.Store(true)

	var ierr *InitError
	require.ErrorAs(t, e.Initialize(context.Background()), &ierr)
	assert.Equal(t, "start stream", ierr.Op)

	before := src.reads.Load()
	assert.Eventually(t, func() bool { return src.reads.Load() > before }, time.Second, time.Millisecond)

	e.Dispose()

	assert.Equal(t, int32(21), out.opened.Load())
	assert.Equal(t, int32(1), src.peak.Load())
}

func TestStageBudgetDegradesToBypass(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	e := newRoutedEngine(t, WithMaxBands(4), WithLogger(logger), WithRampTime(0))

	assert.True(t, e.Degraded())
	assert.Equal(t, []string{"source->output"}, e.Connections())
	assert.Zero(t, e.StageCount(ChannelUnified))
	assert.Contains(t, logs.String(), "stage budget exceeded")
	assert.False(t, e.FrequencyResponse(50).Exact())

	// audio still flows, unfiltered
	in := testutil.DeterministicNoise(11, 0.5, 256)
	left := append([]float64(nil), in...)
	right := append([]float64(nil), in...)
	e.Process(left, right)
	testutil.RequireSliceNearlyEqual(t, left, in, 0)

	// a band set within budget recovers
	require.NoError(t, e.SetUnifiedBands(DefaultBands()[:3]))
	assert.False(t, e.Degraded())
	assert.Equal(t, 3, e.StageCount(ChannelUnified))
	assert.True(t, e.FrequencyResponse(50).Exact())
}

func TestNonFiniteStageDegrades(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	e := newRoutedEngine(t, WithLogger(logger))
	require.NoError(t, e.SetSplitEarMode(true))

	bad := DefaultBands()
	bad[3].Gain = 1e6
	require.NoError(t, e.SetRightEarBands(bad[:8]))

	assert.True(t, e.Degraded())
	assert.Equal(t, StateRouted, e.State())
	assert.Contains(t, logs.String(), "non-finite")
	assert.Contains(t, logs.String(), "eq disconnect failed")
	assert.Positive(t, e.Stats().DisconnectWarnings)
}

func TestBypassFailureMakesEngineUnusable(t *testing.T) {
	e := New()
	e.router.connectHook = func(from, to node) error {
		return errors.New("graph refused")
	}

	err := e.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrUnusable)
	assert.Equal(t, StateUnusable, e.State())

	assert.ErrorIs(t, e.SetBalance(0.1), ErrUnusable)
	assert.ErrorIs(t, e.SetSplitEarMode(true), ErrUnusable)
	assert.ErrorIs(t, e.Initialize(context.Background()), ErrUnusable)
	assert.Equal(t, 0.5, e.Balance())

	assert.Equal(t, 200, e.FrequencyResponse(200).Len())

	e.Dispose()
	assert.Equal(t, StateDisposed, e.State())
}

func TestPartialConnectFailureFallsBack(t *testing.T) {
	e := New()
	e.router.connectHook = func(from, to node) error {
		if to == mergerNode {
			return errors.New("merger busy")
		}

		return nil
	}

	require.NoError(t, e.Initialize(context.Background()))
	assert.True(t, e.Degraded())
	assert.Equal(t, []string{"source->output"}, e.Connections())

	e.router.connectHook = nil
	require.NoError(t, e.SetBalance(0.4))
	assert.False(t, e.Degraded())
	e.Dispose()
}

func TestDisposeIdempotent(t *testing.T) {
	out := &recordingOutput{}
	e := New(WithOutput(out))
	require.NoError(t, e.Initialize(context.Background()))

	e.Dispose()
	e.Dispose()

	assert.Equal(t, StateDisposed, e.State())
	assert.True(t, out.streams[0].Closed())
	assert.Empty(t, e.Connections())

	assert.NoError(t, e.SetBalance(0))
	assert.Equal(t, 0.5, e.Balance())
	assert.ErrorIs(t, e.Initialize(context.Background()), ErrDisposed)
	assert.Equal(t, 10, e.FrequencyResponse(10).Len())
}

func TestDragBandDebounces(t *testing.T) {
	e := newRoutedEngine(t, WithDebounce(15*time.Millisecond))
	mutations := e.Stats().Mutations

	for g := 1.0; g <= 3; g++ {
		e.DragBand(ChannelUnified, 0, Band{ID: "band-1", Frequency: 63, Gain: g, Q: math.Sqrt2})
	}

	assert.Equal(t, 1, e.PendingDrags())
	assert.Zero(t, e.UnifiedBands()[0].Gain)

	require.Eventually(t, func() bool {
		return e.Stats().Mutations == mutations+1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 3.0, e.UnifiedBands()[0].Gain)
	assert.Zero(t, e.PendingDrags())
}

func TestDragBandCancelAndDispose(t *testing.T) {
	e := New(WithDebounce(10 * time.Millisecond))

	task := e.DragBand(ChannelLeft, 2, Band{Frequency: 300, Gain: 5, Q: 1})
	assert.True(t, task.Cancel())

	e.DragBand(ChannelLeft, 3, Band{Frequency: 600, Gain: 5, Q: 1})
	e.Dispose()
	assert.Zero(t, e.PendingDrags())

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, e.LeftEarBands()[2].Gain)
	assert.Zero(t, e.LeftEarBands()[3].Gain)
}

func TestConcurrentMutationsSerialize(t *testing.T) {
	e := newRoutedEngine(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			split := i%2 == 0
			assert.NoError(t, e.SetSplitEarMode(split))
			assert.NoError(t, e.SetBalance(float64(i)/16))
			_ = e.FrequencyResponse(64)
		}(i)
	}

	left, right := make([]float64, 256), make([]float64, 256)
	for i := 0; i < 50; i++ {
		e.Process(left, right)
	}

	wg.Wait()

	// the graph always matches the final model
	switch e.Mode() {
	case ModeUnified:
		assert.Equal(t, 9, e.StageCount(ChannelUnified))
	case ModeSplitEar:
		assert.Equal(t, 9, e.StageCount(ChannelLeft))
		assert.Equal(t, 9, e.StageCount(ChannelRight))
	}
}

func TestApproximationError(t *testing.T) {
	e := New()
	assert.Zero(t, e.ApproximationError(200))

	require.NoError(t, e.SetUnifiedBands(boosted(1000, 6)))
	d := e.ApproximationError(200)
	assert.Greater(t, d, 0.0)
	assert.Less(t, d, 1.0)
}

func TestUnknownChannelPanics(t *testing.T) {
	e := New()
	assert.Panics(t, func() { _ = e.Bands(Channel(7)) })
	assert.Panics(t, func() { _ = Mode(9).String() })
}
