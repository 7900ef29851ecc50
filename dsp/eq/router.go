package eq

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/algo-eqgraph/dsp/core"
	"github.com/cwbudde/algo-vecmath"
)

type nodeKind int

const (
	nodeSource nodeKind = iota
	nodeStage
	nodeSplitter
	nodeLeftGain
	nodeRightGain
	nodeMerger
	nodeOutput
)

// node addresses a graph vertex. Stages are referenced by arena and index.
type node struct {
	kind  nodeKind
	ch    Channel
	index int
}

var (
	sourceNode    = node{kind: nodeSource}
	splitterNode  = node{kind: nodeSplitter}
	leftGainNode  = node{kind: nodeLeftGain}
	rightGainNode = node{kind: nodeRightGain}
	mergerNode    = node{kind: nodeMerger}
	outputNode    = node{kind: nodeOutput}
)

func stageNode(ch Channel, i int) node {
	return node{kind: nodeStage, ch: ch, index: i}
}

func gainNodeFor(ch Channel) node {
	if ch == ChannelLeft {
		return leftGainNode
	}

	return rightGainNode
}

func (n node) String() string {
	switch n.kind {
	case nodeSource:
		return "source"
	case nodeStage:
		return fmt.Sprintf("%s[%d]", n.ch, n.index)
	case nodeSplitter:
		return "splitter"
	case nodeLeftGain:
		return "gain.left"
	case nodeRightGain:
		return "gain.right"
	case nodeMerger:
		return "merger"
	case nodeOutput:
		return "output"
	default:
		return fmt.Sprintf("node(%d)", int(n.kind))
	}
}

type edge struct {
	from, to node
}

// routeTarget is the band model state the graph must converge on.
type routeTarget struct {
	mode       Mode
	eqEnabled  bool
	earEnabled [numChannels]bool
	bands      [numChannels][]Band
	leftGain   float64
	rightGain  float64
}

func (t *routeTarget) enabled(ch Channel) bool {
	return t.eqEnabled && t.earEnabled[ch]
}

// router owns the live topology: stage arenas, auxiliary nodes and edges.
type router struct {
	sampleRate float64
	maxStages  int
	auto       automator
	log        *slog.Logger

	// connectHook, when set, can fail individual connections.
	connectHook func(from, to node) error

	routed   bool
	degraded bool
	mode     Mode
	bypassed bool

	arenas              [numChannels][]*Stage
	splitter, merger    bool
	leftGain, rightGain *param
	edges               []edge

	rebuilds           int
	disconnectWarnings int
}

func (r *router) needsRebuild(t *routeTarget) bool {
	if !r.routed || r.degraded {
		return true
	}

	if r.mode != t.mode {
		return true
	}

	if !r.splitter || !r.merger || r.leftGain == nil || r.rightGain == nil {
		return true
	}

	switch t.mode {
	case ModeUnified:
		if r.bypassed != !t.eqEnabled {
			return true
		}

		return !r.bypassed && len(r.arenas[ChannelUnified]) != len(t.bands[ChannelUnified])
	case ModeSplitEar:
		return len(r.arenas[ChannelLeft]) != len(t.bands[ChannelLeft]) ||
			len(r.arenas[ChannelRight]) != len(t.bands[ChannelRight])
	default:
		panic(fmt.Sprintf("eq: unknown mode %d", int(t.mode)))
	}
}

// reconcile converges the graph on t, rebuilding only when the topology no
// longer matches. A non-nil error means the engine is unusable.
func (r *router) reconcile(t *routeTarget, now float64) error {
	if r.needsRebuild(t) {
		return r.rebuild(t)
	}

	switch t.mode {
	case ModeUnified:
		if !r.bypassed {
			r.auto.applyBands(t.bands[ChannelUnified], r.arenas[ChannelUnified], t.enabled(ChannelUnified), now)
		}
	case ModeSplitEar:
		r.auto.applyBands(t.bands[ChannelLeft], r.arenas[ChannelLeft], t.enabled(ChannelLeft), now)
		r.auto.applyBands(t.bands[ChannelRight], r.arenas[ChannelRight], t.enabled(ChannelRight), now)
	default:
		panic(fmt.Sprintf("eq: unknown mode %d", int(t.mode)))
	}

	r.auto.applyGains(r.leftGain, r.rightGain, t.leftGain, t.rightGain, now)

	return nil
}

func (r *router) rebuild(t *routeTarget) error {
	r.rebuilds++
	r.teardown()

	err := r.build(t)
	if err == nil {
		r.log.Debug("eq graph rebuilt",
			"mode", t.mode.String(),
			"eq_enabled", t.eqEnabled,
			"edges", len(r.edges),
			"rebuilds", r.rebuilds)

		return nil
	}

	rerr := &RoutingError{Mode: t.mode, Err: err}
	r.log.Warn("eq routing failed, bypassing", "err", rerr)

	r.teardown()

	if berr := r.connect(sourceNode, outputNode); berr != nil {
		r.edges = nil
		r.log.Error("eq bypass failed", "err", berr)

		return fmt.Errorf("%w: bypass: %w", ErrUnusable, berr)
	}

	r.routed = true
	r.degraded = true
	r.mode = t.mode

	return nil
}

func (r *router) build(t *routeTarget) error {
	r.splitter, r.merger = true, true
	r.leftGain = newParam(t.leftGain, rampLinear, 0)
	r.rightGain = newParam(t.rightGain, rampLinear, 0)

	switch t.mode {
	case ModeUnified:
		prev := sourceNode

		if t.eqEnabled {
			last, err := r.buildChain(ChannelUnified, t, prev)
			if err != nil {
				return err
			}

			prev = last
		} else {
			r.bypassed = true
		}

		if err := r.connect(prev, splitterNode); err != nil {
			return err
		}

		if err := r.connect(splitterNode, leftGainNode); err != nil {
			return err
		}

		if err := r.connect(splitterNode, rightGainNode); err != nil {
			return err
		}
	case ModeSplitEar:
		if err := r.connect(sourceNode, splitterNode); err != nil {
			return err
		}

		for _, ch := range [...]Channel{ChannelLeft, ChannelRight} {
			last, err := r.buildChain(ch, t, splitterNode)
			if err != nil {
				return err
			}

			if err := r.connect(last, gainNodeFor(ch)); err != nil {
				return err
			}
		}
	default:
		panic(fmt.Sprintf("eq: unknown mode %d", int(t.mode)))
	}

	for _, e := range [...]edge{
		{leftGainNode, mergerNode},
		{rightGainNode, mergerNode},
		{mergerNode, outputNode},
	} {
		if err := r.connect(e.from, e.to); err != nil {
			return err
		}
	}

	r.mode = t.mode
	r.routed = true

	return nil
}

// buildChain builds ch's cascade, chains it after prev and returns the last node.
func (r *router) buildChain(ch Channel, t *routeTarget, prev node) (node, error) {
	stages, err := buildChecked(ch, t.bands[ch], t.enabled(ch), r.sampleRate, r.maxStages)
	if err != nil {
		return prev, err
	}

	r.arenas[ch] = stages

	for i := range stages {
		next := stageNode(ch, i)
		if err := r.connect(prev, next); err != nil {
			return prev, err
		}

		prev = next
	}

	return prev, nil
}

func (r *router) connect(from, to node) error {
	if r.connectHook != nil {
		if err := r.connectHook(from, to); err != nil {
			return fmt.Errorf("connect %s -> %s: %w", from, to, err)
		}
	}

	r.edges = append(r.edges, edge{from: from, to: to})

	return nil
}

// disconnect removes every outgoing edge of n.
func (r *router) disconnect(n node) error {
	kept := r.edges[:0]
	removed := 0

	for _, e := range r.edges {
		if e.from == n {
			removed++
			continue
		}

		kept = append(kept, e)
	}

	r.edges = kept

	if removed == 0 {
		return ErrNotConnected
	}

	return nil
}

// teardown disconnects every existing node best-effort and clears the arenas.
func (r *router) teardown() {
	var nodes []node

	if r.routed {
		nodes = append(nodes, sourceNode)
	}

	for ch := range r.arenas {
		for i := range r.arenas[ch] {
			nodes = append(nodes, stageNode(Channel(ch), i))
		}
	}

	if r.splitter {
		nodes = append(nodes, splitterNode)
	}

	if r.leftGain != nil {
		nodes = append(nodes, leftGainNode)
	}

	if r.rightGain != nil {
		nodes = append(nodes, rightGainNode)
	}

	if r.merger {
		nodes = append(nodes, mergerNode)
	}

	for _, n := range nodes {
		if err := r.disconnect(n); err != nil {
			r.disconnectWarnings++
			r.log.Warn("eq disconnect failed", "warning", &DisconnectWarning{Node: n.String(), Err: err})
		}
	}

	for ch := range r.arenas {
		r.arenas[ch] = nil
	}

	r.edges = nil
	r.splitter, r.merger = false, false
	r.leftGain, r.rightGain = nil, nil
	r.routed, r.degraded, r.bypassed = false, false, false
}

func (r *router) stages(ch Channel) []*Stage {
	return r.arenas[ch]
}

func (r *router) connections() []string {
	out := make([]string, len(r.edges))
	for i, e := range r.edges {
		out[i] = e.from.String() + "->" + e.to.String()
	}

	return out
}

// process filters one control block in place. t0 and t1 bound the block on
// the audio clock; scratch must hold at least len(left) samples.
func (r *router) process(left, right []float64, t0, t1 float64, scratch []float64) {
	if !r.routed || r.degraded {
		return
	}

	switch r.mode {
	case ModeUnified:
		for _, s := range r.arenas[ChannelUnified] {
			s.update(t0)
			s.process(0, left)
			s.process(1, right)
		}
	case ModeSplitEar:
		for _, s := range r.arenas[ChannelLeft] {
			s.update(t0)
			s.process(0, left)
		}

		for _, s := range r.arenas[ChannelRight] {
			s.update(t0)
			s.process(0, right)
		}
	default:
		panic(fmt.Sprintf("eq: unknown mode %d", int(r.mode)))
	}

	applyGain(r.leftGain, left, t0, t1, scratch)
	applyGain(r.rightGain, right, t0, t1, scratch)
}

// applyGain multiplies buf by a linear gain interpolated across the block.
func applyGain(p *param, buf []float64, t0, t1 float64, scratch []float64) {
	n := len(buf)
	if n == 0 {
		return
	}

	g0, g1 := p.Value(t0), p.Value(t1)
	if g0 == 1 && g1 == 1 {
		return
	}

	gains := core.EnsureLen(scratch, n)
	if g0 == g1 {
		core.Fill(gains, g0)
	} else {
		step := (g1 - g0) / float64(n)
		for i := range gains {
			gains[i] = g0 + step*float64(i)
		}
	}

	vecmath.MulBlockInPlace(buf, gains)
}
