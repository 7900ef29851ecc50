package eq

import "fmt"

// Mode selects the routing topology.
type Mode int

const (
	// ModeUnified runs one shared cascade before the channel split.
	ModeUnified Mode = iota
	// ModeSplitEar runs an independent cascade per ear.
	ModeSplitEar
)

func (m Mode) String() string {
	switch m {
	case ModeUnified:
		return "unified"
	case ModeSplitEar:
		return "split-ear"
	default:
		panic(fmt.Sprintf("eq: unknown mode %d", int(m)))
	}
}

// Channel selects one of the three owned band sets.
type Channel int

const (
	ChannelUnified Channel = iota
	ChannelLeft
	ChannelRight

	numChannels = 3
)

func (c Channel) String() string {
	switch c {
	case ChannelUnified:
		return "unified"
	case ChannelLeft:
		return "left"
	case ChannelRight:
		return "right"
	default:
		panic(fmt.Sprintf("eq: unknown channel %d", int(c)))
	}
}

func (c Channel) valid() bool {
	return c >= ChannelUnified && c <= ChannelRight
}

// State is the engine lifecycle state.
type State int

const (
	StateUninitialized State = iota
	// StateInitialized has an output stream but no routed graph yet.
	StateInitialized
	StateRouted
	// StateUnusable is terminal: even the bypass connection failed.
	StateUnusable
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRouted:
		return "routed"
	case StateUnusable:
		return "unusable"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
