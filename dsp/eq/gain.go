package eq

import (
	"fmt"

	"github.com/cwbudde/algo-eqgraph/dsp/core"
)

// Solo routes one ear at full gain and mutes the other.
type Solo int

const (
	SoloNone Solo = iota
	SoloLeft
	SoloRight
)

func (s Solo) String() string {
	switch s {
	case SoloNone:
		return "none"
	case SoloLeft:
		return "left"
	case SoloRight:
		return "right"
	default:
		return fmt.Sprintf("Solo(%d)", int(s))
	}
}

// ChannelGains derives the linear left and right gains from balance
// (0 = full left, 0.5 = centre, 1 = full right) and solo. Solo overrides
// balance. Balance outside [0, 1] is clamped.
func ChannelGains(balance float64, solo Solo) (left, right float64) {
	switch solo {
	case SoloLeft:
		return 1, 0
	case SoloRight:
		return 0, 1
	}

	b := core.Clamp(balance, 0, 1)

	return min(1, 2*(1-b)), min(1, 2*b)
}
