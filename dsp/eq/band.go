package eq

import (
	"fmt"
	"math"
)

// Band describes one peaking band of the equalizer. Identity is ID; live
// stages bind to bands by position, not by ID.
type Band struct {
	ID        string  `json:"id"`
	Frequency float64 `json:"frequency"`
	Gain      float64 `json:"gain"`
	Q         float64 `json:"q"`
}

// DefaultFrequencies are the centre frequencies of the default band set.
var DefaultFrequencies = [...]float64{63, 125, 250, 500, 1000, 2000, 4000, 8000, 16000}

// DefaultQ is one octave of bandwidth.
const DefaultQ = math.Sqrt2

// DefaultBands returns a fresh flat nine-band set.
func DefaultBands() []Band {
	bands := make([]Band, len(DefaultFrequencies))
	for i, f := range DefaultFrequencies {
		bands[i] = Band{
			ID:        fmt.Sprintf("band-%d", i+1),
			Frequency: f,
			Q:         DefaultQ,
		}
	}

	return bands
}

// EffectiveGain is the gain a live stage applies for this band.
func (b Band) EffectiveGain(enabled bool) float64 {
	if !enabled {
		return 0
	}

	return b.Gain
}

// Validate reports whether the band can be realised by a peaking stage.
func (b Band) Validate() error {
	if !(b.Frequency > 0) || math.IsInf(b.Frequency, 0) {
		return fmt.Errorf("%w: band %q frequency %v", ErrInvalidBand, b.ID, b.Frequency)
	}

	if !(b.Q > 0) || math.IsInf(b.Q, 0) {
		return fmt.Errorf("%w: band %q Q %v", ErrInvalidBand, b.ID, b.Q)
	}

	if math.IsNaN(b.Gain) {
		return fmt.Errorf("%w: band %q gain is NaN", ErrInvalidBand, b.ID)
	}

	return nil
}

func cloneBands(bands []Band) []Band {
	if bands == nil {
		return nil
	}

	out := make([]Band, len(bands))
	copy(out, bands)

	return out
}
