package eq

import "fmt"

// BuildCascade creates one peaking stage per band, in band order. Stage gain
// is the band gain when enabled and 0 dB otherwise. Stages are unconnected;
// an empty band list yields an empty cascade, which callers treat as bypass.
func BuildCascade(bands []Band, enabled bool, sampleRate float64) []*Stage {
	stages := make([]*Stage, len(bands))
	for i, b := range bands {
		stages[i] = newStage(b.Frequency, b.EffectiveGain(enabled), b.Q, sampleRate)
	}

	return stages
}

// buildChecked is BuildCascade with the construction checks the router needs.
func buildChecked(ch Channel, bands []Band, enabled bool, sampleRate float64, maxStages int) ([]*Stage, error) {
	if maxStages > 0 && len(bands) > maxStages {
		return nil, fmt.Errorf("%w: %s has %d bands, limit %d", ErrStageBudget, ch, len(bands), maxStages)
	}

	stages := BuildCascade(bands, enabled, sampleRate)
	for i, s := range stages {
		if !s.designed {
			return nil, fmt.Errorf("%w: %s stage %d", ErrNonFiniteStage, ch, i)
		}
	}

	return stages, nil
}
