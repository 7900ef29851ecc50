package eq

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// Preset is a named band set. The engine copies its bands and never mutates it.
type Preset struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Bands []Band `json:"bands"`
}

// NotchID is the band ID used by NotchPreset for the notch band.
const NotchID = "notch"

// NotchPreset returns the default band set followed by one narrow cut at
// freq. depthDB is the attenuation magnitude; its sign is ignored.
func NotchPreset(freq, depthDB, q float64) Preset {
	if !(q > 0) {
		q = 8
	}

	bands := DefaultBands()
	bands = append(bands, Band{
		ID:        NotchID,
		Frequency: freq,
		Gain:      -math.Abs(depthDB),
		Q:         q,
	})

	return Preset{
		ID:    fmt.Sprintf("notch-%.0f", freq),
		Name:  fmt.Sprintf("Notch %.0f Hz", freq),
		Bands: bands,
	}
}

// DecodePreset reads a JSON preset and validates every band.
func DecodePreset(r io.Reader) (Preset, error) {
	var p Preset

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&p); err != nil {
		return Preset{}, fmt.Errorf("eq: decode preset: %w", err)
	}

	for _, b := range p.Bands {
		if err := b.Validate(); err != nil {
			return Preset{}, fmt.Errorf("eq: preset %q: %w", p.ID, err)
		}
	}

	return p, nil
}

// EncodePreset writes p as indented JSON.
func EncodePreset(w io.Writer, p Preset) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("eq: encode preset: %w", err)
	}

	return nil
}
