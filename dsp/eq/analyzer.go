package eq

import (
	"math"

	"github.com/cwbudde/algo-eqgraph/dsp/filter/biquad"
	"github.com/cwbudde/algo-eqgraph/dsp/filter/design"
	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultResponsePoints is used when FrequencyResponse gets n <= 0.
	DefaultResponsePoints = 200

	minAxisFrequency = 20
	maxAxisFrequency = 20000
)

// Response is an immutable magnitude-response snapshot. All three series
// have the same length.
type Response struct {
	frequencies []float32
	left        []float32
	right       []float32
	exact       bool
}

// Len returns the number of points.
func (r *Response) Len() int { return len(r.frequencies) }

// Exact reports whether the curve was computed from live stages.
func (r *Response) Exact() bool { return r.exact }

// Frequency returns the i-th axis frequency in Hz.
func (r *Response) Frequency(i int) float32 { return r.frequencies[i] }

// LeftDB returns the left-ear magnitude at point i.
func (r *Response) LeftDB(i int) float32 { return r.left[i] }

// RightDB returns the right-ear magnitude at point i.
func (r *Response) RightDB(i int) float32 { return r.right[i] }

// Frequencies returns a copy of the frequency axis.
func (r *Response) Frequencies() []float32 { return append([]float32(nil), r.frequencies...) }

// LeftMagnitudesDB returns a copy of the left-ear curve.
func (r *Response) LeftMagnitudesDB() []float32 { return append([]float32(nil), r.left...) }

// RightMagnitudesDB returns a copy of the right-ear curve.
func (r *Response) RightMagnitudesDB() []float32 { return append([]float32(nil), r.right...) }

// FrequencyAxis returns n log-spaced frequencies from 20 Hz to 20 kHz
// inclusive. n == 1 yields {20}; n <= 0 yields nil.
func FrequencyAxis(n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{minAxisFrequency}
	}

	return floats.LogSpan(make([]float64, n), minAxisFrequency, maxAxisFrequency)
}

// exactCurveDB multiplies linear stage magnitudes and converts to dB.
func exactCurveDB(stages []*Stage, sampleRate float64, axis []float64, out []float32) {
	coeffs := make([]biquad.Coefficients, len(stages))
	for i, s := range stages {
		coeffs[i] = s.TargetCoefficients()
	}

	for i, f := range axis {
		magSq := 1.0
		for j := range coeffs {
			magSq *= coeffs[j].MagnitudeSquared(f, sampleRate)
		}

		// 20*log10(|H|) == 10*log10(|H|^2)
		out[i] = float32(10 * math.Log10(magSq))
	}
}

// approxCurveDB sums one log-Gaussian per band. Sigma is set so the bump
// falls to half its dB gain at the band edges of a peaking filter with the
// same Q.
func approxCurveDB(bands []Band, enabled bool, axis []float64, out []float32) {
	for i := range out {
		out[i] = 0
	}

	for _, b := range bands {
		gain := b.EffectiveGain(enabled)
		if gain == 0 || !(b.Frequency > 0) || !(b.Q > 0) {
			continue
		}

		sigma := design.BandwidthOctaves(b.Q) / 2 / math.Sqrt(2*math.Ln2)
		inv := 1 / (2 * sigma * sigma)

		for i, f := range axis {
			d := math.Log2(f / b.Frequency)
			out[i] += float32(gain * approxExp(-d*d*inv))
		}
	}
}

func flatDB(out []float32) {
	for i := range out {
		out[i] = 0
	}
}

func float32Axis(axis []float64) []float32 {
	out := make([]float32, len(axis))
	for i, f := range axis {
		out[i] = float32(f)
	}

	return out
}

// responseCache holds the last computed snapshot. It is invalidated by every
// mutation and recomputed only when invalid or the point count changed.
type responseCache struct {
	resp  *Response
	valid bool
}

func (c *responseCache) invalidate() { c.valid = false }

func (c *responseCache) get(n int) (*Response, bool) {
	if c.valid && c.resp != nil && c.resp.Len() == n {
		return c.resp, true
	}

	return nil, false
}

func (c *responseCache) store(r *Response) {
	c.resp = r
	c.valid = true
}
