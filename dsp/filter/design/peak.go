package design

import (
	"math"

	"github.com/cwbudde/algo-eqgraph/dsp/filter/biquad"
)

const defaultQ = 1 / math.Sqrt2

// Peak designs an RBJ peaking-EQ biquad at freq (Hz) with gain in dB.
//
// Invalid frequencies (<= 0, >= Nyquist, non-finite) or a non-finite sample
// rate yield the zero Coefficients value; q <= 0 falls back to 1/sqrt(2).
// A gain of 0 dB produces an exact passthrough.
func Peak(freq, gainDB, q, sampleRate float64) biquad.Coefficients {
	w0, ok := normalizedW0(freq, sampleRate)
	if !ok {
		return biquad.Coefficients{}
	}

	if gainDB == 0 {
		return biquad.Identity
	}

	q = normalizedQ(q)
	cw := math.Cos(w0)
	sw := math.Sin(w0)
	alpha := sw / (2 * q)
	a := math.Pow(10, gainDB/40)

	b0 := 1 + alpha*a
	b1 := -2 * cw
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := -2 * cw
	a2 := 1 - alpha/a

	return normalizeBiquad(b0, b1, b2, a0, a1, a2)
}

// BandwidthOctaves returns the bandwidth in octaves, measured between the
// half-gain (dB) points, of an analog peaking prototype with quality q.
func BandwidthOctaves(q float64) float64 {
	q = normalizedQ(q)
	return 2 / math.Ln2 * math.Asinh(1/(2*q))
}

// QFromBandwidth is the inverse of BandwidthOctaves.
func QFromBandwidth(octaves float64) float64 {
	if octaves <= 0 || math.IsNaN(octaves) || math.IsInf(octaves, 0) {
		return defaultQ
	}

	return 1 / (2 * math.Sinh(math.Ln2/2*octaves))
}

func normalizedW0(freq, sampleRate float64) (float64, bool) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return 0, false
	}

	nyquist := sampleRate / 2
	if freq <= 0 || freq >= nyquist || math.IsNaN(freq) || math.IsInf(freq, 0) {
		return 0, false
	}

	return 2 * math.Pi * freq / sampleRate, true
}

func normalizedQ(q float64) float64 {
	if q <= 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		return defaultQ
	}

	return q
}

func normalizeBiquad(b0, b1, b2, a0, a1, a2 float64) biquad.Coefficients {
	if a0 == 0 || math.IsNaN(a0) || math.IsInf(a0, 0) {
		return biquad.Coefficients{}
	}

	return biquad.Coefficients{
		B0: b0 / a0,
		B1: b1 / a0,
		B2: b2 / a0,
		A1: a1 / a0,
		A2: a2 / a0,
	}
}
