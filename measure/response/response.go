package response

import (
	"errors"
	"fmt"
	"math"
	"sort"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-eqgraph/dsp/core"
	"github.com/cwbudde/algo-eqgraph/dsp/eq"
	"github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/floats"
)

// DefaultFFTSize gives about 3 Hz resolution at 48 kHz.
const DefaultFFTSize = 16384

const minFFTSize = 64

var (
	ErrFFTSize    = errors.New("response: FFT size must be a power of two >= 64")
	ErrSampleRate = errors.New("response: sample rate must be positive")
)

// Processor filters a stereo block in place.
type Processor interface {
	Process(left, right []float64)
}

// Measurement holds per-bin magnitudes in dB for bins 0..N/2.
type Measurement struct {
	sampleRate float64
	fftSize    int
	left       []float64
	right      []float64
}

// Measure renders an fftSize-sample impulse through p and returns its
// magnitude spectrum. p should be settled: pending ramps or ringing state
// from earlier audio end up in the measurement.
func Measure(p Processor, sampleRate float64, fftSize int) (*Measurement, error) {
	if !(sampleRate > 0) {
		return nil, ErrSampleRate
	}

	if fftSize < minFFTSize || fftSize&(fftSize-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrFFTSize, fftSize)
	}

	left := make([]float64, fftSize)
	right := make([]float64, fftSize)
	left[0], right[0] = 1, 1

	p.Process(left, right)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("response: fft plan: %w", err)
	}

	m := &Measurement{sampleRate: sampleRate, fftSize: fftSize}

	if m.left, err = spectrumDB(plan.Forward, left); err != nil {
		return nil, err
	}

	if m.right, err = spectrumDB(plan.Forward, right); err != nil {
		return nil, err
	}

	return m, nil
}

func spectrumDB(forward func(dst, src []complex128) error, ir []float64) ([]float64, error) {
	n := len(ir)
	in := make([]complex128, n)

	for i, v := range ir {
		in[i] = complex(v, 0)
	}

	out := make([]complex128, n)
	if err := forward(out, in); err != nil {
		return nil, fmt.Errorf("response: fft: %w", err)
	}

	bins := n/2 + 1
	re := make([]float64, bins)
	im := make([]float64, bins)

	for k := 0; k < bins; k++ {
		re[k], im[k] = real(out[k]), imag(out[k])
	}

	mag := make([]float64, bins)
	vecmath.Magnitude(mag, re, im)

	for k, v := range mag {
		mag[k] = core.LinearToDB(math.Max(v, 1e-12))
	}

	return mag, nil
}

// Bins returns the number of spectrum bins (N/2 + 1).
func (m *Measurement) Bins() int { return len(m.left) }

// BinFrequency returns the centre frequency of bin k in Hz.
func (m *Measurement) BinFrequency(k int) float64 {
	return float64(k) * m.sampleRate / float64(m.fftSize)
}

// LeftDB returns the left-channel magnitude at freq, interpolated linearly
// between neighbouring bins.
func (m *Measurement) LeftDB(freq float64) float64 { return m.at(m.left, freq) }

// RightDB is LeftDB for the right channel.
func (m *Measurement) RightDB(freq float64) float64 { return m.at(m.right, freq) }

func (m *Measurement) at(mag []float64, freq float64) float64 {
	pos := freq * float64(m.fftSize) / m.sampleRate
	if pos <= 0 {
		return mag[0]
	}

	last := len(mag) - 1
	if pos >= float64(last) {
		return mag[last]
	}

	k := int(pos)
	frac := pos - float64(k)

	return mag[k] + (mag[k+1]-mag[k])*frac
}

// Curve samples both channels at freqs.
func (m *Measurement) Curve(freqs []float64) (left, right []float64) {
	left = make([]float64, len(freqs))
	right = make([]float64, len(freqs))

	for i, f := range freqs {
		left[i] = m.LeftDB(f)
		right[i] = m.RightDB(f)
	}

	return left, right
}

// MaxDeviation returns the largest absolute dB difference between r and m
// over r's frequency axis, across both channels.
func MaxDeviation(r *eq.Response, m *Measurement) float64 {
	freqs := widen(r.Frequencies())
	left, right := m.Curve(freqs)

	dl := floats.Distance(widen(r.LeftMagnitudesDB()), left, math.Inf(1))
	dr := floats.Distance(widen(r.RightMagnitudesDB()), right, math.Inf(1))

	return math.Max(dl, dr)
}

// Peak returns the frequency and level of the loudest left-channel bin in
// [lo, hi] Hz.
func (m *Measurement) Peak(lo, hi float64) (freq, db float64) {
	return m.extreme(lo, hi, func(a, b float64) bool { return a > b })
}

// Dip is Peak for the quietest bin.
func (m *Measurement) Dip(lo, hi float64) (freq, db float64) {
	return m.extreme(lo, hi, func(a, b float64) bool { return a < b })
}

func (m *Measurement) extreme(lo, hi float64, better func(a, b float64) bool) (freq, db float64) {
	first := sort.Search(len(m.left), func(k int) bool { return m.BinFrequency(k) >= lo })
	best := -1

	for k := first; k < len(m.left) && m.BinFrequency(k) <= hi; k++ {
		if best < 0 || better(m.left[k], m.left[best]) {
			best = k
		}
	}

	if best < 0 {
		return math.NaN(), math.NaN()
	}

	return m.BinFrequency(best), m.left[best]
}

func widen(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}

	return out
}
