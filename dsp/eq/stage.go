package eq

import (
	"github.com/cwbudde/algo-eqgraph/dsp/core"
	"github.com/cwbudde/algo-eqgraph/dsp/filter/biquad"
	"github.com/cwbudde/algo-eqgraph/dsp/filter/design"
)

const (
	minStageFrequency = 20.0
	maxStageFraction  = 0.49
	minStageQ         = 0.05
	maxStageQ         = 50.0
)

// Stage is one live peaking filter. It keeps a biquad section per processed
// channel so delay-line state survives coefficient updates during ramps.
type Stage struct {
	sampleRate float64

	freq *param
	gain *param
	q    *param

	sections [2]biquad.Section

	designed bool

	lastF, lastG, lastQ float64
}

func newStage(freq, gain, q, sampleRate float64) *Stage {
	s := &Stage{sampleRate: sampleRate}
	s.freq = newParam(s.sanitizeFrequency(freq), rampExponential, minStageFrequency)
	s.gain = newParam(sanitizeGain(gain), rampLinear, 0)
	s.q = newParam(sanitizeQ(q), rampLinear, 0)
	s.update(0)

	return s
}

func (s *Stage) sanitizeFrequency(f float64) float64 {
	return core.Clamp(f, minStageFrequency, maxStageFraction*s.sampleRate)
}

func sanitizeGain(g float64) float64 {
	if !core.IsFinite(g) {
		return 0
	}

	return g
}

func sanitizeQ(q float64) float64 {
	return core.Clamp(q, minStageQ, maxStageQ)
}

// Params returns frequency, gain and Q at audio time t.
func (s *Stage) Params(t float64) (freq, gainDB, q float64) {
	return s.freq.Value(t), s.gain.Value(t), s.q.Value(t)
}

// Target returns the scheduled destination of every parameter.
func (s *Stage) Target() (freq, gainDB, q float64) {
	return s.freq.Target(), s.gain.Target(), s.q.Target()
}

// Coefficients returns the section coefficients currently in use.
func (s *Stage) Coefficients() biquad.Coefficients {
	return s.sections[0].Coefficients
}

// TargetCoefficients designs the coefficients the stage settles on.
func (s *Stage) TargetCoefficients() biquad.Coefficients {
	f, g, q := s.Target()
	return design.Peak(f, g, q, s.sampleRate)
}

// MagnitudeSquared evaluates the settled response at freqHz.
func (s *Stage) MagnitudeSquared(freqHz float64) float64 {
	c := s.TargetCoefficients()
	return c.MagnitudeSquared(freqHz, s.sampleRate)
}

// update redesigns the sections for the parameter values at t. It returns
// false when the designed coefficients are not finite.
func (s *Stage) update(t float64) bool {
	f, g, q := s.Params(t)
	if s.designed && f == s.lastF && g == s.lastG && q == s.lastQ {
		return true
	}

	c := design.Peak(f, g, q, s.sampleRate)
	if !c.IsFinite() {
		return false
	}

	s.sections[0].SetCoefficients(c)
	s.sections[1].SetCoefficients(c)
	s.lastF, s.lastG, s.lastQ = f, g, q
	s.designed = true

	return true
}

func (s *Stage) process(channel int, buf []float64) {
	s.sections[channel].ProcessBlock(buf)
}

func (s *Stage) reset() {
	s.sections[0].Reset()
	s.sections[1].Reset()
}
