package eq

import "math"

const (
	gainEpsilon      = 0.01
	frequencyEpsilon = 0.1
	qEpsilon         = 0.01
)

// automator is the only writer of live stage parameters. Every change is a
// ramp on the audio clock: linear for gain and Q, exponential for frequency.
type automator struct {
	ramp float64 // seconds
}

// applyBands schedules ramps so stages[i] converges on bands[i]. It returns
// the number of parameter ramps scheduled. Unchanged parameters, measured
// against their scheduled destination, are left alone.
func (a automator) applyBands(bands []Band, stages []*Stage, enabled bool, now float64) int {
	n := min(len(bands), len(stages))
	scheduled := 0

	for i := 0; i < n; i++ {
		b, s := bands[i], stages[i]

		if a.apply(s.freq, s.sanitizeFrequency(b.Frequency), frequencyEpsilon, now) {
			scheduled++
		}

		if a.apply(s.gain, sanitizeGain(b.EffectiveGain(enabled)), gainEpsilon, now) {
			scheduled++
		}

		if a.apply(s.q, sanitizeQ(b.Q), qEpsilon, now) {
			scheduled++
		}
	}

	return scheduled
}

func (a automator) apply(p *param, target, eps, now float64) bool {
	if math.Abs(p.Target()-target) < eps {
		return false
	}

	p.rampTo(target, now, a.ramp)

	return true
}

// applyGains ramps the balance/solo gain nodes.
func (a automator) applyGains(left, right *param, l, r, now float64) {
	a.apply(left, l, 1e-6, now)
	a.apply(right, r, 1e-6, now)
}
