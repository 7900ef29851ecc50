package eq

import "math"

type rampCurve int

const (
	rampLinear rampCurve = iota
	// rampExponential interpolates in log space; both ends are floored.
	rampExponential
)

// param is an automatable value on the audio clock (seconds). It holds at
// most one pending ramp; scheduling another cancels it and holds the value
// reached at the scheduling time.
type param struct {
	curve rampCurve
	floor float64

	from, to   float64
	start, end float64
}

func newParam(value float64, curve rampCurve, floor float64) *param {
	p := &param{curve: curve, floor: floor}
	value = p.clamp(value)
	p.from, p.to = value, value

	return p
}

func (p *param) clamp(v float64) float64 {
	if p.curve == rampExponential && v < p.floor {
		return p.floor
	}

	return v
}

// Value returns the parameter value at audio time t.
func (p *param) Value(t float64) float64 {
	if t >= p.end || p.end <= p.start {
		return p.to
	}

	if t <= p.start {
		return p.from
	}

	frac := (t - p.start) / (p.end - p.start)

	switch p.curve {
	case rampExponential:
		return p.from * math.Pow(p.to/p.from, frac)
	default:
		return p.from + (p.to-p.from)*frac
	}
}

// Target is the scheduled destination value.
func (p *param) Target() float64 {
	return p.to
}

func (p *param) ramping(t float64) bool {
	return t < p.end
}

func (p *param) cancelAndHold(t float64) {
	v := p.Value(t)
	p.from, p.to = v, v
	p.start, p.end = t, t
}

// rampTo starts a ramp from the value held at now to target over dur seconds.
// A non-positive duration jumps immediately.
func (p *param) rampTo(target, now, dur float64) {
	p.cancelAndHold(now)

	target = p.clamp(target)
	if dur <= 0 {
		p.from, p.to = target, target
		return
	}

	p.to = target
	p.end = now + dur
}

// set jumps to v with no ramp.
func (p *param) set(v float64) {
	v = p.clamp(v)
	p.from, p.to = v, v
	p.start, p.end = 0, 0
}
