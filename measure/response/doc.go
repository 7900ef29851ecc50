// Package response measures the magnitude response of a stereo block
// processor by rendering a unit impulse and taking its FFT.
//
// It is used to cross-check analytic curves, such as those returned by
// eq.Engine.FrequencyResponse, against what the processor actually does to
// audio.
//
//	m, err := response.Measure(engine, 48000, response.DefaultFFTSize)
//	dev := response.MaxDeviation(engine.FrequencyResponse(200), m)
package response
