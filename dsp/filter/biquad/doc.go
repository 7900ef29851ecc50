// Package biquad provides biquad (second-order IIR) filter runtime primitives.
//
// A [Section] implements Direct Form II Transposed processing for a single
// second-order section defined by [Coefficients]. The equalizer engine keeps
// one Section per processed channel for every peaking stage and swaps
// coefficients in place while parameters ramp.
//
// This package provides the processing runtime and closed-form response
// evaluation only. Coefficient design lives in dsp/filter/design.
package biquad
