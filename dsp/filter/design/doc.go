// Package design provides digital IIR filter coefficient designers.
//
// The functions in this package produce biquad coefficients consumable by
// dsp/filter/biquad for runtime processing. The equalizer only needs the
// RBJ peaking-EQ designer plus the Q/bandwidth conversions that relate a
// band's Q to its width in octaves.
package design
