//go:build fastmath

package eq

import "github.com/meko-christian/algo-approx"

// approxExp trades accuracy for speed when drawing approximate curves.
func approxExp(x float64) float64 {
	return approx.FastExp(x)
}
