//go:build !fastmath

package eq

import "math"

func approxExp(x float64) float64 {
	return math.Exp(x)
}
