package utils

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Number is any integer or floating point type.
type Number interface {
	constraints.Integer | constraints.Float
}

// Clamp clamps a value between lo and hi
func Clamp[T Number](value, lo, hi T) T {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// ClampFloat64 clamps a float64 value between min and max
func ClampFloat64(value, min, max float64) float64 {
	return Clamp(value, min, max)
}

// Quantize snaps value onto the grid low + k*step and keeps the result
// inside [low, high]. A non-positive step returns value clamped.
func Quantize[T Number](value, low, high, step T) T {
	if step <= 0 {
		return Clamp(value, low, high)
	}
	k := math.Round(float64(value-low) / float64(step))
	out := low + T(k)*step
	for out > high {
		out -= step
	}
	if out < low {
		out = low
	}
	return out
}

// NormalCDF is the cumulative distribution function of the standard normal distribution
func NormalCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// NormalLogPDF is the log density of N(mean, sigma) at x
func NormalLogPDF(x, mean, sigma float64) float64 {
	z := (x - mean) / sigma
	return -0.5*z*z - math.Log(sigma) - 0.5*math.Log(2*math.Pi)
}

// LogSumExp computes log(sum(exp(xs))) without overflow.
func LogSumExp(xs []float64) float64 {
	if len(xs) == 0 {
		return math.Inf(-1)
	}
	m := math.Inf(-1)
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	if math.IsInf(m, -1) {
		return m
	}
	sum := 0.0
	for _, x := range xs {
		sum += math.Exp(x - m)
	}
	return m + math.Log(sum)
}
