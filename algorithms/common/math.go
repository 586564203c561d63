package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic numeric helpers shared by the analysis stages, built on gonum

// Mean calculates the arithmetic mean of a slice using gonum.
// Returns NaN for empty input so callers cannot mistake "no data" for 0.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	return stat.Mean(data, nil)
}

// MeanSquare returns the mean of the squared samples (signal power)
func MeanSquare(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Dot(data, data) / float64(len(data))
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	return math.Sqrt(MeanSquare(data))
}

// AbsMax returns the largest absolute sample value
func AbsMax(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Max(floats.Max(data), -floats.Min(data))
}

// SubtractMean returns a copy of data with its mean removed
func SubtractMean(data []float64) []float64 {
	out := make([]float64, len(data))
	copy(out, data)
	if len(data) == 0 {
		return out
	}
	floats.AddConst(-stat.Mean(data, nil), out)
	return out
}

// IsFinite reports whether v is neither NaN nor infinite
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Round rounds v to the given number of decimal digits.
// NaN and infinities pass through unchanged.
func Round(v float64, digits int) float64 {
	if !IsFinite(v) {
		return v
	}
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}

// Clamp constrains a value to a range
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// NextPowerOfTwo finds the next power of 2 >= n
func NextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}

	power := 1
	for power < n {
		power <<= 1
	}
	return power
}
