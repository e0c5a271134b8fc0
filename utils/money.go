package utils

import "math"

// Round2 rounds a monetary amount to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ToCents converts a monetary amount to integer minor currency units.
func ToCents(v float64) int64 {
	return int64(math.Round(v * 100))
}
