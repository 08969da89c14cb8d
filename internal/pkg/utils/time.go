package utils

import (
	"math"
	"time"
)

// NowUTC returns current timestamp in UTC timezone.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// Round rounds value half away from zero to the given number of decimals.
func Round(value float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(value*scale) / scale
}

// MaxTime returns the later of a and b.
func MaxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
