// Package util contains misc internal utilities.
package util

import (
	"math"
	"time"
)

// Limiter describes a closed interval [Min, Max] that a command must lie in.
// A zero Limiter (Min == Max == 0) imposes no limit.
type Limiter struct {
	Min float64 `yaml:"Min" json:"min" koanf:"Min"`
	Max float64 `yaml:"Max" json:"max" koanf:"Max"`
}

// Check returns true if the value is inside the limits
func (l Limiter) Check(f float64) bool {
	if l.Min == 0 && l.Max == 0 {
		return true
	}
	return f >= l.Min && f <= l.Max
}

// Clamp limits a value to the interval [low, high]
func Clamp(input, low, high float64) float64 {
	if input < low {
		return low
	}
	if input > high {
		return high
	}
	return input
}

// SecsToDuration converts a (possibly fractional) number of seconds to a
// time.Duration, rounding to the nearest nanosecond
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * 1e9))
}

// Finite returns true if none of the values are NaN or +/-Inf
func Finite(fs ...float64) bool {
	for _, f := range fs {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
