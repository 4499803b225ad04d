package util_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/nasa-jpl/cryosweep/util"
)

func ExampleClamp() {
	fmt.Println(util.Clamp(400, 0, 325))
	// Output: 325
}

func ExampleLimiter_Check() {
	l := util.Limiter{Min: 4, Max: 300}
	fmt.Println(l.Check(1.5), l.Check(77))
	// Output: false true
}

func TestClampHigh(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = 20.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != high {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestClampLow(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = -1.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != low {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestZeroLimiterAllowsAnything(t *testing.T) {
	l := util.Limiter{}
	for _, f := range []float64{-1e9, 0, 1e9} {
		if !l.Check(f) {
			t.Errorf("zero limiter rejected %f", f)
		}
	}
}

func TestLimiterEdgesInclusive(t *testing.T) {
	l := util.Limiter{Min: 10, Max: 15}
	if !l.Check(10) || !l.Check(15) {
		t.Error("expected limiter edges to be inclusive")
	}
	if l.Check(15.0001) {
		t.Error("expected value above Max to be rejected")
	}
}

func TestSecsToDuration(t *testing.T) {
	var dur time.Duration = 123456789
	secs := dur.Seconds()
	out := util.SecsToDuration(secs)
	if out != dur {
		t.Errorf("expected SecsToDuration to round trip, output %v != expected %v", out, dur)
	}
	if got := util.SecsToDuration(0.1); got != 100*time.Millisecond {
		t.Errorf("expected 0.1 s to be 100ms, got %v", got)
	}
}

func TestFinite(t *testing.T) {
	if !util.Finite(1, 2, 3) {
		t.Error("expected finite values to pass")
	}
	if util.Finite(1, math.NaN()) {
		t.Error("expected NaN to fail")
	}
	if util.Finite(math.Inf(-1)) {
		t.Error("expected -Inf to fail")
	}
}
