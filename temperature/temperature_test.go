package temperature

import (
	"math"
	"testing"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestK2CAtTriplePoint(t *testing.T) {
	c := K2C(273.16)
	if !near(float64(c), 0.01) {
		t.Errorf("expected 273.16 K to be 0.01 C, got %f", c)
	}
}

func TestC2KRoundTrip(t *testing.T) {
	for _, k := range []Kelvin{4.2, 77, 300} {
		got := C2K(K2C(k))
		if !near(float64(got), float64(k)) {
			t.Errorf("expected %f K to round trip, got %f", k, got)
		}
	}
}

func TestF2KBoiling(t *testing.T) {
	got := F2K(212)
	if !near(float64(got), 373.15) {
		t.Errorf("expected 212 F to be 373.15 K, got %f", got)
	}
}

func TestK2FLiquidNitrogen(t *testing.T) {
	got := K2F(77)
	if !near(float64(got), -321.07) {
		t.Errorf("expected 77 K to be -321.07 F, got %f", got)
	}
}
