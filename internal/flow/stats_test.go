package flow

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMean(t *testing.T) {
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %f, want 0", got)
	}
	if got := Mean([]float64{100, 200, 300}); !almostEqual(got, 200) {
		t.Errorf("Mean = %f, want 200", got)
	}
}

func TestVarianceAndStdDev(t *testing.T) {
	// Empty and singleton sets must yield 0, never NaN.
	for _, xs := range [][]float64{nil, {}, {42}} {
		if got := Variance(xs); got != 0 {
			t.Errorf("Variance(%v) = %f, want 0", xs, got)
		}
		if got := StdDev(xs); got != 0 {
			t.Errorf("StdDev(%v) = %f, want 0", xs, got)
		}
	}

	// Population variance of [2, 4, 4, 4, 5, 5, 7, 9] is 4.
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if got := Variance(xs); !almostEqual(got, 4) {
		t.Errorf("Variance = %f, want 4", got)
	}
	if got := StdDev(xs); !almostEqual(got, 2) {
		t.Errorf("StdDev = %f, want 2", got)
	}
}

func TestStdDevNeverNaN(t *testing.T) {
	if got := StdDev([]float64{5, 5, 5}); math.IsNaN(got) || got != 0 {
		t.Errorf("StdDev of identical values = %f, want 0", got)
	}
}
