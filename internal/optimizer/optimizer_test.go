package optimizer

import (
	"errors"
	"math"
	"testing"
)

func TestNewFactory(t *testing.T) {
	if _, err := New(MethodEqualWeight); err != nil {
		t.Errorf("New(equal_weight): %v", err)
	}
	if _, err := New(MethodMinVariance); err != nil {
		t.Errorf("New(min_variance): %v", err)
	}
	for _, m := range []string{MethodMIQP, MethodHeuristic, MethodRelaxation} {
		if _, err := New(m); !errors.Is(err, ErrNotImplemented) {
			t.Errorf("New(%s) error = %v, want ErrNotImplemented", m, err)
		}
	}
	if _, err := New("genetic"); err == nil {
		t.Error("New(genetic): expected unknown-method error")
	}
}

func TestEqualWeight(t *testing.T) {
	var eq EqualWeight

	w, err := eq.Optimize([]string{"A", "B", "C"}, nil, Constraints{})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	for asset, got := range w {
		if math.Abs(got-1.0/3) > 1e-12 {
			t.Errorf("weight[%s] = %v, want 1/3", asset, got)
		}
	}

	// Per-asset cap clips below 1/n.
	w, err = eq.Optimize([]string{"A", "B"}, nil, Constraints{MaxWeight: 0.3})
	if err != nil {
		t.Fatalf("Optimize with cap: %v", err)
	}
	for asset, got := range w {
		if got != 0.3 {
			t.Errorf("capped weight[%s] = %v, want 0.3", asset, got)
		}
	}

	if _, err := eq.Optimize(nil, nil, Constraints{}); !errors.Is(err, ErrInfeasible) {
		t.Errorf("empty candidate set error = %v, want ErrInfeasible", err)
	}
}

// alternating builds a zero-mean return series of the given amplitude.
func alternating(amplitude float64, periods int) []float64 {
	out := make([]float64, periods)
	for i := range out {
		if i%2 == 0 {
			out[i] = amplitude
		} else {
			out[i] = -amplitude
		}
	}
	return out
}

func TestMinVarianceFavorsLowVolatility(t *testing.T) {
	var mv MinVariance
	assets := []string{"CALM", "WILD"}
	returns := [][]float64{alternating(0.002, 60), alternating(0.05, 60)}

	w, err := mv.Optimize(assets, returns, Constraints{})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	sum := 0.0
	for asset, v := range w {
		if v < 0 {
			t.Errorf("long-only weight[%s] = %v, want >= 0", asset, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("weights sum to %v, want 1", sum)
	}
	if w["CALM"] <= w["WILD"] {
		t.Errorf("CALM weight %v should exceed WILD weight %v", w["CALM"], w["WILD"])
	}
}

func TestMinVarianceRespectsWeightCap(t *testing.T) {
	var mv MinVariance
	assets := []string{"CALM", "WILD"}
	returns := [][]float64{alternating(0.002, 60), alternating(0.05, 60)}

	w, err := mv.Optimize(assets, returns, Constraints{MaxWeight: 0.6})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	// Normalization after projection may leave a hair of penalty slack.
	for asset, v := range w {
		if v > 0.6+1e-3 {
			t.Errorf("weight[%s] = %v exceeds cap 0.6", asset, v)
		}
	}
}

func TestMinVarianceInfeasibleCap(t *testing.T) {
	var mv MinVariance
	returns := [][]float64{alternating(0.01, 20), alternating(0.02, 20)}

	_, err := mv.Optimize([]string{"A", "B"}, returns, Constraints{MaxWeight: 0.3})
	if !errors.Is(err, ErrInfeasible) {
		t.Errorf("cap 0.3 across 2 assets error = %v, want ErrInfeasible", err)
	}
}

func TestMinVarianceInputValidation(t *testing.T) {
	var mv MinVariance

	if _, err := mv.Optimize(nil, nil, Constraints{}); !errors.Is(err, ErrInfeasible) {
		t.Errorf("empty set error = %v, want ErrInfeasible", err)
	}

	// Misaligned series count.
	if _, err := mv.Optimize([]string{"A", "B"}, [][]float64{alternating(0.01, 10)}, Constraints{}); err == nil {
		t.Error("expected error for series/asset count mismatch")
	}

	// Misaligned series lengths.
	returns := [][]float64{alternating(0.01, 10), alternating(0.01, 9)}
	if _, err := mv.Optimize([]string{"A", "B"}, returns, Constraints{}); err == nil {
		t.Error("expected error for mismatched series lengths")
	}

	// Too few periods.
	returns = [][]float64{{0.01}, {0.02}}
	if _, err := mv.Optimize([]string{"A", "B"}, returns, Constraints{}); err == nil {
		t.Error("expected error for single-period series")
	}
}

func TestMinVarianceSingleAsset(t *testing.T) {
	var mv MinVariance
	w, err := mv.Optimize([]string{"ONLY"}, [][]float64{alternating(0.01, 20)}, Constraints{})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if w["ONLY"] != 1 {
		t.Errorf("single-asset weight = %v, want 1", w["ONLY"])
	}
}
