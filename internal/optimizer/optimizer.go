// Package optimizer defines the weight-allocation boundary of the backtest
// loop. The loop hands an optimizer the surviving candidate set and their
// return histories; the optimizer returns target weights or reports
// infeasibility, which the loop converts into an equal-weight fallback.
package optimizer

import (
	"errors"
	"fmt"
	"math"
)

// Allocation methods accepted by New.
const (
	MethodEqualWeight = "equal_weight"
	MethodMinVariance = "min_variance"

	// Cardinality-constrained selection methods. Recognized but not
	// implemented; New returns ErrNotImplemented for them.
	MethodMIQP       = "miqp"
	MethodHeuristic  = "heuristic"
	MethodRelaxation = "relaxation"
)

// ErrInfeasible reports that no weight vector satisfies the constraints. The
// backtest loop catches it and falls back to equal weighting.
var ErrInfeasible = errors.New("optimizer: constraints infeasible")

// ErrNotImplemented reports a recognized method with no implementation.
var ErrNotImplemented = errors.New("optimizer: method not implemented")

// Constraints bound the weight vector an optimizer may return.
type Constraints struct {
	// MaxWeight caps every individual weight. Values <= 0 or > 1 mean
	// uncapped.
	MaxWeight float64

	// AllowShort permits negative weights. When false the solution is
	// long-only.
	AllowShort bool
}

// maxWeight normalizes the per-asset cap to (0, 1].
func (c Constraints) maxWeight() float64 {
	if c.MaxWeight <= 0 || c.MaxWeight > 1 {
		return 1
	}
	return c.MaxWeight
}

// Optimizer computes target weights for a candidate set. returns[i] is the
// trailing return series of assets[i]; implementations that need aligned
// series must verify alignment themselves. Weights sum to at most 1.
type Optimizer interface {
	Optimize(assets []string, returns [][]float64, c Constraints) (map[string]float64, error)
}

// New constructs the optimizer for a configured method name.
func New(method string) (Optimizer, error) {
	switch method {
	case MethodEqualWeight:
		return EqualWeight{}, nil
	case MethodMinVariance:
		return &MinVariance{}, nil
	case MethodMIQP, MethodHeuristic, MethodRelaxation:
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, method)
	default:
		return nil, fmt.Errorf("optimizer: unknown method %q", method)
	}
}

// EqualWeight assigns 1/n to every asset, clipped to the per-asset cap. It is
// always feasible for a non-empty candidate set and serves as the fallback
// when another optimizer reports infeasibility.
type EqualWeight struct{}

var _ Optimizer = EqualWeight{}

// Optimize implements Optimizer. The return series are ignored.
func (EqualWeight) Optimize(assets []string, _ [][]float64, c Constraints) (map[string]float64, error) {
	n := len(assets)
	if n == 0 {
		return nil, ErrInfeasible
	}
	w := math.Min(1/float64(n), c.maxWeight())
	weights := make(map[string]float64, n)
	for _, asset := range assets {
		weights[asset] = w
	}
	return weights, nil
}
