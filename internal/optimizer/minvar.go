package optimizer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// MinVariance minimizes portfolio variance w'Σw over the candidate set,
// subject to the weights summing to 1 and the per-asset box constraints. The
// sum constraint is enforced with a quadratic penalty and the box constraints
// by projection, solved with BFGS and a Nelder-Mead retry.
type MinVariance struct{}

var _ Optimizer = (*MinVariance)(nil)

const minVarPenalty = 1000.0

// Optimize implements Optimizer. Return series must be aligned: one series
// per asset, all of equal length >= 2. A per-asset cap too tight to reach
// full investment is reported as ErrInfeasible.
func (*MinVariance) Optimize(assets []string, returns [][]float64, c Constraints) (map[string]float64, error) {
	n := len(assets)
	if n == 0 {
		return nil, ErrInfeasible
	}
	if len(returns) != n {
		return nil, fmt.Errorf("optimizer: %d return series for %d assets", len(returns), n)
	}
	periods := len(returns[0])
	for i, series := range returns {
		if len(series) != periods {
			return nil, fmt.Errorf("optimizer: return series for %s has %d periods, want %d", assets[i], len(series), periods)
		}
	}
	if periods < 2 {
		return nil, fmt.Errorf("optimizer: need at least 2 return periods, got %d", periods)
	}

	hi := c.maxWeight()
	if hi*float64(n) < 1-1e-9 {
		return nil, fmt.Errorf("%w: max weight %v cannot reach full investment across %d assets", ErrInfeasible, hi, n)
	}
	lo := 0.0
	if c.AllowShort {
		lo = -hi
	}

	if n == 1 {
		return map[string]float64{assets[0]: math.Min(1, hi)}, nil
	}

	sigma := covariance(returns, n, periods)

	project := func(x []float64) []float64 {
		proj := make([]float64, len(x))
		for i, v := range x {
			proj[i] = math.Max(lo, math.Min(hi, v))
		}
		return proj
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			w := project(x)
			variance := 0.0
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += w[i]
				for j := 0; j < n; j++ {
					variance += w[i] * w[j] * sigma.At(i, j)
				}
			}
			return variance + minVarPenalty*(sum-1)*(sum-1)
		},
		Grad: func(grad, x []float64) {
			w := project(x)
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += w[i]
			}
			for i := 0; i < n; i++ {
				grad[i] = 2 * minVarPenalty * (sum - 1)
				for j := 0; j < n; j++ {
					grad[i] += 2 * sigma.At(i, j) * w[j]
				}
			}
		},
	}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1 / float64(n)
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInfeasible, err)
		}
		if !converged(result.Status) {
			return nil, fmt.Errorf("%w: solver did not converge (status %v)", ErrInfeasible, result.Status)
		}
	}

	// Project the solution back into the box, then normalize so the weights
	// sum to exactly 1. Normalizing can push a weight past the cap only by
	// the penalty slack, which is negligible at this penalty scale.
	final := project(result.X)
	sum := floats.Sum(final)
	if sum <= 0 {
		return nil, fmt.Errorf("%w: degenerate solution", ErrInfeasible)
	}
	weights := make(map[string]float64, n)
	for i, asset := range assets {
		w := final[i] / sum
		if !c.AllowShort && w < 0 {
			w = 0
		}
		weights[asset] = w
	}
	return weights, nil
}

// covariance builds the sample covariance matrix of the aligned return
// series. Rows of the observation matrix are periods, columns are assets.
func covariance(returns [][]float64, n, periods int) *mat.SymDense {
	samples := mat.NewDense(periods, n, nil)
	for j, series := range returns {
		for i, v := range series {
			samples.Set(i, j, v)
		}
	}
	sigma := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(sigma, samples, nil)
	return sigma
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	default:
		return false
	}
}
