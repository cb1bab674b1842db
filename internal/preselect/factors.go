// Package preselect scores eligible assets by factor and returns a ranked
// top-K candidate set for the membership policy.
package preselect

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"folio/internal/domain"
)

// Factor names. These also key the statistics cache.
const (
	FactorMomentum      = "momentum"
	FactorLowVolatility = "low_volatility"
)

// Preselection methods.
const (
	MethodMomentum      = "momentum"
	MethodLowVolatility = "low_volatility"
	MethodCombined      = "combined"
)

// momentumScore computes the cumulative return over the lookback window
// ending skip periods before date. The skip window excludes the most recent
// periods to avoid short-term reversal contamination. Returns NaN when the
// window holds fewer than minPeriods valid observations.
func momentumScore(ds *domain.Dataset, asset string, date time.Time, lookback, skip, minPeriods int) float64 {
	prices := ds.PricesEnding(asset, date, lookback+1, skip)
	if len(prices) < 2 || len(prices) < minPeriods {
		return math.NaN()
	}
	first := prices[0]
	last := prices[len(prices)-1]
	if first <= 0 {
		return math.NaN()
	}
	return last/first - 1
}

// lowVolatilityScore computes the inverse of the trailing return standard
// deviation over the lookback window ending at date. Higher is better (less
// volatile). Returns NaN when the window holds fewer than minPeriods valid
// observations or the series is degenerate.
func lowVolatilityScore(ds *domain.Dataset, asset string, date time.Time, lookback, minPeriods int) float64 {
	prices := ds.PricesEnding(asset, date, lookback+1, 0)
	if len(prices) < 3 || len(prices) < minPeriods {
		return math.NaN()
	}
	rets := domain.Returns(prices)
	sd := stat.StdDev(rets, nil)
	if sd <= 0 || math.IsNaN(sd) {
		return math.NaN()
	}
	return 1 / sd
}

// zscores standardizes values in place to zero mean and unit variance,
// skipping NaN entries. A zero-variance input maps to all zeros.
func zscores(values []float64) []float64 {
	var valid []float64
	for _, v := range values {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	out := make([]float64, len(values))
	if len(valid) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	mean, sd := stat.MeanStdDev(valid, nil)
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			out[i] = math.NaN()
		case sd <= 0 || math.IsNaN(sd):
			out[i] = 0
		default:
			out[i] = (v - mean) / sd
		}
	}
	return out
}
