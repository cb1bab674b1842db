package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"folio/internal/domain"
)

// tradingDaysPerYear is the annualization base for daily-data backtests.
const tradingDaysPerYear = 252

// Metrics summarizes a backtest run.
type Metrics struct {
	TotalReturn          float64
	AnnualizedReturn     float64
	AnnualizedVolatility float64
	Sharpe               float64
	MaxDrawdown          float64
	AvgTurnover          float64
	Rebalances           int
	DegradedRebalances   int
	TotalCost            float64
}

// ComputeMetrics derives summary metrics from the equity curve and the event
// stream. rebalanceEvery is the cadence in trading days, used to annualize
// the per-period return series. An empty or single-point curve yields zeroed
// ratio metrics rather than NaN.
func ComputeMetrics(initialCapital float64, curve []float64, events []domain.RebalanceEvent, rebalanceEvery int, totalCost float64) Metrics {
	m := Metrics{
		Rebalances: len(events),
		TotalCost:  totalCost,
	}

	turnovers := make([]float64, 0, len(events))
	for _, ev := range events {
		turnovers = append(turnovers, ev.Turnover)
		if ev.DegradedEligibility || ev.DegradedOptimization {
			m.DegradedRebalances++
		}
	}
	if len(turnovers) > 0 {
		m.AvgTurnover = stat.Mean(turnovers, nil)
	}

	if len(curve) == 0 || initialCapital <= 0 {
		return m
	}
	final := curve[len(curve)-1]
	m.TotalReturn = final/initialCapital - 1
	m.MaxDrawdown = maxDrawdown(curve)

	rets := domain.Returns(curve)
	if len(rets) < 2 {
		return m
	}
	periodsPerYear := float64(tradingDaysPerYear) / float64(rebalanceEvery)
	mean, sd := stat.MeanStdDev(rets, nil)
	m.AnnualizedReturn = mean * periodsPerYear
	m.AnnualizedVolatility = sd * math.Sqrt(periodsPerYear)
	if sd > 0 {
		m.Sharpe = mean / sd * math.Sqrt(periodsPerYear)
	}
	return m
}

// maxDrawdown returns the largest peak-to-trough decline of the curve as a
// positive fraction.
func maxDrawdown(curve []float64) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
