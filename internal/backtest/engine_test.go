package backtest

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"folio/internal/config"
	"folio/internal/domain"
	"folio/internal/optimizer"
)

func day(offset int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func series(asset string, count int, fn func(i int) float64) []domain.Observation {
	obs := make([]domain.Observation, 0, count)
	for i := 0; i < count; i++ {
		obs = append(obs, domain.Observation{Asset: asset, Date: day(i), Price: fn(i)})
	}
	return obs
}

// trendingDataset builds three assets with momentum ordered A > B > C.
func trendingDataset(days int) *domain.Dataset {
	obs := series("A", days, func(i int) float64 { return 100 + 3*float64(i) })
	obs = append(obs, series("B", days, func(i int) float64 { return 100 + 2*float64(i) })...)
	obs = append(obs, series("C", days, func(i int) float64 { return 100 + 1*float64(i) })...)
	return domain.NewDataset(obs)
}

func testConfig() config.BacktestConfig {
	return config.BacktestConfig{
		Universe:       "us",
		StartDate:      "2024-04-01",
		EndDate:        "2024-08-01",
		InitialCapital: 100_000,
		RebalanceEvery: 5,
		Eligibility: config.EligibilityConfig{
			MinHistoryDays:  30,
			MinPriceRows:    20,
			LookforwardDays: 30,
		},
		Preselection: config.PreselectionConfig{
			Method:     "momentum",
			TopK:       2,
			Lookback:   20,
			MinPeriods: 10,
		},
		Optimizer:    config.OptimizerConfig{Method: "equal_weight", MaxWeight: 1.0},
		CacheSize:    256,
		ScoreWorkers: 2,
	}
}

func newTestEngine(t *testing.T, cfg config.BacktestConfig, ds *domain.Dataset) *Engine {
	t.Helper()
	e, err := New(cfg, ds, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestRunSelectsTopMomentumAssets(t *testing.T) {
	e := newTestEngine(t, testConfig(), trendingDataset(250))

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Events) == 0 {
		t.Fatal("no rebalance events emitted")
	}
	if len(result.Equity) != len(result.Events) {
		t.Errorf("equity curve has %d points for %d events", len(result.Equity), len(result.Events))
	}

	first := result.Events[0]
	if len(first.HoldingsBefore) != 0 {
		t.Errorf("first event HoldingsBefore = %v, want empty", first.HoldingsBefore)
	}
	wantAfter := []string{"A", "B"}
	if len(first.HoldingsAfter) != 2 || first.HoldingsAfter[0] != "A" || first.HoldingsAfter[1] != "B" {
		t.Errorf("first event HoldingsAfter = %v, want %v", first.HoldingsAfter, wantAfter)
	}
	for asset, w := range first.Weights {
		if w != 0.5 {
			t.Errorf("equal weight for %s = %v, want 0.5", asset, w)
		}
	}

	// The ranking never changes, so the holding set is stable and later
	// rebalances trade nothing.
	last := result.Events[len(result.Events)-1]
	if len(last.Added) != 0 || len(last.Removed) != 0 {
		t.Errorf("stable ranking still produced adds=%v removes=%v", last.Added, last.Removed)
	}
	if last.Turnover != 0 {
		t.Errorf("steady-state turnover = %v, want 0", last.Turnover)
	}

	if result.Final.Size() != 2 {
		t.Errorf("final portfolio size = %d, want 2", result.Final.Size())
	}
}

func TestRunAgesHoldingsIncrementally(t *testing.T) {
	e := newTestEngine(t, testConfig(), trendingDataset(250))

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// A and B enter on the first rebalance with zero periods held, then age
	// by one on every later tick.
	want := len(result.Events) - 1
	for asset, rec := range result.Final.Holdings {
		if rec.PeriodsHeld != want {
			t.Errorf("%s PeriodsHeld = %d, want %d", asset, rec.PeriodsHeld, want)
		}
	}
}

func TestRunDegradesWhenNothingIsEligible(t *testing.T) {
	cfg := testConfig()
	cfg.Eligibility.MinPriceRows = 10_000

	e := newTestEngine(t, cfg, trendingDataset(250))
	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i, ev := range result.Events {
		if !ev.DegradedEligibility {
			t.Errorf("event %d not marked degraded", i)
		}
		if len(ev.HoldingsAfter) != 0 {
			t.Errorf("event %d holds %v with nothing eligible", i, ev.HoldingsAfter)
		}
	}
	if got := result.Equity[len(result.Equity)-1]; got != cfg.InitialCapital {
		t.Errorf("final equity = %v, want untouched initial capital %v", got, cfg.InitialCapital)
	}
	if result.Metrics.DegradedRebalances != len(result.Events) {
		t.Errorf("DegradedRebalances = %d, want %d", result.Metrics.DegradedRebalances, len(result.Events))
	}
}

func TestRunFallsBackToEqualWeightOnInfeasibility(t *testing.T) {
	cfg := testConfig()
	// A 0.3 cap across 2 assets cannot reach full investment, so
	// min-variance reports infeasibility every tick.
	cfg.Optimizer = config.OptimizerConfig{Method: "min_variance", MaxWeight: 0.3}

	e := newTestEngine(t, cfg, trendingDataset(250))
	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	first := result.Events[0]
	if !first.DegradedOptimization {
		t.Error("event not marked optimization-degraded")
	}
	for asset, w := range first.Weights {
		if w != 0.3 {
			t.Errorf("fallback weight for %s = %v, want capped 0.3", asset, w)
		}
	}
}

func TestRunChargesTradingCosts(t *testing.T) {
	cfg := testConfig()
	cfg.Execution.CostBps = 10

	e := newTestEngine(t, cfg, trendingDataset(250))
	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Metrics.TotalCost <= 0 {
		t.Errorf("TotalCost = %v, want > 0 with cost_bps set", result.Metrics.TotalCost)
	}

	cfg.Execution.CostBps = 0
	free, err := newTestEngine(t, cfg, trendingDataset(250)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run (free): %v", err)
	}
	costly := result.Equity[len(result.Equity)-1]
	ideal := free.Equity[len(free.Equity)-1]
	if costly >= ideal {
		t.Errorf("final equity with costs %v should trail cost-free %v", costly, ideal)
	}
}

func TestNewRejectsUnimplementedOptimizer(t *testing.T) {
	cfg := testConfig()
	cfg.Optimizer.Method = "miqp"
	if _, err := New(cfg, trendingDataset(50), slog.New(slog.DiscardHandler)); !errors.Is(err, optimizer.ErrNotImplemented) {
		t.Errorf("New with miqp error = %v, want ErrNotImplemented", err)
	}
}

func TestRunRejectsBadDateRange(t *testing.T) {
	cfg := testConfig()
	cfg.StartDate = "04/01/2024"
	e := newTestEngine(t, cfg, trendingDataset(250))
	if _, err := e.Run(context.Background()); err == nil {
		t.Error("expected error for malformed start_date")
	}

	cfg = testConfig()
	cfg.StartDate = "2030-01-01"
	cfg.EndDate = "2030-06-01"
	e = newTestEngine(t, cfg, trendingDataset(250))
	if _, err := e.Run(context.Background()); err == nil {
		t.Error("expected error for a range with no trading dates")
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newTestEngine(t, testConfig(), trendingDataset(250))
	if _, err := e.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}

func TestValidateWeights(t *testing.T) {
	assets := []string{"A", "B"}

	if err := validateWeights(map[string]float64{"A": 0.5, "B": 0.5}, assets, false); err != nil {
		t.Errorf("valid weights rejected: %v", err)
	}
	if err := validateWeights(map[string]float64{"A": 0.8, "B": 0.5}, assets, false); err == nil {
		t.Error("sum > 1 accepted")
	}
	if err := validateWeights(map[string]float64{"A": -0.1, "B": 0.5}, assets, false); err == nil {
		t.Error("negative weight accepted without short selling")
	}
	if err := validateWeights(map[string]float64{"A": -0.1, "B": 0.5}, assets, true); err != nil {
		t.Errorf("short weight rejected with short selling enabled: %v", err)
	}
	if err := validateWeights(map[string]float64{"A": 0.5}, assets, false); err == nil {
		t.Error("missing weight accepted")
	}
}
