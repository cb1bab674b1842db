// Package backtest drives the rebalancing loop: for each scheduled date it
// runs eligibility filtering, factor preselection, the membership policy, and
// weight optimization, then executes the trades against the cost model and
// records an immutable RebalanceEvent. A failure in any single step degrades
// that date's rebalance instead of aborting the run.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"folio/internal/config"
	"folio/internal/domain"
	"folio/internal/history"
	"folio/internal/membership"
	"folio/internal/optimizer"
	"folio/internal/preselect"
	"folio/internal/statcache"
	"folio/internal/util"
)

const dateLayout = "2006-01-02"

// Result is the full output of one backtest run.
type Result struct {
	Events  []domain.RebalanceEvent
	Final   *domain.PortfolioState
	Equity  []float64
	Metrics Metrics
}

// Engine owns the per-run state of a backtest. It is single-use: build one
// engine per run.
type Engine struct {
	log     *slog.Logger
	cfg     config.BacktestConfig
	dataset *domain.Dataset

	tracker *history.Tracker
	elig    *history.Engine
	pre     *preselect.Engine
	opt     optimizer.Optimizer
	cache   *statcache.Cache
}

// New wires a backtest engine from a validated configuration and a frozen
// dataset. Optimizer construction errors (including unimplemented methods)
// surface here, before any date is processed.
func New(cfg config.BacktestConfig, dataset *domain.Dataset, log *slog.Logger) (*Engine, error) {
	opt, err := optimizer.New(cfg.Optimizer.Method)
	if err != nil {
		return nil, err
	}

	tracker := history.NewTracker(dataset)
	cache := statcache.New(cfg.CacheSize)
	return &Engine{
		log:     log,
		cfg:     cfg,
		dataset: dataset,
		tracker: tracker,
		elig: history.NewEngine(tracker, dataset,
			cfg.Eligibility.MinHistoryDays,
			cfg.Eligibility.MinPriceRows,
			cfg.Eligibility.LookforwardDays),
		pre:   preselect.New(dataset, cache, cfg.ScoreWorkers),
		opt:   opt,
		cache: cache,
	}, nil
}

// Run executes the full rebalance schedule. It returns an error only for
// run-level problems (bad date range, empty schedule, cancelled context);
// per-date failures are downgraded to degraded events.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start, err := time.Parse(dateLayout, e.cfg.StartDate)
	if err != nil {
		return nil, fmt.Errorf("backtest: bad start_date %q: %w", e.cfg.StartDate, err)
	}
	var end time.Time
	if e.cfg.EndDate != "" {
		end, err = time.Parse(dateLayout, e.cfg.EndDate)
		if err != nil {
			return nil, fmt.Errorf("backtest: bad end_date %q: %w", e.cfg.EndDate, err)
		}
	}

	schedule := util.RebalanceSchedule(e.dataset.Dates(), start, end, e.cfg.RebalanceEvery)
	if len(schedule) == 0 {
		return nil, fmt.Errorf("backtest: no rebalance dates in [%s, %s]", e.cfg.StartDate, e.cfg.EndDate)
	}
	e.log.Info("backtest starting",
		"universe", e.cfg.Universe,
		"rebalances", len(schedule),
		"first", schedule[0].Format(dateLayout),
		"last", schedule[len(schedule)-1].Format(dateLayout))

	portfolio := domain.NewPortfolioState()
	book := newBook(e.dataset, e.cfg.InitialCapital, e.cfg.Execution.CostBps)
	events := make([]domain.RebalanceEvent, 0, len(schedule))

	for _, date := range schedule {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev := e.step(date, portfolio, book)
		events = append(events, ev)
	}

	result := &Result{
		Events:  events,
		Final:   portfolio,
		Equity:  book.Curve(),
		Metrics: ComputeMetrics(e.cfg.InitialCapital, book.Curve(), events, e.cfg.RebalanceEvery, book.TotalCost()),
	}
	cs := e.cache.Stats()
	e.log.Info("backtest finished",
		"final_equity", book.Equity(),
		"total_return", result.Metrics.TotalReturn,
		"sharpe", result.Metrics.Sharpe,
		"max_drawdown", result.Metrics.MaxDrawdown,
		"cache_hits", cs.Hits,
		"cache_misses", cs.Misses)
	return result, nil
}

// step processes one rebalance date. It always returns an event; errors from
// individual stages mark the event degraded rather than propagating.
func (e *Engine) step(date time.Time, portfolio *domain.PortfolioState, book *Book) domain.RebalanceEvent {
	book.MarkToMarket(date)

	e.tracker.Advance(date)
	eligible, _ := e.elig.Filter(date)
	if len(eligible) == 0 {
		e.log.Warn("no eligible assets, holding portfolio", "date", date.Format(dateLayout))
		return e.holdEvent(date, portfolio, true)
	}

	ranked, err := e.pre.Select(eligible, date, preselect.Params{
		Method:     e.cfg.Preselection.Method,
		TopK:       e.cfg.Preselection.TopK,
		Lookback:   e.cfg.Preselection.Lookback,
		Skip:       e.cfg.Preselection.Skip,
		MinPeriods: e.cfg.Preselection.MinPeriods,
		Weights:    e.cfg.Preselection.Weights,
	})
	if err != nil {
		e.log.Error("preselection failed, holding portfolio", "date", date.Format(dateLayout), "error", err)
		return e.holdEvent(date, portfolio, true)
	}

	before := portfolio.Assets()
	tr := membership.Apply(portfolio.Holdings, ranked, membership.Config{
		TopK:              e.cfg.Preselection.TopK,
		BufferRank:        e.cfg.Membership.BufferRank,
		MinHoldingPeriods: e.cfg.Membership.MinHoldingPeriods,
		MaxTurnover:       e.cfg.Membership.MaxTurnover,
		MaxNewAssets:      e.cfg.Membership.MaxNewAssets,
		MaxRemovedAssets:  e.cfg.Membership.MaxRemovedAssets,
	}, date)

	weights, degradedOpt := e.allocate(date, tr.Next)

	// Incremental holding-duration bookkeeping: survivors age by one period,
	// fresh entries stay at zero. O(holdings) per step.
	for asset, rec := range tr.Next {
		if _, held := portfolio.Holdings[asset]; held {
			rec.PeriodsHeld++
		}
	}
	portfolio.Holdings = tr.Next
	portfolio.Weights = weights

	turnover, cost := book.Trade(weights)
	if cost > 0 {
		e.log.Debug("trades executed", "date", date.Format(dateLayout), "turnover", turnover, "cost", cost)
	}

	return domain.RebalanceEvent{
		Date:                 date,
		HoldingsBefore:       before,
		HoldingsAfter:        portfolio.Assets(),
		Added:                tr.Added,
		Removed:              tr.Removed,
		Weights:              copyWeights(weights),
		Turnover:             turnover,
		DegradedOptimization: degradedOpt,
		Skips:                tr.Deferred,
	}
}

// allocate asks the configured optimizer for target weights and validates
// them, falling back to equal weighting on infeasibility, any other optimizer
// error, or an invalid weight vector. The second return reports whether the
// fallback was taken.
func (e *Engine) allocate(date time.Time, next map[string]*domain.HoldingRecord) (map[string]float64, bool) {
	assets := make([]string, 0, len(next))
	for a := range next {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	if len(assets) == 0 {
		return map[string]float64{}, false
	}

	constraints := optimizer.Constraints{
		MaxWeight:  e.cfg.Optimizer.MaxWeight,
		AllowShort: e.cfg.Optimizer.AllowShort,
	}

	weights, err := e.opt.Optimize(assets, e.alignedReturns(assets, date), constraints)
	if err == nil {
		err = validateWeights(weights, assets, e.cfg.Optimizer.AllowShort)
	}
	if err == nil {
		return weights, false
	}

	e.log.Warn("optimizer degraded, using equal weights", "date", date.Format(dateLayout), "error", err)
	weights, fbErr := optimizer.EqualWeight{}.Optimize(assets, nil, constraints)
	if fbErr != nil {
		return map[string]float64{}, true
	}
	return weights, true
}

// alignedReturns builds one equal-length trailing return series per asset,
// ending at the given date. Series are truncated from the front to the
// shortest asset's length so covariance estimation sees a rectangular sample.
func (e *Engine) alignedReturns(assets []string, date time.Time) [][]float64 {
	series := make([][]float64, len(assets))
	minLen := math.MaxInt32
	for i, asset := range assets {
		series[i] = domain.Returns(e.dataset.PricesEnding(asset, date, e.cfg.Preselection.Lookback+1, 0))
		if len(series[i]) < minLen {
			minLen = len(series[i])
		}
	}
	for i := range series {
		series[i] = series[i][len(series[i])-minLen:]
	}
	return series
}

// holdEvent records a degraded rebalance that keeps the portfolio unchanged.
// Holdings still age by one period.
func (e *Engine) holdEvent(date time.Time, portfolio *domain.PortfolioState, degradedEligibility bool) domain.RebalanceEvent {
	for _, rec := range portfolio.Holdings {
		rec.PeriodsHeld++
	}
	held := portfolio.Assets()
	return domain.RebalanceEvent{
		Date:                date,
		HoldingsBefore:      held,
		HoldingsAfter:       held,
		Weights:             copyWeights(portfolio.Weights),
		DegradedEligibility: degradedEligibility,
	}
}

// validateWeights enforces the optimizer output contract: weights cover
// exactly the candidate assets, sum to at most 1, and are non-negative unless
// short selling is enabled.
func validateWeights(weights map[string]float64, assets []string, allowShort bool) error {
	sum := 0.0
	for _, asset := range assets {
		w, ok := weights[asset]
		if !ok {
			return fmt.Errorf("backtest: optimizer returned no weight for %s", asset)
		}
		if !allowShort && w < 0 {
			return fmt.Errorf("backtest: negative weight %v for %s with short selling disabled", w, asset)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("backtest: non-finite weight %v for %s", w, asset)
		}
		sum += w
	}
	if len(weights) != len(assets) {
		return fmt.Errorf("backtest: optimizer returned %d weights for %d assets", len(weights), len(assets))
	}
	if sum > 1+1e-9 {
		return fmt.Errorf("backtest: weights sum to %v, want <= 1", sum)
	}
	return nil
}

func copyWeights(w map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
