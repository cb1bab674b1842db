package preselect

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"folio/internal/domain"
	"folio/internal/statcache"
)

// Params holds the preselection parameters for one run.
type Params struct {
	Method     string
	TopK       int
	Lookback   int
	Skip       int
	MinPeriods int
	Weights    map[string]float64 // combined method only; must sum to 1.0
}

// Engine scores eligible assets against a frozen dataset, memoizing rolling
// statistics in a shared cache. It never mutates eligibility or holdings
// state.
type Engine struct {
	dataset *domain.Dataset
	cache   *statcache.Cache
	workers int
}

// New creates a preselection engine. workers <= 0 means one worker per
// logical CPU.
func New(dataset *domain.Dataset, cache *statcache.Cache, workers int) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Engine{dataset: dataset, cache: cache, workers: workers}
}

// Select scores the eligible assets at the given date and returns the ranked
// top-K candidates. Assets whose factor windows hold fewer than MinPeriods
// valid observations are excluded from the ranking entirely. The result is
// deterministic: exactly-equal scores are ordered by asset identifier.
func (e *Engine) Select(eligible []string, date time.Time, p Params) ([]domain.RankedCandidate, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	var scores []float64
	switch p.Method {
	case MethodMomentum:
		scores = e.scoreAll(eligible, date, FactorMomentum, p)
	case MethodLowVolatility:
		scores = e.scoreAll(eligible, date, FactorLowVolatility, p)
	case MethodCombined:
		mom := zscores(e.scoreAll(eligible, date, FactorMomentum, p))
		vol := zscores(e.scoreAll(eligible, date, FactorLowVolatility, p))
		scores = make([]float64, len(eligible))
		for i := range eligible {
			scores[i] = p.Weights[FactorMomentum]*mom[i] + p.Weights[FactorLowVolatility]*vol[i]
		}
	}

	// Drop unscorable assets, then order by score descending with the
	// asset identifier as a stable tie-break.
	candidates := make([]domain.RankedCandidate, 0, len(eligible))
	for i, asset := range eligible {
		if math.IsNaN(scores[i]) {
			continue
		}
		candidates = append(candidates, domain.RankedCandidate{Asset: asset, Score: scores[i]})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Asset < candidates[j].Asset
	})

	if len(candidates) > p.TopK {
		candidates = candidates[:p.TopK]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates, nil
}

// FactorScores computes one factor for every asset at the given date and
// returns the raw values, NaN where the asset could not be scored. Intended
// for diagnostics; Select is the ranking path.
func (e *Engine) FactorScores(assets []string, date time.Time, factor string, p Params) []domain.FactorScore {
	values := e.scoreAll(assets, date, factor, p)
	scores := make([]domain.FactorScore, len(assets))
	for i, asset := range assets {
		scores[i] = domain.FactorScore{Asset: asset, Date: date, Factor: factor, Value: values[i]}
	}
	return scores
}

// scoreAll computes one factor for every asset, fanning out across a worker
// pool. Workers only read the frozen dataset and use the concurrency-safe
// cache, so results are position-stable and deterministic.
func (e *Engine) scoreAll(assets []string, date time.Time, factor string, p Params) []float64 {
	scores := make([]float64, len(assets))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				scores[i] = e.score(assets[i], date, factor, p)
			}
		}()
	}
	for i := range assets {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return scores
}

// score computes (or fetches) a single factor value through the cache.
func (e *Engine) score(asset string, date time.Time, factor string, p Params) float64 {
	switch factor {
	case FactorMomentum:
		key := statcache.NewKey(asset, FactorMomentum, p.Lookback, p.Skip, date)
		return e.cache.GetOrCompute(key, func() float64 {
			return momentumScore(e.dataset, asset, date, p.Lookback, p.Skip, p.MinPeriods)
		})
	case FactorLowVolatility:
		key := statcache.NewKey(asset, FactorLowVolatility, p.Lookback, 0, date)
		return e.cache.GetOrCompute(key, func() float64 {
			return lowVolatilityScore(e.dataset, asset, date, p.Lookback, p.MinPeriods)
		})
	default:
		return math.NaN()
	}
}

// validate fails fast on malformed parameters. The same checks run at config
// load; repeating them here keeps the engine safe when embedded elsewhere.
func validate(p Params) error {
	switch p.Method {
	case MethodMomentum, MethodLowVolatility:
	case MethodCombined:
		sum := 0.0
		for _, w := range p.Weights {
			sum += w
		}
		if math.Abs(sum-1.0) > 1e-9 {
			return fmt.Errorf("preselect: combined weights must sum to 1.0, got %v", sum)
		}
	default:
		return fmt.Errorf("preselect: unknown method %q", p.Method)
	}
	if p.TopK <= 0 {
		return fmt.Errorf("preselect: top_k must be > 0, got %d", p.TopK)
	}
	if p.Lookback <= 1 {
		return fmt.Errorf("preselect: lookback must be > 1, got %d", p.Lookback)
	}
	return nil
}
