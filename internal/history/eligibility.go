package history

import (
	"sort"
	"time"

	"folio/internal/domain"
)

// Engine decides which assets have sufficient, non-delisted history to be
// considered at a check date.
//
// All threshold checks use only tracker state accumulated up to the check
// date, so re-running a past date's decision with a longer dataset can never
// change it. The single exception is the delisting test, which looks up to
// LookforwardDays past the last observation: that is valid only for offline
// backtesting and must never back a live eligibility decision.
type Engine struct {
	tracker *Tracker
	dataset *domain.Dataset

	// MinHistoryDays and MinPriceRows are both required (AND semantics):
	// calendar span alone is not enough for sparse series. Thresholds are
	// inclusive.
	MinHistoryDays  int
	MinPriceRows    int
	LookforwardDays int
}

// NewEngine creates an eligibility engine over a tracker and its dataset.
func NewEngine(tracker *Tracker, dataset *domain.Dataset, minHistoryDays, minPriceRows, lookforwardDays int) *Engine {
	return &Engine{
		tracker:         tracker,
		dataset:         dataset,
		MinHistoryDays:  minHistoryDays,
		MinPriceRows:    minPriceRows,
		LookforwardDays: lookforwardDays,
	}
}

// Eligible checks one asset at the check date. The tracker must already be
// advanced to checkDate. A missing asset yields (false, unknown_asset),
// never an error.
func (e *Engine) Eligible(asset string, checkDate time.Time) (bool, domain.Reason) {
	st := e.tracker.State(asset)
	if st == nil || st.Count == 0 {
		return false, domain.ReasonUnknownAsset
	}

	if e.delisted(asset, st, checkDate) {
		return false, domain.ReasonDelisted
	}

	daysSinceFirst := int(checkDate.Sub(st.FirstSeen).Hours() / 24)
	if daysSinceFirst < e.MinHistoryDays {
		return false, domain.ReasonInsufficientHistory
	}
	if st.Count < e.MinPriceRows {
		return false, domain.ReasonInsufficientRows
	}

	return true, domain.ReasonEligible
}

// delisted reports whether the asset has permanently stopped trading as of
// the check date: its last observation is in the past and no observation
// exists within the lookforward window after it. A shorter absence is a
// temporary gap, not a delisting.
func (e *Engine) delisted(asset string, st *AssetState, checkDate time.Time) bool {
	if !st.LastSeen.Before(checkDate) {
		return false
	}
	next, ok := e.dataset.NextObservationAfter(asset, st.LastSeen)
	if !ok {
		return true
	}
	windowEnd := st.LastSeen.AddDate(0, 0, e.LookforwardDays)
	return next.Date.After(windowEnd)
}

// Filter evaluates every asset in the dataset at the check date and returns
// the sorted eligible set plus a per-asset record of every decision.
func (e *Engine) Filter(checkDate time.Time) ([]string, []domain.EligibilityRecord) {
	assets := e.dataset.Assets()
	records := make([]domain.EligibilityRecord, 0, len(assets))
	var eligible []string

	for _, asset := range assets {
		ok, reason := e.Eligible(asset, checkDate)
		records = append(records, domain.EligibilityRecord{
			Asset:    asset,
			Date:     checkDate,
			Eligible: ok,
			Reason:   reason,
		})
		if ok {
			eligible = append(eligible, asset)
		}
	}
	sort.Strings(eligible)
	return eligible, records
}
