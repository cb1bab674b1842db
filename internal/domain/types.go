// Package domain defines the core value types shared across the folio
// backtesting pipeline: price observations, eligibility reasons, factor
// rankings, holdings, and rebalance events.
package domain

import (
	"sort"
	"time"
)

// Universe identifiers used to segment stored observation data.
const (
	UniverseUS = "us"
	UniverseCN = "cn"
)

// Observation is an atomic input row: one asset's price on one date.
// Observations are immutable once ingested.
type Observation struct {
	Asset  string
	Date   time.Time
	Price  float64
	Volume int64
}

// Reason explains an eligibility decision.
type Reason string

// Eligibility reason codes.
const (
	ReasonEligible            Reason = "eligible"
	ReasonUnknownAsset        Reason = "unknown_asset"
	ReasonInsufficientHistory Reason = "insufficient_history"
	ReasonInsufficientRows    Reason = "insufficient_rows"
	ReasonDelisted            Reason = "delisted"
)

// EligibilityRecord is the outcome of a point-in-time eligibility check for
// one asset on one date. Derived, never stored long-term.
type EligibilityRecord struct {
	Asset    string
	Date     time.Time
	Eligible bool
	Reason   Reason
}

// FactorScore is one factor's value for one asset on one date. NaN marks an
// asset that could not be scored.
type FactorScore struct {
	Asset  string
	Date   time.Time
	Factor string
	Value  float64
}

// RankedCandidate is an asset's position in a rebalance date's preselection
// ordering. Rank is 1-based; ties are broken by asset identifier so the
// ordering is a stable total order.
type RankedCandidate struct {
	Asset string
	Score float64
	Rank  int
}

// HoldingRecord tracks one asset currently in the portfolio. It is created
// on entry, destroyed on removal, and mutated once per rebalance.
type HoldingRecord struct {
	Asset       string
	EntryDate   time.Time
	PeriodsHeld int
	LastRank    int
}

// PortfolioState is the single mutable portfolio instance that flows through
// the backtest. The rebalancing loop is its only owner.
type PortfolioState struct {
	Holdings map[string]*HoldingRecord
	Weights  map[string]float64
}

// NewPortfolioState creates an empty portfolio.
func NewPortfolioState() *PortfolioState {
	return &PortfolioState{
		Holdings: make(map[string]*HoldingRecord),
		Weights:  make(map[string]float64),
	}
}

// Assets returns the held asset identifiers in sorted order.
func (p *PortfolioState) Assets() []string {
	assets := make([]string, 0, len(p.Holdings))
	for a := range p.Holdings {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	return assets
}

// Size returns the number of holdings.
func (p *PortfolioState) Size() int {
	return len(p.Holdings)
}

// RebalanceEvent is the immutable record emitted for every rebalance date.
type RebalanceEvent struct {
	Date           time.Time
	HoldingsBefore []string
	HoldingsAfter  []string
	Added          []string
	Removed        []string
	Weights        map[string]float64
	Turnover       float64

	// Degraded-step markers. DegradedEligibility means no asset passed the
	// point-in-time filter and the prior portfolio was held unchanged.
	// DegradedOptimization means the optimizer was infeasible and the
	// equal-weight fallback was used.
	DegradedEligibility  bool
	DegradedOptimization bool

	// Skips lists policy-triggered deferrals (turnover-capped adds/removes
	// pushed to the next rebalance).
	Skips []string
}
