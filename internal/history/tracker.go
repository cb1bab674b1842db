// Package history provides per-asset observation accounting and the
// point-in-time eligibility engine built on top of it.
package history

import (
	"time"

	"folio/internal/domain"
)

// gapThresholdDays is the minimum calendar gap between consecutive
// observations that counts as a data gap rather than ordinary non-trading
// days.
const gapThresholdDays = 5

// AssetState is the cumulative observation accounting for one asset. It is
// mutated incrementally as the tracker advances and never edited
// retroactively.
type AssetState struct {
	FirstSeen    time.Time
	LastSeen     time.Time
	Count        int
	LastGapStart time.Time // zero if no gap observed yet
}

// Tracker advances through a dataset in date order, maintaining AssetState
// per asset. Advancing to date D consumes exactly the observations with
// date <= D, so every state read is a pure function of data up to the
// current date.
type Tracker struct {
	dataset *domain.Dataset
	states  map[string]*AssetState
	cursor  map[string]int
	current time.Time
}

// NewTracker creates a Tracker over the dataset with no observations
// consumed yet.
func NewTracker(dataset *domain.Dataset) *Tracker {
	return &Tracker{
		dataset: dataset,
		states:  make(map[string]*AssetState),
		cursor:  make(map[string]int),
	}
}

// Advance consumes all observations with date <= d. Calling Advance with a
// date earlier than a previous call is a no-op; the tracker only moves
// forward.
func (t *Tracker) Advance(d time.Time) {
	if d.Before(t.current) {
		return
	}
	t.current = d

	for _, asset := range t.dataset.Assets() {
		series := t.dataset.Series(asset)
		i := t.cursor[asset]
		for i < len(series) && !series[i].Date.After(d) {
			t.observe(asset, series[i].Date)
			i++
		}
		t.cursor[asset] = i
	}
}

// observe folds a single observation date into the asset's state.
func (t *Tracker) observe(asset string, d time.Time) {
	st, ok := t.states[asset]
	if !ok {
		st = &AssetState{FirstSeen: d}
		t.states[asset] = st
	}
	if st.Count > 0 {
		if gap := d.Sub(st.LastSeen); gap > gapThresholdDays*24*time.Hour {
			st.LastGapStart = st.LastSeen
		}
	}
	st.LastSeen = d
	st.Count++
}

// State returns the asset's accumulated state, or nil if the asset has no
// observations up to the current date.
func (t *Tracker) State(asset string) *AssetState {
	return t.states[asset]
}

// Current returns the date the tracker has been advanced to.
func (t *Tracker) Current() time.Time {
	return t.current
}
