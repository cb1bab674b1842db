// Package membership implements the holding-set transition policy: given the
// current holdings and a freshly ranked candidate set, it decides which
// assets are kept, added, and removed under buffer, hold-period, and
// turnover limits.
//
// Rule precedence, highest first: hold-period protection, removal cap,
// turnover cap. Conflicting limits never error; they saturate to a valid,
// if constrained, result.
package membership

import (
	"fmt"
	"math"
	"sort"
	"time"

	"folio/internal/domain"
)

// rankUnranked marks a held asset missing from the latest ranking (delisted
// or filtered out): always a removal candidate, never an addition candidate.
const rankUnranked = math.MaxInt32

// Config enumerates the policy limits. Nil pointers mean "not set".
type Config struct {
	TopK              int
	BufferRank        *int
	MinHoldingPeriods int
	MaxTurnover       *float64
	MaxNewAssets      *int
	MaxRemovedAssets  *int
}

// Transition is the outcome of one policy application.
type Transition struct {
	Next     map[string]*domain.HoldingRecord
	Added    []string
	Removed  []string
	Deferred []string // adds/removes pushed to the next rebalance by the turnover cap
}

// Apply computes the next holding set. It is a pure function of its inputs:
// identical (current, ranked, config) always produces an identical result.
// Holding records for kept assets are reused; records for added assets are
// created with PeriodsHeld zero.
func Apply(current map[string]*domain.HoldingRecord, ranked []domain.RankedCandidate, cfg Config, date time.Time) Transition {
	rankOf := make(map[string]int, len(ranked))
	for _, c := range ranked {
		rankOf[c.Asset] = c.Rank
	}
	lookupRank := func(asset string) int {
		if r, ok := rankOf[asset]; ok {
			return r
		}
		return rankUnranked
	}

	// Partition current holdings into kept and removal candidates. Sorted
	// iteration keeps the whole transition deterministic.
	heldAssets := make([]string, 0, len(current))
	for a := range current {
		heldAssets = append(heldAssets, a)
	}
	sort.Strings(heldAssets)

	kept := make([]string, 0, len(current))
	var removalCandidates []string
	for _, asset := range heldAssets {
		rank := lookupRank(asset)
		switch {
		case rank <= cfg.TopK:
			kept = append(kept, asset)
		case cfg.BufferRank != nil && rank <= *cfg.BufferRank:
			// Retain-by-buffer: a looser threshold that lets the result
			// legitimately exceed TopK in size.
			kept = append(kept, asset)
		case current[asset].PeriodsHeld < cfg.MinHoldingPeriods:
			// Retain-by-hold-period: protected holdings never count
			// against the removal budget.
			kept = append(kept, asset)
		default:
			removalCandidates = append(removalCandidates, asset)
		}
	}

	// Candidate-removal: worst rank goes first; the removal cap saturates
	// and over-budget candidates are force-kept.
	sort.Slice(removalCandidates, func(i, j int) bool {
		ri, rj := lookupRank(removalCandidates[i]), lookupRank(removalCandidates[j])
		if ri != rj {
			return ri > rj
		}
		return removalCandidates[i] < removalCandidates[j]
	})
	removes := removalCandidates
	if cfg.MaxRemovedAssets != nil && len(removes) > *cfg.MaxRemovedAssets {
		removes = removes[:*cfg.MaxRemovedAssets]
	}

	// Candidate-addition: best rank first, while the portfolio is below
	// TopK and within the new-asset cap.
	sizeAfterRemovals := len(current) - len(removes)
	maxAdds := math.MaxInt32
	if cfg.MaxNewAssets != nil {
		maxAdds = *cfg.MaxNewAssets
	}
	var adds []string
	for _, c := range ranked {
		if sizeAfterRemovals+len(adds) >= cfg.TopK || len(adds) >= maxAdds {
			break
		}
		if _, held := current[c.Asset]; held {
			continue
		}
		adds = append(adds, c.Asset)
	}

	// Turnover cap: defer the lowest-priority operations to the next
	// rebalance rather than ever violating the limit mid-step. Adds are
	// deferred before removes; within each list the last entry is the
	// lowest priority (worst-ranked planned add, best-ranked removal
	// candidate).
	var deferred []string
	if cfg.MaxTurnover != nil {
		size := len(current)
		if size == 0 {
			size = 1
		}
		budget := int(math.Floor(*cfg.MaxTurnover*float64(size) + 1e-9))
		for len(adds)+len(removes) > budget {
			if len(adds) > 0 {
				deferred = append(deferred, fmt.Sprintf("add:%s", adds[len(adds)-1]))
				adds = adds[:len(adds)-1]
				continue
			}
			deferred = append(deferred, fmt.Sprintf("remove:%s", removes[len(removes)-1]))
			removes = removes[:len(removes)-1]
		}
	}

	// Assemble the next holding set: everything current minus removes,
	// plus adds.
	removed := make(map[string]bool, len(removes))
	for _, a := range removes {
		removed[a] = true
	}
	next := make(map[string]*domain.HoldingRecord, len(current)+len(adds))
	for _, asset := range heldAssets {
		if removed[asset] {
			continue
		}
		rec := current[asset]
		if r := lookupRank(asset); r != rankUnranked {
			rec.LastRank = r
		} else {
			rec.LastRank = -1
		}
		next[asset] = rec
	}
	for _, asset := range adds {
		next[asset] = &domain.HoldingRecord{
			Asset:       asset,
			EntryDate:   date,
			PeriodsHeld: 0,
			LastRank:    lookupRank(asset),
		}
	}

	sort.Strings(removes)
	sort.Strings(adds)
	return Transition{
		Next:     next,
		Added:    adds,
		Removed:  removes,
		Deferred: deferred,
	}
}
