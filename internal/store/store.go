// Package store defines storage interfaces for persisting and retrieving
// price observations and backtest results.
package store

import (
	"context"
	"time"

	"folio/internal/domain"
)

// ObservationStore persists and retrieves per-asset price observations.
type ObservationStore interface {
	// WriteObservations persists a batch of observations under a universe.
	WriteObservations(ctx context.Context, universe string, obs []domain.Observation) error

	// ReadObservations returns one asset's observations within [start, end].
	ReadObservations(ctx context.Context, asset, universe string, start, end time.Time) ([]domain.Observation, error)

	// ReadUniverse returns all assets' observations within [start, end].
	ReadUniverse(ctx context.Context, universe string, start, end time.Time) ([]domain.Observation, error)

	// ListAssets returns all distinct assets available in the given universe.
	ListAssets(ctx context.Context, universe string) ([]string, error)
}

// RunRecord describes one persisted backtest run.
type RunRecord struct {
	ID            int64
	CreatedAt     time.Time
	Universe      string
	StartDate     time.Time
	EndDate       time.Time
	TotalReturn   float64
	Sharpe        float64
	MaxDrawdown   float64
	FinalHoldings []string
}

// ResultStore persists backtest runs and their rebalance events.
type ResultStore interface {
	// CreateRun inserts a new run row and returns its ID.
	CreateRun(ctx context.Context, universe string, start, end time.Time) (int64, error)

	// FinishRun records summary metrics and final holdings for a run.
	FinishRun(ctx context.Context, runID int64, totalReturn, sharpe, maxDrawdown float64, finalHoldings []string) error

	// SaveEvents persists the run's rebalance events.
	SaveEvents(ctx context.Context, runID int64, events []domain.RebalanceEvent) error

	// ListEvents returns a run's rebalance events in date order.
	ListEvents(ctx context.Context, runID int64) ([]domain.RebalanceEvent, error)

	// GetRun returns a single run by ID.
	GetRun(ctx context.Context, runID int64) (*RunRecord, error)

	// ListRuns returns all runs, most recent first.
	ListRuns(ctx context.Context) ([]RunRecord, error)
}
