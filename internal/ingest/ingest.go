// Package ingest loads price observations into the observation store, either
// from the Alpaca market-data API or from local CSV files.
package ingest

import "context"

// Ingester is the interface for all observation-loading processes.
type Ingester interface {
	// Name returns the ingester identifier.
	Name() string
	// Run executes the ingestion until done or ctx is cancelled.
	Run(ctx context.Context) error
}
