package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"folio/internal/domain"
)

// Compile-time interface check.
var _ ObservationStore = (*ParquetStore)(nil)

// ParquetStore implements ObservationStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ObservationRecord is the Parquet schema for daily price observations.
type ObservationRecord struct {
	Asset  string  `parquet:"asset"`
	Date   int64   `parquet:"date,timestamp(millisecond)"` // Unix ms
	Price  float64 `parquet:"price"`
	Volume int64   `parquet:"volume"`
}

// WriteObservations writes observations to Parquet files organized by asset
// and year. Each asset+year combination produces a separate file at:
//
//	<DataDir>/<universe>/daily/<ASSET>/<YYYY>.parquet
//
// Existing rows for the same (asset, date) are replaced by incoming rows.
func (s *ParquetStore) WriteObservations(_ context.Context, universe string, obs []domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	type key struct {
		asset string
		year  int
	}
	groups := make(map[key][]ObservationRecord)
	for _, o := range obs {
		k := key{asset: o.Asset, year: o.Date.Year()}
		groups[k] = append(groups[k], ObservationRecord{
			Asset:  o.Asset,
			Date:   o.Date.UnixMilli(),
			Price:  o.Price,
			Volume: o.Volume,
		})
	}

	for k, records := range groups {
		path := s.observationPath(k.asset, universe, k.year)

		// Read existing records to merge.
		existing, _ := readParquetFile[ObservationRecord](path)
		merged := mergeObservationRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing observations for %s/%d: %w", k.asset, k.year, err)
		}
	}
	return nil
}

// ReadObservations reads one asset's observations within [start, end].
func (s *ParquetStore) ReadObservations(_ context.Context, asset, universe string, start, end time.Time) ([]domain.Observation, error) {
	var obs []domain.Observation
	for year := start.Year(); year <= end.Year(); year++ {
		path := s.observationPath(asset, universe, year)

		records, err := readParquetFile[ObservationRecord](path)
		if err != nil {
			// File doesn't exist for this year — skip.
			continue
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Date).UTC()
			if (ts.Equal(start) || ts.After(start)) && (ts.Equal(end) || ts.Before(end)) {
				obs = append(obs, domain.Observation{
					Asset:  r.Asset,
					Date:   ts,
					Price:  r.Price,
					Volume: r.Volume,
				})
			}
		}
	}
	return obs, nil
}

// ReadUniverse reads every asset's observations within [start, end].
func (s *ParquetStore) ReadUniverse(ctx context.Context, universe string, start, end time.Time) ([]domain.Observation, error) {
	assets, err := s.ListAssets(ctx, universe)
	if err != nil {
		return nil, err
	}

	var all []domain.Observation
	for _, asset := range assets {
		obs, err := s.ReadObservations(ctx, asset, universe, start, end)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", asset, err)
		}
		all = append(all, obs...)
	}
	return all, nil
}

// ListAssets lists all assets that have observation data in the universe.
func (s *ParquetStore) ListAssets(_ context.Context, universe string) ([]string, error) {
	dir := filepath.Join(s.DataDir, universe, "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var assets []string
	for _, e := range entries {
		if e.IsDir() {
			assets = append(assets, e.Name())
		}
	}
	sort.Strings(assets)
	return assets, nil
}

// observationPath returns the filesystem path for an observation Parquet file.
// Layout: <dataDir>/<universe>/daily/<ASSET>/<YYYY>.parquet
func (s *ParquetStore) observationPath(asset, universe string, year int) string {
	return filepath.Join(s.DataDir, universe, "daily", strings.ToUpper(asset), fmt.Sprintf("%d.parquet", year))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeObservationRecords deduplicates records by (asset, date), preferring
// new records over existing ones. Results are sorted by date.
func mergeObservationRecords(existing, incoming []ObservationRecord) []ObservationRecord {
	type key struct {
		asset string
		date  int64
	}
	seen := make(map[key]ObservationRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Asset, r.Date}] = r
	}
	for _, r := range incoming {
		seen[key{r.Asset, r.Date}] = r
	}

	merged := make([]ObservationRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})
	return merged
}
