package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"folio/internal/domain"
	"folio/internal/store"
)

var _ Ingester = (*CSVIngester)(nil)

// CSVIngester loads observations from a local CSV file into the store. The
// expected format is `date,asset,price[,volume]` with an optional header row,
// dates as YYYY-MM-DD.
type CSVIngester struct {
	store    store.ObservationStore
	universe string
	path     string
	log      *slog.Logger
}

// NewCSVIngester creates a CSVIngester for the given file and universe.
func NewCSVIngester(s store.ObservationStore, universe, path string) *CSVIngester {
	return &CSVIngester{
		store:    s,
		universe: universe,
		path:     path,
		log:      slog.Default().With("ingester", "csv"),
	}
}

// Name returns the ingester identifier.
func (g *CSVIngester) Name() string { return "csv" }

// Run parses the file and writes all observations in one batch.
func (g *CSVIngester) Run(ctx context.Context) error {
	f, err := os.Open(g.path)
	if err != nil {
		return fmt.Errorf("ingest: opening %s: %w", g.path, err)
	}
	defer f.Close()

	obs, err := ParseCSV(f)
	if err != nil {
		return fmt.Errorf("ingest: parsing %s: %w", g.path, err)
	}
	if len(obs) == 0 {
		return fmt.Errorf("ingest: %s contains no observations", g.path)
	}
	if err := g.store.WriteObservations(ctx, g.universe, obs); err != nil {
		return fmt.Errorf("ingest: writing observations: %w", err)
	}
	g.log.Info("csv ingest complete", "path", g.path, "observations", len(obs))
	return nil
}

// ParseCSV reads `date,asset,price[,volume]` rows. A first row whose date
// column does not parse is treated as a header and skipped; any later parse
// failure is an error carrying the line number.
func ParseCSV(r io.Reader) ([]domain.Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var obs []domain.Observation
	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		if len(record) < 3 {
			return nil, fmt.Errorf("line %d: want at least 3 fields (date,asset,price), got %d", line, len(record))
		}

		date, err := time.Parse("2006-01-02", strings.TrimSpace(record[0]))
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("line %d: bad date %q: %w", line, record[0], err)
		}

		asset := strings.ToUpper(strings.TrimSpace(record[1]))
		if asset == "" {
			return nil, fmt.Errorf("line %d: empty asset", line)
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad price %q: %w", line, record[2], err)
		}

		var volume int64
		if len(record) > 3 && strings.TrimSpace(record[3]) != "" {
			volume, err = strconv.ParseInt(strings.TrimSpace(record[3]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad volume %q: %w", line, record[3], err)
			}
		}

		obs = append(obs, domain.Observation{Asset: asset, Date: date, Price: price, Volume: volume})
	}
	return obs, nil
}
