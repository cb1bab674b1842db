package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"folio/internal/domain"
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

const dateLayout = "2006-01-02"

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at     TEXT NOT NULL,
	universe       TEXT NOT NULL,
	start_date     TEXT NOT NULL,
	end_date       TEXT NOT NULL,
	total_return   REAL NOT NULL DEFAULT 0,
	sharpe         REAL NOT NULL DEFAULT 0,
	max_drawdown   REAL NOT NULL DEFAULT 0,
	final_holdings TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS rebalance_events (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id                INTEGER NOT NULL REFERENCES runs(id),
	date                  TEXT NOT NULL,
	holdings_before       TEXT NOT NULL,
	holdings_after        TEXT NOT NULL,
	added                 TEXT NOT NULL,
	removed               TEXT NOT NULL,
	weights               TEXT NOT NULL,
	turnover              REAL NOT NULL,
	degraded_eligibility  INTEGER NOT NULL DEFAULT 0,
	degraded_optimization INTEGER NOT NULL DEFAULT 0,
	skips                 TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_events_run_date ON rebalance_events(run_id, date);
`
	_, err := s.db.Exec(schema)
	return err
}

// CreateRun inserts a new run row and returns its ID.
func (s *SQLiteStore) CreateRun(ctx context.Context, universe string, start, end time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (created_at, universe, start_date, end_date) VALUES (?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), universe,
		start.Format(dateLayout), end.Format(dateLayout),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishRun records summary metrics and final holdings for a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID int64, totalReturn, sharpe, maxDrawdown float64, finalHoldings []string) error {
	holdings, err := json.Marshal(finalHoldings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET total_return = ?, sharpe = ?, max_drawdown = ?, final_holdings = ? WHERE id = ?`,
		totalReturn, sharpe, maxDrawdown, string(holdings), runID,
	)
	return err
}

// SaveEvents persists the run's rebalance events in a single transaction.
func (s *SQLiteStore) SaveEvents(ctx context.Context, runID int64, events []domain.RebalanceEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO rebalance_events
	(run_id, date, holdings_before, holdings_after, added, removed, weights,
	 turnover, degraded_eligibility, degraded_optimization, skips)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		before, aerr := marshalJSON(ev.HoldingsBefore)
		after, berr := marshalJSON(ev.HoldingsAfter)
		added, cerr := marshalJSON(ev.Added)
		removed, derr := marshalJSON(ev.Removed)
		weights, eerr := marshalJSON(ev.Weights)
		skips, ferr := marshalJSON(ev.Skips)
		for _, jerr := range []error{aerr, berr, cerr, derr, eerr, ferr} {
			if jerr != nil {
				return jerr
			}
		}

		if _, err := stmt.ExecContext(ctx,
			runID, ev.Date.Format(dateLayout), before, after, added, removed, weights,
			ev.Turnover, boolToInt(ev.DegradedEligibility), boolToInt(ev.DegradedOptimization), skips,
		); err != nil {
			return fmt.Errorf("inserting event %s: %w", ev.Date.Format(dateLayout), err)
		}
	}
	return tx.Commit()
}

// ListEvents returns a run's rebalance events in date order.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID int64) ([]domain.RebalanceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT date, holdings_before, holdings_after, added, removed, weights,
       turnover, degraded_eligibility, degraded_optimization, skips
FROM rebalance_events WHERE run_id = ? ORDER BY date`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.RebalanceEvent
	for rows.Next() {
		var ev domain.RebalanceEvent
		var dateStr string
		var before, after, added, removed, weights, skips string
		var degradedEligibility, degradedOptimization int
		if err := rows.Scan(&dateStr, &before, &after, &added, &removed, &weights,
			&ev.Turnover, &degradedEligibility, &degradedOptimization, &skips); err != nil {
			return nil, err
		}
		ev.Date, err = time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parsing event date %q: %w", dateStr, err)
		}
		for _, field := range []struct {
			raw  string
			dest any
		}{
			{before, &ev.HoldingsBefore},
			{after, &ev.HoldingsAfter},
			{added, &ev.Added},
			{removed, &ev.Removed},
			{weights, &ev.Weights},
			{skips, &ev.Skips},
		} {
			if err := json.Unmarshal([]byte(field.raw), field.dest); err != nil {
				return nil, err
			}
		}
		ev.DegradedEligibility = degradedEligibility != 0
		ev.DegradedOptimization = degradedOptimization != 0
		events = append(events, ev)
	}
	return events, rows.Err()
}

// GetRun returns a single run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID int64) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, created_at, universe, start_date, end_date,
       total_return, sharpe, max_drawdown, final_holdings
FROM runs WHERE id = ?`, runID)
	return scanRun(row.Scan)
}

// ListRuns returns all runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, created_at, universe, start_date, end_date,
       total_return, sharpe, max_drawdown, final_holdings
FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ---------------------------------------------------------------------------
// Row scanning helpers
// ---------------------------------------------------------------------------

func scanRun(scan func(dest ...any) error) (*RunRecord, error) {
	var run RunRecord
	var createdAt, startStr, endStr string
	var holdings string
	if err := scan(&run.ID, &createdAt, &run.Universe, &startStr, &endStr,
		&run.TotalReturn, &run.Sharpe, &run.MaxDrawdown, &holdings); err != nil {
		return nil, err
	}

	var err error
	if run.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	if run.StartDate, err = time.Parse(dateLayout, startStr); err != nil {
		return nil, fmt.Errorf("parsing start_date %q: %w", startStr, err)
	}
	if run.EndDate, err = time.Parse(dateLayout, endStr); err != nil {
		return nil, fmt.Errorf("parsing end_date %q: %w", endStr, err)
	}
	if err := json.Unmarshal([]byte(holdings), &run.FinalHoldings); err != nil {
		return nil, fmt.Errorf("parsing final_holdings: %w", err)
	}
	return &run, nil
}

// marshalJSON encodes v, mapping nil slices/maps to their empty JSON form.
func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	s := string(b)
	if s == "null" {
		switch v.(type) {
		case map[string]float64:
			return "{}", nil
		default:
			return "[]", nil
		}
	}
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
