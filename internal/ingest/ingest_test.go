package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"folio/internal/store"
)

func TestParseCSVWithHeader(t *testing.T) {
	in := strings.NewReader(
		"date,asset,price,volume\n" +
			"2024-01-02,aapl,185.64,50000000\n" +
			"2024-01-03,AAPL,184.25,42000000\n")

	obs, err := ParseCSV(in)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("got %d observations, want 2", len(obs))
	}
	if obs[0].Asset != "AAPL" {
		t.Errorf("asset = %q, want upper-cased AAPL", obs[0].Asset)
	}
	if obs[0].Price != 185.64 || obs[0].Volume != 50_000_000 {
		t.Errorf("row 1 = %+v, want price 185.64 volume 50000000", obs[0])
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if !obs[0].Date.Equal(want) {
		t.Errorf("date = %v, want %v", obs[0].Date, want)
	}
}

func TestParseCSVWithoutHeaderOrVolume(t *testing.T) {
	in := strings.NewReader("2024-01-02,MSFT,370.87\n")
	obs, err := ParseCSV(in)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(obs) != 1 || obs[0].Volume != 0 {
		t.Errorf("obs = %+v, want one row with zero volume", obs)
	}
}

func TestParseCSVRejectsBadRows(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"bad date mid-file", "2024-01-02,AAPL,185\nnot-a-date,AAPL,186\n"},
		{"bad price", "2024-01-02,AAPL,expensive\n"},
		{"bad volume", "2024-01-02,AAPL,185,lots\n"},
		{"empty asset", "2024-01-02, ,185\n"},
		{"too few fields", "2024-01-02,AAPL\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseCSV(strings.NewReader(tc.in)); err == nil {
				t.Errorf("ParseCSV accepted %q", tc.in)
			}
		})
	}
}

func TestCSVIngesterWritesToStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.csv")
	content := "date,asset,price,volume\n" +
		"2024-01-02,AAPL,185.64,1000\n" +
		"2024-01-03,AAPL,184.25,1100\n" +
		"2024-01-02,MSFT,370.87,900\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s := store.NewParquetStore(filepath.Join(dir, "data"))
	ing := NewCSVIngester(s, "us", path)
	if err := ing.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	assets, err := s.ListAssets(context.Background(), "us")
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("assets = %v, want [AAPL MSFT]", assets)
	}

	obs, err := s.ReadObservations(context.Background(), "AAPL", "us",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadObservations: %v", err)
	}
	if len(obs) != 2 {
		t.Errorf("AAPL observations = %d, want 2", len(obs))
	}
}

func TestCSVIngesterRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.csv")
	if err := os.WriteFile(path, []byte("date,asset,price\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ing := NewCSVIngester(store.NewParquetStore(dir), "us", path)
	if err := ing.Run(context.Background()); err == nil {
		t.Error("expected error for a header-only file")
	}
}

func TestBatchSymbols(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E"}

	batches := batchSymbols(symbols, 2)
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if len(batches[2]) != 1 || batches[2][0] != "E" {
		t.Errorf("last batch = %v, want [E]", batches[2])
	}

	// Non-positive size means one batch.
	if got := batchSymbols(symbols, 0); len(got) != 1 || len(got[0]) != 5 {
		t.Errorf("batchSymbols(0) = %v, want single full batch", got)
	}
}

func TestBarsToObservations(t *testing.T) {
	ts := time.Date(2024, 3, 4, 5, 0, 0, 0, time.FixedZone("EST", -5*3600))
	bars := map[string][]marketdata.Bar{
		"aapl": {{Timestamp: ts, Close: 180.5, Volume: 1234}},
	}

	obs := barsToObservations(bars)
	if len(obs) != 1 {
		t.Fatalf("got %d observations, want 1", len(obs))
	}
	if obs[0].Asset != "AAPL" {
		t.Errorf("asset = %q, want AAPL", obs[0].Asset)
	}
	want := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	if !obs[0].Date.Equal(want) {
		t.Errorf("date = %v, want normalized %v", obs[0].Date, want)
	}
	if obs[0].Price != 180.5 || obs[0].Volume != 1234 {
		t.Errorf("obs = %+v", obs[0])
	}
}
