package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validYAML = `
storage:
  data_dir: "/tmp/folio/data"
  sqlite_path: "/tmp/folio/folio.db"
logging:
  level: "info"
  format: "json"
ingest:
  symbols: ["AAPL", "MSFT"]
  start_date: "2020-01-01"
backtest:
  universe: "us"
  start_date: "2021-01-01"
  end_date: "2023-12-31"
  initial_capital: 250000
  rebalance_every: 21
  eligibility:
    min_history_days: 252
    min_price_rows: 200
  preselection:
    method: "combined"
    top_k: 20
    lookback: 126
    skip: 5
    min_periods: 100
    weights:
      momentum: 0.6
      low_volatility: 0.4
  membership:
    buffer_rank: 30
    min_holding_periods: 3
    max_turnover: 0.25
    max_new_assets: 5
    max_removed_assets: 5
  optimizer:
    method: "min_variance"
    max_weight: 0.15
  execution:
    cost_bps: 10
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "folio.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Backtest.Preselection.TopK != 20 {
		t.Errorf("top_k = %d, want 20", cfg.Backtest.Preselection.TopK)
	}
	if cfg.Backtest.Membership.BufferRank == nil || *cfg.Backtest.Membership.BufferRank != 30 {
		t.Errorf("buffer_rank = %v, want 30", cfg.Backtest.Membership.BufferRank)
	}
	if cfg.Backtest.Membership.MaxTurnover == nil || *cfg.Backtest.Membership.MaxTurnover != 0.25 {
		t.Errorf("max_turnover = %v, want 0.25", cfg.Backtest.Membership.MaxTurnover)
	}
	// Defaults kick in for omitted fields.
	if cfg.Backtest.Eligibility.LookforwardDays != 30 {
		t.Errorf("lookforward_days default = %d, want 30", cfg.Backtest.Eligibility.LookforwardDays)
	}
	if cfg.Backtest.CacheSize != 4096 {
		t.Errorf("cache_size default = %d, want 4096", cfg.Backtest.CacheSize)
	}
}

func TestLoadUnsetLimitsAreNil(t *testing.T) {
	yaml := strings.NewReplacer(
		"    buffer_rank: 30\n", "",
		"    max_turnover: 0.25\n", "",
		"    max_new_assets: 5\n", "",
		"    max_removed_assets: 5\n", "",
	).Replace(validYAML)

	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := cfg.Backtest.Membership
	if m.BufferRank != nil || m.MaxTurnover != nil || m.MaxNewAssets != nil || m.MaxRemovedAssets != nil {
		t.Errorf("omitted limits should be nil, got %+v", m)
	}
}

func TestValidateWeightsMustSumToOne(t *testing.T) {
	yaml := strings.Replace(validYAML, "momentum: 0.6", "momentum: 0.7", 1)
	_, err := Load(writeConfig(t, yaml))
	if err == nil {
		t.Fatal("expected error for weights not summing to 1.0")
	}
	if !strings.Contains(err.Error(), "sum to 1.0") {
		t.Errorf("error = %v, want mention of weight sum", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		old  string
		new  string
	}{
		{"unknown method", `method: "combined"`, `method: "alpha"`},
		{"zero top_k", "top_k: 20", "top_k: 0"},
		{"min_periods over lookback", "min_periods: 100", "min_periods: 500"},
		{"buffer below top_k", "buffer_rank: 30", "buffer_rank: 10"},
		{"turnover over 1", "max_turnover: 0.25", "max_turnover: 1.5"},
		{"unknown optimizer", `method: "min_variance"`, `method: "magic"`},
		{"negative cost", "cost_bps: 10", "cost_bps: -1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			yaml := strings.Replace(validYAML, tc.old, tc.new, 1)
			if _, err := Load(writeConfig(t, yaml)); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATA_DIR", "/override/data")

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("LOG_LEVEL override not applied, level = %q", cfg.Logging.Level)
	}
	if cfg.Storage.DataDir != "/override/data" {
		t.Errorf("DATA_DIR override not applied, data_dir = %q", cfg.Storage.DataDir)
	}
}
