// Package config loads and validates the folio configuration from YAML with
// environment variable overrides. Validation is eager: a bad configuration
// fails before any backtest step runs, never mid-run.
package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the folio backtester.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Logging  Logging        `yaml:"logging"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Backtest BacktestConfig `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IngestConfig controls historical data ingestion.
type IngestConfig struct {
	Alpaca          Alpaca   `yaml:"alpaca"`
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	BatchSize       int      `yaml:"batch_size"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// BacktestConfig enumerates every parameter of a backtest run.
type BacktestConfig struct {
	Universe       string  `yaml:"universe"`
	StartDate      string  `yaml:"start_date"`
	EndDate        string  `yaml:"end_date"`
	InitialCapital float64 `yaml:"initial_capital"`

	// RebalanceEvery is the rebalance cadence in trading dates present in
	// the dataset (21 approximates monthly for daily data).
	RebalanceEvery int `yaml:"rebalance_every"`

	Eligibility  EligibilityConfig  `yaml:"eligibility"`
	Preselection PreselectionConfig `yaml:"preselection"`
	Membership   MembershipConfig   `yaml:"membership"`
	Optimizer    OptimizerConfig    `yaml:"optimizer"`
	Execution    ExecutionConfig    `yaml:"execution"`

	// CacheSize bounds the rolling-statistics LRU cache (entries).
	CacheSize int `yaml:"cache_size"`

	// ScoreWorkers is the per-date factor-scoring fan-out width. Zero means
	// one worker per logical CPU.
	ScoreWorkers int `yaml:"score_workers"`
}

// EligibilityConfig holds the point-in-time data-availability thresholds.
type EligibilityConfig struct {
	MinHistoryDays  int `yaml:"min_history_days"`
	MinPriceRows    int `yaml:"min_price_rows"`
	LookforwardDays int `yaml:"lookforward_days"`
}

// PreselectionConfig holds the factor-scoring parameters.
type PreselectionConfig struct {
	Method     string             `yaml:"method"`
	TopK       int                `yaml:"top_k"`
	Lookback   int                `yaml:"lookback"`
	Skip       int                `yaml:"skip"`
	MinPeriods int                `yaml:"min_periods"`
	Weights    map[string]float64 `yaml:"weights"`
}

// MembershipConfig holds the turnover-control policy limits. Nil pointer
// fields mean the corresponding limit is not set.
type MembershipConfig struct {
	BufferRank        *int     `yaml:"buffer_rank"`
	MinHoldingPeriods int      `yaml:"min_holding_periods"`
	MaxTurnover       *float64 `yaml:"max_turnover"`
	MaxNewAssets      *int     `yaml:"max_new_assets"`
	MaxRemovedAssets  *int     `yaml:"max_removed_assets"`
}

// OptimizerConfig selects and parameterizes the weight optimizer.
type OptimizerConfig struct {
	Method     string  `yaml:"method"`
	MaxWeight  float64 `yaml:"max_weight"`
	AllowShort bool    `yaml:"allow_short"`
}

// ExecutionConfig holds the trade/cost model parameters.
type ExecutionConfig struct {
	CostBps float64 `yaml:"cost_bps"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies
// environment variable overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Ingest.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Ingest.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Ingest.Alpaca.DataURL = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Ingest.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Ingest.Alpaca.APISecret = v
	}
}

// applyDefaults fills in values the YAML file may omit.
func applyDefaults(cfg *Config) {
	if cfg.Backtest.Universe == "" {
		cfg.Backtest.Universe = "us"
	}
	if cfg.Backtest.InitialCapital == 0 {
		cfg.Backtest.InitialCapital = 100_000
	}
	if cfg.Backtest.RebalanceEvery == 0 {
		cfg.Backtest.RebalanceEvery = 21
	}
	if cfg.Backtest.Eligibility.LookforwardDays == 0 {
		cfg.Backtest.Eligibility.LookforwardDays = 30
	}
	if cfg.Backtest.CacheSize == 0 {
		cfg.Backtest.CacheSize = 4096
	}
	if cfg.Backtest.Optimizer.Method == "" {
		cfg.Backtest.Optimizer.Method = "equal_weight"
	}
	if cfg.Backtest.Optimizer.MaxWeight == 0 {
		cfg.Backtest.Optimizer.MaxWeight = 1.0
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 200
	}
	if cfg.Ingest.RateLimitPerMin == 0 {
		cfg.Ingest.RateLimitPerMin = 200
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks every backtest parameter eagerly and returns a descriptive
// error on the first violation.
func (c *Config) Validate() error {
	b := &c.Backtest

	if b.Eligibility.MinHistoryDays < 0 {
		return fmt.Errorf("eligibility: min_history_days must be >= 0, got %d", b.Eligibility.MinHistoryDays)
	}
	if b.Eligibility.MinPriceRows < 0 {
		return fmt.Errorf("eligibility: min_price_rows must be >= 0, got %d", b.Eligibility.MinPriceRows)
	}
	if b.Eligibility.LookforwardDays <= 0 {
		return fmt.Errorf("eligibility: lookforward_days must be > 0, got %d", b.Eligibility.LookforwardDays)
	}

	p := &b.Preselection
	switch p.Method {
	case "momentum", "low_volatility", "combined":
	case "":
		return fmt.Errorf("preselection: method is required")
	default:
		return fmt.Errorf("preselection: unknown method %q", p.Method)
	}
	if p.TopK <= 0 {
		return fmt.Errorf("preselection: top_k must be > 0, got %d", p.TopK)
	}
	if p.Lookback <= 1 {
		return fmt.Errorf("preselection: lookback must be > 1, got %d", p.Lookback)
	}
	if p.Skip < 0 {
		return fmt.Errorf("preselection: skip must be >= 0, got %d", p.Skip)
	}
	if p.MinPeriods <= 0 || p.MinPeriods > p.Lookback {
		return fmt.Errorf("preselection: min_periods must be in [1, lookback], got %d", p.MinPeriods)
	}
	if p.Method == "combined" {
		sum := 0.0
		for _, w := range p.Weights {
			sum += w
		}
		if math.Abs(sum-1.0) > 1e-9 {
			return fmt.Errorf("preselection: combined weights must sum to 1.0, got %v", sum)
		}
		for _, name := range []string{"momentum", "low_volatility"} {
			if _, ok := p.Weights[name]; !ok {
				return fmt.Errorf("preselection: combined weights missing factor %q", name)
			}
		}
	}

	m := &b.Membership
	if m.MinHoldingPeriods < 0 {
		return fmt.Errorf("membership: min_holding_periods must be >= 0, got %d", m.MinHoldingPeriods)
	}
	if m.BufferRank != nil && *m.BufferRank < p.TopK {
		return fmt.Errorf("membership: buffer_rank %d must be >= top_k %d", *m.BufferRank, p.TopK)
	}
	if m.MaxTurnover != nil && (*m.MaxTurnover < 0 || *m.MaxTurnover > 1) {
		return fmt.Errorf("membership: max_turnover must be in [0, 1], got %v", *m.MaxTurnover)
	}
	if m.MaxNewAssets != nil && *m.MaxNewAssets < 0 {
		return fmt.Errorf("membership: max_new_assets must be >= 0, got %d", *m.MaxNewAssets)
	}
	if m.MaxRemovedAssets != nil && *m.MaxRemovedAssets < 0 {
		return fmt.Errorf("membership: max_removed_assets must be >= 0, got %d", *m.MaxRemovedAssets)
	}

	switch b.Optimizer.Method {
	case "equal_weight", "min_variance", "miqp", "heuristic", "relaxation":
	default:
		return fmt.Errorf("optimizer: unknown method %q", b.Optimizer.Method)
	}
	if b.Optimizer.MaxWeight <= 0 || b.Optimizer.MaxWeight > 1 {
		return fmt.Errorf("optimizer: max_weight must be in (0, 1], got %v", b.Optimizer.MaxWeight)
	}

	if b.Execution.CostBps < 0 {
		return fmt.Errorf("execution: cost_bps must be >= 0, got %v", b.Execution.CostBps)
	}
	if b.RebalanceEvery <= 0 {
		return fmt.Errorf("backtest: rebalance_every must be > 0, got %d", b.RebalanceEvery)
	}
	if b.CacheSize <= 0 {
		return fmt.Errorf("backtest: cache_size must be > 0, got %d", b.CacheSize)
	}
	if b.ScoreWorkers < 0 {
		return fmt.Errorf("backtest: score_workers must be >= 0, got %d", b.ScoreWorkers)
	}

	return nil
}
