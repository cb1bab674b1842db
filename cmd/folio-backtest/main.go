package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"folio/internal/backtest"
	"folio/internal/config"
	"folio/internal/domain"
	"folio/internal/store"
	"folio/internal/util"
)

func main() {
	cfgPath := "config/folio.yaml"
	if p := os.Getenv("FOLIO_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load the full stored history for the universe; the eligibility engine
	// needs observations well before the backtest start date.
	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	loadEnd := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
	if cfg.Backtest.EndDate != "" {
		loadEnd, err = time.Parse("2006-01-02", cfg.Backtest.EndDate)
		if err != nil {
			log.Fatalf("bad end_date: %v", err)
		}
	}
	obs, err := pstore.ReadUniverse(ctx, cfg.Backtest.Universe, time.Time{}, loadEnd)
	if err != nil {
		log.Fatalf("failed to read observations: %v", err)
	}
	if len(obs) == 0 {
		log.Fatalf("no observations for universe %q under %s; run folio-ingest first", cfg.Backtest.Universe, cfg.Storage.DataDir)
	}
	dataset := domain.NewDataset(obs)
	logger.Info("dataset loaded", "assets", len(dataset.Assets()), "dates", len(dataset.Dates()))

	engine, err := backtest.New(cfg.Backtest, dataset, logger)
	if err != nil {
		log.Fatalf("failed to build backtest engine: %v", err)
	}

	results, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open result store: %v", err)
	}
	defer results.Close()

	runID, err := results.CreateRun(ctx, cfg.Backtest.Universe, mustDate(cfg.Backtest.StartDate), loadEnd)
	if err != nil {
		log.Fatalf("failed to create run: %v", err)
	}

	result, err := engine.Run(ctx)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	if err := results.SaveEvents(ctx, runID, result.Events); err != nil {
		log.Fatalf("failed to save events: %v", err)
	}
	m := result.Metrics
	if err := results.FinishRun(ctx, runID, m.TotalReturn, m.Sharpe, m.MaxDrawdown, result.Final.Assets()); err != nil {
		log.Fatalf("failed to finish run: %v", err)
	}

	logger.Info("run persisted",
		"run_id", runID,
		"rebalances", m.Rebalances,
		"degraded", m.DegradedRebalances,
		"total_return", m.TotalReturn,
		"annualized_return", m.AnnualizedReturn,
		"sharpe", m.Sharpe,
		"max_drawdown", m.MaxDrawdown,
		"avg_turnover", m.AvgTurnover,
		"total_cost", m.TotalCost)
}

func mustDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		log.Fatalf("bad date %q: %v", s, err)
	}
	return d
}
