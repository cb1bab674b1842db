package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"folio/internal/config"
	"folio/internal/ingest"
	"folio/internal/store"
	"folio/internal/util"
)

func main() {
	csvPath := flag.String("csv", "", "load observations from a local CSV file instead of the Alpaca API")
	flag.Parse()

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

	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	var ing ingest.Ingester
	if *csvPath != "" {
		ing = ingest.NewCSVIngester(pstore, cfg.Backtest.Universe, *csvPath)
	} else {
		ing = ingest.NewDailyBarIngester(
			cfg.Ingest.Alpaca.APIKey,
			cfg.Ingest.Alpaca.APISecret,
			cfg.Ingest.Alpaca.DataURL,
			pstore,
			cfg.Backtest.Universe,
			cfg.Ingest.Symbols,
			cfg.Ingest.StartDate,
			cfg.Ingest.BatchSize,
			cfg.Ingest.RateLimitPerMin,
		)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting ingest", "ingester", ing.Name())
	if err := ing.Run(ctx); err != nil {
		log.Fatalf("ingest error: %v", err)
	}
}
