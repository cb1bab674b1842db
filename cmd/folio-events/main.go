package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"folio/internal/config"
	"folio/internal/store"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: folio-events <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  runs            List persisted backtest runs\n")
		fmt.Fprintf(os.Stderr, "  events <run-id> Print a run's rebalance events in date order\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	cfgPath := "config/folio.yaml"
	if p := os.Getenv("FOLIO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	results, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open result store: %v", err)
	}
	defer results.Close()

	ctx := context.Background()

	switch os.Args[1] {
	case "runs":
		runs, err := results.ListRuns(ctx)
		if err != nil {
			log.Fatalf("listing runs: %v", err)
		}
		if len(runs) == 0 {
			fmt.Println("no runs recorded")
			return
		}
		fmt.Printf("%-6s %-10s %-12s %-12s %10s %8s %10s  %s\n",
			"ID", "UNIVERSE", "START", "END", "RETURN", "SHARPE", "DRAWDOWN", "HOLDINGS")
		for _, r := range runs {
			fmt.Printf("%-6d %-10s %-12s %-12s %9.2f%% %8.2f %9.2f%%  %s\n",
				r.ID, r.Universe,
				r.StartDate.Format("2006-01-02"), r.EndDate.Format("2006-01-02"),
				r.TotalReturn*100, r.Sharpe, r.MaxDrawdown*100,
				strings.Join(r.FinalHoldings, ","))
		}

	case "events":
		if len(os.Args) < 3 {
			flag.Usage()
			os.Exit(1)
		}
		runID, err := strconv.ParseInt(os.Args[2], 10, 64)
		if err != nil {
			log.Fatalf("bad run id %q: %v", os.Args[2], err)
		}
		events, err := results.ListEvents(ctx, runID)
		if err != nil {
			log.Fatalf("listing events: %v", err)
		}
		for _, ev := range events {
			flags := ""
			if ev.DegradedEligibility {
				flags += " [degraded-eligibility]"
			}
			if ev.DegradedOptimization {
				flags += " [degraded-optimization]"
			}
			fmt.Printf("%s  holdings=%d turnover=%.3f%s\n",
				ev.Date.Format("2006-01-02"), len(ev.HoldingsAfter), ev.Turnover, flags)
			if len(ev.Added) > 0 {
				fmt.Printf("  + %s\n", strings.Join(ev.Added, ", "))
			}
			if len(ev.Removed) > 0 {
				fmt.Printf("  - %s\n", strings.Join(ev.Removed, ", "))
			}
			if len(ev.Skips) > 0 {
				fmt.Printf("  deferred: %s\n", strings.Join(ev.Skips, ", "))
			}
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}
