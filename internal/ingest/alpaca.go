package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"folio/internal/domain"
	"folio/internal/store"
	"folio/internal/util"
)

var _ Ingester = (*DailyBarIngester)(nil)

// DailyBarIngester fetches daily OHLCV bars for a configured symbol list from
// the Alpaca market-data API and writes closing-price observations to the
// store. Requests are batched, rate limited, and retried with backoff.
type DailyBarIngester struct {
	client    *marketdata.Client
	store     store.ObservationStore
	universe  string
	symbols   []string
	startDate string
	batchSize int
	limiter   *util.RateLimiter
	log       *slog.Logger
}

// NewDailyBarIngester creates a DailyBarIngester for the given universe and
// symbol list.
func NewDailyBarIngester(apiKey, apiSecret, dataURL string, s store.ObservationStore, universe string, symbols []string, startDate string, batchSize, rateLimitPerMin int) *DailyBarIngester {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &DailyBarIngester{
		client:    marketdata.NewClient(opts),
		store:     s,
		universe:  universe,
		symbols:   symbols,
		startDate: startDate,
		batchSize: batchSize,
		limiter:   util.NewRateLimiter(rateLimitPerMin),
		log:       slog.Default().With("ingester", "alpaca-daily"),
	}
}

// Name returns the ingester identifier.
func (g *DailyBarIngester) Name() string { return "alpaca-daily" }

// Run fetches daily bars for every configured symbol from the start date
// through yesterday and writes them to the observation store. Re-running is
// idempotent: the store deduplicates on (asset, date).
func (g *DailyBarIngester) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		return fmt.Errorf("ingest: no symbols configured")
	}
	start, err := time.Parse("2006-01-02", g.startDate)
	if err != nil {
		return fmt.Errorf("ingest: parsing start date %q: %w", g.startDate, err)
	}
	end := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)

	batches := batchSymbols(g.symbols, g.batchSize)
	g.log.Info("starting daily bar ingest",
		"universe", g.universe,
		"symbols", len(g.symbols),
		"batches", len(batches),
		"start", g.startDate,
		"end", end.Format("2006-01-02"))

	runStart := time.Now()
	total := 0
	for i, batch := range batches {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		var bars map[string][]marketdata.Bar
		err := util.Retry(ctx, 3, time.Second, func() error {
			var fetchErr error
			bars, fetchErr = g.client.GetMultiBars(batch, marketdata.GetBarsRequest{
				TimeFrame: marketdata.OneDay,
				Start:     start,
				End:       end,
				Feed:      "sip",
			})
			return fetchErr
		})
		if err != nil {
			return fmt.Errorf("ingest: batch %d/%d: %w", i+1, len(batches), err)
		}

		obs := barsToObservations(bars)
		if len(obs) > 0 {
			if err := g.store.WriteObservations(ctx, g.universe, obs); err != nil {
				return fmt.Errorf("ingest: writing batch %d/%d: %w", i+1, len(batches), err)
			}
		}
		total += len(obs)
		g.log.Info("batch done",
			"batch", fmt.Sprintf("%d/%d", i+1, len(batches)),
			"observations", len(obs),
			"elapsed", time.Since(runStart).Round(time.Second))
	}

	g.log.Info("ingest complete", "observations", total, "elapsed", time.Since(runStart).Round(time.Second))
	return nil
}

// batchSymbols splits the symbol list into batches of at most size.
func batchSymbols(symbols []string, size int) [][]string {
	if size <= 0 {
		size = len(symbols)
	}
	var batches [][]string
	for i := 0; i < len(symbols); i += size {
		end := i + size
		if end > len(symbols) {
			end = len(symbols)
		}
		batches = append(batches, symbols[i:end])
	}
	return batches
}

// barsToObservations converts Alpaca daily bars into closing-price
// observations. Bar timestamps are normalized to UTC midnight so dates
// compare cleanly across sources.
func barsToObservations(bars map[string][]marketdata.Bar) []domain.Observation {
	var obs []domain.Observation
	for symbol, symbolBars := range bars {
		asset := strings.ToUpper(symbol)
		for _, b := range symbolBars {
			ts := b.Timestamp.UTC()
			obs = append(obs, domain.Observation{
				Asset:  asset,
				Date:   time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
				Price:  b.Close,
				Volume: int64(b.Volume),
			})
		}
	}
	return obs
}
