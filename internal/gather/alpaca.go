package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantbt/internal/config"
	"quantbt/internal/domain"
	"quantbt/internal/store"
	"quantbt/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*DailyBarGatherer)(nil)

// DailyBarGatherer fetches daily OHLCV bars for an explicit symbol list via
// the Alpaca market-data API and writes them to the bar store. Failed
// batches are retried with exponential backoff.
type DailyBarGatherer struct {
	client    *marketdata.Client
	store     store.BarStore
	market    domain.Market
	symbols   []string
	rng       DateRange
	batchSize int
	log       *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer over the given symbols and
// date range. batchSize bounds the symbols per API call; 0 means 200.
func NewDailyBarGatherer(creds config.Alpaca, s store.BarStore, market domain.Market, symbols []string, rng DateRange, batchSize int) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    creds.APIKey,
		APISecret: creds.APISecret,
	}
	if creds.DataURL != "" {
		opts.BaseURL = creds.DataURL
	}
	if batchSize <= 0 {
		batchSize = 200
	}

	return &DailyBarGatherer{
		client:    marketdata.NewClient(opts),
		store:     s,
		market:    market,
		symbols:   symbols,
		rng:       rng,
		batchSize: batchSize,
		log:       slog.Default().With("gatherer", "alpaca-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "alpaca-daily" }

// Run fetches the configured symbols batch by batch and persists each batch
// before moving on, so a partial run still leaves usable data behind.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		return fmt.Errorf("no symbols to gather")
	}

	runStart := time.Now()
	total := 0

	for i := 0; i < len(g.symbols); i += g.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := i + g.batchSize
		if end > len(g.symbols) {
			end = len(g.symbols)
		}
		batch := g.symbols[i:end]

		var bars []domain.Bar
		backoff := util.Backoff{Attempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second}
		err := backoff.Do(ctx, func() error {
			var fetchErr error
			bars, fetchErr = g.fetchMultiBars(batch)
			return fetchErr
		})
		if err != nil {
			return fmt.Errorf("fetching batch %v: %w", batch, err)
		}

		if len(bars) > 0 {
			if err := g.store.WriteBars(ctx, g.market, bars); err != nil {
				return fmt.Errorf("writing bars: %w", err)
			}
		}
		total += len(bars)

		g.log.Info("batch done",
			"symbols", len(batch),
			"bars", len(bars),
			"elapsed", time.Since(runStart).Round(time.Second),
		)
	}

	g.log.Info("complete", "bars", total, "elapsed", time.Since(runStart).Round(time.Second))
	return nil
}

// fetchMultiBars fetches daily bars for multiple symbols in a single API call.
func (g *DailyBarGatherer) fetchMultiBars(symbols []string) ([]domain.Bar, error) {
	multiBars, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     g.rng.Start,
		End:       g.rng.End,
		Feed:      "sip",
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:    strings.ToUpper(symbol),
				Timestamp: ab.Timestamp,
				Open:      ab.Open,
				High:      ab.High,
				Low:       ab.Low,
				Close:     ab.Close,
				Volume:    float64(ab.Volume),
			})
		}
	}
	return bars, nil
}
