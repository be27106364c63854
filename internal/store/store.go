// Package store persists and retrieves quantbt data: historical OHLCV bars
// in Parquet files and completed backtest runs in SQLite.
package store

import (
	"context"
	"time"

	"quantbt/internal/analytics"
	"quantbt/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars under the given market.
	WriteBars(ctx context.Context, market domain.Market, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market domain.Market, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market domain.Market) ([]string, error)
}

// Run is a persisted backtest run: its configuration, summary statistics,
// and full outputs.
type Run struct {
	ID          int64
	Strategy    string
	Params      map[string]float64
	Market      domain.Market
	Symbols     []string
	InitialCash float64
	CreatedAt   time.Time

	Summary     analytics.Summary
	Trades      []domain.Trade
	EquityCurve []domain.EquityPoint
}

// RunStore persists and retrieves completed backtest runs.
type RunStore interface {
	// SaveRun persists a run and returns its assigned ID.
	SaveRun(ctx context.Context, run *Run) (int64, error)

	// GetRun retrieves a run with its trades and equity curve by ID.
	GetRun(ctx context.Context, id int64) (*Run, error)

	// ListRuns returns run headers (no trades or curve), newest first, up to
	// limit.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
