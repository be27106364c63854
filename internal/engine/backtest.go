// Package engine implements the deterministic bar-replay backtest core:
// broker cost model, portfolio bookkeeping, and the two-phase signal/fill
// simulation loop.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"quantbt/internal/domain"
	"quantbt/internal/strategy"
)

// ProgressFunc receives the completion percentage (0..100) once per
// processed bar. It is purely observational and its return is ignored.
type ProgressFunc func(percent int)

// Options configures a single backtest run.
type Options struct {
	InitialCapital float64

	// ForceCloseAtEnd liquidates positions still open after the final bar
	// at that bar's close (with normal slippage and commission), turning
	// them into closed trades. When false, open positions contribute
	// unrealized value to the final equity and never appear as closed
	// trades.
	ForceCloseAtEnd bool

	OnProgress ProgressFunc
	Logger     *slog.Logger
}

// Result is the complete output of a backtest run.
type Result struct {
	Trades      []domain.Trade
	EquityCurve []domain.EquityPoint
	FinalEquity float64
}

// Engine replays historical bars through a strategy, pricing the resulting
// intents with a Broker and applying accepted fills to a Portfolio.
//
// The simulation is two-phase: orders produced on bar t are filled at bar
// t+1's open, so a decision can never see the price it executes at. A run
// is fully deterministic; identical inputs produce identical trade ledgers
// and equity curves.
type Engine struct {
	strategy  strategy.Strategy
	data      map[string][]domain.Bar
	broker    *Broker
	opts      Options
	portfolio *Portfolio
	log       *slog.Logger
}

// New creates an Engine over fully materialized per-symbol bar sequences.
// Each sequence must be in ascending timestamp order.
func New(strat strategy.Strategy, data map[string][]domain.Bar, broker *Broker, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		strategy: strat,
		data:     data,
		broker:   broker,
		opts:     opts,
		log:      log,
	}
}

// Run executes the backtest. It fails with an ErrValidation-wrapped error
// before any simulation step when the inputs are unusable; all other
// anomalies (rejected orders, data gaps, degenerate statistics) are
// recovered locally and the simulation continues. Cancellation is checked
// only at bar boundaries.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}

	timeline, barIndex := e.buildTimeline()
	e.portfolio = NewPortfolio(e.opts.InitialCapital)
	ledger := newTradeLedger()

	// Fewer than two bars: nothing can ever fill. Report a single equity
	// point at the initial capital and finish without error.
	if len(timeline) < 2 {
		point := domain.EquityPoint{Equity: e.opts.InitialCapital, Cash: e.opts.InitialCapital}
		if len(timeline) == 1 {
			point.Date = timeline[0]
		}
		e.progress(100)
		return &Result{
			Trades:      []domain.Trade{},
			EquityCurve: []domain.EquityPoint{point},
			FinalEquity: e.opts.InitialCapital,
		}, nil
	}

	var (
		pending     []domain.PendingOrder
		equityCurve = make([]domain.EquityPoint, 0, len(timeline))
		peak        = e.opts.InitialCapital
		lastClose   = make(map[string]float64, len(e.data))
	)

	total := len(timeline)
	for i, ts := range timeline {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bars := barIndex[ts.UnixNano()]

		// 1) Fill orders queued on the previous bar at this bar's open.
		if len(pending) > 0 {
			e.fillOrders(pending, bars, ledger)
			pending = nil
		}

		// 2) Mark positions to this bar's closes.
		prices := make(map[string]float64, len(bars))
		for symbol, bar := range bars {
			prices[symbol] = bar.Close
			lastClose[symbol] = bar.Close
		}
		e.portfolio.UpdateMarketPrices(prices)

		// 3) Record the equity point.
		equity := e.portfolio.Equity()
		if equity > peak {
			peak = equity
		}
		var drawdown float64
		if peak > 0 {
			drawdown = (equity - peak) / peak
		}
		equityCurve = append(equityCurve, domain.EquityPoint{
			Date:     ts,
			Equity:   equity,
			Cash:     e.portfolio.Cash(),
			Drawdown: drawdown,
		})

		// 4) Ask the strategy for new intents, except on the final bar:
		// there is no next open to fill them at.
		if i < total-1 {
			orders := e.strategy.OnBar(bars, e.portfolio.Snapshot())
			for _, order := range orders {
				bar, ok := bars[order.Symbol]
				if !ok {
					e.log.Warn("order for symbol without bar dropped",
						"symbol", order.Symbol, "date", ts)
					continue
				}
				order.SignalPrice = bar.Close
				order.SignalDate = bar.Timestamp
				pending = append(pending, order)
			}
		}

		// 5) Progress callback, once per processed bar.
		e.progress((i + 1) * 100 / total)
	}

	if e.opts.ForceCloseAtEnd {
		finalTS := timeline[total-1]
		e.forceClose(ledger, finalTS, lastClose)

		// Liquidation costs land on the final bar, so restate its point.
		equity := e.portfolio.Equity()
		if equity > peak {
			peak = equity
		}
		var drawdown float64
		if peak > 0 {
			drawdown = (equity - peak) / peak
		}
		equityCurve[len(equityCurve)-1] = domain.EquityPoint{
			Date:     finalTS,
			Equity:   equity,
			Cash:     e.portfolio.Cash(),
			Drawdown: drawdown,
		}
	}

	e.progress(100)

	return &Result{
		Trades:      ledger.trades,
		EquityCurve: equityCurve,
		FinalEquity: e.portfolio.Equity(),
	}, nil
}

// validate checks the run inputs. Failures here abort the entire run.
func (e *Engine) validate() error {
	if e.strategy == nil {
		return fmt.Errorf("%w: no strategy", ErrValidation)
	}
	if e.broker == nil {
		return fmt.Errorf("%w: no broker", ErrValidation)
	}
	if e.opts.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial capital must be positive, got %.2f",
			ErrValidation, e.opts.InitialCapital)
	}
	if len(e.data) == 0 {
		return fmt.Errorf("%w: no bar data", ErrValidation)
	}
	for symbol, bars := range e.data {
		if len(bars) == 0 {
			return fmt.Errorf("%w: symbol %q has no bars", ErrValidation, symbol)
		}
		for i := 1; i < len(bars); i++ {
			if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
				return fmt.Errorf("%w: bars for %q not in ascending timestamp order",
					ErrValidation, symbol)
			}
		}
	}
	return nil
}

// buildTimeline collects the union of all symbols' timestamps in ascending
// order and returns a lookup of the bars present at each one. A symbol
// lacking a bar at a timestamp other symbols have is simply absent from
// that timestamp's map and is skipped for that bar only.
func (e *Engine) buildTimeline() ([]time.Time, map[int64]map[string]domain.Bar) {
	barIndex := make(map[int64]map[string]domain.Bar)
	stamps := make(map[int64]time.Time)
	for symbol, bars := range e.data {
		for _, bar := range bars {
			key := bar.Timestamp.UnixNano()
			if barIndex[key] == nil {
				barIndex[key] = make(map[string]domain.Bar)
				stamps[key] = bar.Timestamp
			}
			barIndex[key][symbol] = bar
		}
	}

	timeline := make([]time.Time, 0, len(barIndex))
	for _, ts := range stamps {
		timeline = append(timeline, ts)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Before(timeline[j]) })
	return timeline, barIndex
}

// progress fires the configured progress callback, if any.
func (e *Engine) progress(percent int) {
	if e.opts.OnProgress != nil {
		e.opts.OnProgress(percent)
	}
}

// fillOrders prices and applies one bar's pending orders in submission
// order. The equity used for position sizing is snapshotted before any of
// this bar's fills are applied; cash validation sees fills as they land.
func (e *Engine) fillOrders(orders []domain.PendingOrder, bars map[string]domain.Bar, ledger *tradeLedger) {
	equity := e.portfolio.Equity()

	for _, order := range orders {
		bar, ok := bars[order.Symbol]
		if !ok {
			e.log.Warn("order dropped: no bar for symbol",
				"symbol", order.Symbol, "side", order.Side)
			continue
		}

		fillPrice := e.broker.FillPrice(bar.Open, order.Side)

		switch order.Side {
		case domain.OrderSideBuy:
			e.fillBuy(order, fillPrice, bar.Timestamp, equity, ledger)
		case domain.OrderSideSell:
			e.fillSell(order, fillPrice, bar.Timestamp, ledger)
		}
	}
}

func (e *Engine) fillBuy(order domain.PendingOrder, fillPrice float64, fillDate time.Time, equity float64, ledger *tradeLedger) {
	var currentValue float64
	if pos := e.portfolio.Position(order.Symbol); pos != nil {
		currentValue = pos.MarketValue()
	}

	quantity := e.broker.Quantity(equity, order.Weight, fillPrice, currentValue)
	if quantity == 0 {
		e.log.Info("buy rejected", "symbol", order.Symbol, "reason", RejectBelowMinOrder)
		return
	}

	ok, reason := e.broker.Validate(equity, e.portfolio.Cash(), fillPrice, quantity)
	if !ok {
		e.log.Info("buy rejected", "symbol", order.Symbol, "reason", reason)
		return
	}

	commission := e.broker.Commission(fillPrice, quantity)
	if err := e.portfolio.ExecuteBuy(order.Symbol, quantity, fillPrice, commission); err != nil {
		e.log.Info("buy rejected", "symbol", order.Symbol, "reason", RejectInsufficientCash, "err", err)
		return
	}

	ledger.recordBuy(order, quantity, fillPrice, fillDate, commission)
	e.log.Info("buy filled",
		"symbol", order.Symbol,
		"quantity", quantity,
		"price", fillPrice,
		"commission", commission,
		"reason", order.Reason,
	)
}

func (e *Engine) fillSell(order domain.PendingOrder, fillPrice float64, fillDate time.Time, ledger *tradeLedger) {
	pos := e.portfolio.Position(order.Symbol)
	if pos == nil {
		e.log.Warn("sell dropped: no position", "symbol", order.Symbol)
		return
	}

	// Sells always exit the full held quantity.
	quantity := pos.Quantity
	commission := e.broker.Commission(fillPrice, quantity)
	if err := e.portfolio.ExecuteSell(order.Symbol, quantity, fillPrice, commission); err != nil {
		e.log.Info("sell rejected", "symbol", order.Symbol, "reason", RejectOverSell, "err", err)
		return
	}

	ledger.recordSell(order, quantity, fillPrice, fillDate, commission)
	e.log.Info("sell filled",
		"symbol", order.Symbol,
		"quantity", quantity,
		"price", fillPrice,
		"commission", commission,
		"reason", order.Reason,
	)
}

// forceClose liquidates every remaining position at the final bar's last
// known close, in sorted symbol order for determinism.
func (e *Engine) forceClose(ledger *tradeLedger, ts time.Time, lastClose map[string]float64) {
	for _, symbol := range e.portfolio.Symbols() {
		pos := e.portfolio.Position(symbol)
		price, ok := lastClose[symbol]
		if !ok {
			price = pos.CurrentPrice
		}

		fillPrice := e.broker.FillPrice(price, domain.OrderSideSell)
		quantity := pos.Quantity
		commission := e.broker.Commission(fillPrice, quantity)

		order := domain.PendingOrder{
			Symbol:      symbol,
			Side:        domain.OrderSideSell,
			Weight:      1.0,
			Reason:      "liquidated at end of data",
			SignalPrice: price,
			SignalDate:  ts,
		}

		if err := e.portfolio.ExecuteSell(symbol, quantity, fillPrice, commission); err != nil {
			e.log.Warn("force close failed", "symbol", symbol, "err", err)
			continue
		}
		ledger.recordSell(order, quantity, fillPrice, ts, commission)
		e.log.Info("position liquidated at end",
			"symbol", symbol, "quantity", quantity, "price", fillPrice)
	}
}
