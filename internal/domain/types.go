// Package domain defines the core types shared across the quantbt platform:
// bars, orders, trades, and equity points.
package domain

import "time"

// Market identifies a trading venue with its own cost structure.
type Market string

const (
	MarketKR Market = "KR"
	MarketUS Market = "US"
)

// Timeframe identifies the bar interval a simulation runs on. It selects
// which slippage figure the broker applies.
type Timeframe string

const (
	TimeframeDaily  Timeframe = "1d"
	TimeframeHourly Timeframe = "1h"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Bar is one OHLCV observation for a symbol at a timestamp.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// PendingOrder is an order intent produced by a strategy on bar t. The
// quantity is expressed as a weight (fraction of portfolio equity to
// target); the engine converts it to a share count at bar t+1's open. For
// sells, the weight is ignored and the engine always sells the entire
// held quantity.
//
// SignalPrice and SignalDate are stamped by the engine from the bar that
// produced the order. A pending order is consumed exactly once on the
// following bar and never retried.
type PendingOrder struct {
	Symbol      string
	Side        OrderSide
	Weight      float64
	Reason      string
	SignalPrice float64
	SignalDate  time.Time
}

// Trade is a filled order in the trade ledger. Entry fields are immutable
// once created; exit fields are populated only when a matching sell closes
// the position, at which point Closed is set and PnL, PnLPercent, and
// HoldingDays are derived.
type Trade struct {
	Symbol      string
	Side        OrderSide
	Quantity    int
	SignalPrice float64
	SignalDate  time.Time
	FillPrice   float64
	FillDate    time.Time
	Commission  float64

	Closed          bool
	ExitSignalPrice float64
	ExitFillPrice   float64
	ExitDate        time.Time
	ExitCommission  float64
	PnL             float64
	PnLPercent      float64
	HoldingDays     int
}

// EquityPoint is one sample of the portfolio equity curve. Drawdown is the
// fractional decline from the running equity peak, zero or negative.
type EquityPoint struct {
	Date     time.Time
	Equity   float64
	Cash     float64
	Drawdown float64
}
