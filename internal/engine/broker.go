package engine

import (
	"fmt"
	"math"

	"quantbt/internal/config"
	"quantbt/internal/domain"
)

// Position limits enforced at the engine level, independent of strategy
// behavior.
const (
	// MaxPositionWeight caps a single symbol at 40% of equity.
	MaxPositionWeight = 0.40
	// MinCashReserveRatio keeps at least 5% of equity in cash after a buy.
	MinCashReserveRatio = 0.05
)

// Broker is a pure, stateless cost and limit model parameterized by a
// market configuration. Slippage always works against the trader and
// commissions have a per-market floor.
type Broker struct {
	config    config.MarketConfig
	timeframe domain.Timeframe
}

// NewBroker creates a Broker from an explicit market configuration.
func NewBroker(mc config.MarketConfig, timeframe domain.Timeframe) *Broker {
	return &Broker{config: mc, timeframe: timeframe}
}

// NewBrokerForMarket creates a Broker using the built-in cost table for the
// given market.
func NewBrokerForMarket(market domain.Market, timeframe domain.Timeframe) (*Broker, error) {
	mc, ok := config.DefaultMarket(market)
	if !ok {
		return nil, fmt.Errorf("unknown market %q", market)
	}
	return NewBroker(mc, timeframe), nil
}

// Config returns the broker's market configuration.
func (b *Broker) Config() config.MarketConfig {
	return b.config
}

// Slippage returns the fractional slippage for the broker's timeframe.
func (b *Broker) Slippage() float64 {
	if b.timeframe == domain.TimeframeDaily {
		return b.config.SlippageDaily
	}
	return b.config.SlippageHourly
}

// FillPrice derives the execution price from the next bar's open. Buys fill
// above the open, sells below it.
func (b *Broker) FillPrice(nextOpen float64, side domain.OrderSide) float64 {
	slippage := b.Slippage()
	if side == domain.OrderSideBuy {
		return nextOpen * (1 + slippage)
	}
	return nextOpen * (1 - slippage)
}

// Commission returns the trading fee for a fill: notional times the market
// commission rate, floored at the market minimum.
func (b *Broker) Commission(fillPrice float64, quantity int) float64 {
	raw := fillPrice * float64(quantity) * b.config.CommissionRate
	return math.Max(raw, b.config.MinCommission)
}

// Quantity converts a target weight into a whole share count. The target
// notional is equity times weight, clamped so the symbol's total exposure
// stays at or below MaxPositionWeight of equity. Targets below the market's
// minimum order amount yield zero.
func (b *Broker) Quantity(equity, weight, fillPrice, currentPositionValue float64) int {
	targetValue := equity * weight

	maxValue := equity * MaxPositionWeight
	if allowed := maxValue - currentPositionValue; targetValue > allowed {
		targetValue = allowed
	}

	if targetValue < b.config.MinOrderAmount {
		return 0
	}

	quantity := int(math.Floor(targetValue / fillPrice))
	if quantity < 0 {
		return 0
	}
	return quantity
}

// Validate performs the final pre-fill check of a buy. It reports whether
// the order may proceed and, when it may not, the reason code.
func (b *Broker) Validate(equity, availableCash, fillPrice float64, quantity int) (bool, RejectReason) {
	orderValue := fillPrice * float64(quantity)
	commission := b.Commission(fillPrice, quantity)
	totalCost := orderValue + commission

	if totalCost > availableCash {
		return false, RejectInsufficientCash
	}

	if remaining := availableCash - totalCost; remaining < equity*MinCashReserveRatio {
		return false, RejectCashReserve
	}

	if orderValue < b.config.MinOrderAmount {
		return false, RejectBelowMinOrder
	}

	return true, ""
}
