package engine

import (
	"fmt"
	"sort"

	"quantbt/internal/domain"
)

// Portfolio tracks cash and per-symbol positions. It is mutated only through
// ExecuteBuy, ExecuteSell, and UpdateMarketPrices, which preserve the
// accounting identity equity == cash + sum of position market values.
type Portfolio struct {
	cash      float64
	positions map[string]*Position
}

// NewPortfolio creates a portfolio holding only cash.
func NewPortfolio(initialCapital float64) *Portfolio {
	return &Portfolio{
		cash:      initialCapital,
		positions: make(map[string]*Position),
	}
}

// Cash returns the available cash balance.
func (p *Portfolio) Cash() float64 {
	return p.cash
}

// Equity returns total portfolio value: cash plus all position market values.
func (p *Portfolio) Equity() float64 {
	value := p.cash
	for _, pos := range p.positions {
		value += pos.MarketValue()
	}
	return value
}

// Position returns the position held in symbol, or nil when flat.
func (p *Portfolio) Position(symbol string) *Position {
	return p.positions[symbol]
}

// Symbols returns the symbols with open positions in sorted order.
func (p *Portfolio) Symbols() []string {
	symbols := make([]string, 0, len(p.positions))
	for sym := range p.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// PositionWeight returns the fraction of equity held in symbol, 0 when no
// position is held or equity is zero.
func (p *Portfolio) PositionWeight(symbol string) float64 {
	pos, ok := p.positions[symbol]
	if !ok {
		return 0
	}
	equity := p.Equity()
	if equity == 0 {
		return 0
	}
	return pos.MarketValue() / equity
}

// UpdateMarketPrices marks every position present in prices to its latest
// close. Symbols without a price keep their previous mark.
func (p *Portfolio) UpdateMarketPrices(prices map[string]float64) {
	for symbol, price := range prices {
		if pos, ok := p.positions[symbol]; ok {
			pos.CurrentPrice = price
		}
	}
}

// ExecuteBuy applies a buy fill: cash decreases by notional plus commission
// and the position's average price is recomputed as a quantity-weighted
// average. Fails with ErrInsufficientCash when the total cost exceeds cash,
// leaving state unchanged.
func (p *Portfolio) ExecuteBuy(symbol string, quantity int, fillPrice, commission float64) error {
	totalCost := fillPrice*float64(quantity) + commission
	if totalCost > p.cash {
		return fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, totalCost, p.cash)
	}

	pos, ok := p.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		p.positions[symbol] = pos
	}
	if err := pos.Add(quantity, fillPrice); err != nil {
		if pos.Quantity == 0 {
			delete(p.positions, symbol)
		}
		return err
	}

	p.cash -= totalCost
	return nil
}

// ExecuteSell applies a sell fill: cash increases by notional minus
// commission and the position quantity shrinks, keeping its average price.
// A fully liquidated position is removed. Fails with ErrNoPosition or
// ErrOverSell without any partial state change.
func (p *Portfolio) ExecuteSell(symbol string, quantity int, fillPrice, commission float64) error {
	pos, ok := p.positions[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}
	if err := pos.Reduce(quantity); err != nil {
		return err
	}

	p.cash += fillPrice*float64(quantity) - commission

	if pos.IsClosed() {
		delete(p.positions, symbol)
	} else {
		pos.CurrentPrice = fillPrice
	}
	return nil
}

// Snapshot returns an immutable view of the portfolio for strategy code.
func (p *Portfolio) Snapshot() domain.PortfolioView {
	view := domain.PortfolioView{
		Cash:      p.cash,
		Equity:    p.Equity(),
		Positions: make(map[string]domain.PositionSnapshot, len(p.positions)),
	}
	for symbol, pos := range p.positions {
		view.Positions[symbol] = domain.PositionSnapshot{
			Symbol:       pos.Symbol,
			Quantity:     pos.Quantity,
			AvgPrice:     pos.AvgPrice,
			CurrentPrice: pos.CurrentPrice,
			MarketValue:  pos.MarketValue(),
		}
	}
	return view
}
