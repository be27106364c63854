package engine

import "fmt"

// Position tracks the holding of a single symbol. Quantity is always a
// whole number of shares and never negative.
type Position struct {
	Symbol       string
	Quantity     int
	AvgPrice     float64
	CurrentPrice float64
}

// MarketValue returns the position value at the last known price.
func (p *Position) MarketValue() float64 {
	return float64(p.Quantity) * p.CurrentPrice
}

// Add increases the position by quantity shares bought at price and
// recomputes AvgPrice as a quantity-weighted average.
func (p *Position) Add(quantity int, price float64) error {
	if quantity <= 0 {
		return fmt.Errorf("buy quantity must be positive, got %d", quantity)
	}
	totalCost := p.AvgPrice*float64(p.Quantity) + price*float64(quantity)
	p.Quantity += quantity
	p.AvgPrice = totalCost / float64(p.Quantity)
	p.CurrentPrice = price
	return nil
}

// Reduce decreases the position by quantity shares. AvgPrice is left
// unchanged on partial sells. Selling more than the held quantity fails
// with ErrOverSell and leaves the position untouched.
func (p *Position) Reduce(quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("sell quantity must be positive, got %d", quantity)
	}
	if quantity > p.Quantity {
		return fmt.Errorf("%w: held %d, requested %d", ErrOverSell, p.Quantity, quantity)
	}
	p.Quantity -= quantity
	return nil
}

// IsClosed reports whether the position has been fully liquidated.
func (p *Position) IsClosed() bool {
	return p.Quantity == 0
}
