package domain

// PositionSnapshot is an immutable copy of a portfolio position.
type PositionSnapshot struct {
	Symbol       string
	Quantity     int
	AvgPrice     float64
	CurrentPrice float64
	MarketValue  float64
}

// PortfolioView is a read-only snapshot of portfolio state handed to
// strategies. Strategies observe cash, equity, and positions through it but
// can never mutate the underlying portfolio.
type PortfolioView struct {
	Cash      float64
	Equity    float64
	Positions map[string]PositionSnapshot
}

// Position returns the snapshot for symbol. The second return value reports
// whether a position is held.
func (v PortfolioView) Position(symbol string) (PositionSnapshot, bool) {
	p, ok := v.Positions[symbol]
	return p, ok
}

// Holds reports whether the portfolio holds a non-zero position in symbol.
func (v PortfolioView) Holds(symbol string) bool {
	p, ok := v.Positions[symbol]
	return ok && p.Quantity > 0
}

// PositionWeight returns the fraction of equity held in symbol, 0 when no
// position is held or equity is zero.
func (v PortfolioView) PositionWeight(symbol string) float64 {
	p, ok := v.Positions[symbol]
	if !ok || v.Equity == 0 {
		return 0
	}
	return p.MarketValue / v.Equity
}
