package domain

import "testing"

func TestPortfolioViewPositionLookups(t *testing.T) {
	view := PortfolioView{
		Cash:   500_000,
		Equity: 1_000_000,
		Positions: map[string]PositionSnapshot{
			"AAPL": {Symbol: "AAPL", Quantity: 100, AvgPrice: 150, CurrentPrice: 160, MarketValue: 16_000},
		},
	}

	if !view.Holds("AAPL") {
		t.Error("Holds(AAPL) = false, want true")
	}
	if view.Holds("MSFT") {
		t.Error("Holds(MSFT) = true, want false")
	}

	pos, ok := view.Position("AAPL")
	if !ok || pos.Quantity != 100 {
		t.Errorf("Position(AAPL) = %+v, %v", pos, ok)
	}
	if _, ok := view.Position("MSFT"); ok {
		t.Error("Position(MSFT) should not exist")
	}

	if got := view.PositionWeight("AAPL"); got != 0.016 {
		t.Errorf("PositionWeight = %v, want 0.016", got)
	}
	if got := view.PositionWeight("MSFT"); got != 0 {
		t.Errorf("PositionWeight(MSFT) = %v, want 0", got)
	}
}

func TestPortfolioViewZeroEquity(t *testing.T) {
	view := PortfolioView{
		Positions: map[string]PositionSnapshot{
			"AAPL": {Symbol: "AAPL", Quantity: 1, MarketValue: 100},
		},
	}
	if got := view.PositionWeight("AAPL"); got != 0 {
		t.Errorf("PositionWeight with zero equity = %v, want 0", got)
	}
}
