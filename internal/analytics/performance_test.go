package analytics

import (
	"math"
	"testing"
	"time"

	"quantbt/internal/domain"
)

func curveOf(equities ...float64) []domain.EquityPoint {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	curve := make([]domain.EquityPoint, len(equities))
	for i, e := range equities {
		curve[i] = domain.EquityPoint{Date: base.AddDate(0, 0, i), Equity: e}
	}
	return curve
}

func closedTrades(pnls ...float64) []domain.Trade {
	trades := make([]domain.Trade, len(pnls))
	for i, pnl := range pnls {
		trades[i] = domain.Trade{Symbol: "A", Side: domain.OrderSideBuy, Closed: true, PnL: pnl}
	}
	return trades
}

func TestReturnsFirstIsZero(t *testing.T) {
	rets := Returns(curveOf(100, 110, 99))

	if len(rets) != 3 {
		t.Fatalf("len = %d, want 3", len(rets))
	}
	if rets[0] != 0 {
		t.Errorf("first return = %v, want 0", rets[0])
	}
	if math.Abs(rets[1]-0.10) > 1e-9 {
		t.Errorf("rets[1] = %v, want 0.10", rets[1])
	}
	if math.Abs(rets[2]-(-0.10)) > 1e-9 {
		t.Errorf("rets[2] = %v, want -0.10", rets[2])
	}
}

func TestReturnsEmptyCurve(t *testing.T) {
	if rets := Returns(nil); len(rets) != 0 {
		t.Errorf("len = %d, want 0", len(rets))
	}
}

func TestTotalReturn(t *testing.T) {
	if got := TotalReturn(curveOf(100, 120)); math.Abs(got-0.20) > 1e-9 {
		t.Errorf("total return = %v, want 0.20", got)
	}
	if got := TotalReturn(curveOf(100)); got != 0 {
		t.Errorf("single point total return = %v, want 0", got)
	}
}

func TestAnnualReturnGeometric(t *testing.T) {
	// +10% over 126 bars at 252 bars/year doubles geometrically:
	// (1.1)^(252/126) - 1 = 0.21.
	curve := make([]domain.EquityPoint, 126)
	for i := range curve {
		curve[i].Equity = 100
	}
	curve[len(curve)-1].Equity = 110

	got := AnnualReturn(curve, 252)
	if math.Abs(got-0.21) > 1e-9 {
		t.Errorf("annual return = %v, want 0.21", got)
	}
}

func TestSharpeZeroVariance(t *testing.T) {
	rets := []float64{0.01, 0.01, 0.01, 0.01}
	if got := SharpeRatio(rets, 0, 252); got != 0 {
		t.Errorf("sharpe = %v, want 0 on zero variance", got)
	}
}

func TestSharpeKnownValue(t *testing.T) {
	rets := []float64{0.01, -0.01, 0.02, 0.00}
	// mean = 0.005, sample std = sqrt(sum((x-m)^2)/3).
	m := 0.005
	var ss float64
	for _, r := range rets {
		d := r - m
		ss += d * d
	}
	sd := math.Sqrt(ss / 3)
	want := m / sd * math.Sqrt(252)

	got := SharpeRatio(rets, 0, 252)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("sharpe = %v, want %v", got, want)
	}
}

func TestSortinoNoDownside(t *testing.T) {
	rets := []float64{0.01, 0.02, 0.01, 0.03}
	if got := SortinoRatio(rets, 0, 252); got != 0 {
		t.Errorf("sortino = %v, want 0 with no downside", got)
	}
}

func TestSortinoDownsideIsRawNegativeReturns(t *testing.T) {
	// Tiny positive returns fall below the per-bar risk-free rate but are
	// not losses. The downside set is empty and the ratio is 0.
	rets := []float64{0.00001, 0.00002, 0.00001, 0.00002}
	if got := SortinoRatio(rets, 0.02, 252); got != 0 {
		t.Errorf("sortino = %v, want 0 without negative returns", got)
	}
}

func TestSortinoKnownValue(t *testing.T) {
	rets := []float64{0.02, -0.01, 0.03, -0.02, 0.01}
	got := SortinoRatio(rets, 0, 252)

	// Downside deviation is the sample std of the negative returns only.
	dd := math.Sqrt((math.Pow(-0.01+0.015, 2) + math.Pow(-0.02+0.015, 2)) / 1)
	want := 0.006 / dd * math.Sqrt(252)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("sortino = %v, want %v", got, want)
	}
}

func TestMaxDrawdownFlatCurve(t *testing.T) {
	if got := MaxDrawdown(curveOf(100, 100, 100)); got != 0 {
		t.Errorf("flat curve drawdown = %v, want 0", got)
	}
}

func TestMaxDrawdownKnownValue(t *testing.T) {
	// Peak 120, trough 90: drawdown 25%.
	got := MaxDrawdown(curveOf(100, 120, 90, 110))
	if math.Abs(got-0.25) > 1e-9 {
		t.Errorf("max drawdown = %v, want 0.25", got)
	}
	if got < 0 || got > 1 {
		t.Errorf("max drawdown %v out of [0, 1]", got)
	}
}

func TestWinRate(t *testing.T) {
	trades := closedTrades(100, -50, 200, -30)
	if got := WinRate(trades); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("win rate = %v, want 0.5", got)
	}
	if got := WinRate(nil); got != 0 {
		t.Errorf("empty win rate = %v, want 0", got)
	}
}

func TestWinRateIgnoresOpenTrades(t *testing.T) {
	trades := append(closedTrades(100), domain.Trade{Symbol: "A", PnL: -999})
	if got := WinRate(trades); got != 1.0 {
		t.Errorf("win rate = %v, want 1.0 ignoring open trades", got)
	}
}

func TestProfitFactor(t *testing.T) {
	trades := closedTrades(100, -50, 200, -30)
	// 300 / 80.
	if got := ProfitFactor(trades); math.Abs(got-3.75) > 1e-9 {
		t.Errorf("profit factor = %v, want 3.75", got)
	}
}

func TestProfitFactorAllWinners(t *testing.T) {
	if got := ProfitFactor(closedTrades(100, 50)); !math.IsInf(got, 1) {
		t.Errorf("profit factor = %v, want +Inf", got)
	}
}

func TestProfitFactorNoTrades(t *testing.T) {
	if got := ProfitFactor(nil); got != 0 {
		t.Errorf("profit factor = %v, want 0", got)
	}
}

func TestConsecutiveWinsLosses(t *testing.T) {
	// W W W L L W.
	trades := closedTrades(10, 20, 30, -5, -5, 10)

	if got := MaxConsecutiveWins(trades); got != 3 {
		t.Errorf("max consecutive wins = %d, want 3", got)
	}
	if got := MaxConsecutiveLosses(trades); got != 2 {
		t.Errorf("max consecutive losses = %d, want 2", got)
	}
}

func TestZeroPnLCountsAsLoss(t *testing.T) {
	trades := closedTrades(10, 0, 10)

	if got := MaxConsecutiveWins(trades); got != 1 {
		t.Errorf("max consecutive wins = %d, want 1 (zero pnl breaks streak)", got)
	}
	if got := MaxConsecutiveLosses(trades); got != 1 {
		t.Errorf("max consecutive losses = %d, want 1 (zero pnl is a loss)", got)
	}
}

func TestCalmarRatio(t *testing.T) {
	if got := CalmarRatio(0.30, 0.15); math.Abs(got-2.0) > 1e-9 {
		t.Errorf("calmar = %v, want 2.0", got)
	}
	if got := CalmarRatio(0.30, 0); got != 0 {
		t.Errorf("calmar = %v, want 0 on zero drawdown", got)
	}
}

func TestValueAtRisk(t *testing.T) {
	rets := []float64{-0.05, -0.02, 0.01, 0.02, 0.03}

	got := ValueAtRisk(rets, 0.95)
	if got <= 0 {
		t.Errorf("VaR = %v, want positive loss figure", got)
	}
	// 5th percentile of the sorted returns interpolates between -0.05 and
	// -0.02: -0.05 + 0.2*(0.03) = -0.044.
	if math.Abs(got-0.044) > 1e-9 {
		t.Errorf("VaR = %v, want 0.044", got)
	}
}

func TestValueAtRiskNoLosses(t *testing.T) {
	if got := ValueAtRisk([]float64{0.01, 0.02, 0.03}, 0.95); got != 0 {
		t.Errorf("VaR = %v, want 0 with no losses", got)
	}
}

func TestComputeSummaryCounts(t *testing.T) {
	curve := curveOf(100_000, 102_000, 101_000, 105_000)
	trades := closedTrades(1000, -400, 600)

	s := ComputeSummary(curve, trades, 0.02, 252)

	if s.TotalTrades != 3 {
		t.Errorf("total trades = %d, want 3", s.TotalTrades)
	}
	if s.WinningTrades != 2 || s.LosingTrades != 1 {
		t.Errorf("won/lost = %d/%d, want 2/1", s.WinningTrades, s.LosingTrades)
	}
	if math.Abs(s.AvgWin-800) > 1e-9 {
		t.Errorf("avg win = %v, want 800", s.AvgWin)
	}
	if math.Abs(s.AvgLoss-(-400)) > 1e-9 {
		t.Errorf("avg loss = %v, want -400", s.AvgLoss)
	}
	if math.Abs(s.TotalReturn-0.05) > 1e-9 {
		t.Errorf("total return = %v, want 0.05", s.TotalReturn)
	}
	if s.FinalEquity != 105_000 {
		t.Errorf("final equity = %v, want 105000", s.FinalEquity)
	}
}
