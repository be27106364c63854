// Package analytics computes performance and risk statistics from a
// completed simulation's equity curve and trade ledger. All functions are
// pure and safe to call concurrently.
package analytics

import (
	"math"

	"quantbt/internal/domain"
)

// Returns converts an equity curve into per-bar simple returns. The first
// element is always 0. An empty curve yields an empty slice.
func Returns(curve []domain.EquityPoint) []float64 {
	if len(curve) == 0 {
		return []float64{}
	}
	out := make([]float64, len(curve))
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev != 0 {
			out[i] = (curve[i].Equity - prev) / prev
		}
	}
	return out
}

// TotalReturn is the fractional change from the first to the last equity
// point. Fewer than two points yields 0.
func TotalReturn(curve []domain.EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	first := curve[0].Equity
	if first == 0 {
		return 0
	}
	return (curve[len(curve)-1].Equity - first) / first
}

// AnnualReturn geometrically annualizes the total return over the number of
// observed bars, using tradingDays bars per year.
func AnnualReturn(curve []domain.EquityPoint, tradingDays int) float64 {
	n := len(curve)
	if n < 2 || tradingDays <= 0 {
		return 0
	}
	tr := TotalReturn(curve)
	if tr <= -1 {
		return -1
	}
	return math.Pow(1+tr, float64(tradingDays)/float64(n)) - 1
}

// SharpeRatio is the annualized mean excess return over the sample standard
// deviation of returns. riskFree is an annual rate and is de-annualized to
// per-bar before subtracting. Zero variance yields 0.
func SharpeRatio(returns []float64, riskFree float64, tradingDays int) float64 {
	if len(returns) < 2 || tradingDays <= 0 {
		return 0
	}
	rfPerBar := riskFree / float64(tradingDays)
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - rfPerBar
	}
	sd := sampleStd(excess)
	if sd == 0 {
		return 0
	}
	return mean(excess) / sd * math.Sqrt(float64(tradingDays))
}

// SortinoRatio is like SharpeRatio but divides by the downside deviation,
// the sample standard deviation of only the negative raw returns. Fewer
// than two negative returns, or zero downside deviation, yields 0.
func SortinoRatio(returns []float64, riskFree float64, tradingDays int) float64 {
	if len(returns) < 2 || tradingDays <= 0 {
		return 0
	}
	rfPerBar := riskFree / float64(tradingDays)
	excess := make([]float64, len(returns))
	var downside []float64
	for i, r := range returns {
		excess[i] = r - rfPerBar
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		return 0
	}
	dd := sampleStd(downside)
	if dd == 0 {
		return 0
	}
	return mean(excess) / dd * math.Sqrt(float64(tradingDays))
}

// MaxDrawdown is the largest fractional decline from a running equity peak,
// reported as a non-negative number in [0, 1].
func MaxDrawdown(curve []domain.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	worst := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// WinRate is the fraction of closed trades with positive PnL. No closed
// trades yields 0.
func WinRate(trades []domain.Trade) float64 {
	closed, wins := 0, 0
	for _, t := range trades {
		if !t.Closed {
			continue
		}
		closed++
		if t.PnL > 0 {
			wins++
		}
	}
	if closed == 0 {
		return 0
	}
	return float64(wins) / float64(closed)
}

// ProfitFactor is gross profit over gross loss across closed trades.
// Winners with no losers yields +Inf; no closed trades yields 0.
func ProfitFactor(trades []domain.Trade) float64 {
	var grossProfit, grossLoss float64
	closed := 0
	for _, t := range trades {
		if !t.Closed {
			continue
		}
		closed++
		if t.PnL > 0 {
			grossProfit += t.PnL
		} else {
			grossLoss += -t.PnL
		}
	}
	if closed == 0 {
		return 0
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// MaxConsecutiveWins is the longest run of closed trades with PnL > 0, in
// exit order as recorded in the ledger.
func MaxConsecutiveWins(trades []domain.Trade) int {
	best, run := 0, 0
	for _, t := range trades {
		if !t.Closed {
			continue
		}
		if t.PnL > 0 {
			run++
			if run > best {
				best = run
			}
		} else {
			run = 0
		}
	}
	return best
}

// MaxConsecutiveLosses is the longest run of closed trades with PnL <= 0.
// A zero-PnL trade breaks a winning streak and extends a losing one.
func MaxConsecutiveLosses(trades []domain.Trade) int {
	best, run := 0, 0
	for _, t := range trades {
		if !t.Closed {
			continue
		}
		if t.PnL <= 0 {
			run++
			if run > best {
				best = run
			}
		} else {
			run = 0
		}
	}
	return best
}

// Summary bundles every statistic computed from one simulation.
type Summary struct {
	TotalReturn          float64 `json:"total_return"`
	AnnualReturn         float64 `json:"annual_return"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	SortinoRatio         float64 `json:"sortino_ratio"`
	CalmarRatio          float64 `json:"calmar_ratio"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	ValueAtRisk95        float64 `json:"value_at_risk_95"`
	WinRate              float64 `json:"win_rate"`
	ProfitFactor         float64 `json:"profit_factor"`
	TotalTrades          int     `json:"total_trades"`
	WinningTrades        int     `json:"winning_trades"`
	LosingTrades         int     `json:"losing_trades"`
	AvgWin               float64 `json:"avg_win"`
	AvgLoss              float64 `json:"avg_loss"`
	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	FinalEquity          float64 `json:"final_equity"`
}

// ComputeSummary evaluates every statistic over one simulation's output.
// riskFree is an annual rate; tradingDays is the market's bar count per
// year.
func ComputeSummary(curve []domain.EquityPoint, trades []domain.Trade, riskFree float64, tradingDays int) Summary {
	returns := Returns(curve)

	s := Summary{
		TotalReturn:          TotalReturn(curve),
		AnnualReturn:         AnnualReturn(curve, tradingDays),
		SharpeRatio:          SharpeRatio(returns, riskFree, tradingDays),
		SortinoRatio:         SortinoRatio(returns, riskFree, tradingDays),
		MaxDrawdown:          MaxDrawdown(curve),
		ValueAtRisk95:        ValueAtRisk(returns, 0.95),
		WinRate:              WinRate(trades),
		ProfitFactor:         ProfitFactor(trades),
		MaxConsecutiveWins:   MaxConsecutiveWins(trades),
		MaxConsecutiveLosses: MaxConsecutiveLosses(trades),
	}
	s.CalmarRatio = CalmarRatio(s.AnnualReturn, s.MaxDrawdown)
	if len(curve) > 0 {
		s.FinalEquity = curve[len(curve)-1].Equity
	}

	var winSum, lossSum float64
	for _, t := range trades {
		if !t.Closed {
			continue
		}
		s.TotalTrades++
		if t.PnL > 0 {
			s.WinningTrades++
			winSum += t.PnL
		} else {
			s.LosingTrades++
			lossSum += t.PnL
		}
	}
	if s.WinningTrades > 0 {
		s.AvgWin = winSum / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLoss = lossSum / float64(s.LosingTrades)
	}
	return s
}

// ---

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStd is the ddof=1 standard deviation. Fewer than two values yields
// 0.
func sampleStd(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
