package builtins

import (
	"fmt"

	"quantbt/internal/domain"
	"quantbt/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MomentumBreakout)(nil)

// MomentumBreakout buys when the close breaks above its moving average on a
// volume spike, then exits on a fixed-percentage stop loss or take profit
// measured against the position's average entry price.
type MomentumBreakout struct {
	maPeriod     int
	volPeriod    int
	volThreshold float64
	stopLoss     float64
	takeProfit   float64
	weight       float64
	params       strategy.Params

	closes  map[string][]float64
	volumes map[string][]float64
}

// NewMomentumBreakout builds a MomentumBreakout strategy. Defaults:
// ma_period 20, vol_period 20, volume_threshold 2.0, stop_loss_pct 0.05,
// take_profit_pct 0.15, position_weight 0.3.
func NewMomentumBreakout(params strategy.Params) strategy.Strategy {
	return &MomentumBreakout{
		maPeriod:     int(params.Get("ma_period", 20)),
		volPeriod:    int(params.Get("vol_period", 20)),
		volThreshold: params.Get("volume_threshold", 2.0),
		stopLoss:     params.Get("stop_loss_pct", 0.05),
		takeProfit:   params.Get("take_profit_pct", 0.15),
		weight:       params.Get("position_weight", 0.3),
		params:       params.Clone(),
		closes:       make(map[string][]float64),
		volumes:      make(map[string][]float64),
	}
}

func (s *MomentumBreakout) Name() string { return "momentum_breakout" }

func (s *MomentumBreakout) Params() strategy.Params { return s.params.Clone() }

func (s *MomentumBreakout) OnBar(bars map[string]domain.Bar, view domain.PortfolioView) []domain.PendingOrder {
	var orders []domain.PendingOrder
	for _, sym := range strategy.SortedSymbols(bars) {
		bar := bars[sym]

		closes := appendWindow(s.closes[sym], bar.Close, s.maPeriod)
		s.closes[sym] = closes
		volumes := appendWindow(s.volumes[sym], bar.Volume, s.volPeriod)
		s.volumes[sym] = volumes

		if pos, held := view.Position(sym); held {
			change := (bar.Close - pos.AvgPrice) / pos.AvgPrice
			switch {
			case change <= -s.stopLoss:
				orders = append(orders, domain.PendingOrder{
					Symbol: sym,
					Side:   domain.OrderSideSell,
					Weight: 1.0,
					Reason: fmt.Sprintf("stop loss hit at %.2f%%", change*100),
				})
			case change >= s.takeProfit:
				orders = append(orders, domain.PendingOrder{
					Symbol: sym,
					Side:   domain.OrderSideSell,
					Weight: 1.0,
					Reason: fmt.Sprintf("take profit hit at %.2f%%", change*100),
				})
			}
			continue
		}

		if len(closes) < s.maPeriod || len(volumes) < s.volPeriod {
			continue
		}
		ma := meanOf(closes)
		volMA := meanOf(volumes)
		if volMA == 0 {
			continue
		}
		if bar.Close > ma && bar.Volume > volMA*s.volThreshold {
			orders = append(orders, domain.PendingOrder{
				Symbol: sym,
				Side:   domain.OrderSideBuy,
				Weight: s.weight,
				Reason: fmt.Sprintf("breakout above MA %.2f on %.1fx volume", ma, bar.Volume/volMA),
			})
		}
	}
	return orders
}

// appendWindow appends v to xs keeping at most n trailing values.
func appendWindow(xs []float64, v float64, n int) []float64 {
	xs = append(xs, v)
	if len(xs) > n {
		xs = xs[len(xs)-n:]
	}
	return xs
}

func meanOf(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
