// Package builtins provides the stock strategies shipped with quantbt. Each
// keeps isolated per-symbol state so multi-symbol runs never leak history
// between symbols, and each iterates symbols in sorted order so runs are
// deterministic.
package builtins

import (
	"fmt"
	"math"

	"quantbt/internal/domain"
	"quantbt/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MeanReversion)(nil)

// MeanReversion buys when the close falls more than entryZ standard
// deviations below its rolling mean and exits once the close reverts to
// within exitZ deviations. The z-score uses the population standard
// deviation of the lookback window.
type MeanReversion struct {
	lookback int
	entryZ   float64
	exitZ    float64
	weight   float64
	params   strategy.Params

	closes map[string][]float64
}

// NewMeanReversion builds a MeanReversion strategy. Defaults: lookback_period
// 20, entry_threshold 2.0, exit_threshold 0.5, position_weight 0.3.
func NewMeanReversion(params strategy.Params) strategy.Strategy {
	return &MeanReversion{
		lookback: int(params.Get("lookback_period", 20)),
		entryZ:   params.Get("entry_threshold", 2.0),
		exitZ:    params.Get("exit_threshold", 0.5),
		weight:   params.Get("position_weight", 0.3),
		params:   params.Clone(),
		closes:   make(map[string][]float64),
	}
}

func (s *MeanReversion) Name() string { return "mean_reversion" }

func (s *MeanReversion) Params() strategy.Params { return s.params.Clone() }

func (s *MeanReversion) OnBar(bars map[string]domain.Bar, view domain.PortfolioView) []domain.PendingOrder {
	var orders []domain.PendingOrder
	for _, sym := range strategy.SortedSymbols(bars) {
		bar := bars[sym]
		window := append(s.closes[sym], bar.Close)
		if len(window) > s.lookback {
			window = window[len(window)-s.lookback:]
		}
		s.closes[sym] = window

		if len(window) < s.lookback {
			continue
		}
		m, sd := meanStd(window)
		if sd == 0 {
			continue
		}
		z := (bar.Close - m) / sd

		if !view.Holds(sym) && z < -s.entryZ {
			orders = append(orders, domain.PendingOrder{
				Symbol: sym,
				Side:   domain.OrderSideBuy,
				Weight: s.weight,
				Reason: fmt.Sprintf("z-score %.2f below entry %.2f", z, -s.entryZ),
			})
		} else if view.Holds(sym) && z > -s.exitZ {
			orders = append(orders, domain.PendingOrder{
				Symbol: sym,
				Side:   domain.OrderSideSell,
				Weight: 1.0,
				Reason: fmt.Sprintf("z-score %.2f reverted past %.2f", z, -s.exitZ),
			})
		}
	}
	return orders
}

// meanStd returns the mean and population standard deviation of xs.
func meanStd(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	m := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return m, math.Sqrt(ss / float64(len(xs)))
}
