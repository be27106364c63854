package builtins

import (
	"fmt"
	"math"

	"quantbt/internal/domain"
	"quantbt/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Bollinger)(nil)

// Bollinger buys when the close touches or drops below the lower Bollinger
// band and exits when it reaches the upper band. Bands use the sample
// standard deviation, matching the conventional indicator definition.
type Bollinger struct {
	period int
	numStd float64
	weight float64
	params strategy.Params

	closes map[string][]float64
}

// NewBollinger builds a Bollinger band strategy. Defaults: period 20,
// num_std 2.0, position_weight 0.3.
func NewBollinger(params strategy.Params) strategy.Strategy {
	return &Bollinger{
		period: int(params.Get("period", 20)),
		numStd: params.Get("num_std", 2.0),
		weight: params.Get("position_weight", 0.3),
		params: params.Clone(),
		closes: make(map[string][]float64),
	}
}

func (s *Bollinger) Name() string { return "bollinger" }

func (s *Bollinger) Params() strategy.Params { return s.params.Clone() }

func (s *Bollinger) OnBar(bars map[string]domain.Bar, view domain.PortfolioView) []domain.PendingOrder {
	var orders []domain.PendingOrder
	for _, sym := range strategy.SortedSymbols(bars) {
		bar := bars[sym]
		window := appendWindow(s.closes[sym], bar.Close, s.period)
		s.closes[sym] = window

		if len(window) < s.period {
			continue
		}
		mid := meanOf(window)
		sd := sampleStdOf(window)
		if sd == 0 {
			continue
		}
		lower := mid - s.numStd*sd
		upper := mid + s.numStd*sd

		if !view.Holds(sym) && bar.Close <= lower {
			orders = append(orders, domain.PendingOrder{
				Symbol: sym,
				Side:   domain.OrderSideBuy,
				Weight: s.weight,
				Reason: fmt.Sprintf("close %.2f at lower band %.2f", bar.Close, lower),
			})
		} else if view.Holds(sym) && bar.Close >= upper {
			orders = append(orders, domain.PendingOrder{
				Symbol: sym,
				Side:   domain.OrderSideSell,
				Weight: 1.0,
				Reason: fmt.Sprintf("close %.2f at upper band %.2f", bar.Close, upper),
			})
		}
	}
	return orders
}

func sampleStdOf(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := meanOf(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
