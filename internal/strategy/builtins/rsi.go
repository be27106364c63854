package builtins

import (
	"fmt"

	"quantbt/internal/domain"
	"quantbt/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*RSI)(nil)

// rsiState tracks Wilder's smoothed averages for one symbol.
type rsiState struct {
	prevClose float64
	avgGain   float64
	avgLoss   float64
	count     int
}

// RSI buys when Wilder's relative strength index falls below the oversold
// level and exits when it rises above the overbought level.
type RSI struct {
	period     int
	oversold   float64
	overbought float64
	weight     float64
	params     strategy.Params

	state map[string]*rsiState
}

// NewRSI builds an RSI strategy. Defaults: period 14, oversold 30,
// overbought 70, position_weight 0.3.
func NewRSI(params strategy.Params) strategy.Strategy {
	return &RSI{
		period:     int(params.Get("period", 14)),
		oversold:   params.Get("oversold", 30),
		overbought: params.Get("overbought", 70),
		weight:     params.Get("position_weight", 0.3),
		params:     params.Clone(),
		state:      make(map[string]*rsiState),
	}
}

func (s *RSI) Name() string { return "rsi" }

func (s *RSI) Params() strategy.Params { return s.params.Clone() }

func (s *RSI) OnBar(bars map[string]domain.Bar, view domain.PortfolioView) []domain.PendingOrder {
	var orders []domain.PendingOrder
	for _, sym := range strategy.SortedSymbols(bars) {
		bar := bars[sym]
		rsi, ok := s.update(sym, bar.Close)
		if !ok {
			continue
		}

		if !view.Holds(sym) && rsi < s.oversold {
			orders = append(orders, domain.PendingOrder{
				Symbol: sym,
				Side:   domain.OrderSideBuy,
				Weight: s.weight,
				Reason: fmt.Sprintf("RSI %.1f below %.0f", rsi, s.oversold),
			})
		} else if view.Holds(sym) && rsi > s.overbought {
			orders = append(orders, domain.PendingOrder{
				Symbol: sym,
				Side:   domain.OrderSideSell,
				Weight: 1.0,
				Reason: fmt.Sprintf("RSI %.1f above %.0f", rsi, s.overbought),
			})
		}
	}
	return orders
}

// update feeds one close into the per-symbol Wilder smoothing and returns
// the RSI once period changes have been observed.
func (s *RSI) update(sym string, close float64) (float64, bool) {
	st, ok := s.state[sym]
	if !ok {
		s.state[sym] = &rsiState{prevClose: close}
		return 0, false
	}

	change := close - st.prevClose
	st.prevClose = close
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	st.count++
	if st.count < s.period {
		st.avgGain += gain
		st.avgLoss += loss
		return 0, false
	}
	if st.count == s.period {
		st.avgGain = (st.avgGain + gain) / float64(s.period)
		st.avgLoss = (st.avgLoss + loss) / float64(s.period)
	} else {
		n := float64(s.period)
		st.avgGain = (st.avgGain*(n-1) + gain) / n
		st.avgLoss = (st.avgLoss*(n-1) + loss) / n
	}

	if st.avgLoss == 0 {
		return 100, true
	}
	rs := st.avgGain / st.avgLoss
	return 100 - 100/(1+rs), true
}
