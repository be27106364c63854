package builtins

import (
	"fmt"

	"quantbt/internal/domain"
	"quantbt/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MACD)(nil)

// ema is an incremental exponential moving average seeded with the simple
// average of the first period values.
type ema struct {
	period int
	seed   []float64
	value  float64
	ready  bool
}

func (e *ema) update(v float64) (float64, bool) {
	if !e.ready {
		e.seed = append(e.seed, v)
		if len(e.seed) < e.period {
			return 0, false
		}
		var sum float64
		for _, x := range e.seed {
			sum += x
		}
		e.value = sum / float64(e.period)
		e.seed = nil
		e.ready = true
		return e.value, true
	}
	k := 2.0 / float64(e.period+1)
	e.value = v*k + e.value*(1-k)
	return e.value, true
}

// macdState holds the per-symbol EMA chain and the previous histogram value
// used for crossover detection.
type macdState struct {
	fast, slow, signal *ema
	prevHist           float64
	hasPrev            bool
}

// MACD buys when the MACD histogram crosses above zero and exits when it
// crosses back below.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
	weight       float64
	params       strategy.Params

	state map[string]*macdState
}

// NewMACD builds a MACD crossover strategy. Defaults: fast 12, slow 26,
// signal 9, position_weight 0.3.
func NewMACD(params strategy.Params) strategy.Strategy {
	return &MACD{
		fastPeriod:   int(params.Get("fast", 12)),
		slowPeriod:   int(params.Get("slow", 26)),
		signalPeriod: int(params.Get("signal", 9)),
		weight:       params.Get("position_weight", 0.3),
		params:       params.Clone(),
		state:        make(map[string]*macdState),
	}
}

func (s *MACD) Name() string { return "macd" }

func (s *MACD) Params() strategy.Params { return s.params.Clone() }

func (s *MACD) OnBar(bars map[string]domain.Bar, view domain.PortfolioView) []domain.PendingOrder {
	var orders []domain.PendingOrder
	for _, sym := range strategy.SortedSymbols(bars) {
		bar := bars[sym]
		st, ok := s.state[sym]
		if !ok {
			st = &macdState{
				fast:   &ema{period: s.fastPeriod},
				slow:   &ema{period: s.slowPeriod},
				signal: &ema{period: s.signalPeriod},
			}
			s.state[sym] = st
		}

		fast, fastOK := st.fast.update(bar.Close)
		slow, slowOK := st.slow.update(bar.Close)
		if !fastOK || !slowOK {
			continue
		}
		macdLine := fast - slow
		sig, sigOK := st.signal.update(macdLine)
		if !sigOK {
			continue
		}
		hist := macdLine - sig

		if st.hasPrev {
			if !view.Holds(sym) && st.prevHist <= 0 && hist > 0 {
				orders = append(orders, domain.PendingOrder{
					Symbol: sym,
					Side:   domain.OrderSideBuy,
					Weight: s.weight,
					Reason: fmt.Sprintf("MACD histogram crossed up to %.4f", hist),
				})
			} else if view.Holds(sym) && st.prevHist >= 0 && hist < 0 {
				orders = append(orders, domain.PendingOrder{
					Symbol: sym,
					Side:   domain.OrderSideSell,
					Weight: 1.0,
					Reason: fmt.Sprintf("MACD histogram crossed down to %.4f", hist),
				})
			}
		}
		st.prevHist = hist
		st.hasPrev = true
	}
	return orders
}
