package builtins

import "quantbt/internal/strategy"

// NewRegistry returns a strategy registry with every builtin registered.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	r.Register("mean_reversion", NewMeanReversion)
	r.Register("momentum_breakout", NewMomentumBreakout)
	r.Register("bollinger", NewBollinger)
	r.Register("rsi", NewRSI)
	r.Register("macd", NewMACD)
	return r
}
