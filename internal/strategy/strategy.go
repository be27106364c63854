// Package strategy defines the Strategy interface for trading strategies and
// provides a Registry for creating parameterized strategy instances by name.
package strategy

import (
	"fmt"
	"sort"
	"strings"

	"quantbt/internal/domain"
)

// Strategy is the interface that all trading strategies must implement.
// OnBar sees only data up to and including the delivered bars, so look-ahead
// bias is impossible by construction.
//
// Implementations must be deterministic: given the same bar sequence they
// must emit the same orders in the same slice order. In particular, when
// iterating the bars map they must visit symbols in sorted order.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Params returns the effective parameter set the strategy runs with.
	Params() Params

	// OnBar is called once per completed bar with that bar for every symbol
	// that traded, together with a read-only portfolio snapshot. It returns
	// zero or more order intents to be filled on the next bar.
	OnBar(bars map[string]domain.Bar, view domain.PortfolioView) []domain.PendingOrder
}

// Params holds strategy parameters by name. Missing keys fall back to the
// strategy's defaults.
type Params map[string]float64

// Get returns the parameter value for key, or def when absent.
func (p Params) Get(key string, def float64) float64 {
	if p == nil {
		return def
	}
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Clone returns an independent copy of the parameter set.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Factory constructs a strategy instance from a parameter set.
type Factory func(params Params) Strategy

// Registry holds a named collection of strategy factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a strategy factory under the given name.
func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// Create instantiates the named strategy with the given parameters.
func (r *Registry) Create(name string, params Params) (Strategy, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %s)",
			name, strings.Join(r.List(), ", "))
	}
	return factory(params), nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortedSymbols returns the keys of bars in sorted order. Strategies use it
// to guarantee deterministic symbol iteration.
func SortedSymbols(bars map[string]domain.Bar) []string {
	symbols := make([]string, 0, len(bars))
	for sym := range bars {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}
