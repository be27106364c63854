// Package optimizer runs grid-search parameter sweeps over the backtest
// engine. Each combination runs in an isolated engine instance, so the
// sweep parallelizes across a worker pool without shared state.
package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"sync"

	"quantbt/internal/analytics"
	"quantbt/internal/domain"
	"quantbt/internal/engine"
	"quantbt/internal/strategy"
)

// MaxCombinations caps the grid size a single sweep may enumerate.
const MaxCombinations = 10_000

// ParamRange describes the values one parameter sweeps over: Min, Min+Step,
// ... up to and including Max.
type ParamRange struct {
	Min  float64 `yaml:"min" json:"min"`
	Max  float64 `yaml:"max" json:"max"`
	Step float64 `yaml:"step" json:"step"`
}

// Values enumerates the range. A non-positive step or Max < Min yields just
// Min. Values are rounded to absorb float accumulation error so 0.1 steps
// land on exact grid points.
func (r ParamRange) Values() []float64 {
	if r.Step <= 0 || r.Max < r.Min {
		return []float64{r.Min}
	}
	var out []float64
	for i := 0; ; i++ {
		v := r.Min + float64(i)*r.Step
		if v > r.Max+1e-10 {
			break
		}
		out = append(out, math.Round(v*1e10)/1e10)
	}
	return out
}

// RunResult is one completed combination of a sweep.
type RunResult struct {
	Params  strategy.Params   `json:"params"`
	Summary analytics.Summary `json:"summary"`
	Err     error             `json:"-"`
}

// Metric selects the summary statistic a sweep ranks by.
type Metric string

const (
	MetricSharpe       Metric = "sharpe_ratio"
	MetricTotalReturn  Metric = "total_return"
	MetricAnnualReturn Metric = "annual_return"
	MetricCalmar       Metric = "calmar_ratio"
	MetricProfitFactor Metric = "profit_factor"
)

// Extract pulls the ranked statistic out of a summary. Unknown metrics fall
// back to the Sharpe ratio.
func (m Metric) Extract(s analytics.Summary) float64 {
	switch m {
	case MetricTotalReturn:
		return s.TotalReturn
	case MetricAnnualReturn:
		return s.AnnualReturn
	case MetricCalmar:
		return s.CalmarRatio
	case MetricProfitFactor:
		return s.ProfitFactor
	default:
		return s.SharpeRatio
	}
}

// Options configures a grid search sweep.
type Options struct {
	Factory        strategy.Factory
	Data           map[string][]domain.Bar
	Broker         *engine.Broker
	InitialCapital float64
	Ranges         map[string]ParamRange
	Metric         Metric
	RiskFree       float64
	TradingDays    int

	// Workers bounds the pool size; 0 means runtime.NumCPU.
	Workers int

	OnProgress engine.ProgressFunc
	Logger     *slog.Logger
}

// GenerateCombinations enumerates the cartesian product of the ranges with
// parameter names visited in sorted order, so the combination order is
// stable across runs.
func GenerateCombinations(ranges map[string]ParamRange) ([]strategy.Params, error) {
	n := CountCombinations(ranges)
	if n > MaxCombinations {
		return nil, fmt.Errorf("grid of %d combinations exceeds limit %d", n, MaxCombinations)
	}

	names := make([]string, 0, len(ranges))
	for name := range ranges {
		names = append(names, name)
	}
	sort.Strings(names)

	combos := []strategy.Params{{}}
	for _, name := range names {
		values := ranges[name].Values()
		next := make([]strategy.Params, 0, len(combos)*len(values))
		for _, base := range combos {
			for _, v := range values {
				p := base.Clone()
				if p == nil {
					p = strategy.Params{}
				}
				p[name] = v
				next = append(next, p)
			}
		}
		combos = next
	}
	return combos, nil
}

// CountCombinations returns the grid size without materializing it.
func CountCombinations(ranges map[string]ParamRange) int {
	n := 1
	for _, r := range ranges {
		n *= len(r.Values())
	}
	return n
}

// Run sweeps the grid and returns every combination's result sorted by the
// ranking metric, best first. Ties keep generation order, so the ranking is
// deterministic. Failed combinations sort last.
func Run(ctx context.Context, opts Options) ([]RunResult, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	combos, err := GenerateCombinations(opts.Ranges)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(combos) {
		workers = len(combos)
	}

	log.Info("grid search started", "combinations", len(combos), "workers", workers)

	results := make([]RunResult, len(combos))
	jobs := make(chan int)
	var done sync.WaitGroup
	var completed int
	var mu sync.Mutex

	for w := 0; w < workers; w++ {
		done.Add(1)
		go func() {
			defer done.Done()
			for idx := range jobs {
				results[idx] = runOne(ctx, opts, combos[idx])

				mu.Lock()
				completed++
				pct := completed * 100 / len(combos)
				mu.Unlock()
				if opts.OnProgress != nil {
					opts.OnProgress(pct)
				}
			}
		}()
	}

	for idx := range combos {
		select {
		case <-ctx.Done():
			close(jobs)
			done.Wait()
			return nil, ctx.Err()
		case jobs <- idx:
		}
	}
	close(jobs)
	done.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metric := opts.Metric
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Err != nil {
			return false
		}
		if results[j].Err != nil {
			return true
		}
		return metric.Extract(results[i].Summary) > metric.Extract(results[j].Summary)
	})

	log.Info("grid search finished", "combinations", len(combos))
	return results, nil
}

// TopN returns the best n results of a ranked sweep.
func TopN(results []RunResult, n int) []RunResult {
	if n > len(results) {
		n = len(results)
	}
	return results[:n]
}

func runOne(ctx context.Context, opts Options, params strategy.Params) RunResult {
	strat := opts.Factory(params)
	eng := engine.New(strat, opts.Data, opts.Broker, engine.Options{
		InitialCapital: opts.InitialCapital,
		Logger:         slog.New(discardHandler{}),
	})

	res, err := eng.Run(ctx)
	if err != nil {
		return RunResult{Params: params, Err: err}
	}
	return RunResult{
		Params:  params,
		Summary: analytics.ComputeSummary(res.EquityCurve, res.Trades, opts.RiskFree, opts.TradingDays),
	}
}

// discardHandler silences per-fill logging inside sweep workers.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
