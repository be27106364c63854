// quantbt-cli runs backtests, parameter sweeps, and data gathering from the
// command line.
//
// Usage:
//
//	quantbt-cli <command> [options]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"quantbt/internal/analytics"
	"quantbt/internal/config"
	"quantbt/internal/domain"
	"quantbt/internal/engine"
	"quantbt/internal/gather"
	"quantbt/internal/optimizer"
	"quantbt/internal/store"
	"quantbt/internal/strategy"
	"quantbt/internal/strategy/builtins"
	"quantbt/internal/util"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: quantbt-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  backtest    Run a backtest over stored bar data\n")
		fmt.Fprintf(os.Stderr, "  optimize    Grid-search strategy parameters\n")
		fmt.Fprintf(os.Stderr, "  gather      Fetch daily bars from Alpaca into the bar store\n")
		fmt.Fprintf(os.Stderr, "  runs        List saved backtest runs\n")
		fmt.Fprintf(os.Stderr, "  strategies  List available strategies\n")
		fmt.Fprintf(os.Stderr, "  version     Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("quantbt-cli %s\n", version)

	case "strategies":
		for _, name := range builtins.NewRegistry().List() {
			fmt.Println(name)
		}

	case "backtest":
		if err := runBacktest(os.Args[2:]); err != nil {
			log.Fatalf("backtest: %v", err)
		}

	case "optimize":
		if err := runOptimize(os.Args[2:]); err != nil {
			log.Fatalf("optimize: %v", err)
		}

	case "gather":
		if err := runGather(os.Args[2:]); err != nil {
			log.Fatalf("gather: %v", err)
		}

	case "runs":
		if err := listRuns(os.Args[2:]); err != nil {
			log.Fatalf("runs: %v", err)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}

// loadConfig resolves the config file path and falls back to defaults when
// no file exists.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = "config/quantbt.yaml"
		if p := os.Getenv("QUANTBT_CONFIG"); p != "" {
			path = p
		}
		if _, err := os.Stat(path); err != nil {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// parseParams parses "key=value,key=value" into strategy parameters.
func parseParams(s string) (strategy.Params, error) {
	params := strategy.Params{}
	if s == "" {
		return params, nil
	}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("bad parameter %q, want key=value", pair)
		}
		v, err := strconv.ParseFloat(kv[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", kv[0], err)
		}
		params[strings.TrimSpace(kv[0])] = v
	}
	return params, nil
}

// parseRanges parses "key=min:max:step,..." into optimizer ranges.
func parseRanges(s string) (map[string]optimizer.ParamRange, error) {
	ranges := map[string]optimizer.ParamRange{}
	if s == "" {
		return ranges, nil
	}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("bad range %q, want key=min:max:step", pair)
		}
		parts := strings.Split(kv[1], ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("bad range %q, want min:max:step", kv[1])
		}
		var vals [3]float64
		for i, p := range parts {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, fmt.Errorf("range %q: %w", kv[0], err)
			}
			vals[i] = v
		}
		ranges[strings.TrimSpace(kv[0])] = optimizer.ParamRange{Min: vals[0], Max: vals[1], Step: vals[2]}
	}
	return ranges, nil
}

// loadData reads bars for each symbol either from a CSV directory or the
// Parquet store.
func loadData(ctx context.Context, cfg *config.Config, symbols []string, market domain.Market, start, end time.Time, csvDir string) (map[string][]domain.Bar, error) {
	data := make(map[string][]domain.Bar, len(symbols))
	if csvDir != "" {
		for _, sym := range symbols {
			path := fmt.Sprintf("%s/%s.csv", csvDir, sym)
			bars, err := store.ReadBarsCSVFile(path, sym)
			if err != nil {
				return nil, fmt.Errorf("loading %s: %w", sym, err)
			}
			data[sym] = bars
		}
		return data, nil
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	for _, sym := range symbols {
		bars, err := pstore.ReadBars(ctx, sym, market, start, end)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", sym, err)
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("no bars for %s in %s between %s and %s",
				sym, market, start.Format("2006-01-02"), end.Format("2006-01-02"))
		}
		data[sym] = bars
	}
	return data, nil
}

func runBacktest(args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	strategyName := fs.String("strategy", "", "strategy name (see `strategies`)")
	paramsFlag := fs.String("params", "", "strategy parameters as key=value,key=value")
	symbolsFlag := fs.String("symbols", "", "comma-separated symbols")
	marketFlag := fs.String("market", "US", "market (KR or US)")
	startFlag := fs.String("start", "", "start date YYYY-MM-DD")
	endFlag := fs.String("end", "", "end date YYYY-MM-DD")
	capitalFlag := fs.Float64("capital", 0, "initial capital (0 uses config default)")
	csvDir := fs.String("csv-dir", "", "load bars from <dir>/<SYMBOL>.csv instead of the store")
	forceClose := fs.Bool("force-close", false, "liquidate open positions at the end of data")
	save := fs.Bool("save", true, "save the run to the results database")
	tradesOut := fs.String("trades-csv", "", "write the trade ledger to this CSV file")
	equityOut := fs.String("equity-csv", "", "write the equity curve to this CSV file")
	fs.Parse(args)

	if *strategyName == "" || *symbolsFlag == "" {
		return fmt.Errorf("-strategy and -symbols are required")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signalContext()
	defer cancel()

	market := domain.Market(strings.ToUpper(*marketFlag))
	mc, ok := cfg.MarketFor(market)
	if !ok {
		return fmt.Errorf("unknown market %q", *marketFlag)
	}

	start, end, err := parseDateRange(*startFlag, *endFlag)
	if err != nil {
		return err
	}

	symbols := splitSymbols(*symbolsFlag)
	data, err := loadData(ctx, cfg, symbols, market, start, end, *csvDir)
	if err != nil {
		return err
	}

	params, err := parseParams(*paramsFlag)
	if err != nil {
		return err
	}
	strat, err := builtins.NewRegistry().Create(*strategyName, params)
	if err != nil {
		return err
	}

	capital := *capitalFlag
	if capital == 0 {
		capital = cfg.Backtest.InitialCapital
	}

	eng := engine.New(strat, data, engine.NewBroker(mc, domain.TimeframeDaily), engine.Options{
		InitialCapital:  capital,
		ForceCloseAtEnd: *forceClose || cfg.Backtest.ForceCloseAtEnd,
		Logger:          logger,
	})

	res, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	summary := analytics.ComputeSummary(res.EquityCurve, res.Trades,
		cfg.Backtest.RiskFreeRate, mc.TradingDaysPerYear)
	printSummary(summary)

	if *save {
		rstore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer rstore.Close()

		id, err := rstore.SaveRun(ctx, &store.Run{
			Strategy:    strat.Name(),
			Params:      strat.Params(),
			Market:      market,
			Symbols:     symbols,
			InitialCash: capital,
			Summary:     summary,
			Trades:      res.Trades,
			EquityCurve: res.EquityCurve,
		})
		if err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
		fmt.Printf("\nsaved as run %d\n", id)
	}

	if *tradesOut != "" {
		if err := writeCSVFile(*tradesOut, func(f *os.File) error {
			return store.WriteTradesCSV(f, res.Trades)
		}); err != nil {
			return err
		}
	}
	if *equityOut != "" {
		if err := writeCSVFile(*equityOut, func(f *os.File) error {
			return store.WriteEquityCSV(f, res.EquityCurve)
		}); err != nil {
			return err
		}
	}
	return nil
}

func runOptimize(args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	strategyName := fs.String("strategy", "", "strategy name")
	rangesFlag := fs.String("ranges", "", "parameter ranges as key=min:max:step,...")
	symbolsFlag := fs.String("symbols", "", "comma-separated symbols")
	marketFlag := fs.String("market", "US", "market (KR or US)")
	startFlag := fs.String("start", "", "start date YYYY-MM-DD")
	endFlag := fs.String("end", "", "end date YYYY-MM-DD")
	capitalFlag := fs.Float64("capital", 0, "initial capital (0 uses config default)")
	csvDir := fs.String("csv-dir", "", "load bars from <dir>/<SYMBOL>.csv instead of the store")
	metricFlag := fs.String("metric", string(optimizer.MetricSharpe), "ranking metric")
	workers := fs.Int("workers", 0, "worker pool size (0 uses all CPUs)")
	topN := fs.Int("top", 10, "show the best N combinations")
	fs.Parse(args)

	if *strategyName == "" || *symbolsFlag == "" || *rangesFlag == "" {
		return fmt.Errorf("-strategy, -symbols, and -ranges are required")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signalContext()
	defer cancel()

	market := domain.Market(strings.ToUpper(*marketFlag))
	mc, ok := cfg.MarketFor(market)
	if !ok {
		return fmt.Errorf("unknown market %q", *marketFlag)
	}

	start, end, err := parseDateRange(*startFlag, *endFlag)
	if err != nil {
		return err
	}

	symbols := splitSymbols(*symbolsFlag)
	data, err := loadData(ctx, cfg, symbols, market, start, end, *csvDir)
	if err != nil {
		return err
	}

	ranges, err := parseRanges(*rangesFlag)
	if err != nil {
		return err
	}

	registry := builtins.NewRegistry()
	if _, err := registry.Create(*strategyName, nil); err != nil {
		return err
	}
	factory := func(params strategy.Params) strategy.Strategy {
		s, _ := registry.Create(*strategyName, params)
		return s
	}

	capital := *capitalFlag
	if capital == 0 {
		capital = cfg.Backtest.InitialCapital
	}

	results, err := optimizer.Run(ctx, optimizer.Options{
		Factory:        factory,
		Data:           data,
		Broker:         engine.NewBroker(mc, domain.TimeframeDaily),
		InitialCapital: capital,
		Ranges:         ranges,
		Metric:         optimizer.Metric(*metricFlag),
		RiskFree:       cfg.Backtest.RiskFreeRate,
		TradingDays:    mc.TradingDaysPerYear,
		Workers:        *workers,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	for i, r := range optimizer.TopN(results, *topN) {
		if r.Err != nil {
			fmt.Printf("%2d. params=%v error: %v\n", i+1, r.Params, r.Err)
			continue
		}
		fmt.Printf("%2d. params=%v %s=%.4f total_return=%.2f%% max_dd=%.2f%% trades=%d\n",
			i+1, r.Params,
			*metricFlag, optimizer.Metric(*metricFlag).Extract(r.Summary),
			r.Summary.TotalReturn*100, r.Summary.MaxDrawdown*100, r.Summary.TotalTrades)
	}
	return nil
}

func runGather(args []string) error {
	fs := flag.NewFlagSet("gather", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	symbolsFlag := fs.String("symbols", "", "comma-separated symbols")
	marketFlag := fs.String("market", "US", "market directory to store under")
	startFlag := fs.String("start", "", "start date YYYY-MM-DD")
	endFlag := fs.String("end", "", "end date YYYY-MM-DD")
	batchSize := fs.Int("batch-size", 200, "symbols per API call")
	fs.Parse(args)

	if *symbolsFlag == "" {
		return fmt.Errorf("-symbols is required")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		return fmt.Errorf("alpaca credentials not configured (set APCA_API_KEY_ID / APCA_API_SECRET_KEY)")
	}

	start, end, err := parseDateRange(*startFlag, *endFlag)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	g := gather.NewDailyBarGatherer(
		cfg.Alpaca,
		store.NewParquetStore(cfg.Storage.DataDir),
		domain.Market(strings.ToUpper(*marketFlag)),
		splitSymbols(*symbolsFlag),
		gather.DateRange{Start: start, End: end},
		*batchSize,
	)
	return g.Run(ctx)
}

func listRuns(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	limit := fs.Int("limit", 20, "max runs to list")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}

	rstore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer rstore.Close()

	runs, err := rstore.ListRuns(context.Background(), *limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%4d  %-20s %-3s %-24s return=%7.2f%% sharpe=%6.2f trades=%d  %s\n",
			r.ID, r.Strategy, r.Market, strings.Join(r.Symbols, ","),
			r.Summary.TotalReturn*100, r.Summary.SharpeRatio, r.Summary.TotalTrades,
			r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// ---

func parseDateRange(startStr, endStr string) (time.Time, time.Time, error) {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(-1, 0, 0)
	var err error
	if startStr != "" {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad start date: %w", err)
		}
	}
	if endStr != "" {
		end, err = time.Parse("2006-01-02", endStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad end date: %w", err)
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date before start date")
	}
	return start, end, nil
}

func splitSymbols(s string) []string {
	var out []string
	for _, sym := range strings.Split(s, ",") {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" {
			out = append(out, sym)
		}
	}
	return out
}

func printSummary(s analytics.Summary) {
	fmt.Printf("total return:      %8.2f%%\n", s.TotalReturn*100)
	fmt.Printf("annual return:     %8.2f%%\n", s.AnnualReturn*100)
	fmt.Printf("sharpe ratio:      %8.2f\n", s.SharpeRatio)
	fmt.Printf("sortino ratio:     %8.2f\n", s.SortinoRatio)
	fmt.Printf("calmar ratio:      %8.2f\n", s.CalmarRatio)
	fmt.Printf("max drawdown:      %8.2f%%\n", s.MaxDrawdown*100)
	fmt.Printf("VaR (95%%):         %8.2f%%\n", s.ValueAtRisk95*100)
	fmt.Printf("win rate:          %8.2f%%\n", s.WinRate*100)
	fmt.Printf("profit factor:     %8.2f\n", s.ProfitFactor)
	fmt.Printf("trades:            %8d (won %d, lost %d)\n", s.TotalTrades, s.WinningTrades, s.LosingTrades)
	fmt.Printf("avg win / loss:    %8.2f / %.2f\n", s.AvgWin, s.AvgLoss)
	fmt.Printf("max consec W/L:    %8d / %d\n", s.MaxConsecutiveWins, s.MaxConsecutiveLosses)
	fmt.Printf("final equity:      %8.2f\n", s.FinalEquity)
}

func writeCSVFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := write(f); err != nil {
		return err
	}
	return f.Close()
}
