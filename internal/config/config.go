// Package config loads the quantbt YAML configuration and provides the
// built-in per-market trading cost tables.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"quantbt/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the quantbt platform.
type Config struct {
	Storage  Storage                 `yaml:"storage"`
	Alpaca   Alpaca                  `yaml:"alpaca"`
	Logging  Logging                 `yaml:"logging"`
	Backtest BacktestConfig          `yaml:"backtest"`
	Markets  map[string]MarketConfig `yaml:"markets"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API,
// used by the daily bar gatherer.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig holds simulation defaults applied when the caller does not
// specify them.
type BacktestConfig struct {
	InitialCapital  float64 `yaml:"initial_capital"`
	RiskFreeRate    float64 `yaml:"risk_free_rate"`
	ForceCloseAtEnd bool    `yaml:"force_close_at_end"`
}

// MarketConfig describes the trading cost structure of a market.
type MarketConfig struct {
	CommissionRate     float64 `yaml:"commission_rate"`
	MinCommission      float64 `yaml:"min_commission"`
	SlippageDaily      float64 `yaml:"slippage_daily"`
	SlippageHourly     float64 `yaml:"slippage_hourly"`
	MinOrderAmount     float64 `yaml:"min_order_amount"`
	Currency           string  `yaml:"currency"`
	TradingDaysPerYear int     `yaml:"trading_days_per_year"`
}

// ---------------------------------------------------------------------------
// Built-in market tables
// ---------------------------------------------------------------------------

// defaultMarkets holds the built-in cost tables. Values can be overridden
// per market through the YAML `markets` section.
var defaultMarkets = map[domain.Market]MarketConfig{
	domain.MarketKR: {
		CommissionRate:     0.00015, // 0.015%
		MinCommission:      0,
		SlippageDaily:      0.001,
		SlippageHourly:     0.0005,
		MinOrderAmount:     100_000, // ₩100,000
		Currency:           "KRW",
		TradingDaysPerYear: 245,
	},
	domain.MarketUS: {
		CommissionRate:     0.0025, // 0.25%
		MinCommission:      1.0,
		SlippageDaily:      0.001,
		SlippageHourly:     0.0005,
		MinOrderAmount:     100, // $100
		Currency:           "USD",
		TradingDaysPerYear: 252,
	},
}

// MarketFor returns the cost configuration for the given market, preferring
// a YAML override when one exists. The second return value reports whether
// the market is known at all.
func (c *Config) MarketFor(market domain.Market) (MarketConfig, bool) {
	if c != nil && c.Markets != nil {
		if mc, ok := c.Markets[string(market)]; ok {
			return mc, true
		}
	}
	mc, ok := defaultMarkets[market]
	return mc, ok
}

// DefaultMarket returns the built-in cost configuration for a market.
func DefaultMarket(market domain.Market) (MarketConfig, bool) {
	mc, ok := defaultMarkets[market]
	return mc, ok
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config populated with sensible defaults, used when no
// configuration file is present.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "quantbt.db",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Backtest: BacktestConfig{
			InitialCapital: 10_000_000,
			RiskFreeRate:   0.02,
		},
	}
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUANTBT_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("QUANTBT_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("QUANTBT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	// Standard Alpaca env vars take highest priority, matching the SDK's own lookup.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
