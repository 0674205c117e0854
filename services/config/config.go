// Package config loads and validates the JSON run configuration and
// assembles the strategy components it names.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spot-backtest/services/series"
	"spot-backtest/services/trading"
	"spot-backtest/strategies"
)

// SignalConfig names a signal and the timeframe it evaluates on.
type SignalConfig struct {
	Name      string            `json:"name"`
	Timeframe string            `json:"timeframe"`
	Params    strategies.Params `json:"params"`
}

// ComponentConfig names a condition or order factory.
type ComponentConfig struct {
	Name   string            `json:"name"`
	Params strategies.Params `json:"params"`
}

// RunConfig is one backtest run.
type RunConfig struct {
	Symbol string `json:"symbol"`

	// Feed source: a CSV file, or a ClickHouse DSN plus table.
	CandleFile      string `json:"candle_file"`
	ClickHouseDSN   string `json:"clickhouse_dsn"`
	ClickHouseTable string `json:"clickhouse_table"`

	StartUnix     int64 `json:"start_unix"`
	WarmupCandles int   `json:"warmup_candles"`

	StartingUSD   float64 `json:"starting_usd"`
	StartingAsset float64 `json:"starting_asset"`
	MakerFee      float64 `json:"maker_fee"`
	TakerFee      float64 `json:"taker_fee"`

	LimitOrderStaleSecs int64   `json:"limit_order_stale_secs"`
	RiskFreeRate        float64 `json:"risk_free_rate"`

	Timeframes     []string `json:"timeframes"`
	ExitTimeframes []string `json:"exit_timeframes"`

	EntrySignals    []SignalConfig    `json:"entry_signals"`
	ExitSignals     []SignalConfig    `json:"exit_signals"`
	EntryConditions []ComponentConfig `json:"entry_conditions"`
	ExitConditions  []ComponentConfig `json:"exit_conditions"`

	BuyStrategy  ComponentConfig  `json:"buy_strategy"`
	SellStrategy ComponentConfig  `json:"sell_strategy"`
	ExitStrategy *ComponentConfig `json:"exit_strategy"`
}

// Load reads and validates a run configuration file.
func Load(path string) (*RunConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg RunConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *RunConfig) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.CandleFile == "" && c.ClickHouseDSN == "" {
		return fmt.Errorf("one of candle_file or clickhouse_dsn is required")
	}
	if c.StartingUSD < 0 || c.StartingAsset < 0 {
		return fmt.Errorf("starting balances must be non-negative")
	}
	if c.MakerFee < 0 || c.TakerFee < 0 {
		return fmt.Errorf("fee rates must be non-negative")
	}
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("at least one timeframe is required")
	}
	if len(c.EntrySignals) == 0 {
		return fmt.Errorf("at least one entry signal is required")
	}
	if c.BuyStrategy.Name == "" || c.SellStrategy.Name == "" {
		return fmt.Errorf("buy_strategy and sell_strategy are required")
	}
	known := make(map[string]bool, len(c.Timeframes))
	for _, tf := range c.Timeframes {
		known[tf] = true
	}
	for _, sig := range c.EntrySignals {
		if !known[sig.Timeframe] {
			return fmt.Errorf("entry signal %q uses undeclared timeframe %q", sig.Name, sig.Timeframe)
		}
	}
	for _, sig := range c.ExitSignals {
		if !known[sig.Timeframe] {
			return fmt.Errorf("exit signal %q uses undeclared timeframe %q", sig.Name, sig.Timeframe)
		}
	}
	for _, tf := range c.ExitTimeframes {
		if !known[tf] {
			return fmt.Errorf("exit timeframe %q is undeclared", tf)
		}
	}
	return nil
}

// BuildTimeSeries creates one TimeSeries per declared timeframe, first
// declared first.
func (c *RunConfig) BuildTimeSeries(logger *zap.Logger) (map[string]*series.TimeSeries, []*series.TimeSeries, error) {
	byName := make(map[string]*series.TimeSeries, len(c.Timeframes))
	var ordered []*series.TimeSeries
	for _, tf := range c.Timeframes {
		ts, err := series.NewTimeSeries(tf, logger)
		if err != nil {
			return nil, nil, err
		}
		byName[tf] = ts
		ordered = append(ordered, ts)
	}
	return byName, ordered, nil
}

// BuildStrategy resolves the configured signals and conditions against
// prepared timeframes.
func (c *RunConfig) BuildStrategy(tsByName map[string]*series.TimeSeries, logger *zap.Logger) (*trading.Strategy, error) {
	var entrySignals []trading.EntrySignal
	for _, sc := range c.EntrySignals {
		sig, err := strategies.NewEntrySignal(sc.Name, tsByName[sc.Timeframe], sc.Params)
		if err != nil {
			return nil, err
		}
		entrySignals = append(entrySignals, sig)
	}

	var exitSignals []trading.ExitSignal
	for _, sc := range c.ExitSignals {
		sig, err := strategies.NewExitSignal(sc.Name, tsByName[sc.Timeframe], sc.Params)
		if err != nil {
			return nil, err
		}
		exitSignals = append(exitSignals, sig)
	}

	var entryConditions []trading.EntryCondition
	for _, cc := range c.EntryConditions {
		cond, err := strategies.NewEntryCondition(cc.Name, cc.Params)
		if err != nil {
			return nil, err
		}
		entryConditions = append(entryConditions, cond)
	}

	var exitConditions []trading.ExitCondition
	for _, cc := range c.ExitConditions {
		cond, err := strategies.NewExitCondition(cc.Name, cc.Params)
		if err != nil {
			return nil, err
		}
		exitConditions = append(exitConditions, cond)
	}

	exitTimeframes := c.ExitTimeframes
	if len(exitTimeframes) == 0 {
		exitTimeframes = c.Timeframes
	}
	var exitSeries []*series.TimeSeries
	for _, tf := range exitTimeframes {
		exitSeries = append(exitSeries, tsByName[tf])
	}

	return trading.NewStrategy(exitSeries, entrySignals, exitSignals,
		entryConditions, exitConditions, logger), nil
}

// BuildOrderStrategies resolves the configured order factories.
func (c *RunConfig) BuildOrderStrategies() (trading.BuyStrategy, trading.SellStrategy, trading.ExitStrategy, error) {
	buy, err := strategies.NewBuyStrategy(c.BuyStrategy.Name, c.BuyStrategy.Params)
	if err != nil {
		return nil, nil, nil, err
	}
	sell, err := strategies.NewSellStrategy(c.SellStrategy.Name, c.SellStrategy.Params)
	if err != nil {
		return nil, nil, nil, err
	}
	var exit trading.ExitStrategy
	if c.ExitStrategy != nil {
		exit, err = strategies.NewExitStrategy(c.ExitStrategy.Name, c.ExitStrategy.Params)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return buy, sell, exit, nil
}

// DecimalUSD returns the starting USD balance as a decimal.
func (c *RunConfig) DecimalUSD() decimal.Decimal { return decimal.NewFromFloat(c.StartingUSD) }

// DecimalAsset returns the starting asset balance as a decimal.
func (c *RunConfig) DecimalAsset() decimal.Decimal { return decimal.NewFromFloat(c.StartingAsset) }

// DecimalMakerFee returns the maker fee rate as a decimal.
func (c *RunConfig) DecimalMakerFee() decimal.Decimal { return decimal.NewFromFloat(c.MakerFee) }

// DecimalTakerFee returns the taker fee rate as a decimal.
func (c *RunConfig) DecimalTakerFee() decimal.Decimal { return decimal.NewFromFloat(c.TakerFee) }
