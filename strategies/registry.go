package strategies

import (
	"fmt"

	"github.com/shopspring/decimal"

	"spot-backtest/services/series"
	"spot-backtest/services/trading"
)

// Params carries the strategy parameters from the run configuration. JSON
// numbers arrive as float64.
type Params map[string]any

func (p Params) Float(key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("missing parameter %q", key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("parameter %q is %T, want number", key, v)
	}
	return f, nil
}

func (p Params) Decimal(key string) (decimal.Decimal, error) {
	f, err := p.Float(key)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(f), nil
}

func (p Params) Int(key string) (int, error) {
	f, err := p.Float(key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func (p Params) Int64(key string) (int64, error) {
	f, err := p.Float(key)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// NewEntrySignal resolves an entry signal by name against a prepared
// timeframe.
func NewEntrySignal(name string, ts *series.TimeSeries, p Params) (trading.EntrySignal, error) {
	switch name {
	case "time_interval_entry":
		every, err := p.Int("every")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return NewTimeIntervalEntry(ts, every), nil
	case "direction_flip_entry":
		return NewDirectionFlipEntry(ts), nil
	}
	return nil, fmt.Errorf("unknown entry signal %q", name)
}

// NewExitSignal resolves an exit signal by name.
func NewExitSignal(name string, ts *series.TimeSeries, _ Params) (trading.ExitSignal, error) {
	switch name {
	case "direction_flip_exit":
		return NewDirectionFlipExit(ts), nil
	}
	return nil, fmt.Errorf("unknown exit signal %q", name)
}

// NewEntryCondition resolves an entry condition by name.
func NewEntryCondition(name string, p Params) (trading.EntryCondition, error) {
	switch name {
	case "no_entry_condition":
		return NoEntryCondition{}, nil
	case "only_one_open_buy":
		return OnlyOneOpenBuyCondition{}, nil
	case "only_one_open_position":
		return OnlyOneOpenPositionCondition{}, nil
	case "min_percent_from_open_positions":
		minPct, err := p.Decimal("min_percent")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return NewMinPercentFromOpenPositionsCondition(minPct), nil
	}
	return nil, fmt.Errorf("unknown entry condition %q", name)
}

// NewExitCondition resolves an exit condition by name.
func NewExitCondition(name string, p Params) (trading.ExitCondition, error) {
	switch name {
	case "no_exit_condition":
		return NoExitCondition{}, nil
	case "exit_on_percent_increase":
		pct, err := p.Decimal("percent")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return &ExitOnPercentIncrease{Percent: pct}, nil
	case "exit_on_percent_increase_unsold":
		pct, err := p.Decimal("percent")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return &ExitOnPercentIncreaseUnsold{Percent: pct}, nil
	case "exit_on_percent_decrease":
		pct, err := p.Decimal("percent")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return &ExitOnPercentDecrease{Percent: pct}, nil
	case "exit_on_increase_or_decrease":
		up, err := p.Decimal("up_percent")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		down, err := p.Decimal("down_percent")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return &ExitOnIncreaseOrDecrease{UpPercent: up, DownPercent: down}, nil
	case "exit_if_below_price":
		price, err := p.Decimal("price")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return &ExitIfBelowPrice{Price: price}, nil
	case "exit_after_duration":
		secs, err := p.Int64("max_hold_secs")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return &ExitAfterDuration{MaxHoldSecs: secs}, nil
	}
	return nil, fmt.Errorf("unknown exit condition %q", name)
}

// NewBuyStrategy resolves a buy order factory by name.
func NewBuyStrategy(name string, p Params) (trading.BuyStrategy, error) {
	switch name {
	case "limit_buy_percent_equity":
		equity, err := p.Decimal("percent_equity")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		below, err := p.Decimal("percent_below")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return NewLimitBuyPercentEquity(equity, below), nil
	}
	return nil, fmt.Errorf("unknown buy strategy %q", name)
}

// NewSellStrategy resolves a sell order factory by name.
func NewSellStrategy(name string, _ Params) (trading.SellStrategy, error) {
	switch name {
	case "market_sell_remaining":
		return NewMarketSellRemaining(), nil
	}
	return nil, fmt.Errorf("unknown sell strategy %q", name)
}

// NewExitStrategy resolves a resting-exit order factory by name. An empty
// name means no resting exit is placed after buys.
func NewExitStrategy(name string, p Params) (trading.ExitStrategy, error) {
	switch name {
	case "":
		return nil, nil
	case "limit_exit_percent_above":
		above, err := p.Decimal("percent_above")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		portion, err := p.Decimal("percent_of_position")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return NewLimitExitPercentAbove(above, portion), nil
	}
	return nil, fmt.Errorf("unknown exit strategy %q", name)
}
