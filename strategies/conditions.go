package strategies

import (
	"github.com/shopspring/decimal"

	"spot-backtest/services/calc"
	"spot-backtest/services/engine"
	"spot-backtest/services/position"
)

// NoEntryCondition places no constraint on entries.
type NoEntryCondition struct{}

func (NoEntryCondition) EntryAllowed(*position.TradingState, *engine.ExchangeState) bool {
	return true
}

// OnlyOneOpenBuyCondition blocks entries while a buy order is resting.
type OnlyOneOpenBuyCondition struct{}

func (OnlyOneOpenBuyCondition) EntryAllowed(state *position.TradingState, _ *engine.ExchangeState) bool {
	return len(state.OpenBuyOrders) == 0
}

// OnlyOneOpenPositionCondition blocks entries while any position is open or
// any buy order is resting.
type OnlyOneOpenPositionCondition struct{}

func (OnlyOneOpenPositionCondition) EntryAllowed(state *position.TradingState, _ *engine.ExchangeState) bool {
	return len(state.OpenPositions) == 0 && len(state.OpenBuyOrders) == 0
}

// MinPercentFromOpenPositionsCondition blocks entries unless the market has
// moved at least MinPercent away from every open position's entry price.
// Averaging down into a barely-moved market is the failure mode this guards.
type MinPercentFromOpenPositionsCondition struct {
	MinPercent decimal.Decimal
}

func NewMinPercentFromOpenPositionsCondition(minPercent decimal.Decimal) *MinPercentFromOpenPositionsCondition {
	return &MinPercentFromOpenPositionsCondition{MinPercent: minPercent}
}

func (c *MinPercentFromOpenPositionsCondition) EntryAllowed(state *position.TradingState, exg *engine.ExchangeState) bool {
	for _, num := range state.OpenPositionNumbers() {
		pos := state.OpenPositions[num]
		pct, err := calc.PercentChange(exg.CurrentPrice, pos.EntryPrice)
		if err != nil || pct.Abs().LessThan(c.MinPercent) {
			return false
		}
	}
	return true
}

// NoExitCondition never exits; exits come from signals or resting orders.
type NoExitCondition struct{}

func (NoExitCondition) ExitMet(*position.TradingState, *engine.ExchangeState, *position.OpenPosition) bool {
	return false
}

// ExitOnPercentIncrease exits once the market is Percent above entry.
type ExitOnPercentIncrease struct {
	Percent decimal.Decimal
}

func (c *ExitOnPercentIncrease) ExitMet(_ *position.TradingState, exg *engine.ExchangeState, pos *position.OpenPosition) bool {
	pct, err := calc.PercentChange(exg.CurrentPrice, pos.EntryPrice)
	return err == nil && pct.GreaterThanOrEqual(c.Percent)
}

// ExitOnPercentIncreaseUnsold exits on gain, but only for positions that have
// not sold yet. Positions with partial sells are left to their resting order.
type ExitOnPercentIncreaseUnsold struct {
	Percent decimal.Decimal
}

func (c *ExitOnPercentIncreaseUnsold) ExitMet(_ *position.TradingState, exg *engine.ExchangeState, pos *position.OpenPosition) bool {
	if pos.TimesSold > 0 {
		return false
	}
	pct, err := calc.PercentChange(exg.CurrentPrice, pos.EntryPrice)
	return err == nil && pct.GreaterThanOrEqual(c.Percent)
}

// ExitOnPercentDecrease exits once the market is Percent below entry.
type ExitOnPercentDecrease struct {
	Percent decimal.Decimal
}

func (c *ExitOnPercentDecrease) ExitMet(_ *position.TradingState, exg *engine.ExchangeState, pos *position.OpenPosition) bool {
	pct, err := calc.PercentChange(exg.CurrentPrice, pos.EntryPrice)
	return err == nil && pct.LessThanOrEqual(c.Percent.Neg())
}

// ExitOnIncreaseOrDecrease exits on either a gain of UpPercent or a loss of
// DownPercent.
type ExitOnIncreaseOrDecrease struct {
	UpPercent   decimal.Decimal
	DownPercent decimal.Decimal
}

func (c *ExitOnIncreaseOrDecrease) ExitMet(_ *position.TradingState, exg *engine.ExchangeState, pos *position.OpenPosition) bool {
	pct, err := calc.PercentChange(exg.CurrentPrice, pos.EntryPrice)
	if err != nil {
		return false
	}
	return pct.GreaterThanOrEqual(c.UpPercent) || pct.LessThanOrEqual(c.DownPercent.Neg())
}

// ExitIfBelowPrice exits once the market trades below an absolute floor.
type ExitIfBelowPrice struct {
	Price decimal.Decimal
}

func (c *ExitIfBelowPrice) ExitMet(_ *position.TradingState, exg *engine.ExchangeState, _ *position.OpenPosition) bool {
	return exg.CurrentPrice.LessThan(c.Price)
}

// ExitAfterDuration exits once the position has been held for MaxHoldSecs.
type ExitAfterDuration struct {
	MaxHoldSecs int64
}

func (c *ExitAfterDuration) ExitMet(_ *position.TradingState, exg *engine.ExchangeState, pos *position.OpenPosition) bool {
	return exg.CurrentTimestamp-pos.Buy.ExecutedTimestamp >= c.MaxHoldSecs
}
