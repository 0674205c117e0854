// Package trading orchestrates the per-bar cycle: signal evaluation, order
// placement and retry bookkeeping, stale-limit re-pricing, and position
// open/close reconciliation.
package trading

import (
	"go.uber.org/zap"

	"spot-backtest/services/engine"
	"spot-backtest/services/position"
	"spot-backtest/services/series"
)

// Mode selects failure handling. Backtest placements are deterministic, so
// a rejection is terminal; live mode retries with backoff.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
)

// EntrySignal identifies entries on its bound timeframe.
type EntrySignal interface {
	TimeSeries() *series.TimeSeries
	IdentifyEntry() bool
}

// ExitSignal identifies exits on its bound timeframe.
type ExitSignal interface {
	TimeSeries() *series.TimeSeries
	IdentifyExit() bool
}

// EntryCondition gates entries on account/trading state. All entry
// conditions must hold (logical AND).
type EntryCondition interface {
	EntryAllowed(state *position.TradingState, exg *engine.ExchangeState) bool
}

// ExitCondition triggers exits per open position. Any firing condition
// closes the position (logical OR).
type ExitCondition interface {
	ExitMet(state *position.TradingState, exg *engine.ExchangeState, pos *position.OpenPosition) bool
}

// BuyStrategy synthesizes a buy order from current state, or nil when no
// order can be formed.
type BuyStrategy interface {
	CreateBuyOrder(state *position.TradingState, exg *engine.ExchangeState) (*engine.Order, error)
}

// SellStrategy synthesizes a sell order against an open position.
type SellStrategy interface {
	CreateSellOrder(pos *position.OpenPosition, state *position.TradingState, exg *engine.ExchangeState) (*engine.Order, error)
}

// ExitStrategy synthesizes a resting exit order immediately after a buy
// completes (e.g. a take-profit limit).
type ExitStrategy interface {
	CreateExitOrder(pos *position.OpenPosition, exg *engine.ExchangeState) (*engine.Order, error)
}

// Strategy evaluates the configured signals and conditions against the
// timeframes that completed a candle this tick.
type Strategy struct {
	ExitTimeSeries  []*series.TimeSeries
	EntrySignals    []EntrySignal
	ExitSignals     []ExitSignal
	EntryConditions []EntryCondition
	ExitConditions  []ExitCondition

	logger *zap.Logger
}

func NewStrategy(exitTimeSeries []*series.TimeSeries, entrySignals []EntrySignal, exitSignals []ExitSignal,
	entryConditions []EntryCondition, exitConditions []ExitCondition, logger *zap.Logger) *Strategy {
	return &Strategy{
		ExitTimeSeries:  exitTimeSeries,
		EntrySignals:    entrySignals,
		ExitSignals:     exitSignals,
		EntryConditions: entryConditions,
		ExitConditions:  exitConditions,
		logger:          logger.Named("strategy"),
	}
}

// EnterPosition reports whether any entry signal on an updated timeframe
// fired with all entry conditions satisfied.
func (s *Strategy) EnterPosition(state *position.TradingState, exg *engine.ExchangeState, updated []*series.TimeSeries) bool {
	for _, sig := range s.EntrySignals {
		if !timeSeriesUpdated(sig.TimeSeries(), updated) || !sig.IdentifyEntry() {
			continue
		}
		if !s.entryConditionsMet(state, exg) {
			continue
		}
		s.logger.Info("entry identified", zap.Int64("ts", exg.CurrentTimestamp))
		return true
	}
	return false
}

func (s *Strategy) entryConditionsMet(state *position.TradingState, exg *engine.ExchangeState) bool {
	for _, cond := range s.EntryConditions {
		if !cond.EntryAllowed(state, exg) {
			return false
		}
	}
	return true
}

// ExitPositions returns the open positions to close this tick, in
// deterministic (buy order number) order.
func (s *Strategy) ExitPositions(state *position.TradingState, exg *engine.ExchangeState, updated []*series.TimeSeries) []*position.OpenPosition {
	toClose := make(map[int64]*position.OpenPosition)

	if s.anyExitTimeSeriesUpdated(updated) {
		for _, num := range state.OpenPositionNumbers() {
			pos := state.OpenPositions[num]
			// Never resell a position on the tick it was bought.
			if pos.Buy.ExecutedTimestamp == exg.CurrentTimestamp {
				continue
			}
			if s.exitConditionMet(state, exg, pos) {
				toClose[num] = pos
			}
		}
	}

	if s.exitIdentified(updated) {
		for _, num := range state.OpenPositionNumbers() {
			toClose[num] = state.OpenPositions[num]
		}
	}

	var ordered []*position.OpenPosition
	for _, num := range state.OpenPositionNumbers() {
		if pos, ok := toClose[num]; ok {
			s.logger.Info("exit identified",
				zap.Int64("buy_order", num), zap.Int64("ts", exg.CurrentTimestamp))
			ordered = append(ordered, pos)
		}
	}
	return ordered
}

func (s *Strategy) exitConditionMet(state *position.TradingState, exg *engine.ExchangeState, pos *position.OpenPosition) bool {
	for _, cond := range s.ExitConditions {
		if cond.ExitMet(state, exg, pos) {
			return true
		}
	}
	return false
}

func (s *Strategy) exitIdentified(updated []*series.TimeSeries) bool {
	for _, sig := range s.ExitSignals {
		if timeSeriesUpdated(sig.TimeSeries(), updated) && sig.IdentifyExit() {
			return true
		}
	}
	return false
}

func (s *Strategy) anyExitTimeSeriesUpdated(updated []*series.TimeSeries) bool {
	for _, ts := range s.ExitTimeSeries {
		if timeSeriesUpdated(ts, updated) {
			return true
		}
	}
	return false
}

func timeSeriesUpdated(ts *series.TimeSeries, updated []*series.TimeSeries) bool {
	for _, u := range updated {
		if u == ts {
			return true
		}
	}
	return false
}
