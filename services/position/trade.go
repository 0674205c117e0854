// Package position tracks the lifecycle of bought lots: open positions,
// their partial sells, closed-position metrics and the aggregate trading
// state with its equity ledger.
package position

import (
	"fmt"

	"github.com/shopspring/decimal"

	"spot-backtest/services/engine"
)

// TradeOverview snapshots a fulfilled order's placement and execution data
// for position bookkeeping.
type TradeOverview struct {
	Order       *engine.Order
	OrderNumber int64

	PlacedTimestamp   int64
	PlacedMarketPrice decimal.Decimal

	ExecutedTimestamp   int64
	ExecutedMarketPrice decimal.Decimal
	DollarAmount        decimal.Decimal
	Quantity            decimal.Decimal
	Fee                 decimal.Decimal
	TimeToExecute       int64
	Slippage            decimal.Decimal
	SlippagePct         decimal.Decimal

	Result *TradeResult
}

// NewTradeOverview requires an order that has both placement and execution
// records attached.
func NewTradeOverview(o *engine.Order) (*TradeOverview, error) {
	if o.Execution == nil || o.Placed == nil {
		return nil, fmt.Errorf("order %s has no execution to summarize", o)
	}
	return &TradeOverview{
		Order:               o,
		OrderNumber:         o.Number,
		PlacedTimestamp:     o.Placed.Timestamp,
		PlacedMarketPrice:   o.Placed.MarketPrice,
		ExecutedTimestamp:   o.Execution.Timestamp,
		ExecutedMarketPrice: o.Execution.MarketPrice,
		DollarAmount:        o.Execution.DollarAmount,
		Quantity:            o.Execution.Quantity,
		Fee:                 o.Execution.Fee,
		TimeToExecute:       o.Execution.TimeToExecute,
		Slippage:            o.Execution.Slippage,
		SlippagePct:         o.Execution.SlippagePct,
	}, nil
}

// TradeResult is the realized outcome of one sell against an open position,
// with run-up/drawdown attributed against the pre-sell extremes.
type TradeResult struct {
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Quantity   decimal.Decimal
	Fee        decimal.Decimal

	EntryTimestamp int64
	ExitTimestamp  int64

	PercentOfPosition        decimal.Decimal
	TotalPositionPercentSold decimal.Decimal

	RunUpDollar    decimal.Decimal
	RunUpPct       decimal.Decimal
	DrawdownDollar decimal.Decimal
	DrawdownPct    decimal.Decimal

	ProfitAndLoss    decimal.Decimal
	ProfitAndLossPct decimal.Decimal
}

func newTradeResult(sell *TradeOverview, pos *OpenPosition) *TradeResult {
	hundred := decimal.NewFromInt(100)
	r := &TradeResult{
		EntryPrice:     pos.EntryPrice,
		ExitPrice:      sell.ExecutedMarketPrice,
		Quantity:       sell.Quantity,
		Fee:            sell.Fee,
		EntryTimestamp: pos.Buy.ExecutedTimestamp,
		ExitTimestamp:  sell.ExecutedTimestamp,
	}

	r.PercentOfPosition = sell.Quantity.Div(pos.EntryQuantity).Mul(hundred)
	r.TotalPositionPercentSold = pos.PercentSold.Mul(hundred)

	runUp := pos.MaxPriceSeen.Sub(pos.EntryPrice)
	r.RunUpDollar = runUp.Mul(sell.Quantity)
	drawdown := pos.EntryPrice.Sub(pos.MinPriceSeen)
	r.DrawdownDollar = drawdown.Mul(sell.Quantity)
	if !pos.EntryPrice.IsZero() {
		r.RunUpPct = runUp.Div(pos.EntryPrice).Mul(hundred)
		r.DrawdownPct = drawdown.Div(pos.EntryPrice).Mul(hundred)
	}

	pnl := r.ExitPrice.Sub(r.EntryPrice).Mul(r.Quantity)
	r.ProfitAndLoss = pnl.Sub(r.Fee)
	entryNotional := r.EntryPrice.Mul(r.Quantity)
	if !entryNotional.IsZero() {
		r.ProfitAndLossPct = r.ProfitAndLoss.Div(entryNotional).Mul(hundred)
	}
	return r
}
