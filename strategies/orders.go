package strategies

import (
	"github.com/shopspring/decimal"

	"spot-backtest/services/calc"
	"spot-backtest/services/engine"
	"spot-backtest/services/position"
)

var hundred = decimal.NewFromInt(100)

// LimitBuyPercentEquity bids a whole-dollar limit PercentBelow the market,
// spending PercentEquity of free USD. The quantity is derated by the maker
// fee so the hold (notional plus fee) fits inside the budget.
type LimitBuyPercentEquity struct {
	PercentEquity decimal.Decimal
	PercentBelow  decimal.Decimal
}

func NewLimitBuyPercentEquity(percentEquity, percentBelow decimal.Decimal) *LimitBuyPercentEquity {
	return &LimitBuyPercentEquity{PercentEquity: percentEquity, PercentBelow: percentBelow}
}

func (b *LimitBuyPercentEquity) CreateBuyOrder(_ *position.TradingState, exg *engine.ExchangeState) (*engine.Order, error) {
	budget := calc.PercentOf(b.PercentEquity, exg.USD)
	if budget.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}

	discount := decimal.NewFromInt(1).Sub(b.PercentBelow.Div(hundred))
	limitPrice := exg.CurrentPrice.Mul(discount).Floor()
	if limitPrice.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}

	denom := limitPrice.Mul(decimal.NewFromInt(1).Add(exg.MakerFee))
	quantity := calc.Quantize(budget.Div(denom))
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}

	return engine.NewOrder(exg.NextOrderNumber(), engine.OrderLimit, engine.SideBuy,
		quantity, exg.MakerFee, exg.CurrentTimestamp, limitPrice)
}

// MarketSellRemaining dumps the unsold remainder of a position at market.
type MarketSellRemaining struct{}

func NewMarketSellRemaining() *MarketSellRemaining { return &MarketSellRemaining{} }

func (MarketSellRemaining) CreateSellOrder(pos *position.OpenPosition, _ *position.TradingState, exg *engine.ExchangeState) (*engine.Order, error) {
	quantity := calc.Quantize(pos.RemainingQuantity())
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}
	return engine.NewOrder(exg.NextOrderNumber(), engine.OrderMarket, engine.SideSell,
		quantity, exg.TakerFee, exg.CurrentTimestamp, decimal.Zero)
}

// LimitExitPercentAbove rests a take-profit limit PercentAbove the entry
// price for PercentOfPosition of the lot. The order opts out of limit
// re-pricing; the target is the target.
type LimitExitPercentAbove struct {
	PercentAbove      decimal.Decimal
	PercentOfPosition decimal.Decimal
}

func NewLimitExitPercentAbove(percentAbove, percentOfPosition decimal.Decimal) *LimitExitPercentAbove {
	return &LimitExitPercentAbove{PercentAbove: percentAbove, PercentOfPosition: percentOfPosition}
}

func (s *LimitExitPercentAbove) CreateExitOrder(pos *position.OpenPosition, exg *engine.ExchangeState) (*engine.Order, error) {
	markup := decimal.NewFromInt(1).Add(s.PercentAbove.Div(hundred))
	limitPrice := pos.EntryPrice.Mul(markup).Floor()

	quantity := calc.Quantize(calc.PercentOf(s.PercentOfPosition, pos.RemainingQuantity()))
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}

	o, err := engine.NewOrder(exg.NextOrderNumber(), engine.OrderLimit, engine.SideSell,
		quantity, exg.MakerFee, exg.CurrentTimestamp, limitPrice)
	if err != nil {
		return nil, err
	}
	o.AllowLimitAdjust = false
	return o, nil
}
