package position

import (
	"github.com/shopspring/decimal"

	"spot-backtest/services/engine"
)

// fullySoldTolerance closes a position once at least 99.9% of the bought
// quantity has been sold, absorbing quantize residue on the final sell.
var fullySoldTolerance = decimal.NewFromFloat(0.999)

// OpenPosition is one unmatched or partially-closed buy. It accumulates
// sells and tracks the price extremes seen since open for run-up/drawdown
// attribution.
type OpenPosition struct {
	TradeNum int
	Buy      *TradeOverview

	EntryPrice    decimal.Decimal
	EntryQuantity decimal.Decimal

	PercentSold  decimal.Decimal
	QuantitySold decimal.Decimal
	TimesSold    int

	SellTrades []*TradeOverview

	// At most one sell order may rest against a position at a time.
	locked    bool
	SellOrder *engine.Order

	Bars                  int
	MaxPriceSeen          decimal.Decimal
	MaxPriceSeenTimestamp int64
	MinPriceSeen          decimal.Decimal
	MinPriceSeenTimestamp int64
}

// NewOpenPosition opens a position from a completed buy.
func NewOpenPosition(buy *TradeOverview, tradeNum int) *OpenPosition {
	return &OpenPosition{
		TradeNum:              tradeNum,
		Buy:                   buy,
		EntryPrice:            buy.ExecutedMarketPrice,
		EntryQuantity:         buy.Quantity,
		MaxPriceSeen:          buy.ExecutedMarketPrice,
		MaxPriceSeenTimestamp: buy.ExecutedTimestamp,
		MinPriceSeen:          buy.ExecutedMarketPrice,
		MinPriceSeenTimestamp: buy.ExecutedTimestamp,
	}
}

// Update extends the max/min price seen. Called once per tick for every open
// position; the extremes never retreat.
func (p *OpenPosition) Update(currentPrice decimal.Decimal, timestamp int64) {
	if currentPrice.GreaterThan(p.MaxPriceSeen) {
		p.MaxPriceSeen = currentPrice
		p.MaxPriceSeenTimestamp = timestamp
	}
	if currentPrice.LessThan(p.MinPriceSeen) {
		p.MinPriceSeen = currentPrice
		p.MinPriceSeenTimestamp = timestamp
	}
	p.Bars++
}

// RecordSell accumulates a completed sell, unlocks the position and returns
// the per-sell result.
func (p *OpenPosition) RecordSell(sell *TradeOverview) *TradeResult {
	p.QuantitySold = p.QuantitySold.Add(sell.Quantity)
	p.PercentSold = p.QuantitySold.Div(p.EntryQuantity)
	p.TimesSold++

	result := newTradeResult(sell, p)
	sell.Result = result
	p.SellTrades = append(p.SellTrades, sell)

	p.Unlock()
	return result
}

// Lock marks a resting sell order against this position.
func (p *OpenPosition) Lock(sellOrder *engine.Order) {
	p.locked = true
	p.SellOrder = sellOrder
}

// Unlock releases the position for another sell attempt.
func (p *OpenPosition) Unlock() {
	p.locked = false
	p.SellOrder = nil
}

// IsLocked reports whether a sell order is resting against this position.
func (p *OpenPosition) IsLocked() bool { return p.locked }

// FullySold reports whether the position is ready to close.
func (p *OpenPosition) FullySold() bool {
	return p.PercentSold.GreaterThanOrEqual(fullySoldTolerance)
}

// RemainingQuantity is the unsold part of the lot.
func (p *OpenPosition) RemainingQuantity() decimal.Decimal {
	return p.EntryQuantity.Sub(p.QuantitySold)
}
