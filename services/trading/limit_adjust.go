package trading

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spot-backtest/services/engine"
	"spot-backtest/services/position"
)

// LimitAdjust re-prices resting limit orders that the market has walked away
// from, and expires orders that have rested past the configured duration.
// Re-priced orders carry their audit chain forward: the superseded order
// numbers, the original creation timestamp and the initial limit price.
type LimitAdjust struct {
	state     *position.TradingState
	placeBuy  *PlaceBuy
	placeSell *PlaceSell

	buyStrategy  BuyStrategy
	sellStrategy SellStrategy

	// Seconds a limit order may rest before it is cancelled outright.
	staleAfterSecs int64

	logger *zap.Logger
}

func NewLimitAdjust(state *position.TradingState, placeBuy *PlaceBuy, placeSell *PlaceSell,
	buyStrategy BuyStrategy, sellStrategy SellStrategy, staleAfterSecs int64, logger *zap.Logger) *LimitAdjust {
	return &LimitAdjust{
		state:          state,
		placeBuy:       placeBuy,
		placeSell:      placeSell,
		buyStrategy:    buyStrategy,
		sellStrategy:   sellStrategy,
		staleAfterSecs: staleAfterSecs,
		logger:         logger.Named("limit_adjust"),
	}
}

// AdjustLimitOrders sweeps the tracked buy and sell books once.
func (la *LimitAdjust) AdjustLimitOrders(exg *engine.ExchangeState) {
	for _, num := range sortedOrderNumbers(la.state.OpenBuyOrders) {
		la.adjustBuy(la.state.OpenBuyOrders[num], exg)
	}
	for _, num := range sortedOrderNumbers(la.state.OpenSellOrders) {
		la.adjustSell(la.state.OpenSellOrders[num], exg)
	}
}

func (la *LimitAdjust) adjustBuy(o *engine.Order, exg *engine.ExchangeState) {
	if !la.adjustable(o, exg) {
		return
	}
	if la.stale(o, exg) {
		if err := la.placeBuy.CancelBuyOrder(o, exg); err != nil {
			la.logger.Error("stale buy cancel failed", zap.String("order", o.String()), zap.Error(err))
		}
		return
	}
	// Re-price a buy only when the market moved up and away from the bid.
	// Whole-dollar comparison keeps sub-dollar noise from churning the book.
	if exg.CurrentPrice.IntPart() <= o.Placed.MarketPrice.IntPart() {
		return
	}

	remaining := o.RemainingQuantity()
	if err := la.placeBuy.CancelBuyOrder(o, exg); err != nil {
		la.logger.Error("buy re-price cancel failed", zap.String("order", o.String()), zap.Error(err))
		return
	}
	if o.Execution != nil {
		// Filled during the cancel window; the completion sweep owns it now.
		return
	}

	fresh, err := la.buyStrategy.CreateBuyOrder(la.state, exg)
	if err != nil || fresh == nil {
		la.logger.Error("buy re-price could not derive a fresh order",
			zap.String("superseded", o.String()), zap.Error(err))
		return
	}
	la.carryChain(fresh, o, remaining)

	if err := la.placeBuy.PlaceBuyOrder(fresh, exg); err != nil {
		la.logger.Error("buy re-price placement failed", zap.String("order", fresh.String()), zap.Error(err))
		return
	}
	la.logger.Info("buy re-priced",
		zap.String("superseded", o.String()), zap.String("order", fresh.String()),
		zap.Int64("ts", exg.CurrentTimestamp))
}

func (la *LimitAdjust) adjustSell(o *engine.Order, exg *engine.ExchangeState) {
	if !la.adjustable(o, exg) {
		return
	}
	pos := la.state.PositionBySellOrderNumber(o.Number)
	if pos == nil {
		la.logger.Error("resting sell has no open position", zap.String("order", o.String()))
		return
	}
	if la.stale(o, exg) {
		if err := la.placeSell.CancelSellOrder(o, pos, exg); err != nil {
			la.logger.Error("stale sell cancel failed", zap.String("order", o.String()), zap.Error(err))
		}
		return
	}
	// Re-price a sell only when the market moved down and away from the ask.
	if exg.CurrentPrice.IntPart() >= o.Placed.MarketPrice.IntPart() {
		return
	}

	if err := la.placeSell.CancelSellOrder(o, pos, exg); err != nil {
		la.logger.Error("sell re-price cancel failed", zap.String("order", o.String()), zap.Error(err))
		return
	}
	if o.Execution != nil {
		return
	}

	fresh, err := la.sellStrategy.CreateSellOrder(pos, la.state, exg)
	if err != nil || fresh == nil {
		la.logger.Error("sell re-price could not derive a fresh order",
			zap.String("superseded", o.String()), zap.Error(err))
		return
	}
	la.carryChain(fresh, o, o.RemainingQuantity())

	if err := la.placeSell.PlaceSellOrder(fresh, pos, exg); err != nil {
		la.logger.Error("sell re-price placement failed", zap.String("order", fresh.String()), zap.Error(err))
		return
	}
	la.logger.Info("sell re-priced",
		zap.String("superseded", o.String()), zap.String("order", fresh.String()),
		zap.Int64("ts", exg.CurrentTimestamp))
}

func (la *LimitAdjust) adjustable(o *engine.Order, exg *engine.ExchangeState) bool {
	if o.Type != engine.OrderLimit || !o.AllowLimitAdjust || o.Placed == nil {
		return false
	}
	_, open := exg.OrderBook[o.Number]
	return open
}

// stale measures from the placement timestamp, so a re-priced replacement
// gets a full resting window of its own even though it carries the original
// creation timestamp for audit.
func (la *LimitAdjust) stale(o *engine.Order, exg *engine.ExchangeState) bool {
	return la.staleAfterSecs > 0 && exg.CurrentTimestamp-o.Placed.Timestamp >= la.staleAfterSecs
}

// carryChain threads the audit trail from a superseded order into its
// replacement and caps the replacement at the unfilled remainder.
func (la *LimitAdjust) carryChain(fresh, old *engine.Order, remaining decimal.Decimal) {
	fresh.SupersededOrders = append(append([]int64(nil), old.SupersededOrders...), old.Number)
	fresh.CreationTimestamp = old.CreationTimestamp
	fresh.InitialLimitPrice = old.InitialLimitPrice
	if fresh.Quantity.GreaterThan(remaining) {
		fresh.Quantity = remaining
	}
}
