package trading

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"spot-backtest/services/engine"
	"spot-backtest/services/position"
)

// PlaceSell owns sell order placement against open positions. Placing a sell
// locks the position; completion or cancellation releases the lock.
type PlaceSell struct {
	mode   Mode
	state  *position.TradingState
	client engine.Client
	logger *zap.Logger
}

func NewPlaceSell(mode Mode, state *position.TradingState, client engine.Client, logger *zap.Logger) *PlaceSell {
	return &PlaceSell{mode: mode, state: state, client: client, logger: logger.Named("place_sell")}
}

// PlaceSellOrder submits a sell against pos. The position must be unlocked;
// a second resting sell against the same lot is a caller bug.
func (p *PlaceSell) PlaceSellOrder(o *engine.Order, pos *position.OpenPosition, exg *engine.ExchangeState) error {
	if pos.IsLocked() {
		return fmt.Errorf("%w: position %d already has resting sell %s",
			engine.ErrInvalidState, pos.Buy.OrderNumber, pos.SellOrder)
	}
	o.SetPlaced(exg.CurrentTimestamp, exg.CurrentPrice)
	if err := p.client.PlaceOrder(o); err != nil {
		o.Placed = nil
		return fmt.Errorf("place sell: %w", err)
	}
	pos.Lock(o)
	p.state.OpenSellOrders[o.Number] = o
	return nil
}

// PlaceSellWithRetries re-derives and resubmits the sell on live-exchange
// rejections, backing off exponentially.
func (p *PlaceSell) PlaceSellWithRetries(o *engine.Order, pos *position.OpenPosition, sellStrategy SellStrategy, exg *engine.ExchangeState) error {
	err := p.PlaceSellOrder(o, pos, exg)
	if err == nil || p.mode != ModeLive {
		return err
	}

	backoff := retryBackoffInitial
	for attempt := 1; attempt <= maxPlacementRetries; attempt++ {
		p.logger.Warn("sell placement failed, retrying",
			zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(backoff)
		if backoff *= 2; backoff > retryBackoffMax {
			backoff = retryBackoffMax
		}

		fresh, cerr := sellStrategy.CreateSellOrder(pos, p.state, exg)
		if cerr != nil || fresh == nil {
			p.logger.Error("sell retry could not derive a fresh order", zap.Error(cerr))
			return err
		}
		fresh.CreationTimestamp = o.CreationTimestamp
		fresh.InitialLimitPrice = o.InitialLimitPrice

		if err = p.PlaceSellOrder(fresh, pos, exg); err == nil {
			return nil
		}
	}
	return fmt.Errorf("sell placement exhausted %d retries: %w", maxPlacementRetries, err)
}

// CancelSellOrder withdraws a resting sell and unlocks its position. An order
// that executed between the decision and the cancel stays tracked for the
// completion sweep, lock intact.
func (p *PlaceSell) CancelSellOrder(o *engine.Order, pos *position.OpenPosition, exg *engine.ExchangeState) error {
	if o.Execution != nil {
		p.logger.Info("sell executed before cancel, leaving for completion",
			zap.String("order", o.String()))
		return nil
	}
	if err := p.client.CancelOrder(o); err != nil {
		return fmt.Errorf("cancel sell: %w", err)
	}
	delete(p.state.OpenSellOrders, o.Number)
	pos.Unlock()
	return nil
}

// CheckAndCompleteAllSellOrders collects every tracked sell that has
// executed, in order-number order.
func (p *PlaceSell) CheckAndCompleteAllSellOrders(exg *engine.ExchangeState) []*position.TradeOverview {
	var completed []*position.TradeOverview
	for _, num := range sortedOrderNumbers(p.state.OpenSellOrders) {
		o := p.state.OpenSellOrders[num]
		if _, fulfilled := exg.FulfilledOrders[num]; !fulfilled {
			continue
		}
		to, err := position.NewTradeOverview(o)
		if err != nil {
			p.logger.Error("sell completion missing execution record",
				zap.String("order", o.String()), zap.Error(err))
			continue
		}
		delete(p.state.OpenSellOrders, num)
		p.logger.Info("sell completed",
			zap.String("order", o.String()),
			zap.String("fill_price", to.ExecutedMarketPrice.String()),
			zap.Int64("ts", to.ExecutedTimestamp))
		completed = append(completed, to)
	}
	return completed
}
