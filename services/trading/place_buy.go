package trading

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"spot-backtest/services/engine"
	"spot-backtest/services/position"
)

const (
	maxPlacementRetries = 10
	retryBackoffInitial = 250 * time.Millisecond
	retryBackoffMax     = 5 * time.Second
)

// PlaceBuy owns buy order placement and completion tracking.
type PlaceBuy struct {
	mode   Mode
	state  *position.TradingState
	client engine.Client
	logger *zap.Logger
}

func NewPlaceBuy(mode Mode, state *position.TradingState, client engine.Client, logger *zap.Logger) *PlaceBuy {
	return &PlaceBuy{mode: mode, state: state, client: client, logger: logger.Named("place_buy")}
}

// PlaceBuyOrder stamps placement and submits the order. On acceptance the
// order is tracked as an open buy until completion collects it.
func (p *PlaceBuy) PlaceBuyOrder(o *engine.Order, exg *engine.ExchangeState) error {
	o.SetPlaced(exg.CurrentTimestamp, exg.CurrentPrice)
	if err := p.client.PlaceOrder(o); err != nil {
		o.Placed = nil
		return fmt.Errorf("place buy: %w", err)
	}
	p.state.OpenBuyOrders[o.Number] = o
	return nil
}

// PlaceBuyWithRetries re-derives and resubmits the buy on live-exchange
// rejections, backing off exponentially. Backtest placements are
// deterministic, so the first failure is final there.
func (p *PlaceBuy) PlaceBuyWithRetries(o *engine.Order, buyStrategy BuyStrategy, exg *engine.ExchangeState) error {
	err := p.PlaceBuyOrder(o, exg)
	if err == nil || p.mode != ModeLive {
		return err
	}

	backoff := retryBackoffInitial
	for attempt := 1; attempt <= maxPlacementRetries; attempt++ {
		p.logger.Warn("buy placement failed, retrying",
			zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(backoff)
		if backoff *= 2; backoff > retryBackoffMax {
			backoff = retryBackoffMax
		}

		fresh, cerr := buyStrategy.CreateBuyOrder(p.state, exg)
		if cerr != nil || fresh == nil {
			p.logger.Error("buy retry could not derive a fresh order", zap.Error(cerr))
			return err
		}
		fresh.CreationTimestamp = o.CreationTimestamp
		fresh.InitialLimitPrice = o.InitialLimitPrice

		if err = p.PlaceBuyOrder(fresh, exg); err == nil {
			return nil
		}
	}
	return fmt.Errorf("buy placement exhausted %d retries: %w", maxPlacementRetries, err)
}

// CancelBuyOrder withdraws a resting buy. An order that executed between the
// decision and the cancel stays tracked and is picked up by the completion
// sweep instead.
func (p *PlaceBuy) CancelBuyOrder(o *engine.Order, exg *engine.ExchangeState) error {
	if o.Execution != nil {
		p.logger.Info("buy executed before cancel, leaving for completion",
			zap.String("order", o.String()))
		return nil
	}
	if err := p.client.CancelOrder(o); err != nil {
		return fmt.Errorf("cancel buy: %w", err)
	}
	delete(p.state.OpenBuyOrders, o.Number)
	return nil
}

// CheckAndCompleteAllBuyOrders collects every tracked buy that has executed,
// in order-number order, and returns their trade overviews.
func (p *PlaceBuy) CheckAndCompleteAllBuyOrders(exg *engine.ExchangeState) []*position.TradeOverview {
	var completed []*position.TradeOverview
	for _, num := range sortedOrderNumbers(p.state.OpenBuyOrders) {
		o := p.state.OpenBuyOrders[num]
		if _, fulfilled := exg.FulfilledOrders[num]; !fulfilled {
			continue
		}
		to, err := position.NewTradeOverview(o)
		if err != nil {
			p.logger.Error("buy completion missing execution record",
				zap.String("order", o.String()), zap.Error(err))
			continue
		}
		delete(p.state.OpenBuyOrders, num)
		p.logger.Info("buy completed",
			zap.String("order", o.String()),
			zap.String("fill_price", to.ExecutedMarketPrice.String()),
			zap.Int64("ts", to.ExecutedTimestamp))
		completed = append(completed, to)
	}
	return completed
}
