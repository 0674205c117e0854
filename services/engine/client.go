package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spot-backtest/services/calc"
)

// Client is the order execution strategy. The backtest implementation is the
// only one in this repository; a live client would satisfy the same surface.
type Client interface {
	PlaceOrder(o *Order) error
	CheckOrdersForExecution() []*Order
	CancelOrder(o *Order) error
}

// BacktestClient matches resting orders against the current simulated price
// and settles fills directly on the ExchangeState.
type BacktestClient struct {
	state  *ExchangeState
	logger *zap.Logger
}

func NewBacktestClient(state *ExchangeState, logger *zap.Logger) *BacktestClient {
	return &BacktestClient{state: state, logger: logger.Named("client")}
}

var _ Client = (*BacktestClient)(nil)

// PlaceOrder validates, holds funds and inserts the order into the book. An
// order that is executable at placement (market orders) completes inline.
func (c *BacktestClient) PlaceOrder(o *Order) error {
	s := c.state

	valid, err := o.CheckValid(s)
	if err != nil {
		c.logger.Error("order placement failed", zap.String("order", o.String()), zap.Error(err))
		return err
	}
	if !valid {
		c.logger.Error("order rejected by market conditions",
			zap.String("order", o.String()),
			zap.String("price", s.CurrentPrice.String()),
			zap.Int64("ts", s.CurrentTimestamp))
		return fmt.Errorf("%w: %s at price %s", ErrOrderRejected, o, s.CurrentPrice)
	}

	o.HoldFunds(s)
	s.OrderBook[o.Number] = o
	c.logger.Info("order placed", zap.String("order", o.String()), zap.Int64("ts", s.CurrentTimestamp))

	if o.Executable(s.CurrentPrice) {
		c.completeOrder(o)
		c.fulfill(o)
	}
	return nil
}

// CheckOrdersForExecution sweeps the open book and completes every order
// whose fill condition is now satisfied. Returns the completed orders.
func (c *BacktestClient) CheckOrdersForExecution() []*Order {
	s := c.state

	var executed []*Order
	for _, num := range s.OpenOrderNumbers() {
		o := s.OrderBook[num]
		if o.Executable(s.CurrentPrice) {
			executed = append(executed, o)
		}
	}
	for _, o := range executed {
		c.logger.Info("executing order", zap.String("order", o.String()), zap.Int64("ts", s.CurrentTimestamp))
		c.completeOrder(o)
		c.fulfill(o)
	}
	return executed
}

// CancelOrder restores held funds and removes the order from the book.
func (c *BacktestClient) CancelOrder(o *Order) error {
	s := c.state
	if _, ok := s.OrderBook[o.Number]; !ok {
		c.logger.Error("cancel failed, order not open",
			zap.String("order", o.String()), zap.Int64("ts", s.CurrentTimestamp))
		return fmt.Errorf("%w: %s", ErrOrderNotOpen, o)
	}
	o.RestoreFunds(s)
	delete(s.OrderBook, o.Number)
	c.logger.Info("order cancelled", zap.String("order", o.String()), zap.Int64("ts", s.CurrentTimestamp))
	return nil
}

// completeOrder settles a fill. The hold is unwound first, always, so the
// settlement applies against clean balances and is never double counted.
func (c *BacktestClient) completeOrder(o *Order) {
	s := c.state

	o.RestoreFunds(s)

	// The fee accrues on the market price at fill time; a limit order still
	// settles its notional at the limit price.
	fee := calc.Quantize(o.Quantity.Mul(s.CurrentPrice).Mul(o.FeeRate))
	executionPrice := s.CurrentPrice
	if o.Type == OrderLimit {
		executionPrice = o.LimitPrice
	}

	var usdChange, assetChange decimal.Decimal
	if o.Side == SideBuy {
		usdChange = calc.Quantize(o.Quantity.Mul(executionPrice).Add(fee)).Neg()
		assetChange = o.Quantity
	} else {
		usdChange = calc.Quantize(o.Quantity.Mul(executionPrice).Sub(fee))
		assetChange = o.Quantity.Neg()
	}
	s.AddUSD(usdChange)
	s.AddAsset(assetChange)

	slippage := decimal.Zero
	slippagePct := decimal.Zero
	if o.Placed != nil {
		slippage = executionPrice.Sub(o.Placed.MarketPrice)
		if pct, err := calc.PercentChange(executionPrice, o.Placed.MarketPrice); err == nil {
			slippagePct = pct
		}
	}

	o.Execution = &Execution{
		Timestamp:     s.CurrentTimestamp,
		MarketPrice:   executionPrice,
		DollarAmount:  usdChange.Abs(),
		Quantity:      assetChange.Abs(),
		Fee:           fee,
		TimeToExecute: s.CurrentTimestamp - o.CreationTimestamp,
		Slippage:      slippage,
		SlippagePct:   slippagePct,
	}
}

func (c *BacktestClient) fulfill(o *Order) {
	s := c.state
	s.FulfilledOrders[o.Number] = o
	delete(s.OrderBook, o.Number)
	c.logger.Info("order filled",
		zap.String("order", o.String()),
		zap.String("fill_price", o.Execution.MarketPrice.String()),
		zap.Int64("ts", s.CurrentTimestamp))
}
