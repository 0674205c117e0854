// Package engine implements the simulated exchange: account state, the
// order lifecycle, and the backtest execution client that matches resting
// orders against the current price.
package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spot-backtest/services/calc"
)

// ExchangeState is the simulated account: balances, market price/time, the
// open order book and the fulfilled ledger. One instance per backtest run,
// threaded explicitly through every operation.
type ExchangeState struct {
	USD   decimal.Decimal
	Asset decimal.Decimal

	MakerFee decimal.Decimal
	TakerFee decimal.Decimal

	InitialPortfolioValue decimal.Decimal
	InitialPrice          decimal.Decimal
	InitialTimestamp      int64
	initialized           bool

	CurrentPrice     decimal.Decimal
	CurrentTimestamp int64

	OrderBook       map[int64]*Order
	FulfilledOrders map[int64]*Order
	orderCounter    int64

	logger *zap.Logger
}

// NewExchangeState constructs the account. Fee rates are fixed for the run.
func NewExchangeState(usd, asset, makerFee, takerFee decimal.Decimal, logger *zap.Logger) (*ExchangeState, error) {
	if usd.IsNegative() || asset.IsNegative() {
		return nil, fmt.Errorf("%w: starting balances must be non-negative (usd=%s asset=%s)", ErrInvalidState, usd, asset)
	}
	if makerFee.IsNegative() || takerFee.IsNegative() {
		return nil, fmt.Errorf("%w: fee rates must be non-negative", ErrInvalidState)
	}
	return &ExchangeState{
		USD:             usd,
		Asset:           asset,
		MakerFee:        makerFee,
		TakerFee:        takerFee,
		OrderBook:       make(map[int64]*Order),
		FulfilledOrders: make(map[int64]*Order),
		logger:          logger.Named("engine"),
	}, nil
}

// UpdatePriceTime sets the market price and timestamp for this tick. The
// first call snapshots the initial portfolio value for percent-return
// baselines. Timestamps must never go backwards.
func (s *ExchangeState) UpdatePriceTime(price decimal.Decimal, timestamp int64) error {
	if price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: invalid price %s at %d", ErrInvalidState, price, timestamp)
	}
	if timestamp < s.CurrentTimestamp {
		return fmt.Errorf("%w: timestamp %d precedes %d", ErrInvalidState, timestamp, s.CurrentTimestamp)
	}
	s.CurrentPrice = calc.Quantize(price)
	s.CurrentTimestamp = timestamp

	if !s.initialized {
		s.InitialPortfolioValue = s.Asset.Mul(s.CurrentPrice).Add(s.USD)
		s.InitialPrice = s.CurrentPrice
		s.InitialTimestamp = timestamp
		s.initialized = true
	}
	return nil
}

// Validate fails when a core invariant is violated. Callers must treat an
// error here as fatal for the run.
func (s *ExchangeState) Validate() error {
	if !s.initialized || s.CurrentPrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: market price not set", ErrInvalidState)
	}
	if s.CurrentTimestamp == 0 {
		return fmt.Errorf("%w: market timestamp not set", ErrInvalidState)
	}
	if s.USD.IsNegative() {
		s.logger.Error("negative USD holdings", zap.String("usd", s.USD.String()), zap.Int64("ts", s.CurrentTimestamp))
		return fmt.Errorf("%w: USD holdings %s < 0", ErrInvalidState, s.USD)
	}
	if s.Asset.IsNegative() {
		s.logger.Error("negative asset holdings", zap.String("asset", s.Asset.String()), zap.Int64("ts", s.CurrentTimestamp))
		return fmt.Errorf("%w: asset holdings %s < 0", ErrInvalidState, s.Asset)
	}
	return nil
}

// NextOrderNumber issues monotonically increasing order numbers; the state
// owns the order book, so it owns the sequence.
func (s *ExchangeState) NextOrderNumber() int64 {
	s.orderCounter++
	return s.orderCounter
}

// AddUSD applies a balance delta. Callers pass quantized amounts so holds
// and settlements reconcile exactly.
func (s *ExchangeState) AddUSD(delta decimal.Decimal) {
	s.USD = s.USD.Add(delta)
}

// AddAsset applies an asset balance delta.
func (s *ExchangeState) AddAsset(delta decimal.Decimal) {
	s.Asset = s.Asset.Add(delta)
}

// OpenOrderNumbers returns the open order numbers in ascending order, so
// every sweep over the book is deterministic.
func (s *ExchangeState) OpenOrderNumbers() []int64 {
	nums := make([]int64, 0, len(s.OrderBook))
	for n := range s.OrderBook {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}

// USDHolds is the USD currently backing open buy orders.
func (s *ExchangeState) USDHolds() decimal.Decimal {
	total := decimal.Zero
	for _, o := range s.OrderBook {
		total = total.Add(o.USDHold)
	}
	return total
}

// AssetHolds is the asset currently backing open sell orders.
func (s *ExchangeState) AssetHolds() decimal.Decimal {
	total := decimal.Zero
	for _, o := range s.OrderBook {
		total = total.Add(o.AssetHold)
	}
	return total
}

// PortfolioValue values the whole account, holds included, at market.
func (s *ExchangeState) PortfolioValue() decimal.Decimal {
	return s.Asset.Add(s.AssetHolds()).Mul(s.CurrentPrice).Add(s.USD).Add(s.USDHolds())
}

// PortfolioPercentChange is the percent return since the first tick.
func (s *ExchangeState) PortfolioPercentChange() decimal.Decimal {
	pct, err := calc.PercentChange(s.PortfolioValue(), s.InitialPortfolioValue)
	if err != nil {
		return decimal.Zero
	}
	return pct
}

// LogPortfolio emits a holdings snapshot.
func (s *ExchangeState) LogPortfolio() {
	s.logger.Info("portfolio",
		zap.String("usd", s.USD.StringFixed(2)),
		zap.String("asset", s.Asset.StringFixed(8)),
		zap.String("usd_hold", s.USDHolds().StringFixed(2)),
		zap.String("asset_hold", s.AssetHolds().StringFixed(8)))
}
