package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"spot-backtest/services/calc"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// Trade values are compared at a finer precision than the 6dp balance grid
// so borderline orders are judged consistently.
const tradeValuePlaces = 9

// Placed records when and at what market price an order entered the book.
type Placed struct {
	Timestamp   int64
	MarketPrice decimal.Decimal
}

// Execution records the settlement of a filled order.
type Execution struct {
	Timestamp     int64
	MarketPrice   decimal.Decimal
	DollarAmount  decimal.Decimal
	Quantity      decimal.Decimal
	Fee           decimal.Decimal
	TimeToExecute int64
	Slippage      decimal.Decimal
	SlippagePct   decimal.Decimal
}

// Order is an immutable trade intent plus its lifecycle sub-records. Once
// Execution is set the order is never mutated again.
type Order struct {
	Number            int64
	Type              OrderType
	Side              Side
	Quantity          decimal.Decimal
	FeeRate           decimal.Decimal
	CreationTimestamp int64

	LimitPrice        decimal.Decimal
	InitialLimitPrice decimal.Decimal
	// Superseded order numbers from limit re-pricing, oldest first.
	SupersededOrders []int64
	AllowLimitAdjust bool

	USDHold   decimal.Decimal
	AssetHold decimal.Decimal

	Placed    *Placed
	Execution *Execution
}

// NewOrder validates side/type/quantity/limit-price invariants at
// construction; invalid parameters never produce an order.
func NewOrder(number int64, typ OrderType, side Side, quantity, feeRate decimal.Decimal, creationTimestamp int64, limitPrice decimal.Decimal) (*Order, error) {
	if typ != OrderMarket && typ != OrderLimit {
		return nil, fmt.Errorf("%w: order type %q", ErrInvalidOrder, typ)
	}
	if side != SideBuy && side != SideSell {
		return nil, fmt.Errorf("%w: order side %q", ErrInvalidOrder, side)
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: quantity %s must be > 0", ErrInvalidOrder, quantity)
	}
	if typ == OrderLimit && limitPrice.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: limit order #%d requires a positive limit price", ErrInvalidOrder, number)
	}
	return &Order{
		Number:            number,
		Type:              typ,
		Side:              side,
		Quantity:          quantity,
		FeeRate:           feeRate,
		CreationTimestamp: creationTimestamp,
		LimitPrice:        limitPrice,
		InitialLimitPrice: limitPrice,
		AllowLimitAdjust:  true,
	}, nil
}

// CheckValid reports whether the order can be placed right now: sufficient
// funds/asset for the trade value, and market conditions that permit a
// resting placement. Insufficiency is returned as an error; a limit order
// that would fill instantly fails the placement check without error.
func (o *Order) CheckValid(s *ExchangeState) (bool, error) {
	if err := o.validateHoldings(s); err != nil {
		return false, err
	}
	return o.validMarketConditions(s.CurrentPrice), nil
}

func (o *Order) validateHoldings(s *ExchangeState) error {
	price := s.CurrentPrice
	if o.Type == OrderLimit {
		price = o.LimitPrice
	}
	tradeValue := o.Quantity.Mul(price).Round(tradeValuePlaces)

	switch o.Side {
	case SideBuy:
		if s.USD.GreaterThanOrEqual(tradeValue) {
			return nil
		}
		return fmt.Errorf("%w: order #%d needs $%s, have $%s at %d",
			ErrInsufficientFunds, o.Number, tradeValue, s.USD, s.CurrentTimestamp)
	case SideSell:
		if s.Asset.GreaterThanOrEqual(o.Quantity) {
			return nil
		}
		return fmt.Errorf("%w: order #%d needs %s, have %s at %d",
			ErrInsufficientAsset, o.Number, o.Quantity, s.Asset, s.CurrentTimestamp)
	}
	return fmt.Errorf("%w: order side %q", ErrInvalidOrder, o.Side)
}

// validMarketConditions rejects limit orders that would match immediately:
// a resting limit buy must bid strictly below market, a limit sell strictly
// above. Executable uses the complementary inclusive comparison.
func (o *Order) validMarketConditions(currentPrice decimal.Decimal) bool {
	if o.Type == OrderMarket {
		return true
	}
	if o.Side == SideBuy {
		return o.LimitPrice.LessThan(currentPrice)
	}
	return o.LimitPrice.GreaterThan(currentPrice)
}

// Executable reports whether market conditions fill the order right now.
func (o *Order) Executable(currentPrice decimal.Decimal) bool {
	if o.Type == OrderMarket {
		return true
	}
	if o.Side == SideBuy {
		return currentPrice.LessThanOrEqual(o.LimitPrice)
	}
	return currentPrice.GreaterThanOrEqual(o.LimitPrice)
}

// HoldFunds deducts the funds backing this order from the account. Buys hold
// notional plus the expected fee in USD; sells hold only the asset quantity,
// with the fee taken from proceeds at execution.
func (o *Order) HoldFunds(s *ExchangeState) {
	if o.Side == SideBuy {
		price := s.CurrentPrice
		if o.Type == OrderLimit {
			price = o.LimitPrice
		}
		notional := price.Mul(o.Quantity)
		o.USDHold = calc.Quantize(notional.Add(notional.Mul(o.FeeRate)))
		s.AddUSD(o.USDHold.Neg())
		return
	}
	o.AssetHold = o.Quantity
	s.AddAsset(o.AssetHold.Neg())
}

// RestoreFunds reverses exactly the held amount.
func (o *Order) RestoreFunds(s *ExchangeState) {
	if o.Side == SideBuy {
		s.AddUSD(o.USDHold)
		o.USDHold = decimal.Zero
		return
	}
	s.AddAsset(o.AssetHold)
	o.AssetHold = decimal.Zero
}

// SetPlaced stamps the placement sub-record.
func (o *Order) SetPlaced(timestamp int64, marketPrice decimal.Decimal) {
	o.Placed = &Placed{Timestamp: timestamp, MarketPrice: marketPrice}
}

// RemainingQuantity is the unfilled part of the order.
func (o *Order) RemainingQuantity() decimal.Decimal {
	if o.Execution == nil {
		return o.Quantity
	}
	return o.Quantity.Sub(o.Execution.Quantity)
}

func (o *Order) String() string {
	s := fmt.Sprintf("#%d %s %s %s", o.Number, o.Type, o.Side, o.Quantity.StringFixed(8))
	if o.Type == OrderLimit {
		s += fmt.Sprintf(" @ $%s", o.LimitPrice.StringFixed(2))
	}
	return s
}
