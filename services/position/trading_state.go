package position

import (
	"sort"

	"github.com/shopspring/decimal"

	"spot-backtest/services/engine"
)

// EquityEntry is one snapshot of the equity ledger, appended per close.
type EquityEntry struct {
	TradeNum           int
	Timestamp          int64
	Pnl                decimal.Decimal
	CumulativePnl      decimal.Decimal
	MaxDrawdown        decimal.Decimal
	MaxDrawdownPercent decimal.Decimal
}

// TradingState is the aggregate root for one run: open and closed positions,
// orders awaiting fill, and the running equity ledger. Cumulative P&L always
// equals the sum of closed positions' realized P&L, and max drawdown never
// decreases.
type TradingState struct {
	OpenPositions   map[int64]*OpenPosition
	ClosedPositions []*ClosedPosition

	OpenBuyOrders  map[int64]*engine.Order
	OpenSellOrders map[int64]*engine.Order

	CumulativePnl      decimal.Decimal
	MaxEquity          decimal.Decimal
	MaxDrawdown        decimal.Decimal
	MaxDrawdownPercent decimal.Decimal

	EquityLog []EquityEntry
}

func NewTradingState() *TradingState {
	return &TradingState{
		OpenPositions:  make(map[int64]*OpenPosition),
		OpenBuyOrders:  make(map[int64]*engine.Order),
		OpenSellOrders: make(map[int64]*engine.Order),
	}
}

// AddOpenPosition indexes a position by its originating buy order number.
func (t *TradingState) AddOpenPosition(p *OpenPosition) {
	t.OpenPositions[p.Buy.OrderNumber] = p
}

// RemoveOpenPosition drops a position from the open set.
func (t *TradingState) RemoveOpenPosition(p *OpenPosition) {
	delete(t.OpenPositions, p.Buy.OrderNumber)
}

// OpenPositionNumbers returns buy order numbers in ascending order so sweeps
// over open positions are deterministic.
func (t *TradingState) OpenPositionNumbers() []int64 {
	nums := make([]int64, 0, len(t.OpenPositions))
	for n := range t.OpenPositions {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}

// PositionBySellOrderNumber finds the open position locked by the given
// resting sell order, if any.
func (t *TradingState) PositionBySellOrderNumber(orderNumber int64) *OpenPosition {
	for _, num := range t.OpenPositionNumbers() {
		p := t.OpenPositions[num]
		if p.SellOrder != nil && p.SellOrder.Number == orderNumber {
			return p
		}
	}
	return nil
}

// AddClosedPosition appends a close, stamps its cumulative P&L and updates
// the peak/drawdown ledger.
func (t *TradingState) AddClosedPosition(cp *ClosedPosition) {
	t.ClosedPositions = append(t.ClosedPositions, cp)

	t.CumulativePnl = t.CumulativePnl.Add(cp.ProfitAndLoss)
	cp.CumulativePnl = t.CumulativePnl

	if t.CumulativePnl.GreaterThan(t.MaxEquity) {
		t.MaxEquity = t.CumulativePnl
	}

	drawdown := t.MaxEquity.Sub(t.CumulativePnl)
	drawdownPct := decimal.Zero
	if t.MaxEquity.IsPositive() {
		drawdownPct = drawdown.Div(t.MaxEquity).Mul(decimal.NewFromInt(100))
	}
	if drawdown.GreaterThan(t.MaxDrawdown) {
		t.MaxDrawdown = drawdown
	}
	if drawdownPct.GreaterThan(t.MaxDrawdownPercent) {
		t.MaxDrawdownPercent = drawdownPct
	}

	t.EquityLog = append(t.EquityLog, EquityEntry{
		TradeNum:           len(t.ClosedPositions),
		Timestamp:          cp.CloseTimestamp,
		Pnl:                cp.ProfitAndLoss,
		CumulativePnl:      t.CumulativePnl,
		MaxDrawdown:        t.MaxDrawdown,
		MaxDrawdownPercent: t.MaxDrawdownPercent,
	})
}
