package position

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// ErrNoSellTrades rejects closing a position that was never sold against.
var ErrNoSellTrades = errors.New("closed position requires at least one sell trade")

// ClosedPosition derives the final metrics of a fully-sold position. It is
// immutable once constructed; CumulativePnl is stamped by TradingState at
// insertion, which establishes the total ordering of closes.
type ClosedPosition struct {
	Open       *OpenPosition
	EntryTrade *TradeOverview
	SellTrades []*TradeOverview

	Quantity decimal.Decimal
	Fees     decimal.Decimal

	OpenMarketPrice  decimal.Decimal
	CloseMarketPrice decimal.Decimal
	OpenTimestamp    int64
	CloseTimestamp   int64
	DurationSeconds  int64

	ProfitAndLoss        decimal.Decimal
	ProfitAndLossPercent decimal.Decimal

	RunUp       decimal.Decimal
	RunUpPct    decimal.Decimal
	Drawdown    decimal.Decimal
	DrawdownPct decimal.Decimal

	CumulativePnl decimal.Decimal
}

func NewClosedPosition(open *OpenPosition) (*ClosedPosition, error) {
	if len(open.SellTrades) == 0 {
		return nil, ErrNoSellTrades
	}

	sells := make([]*TradeOverview, len(open.SellTrades))
	copy(sells, open.SellTrades)
	sort.SliceStable(sells, func(i, j int) bool {
		return sells[i].ExecutedTimestamp < sells[j].ExecutedTimestamp
	})

	cp := &ClosedPosition{
		Open:             open,
		EntryTrade:       open.Buy,
		SellTrades:       sells,
		OpenMarketPrice:  open.Buy.ExecutedMarketPrice,
		CloseMarketPrice: sells[len(sells)-1].ExecutedMarketPrice,
		OpenTimestamp:    open.Buy.ExecutedTimestamp,
		CloseTimestamp:   sells[len(sells)-1].ExecutedTimestamp,
	}
	cp.DurationSeconds = cp.CloseTimestamp - cp.OpenTimestamp

	sellFees := decimal.Zero
	for _, s := range sells {
		cp.Quantity = cp.Quantity.Add(s.Quantity)
		sellFees = sellFees.Add(s.Fee)
	}
	cp.Fees = sellFees.Add(open.Buy.Fee)

	cp.computePnl(sellFees)
	cp.computeRunUp()
	cp.computeDrawdown()
	return cp, nil
}

// computePnl nets exit proceeds against entry cost. The entry fee is already
// netted into the entry cost (the buy hold pre-paid it), so only the exit
// fees are subtracted here.
func (cp *ClosedPosition) computePnl(sellFees decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	entryValue := cp.OpenMarketPrice.Mul(cp.EntryTrade.Quantity)

	exitValue := decimal.Zero
	for _, s := range cp.SellTrades {
		exitValue = exitValue.Add(s.ExecutedMarketPrice.Mul(s.Quantity))
	}

	cp.ProfitAndLoss = exitValue.Sub(entryValue).Sub(sellFees)
	if !entryValue.IsZero() {
		cp.ProfitAndLossPercent = cp.ProfitAndLoss.Div(entryValue).Mul(hundred)
	}
}

// computeRunUp measures the best excursion. When the maximum was seen at the
// closing timestamp the close price is used instead, so the final tick does
// not overstate the excursion.
func (cp *ClosedPosition) computeRunUp() {
	maxPrice := cp.Open.MaxPriceSeen
	if cp.Open.MaxPriceSeenTimestamp == cp.CloseTimestamp {
		maxPrice = cp.CloseMarketPrice
	}
	diff := maxPrice.Sub(cp.OpenMarketPrice)
	cp.RunUp = diff.Mul(cp.EntryTrade.Quantity)
	if !cp.OpenMarketPrice.IsZero() {
		cp.RunUpPct = diff.Div(cp.OpenMarketPrice).Mul(decimal.NewFromInt(100))
	}
}

// computeDrawdown keeps the signed convention: negative when the minimum was
// below entry. Reporting layers flip the sign for display.
func (cp *ClosedPosition) computeDrawdown() {
	minPrice := cp.Open.MinPriceSeen
	if cp.Open.MinPriceSeenTimestamp == cp.CloseTimestamp {
		minPrice = cp.CloseMarketPrice
	}
	diff := minPrice.Sub(cp.OpenMarketPrice)
	cp.Drawdown = diff.Mul(cp.EntryTrade.Quantity)
	if !cp.OpenMarketPrice.IsZero() {
		cp.DrawdownPct = diff.Div(cp.OpenMarketPrice).Mul(decimal.NewFromInt(100))
	}
}

// DurationFormatted renders the holding time as HH:MM:SS.
func (cp *ClosedPosition) DurationFormatted() string {
	total := cp.DurationSeconds
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// Summary renders a closed-position report block.
func (cp *ClosedPosition) Summary() string {
	return fmt.Sprintf(
		"Closed Position\n"+
			"  Entry Time   : %d\n"+
			"  Exit Time    : %d\n"+
			"  Duration     : %s\n"+
			"  Entry Price  : $%s\n"+
			"  Exit Price   : $%s\n"+
			"  Quantity     : %s\n"+
			"  P&L          : $%s (%s%%)\n"+
			"  Fees         : $%s\n"+
			"  Run-up       : $%s (%s%%)\n"+
			"  Drawdown     : $%s (%s%%)\n"+
			"  Cumulative   : $%s",
		cp.OpenTimestamp, cp.CloseTimestamp, cp.DurationFormatted(),
		cp.OpenMarketPrice.StringFixed(2), cp.CloseMarketPrice.StringFixed(2),
		cp.Quantity.StringFixed(6),
		cp.ProfitAndLoss.StringFixed(2), cp.ProfitAndLossPercent.StringFixed(2),
		cp.Fees.StringFixed(2),
		cp.RunUp.StringFixed(2), cp.RunUpPct.StringFixed(2),
		cp.Drawdown.StringFixed(2), cp.DrawdownPct.StringFixed(2),
		cp.CumulativePnl.StringFixed(2))
}
