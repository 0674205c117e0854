package position

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Statistics derives aggregate performance metrics from the closed positions
// and the equity ledger. Monetary aggregates stay decimal; the risk ratios
// are computed in float64 since they feed reporting, not bookkeeping.
type Statistics struct {
	TotalTrades     int
	TotalOpenTrades int
	TotalFees       decimal.Decimal

	TotalPnl        decimal.Decimal
	TotalPnlPercent decimal.Decimal

	MaxEquityDrawdown        decimal.Decimal
	MaxEquityDrawdownPercent decimal.Decimal

	WinningTrades     int
	LosingTrades      int
	PercentProfitable decimal.Decimal

	AvgPnl               decimal.Decimal
	AvgPnlPercent        decimal.Decimal
	AvgWinningTrade      decimal.Decimal
	AvgWinningTradePct   decimal.Decimal
	AvgLosingTrade       decimal.Decimal
	AvgLosingTradePct    decimal.Decimal
	RatioAvgWinToLoss    decimal.Decimal
	RatioAvgWinToLossSet bool

	LargestWinningTrade    decimal.Decimal
	LargestWinningTradePct decimal.Decimal
	LargestLosingTrade     decimal.Decimal
	LargestLosingTradePct  decimal.Decimal

	AvgBarsInTrades        float64
	AvgBarsInWinningTrades float64
	AvgBarsInLosingTrades  float64

	SharpeRatio  float64
	SharpeValid  bool
	SortinoRatio float64
	SortinoValid bool
}

// NewStatistics computes the metrics. candleSizeMin is the reporting
// timeframe used to express holding time in bars.
func NewStatistics(state *TradingState, candleSizeMin int64, riskFreeRate float64) *Statistics {
	s := &Statistics{TotalOpenTrades: len(state.OpenPositions)}
	closed := state.ClosedPositions
	s.TotalTrades = len(closed)
	for _, cp := range closed {
		s.TotalFees = s.TotalFees.Add(cp.Fees)
	}
	if s.TotalTrades == 0 {
		return s
	}

	hundred := decimal.NewFromInt(100)
	s.TotalPnl = state.CumulativePnl
	s.MaxEquityDrawdown = state.MaxDrawdown
	s.MaxEquityDrawdownPercent = state.MaxDrawdownPercent

	var winning, losing []*ClosedPosition
	for _, cp := range closed {
		s.TotalPnlPercent = s.TotalPnlPercent.Add(cp.ProfitAndLossPercent)
		switch {
		case cp.ProfitAndLoss.IsPositive():
			winning = append(winning, cp)
		case cp.ProfitAndLoss.IsNegative():
			losing = append(losing, cp)
		}
	}
	s.WinningTrades = len(winning)
	s.LosingTrades = len(losing)
	s.PercentProfitable = decimal.NewFromInt(int64(s.WinningTrades)).
		Div(decimal.NewFromInt(int64(s.TotalTrades))).Mul(hundred)

	trades := decimal.NewFromInt(int64(s.TotalTrades))
	s.AvgPnl = s.TotalPnl.Div(trades)
	s.AvgPnlPercent = s.TotalPnlPercent.Div(trades)

	s.AvgWinningTrade, s.AvgWinningTradePct = avgPnl(winning)
	s.AvgLosingTrade, s.AvgLosingTradePct = avgPnl(losing)
	if !s.AvgLosingTrade.IsZero() {
		s.RatioAvgWinToLoss = s.AvgWinningTrade.Div(s.AvgLosingTrade).Abs()
		s.RatioAvgWinToLossSet = true
	}

	s.LargestWinningTrade, s.LargestWinningTradePct = extremePnl(winning, true)
	s.LargestLosingTrade, s.LargestLosingTradePct = extremePnl(losing, false)

	s.AvgBarsInTrades = avgBars(closed, candleSizeMin)
	s.AvgBarsInWinningTrades = avgBars(winning, candleSizeMin)
	s.AvgBarsInLosingTrades = avgBars(losing, candleSizeMin)

	returns := equityReturns(state.EquityLog)
	s.SharpeRatio, s.SharpeValid = sharpe(returns, riskFreeRate)
	s.SortinoRatio, s.SortinoValid = sortino(returns, riskFreeRate)
	return s
}

func avgPnl(trades []*ClosedPosition) (decimal.Decimal, decimal.Decimal) {
	if len(trades) == 0 {
		return decimal.Zero, decimal.Zero
	}
	sum, sumPct := decimal.Zero, decimal.Zero
	for _, cp := range trades {
		sum = sum.Add(cp.ProfitAndLoss)
		sumPct = sumPct.Add(cp.ProfitAndLossPercent)
	}
	n := decimal.NewFromInt(int64(len(trades)))
	return sum.Div(n), sumPct.Div(n)
}

func extremePnl(trades []*ClosedPosition, largest bool) (decimal.Decimal, decimal.Decimal) {
	best, bestPct := decimal.Zero, decimal.Zero
	for _, cp := range trades {
		if largest && cp.ProfitAndLoss.GreaterThan(best) {
			best, bestPct = cp.ProfitAndLoss, cp.ProfitAndLossPercent
		}
		if !largest && cp.ProfitAndLoss.LessThan(best) {
			best, bestPct = cp.ProfitAndLoss, cp.ProfitAndLossPercent
		}
	}
	return best, bestPct
}

func avgBars(trades []*ClosedPosition, candleSizeMin int64) float64 {
	if len(trades) == 0 || candleSizeMin == 0 {
		return 0
	}
	var total int64
	for _, cp := range trades {
		total += cp.DurationSeconds
	}
	avgSeconds := float64(total) / float64(len(trades))
	bars := avgSeconds / float64(candleSizeMin*60)
	return math.Round(bars*100) / 100
}

// equityReturns converts the equity ledger into per-close percent changes of
// cumulative P&L, skipping zero baselines.
func equityReturns(log []EquityEntry) []float64 {
	var returns []float64
	for i := 1; i < len(log); i++ {
		prev, _ := log[i-1].CumulativePnl.Float64()
		cur, _ := log[i].CumulativePnl.Float64()
		if prev == 0 {
			continue
		}
		returns = append(returns, (cur-prev)/prev)
	}
	return returns
}

func sharpe(returns []float64, riskFreeRate float64) (float64, bool) {
	if len(returns) < 2 {
		return 0, false
	}
	avg := mean(returns)
	sd := stddev(returns, avg)
	if sd == 0 {
		if avg > riskFreeRate {
			return math.Inf(1), true
		}
		return 0, true
	}
	return (avg - riskFreeRate) / sd, true
}

func sortino(returns []float64, riskFreeRate float64) (float64, bool) {
	if len(returns) < 2 {
		return 0, false
	}
	avg := mean(returns)
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		if avg > riskFreeRate {
			return math.Inf(1), true
		}
		return 0, true
	}
	sd := stddev(downside, mean(downside))
	if sd == 0 {
		if avg > riskFreeRate {
			return math.Inf(1), true
		}
		return 0, true
	}
	return (avg - riskFreeRate) / sd, true
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation.
func stddev(xs []float64, mean float64) float64 {
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// Summary renders the performance report block.
func (s *Statistics) Summary() string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}
	ratio := "N/A"
	if s.RatioAvgWinToLossSet {
		ratio = s.RatioAvgWinToLoss.StringFixed(2)
	}
	sharpeStr, sortinoStr := "N/A", "N/A"
	if s.SharpeValid {
		sharpeStr = fmt.Sprintf("%.4f", s.SharpeRatio)
	}
	if s.SortinoValid {
		sortinoStr = fmt.Sprintf("%.4f", s.SortinoRatio)
	}

	line("Strategy Performance Summary")
	line("----------------------------------------")
	line("Total Trades Closed     : %d", s.TotalTrades)
	line("Open Positions          : %d", s.TotalOpenTrades)
	line("Profitable Trades       : %d (%s%%)", s.WinningTrades, s.PercentProfitable.StringFixed(2))
	line("Losing Trades           : %d", s.LosingTrades)
	line("Total P&L               : $%s (%s%%)", s.TotalPnl.StringFixed(2), s.TotalPnlPercent.StringFixed(2))
	line("Total Fees Paid         : $%s", s.TotalFees.StringFixed(2))
	line("Avg Trade P&L           : $%s (%s%%)", s.AvgPnl.StringFixed(2), s.AvgPnlPercent.StringFixed(2))
	line("Avg Winning Trade       : $%s (%s%%)", s.AvgWinningTrade.StringFixed(2), s.AvgWinningTradePct.StringFixed(2))
	line("Avg Losing Trade        : $%s (%s%%)", s.AvgLosingTrade.StringFixed(2), s.AvgLosingTradePct.StringFixed(2))
	line("Win/Loss Ratio          : %s", ratio)
	line("Largest Win             : $%s (%s%%)", s.LargestWinningTrade.StringFixed(2), s.LargestWinningTradePct.StringFixed(2))
	line("Largest Loss            : $%s (%s%%)", s.LargestLosingTrade.StringFixed(2), s.LargestLosingTradePct.StringFixed(2))
	line("Max Drawdown            : $%s (%s%%)", s.MaxEquityDrawdown.StringFixed(2), s.MaxEquityDrawdownPercent.StringFixed(2))
	line("Sharpe Ratio            : %s", sharpeStr)
	line("Sortino Ratio           : %s", sortinoStr)
	line("Avg Bars in Trades      : %.1f", s.AvgBarsInTrades)
	line("Avg Bars (Winners)      : %.1f", s.AvgBarsInWinningTrades)
	line("Avg Bars (Losers)       : %.1f", s.AvgBarsInLosingTrades)
	line("----------------------------------------")
	return b.String()
}
