package position

import (
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"spot-backtest/services/engine"
)

func closedTrade(t *testing.T, buyNum int64, entry, exit, fee float64, openTs, closeTs int64) *ClosedPosition {
	t.Helper()
	buy := overview(buyNum, engine.SideBuy, 1.0, entry, 0, openTs)
	pos := NewOpenPosition(buy, int(buyNum))
	pos.RecordSell(overview(buyNum+100, engine.SideSell, 1.0, exit, fee, closeTs))
	cp, err := NewClosedPosition(pos)
	require.NoError(t, err)
	return cp
}

func TestStatisticsEmpty(t *testing.T) {
	stats := NewStatistics(NewTradingState(), 5, 0)
	require.Equal(t, 0, stats.TotalTrades)
	require.False(t, stats.SharpeValid)
	require.False(t, stats.SortinoValid)
	require.False(t, stats.RatioAvgWinToLossSet)
	require.Contains(t, stats.Summary(), "Total Trades Closed     : 0")
}

func TestStatisticsAggregates(t *testing.T) {
	state := NewTradingState()
	// Two winners, one loser; each held 600 seconds on a 5m timeframe.
	state.AddClosedPosition(closedTrade(t, 1, 50_000, 51_000, 0, 1000, 1600))
	state.AddClosedPosition(closedTrade(t, 2, 50_000, 49_500, 0, 2000, 2600))
	state.AddClosedPosition(closedTrade(t, 3, 50_000, 50_200, 0, 3000, 3600))

	stats := NewStatistics(state, 5, 0)

	require.Equal(t, 3, stats.TotalTrades)
	require.Equal(t, 2, stats.WinningTrades)
	require.Equal(t, 1, stats.LosingTrades)
	require.True(t, stats.TotalPnl.Equal(decimal.NewFromInt(700)), "total %s", stats.TotalPnl)

	// Avg win 600, avg loss -500, ratio 1.2.
	require.True(t, stats.AvgWinningTrade.Equal(decimal.NewFromInt(600)))
	require.True(t, stats.AvgLosingTrade.Equal(decimal.NewFromInt(-500)))
	require.True(t, stats.RatioAvgWinToLossSet)
	require.True(t, stats.RatioAvgWinToLoss.Equal(decimal.NewFromFloat(1.2)), "ratio %s", stats.RatioAvgWinToLoss)

	require.True(t, stats.LargestWinningTrade.Equal(decimal.NewFromInt(1_000)))
	require.True(t, stats.LargestLosingTrade.Equal(decimal.NewFromInt(-500)))

	// 600s held on 5m candles = 2 bars.
	require.Equal(t, 2.0, stats.AvgBarsInTrades)

	summary := stats.Summary()
	require.True(t, strings.Contains(summary, "Profitable Trades       : 2"))
	require.True(t, strings.Contains(summary, "Total P&L               : $700.00"))
}

func TestEquityReturnsSkipsZeroBaselines(t *testing.T) {
	log := []EquityEntry{
		{CumulativePnl: decimal.Zero},
		{CumulativePnl: decimal.NewFromInt(100)},
		{CumulativePnl: decimal.NewFromInt(150)},
		{CumulativePnl: decimal.NewFromInt(120)},
	}
	returns := equityReturns(log)
	require.Len(t, returns, 2)
	require.InDelta(t, 0.5, returns[0], 1e-12)
	require.InDelta(t, -0.2, returns[1], 1e-12)
}

func TestSharpeAndSortino(t *testing.T) {
	_, valid := sharpe([]float64{0.1}, 0)
	require.False(t, valid)

	// Constant positive returns: zero deviation, infinite ratio.
	r, valid := sharpe([]float64{0.1, 0.1, 0.1}, 0)
	require.True(t, valid)
	require.True(t, math.IsInf(r, 1))

	r, valid = sharpe([]float64{0.1, -0.1, 0.2, -0.05}, 0)
	require.True(t, valid)
	require.False(t, math.IsInf(r, 0))

	// Fewer than two downside samples cannot estimate downside deviation.
	r, valid = sortino([]float64{0.1, 0.2, -0.05}, 0)
	require.True(t, valid)
	require.True(t, math.IsInf(r, 1))

	r, valid = sortino([]float64{0.1, -0.1, 0.2, -0.05}, 0)
	require.True(t, valid)
	require.False(t, math.IsInf(r, 0))
}
