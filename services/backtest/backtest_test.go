package backtest

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spot-backtest/services/engine"
	"spot-backtest/services/position"
	"spot-backtest/services/series"
	"spot-backtest/services/trading"
	"spot-backtest/strategies"
)

// feedStart is aligned to a 5m bucket boundary.
const feedStart = int64(1_700_000_400)

func flatCandle(ts int64, price float64) series.Candle {
	p := decimal.NewFromFloat(price)
	return series.Candle{Timestamp: ts, Open: p, High: p, Low: p, Close: p,
		Volume: decimal.NewFromInt(1)}
}

// marketBuyFixed buys a fixed quantity at market.
type marketBuyFixed struct{ qty decimal.Decimal }

func (b *marketBuyFixed) CreateBuyOrder(_ *position.TradingState, exg *engine.ExchangeState) (*engine.Order, error) {
	return engine.NewOrder(exg.NextOrderNumber(), engine.OrderMarket, engine.SideBuy,
		b.qty, exg.TakerFee, exg.CurrentTimestamp, decimal.Zero)
}

// Full round trip: a limit buy one percent under the market fills on a dip,
// and a market sell on the rally closes it. Every balance movement must
// reconcile to the penny against the fee arithmetic.
func TestRoundTripScenario(t *testing.T) {
	logger := zap.NewNop()

	// 25 minutes of feed: 50000 flat, a dip to 49400, a rally to 50500.
	var feed []series.Candle
	for m := int64(0); m < 25; m++ {
		price := 50_000.0
		switch {
		case m >= 20:
			price = 50_500
		case m >= 15:
			price = 49_400
		}
		feed = append(feed, flatCandle(feedStart+m*60, price))
	}

	ts, err := series.NewTimeSeries("5m", logger)
	require.NoError(t, err)

	exg, err := engine.NewExchangeState(
		decimal.NewFromInt(10_000), decimal.Zero,
		decimal.NewFromFloat(0.001), decimal.NewFromFloat(0.002), logger)
	require.NoError(t, err)
	client := engine.NewBacktestClient(exg, logger)

	runner, err := NewRunner(RunnerConfig{
		Symbol:        "BTC-USD",
		Feed:          feed,
		TimeSeries:    []*series.TimeSeries{ts},
		WarmupCandles: 1,
	}, exg, client, nil, logger)
	require.NoError(t, err)
	runner.Prepare()
	require.Equal(t, 5, ts.Len())

	entry := strategies.NewTimeIntervalEntry(ts, 1)
	strategy := trading.NewStrategy([]*series.TimeSeries{ts},
		[]trading.EntrySignal{entry}, nil,
		[]trading.EntryCondition{strategies.OnlyOneOpenPositionCondition{}},
		[]trading.ExitCondition{&strategies.ExitOnPercentIncrease{Percent: decimal.NewFromInt(1)}},
		logger)

	state := position.NewTradingState()
	tr := trading.NewTrading(trading.Config{
		Mode:          trading.ModeBacktest,
		State:         state,
		Client:        client,
		Strategy:      strategy,
		BuyStrategy:   strategies.NewLimitBuyPercentEquity(decimal.NewFromInt(100), decimal.NewFromInt(1)),
		SellStrategy:  strategies.NewMarketSellRemaining(),
		CandleSizeMin: 5,
	}, logger)
	runner.SetTrading(tr)

	stats, err := runner.Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, stats.TotalTrades)
	require.Equal(t, 0, stats.TotalOpenTrades)
	require.Empty(t, exg.OrderBook)
	require.True(t, exg.Asset.IsZero(), "asset %s", exg.Asset)

	// Budget 10000 at limit 49500 with 0.1% maker fee:
	// qty = trunc6(10000 / (49500 * 1.001)) = 0.201818.
	// Buy fills on the 49400 dip, fee 0.201818*49400*0.001 = 9.969809, so it
	// settles 0.201818*49500 + 9.969809 = 9999.960809.
	// Sell settles 0.201818*50500 - 20.383618 = 10171.425382.
	require.True(t, exg.USD.Equal(decimal.RequireFromString("10171.464573")),
		"usd %s", exg.USD)
	require.True(t, state.CumulativePnl.Equal(decimal.RequireFromString("181.434382")),
		"pnl %s", state.CumulativePnl)

	cp := state.ClosedPositions[0]
	require.True(t, cp.OpenMarketPrice.Equal(decimal.NewFromInt(49_500)))
	require.True(t, cp.CloseMarketPrice.Equal(decimal.NewFromInt(50_500)))
	require.True(t, cp.Fees.Equal(decimal.RequireFromString("30.353427")), "fees %s", cp.Fees)
	require.Equal(t, 1, stats.WinningTrades)
	require.True(t, stats.TotalPnl.Equal(state.CumulativePnl))
}

// A StartUnix landing mid-candle must not trigger an immediate catch-up
// evaluation; cursors advance through the pre-start ticks and the first
// evaluation waits for a real candle boundary.
func TestStrategyWaitsForCandleBoundaryAfterStart(t *testing.T) {
	logger := zap.NewNop()

	var feed []series.Candle
	for m := int64(0); m < 20; m++ {
		feed = append(feed, flatCandle(feedStart+m*60, 50_000))
	}

	ts, err := series.NewTimeSeries("5m", logger)
	require.NoError(t, err)
	exg, err := engine.NewExchangeState(
		decimal.NewFromInt(10_000), decimal.Zero,
		decimal.NewFromFloat(0.001), decimal.NewFromFloat(0.002), logger)
	require.NoError(t, err)
	client := engine.NewBacktestClient(exg, logger)

	runner, err := NewRunner(RunnerConfig{
		Symbol:        "BTC-USD",
		Feed:          feed,
		TimeSeries:    []*series.TimeSeries{ts},
		StartUnix:     feedStart + 11*60, // one minute into the third 5m candle
		WarmupCandles: 1,
	}, exg, client, nil, logger)
	require.NoError(t, err)
	runner.Prepare()

	entry := strategies.NewTimeIntervalEntry(ts, 1)
	strategy := trading.NewStrategy([]*series.TimeSeries{ts},
		[]trading.EntrySignal{entry}, nil,
		[]trading.EntryCondition{strategies.OnlyOneOpenPositionCondition{}}, nil, logger)

	state := position.NewTradingState()
	runner.SetTrading(trading.NewTrading(trading.Config{
		Mode:          trading.ModeBacktest,
		State:         state,
		Client:        client,
		Strategy:      strategy,
		BuyStrategy:   &marketBuyFixed{qty: decimal.NewFromFloat(0.1)},
		SellStrategy:  strategies.NewMarketSellRemaining(),
		CandleSizeMin: 5,
	}, logger))

	_, err = runner.Execute(context.Background())
	require.NoError(t, err)

	// The buy lands on the minute-15 boundary tick, not the minute-11 start.
	require.Len(t, state.OpenPositions, 1)
	for _, pos := range state.OpenPositions {
		require.Equal(t, feedStart+15*60, pos.Buy.ExecutedTimestamp)
	}
}

// Without an explicit warm-up count the strategy stays silent until the
// default number of completed candles and fires on the first tick past it.
func TestDefaultWarmupGatesStrategy(t *testing.T) {
	logger := zap.NewNop()

	var feed []series.Candle
	for m := int64(0); m < 205; m++ {
		feed = append(feed, flatCandle(feedStart+m*60, 50_000))
	}

	ts, err := series.NewTimeSeries("1m", logger)
	require.NoError(t, err)
	exg, err := engine.NewExchangeState(
		decimal.NewFromInt(10_000), decimal.Zero,
		decimal.NewFromFloat(0.001), decimal.NewFromFloat(0.002), logger)
	require.NoError(t, err)
	client := engine.NewBacktestClient(exg, logger)

	runner, err := NewRunner(RunnerConfig{
		Symbol:     "BTC-USD",
		Feed:       feed,
		TimeSeries: []*series.TimeSeries{ts},
	}, exg, client, nil, logger)
	require.NoError(t, err)
	runner.Prepare()

	entry := strategies.NewTimeIntervalEntry(ts, 1)
	strategy := trading.NewStrategy([]*series.TimeSeries{ts},
		[]trading.EntrySignal{entry}, nil,
		[]trading.EntryCondition{strategies.OnlyOneOpenPositionCondition{}}, nil, logger)

	state := position.NewTradingState()
	runner.SetTrading(trading.NewTrading(trading.Config{
		Mode:          trading.ModeBacktest,
		State:         state,
		Client:        client,
		Strategy:      strategy,
		BuyStrategy:   &marketBuyFixed{qty: decimal.NewFromFloat(0.1)},
		SellStrategy:  strategies.NewMarketSellRemaining(),
		CandleSizeMin: 1,
	}, logger))

	_, err = runner.Execute(context.Background())
	require.NoError(t, err)

	// The cursor reaches DefaultWarmupCandles on the minute-200 tick; the
	// entry signal fires every candle, so an earlier gate would buy sooner.
	require.Len(t, state.OpenPositions, 1)
	for _, pos := range state.OpenPositions {
		require.Equal(t, feedStart+200*60, pos.Buy.ExecutedTimestamp)
	}
}

func TestExecuteBeforePrepareFails(t *testing.T) {
	logger := zap.NewNop()
	ts, err := series.NewTimeSeries("5m", logger)
	require.NoError(t, err)
	exg, err := engine.NewExchangeState(
		decimal.NewFromInt(1_000), decimal.Zero,
		decimal.Zero, decimal.Zero, logger)
	require.NoError(t, err)
	client := engine.NewBacktestClient(exg, logger)

	runner, err := NewRunner(RunnerConfig{
		Symbol:     "BTC-USD",
		Feed:       []series.Candle{flatCandle(feedStart, 100)},
		TimeSeries: []*series.TimeSeries{ts},
	}, exg, client, nil, logger)
	require.NoError(t, err)

	_, err = runner.Execute(context.Background())
	require.Error(t, err)
}

func TestRunnerRequiresFeedAndTimeframes(t *testing.T) {
	logger := zap.NewNop()
	ts, _ := series.NewTimeSeries("5m", logger)
	exg, err := engine.NewExchangeState(
		decimal.NewFromInt(1_000), decimal.Zero, decimal.Zero, decimal.Zero, logger)
	require.NoError(t, err)
	client := engine.NewBacktestClient(exg, logger)

	_, err = NewRunner(RunnerConfig{TimeSeries: []*series.TimeSeries{ts}}, exg, client, nil, logger)
	require.Error(t, err)

	_, err = NewRunner(RunnerConfig{Feed: []series.Candle{flatCandle(feedStart, 100)}}, exg, client, nil, logger)
	require.Error(t, err)
}
