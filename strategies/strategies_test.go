package strategies

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spot-backtest/services/engine"
	"spot-backtest/services/position"
	"spot-backtest/services/series"
)

func testExchange(t *testing.T, usd float64, price float64) *engine.ExchangeState {
	t.Helper()
	exg, err := engine.NewExchangeState(
		decimal.NewFromFloat(usd), decimal.Zero,
		decimal.NewFromFloat(0.001), decimal.NewFromFloat(0.002), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, exg.UpdatePriceTime(decimal.NewFromFloat(price), 1000))
	return exg
}

func testPosition(entry float64, ts int64) *position.OpenPosition {
	buy := &position.TradeOverview{
		OrderNumber:         1,
		ExecutedTimestamp:   ts,
		ExecutedMarketPrice: decimal.NewFromFloat(entry),
		Quantity:            decimal.NewFromInt(1),
	}
	return position.NewOpenPosition(buy, 1)
}

func TestLimitBuyPercentEquity(t *testing.T) {
	exg := testExchange(t, 10_000, 50_000)
	buy := NewLimitBuyPercentEquity(decimal.NewFromInt(100), decimal.NewFromInt(1))

	o, err := buy.CreateBuyOrder(nil, exg)
	require.NoError(t, err)
	require.NotNil(t, o)

	require.Equal(t, engine.OrderLimit, o.Type)
	require.Equal(t, engine.SideBuy, o.Side)
	require.True(t, o.LimitPrice.Equal(decimal.NewFromInt(49_500)), "limit %s", o.LimitPrice)
	// Quantity fits hold = qty * limit * (1 + maker fee) inside the budget.
	hold := o.Quantity.Mul(o.LimitPrice).Mul(decimal.NewFromFloat(1.001))
	require.True(t, hold.LessThanOrEqual(decimal.NewFromInt(10_000)), "hold %s", hold)
	// And leaves less than one quantize step of budget unused.
	leftover := decimal.NewFromInt(10_000).Sub(hold)
	require.True(t, leftover.LessThan(decimal.NewFromFloat(0.06)), "leftover %s", leftover)
}

func TestLimitBuyPercentEquityNoFunds(t *testing.T) {
	exg := testExchange(t, 0, 50_000)
	buy := NewLimitBuyPercentEquity(decimal.NewFromInt(100), decimal.NewFromInt(1))
	o, err := buy.CreateBuyOrder(nil, exg)
	require.NoError(t, err)
	require.Nil(t, o)
}

func TestMarketSellRemaining(t *testing.T) {
	exg := testExchange(t, 0, 50_000)
	pos := testPosition(50_000, 940)

	o, err := NewMarketSellRemaining().CreateSellOrder(pos, nil, exg)
	require.NoError(t, err)
	require.Equal(t, engine.OrderMarket, o.Type)
	require.Equal(t, engine.SideSell, o.Side)
	require.True(t, o.Quantity.Equal(decimal.NewFromInt(1)))
	require.True(t, o.FeeRate.Equal(exg.TakerFee))
}

func TestLimitExitPercentAbove(t *testing.T) {
	exg := testExchange(t, 0, 50_000)
	pos := testPosition(50_000, 940)

	exit := NewLimitExitPercentAbove(decimal.NewFromInt(2), decimal.NewFromInt(50))
	o, err := exit.CreateExitOrder(pos, exg)
	require.NoError(t, err)
	require.True(t, o.LimitPrice.Equal(decimal.NewFromInt(51_000)), "limit %s", o.LimitPrice)
	require.True(t, o.Quantity.Equal(decimal.NewFromFloat(0.5)), "qty %s", o.Quantity)
	require.False(t, o.AllowLimitAdjust)
}

func TestEntryConditions(t *testing.T) {
	exg := testExchange(t, 10_000, 50_000)
	state := position.NewTradingState()

	require.True(t, NoEntryCondition{}.EntryAllowed(state, exg))
	require.True(t, OnlyOneOpenBuyCondition{}.EntryAllowed(state, exg))
	require.True(t, OnlyOneOpenPositionCondition{}.EntryAllowed(state, exg))

	o, err := engine.NewOrder(1, engine.OrderLimit, engine.SideBuy,
		decimal.NewFromInt(1), exg.MakerFee, 1000, decimal.NewFromInt(49_000))
	require.NoError(t, err)
	state.OpenBuyOrders[o.Number] = o
	require.False(t, OnlyOneOpenBuyCondition{}.EntryAllowed(state, exg))
	require.False(t, OnlyOneOpenPositionCondition{}.EntryAllowed(state, exg))
	delete(state.OpenBuyOrders, o.Number)

	state.AddOpenPosition(testPosition(51_000, 900))
	require.True(t, OnlyOneOpenBuyCondition{}.EntryAllowed(state, exg))
	require.False(t, OnlyOneOpenPositionCondition{}.EntryAllowed(state, exg))

	// 50000 is ~1.96% below the 51000 entry.
	cond := NewMinPercentFromOpenPositionsCondition(decimal.NewFromInt(1))
	require.True(t, cond.EntryAllowed(state, exg))
	cond = NewMinPercentFromOpenPositionsCondition(decimal.NewFromInt(3))
	require.False(t, cond.EntryAllowed(state, exg))
}

func TestExitConditions(t *testing.T) {
	exg := testExchange(t, 0, 51_000)
	state := position.NewTradingState()
	pos := testPosition(50_000, 940) // market is +2% from entry

	require.False(t, NoExitCondition{}.ExitMet(state, exg, pos))

	require.True(t, (&ExitOnPercentIncrease{Percent: decimal.NewFromInt(2)}).ExitMet(state, exg, pos))
	require.False(t, (&ExitOnPercentIncrease{Percent: decimal.NewFromInt(3)}).ExitMet(state, exg, pos))

	require.True(t, (&ExitOnPercentIncreaseUnsold{Percent: decimal.NewFromInt(2)}).ExitMet(state, exg, pos))
	pos.TimesSold = 1
	require.False(t, (&ExitOnPercentIncreaseUnsold{Percent: decimal.NewFromInt(2)}).ExitMet(state, exg, pos))
	pos.TimesSold = 0

	require.False(t, (&ExitOnPercentDecrease{Percent: decimal.NewFromInt(1)}).ExitMet(state, exg, pos))
	down := testPosition(53_000, 940) // market is ~-3.8% from entry
	require.True(t, (&ExitOnPercentDecrease{Percent: decimal.NewFromInt(3)}).ExitMet(state, exg, down))

	either := &ExitOnIncreaseOrDecrease{UpPercent: decimal.NewFromInt(2), DownPercent: decimal.NewFromInt(2)}
	require.True(t, either.ExitMet(state, exg, pos))
	require.True(t, either.ExitMet(state, exg, down))
	flat := testPosition(51_000, 940)
	require.False(t, either.ExitMet(state, exg, flat))

	require.True(t, (&ExitIfBelowPrice{Price: decimal.NewFromInt(52_000)}).ExitMet(state, exg, pos))
	require.False(t, (&ExitIfBelowPrice{Price: decimal.NewFromInt(51_000)}).ExitMet(state, exg, pos))

	require.True(t, (&ExitAfterDuration{MaxHoldSecs: 60}).ExitMet(state, exg, pos))
	require.False(t, (&ExitAfterDuration{MaxHoldSecs: 61}).ExitMet(state, exg, pos))
}

func TestDirectionFlipSignals(t *testing.T) {
	ts, err := series.NewTimeSeries("5m", zap.NewNop())
	require.NoError(t, err)

	// Closes 105, 103, 104, 102: a down-up flip then an up-down flip.
	base := int64(1_700_000_400)
	closes := []float64{105, 103, 104, 102}
	minute := int64(0)
	for _, cl := range closes {
		for i := 0; i < 5; i++ {
			p := decimal.NewFromFloat(cl)
			ts.Update(series.Candle{
				Timestamp: base + minute*60,
				Open:      p, High: p, Low: p, Close: p,
				Volume: decimal.NewFromInt(1),
			})
			minute++
		}
	}
	require.Equal(t, 4, ts.Len())

	entry := NewDirectionFlipEntry(ts)
	exit := NewDirectionFlipExit(ts)

	require.False(t, entry.IdentifyEntry()) // cursor 0: not enough history
	ts.Advance()
	require.False(t, entry.IdentifyEntry()) // 105 -> 103: still falling
	ts.Advance()
	require.True(t, entry.IdentifyEntry()) // 103 -> 104: turned up
	require.False(t, exit.IdentifyExit())
	ts.Advance()
	require.False(t, entry.IdentifyEntry())
	require.True(t, exit.IdentifyExit()) // 104 -> 102: turned down
}

func TestTimeIntervalEntry(t *testing.T) {
	ts, err := series.NewTimeSeries("5m", zap.NewNop())
	require.NoError(t, err)
	sig := NewTimeIntervalEntry(ts, 3)

	require.True(t, sig.IdentifyEntry()) // cursor 0
	ts.Advance()
	require.False(t, sig.IdentifyEntry())
	ts.Advance()
	require.False(t, sig.IdentifyEntry())
	ts.Advance()
	require.True(t, sig.IdentifyEntry()) // cursor 3
}

func TestRegistryLookups(t *testing.T) {
	ts, err := series.NewTimeSeries("5m", zap.NewNop())
	require.NoError(t, err)

	sig, err := NewEntrySignal("time_interval_entry", ts, Params{"every": 5.0})
	require.NoError(t, err)
	require.NotNil(t, sig)

	_, err = NewEntrySignal("time_interval_entry", ts, Params{})
	require.Error(t, err)

	_, err = NewEntrySignal("bogus", ts, nil)
	require.Error(t, err)

	cond, err := NewExitCondition("exit_on_increase_or_decrease",
		Params{"up_percent": 2.0, "down_percent": 1.0})
	require.NoError(t, err)
	require.NotNil(t, cond)

	buy, err := NewBuyStrategy("limit_buy_percent_equity",
		Params{"percent_equity": 100.0, "percent_below": 1.0})
	require.NoError(t, err)
	require.NotNil(t, buy)

	sell, err := NewSellStrategy("market_sell_remaining", nil)
	require.NoError(t, err)
	require.NotNil(t, sell)

	exit, err := NewExitStrategy("", nil)
	require.NoError(t, err)
	require.Nil(t, exit)

	_, err = NewExitStrategy("bogus", nil)
	require.Error(t, err)
}
