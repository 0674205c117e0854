package engine

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spot-backtest/services/calc"
)

func TestMarketBuyFillsInline(t *testing.T) {
	s := newTestState(t, 10_000, 0)
	c := NewBacktestClient(s, zap.NewNop())
	require.NoError(t, s.UpdatePriceTime(decimal.NewFromInt(50_000), 1000))

	o, err := NewOrder(s.NextOrderNumber(), OrderMarket, SideBuy,
		decimal.NewFromFloat(0.1), s.TakerFee, 1000, decimal.Zero)
	require.NoError(t, err)
	o.SetPlaced(1000, s.CurrentPrice)

	require.NoError(t, c.PlaceOrder(o))
	require.NotNil(t, o.Execution)
	require.Empty(t, s.OrderBook)
	require.Contains(t, s.FulfilledOrders, o.Number)

	// 0.1 * 50000 = 5000 notional, 0.2% taker fee = 10.
	require.True(t, s.USD.Equal(decimal.NewFromInt(4_990)), "usd %s", s.USD)
	require.True(t, s.Asset.Equal(decimal.NewFromFloat(0.1)), "asset %s", s.Asset)
	require.True(t, o.Execution.Fee.Equal(decimal.NewFromInt(10)))
	require.True(t, o.USDHold.IsZero())
}

func TestLimitBuyRestsThenFills(t *testing.T) {
	s := newTestState(t, 10_000, 0)
	c := NewBacktestClient(s, zap.NewNop())
	require.NoError(t, s.UpdatePriceTime(decimal.NewFromInt(50_000), 1000))

	o, err := NewOrder(s.NextOrderNumber(), OrderLimit, SideBuy,
		decimal.NewFromFloat(0.1), s.MakerFee, 1000, decimal.NewFromInt(49_500))
	require.NoError(t, err)
	o.SetPlaced(1000, s.CurrentPrice)

	require.NoError(t, c.PlaceOrder(o))
	require.Nil(t, o.Execution)
	require.Contains(t, s.OrderBook, o.Number)
	// Hold = 0.1*49500 * 1.001 = 4954.95.
	require.True(t, o.USDHold.Equal(decimal.NewFromFloat(4_954.95)), "hold %s", o.USDHold)
	require.True(t, s.USD.Equal(decimal.NewFromFloat(5_045.05)), "usd %s", s.USD)

	require.Empty(t, c.CheckOrdersForExecution())

	require.NoError(t, s.UpdatePriceTime(decimal.NewFromInt(49_400), 1060))
	executed := c.CheckOrdersForExecution()
	require.Len(t, executed, 1)
	require.NotNil(t, o.Execution)
	// The notional settles at the limit price, but the fee accrues on the
	// market price at fill time: 0.1 * 49400 * 0.001 = 4.94.
	require.True(t, o.Execution.MarketPrice.Equal(decimal.NewFromInt(49_500)))
	require.True(t, o.Execution.Fee.Equal(decimal.NewFromFloat(4.94)), "fee %s", o.Execution.Fee)
	require.True(t, s.Asset.Equal(decimal.NewFromFloat(0.1)))
	// Settlement = 4950 notional + 4.94 fee = 4954.94, a cent under the hold.
	require.True(t, s.USD.Equal(decimal.NewFromFloat(5_045.06)), "usd %s", s.USD)
	require.Equal(t, int64(60), o.Execution.TimeToExecute)
	// Negative slippage: filled below the market price at placement.
	require.True(t, o.Execution.Slippage.Equal(decimal.NewFromInt(-500)), "slippage %s", o.Execution.Slippage)
}

func TestCancelRestoresExactly(t *testing.T) {
	s := newTestState(t, 10_000, 1)
	c := NewBacktestClient(s, zap.NewNop())
	require.NoError(t, s.UpdatePriceTime(decimal.NewFromFloat(50_123.456789), 1000))

	startUSD, startAsset := s.USD, s.Asset

	buy, err := NewOrder(s.NextOrderNumber(), OrderLimit, SideBuy,
		decimal.NewFromFloat(0.033333), s.MakerFee, 1000, decimal.NewFromFloat(49_999.99))
	require.NoError(t, err)
	buy.SetPlaced(1000, s.CurrentPrice)
	require.NoError(t, c.PlaceOrder(buy))

	sell, err := NewOrder(s.NextOrderNumber(), OrderLimit, SideSell,
		decimal.NewFromFloat(0.777777), s.MakerFee, 1000, decimal.NewFromFloat(51_000.01))
	require.NoError(t, err)
	sell.SetPlaced(1000, s.CurrentPrice)
	require.NoError(t, c.PlaceOrder(sell))

	require.NoError(t, c.CancelOrder(buy))
	require.NoError(t, c.CancelOrder(sell))

	require.True(t, s.USD.Equal(startUSD), "usd %s != %s", s.USD, startUSD)
	require.True(t, s.Asset.Equal(startAsset), "asset %s != %s", s.Asset, startAsset)
	require.ErrorIs(t, c.CancelOrder(buy), ErrOrderNotOpen)
}

// Balances plus holds must reconcile exactly against the fulfilled ledger
// after any interleaving of places, cancels and fills.
func TestBalanceConservationRandomized(t *testing.T) {
	s := newTestState(t, 1_000_000, 10)
	c := NewBacktestClient(s, zap.NewNop())

	initialUSD, initialAsset := s.USD, s.Asset
	rng := rand.New(rand.NewSource(7))

	price := decimal.NewFromInt(50_000)
	ts := int64(1_700_000_000)
	require.NoError(t, s.UpdatePriceTime(price, ts))

	for i := 0; i < 1500; i++ {
		ts += 60
		drift := decimal.NewFromFloat((rng.Float64() - 0.5) * 200)
		price = price.Add(drift)
		if price.LessThan(decimal.NewFromInt(1_000)) {
			price = decimal.NewFromInt(1_000)
		}
		require.NoError(t, s.UpdatePriceTime(price, ts))

		switch rng.Intn(4) {
		case 0: // limit buy below market
			limit := calc.Quantize(s.CurrentPrice.Mul(decimal.NewFromFloat(0.99)))
			o, err := NewOrder(s.NextOrderNumber(), OrderLimit, SideBuy,
				decimal.NewFromFloat(0.01), s.MakerFee, ts, limit)
			require.NoError(t, err)
			o.SetPlaced(ts, s.CurrentPrice)
			_ = c.PlaceOrder(o)
		case 1: // limit sell above market
			limit := calc.Quantize(s.CurrentPrice.Mul(decimal.NewFromFloat(1.01)))
			o, err := NewOrder(s.NextOrderNumber(), OrderLimit, SideSell,
				decimal.NewFromFloat(0.01), s.MakerFee, ts, limit)
			require.NoError(t, err)
			o.SetPlaced(ts, s.CurrentPrice)
			_ = c.PlaceOrder(o)
		case 2: // market order either side
			side := SideBuy
			fee := s.TakerFee
			if rng.Intn(2) == 0 {
				side = SideSell
			}
			o, err := NewOrder(s.NextOrderNumber(), OrderMarket, side,
				decimal.NewFromFloat(0.005), fee, ts, decimal.Zero)
			require.NoError(t, err)
			o.SetPlaced(ts, s.CurrentPrice)
			_ = c.PlaceOrder(o)
		case 3: // cancel one open order
			nums := s.OpenOrderNumbers()
			if len(nums) > 0 {
				require.NoError(t, c.CancelOrder(s.OrderBook[nums[rng.Intn(len(nums))]]))
			}
		}

		c.CheckOrdersForExecution()
		require.NoError(t, s.Validate())

		expectedUSD, expectedAsset := initialUSD, initialAsset
		for _, o := range s.FulfilledOrders {
			e := o.Execution
			if o.Side == SideBuy {
				expectedUSD = expectedUSD.Sub(e.DollarAmount)
				expectedAsset = expectedAsset.Add(e.Quantity)
			} else {
				expectedUSD = expectedUSD.Add(e.DollarAmount)
				expectedAsset = expectedAsset.Sub(e.Quantity)
			}
		}
		require.True(t, s.USD.Add(s.USDHolds()).Equal(expectedUSD),
			"tick %d: usd %s + holds %s != %s", i, s.USD, s.USDHolds(), expectedUSD)
		require.True(t, s.Asset.Add(s.AssetHolds()).Equal(expectedAsset),
			"tick %d: asset %s + holds %s != %s", i, s.Asset, s.AssetHolds(), expectedAsset)
	}
}
