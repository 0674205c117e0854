package trading

import (
	"sort"

	"go.uber.org/zap"

	"spot-backtest/services/engine"
	"spot-backtest/services/position"
	"spot-backtest/services/series"
)

// Trading runs one strategy against one exchange client: it turns completed
// buys into open positions, records completed sells, closes fully-sold
// positions and drives the per-tick entry/exit cycle.
type Trading struct {
	mode     Mode
	state    *position.TradingState
	strategy *Strategy

	buyStrategy  BuyStrategy
	sellStrategy SellStrategy
	// Optional resting exit placed immediately after a buy completes.
	exitStrategy ExitStrategy

	PlaceBuy    *PlaceBuy
	PlaceSell   *PlaceSell
	LimitAdjust *LimitAdjust

	candleSizeMin int64
	riskFreeRate  float64

	tradeNum int
	logger   *zap.Logger
}

// Config carries the collaborators NewTrading wires together.
type Config struct {
	Mode         Mode
	State        *position.TradingState
	Client       engine.Client
	Strategy     *Strategy
	BuyStrategy  BuyStrategy
	SellStrategy SellStrategy
	ExitStrategy ExitStrategy

	LimitOrderStaleSecs int64
	CandleSizeMin       int64
	RiskFreeRate        float64
}

func NewTrading(cfg Config, logger *zap.Logger) *Trading {
	t := &Trading{
		mode:          cfg.Mode,
		state:         cfg.State,
		strategy:      cfg.Strategy,
		buyStrategy:   cfg.BuyStrategy,
		sellStrategy:  cfg.SellStrategy,
		exitStrategy:  cfg.ExitStrategy,
		candleSizeMin: cfg.CandleSizeMin,
		riskFreeRate:  cfg.RiskFreeRate,
		logger:        logger.Named("trading"),
	}
	t.PlaceBuy = NewPlaceBuy(cfg.Mode, cfg.State, cfg.Client, logger)
	t.PlaceSell = NewPlaceSell(cfg.Mode, cfg.State, cfg.Client, logger)
	t.LimitAdjust = NewLimitAdjust(cfg.State, t.PlaceBuy, t.PlaceSell,
		cfg.BuyStrategy, cfg.SellStrategy, cfg.LimitOrderStaleSecs, logger)
	return t
}

// State exposes the trading state for reporting.
func (t *Trading) State() *position.TradingState { return t.state }

// UpdateOpenPositions extends every open position's price extremes with the
// current tick.
func (t *Trading) UpdateOpenPositions(exg *engine.ExchangeState) {
	for _, num := range t.state.OpenPositionNumbers() {
		t.state.OpenPositions[num].Update(exg.CurrentPrice, exg.CurrentTimestamp)
	}
}

// CheckOpenOrdersForCompletion reconciles tracked orders against the
// exchange: completed buys open positions (with an optional resting exit),
// completed sells are recorded, and fully-sold positions close.
func (t *Trading) CheckOpenOrdersForCompletion(exg *engine.ExchangeState) {
	t.completeBuys(exg)
	t.completeSells(exg)
	t.closeFullySoldPositions(exg)
}

func (t *Trading) completeBuys(exg *engine.ExchangeState) {
	for _, to := range t.PlaceBuy.CheckAndCompleteAllBuyOrders(exg) {
		t.tradeNum++
		pos := position.NewOpenPosition(to, t.tradeNum)
		t.state.AddOpenPosition(pos)
		t.logger.Info("position opened",
			zap.Int("trade_num", pos.TradeNum),
			zap.Int64("buy_order", to.OrderNumber),
			zap.String("entry_price", pos.EntryPrice.String()),
			zap.String("quantity", pos.EntryQuantity.String()))
		t.placeStrategyExit(pos, exg)
	}
}

func (t *Trading) placeStrategyExit(pos *position.OpenPosition, exg *engine.ExchangeState) {
	if t.exitStrategy == nil {
		return
	}
	o, err := t.exitStrategy.CreateExitOrder(pos, exg)
	if err != nil {
		t.logger.Error("exit order derivation failed",
			zap.Int64("buy_order", pos.Buy.OrderNumber), zap.Error(err))
		return
	}
	if o == nil {
		return
	}
	if err := t.PlaceSell.PlaceSellOrder(o, pos, exg); err != nil {
		t.logger.Error("exit order placement failed", zap.String("order", o.String()), zap.Error(err))
	}
}

func (t *Trading) completeSells(exg *engine.ExchangeState) {
	for _, to := range t.PlaceSell.CheckAndCompleteAllSellOrders(exg) {
		pos := t.state.PositionBySellOrderNumber(to.OrderNumber)
		if pos == nil {
			t.logger.Error("completed sell has no open position",
				zap.Int64("sell_order", to.OrderNumber))
			continue
		}
		result := pos.RecordSell(to)
		t.logger.Info("sell recorded",
			zap.Int64("buy_order", pos.Buy.OrderNumber),
			zap.Int64("sell_order", to.OrderNumber),
			zap.String("pnl", result.ProfitAndLoss.StringFixed(2)),
			zap.String("position_sold_pct", result.TotalPositionPercentSold.StringFixed(2)))
	}
}

func (t *Trading) closeFullySoldPositions(exg *engine.ExchangeState) {
	for _, num := range t.state.OpenPositionNumbers() {
		pos := t.state.OpenPositions[num]
		if !pos.FullySold() || pos.IsLocked() {
			continue
		}
		cp, err := position.NewClosedPosition(pos)
		if err != nil {
			t.logger.Error("position close failed",
				zap.Int64("buy_order", num), zap.Error(err))
			continue
		}
		t.state.RemoveOpenPosition(pos)
		t.state.AddClosedPosition(cp)
		t.logger.Info("position closed", zap.String("summary", cp.Summary()))

		stats := position.NewStatistics(t.state, t.candleSizeMin, t.riskFreeRate)
		t.logger.Info("performance", zap.String("summary", stats.Summary()))
	}
}

// ExecuteTradingStrategy runs one decision cycle against the timeframes that
// completed a candle this tick. At most one buy is placed per cycle.
func (t *Trading) ExecuteTradingStrategy(exg *engine.ExchangeState, updated []*series.TimeSeries) {
	t.executeBuyLogic(exg, updated)
	t.executeSellLogic(exg, updated)
}

func (t *Trading) executeBuyLogic(exg *engine.ExchangeState, updated []*series.TimeSeries) {
	if !t.strategy.EnterPosition(t.state, exg, updated) {
		return
	}
	o, err := t.buyStrategy.CreateBuyOrder(t.state, exg)
	if err != nil {
		t.logger.Error("buy order derivation failed", zap.Error(err))
		return
	}
	if o == nil {
		return
	}
	if err := t.PlaceBuy.PlaceBuyWithRetries(o, t.buyStrategy, exg); err != nil {
		t.logger.Error("buy placement failed", zap.String("order", o.String()), zap.Error(err))
		return
	}
	// A market buy fills inline; open the position now so its resting exit
	// can go on the book this same tick.
	t.completeBuys(exg)
}

func (t *Trading) executeSellLogic(exg *engine.ExchangeState, updated []*series.TimeSeries) {
	for _, pos := range t.strategy.ExitPositions(t.state, exg, updated) {
		if pos.IsLocked() {
			if err := t.PlaceSell.CancelSellOrder(pos.SellOrder, pos, exg); err != nil {
				t.logger.Error("resting sell cancel failed",
					zap.Int64("buy_order", pos.Buy.OrderNumber), zap.Error(err))
				continue
			}
		}
		if pos.IsLocked() {
			// Filled during the cancel window; completion will record it.
			continue
		}
		o, err := t.sellStrategy.CreateSellOrder(pos, t.state, exg)
		if err != nil {
			t.logger.Error("sell order derivation failed",
				zap.Int64("buy_order", pos.Buy.OrderNumber), zap.Error(err))
			continue
		}
		if o == nil {
			continue
		}
		if err := t.PlaceSell.PlaceSellWithRetries(o, pos, t.sellStrategy, exg); err != nil {
			t.logger.Error("sell placement failed", zap.String("order", o.String()), zap.Error(err))
		}
	}
	// Market sells fill inline; record them and close what fully sold.
	t.completeSells(exg)
	t.closeFullySoldPositions(exg)
}

func sortedOrderNumbers(orders map[int64]*engine.Order) []int64 {
	nums := make([]int64, 0, len(orders))
	for n := range orders {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}
