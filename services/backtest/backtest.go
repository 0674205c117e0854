// Package backtest replays a historical one-minute feed through the exchange
// simulation and the trading cycle.
package backtest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spot-backtest/services/engine"
	"spot-backtest/services/position"
	"spot-backtest/services/series"
	"spot-backtest/services/trading"
)

// DefaultWarmupCandles is how many completed candles every timeframe needs
// before the strategy may trade.
const DefaultWarmupCandles = 199

// Runner owns one replay: the feed, the timeframes built from it, the
// simulated exchange and the trading cycle.
type Runner struct {
	ID     string
	Symbol string

	exg     *engine.ExchangeState
	client  engine.Client
	trading *trading.Trading

	feed       []series.Candle
	timeSeries []*series.TimeSeries

	// Trading starts only once both gates pass: the feed reaches StartUnix
	// and every timeframe has WarmupCandles completed candles.
	startUnix     int64
	warmupCandles int

	prepared bool
	logger   *zap.Logger
}

type RunnerConfig struct {
	Symbol        string
	Feed          []series.Candle
	TimeSeries    []*series.TimeSeries
	StartUnix     int64
	WarmupCandles int
}

func NewRunner(cfg RunnerConfig, exg *engine.ExchangeState, client engine.Client, t *trading.Trading, logger *zap.Logger) (*Runner, error) {
	if len(cfg.Feed) == 0 {
		return nil, fmt.Errorf("backtest requires a non-empty feed")
	}
	if len(cfg.TimeSeries) == 0 {
		return nil, fmt.Errorf("backtest requires at least one timeframe")
	}
	warmup := cfg.WarmupCandles
	if warmup <= 0 {
		warmup = DefaultWarmupCandles
	}
	return &Runner{
		ID:            uuid.New().String(),
		Symbol:        cfg.Symbol,
		exg:           exg,
		client:        client,
		trading:       t,
		feed:          cfg.Feed,
		timeSeries:    cfg.TimeSeries,
		startUnix:     cfg.StartUnix,
		warmupCandles: warmup,
		logger:        logger.Named("backtest"),
	}, nil
}

// SetTrading installs the trading cycle. Construction order forces this to
// be late: strategies precompute from prepared timeframes, and the trading
// cycle is built from strategies.
func (r *Runner) SetTrading(t *trading.Trading) { r.trading = t }

// Prepare builds every timeframe's full candle sequence from the feed so
// signal precomputation can run before the replay starts.
func (r *Runner) Prepare() {
	for _, c := range r.feed {
		for _, ts := range r.timeSeries {
			ts.Update(c)
		}
	}
	for _, ts := range r.timeSeries {
		r.logger.Info("timeframe prepared",
			zap.String("timeframe", ts.Name), zap.Int("candles", ts.Len()))
	}
	r.prepared = true
}

// Execute replays the feed tick by tick. Each minute candle's open is the
// simulated market price for that tick.
func (r *Runner) Execute(ctx context.Context) (*position.Statistics, error) {
	if !r.prepared {
		return nil, fmt.Errorf("backtest %s executed before Prepare", r.ID)
	}
	if r.trading == nil {
		return nil, fmt.Errorf("backtest %s has no trading cycle installed", r.ID)
	}
	r.logger.Info("backtest starting",
		zap.String("run_id", r.ID),
		zap.String("symbol", r.Symbol),
		zap.Int("ticks", len(r.feed)),
		zap.Int("warmup_candles", r.warmupCandles))

	for i, c := range r.feed {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest %s interrupted at tick %d: %w", r.ID, i, err)
		}
		if err := r.tick(c); err != nil {
			return nil, fmt.Errorf("backtest %s at tick %d (ts %d): %w", r.ID, i, c.Timestamp, err)
		}
	}

	stats := position.NewStatistics(r.trading.State(), r.timeSeries[0].CandleSizeMin, 0)
	r.logger.Info("backtest finished", zap.String("run_id", r.ID))
	r.exg.LogPortfolio()
	return stats, nil
}

func (r *Runner) tick(c series.Candle) error {
	if err := r.exg.UpdatePriceTime(c.Open, c.Timestamp); err != nil {
		return err
	}

	r.client.CheckOrdersForExecution()
	r.trading.UpdateOpenPositions(r.exg)
	r.trading.CheckOpenOrdersForCompletion(r.exg)
	r.trading.LimitAdjust.AdjustLimitOrders(r.exg)

	updated := r.advanceTimeframes(c.Timestamp)

	// Pre-start ticks still run the bookkeeping above so cursors advance
	// through the warm-up buffer; only strategy evaluation waits for
	// StartUnix, keeping the first evaluation on a real candle boundary.
	if len(updated) > 0 && r.warmedUp() && c.Timestamp >= r.startUnix {
		r.trading.ExecuteTradingStrategy(r.exg, updated)
		r.trading.CheckOpenOrdersForCompletion(r.exg)
	}

	return r.exg.Validate()
}

// advanceTimeframes moves every cursor that the tick has crossed and returns
// the timeframes that completed a candle.
func (r *Runner) advanceTimeframes(tick int64) []*series.TimeSeries {
	var updated []*series.TimeSeries
	for _, ts := range r.timeSeries {
		advanced := false
		for ts.ShouldAdvance(tick) {
			ts.Advance()
			advanced = true
		}
		if advanced {
			updated = append(updated, ts)
		}
	}
	return updated
}

// warmedUp requires every timeframe to have completed the warm-up count, so
// signals on slower timeframes never fire against invalid history.
func (r *Runner) warmedUp() bool {
	for _, ts := range r.timeSeries {
		if ts.Cursor() < r.warmupCandles {
			return false
		}
	}
	return true
}
