package clickhouse

import (
	"context"
	"fmt"
	"time"

	"spot-backtest/services/position"
)

// ResultStore persists run summaries and per-trade rows.
type ResultStore struct {
	conn *Conn
}

func NewResultStore(conn *Conn) *ResultStore {
	return &ResultStore{conn: conn}
}

// SaveRun writes one row into backtest_runs from the final statistics.
func (s *ResultStore) SaveRun(ctx context.Context, runID, symbol string, stats *position.Statistics) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO backtest_runs (
			run_id, symbol, finished_at,
			total_trades, winning_trades, losing_trades,
			total_pnl, total_pnl_pct, total_fees,
			max_drawdown, max_drawdown_pct,
			sharpe_ratio, sortino_ratio
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare run batch: %w", err)
	}

	totalPnl, _ := stats.TotalPnl.Float64()
	totalPnlPct, _ := stats.TotalPnlPercent.Float64()
	totalFees, _ := stats.TotalFees.Float64()
	maxDD, _ := stats.MaxEquityDrawdown.Float64()
	maxDDPct, _ := stats.MaxEquityDrawdownPercent.Float64()

	sharpe, sortino := 0.0, 0.0
	if stats.SharpeValid {
		sharpe = stats.SharpeRatio
	}
	if stats.SortinoValid {
		sortino = stats.SortinoRatio
	}

	err = batch.Append(
		runID, symbol, time.Now().UTC(),
		uint32(stats.TotalTrades), uint32(stats.WinningTrades), uint32(stats.LosingTrades),
		totalPnl, totalPnlPct, totalFees,
		maxDD, maxDDPct,
		sharpe, sortino,
	)
	if err != nil {
		return fmt.Errorf("append run row: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send run batch: %w", err)
	}
	return nil
}

// SaveTrades writes one row per closed position into backtest_trades.
func (s *ResultStore) SaveTrades(ctx context.Context, runID, symbol string, closed []*position.ClosedPosition) error {
	if len(closed) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO backtest_trades (
			run_id, symbol, trade_num,
			open_timestamp, close_timestamp, duration_secs,
			entry_price, exit_price, quantity, fees,
			pnl, pnl_pct, run_up, drawdown, cumulative_pnl
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare trade batch: %w", err)
	}

	for i, cp := range closed {
		entry, _ := cp.OpenMarketPrice.Float64()
		exit, _ := cp.CloseMarketPrice.Float64()
		qty, _ := cp.Quantity.Float64()
		fees, _ := cp.Fees.Float64()
		pnl, _ := cp.ProfitAndLoss.Float64()
		pnlPct, _ := cp.ProfitAndLossPercent.Float64()
		runUp, _ := cp.RunUp.Float64()
		drawdown, _ := cp.Drawdown.Float64()
		cumPnl, _ := cp.CumulativePnl.Float64()

		err = batch.Append(
			runID, symbol, uint32(i+1),
			uint64(cp.OpenTimestamp), uint64(cp.CloseTimestamp), uint64(cp.DurationSeconds),
			entry, exit, qty, fees,
			pnl, pnlPct, runUp, drawdown, cumPnl,
		)
		if err != nil {
			return fmt.Errorf("append trade row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send trade batch: %w", err)
	}
	return nil
}
