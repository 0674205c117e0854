package clickhouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"spot-backtest/services/series"
)

// CandleSource reads the one-minute candle feed from a ClickHouse table.
type CandleSource struct {
	conn  *Conn
	table string
}

func NewCandleSource(conn *Conn, table string) *CandleSource {
	if table == "" {
		table = "candles_1m"
	}
	return &CandleSource{conn: conn, table: table}
}

// Candles fetches the feed for one symbol, ascending by timestamp. endUnix
// of zero means no upper bound.
func (s *CandleSource) Candles(ctx context.Context, symbol string, startUnix, endUnix int64) ([]series.Candle, error) {
	query := fmt.Sprintf(`
		SELECT timestamp, open, high, low, close, volume
		FROM %s
		WHERE symbol = ? AND timestamp >= ? AND (? = 0 OR timestamp < ?)
		ORDER BY timestamp ASC
	`, s.table)

	rows, err := s.conn.Query(ctx, query, symbol, uint64(startUnix), uint64(endUnix), uint64(endUnix))
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var candles []series.Candle
	for rows.Next() {
		var (
			ts                            uint64
			open, high, low, close_, vol float64
		)
		if err := rows.Scan(&ts, &open, &high, &low, &close_, &vol); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		candles = append(candles, series.Candle{
			Timestamp: int64(ts),
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(high),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(close_),
			Volume:    decimal.NewFromFloat(vol),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles for %s in %s", symbol, s.table)
	}
	return candles, nil
}
