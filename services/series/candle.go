package series

import "github.com/shopspring/decimal"

// Candle is one OHLCV bar keyed by its open timestamp (unix seconds).
type Candle struct {
	Timestamp int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// EmptyCandle is a zero-volume placeholder for a missing tick. Zero-volume
// candles are filtered out before merging.
func EmptyCandle(ts int64) Candle {
	return Candle{Timestamp: ts}
}

// mergeCandles folds a buffer of sub-candles into one candle whose timestamp
// is floored to the start of the containing bucket.
func mergeCandles(buf []Candle, bucketStart int64) Candle {
	merged := Candle{
		Timestamp: bucketStart,
		Open:      buf[0].Open,
		High:      buf[0].High,
		Low:       buf[0].Low,
		Close:     buf[len(buf)-1].Close,
	}
	for _, c := range buf {
		merged.Volume = merged.Volume.Add(c.Volume)
		if c.High.GreaterThan(merged.High) {
			merged.High = c.High
		}
		if c.Low.LessThan(merged.Low) {
			merged.Low = c.Low
		}
	}
	return merged
}
