// Package series provides the candle, scalar-series and timeframe
// abstractions the backtest advances over.
package series

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// tickSeconds is the cadence of the raw feed. The first merged candle may be
// built from fewer ticks than a full bucket.
const tickSeconds = 60

// TimeSeries aggregates raw feed candles into one timeframe and tracks a
// cursor marking the most recently completed candle as the backtest advances.
type TimeSeries struct {
	Name           string
	CandleSizeMin  int64
	CandleSizeSecs int64

	candles []Candle
	buffer  []Candle

	lastTimestamp int64
	firstCandle   bool
	cursor        int

	logger *zap.Logger
}

// NewTimeSeries parses sizes like "15m", "1h" or "1d".
func NewTimeSeries(candleSize string, logger *zap.Logger) (*TimeSeries, error) {
	minutes, err := parseCandleSize(candleSize)
	if err != nil {
		return nil, err
	}
	return &TimeSeries{
		Name:           candleSize,
		CandleSizeMin:  minutes,
		CandleSizeSecs: minutes * 60,
		firstCandle:    true,
		logger:         logger.Named("series"),
	}, nil
}

func parseCandleSize(value string) (int64, error) {
	if len(value) < 2 {
		return 0, fmt.Errorf("invalid candle size %q", value)
	}
	n, err := strconv.ParseInt(value[:len(value)-1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid candle size %q", value)
	}
	switch {
	case strings.HasSuffix(value, "m"):
		return n, nil
	case strings.HasSuffix(value, "h"):
		return n * 60, nil
	case strings.HasSuffix(value, "d"):
		return n * 60 * 24, nil
	}
	return 0, fmt.Errorf("invalid candle size %q", value)
}

// Update feeds one raw tick candle. Gaps in the feed are padded with
// zero-volume candles so bucket boundaries stay aligned. Returns true when a
// merged candle was completed by this tick.
func (t *TimeSeries) Update(c Candle) bool {
	if t.lastTimestamp == 0 {
		t.lastTimestamp = c.Timestamp
	}

	if t.lastTimestamp+tickSeconds < c.Timestamp {
		t.logger.Error("missing candles in feed",
			zap.Int64("from", t.lastTimestamp+tickSeconds),
			zap.Int64("to", c.Timestamp-tickSeconds),
			zap.String("timeframe", t.Name))
		for t.lastTimestamp+tickSeconds < c.Timestamp {
			t.lastTimestamp += tickSeconds
			empty := EmptyCandle(t.lastTimestamp)
			t.buffer = append(t.buffer, empty)
			t.processBuffer(empty.Timestamp)
		}
	}

	t.buffer = append(t.buffer, c)
	t.lastTimestamp = c.Timestamp
	return t.processBuffer(c.Timestamp)
}

// processBuffer merges the buffer once the next tick would belong to the
// following bucket. Ex: a 5m candle starting 12:00 completes when the 12:05
// tick is in reach.
func (t *TimeSeries) processBuffer(updateTimestamp int64) bool {
	bucketStart := updateTimestamp - (updateTimestamp % t.CandleSizeSecs)
	nextTick := updateTimestamp + tickSeconds
	bucketEnd := bucketStart + t.CandleSizeSecs
	if nextTick < bucketEnd {
		return false
	}

	filtered := make([]Candle, 0, len(t.buffer))
	for _, c := range t.buffer {
		if !c.Volume.IsZero() {
			filtered = append(filtered, c)
		}
	}
	t.checkBuffer()

	t.buffer = t.buffer[:0]
	if len(filtered) == 0 {
		return false
	}

	start := filtered[0].Timestamp - (filtered[0].Timestamp % t.CandleSizeSecs)
	t.candles = append(t.candles, mergeCandles(filtered, start))
	t.firstCandle = false
	return true
}

func (t *TimeSeries) checkBuffer() {
	if t.firstCandle || len(t.buffer) == 0 {
		return
	}
	expected := int(t.CandleSizeSecs / tickSeconds)
	if len(t.buffer) != expected {
		t.logger.Error("unexpected candle buffer size",
			zap.String("timeframe", t.Name),
			zap.Int("expected", expected),
			zap.Int("actual", len(t.buffer)))
	}
	span := t.buffer[len(t.buffer)-1].Timestamp - t.buffer[0].Timestamp
	if span != t.CandleSizeSecs-tickSeconds {
		t.logger.Error("candle buffer span mismatch",
			zap.String("timeframe", t.Name),
			zap.Int64("span", span),
			zap.Int64("expected", t.CandleSizeSecs-tickSeconds))
	}
}

// Candles returns the merged candle sequence.
func (t *TimeSeries) Candles() []Candle { return t.candles }

// Len returns the number of completed candles.
func (t *TimeSeries) Len() int { return len(t.candles) }

// Cursor is the index of the most recently completed candle as of the
// current simulated tick.
func (t *TimeSeries) Cursor() int { return t.cursor }

// Current returns the candle under the cursor.
func (t *TimeSeries) Current() Candle { return t.candles[t.cursor] }

// ShouldAdvance reports whether the simulated tick timestamp has crossed the
// end of the candle after the cursor, guarding the index bounds.
func (t *TimeSeries) ShouldAdvance(tick int64) bool {
	if t.cursor+2 >= len(t.candles) {
		return false
	}
	return tick >= t.candles[t.cursor+1].Timestamp+t.CandleSizeSecs
}

// Advance moves the cursor one completed candle forward.
func (t *TimeSeries) Advance() { t.cursor++ }
