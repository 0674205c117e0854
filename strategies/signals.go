// Package strategies provides the concrete entry/exit signals, trade
// conditions and order factories, plus the name registry the run
// configuration resolves them through.
package strategies

import (
	"spot-backtest/services/series"
)

// PopulateCloses builds a scalar series of close prices aligned to a
// prepared timeframe.
func PopulateCloses(ts *series.TimeSeries) *series.Series {
	s := series.NewSeries("close", ts)
	values := make([]float64, ts.Len())
	for i, c := range ts.Candles() {
		values[i], _ = c.Close.Float64()
	}
	s.Populate(values, 0)
	return s
}

// TimeIntervalEntry fires on every Nth completed candle of its timeframe.
type TimeIntervalEntry struct {
	ts    *series.TimeSeries
	every int
}

func NewTimeIntervalEntry(ts *series.TimeSeries, every int) *TimeIntervalEntry {
	if every < 1 {
		every = 1
	}
	return &TimeIntervalEntry{ts: ts, every: every}
}

func (s *TimeIntervalEntry) TimeSeries() *series.TimeSeries { return s.ts }

func (s *TimeIntervalEntry) IdentifyEntry() bool {
	return s.ts.Cursor()%s.every == 0
}

// DirectionFlipEntry fires when the close series turns up after falling.
type DirectionFlipEntry struct {
	ts     *series.TimeSeries
	closes *series.Series
}

func NewDirectionFlipEntry(ts *series.TimeSeries) *DirectionFlipEntry {
	return &DirectionFlipEntry{ts: ts, closes: PopulateCloses(ts)}
}

func (s *DirectionFlipEntry) TimeSeries() *series.TimeSeries { return s.ts }

func (s *DirectionFlipEntry) IdentifyEntry() bool {
	c := s.ts.Cursor()
	if c < 2 || !s.closes.TimePeriodMet() {
		return false
	}
	return s.closes.At(c-1) < s.closes.At(c-2) && s.closes.At(c) > s.closes.At(c-1)
}

// DirectionFlipExit fires when the close series turns down after rising.
type DirectionFlipExit struct {
	ts     *series.TimeSeries
	closes *series.Series
}

func NewDirectionFlipExit(ts *series.TimeSeries) *DirectionFlipExit {
	return &DirectionFlipExit{ts: ts, closes: PopulateCloses(ts)}
}

func (s *DirectionFlipExit) TimeSeries() *series.TimeSeries { return s.ts }

func (s *DirectionFlipExit) IdentifyExit() bool {
	c := s.ts.Cursor()
	if c < 2 || !s.closes.TimePeriodMet() {
		return false
	}
	return s.closes.At(c-1) > s.closes.At(c-2) && s.closes.At(c) < s.closes.At(c-1)
}
