// Package calc holds the shared fixed-precision arithmetic helpers.
package calc

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Exchanges round quantities down to 6 decimal places; every balance delta
// and order quantity passes through Quantize so holds and settlements stay
// exactly reversible.
const quantizePlaces = 6

// ErrZeroDivisor is returned by the percent helpers on a zero denominator.
var ErrZeroDivisor = errors.New("calc: zero divisor")

// Quantize truncates d to 6 decimal places.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(quantizePlaces)
}

// PercentChange reports the change from prev to cur as a percentage.
// Ex: a change of 20 to 15 is -25%.
func PercentChange(cur, prev decimal.Decimal) (decimal.Decimal, error) {
	if prev.IsZero() {
		return decimal.Zero, ErrZeroDivisor
	}
	return cur.Sub(prev).Mul(decimal.NewFromInt(100)).Div(prev), nil
}

// PercentOf returns percent% of whole. Ex: 5% of 38000 is 1900.
func PercentOf(percent, whole decimal.Decimal) decimal.Decimal {
	return percent.Mul(whole).Div(decimal.NewFromInt(100))
}

// MostRecentCompleteTimestamp floors ts to the start of its granularity
// bucket (granularity in seconds).
func MostRecentCompleteTimestamp(ts, granularity int64) int64 {
	return ts - (ts % granularity)
}
