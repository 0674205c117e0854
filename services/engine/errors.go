package engine

import "errors"

// Domain error taxonomy. Validation and insufficiency errors propagate to the
// placement caller; state errors are fatal and abort the run.
var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrInsufficientFunds = errors.New("insufficient USD holdings")
	ErrInsufficientAsset = errors.New("insufficient asset holdings")
	ErrOrderRejected     = errors.New("order rejected by market conditions")
	ErrOrderNotOpen      = errors.New("order not in open order book")
	ErrInvalidState      = errors.New("exchange state invariant violated")
)
