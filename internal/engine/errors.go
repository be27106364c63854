package engine

import "errors"

// Sentinel errors surfaced by the engine and portfolio. ErrValidation marks
// hard failures detected before any simulation step; everything else is
// recovered locally and only logged.
var (
	ErrValidation       = errors.New("backtest validation failed")
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrOverSell         = errors.New("sell exceeds held quantity")
	ErrNoPosition       = errors.New("no position held")
)

// RejectReason is the machine-readable code attached to a dropped order.
type RejectReason string

const (
	RejectInsufficientCash RejectReason = "INSUFFICIENT_CASH"
	RejectCashReserve      RejectReason = "CASH_RESERVE_VIOLATION"
	RejectBelowMinOrder    RejectReason = "BELOW_MIN_ORDER"
	RejectOverSell         RejectReason = "OVER_SELL"
)
