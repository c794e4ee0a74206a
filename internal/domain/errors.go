package domain

import "errors"

// Candidate-trade errors. All of them are recovered locally: they abort the
// candidate being evaluated, never the tick.
var (
	ErrInsufficientFunds = errors.New("insufficient cash available")
	ErrInsufficientUnits = errors.New("insufficient units available")
	ErrOrderCapExceeded  = errors.New("open order cap reached for market")
	ErrPriceOutOfBounds  = errors.New("price outside market bounds")
	ErrOrderRejected     = errors.New("order rejected by marketplace")
)

var (
	ErrMalformedPayoffs  = errors.New("malformed payoff description")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrUnknownMarket     = errors.New("unknown market")
)
