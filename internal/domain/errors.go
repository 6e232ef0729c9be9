package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection is the generic venue error: unreachable, malformed
	// response, authentication failure.
	ErrConnection = errors.New("venue connection error")

	// ErrFilterViolation is returned by market filters.
	ErrFilterViolation = errors.New("order violates market filter")

	// ErrNoPrice means no price has been observed for a market yet.
	ErrNoPrice = errors.New("no price observed for market")

	// Position pre-flight validation failures.
	ErrDifferentMarkets  = errors.New("prices reference different markets")
	ErrPriceRestrictions = errors.New("take profit, enter price and stop loss are not ordered for side")
	ErrWrongAsset        = errors.New("enter quantity has the wrong asset for side")
	ErrNotFilled         = errors.New("entering order executed nothing")
)

// OrderErrorKind classifies order failures.
type OrderErrorKind int

const (
	OrderErrOther OrderErrorKind = iota
	OrderErrInsufficientBalance
	OrderErrInvalidOrder
	OrderErrRateLimited
	OrderErrRejected
)

func (k OrderErrorKind) String() string {
	switch k {
	case OrderErrInsufficientBalance:
		return "INSUFFICIENT_BALANCE"
	case OrderErrInvalidOrder:
		return "INVALID_ORDER"
	case OrderErrRateLimited:
		return "RATE_LIMITED"
	case OrderErrRejected:
		return "REJECTED"
	default:
		return "OTHER"
	}
}

// OrderError is returned by Api.Order.
type OrderError struct {
	Kind OrderErrorKind
	Err  error
}

// NewOrderError wraps err with kind.
func NewOrderError(kind OrderErrorKind, err error) *OrderError {
	return &OrderError{Kind: kind, Err: err}
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order failed (%s): %v", e.Kind, e.Err)
}

func (e *OrderError) Unwrap() error { return e.Err }

// AsOrderError wraps any error as an OrderError, keeping an existing one.
func AsOrderError(err error) *OrderError {
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe
	}
	return &OrderError{Kind: OrderErrOther, Err: err}
}

// PositionErrorKind classifies position entry failures.
type PositionErrorKind int

const (
	PositionErrOther PositionErrorKind = iota
	PositionErrDifferentMarkets
	PositionErrPriceRestrictions
	PositionErrWrongAsset
	PositionErrNotFilled
	PositionErrOrder
)

func (k PositionErrorKind) String() string {
	switch k {
	case PositionErrDifferentMarkets:
		return "DIFFERENT_MARKETS"
	case PositionErrPriceRestrictions:
		return "PRICE_RESTRICTIONS"
	case PositionErrWrongAsset:
		return "WRONG_ASSET"
	case PositionErrNotFilled:
		return "NOT_FILLED"
	case PositionErrOrder:
		return "ORDER"
	default:
		return "OTHER"
	}
}

// PositionError is returned by position entry.
// Validation kinds never touched the network. For ORDER kinds, State tells
// which step failed and Entering holds the entering fill if there was one.
type PositionError struct {
	Kind     PositionErrorKind
	State    PositionState
	IntentID string
	Entering *OrderResponse
	Err      error
}

func (e *PositionError) Error() string {
	if e.IntentID != "" {
		return fmt.Sprintf("position %s failed in %s (%s): %v", e.IntentID, e.State, e.Kind, e.Err)
	}
	return fmt.Sprintf("position failed in %s (%s): %v", e.State, e.Kind, e.Err)
}

func (e *PositionError) Unwrap() error { return e.Err }

// IsValidation reports a local pre-flight failure.
func (e *PositionError) IsValidation() bool {
	switch e.Kind {
	case PositionErrDifferentMarkets, PositionErrPriceRestrictions, PositionErrWrongAsset:
		return true
	}
	return false
}

// Unprotected reports that the entering order filled but no bracket exists.
func (e *PositionError) Unprotected() bool {
	return e.Entering != nil && !e.Entering.ExecutedQuantity.IsZero() && e.State == PositionBracketing
}
