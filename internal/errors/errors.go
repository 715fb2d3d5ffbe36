// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidSignal    = errors.New("invalid signal")
	ErrCapacityRejected = errors.New("capacity rejected")
	ErrExecutionFailure = errors.New("execution failure")
	ErrDataGap          = errors.New("data gap")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrPositionClosed   = errors.New("position already closed")
)

// RejectReason classifies a capacity rejection. Every rejection is terminal
// for that trading day; nothing is retried or carried over.
type RejectReason string

const (
	RejectGap            RejectReason = "gap_filter"
	RejectDailyCap       RejectReason = "daily_cap"
	RejectDirectionCap   RejectReason = "direction_cap"
	RejectSectorCap      RejectReason = "sector_cap"
	RejectStrategyCap    RejectReason = "strategy_cap"
	RejectReentryBlock   RejectReason = "reentry_block"
	RejectTierHalt       RejectReason = "tier_halt"
	RejectConfirmMissed  RejectReason = "confirm_missed"
	RejectZeroQuantity   RejectReason = "zero_quantity"
)

// InvalidSignalError marks a signal that can never be sized: missing stop
// price, non-positive prices, zero stop distance. Fatal for that one signal.
type InvalidSignalError struct {
	Strategy string
	Symbol   string
	Reason   string
}

func (e *InvalidSignalError) Error() string {
	return fmt.Sprintf("invalid signal %s/%s: %s", e.Strategy, e.Symbol, e.Reason)
}

func (e *InvalidSignalError) Is(target error) bool {
	return target == ErrInvalidSignal
}

// NewInvalidSignalError creates a new InvalidSignalError.
func NewInvalidSignalError(strategy, symbol, reason string) *InvalidSignalError {
	return &InvalidSignalError{Strategy: strategy, Symbol: symbol, Reason: reason}
}

// CapacityError marks an expected, non-error admission rejection.
type CapacityError struct {
	Strategy string
	Symbol   string
	Reason   RejectReason
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity rejected %s/%s: %s", e.Strategy, e.Symbol, e.Reason)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityRejected
}

// NewCapacityError creates a new CapacityError.
func NewCapacityError(strategy, symbol string, reason RejectReason) *CapacityError {
	return &CapacityError{Strategy: strategy, Symbol: symbol, Reason: reason}
}

// ExecutionError represents an error from the order-execution collaborator.
// A partially filled order is not an ExecutionError; the position is created
// at the filled quantity instead.
type ExecutionError struct {
	OrderID string
	Code    string
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("execution error [%s]: %s", e.Code, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecutionFailure
}

// NewExecutionError creates a new ExecutionError.
func NewExecutionError(orderID, code, message string, err error) *ExecutionError {
	return &ExecutionError{OrderID: orderID, Code: code, Message: message, Err: err}
}

// DataGapError marks a missing intraday price when an emergency check was
// due. The safety-net stop order is the fallback; the evaluator skips the
// tick and retries on the next data arrival.
type DataGapError struct {
	Symbol string
	At     string
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("data gap for %s at %s", e.Symbol, e.At)
}

func (e *DataGapError) Is(target error) bool {
	return target == ErrDataGap
}

// IsCapacityRejected reports whether err is an admission-control rejection.
func IsCapacityRejected(err error) bool {
	return errors.Is(err, ErrCapacityRejected)
}

// IsInvalidSignal reports whether err marks an unusable signal.
func IsInvalidSignal(err error) bool {
	return errors.Is(err, ErrInvalidSignal)
}
