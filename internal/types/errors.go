package types

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means the request could not be resolved to a subject.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrNotConnected means the subject has no broker credential on file.
	ErrNotConnected = errors.New("IOL account not connected")

	// ErrNotFound means the requested resource does not exist or does not
	// belong to the requesting subject. The two cases are deliberately
	// indistinguishable.
	ErrNotFound = errors.New("not found")
)

// FieldError is a validation failure scoped to a single request field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InsufficientHoldingsError rejects a sell that exceeds the aggregate
// held quantity across the subject's portfolios.
type InsufficientHoldingsError struct {
	Symbol string
	Held   int64
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("Insufficient holdings: have %d %s", e.Held, e.Symbol)
}

// BrokerRejectedError carries a business rejection from the gateway. Its
// message is surfaced to the caller verbatim.
type BrokerRejectedError struct {
	Message string
}

func (e *BrokerRejectedError) Error() string {
	return e.Message
}

// DispatchError wraps a transport-level failure talking to the gateway.
// Callers surface a generic message, never the wrapped fault.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("order dispatch failed: %v", e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
