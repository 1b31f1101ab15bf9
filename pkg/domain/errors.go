package domain

import "errors"

// Error kinds. Every error returned by the services wraps exactly one of
// these so callers can classify it with errors.Is.
var (
	// ErrValidation is returned when input is malformed or violates a field rule
	ErrValidation = errors.New("validation error")
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("resource not found")
	// ErrConflict is returned when a resource already exists or is held by another operation
	ErrConflict = errors.New("conflict")
	// ErrInvalidState is returned when an entity is not in a state that allows the operation
	ErrInvalidState = errors.New("invalid state")
	// ErrInsufficientFunds is returned when a debit would take a balance below zero
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrOutOfStock is returned when inventory cannot cover an order line
	ErrOutOfStock = errors.New("out of stock")
	// ErrTimeout is returned when a lock wait, statement or collaborator call exceeds its deadline
	ErrTimeout = errors.New("operation timed out")
	// ErrUnavailable is returned when an external collaborator cannot be reached
	ErrUnavailable = errors.New("service unavailable")
	// ErrInternal is returned for storage and other unexpected failures
	ErrInternal = errors.New("internal error")
)

// Kind is the stable, machine readable classification of an error.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInvalidState      Kind = "invalid_state"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindOutOfStock        Kind = "out_of_stock"
	KindTimeout           Kind = "timeout"
	KindUnavailable       Kind = "unavailable"
	KindInternal          Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrNotFound, KindNotFound},
	{ErrConflict, KindConflict},
	{ErrInvalidState, KindInvalidState},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrOutOfStock, KindOutOfStock},
	{ErrTimeout, KindTimeout},
	{ErrUnavailable, KindUnavailable},
	{ErrInternal, KindInternal},
}

// KindOf classifies err. Anything that does not wrap a known kind is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsRetryable reports whether the caller may retry the operation unchanged.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindUnavailable:
		return true
	}
	return false
}
