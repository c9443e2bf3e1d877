package repositories

import (
	"errors"
	"fmt"
)

// ErrorCode enumerates store-independent failure causes.
type ErrorCode string

const (
	// ErrorUnknown represents an unspecified failure.
	ErrorUnknown ErrorCode = "store_unknown"
	// ErrorNotFound indicates the addressed row or document is missing.
	ErrorNotFound ErrorCode = "store_not_found"
	// ErrorConflict indicates a concurrent or duplicate write.
	ErrorConflict ErrorCode = "store_conflict"
	// ErrorInsufficientStock indicates a decrement would drive stock below zero.
	ErrorInsufficientStock ErrorCode = "store_insufficient_stock"
	// ErrorUnavailable indicates a transient backend failure.
	ErrorUnavailable ErrorCode = "store_unavailable"
)

// Error is the RepositoryError produced by stores that do not carry their own error type.
type Error struct {
	Op      string
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound implements RepositoryError.
func (e *Error) IsNotFound() bool { return e != nil && e.Code == ErrorNotFound }

// IsConflict implements RepositoryError.
func (e *Error) IsConflict() bool {
	return e != nil && (e.Code == ErrorConflict || e.Code == ErrorInsufficientStock)
}

// IsUnavailable implements RepositoryError.
func (e *Error) IsUnavailable() bool { return e != nil && e.Code == ErrorUnavailable }

// NewError constructs a typed store error.
func NewError(op string, code ErrorCode, message string, err error) *Error {
	if message == "" {
		message = string(code)
	}
	return &Error{Op: op, Code: code, Message: message, Err: err}
}

// NotFound is shorthand for a missing-row error.
func NotFound(op, format string, args ...any) *Error {
	return NewError(op, ErrorNotFound, fmt.Sprintf(format, args...), nil)
}

// IsNotFound reports whether err carries not-found semantics.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsInsufficientStock reports whether err is a stock guard failure raised by a store.
func IsInsufficientStock(err error) bool {
	var storeErr *Error
	return errors.As(err, &storeErr) && storeErr.Code == ErrorInsufficientStock
}
