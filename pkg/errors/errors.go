package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound             = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrNotEnrolled          = New("NOT_ENROLLED", http.StatusConflict, "student is not enrolled in the class")
	ErrInsufficientTokens   = New("INSUFFICIENT_TOKENS", http.StatusConflict, "no bidding token remaining")
	ErrDuplicateBid         = New("DUPLICATE_BID", http.StatusConflict, "bid already submitted for this opportunity")
	ErrOpportunityClosed    = New("OPPORTUNITY_CLOSED", http.StatusConflict, "opportunity is not open for bidding")
	ErrCapacityExceeded     = New("CAPACITY_EXCEEDED", http.StatusConflict, "opportunity capacity reached")
	ErrBidNotFound          = New("BID_NOT_FOUND", http.StatusNotFound, "bid not found")
	ErrCannotWithdrawWinner = New("CANNOT_WITHDRAW_WINNER", http.StatusConflict, "winning bid cannot be withdrawn")
	ErrHasExistingBid       = New("HAS_EXISTING_BID", http.StatusConflict, "student has bids in this class")
	ErrConcurrencyConflict  = New("CONCURRENCY_CONFLICT", http.StatusConflict, "concurrent update detected, retry the request")
	ErrIntegrityViolation   = New("INTEGRITY_VIOLATION", http.StatusInternalServerError, "referential integrity violation")
	ErrValidation           = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrUnauthorized         = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden            = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrConflict             = New("CONFLICT", http.StatusConflict, "conflict")
	ErrInternal             = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss            = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Retryable reports whether the caller may safely retry the failed request.
// Only serialization failures qualify; every other error is terminal.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrConcurrencyConflict.Code
	}
	return false
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
