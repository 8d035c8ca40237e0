// internal/util/errors.go
package util

import (
	"errors"
	"strings"
)

// Common application-specific errors.
var (
	ErrNotFound              = errors.New("resource not found")
	ErrInvalidInput          = errors.New("invalid input provided")
	ErrWriteFailure          = errors.New("ledger write failed")
	ErrUnbalanced            = errors.New("entries do not balance")
	ErrRateLimited           = errors.New("rate limit exceeded")
	ErrRefundExceedsOriginal = errors.New("refund exceeds refundable amount")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrSplitInvalid          = errors.New("split contract is invalid")
	ErrDuplicateEntry        = errors.New("duplicate entry")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrUnimplemented         = errors.New("operation not implemented")
)

// IsError reports whether any error in err's chain matches target.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}

// ValidationError aggregates every violation found in a request.
// It unwraps to ErrInvalidInput so callers can match it with errors.Is.
type ValidationError struct {
	Errors []string
}

// NewValidationError returns nil when there are no violations.
func NewValidationError(violations []string) error {
	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Errors: violations}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
