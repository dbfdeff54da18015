// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Classification errors.
	ErrInvalidCombination = errors.New("combination not allowed")
	ErrInvalidLevel3      = errors.New("invalid level 3")
	ErrProtectedEntry     = errors.New("entry is protected")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsUserFacing reports whether err is a validation failure the caller has to fix.
// These are never retried.
func IsUserFacing(err error) bool {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return true
	}
	return errors.Is(err, ErrInvalidCombination) ||
		errors.Is(err, ErrInvalidLevel3) ||
		errors.Is(err, ErrDuplicateEntry) ||
		errors.Is(err, ErrProtectedEntry) ||
		errors.Is(err, ErrNotFound)
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil || IsUserFacing(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	// Anything else came from storage.
	return true
}
