package gerrors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies an error for callers and for user-facing surfaces.
type ErrorCode string

const (
	// Validation errors, rejected before any computation runs.
	ErrCodeInvalidRange      ErrorCode = "INVALID_RANGE"
	ErrCodeInvalidHorizon    ErrorCode = "INVALID_HORIZON"
	ErrCodeInvalidIterations ErrorCode = "INVALID_ITERATIONS"
	ErrCodeDuplicateSeries   ErrorCode = "DUPLICATE_SERIES"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"

	// Session and upstream errors.
	ErrCodeBusy          ErrorCode = "BUSY"
	ErrCodeRateLimited   ErrorCode = "RATE_LIMITED"
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeUpstream      ErrorCode = "UPSTREAM"
	ErrCodePersistFailed ErrorCode = "PERSIST_FAILED"

	// Generic errors.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// GridError carries a code alongside the message so handlers and the CLI
// can map failures to distinct user-facing notices.
type GridError struct {
	Code       ErrorCode
	Message    string
	Cause      error
	Retryable  bool
	RetryAfter *time.Duration
}

func (e *GridError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *GridError) Unwrap() error {
	return e.Cause
}

// Is matches two GridErrors by code, so sentinel-style comparisons with
// errors.Is work across wrapping.
func (e *GridError) Is(target error) bool {
	var ge *GridError
	if !errors.As(target, &ge) {
		return false
	}
	return e.Code == ge.Code
}

// New creates a new GridError with the given code and message.
func New(code ErrorCode, message string) *GridError {
	return &GridError{Code: code, Message: message, Retryable: retryableCode(code)}
}

// Newf creates a new GridError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *GridError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap annotates an error with a code and message. Returns nil for nil.
func Wrap(err error, code ErrorCode, message string) *GridError {
	if err == nil {
		return nil
	}
	return &GridError{Code: code, Message: message, Cause: err, Retryable: retryableCode(code)}
}

// Wrapf annotates an error with a code and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *GridError {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WithRetryAfter attaches a retry hint, typically from a 429 response.
func (e *GridError) WithRetryAfter(d time.Duration) *GridError {
	e.RetryAfter = &d
	return e
}

// CodeOf extracts the error code, or ErrCodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var ge *GridError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether the operation that produced err is worth
// retrying. Foreign errors are treated as retryable; validation and
// quota failures are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ge *GridError
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return true
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

func retryableCode(code ErrorCode) bool {
	switch code {
	case ErrCodeTimeout, ErrCodeUpstream, ErrCodeInternal:
		return true
	default:
		return false
	}
}
