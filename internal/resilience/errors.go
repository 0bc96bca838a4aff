package resilience

import (
	"errors"
)

// ErrNonRetryable marks failures that retrying cannot fix (bad input, 4xx, parse errors)
var ErrNonRetryable = errors.New("non-retryable")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() error   { return e.err }
func (e *permanentError) Retryable() bool { return false }
func (e *permanentError) Is(target error) bool {
	return target == ErrNonRetryable
}

// Permanent wraps err so the retrier gives up immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsRetryable classifies an error. Errors implementing Retryable() bool decide
// for themselves; ErrNonRetryable in the chain is final; everything else is retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNonRetryable) {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
