package engine

import "errors"

// NonRetryableError marks a failure that must not be retried by the durable
// execution backend: structural defects like validation failures and cycles.
// Backends translate the marker into their native non-retryable form.
type NonRetryableError struct {
	// Err is the underlying failure.
	Err error
}

// Error implements error.
func (e *NonRetryableError) Error() string { return e.Err.Error() }

// Unwrap exposes the underlying failure to errors.Is/As.
func (e *NonRetryableError) Unwrap() error { return e.Err }

// NonRetryable wraps err so backends do not retry it. Wrapping nil returns
// nil; wrapping an already-marked error returns it unchanged.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	var marked *NonRetryableError
	if errors.As(err, &marked) {
		return err
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err carries the non-retryable marker.
func IsNonRetryable(err error) bool {
	var marked *NonRetryableError
	return errors.As(err, &marked)
}
