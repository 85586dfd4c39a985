package pipeline

import (
	"errors"
	"fmt"
)

// Stage failures carry one of two classifications. Retryable failures
// (network errors, rate limits, timeouts) are re-attempted within the stage's
// budget; fatal failures (bad input, malformed model output) are terminal
// immediately. Classification is a property of the error, not of whichever
// call site happens to catch it.

type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Retryable wraps err as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func Retryablef(format string, args ...any) error {
	return &RetryableError{Err: fmt.Errorf(format, args...)}
}

// Fatal wraps err as permanent.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

func Fatalf(format string, args ...any) error {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

// IsFatal reports whether err must not be retried.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// IsRetryable reports whether err may be retried. Anything not classified
// fatal counts: raw transport errors and deadline expiries from collaborators
// get their retries without each call site wrapping them.
func IsRetryable(err error) bool {
	return err != nil && !IsFatal(err)
}

// ClassifyHTTPStatus maps a collaborator response code onto the taxonomy.
// 429 and 5xx are transient; any other non-2xx is permanent.
func ClassifyHTTPStatus(status int, body string) error {
	if status >= 200 && status < 300 {
		return nil
	}
	if status == 429 || status >= 500 {
		return Retryablef("status %d: %s", status, body)
	}
	return Fatalf("status %d: %s", status, body)
}
