package feed

import (
	"fmt"
	"net/http"
)

// FetchError carries the outcome of one upstream request attempt.
// Retryable is decided exactly once, at classification time; callers never
// inspect the error type or status to re-derive it.
type FetchError struct {
	Op        string
	Status    int
	Retryable bool
	Err       error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: upstream status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// transportError wraps a network-level failure. Always retryable.
func transportError(op string, err error) *FetchError {
	return &FetchError{Op: op, Retryable: true, Err: err}
}

// statusError classifies an HTTP error status. 429 and 5xx are considered
// transient; other 4xx indicate a permanent condition (bad key, suspended
// account, removed endpoint) and burn no further attempts.
func statusError(op string, status int) *FetchError {
	retryable := status == http.StatusTooManyRequests || status >= 500
	return &FetchError{Op: op, Status: status, Retryable: retryable}
}
