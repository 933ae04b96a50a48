package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Error taxonomy. Validation and rate-limit errors resolve synchronously;
// network errors are absorbed into the offline queue; stock and transition
// errors are terminal for the call and reported to the caller.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrOutOfStock        = errors.New("out of stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStorage           = errors.New("storage failure")
)

// RateLimitedError carries the remaining block duration for Retry-After.
type RateLimitedError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %s", e.Key, e.RetryAfter)
}

// NetworkError classifies a failure as recoverable: the operation did not
// reach the ledger and is safe to queue for replay.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error during %s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetwork reports whether err should be absorbed into the offline queue.
func IsNetwork(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
