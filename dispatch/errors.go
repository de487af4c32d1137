package dispatch

import "errors"

// Sentinel errors for dispatch operations.
var (
	// ErrRateLimitExceeded is returned when waiting for a launch token would
	// outlast the caller's deadline.
	ErrRateLimitExceeded = errors.New("dispatch: rate limit exceeded")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("dispatch: operation timed out")
)
