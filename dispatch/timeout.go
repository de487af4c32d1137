package dispatch

import (
	"context"
	"errors"
	"time"
)

// TimeoutConfig configures the timeout wrapper.
type TimeoutConfig struct {
	// Timeout is the maximum duration for the operation.
	// Default: 30 seconds
	Timeout time.Duration

	// Detached runs the operation on a context that keeps the caller's
	// values but not its cancellation. The operation then ends only by
	// returning or by reaching Timeout.
	Detached bool
}

// Timeout wraps operations with a timeout.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a new timeout wrapper.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Timeout{config: config}
}

// Execute runs the operation with a timeout. A deadline hit is reported as
// ErrTimeout. For attached timeouts, caller cancellation returns ctx.Err().
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	base := ctx
	if t.config.Detached {
		base = context.WithoutCancel(ctx)
	}
	runCtx, cancel := context.WithTimeout(base, t.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(runCtx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return runCtx.Err()
	}
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}
