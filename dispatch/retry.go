package dispatch

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryConfig configures Retry. Delays grow exponentially from
// InitialDelay and are capped at MaxDelay.
type RetryConfig struct {
	// MaxAttempts counts the first attempt. Default: 3
	MaxAttempts int

	// InitialDelay precedes the first retry. Default: 50ms
	InitialDelay time.Duration

	// MaxDelay caps every delay. Default: 2s
	MaxDelay time.Duration

	// Multiplier grows the delay per attempt. Default: 2.0
	Multiplier float64

	// Jitter adds up to 25% to each delay, so writers that collided on a
	// shared cache location do not retry in lockstep.
	Jitter bool

	// RetryIf selects retryable errors; nil retries every error. Context
	// errors are never retried.
	RetryIf func(err error) bool

	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry re-runs an idempotent operation with backoff.
//
// Contract:
//   - Concurrency: a Retry is immutable and safe for concurrent use.
//   - Context: cancellation ends the backoff wait with ctx.Err().
//   - Errors: the last operation error is returned unchanged.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a Retry, filling zero fields with defaults.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 50 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 2 * time.Second
	}
	if config.Multiplier < 1 {
		config.Multiplier = 2.0
	}
	return &Retry{config: config}
}

// Config returns the effective configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

// Execute runs op until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil || !r.retryable(err) || attempt >= r.config.MaxAttempts {
			return err
		}

		delay := r.backoff(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Retry) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return r.config.RetryIf == nil || r.config.RetryIf(err)
}

// backoff returns the wait after the given failed attempt (1-based).
func (r *Retry) backoff(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay)
	for i := 1; i < attempt && delay < float64(r.config.MaxDelay); i++ {
		delay *= r.config.Multiplier
	}
	d := min(time.Duration(delay), r.config.MaxDelay)

	if r.config.Jitter && d >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		d += time.Duration(rand.Int64N(int64(d / 4)))
	}
	return d
}
