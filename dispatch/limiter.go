package dispatch

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// LimiterConfig configures the launch limiter.
type LimiterConfig struct {
	// Rate is the number of launches allowed per second. Zero or negative
	// means unlimited.
	Rate float64

	// Burst is the maximum burst size.
	// Default: 1
	Burst int
}

// Limiter paces operation launches with a token bucket. A nil *Limiter
// never blocks.
type Limiter struct {
	config LimiterConfig
	lim    *rate.Limiter
}

// NewLimiter creates a new limiter.
func NewLimiter(config LimiterConfig) *Limiter {
	if config.Burst <= 0 {
		config.Burst = 1
	}
	limit := rate.Inf
	if config.Rate > 0 {
		limit = rate.Limit(config.Rate)
	}
	return &Limiter{config: config, lim: rate.NewLimiter(limit, config.Burst)}
}

// Wait blocks until a launch is permitted or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.lim.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrRateLimitExceeded, err)
	}
	return nil
}

// Allow reports whether a launch is permitted now, consuming a token if so.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.lim.Allow()
}

// Execute waits for a launch token and runs op.
func (l *Limiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := l.Wait(ctx); err != nil {
		return err
	}
	return op(ctx)
}

// Config returns the limiter configuration.
func (l *Limiter) Config() LimiterConfig {
	return l.config
}
