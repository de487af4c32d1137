package profiler

import (
	"errors"
	"time"

	"github.com/jonwraymond/profcache/cache"
	"github.com/jonwraymond/profcache/dispatch"
	"github.com/jonwraymond/profcache/observe"
)

// DefaultCandidateTimeout bounds a single candidate benchmark.
const DefaultCandidateTimeout = 5 * time.Minute

// Option configures a Session.
type Option func(*Session) error

// WithLogger sets the session logger.
func WithLogger(l observe.Logger) Option {
	return func(s *Session) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

// WithObserver takes the logger, tracer, and meter from obs.
func WithObserver(obs observe.Observer) Option {
	return func(s *Session) error {
		if obs == nil {
			return nil
		}
		m, err := observe.NewMetrics(obs.Meter())
		if err != nil {
			return err
		}
		s.logger = obs.Logger()
		s.tracer = observe.NewTracer(obs.Tracer())
		s.metrics = m
		return nil
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observe.Metrics) Option {
	return func(s *Session) error {
		if m != nil {
			s.metrics = m
		}
		return nil
	}
}

// WithTracer sets the tracer.
func WithTracer(t observe.Tracer) Option {
	return func(s *Session) error {
		if t != nil {
			s.tracer = t
		}
		return nil
	}
}

// WithPool shares a device-slot pool between sessions.
func WithPool(p *dispatch.Pool) Option {
	return func(s *Session) error {
		if p != nil {
			s.pool = p
		}
		return nil
	}
}

// WithCandidateTimeout sets the wall-clock limit for one candidate benchmark.
func WithCandidateTimeout(d time.Duration) Option {
	return func(s *Session) error {
		if d <= 0 {
			return errors.New("profiler: candidate timeout must be positive")
		}
		s.candidateTimeout = d
		return nil
	}
}

// WithLaunchRate limits how many candidate benchmarks start per second.
func WithLaunchRate(perSecond float64, burst int) Option {
	return func(s *Session) error {
		if perSecond > 0 {
			s.limiter = dispatch.NewLimiter(dispatch.LimiterConfig{Rate: perSecond, Burst: burst})
		}
		return nil
	}
}

// WithWriteRetry retries failed cache writes. Only storage failures are
// retried. Without this option a failed write ends the resolution.
func WithWriteRetry(config dispatch.RetryConfig) Option {
	return func(s *Session) error {
		config.RetryIf = func(err error) bool { return errors.Is(err, cache.ErrStorage) }
		s.writeRetry = dispatch.NewRetry(config)
		return nil
	}
}

// WithClock sets the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) Option {
	return func(s *Session) error {
		if id != "" {
			s.id = id
		}
		return nil
	}
}
