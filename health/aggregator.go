package health

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a full CheckAll run.
const DefaultTimeout = 10 * time.Second

// Report pairs a checker name with its result.
type Report struct {
	Name   string
	Result Result
}

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	// Timeout is the maximum time to wait for all checks.
	// Default: 10 seconds
	Timeout time.Duration
}

// Aggregator runs a set of checkers as one unit.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Ordering: CheckAll returns reports in registration order.
type Aggregator struct {
	timeout time.Duration

	mu       sync.RWMutex
	checkers []Checker
}

// NewAggregator creates an Aggregator. A zero config uses DefaultTimeout.
func NewAggregator(config ...AggregatorConfig) *Aggregator {
	timeout := DefaultTimeout
	if len(config) > 0 && config[0].Timeout > 0 {
		timeout = config[0].Timeout
	}
	return &Aggregator{timeout: timeout}
}

// Register adds c. A checker with the same name is replaced in place.
func (a *Aggregator) Register(c Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, existing := range a.checkers {
		if existing.Name() == c.Name() {
			a.checkers[i] = c
			return
		}
	}
	a.checkers = append(a.checkers, c)
}

// Names returns the registered checker names in registration order.
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, len(a.checkers))
	for i, c := range a.checkers {
		names[i] = c.Name()
	}
	return names
}

// Check runs the checker registered under name.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	idx := slices.IndexFunc(a.checkers, func(c Checker) bool { return c.Name() == name })
	var c Checker
	if idx >= 0 {
		c = a.checkers[idx]
	}
	a.mu.RUnlock()

	if c == nil {
		return Result{}, ErrCheckerNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return runCheck(ctx, c), nil
}

// CheckAll runs every registered checker concurrently.
func (a *Aggregator) CheckAll(ctx context.Context) []Report {
	a.mu.RLock()
	checkers := slices.Clone(a.checkers)
	a.mu.RUnlock()

	reports := make([]Report, len(checkers))
	if len(checkers) == 0 {
		return reports
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			reports[i] = Report{Name: c.Name(), Result: runCheck(ctx, c)}
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// Overall folds reports into one status: Unhealthy if any report is
// unhealthy, else Degraded if any is degraded, else Healthy.
func Overall(reports []Report) Status {
	status := StatusHealthy
	for _, r := range reports {
		if r.Result.Status > status {
			status = r.Result.Status
		}
	}
	return status
}

func runCheck(ctx context.Context, c Checker) Result {
	start := time.Now()
	resultCh := make(chan Result, 1)

	go func() {
		result := c.Check(ctx)
		if result.Timestamp.IsZero() {
			result.Timestamp = start
		}
		resultCh <- result
	}()

	select {
	case result := <-resultCh:
		result.Duration = time.Since(start)
		return result
	case <-ctx.Done():
		return Result{
			Status:    StatusUnhealthy,
			Message:   "check timed out",
			Error:     ErrCheckTimeout,
			Duration:  time.Since(start),
			Timestamp: start,
		}
	}
}
