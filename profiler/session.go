package profiler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/profcache/cache"
	"github.com/jonwraymond/profcache/dispatch"
	"github.com/jonwraymond/profcache/observe"
	"github.com/jonwraymond/profcache/signature"
	"github.com/jonwraymond/profcache/version"
)

// Summary aggregates one session. Counts are per resolution, so callers
// that shared a resolution through deduplication are counted once.
type Summary struct {
	Session   string
	Resolved  int // Hits + Generated
	Hits      int
	Generated int
	Failed    int
}

// Session is one orchestration run.
//
// Contract:
//   - Concurrency: Resolve and ResolveAll are safe for concurrent use.
//   - Dedup: concurrent resolutions of one (table, key) share a single run.
//   - Errors: storage failures and signature errors are returned as-is;
//     all-candidates-failed is *NoWorkingCandidateError and is remembered
//     for the rest of the session.
type Session struct {
	id       string
	store    cache.Store
	versions *version.Manager
	enum     CandidateEnumerator
	exec     BenchmarkExecutor

	logger  observe.Logger
	tracer  observe.Tracer
	metrics observe.Metrics
	mw      *observe.Middleware

	pool             *dispatch.Pool
	limiter          *dispatch.Limiter
	candidateTimeout time.Duration
	writeRetry       *dispatch.Retry
	now              func() time.Time

	flights singleflight.Group
	failed  sync.Map // flight key -> *NoWorkingCandidateError

	hits      atomic.Int64
	generated atomic.Int64
	failures  atomic.Int64

	finishOnce sync.Once
	finished   atomic.Bool
	summary    Summary
}

// NewSession creates a session over store.
func NewSession(store cache.Store, versions *version.Manager, enum CandidateEnumerator, exec BenchmarkExecutor, opts ...Option) (*Session, error) {
	switch {
	case store == nil:
		return nil, fmt.Errorf("%w: store", ErrMissingCollaborator)
	case versions == nil:
		return nil, fmt.Errorf("%w: version manager", ErrMissingCollaborator)
	case enum == nil:
		return nil, fmt.Errorf("%w: candidate enumerator", ErrMissingCollaborator)
	case exec == nil:
		return nil, fmt.Errorf("%w: benchmark executor", ErrMissingCollaborator)
	}

	s := &Session{
		id:               uuid.NewString(),
		store:            store,
		versions:         versions,
		enum:             enum,
		exec:             exec,
		logger:           observe.NopLogger(),
		tracer:           observe.NopTracer(),
		metrics:          observe.NopMetrics(),
		candidateTimeout: DefaultCandidateTimeout,
		now:              time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.pool == nil {
		s.pool = dispatch.NewPool(dispatch.PoolConfig{})
	}
	s.logger = s.logger.WithFields(observe.F("session", s.id))
	s.mw = observe.NewMiddleware(s.tracer, s.metrics, s.logger)
	return s, nil
}

// ID returns the session identifier stamped on stored entries.
func (s *Session) ID() string {
	return s.id
}

// Resolve returns the cached or newly benchmarked winner for sig.
// Concurrent callers for the same signature share one resolution. A caller
// whose context is still live re-runs the resolution when the shared one was
// canceled by another caller.
func (s *Session) Resolve(ctx context.Context, sig signature.Signature) (cache.Entry, error) {
	if s.finished.Load() {
		return cache.Entry{}, ErrSessionFinished
	}
	if err := ctx.Err(); err != nil {
		return cache.Entry{}, err
	}

	table := s.versions.TableName(sig.Target, sig.OpKind)
	key := sig.Key()
	flightKey := table + "\x00" + key
	if err, ok := s.failed.Load(flightKey); ok {
		return cache.Entry{}, err.(*NoWorkingCandidateError)
	}

	meta := observe.SignatureMeta{
		Target: sig.Target,
		Kind:   sig.OpKind,
		Op:     sig.Op,
		Table:  table,
		Hash:   sig.Hash(),
	}

	for {
		ch := s.flights.DoChan(flightKey, func() (any, error) {
			if err, ok := s.failed.Load(flightKey); ok {
				return flight{}, err.(*NoWorkingCandidateError)
			}
			var entry cache.Entry
			resolve := s.mw.Wrap(func(ctx context.Context, meta observe.SignatureMeta) (observe.Outcome, error) {
				e, outcome, err := s.resolve(ctx, sig, key, meta)
				entry = e
				return outcome, err
			})
			_, err := resolve(ctx, meta)
			return flight{entry: entry, aborted: err != nil && ctx.Err() != nil}, err
		})

		select {
		case res := <-ch:
			f := res.Val.(flight)
			if res.Err != nil {
				// The flight ran on another caller's context and was cut
				// short by it. That is not a result for this caller.
				if f.aborted && ctx.Err() == nil {
					continue
				}
				return cache.Entry{}, res.Err
			}
			e := f.entry
			e.Params = maps.Clone(e.Params)
			return e, nil
		case <-ctx.Done():
			return cache.Entry{}, ctx.Err()
		}
	}
}

// flight is the shared outcome of one deduplicated resolution.
type flight struct {
	entry   cache.Entry
	aborted bool
}

// resolve runs the resolution steps for one signature.
func (s *Session) resolve(ctx context.Context, sig signature.Signature, key string, meta observe.SignatureMeta) (cache.Entry, observe.Outcome, error) {
	table := meta.Table
	logger := s.logger.WithSignature(meta)

	exists, err := s.store.TableExists(ctx, table)
	if err != nil {
		return cache.Entry{}, observe.OutcomeFailed, err
	}
	if !exists {
		if err := s.store.EnsureTable(ctx, table); err != nil {
			return cache.Entry{}, observe.OutcomeFailed, err
		}
	} else {
		entry, ok, err := s.store.Get(ctx, table, key)
		if err != nil {
			return cache.Entry{}, observe.OutcomeFailed, err
		}
		if ok {
			s.hits.Add(1)
			logger.Debug(ctx, "cache hit", observe.F("algorithm", entry.Algorithm))
			return entry, observe.OutcomeHit, nil
		}
	}

	candidates, err := s.enum.Enumerate(ctx, sig)
	if err != nil {
		if ctx.Err() != nil {
			return cache.Entry{}, observe.OutcomeFailed, ctx.Err()
		}
		return cache.Entry{}, observe.OutcomeFailed, fmt.Errorf("profiler: enumerate candidates for %s: %w", sig, err)
	}
	logger.Info(ctx, "profiling signature", observe.F("candidates", len(candidates)))

	results, err := s.benchmark(ctx, sig, meta, candidates)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		// Interrupted resolutions stay misses and are not remembered.
		return cache.Entry{}, observe.OutcomeFailed, err
	}

	best := pickWinner(results)
	if best < 0 {
		nwc := &NoWorkingCandidateError{Signature: sig, Table: table, Failures: results}
		s.failed.Store(table+"\x00"+key, nwc)
		s.failures.Add(1)
		return cache.Entry{}, observe.OutcomeFailed, nwc
	}

	winner := results[best]
	entry := cache.Entry{
		Algorithm: winner.Candidate.ID,
		LatencyMs: winner.LatencyMs,
		CreatedAt: s.now().UTC(),
		Session:   s.id,
		Signature: sig.String(),
	}
	if len(winner.Candidate.Params) > 0 {
		entry.Params = maps.Clone(winner.Candidate.Params)
	}

	if err := s.put(ctx, table, key, entry); err != nil {
		return cache.Entry{}, observe.OutcomeFailed, err
	}

	s.generated.Add(1)
	logger.Info(ctx, "selected winner",
		observe.F("algorithm", entry.Algorithm),
		observe.F("latency_ms", entry.LatencyMs),
		observe.F("succeeded", countOK(results)),
		observe.F("candidates", len(results)),
	)
	return entry, observe.OutcomeGenerated, nil
}

// benchmark runs every candidate, each holding one device slot. It stops
// launching new candidates once ctx is done, waits for launched ones, and
// returns the reason launching stopped. Results keep enumeration order.
func (s *Session) benchmark(ctx context.Context, sig signature.Signature, meta observe.SignatureMeta, candidates []Candidate) ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, len(candidates))
	timeout := dispatch.NewTimeout(dispatch.TimeoutConfig{Timeout: s.candidateTimeout, Detached: true})
	logger := s.logger.WithSignature(meta)

	var (
		wg        sync.WaitGroup
		launchErr error
	)
	for i, c := range candidates {
		results[i].Candidate = c

		if launchErr = s.limiter.Wait(ctx); launchErr != nil {
			break
		}
		if launchErr = s.pool.Acquire(ctx); launchErr != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.pool.Release()

			r := s.runCandidate(ctx, timeout, c, sig)
			results[i] = r
			s.metrics.RecordBenchmark(ctx, meta, c.ID, r.LatencyMs, r.Err)
			if r.Err != nil {
				logger.Warn(ctx, "candidate failed", observe.F("candidate", c.ID), observe.F("error", r.Err))
			} else {
				logger.Debug(ctx, "candidate benchmarked", observe.F("candidate", c.ID), observe.F("latency_ms", r.LatencyMs))
			}
		}()
	}
	wg.Wait()
	return results, launchErr
}

func (s *Session) runCandidate(ctx context.Context, timeout *dispatch.Timeout, c Candidate, sig signature.Signature) BenchmarkResult {
	start := time.Now()
	var latency float64
	err := timeout.Execute(ctx, func(ctx context.Context) error {
		l, err := s.exec.Run(ctx, c, sig)
		latency = l
		return err
	})
	r := BenchmarkResult{Candidate: c, Duration: time.Since(start)}

	switch {
	case errors.Is(err, dispatch.ErrTimeout):
		r.Err = fmt.Errorf("%w: %s after %s", ErrCandidateTimeout, c.ID, s.candidateTimeout)
	case err != nil:
		r.Err = err
	case math.IsNaN(latency) || math.IsInf(latency, 0) || latency < 0:
		r.Err = fmt.Errorf("%w: %s reported %v", ErrInvalidLatency, c.ID, latency)
	default:
		r.LatencyMs = latency
	}
	return r
}

func (s *Session) put(ctx context.Context, table, key string, entry cache.Entry) error {
	if s.writeRetry == nil {
		return s.store.Put(ctx, table, key, entry)
	}
	return s.writeRetry.Execute(ctx, func(ctx context.Context) error {
		return s.store.Put(ctx, table, key, entry)
	})
}

// Summary returns the current session counts.
func (s *Session) Summary() Summary {
	hits := int(s.hits.Load())
	generated := int(s.generated.Load())
	return Summary{
		Session:   s.id,
		Resolved:  hits + generated,
		Hits:      hits,
		Generated: generated,
		Failed:    int(s.failures.Load()),
	}
}

// Finish closes the session to new resolutions and logs
// "generated <n> profilers". Later calls return the same summary without
// logging again.
func (s *Session) Finish(ctx context.Context) Summary {
	s.finishOnce.Do(func() {
		s.finished.Store(true)
		s.summary = s.Summary()
		s.logger.Info(ctx, fmt.Sprintf("generated %d profilers", s.summary.Generated),
			observe.F("hits", s.summary.Hits),
			observe.F("failed", s.summary.Failed),
		)
	})
	return s.summary
}

func countOK(results []BenchmarkResult) int {
	n := 0
	for _, r := range results {
		if r.OK() {
			n++
		}
	}
	return n
}
