package profiler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/profcache/cache"
	"github.com/jonwraymond/profcache/dispatch"
	"github.com/jonwraymond/profcache/signature"
	"github.com/jonwraymond/profcache/version"
)

func newTestSession(t *testing.T, store cache.Store, bench *fakeBench, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock), WithSessionID("test-session")}, opts...)
	s, err := NewSession(store, version.MustNew(nil), bench, bench, opts...)
	require.NoError(t, err)
	return s
}

func TestNewSession_RequiresCollaborators(t *testing.T) {
	bench := newFakeBench("a", 1.0)
	store := cache.NewMemoryStore()
	versions := version.MustNew(nil)

	_, err := NewSession(nil, versions, bench, bench)
	assert.ErrorIs(t, err, ErrMissingCollaborator)
	_, err = NewSession(store, nil, bench, bench)
	assert.ErrorIs(t, err, ErrMissingCollaborator)
	_, err = NewSession(store, versions, nil, bench)
	assert.ErrorIs(t, err, ErrMissingCollaborator)
	_, err = NewSession(store, versions, bench, nil)
	assert.ErrorIs(t, err, ErrMissingCollaborator)

	_, err = NewSession(store, versions, bench, bench, WithCandidateTimeout(0))
	assert.Error(t, err)
}

func TestResolve_MissThenHit(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := cache.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	bench := newFakeBench("algo_a", 2.0, "algo_b", 1.0)
	s := newTestSession(t, store, bench)
	sig := buildSig(t, gemmOp(4))

	first, err := s.Resolve(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, "algo_b", first.Algorithm)
	assert.Equal(t, 1.0, first.LatencyMs)
	assert.Equal(t, "test-session", first.Session)
	assert.Equal(t, fixedTime, first.CreatedAt)
	assert.Equal(t, map[string]string{"variant": "algo_b"}, first.Params)

	second, err := s.Resolve(ctx, sig)
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, string(a), string(b), "repeat resolution must return an identical entry")
	assert.Equal(t, 2, bench.totalCalls(), "hit must not benchmark")

	assert.Equal(t, Summary{Session: "test-session", Resolved: 2, Hits: 1, Generated: 1}, s.Summary())
}

func TestResolve_WinnerSelection(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name  string
		pairs []any
		want  string
	}{
		{"strict minimum", []any{"a", 3.0, "b", 1.0, "c", 2.0}, "b"},
		{"tie goes to first enumerated", []any{"a", 2.0, "b", 1.0, "c", 1.0}, "b"},
		{"tie at head", []any{"a", 1.0, "b", 1.0}, "a"},
		{"failures excluded", []any{"a", nan, "b", 5.0, "c", nan}, "b"},
		{"zero latency is valid", []any{"a", 0.5, "b", 0.0}, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bench := newFakeBench(tt.pairs...)
			s := newTestSession(t, cache.NewMemoryStore(), bench)

			got, err := s.Resolve(context.Background(), buildSig(t, gemmOp(4)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Algorithm)
		})
	}
}

func TestResolve_InvalidLatencyIsCandidateFailure(t *testing.T) {
	ctx := context.Background()
	for _, bad := range []float64{-1, math.Inf(1)} {
		bench := newFakeBench("bad", bad, "good", 7.0)
		s := newTestSession(t, cache.NewMemoryStore(), bench)

		got, err := s.Resolve(ctx, buildSig(t, gemmOp(4)))
		require.NoError(t, err)
		assert.Equal(t, "good", got.Algorithm)
	}

	bench := newFakeBench("bad", -3.0)
	s := newTestSession(t, cache.NewMemoryStore(), bench)
	_, err := s.Resolve(ctx, buildSig(t, gemmOp(4)))
	var nwc *NoWorkingCandidateError
	require.ErrorAs(t, err, &nwc)
	assert.ErrorIs(t, nwc.Failures[0].Err, ErrInvalidLatency)
}

func TestResolve_AllCandidatesFail(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()
	bench := newFakeBench("a", math.NaN(), "b", math.NaN())
	s := newTestSession(t, store, bench)
	sig := buildSig(t, gemmOp(4))

	_, err := s.Resolve(ctx, sig)
	require.ErrorIs(t, err, ErrNoWorkingCandidate)

	var nwc *NoWorkingCandidateError
	require.ErrorAs(t, err, &nwc)
	assert.Equal(t, "T_gemm_1", nwc.Table)
	require.Len(t, nwc.Failures, 2)
	assert.Equal(t, "a", nwc.Failures[0].Candidate.ID)
	assert.ErrorIs(t, nwc.Failures[1].Err, errBenchFailed)

	_, ok, err := store.Get(ctx, "T_gemm_1", sig.Key())
	require.NoError(t, err)
	assert.False(t, ok, "failed resolution must not write an entry")

	// Remembered for the session: no second round of benchmarks.
	_, err = s.Resolve(ctx, sig)
	assert.ErrorIs(t, err, ErrNoWorkingCandidate)
	assert.Equal(t, 2, bench.totalCalls())
	assert.Equal(t, 1, s.Summary().Failed)
	assert.Equal(t, 0, s.Summary().Generated)
}

func TestResolve_NoCandidates(t *testing.T) {
	bench := newFakeBench()
	s := newTestSession(t, cache.NewMemoryStore(), bench)

	_, err := s.Resolve(context.Background(), buildSig(t, gemmOp(4)))
	assert.ErrorIs(t, err, ErrNoWorkingCandidate)
	assert.Contains(t, err.Error(), "no candidates enumerated")
}

func TestResolve_EnumeratorError(t *testing.T) {
	boom := errors.New("enumeration unavailable")
	enum := EnumeratorFunc(func(context.Context, signature.Signature) ([]Candidate, error) { return nil, boom })
	bench := newFakeBench("a", 1.0)
	s, err := NewSession(cache.NewMemoryStore(), version.MustNew(nil), enum, bench)
	require.NoError(t, err)

	_, err = s.Resolve(context.Background(), buildSig(t, gemmOp(4)))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoWorkingCandidate)
}

func TestResolve_CandidateTimeout(t *testing.T) {
	bench := newFakeBench("slow", 0.1, "fast", 4.0)
	bench.block["slow"] = make(chan struct{}) // never released
	s := newTestSession(t, cache.NewMemoryStore(), bench, WithCandidateTimeout(20*time.Millisecond))

	got, err := s.Resolve(context.Background(), buildSig(t, gemmOp(4)))
	require.NoError(t, err)
	assert.Equal(t, "fast", got.Algorithm)

	bench2 := newFakeBench("slow", 0.1)
	bench2.block["slow"] = make(chan struct{})
	s2 := newTestSession(t, cache.NewMemoryStore(), bench2, WithCandidateTimeout(20*time.Millisecond))
	_, err = s2.Resolve(context.Background(), buildSig(t, gemmOp(4)))
	var nwc *NoWorkingCandidateError
	require.ErrorAs(t, err, &nwc)
	assert.ErrorIs(t, nwc.Failures[0].Err, ErrCandidateTimeout)
}

func TestResolve_ConcurrentCallsShareOneRun(t *testing.T) {
	ctx := context.Background()
	bench := newFakeBench("a", 2.0, "b", 1.0)
	bench.delay = 20 * time.Millisecond
	store := cache.NewMemoryStore()
	s := newTestSession(t, store, bench)
	sig := buildSig(t, gemmOp(4))

	const callers = 16
	entries := make([]cache.Entry, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries[i], errs[i] = s.Resolve(ctx, sig)
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, entries[0], entries[i])
	}
	assert.Equal(t, 1, bench.callCount("a"))
	assert.Equal(t, 1, bench.callCount("b"))
	assert.Equal(t, 1, s.Summary().Generated)
}

func TestResolve_DistinctSignaturesBothGenerated(t *testing.T) {
	ctx := context.Background()
	bench := newFakeBench("a", 1.0)
	s := newTestSession(t, cache.NewMemoryStore(), bench)

	_, err := s.Resolve(ctx, buildSig(t, gemmOp(4)))
	require.NoError(t, err)
	_, err = s.Resolve(ctx, buildSig(t, gemmOp(16)))
	require.NoError(t, err)

	assert.Equal(t, 2, s.Summary().Generated)
}

func TestResolve_CandidatesBoundedByPool(t *testing.T) {
	bench := newFakeBench("a", 6.0, "b", 5.0, "c", 4.0, "d", 3.0, "e", 2.0, "f", 1.0)
	bench.delay = 10 * time.Millisecond
	pool := dispatch.NewPool(dispatch.PoolConfig{Slots: 2})
	s := newTestSession(t, cache.NewMemoryStore(), bench, WithPool(pool))

	got, err := s.Resolve(context.Background(), buildSig(t, gemmOp(4)))
	require.NoError(t, err)
	assert.Equal(t, "f", got.Algorithm)
	assert.LessOrEqual(t, int(bench.peak.Load()), 2)
	assert.LessOrEqual(t, pool.Metrics().MaxActive, 2)
	assert.Equal(t, 0, pool.Metrics().Active)
}

func TestResolve_CancellationLeavesMiss(t *testing.T) {
	bench := newFakeBench("a", 1.0, "b", 2.0)
	release := make(chan struct{})
	bench.block["a"] = release
	bench.started = make(chan string, 4)
	pool := dispatch.NewPool(dispatch.PoolConfig{Slots: 1})
	store := cache.NewMemoryStore()
	s := newTestSession(t, store, bench, WithPool(pool))
	sig := buildSig(t, gemmOp(4))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Resolve(ctx, sig)
		done <- err
	}()

	require.Equal(t, "a", <-bench.started)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// The in-flight candidate finishes; b is never launched.
	bench.mu.Lock()
	bench.block = map[string]chan struct{}{}
	bench.mu.Unlock()
	close(release)

	require.Eventually(t, func() bool {
		_, err := s.Resolve(context.Background(), sig)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, s.Summary().Failed, "canceled resolution must not be remembered as failed")
	assert.Equal(t, 1, s.Summary().Generated)
}

func TestResolve_FollowerOutlivesCanceledLeader(t *testing.T) {
	bench := newFakeBench("a", 1.0, "b", 2.0)
	release := make(chan struct{})
	bench.block["a"] = release
	bench.started = make(chan string, 8)
	pool := dispatch.NewPool(dispatch.PoolConfig{Slots: 1})
	s := newTestSession(t, cache.NewMemoryStore(), bench, WithPool(pool))
	sig := buildSig(t, gemmOp(4))

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)
	go func() {
		_, err := s.Resolve(leaderCtx, sig)
		leaderDone <- err
	}()
	require.Equal(t, "a", <-bench.started)

	type result struct {
		entry cache.Entry
		err   error
	}
	followerDone := make(chan result, 1)
	go func() {
		e, err := s.Resolve(context.Background(), sig)
		followerDone <- result{e, err}
	}()
	// Let the follower join the leader's flight.
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-leaderDone, context.Canceled)
	close(release)

	select {
	case r := <-followerDone:
		require.NoError(t, r.err)
		assert.Equal(t, "a", r.entry.Algorithm)
	case <-time.After(2 * time.Second):
		t.Fatal("follower did not finish")
	}
	assert.Equal(t, 1, s.Summary().Generated)
	assert.Equal(t, 0, s.Summary().Failed)
}

func TestResolve_CanceledBeforeStart(t *testing.T) {
	bench := newFakeBench("a", 1.0)
	s := newTestSession(t, cache.NewMemoryStore(), bench)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Resolve(ctx, buildSig(t, gemmOp(4)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, bench.totalCalls())
}

func TestResolve_StorageErrorNotRetriedByDefault(t *testing.T) {
	store := &faultyStore{Store: cache.NewMemoryStore(), putFails: 1}
	bench := newFakeBench("a", 1.0)
	s := newTestSession(t, store, bench)

	_, err := s.Resolve(context.Background(), buildSig(t, gemmOp(4)))
	require.ErrorIs(t, err, cache.ErrStorage)
	assert.Equal(t, 1, store.putCalls)
	assert.Equal(t, 0, s.Summary().Generated)
}

func TestResolve_WriteRetry(t *testing.T) {
	store := &faultyStore{Store: cache.NewMemoryStore(), putFails: 2}
	bench := newFakeBench("a", 1.0)
	s := newTestSession(t, store, bench, WithWriteRetry(dispatch.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}))

	got, err := s.Resolve(context.Background(), buildSig(t, gemmOp(4)))
	require.NoError(t, err)
	assert.Equal(t, "a", got.Algorithm)
	assert.Equal(t, 3, store.putCalls)
	assert.Equal(t, 1, s.Summary().Generated)
}

func TestResolve_LaunchRate(t *testing.T) {
	bench := newFakeBench("a", 3.0, "b", 2.0, "c", 1.0)
	s := newTestSession(t, cache.NewMemoryStore(), bench, WithLaunchRate(100, 1))

	start := time.Now()
	got, err := s.Resolve(context.Background(), buildSig(t, gemmOp(4)))
	require.NoError(t, err)
	assert.Equal(t, "c", got.Algorithm)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestFinish(t *testing.T) {
	ctx := context.Background()
	logs := &logCapture{}
	bench := newFakeBench("a", 1.0)
	s := newTestSession(t, cache.NewMemoryStore(), bench, WithLogger(logs.logger()))

	_, err := s.Resolve(ctx, buildSig(t, gemmOp(4)))
	require.NoError(t, err)

	sum := s.Finish(ctx)
	again := s.Finish(ctx)
	assert.Equal(t, sum, again)
	assert.Equal(t, 1, sum.Generated)
	assert.Equal(t, 1, logs.count(t, "generated 1 profilers"))

	_, err = s.Resolve(ctx, buildSig(t, gemmOp(4)))
	assert.ErrorIs(t, err, ErrSessionFinished)
}

func TestPickWinner(t *testing.T) {
	fail := errors.New("x")
	tests := []struct {
		name    string
		results []BenchmarkResult
		want    int
	}{
		{"empty", nil, -1},
		{"all failed", []BenchmarkResult{{Err: fail}, {Err: fail}}, -1},
		{"single", []BenchmarkResult{{LatencyMs: 3}}, 0},
		{"first of equals", []BenchmarkResult{{Err: fail}, {LatencyMs: 2}, {LatencyMs: 2}}, 1},
		{"later strictly smaller", []BenchmarkResult{{LatencyMs: 2}, {LatencyMs: 1.999}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pickWinner(tt.results); got != tt.want {
				t.Errorf("pickWinner() = %d, want %d", got, tt.want)
			}
		})
	}
}
