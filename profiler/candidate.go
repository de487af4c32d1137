package profiler

import (
	"context"
	"time"

	"github.com/jonwraymond/profcache/signature"
)

// Candidate is one kernel variant eligible for a signature.
type Candidate struct {
	ID     string
	Params map[string]string
}

// CandidateEnumerator lists the candidates for a signature.
//
// Contract:
//   - Concurrency: called concurrently for distinct signatures.
//   - Ordering: the returned order is the tie-break order for winner selection.
type CandidateEnumerator interface {
	Enumerate(ctx context.Context, sig signature.Signature) ([]Candidate, error)
}

// BenchmarkExecutor compiles and times one candidate.
//
// Contract:
//   - Concurrency: called concurrently, once per held device slot.
//   - Context: must return promptly once ctx is done; ctx carries the
//     candidate timeout.
//   - Errors: any error marks the candidate as failed.
type BenchmarkExecutor interface {
	Run(ctx context.Context, c Candidate, sig signature.Signature) (latencyMs float64, err error)
}

// EnumeratorFunc adapts a function to CandidateEnumerator.
type EnumeratorFunc func(ctx context.Context, sig signature.Signature) ([]Candidate, error)

// Enumerate calls f.
func (f EnumeratorFunc) Enumerate(ctx context.Context, sig signature.Signature) ([]Candidate, error) {
	return f(ctx, sig)
}

// ExecutorFunc adapts a function to BenchmarkExecutor.
type ExecutorFunc func(ctx context.Context, c Candidate, sig signature.Signature) (float64, error)

// Run calls f.
func (f ExecutorFunc) Run(ctx context.Context, c Candidate, sig signature.Signature) (float64, error) {
	return f(ctx, c, sig)
}

// BenchmarkResult is the outcome of benchmarking one candidate.
type BenchmarkResult struct {
	Candidate Candidate
	LatencyMs float64
	Duration  time.Duration
	Err       error
}

// OK reports whether the benchmark produced a usable latency.
func (r BenchmarkResult) OK() bool {
	return r.Err == nil
}

// pickWinner returns the index of the successful result with the strictly
// smallest latency, or -1 if none succeeded. Earlier results win ties.
func pickWinner(results []BenchmarkResult) int {
	best := -1
	for i, r := range results {
		if !r.OK() {
			continue
		}
		if best < 0 || r.LatencyMs < results[best].LatencyMs {
			best = i
		}
	}
	return best
}
