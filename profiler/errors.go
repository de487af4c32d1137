package profiler

import (
	"errors"
	"fmt"

	"github.com/jonwraymond/profcache/signature"
)

// Sentinel errors for profiling.
var (
	// ErrNoWorkingCandidate is matched by *NoWorkingCandidateError.
	ErrNoWorkingCandidate = errors.New("profiler: no working candidate")

	// ErrCandidateTimeout marks a candidate benchmark that exceeded its timeout.
	ErrCandidateTimeout = errors.New("profiler: candidate timed out")

	// ErrInvalidLatency marks a benchmark that reported NaN, Inf or a negative latency.
	ErrInvalidLatency = errors.New("profiler: invalid latency")

	// ErrSessionFinished is returned by Resolve after Finish.
	ErrSessionFinished = errors.New("profiler: session finished")

	// ErrMissingCollaborator is returned by NewSession when a required dependency is nil.
	ErrMissingCollaborator = errors.New("profiler: missing collaborator")
)

// NoWorkingCandidateError reports that every candidate for a signature failed.
type NoWorkingCandidateError struct {
	Signature signature.Signature
	Table     string
	Failures  []BenchmarkResult
}

func (e *NoWorkingCandidateError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("profiler: no working candidate for %s: no candidates enumerated", e.Signature)
	}
	return fmt.Sprintf("profiler: no working candidate for %s: %d candidates failed, first: %v",
		e.Signature, len(e.Failures), e.Failures[0].Err)
}

// Is reports ErrNoWorkingCandidate as a match.
func (e *NoWorkingCandidateError) Is(target error) bool {
	return target == ErrNoWorkingCandidate
}
