// Package profiler resolves operation signatures to their fastest kernel.
//
// A Session resolves each signature against a cache.Store. A cached entry
// is returned without benchmarking. On a miss the session enumerates
// candidates, benchmarks them on a bounded pool of device slots, persists
// the fastest one, and counts the signature as generated.
//
// Resolution steps for one signature always run in this order:
//
//  1. Derive the table name from the version manager.
//  2. Check the table exists, creating it if not (a new table is a miss).
//  3. Look the signature key up in the table.
//  4. Benchmark every enumerated candidate.
//  5. Fail with ErrNoWorkingCandidate if none succeeded.
//  6. Store the minimum-latency candidate, first enumerated on ties.
//  7. Count the signature as generated.
//
// Concurrent calls for the same signature share one resolution. Candidate
// failures and timeouts are recorded but never fail the session on their
// own.
//
// Run is the entry point used by the compiler: it builds signatures for a
// batch of ops, resolves them, and logs "generated <n> profilers" once.
package profiler
