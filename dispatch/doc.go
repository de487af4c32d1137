// Package dispatch provides the concurrency controls used while benchmarking.
//
// Benchmarks compete for a small number of device slots and may hang, so the
// profiler composes four primitives:
//
//   - Pool: a blocking, context-aware semaphore over device slots.
//   - Timeout: bounds a single operation. With Detached set, the operation
//     ignores caller cancellation and ends only when it returns or its own
//     deadline passes.
//   - Limiter: an optional launch rate for candidate benchmarks.
//   - Retry: bounded attempts with backoff, used for cache writes on
//     unreliable filesystems.
//
// # Usage
//
//	pool := dispatch.NewPool(dispatch.PoolConfig{Slots: 2})
//	timeout := dispatch.NewTimeout(dispatch.TimeoutConfig{Timeout: time.Minute, Detached: true})
//
//	err := pool.Execute(ctx, func(ctx context.Context) error {
//	    return timeout.Execute(ctx, runBenchmark)
//	})
package dispatch
