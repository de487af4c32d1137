package profiler

import (
	"context"

	"github.com/jonwraymond/profcache/cache"
	"github.com/jonwraymond/profcache/observe"
	"github.com/jonwraymond/profcache/signature"
	"github.com/jonwraymond/profcache/version"
)

// RunConfig configures a Run.
type RunConfig struct {
	// Target identifies the hardware and toolchain the results are valid for.
	Target string

	// CacheDir is opened as a FileStore when Store is nil.
	CacheDir string

	// Store overrides the cache location. Run does not close it.
	Store cache.Store

	// Versions defaults to version.Defaults().
	Versions *version.Manager

	// Builder defaults to signature.NewBuilder().
	Builder *signature.Builder

	Enumerator CandidateEnumerator
	Executor   BenchmarkExecutor

	// Logger receives both store and session records.
	Logger observe.Logger

	// Options are applied to the session after WithLogger.
	Options []Option
}

// OpResult pairs an op with its resolution.
type OpResult struct {
	Op string
	Result
}

// Report is returned by Run.
type Report struct {
	Summary Summary
	Ops     []OpResult
}

// Run profiles a batch of ops for one target. It builds every signature
// first, so an op that cannot be canonicalized fails the run before any
// benchmarking. Ops with identical signatures share one resolution. The
// session always ends with a "generated <n> profilers" record.
func Run(ctx context.Context, cfg RunConfig, ops []signature.Op) (report Report, err error) {
	logger := cfg.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}
	builder := cfg.Builder
	if builder == nil {
		builder = signature.NewBuilder()
	}
	versions := cfg.Versions
	if versions == nil {
		if versions, err = version.New(nil); err != nil {
			return Report{}, err
		}
	}

	sigs := make([]signature.Signature, len(ops))
	for i, op := range ops {
		sig, err := builder.Build(cfg.Target, op)
		if err != nil {
			return Report{}, err
		}
		sigs[i] = sig
	}

	store := cfg.Store
	if store == nil {
		fs, err := cache.Open(cfg.CacheDir, cache.WithLogger(logger))
		if err != nil {
			return Report{}, err
		}
		defer func() {
			if cerr := fs.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		store = fs
	}

	opts := append([]Option{WithLogger(logger)}, cfg.Options...)
	session, err := NewSession(store, versions, cfg.Enumerator, cfg.Executor, opts...)
	if err != nil {
		return Report{}, err
	}

	unique := make([]signature.Signature, 0, len(sigs))
	index := make(map[string]int, len(sigs))
	for _, sig := range sigs {
		k := sig.Key()
		if _, ok := index[k]; !ok {
			index[k] = len(unique)
			unique = append(unique, sig)
		}
	}

	results, resolveErr := session.ResolveAll(ctx, unique)
	report.Summary = session.Finish(ctx)

	report.Ops = make([]OpResult, len(ops))
	for i, op := range ops {
		report.Ops[i] = OpResult{Op: op.Name, Result: results[index[sigs[i].Key()]]}
	}
	return report, resolveErr
}
