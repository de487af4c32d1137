package profiler

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/profcache/cache"
	"github.com/jonwraymond/profcache/signature"
)

// Result is the outcome of resolving one signature.
type Result struct {
	Signature signature.Signature
	Entry     cache.Entry
	Err       error
}

// ResolveAll resolves sigs concurrently, at most one per device slot.
//
// Signature errors, storage errors, and cancellation stop the batch and are
// returned immediately. Other per-signature failures, such as
// *NoWorkingCandidateError, are recorded in the matching Result and
// returned together after the whole batch has run.
func (s *Session) ResolveAll(ctx context.Context, sigs []signature.Signature) ([]Result, error) {
	results := make([]Result, len(sigs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.pool.Size())
	for i, sig := range sigs {
		results[i].Signature = sig
		g.Go(func() error {
			entry, err := s.Resolve(gctx, sig)
			results[i].Entry = entry
			results[i].Err = err
			if isFatal(err) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

// isFatal reports whether err must stop the whole batch.
func isFatal(err error) bool {
	if err == nil {
		return false
	}
	var sigErr *signature.Error
	return errors.As(err, &sigErr) ||
		errors.Is(err, cache.ErrStorage) ||
		errors.Is(err, ErrSessionFinished) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
