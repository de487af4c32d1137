package health

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jonwraymond/profcache/cache"
	"github.com/jonwraymond/profcache/version"
)

// Verifier decodes every table in a cache location.
// *cache.FileStore implements it.
type Verifier interface {
	Verify(ctx context.Context) ([]cache.TableInfo, error)
}

// TableLister lists the tables present in a cache location.
type TableLister interface {
	Tables(ctx context.Context) ([]string, error)
}

// NewLocationChecker reports whether dir exists, is a directory, and
// accepts a probe file.
func NewLocationChecker(dir string) Checker {
	return NewCheckerFunc("location", func(ctx context.Context) Result {
		fi, err := os.Stat(dir)
		if err != nil {
			return Unhealthy("cache location is missing", err).
				WithDetails(map[string]any{"dir": dir})
		}
		if !fi.IsDir() {
			return Unhealthy("cache location is not a directory", ErrNotWritable).
				WithDetails(map[string]any{"dir": dir})
		}

		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return Unhealthy("cache location is not writable", fmt.Errorf("%w: %v", ErrNotWritable, err)).
				WithDetails(map[string]any{"dir": dir})
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)

		return Healthy("cache location is writable").WithDetails(map[string]any{"dir": dir})
	})
}

// NewTablesChecker reports Unhealthy when any table fails to decode.
// Lookups against a corrupt table fail with a storage error.
func NewTablesChecker(v Verifier) Checker {
	return NewCheckerFunc("tables", func(ctx context.Context) Result {
		infos, err := v.Verify(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Unhealthy("table verification interrupted", ctxErr)
		}

		entries := 0
		var corrupt []string
		for _, info := range infos {
			entries += info.Entries
			if info.Err != nil {
				corrupt = append(corrupt, info.Name)
			}
		}
		details := map[string]any{"tables": len(infos), "entries": entries}

		if err != nil {
			if len(corrupt) == 0 {
				return Unhealthy("table verification failed", err).WithDetails(details)
			}
			details["corrupt"] = corrupt
			return Unhealthy(fmt.Sprintf("%d of %d tables failed to decode", len(corrupt), len(infos)), err).
				WithDetails(details)
		}
		return Healthy(fmt.Sprintf("%d tables verified", len(infos))).WithDetails(details)
	})
}

// NewStaleTablesChecker reports Degraded when the location holds tables of a
// known kind at a version other than the current one. Such tables are never
// read again and only occupy space.
func NewStaleTablesChecker(l TableLister, versions *version.Manager) Checker {
	current := versions.Versions()
	kinds := make([]string, 0, len(current))
	for k := range current {
		kinds = append(kinds, k)
	}
	// Longest first so a kind ending in another kind matches whole.
	sort.Slice(kinds, func(i, j int) bool { return len(kinds[i]) > len(kinds[j]) })

	return NewCheckerFunc("stale_tables", func(ctx context.Context) Result {
		names, err := l.Tables(ctx)
		if err != nil {
			return Unhealthy("cannot list tables", err)
		}

		var stale []string
		for _, name := range names {
			kind, v, ok := splitTableName(name, kinds)
			if ok && v != current[kind] {
				stale = append(stale, name)
			}
		}
		if len(stale) > 0 {
			return Degraded(fmt.Sprintf("%d tables belong to superseded versions", len(stale))).
				WithDetails(map[string]any{"stale": stale, "versions": versions.String()})
		}
		return Healthy("no superseded tables").WithDetails(map[string]any{"versions": versions.String()})
	})
}

// splitTableName parses "{target}_{kind}_{version}" for one of kinds.
func splitTableName(name string, kinds []string) (string, int, bool) {
	i := strings.LastIndexByte(name, '_')
	if i <= 0 {
		return "", 0, false
	}
	v, err := strconv.Atoi(name[i+1:])
	if err != nil || v < 0 {
		return "", 0, false
	}
	prefix := name[:i]
	for _, kind := range kinds {
		if strings.HasSuffix(prefix, "_"+kind) && len(prefix) > len(kind)+1 {
			return kind, v, true
		}
	}
	return "", 0, false
}
