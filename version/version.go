package version

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
)

// Declared cache versions. Change one only when the algorithm space or the
// benchmarking methodology of that kind changes.
const (
	GemmCacheVersion          = 1
	ConvCacheVersion          = 1
	Conv3DCacheVersion        = 1
	NormalizationCacheVersion = 1
)

// Sentinel errors for version configuration.
var (
	ErrNegativeVersion = errors.New("version: version must be non-negative")
	ErrInvalidKind     = errors.New("version: op kind is invalid")
	ErrInvalidOverride = errors.New("version: malformed override")
)

// Defaults returns the declared version of every known op kind.
func Defaults() map[string]int {
	return map[string]int{
		"gemm":          GemmCacheVersion,
		"conv":          ConvCacheVersion,
		"conv3d":        Conv3DCacheVersion,
		"normalization": NormalizationCacheVersion,
	}
}

// Manager maps op kinds to cache versions and table names.
//
// Contract:
// - Concurrency: safe for concurrent use; a Manager never changes after New.
// - Determinism: TableName is a pure function of (target, kind, version).
type Manager struct {
	versions map[string]int
}

// New creates a Manager from Defaults with the given overrides applied.
func New(overrides map[string]int) (*Manager, error) {
	versions := Defaults()
	for kind, v := range overrides {
		if err := validate(kind, v); err != nil {
			return nil, err
		}
		versions[kind] = v
	}
	return &Manager{versions: versions}, nil
}

// MustNew is New for static configuration; it panics on invalid overrides.
func MustNew(overrides map[string]int) *Manager {
	m, err := New(overrides)
	if err != nil {
		panic(err)
	}
	return m
}

func validate(kind string, v int) error {
	if kind == "" || strings.ContainsAny(kind, "/\\ \n\r") {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if v < 0 {
		return fmt.Errorf("%w: %s=%d", ErrNegativeVersion, kind, v)
	}
	return nil
}

// Version returns the current cache version of kind. Kinds without a
// declared version are at version 0.
func (m *Manager) Version(kind string) int {
	return m.versions[kind]
}

// TableName returns "{target}_{kind}_{version}".
func (m *Manager) TableName(target, kind string) string {
	return target + "_" + kind + "_" + strconv.Itoa(m.Version(kind))
}

// With returns a copy of m with kind pinned to v. m is not modified.
func (m *Manager) With(kind string, v int) (*Manager, error) {
	if err := validate(kind, v); err != nil {
		return nil, err
	}
	versions := maps.Clone(m.versions)
	versions[kind] = v
	return &Manager{versions: versions}, nil
}

// Versions returns a copy of the kind to version mapping.
func (m *Manager) Versions() map[string]int {
	return maps.Clone(m.versions)
}

// String renders the versions as "kind=v,..." in kind order.
func (m *Manager) String() string {
	kinds := make([]string, 0, len(m.versions))
	for k := range m.versions {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = k + "=" + strconv.Itoa(m.versions[k])
	}
	return strings.Join(parts, ",")
}

// ParseOverrides parses "gemm=2,conv=3". Empty input yields no overrides.
func ParseOverrides(s string) (map[string]int, error) {
	out := make(map[string]int)
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, val, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOverride, part)
		}
		kind = strings.TrimSpace(kind)
		v, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOverride, part)
		}
		if err := validate(kind, v); err != nil {
			return nil, err
		}
		out[kind] = v
	}
	return out, nil
}
