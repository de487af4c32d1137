package cache

import (
	"context"
	"slices"
	"sync"

	"github.com/jonwraymond/profcache/observe"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]Entry
	logger observe.Logger
	closed bool
}

// NewMemoryStore creates an empty in-memory store. Only WithLogger applies.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := options{logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		tables: make(map[string]map[string]Entry),
		logger: o.logger,
	}
}

func (m *MemoryStore) checkLocked(ctx context.Context) error {
	if m.closed {
		return ErrClosed
	}
	return ctx.Err()
}

// TableExists reports whether the table exists and logs the result.
func (m *MemoryStore) TableExists(ctx context.Context, name string) (bool, error) {
	if err := ValidateTable(name); err != nil {
		return false, err
	}
	m.mu.RLock()
	if err := m.checkLocked(ctx); err != nil {
		m.mu.RUnlock()
		return false, err
	}
	_, exists := m.tables[name]
	m.mu.RUnlock()

	logTableCheck(ctx, m.logger, name, exists)
	return exists, nil
}

// EnsureTable creates the table if absent.
func (m *MemoryStore) EnsureTable(ctx context.Context, name string) error {
	if err := ValidateTable(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(ctx); err != nil {
		return err
	}
	if _, ok := m.tables[name]; !ok {
		m.tables[name] = make(map[string]Entry)
	}
	return nil
}

// Get returns the entry stored under key in table.
func (m *MemoryStore) Get(ctx context.Context, table, key string) (Entry, bool, error) {
	if err := ValidateTable(table); err != nil {
		return Entry{}, false, err
	}
	if err := ValidateKey(key); err != nil {
		return Entry{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkLocked(ctx); err != nil {
		return Entry{}, false, err
	}
	e, ok := m.tables[table][key]
	if !ok {
		return Entry{}, false, nil
	}
	return cloneEntry(e), true, nil
}

// Put stores entry under key, creating the table if needed.
func (m *MemoryStore) Put(ctx context.Context, table, key string, entry Entry) error {
	if err := ValidateTable(table); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(ctx); err != nil {
		return err
	}
	t, ok := m.tables[table]
	if !ok {
		t = make(map[string]Entry)
		m.tables[table] = t
	}
	t[key] = cloneEntry(entry)
	return nil
}

// Entries returns a copy of every entry in table.
func (m *MemoryStore) Entries(ctx context.Context, table string) (map[string]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkLocked(ctx); err != nil {
		return nil, err
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	out := make(map[string]Entry, len(m.tables[table]))
	for k, e := range m.tables[table] {
		out[k] = cloneEntry(e)
	}
	return out, nil
}

// Tables lists the tables, sorted by name.
func (m *MemoryStore) Tables(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkLocked(ctx); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Close marks the store closed. It is idempotent.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)
