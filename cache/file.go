package cache

import (
	"context"
	"encoding/binary"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/jonwraymond/profcache/observe"
)

// DefaultTableCacheSize is the number of decoded tables a FileStore keeps in memory.
const DefaultTableCacheSize = 64

// Option configures a FileStore.
type Option func(*options)

type options struct {
	logger         observe.Logger
	tableCacheSize int
}

// WithLogger sets the logger that receives table existence records.
func WithLogger(l observe.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTableCacheSize sets how many decoded tables are memoized.
func WithTableCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.tableCacheSize = n
		}
	}
}

type cachedTable struct {
	checksum uint64
	data     *tableData
}

// FileStore is a Store backed by one file per table in a directory.
//
// Contract:
//   - Concurrency: safe for concurrent use, within and across processes.
//   - Writes: serialized per table by an in-process mutex and an OS file lock.
//   - Reads: see either the previous or the new table image, never a partial one.
type FileStore struct {
	dir    string
	logger observe.Logger
	memo   *lru.Cache[string, cachedTable]

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	closed atomic.Bool
}

// Open opens the cache location at dir, creating it if absent.
func Open(dir string, opts ...Option) (*FileStore, error) {
	o := options{logger: observe.NopLogger(), tableCacheSize: DefaultTableCacheSize}
	for _, opt := range opts {
		opt(&o)
	}

	if strings.TrimSpace(dir) == "" {
		return nil, &StorageError{Op: "open", Err: errors.New("empty location")}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Op: "open", Err: errors.Wrapf(err, "create %s", dir)}
	}

	memo, err := lru.New[string, cachedTable](o.tableCacheSize)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	return &FileStore{
		dir:    dir,
		logger: o.logger,
		memo:   memo,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// With opens dir, runs fn, and closes the store on every exit path.
func With(ctx context.Context, dir string, fn func(*FileStore) error, opts ...Option) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s, err := Open(dir, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// Location returns the directory backing the store.
func (s *FileStore) Location() string {
	return s.dir
}

func (s *FileStore) tablePath(name string) string {
	return filepath.Join(s.dir, name+tableExt)
}

func (s *FileStore) lockPath(name string) string {
	return filepath.Join(s.dir, name+lockExt)
}

func (s *FileStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// TableExists reports whether the table file exists and logs the result.
func (s *FileStore) TableExists(ctx context.Context, name string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if err := ValidateTable(name); err != nil {
		return false, err
	}

	exists := true
	if _, err := os.Stat(s.tablePath(name)); err != nil {
		if !os.IsNotExist(err) {
			return false, storageErr("stat", name, err)
		}
		exists = false
	}

	logTableCheck(ctx, s.logger, name, exists)
	return exists, nil
}

// EnsureTable creates an empty table file if none exists.
func (s *FileStore) EnsureTable(ctx context.Context, name string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := ValidateTable(name); err != nil {
		return err
	}

	return s.withTableLock(name, func() error {
		if _, err := os.Stat(s.tablePath(name)); err == nil {
			return nil
		} else if !os.IsNotExist(err) {
			return storageErr("ensure", name, err)
		}
		return storageErr("ensure", name, s.writeTable(name, newTableData(name)))
	})
}

// Get returns the entry stored under key in table.
func (s *FileStore) Get(ctx context.Context, table, key string) (Entry, bool, error) {
	if err := s.check(ctx); err != nil {
		return Entry{}, false, err
	}
	if err := ValidateTable(table); err != nil {
		return Entry{}, false, err
	}
	if err := ValidateKey(key); err != nil {
		return Entry{}, false, err
	}

	t, err := s.load(table)
	if err != nil {
		return Entry{}, false, storageErr("get", table, err)
	}
	if t == nil {
		return Entry{}, false, nil
	}
	e, ok := t.Entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	return cloneEntry(e), true, nil
}

// Put stores entry under key, creating the table if needed. The table file
// is synced to disk before Put returns.
func (s *FileStore) Put(ctx context.Context, table, key string, entry Entry) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := ValidateTable(table); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	return s.withTableLock(table, func() error {
		current, err := s.load(table)
		if err != nil {
			return storageErr("put", table, err)
		}
		var next *tableData
		if current == nil {
			next = newTableData(table)
		} else {
			next = current.clone()
		}
		next.Entries[key] = cloneEntry(entry)
		return storageErr("put", table, s.writeTable(table, next))
	})
}

// Entries returns a copy of every entry in table.
func (s *FileStore) Entries(ctx context.Context, table string) (map[string]Entry, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	t, err := s.load(table)
	if err != nil {
		return nil, storageErr("entries", table, err)
	}
	out := make(map[string]Entry)
	if t != nil {
		for k, e := range t.Entries {
			out[k] = cloneEntry(e)
		}
	}
	return out, nil
}

// Tables lists table names found in the location.
func (s *FileStore) Tables(ctx context.Context) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, storageErr("list", "", err)
	}
	var names []string
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(de.Name(), tableExt); ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Close releases in-memory state. It is idempotent.
func (s *FileStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.memo.Purge()
	return nil
}

// load returns the current table image, or nil if the table does not exist.
// The memoized copy is reused when its checksum matches the file header.
func (s *FileStore) load(name string) (*tableData, error) {
	f, err := os.Open(s.tablePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	h, err := readHeader(f)
	if err != nil {
		return nil, err
	}
	if c, ok := s.memo.Get(name); ok && c.checksum == h.Checksum {
		return c.data, nil
	}

	payload, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "read payload")
	}
	t, err := decodePayload(h, payload)
	if err != nil {
		return nil, err
	}
	s.memo.Add(name, cachedTable{checksum: h.Checksum, data: t})
	return t, nil
}

// writeTable replaces the table file and refreshes the memo. Callers hold the table lock.
func (s *FileStore) writeTable(name string, t *tableData) error {
	data, err := encodeTable(t)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.tablePath(name), data); err != nil {
		return err
	}
	s.memo.Add(name, cachedTable{checksum: binary.LittleEndian.Uint64(data[16:24]), data: t})
	return nil
}

// withTableLock runs fn while holding the in-process and OS locks for table.
func (s *FileStore) withTableLock(table string, fn func() error) error {
	s.locksMu.Lock()
	mu, ok := s.locks[table]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[table] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	defer mu.Unlock()

	lf, err := os.OpenFile(s.lockPath(table), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return storageErr("lock", table, err)
	}
	defer lf.Close()

	if err := lockFile(lf); err != nil {
		return storageErr("lock", table, err)
	}
	defer func() { _ = unlockFile(lf) }()

	return fn()
}

func cloneEntry(e Entry) Entry {
	e.Params = maps.Clone(e.Params)
	return e
}

var _ Store = (*FileStore)(nil)
