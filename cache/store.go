package cache

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jonwraymond/profcache/observe"
)

const (
	// MaxKeyLength is the maximum allowed length for an entry key.
	MaxKeyLength = 4096

	// MaxTableNameLength is the maximum allowed length for a table name.
	MaxTableNameLength = 200
)

// Entry is the persisted winner for one signature.
type Entry struct {
	Algorithm string            `json:"algorithm"`
	Params    map[string]string `json:"params,omitempty"`
	LatencyMs float64           `json:"latency_ms"`
	CreatedAt time.Time         `json:"created_at"`
	Session   string            `json:"session,omitempty"`
	Signature string            `json:"signature,omitempty"`
}

// Validate reports whether the entry may be stored.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.Algorithm) == "" {
		return fmt.Errorf("%w: empty algorithm", ErrInvalidEntry)
	}
	if math.IsNaN(e.LatencyMs) || math.IsInf(e.LatencyMs, 0) || e.LatencyMs < 0 {
		return fmt.Errorf("%w: latency %v", ErrInvalidEntry, e.LatencyMs)
	}
	return nil
}

// Store is a keyed table store for autotuning results.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Logging: TableExists emits exactly one info record per successful call.
//   - Durability: Put returns only after the entry is persisted.
//   - Errors: storage failures satisfy errors.Is(err, ErrStorage).
type Store interface {
	// TableExists reports whether the named table exists.
	TableExists(ctx context.Context, name string) (bool, error)

	// EnsureTable creates the table if absent. It is a no-op otherwise.
	EnsureTable(ctx context.Context, name string) error

	// Get returns the entry stored under key. A missing table or key is a miss.
	Get(ctx context.Context, table, key string) (Entry, bool, error)

	// Put inserts or replaces the entry stored under key.
	Put(ctx context.Context, table, key string, entry Entry) error

	// Entries returns a copy of every entry in table. A missing table is empty.
	Entries(ctx context.Context, table string) (map[string]Entry, error)

	// Tables lists the tables in the store, sorted by name.
	Tables(ctx context.Context) ([]string, error)

	// Close releases the store. Further calls return ErrClosed.
	Close() error
}

// ValidateTable checks if name is usable as a table name.
func ValidateTable(name string) error {
	if strings.TrimSpace(name) == "" || len(name) > MaxTableNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	if strings.ContainsAny(name, "/\\\n\r\x00") || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return nil
}

// ValidateKey checks if key is usable as an entry key.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}

// logTableCheck emits the table existence record.
func logTableCheck(ctx context.Context, logger observe.Logger, name string, exists bool) {
	if exists {
		logger.Info(ctx, fmt.Sprintf("table_name='%s' exists in the db", name), observe.F("table", name))
		return
	}
	logger.Info(ctx, fmt.Sprintf("table_name='%s' does not exist in the db", name), observe.F("table", name))
}
