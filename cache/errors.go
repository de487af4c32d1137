package cache

import (
	"errors"
	"fmt"
)

// Sentinel errors for cache operations.
var (
	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("cache: storage failure")

	// ErrCorruptTable is returned when a table file fails its header or
	// checksum validation or cannot be decoded.
	ErrCorruptTable = errors.New("cache: corrupt table")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("cache: store is closed")

	// ErrInvalidTable is returned for an unusable table name.
	ErrInvalidTable = errors.New("cache: table name is invalid")

	// ErrInvalidKey is returned for an unusable entry key.
	ErrInvalidKey = errors.New("cache: key is invalid")

	// ErrKeyTooLong is returned when a key exceeds MaxKeyLength.
	ErrKeyTooLong = errors.New("cache: key exceeds max length")

	// ErrInvalidEntry is returned by Entry.Validate.
	ErrInvalidEntry = errors.New("cache: entry is invalid")
)

// StorageError reports a failure of the underlying storage.
type StorageError struct {
	Op    string // Operation that failed (open, get, put, ...)
	Table string // Table involved, empty for location-wide operations
	Err   error
}

func (e *StorageError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("cache: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache: %s table %q: %v", e.Op, e.Table, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports ErrStorage as a match so callers can test for any storage failure.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func storageErr(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Table: table, Err: err}
}
