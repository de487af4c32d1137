// Package cache persists autotuning results.
//
// A cache location holds named tables, one per (target, op kind, version).
// Each table maps a signature key to the Entry describing the winning
// candidate for that signature.
//
// Two Store implementations are provided:
//
//   - FileStore keeps one compressed, checksummed file per table under a
//     directory. It is safe to share between processes: writers take an
//     advisory file lock per table and replace the table file atomically, so
//     readers never observe a partial write.
//   - MemoryStore keeps tables in process memory. It is intended for tests and
//     ephemeral sessions.
//
// Both stores log one informational record per TableExists call:
//
//	table_name='T_gemm_1' does not exist in the db
//	table_name='T_gemm_1' exists in the db
//
// Calling tooling relies on these lines, so their wording is stable.
//
// Example:
//
//	err := cache.With(ctx, dir, func(s *cache.FileStore) error {
//		entry, ok, err := s.Get(ctx, "T_gemm_1", sig.Key())
//		...
//	})
package cache
