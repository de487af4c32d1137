package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// BenchmarkFileStore_Get_Hit measures a memoized table read.
func BenchmarkFileStore_Get_Hit(b *testing.B) {
	s, err := Open(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()
	if err := s.Put(ctx, "T_gemm_1", "key", Entry{Algorithm: "a", LatencyMs: 1, CreatedAt: time.Now().UTC()}); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = s.Get(ctx, "T_gemm_1", "key")
	}
}

// BenchmarkFileStore_Put measures a durable write into a growing table.
func BenchmarkFileStore_Put(b *testing.B) {
	s, err := Open(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()
	entry := Entry{Algorithm: "a", LatencyMs: 1, CreatedAt: time.Now().UTC()}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Put(ctx, "T_gemm_1", fmt.Sprintf("key-%d", i), entry)
	}
}

// BenchmarkCodec_RoundTrip measures encoding and decoding a 1k-entry table.
func BenchmarkCodec_RoundTrip(b *testing.B) {
	t := newTableData("T_gemm_1")
	for i := 0; i < 1000; i++ {
		t.Entries[fmt.Sprintf("key-%d", i)] = Entry{Algorithm: "a", LatencyMs: float64(i)}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := encodeTable(t)
		if err != nil {
			b.Fatal(err)
		}
		if _, _, err := decodeTable(data); err != nil {
			b.Fatal(err)
		}
	}
}
