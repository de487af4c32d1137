package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_RecordResolveOutcomes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	meta := SignatureMeta{Target: "T", Kind: "gemm", Table: "T_gemm_1"}

	m.RecordResolve(ctx, meta, OutcomeHit, time.Millisecond)
	m.RecordResolve(ctx, meta, OutcomeHit, time.Millisecond)
	m.RecordResolve(ctx, meta, OutcomeGenerated, 50*time.Millisecond)
	m.RecordResolve(ctx, meta, OutcomeFailed, 10*time.Millisecond)

	rm := collect(t, reader)
	tests := []struct {
		name string
		want int64
	}{
		{"profcache.resolve.total", 4},
		{"profcache.resolve.hits", 2},
		{"profcache.resolve.generated", 1},
		{"profcache.resolve.failures", 1},
	}
	for _, tt := range tests {
		if got := sumOf(t, rm, tt.name); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}

	hist := findMetric(rm, "profcache.resolve.duration_ms")
	if hist == nil {
		t.Fatal("profcache.resolve.duration_ms not found")
	}
	h, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok || len(h.DataPoints) == 0 || h.DataPoints[0].Count != 4 {
		t.Errorf("duration histogram = %+v, want 4 samples", hist.Data)
	}
}

func TestMetrics_RecordBenchmark(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	meta := SignatureMeta{Target: "T", Kind: "gemm"}

	m.RecordBenchmark(ctx, meta, "algo_a", 1.5, nil)
	m.RecordBenchmark(ctx, meta, "algo_b", 0, errors.New("compile failed"))

	rm := collect(t, reader)
	if got := sumOf(t, rm, "profcache.benchmark.failures"); got != 1 {
		t.Errorf("benchmark.failures = %d, want 1", got)
	}
	lat := findMetric(rm, "profcache.benchmark.latency_ms")
	if lat == nil {
		t.Fatal("profcache.benchmark.latency_ms not found")
	}
	h := lat.Data.(metricdata.Histogram[float64])
	if len(h.DataPoints) != 1 || h.DataPoints[0].Sum != 1.5 {
		t.Errorf("latency histogram = %+v, want one sample of 1.5", h.DataPoints)
	}
}

func TestOutcome_String(t *testing.T) {
	tests := map[Outcome]string{
		OutcomeHit:       "hit",
		OutcomeGenerated: "generated",
		OutcomeFailed:    "failed",
	}
	for o, want := range tests {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", o, got, want)
		}
	}
}
