package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome classifies how a resolution ended.
type Outcome int

const (
	// OutcomeHit means the entry was served from the cache.
	OutcomeHit Outcome = iota
	// OutcomeGenerated means candidates were benchmarked and a winner stored.
	OutcomeGenerated
	// OutcomeFailed means the resolution returned an error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeGenerated:
		return "generated"
	default:
		return "failed"
	}
}

// Metrics records resolution and benchmark metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	RecordResolve(ctx context.Context, meta SignatureMeta, outcome Outcome, duration time.Duration)
	RecordBenchmark(ctx context.Context, meta SignatureMeta, candidate string, latencyMs float64, err error)
}

type metricsImpl struct {
	resolveTotal     metric.Int64Counter
	resolveHits      metric.Int64Counter
	resolveGenerated metric.Int64Counter
	resolveFailures  metric.Int64Counter
	resolveDuration  metric.Float64Histogram
	benchLatency     metric.Float64Histogram
	benchFailures    metric.Int64Counter
}

// NewMetrics creates a Metrics instance backed by meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	var (
		m   metricsImpl
		err error
	)
	if m.resolveTotal, err = meter.Int64Counter("profcache.resolve.total",
		metric.WithDescription("Total number of signature resolutions"),
		metric.WithUnit("{resolution}")); err != nil {
		return nil, err
	}
	if m.resolveHits, err = meter.Int64Counter("profcache.resolve.hits",
		metric.WithDescription("Resolutions served from the cache"),
		metric.WithUnit("{resolution}")); err != nil {
		return nil, err
	}
	if m.resolveGenerated, err = meter.Int64Counter("profcache.resolve.generated",
		metric.WithDescription("Resolutions that benchmarked candidates and stored a winner"),
		metric.WithUnit("{resolution}")); err != nil {
		return nil, err
	}
	if m.resolveFailures, err = meter.Int64Counter("profcache.resolve.failures",
		metric.WithDescription("Resolutions that returned an error"),
		metric.WithUnit("{error}")); err != nil {
		return nil, err
	}
	if m.resolveDuration, err = meter.Float64Histogram("profcache.resolve.duration_ms",
		metric.WithDescription("Resolution duration in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.benchLatency, err = meter.Float64Histogram("profcache.benchmark.latency_ms",
		metric.WithDescription("Measured candidate latency in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.benchFailures, err = meter.Int64Counter("profcache.benchmark.failures",
		metric.WithDescription("Candidate benchmarks that failed or timed out"),
		metric.WithUnit("{error}")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *metricsImpl) RecordResolve(ctx context.Context, meta SignatureMeta, outcome Outcome, duration time.Duration) {
	opt := metric.WithAttributes(meta.attributes()...)

	m.resolveTotal.Add(ctx, 1, opt)
	switch outcome {
	case OutcomeHit:
		m.resolveHits.Add(ctx, 1, opt)
	case OutcomeGenerated:
		m.resolveGenerated.Add(ctx, 1, opt)
	default:
		m.resolveFailures.Add(ctx, 1, opt)
	}
	m.resolveDuration.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

func (m *metricsImpl) RecordBenchmark(ctx context.Context, meta SignatureMeta, candidate string, latencyMs float64, err error) {
	attrs := append(meta.attributes(), attribute.String("candidate.id", candidate))
	opt := metric.WithAttributes(attrs...)

	if err != nil {
		m.benchFailures.Add(ctx, 1, opt)
		return
	}
	m.benchLatency.Record(ctx, latencyMs, opt)
}

type noopMetrics struct{}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return noopMetrics{}
}

func (noopMetrics) RecordResolve(context.Context, SignatureMeta, Outcome, time.Duration) {}

func (noopMetrics) RecordBenchmark(context.Context, SignatureMeta, string, float64, error) {}
