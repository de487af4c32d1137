package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// SignatureMeta describes a signature for telemetry purposes.
type SignatureMeta struct {
	Target string // Hardware/toolchain identifier
	Kind   string // Op kind (selects the table lineage)
	Op     string // Fully qualified op name (optional)
	Table  string // Resolved table name (optional)
	Hash   string // Short signature hash (optional)
}

// SpanName returns the deterministic span name for a resolution.
// Format: profcache.resolve.<kind> or profcache.resolve
func (m SignatureMeta) SpanName() string {
	if m.Kind != "" {
		return "profcache.resolve." + m.Kind
	}
	return "profcache.resolve"
}

func (m SignatureMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("sig.target", m.Target),
		attribute.String("sig.kind", m.Kind),
	}
	if m.Op != "" {
		attrs = append(attrs, attribute.String("sig.op", m.Op))
	}
	if m.Table != "" {
		attrs = append(attrs, attribute.String("sig.table", m.Table))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with resolution span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	StartSpan(ctx context.Context, meta SignatureMeta) (context.Context, trace.Span)
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts an internal span carrying the signature attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta SignatureMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("profcache.error", false))
	if meta.Hash != "" {
		attrs = append(attrs, attribute.String("sig.hash", meta.Hash))
	}
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("profcache.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NopTracer returns a Tracer that records nothing.
func NopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta SignatureMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, _ error) {
	span.End()
}
