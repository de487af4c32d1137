package observe

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestMiddleware_WrapSuccess(t *testing.T) {
	m, reader := newTestMetrics(t)
	tracer, sr := newRecordingTracer()
	var buf bytes.Buffer
	mw := NewMiddleware(tracer, m, NewLoggerWithWriter("debug", &buf))

	called := false
	fn := mw.Wrap(func(ctx context.Context, meta SignatureMeta) (Outcome, error) {
		called = true
		return OutcomeGenerated, nil
	})

	outcome, err := fn(context.Background(), SignatureMeta{Target: "T", Kind: "gemm"})
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	if !called {
		t.Fatal("wrapped function not called")
	}
	if outcome != OutcomeGenerated {
		t.Errorf("outcome = %v, want generated", outcome)
	}
	if len(sr.Ended()) != 1 {
		t.Errorf("got %d spans, want 1", len(sr.Ended()))
	}
	if got := sumOf(t, collect(t, reader), "profcache.resolve.generated"); got != 1 {
		t.Errorf("resolve.generated = %d, want 1", got)
	}
	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["msg"] != "resolution completed" {
		t.Errorf("log = %v", entries)
	}
}

func TestMiddleware_WrapErrorForcesFailedOutcome(t *testing.T) {
	m, reader := newTestMetrics(t)
	var buf bytes.Buffer
	mw := NewMiddleware(nil, m, NewLoggerWithWriter("info", &buf))

	wantErr := errors.New("storage broke")
	fn := mw.Wrap(func(ctx context.Context, meta SignatureMeta) (Outcome, error) {
		return OutcomeHit, wantErr
	})

	outcome, err := fn(context.Background(), SignatureMeta{Kind: "gemm"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if outcome != OutcomeFailed {
		t.Errorf("outcome = %v, want failed", outcome)
	}

	rm := collect(t, reader)
	if got := sumOf(t, rm, "profcache.resolve.failures"); got != 1 {
		t.Errorf("resolve.failures = %d, want 1", got)
	}
	if got := sumOf(t, rm, "profcache.resolve.hits"); got != 0 {
		t.Errorf("resolve.hits = %d, want 0", got)
	}
	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["level"] != "error" || entries[0]["error"] != "storage broke" {
		t.Errorf("log = %v", entries)
	}
}

func TestMiddlewareFromObserver(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	mw, err := MiddlewareFromObserver(obs)
	if err != nil {
		t.Fatalf("MiddlewareFromObserver() error = %v", err)
	}
	if mw.Metrics() == nil {
		t.Error("Metrics() is nil")
	}
}
