package profiler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/profcache/cache"
	"github.com/jonwraymond/profcache/observe"
	"github.com/jonwraymond/profcache/signature"
)

var errBenchFailed = errors.New("kernel failed to compile")

// fakeBench is a CandidateEnumerator and BenchmarkExecutor with canned results.
type fakeBench struct {
	mu        sync.Mutex
	order     []string
	latency   map[string]float64
	fail      map[string]bool
	failKinds map[string]bool
	delay     time.Duration
	block     map[string]chan struct{}
	started   chan string
	calls     map[string]int
	enumCalls int

	active atomic.Int32
	peak   atomic.Int32
}

// newFakeBench takes candidate IDs and latencies in enumeration order.
// A NaN latency marks a failing candidate.
func newFakeBench(pairs ...any) *fakeBench {
	f := &fakeBench{
		latency:   map[string]float64{},
		fail:      map[string]bool{},
		failKinds: map[string]bool{},
		block:     map[string]chan struct{}{},
		calls:     map[string]int{},
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		id := pairs[i].(string)
		lat := pairs[i+1].(float64)
		f.order = append(f.order, id)
		if math.IsNaN(lat) {
			f.fail[id] = true
		}
		f.latency[id] = lat
	}
	return f
}

func (f *fakeBench) Enumerate(_ context.Context, sig signature.Signature) ([]Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enumCalls++
	out := make([]Candidate, len(f.order))
	for i, id := range f.order {
		out[i] = Candidate{ID: id, Params: map[string]string{"variant": id}}
	}
	return out, nil
}

func (f *fakeBench) Run(ctx context.Context, c Candidate, sig signature.Signature) (float64, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[c.ID]++
	block := f.block[c.ID]
	started := f.started
	failed := f.fail[c.ID] || f.failKinds[sig.OpKind]
	lat := f.latency[c.ID]
	f.mu.Unlock()

	if started != nil {
		started <- c.ID
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if failed {
		return 0, errBenchFailed
	}
	return lat, nil
}

func (f *fakeBench) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeBench) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// logCapture collects JSON log lines written by observe loggers.
type logCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *logCapture) messages(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var msgs []string
	sc := bufio.NewScanner(bytes.NewReader(c.buf.Bytes()))
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		msgs = append(msgs, rec["msg"].(string))
	}
	return msgs
}

func (c *logCapture) count(t *testing.T, msg string) int {
	n := 0
	for _, m := range c.messages(t) {
		if m == msg {
			n++
		}
	}
	return n
}

func (c *logCapture) logger() observe.Logger {
	return observe.NewLoggerWithWriter("info", c)
}

func gemmOp(m int64) signature.Op {
	return signature.Op{
		Name: "gemm_rcr",
		Inputs: []signature.Tensor{
			{Name: "input_0", DType: "float16", Shape: []signature.Dim{signature.Static(m), signature.Static(128)}},
			{Name: "input_1", DType: "float16", Shape: []signature.Dim{signature.Static(8), signature.Static(128)}},
		},
	}
}

func softmaxOp() signature.Op {
	return signature.Op{
		Name:   "softmax",
		Inputs: []signature.Tensor{{Name: "x", DType: "float32", Shape: []signature.Dim{signature.Var("batch", 1, 64), signature.Static(512)}}},
		Attrs:  map[string]any{"axis": 1},
	}
}

func buildSig(t *testing.T, op signature.Op) signature.Signature {
	t.Helper()
	sig, err := signature.NewBuilder().Build("T", op)
	require.NoError(t, err)
	return sig
}

var fixedTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

// faultyStore fails Put a fixed number of times before delegating.
type faultyStore struct {
	cache.Store
	mu       sync.Mutex
	putFails int
	putCalls int
}

func (s *faultyStore) Put(ctx context.Context, table, key string, e cache.Entry) error {
	s.mu.Lock()
	s.putCalls++
	fail := s.putFails > 0
	if fail {
		s.putFails--
	}
	s.mu.Unlock()
	if fail {
		return &cache.StorageError{Op: "put", Table: table, Err: errors.New("disk full")}
	}
	return s.Store.Put(ctx, table, key, e)
}
