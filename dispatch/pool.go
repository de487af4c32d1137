package dispatch

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// PoolConfig configures a Pool.
type PoolConfig struct {
	// Slots is the number of operations that may hold the pool at once.
	// Default: runtime.NumCPU()
	Slots int
}

// Pool limits concurrent operations to a fixed number of slots. Unlike a
// fail-fast bulkhead, Acquire waits until a slot frees up or ctx ends.
type Pool struct {
	config PoolConfig
	sem    *semaphore.Weighted

	mu        sync.Mutex
	active    int
	maxActive int
	acquired  int64
}

// NewPool creates a new pool.
func NewPool(config PoolConfig) *Pool {
	if config.Slots <= 0 {
		config.Slots = runtime.NumCPU()
	}
	return &Pool{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.Slots)),
	}
}

// Acquire blocks until a slot is available. It returns ctx.Err() if ctx
// ends first, in which case no slot is held.
func (p *Pool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.mu.Lock()
	p.active++
	p.acquired++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	p.mu.Unlock()
	return nil
}

// Release returns a slot to the pool. Releasing more than was acquired is a no-op.
func (p *Pool) Release() {
	p.mu.Lock()
	if p.active == 0 {
		p.mu.Unlock()
		return
	}
	p.active--
	p.mu.Unlock()
	p.sem.Release(1)
}

// Execute runs op while holding one slot.
func (p *Pool) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := p.Acquire(ctx); err != nil {
		return err
	}
	defer p.Release()
	return op(ctx)
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.config.Slots
}

// Metrics returns current pool statistics.
func (p *Pool) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolMetrics{
		Active:    p.active,
		MaxActive: p.maxActive,
		Available: p.config.Slots - p.active,
		Slots:     p.config.Slots,
		Acquired:  p.acquired,
	}
}

// PoolMetrics contains pool statistics.
type PoolMetrics struct {
	Active    int
	MaxActive int
	Available int
	Slots     int
	Acquired  int64
}
