// Package respool implements a fixed-size resource pool: a bounded set
// of pre-built instances of T, handed out via a semaphore-guarded
// Acquire/Release protocol.
package respool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/TheEntropyCollective/parastream/perrs"
)

// Pool hands out instances of T from a fixed-size, pre-built set,
// using golang.org/x/sync/semaphore.Weighted rather than a hand-rolled
// mutex+map, since the resource count here is fixed ahead of time and
// Acquire must be able to block.
type Pool[T any] struct {
	sem *semaphore.Weighted

	mu   sync.Mutex
	free []T
}

// New builds a Pool of capacity len(items), taking ownership of items
// as its initial free list.
func New[T any](items []T) *Pool[T] {
	p := &Pool[T]{
		sem:  semaphore.NewWeighted(int64(len(items))),
		free: append([]T(nil), items...),
	}
	return p
}

// NewFunc builds a Pool of capacity n, constructing each instance via
// newItem.
func NewFunc[T any](n int, newItem func() T) *Pool[T] {
	items := make([]T, n)
	for i := range items {
		items[i] = newItem()
	}
	return New(items)
}

// Handle is an acquired instance of T; Release returns it to the pool.
// A Handle must be released exactly once.
type Handle[T any] struct {
	pool     *Pool[T]
	value    T
	released bool
}

// Value returns the acquired instance.
func (h *Handle[T]) Value() T {
	return h.value
}

// Release returns h's instance to the pool and frees the semaphore
// weight it held. Releasing a Handle twice is a programmer error.
func (h *Handle[T]) Release() {
	perrs.Assert("respool", !h.released, "Handle released twice")
	h.released = true
	h.pool.mu.Lock()
	h.pool.free = append(h.pool.free, h.value)
	h.pool.mu.Unlock()
	h.pool.sem.Release(1)
}

// Acquire blocks until an instance is available or ctx is done,
// returning a Handle wrapping it.
func (p *Pool[T]) Acquire(ctx context.Context) (*Handle[T], error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.mu.Lock()
	n := len(p.free)
	v := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()
	return &Handle[T]{pool: p, value: v}, nil
}

// AcquireScoped acquires an instance, runs fn with it, and releases it
// automatically when fn returns (including on panic). This is the
// idiomatic Go substitute for a destructor-based RAII release.
func (p *Pool[T]) AcquireScoped(ctx context.Context, fn func(T) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(h.value)
}

// Available reports how many instances are currently free.
func (p *Pool[T]) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
