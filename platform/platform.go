// Package platform provides the L0 utilities the rest of parastream is
// built on: a monotonic time source, a stable per-goroutine identifier,
// cacheline-padded layout helpers, and OS thread priority control.
package platform

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// cachelineSize is the padding unit used to keep hot atomic fields from
// false-sharing a cacheline with their neighbors.
const cachelineSize = 64

// Pad64 is embedded in structs that need to keep a field from sharing a
// cacheline with whatever follows it in memory.
type Pad64 [cachelineSize]byte

var (
	startOnce  sync.Once
	startEpoch time.Time
)

// GetTime returns monotonic seconds elapsed since the first call to
// GetTime in this process. time.Since already rides the runtime's
// monotonic clock reading (VDSO-backed on Linux), so this is the
// idiomatic Go substitute for a hardware-counter time source.
func GetTime() float64 {
	startOnce.Do(func() { startEpoch = time.Now() })
	return time.Since(startEpoch).Seconds()
}

var threadIDCounter atomic.Uint64

// ThreadInfo is per-worker-goroutine state: a stable id, the pool the
// goroutine belongs to (nil if unaffiliated), and a parallel-for
// recursion depth counter. Go has no per-OS-thread storage that
// survives goroutine migration between Ms, so ThreadInfo is threaded
// explicitly through worker loops and task-set helpers — cached once
// in a context.Context value via WithThreadInfo rather than looked up
// through any form of simulated thread-local storage.
type ThreadInfo struct {
	_ Pad64
	// ID is assigned once when a worker loop or dispatcher goroutine
	// starts and held for that goroutine's whole lifetime via
	// WithThreadInfo; it is stable and never reused.
	ID uint64
	// Pool is an opaque back-pointer to the owning pool, compared by
	// identity only; it is declared as interface{} here so this
	// package does not import workers (which imports platform).
	Pool interface{}
	// ParallelForDepth counts nested ParallelFor invocations on this
	// goroutine, consulted to avoid deadlocking a pool's only idle
	// worker against itself.
	ParallelForDepth int
	_                Pad64
}

// NewThreadInfo allocates a fresh ThreadInfo with a freshly minted,
// process-unique, monotonically increasing id.
func NewThreadInfo() *ThreadInfo {
	return &ThreadInfo{ID: threadIDCounter.Inc()}
}

type threadInfoKey struct{}

// WithThreadInfo returns a copy of ctx carrying info as the goroutine's
// cached ThreadInfo. A worker loop calls this exactly once, when it
// starts, with a freshly minted ThreadInfo; every call it makes
// thereafter (including nested ParallelFor recursion) derives its own
// context from that same base, so the id stays stable for the
// goroutine's whole lifetime even though Go has no storage keyed by the
// goroutine itself.
func WithThreadInfo(ctx context.Context, info *ThreadInfo) context.Context {
	return context.WithValue(ctx, threadInfoKey{}, info)
}

// CurrentThreadInfo returns the ThreadInfo carried by ctx, or nil if
// none was ever attached via WithThreadInfo.
func CurrentThreadInfo(ctx context.Context) *ThreadInfo {
	info, _ := ctx.Value(threadInfoKey{}).(*ThreadInfo)
	return info
}

// ThreadID returns the stable id cached in ctx's ThreadInfo. Go has no
// per-goroutine storage to look this up without a context (or a
// closed-over pointer) carrying it, so a ctx that never passed through
// WithThreadInfo gets a freshly minted id instead of a cached one —
// every caller that needs real per-thread stability (workers.Pool's
// worker loop, scheduler.Scheduler's dispatcher) mints its ThreadInfo
// once and threads it through via WithThreadInfo rather than calling
// ThreadID blind.
func ThreadID(ctx context.Context) uint64 {
	if info := CurrentThreadInfo(ctx); info != nil {
		return info.ID
	}
	return threadIDCounter.Inc()
}
