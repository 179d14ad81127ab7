// Package oncefunc implements a type-erased, move-only, single-call
// closure: invocation both runs the wrapped functor and releases its
// storage, and invoking twice is a programmer error.
package oncefunc

import (
	"go.uber.org/atomic"

	"github.com/TheEntropyCollective/parastream/bufpool"
	"github.com/TheEntropyCollective/parastream/perrs"
)

// Func is a move-only handle around a func(). Go has no copy
// constructors to forbid, so "move-only" is enforced by convention
// (Take empties the source) rather than by the type system; callers
// that need the compiler's help should pass *Func, never Func by value,
// past the point where ownership should have transferred.
type Func struct {
	fn      func()
	invoked atomic.Bool

	// pooledBuf, when non-nil, is this trampoline's backing storage
	// drawn from bufpool by FromPooled; Invoke releases it back to its
	// size class in the same step it runs fn, rather than leaving it
	// for the garbage collector.
	pooledBuf []byte
}

// pooledEnvelopeSize is the bufpool size class FromPooled draws from
// for each trampoline: generously sized for a closure capturing a
// handful of values plus bookkeeping, the same envelope size
// workers.Pool uses for every task it schedules.
const pooledEnvelopeSize = 64

// From wraps fn in a Func ready for exactly one Invoke.
func From(fn func()) *Func {
	if fn == nil {
		panic(perrs.New(perrs.ProgrammerError, "oncefunc", "From called with a nil function"))
	}
	return &Func{fn: fn}
}

// FromPooled is From, but reserves the trampoline's backing storage
// from bufpool's small-buffer allocator instead of leaving it implicit
// in ordinary heap allocation — the fast path spec.md §4.1 describes
// for one-shot callables queued at high rates. workers.Pool uses this
// for every task it schedules.
func FromPooled(fn func()) *Func {
	if fn == nil {
		panic(perrs.New(perrs.ProgrammerError, "oncefunc", "FromPooled called with a nil function"))
	}
	return &Func{fn: fn, pooledBuf: bufpool.Alloc(pooledEnvelopeSize)}
}

// Invoke runs the wrapped functor exactly once, then releases any
// pooled backing storage FromPooled reserved for it. A second call is a
// programmer error akin to a use-after-free; since Go has no manual
// storage to corrupt, this implementation panics instead whenever
// perrs.DebugAssertions is set, and is simply a no-op otherwise.
func (f *Func) Invoke() {
	if !f.invoked.CompareAndSwap(false, true) {
		perrs.Assert("oncefunc", false, "Func.Invoke called more than once")
		return
	}
	fn := f.fn
	f.fn = nil
	buf := f.pooledBuf
	f.pooledBuf = nil
	fn()
	if buf != nil {
		bufpool.Dealloc(pooledEnvelopeSize, buf)
	}
}

// Invoked reports whether Invoke has already run (or is running).
func (f *Func) Invoked() bool {
	return f.invoked.Load()
}

// Take empties the receiver and returns a fresh Func owning the same
// functor, approximating C++-style move semantics. Calling Take on an
// already-invoked or already-taken Func is a programmer error, the same
// way invoking a moved-from future is invalid.
func (f *Func) Take() *Func {
	if f.fn == nil {
		perrs.Assert("oncefunc", false, "Func.Take called on an empty (invoked or already-moved) Func")
		return &Func{fn: func() {}}
	}
	fn := f.fn
	buf := f.pooledBuf
	f.fn = nil
	f.pooledBuf = nil
	f.invoked.Store(true)
	return &Func{fn: fn, pooledBuf: buf}
}
