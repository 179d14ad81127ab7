package workers

import (
	"fmt"
	"sync"
)

// panicToError converts a recovered panic value into an error so it
// can be folded into a multierr aggregate instead of being silently
// swallowed.
func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

// Schedulable is anything that accepts a func() to run asynchronously,
// possibly inline. Pool, ExclusiveTaskSet, ConcurrentTaskSet,
// ImmediateInvoker and NewThreadInvoker all satisfy it.
type Schedulable interface {
	// Schedule may run f inline or hand it off, at the implementation's
	// discretion.
	Schedule(f func())
	// ScheduleForce always hands f off rather than running it inline.
	ScheduleForce(f func())
}

// ImmediateInvoker runs scheduled work synchronously, inline, on the
// calling goroutine. It satisfies Schedulable for callers (like a unit
// test, or code that wants a synchronous Future) that want no
// concurrency at all.
type ImmediateInvoker struct{}

func (ImmediateInvoker) Schedule(f func())      { f() }
func (ImmediateInvoker) ScheduleForce(f func()) { f() }

// detachedThreads tracks every goroutine spawned by NewThreadInvoker so
// that WaitForDetachedThreads can block until they have all finished,
// avoiding a detached worker touching a process-global after it has
// been torn down at exit.
var detachedThreads sync.WaitGroup

// NewThreadInvoker spawns a brand new, detached goroutine per call.
// Every spawned goroutine is tracked by a shared WaitGroup a caller can
// drain via WaitForDetachedThreads before tearing down process-global
// state.
type NewThreadInvoker struct{}

func (NewThreadInvoker) Schedule(f func())      { spawnDetached(f) }
func (NewThreadInvoker) ScheduleForce(f func()) { spawnDetached(f) }

func spawnDetached(f func()) {
	detachedThreads.Add(1)
	go func() {
		defer detachedThreads.Done()
		f()
	}()
}

// WaitForDetachedThreads blocks until every goroutine spawned via
// NewThreadInvoker has returned. Call this during graceful shutdown,
// before tearing down any process-global state a detached goroutine
// might still touch.
func WaitForDetachedThreads() {
	detachedThreads.Wait()
}
