// Package syncutil implements low-level synchronization primitives: a
// shared completion-word implementation behind CompletionEvent and
// Latch, a reader/writer lock, and the single-slot async-request state
// machine.
package syncutil

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/TheEntropyCollective/parastream/perrs"
)

// completionWord is the intrusive status word shared by CompletionEvent
// and Latch: a single atomic plus a channel that is closed exactly once
// when the word reaches its "done" value, giving every blocked waiter a
// broadcast wake for free. This is the idiomatic Go substitute for an
// OS-level futex wait on the word itself.
type completionWord struct {
	mu      sync.Mutex
	done    chan struct{}
	doneSet atomic.Bool
}

func newCompletionWord() *completionWord {
	return &completionWord{done: make(chan struct{})}
}

func (w *completionWord) signal() {
	if w.doneSet.CompareAndSwap(false, true) {
		w.mu.Lock()
		close(w.done)
		w.mu.Unlock()
	}
}

func (w *completionWord) isDone() bool {
	return w.doneSet.Load()
}

func (w *completionWord) wait() {
	<-w.done
}

func (w *completionWord) waitFor(d time.Duration) bool {
	select {
	case <-w.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (w *completionWord) waitUntil(t time.Time) bool {
	return w.waitFor(time.Until(t))
}

// reset rebuilds the word for reuse. Calling this concurrently with
// live waiters/notifiers is a programmer error; this implementation
// does not attempt to detect that race, since detecting it would need
// its own synchronization, which would defeat the point of a
// level-triggered word.
func (w *completionWord) reset() {
	w.mu.Lock()
	w.done = make(chan struct{})
	w.doneSet.Store(false)
	w.mu.Unlock()
}

// CompletionEvent is a single-publisher, many-waiters, one-shot event.
// Notify may race ahead of Wait; because the word is level-triggered
// (not edge-triggered), a Wait that begins after Notify returns
// immediately
type CompletionEvent struct {
	w *completionWord
}

// NewCompletionEvent returns a CompletionEvent in the unset state.
func NewCompletionEvent() *CompletionEvent {
	return &CompletionEvent{w: newCompletionWord()}
}

// Notify sets the event and wakes every current and future waiter.
// Calling Notify more than once is harmless; only the first call has an
// effect.
func (e *CompletionEvent) Notify() { e.w.signal() }

// Completed reports whether Notify has been called since construction
// or the last Reset.
func (e *CompletionEvent) Completed() bool { return e.w.isDone() }

// Wait blocks until Notify has been (or is) called.
func (e *CompletionEvent) Wait() { e.w.wait() }

// WaitFor blocks until Notify or the timeout, returning true if the
// event fired before the deadline.
func (e *CompletionEvent) WaitFor(d time.Duration) bool { return e.w.waitFor(d) }

// WaitUntil blocks until Notify or the deadline.
func (e *CompletionEvent) WaitUntil(t time.Time) bool { return e.w.waitUntil(t) }

// Reset returns the event to the unset state. Calling this concurrently
// with live waiters or notifiers is a programmer error.
func (e *CompletionEvent) Reset() { e.w.reset() }

// Latch is a one-shot countdown primitive: constructed with an initial
// count, CountDown subtracts from it, and every waiter is released once
// the count reaches zero.
type Latch struct {
	count atomic.Int64
	w     *completionWord
}

// NewLatch constructs a Latch with the given initial count. A Latch
// constructed with count <= 0 is already at zero and Wait returns
// immediately boundary case.
func NewLatch(count int64) *Latch {
	l := &Latch{w: newCompletionWord()}
	l.count.Store(count)
	if count <= 0 {
		l.w.signal()
	}
	return l
}

// CountDown subtracts k (default 1 via CountDownOne) from the count,
// signaling every waiter once the count reaches zero. Subtracting past
// zero is a programmer error.
func (l *Latch) CountDown(k int64) {
	if k <= 0 {
		return
	}
	remaining := l.count.Sub(k)
	perrs.Assert("syncutil.Latch", remaining >= 0, "Latch.CountDown subtracted past zero")
	if remaining <= 0 {
		l.w.signal()
	}
}

// CountDownOne is CountDown(1).
func (l *Latch) CountDownOne() { l.CountDown(1) }

// TryWait reports whether the count has already reached zero, without
// blocking.
func (l *Latch) TryWait() bool { return l.w.isDone() }

// Wait blocks until the count reaches zero.
func (l *Latch) Wait() { l.w.wait() }

// WaitFor blocks until the count reaches zero or the timeout elapses.
func (l *Latch) WaitFor(d time.Duration) bool { return l.w.waitFor(d) }

// ArriveAndWait is CountDown(1) followed by Wait: this is equivalent to
// N-1 CountDown calls from other goroutines followed by N Waits, which
// holds here because the word is level-triggered.
func (l *Latch) ArriveAndWait() {
	l.CountDownOne()
	l.Wait()
}
