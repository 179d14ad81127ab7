// Package future implements a single-assignment Future[T] with chained
// continuations, scheduled through any workers.Schedulable.
package future

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/TheEntropyCollective/parastream/workers"
)

// ErrTimeout is returned by WaitFor/WaitUntil when the deadline elapses
// before the future becomes ready.
var ErrTimeout = errors.New("future: wait timed out")

// ErrCancelled is returned by Get/GetContext when the future was
// cancelled before it produced a value.
var ErrCancelled = errors.New("future: cancelled")

type futureStateKind uint32

const (
	statePending futureStateKind = iota
	stateRunning
	stateReady
	stateCancelled
)

type continuation func()

type futureState[T any] struct {
	state atomic.Uint32

	mu    sync.Mutex
	conts []continuation
	ready chan struct{}

	value T
	err   error
}

// Future is a handle to a value that will become available once the
// task that produces it finishes.
type Future[T any] struct {
	s *futureState[T]
}

func newFutureState[T any]() *futureState[T] {
	return &futureState[T]{ready: make(chan struct{})}
}

// Async schedules fn on sched and returns a Future that resolves to its
// result.
func Async[T any](sched workers.Schedulable, fn func() (T, error)) Future[T] {
	s := newFutureState[T]()
	s.state.Store(uint32(statePending))
	sched.Schedule(func() {
		if !s.state.CompareAndSwap(uint32(statePending), uint32(stateRunning)) {
			// Lost the race to a concurrent Cancel: the future is
			// already cancelled (and its ready channel already
			// closed), so the functor must not run and complete must
			// not be called again.
			return
		}
		v, err := fn()
		s.complete(v, err)
	})
	return Future[T]{s: s}
}

// Ready returns a Future that is already resolved to v, useful as a
// base case for recursive composition.
func Ready[T any](v T) Future[T] {
	s := newFutureState[T]()
	s.complete(v, nil)
	return Future[T]{s: s}
}

func (s *futureState[T]) complete(v T, err error) {
	s.value = v
	s.err = err
	s.state.Store(uint32(stateReady))
	close(s.ready)

	s.mu.Lock()
	conts := s.conts
	s.conts = nil
	s.mu.Unlock()
	for _, c := range conts {
		c()
	}
}

// addContinuation runs fn once s becomes ready, inline if it already is.
func (s *futureState[T]) addContinuation(fn continuation) {
	s.mu.Lock()
	if futureStateKind(s.state.Load()) == stateReady || futureStateKind(s.state.Load()) == stateCancelled {
		s.mu.Unlock()
		fn()
		return
	}
	s.conts = append(s.conts, fn)
	s.mu.Unlock()
}

// Then schedules fn against sched once f resolves, feeding it f's
// result, and returns a Future for fn's own result. If f resolves with
// an error, fn is not invoked and the error is forwarded unchanged.
func Then[T, U any](f Future[T], sched workers.Schedulable, fn func(T) (U, error)) Future[U] {
	out := newFutureState[U]()
	out.state.Store(uint32(statePending))
	f.s.addContinuation(func() {
		if f.s.err != nil {
			out.complete(*new(U), f.s.err)
			return
		}
		in := f.s.value
		sched.Schedule(func() {
			if !out.state.CompareAndSwap(uint32(statePending), uint32(stateRunning)) {
				return
			}
			v, err := fn(in)
			out.complete(v, err)
		})
	})
	return Future[U]{s: out}
}

// WhenAll returns a Future that resolves once every input future has
// resolved, collecting their values in order. If any input errors, the
// first such error (by index) is the result's error.
func WhenAll[T any](futures ...Future[T]) Future[[]T] {
	out := newFutureState[[]T]()
	out.state.Store(uint32(statePending))

	if len(futures) == 0 {
		out.complete([]T{}, nil)
		return Future[[]T]{s: out}
	}

	var mu sync.Mutex
	remaining := len(futures)
	results := make([]T, len(futures))
	errs := make([]error, len(futures))

	for i, f := range futures {
		i := i
		f.s.addContinuation(func() {
			mu.Lock()
			results[i] = f.s.value
			errs[i] = f.s.err
			remaining--
			done := remaining == 0
			mu.Unlock()
			if done {
				var firstErr error
				for _, err := range errs {
					if err != nil {
						firstErr = err
						break
					}
				}
				out.complete(results, firstErr)
			}
		})
	}
	return Future[[]T]{s: out}
}

// Cancel attempts to mark f cancelled. It succeeds only if f was still
// pending at the moment of the compare-and-swap; a future that has
// already started running, completed, or been cancelled cannot be
// re-cancelled, so cancel only ever wins against a task that never
// started.
func (f Future[T]) Cancel() bool {
	if f.s.state.CompareAndSwap(uint32(statePending), uint32(stateCancelled)) {
		close(f.s.ready)
		f.s.mu.Lock()
		conts := f.s.conts
		f.s.conts = nil
		f.s.mu.Unlock()
		for _, c := range conts {
			c()
		}
		return true
	}
	return false
}

// Cancelled reports whether f was successfully cancelled.
func (f Future[T]) Cancelled() bool {
	return futureStateKind(f.s.state.Load()) == stateCancelled
}

// Get blocks until f resolves and returns its value and error. If f was
// cancelled, it returns the zero value and ErrCancelled.
func (f Future[T]) Get() (T, error) {
	<-f.s.ready
	if f.Cancelled() {
		var zero T
		return zero, ErrCancelled
	}
	return f.s.value, f.s.err
}

// GetContext is Get, but returns early with ctx.Err() if ctx is done
// before f resolves.
func (f Future[T]) GetContext(ctx context.Context) (T, error) {
	select {
	case <-f.s.ready:
		if f.Cancelled() {
			var zero T
			return zero, ErrCancelled
		}
		return f.s.value, f.s.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WaitFor blocks until f resolves or d elapses, returning ErrTimeout in
// the latter case.
func (f Future[T]) WaitFor(d time.Duration) error {
	select {
	case <-f.s.ready:
		return nil
	case <-time.After(d):
		return ErrTimeout
	}
}

// WaitUntil blocks until f resolves or the wall clock reaches deadline.
func (f Future[T]) WaitUntil(deadline time.Time) error {
	return f.WaitFor(time.Until(deadline))
}

// Done reports whether f has resolved (including by cancellation)
// without blocking.
func (f Future[T]) Done() bool {
	select {
	case <-f.s.ready:
		return true
	default:
		return false
	}
}
