package syncutil

import "go.uber.org/atomic"

// requestState is the async-request state machine: a small integer
// state plus CompareAndSwap-guarded transitions and a String() method
// for diagnostics.
type requestState uint32

const (
	stateNone requestState = iota
	stateNeedsUpdate
	stateUpdating
	stateReady
)

func (s requestState) String() string {
	switch s {
	case stateNeedsUpdate:
		return "NeedsUpdate"
	case stateUpdating:
		return "Updating"
	case stateReady:
		return "Ready"
	default:
		return "None"
	}
}

// AsyncRequest is a single-slot SPSC update protocol: a consumer calls
// RequestUpdate then polls GetUpdate; a producer polls UpdateRequested
// then calls TryEmplaceUpdate. It is safe under MPMC use but only
// optimized for a single producer and single consumer.
type AsyncRequest[T any] struct {
	state atomic.Uint32
	value T
}

// NewAsyncRequest returns an AsyncRequest in the None state.
func NewAsyncRequest[T any]() *AsyncRequest[T] {
	return &AsyncRequest[T]{}
}

// RequestUpdate transitions None -> NeedsUpdate. It is a no-op if the
// state is not currently None.
func (r *AsyncRequest[T]) RequestUpdate() bool {
	return r.state.CompareAndSwap(uint32(stateNone), uint32(stateNeedsUpdate))
}

// UpdateRequested reports whether a consumer is currently waiting on an
// update (state is NeedsUpdate), letting a producer avoid doing work no
// one asked for.
func (r *AsyncRequest[T]) UpdateRequested() bool {
	return requestState(r.state.Load()) == stateNeedsUpdate
}

// TryEmplaceUpdate moves the machine NeedsUpdate -> Updating -> Ready,
// storing v in between. A superfluous call (state not NeedsUpdate)
// returns false and leaves the state unchanged.
// The release-store on the Ready transition happens-before any
// subsequent consumer GetUpdate's acquire-load, guaranteeing the
// producer's write to v is visible once GetUpdate observes Ready.
func (r *AsyncRequest[T]) TryEmplaceUpdate(v T) bool {
	if !r.state.CompareAndSwap(uint32(stateNeedsUpdate), uint32(stateUpdating)) {
		return false
	}
	r.value = v
	r.state.Store(uint32(stateReady))
	return true
}

// GetUpdate transitions Ready -> None, returning the stored value and
// true. If the state is not Ready, it returns the zero value and
// false without side effects.
func (r *AsyncRequest[T]) GetUpdate() (T, bool) {
	if requestState(r.state.Load()) != stateReady {
		var zero T
		return zero, false
	}
	v := r.value
	if !r.state.CompareAndSwap(uint32(stateReady), uint32(stateNone)) {
		var zero T
		return zero, false
	}
	return v, true
}

// State exposes the current state's name, for diagnostics and tests.
func (r *AsyncRequest[T]) State() string {
	return requestState(r.state.Load()).String()
}
