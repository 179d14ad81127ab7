// Package perrs implements the failure-kind taxonomy described by the
// concurrency core's error handling design: programmer errors are fatal
// in debug builds and undefined behavior otherwise, operational failures
// are reported through ordinary return values, and cancellation is never
// treated as an error at all.
package perrs

import "fmt"

// Kind classifies a ClassifiedError for callers that want to branch on
// failure category rather than match a specific error value.
type Kind int

const (
	// Unknown is the zero value; no component of this module raises a
	// ClassifiedError of this kind.
	Unknown Kind = iota
	// ProgrammerError marks a broken contract: invoking a once-function
	// twice, unlocking a lock not held, destroying a task set with
	// outstanding work, and similar invariant violations.
	ProgrammerError
	// Operational marks a reported, recoverable condition such as a
	// denied thread-priority change or a bounded wait timing out.
	Operational
)

func (k Kind) String() string {
	switch k {
	case ProgrammerError:
		return "ProgrammerError"
	case Operational:
		return "Operational"
	default:
		return "Unknown"
	}
}

// ClassifiedError wraps an underlying error with its Kind and the
// component that raised it.
type ClassifiedError struct {
	Err       error
	Kind      Kind
	Component string
}

func (ce *ClassifiedError) Error() string {
	return fmt.Sprintf("[%s:%s] %v", ce.Component, ce.Kind, ce.Err)
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// New builds a ClassifiedError from a message.
func New(kind Kind, component, msg string) *ClassifiedError {
	return &ClassifiedError{Err: fmt.Errorf("%s", msg), Kind: kind, Component: component}
}

// Wrap builds a ClassifiedError around an existing error.
func Wrap(kind Kind, component string, err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Err: err, Kind: kind, Component: component}
}

// DebugAssertions controls whether programmer-error contract violations
// panic (true, the default) or are silently tolerated as undefined
// behavior (false), a "fatal in debug, undefined in release" split.
// Production code under real latency pressure can flip this off after
// it has convinced itself the contracts hold.
var DebugAssertions = true

// Assert panics with a ProgrammerError ClassifiedError when
// DebugAssertions is enabled and cond is false. It is a no-op otherwise.
func Assert(component string, cond bool, msg string) {
	if cond || !DebugAssertions {
		return
	}
	panic(New(ProgrammerError, component, msg))
}
