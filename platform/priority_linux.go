//go:build linux

package platform

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// ThreadPriority mirrors the enum: {Low, Normal, High, Realtime}.
type ThreadPriority int

const (
	Low ThreadPriority = iota
	Normal
	High
	Realtime
)

// osNiceValue maps a ThreadPriority to a Linux "nice" value. Realtime is
// approximated with the most favorable nice value this API can express;
// true SCHED_FIFO/SCHED_RR requires CAP_SYS_NICE and is out of scope for
// a portable default.
func osNiceValue(p ThreadPriority) int {
	switch p {
	case Low:
		return 10
	case High:
		return -10
	case Realtime:
		return -20
	default:
		return 0
	}
}

// SetCurrentThreadPriority attempts to change the OS scheduling priority
// of the calling goroutine's underlying thread. The caller must already
// hold runtime.LockOSThread for this to have a stable, meaningful
// effect; callers that have not locked their OS thread may have the
// priority applied to an arbitrary thread. Returns false if the OS
// denies the change (e.g. insufficient privilege for a negative nice
// value), matching the "Operational (reported)" classification.
func SetCurrentThreadPriority(p ThreadPriority) bool {
	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, osNiceValue(p)); err != nil {
		return false
	}
	return true
}

// GetCurrentThreadPriority reads back the calling thread's nice value
// and buckets it into a ThreadPriority.
func GetCurrentThreadPriority() ThreadPriority {
	tid := unix.Gettid()
	nice, err := unix.Getpriority(unix.PRIO_PROCESS, tid)
	if err != nil {
		return Normal
	}
	// The raw Linux getpriority syscall returns (20 - nice); convert back.
	nice = 20 - nice
	switch {
	case nice <= -15:
		return Realtime
	case nice <= -5:
		return High
	case nice >= 5:
		return Low
	default:
		return Normal
	}
}

// LockOSThreadForPriority locks the calling goroutine to its current OS
// thread, which is a prerequisite for SetCurrentThreadPriority to stick.
// Callers are responsible for calling runtime.UnlockOSThread when the
// goroutine exits, typically via defer in the worker's run loop.
func LockOSThreadForPriority() {
	runtime.LockOSThread()
}
