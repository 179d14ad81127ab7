//go:build !linux

package platform

import "runtime"

// ThreadPriority mirrors the enum: {Low, Normal, High, Realtime}.
type ThreadPriority int

const (
	Low ThreadPriority = iota
	Normal
	High
	Realtime
)

// SetCurrentThreadPriority is a no-op reporting failure on platforms
// where this module does not implement a native priority call; callers
// already treat a false return as "OS denied the change"
func SetCurrentThreadPriority(p ThreadPriority) bool {
	return false
}

// GetCurrentThreadPriority always reports Normal on unsupported platforms.
func GetCurrentThreadPriority() ThreadPriority {
	return Normal
}

// LockOSThreadForPriority locks the calling goroutine to its current OS
// thread, for API parity with the Linux build.
func LockOSThreadForPriority() {
	runtime.LockOSThread()
}
