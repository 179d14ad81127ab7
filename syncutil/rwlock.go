package syncutil

import (
	"runtime"

	"go.uber.org/atomic"

	"github.com/TheEntropyCollective/parastream/perrs"
)

// writerBit is the high bit of the r/w lock word; bit 30 is upgradeBit
// and the low 30 bits count active or pending readers.
const writerBit uint32 = 1 << 31

// upgradeBit is a second reserved bit used only to detect (in debug
// builds) two goroutines attempting UpgradeLock concurrently, a case
// the raw bit layout alone does not defend against.
const upgradeBit uint32 = 1 << 30

// relax approximates a CPU PAUSE between failed lock probes. Go has no
// portable pause intrinsic; yielding the goroutine lets the scheduler
// make progress on GOMAXPROCS=1 builds, which a bare spin loop would
// not.
func relax() { runtime.Gosched() }

// RawRWLock is the unaligned variant of RWLock, intended for arrays of
// many locks where cacheline padding per element would be wasteful.
// RWLock embeds this and adds padding; the algorithms live here once.
type RawRWLock struct {
	state atomic.Uint32
}

// LockShared acquires the lock for shared (reader) access.
func (l *RawRWLock) LockShared() {
	for {
		s := l.state.Add(1)
		if s&writerBit == 0 {
			return
		}
		l.state.Sub(1)
		for l.state.Load()&writerBit != 0 {
			relax()
		}
	}
}

// UnlockShared releases one shared (reader) hold.
func (l *RawRWLock) UnlockShared() {
	s := l.state.Sub(1)
	perrs.Assert("syncutil.RWLock", s != ^uint32(0), "UnlockShared called without a matching LockShared")
}

// Lock acquires the lock for exclusive (writer) access.
func (l *RawRWLock) Lock() {
	for {
		prev := l.state.Or(writerBit)
		if prev&writerBit == 0 {
			break
		}
		for l.state.Load()&writerBit != 0 {
			relax()
		}
	}
	for l.state.Load()&^writerBit != 0 {
		relax()
	}
}

// Unlock releases exclusive (writer) access.
func (l *RawRWLock) Unlock() {
	prev := l.state.And(^writerBit)
	perrs.Assert("syncutil.RWLock", prev&writerBit != 0, "Unlock called without holding the writer bit")
}

// UpgradeLock upgrades a held reader to the writer: it is only safe
// when at most one goroutine can attempt an upgrade at a time. In debug
// builds, a concurrent second attempt is detected via upgradeBit and
// panics instead of silently deadlocking.
func (l *RawRWLock) UpgradeLock() {
	if perrs.DebugAssertions {
		prev := l.state.Or(upgradeBit)
		perrs.Assert("syncutil.RWLock", prev&upgradeBit == 0, "concurrent UpgradeLock: at most one upgrader is permitted")
	}
	for {
		prev := l.state.Or(writerBit)
		if prev&writerBit == 0 {
			break
		}
		for l.state.Load()&writerBit != 0 {
			relax()
		}
	}
	l.state.Sub(1) // release the reader hold the caller already had
	for l.state.Load()&^(writerBit|upgradeBit) != 0 {
		relax()
	}
	if perrs.DebugAssertions {
		l.state.And(^upgradeBit)
	}
}

// DowngradeLock converts a held writer back into a reader.
func (l *RawRWLock) DowngradeLock() {
	l.state.Add(1)
	prev := l.state.And(^writerBit)
	perrs.Assert("syncutil.RWLock", prev&writerBit != 0, "DowngradeLock called without holding the writer bit")
}

// RWLock is the cacheline-aligned variant, suitable as a standalone
// field in a hot struct without false-sharing its neighbors.
type RWLock struct {
	_     [64]byte
	raw   RawRWLock
	_pad2 [64]byte
}

func (l *RWLock) LockShared()   { l.raw.LockShared() }
func (l *RWLock) UnlockShared() { l.raw.UnlockShared() }
func (l *RWLock) Lock()         { l.raw.Lock() }
func (l *RWLock) Unlock()       { l.raw.Unlock() }
func (l *RWLock) UpgradeLock()  { l.raw.UpgradeLock() }
func (l *RWLock) DowngradeLock() { l.raw.DowngradeLock() }
