// Package bufpool is a small-buffer allocator: a fixed set of size
// classes, each with zero-locking fast-path reuse. It is a thin,
// instrumented wrapper over sync.Pool rather than a hand-rolled
// thread-local slab allocator, since sync.Pool already implements the
// per-P free-list-plus-shared-pool shape and fighting the runtime's own
// allocator to reimplement it by hand would not make the fast path any
// faster.
package bufpool

import (
	"sync"

	"go.uber.org/atomic"
)

// Classes are the size-class boundaries in bytes: small powers of two
// up to a cap of 256 bytes.
var Classes = [...]int{32, 64, 128, 256}

type sizeClass struct {
	size  int
	pool  sync.Pool
	bytes atomic.Int64
}

var classes [len(Classes)]*sizeClass

func init() {
	for i, size := range Classes {
		size := size
		c := &sizeClass{size: size}
		c.pool.New = func() interface{} {
			c.bytes.Add(int64(size))
			return make([]byte, size)
		}
		classes[i] = c
	}
}

// ClassFor returns the index into Classes that fits n bytes, or -1 if n
// exceeds the largest size class and must fall back to a general
// allocation.
func ClassFor(n int) int {
	for i, size := range Classes {
		if n <= size {
			return i
		}
	}
	return -1
}

// Alloc returns a []byte of length n. For n within a size class, the
// backing array is drawn from that class's pool; above the largest
// class it falls through to a plain make([]byte, n), so overflow sizes
// fall back to system allocation.
func Alloc(n int) []byte {
	idx := ClassFor(n)
	if idx < 0 {
		return make([]byte, n)
	}
	c := classes[idx]
	buf := c.pool.Get().([]byte)
	return buf[:n]
}

// Dealloc returns a buffer previously obtained from Alloc with the same
// n to its size class's pool. Buffers obtained via the general
// allocation fallback (n above the largest class) are simply dropped
// for the garbage collector to reclaim.
func Dealloc(n int, buf []byte) {
	idx := ClassFor(n)
	if idx < 0 {
		return
	}
	c := classes[idx]
	c.pool.Put(buf[:c.size])
}

// BytesAllocated reports the cumulative number of bytes carved for the
// size class containing n. It counts only slab growth (pool misses),
// not reuse, so it is monotonically non-decreasing and bounded by how
// many distinct concurrent chunks the class has ever needed
// simultaneously.
func BytesAllocated(n int) int64 {
	idx := ClassFor(n)
	if idx < 0 {
		return 0
	}
	return classes[idx].bytes.Load()
}
