package workers

import (
	"context"
	"math/rand"
	"runtime"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/TheEntropyCollective/parastream/oncefunc"
	"github.com/TheEntropyCollective/parastream/platform"
	"github.com/TheEntropyCollective/parastream/plog"
)

// taskEnvelope is the trampoline every task rides in: its body is drawn
// from bufpool's small-buffer allocator (via oncefunc.FromPooled)
// rather than left as an implicit closure allocation, and running it
// both invokes the task and releases that backing storage in one step.
type taskEnvelope struct {
	once *oncefunc.Func
}

func newTaskEnvelope(f func()) taskEnvelope {
	return taskEnvelope{once: oncefunc.FromPooled(f)}
}

func (e taskEnvelope) run() { e.once.Invoke() }

// Priority mirrors the thread priority classes.
type Priority = platform.ThreadPriority

const (
	PriorityLow      = platform.Low
	PriorityNormal   = platform.Normal
	PriorityHigh     = platform.High
	PriorityRealtime = platform.Realtime
)

// Config configures a Pool. A zero value is valid: every field falls
// back to a sensible default.
type Config struct {
	// WorkerCount is the number of worker goroutines. If 0, defaults to
	// DefaultPoolSize().
	WorkerCount int
	// MailboxSize bounds each worker's local mailbox. If 0, defaults to
	// 16.
	MailboxSize int
	// Priority is applied to every worker's OS thread at startup.
	Priority Priority
	// Logger receives lifecycle and suspension-point events. If nil,
	// a no-op logger is used.
	Logger *plog.Logger
}

// DefaultPoolSize returns runtime.GOMAXPROCS(0), which automaxprocs
// (imported for effect in doc.go) has already tuned to the container's
// CPU quota rather than the host's full core count.
func DefaultPoolSize() int {
	return runtime.GOMAXPROCS(0)
}

func (c *Config) setDefaults() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = DefaultPoolSize()
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = 16
	}
	if c.Logger == nil {
		c.Logger = plog.Nop()
	}
}

// Pool is a fixed-size set of persistent worker goroutines. Workers
// drain their own mailbox first, then attempt to steal from a random
// sibling, then check the shared overflow queue, then park.
type Pool struct {
	cfg     Config
	workers []*workerState

	mu       sync.Mutex
	cond     *sync.Cond
	overflow []taskEnvelope
	closed   bool
	wg       sync.WaitGroup

	nextRoundRobin atomic.Uint64
}

type workerState struct {
	pool    *Pool
	index   int
	mailbox chan taskEnvelope
	// info is minted once when the worker's goroutine starts and held
	// for its whole lifetime, giving it a stable platform.ThreadInfo.ID
	// the way a real worker-pool thread would (see platform.ThreadInfo).
	info *platform.ThreadInfo
}

// New creates and starts a Pool per cfg.
func New(cfg Config) *Pool {
	cfg.setDefaults()
	p := &Pool{cfg: cfg}
	p.cond = sync.NewCond(&p.mu)
	p.workers = make([]*workerState, cfg.WorkerCount)
	for i := range p.workers {
		w := &workerState{pool: p, index: i, mailbox: make(chan taskEnvelope, cfg.MailboxSize)}
		p.workers[i] = w
		p.wg.Add(1)
		go p.runWorker(w)
	}
	cfg.Logger.Info("pool.started", zap.Int("workers", cfg.WorkerCount))
	return p
}

func (p *Pool) runWorker(w *workerState) {
	defer p.wg.Done()
	w.info = platform.NewThreadInfo()
	w.info.Pool = p
	if p.cfg.Priority != PriorityNormal {
		platform.LockOSThreadForPriority()
		defer runtime.UnlockOSThread()
		platform.SetCurrentThreadPriority(p.cfg.Priority)
	}
	p.cfg.Logger.Debug("pool.worker.started", zap.Int("worker", w.index), zap.Uint64("thread_id", w.info.ID))
	for {
		f, ok := p.nextTask(w)
		if !ok {
			return
		}
		f.run()
	}
}

// nextTask implements the draining order: local mailbox, random-victim
// steal, overflow queue, then park.
func (p *Pool) nextTask(w *workerState) (taskEnvelope, bool) {
	select {
	case f := <-w.mailbox:
		return f, true
	default:
	}

	if f, ok := p.tryStealFrom(w); ok {
		return f, true
	}

	p.mu.Lock()
	for {
		if f, ok := p.popOverflowLocked(); ok {
			p.mu.Unlock()
			return f, true
		}
		if p.closed {
			p.mu.Unlock()
			return taskEnvelope{}, false
		}
		p.cfg.Logger.Debug("pool.worker.park", zap.Int("worker", w.index), zap.Uint64("thread_id", w.info.ID))
		p.cond.Wait()
	}
}

func (p *Pool) tryStealFrom(self *workerState) (taskEnvelope, bool) {
	n := len(p.workers)
	if n <= 1 {
		return taskEnvelope{}, false
	}
	victim := rand.Intn(n)
	for i := 0; i < n; i++ {
		idx := (victim + i) % n
		if idx == self.index {
			continue
		}
		select {
		case f := <-p.workers[idx].mailbox:
			p.cfg.Logger.Debug("pool.worker.steal", zap.Int("thief", self.index), zap.Int("victim", idx), zap.Uint64("thread_id", self.info.ID))
			return f, true
		default:
		}
	}
	return taskEnvelope{}, false
}

func (p *Pool) popOverflowLocked() (taskEnvelope, bool) {
	if len(p.overflow) == 0 {
		return taskEnvelope{}, false
	}
	f := p.overflow[0]
	p.overflow = p.overflow[1:]
	return f, true
}

// Schedule enqueues f, round-robining across worker mailboxes and
// falling back to the overflow queue when the chosen mailbox is full.
func (p *Pool) Schedule(f func()) {
	env := newTaskEnvelope(f)
	n := len(p.workers)
	if n > 0 {
		start := int(p.nextRoundRobin.Inc()-1) % n
		for i := 0; i < n; i++ {
			idx := (start + i) % n
			select {
			case p.workers[idx].mailbox <- env:
				p.wakeOne()
				return
			default:
			}
		}
	}
	p.mu.Lock()
	p.overflow = append(p.overflow, env)
	p.mu.Unlock()
	p.wakeOne()
}

// ScheduleForce is Schedule with the same semantics; Pool never runs
// anything inline on the caller's goroutine, so Schedule already always
// queues.
func (p *Pool) ScheduleForce(f func()) { p.Schedule(f) }

func (p *Pool) wakeOne() {
	p.mu.Lock()
	p.cond.Signal()
	p.mu.Unlock()
}

// depthFromContext reads the recursion-avoidance counter cached in
// ctx's platform.ThreadInfo (see platform.WithThreadInfo), defaulting
// to 0 for a ctx that never carried one.
func depthFromContext(ctx context.Context) int {
	if info := platform.CurrentThreadInfo(ctx); info != nil {
		return info.ParallelForDepth
	}
	return 0
}

// contextWithDepth derives a child context whose cached ThreadInfo has
// ParallelForDepth set to depth, preserving the existing ThreadInfo's
// ID (and therefore its identity) when ctx already carries one, and
// minting a fresh one otherwise.
func contextWithDepth(ctx context.Context, p *Pool, depth int) context.Context {
	next := platform.ThreadInfo{ParallelForDepth: depth, Pool: p}
	if info := platform.CurrentThreadInfo(ctx); info != nil {
		next.ID = info.ID
	} else {
		next.ID = platform.NewThreadInfo().ID
	}
	return platform.WithThreadInfo(ctx, &next)
}

// ParallelFor splits [0, n) into contiguous chunks, one per worker, and
// runs fn for each chunk, blocking until all chunks complete. A nested
// ParallelFor call (fn itself calling p.ParallelFor on the same
// goroutine's call stack) runs sequentially instead of re-entering the
// pool, avoiding the deadlock a pool with only one idle worker could
// hit if a nested call tried to schedule more work onto itself.
func (p *Pool) ParallelFor(ctx context.Context, n int, fn func(ctx context.Context, start, end int)) {
	if n <= 0 {
		return
	}
	depth := depthFromContext(ctx)
	childCtx := contextWithDepth(ctx, p, depth+1)

	if depth > 0 {
		fn(childCtx, 0, n)
		return
	}

	workersWanted := len(p.workers)
	if workersWanted > n {
		workersWanted = n
	}
	if workersWanted <= 1 {
		fn(childCtx, 0, n)
		return
	}

	chunk := (n + workersWanted - 1) / workersWanted
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		start, end := start, end
		wg.Add(1)
		p.Schedule(func() {
			defer wg.Done()
			fn(childCtx, start, end)
		})
	}
	wg.Wait()
}

// ParallelForAtomic is ParallelFor's index-at-a-time variant for
// uneven per-item cost, using an atomic cursor for load balancing
// instead of fixed chunking.
func (p *Pool) ParallelForAtomic(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	if n <= 0 {
		return
	}
	depth := depthFromContext(ctx)
	childCtx := contextWithDepth(ctx, p, depth+1)
	if depth > 0 {
		for i := 0; i < n; i++ {
			fn(childCtx, i)
		}
		return
	}

	var cursor atomic.Int64
	workersWanted := len(p.workers)
	if workersWanted > n {
		workersWanted = n
	}
	if workersWanted <= 1 {
		for i := 0; i < n; i++ {
			fn(childCtx, i)
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(workersWanted)
	for i := 0; i < workersWanted; i++ {
		p.Schedule(func() {
			defer wg.Done()
			for {
				idx := int(cursor.Inc()) - 1
				if idx >= n {
					return
				}
				fn(childCtx, idx)
			}
		})
	}
	wg.Wait()
}

// Close signals shutdown, wakes every parked worker, and waits for all
// workers to drain and return. A worker only returns once its own
// mailbox, a steal pass over every sibling's mailbox, and the overflow
// queue all come up empty, so tasks scheduled before Close run before
// it returns; a task scheduled after the workers have exited never runs.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
	p.cfg.Logger.Info("pool.closed")
}

// NumWorkers reports the configured worker count.
func (p *Pool) NumWorkers() int { return len(p.workers) }

var _ Schedulable = (*Pool)(nil)
