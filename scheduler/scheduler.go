// Package scheduler implements a timed-task dispatcher: a single
// goroutine running a min-heap of timed tasks, with an adaptive wait
// strategy and steady/elapsed periodic rescheduling.
package scheduler

import (
	"container/heap"
	"runtime"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/TheEntropyCollective/parastream/perrs"
	"github.com/TheEntropyCollective/parastream/platform"
	"github.com/TheEntropyCollective/parastream/plog"
	"github.com/TheEntropyCollective/parastream/workers"
)

// Adaptive wait thresholds
const (
	busyPopThreshold  = 10 * time.Microsecond
	spinThreshold     = 75 * time.Microsecond
	yieldThreshold    = 750 * time.Microsecond
)

// RescheduleMode selects how a periodic task's next firing time is
// computed.
type RescheduleMode int

const (
	// Steady adds the period to the task's previous nextAbsTime,
	// keeping a stable cadence even if a firing runs late.
	Steady RescheduleMode = iota
	// Elapsed adds the period to the current time, so a late firing
	// pushes every subsequent one back by the same amount.
	Elapsed
)

// TimedTask is a handle to a (possibly periodic) task registered with a
// Scheduler.
type TimedTask struct {
	fn       func() bool
	sched    workers.Schedulable
	period   time.Duration
	mode     RescheduleMode
	timesToRun int64 // <0 means unbounded

	nextAbsTime time.Time
	cancelled   atomic.Bool
	inProgress  atomic.Int32

	index int // heap index, maintained by container/heap
}

// Cancelled reports whether the task has been cancelled, either
// explicitly via Cancel or by its own functor returning false.
func (t *TimedTask) Cancelled() bool {
	return t.cancelled.Load()
}

// Cancel marks the task cancelled: a firing whose functor is already
// running finishes, a firing that has not started its functor yet is
// skipped, and no further firing is scheduled.
func (t *TimedTask) Cancel() {
	t.cancelled.Store(true)
}

// RemainingRuns reports how many future invocations remain, or a
// negative value if unbounded. A cancelled task reports 0.
func (t *TimedTask) RemainingRuns() int64 {
	if t.Cancelled() {
		return 0
	}
	return t.timesToRun
}

// taskHeap is a container/heap min-heap keyed by nextAbsTime.
type taskHeap []*TimedTask

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].nextAbsTime.Before(h[j].nextAbsTime) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *taskHeap) Push(x interface{}) {
	t := x.(*TimedTask)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Config configures a Scheduler.
type Config struct {
	// Priority is applied to the dispatcher goroutine's OS thread.
	Priority platform.ThreadPriority
	// Logger receives lifecycle and firing events.
	Logger *plog.Logger
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = plog.Nop()
	}
}

// Scheduler runs one dispatcher goroutine that fires TimedTasks onto
// their bound workers.Schedulable as they come due.
type Scheduler struct {
	cfg Config

	mu     sync.Mutex
	heap   taskHeap
	epoch  atomic.Uint64
	wakeCh chan struct{}

	closed chan struct{}
	done   sync.WaitGroup
}

// New creates and starts a Scheduler.
func New(cfg Config) *Scheduler {
	cfg.setDefaults()
	s := &Scheduler{
		cfg:    cfg,
		wakeCh: make(chan struct{}),
		closed: make(chan struct{}),
	}
	s.done.Add(1)
	go s.run()
	return s
}

// Schedule registers a one-shot or periodic task against sched.
//
// fn is invoked at each firing; a false return self-cancels the task
// (no further firings, even if invocations remain). If period > 0 and
// timesToRun != 0, the task is periodic; timesToRun < 0 means
// unbounded.
func (s *Scheduler) Schedule(sched workers.Schedulable, delay, period time.Duration, timesToRun int64, mode RescheduleMode, fn func() bool) *TimedTask {
	t := &TimedTask{
		fn:          fn,
		sched:       sched,
		period:      period,
		mode:        mode,
		timesToRun:  timesToRun,
		nextAbsTime: time.Now().Add(delay),
	}
	s.mu.Lock()
	heap.Push(&s.heap, t)
	s.mu.Unlock()
	s.bumpEpoch()
	return t
}

func (s *Scheduler) bumpEpoch() {
	s.mu.Lock()
	old := s.wakeCh
	s.wakeCh = make(chan struct{})
	s.mu.Unlock()
	s.epoch.Inc()
	close(old)
}

func (s *Scheduler) waitChan() chan struct{} {
	s.mu.Lock()
	ch := s.wakeCh
	s.mu.Unlock()
	return ch
}

func (s *Scheduler) run() {
	defer s.done.Done()
	info := platform.NewThreadInfo()
	if s.cfg.Priority != platform.Normal {
		platform.LockOSThreadForPriority()
		defer runtime.UnlockOSThread()
		platform.SetCurrentThreadPriority(s.cfg.Priority)
	}
	s.cfg.Logger.Debug("scheduler.dispatcher.started", zap.Uint64("thread_id", info.ID))

	for {
		select {
		case <-s.closed:
			return
		default:
		}

		s.mu.Lock()
		if s.heap.Len() == 0 {
			s.mu.Unlock()
			select {
			case <-s.waitChan():
			case <-s.closed:
				return
			}
			continue
		}
		top := s.heap[0]
		s.mu.Unlock()

		wait := time.Until(top.nextAbsTime)
		if !s.adaptiveWait(wait) {
			continue
		}

		s.mu.Lock()
		if s.heap.Len() == 0 || s.heap[0] != top {
			s.mu.Unlock()
			continue
		}
		if time.Now().Before(top.nextAbsTime) {
			s.mu.Unlock()
			continue
		}
		heap.Pop(&s.heap)
		s.mu.Unlock()

		s.fire(top)
	}
}

// adaptiveWait blocks for approximately d using an escalating strategy
// (busy-pop, then spin, then yield-loop, then a blocking timer),
// returning false if the scheduler was closed or woken early by a new,
// earlier-firing task.
func (s *Scheduler) adaptiveWait(d time.Duration) bool {
	switch {
	case d <= busyPopThreshold:
		return true
	case d <= spinThreshold:
		deadline := time.Now().Add(d)
		for time.Now().Before(deadline) {
			runtime.Gosched()
		}
		return true
	case d <= yieldThreshold:
		deadline := time.Now().Add(d)
		wake := s.waitChan()
		for time.Now().Before(deadline) {
			select {
			case <-wake:
				return false
			case <-s.closed:
				return false
			default:
				runtime.Gosched()
			}
		}
		return true
	default:
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return true
		case <-s.waitChan():
			return false
		case <-s.closed:
			return false
		}
	}
}

func (s *Scheduler) fire(t *TimedTask) {
	t.inProgress.Inc()
	t.sched.ScheduleForce(func() {
		defer t.inProgress.Dec()

		if t.Cancelled() {
			return
		}
		ok := t.fn()
		if !ok {
			t.Cancel()
			return
		}
		s.cfg.Logger.Debug("scheduler.task.fired", zap.String("mode", modeName(t.mode)))

		if t.period <= 0 {
			t.timesToRun = 0
			return
		}
		if t.timesToRun == 0 {
			return
		}
		if t.timesToRun > 0 {
			t.timesToRun--
			if t.timesToRun == 0 {
				return
			}
		}
		if t.Cancelled() {
			return
		}

		switch t.mode {
		case Steady:
			t.nextAbsTime = t.nextAbsTime.Add(t.period)
		default:
			t.nextAbsTime = time.Now().Add(t.period)
		}
		s.mu.Lock()
		heap.Push(&s.heap, t)
		s.mu.Unlock()
		s.bumpEpoch()
	})
}

func modeName(m RescheduleMode) string {
	if m == Steady {
		return "steady"
	}
	return "elapsed"
}

// Close stops the dispatcher, then, for every task still in the heap,
// waits on its in-progress counter until no firing of it is running.
// A task that has been popped for a firing and not pushed back yet is
// not in the heap, so Close does not wait for that firing.
func (s *Scheduler) Close() {
	close(s.closed)
	s.done.Wait()

	s.mu.Lock()
	pending := make([]*TimedTask, len(s.heap))
	copy(pending, s.heap)
	s.mu.Unlock()

	for _, t := range pending {
		perrs.Assert("scheduler", t.inProgress.Load() >= 0, "negative in-progress count")
		for t.inProgress.Load() > 0 {
			runtime.Gosched()
		}
	}
	s.cfg.Logger.Info("scheduler.closed")
}
