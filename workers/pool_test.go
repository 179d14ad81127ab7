package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/atomic"
)

func TestPool_ScheduleRunsEveryTask(t *testing.T) {
	p := New(Config{WorkerCount: 4})
	defer p.Close()

	const n = 500
	var wg sync.WaitGroup
	var count atomic.Int64
	wg.Add(n)
	for i := 0; i < n; i++ {
		p.Schedule(func() {
			count.Inc()
			wg.Done()
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for all scheduled tasks")
	}

	if got := count.Load(); got != n {
		t.Fatalf("expected %d tasks to run, got %d", n, got)
	}
}

func TestPool_StealingKeepsSingleWorkerBusy(t *testing.T) {
	// A pool with more workers than queued tasks on one mailbox should
	// still let idle workers steal and make progress.
	p := New(Config{WorkerCount: 8, MailboxSize: 2})
	defer p.Close()

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		p.Schedule(func() {
			defer wg.Done()
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stealing did not drain all tasks in time")
	}
}

// TestPool_ParallelForSum sums 1,000,000 doubles of the form a[i]=i via
// ParallelFor; expected total is 4.999995e11.
func TestPool_ParallelForSum(t *testing.T) {
	p := New(Config{})
	defer p.Close()

	const n = 1_000_000
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}

	partials := make([]float64, p.NumWorkers())
	var mu sync.Mutex
	p.ParallelFor(context.Background(), n, func(ctx context.Context, start, end int) {
		var local float64
		for i := start; i < end; i++ {
			local += data[i]
		}
		mu.Lock()
		partials = append(partials, local)
		mu.Unlock()
	})

	var total float64
	for _, p := range partials {
		total += p
	}

	const want = 4.999995e11
	if diff := total - want; diff > 1e6 || diff < -1e6 {
		t.Fatalf("expected sum close to %v, got %v", want, total)
	}
}

func TestPool_ParallelForNestedDoesNotDeadlock(t *testing.T) {
	p := New(Config{WorkerCount: 1})
	defer p.Close()

	done := make(chan struct{})
	go func() {
		p.ParallelFor(context.Background(), 4, func(ctx context.Context, start, end int) {
			p.ParallelFor(ctx, 4, func(ctx context.Context, start, end int) {})
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("nested ParallelFor deadlocked on a single-worker pool")
	}
}

func TestPool_ParallelForAtomicCoversAllIndices(t *testing.T) {
	p := New(Config{WorkerCount: 4})
	defer p.Close()

	const n = 10_000
	seen := make([]atomic.Bool, n)
	p.ParallelForAtomic(context.Background(), n, func(ctx context.Context, i int) {
		seen[i].Store(true)
	})
	for i, s := range seen {
		if !s.Load() {
			t.Fatalf("index %d was never visited", i)
		}
	}
}

func TestPool_CloseDrainsRunningWorkers(t *testing.T) {
	p := New(Config{WorkerCount: 2})
	var ran atomic.Bool
	p.Schedule(func() { ran.Store(true) })
	time.Sleep(50 * time.Millisecond)
	p.Close()
	if !ran.Load() {
		t.Fatal("expected scheduled task to have run before Close returned")
	}
}
