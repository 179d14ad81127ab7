package scheduler

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/atomic"

	"github.com/TheEntropyCollective/parastream/workers"
)

// TestScheduler_PeriodicFiresExpectedTimes schedules a periodic task with
// period 10ms and timesToRun=5; elapsed time between the first and last
// firing should land in [40ms, 80ms], and exactly 5 firings occur.
func TestScheduler_PeriodicFiresExpectedTimes(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	inv := workers.ImmediateInvoker{}

	var mu sync.Mutex
	var times []time.Time

	done := make(chan struct{})
	var count atomic.Int32
	s.Schedule(inv, 0, 10*time.Millisecond, 5, Steady, func() bool {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		if count.Inc() == 5 {
			close(done)
		}
		return true
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("periodic task did not fire 5 times in time")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(times) != 5 {
		t.Fatalf("expected exactly 5 firings, got %d", len(times))
	}
	elapsed := times[4].Sub(times[0])
	if elapsed < 40*time.Millisecond || elapsed > 80*time.Millisecond {
		t.Fatalf("expected elapsed time in [40ms, 80ms], got %v", elapsed)
	}
}

func TestScheduler_OneShotFiresOnce(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	inv := workers.ImmediateInvoker{}
	done := make(chan struct{})
	var count atomic.Int32
	s.Schedule(inv, 5*time.Millisecond, 0, 1, Steady, func() bool {
		count.Inc()
		close(done)
		return true
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("one-shot task never fired")
	}
	time.Sleep(30 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Fatalf("expected exactly 1 firing, got %d", got)
	}
}

func TestScheduler_SelfCancelOnFalseReturn(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	inv := workers.ImmediateInvoker{}
	var count atomic.Int32
	task := s.Schedule(inv, 0, 5*time.Millisecond, -1, Steady, func() bool {
		n := count.Inc()
		return n < 3
	})

	time.Sleep(100 * time.Millisecond)
	if !task.Cancelled() {
		t.Fatal("expected task to have self-cancelled after returning false")
	}
	if got := count.Load(); got != 3 {
		t.Fatalf("expected exactly 3 invocations before self-cancel, got %d", got)
	}
}

func TestScheduler_ExplicitCancelStopsFutureFirings(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	inv := workers.ImmediateInvoker{}
	var count atomic.Int32
	task := s.Schedule(inv, 0, 5*time.Millisecond, -1, Steady, func() bool {
		count.Inc()
		return true
	})

	time.Sleep(20 * time.Millisecond)
	task.Cancel()
	after := count.Load()
	time.Sleep(50 * time.Millisecond)
	// Allow for one in-flight firing racing the cancel.
	if got := count.Load(); got > after+1 {
		t.Fatalf("expected firings to stop after Cancel, before=%d after=%d", after, got)
	}
}
