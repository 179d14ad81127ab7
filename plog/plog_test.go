package plog

import "testing"

func TestObservedLoggerCapturesOrder(t *testing.T) {
	l, logs := NewObserved()
	l.Debug("pool.worker.park")
	l.Debug("pool.worker.wake")
	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "pool.worker.park" || entries[1].Message != "pool.worker.wake" {
		t.Fatalf("unexpected event order: %v", entries)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Debug("noop") // must not panic
}

func TestNopLoggerDiscards(t *testing.T) {
	l := Nop()
	l.Info("anything")
}
