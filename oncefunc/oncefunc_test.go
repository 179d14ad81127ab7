package oncefunc

import (
	"testing"

	"github.com/TheEntropyCollective/parastream/bufpool"
)

func TestInvokeRunsExactlyOnce(t *testing.T) {
	calls := 0
	f := From(func() { calls++ })
	f.Invoke()
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if !f.Invoked() {
		t.Fatalf("expected Invoked() true after Invoke")
	}
}

func TestDoubleInvokePanicsInDebugMode(t *testing.T) {
	f := From(func() {})
	f.Invoke()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double invoke")
		}
	}()
	f.Invoke()
}

func TestTakeTransfersOwnership(t *testing.T) {
	calls := 0
	f := From(func() { calls++ })
	moved := f.Take()
	if !f.Invoked() {
		t.Fatalf("source should report invoked-equivalent (empty) after Take")
	}
	moved.Invoke()
	if calls != 1 {
		t.Fatalf("expected moved Func to run the functor once, got %d calls", calls)
	}
}

func TestFromPooledRunsExactlyOnceAndReleasesBackingBuffer(t *testing.T) {
	before := bufpool.BytesAllocated(pooledEnvelopeSize)

	calls := 0
	f := FromPooled(func() { calls++ })
	f.Invoke()
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}

	// A second FromPooled should be able to reuse the buffer Invoke just
	// released, rather than growing the size class's slab count.
	g := FromPooled(func() {})
	g.Invoke()

	after := bufpool.BytesAllocated(pooledEnvelopeSize)
	if after > before+int64(pooledEnvelopeSize) {
		t.Fatalf("expected at most one new slab grown, went from %d to %d bytes", before, after)
	}
}

func TestFromPooledTakeCarriesBackingBuffer(t *testing.T) {
	calls := 0
	f := FromPooled(func() { calls++ })
	moved := f.Take()
	if moved.pooledBuf == nil {
		t.Fatal("expected Take to carry the pooled backing buffer to the moved Func")
	}
	moved.Invoke()
	if calls != 1 {
		t.Fatalf("expected moved Func to run the functor once, got %d calls", calls)
	}
}
