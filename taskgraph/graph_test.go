package taskgraph

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/TheEntropyCollective/parastream/plog"
	"github.com/TheEntropyCollective/parastream/workers"
)

// buildDiamond builds an A->B, A->C, B->D, C->D diamond graph,
// recording each node's run order into order (guarded by mu).
func buildDiamond(g *Graph, order *[]string, mu *sync.Mutex) (a, b, c, d *Node) {
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			*order = append(*order, name)
			mu.Unlock()
			return nil
		}
	}
	a = g.NewNode("A", record("A"))
	b = g.NewNode("B", record("B"))
	c = g.NewNode("C", record("C"))
	d = g.NewNode("D", record("D"))
	b.DependsOn(a)
	c.DependsOn(a)
	d.DependsOn(b)
	d.DependsOn(c)
	return
}

func indexOf(order []string, name string) int {
	for i, v := range order {
		if v == name {
			return i
		}
	}
	return -1
}

func assertDiamondOrder(t *testing.T, order []string) {
	t.Helper()
	if len(order) != 4 {
		t.Fatalf("expected 4 node executions, got %d: %v", len(order), order)
	}
	ia, ib, ic, id := indexOf(order, "A"), indexOf(order, "B"), indexOf(order, "C"), indexOf(order, "D")
	if ia > ib || ia > ic {
		t.Fatalf("A must run before B and C: %v", order)
	}
	if ib > id || ic > id {
		t.Fatalf("B and C must run before D: %v", order)
	}
}

func TestSingleThreadExecutor_Diamond(t *testing.T) {
	g := NewGraph()
	var order []string
	var mu sync.Mutex
	a, _, _, _ := buildDiamond(g, &order, &mu)

	err := SingleThreadExecutor{}.Run(context.Background(), []*Node{a})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDiamondOrder(t, order)
}

func TestConcurrentTaskSetExecutor_Diamond(t *testing.T) {
	p := workers.New(workers.Config{WorkerCount: 4})
	defer p.Close()

	g := NewGraph()
	var order []string
	var mu sync.Mutex
	a, _, _, _ := buildDiamond(g, &order, &mu)

	exec := ConcurrentTaskSetExecutor{Sched: p}
	err := exec.Run(context.Background(), []*Node{a})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDiamondOrder(t, order)
}

func TestParallelForExecutor_Diamond(t *testing.T) {
	p := workers.New(workers.Config{WorkerCount: 4})
	defer p.Close()

	g := NewGraph()
	var order []string
	var mu sync.Mutex
	a, _, _, _ := buildDiamond(g, &order, &mu)

	exec := ParallelForExecutor{Pool: p}
	err := exec.Run(context.Background(), []*Node{a})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDiamondOrder(t, order)
}

func TestExecutors_PropagateNodeError(t *testing.T) {
	boom := errors.New("boom")

	newFailingGraph := func() (g *Graph, root *Node) {
		g = NewGraph()
		root = g.NewNode("root", func(context.Context) error { return nil })
		failing := g.NewNode("failing", func(context.Context) error { return boom })
		failing.DependsOn(root)
		return
	}

	t.Run("SingleThreadExecutor", func(t *testing.T) {
		g, root := newFailingGraph()
		err := SingleThreadExecutor{}.Run(context.Background(), []*Node{root})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		_ = g
	})

	t.Run("ConcurrentTaskSetExecutor", func(t *testing.T) {
		p := workers.New(workers.Config{WorkerCount: 2})
		defer p.Close()
		g, root := newFailingGraph()
		exec := ConcurrentTaskSetExecutor{Sched: p}
		err := exec.Run(context.Background(), []*Node{root})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		_ = g
	})

	t.Run("ParallelForExecutor", func(t *testing.T) {
		p := workers.New(workers.Config{WorkerCount: 2})
		defer p.Close()
		g, root := newFailingGraph()
		exec := ParallelForExecutor{Pool: p}
		err := exec.Run(context.Background(), []*Node{root})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		_ = g
	})
}

// TestSingleThreadExecutor_LogsNodeCompletionInOrder checks graph.node.complete
// events via an in-memory zapcore.ObserverCore rather than racing on
// sleeps to infer suspension-point ordering.
func TestSingleThreadExecutor_LogsNodeCompletionInOrder(t *testing.T) {
	logger, logs := plog.NewObserved()
	g := NewGraph()
	g.SetLogger(logger)

	var order []string
	var mu sync.Mutex
	a, b, c, d := buildDiamond(g, &order, &mu)

	if err := (SingleThreadExecutor{}).Run(context.Background(), []*Node{a}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, _ = b, c, d

	var completed []string
	for _, entry := range logs.All() {
		if entry.Message != "graph.node.complete" {
			continue
		}
		for _, f := range entry.Context {
			if f.Key == "node" {
				completed = append(completed, f.String)
			}
		}
	}
	if len(completed) != 4 {
		t.Fatalf("expected 4 graph.node.complete events, got %d: %v", len(completed), completed)
	}
	if completed[0] != "A" {
		t.Fatalf("expected A to complete first, got order %v", completed)
	}
	if completed[len(completed)-1] != "D" {
		t.Fatalf("expected D to complete last, got order %v", completed)
	}
}

func TestSubgraph_ClearRemovesDanglingEdges(t *testing.T) {
	g := NewGraph()
	s1 := g.NewSubgraph()
	s2 := g.NewSubgraph()

	noop := func(context.Context) error { return nil }
	a := g.NewNode("a", noop)
	b := g.NewNode("b", noop)
	s1.Add(a)
	s2.Add(b)
	b.DependsOn(a)

	if b.numPredecessors != 1 {
		t.Fatalf("expected b to have 1 predecessor before clear, got %d", b.numPredecessors)
	}

	s1.Clear()

	if len(s1.Nodes()) != 0 {
		t.Fatal("expected s1 to be empty after Clear")
	}
	if b.numPredecessors != 0 {
		t.Fatalf("expected b's predecessor count to drop to 0 after clearing a, got %d", b.numPredecessors)
	}
	if !b.Ready() {
		t.Fatal("expected b to be ready after its only predecessor was cleared")
	}
	for _, n := range s2.nodes {
		for _, dep := range n.dependents {
			if dep == a {
				t.Fatal("expected cleared node a to be removed from every surviving dependents list")
			}
		}
	}
}

func TestForwardPropagator_BiPropGroupAndDependents(t *testing.T) {
	g := NewGraph()
	noop := func(context.Context) error { return nil }
	x := g.NewNode("x", noop)
	y := g.NewNode("y", noop)
	z := g.NewNode("z", noop)
	downstream := g.NewNode("downstream", noop)
	downstream.DependsOn(y)

	g.BiPropDependsOn(x, y)

	ctx := context.Background()
	_ = SingleThreadExecutor{}.Run(ctx, []*Node{x, z, y})
	if !x.Completed() || !y.Completed() {
		t.Fatal("expected x and y to have completed")
	}

	NewForwardPropagator(g).MarkIncomplete(x)

	if x.Completed() {
		t.Fatal("expected seed x to be marked incomplete")
	}
	if y.Completed() {
		t.Fatal("expected bi-prop partner y to be marked incomplete")
	}
	if downstream.Completed() {
		t.Fatal("expected forward-reachable dependent to be marked incomplete")
	}
	if !z.Completed() {
		// z was never bi-prop linked and is not downstream of x, so it
		// must be left alone (still completed).
		t.Fatal("expected unrelated node z to stay completed")
	}
}

func TestForwardPropagator_EmptyGroupIsNoOp(t *testing.T) {
	// A node that was never linked via BiPropDependsOn has no group;
	// MarkIncomplete on it should still re-arm the seed itself and its
	// forward dependents without panicking on an absent union-find
	// entry.
	g := NewGraph()
	noop := func(context.Context) error { return nil }
	solo := g.NewNode("solo", noop)
	dep := g.NewNode("dep", noop)
	dep.DependsOn(solo)

	_ = SingleThreadExecutor{}.Run(context.Background(), []*Node{solo})
	if !solo.Completed() || !dep.Completed() {
		t.Fatal("expected both nodes to have completed")
	}

	NewForwardPropagator(g).MarkIncomplete(solo)
	if solo.Completed() || dep.Completed() {
		t.Fatal("expected solo and its dependent to be marked incomplete")
	}
}

func TestDOTExport_ContainsClustersAndEdges(t *testing.T) {
	g := NewGraph()
	s := g.NewSubgraph()
	noop := func(context.Context) error { return nil }
	a := g.NewNode("A", noop)
	b := g.NewNode("B", noop)
	b.DependsOn(a)
	s.Add(a)
	s.Add(b)
	g.BiPropDependsOn(a, b)

	var buf bytes.Buffer
	if err := DOTExport(&buf, g); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "subgraph cluster_0") {
		t.Fatalf("expected a cluster_0 subgraph, got:\n%s", out)
	}
	if !strings.Contains(out, `"A" -> "B"`) {
		t.Fatalf("expected an A->B edge, got:\n%s", out)
	}
	if !strings.Contains(out, "style=dashed") {
		t.Fatalf("expected a dashed bi-prop edge, got:\n%s", out)
	}
}
