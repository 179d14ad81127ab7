package taskgraph

import (
	"context"
	"sync"

	"go.uber.org/multierr"

	"github.com/TheEntropyCollective/parastream/workers"
)

// readyNodes returns every node in nodes whose incomplete-predecessor
// count is already zero, the seed set every executor starts from.
func readyNodes(nodes []*Node) []*Node {
	var ready []*Node
	for _, n := range nodes {
		if n.Ready() {
			ready = append(ready, n)
		}
	}
	return ready
}

// SingleThreadExecutor runs a graph level-by-level, serially, on the
// calling goroutine.
type SingleThreadExecutor struct{}

// Run executes every reachable node starting from the given roots,
// level by level, until no more nodes become ready.
func (SingleThreadExecutor) Run(ctx context.Context, roots []*Node) error {
	level := readyNodes(roots)
	var firstErr error
	for len(level) > 0 {
		var next []*Node
		for _, n := range level {
			ready := n.run(ctx)
			if n.err != nil && firstErr == nil {
				firstErr = n.err
			}
			next = append(next, ready...)
		}
		level = next
	}
	return firstErr
}

// ConcurrentTaskSetExecutor runs ready nodes concurrently against a
// workers.ConcurrentTaskSet, scheduling newly-ready dependents as each
// node completes.
type ConcurrentTaskSetExecutor struct {
	Sched workers.Schedulable
}

// Run schedules roots (and any node that becomes ready as a result)
// onto the executor's Schedulable and blocks until the whole reachable
// set has run, aggregating both node functor errors and any panics
// recovered by the underlying task set.
func (e ConcurrentTaskSetExecutor) Run(ctx context.Context, roots []*Node) error {
	set := workers.NewConcurrentTaskSet(e.Sched)

	var mu sync.Mutex
	var nodeErrs error

	var schedule func(n *Node)
	schedule = func(n *Node) {
		set.Schedule(func() {
			ready := n.run(ctx)
			if n.err != nil {
				mu.Lock()
				nodeErrs = multierr.Append(nodeErrs, n.err)
				mu.Unlock()
			}
			for _, r := range ready {
				schedule(r)
			}
		})
	}

	for _, n := range readyNodes(roots) {
		schedule(n)
	}
	panicErr := set.WaitErr()

	mu.Lock()
	defer mu.Unlock()
	return multierr.Append(nodeErrs, panicErr)
}

// ParallelForExecutor runs each level of ready nodes via
// workers.Pool.ParallelFor.
type ParallelForExecutor struct {
	Pool *workers.Pool
}

// Run executes every reachable node level by level, parallelizing each
// level's node executions across the pool.
func (e ParallelForExecutor) Run(ctx context.Context, roots []*Node) error {
	level := readyNodes(roots)
	var firstErr error
	for len(level) > 0 {
		nextSets := make([][]*Node, len(level))
		e.Pool.ParallelForAtomic(ctx, len(level), func(ctx context.Context, i int) {
			nextSets[i] = level[i].run(ctx)
		})
		var next []*Node
		for i, n := range level {
			if n.err != nil && firstErr == nil {
				firstErr = n.err
			}
			next = append(next, nextSets[i]...)
		}
		level = next
	}
	return firstErr
}
