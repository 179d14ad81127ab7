// Package taskgraph implements a dependency graph of nodes grouped into
// subgraphs, executed by any of a SingleThreadExecutor, a
// ConcurrentTaskSetExecutor, or a ParallelForExecutor, plus a
// bidirectional-propagation group for incremental invalidation.
package taskgraph

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/TheEntropyCollective/parastream/perrs"
)

// completedSentinel marks a node whose incomplete-predecessor count has
// reached the terminal "done" state kCompleted.
const completedSentinel = math.MinInt32

// Node is one unit of work in a Graph: a functor plus its edges.
type Node struct {
	fn func(context.Context) error

	graph   *Graph
	index   int
	name    string
	err     error
	ran     bool

	numPredecessors int32
	incomplete      atomic.Int32
	dependents      []*Node
}

// NewNode constructs a node running fn, initially with no predecessors.
func (g *Graph) NewNode(name string, fn func(context.Context) error) *Node {
	n := &Node{fn: fn, graph: g, name: name, index: len(g.nodes)}
	g.nodes = append(g.nodes, n)
	return n
}

// DependsOn records an edge from dep to n: dep must run before n. It
// must be called before the graph starts executing.
func (n *Node) DependsOn(dep *Node) {
	perrs.Assert("taskgraph", n.graph == dep.graph, "DependsOn across different graphs")
	dep.dependents = append(dep.dependents, n)
	n.numPredecessors++
	n.incomplete.Store(n.numPredecessors)
}

// Completed reports whether n has finished (its incomplete-predecessor
// count has reached the completed sentinel).
func (n *Node) Completed() bool {
	return n.incomplete.Load() == completedSentinel
}

// Ready reports whether n's incomplete-predecessor count has reached
// zero, i.e. every predecessor has run.
func (n *Node) Ready() bool {
	return n.incomplete.Load() == 0
}

// Err returns the error (if any) produced the last time n ran.
func (n *Node) Err() error {
	return n.err
}

// Name returns n's diagnostic label.
func (n *Node) Name() string {
	return n.name
}

// run executes n's functor and then, whether or not it returned an
// error, decrements each dependent's incomplete-predecessor count,
// returning the set of dependents that became ready
// as a result ("fetch_sub with value-1 transition wins scheduling
// rights").
func (n *Node) run(ctx context.Context) []*Node {
	n.err = n.fn(ctx)
	n.ran = true
	n.incomplete.Store(completedSentinel)

	if n.err != nil {
		n.graph.logger.Debug("graph.node.complete", zap.String("node", n.name), zap.Error(n.err))
	} else {
		n.graph.logger.Debug("graph.node.complete", zap.String("node", n.name))
	}

	var ready []*Node
	for _, dep := range n.dependents {
		if dep.incomplete.Dec() == 0 {
			ready = append(ready, dep)
		}
	}
	return ready
}

// markIncomplete resets n back to its full predecessor count, used by
// ForwardPropagator to re-arm a node for incremental reevaluation.
func (n *Node) markIncomplete() {
	n.incomplete.Store(n.numPredecessors)
	n.ran = false
	n.err = nil
}

func (n *Node) String() string {
	return fmt.Sprintf("Node(%s)", n.name)
}
