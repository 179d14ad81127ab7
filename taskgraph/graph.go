package taskgraph

import "github.com/TheEntropyCollective/parastream/plog"

// Graph owns every Node and Subgraph in a dependency graph, plus the
// union-find structure backing bi-prop groups. A union-find keyed by
// node index avoids reference cycles between nodes while keeping group
// union/find at amortized O(α(n)).
type Graph struct {
	nodes     []*Node
	subgraphs []*Subgraph

	uf unionFind

	logger *plog.Logger
}

// NewGraph returns an empty Graph with a no-op logger.
func NewGraph() *Graph {
	return &Graph{uf: newUnionFind(0), logger: plog.Nop()}
}

// SetLogger installs l as the graph's event logger; every node run
// against the graph afterward reports a graph.node.complete event
// through it. Passing nil restores the no-op default.
func (g *Graph) SetLogger(l *plog.Logger) {
	if l == nil {
		l = plog.Nop()
	}
	g.logger = l
}

// NewSubgraph creates and registers a new, initially empty Subgraph
// owned by g.
func (g *Graph) NewSubgraph() *Subgraph {
	s := &Subgraph{graph: g}
	g.subgraphs = append(g.subgraphs, s)
	return s
}

// BiPropDependsOn links a and b into the same bidirectional-propagation
// group. Order does not matter: the relation is undirected.
func (g *Graph) BiPropDependsOn(a, b *Node) {
	g.growUnionFind()
	g.uf.union(a.index, b.index)
}

func (g *Graph) growUnionFind() {
	for g.uf.size() < len(g.nodes) {
		g.uf.grow()
	}
}

// Subgraph is an owning collection of nodes within a Graph.
type Subgraph struct {
	graph *Graph
	nodes []*Node
}

// Add registers n as a member of s. n must belong to s's graph.
func (s *Subgraph) Add(n *Node) {
	s.nodes = append(s.nodes, n)
}

// Nodes returns the subgraph's member nodes.
func (s *Subgraph) Nodes() []*Node {
	return s.nodes
}

// Clear implements the four-step Subgraph::clear algorithm:
//  1. For each node n in s, decrement numPredecessors on each of n's
//     dependents (removing the incoming edge).
//  2. Identify nodes in s with remaining incoming edges from elsewhere;
//     mark those with a sentinel.
//  3. For every other subgraph in the graph, walk each node's
//     dependents and remove any dependent whose sentinel is set.
//  4. Release s's nodes.
func (s *Subgraph) Clear() {
	cleared := make(map[*Node]bool, len(s.nodes))
	for _, n := range s.nodes {
		cleared[n] = true
	}

	// Step 1: remove the incoming-edge accounting that cleared nodes
	// contributed to their dependents.
	for _, n := range s.nodes {
		for _, dep := range n.dependents {
			if cleared[dep] {
				continue
			}
			dep.numPredecessors--
			if dep.incomplete.Load() != completedSentinel {
				dep.incomplete.Dec()
			}
		}
	}

	// Step 2 is implicit: `cleared` itself is the sentinel map used by
	// step 3 below, standing in for a per-node sentinel flag.

	// Step 3: remove cleared nodes from every other subgraph's
	// dependents lists, and from this subgraph's own remaining nodes'
	// dependents lists too (cleared nodes may depend on each other).
	for _, other := range s.graph.subgraphs {
		for _, n := range other.nodes {
			n.dependents = removeCleared(n.dependents, cleared)
		}
	}

	// Step 4: release s's nodes. The Graph's own nodes slice is left
	// alone (nodes remain addressable by index for the union-find), but
	// the subgraph no longer owns any of them.
	s.nodes = nil
}

func removeCleared(deps []*Node, cleared map[*Node]bool) []*Node {
	out := deps[:0]
	for _, d := range deps {
		if !cleared[d] {
			out = append(out, d)
		}
	}
	return out
}
