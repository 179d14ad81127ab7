package taskgraph

// ForwardPropagator implements bi-prop group invalidation: when a node
// in a bi-prop group transitions to incomplete, every member of its
// group, and every forward-reachable dependent of every such member,
// must also be marked incomplete.
type ForwardPropagator struct {
	graph *Graph
}

// NewForwardPropagator returns a propagator bound to g.
func NewForwardPropagator(g *Graph) *ForwardPropagator {
	return &ForwardPropagator{graph: g}
}

// MarkIncomplete re-arms every seed node, every other member of each
// seed's bi-prop group, and every node transitively reachable via
// dependents from any of those, gathering visited groups by root so a
// group already propagated is never revisited.
func (p *ForwardPropagator) MarkIncomplete(seeds ...*Node) {
	visitedNodes := make(map[*Node]bool)
	visitedGroups := make(map[int]bool)

	var queue []*Node
	enqueue := func(n *Node) {
		if visitedNodes[n] {
			return
		}
		visitedNodes[n] = true
		queue = append(queue, n)
	}

	for _, s := range seeds {
		enqueue(s)
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		n.markIncomplete()

		if p.graph.uf.size() > n.index {
			root := p.graph.uf.find(n.index)
			if !visitedGroups[root] {
				visitedGroups[root] = true
				for _, idx := range p.graph.uf.groupOf(n.index) {
					enqueue(p.graph.nodes[idx])
				}
			}
		}

		for _, dep := range n.dependents {
			enqueue(dep)
		}
	}
}
