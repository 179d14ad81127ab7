package taskgraph

import (
	"fmt"
	"io"
)

// DOTExport writes g as Graphviz text: one "subgraph cluster_N" per
// Subgraph, dashed edges for bi-prop membership, and completed nodes
// filled.
func DOTExport(w io.Writer, g *Graph) error {
	if _, err := io.WriteString(w, "digraph TaskGraph {\n"); err != nil {
		return err
	}

	for si, sg := range g.subgraphs {
		if _, err := fmt.Fprintf(w, "  subgraph cluster_%d {\n", si); err != nil {
			return err
		}
		for _, n := range sg.nodes {
			style := ""
			if n.Completed() {
				style = ` [style=filled,fillcolor=lightgray]`
			}
			if _, err := fmt.Fprintf(w, "    %q%s;\n", nodeLabel(n), style); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "  }\n"); err != nil {
			return err
		}
	}

	for _, n := range g.nodes {
		for _, dep := range n.dependents {
			if _, err := fmt.Fprintf(w, "  %q -> %q;\n", nodeLabel(n), nodeLabel(dep)); err != nil {
				return err
			}
		}
	}

	emitted := make(map[[2]int]bool)
	for _, n := range g.nodes {
		if g.uf.size() <= n.index {
			continue
		}
		for _, idx := range g.uf.groupOf(n.index) {
			if idx == n.index {
				continue
			}
			key := [2]int{n.index, idx}
			if n.index > idx {
				key = [2]int{idx, n.index}
			}
			if emitted[key] {
				continue
			}
			emitted[key] = true
			if _, err := fmt.Fprintf(w, "  %q -> %q [style=dashed,dir=none];\n", nodeLabel(n), nodeLabel(g.nodes[idx])); err != nil {
				return err
			}
		}
	}

	_, err := io.WriteString(w, "}\n")
	return err
}

func nodeLabel(n *Node) string {
	if n.name != "" {
		return n.name
	}
	return fmt.Sprintf("node%d", n.index)
}
