package depgraph

import (
	"sort"

	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Directed converts g to a gonum directed graph whose node IDs are the
// NodeIndex values.
func (g *Graph) Directed() *simple.DirectedGraph {
	return g.induced(nil)
}

// induced builds the subgraph over keep, or the whole graph when keep is nil.
func (g *Graph) induced(keep map[NodeIndex]bool) *simple.DirectedGraph {
	dg := simple.NewDirectedGraph()
	for i := range g.nodes {
		if keep != nil && !keep[NodeIndex(i)] {
			continue
		}
		dg.AddNode(simple.Node(int64(i)))
	}
	g.Edges(func(from, to NodeIndex) bool {
		// simple graphs reject self-loops
		if from == to {
			return true
		}
		if keep != nil && (!keep[from] || !keep[to]) {
			return true
		}
		dg.SetEdge(simple.Edge{F: simple.Node(int64(from)), T: simple.Node(int64(to))})
		return true
	})
	return dg
}

// StronglyConnected returns the strongly connected components with more
// than one member among the given nodes, considering only edges inside the
// subset. Members and components are sorted by index.
func (g *Graph) StronglyConnected(subset []NodeIndex) [][]NodeIndex {
	if len(subset) < 2 {
		return nil
	}
	keep := make(map[NodeIndex]bool, len(subset))
	for _, idx := range subset {
		if g.valid(idx) {
			keep[idx] = true
		}
	}

	var out [][]NodeIndex
	for _, comp := range topo.TarjanSCC(g.induced(keep)) {
		if len(comp) < 2 {
			continue
		}
		members := make([]NodeIndex, len(comp))
		for i, n := range comp {
			members[i] = NodeIndex(n.ID())
		}
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// PageRank scores every node by how heavily it is referenced.
func (g *Graph) PageRank() map[NodeIndex]float64 {
	scores := make(map[NodeIndex]float64, len(g.nodes))
	if len(g.nodes) == 0 {
		return scores
	}
	for id, score := range network.PageRank(g.Directed(), 0.85, 1e-6) {
		scores[NodeIndex(id)] = score
	}
	return scores
}
