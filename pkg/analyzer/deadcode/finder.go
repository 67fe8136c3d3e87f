// Package deadcode finds declarations that no entry point can reach.
//
// Entry points are the symbols named exactly "main". A workspace without
// one (a library) treats every public symbol as an entry point instead.
// Everything reachable from an entry point along reference edges is live;
// the rest is dead.
package deadcode

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/panbanda/symreach/pkg/analyzer/depgraph"
)

// EntryName is the symbol name that marks a program entry point.
const EntryName = "main"

// EntryRule records how entry points were chosen.
type EntryRule string

const (
	RuleNone   EntryRule = "none"   // empty graph
	RuleMain   EntryRule = "main"   // symbols named main
	RulePublic EntryRule = "public" // no main; every public symbol
)

// Reachability is the outcome of one traversal.
type Reachability struct {
	// Dead lists unreachable nodes in index order.
	Dead []depgraph.NodeIndex
	// EntryPoints lists the traversal roots in index order.
	EntryPoints []depgraph.NodeIndex
	Rule        EntryRule
	// Live holds every reachable node index.
	Live *roaring.Bitmap
}

// IsLive reports whether idx was reached.
func (r *Reachability) IsLive(idx depgraph.NodeIndex) bool {
	return r.Live.Contains(uint32(idx))
}

// Reachable is the number of live nodes.
func (r *Reachability) Reachable() int {
	return int(r.Live.GetCardinality())
}

// Finder computes reachability over a frozen graph. It keeps no state
// between calls.
type Finder struct{}

// NewFinder creates a Finder.
func NewFinder() *Finder {
	return &Finder{}
}

// Find returns the dead symbols of g in index order. Each appears once.
func Find(g *depgraph.Graph) []depgraph.SymbolNode {
	r := NewFinder().Analyze(g)
	out := make([]depgraph.SymbolNode, 0, len(r.Dead))
	for _, idx := range r.Dead {
		n, _ := g.Node(idx)
		out = append(out, n)
	}
	return out
}

// Analyze walks g from its entry points. Runs in O(V+E) time.
func (f *Finder) Analyze(g *depgraph.Graph) *Reachability {
	r := &Reachability{Rule: RuleNone, Live: roaring.New()}
	if g == nil || g.IsEmpty() {
		return r
	}

	r.EntryPoints, r.Rule = entryPoints(g)

	stack := make([]depgraph.NodeIndex, 0, len(r.EntryPoints))
	stack = append(stack, r.EntryPoints...)
	for len(stack) > 0 {
		n := len(stack) - 1
		idx := stack[n]
		stack = stack[:n]

		// CheckedAdd is false when idx was already visited.
		if !r.Live.CheckedAdd(uint32(idx)) {
			continue
		}
		stack = append(stack, g.Neighbors(idx)...)
	}

	for i := 0; i < g.NodeCount(); i++ {
		if !r.Live.Contains(uint32(i)) {
			r.Dead = append(r.Dead, depgraph.NodeIndex(i))
		}
	}
	return r
}

func entryPoints(g *depgraph.Graph) ([]depgraph.NodeIndex, EntryRule) {
	var mains, public []depgraph.NodeIndex
	for i, n := range g.Nodes() {
		if n.Name == EntryName {
			mains = append(mains, depgraph.NodeIndex(i))
		}
		if n.Public {
			public = append(public, depgraph.NodeIndex(i))
		}
	}
	if len(mains) > 0 {
		return mains, RuleMain
	}
	return public, RulePublic
}
