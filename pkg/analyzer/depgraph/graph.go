// Package depgraph holds the workspace symbol dependency graph: an arena of
// symbol nodes addressed by index, with deduplicated directed edges from a
// referencing symbol to the symbol it references.
package depgraph

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrUnknownNode is returned when an edge names an index or ID that is
	// not in the graph.
	ErrUnknownNode = errors.New("depgraph: unknown node")

	// ErrFrozen is returned when mutating a published graph.
	ErrFrozen = errors.New("depgraph: graph is frozen")
)

// SymbolID identifies a declaration across the workspace.
type SymbolID string

// NewSymbolID derives an ID from the declaration's file and 0-based name
// position.
func NewSymbolID(file string, line, column int) SymbolID {
	return SymbolID(file + ":" + strconv.Itoa(line) + ":" + strconv.Itoa(column))
}

// NewNamedSymbolID is the fallback ID for declarations without a position.
func NewNamedSymbolID(file, name string) SymbolID {
	return SymbolID(file + "#" + name)
}

// NodeIndex addresses a node in a Graph.
type NodeIndex uint32

// Span is a 0-based source range.
type Span struct {
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
}

// Contains reports whether (line, col) lies inside the span, inclusive.
func (s Span) Contains(line, col int) bool {
	if line < s.StartLine || line > s.EndLine {
		return false
	}
	if line == s.StartLine && col < s.StartColumn {
		return false
	}
	if line == s.EndLine && col > s.EndColumn {
		return false
	}
	return true
}

// Lines is the number of lines the span covers.
func (s Span) Lines() int {
	return s.EndLine - s.StartLine + 1
}

// SymbolNode is one declaration.
type SymbolNode struct {
	ID            SymbolID `json:"id"`
	Name          string   `json:"name"`
	Kind          Kind     `json:"kind"`
	Public        bool     `json:"public"`
	File          string   `json:"file"`
	Line          int      `json:"line"`
	Column        int      `json:"column"`
	Extent        Span     `json:"extent"`
	Container     string   `json:"container,omitempty"`
	Documentation string   `json:"documentation,omitempty"`
}

// Graph is an append-only dependency graph. Mutation is single-goroutine;
// once Freeze is called the graph is read-only and safe to share.
type Graph struct {
	nodes  []SymbolNode
	index  map[SymbolID]NodeIndex
	adj    [][]NodeIndex
	edges  map[uint64]struct{}
	frozen bool
}

// New creates an empty graph sized for capacity nodes.
func New(capacity int) *Graph {
	if capacity < 0 {
		capacity = 0
	}
	return &Graph{
		nodes: make([]SymbolNode, 0, capacity),
		index: make(map[SymbolID]NodeIndex, capacity),
		adj:   make([][]NodeIndex, 0, capacity),
		edges: make(map[uint64]struct{}),
	}
}

// AddNode inserts n unless a node with the same ID exists. It returns the
// node's index and whether it was newly added.
func (g *Graph) AddNode(n SymbolNode) (NodeIndex, bool, error) {
	if g.frozen {
		return 0, false, ErrFrozen
	}
	if idx, ok := g.index[n.ID]; ok {
		return idx, false, nil
	}
	idx := NodeIndex(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.adj = append(g.adj, nil)
	g.index[n.ID] = idx
	return idx, true, nil
}

// AddEdge records that from references to. Duplicate edges and self-edges
// are ignored and report false.
func (g *Graph) AddEdge(from, to NodeIndex) (bool, error) {
	if g.frozen {
		return false, ErrFrozen
	}
	if !g.valid(from) || !g.valid(to) {
		return false, fmt.Errorf("%w: edge %d -> %d", ErrUnknownNode, from, to)
	}
	if from == to {
		return false, nil
	}
	key := uint64(from)<<32 | uint64(to)
	if _, ok := g.edges[key]; ok {
		return false, nil
	}
	g.edges[key] = struct{}{}
	g.adj[from] = append(g.adj[from], to)
	return true, nil
}

// AddEdgeByID is AddEdge addressed by symbol IDs.
func (g *Graph) AddEdgeByID(from, to SymbolID) (bool, error) {
	fi, ok := g.index[from]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownNode, from)
	}
	ti, ok := g.index[to]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownNode, to)
	}
	return g.AddEdge(fi, ti)
}

// HasEdge reports whether the edge from -> to exists.
func (g *Graph) HasEdge(from, to NodeIndex) bool {
	_, ok := g.edges[uint64(from)<<32|uint64(to)]
	return ok
}

// Lookup returns the index of the node with the given ID.
func (g *Graph) Lookup(id SymbolID) (NodeIndex, bool) {
	idx, ok := g.index[id]
	return idx, ok
}

// Node returns a copy of the node at idx.
func (g *Graph) Node(idx NodeIndex) (SymbolNode, bool) {
	if !g.valid(idx) {
		return SymbolNode{}, false
	}
	return g.nodes[idx], true
}

// Nodes returns a copy of every node in insertion order.
func (g *Graph) Nodes() []SymbolNode {
	return append([]SymbolNode(nil), g.nodes...)
}

// Neighbors returns the indices idx references. The slice must not be
// modified.
func (g *Graph) Neighbors(idx NodeIndex) []NodeIndex {
	if !g.valid(idx) {
		return nil
	}
	return g.adj[idx]
}

// Edges calls fn for each edge until fn returns false.
func (g *Graph) Edges(fn func(from, to NodeIndex) bool) {
	for from, targets := range g.adj {
		for _, to := range targets {
			if !fn(NodeIndex(from), to) {
				return
			}
		}
	}
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// IsEmpty reports whether the graph has no nodes.
func (g *Graph) IsEmpty() bool { return len(g.nodes) == 0 }

// Freeze marks the graph read-only.
func (g *Graph) Freeze() { g.frozen = true }

// Frozen reports whether Freeze has been called.
func (g *Graph) Frozen() bool { return g.frozen }

func (g *Graph) valid(idx NodeIndex) bool {
	return int(idx) < len(g.nodes)
}
