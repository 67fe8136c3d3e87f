package depgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(name string, line int) SymbolNode {
	return SymbolNode{
		ID:   NewSymbolID("a.go", line, 5),
		Name: name,
		Kind: KindFunction,
		File: "a.go",
		Line: line,
	}
}

func TestSymbolIDs(t *testing.T) {
	assert.Equal(t, SymbolID("pkg/a.go:3:7"), NewSymbolID("pkg/a.go", 3, 7))
	assert.Equal(t, SymbolID("pkg/a.go#helper"), NewNamedSymbolID("pkg/a.go", "helper"))
}

func TestAddNodeIdempotent(t *testing.T) {
	g := New(4)

	i1, added, err := g.AddNode(node("foo", 1))
	require.NoError(t, err)
	assert.True(t, added)

	dup := node("foo", 1)
	dup.Name = "renamed"
	i2, added, err := g.AddNode(dup)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, i1, i2)
	assert.Equal(t, 1, g.NodeCount())

	n, ok := g.Node(i1)
	require.True(t, ok)
	assert.Equal(t, "foo", n.Name, "first insert wins")
}

func TestAddEdgeDeduplicates(t *testing.T) {
	g := New(0)
	a, _, _ := g.AddNode(node("a", 1))
	b, _, _ := g.AddNode(node("b", 2))

	added, err := g.AddEdge(a, b)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = g.AddEdge(a, b)
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, 1, g.EdgeCount())
	assert.Equal(t, []NodeIndex{b}, g.Neighbors(a))
	assert.Empty(t, g.Neighbors(b))
	assert.True(t, g.HasEdge(a, b))
	assert.False(t, g.HasEdge(b, a))
}

func TestAddEdgeIgnoresSelfEdge(t *testing.T) {
	g := New(0)
	a, _, _ := g.AddNode(node("a", 1))

	added, err := g.AddEdge(a, a)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 0, g.EdgeCount())
	assert.False(t, g.HasEdge(a, a))
	assert.Empty(t, g.Neighbors(a))

	_, err = g.AddEdge(a, 3)
	assert.ErrorIs(t, err, ErrUnknownNode, "unknown nodes are reported before self-edges are dropped")
}

func TestAddEdgeUnknownNode(t *testing.T) {
	g := New(0)
	a, _, _ := g.AddNode(node("a", 1))

	_, err := g.AddEdge(a, 7)
	assert.True(t, errors.Is(err, ErrUnknownNode))
	_, err = g.AddEdge(9, a)
	assert.True(t, errors.Is(err, ErrUnknownNode))
	assert.Equal(t, 0, g.EdgeCount())

	_, err = g.AddEdgeByID(NewSymbolID("a.go", 1, 5), "missing")
	assert.True(t, errors.Is(err, ErrUnknownNode))
}

func TestAddEdgeByID(t *testing.T) {
	g := New(0)
	g.AddNode(node("a", 1))
	g.AddNode(node("b", 2))

	added, err := g.AddEdgeByID(NewSymbolID("a.go", 1, 5), NewSymbolID("a.go", 2, 5))
	require.NoError(t, err)
	assert.True(t, added)
}

func TestFreeze(t *testing.T) {
	g := New(0)
	a, _, _ := g.AddNode(node("a", 1))
	g.Freeze()
	assert.True(t, g.Frozen())

	_, _, err := g.AddNode(node("b", 2))
	assert.ErrorIs(t, err, ErrFrozen)
	_, err = g.AddEdge(a, a)
	assert.ErrorIs(t, err, ErrFrozen)
	assert.Equal(t, 1, g.NodeCount())
}

func TestEmptyGraph(t *testing.T) {
	g := New(0)
	assert.True(t, g.IsEmpty())
	assert.Nil(t, g.Neighbors(0))
	_, ok := g.Node(0)
	assert.False(t, ok)
	assert.Empty(t, g.PageRank())
}

func TestNodesReturnsCopy(t *testing.T) {
	g := New(0)
	g.AddNode(node("a", 1))

	nodes := g.Nodes()
	nodes[0].Name = "mutated"

	n, _ := g.Node(0)
	assert.Equal(t, "a", n.Name)
}

func TestEdgesIteration(t *testing.T) {
	g := New(0)
	a, _, _ := g.AddNode(node("a", 1))
	b, _, _ := g.AddNode(node("b", 2))
	c, _, _ := g.AddNode(node("c", 3))
	g.AddEdge(a, b)
	g.AddEdge(b, c)
	g.AddEdge(a, c)

	count := 0
	g.Edges(func(from, to NodeIndex) bool {
		count++
		return true
	})
	assert.Equal(t, 3, count)

	count = 0
	g.Edges(func(from, to NodeIndex) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}

func TestSpanContains(t *testing.T) {
	s := Span{StartLine: 2, StartColumn: 4, EndLine: 6, EndColumn: 1}

	assert.True(t, s.Contains(2, 4))
	assert.True(t, s.Contains(4, 100))
	assert.True(t, s.Contains(6, 1))
	assert.False(t, s.Contains(2, 3))
	assert.False(t, s.Contains(6, 2))
	assert.False(t, s.Contains(7, 0))
	assert.Equal(t, 5, s.Lines())
}

func TestStronglyConnected(t *testing.T) {
	g := New(0)
	a, _, _ := g.AddNode(node("a", 1))
	b, _, _ := g.AddNode(node("b", 2))
	c, _, _ := g.AddNode(node("c", 3))
	d, _, _ := g.AddNode(node("d", 4))
	g.AddEdge(a, b)
	g.AddEdge(b, a)
	g.AddEdge(b, c)
	g.AddEdge(c, d)
	g.AddEdge(d, c)

	comps := g.StronglyConnected([]NodeIndex{a, b, c, d})
	require.Len(t, comps, 2)
	assert.Equal(t, []NodeIndex{a, b}, comps[0])
	assert.Equal(t, []NodeIndex{c, d}, comps[1])

	// Outside the subset the cycle c <-> d is not considered.
	comps = g.StronglyConnected([]NodeIndex{a, b, c})
	require.Len(t, comps, 1)
	assert.Equal(t, []NodeIndex{a, b}, comps[0])

	assert.Nil(t, g.StronglyConnected([]NodeIndex{a}))
}

func TestPageRankFavoursReferencedNodes(t *testing.T) {
	g := New(0)
	hub, _, _ := g.AddNode(node("hub", 1))
	for i := 2; i < 6; i++ {
		idx, _, _ := g.AddNode(node("caller", i))
		g.AddEdge(idx, hub)
	}

	scores := g.PageRank()
	require.Len(t, scores, 5)
	for idx, score := range scores {
		if idx != hub {
			assert.Greater(t, scores[hub], score)
		}
	}
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, KindMethod.Callable())
	assert.False(t, KindStruct.Callable())
	assert.True(t, KindInterface.Type())
	assert.False(t, KindVariable.Type())
}
