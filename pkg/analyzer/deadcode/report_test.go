package deadcode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/symreach/pkg/analyzer"
	"github.com/panbanda/symreach/pkg/analyzer/builder"
	"github.com/panbanda/symreach/pkg/analyzer/depgraph"
)

func reportGraph(t *testing.T) *depgraph.Graph {
	t.Helper()
	g := depgraph.New(4)
	add := func(name, file string, line int, kind depgraph.Kind, public bool) depgraph.NodeIndex {
		idx, _, err := g.AddNode(depgraph.SymbolNode{
			ID:     depgraph.NewSymbolID(file, line, 5),
			Name:   name,
			Kind:   kind,
			Public: public,
			File:   file,
			Line:   line,
			Column: 5,
		})
		require.NoError(t, err)
		return idx
	}
	main := add("main", "cmd/app/main.go", 2, depgraph.KindFunction, false)
	used := add("used", "cmd/app/main.go", 8, depgraph.KindFunction, false)
	add("orphan", "internal/x/x.go", 0, depgraph.KindFunction, false)
	a := add("ping", "internal/x/x.go", 4, depgraph.KindFunction, false)
	b := add("pong", "internal/x/x.go", 9, depgraph.KindFunction, false)
	add("Limit", "internal/x/consts.go", 1, depgraph.KindConstant, true)

	for _, e := range [][2]depgraph.NodeIndex{{main, used}, {a, b}, {b, a}} {
		_, err := g.AddEdge(e[0], e[1])
		require.NoError(t, err)
	}
	g.Freeze()
	return g
}

func TestNewReport(t *testing.T) {
	g := reportGraph(t)
	reach := NewFinder().Analyze(g)
	stats := builder.BuildStats{FilesAnalyzed: 3, FailedQueries: 1, TimedOutQueries: 2, Unresolved: 4}

	rep := newReport(g, reach, stats, analyzer.Config{})

	require.Len(t, rep.DeadSymbols, 4)
	first := rep.DeadSymbols[0]
	assert.Equal(t, "orphan", first.Name)
	assert.Equal(t, 1, first.Line, "lines are 1-based")
	assert.Equal(t, 6, first.Column)
	assert.Equal(t, VisibilityPrivate, first.Visibility)
	assert.Equal(t, "internal/x/x.go:0:5", first.ID)

	assert.Equal(t, [][]string{{"internal/x/x.go:4:5", "internal/x/x.go:9:5"}}, rep.Clusters)

	d := rep.Diagnostics
	assert.Equal(t, 3, d.FilesAnalyzed)
	assert.Equal(t, 6, d.SymbolsAnalyzed)
	assert.Equal(t, 3, d.Edges)
	assert.Equal(t, 1, d.EntryPoints)
	assert.Equal(t, RuleMain, d.EntryRule)
	assert.Equal(t, 2, d.Reachable)
	assert.Equal(t, 4, d.UnresolvedReferences)
	assert.InDelta(t, 0.5, d.Coverage, 1e-9)
}

func TestNewReportFilters(t *testing.T) {
	g := reportGraph(t)
	reach := NewFinder().Analyze(g)

	byKind := newReport(g, reach, builder.BuildStats{}, analyzer.Config{Kinds: []string{"Constant"}})
	require.Len(t, byKind.DeadSymbols, 1)
	assert.Equal(t, "Limit", byKind.DeadSymbols[0].Name)
	assert.Equal(t, VisibilityPublic, byKind.DeadSymbols[0].Visibility)

	excluded := newReport(g, reach, builder.BuildStats{}, analyzer.Config{Exclude: []string{"consts.go"}})
	assert.Len(t, excluded.DeadSymbols, 3)

	all := newReport(g, reach, builder.BuildStats{}, analyzer.Config{Exclude: []string{"internal/**"}})
	assert.Empty(t, all.DeadSymbols)
	assert.Equal(t, 2, all.Diagnostics.Reachable, "filters never change reachability")
}

func TestCoverage(t *testing.T) {
	assert.Equal(t, 1.0, coverage(0, 0))
	assert.Equal(t, 1.0, coverage(10, 0))
	assert.InDelta(t, 0.75, coverage(4, 1), 1e-9)
}

func TestReportRender(t *testing.T) {
	g := reportGraph(t)
	rep := newReport(g, NewFinder().Analyze(g), builder.BuildStats{FailedQueries: 1}, analyzer.Config{})
	rep.Workspace = "/ws"

	var text bytes.Buffer
	require.NoError(t, rep.RenderText(&text, false))
	out := text.String()
	assert.Contains(t, out, "Dead Code")
	assert.Contains(t, out, "internal/x/x.go:1")
	assert.Contains(t, out, "orphan")
	assert.Contains(t, out, "Dead Clusters")
	assert.Contains(t, out, "WARNING: 1 reference queries did not answer")

	var md bytes.Buffer
	require.NoError(t, rep.RenderMarkdown(&md))
	assert.Contains(t, md.String(), "# Dead Code")
	assert.Contains(t, md.String(), "| Location | Name | Kind | Visibility |")

	assert.Same(t, rep, rep.RenderData())
}
