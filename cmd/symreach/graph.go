package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/symreach/internal/cache"
	"github.com/panbanda/symreach/internal/output"
	"github.com/panbanda/symreach/internal/progress"
	"github.com/panbanda/symreach/pkg/analyzer"
	"github.com/panbanda/symreach/pkg/analyzer/builder"
	"github.com/panbanda/symreach/pkg/analyzer/depgraph"
)

func graphCmd() *cli.Command {
	return &cli.Command{
		Name:      "graph",
		Aliases:   []string{"dag"},
		Usage:     "Summarize the symbol dependency graph",
		ArgsUsage: "[path]",
		Flags: append(analysisFlags(),
			&cli.IntFlag{
				Name:    "top",
				Aliases: []string{"n"},
				Value:   10,
				Usage:   "Number of most referenced symbols to list",
			},
		),
		Action: runGraph,
	}
}

// rankedSymbol is a symbol with its PageRank score.
type rankedSymbol struct {
	ID    string  `json:"id" yaml:"id" toon:"id"`
	Name  string  `json:"name" yaml:"name" toon:"name"`
	Kind  string  `json:"kind" yaml:"kind" toon:"kind"`
	File  string  `json:"file" yaml:"file" toon:"file"`
	Line  int     `json:"line" yaml:"line" toon:"line"`
	Score float64 `json:"score" yaml:"score" toon:"score"`
}

// graphSummary describes a built graph.
type graphSummary struct {
	Workspace   string             `json:"workspace" yaml:"workspace" toon:"workspace"`
	Fingerprint string             `json:"fingerprint" yaml:"fingerprint" toon:"fingerprint"`
	CacheHit    bool               `json:"cache_hit" yaml:"cache_hit" toon:"cache_hit"`
	Nodes       int                `json:"nodes" yaml:"nodes" toon:"nodes"`
	EdgeCount   int                `json:"edges" yaml:"edges" toon:"edges"`
	Kinds       map[string]int     `json:"kinds" yaml:"kinds" toon:"kinds"`
	Stats       builder.BuildStats `json:"build" yaml:"build" toon:"build"`
	TopSymbols  []rankedSymbol     `json:"top_symbols" yaml:"top_symbols" toon:"top_symbols"`
	Cycles      [][]string         `json:"cycles,omitempty" yaml:"cycles,omitempty" toon:"cycles,omitempty"`
}

func runGraph(c *cli.Context) error {
	cfg := getConfig(c)
	logger := getLogger(c)

	top := c.Int("top")
	if top < 0 {
		return usageError("--top must not be negative (got %d)", top)
	}

	root, err := resolveRoot(getPath(c))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	sess, err := openProvider(ctx, cfg, root, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	engine, err := newEngine(c, cfg, root, logger)
	if err != nil {
		return err
	}

	var bar *progress.Bar
	if !c.Bool("no-progress") && isTerminal(os.Stderr) {
		bar = progress.New(os.Stderr)
		ctx = analyzer.WithTracker(ctx, analyzer.NewTracker(bar.Update))
	}

	entry, hit, err := engine.Graph(ctx, sess.provider, root)
	if bar != nil {
		if err != nil {
			bar.Fail(err)
		} else {
			bar.Finish()
		}
	}
	if err != nil {
		return fmt.Errorf("graph build failed: %w", err)
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	return formatter.Output(summarizeGraph(entry, hit, top).report())
}

// summarizeGraph ranks the top symbols by PageRank and lists every
// reference cycle.
func summarizeGraph(entry *cache.Entry, hit bool, top int) *graphSummary {
	g := entry.Graph
	s := &graphSummary{
		Workspace:   entry.Root,
		Fingerprint: entry.Fingerprint,
		CacheHit:    hit,
		Nodes:       g.NodeCount(),
		EdgeCount:   g.EdgeCount(),
		Kinds:       make(map[string]int),
		Stats:       entry.Stats,
	}

	nodes := g.Nodes()
	all := make([]depgraph.NodeIndex, len(nodes))
	for i, n := range nodes {
		all[i] = depgraph.NodeIndex(i)
		s.Kinds[string(n.Kind)]++
	}

	scores := g.PageRank()
	order := make([]depgraph.NodeIndex, len(all))
	copy(order, all)
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	if len(order) > top {
		order = order[:top]
	}
	for _, idx := range order {
		n := nodes[idx]
		s.TopSymbols = append(s.TopSymbols, rankedSymbol{
			ID:    string(n.ID),
			Name:  n.Name,
			Kind:  string(n.Kind),
			File:  n.File,
			Line:  n.Line,
			Score: scores[idx],
		})
	}

	for _, comp := range g.StronglyConnected(all) {
		names := make([]string, len(comp))
		for i, idx := range comp {
			names[i] = nodes[idx].Name
		}
		s.Cycles = append(s.Cycles, names)
	}
	return s
}

func (s *graphSummary) report() *output.Report {
	kinds := make([]string, 0, len(s.Kinds))
	for k := range s.Kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	kindRows := make([][]string, len(kinds))
	for i, k := range kinds {
		kindRows[i] = []string{k, strconv.Itoa(s.Kinds[k])}
	}

	rankRows := make([][]string, len(s.TopSymbols))
	for i, r := range s.TopSymbols {
		rankRows[i] = []string{
			fmt.Sprintf("%s:%d", r.File, r.Line),
			r.Name,
			r.Kind,
			fmt.Sprintf("%.4f", r.Score),
		}
	}

	summary := &output.Summary{Title: "Summary"}
	summary.Add("Workspace", s.Workspace).
		Add("Files", s.Stats.FilesAnalyzed).
		Add("Symbols", s.Nodes).
		Add("Edges", s.EdgeCount).
		Add("Unresolved refs", s.Stats.Unresolved).
		Add("Cached", s.CacheHit)

	rep := &output.Report{
		Title: "Dependency Graph",
		Data:  s,
		Parts: []output.Renderable{
			summary,
			output.NewTable("Symbols by Kind", []string{"Kind", "Count"}, kindRows, nil, nil),
			output.NewTable("Most Referenced", []string{"Location", "Name", "Kind", "PageRank"}, rankRows, nil, nil),
		},
	}
	if len(s.Cycles) > 0 {
		lines := make([]string, len(s.Cycles))
		for i, c := range s.Cycles {
			lines[i] = strings.Join(c, " <-> ")
		}
		rep.Parts = append(rep.Parts, &output.Section{Title: "Reference Cycles", Lines: lines})
	}
	return rep
}
