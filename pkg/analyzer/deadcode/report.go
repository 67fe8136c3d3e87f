package deadcode

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/panbanda/symreach/internal/output"
	"github.com/panbanda/symreach/pkg/analyzer"
	"github.com/panbanda/symreach/pkg/analyzer/builder"
	"github.com/panbanda/symreach/pkg/analyzer/depgraph"
)

// Visibility values in a report.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Symbol is one dead declaration. Line and Column are 1-based.
type Symbol struct {
	ID            string `json:"id" toon:"id" yaml:"id"`
	Name          string `json:"name" toon:"name" yaml:"name"`
	Kind          string `json:"kind" toon:"kind" yaml:"kind"`
	File          string `json:"file" toon:"file" yaml:"file"`
	Line          int    `json:"line" toon:"line" yaml:"line"`
	Column        int    `json:"column" toon:"column" yaml:"column"`
	Visibility    string `json:"visibility" toon:"visibility" yaml:"visibility"`
	Container     string `json:"container,omitempty" toon:"container,omitempty" yaml:"container,omitempty"`
	Documentation string `json:"documentation,omitempty" toon:"documentation,omitempty" yaml:"documentation,omitempty"`
}

// Diagnostics describes how complete the underlying graph is.
type Diagnostics struct {
	FilesAnalyzed        int       `json:"files_analyzed" toon:"files_analyzed" yaml:"files_analyzed"`
	SymbolsAnalyzed      int       `json:"symbols_analyzed" toon:"symbols_analyzed" yaml:"symbols_analyzed"`
	Edges                int       `json:"edges" toon:"edges" yaml:"edges"`
	EntryPoints          int       `json:"entry_points" toon:"entry_points" yaml:"entry_points"`
	EntryRule            EntryRule `json:"entry_rule" toon:"entry_rule" yaml:"entry_rule"`
	Reachable            int       `json:"reachable" toon:"reachable" yaml:"reachable"`
	FailedQueries        int       `json:"failed_queries" toon:"failed_queries" yaml:"failed_queries"`
	TimedOutQueries      int       `json:"timed_out_queries" toon:"timed_out_queries" yaml:"timed_out_queries"`
	UnresolvedReferences int       `json:"unresolved_references" toon:"unresolved_references" yaml:"unresolved_references"`
	OutlineFailures      int       `json:"outline_failures" toon:"outline_failures" yaml:"outline_failures"`
	SkippedSymbols       int       `json:"skipped_symbols" toon:"skipped_symbols" yaml:"skipped_symbols"`
	// Coverage is the share of reference queries that answered, 0 to 1.
	Coverage float64 `json:"coverage" toon:"coverage" yaml:"coverage"`
}

// Report is the result of a dead code analysis.
type Report struct {
	Workspace   string      `json:"workspace" toon:"workspace" yaml:"workspace"`
	Fingerprint string      `json:"fingerprint" toon:"fingerprint" yaml:"fingerprint"`
	DeadSymbols []Symbol    `json:"dead_symbols" toon:"dead_symbols" yaml:"dead_symbols"`
	Clusters    [][]string  `json:"clusters,omitempty" toon:"clusters,omitempty" yaml:"clusters,omitempty"`
	Diagnostics Diagnostics `json:"diagnostics" toon:"diagnostics" yaml:"diagnostics"`
	CacheHit    bool        `json:"cache_hit" toon:"cache_hit" yaml:"cache_hit"`
	DurationMS  int64       `json:"duration_ms" toon:"duration_ms" yaml:"duration_ms"`
	GeneratedAt time.Time   `json:"generated_at" toon:"generated_at" yaml:"generated_at"`
}

// reportFilter decides which dead symbols a report lists.
type reportFilter struct {
	kinds   map[depgraph.Kind]bool
	exclude gitignore.Matcher
}

func newReportFilter(cfg analyzer.Config) reportFilter {
	var f reportFilter
	if len(cfg.Kinds) > 0 {
		f.kinds = make(map[depgraph.Kind]bool, len(cfg.Kinds))
		for _, k := range cfg.Kinds {
			f.kinds[depgraph.Kind(strings.ToLower(strings.TrimSpace(k)))] = true
		}
	}
	if len(cfg.Exclude) > 0 {
		patterns := make([]gitignore.Pattern, 0, len(cfg.Exclude))
		for _, p := range cfg.Exclude {
			patterns = append(patterns, gitignore.ParsePattern(p, nil))
		}
		f.exclude = gitignore.NewMatcher(patterns)
	}
	return f
}

func (f reportFilter) keep(n depgraph.SymbolNode) bool {
	if f.kinds != nil && !f.kinds[n.Kind] {
		return false
	}
	if f.exclude != nil && f.exclude.Match(strings.Split(n.File, "/"), false) {
		return false
	}
	return true
}

// newReport assembles a report. Filtering only narrows what is listed;
// reachability and diagnostics always cover the whole graph.
func newReport(g *depgraph.Graph, reach *Reachability, stats builder.BuildStats, cfg analyzer.Config) *Report {
	filter := newReportFilter(cfg)

	r := &Report{
		DeadSymbols: make([]Symbol, 0, len(reach.Dead)),
		Diagnostics: Diagnostics{
			FilesAnalyzed:        stats.FilesAnalyzed,
			SymbolsAnalyzed:      g.NodeCount(),
			Edges:                g.EdgeCount(),
			EntryPoints:          len(reach.EntryPoints),
			EntryRule:            reach.Rule,
			Reachable:            reach.Reachable(),
			FailedQueries:        stats.FailedQueries,
			TimedOutQueries:      stats.TimedOutQueries,
			UnresolvedReferences: stats.Unresolved,
			OutlineFailures:      stats.OutlineFailures,
			SkippedSymbols:       stats.SkippedSymbols,
			Coverage:             coverage(g.NodeCount(), stats.FailedQueries+stats.TimedOutQueries),
		},
	}

	for _, idx := range reach.Dead {
		n, _ := g.Node(idx)
		if !filter.keep(n) {
			continue
		}
		r.DeadSymbols = append(r.DeadSymbols, symbolOf(n))
	}

	for _, comp := range g.StronglyConnected(reach.Dead) {
		ids := make([]string, len(comp))
		for i, idx := range comp {
			n, _ := g.Node(idx)
			ids[i] = string(n.ID)
		}
		r.Clusters = append(r.Clusters, ids)
	}
	return r
}

func coverage(queries, unanswered int) float64 {
	if queries == 0 {
		return 1
	}
	return float64(queries-unanswered) / float64(queries)
}

func symbolOf(n depgraph.SymbolNode) Symbol {
	vis := VisibilityPrivate
	if n.Public {
		vis = VisibilityPublic
	}
	return Symbol{
		ID:            string(n.ID),
		Name:          n.Name,
		Kind:          string(n.Kind),
		File:          n.File,
		Line:          n.Line + 1,
		Column:        n.Column + 1,
		Visibility:    vis,
		Container:     n.Container,
		Documentation: n.Documentation,
	}
}

// RenderData implements output.Renderable.
func (r *Report) RenderData() any {
	return r
}

func (r *Report) tables() *output.Report {
	rows := make([][]string, len(r.DeadSymbols))
	for i, s := range r.DeadSymbols {
		rows[i] = []string{
			fmt.Sprintf("%s:%d", s.File, s.Line),
			s.Name,
			s.Kind,
			s.Visibility,
		}
	}

	d := r.Diagnostics
	summary := &output.Summary{Title: "Summary"}
	summary.Add("Workspace", r.Workspace).
		Add("Symbols", d.SymbolsAnalyzed).
		Add("Edges", d.Edges).
		Add("Entry points", fmt.Sprintf("%d (%s)", d.EntryPoints, d.EntryRule)).
		Add("Reachable", d.Reachable).
		Add("Dead", len(r.DeadSymbols)).
		Add("Query coverage", fmt.Sprintf("%.1f%%", d.Coverage*100)).
		Add("Failed/timed out", fmt.Sprintf("%d/%d", d.FailedQueries, d.TimedOutQueries)).
		Add("Unresolved refs", d.UnresolvedReferences)

	dead := output.NewTable("Dead Symbols", []string{"Location", "Name", "Kind", "Visibility"}, rows, nil, nil)
	dead.Empty = "No dead symbols found."

	rep := &output.Report{
		Title: "Dead Code",
		Parts: []output.Renderable{summary, dead},
	}
	if len(r.Clusters) > 0 {
		lines := make([]string, len(r.Clusters))
		for i, c := range r.Clusters {
			lines[i] = strings.Join(c, ", ")
		}
		rep.Parts = append(rep.Parts, &output.Section{Title: "Dead Clusters", Lines: lines})
	}
	return rep
}

// RenderText implements output.Renderable.
func (r *Report) RenderText(w io.Writer, colored bool) error {
	if err := r.tables().RenderText(w, colored); err != nil {
		return err
	}
	if r.Diagnostics.Coverage < 1 {
		msg := fmt.Sprintf("%d reference queries did not answer; results may include false positives.",
			r.Diagnostics.FailedQueries+r.Diagnostics.TimedOutQueries)
		if colored {
			color.New(color.FgYellow).Fprintln(w, msg)
		} else {
			fmt.Fprintln(w, "WARNING: "+msg)
		}
	}
	return nil
}

// RenderMarkdown implements output.Renderable.
func (r *Report) RenderMarkdown(w io.Writer) error {
	return r.tables().RenderMarkdown(w)
}
