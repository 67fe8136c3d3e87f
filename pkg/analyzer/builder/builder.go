// Package builder turns symbol provider answers into a dependency graph.
//
// A build enumerates every workspace symbol, learns declaration extents
// from per-file outlines, then asks for the references of each symbol. A
// reference becomes an edge from the innermost declaration containing the
// reference location to the referenced symbol. Individual query failures
// are tolerated: the symbol stays in the graph without the edges that
// query would have contributed.
package builder

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/symreach/pkg/analyzer"
	"github.com/panbanda/symreach/pkg/analyzer/depgraph"
	"github.com/panbanda/symreach/pkg/provider"
	"github.com/panbanda/symreach/pkg/visibility"
)

// Defaults for the provider queries. Enumeration lists the whole workspace
// in one call and gets a longer bound than the per-symbol queries.
const (
	DefaultConcurrency        = 8
	DefaultQueryTimeout       = 5 * time.Second
	DefaultEnumerationTimeout = 2 * time.Minute
)

// BuildStats tallies what happened during a build.
type BuildStats struct {
	FilesAnalyzed   int `json:"files_analyzed"`
	SymbolsAnalyzed int `json:"symbols_analyzed"`
	Edges           int `json:"edges"`
	FailedQueries   int `json:"failed_queries"`
	TimedOutQueries int `json:"timed_out_queries"`
	Unresolved      int `json:"unresolved_references"`
	OutlineFailures int `json:"outline_failures"`
	SkippedSymbols  int `json:"skipped_symbols"`
}

// Result is a finished build.
type Result struct {
	Graph *depgraph.Graph
	Stats BuildStats
}

// Builder builds dependency graphs. A Builder holds no per-build state and
// may be shared.
type Builder struct {
	concurrency  int
	queryTimeout time.Duration
	enumTimeout  time.Duration
	query        string
	logger       zerolog.Logger
	resolver     *visibility.Resolver
}

// Option configures a Builder.
type Option func(*Builder)

// WithConcurrency bounds the number of provider queries in flight.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithQueryTimeout bounds each outline and reference query.
func WithQueryTimeout(d time.Duration) Option {
	return func(b *Builder) {
		if d > 0 {
			b.queryTimeout = d
		}
	}
}

// WithEnumerationTimeout bounds the workspace symbol listing. Expiry fails
// the build as an enumeration error.
func WithEnumerationTimeout(d time.Duration) Option {
	return func(b *Builder) {
		if d > 0 {
			b.enumTimeout = d
		}
	}
}

// WithEnumerationQuery sets the workspace symbol query used to list the
// workspace. Some servers return nothing for the empty query.
func WithEnumerationQuery(q string) Option {
	return func(b *Builder) {
		b.query = q
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithResolver replaces the visibility resolver.
func WithResolver(r *visibility.Resolver) Option {
	return func(b *Builder) {
		if r != nil {
			b.resolver = r
		}
	}
}

// New creates a Builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		concurrency:  DefaultConcurrency,
		queryTimeout: DefaultQueryTimeout,
		enumTimeout:  DefaultEnumerationTimeout,
		logger:       zerolog.Nop(),
		resolver:     visibility.NewResolver(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Query returns the workspace symbol query used for enumeration.
func (b *Builder) Query() string {
	return b.query
}

// pending is an enumerated symbol waiting to become a node.
type pending struct {
	raw  provider.RawSymbol
	path string // absolute file path
	rel  string // workspace-relative, slash separated
}

// fileOutline is what the outline pass learned about one file.
type fileOutline struct {
	extents map[depgraph.SymbolID]depgraph.Span
	docs    map[depgraph.SymbolID]string
	failed  bool
}

// target is a node whose references are queried.
type target struct {
	idx depgraph.NodeIndex
	uri string
	pos provider.Position
}

// refOutcome is the answer to one reference query.
type refOutcome struct {
	locs     []provider.Location
	failed   bool
	timedOut bool
}

// Build constructs and freezes the dependency graph of workspace using p.
// Enumeration failure and cancellation abort the build; other provider
// failures are logged and tallied.
func (b *Builder) Build(ctx context.Context, p provider.Provider, workspace string) (*Result, error) {
	const op = "build graph"

	if strings.TrimSpace(workspace) == "" {
		return nil, analyzer.Errorf(analyzer.KindInvalidWorkspace, op, workspace, "empty workspace path")
	}
	root, err := filepath.Abs(workspace)
	if err != nil {
		return nil, analyzer.NewError(analyzer.KindInvalidWorkspace, op, workspace, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, analyzer.Cancelled(op, root, err)
	}

	tracker := analyzer.TrackerFromContext(ctx)
	start := time.Now()
	var stats BuildStats

	if tracker != nil {
		tracker.Start(analyzer.PhaseEnumerate, 1)
	}
	ectx, cancel := context.WithTimeout(ctx, b.enumTimeout)
	raws, err := p.WorkspaceSymbols(ectx, b.query)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, analyzer.Cancelled(op, root, ctx.Err())
		}
		var perr *provider.Error
		if !errors.As(err, &perr) {
			err = &provider.Error{Op: "workspace/symbol", Err: err}
		}
		return nil, analyzer.NewError(analyzer.KindEnumeration, op, root, err)
	}
	if tracker != nil {
		tracker.Tick()
	}
	b.logger.Info().Str("workspace", root).Int("symbols", len(raws)).Msg("enumerated workspace symbols")

	// Group by file, dropping anything outside the workspace.
	byFile := make(map[string][]pending)
	var files []string
	for _, raw := range raws {
		path := provider.URIPath(raw.Location.URI)
		rel, ok := relativeTo(root, path)
		if !ok {
			stats.SkippedSymbols++
			b.logger.Debug().Str("symbol", raw.Name).Str("uri", raw.Location.URI).Msg("symbol outside workspace")
			continue
		}
		if _, seen := byFile[path]; !seen {
			files = append(files, path)
		}
		byFile[path] = append(byFile[path], pending{raw: raw, path: path, rel: rel})
	}
	sort.Strings(files)
	stats.FilesAnalyzed = len(files)

	outlines, err := b.outline(ctx, p, root, files, byFile, tracker)
	if err != nil {
		return nil, err
	}

	g := depgraph.New(len(raws))
	owners := make(map[string][]owner, len(files))
	var targets []target

	for _, path := range files {
		outline := outlines[path]
		if outline.failed {
			stats.OutlineFailures++
		}
		for _, pend := range byFile[path] {
			node := b.node(pend, outline)
			idx, added, err := g.AddNode(node)
			if err != nil {
				return nil, analyzer.NewError(analyzer.KindResolution, op, root, err)
			}
			if !added {
				continue
			}
			owners[node.File] = append(owners[node.File], owner{idx: idx, id: node.ID, span: node.Extent})
			targets = append(targets, target{
				idx: idx,
				uri: pend.raw.Location.URI,
				pos: pend.raw.NamePosition(),
			})
		}
	}

	outcomes := b.references(ctx, p, targets, tracker)
	if err := ctx.Err(); err != nil {
		return nil, analyzer.Cancelled(op, root, err)
	}

	// Edges are added on this goroutine once every query has returned.
	for i, t := range targets {
		out := outcomes[i]
		switch {
		case out.timedOut:
			stats.TimedOutQueries++
			continue
		case out.failed:
			stats.FailedQueries++
			continue
		}
		for _, loc := range out.locs {
			rel, ok := relativeTo(root, provider.URIPath(loc.URI))
			if !ok {
				stats.Unresolved++
				continue
			}
			from, ok := resolveOwner(owners[rel], loc.Range.Start)
			if !ok {
				stats.Unresolved++
				continue
			}
			if from == t.idx {
				continue
			}
			if _, err := g.AddEdge(from, t.idx); err != nil {
				return nil, analyzer.NewError(analyzer.KindResolution, op, root, err)
			}
		}
	}

	g.Freeze()
	stats.SymbolsAnalyzed = g.NodeCount()
	stats.Edges = g.EdgeCount()

	b.logger.Info().
		Str("workspace", root).
		Int("files", stats.FilesAnalyzed).
		Int("symbols", stats.SymbolsAnalyzed).
		Int("edges", stats.Edges).
		Int("failed_queries", stats.FailedQueries).
		Int("timed_out_queries", stats.TimedOutQueries).
		Int("unresolved", stats.Unresolved).
		Dur("elapsed", time.Since(start)).
		Msg("built dependency graph")

	return &Result{Graph: g, Stats: stats}, nil
}

// outline fetches document symbols for every file with bounded concurrency.
func (b *Builder) outline(
	ctx context.Context,
	p provider.Provider,
	root string,
	files []string,
	byFile map[string][]pending,
	tracker *analyzer.Tracker,
) (map[string]fileOutline, error) {
	results := make([]fileOutline, len(files))
	if tracker != nil {
		tracker.Start(analyzer.PhaseOutline, len(files))
	}

	wp := pool.New().WithMaxGoroutines(b.concurrency)
	for i, path := range files {
		wp.Go(func() {
			if tracker != nil {
				defer tracker.Tick()
			}
			if ctx.Err() != nil {
				results[i] = fileOutline{failed: true}
				return
			}

			uri := byFile[path][0].raw.Location.URI
			qctx, cancel := context.WithTimeout(ctx, b.queryTimeout)
			syms, err := p.DocumentSymbols(qctx, uri)
			cancel()
			if err != nil {
				b.logQueryError(ctx, err, "outline failed, using workspace symbol ranges", uri)
				results[i] = fileOutline{failed: true}
				return
			}

			rel := byFile[path][0].rel
			out := fileOutline{
				extents: make(map[depgraph.SymbolID]depgraph.Span, len(syms)),
				docs:    make(map[depgraph.SymbolID]string),
			}
			for _, s := range syms {
				id := symbolID(rel, s)
				out.extents[id] = spanOf(s.Location.Range)
				if s.Documentation != "" {
					out.docs[id] = s.Documentation
				}
			}
			results[i] = out
		})
	}
	wp.Wait()

	if err := ctx.Err(); err != nil {
		return nil, analyzer.Cancelled("build graph", root, err)
	}

	byPath := make(map[string]fileOutline, len(files))
	for i, path := range files {
		byPath[path] = results[i]
	}
	return byPath, nil
}

// references runs one FindReferences per target with bounded concurrency.
// Each task writes only its own slot.
func (b *Builder) references(ctx context.Context, p provider.Provider, targets []target, tracker *analyzer.Tracker) []refOutcome {
	outcomes := make([]refOutcome, len(targets))
	if tracker != nil {
		tracker.Start(analyzer.PhaseReferences, len(targets))
	}

	wp := pool.New().WithMaxGoroutines(b.concurrency)
	for i, t := range targets {
		wp.Go(func() {
			if tracker != nil {
				defer tracker.Tick()
			}
			if ctx.Err() != nil {
				outcomes[i] = refOutcome{failed: true}
				return
			}

			qctx, cancel := context.WithTimeout(ctx, b.queryTimeout)
			locs, err := p.FindReferences(qctx, t.uri, t.pos.Line, t.pos.Character)
			cancel()
			if err != nil {
				timedOut := ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded)
				if timedOut {
					b.logger.Warn().Str("uri", t.uri).Int("line", t.pos.Line).Int("character", t.pos.Character).
						Dur("timeout", b.queryTimeout).Msg("reference query timed out")
				} else {
					b.logQueryError(ctx, err, "reference query failed", t.uri)
				}
				outcomes[i] = refOutcome{failed: !timedOut, timedOut: timedOut}
				return
			}
			outcomes[i] = refOutcome{locs: locs}
		})
	}
	wp.Wait()
	return outcomes
}

func (b *Builder) logQueryError(ctx context.Context, err error, msg, uri string) {
	if ctx.Err() != nil {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		b.logger.Warn().Err(err).Str("uri", uri).Msg(msg)
		return
	}
	b.logger.Debug().Err(err).Str("uri", uri).Msg(msg)
}

// node converts a pending symbol, preferring outline extents.
func (b *Builder) node(p pending, outline fileOutline) depgraph.SymbolNode {
	id := symbolID(p.rel, p.raw)
	pos := p.raw.NamePosition()

	extent, ok := outline.extents[id]
	if !ok {
		extent = spanOf(p.raw.Location.Range)
	}
	doc := p.raw.Documentation
	if doc == "" {
		doc = outline.docs[id]
	}

	return depgraph.SymbolNode{
		ID:            id,
		Name:          p.raw.Name,
		Kind:          KindOf(p.raw.Kind),
		Public:        b.resolver.IsPublic(p.raw),
		File:          p.rel,
		Line:          pos.Line,
		Column:        pos.Character,
		Extent:        extent,
		Container:     p.raw.ContainerName,
		Documentation: doc,
	}
}

// symbolID keys a symbol by its name position. A symbol with no position
// information at all falls back to its name.
func symbolID(rel string, s provider.RawSymbol) depgraph.SymbolID {
	if s.SelectionRange == nil && s.Location.Range == (provider.Range{}) {
		return depgraph.NewNamedSymbolID(rel, s.Name)
	}
	pos := s.NamePosition()
	return depgraph.NewSymbolID(rel, pos.Line, pos.Character)
}

func spanOf(r provider.Range) depgraph.Span {
	return depgraph.Span{
		StartLine:   r.Start.Line,
		StartColumn: r.Start.Character,
		EndLine:     r.End.Line,
		EndColumn:   r.End.Character,
	}
}

// relativeTo returns path relative to root with forward slashes, and false
// when path lies outside root.
func relativeTo(root, path string) (string, bool) {
	if !filepath.IsAbs(path) {
		return "", false
	}
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
