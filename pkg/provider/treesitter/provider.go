// Package treesitter answers symbol queries in-process from tree-sitter
// parses of the workspace.
//
// References are found by name: every identifier spelled like the symbol,
// other than its own declaration name, counts. That over-approximates
// liveness for shadowed or overloaded names, which only ever hides dead
// code and never reports live code as dead.
package treesitter

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/panbanda/symreach/internal/fileproc"
	"github.com/panbanda/symreach/internal/scanner"
	"github.com/panbanda/symreach/pkg/parser"
	"github.com/panbanda/symreach/pkg/provider"
)

// ErrUnknownDocument is returned for documents outside the indexed set.
var ErrUnknownDocument = errors.New("document not indexed")

// fileIndex is what one parse contributes.
type fileIndex struct {
	uri     string
	symbols []provider.RawSymbol
	idents  []parser.Occurrence
}

type occurrence struct {
	uri string
	rng provider.Range
}

type index struct {
	files  map[string]*fileIndex
	uris   []string
	byName map[string][]occurrence
}

// Provider is a provider.Provider over one workspace root. The index is
// built on first use and reused until Invalidate.
type Provider struct {
	root    string
	scanner *scanner.Scanner
	workers int
	logger  zerolog.Logger

	mu    sync.Mutex
	index *index
}

var _ provider.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithScanner sets the scanner that selects workspace files.
func WithScanner(s *scanner.Scanner) Option {
	return func(p *Provider) {
		if s != nil {
			p.scanner = s
		}
	}
}

// WithWorkers bounds parallel parsing. Zero uses the fileproc default.
func WithWorkers(n int) Option {
	return func(p *Provider) {
		p.workers = n
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Provider) {
		p.logger = l
	}
}

// New creates a provider for root.
func New(root string, opts ...Option) *Provider {
	p := &Provider{
		root:   root,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.scanner == nil {
		p.scanner = scanner.NewScanner(nil)
	}
	return p
}

// Identity implements provider.Identifier.
func (p *Provider) Identity() string {
	return "treesitter"
}

// Invalidate drops the index; the next query reparses the workspace.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.index = nil
	p.mu.Unlock()
}

// Refresh reparses the workspace now.
func (p *Provider) Refresh(ctx context.Context) error {
	p.Invalidate()
	_, err := p.load(ctx)
	return err
}

// Files returns the number of indexed documents, loading the index if
// needed.
func (p *Provider) Files(ctx context.Context) (int, error) {
	idx, err := p.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(idx.uris), nil
}

// load returns the index, building it under the lock so concurrent first
// queries parse once.
func (p *Provider) load(ctx context.Context) (*index, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index != nil {
		return p.index, nil
	}

	files, err := p.scanner.ScanDir(p.root)
	if err != nil {
		return nil, err
	}

	parsed, failed := fileproc.MapFiles(ctx, files, p.workers, func(psr *parser.Parser, path string) (*fileIndex, error) {
		return parseFile(ctx, psr, path)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx := &index{
		files:  make(map[string]*fileIndex, len(parsed)),
		byName: make(map[string][]occurrence),
	}
	for _, f := range parsed {
		idx.files[f.uri] = f
		idx.uris = append(idx.uris, f.uri)
		for _, id := range f.idents {
			idx.byName[id.Name] = append(idx.byName[id.Name], occurrence{uri: f.uri, rng: id.Range})
		}
	}
	sort.Strings(idx.uris)
	if len(failed) > 0 {
		p.logger.Warn().Err(failed).Int("failed", len(failed)).Msg("some files could not be parsed")
	}

	p.logger.Debug().Str("root", p.root).Int("files", len(idx.uris)).Msg("workspace indexed")
	p.index = idx
	return idx, nil
}

func parseFile(ctx context.Context, psr *parser.Parser, path string) (*fileIndex, error) {
	result, err := psr.ParseFile(ctx, path)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	uri := provider.FileURI(path)
	decls := parser.Declarations(result)
	f := &fileIndex{
		uri:     uri,
		symbols: make([]provider.RawSymbol, 0, len(decls)),
		idents:  parser.Identifiers(result),
	}
	for _, d := range decls {
		sel := d.NameRange
		f.symbols = append(f.symbols, provider.RawSymbol{
			Name:           d.Name,
			Kind:           d.Kind,
			Location:       provider.Location{URI: uri, Range: d.Range},
			SelectionRange: &sel,
			ContainerName:  d.Container,
			Documentation:  d.Doc,
			Exported:       d.Exported,
		})
	}
	return f, nil
}

// WorkspaceSymbols implements provider.Provider. Names match the query as
// a case-insensitive substring; an empty query or "*" matches everything.
func (p *Provider) WorkspaceSymbols(ctx context.Context, query string) ([]provider.RawSymbol, error) {
	idx, err := p.load(ctx)
	if err != nil {
		return nil, &provider.Error{Op: "workspace/symbol", Err: err}
	}

	q := strings.ToLower(strings.TrimSpace(query))
	all := q == "" || q == "*"

	var out []provider.RawSymbol
	for _, uri := range idx.uris {
		for _, s := range idx.files[uri].symbols {
			if all || strings.Contains(strings.ToLower(s.Name), q) {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// DocumentSymbols implements provider.Provider.
func (p *Provider) DocumentSymbols(ctx context.Context, uri string) ([]provider.RawSymbol, error) {
	const op = "textDocument/documentSymbol"
	idx, err := p.load(ctx)
	if err != nil {
		return nil, &provider.Error{Op: op, URI: uri, Err: err}
	}
	f, ok := idx.files[uri]
	if !ok {
		return nil, &provider.Error{Op: op, URI: uri, Err: ErrUnknownDocument}
	}
	out := make([]provider.RawSymbol, len(f.symbols))
	copy(out, f.symbols)
	return out, nil
}

// FindReferences implements provider.Provider. The position must fall on
// a declaration name or an identifier; its name is then looked up across
// the workspace.
func (p *Provider) FindReferences(ctx context.Context, uri string, line, character int) ([]provider.Location, error) {
	const op = "textDocument/references"
	idx, err := p.load(ctx)
	if err != nil {
		return nil, &provider.Error{Op: op, URI: uri, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &provider.Error{Op: op, URI: uri, Err: err}
	}
	f, ok := idx.files[uri]
	if !ok {
		return nil, &provider.Error{Op: op, URI: uri, Err: ErrUnknownDocument}
	}

	pos := provider.Position{Line: line, Character: character}
	name, decl, ok := f.nameAt(pos)
	if !ok {
		return nil, nil
	}

	var out []provider.Location
	for _, occ := range idx.byName[name] {
		if decl != nil && occ.uri == uri && occ.rng == *decl {
			continue
		}
		out = append(out, provider.Location{URI: occ.uri, Range: occ.rng})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].URI != out[j].URI {
			return out[i].URI < out[j].URI
		}
		return out[i].Range.Start.Before(out[j].Range.Start)
	})
	return out, nil
}

// nameAt resolves the name at pos, preferring declaration names. The
// returned range is the declaration name to leave out of the results, nil
// when pos is on a plain identifier.
func (f *fileIndex) nameAt(pos provider.Position) (string, *provider.Range, bool) {
	for _, s := range f.symbols {
		if s.SelectionRange != nil && s.SelectionRange.Contains(pos) {
			return s.Name, s.SelectionRange, true
		}
	}
	for _, id := range f.idents {
		if id.Range.Contains(pos) {
			return id.Name, nil, true
		}
	}
	return "", nil, false
}
