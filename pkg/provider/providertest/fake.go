// Package providertest provides an in-memory symbol provider for tests.
package providertest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panbanda/symreach/pkg/provider"
)

// Fake is a provider.Provider backed by fixed tables.
type Fake struct {
	mu         sync.Mutex
	symbols    []provider.RawSymbol
	outlines   map[string][]provider.RawSymbol
	refs       map[string][]provider.Location
	refErrs    map[string]error
	refDelays  map[string]time.Duration
	outlineErr map[string]error

	// Name is returned by Identity. Fakes with different names are
	// different providers to the caches.
	Name string

	// EnumerateErr fails WorkspaceSymbols when set.
	EnumerateErr error

	// EnumerateDelay makes WorkspaceSymbols block for the duration or until
	// its context ends.
	EnumerateDelay time.Duration

	workspaceCalls atomic.Int64
	referenceCalls atomic.Int64
	outlineCalls   atomic.Int64
}

// New returns an empty fake provider.
func New() *Fake {
	return &Fake{
		outlines:   make(map[string][]provider.RawSymbol),
		refs:       make(map[string][]provider.Location),
		refErrs:    make(map[string]error),
		refDelays:  make(map[string]time.Duration),
		outlineErr: make(map[string]error),
	}
}

// Declare registers a symbol spanning the lines [startLine, endLine] of uri
// with its name at (startLine, col). It returns the symbol for chaining.
func (f *Fake) Declare(name string, kind provider.SymbolKind, uri string, startLine, col, endLine int, exported *bool) provider.RawSymbol {
	sym := provider.RawSymbol{
		Name: name,
		Kind: kind,
		Location: provider.Location{
			URI: uri,
			Range: provider.Range{
				Start: provider.Position{Line: startLine, Character: 0},
				End:   provider.Position{Line: endLine, Character: 1},
			},
		},
		SelectionRange: &provider.Range{
			Start: provider.Position{Line: startLine, Character: col},
			End:   provider.Position{Line: startLine, Character: col + len(name)},
		},
		Exported: exported,
	}

	f.mu.Lock()
	f.symbols = append(f.symbols, sym)
	f.outlines[uri] = append(f.outlines[uri], sym)
	f.mu.Unlock()
	return sym
}

// Reference records that the symbol declared as target is referenced at
// (line, col) in uri.
func (f *Fake) Reference(target provider.RawSymbol, uri string, line, col int) {
	key := refKey(target)
	loc := provider.Location{
		URI: uri,
		Range: provider.Range{
			Start: provider.Position{Line: line, Character: col},
			End:   provider.Position{Line: line, Character: col + len(target.Name)},
		},
	}

	f.mu.Lock()
	f.refs[key] = append(f.refs[key], loc)
	f.mu.Unlock()
}

// FailReferences makes reference queries for target return err.
func (f *Fake) FailReferences(target provider.RawSymbol, err error) {
	f.mu.Lock()
	f.refErrs[refKey(target)] = err
	f.mu.Unlock()
}

// DelayReferences makes reference queries for target block for d or until
// the query context ends.
func (f *Fake) DelayReferences(target provider.RawSymbol, d time.Duration) {
	f.mu.Lock()
	f.refDelays[refKey(target)] = d
	f.mu.Unlock()
}

// FailOutline makes DocumentSymbols for uri return err.
func (f *Fake) FailOutline(uri string, err error) {
	f.mu.Lock()
	f.outlineErr[uri] = err
	f.mu.Unlock()
}

// WorkspaceSymbols implements provider.Provider. Any non-empty query is
// matched against names exactly.
func (f *Fake) WorkspaceSymbols(ctx context.Context, query string) ([]provider.RawSymbol, error) {
	f.workspaceCalls.Add(1)
	if err := wait(ctx, f.EnumerateDelay); err != nil {
		return nil, err
	}
	if f.EnumerateErr != nil {
		return nil, f.EnumerateErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]provider.RawSymbol, 0, len(f.symbols))
	for _, s := range f.symbols {
		if query == "" || s.Name == query {
			out = append(out, s)
		}
	}
	return out, nil
}

// DocumentSymbols implements provider.Provider.
func (f *Fake) DocumentSymbols(ctx context.Context, uri string) ([]provider.RawSymbol, error) {
	f.outlineCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.outlineErr[uri]; err != nil {
		return nil, err
	}
	return append([]provider.RawSymbol(nil), f.outlines[uri]...), nil
}

// FindReferences implements provider.Provider.
func (f *Fake) FindReferences(ctx context.Context, uri string, line, character int) ([]provider.Location, error) {
	f.referenceCalls.Add(1)
	key := fmt.Sprintf("%s:%d:%d", uri, line, character)

	f.mu.Lock()
	delay := f.refDelays[key]
	err := f.refErrs[key]
	locs := append([]provider.Location(nil), f.refs[key]...)
	f.mu.Unlock()

	if err := wait(ctx, delay); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return locs, nil
}

// Identity implements provider.Identifier.
func (f *Fake) Identity() string { return f.Name }

// wait blocks for d, returning early with the context error.
func wait(ctx context.Context, d time.Duration) error {
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ctx.Err()
}

// WorkspaceCalls returns how many times WorkspaceSymbols ran.
func (f *Fake) WorkspaceCalls() int64 { return f.workspaceCalls.Load() }

// ReferenceCalls returns how many times FindReferences ran.
func (f *Fake) ReferenceCalls() int64 { return f.referenceCalls.Load() }

// OutlineCalls returns how many times DocumentSymbols ran.
func (f *Fake) OutlineCalls() int64 { return f.outlineCalls.Load() }

// Bool returns a pointer to b, for the Exported hint.
func Bool(b bool) *bool { return &b }

func refKey(s provider.RawSymbol) string {
	pos := s.NamePosition()
	return fmt.Sprintf("%s:%d:%d", s.Location.URI, pos.Line, pos.Character)
}
