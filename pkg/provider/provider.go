// Package provider defines the symbol provider contract the graph builder
// consumes. Language servers and in-process language plugins both satisfy it.
package provider

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Provider answers symbol queries for one workspace.
type Provider interface {
	// WorkspaceSymbols returns every symbol matching query. An empty query
	// enumerates the whole workspace.
	WorkspaceSymbols(ctx context.Context, query string) ([]RawSymbol, error)

	// DocumentSymbols returns the symbols declared in one document.
	DocumentSymbols(ctx context.Context, uri string) ([]RawSymbol, error)

	// FindReferences returns the locations referring to the symbol declared
	// at the given 0-based position.
	FindReferences(ctx context.Context, uri string, line, character int) ([]Location, error)
}

// Identifier is implemented by providers that can name where their
// answers come from. Caches keep results from differently named providers
// apart.
type Identifier interface {
	Identity() string
}

// Position is a 0-based line/character pair.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Before reports whether p sorts strictly before o.
func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Character < o.Character
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether pos falls within r (end inclusive on the
// same line so a reference at the closing brace still resolves).
func (r Range) Contains(pos Position) bool {
	if pos.Before(r.Start) {
		return false
	}
	return !r.End.Before(pos)
}

// Empty reports whether r spans nothing.
func (r Range) Empty() bool {
	return r.Start == r.End
}

// Location is a range inside a document.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// RawSymbol is a symbol record as a provider reports it.
type RawSymbol struct {
	Name          string     `json:"name"`
	Kind          SymbolKind `json:"kind"`
	Location      Location   `json:"location"`
	// SelectionRange narrows Location to the symbol's name when known.
	SelectionRange *Range `json:"selectionRange,omitempty"`
	ContainerName  string `json:"containerName,omitempty"`
	Detail         string `json:"detail,omitempty"`
	Documentation  string `json:"documentation,omitempty"`
	// Exported is the provider's own visibility verdict, nil when it has none.
	Exported *bool `json:"exported,omitempty"`
}

// NamePosition returns the position identifying the symbol's declaration.
func (s RawSymbol) NamePosition() Position {
	if s.SelectionRange != nil {
		return s.SelectionRange.Start
	}
	return s.Location.Range.Start
}

// Error wraps a failed provider call.
type Error struct {
	Op  string
	URI string
	Err error
}

func (e *Error) Error() string {
	if e.URI != "" {
		return fmt.Sprintf("provider %s %s: %v", e.Op, e.URI, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FileURI converts a filesystem path to a file:// URI.
func FileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}

// URIPath converts a file:// URI back to a filesystem path. Anything that is
// not a file URI is returned unchanged.
func URIPath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "file://")
	}
	return filepath.FromSlash(u.Path)
}
