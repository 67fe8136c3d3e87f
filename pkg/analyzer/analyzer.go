// Package analyzer defines the contract shared by workspace analysis engines.
package analyzer

import (
	"context"

	"github.com/panbanda/symreach/pkg/provider"
)

// Engine runs one analysis over a workspace using an injected provider.
type Engine[T any] interface {
	// Analyze builds or reuses the workspace graph and produces a report.
	// The provider is borrowed for the duration of the call.
	Analyze(ctx context.Context, p provider.Provider, workspace string, cfg Config) (T, error)

	// Metadata describes the engine.
	Metadata() Metadata
}

// Metadata names an engine and what it reports on.
type Metadata struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	Description    string   `json:"description"`
	SupportedKinds []string `json:"supported_kinds,omitempty"`
}

// Config carries per-call analysis options. The zero value is valid and
// analyzes everything.
type Config struct {
	// Kinds limits which symbol kinds appear in the report. Reachability is
	// always computed over the whole graph.
	Kinds []string `json:"kinds,omitempty"`

	// Exclude lists path globs whose symbols are dropped from the report.
	Exclude []string `json:"exclude,omitempty"`
}
