// Package lsp implements a symbol provider backed by a language server
// speaking JSON-RPC 2.0 over stdio.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/panbanda/symreach/pkg/provider"
)

// DefaultInitTimeout bounds the initialize handshake.
const DefaultInitTimeout = 30 * time.Second

var tracer = otel.Tracer("symreach.lsp")

// Client is a provider.Provider talking to one language server. It is safe
// for concurrent use.
type Client struct {
	conn        *conn
	logger      zerolog.Logger
	languageID  string
	initTimeout time.Duration
	cmd         *exec.Cmd

	mu     sync.Mutex
	root   string
	opened map[string]bool
	server string
}

var _ provider.Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithLanguageID forces the languageId sent when opening documents.
// Without it the id is derived from the file extension.
func WithLanguageID(id string) Option {
	return func(c *Client) {
		c.languageID = id
	}
}

// WithInitTimeout bounds the initialize handshake.
func WithInitTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.initTimeout = d
		}
	}
}

// New wraps an established transport. Call Initialize before querying.
func New(rwc io.ReadWriteCloser, opts ...Option) *Client {
	c := &Client{
		logger:      zerolog.Nop(),
		initTimeout: DefaultInitTimeout,
		opened:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.conn = newConn(rwc, c.logger)
	return c
}

// stdio joins a child process's pipes into one transport.
type stdio struct {
	io.ReadCloser
	io.WriteCloser
}

func (s stdio) Close() error {
	werr := s.WriteCloser.Close()
	rerr := s.ReadCloser.Close()
	return errors.Join(werr, rerr)
}

// Start launches command in root and completes the initialize handshake.
// The server runs until Close.
func Start(ctx context.Context, command []string, root string, opts ...Option) (*Client, error) {
	if len(command) == 0 {
		return nil, &provider.Error{Op: "start", Err: errors.New("empty server command")}
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = root
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &provider.Error{Op: "start", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &provider.Error{Op: "start", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &provider.Error{Op: "start", Err: fmt.Errorf("%s: %w", command[0], err)}
	}

	c := New(stdio{ReadCloser: stdout, WriteCloser: stdin}, opts...)
	c.cmd = cmd
	c.logger.Debug().Strs("command", command).Int("pid", cmd.Process.Pid).Msg("language server started")

	if err := c.Initialize(ctx, root); err != nil {
		_ = c.conn.close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	return c, nil
}

// Initialize performs the initialize/initialized handshake for root.
func (c *Client) Initialize(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return &provider.Error{Op: "initialize", Err: err}
	}
	rootURI := provider.FileURI(abs)

	params := initializeParams{
		ProcessID:        os.Getpid(),
		RootURI:          rootURI,
		ClientInfo:       clientInfo{Name: "symreach"},
		WorkspaceFolders: []workspaceFolder{{URI: rootURI, Name: filepath.Base(abs)}},
	}
	kinds := provider.AllSymbolKinds()
	params.Capabilities.Workspace.Symbol.SymbolKind.ValueSet = kinds
	params.Capabilities.Workspace.WorkspaceFolders = true
	params.Capabilities.TextDocument.DocumentSymbol.SymbolKind.ValueSet = kinds
	params.Capabilities.TextDocument.DocumentSymbol.HierarchicalDocumentSymbolSupport = true

	ctx, cancel := context.WithTimeout(ctx, c.initTimeout)
	defer cancel()

	var result initializeResult
	if err := c.conn.call(ctx, "initialize", params, &result); err != nil {
		return &provider.Error{Op: "initialize", URI: rootURI, Err: err}
	}
	if err := c.conn.notify("initialized", struct{}{}); err != nil {
		return &provider.Error{Op: "initialized", URI: rootURI, Err: err}
	}

	c.mu.Lock()
	c.root = abs
	if result.ServerInfo != nil {
		c.server = result.ServerInfo.Name
	}
	c.mu.Unlock()

	c.logger.Info().Str("root", abs).Str("server", c.server).Msg("language server initialized")
	return nil
}

// ServerName returns the name the server reported, if any.
func (c *Client) ServerName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server
}

// Identity implements provider.Identifier. It names the server and the
// forced language id, if any.
func (c *Client) Identity() string {
	id := "lsp:" + c.ServerName()
	if c.languageID != "" {
		id += "/" + c.languageID
	}
	return id
}

// WorkspaceSymbols implements provider.Provider.
func (c *Client) WorkspaceSymbols(ctx context.Context, query string) ([]provider.RawSymbol, error) {
	const method = "workspace/symbol"
	ctx, span := startSpan(ctx, method, "")
	defer span.End()

	var infos []symbolInformation
	if err := c.conn.call(ctx, method, workspaceSymbolParams{Query: query}, &infos); err != nil {
		return nil, failSpan(span, &provider.Error{Op: method, Err: err})
	}

	out := make([]provider.RawSymbol, len(infos))
	for i, s := range infos {
		out[i] = s.raw()
	}
	span.SetAttributes(attribute.Int("lsp.results", len(out)))
	return out, nil
}

// DocumentSymbols implements provider.Provider. Both the hierarchical and
// the flat response shapes are accepted.
func (c *Client) DocumentSymbols(ctx context.Context, uri string) ([]provider.RawSymbol, error) {
	const method = "textDocument/documentSymbol"
	ctx, span := startSpan(ctx, method, uri)
	defer span.End()

	c.ensureOpen(uri)

	var raw json.RawMessage
	params := documentSymbolParams{TextDocument: textDocumentIdentifier{URI: uri}}
	if err := c.conn.call(ctx, method, params, &raw); err != nil {
		return nil, failSpan(span, &provider.Error{Op: method, URI: uri, Err: err})
	}
	if isNull(raw) {
		return nil, nil
	}

	out, err := decodeDocumentSymbols(uri, raw)
	if err != nil {
		return nil, failSpan(span, &provider.Error{Op: method, URI: uri, Err: err})
	}
	span.SetAttributes(attribute.Int("lsp.results", len(out)))
	return out, nil
}

// FindReferences implements provider.Provider. The declaration itself is
// not requested.
func (c *Client) FindReferences(ctx context.Context, uri string, line, character int) ([]provider.Location, error) {
	const method = "textDocument/references"
	ctx, span := startSpan(ctx, method, uri)
	defer span.End()

	c.ensureOpen(uri)

	params := referenceParams{
		TextDocument: textDocumentIdentifier{URI: uri},
		Position:     provider.Position{Line: line, Character: character},
	}
	var locs []provider.Location
	if err := c.conn.call(ctx, method, params, &locs); err != nil {
		return nil, failSpan(span, &provider.Error{Op: method, URI: uri, Err: err})
	}
	span.SetAttributes(attribute.Int("lsp.results", len(locs)))
	return locs, nil
}

// ensureOpen sends didOpen the first time a document is queried. Servers
// that index the workspace themselves ignore it; unreadable files are left
// for the server to resolve.
func (c *Client) ensureOpen(uri string) {
	c.mu.Lock()
	if c.opened[uri] {
		c.mu.Unlock()
		return
	}
	c.opened[uri] = true
	c.mu.Unlock()

	path := provider.URIPath(uri)
	text, err := os.ReadFile(path)
	if err != nil {
		c.logger.Debug().Err(err).Str("uri", uri).Msg("not opening unreadable document")
		return
	}

	lang := c.languageID
	if lang == "" {
		lang = languageID(path)
	}
	params := didOpenParams{TextDocument: textDocumentItem{
		URI:        uri,
		LanguageID: lang,
		Version:    1,
		Text:       string(text),
	}}
	if err := c.conn.notify("textDocument/didOpen", params); err != nil {
		c.logger.Debug().Err(err).Str("uri", uri).Msg("didOpen failed")
	}
}

// Close asks the server to shut down, then closes the transport and reaps
// the process when Start launched it.
func (c *Client) Close(ctx context.Context) error {
	if err := c.conn.call(ctx, "shutdown", nil, nil); err == nil {
		_ = c.conn.notify("exit", nil)
	} else {
		c.logger.Debug().Err(err).Msg("shutdown request failed")
	}

	err := c.conn.close()
	if c.cmd == nil {
		return err
	}

	waited := make(chan error, 1)
	go func() { waited <- c.cmd.Wait() }()
	select {
	case <-waited:
	case <-ctx.Done():
		_ = c.cmd.Process.Kill()
		<-waited
	}
	return err
}

func startSpan(ctx context.Context, method, uri string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("lsp.method", method)}
	if uri != "" {
		attrs = append(attrs, attribute.String("lsp.uri", uri))
	}
	return tracer.Start(ctx, "lsp."+method, trace.WithAttributes(attrs...))
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
