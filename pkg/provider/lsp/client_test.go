package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/symreach/pkg/provider"
)

type handler func(params json.RawMessage) (any, *ResponseError)

// fakeServer answers requests over one end of a net.Pipe.
type fakeServer struct {
	conn     net.Conn
	reader   *bufio.Reader
	writeMu  sync.Mutex
	handlers map[string]handler

	mu       sync.Mutex
	received []message
}

func newFakeServer(t *testing.T, handlers map[string]handler) (*fakeServer, *Client) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	s := &fakeServer{
		conn:     serverSide,
		reader:   bufio.NewReader(serverSide),
		handlers: handlers,
	}
	if _, ok := s.handlers["initialize"]; !ok {
		s.handlers["initialize"] = func(json.RawMessage) (any, *ResponseError) {
			return map[string]any{"capabilities": map[string]any{}, "serverInfo": map[string]string{"name": "fakels"}}, nil
		}
	}
	go s.serve()

	c := New(clientSide)
	t.Cleanup(func() {
		_ = c.conn.close()
		_ = serverSide.Close()
	})
	return s, c
}

func (s *fakeServer) serve() {
	for {
		body, err := readFrame(s.reader)
		if err != nil {
			return
		}
		var msg message
		if err := json.Unmarshal(body, &msg); err != nil {
			continue
		}
		s.mu.Lock()
		s.received = append(s.received, msg)
		s.mu.Unlock()

		if msg.Method == "" || len(msg.ID) == 0 {
			continue
		}
		h, ok := s.handlers[msg.Method]
		if !ok {
			s.send(response{JSONRPC: jsonrpcVersion, ID: msg.ID, Error: &ResponseError{Code: -32601, Message: "method not found"}})
			continue
		}
		result, rerr := h(msg.Params)
		resp := response{JSONRPC: jsonrpcVersion, ID: msg.ID, Error: rerr}
		if rerr == nil {
			data, _ := json.Marshal(result)
			resp.Result = data
		}
		s.send(resp)
	}
}

func (s *fakeServer) send(v any) {
	body, _ := json.Marshal(v)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = writeFrame(s.conn, body)
}

func (s *fakeServer) methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.received {
		if m.Method != "" {
			out = append(out, m.Method)
		}
	}
	return out
}

func (s *fakeServer) find(method string) (message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.received {
		if m.Method == method {
			return m, true
		}
	}
	return message{}, false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestInitializeHandshake(t *testing.T) {
	root := t.TempDir()
	s, c := newFakeServer(t, map[string]handler{})

	require.NoError(t, c.Initialize(context.Background(), root))
	assert.Equal(t, "fakels", c.ServerName())
	assert.Equal(t, "lsp:fakels", c.Identity())

	waitFor(t, func() bool {
		_, ok := s.find("initialized")
		return ok
	})
	assert.Equal(t, []string{"initialize", "initialized"}, s.methods())

	req, _ := s.find("initialize")
	var params initializeParams
	require.NoError(t, json.Unmarshal(req.Params, &params))
	assert.Equal(t, provider.FileURI(root), params.RootURI)
	assert.Equal(t, os.Getpid(), params.ProcessID)
	assert.True(t, params.Capabilities.TextDocument.DocumentSymbol.HierarchicalDocumentSymbolSupport)
	assert.Len(t, params.Capabilities.Workspace.Symbol.SymbolKind.ValueSet, 26)
	require.Len(t, params.WorkspaceFolders, 1)
}

func TestInitializeFailure(t *testing.T) {
	_, c := newFakeServer(t, map[string]handler{
		"initialize": func(json.RawMessage) (any, *ResponseError) {
			return nil, &ResponseError{Code: -32603, Message: "boom"}
		},
	})

	err := c.Initialize(context.Background(), t.TempDir())
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "initialize", perr.Op)
	var rerr *ResponseError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, -32603, rerr.Code)
}

func TestWorkspaceSymbols(t *testing.T) {
	var gotQuery string
	_, c := newFakeServer(t, map[string]handler{
		"workspace/symbol": func(params json.RawMessage) (any, *ResponseError) {
			var p workspaceSymbolParams
			_ = json.Unmarshal(params, &p)
			gotQuery = p.Query
			return []map[string]any{
				{
					"name": "main", "kind": 12, "containerName": "main",
					"location": map[string]any{
						"uri":   "file:///ws/main.go",
						"range": map[string]any{"start": map[string]int{"line": 2, "character": 5}, "end": map[string]int{"line": 2, "character": 9}},
					},
				},
				{"name": "Config", "kind": 23, "location": map[string]any{"uri": "file:///ws/config.go"}},
			}, nil
		},
	})

	syms, err := c.WorkspaceSymbols(context.Background(), "*")
	require.NoError(t, err)
	assert.Equal(t, "*", gotQuery)
	require.Len(t, syms, 2)

	assert.Equal(t, "main", syms[0].Name)
	assert.Equal(t, provider.KindFunction, syms[0].Kind)
	assert.Equal(t, "file:///ws/main.go", syms[0].Location.URI)
	assert.Equal(t, provider.Position{Line: 2, Character: 5}, syms[0].Location.Range.Start)
	assert.Equal(t, "main", syms[0].ContainerName)

	assert.Equal(t, provider.KindStruct, syms[1].Kind)
	assert.True(t, syms[1].Location.Range.Empty())
}

func TestWorkspaceSymbolsNull(t *testing.T) {
	_, c := newFakeServer(t, map[string]handler{
		"workspace/symbol": func(json.RawMessage) (any, *ResponseError) { return nil, nil },
	})

	syms, err := c.WorkspaceSymbols(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, syms)
}

func TestWorkspaceSymbolsError(t *testing.T) {
	_, c := newFakeServer(t, map[string]handler{})

	_, err := c.WorkspaceSymbols(context.Background(), "")
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "workspace/symbol", perr.Op)
}

func TestDocumentSymbolsHierarchical(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "server.go")
	require.NoError(t, os.WriteFile(path, []byte("package srv\n"), 0o644))
	uri := provider.FileURI(path)

	rng := func(sl, sc, el, ec int) map[string]any {
		return map[string]any{"start": map[string]int{"line": sl, "character": sc}, "end": map[string]int{"line": el, "character": ec}}
	}
	s, c := newFakeServer(t, map[string]handler{
		"textDocument/documentSymbol": func(json.RawMessage) (any, *ResponseError) {
			return []map[string]any{{
				"name": "Server", "kind": 5, "detail": "struct",
				"range": rng(2, 0, 10, 1), "selectionRange": rng(2, 5, 2, 11),
				"children": []map[string]any{{
					"name": "Start", "kind": 6,
					"range": rng(4, 1, 6, 2), "selectionRange": rng(4, 1, 4, 6),
				}},
			}}, nil
		},
	})

	syms, err := c.DocumentSymbols(context.Background(), uri)
	require.NoError(t, err)
	require.Len(t, syms, 2)

	assert.Equal(t, "Server", syms[0].Name)
	assert.Equal(t, uri, syms[0].Location.URI)
	assert.Equal(t, 10, syms[0].Location.Range.End.Line)
	require.NotNil(t, syms[0].SelectionRange)
	assert.Equal(t, 5, syms[0].SelectionRange.Start.Character)
	assert.Equal(t, "struct", syms[0].Detail)
	assert.Empty(t, syms[0].ContainerName)

	assert.Equal(t, "Start", syms[1].Name)
	assert.Equal(t, "Server", syms[1].ContainerName)

	open, ok := s.find("textDocument/didOpen")
	require.True(t, ok, "document is opened before the query")
	var params didOpenParams
	require.NoError(t, json.Unmarshal(open.Params, &params))
	assert.Equal(t, "go", params.TextDocument.LanguageID)
	assert.Equal(t, "package srv\n", params.TextDocument.Text)
}

func TestDocumentSymbolsFlat(t *testing.T) {
	_, c := newFakeServer(t, map[string]handler{
		"textDocument/documentSymbol": func(json.RawMessage) (any, *ResponseError) {
			return []map[string]any{{
				"name": "helper", "kind": 12, "containerName": "pkg",
				"location": map[string]any{"uri": "file:///ws/a.py", "range": map[string]any{
					"start": map[string]int{"line": 1, "character": 0}, "end": map[string]int{"line": 3, "character": 0},
				}},
			}}, nil
		},
	})

	syms, err := c.DocumentSymbols(context.Background(), "file:///ws/a.py")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "helper", syms[0].Name)
	assert.Equal(t, "pkg", syms[0].ContainerName)
	assert.Nil(t, syms[0].SelectionRange)
}

func TestFindReferences(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "util.py")
	require.NoError(t, os.WriteFile(path, []byte("def helper(): pass\n"), 0o644))
	uri := provider.FileURI(path)

	var got referenceParams
	s, c := newFakeServer(t, map[string]handler{
		"textDocument/references": func(params json.RawMessage) (any, *ResponseError) {
			_ = json.Unmarshal(params, &got)
			return []provider.Location{{
				URI:   "file:///ws/main.py",
				Range: provider.Range{Start: provider.Position{Line: 4, Character: 2}, End: provider.Position{Line: 4, Character: 8}},
			}}, nil
		},
	})

	locs, err := c.FindReferences(context.Background(), uri, 0, 4)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "file:///ws/main.py", locs[0].URI)
	assert.Equal(t, 4, locs[0].Range.Start.Line)

	assert.Equal(t, uri, got.TextDocument.URI)
	assert.Equal(t, provider.Position{Line: 0, Character: 4}, got.Position)
	assert.False(t, got.Context.IncludeDeclaration)

	// A second query on the same document does not reopen it.
	_, err = c.FindReferences(context.Background(), uri, 0, 4)
	require.NoError(t, err)
	opens := 0
	for _, m := range s.methods() {
		if m == "textDocument/didOpen" {
			opens++
		}
	}
	assert.Equal(t, 1, opens)
}

func TestFindReferencesTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	_, c := newFakeServer(t, map[string]handler{
		"textDocument/references": func(json.RawMessage) (any, *ResponseError) {
			<-release
			return nil, nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.FindReferences(ctx, "file:///ws/missing.go", 1, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "file:///ws/missing.go", perr.URI)
}

func TestServerRequestsAreAnswered(t *testing.T) {
	var s *fakeServer
	s, c := newFakeServer(t, map[string]handler{
		"workspace/symbol": func(json.RawMessage) (any, *ResponseError) {
			s.send(map[string]any{"jsonrpc": "2.0", "id": "srv-1", "method": "workspace/configuration", "params": map[string]any{}})
			s.send(map[string]any{"jsonrpc": "2.0", "method": "window/logMessage", "params": map[string]any{"message": "indexing"}})
			return []any{}, nil
		},
	})

	_, err := c.WorkspaceSymbols(context.Background(), "")
	require.NoError(t, err)

	waitFor(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, m := range s.received {
			if m.Method == "" && string(m.ID) == `"srv-1"` {
				return true
			}
		}
		return false
	})
}

func TestCloseShutsDown(t *testing.T) {
	s, c := newFakeServer(t, map[string]handler{
		"shutdown": func(json.RawMessage) (any, *ResponseError) { return nil, nil },
	})

	require.NoError(t, c.Close(context.Background()))
	waitFor(t, func() bool {
		_, ok := s.find("exit")
		return ok
	})
	assert.Equal(t, []string{"shutdown", "exit"}, s.methods())

	<-c.conn.done
	_, err := c.WorkspaceSymbols(context.Background(), "")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCallsFailWhenServerDies(t *testing.T) {
	block := make(chan struct{})
	s, c := newFakeServer(t, map[string]handler{
		"workspace/symbol": func(json.RawMessage) (any, *ResponseError) {
			<-block
			return nil, nil
		},
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := c.WorkspaceSymbols(context.Background(), "")
		errCh <- err
	}()

	waitFor(t, func() bool {
		_, ok := s.find("workspace/symbol")
		return ok
	})
	_ = s.conn.Close()
	close(block)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("call did not return after the server went away")
	}
}

func TestStartErrors(t *testing.T) {
	_, err := Start(context.Background(), nil, t.TempDir())
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "start", perr.Op)

	_, err = Start(context.Background(), []string{filepath.Join(t.TempDir(), "no-such-server")}, t.TempDir())
	require.ErrorAs(t, err, &perr)
}

func TestLanguageID(t *testing.T) {
	assert.Equal(t, "go", languageID("main.go"))
	assert.Equal(t, "typescriptreact", languageID("App.tsx"))
	assert.Equal(t, "plaintext", languageID("README"))
}
