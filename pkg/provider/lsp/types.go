package lsp

import (
	"bytes"
	"encoding/json"

	"github.com/panbanda/symreach/pkg/parser"
	"github.com/panbanda/symreach/pkg/provider"
)

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type textDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type didOpenParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type workspaceSymbolParams struct {
	Query string `json:"query"`
}

type documentSymbolParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type referenceParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Position     provider.Position      `json:"position"`
	Context      referenceContext       `json:"context"`
}

type referenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

type workspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

type symbolKindSet struct {
	ValueSet []provider.SymbolKind `json:"valueSet"`
}

type clientCapabilities struct {
	Workspace struct {
		Symbol struct {
			SymbolKind symbolKindSet `json:"symbolKind"`
		} `json:"symbol"`
		WorkspaceFolders bool `json:"workspaceFolders"`
	} `json:"workspace"`
	TextDocument struct {
		DocumentSymbol struct {
			SymbolKind                        symbolKindSet `json:"symbolKind"`
			HierarchicalDocumentSymbolSupport bool          `json:"hierarchicalDocumentSymbolSupport"`
		} `json:"documentSymbol"`
		References struct{} `json:"references"`
	} `json:"textDocument"`
}

type initializeParams struct {
	ProcessID        int                `json:"processId"`
	RootURI          string             `json:"rootUri"`
	ClientInfo       clientInfo         `json:"clientInfo"`
	Capabilities     clientCapabilities `json:"capabilities"`
	WorkspaceFolders []workspaceFolder  `json:"workspaceFolders"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type initializeResult struct {
	Capabilities json.RawMessage `json:"capabilities"`
	ServerInfo   *clientInfo     `json:"serverInfo,omitempty"`
}

// symbolInformation is the flat symbol shape of workspace/symbol and of
// older documentSymbol responses. WorkspaceSymbol results decode into it
// too, with an empty range when the server defers resolution.
type symbolInformation struct {
	Name          string              `json:"name"`
	Kind          provider.SymbolKind `json:"kind"`
	Location      provider.Location   `json:"location"`
	ContainerName string              `json:"containerName,omitempty"`
}

// documentSymbol is the hierarchical outline shape.
type documentSymbol struct {
	Name           string              `json:"name"`
	Detail         string              `json:"detail,omitempty"`
	Kind           provider.SymbolKind `json:"kind"`
	Range          provider.Range      `json:"range"`
	SelectionRange provider.Range      `json:"selectionRange"`
	Children       []documentSymbol    `json:"children,omitempty"`
}

func (s symbolInformation) raw() provider.RawSymbol {
	return provider.RawSymbol{
		Name:          s.Name,
		Kind:          s.Kind,
		Location:      s.Location,
		ContainerName: s.ContainerName,
	}
}

// decodeDocumentSymbols accepts either response shape and flattens nested
// symbols depth-first, recording each parent as the container.
func decodeDocumentSymbols(uri string, data json.RawMessage) ([]provider.RawSymbol, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	var probe struct {
		Location json.RawMessage `json:"location"`
	}
	if err := json.Unmarshal(items[0], &probe); err != nil {
		return nil, err
	}

	if len(probe.Location) > 0 {
		var infos []symbolInformation
		if err := json.Unmarshal(data, &infos); err != nil {
			return nil, err
		}
		out := make([]provider.RawSymbol, len(infos))
		for i, s := range infos {
			out[i] = s.raw()
		}
		return out, nil
	}

	var symbols []documentSymbol
	if err := json.Unmarshal(data, &symbols); err != nil {
		return nil, err
	}
	var out []provider.RawSymbol
	var walk func(list []documentSymbol, container string)
	walk = func(list []documentSymbol, container string) {
		for _, s := range list {
			sel := s.SelectionRange
			out = append(out, provider.RawSymbol{
				Name:           s.Name,
				Kind:           s.Kind,
				Location:       provider.Location{URI: uri, Range: s.Range},
				SelectionRange: &sel,
				ContainerName:  container,
				Detail:         s.Detail,
			})
			walk(s.Children, s.Name)
		}
	}
	walk(symbols, "")
	return out, nil
}

// isNull reports whether a raw result is absent or JSON null.
func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// languageIDs maps detected languages to LSP language identifiers.
var languageIDs = map[parser.Language]string{
	parser.LangGo:         "go",
	parser.LangRust:       "rust",
	parser.LangPython:     "python",
	parser.LangTypeScript: "typescript",
	parser.LangTSX:        "typescriptreact",
	parser.LangJavaScript: "javascript",
	parser.LangJava:       "java",
	parser.LangC:          "c",
	parser.LangCPP:        "cpp",
	parser.LangCSharp:     "csharp",
	parser.LangRuby:       "ruby",
	parser.LangPHP:        "php",
	parser.LangBash:       "shellscript",
}

// languageID returns the LSP language identifier for a file path.
func languageID(path string) string {
	if id, ok := languageIDs[parser.DetectLanguage(path)]; ok {
		return id
	}
	return "plaintext"
}
