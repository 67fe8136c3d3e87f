// Package visibility decides whether a declared symbol is part of its
// module's public surface. Providers that know the answer report it
// directly; otherwise per-language rules and a source-line keyword check
// are consulted in that order.
package visibility

import (
	"bufio"
	"bytes"
	"os"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/panbanda/symreach/pkg/parser"
	"github.com/panbanda/symreach/pkg/provider"
)

// Rule inspects a symbol name and its declaration line. It returns the
// verdict and whether it applies at all.
type Rule func(name, line string) (public bool, ok bool)

// Resolver applies visibility rules, caching source lines per file.
type Resolver struct {
	rules map[parser.Language]Rule

	mu    sync.Mutex
	files map[string][]string
}

// NewResolver creates a resolver with the built-in language rules.
func NewResolver() *Resolver {
	return &Resolver{
		rules: map[parser.Language]Rule{
			parser.LangGo:         goRule,
			parser.LangPython:     pythonRule,
			parser.LangRuby:       rubyRule,
			parser.LangRust:       rustRule,
			parser.LangTypeScript: scriptRule,
			parser.LangTSX:        scriptRule,
			parser.LangJavaScript: scriptRule,
			parser.LangJava:       modifierRule,
			parser.LangCSharp:     modifierRule,
			parser.LangPHP:        phpRule,
			parser.LangC:          cRule,
			parser.LangCPP:        cRule,
		},
		files: make(map[string][]string),
	}
}

// Register installs or replaces the rule for lang.
func (r *Resolver) Register(lang parser.Language, rule Rule) {
	r.rules[lang] = rule
}

// IsPublic reports whether sym is externally visible.
func (r *Resolver) IsPublic(sym provider.RawSymbol) bool {
	if sym.Exported != nil {
		return *sym.Exported
	}

	path := provider.URIPath(sym.Location.URI)
	line := r.line(path, sym.Location.Range.Start.Line)

	if rule, ok := r.rules[parser.DetectLanguage(path)]; ok {
		if public, applies := rule(sym.Name, line); applies {
			return public
		}
	}
	return Keyword(line)
}

// Keyword is the language-agnostic fallback: a declaration line carrying an
// export, pub or public keyword is public.
func Keyword(line string) bool {
	padded := " " + strings.TrimSpace(line) + " "
	for _, kw := range []string{" export ", " pub ", " pub(", " public "} {
		if strings.Contains(padded, kw) {
			return true
		}
	}
	return false
}

// Forget drops cached source for path, used after the file changes.
func (r *Resolver) Forget(path string) {
	r.mu.Lock()
	delete(r.files, path)
	r.mu.Unlock()
}

func (r *Resolver) line(path string, n int) string {
	r.mu.Lock()
	lines, ok := r.files[path]
	r.mu.Unlock()

	if !ok {
		lines = readLines(path)
		r.mu.Lock()
		r.files[path] = lines
		r.mu.Unlock()
	}
	if n < 0 || n >= len(lines) {
		return ""
	}
	return lines[n]
}

func readLines(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func goRule(name, _ string) (bool, bool) {
	if name == "" {
		return false, false
	}
	// Methods arrive as "(*T).Name" or "T.Name" from some servers.
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r), true
}

func pythonRule(name, _ string) (bool, bool) {
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return true, true
	}
	return !strings.HasPrefix(name, "_"), true
}

func rubyRule(name, _ string) (bool, bool) {
	return !strings.HasPrefix(name, "_"), true
}

func rustRule(_, line string) (bool, bool) {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "pub ") || strings.HasPrefix(trimmed, "pub("), true
}

func scriptRule(name, line string) (bool, bool) {
	if strings.HasPrefix(name, "#") {
		return false, true
	}
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "export ") {
		return true, true
	}
	if hasModifier(trimmed, "private") || hasModifier(trimmed, "protected") {
		return false, true
	}
	return hasModifier(trimmed, "public"), true
}

func modifierRule(_, line string) (bool, bool) {
	return hasModifier(strings.TrimSpace(line), "public"), true
}

func phpRule(_, line string) (bool, bool) {
	trimmed := strings.TrimSpace(line)
	if hasModifier(trimmed, "private") || hasModifier(trimmed, "protected") {
		return false, true
	}
	// PHP members without a modifier default to public.
	return true, true
}

func cRule(_, line string) (bool, bool) {
	return !hasModifier(strings.TrimSpace(line), "static"), true
}

func hasModifier(line, mod string) bool {
	for _, f := range strings.Fields(line) {
		if f == mod {
			return true
		}
		if strings.ContainsAny(f, "({=") {
			break
		}
	}
	return false
}
