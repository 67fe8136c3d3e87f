package visibility

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/panbanda/symreach/pkg/parser"
	"github.com/panbanda/symreach/pkg/provider"
)

func symbolAt(t *testing.T, name, file, content string, line int) provider.RawSymbol {
	t.Helper()
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return provider.RawSymbol{
		Name: name,
		Location: provider.Location{
			URI:   provider.FileURI(file),
			Range: provider.Range{Start: provider.Position{Line: line}},
		},
	}
}

func TestProviderHintWins(t *testing.T) {
	r := NewResolver()
	sym := provider.RawSymbol{Name: "lowercase", Location: provider.Location{URI: "file:///x/a.go"}}

	yes := true
	sym.Exported = &yes
	if !r.IsPublic(sym) {
		t.Error("explicit exported hint should be honoured")
	}
	no := false
	sym.Name = "Upper"
	sym.Exported = &no
	if r.IsPublic(sym) {
		t.Error("explicit private hint should be honoured")
	}
}

func TestLanguageRules(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		symbol  string
		line    int
		want    bool
	}{
		{"go exported", "a.go", "package a\nfunc Open() {}\n", "Open", 1, true},
		{"go unexported", "b.go", "package a\nfunc open() {}\n", "open", 1, false},
		{"go method name", "c.go", "package a\n", "(*T).Close", 0, true},
		{"python private", "a.py", "def _x():\n    pass\n", "_x", 0, false},
		{"python public", "b.py", "def run():\n    pass\n", "run", 0, true},
		{"python dunder", "c.py", "class A:\n    def __len__(self): pass\n", "__len__", 1, true},
		{"rust pub", "a.rs", "pub fn open() {}\n", "open", 0, true},
		{"rust pub crate", "b.rs", "pub(crate) fn open() {}\n", "open", 0, true},
		{"rust private", "c.rs", "fn open() {}\n", "open", 0, false},
		{"ts export", "a.ts", "export function f() {}\n", "f", 0, true},
		{"ts plain", "b.ts", "function f() {}\n", "f", 0, false},
		{"ts private member", "c.ts", "  private helper() {}\n", "helper", 0, false},
		{"ts public member", "d.ts", "  public helper() {}\n", "helper", 0, true},
		{"ts hash private", "e.ts", "  #secret() {}\n", "#secret", 0, false},
		{"java public", "A.java", "  public void run() {}\n", "run", 0, true},
		{"java package private", "B.java", "  void run() {}\n", "run", 0, false},
		{"php default public", "a.php", "  function run() {}\n", "run", 0, true},
		{"php private", "b.php", "  private function run() {}\n", "run", 0, false},
		{"c static", "a.c", "static int f(void) { return 0; }\n", "f", 0, false},
		{"c extern", "b.c", "int f(void) { return 0; }\n", "f", 0, true},
	}

	r := NewResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sym := symbolAt(t, tt.symbol, filepath.Join(dir, tt.file), tt.content, tt.line)
			if got := r.IsPublic(sym); got != tt.want {
				t.Errorf("IsPublic(%s) = %v, want %v", tt.symbol, got, tt.want)
			}
		})
	}
}

func TestKeywordFallback(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"export default class X {}", true},
		{"pub fn x()", true},
		{"pub(crate) struct S", true},
		{"public static void main(String[] a)", true},
		{"republic = 1", false},
		{"function exported() {}", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := Keyword(tt.line); got != tt.want {
			t.Errorf("Keyword(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestUnknownLanguageUsesKeyword(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver()

	sym := symbolAt(t, "thing", filepath.Join(dir, "x.kt"), "public fun thing() {}\n", 0)
	if !r.IsPublic(sym) {
		t.Error("keyword fallback should mark public declaration")
	}
	sym = symbolAt(t, "other", filepath.Join(dir, "y.kt"), "private fun other() {}\n", 0)
	if r.IsPublic(sym) {
		t.Error("keyword fallback should leave private declaration private")
	}
}

func TestRegisterAndForget(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver()
	r.Register(parser.LangGo, func(name, line string) (bool, bool) { return false, false })

	file := filepath.Join(dir, "a.go")
	sym := symbolAt(t, "Open", file, "func Open() {}\n", 0)
	if r.IsPublic(sym) {
		t.Error("rule that does not apply should defer to keywords")
	}

	sym = symbolAt(t, "Open", file, "pub Open\n", 0)
	if r.IsPublic(sym) {
		t.Error("cached lines should be used until Forget")
	}
	r.Forget(file)
	if !r.IsPublic(sym) {
		t.Error("Forget should drop cached lines")
	}
}
