// Package scanner lists the tracked source files of a workspace.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/panbanda/symreach/pkg/config"
	"github.com/panbanda/symreach/pkg/parser"
)

// Scanner finds source files in a directory. A file is tracked when its
// language is recognised and no exclusion rule or .gitignore matches it.
type Scanner struct {
	config *config.Config

	mu      sync.Mutex
	matcher gitignore.Matcher
	root    string
}

// NewScanner creates a new file scanner.
func NewScanner(cfg *config.Config) *Scanner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Scanner{config: cfg}
}

// findGitRoot finds the root of the git repository by looking for .git directory.
// Returns empty string if not in a git repository.
func findGitRoot(start string) string {
	dir := start
	for {
		gitDir := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// excludePatterns turns the configured dirs, extensions and patterns into
// gitignore patterns, followed by every .gitignore under the repository root.
func (s *Scanner) excludePatterns(root string) []gitignore.Pattern {
	var patterns []gitignore.Pattern

	for _, dir := range s.config.Exclude.Dirs {
		patterns = append(patterns, gitignore.ParsePattern(strings.TrimSuffix(dir, "/")+"/", nil))
	}
	for _, ext := range s.config.Exclude.Extensions {
		patterns = append(patterns, gitignore.ParsePattern("*"+ext, nil))
	}
	for _, pattern := range s.config.Exclude.Patterns {
		patterns = append(patterns, gitignore.ParsePattern(pattern, nil))
	}

	if s.config.Exclude.Gitignore {
		gitRoot := findGitRoot(root)
		if gitRoot == "" {
			gitRoot = root
		}
		var domain []string
		if rel, err := filepath.Rel(gitRoot, root); err == nil && rel != "." {
			domain = strings.Split(filepath.ToSlash(rel), "/")
		}
		if gitPatterns, err := gitignore.ReadPatterns(osfs.New(gitRoot), nil); err == nil {
			// Rebase patterns read at the git root onto the scanned root.
			for _, p := range gitPatterns {
				patterns = append(patterns, rebased{Pattern: p, prefix: domain})
			}
		}
	}

	return patterns
}

// rebased evaluates a pattern read at the git root against a path relative
// to a subdirectory of it.
type rebased struct {
	gitignore.Pattern
	prefix []string
}

func (r rebased) Match(path []string, isDir bool) gitignore.MatchResult {
	if len(r.prefix) == 0 {
		return r.Pattern.Match(path, isDir)
	}
	full := make([]string, 0, len(r.prefix)+len(path))
	full = append(full, r.prefix...)
	full = append(full, path...)
	return r.Pattern.Match(full, isDir)
}

func (s *Scanner) load(root string) gitignore.Matcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.matcher == nil || s.root != root {
		s.matcher = gitignore.NewMatcher(s.excludePatterns(root))
		s.root = root
	}
	return s.matcher
}

// Reset drops the loaded exclusion rules so the next scan rereads .gitignore
// files.
func (s *Scanner) Reset() {
	s.mu.Lock()
	s.matcher = nil
	s.mu.Unlock()
}

func isExcluded(m gitignore.Matcher, rel string, isDir bool) bool {
	if rel == "." || rel == "" {
		return false
	}
	return m.Match(strings.Split(filepath.ToSlash(rel), "/"), isDir)
}

// ScanDir recursively scans a directory for source files and returns their
// absolute paths in lexical order. Symlinks that resolve outside the root
// are skipped, as are files over the configured size limit.
func (s *Scanner) ScanDir(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}

	m := s.load(absRoot)
	files := make([]string, 0, 1024)

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		relPath, _ := filepath.Rel(absRoot, path)

		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil || !isWithinRoot(resolved, realRoot) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		if d.IsDir() {
			if isExcluded(m, relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if isExcluded(m, relPath, false) {
			return nil
		}
		if parser.DetectLanguage(path) != parser.LangUnknown {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	files, _ = FilterBySize(files, s.config.Analysis.MaxFileSize)
	sort.Strings(files)
	return files, nil
}

// isWithinRoot checks if a path is contained within the root directory.
func isWithinRoot(path, root string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)

	// Add separator to prevent "/root2" matching "/root"
	return absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator))
}

// Tracked reports whether path, relative to or under root, would be
// returned by ScanDir. Used to filter file system events.
func (s *Scanner) Tracked(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(absRoot, path)
	}
	rel, err := filepath.Rel(absRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	if parser.DetectLanguage(path) == parser.LangUnknown {
		return false
	}

	m := s.load(absRoot)
	// Excluded parent directories exclude the file.
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i := 1; i < len(parts); i++ {
		if m.Match(parts[:i], true) {
			return false
		}
	}
	return !m.Match(parts, false)
}

// ExcludedDir reports whether ScanDir would skip the directory dir.
func (s *Scanner) ExcludedDir(root, dir string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return true
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(absRoot, dir)
	}
	rel, err := filepath.Rel(absRoot, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	if rel == "." {
		return false
	}

	m := s.load(absRoot)
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i := 1; i <= len(parts); i++ {
		if m.Match(parts[:i], true) {
			return true
		}
	}
	return false
}

// GroupByLanguage groups files by their detected language.
func GroupByLanguage(files []string) map[parser.Language][]string {
	groups := make(map[parser.Language][]string)
	for _, f := range files {
		lang := parser.DetectLanguage(f)
		if lang != parser.LangUnknown {
			groups[lang] = append(groups[lang], f)
		}
	}
	return groups
}

// FilterBySize filters files that exceed the configured maximum size.
// Returns the filtered list and the count of files that were skipped.
// If maxSize is 0, returns the original list unchanged.
func FilterBySize(files []string, maxSize int64) ([]string, int) {
	if maxSize <= 0 {
		return files, 0
	}

	filtered := make([]string, 0, len(files))
	skipped := 0

	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil || info.Size() > maxSize {
			skipped++
			continue
		}
		filtered = append(filtered, f)
	}

	return filtered, skipped
}
