// Package watch re-runs workspace analysis when tracked files change.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long a workspace must be quiet before a change
// batch is delivered.
const DefaultDebounce = 500 * time.Millisecond

// Filter decides which paths matter. *scanner.Scanner satisfies it.
type Filter interface {
	// Tracked reports whether a file under root is part of the analysis.
	Tracked(root, path string) bool
	// ExcludedDir reports whether a directory under root is skipped.
	ExcludedDir(root, dir string) bool
}

// ChangeFunc receives a batch of changed files in lexical order.
type ChangeFunc func(ctx context.Context, changed []string)

// Watcher monitors a workspace and batches changes to tracked files.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	filter    Filter
	root      string
	debounce  time.Duration
	tick      time.Duration
	logger    zerolog.Logger

	mu       sync.Mutex
	onChange ChangeFunc
	pending  map[string]time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a batch is delivered.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// New creates a watcher for root. Nothing is watched until Start.
func New(root string, filter Filter, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		filter:    filter,
		root:      abs,
		debounce:  DefaultDebounce,
		tick:      100 * time.Millisecond,
		logger:    zerolog.Nop(),
		pending:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.debounce < w.tick {
		w.tick = w.debounce
	}
	return w, nil
}

// OnChange sets the function called with each batch of changes.
func (w *Watcher) OnChange(fn ChangeFunc) {
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

// Root returns the absolute workspace root.
func (w *Watcher) Root() string {
	return w.root
}

// addTree watches dir and every non-excluded directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.filter != nil && w.filter.ExcludedDir(w.root, path) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// Start watches until ctx ends. Change batches are delivered on a separate
// goroutine, one at a time.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.logger.Info().Str("root", w.root).Int("dirs", len(w.fsWatcher.WatchList())).Msg("watching workspace")

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

// handleEvent records a relevant event. New directories are watched too.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if isDir(event.Name) {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Debug().Err(err).Str("dir", event.Name).Msg("failed to watch new directory")
			}
			return
		}
	}

	if w.filter != nil && !w.filter.Tracked(w.root, event.Name) {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// processDebounced delivers batches once the workspace has been quiet.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if batch := w.takeReady(time.Now()); len(batch) > 0 {
				w.deliver(ctx, batch)
			}
		}
	}
}

// takeReady returns the pending batch once the most recent change is at
// least one debounce period old.
func (w *Watcher) takeReady(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 {
		return nil
	}
	for _, last := range w.pending {
		if now.Sub(last) < w.debounce {
			return nil
		}
	}

	batch := make([]string, 0, len(w.pending))
	for path := range w.pending {
		batch = append(batch, path)
	}
	sort.Strings(batch)
	w.pending = make(map[string]time.Time)
	return batch
}

func (w *Watcher) deliver(ctx context.Context, batch []string) {
	w.mu.Lock()
	fn := w.onChange
	w.mu.Unlock()
	if fn == nil {
		return
	}
	w.logger.Debug().Strs("files", batch).Msg("workspace changed")
	fn(ctx, batch)
}

// Pending returns the number of changes waiting for the debounce period.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.fsWatcher.WatchList()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
