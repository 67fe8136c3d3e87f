package analyzer

import (
	"context"
	"sync"
	"sync/atomic"
)

// Build phases reported through a Tracker.
const (
	PhaseEnumerate  = "enumerate"
	PhaseOutline    = "outline"
	PhaseReferences = "references"
)

// ProgressFunc is called to report analysis progress. phase names the
// current stage, current and total count the stage's work items.
type ProgressFunc func(phase string, current, total int)

// Tracker tracks progress across the phases of one analysis.
// It is safe for concurrent use from multiple goroutines.
type Tracker struct {
	mu       sync.Mutex
	phase    string
	total    atomic.Int32
	current  atomic.Int32
	callback ProgressFunc
}

// NewTracker creates a progress tracker with the given callback.
func NewTracker(callback ProgressFunc) *Tracker {
	return &Tracker{callback: callback}
}

// Start begins a new phase with total work items and resets the count.
func (t *Tracker) Start(phase string, total int) {
	t.mu.Lock()
	t.phase = phase
	t.mu.Unlock()
	t.total.Store(int32(total))
	t.current.Store(0)
	if t.callback != nil {
		t.callback(phase, 0, total)
	}
}

// Tick marks one item of the current phase as completed.
func (t *Tracker) Tick() {
	current := int(t.current.Add(1))
	if t.callback != nil {
		t.callback(t.Phase(), current, int(t.total.Load()))
	}
}

// Phase returns the current phase name.
func (t *Tracker) Phase() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Current returns the completed count of the current phase.
func (t *Tracker) Current() int {
	return int(t.current.Load())
}

// Total returns the size of the current phase.
func (t *Tracker) Total() int {
	return int(t.total.Load())
}

type trackerKey struct{}

// WithTracker returns a context that carries a progress tracker.
func WithTracker(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// TrackerFromContext extracts the progress tracker from the context.
// Returns nil if no tracker was set.
func TrackerFromContext(ctx context.Context) *Tracker {
	if t, ok := ctx.Value(trackerKey{}).(*Tracker); ok {
		return t
	}
	return nil
}
