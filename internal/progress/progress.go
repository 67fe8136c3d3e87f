// Package progress renders graph build phases as a terminal progress bar.
package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/panbanda/symreach/pkg/analyzer"
)

var phaseLabels = map[string]string{
	analyzer.PhaseEnumerate:  "Listing symbols",
	analyzer.PhaseOutline:    "Reading outlines",
	analyzer.PhaseReferences: "Finding references",
}

// Label returns the human-readable description of a build phase.
func Label(phase string) string {
	if l, ok := phaseLabels[phase]; ok {
		return l
	}
	return phase
}

// Bar follows the phases reported by an analyzer.Tracker. Its Update method
// is an analyzer.ProgressFunc. Safe for concurrent use.
type Bar struct {
	mu    sync.Mutex
	w     io.Writer
	bar   *progressbar.ProgressBar
	phase string
}

// New creates a bar writing to w. Nothing is drawn until the first update.
func New(w io.Writer) *Bar {
	return &Bar{w: w}
}

func (b *Bar) newBar(phase string, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(Label(phase)),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// Update moves the bar to current of total in phase. A new phase replaces
// the previous bar.
func (b *Bar) Update(phase string, current, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar == nil || phase != b.phase {
		if b.bar != nil {
			_ = b.bar.Finish()
			_ = b.bar.Clear()
		}
		b.bar = b.newBar(phase, total)
		b.phase = phase
	}
	_ = b.bar.Set(current)
}

// Phase returns the phase currently shown.
func (b *Bar) Phase() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// Finish clears the bar.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar == nil {
		return
	}
	_ = b.bar.Finish()
	_ = b.bar.Clear()
	b.bar = nil
}

// Fail clears the bar and reports err.
func (b *Bar) Fail(err error) {
	b.mu.Lock()
	phase := b.phase
	b.mu.Unlock()

	b.Finish()
	fmt.Fprintf(b.w, "  %s failed: %v\n", Label(phase), err)
}
