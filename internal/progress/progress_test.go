package progress

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/panbanda/symreach/pkg/analyzer"
)

func TestLabel(t *testing.T) {
	if got := Label(analyzer.PhaseReferences); got != "Finding references" {
		t.Errorf("Label(references) = %q", got)
	}
	if got := Label("custom"); got != "custom" {
		t.Errorf("Label(custom) = %q, want passthrough", got)
	}
}

func TestBarFollowsPhases(t *testing.T) {
	var buf bytes.Buffer
	bar := New(&buf)

	if bar.Phase() != "" {
		t.Errorf("new bar should have no phase")
	}

	bar.Update(analyzer.PhaseOutline, 0, 3)
	bar.Update(analyzer.PhaseOutline, 3, 3)
	if got := bar.Phase(); got != analyzer.PhaseOutline {
		t.Errorf("Phase() = %q, want %q", got, analyzer.PhaseOutline)
	}

	bar.Update(analyzer.PhaseReferences, 1, 10)
	if got := bar.Phase(); got != analyzer.PhaseReferences {
		t.Errorf("Phase() = %q, want %q", got, analyzer.PhaseReferences)
	}

	bar.Finish()
	bar.Finish() // idempotent

	if buf.Len() == 0 {
		t.Error("bar should have drawn something")
	}
}

func TestBarAsTrackerCallback(t *testing.T) {
	var buf bytes.Buffer
	bar := New(&buf)
	tracker := analyzer.NewTracker(bar.Update)

	tracker.Start(analyzer.PhaseReferences, 50)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Tick()
		}()
	}
	wg.Wait()
	bar.Finish()

	if tracker.Current() != 50 {
		t.Errorf("Current() = %d, want 50", tracker.Current())
	}
}

func TestBarFail(t *testing.T) {
	var buf bytes.Buffer
	bar := New(&buf)
	bar.Update(analyzer.PhaseEnumerate, 0, 1)
	bar.Fail(errors.New("server exited"))

	if !strings.Contains(buf.String(), "Listing symbols failed: server exited") {
		t.Errorf("Fail output = %q", buf.String())
	}
}
