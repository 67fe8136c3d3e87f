package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/symreach/pkg/analyzer"
	"github.com/panbanda/symreach/pkg/analyzer/builder"
	"github.com/panbanda/symreach/pkg/analyzer/depgraph"
)

func oneNodeGraph(name string) *builder.Result {
	g := depgraph.New(1)
	_, _, _ = g.AddNode(depgraph.SymbolNode{
		ID:   depgraph.NewNamedSymbolID("a.go", name),
		Name: name,
		Kind: depgraph.KindFunction,
	})
	return &builder.Result{Graph: g, Stats: builder.BuildStats{SymbolsAnalyzed: 1}}
}

func countingBuild(calls *int32, name string) BuildFunc {
	return func(ctx context.Context) (*builder.Result, error) {
		atomic.AddInt32(calls, 1)
		return oneNodeGraph(name), nil
	}
}

func TestGraphCacheHit(t *testing.T) {
	c := NewGraphCache()
	var calls int32
	ctx := context.Background()

	first, hit, err := c.GetOrBuild(ctx, "/ws", "fp1", countingBuild(&calls, "main"))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.True(t, first.Graph.Frozen())
	assert.Equal(t, 1, first.Stats.SymbolsAnalyzed)

	second, hit, err := c.GetOrBuild(ctx, "/ws", "fp1", countingBuild(&calls, "other"))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, first, second)
	assert.EqualValues(t, 1, calls)

	stats := c.Stats()
	assert.Equal(t, GraphStats{Entries: 1, Hits: 1, Misses: 1, Builds: 1}, stats)
}

func TestGraphCacheFingerprintChangeRebuilds(t *testing.T) {
	c := NewGraphCache()
	var calls int32
	ctx := context.Background()

	first, _, err := c.GetOrBuild(ctx, "/ws", "fp1", countingBuild(&calls, "main"))
	require.NoError(t, err)

	second, hit, err := c.GetOrBuild(ctx, "/ws", "fp2", countingBuild(&calls, "main"))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotSame(t, first, second)
	assert.Equal(t, "fp2", second.Fingerprint)
	assert.EqualValues(t, 2, calls)
	assert.Equal(t, 1, c.Len(), "the stale entry is replaced, not kept alongside")
}

func TestGraphCacheConcurrentRequestsBuildOnce(t *testing.T) {
	c := NewGraphCache()
	var calls int32
	release := make(chan struct{})

	build := func(ctx context.Context) (*builder.Result, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return oneNodeGraph("main"), nil
	}

	const n = 16
	var wg sync.WaitGroup
	entries := make([]*Entry, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i], _, errs[i] = c.GetOrBuild(context.Background(), "/ws", "fp", build)
		}(i)
	}

	// Let the goroutines pile up behind the first build.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, entries[0], entries[i])
	}
}

func TestGraphCacheFailuresAreNotCached(t *testing.T) {
	c := NewGraphCache()
	boom := errors.New("boom")
	var calls int32

	failing := func(ctx context.Context) (*builder.Result, error) {
		atomic.AddInt32(&calls, 1)
		return nil, boom
	}

	_, _, err := c.GetOrBuild(context.Background(), "/ws", "fp", failing)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	entry, hit, err := c.GetOrBuild(context.Background(), "/ws", "fp", countingBuild(&calls, "main"))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotNil(t, entry)
	assert.EqualValues(t, 2, calls)
	assert.EqualValues(t, 1, c.Stats().Failures)
}

func TestGraphCacheNilResult(t *testing.T) {
	c := NewGraphCache()
	_, _, err := c.GetOrBuild(context.Background(), "/ws", "fp", func(context.Context) (*builder.Result, error) {
		return nil, nil
	})
	require.Error(t, err)
	kind, ok := analyzer.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, analyzer.KindCache, kind)
}

func TestGraphCacheWaiterHonoursOwnContext(t *testing.T) {
	c := NewGraphCache()
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	slow := func(ctx context.Context) (*builder.Result, error) {
		close(started)
		<-release
		return oneNodeGraph("main"), nil
	}

	go func() {
		_, _, _ = c.GetOrBuild(context.Background(), "/ws", "fp", slow)
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := c.GetOrBuild(ctx, "/ws", "fp", slow)
	require.Error(t, err)
	assert.True(t, analyzer.IsCancelled(err))
	assert.ErrorIs(t, err, analyzer.ErrCancelled)
}

func TestGraphCacheRetriesAfterLeaderCancelled(t *testing.T) {
	c := NewGraphCache()
	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	started := make(chan struct{})
	var calls int32

	build := func(ctx context.Context) (*builder.Result, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-ctx.Done()
			return nil, analyzer.Cancelled("build", "/ws", ctx.Err())
		}
		return oneNodeGraph("main"), nil
	}

	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrBuild(leaderCtx, "/ws", "fp", build)
		leaderErr <- err
	}()
	<-started

	waiterDone := make(chan error, 1)
	var waiterEntry *Entry
	go func() {
		var err error
		waiterEntry, _, err = c.GetOrBuild(context.Background(), "/ws", "fp", build)
		waiterDone <- err
	}()

	// Give the waiter time to join the in-flight build.
	time.Sleep(30 * time.Millisecond)
	cancelLeader()

	assert.True(t, analyzer.IsCancelled(<-leaderErr))
	require.NoError(t, <-waiterDone)
	require.NotNil(t, waiterEntry)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Equal(t, 1, c.Len())
}

func TestGraphCacheDoesNotRetryProviderTimeout(t *testing.T) {
	c := NewGraphCache()
	var calls int32

	build := func(ctx context.Context) (*builder.Result, error) {
		atomic.AddInt32(&calls, 1)
		return nil, analyzer.NewError(analyzer.KindEnumeration, "build graph", "/ws",
			fmt.Errorf("workspace/symbol: %w", context.DeadlineExceeded))
	}

	_, _, err := c.GetOrBuild(context.Background(), "/ws", "fp", build)
	require.Error(t, err)
	kind, ok := analyzer.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, analyzer.KindEnumeration, kind)
	assert.False(t, analyzer.IsCancelled(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Zero(t, c.Len())
}

func TestGraphCacheLateOlderBuildKeepsNewerEntry(t *testing.T) {
	c := NewGraphCache()
	started := make(chan struct{})
	release := make(chan struct{})

	slow := func(ctx context.Context) (*builder.Result, error) {
		close(started)
		<-release
		return oneNodeGraph("old"), nil
	}

	oldDone := make(chan *Entry, 1)
	go func() {
		entry, _, err := c.GetOrBuild(context.Background(), "/ws", "fp1", slow)
		assert.NoError(t, err)
		oldDone <- entry
	}()
	<-started
	time.Sleep(5 * time.Millisecond)

	var calls int32
	newer, _, err := c.GetOrBuild(context.Background(), "/ws", "fp2", countingBuild(&calls, "new"))
	require.NoError(t, err)

	close(release)
	older := <-oldDone
	require.NotNil(t, older)
	assert.Equal(t, "fp1", older.Fingerprint, "the late build still answers its own caller")

	current, ok := c.Get("/ws")
	require.True(t, ok)
	assert.Same(t, newer, current)

	_, hit, err := c.GetOrBuild(context.Background(), "/ws", "fp2", countingBuild(&calls, "new"))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.EqualValues(t, 1, calls)
}

func TestGraphCacheInvalidate(t *testing.T) {
	c := NewGraphCache()
	var calls int32
	ctx := context.Background()

	_, _, err := c.GetOrBuild(ctx, "/ws", "fp", countingBuild(&calls, "main"))
	require.NoError(t, err)
	_, ok := c.Get("/ws")
	assert.True(t, ok)

	c.Invalidate("/ws")
	assert.Equal(t, 0, c.Len())

	_, hit, err := c.GetOrBuild(ctx, "/ws", "fp", countingBuild(&calls, "main"))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.EqualValues(t, 2, calls)
}

func TestGraphCacheSeparateRoots(t *testing.T) {
	c := NewGraphCache()
	var calls int32
	ctx := context.Background()

	a, _, err := c.GetOrBuild(ctx, "/a", "fp", countingBuild(&calls, "main"))
	require.NoError(t, err)
	b, _, err := c.GetOrBuild(ctx, "/b", "fp", countingBuild(&calls, "main"))
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, c.Len())
}
