package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/panbanda/symreach/pkg/analyzer"
	"github.com/panbanda/symreach/pkg/analyzer/builder"
	"github.com/panbanda/symreach/pkg/analyzer/depgraph"
)

// BuildFunc produces a fresh graph for a workspace.
type BuildFunc func(ctx context.Context) (*builder.Result, error)

// Entry is a published graph. The graph is frozen and shared by every
// caller that receives the entry.
type Entry struct {
	Root        string
	Fingerprint string
	Graph       *depgraph.Graph
	Stats       builder.BuildStats
	BuiltAt     time.Time

	started time.Time
}

// GraphStats are cumulative counters for a GraphCache.
type GraphStats struct {
	Entries  int   `json:"entries"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Builds   int64 `json:"builds"`
	Failures int64 `json:"failures"`
}

// GraphCache holds at most one graph per workspace root. Concurrent
// requests for the same root and fingerprint share a single build.
//
// Failed and cancelled builds are never stored.
type GraphCache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	flight  singleflight.Group

	hits     int64
	misses   int64
	builds   int64
	failures int64
}

// NewGraphCache creates an empty cache.
func NewGraphCache() *GraphCache {
	return &GraphCache{entries: make(map[string]*Entry)}
}

// GetOrBuild returns the graph for root at fingerprint, building it when
// no matching entry exists. The boolean reports whether the entry came from
// the cache.
//
// Callers that join an in-flight build wait on their own context. If the
// build was abandoned because its leader's context ended and ours is still
// live, the build is attempted once more. Build failures are never retried,
// even when a provider timeout caused them.
func (c *GraphCache) GetOrBuild(ctx context.Context, root, fingerprint string, build BuildFunc) (*Entry, bool, error) {
	ctx, span := startCacheSpan(ctx, "GetOrBuild", root)
	defer span.End()

	if entry := c.lookup(root, fingerprint); entry != nil {
		atomic.AddInt64(&c.hits, 1)
		recordHit(ctx)
		setCacheSpanResult(span, true)
		return entry, true, nil
	}
	atomic.AddInt64(&c.misses, 1)
	recordMiss(ctx)
	setCacheSpanResult(span, false)

	entry, err := c.await(ctx, root, fingerprint, build)
	if err != nil && ctx.Err() == nil && leaderCancelled(err) {
		entry, err = c.await(ctx, root, fingerprint, build)
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	return entry, false, nil
}

func (c *GraphCache) await(ctx context.Context, root, fingerprint string, build BuildFunc) (*Entry, error) {
	ch := c.flight.DoChan(flightKey(root, fingerprint), func() (any, error) {
		// A build for this key may have finished between lookup and DoChan.
		if entry := c.lookup(root, fingerprint); entry != nil {
			return entry, nil
		}
		return c.buildAndStore(ctx, root, fingerprint, build)
	})

	select {
	case <-ctx.Done():
		return nil, analyzer.Cancelled("graph cache", root, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	}
}

func (c *GraphCache) buildAndStore(ctx context.Context, root, fingerprint string, build BuildFunc) (*Entry, error) {
	start := time.Now()
	res, err := build(ctx)
	if err == nil && res == nil {
		err = analyzer.NewError(analyzer.KindCache, "graph cache", root, errors.New("build returned no graph"))
	}
	if err != nil {
		atomic.AddInt64(&c.failures, 1)
		recordBuild(ctx, time.Since(start).Seconds(), false)
		return nil, err
	}

	res.Graph.Freeze()
	entry := &Entry{
		Root:        root,
		Fingerprint: fingerprint,
		Graph:       res.Graph,
		Stats:       res.Stats,
		BuiltAt:     time.Now(),
		started:     start,
	}

	// A build that started before the published one is older work; it still
	// answers its own callers but does not replace the entry.
	c.mu.Lock()
	if cur, ok := c.entries[root]; !ok || !cur.started.After(start) {
		c.entries[root] = entry
	}
	c.mu.Unlock()

	atomic.AddInt64(&c.builds, 1)
	recordBuild(ctx, time.Since(start).Seconds(), true)
	return entry, nil
}

// lookup returns the entry for root if it matches fingerprint. A stale
// entry is discarded.
func (c *GraphCache) lookup(root, fingerprint string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[root]
	if !ok {
		return nil
	}
	if entry.Fingerprint != fingerprint {
		delete(c.entries, root)
		return nil
	}
	return entry
}

// Get returns the current entry for root regardless of fingerprint.
func (c *GraphCache) Get(root string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[root]
	return entry, ok
}

// Invalidate drops the entry for root. Builds already in flight still
// publish their result.
func (c *GraphCache) Invalidate(root string) {
	c.mu.Lock()
	delete(c.entries, root)
	c.mu.Unlock()
}

// Len returns the number of cached workspaces.
func (c *GraphCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *GraphCache) Stats() GraphStats {
	return GraphStats{
		Entries:  c.Len(),
		Hits:     atomic.LoadInt64(&c.hits),
		Misses:   atomic.LoadInt64(&c.misses),
		Builds:   atomic.LoadInt64(&c.builds),
		Failures: atomic.LoadInt64(&c.failures),
	}
}

// leaderCancelled reports whether a shared build ended because the
// leader's context did.
func leaderCancelled(err error) bool {
	kind, ok := analyzer.KindOf(err)
	return ok && kind == analyzer.KindCancelled
}

func flightKey(root, fingerprint string) string {
	return root + "\x00" + fingerprint
}
