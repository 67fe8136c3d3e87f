package deadcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/panbanda/symreach/internal/cache"
	"github.com/panbanda/symreach/internal/scanner"
	"github.com/panbanda/symreach/pkg/analyzer"
	"github.com/panbanda/symreach/pkg/analyzer/builder"
	"github.com/panbanda/symreach/pkg/analyzer/depgraph"
	"github.com/panbanda/symreach/pkg/config"
	"github.com/panbanda/symreach/pkg/provider"
)

// Engine metadata.
const (
	EngineName        = "deep-dead-code"
	EngineVersion     = "1.0.0"
	EngineDescription = "Finds dead code by building a workspace-wide dependency graph."
)

var (
	tracer = otel.Tracer("symreach.deadcode")

	errNotDir = errors.New("not a directory")
)

// Engine runs dead code analyses. Graphs are cached per workspace root and
// reused while the workspace fingerprint and the provider are unchanged. An
// Engine is safe for concurrent use.
type Engine struct {
	graphs   *cache.GraphCache
	store    *cache.Store
	lister   cache.FileLister
	identity string
	logger   zerolog.Logger
	bopts    []builder.Option
	builder  *builder.Builder
	finder   *Finder
	clock    func() time.Time
}

// Compile-time check that Engine implements analyzer.Engine.
var _ analyzer.Engine[*Report] = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithGraphCache shares a graph cache between engines.
func WithGraphCache(c *cache.GraphCache) Option {
	return func(e *Engine) {
		if c != nil {
			e.graphs = c
		}
	}
}

// WithReportStore persists rendered reports across processes.
func WithReportStore(s *cache.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithFileLister sets how the workspace file set is enumerated for the
// fingerprint.
func WithFileLister(l cache.FileLister) Option {
	return func(e *Engine) {
		if l != nil {
			e.lister = l
		}
	}
}

// WithProviderIdentity names the provider setup, such as its kind and
// server command. Reports stored under another identity are not reused.
func WithProviderIdentity(id string) Option {
	return func(e *Engine) {
		e.identity = id
	}
}

// WithLogger sets the logger for the engine and its builder.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
		e.bopts = append(e.bopts, builder.WithLogger(l))
	}
}

// WithConcurrency bounds concurrent provider queries.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		e.bopts = append(e.bopts, builder.WithConcurrency(n))
	}
}

// WithQueryTimeout bounds each provider query.
func WithQueryTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.bopts = append(e.bopts, builder.WithQueryTimeout(d))
	}
}

// WithBuilderOptions passes options straight to the graph builder.
func WithBuilderOptions(opts ...builder.Option) Option {
	return func(e *Engine) {
		e.bopts = append(e.bopts, opts...)
	}
}

// New creates an Engine. Without WithFileLister the workspace is scanned
// with the default configuration.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger: zerolog.Nop(),
		finder: NewFinder(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.graphs == nil {
		e.graphs = cache.NewGraphCache()
	}
	if e.lister == nil {
		e.lister = scanner.NewScanner(config.DefaultConfig())
	}
	e.builder = builder.New(e.bopts...)
	return e
}

// Metadata implements analyzer.Engine.
func (e *Engine) Metadata() analyzer.Metadata {
	kinds := depgraph.AllKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return analyzer.Metadata{
		Name:           EngineName,
		Version:        EngineVersion,
		Description:    EngineDescription,
		SupportedKinds: names,
	}
}

// Graphs returns the engine's graph cache.
func (e *Engine) Graphs() *cache.GraphCache {
	return e.graphs
}

// Graph returns the dependency graph of workspace, building it with p when
// the cached one is missing or stale. The bool reports a cache hit.
func (e *Engine) Graph(ctx context.Context, p provider.Provider, workspace string) (*cache.Entry, bool, error) {
	root, fp, err := e.prepare(p, workspace)
	if err != nil {
		return nil, false, err
	}
	return e.graph(ctx, p, root, fp)
}

// prepare validates the inputs and fingerprints the workspace.
func (e *Engine) prepare(p provider.Provider, workspace string) (root, fingerprint string, err error) {
	const op = "prepare workspace"

	if p == nil {
		return "", "", analyzer.Errorf(analyzer.KindProvider, op, workspace, "no symbol provider")
	}
	root, err = resolveWorkspace(workspace)
	if err != nil {
		return "", "", analyzer.NewError(analyzer.KindInvalidWorkspace, op, workspace, err)
	}
	fingerprint, err = cache.WorkspaceFingerprint(root, e.lister)
	if err != nil {
		return "", "", analyzer.NewError(analyzer.KindInvalidWorkspace, op, root, err)
	}
	return root, fingerprint, nil
}

// graph keys the cached graph by the workspace fingerprint and the provider
// instance that answers the queries.
func (e *Engine) graph(ctx context.Context, p provider.Provider, root, fingerprint string) (*cache.Entry, bool, error) {
	key := e.providerKey(p) + "\x00" + instance(p)
	fingerprint += ":" + cache.HashBytes([]byte(key))[:16]
	return e.graphs.GetOrBuild(ctx, root, fingerprint, func(ctx context.Context) (*builder.Result, error) {
		return e.builder.Build(ctx, p, root)
	})
}

// Analyze implements analyzer.Engine. It fingerprints the workspace, reuses
// or builds the graph, and reports every symbol no entry point reaches.
func (e *Engine) Analyze(ctx context.Context, p provider.Provider, workspace string, cfg analyzer.Config) (*Report, error) {
	start := e.clock()
	ctx, span := tracer.Start(ctx, "deadcode.Analyze")
	defer span.End()

	fail := func(err error) (*Report, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	root, fp, err := e.prepare(p, workspace)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.String("workspace", root))

	if rep, ok := e.loadReport(p, root, fp, cfg); ok {
		rep.DurationMS = e.clock().Sub(start).Milliseconds()
		span.SetAttributes(attribute.Bool("report_cache_hit", true))
		return rep, nil
	}

	entry, hit, err := e.graph(ctx, p, root, fp)
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(attribute.Bool("cache_hit", hit))

	reach := e.finder.Analyze(entry.Graph)
	rep := newReport(entry.Graph, reach, entry.Stats, cfg)
	rep.Workspace = entry.Root
	rep.Fingerprint = entry.Fingerprint
	rep.CacheHit = hit
	rep.GeneratedAt = e.clock().UTC()
	rep.DurationMS = e.clock().Sub(start).Milliseconds()

	e.saveReport(p, root, fp, cfg, rep)

	span.SetAttributes(
		attribute.Int("dead_symbols", len(rep.DeadSymbols)),
		attribute.Int("reachable", rep.Diagnostics.Reachable),
	)
	e.logger.Info().
		Str("workspace", entry.Root).
		Bool("cache_hit", hit).
		Int("dead", len(rep.DeadSymbols)).
		Int("reachable", rep.Diagnostics.Reachable).
		Str("entry_rule", string(rep.Diagnostics.EntryRule)).
		Int64("duration_ms", rep.DurationMS).
		Msg("dead code analysis complete")
	return rep, nil
}

// Invalidate forgets the cached graph and stored report of workspace.
func (e *Engine) Invalidate(workspace string) {
	root, err := filepath.Abs(workspace)
	if err != nil {
		return
	}
	e.graphs.Invalidate(root)
	if e.store != nil {
		if err := e.store.Invalidate(root); err != nil {
			e.logger.Debug().Err(err).Str("workspace", root).Msg("failed to drop stored report")
		}
	}
}

// providerKey describes where graph answers come from in a form that is
// stable across processes.
func (e *Engine) providerKey(p provider.Provider) string {
	parts := []string{e.identity, fmt.Sprintf("%T", p), e.builder.Query()}
	if id, ok := p.(provider.Identifier); ok {
		parts = append(parts, id.Identity())
	}
	return strings.Join(parts, "\x00")
}

// instance distinguishes provider values within this process.
func instance(p provider.Provider) string {
	v := reflect.ValueOf(p)
	if v.Kind() == reflect.Pointer {
		return strconv.FormatUint(uint64(v.Pointer()), 16)
	}
	return ""
}

// storeKey ties a stored report to the workspace state, the provider setup
// and the report filter.
func (e *Engine) storeKey(p provider.Provider, fingerprint string, cfg analyzer.Config) string {
	data, _ := json.Marshal(cfg)
	return fingerprint + ":" + cache.HashBytes([]byte(e.providerKey(p))) + ":" + cache.HashBytes(data)
}

func (e *Engine) loadReport(p provider.Provider, root, fingerprint string, cfg analyzer.Config) (*Report, bool) {
	if e.store == nil || !e.store.Enabled() {
		return nil, false
	}
	data, ok := e.store.Load(root, e.storeKey(p, fingerprint, cfg))
	if !ok {
		return nil, false
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		e.logger.Debug().Err(err).Str("workspace", root).Msg("discarding unreadable stored report")
		return nil, false
	}
	rep.CacheHit = true
	return &rep, true
}

func (e *Engine) saveReport(p provider.Provider, root, fingerprint string, cfg analyzer.Config, rep *Report) {
	if e.store == nil || !e.store.Enabled() {
		return
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return
	}
	if err := e.store.Save(root, e.storeKey(p, fingerprint, cfg), data); err != nil {
		e.logger.Warn().Err(err).Str("workspace", root).Msg("failed to store report")
	}
}

// resolveWorkspace returns the absolute workspace root, which must be an
// existing directory.
func resolveWorkspace(workspace string) (string, error) {
	if strings.TrimSpace(workspace) == "" {
		return "", os.ErrInvalid
	}
	root, err := filepath.Abs(workspace)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", &os.PathError{Op: "open", Path: root, Err: errNotDir}
	}
	return root, nil
}
