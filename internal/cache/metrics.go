package cache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("symreach.cache")
	meter  = otel.Meter("symreach.cache")
)

var (
	cacheHits          metric.Int64Counter
	cacheMisses        metric.Int64Counter
	cacheBuilds        metric.Int64Counter
	cacheBuildFailures metric.Int64Counter
	cacheBuildDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics registers the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"graph_cache_hits_total",
			metric.WithDescription("Graph requests served from the cache"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"graph_cache_misses_total",
			metric.WithDescription("Graph requests that needed a build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheBuilds, err = meter.Int64Counter(
			"graph_cache_builds_total",
			metric.WithDescription("Graph builds that completed and were stored"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheBuildFailures, err = meter.Int64Counter(
			"graph_cache_build_failures_total",
			metric.WithDescription("Graph builds that failed or were cancelled"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheBuildDuration, err = meter.Float64Histogram(
			"graph_cache_build_duration_seconds",
			metric.WithDescription("Duration of graph builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordHit(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheHits.Add(ctx, 1)
}

func recordMiss(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheMisses.Add(ctx, 1)
}

func recordBuild(ctx context.Context, seconds float64, ok bool) {
	if err := initMetrics(); err != nil {
		return
	}
	if ok {
		cacheBuilds.Add(ctx, 1)
	} else {
		cacheBuildFailures.Add(ctx, 1)
	}
	cacheBuildDuration.Record(ctx, seconds, metric.WithAttributes(attribute.Bool("ok", ok)))
}

// startCacheSpan creates a span for a cache operation.
func startCacheSpan(ctx context.Context, operation, root string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "GraphCache."+operation,
		trace.WithAttributes(
			attribute.String("cache.operation", operation),
			attribute.String("cache.workspace", root),
		),
	)
}

func setCacheSpanResult(span trace.Span, hit bool) {
	span.SetAttributes(attribute.Bool("cache.hit", hit))
}
