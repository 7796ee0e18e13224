package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric instrument names.
const (
	MetricFetchTotal    = "sitecache.fetch.total"
	MetricFetchErrors   = "sitecache.fetch.errors"
	MetricFetchDuration = "sitecache.fetch.duration_ms"
	MetricCacheHits     = "sitecache.cache.hits"
	MetricCacheMisses   = "sitecache.cache.misses"
	MetricCacheStores   = "sitecache.cache.stores"
	MetricTransitions   = "sitecache.lifecycle.transitions"
)

// Metrics records interceptor metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	RecordFetch(ctx context.Context, meta FetchMeta, outcome Outcome, duration time.Duration)
	RecordTransition(ctx context.Context, version, from, to string)
}

type metricsImpl struct {
	total       metric.Int64Counter
	errors      metric.Int64Counter
	hits        metric.Int64Counter
	misses      metric.Int64Counter
	stores      metric.Int64Counter
	transitions metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewMetrics creates the interceptor instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	var (
		m   metricsImpl
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.total, MetricFetchTotal, "Intercepted requests", "{request}"},
		{&m.errors, MetricFetchErrors, "Intercepted requests whose network fetch failed", "{error}"},
		{&m.hits, MetricCacheHits, "Requests answered from the cache store", "{request}"},
		{&m.misses, MetricCacheMisses, "Requests that went to the network", "{request}"},
		{&m.stores, MetricCacheStores, "Network responses written to the cache store", "{response}"},
		{&m.transitions, MetricTransitions, "Worker lifecycle transitions", "{transition}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
	}

	m.duration, err = meter.Float64Histogram(
		MetricFetchDuration,
		metric.WithDescription("Intercepted request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *metricsImpl) RecordFetch(ctx context.Context, meta FetchMeta, outcome Outcome, duration time.Duration) {
	opt := metric.WithAttributes(append(meta.attributes(),
		attribute.String("cache.outcome", string(outcome)))...)

	m.total.Add(ctx, 1, opt)
	switch outcome {
	case OutcomeHit:
		m.hits.Add(ctx, 1, opt)
	case OutcomeStored:
		m.misses.Add(ctx, 1, opt)
		m.stores.Add(ctx, 1, opt)
	case OutcomePassthrough:
		m.misses.Add(ctx, 1, opt)
	case OutcomeError:
		m.misses.Add(ctx, 1, opt)
		m.errors.Add(ctx, 1, opt)
	}
	m.duration.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

func (m *metricsImpl) RecordTransition(ctx context.Context, version, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.version", version),
		attribute.String("lifecycle.from", from),
		attribute.String("lifecycle.to", to),
	))
}
