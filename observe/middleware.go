package observe

import (
	"context"
	"time"
)

// Middleware instruments interceptor work with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: errors from the observed function are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	return &Middleware{tracer: tracer, metrics: metrics, logger: logger}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger {
	return m.logger
}

// ObserveFetch runs fn inside a fetch span and records its outcome.
func (m *Middleware) ObserveFetch(
	ctx context.Context,
	meta FetchMeta,
	fn func(ctx context.Context) (Outcome, error),
) (Outcome, error) {
	ctx, span := m.tracer.StartSpan(ctx, meta)
	start := time.Now()

	outcome, err := fn(ctx)
	duration := time.Since(start)

	m.tracer.EndSpan(span, outcome, err)
	m.metrics.RecordFetch(ctx, meta, outcome, duration)

	fields := []Field{
		{Key: "method", Value: meta.Method},
		{Key: "url", Value: meta.URL},
		{Key: "outcome", Value: string(outcome)},
		{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000},
	}
	logger := m.logger.WithWorker(meta.Version)
	if err != nil {
		fields = append(fields, Field{Key: "error", Value: err.Error()})
		logger.Warn(ctx, "fetch failed", fields...)
	} else {
		logger.Debug(ctx, "fetch handled", fields...)
	}
	return outcome, err
}

// Transition records a lifecycle state change.
func (m *Middleware) Transition(ctx context.Context, version, from, to string) {
	m.metrics.RecordTransition(ctx, version, from, to)
	m.logger.WithWorker(version).Info(ctx, "lifecycle transition",
		Field{Key: "from", Value: from},
		Field{Key: "to", Value: to},
	)
}

// NopMiddleware returns a Middleware that records nothing.
func NopMiddleware() *Middleware {
	return NewMiddleware(nopTracer{}, nopMetrics{}, NopLogger())
}
