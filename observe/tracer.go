package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanFetch is the span name for an intercepted request.
const SpanFetch = "sitecache.fetch"

// Outcome classifies how an intercepted request was answered.
type Outcome string

const (
	// OutcomeHit means the response came from the cache store.
	OutcomeHit Outcome = "hit"
	// OutcomeStored means the network answered and the response was stored.
	OutcomeStored Outcome = "stored"
	// OutcomePassthrough means the network answered but the response was not storable.
	OutcomePassthrough Outcome = "passthrough"
	// OutcomeError means the network fetch failed.
	OutcomeError Outcome = "error"
)

// FetchMeta describes an intercepted request for telemetry purposes.
type FetchMeta struct {
	Version string // Worker version identifier (cache store name)
	Method  string
	URL     string
}

func (m FetchMeta) attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("cache.version", m.Version),
		attribute.String("http.request.method", m.Method),
	}
}

// Tracer wraps OpenTelemetry tracing with fetch-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	StartSpan(ctx context.Context, meta FetchMeta) (context.Context, trace.Span)
	EndSpan(span trace.Span, outcome Outcome, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta FetchMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.String("url.full", meta.URL))
	return t.tracer.Start(ctx, SpanFetch,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, outcome Outcome, err error) {
	span.SetAttributes(
		attribute.String("cache.outcome", string(outcome)),
		attribute.Bool("cache.hit", outcome == OutcomeHit),
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
