package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

var noopTrace = tracenoop.NewTracerProvider().Tracer("noop")

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ FetchMeta) (context.Context, trace.Span) {
	return noopTrace.Start(ctx, SpanFetch)
}

func (nopTracer) EndSpan(span trace.Span, _ Outcome, _ error) {
	span.End()
}

type nopMetrics struct{}

func (nopMetrics) RecordFetch(context.Context, FetchMeta, Outcome, time.Duration) {}
func (nopMetrics) RecordTransition(context.Context, string, string, string)       {}
