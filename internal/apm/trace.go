// Package apm wires OpenTelemetry tracing: exporter selection for the
// process and a thin span wrapper for application code.
package apm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans on the global provider. It is resolved per call so a
// provider installed after construction still receives the spans.
type Tracer interface {
	StartSpanFromContext(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, Span)
	SpanFromContext(ctx context.Context) Span
}

// Span is the subset of trace.Span the application records on.
type Span interface {
	SetAttributes(values ...attribute.KeyValue)
	AddEvent(name string, options ...trace.EventOption)
	NoticeError(err error)
	IsRecording() bool
	SpanContext() trace.SpanContext
	End(options ...trace.SpanEndOption)
}

type openTracer struct {
	name string
}

func NewTracer(name string) Tracer {
	return &openTracer{name: name}
}

func (t *openTracer) StartSpanFromContext(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	ctx, span := otel.Tracer(t.name).Start(ctx, name, opts...)
	return ctx, traceSpan{span}
}

func (t *openTracer) SpanFromContext(ctx context.Context) Span {
	return traceSpan{trace.SpanFromContext(ctx)}
}

type traceSpan struct {
	trace.Span
}

// NoticeError records err and marks the span failed.
func (s traceSpan) NoticeError(err error) {
	if err == nil {
		return
	}
	s.Span.RecordError(err)
	s.Span.SetStatus(codes.Error, err.Error())
}
