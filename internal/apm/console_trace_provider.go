package apm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const consoleShutdownTimeout = 5 * time.Second

// ConsoleTraceProvider writes compact spans to stdout. The zero value is the
// empty provider: the global no-op tracer stays in place and Stop does nothing.
type ConsoleTraceProvider struct {
	tp *sdktrace.TracerProvider
}

func NewEmptyTraceProvider() TraceProvider { return ConsoleTraceProvider{} }

// NewConsoleTraceProvider installs a synchronous stdout exporter, so spans
// appear as soon as they end. It degrades to the empty provider when the
// exporter cannot be built.
func NewConsoleTraceProvider() TraceProvider {
	exp, err := stdouttrace.New()
	if err != nil {
		return ConsoleTraceProvider{}
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	otel.SetTracerProvider(tp)
	return ConsoleTraceProvider{tp: tp}
}

func (c ConsoleTraceProvider) Stop() error {
	if c.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), consoleShutdownTimeout)
	defer cancel()
	return c.tp.Shutdown(ctx)
}
