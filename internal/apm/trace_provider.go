package apm

import (
	"context"
	"strings"
	"time"

	"github.com/fd1az/savings-bench/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

// Provider names a span exporter. The values match telemetry.trace_exporter.
type Provider string

const (
	ZipkinProvider   Provider = "zipkin"
	OTLPGRPCProvider Provider = "otlp-grpc"
	OTLPHTTPProvider Provider = "otlp-http"
	StdoutProvider   Provider = "stdout"
	ConsoleProvider  Provider = "console"
	EmptyProvider    Provider = "none"
)

type TraceProvider interface {
	Stop() error
}

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

// Endpoint is where an exporter ships spans. Headers use the OTLP
// "key=value,key2=value2" form.
type Endpoint struct {
	URL     string
	Headers string
}

type TracerOptions struct {
	exporter           sdktrace.SpanExporter
	tracerProviderName string
	serviceName        string
	useEmpty           bool
	useConsole         bool
}

type TracerOption func(*TracerOptions)

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) TracerOption {
	return func(option *TracerOptions) {
		option.serviceName = name
	}
}

// WithProvider selects the exporter. Unknown names, or exporters that fail to
// build, fall back to the empty provider.
func WithProvider(provider Provider, ep Endpoint, log logger.LoggerInterface) TracerOption {
	switch provider {
	case ZipkinProvider:
		return useZipkin(ep, log)
	case OTLPGRPCProvider:
		return useOTLPGRPC(ep, log)
	case OTLPHTTPProvider:
		return useOTLPHTTP(ep, log)
	case StdoutProvider:
		return useStdout(log)
	case ConsoleProvider:
		return func(option *TracerOptions) {
			option.useConsole = true
			option.tracerProviderName = string(ConsoleProvider)
		}
	case EmptyProvider, "":
		return useEmpty()
	}

	log.Warn(context.Background(), "TracerProvider not found, using EmptyProvider", "provider", provider)

	return useEmpty()
}

func useEmpty() TracerOption {
	return func(option *TracerOptions) {
		option.useEmpty = true
		option.tracerProviderName = string(EmptyProvider)
	}
}

func fail(option *TracerOptions, log logger.LoggerInterface, provider Provider, err error) {
	log.Error(context.Background(), "Error initializing trace exporter", "provider", provider, "error", err)
	option.useEmpty = true
	option.tracerProviderName = string(EmptyProvider)
}

func useStdout(log logger.LoggerInterface) TracerOption {
	return func(option *TracerOptions) {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			fail(option, log, StdoutProvider, err)
			return
		}

		option.exporter = exp
		option.tracerProviderName = string(StdoutProvider)
	}
}

func useZipkin(ep Endpoint, log logger.LoggerInterface) TracerOption {
	return func(option *TracerOptions) {
		url := ep.URL
		if url == "" {
			url = "http://localhost:9411/api/v2/spans"
		}

		exp, err := zipkin.New(url)
		if err != nil {
			fail(option, log, ZipkinProvider, err)
			return
		}

		option.exporter = exp
		option.tracerProviderName = string(ZipkinProvider)
	}
}

func useOTLPGRPC(ep Endpoint, log logger.LoggerInterface) TracerOption {
	return func(option *TracerOptions) {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithHeaders(ParseHeaders(ep.Headers))}
		if ep.URL != "" {
			opts = append(opts, otlptracegrpc.WithEndpointURL(ep.URL))
		}

		log.Info(context.Background(), "Initializing OTLP gRPC exporter", "endpoint", ep.URL)
		exp, err := otlptracegrpc.New(context.Background(), opts...)
		if err != nil {
			fail(option, log, OTLPGRPCProvider, err)
			return
		}

		option.exporter = exp
		option.tracerProviderName = string(OTLPGRPCProvider)
	}
}

func useOTLPHTTP(ep Endpoint, log logger.LoggerInterface) TracerOption {
	return func(option *TracerOptions) {
		opts := []otlptracehttp.Option{otlptracehttp.WithHeaders(ParseHeaders(ep.Headers))}
		if ep.URL != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(ep.URL))
		}

		log.Info(context.Background(), "Initializing OTLP HTTP exporter", "endpoint", ep.URL)
		exp, err := otlptracehttp.New(context.Background(), opts...)
		if err != nil {
			fail(option, log, OTLPHTTPProvider, err)
			return
		}

		option.exporter = exp
		option.tracerProviderName = string(OTLPHTTPProvider)
	}
}

// ParseHeaders splits "k1=v1,k2=v2". Malformed pairs are dropped.
func ParseHeaders(s string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		headers[k] = v
	}
	return headers
}

func NewTraceProvider(log logger.LoggerInterface, options ...TracerOption) TraceProvider {
	opts := &TracerOptions{}

	for _, opt := range options {
		opt(opts)
	}

	if opts.useEmpty || (opts.exporter == nil && !opts.useConsole) {
		return NewEmptyTraceProvider()
	}
	if opts.useConsole {
		return NewConsoleTraceProvider()
	}

	rsrc, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(opts.serviceName),
			attribute.String("otel.provider", opts.tracerProviderName),
		))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(opts.exporter),
		sdktrace.WithResource(rsrc),
	)

	// Set global trace provider
	otel.SetTracerProvider(tp)

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	return &traceProvider{
		tp,
	}
}

func (o *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5) //nolint:gomnd
	defer cancel()

	return o.tp.Shutdown(ctx)
}
