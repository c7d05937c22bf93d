// Package metrics installs the global otel meter provider and serves the
// Prometheus scrape endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

// MetricProvider is the installed global meter provider.
type MetricProvider interface {
	Meter(name string, options ...metric.MeterOption) metric.Meter
	Shutdown(ctx context.Context) error
}

func newReader(ctx context.Context, p ProviderCfg, interval time.Duration) (sdkmetric.Reader, error) {
	switch p.Provider {
	case PrometheusProvider:
		return prometheus.New()
	case OtelCollector:
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithHeaders(p.Headers)}
		if p.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpointURL(p.Endpoint))
		}
		if p.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)), nil
	}
	return nil, fmt.Errorf("unknown metric provider %q", p.Provider)
}

// NewMetricProvider builds one reader per configured provider and installs
// the result as the global meter provider. With no providers every
// instrument is a no-op.
func NewMetricProvider(opts ...OptionFn) (MetricProvider, error) {
	cfg := options{exportInterval: defaultExportInterval}
	for _, opt := range opts {
		opt(&cfg)
	}

	sdkOpts := []sdkmetric.Option{
		sdkmetric.WithResource(resource.NewSchemaless(semconv.ServiceNameKey.String(cfg.serviceName))),
	}
	for _, p := range cfg.readers {
		reader, err := newReader(context.Background(), p, cfg.exportInterval)
		if err != nil {
			return nil, fmt.Errorf("metric reader %s: %w", p.Provider, err)
		}
		sdkOpts = append(sdkOpts, sdkmetric.WithReader(reader))
	}

	mp := sdkmetric.NewMeterProvider(sdkOpts...)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// ServePrometheusMetrics serves /metrics until ctx is done. It blocks, so
// callers run it in a goroutine.
func ServePrometheusMetrics(ctx context.Context, opt ...PromOptionFn) {
	cfg := serverOptions{port: "2223"}
	for _, o := range opt {
		o(&cfg)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if cfg.log != nil {
		cfg.log.Info(ctx, "serving metrics", "addr", srv.Addr+"/metrics")
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && cfg.log != nil {
		cfg.log.Error(ctx, "metrics server stopped", "error", err)
	}
}
