package metrics

import (
	"time"

	"github.com/fd1az/savings-bench/internal/logger"
)

// Provider names a metric reader.
type Provider string

const (
	PrometheusProvider Provider = "prometheus"
	OtelCollector      Provider = "otlp-grpc"
)

// Transport security for the collector connection.
const (
	InsecureOtel = false
	SecureOtel   = true
)

const defaultExportInterval = 15 * time.Second

// ProviderCfg describes one reader. Only the collector uses the endpoint,
// headers and transport flag.
type ProviderCfg struct {
	Provider Provider
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

// NewOtelCollectorConfig points a periodic OTLP gRPC reader at url. secure
// is SecureOtel or InsecureOtel.
func NewOtelCollectorConfig(url string, headers map[string]string, secure bool) ProviderCfg {
	return ProviderCfg{Provider: OtelCollector, Endpoint: url, Headers: headers, Insecure: !secure}
}

type options struct {
	serviceName    string
	readers        []ProviderCfg
	exportInterval time.Duration
}

// OptionFn configures NewMetricProvider.
type OptionFn func(*options)

// WithProviderConfig adds a reader. Several readers may be combined.
func WithProviderConfig(p ProviderCfg) OptionFn {
	return func(o *options) { o.readers = append(o.readers, p) }
}

func WithServiceName(name string) OptionFn {
	return func(o *options) { o.serviceName = name }
}

// WithExportInterval sets how often the collector reader pushes.
func WithExportInterval(d time.Duration) OptionFn {
	return func(o *options) {
		if d > 0 {
			o.exportInterval = d
		}
	}
}

type serverOptions struct {
	port string
	log  logger.LoggerInterface
}

// PromOptionFn configures ServePrometheusMetrics.
type PromOptionFn func(*serverOptions)

func WithPort(port string) PromOptionFn {
	return func(o *serverOptions) { o.port = port }
}

// WithLogger reports the listen address and server failures.
func WithLogger(log logger.LoggerInterface) PromOptionFn {
	return func(o *serverOptions) { o.log = log }
}
