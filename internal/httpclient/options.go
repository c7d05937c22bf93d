// Package httpclient is the instrumented HTTP client every REST venue uses.
// Each request gets a span, a request counter and a latency histogram, all
// tagged with the venue name.
package httpclient

import (
	"time"

	"go.opentelemetry.io/otel/trace"
)

// TraceOption selects which bodies are attached to request spans.
type TraceOption string

const (
	TraceRequest  TraceOption = "request"
	TraceResponse TraceOption = "response"
)

type clientOptions struct {
	venue       string
	baseURL     string
	timeout     time.Duration
	headers     map[string]string
	tracer      trace.Tracer
	logRequest  bool
	logResponse bool
}

// ClientOption configures NewInstrumentedClient.
type ClientOption func(*clientOptions)

// WithProviderName tags metrics and spans with the venue name.
func WithProviderName(name string) ClientOption {
	return func(o *clientOptions) {
		o.venue = name
	}
}

// WithBaseURL prefixes relative request paths.
func WithBaseURL(url string) ClientOption {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// WithRequestTimeout bounds a whole round trip. Zero keeps the default.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// WithHeaders sets headers sent with every request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *clientOptions) {
		o.headers = headers
	}
}

// WithTraceOptions uses tracer for request spans and attaches the selected
// bodies as span events.
func WithTraceOptions(tracer trace.Tracer, opts ...TraceOption) ClientOption {
	return func(o *clientOptions) {
		o.tracer = tracer
		for _, opt := range opts {
			switch opt {
			case TraceRequest:
				o.logRequest = true
			case TraceResponse:
				o.logResponse = true
			}
		}
	}
}

type requestOptions struct {
	errorHandler ResponseErrorHandler
	labels       []*Label
}

// RequestOption configures a single request.
type RequestOption func(*requestOptions)

// ResponseErrorHandler turns a status and body into an error, or nil when the
// response is usable.
type ResponseErrorHandler func(statusCode int, body []byte) error

// WithResponseErrorHandler runs handler on every response.
func WithResponseErrorHandler(handler ResponseErrorHandler) RequestOption {
	return func(o *requestOptions) {
		o.errorHandler = handler
	}
}

// Label is an extra metric attribute, such as the endpoint name.
type Label struct {
	Key   string
	Value string
}

func NewLabel(key, value string) *Label {
	return &Label{Key: key, Value: value}
}

// WithLabels adds labels to the request metrics.
func WithLabels(labels ...*Label) RequestOption {
	return func(o *requestOptions) {
		o.labels = append(o.labels, labels...)
	}
}
