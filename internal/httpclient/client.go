package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultMaxConnsPerHost = 5

	meterName = "venue_http_client"
)

// Client issues venue requests.
type Client interface {
	NewRequest() Request
	NewRequestWithOptions(opts ...RequestOption) Request
}

// InstrumentedClient is an http.Client with an otel transport and per-venue
// request metrics.
type InstrumentedClient struct {
	client      *http.Client
	venue       string
	baseURL     string
	headers     map[string]string
	tracer      trace.Tracer
	logRequest  bool
	logResponse bool

	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewInstrumentedClient builds a client. Venues share nothing, so each
// gets its own small connection pool.
func NewInstrumentedClient(opts ...ClientOption) (*InstrumentedClient, error) {
	o := &clientOptions{venue: "default", timeout: defaultTimeout}
	for _, opt := range opts {
		opt(o)
	}
	if o.timeout <= 0 {
		o.timeout = defaultTimeout
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(meterName)
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{KeepAlive: 10 * time.Second}).DialContext,
		MaxConnsPerHost:       defaultMaxConnsPerHost,
		IdleConnTimeout:       2 * time.Minute,
		ExpectContinueTimeout: 100 * time.Millisecond,
	}

	c := &InstrumentedClient{
		client: &http.Client{
			Timeout: o.timeout,
			Transport: otelhttp.NewTransport(transport,
				otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
					return otelhttptrace.NewClientTrace(ctx)
				}),
			),
		},
		venue:       o.venue,
		baseURL:     o.baseURL,
		headers:     o.headers,
		tracer:      o.tracer,
		logRequest:  o.logRequest,
		logResponse: o.logResponse,
	}

	meter := otel.Meter(meterName, metric.WithInstrumentationAttributes(attribute.String("venue", o.venue)))
	var err error
	if c.requests, err = meter.Int64Counter("venue_http_requests_total",
		metric.WithDescription("Venue HTTP requests by outcome")); err != nil {
		return nil, err
	}
	if c.latency, err = meter.Float64Histogram("venue_http_request_duration_ms",
		metric.WithDescription("Venue HTTP round trip time"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *InstrumentedClient) NewRequest() Request {
	return c.NewRequestWithOptions()
}

func (c *InstrumentedClient) NewRequestWithOptions(opts ...RequestOption) Request {
	o := &requestOptions{}
	for _, opt := range opts {
		opt(o)
	}

	headers := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		headers[k] = v
	}
	return &requestBuilder{
		client:       c,
		headers:      headers,
		query:        make(map[string]string),
		errorHandler: o.errorHandler,
		labels:       o.labels,
	}
}

func (c *InstrumentedClient) record(ctx context.Context, labels []*Label, outcome string, elapsed time.Duration) {
	attrs := make([]attribute.KeyValue, 0, len(labels)+2)
	attrs = append(attrs, attribute.String("venue", c.venue), attribute.String("outcome", outcome))
	for _, l := range labels {
		attrs = append(attrs, attribute.String(l.Key, l.Value))
	}
	set := metric.WithAttributes(attrs...)
	c.requests.Add(ctx, 1, set)
	c.latency.Record(ctx, float64(elapsed.Microseconds())/1000, set)
}
