package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxTraceBody caps the body text copied into span events.
const maxTraceBody = 4096

// Request builds one venue call.
type Request interface {
	Get(ctx context.Context, path string) (*Response, error)
	Post(ctx context.Context, path string) (*Response, error)

	SetBody(body any) Request
	SetHeader(key, value string) Request
	SetQueryParam(key, value string) Request
	SetQueryParams(params map[string]string) Request
	SetResult(result any) Request
}

// Response is a fully read response.
type Response struct {
	*http.Response
	body []byte
}

func (r *Response) Body() []byte    { return r.body }
func (r *Response) String() string  { return string(r.body) }
func (r *Response) IsError() bool   { return r.StatusCode >= 400 }
func (r *Response) IsSuccess() bool { return r.StatusCode < 400 }

type requestBuilder struct {
	client       *InstrumentedClient
	headers      map[string]string
	query        map[string]string
	body         any
	result       any
	errorHandler ResponseErrorHandler
	labels       []*Label
}

func (r *requestBuilder) Get(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodGet, path)
}

func (r *requestBuilder) Post(ctx context.Context, path string) (*Response, error) {
	return r.execute(ctx, http.MethodPost, path)
}

// SetBody sets the payload. Anything but []byte or string is sent as JSON.
func (r *requestBuilder) SetBody(body any) Request {
	r.body = body
	return r
}

func (r *requestBuilder) SetHeader(key, value string) Request {
	r.headers[key] = value
	return r
}

func (r *requestBuilder) SetQueryParam(key, value string) Request {
	r.query[key] = value
	return r
}

func (r *requestBuilder) SetQueryParams(params map[string]string) Request {
	for k, v := range params {
		r.query[k] = v
	}
	return r
}

// SetResult decodes a successful JSON body into result.
func (r *requestBuilder) SetResult(result any) Request {
	r.result = result
	return r
}

// resolve joins the base URL and path and appends the query. url.Values
// sorts keys, so one quote always maps to one URL.
func (r *requestBuilder) resolve(path string) string {
	full := path
	if base := r.client.baseURL; base != "" && !strings.HasPrefix(path, "http") {
		full = strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	if len(r.query) == 0 {
		return full
	}
	q := url.Values{}
	for k, v := range r.query {
		q.Set(k, v)
	}
	sep := "?"
	if strings.Contains(full, "?") {
		sep = "&"
	}
	return full + sep + q.Encode()
}

func (r *requestBuilder) encodeBody() (io.Reader, string, error) {
	switch b := r.body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), string(b), nil
	case string:
		return strings.NewReader(b), b, nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal body: %w", err)
		}
		if _, ok := r.headers["Content-Type"]; !ok {
			r.headers["Content-Type"] = "application/json"
		}
		return bytes.NewReader(raw), string(raw), nil
	}
}

func (r *requestBuilder) execute(ctx context.Context, method, path string) (*Response, error) {
	c := r.client
	target := r.resolve(path)

	ctx, span := c.tracer.Start(ctx, "venue.http",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("venue", c.venue),
			attribute.String("http.method", method),
			attribute.String("http.url", target),
		),
	)
	defer span.End()

	bodyReader, bodyText, err := r.encodeBody()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if c.logRequest && bodyText != "" {
		span.AddEvent("request.body", trace.WithAttributes(attribute.String("http.request_body", clip(bodyText))))
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		r.fail(ctx, span, err, time.Since(start))
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	elapsed := time.Since(start)
	if err != nil {
		r.fail(ctx, span, err, elapsed)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if c.logResponse {
		span.AddEvent("response.body", trace.WithAttributes(attribute.String("http.response_body", clip(string(body)))))
	}
	out := &Response{Response: resp, body: body}

	if r.errorHandler != nil {
		if herr := r.errorHandler(resp.StatusCode, body); herr != nil {
			span.SetStatus(codes.Error, herr.Error())
			c.record(ctx, r.labels, "rejected", elapsed)
			return out, herr
		}
	}

	if r.result != nil && out.IsSuccess() && len(body) > 0 {
		if err := json.Unmarshal(body, r.result); err != nil {
			span.RecordError(err)
			c.record(ctx, r.labels, "undecodable", elapsed)
			return out, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	outcome := "ok"
	if out.IsError() {
		outcome = "http_error"
	}
	c.record(ctx, r.labels, outcome, elapsed)
	return out, nil
}

func (r *requestBuilder) fail(ctx context.Context, span trace.Span, err error, elapsed time.Duration) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	outcome := "network"
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		outcome = "timeout"
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	r.client.record(ctx, r.labels, outcome, elapsed)
}

func clip(s string) string {
	if len(s) > maxTraceBody {
		return s[:maxTraceBody] + "..."
	}
	return s
}
