package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/httpclient"
	"github.com/fd1az/savings-bench/internal/logger"
)

const (
	// BaseAPIURL is the public REST endpoint.
	BaseAPIURL = "https://api.binance.com"

	depthEndpoint        = "/api/v3/depth"
	exchangeInfoEndpoint = "/api/v3/exchangeInfo"

	httpTimeout = 10 * time.Second
)

// validDepthLimits are the limits /api/v3/depth accepts.
var validDepthLimits = map[int]bool{5: true, 10: true, 20: true, 50: true, 100: true, 500: true, 1000: true, 5000: true}

// RESTConfig configures the REST client.
type RESTConfig struct {
	Venue   string
	BaseURL string
	Timeout time.Duration
}

// RESTClient reads depth and market metadata over REST.
type RESTClient struct {
	venue  string
	client httpclient.Client
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// NewRESTClient creates a REST client.
func NewRESTClient(cfg RESTConfig, tracer trace.Tracer, log logger.LoggerInterface) (*RESTClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseAPIURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = httpTimeout
	}

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName(cfg.Venue),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(cfg.Timeout),
		httpclient.WithTraceOptions(tracer, httpclient.TraceRequest, httpclient.TraceResponse),
		httpclient.WithHeaders(map[string]string{"Accept": "application/json"}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &RESTClient{venue: cfg.Venue, client: client, logger: log, tracer: tracer}, nil
}

// GetDepth fetches limit levels per side for symbol.
func (c *RESTClient) GetDepth(ctx context.Context, symbol string, limit int) (*DepthResponse, error) {
	ctx, span := c.tracer.Start(ctx, "binance.http.get_depth",
		trace.WithAttributes(
			attribute.String("symbol", symbol),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if !validDepthLimits[limit] {
		limit = 20
	}

	resp, err := c.client.NewRequestWithOptions(
		httpclient.WithLabels(
			httpclient.NewLabel("endpoint", "depth"),
			httpclient.NewLabel("symbol", symbol),
		),
		httpclient.WithResponseErrorHandler(c.errorHandler()),
	).
		SetQueryParam("symbol", symbol).
		SetQueryParam("limit", strconv.Itoa(limit)).
		Get(ctx, depthEndpoint)
	if err != nil {
		span.RecordError(err)
		return nil, c.wrap(err)
	}

	var out DepthResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, apperror.VenueInternal(c.venue, "undecodable depth response", err)
	}

	span.SetAttributes(
		attribute.Int("bids", len(out.Bids)),
		attribute.Int("asks", len(out.Asks)),
		attribute.Int64("last_update_id", out.LastUpdateID),
	)
	c.logger.Debug(ctx, "fetched depth via HTTP", "symbol", symbol, "bids", len(out.Bids), "asks", len(out.Asks))
	return &out, nil
}

// ExchangeInfo fetches market metadata for every listed symbol.
func (c *RESTClient) ExchangeInfo(ctx context.Context) (*ExchangeInfo, error) {
	ctx, span := c.tracer.Start(ctx, "binance.http.exchange_info")
	defer span.End()

	resp, err := c.client.NewRequestWithOptions(
		httpclient.WithLabels(httpclient.NewLabel("endpoint", "exchange_info")),
		httpclient.WithResponseErrorHandler(c.errorHandler()),
	).Get(ctx, exchangeInfoEndpoint)
	if err != nil {
		span.RecordError(err)
		return nil, c.wrap(err)
	}

	var out ExchangeInfo
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, apperror.VenueInternal(c.venue, "undecodable exchangeInfo response", err)
	}
	span.SetAttributes(attribute.Int("symbols", len(out.Symbols)))
	return &out, nil
}

func (c *RESTClient) wrap(err error) error {
	if apperror.IsAppError(err) {
		return err
	}
	return httpclient.TransportError(c.venue, err)
}

// errorHandler maps Binance errors: an unknown market is a refusal, 418 (IP
// ban after ignoring 429s) is throttling, the rest follow the status.
func (c *RESTClient) errorHandler() httpclient.ResponseErrorHandler {
	base := httpclient.StatusErrorHandler(c.venue)
	return func(statusCode int, body []byte) error {
		if statusCode < 400 {
			return nil
		}
		var apiErr APIError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code == codeInvalidSymbol {
			return apperror.Unavailable(c.venue, apiErr.Message, &apiErr)
		}
		if statusCode == http.StatusTeapot {
			statusCode = http.StatusTooManyRequests
		}
		return base(statusCode, body)
	}
}
