// Package oneinch quotes a 1inch-style aggregator. The /quote endpoint only
// fixes the source amount, so sell requests are rejected up front.
package oneinch

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/savings-bench/business/pricing/app"
	"github.com/fd1az/savings-bench/business/pricing/domain"
	"github.com/fd1az/savings-bench/business/pricing/infra/guard"
	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/asset"
	"github.com/fd1az/savings-bench/internal/httpclient"
	"github.com/fd1az/savings-bench/internal/logger"
)

const (
	tracerName = "github.com/fd1az/savings-bench/business/pricing/infra/oneinch"

	DefaultBaseURL = "https://api.1inch.io/v4.0/1"
	quoteEndpoint  = "/quote"

	defaultTimeout = 10 * time.Second
)

var _ app.QuoteAdapter = (*Adapter)(nil)

// Config configures the adapter.
type Config struct {
	Name    string
	BaseURL string
	APIKey  string
	FeePct  decimal.Decimal
	Timeout time.Duration
	Guard   guard.Config
}

// Adapter quotes the 1inch /quote API.
type Adapter struct {
	cfg      Config
	client   httpclient.Client
	registry *asset.Registry
	guard    *guard.Guard
	logger   logger.LoggerInterface
	tracer   trace.Tracer
}

// New creates the adapter.
func New(cfg Config, reg *asset.Registry, log logger.LoggerInterface) (*Adapter, error) {
	if cfg.Name == "" {
		cfg.Name = "1inch"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Guard.Venue == "" {
		cfg.Guard.Venue = cfg.Name
	}

	tracer := otel.Tracer(tracerName)
	headers := map[string]string{"Accept": "application/json"}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName(cfg.Name),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(cfg.Timeout),
		httpclient.WithTraceOptions(tracer, httpclient.TraceRequest, httpclient.TraceResponse),
		httpclient.WithHeaders(headers),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Adapter{
		cfg:      cfg,
		client:   client,
		registry: reg,
		guard:    guard.New(cfg.Guard, log),
		logger:   log,
		tracer:   tracer,
	}, nil
}

func (a *Adapter) Name() string               { return a.cfg.Name }
func (a *Adapter) Kind() app.Kind             { return app.KindAggregator }
func (a *Adapter) FeePct() decimal.Decimal    { return a.cfg.FeePct }
func (a *Adapter) Directions() app.Directions { return app.DirectionFrom }
func (a *Adapter) Guard() *guard.Guard        { return a.guard }

// GetQuote returns the rival dialect with one RivalHop per (path, hop).
func (a *Adapter) GetQuote(ctx context.Context, req app.QuoteRequest) (domain.RawQuote, error) {
	if err := req.Validate(a.cfg.Name, a.Directions()); err != nil {
		return nil, err
	}
	from, err := a.registry.Lookup(req.From)
	if err != nil {
		return nil, err
	}
	to, err := a.registry.Lookup(req.To)
	if err != nil {
		return nil, err
	}
	amount, err := a.registry.ToInteger(*req.FromAmount, from.Symbol())
	if err != nil {
		return nil, err
	}

	ctx, span := a.tracer.Start(ctx, "oneinch.get_quote",
		trace.WithAttributes(
			attribute.String("from", from.Symbol()),
			attribute.String("to", to.Symbol()),
			attribute.String("amount", amount.String()),
		),
	)
	defer span.End()

	resp, err := guard.Call(ctx, a.guard, func(ctx context.Context) (*quoteResponse, error) {
		return a.fetchQuote(ctx, from, to, amount)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	q, err := a.toRival(resp, from, to)
	if err != nil {
		span.RecordError(err)
		return nil, a.guard.Settle(ctx, err)
	}
	span.SetAttributes(attribute.Int("hops", len(q.Hops)))
	return q, nil
}

func (a *Adapter) fetchQuote(ctx context.Context, from, to *asset.Asset, amount *big.Int) (*quoteResponse, error) {
	resp, err := a.client.NewRequestWithOptions(
		httpclient.WithLabels(httpclient.NewLabel("endpoint", "quote")),
		httpclient.WithResponseErrorHandler(a.errorHandler()),
	).
		SetQueryParam("fromTokenAddress", wireAddress(from)).
		SetQueryParam("toTokenAddress", wireAddress(to)).
		SetQueryParam("amount", amount.String()).
		Get(ctx, quoteEndpoint)
	if err != nil {
		if apperror.IsAppError(err) {
			return nil, err
		}
		return nil, httpclient.TransportError(a.cfg.Name, err)
	}

	var out quoteResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, apperror.VenueInternal(a.cfg.Name, "undecodable quote response", err)
	}
	return &out, nil
}

// errorHandler surfaces the API's description for refused quotes.
func (a *Adapter) errorHandler() httpclient.ResponseErrorHandler {
	base := httpclient.StatusErrorHandler(a.cfg.Name)
	return func(statusCode int, body []byte) error {
		if statusCode >= 400 && statusCode < 500 && statusCode != 429 {
			var e errorResponse
			if json.Unmarshal(body, &e) == nil && e.Description != "" {
				return apperror.Unavailable(a.cfg.Name, e.Description, nil)
			}
		}
		return base(statusCode, body)
	}
}

func (a *Adapter) toRival(r *quoteResponse, from, to *asset.Asset) (domain.RivalAgg, error) {
	src, err := a.amount(r.FromTokenAmount, from)
	if err != nil {
		return domain.RivalAgg{}, err
	}
	dst, err := a.amount(r.ToTokenAmount, to)
	if err != nil {
		return domain.RivalAgg{}, err
	}
	if !dst.IsPositive() {
		return domain.RivalAgg{}, apperror.Unavailable(a.cfg.Name, "zero output", nil)
	}

	q := domain.RivalAgg{
		Venue:        a.cfg.Name,
		SourceToken:  from.Symbol(),
		SourceAmount: src,
		DestToken:    to.Symbol(),
		DestAmount:   dst,
	}
	for _, path := range r.Protocols {
		for _, hop := range path {
			if len(hop) == 0 {
				continue
			}
			h := domain.RivalHop{
				From: a.symbolOf(hop[0].FromTokenAddress),
				To:   a.symbolOf(hop[0].ToTokenAddress),
			}
			for _, p := range hop {
				h.Parts = append(h.Parts, domain.Weight{Exchange: p.Name, Value: decimal.NewFromFloat(p.Part)})
			}
			q.Hops = append(q.Hops, h)
		}
	}
	return q, nil
}

func (a *Adapter) amount(s string, tok *asset.Asset) (decimal.Decimal, error) {
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return decimal.Zero, apperror.VenueInternal(a.cfg.Name, fmt.Sprintf("bad amount %q", s), nil)
	}
	v, err := a.registry.ToReal(i, tok.Symbol())
	if err != nil {
		return decimal.Zero, apperror.VenueInternal(a.cfg.Name, fmt.Sprintf("bad amount %q", s), err)
	}
	return v, nil
}

// symbolOf names a hop token, falling back to its address.
func (a *Adapter) symbolOf(addr string) string {
	if tok, err := a.registry.Resolve(addr, ""); err == nil {
		return tok.Symbol()
	}
	return addr
}

// wireAddress is the token address with ETH as the 0xeee... placeholder.
func wireAddress(a *asset.Asset) string {
	if a.IsNative() {
		return strings.ToLower(asset.AddrNativePlaceholder.Hex())
	}
	return a.AddressHex()
}
