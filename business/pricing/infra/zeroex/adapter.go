// Package zeroex quotes a 0x-style swap API through its indicative price
// endpoint. Either the sell or the buy amount may be fixed.
package zeroex

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
	tracerName = "github.com/fd1az/savings-bench/business/pricing/infra/zeroex"

	DefaultBaseURL = "https://api.0x.org"
	priceEndpoint  = "/swap/v1/price"

	defaultTimeout = 10 * time.Second
)

var hundred = decimal.NewFromInt(100)

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

// Adapter quotes the 0x price API.
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
		cfg.Name = "0x"
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
		headers["0x-api-key"] = cfg.APIKey
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
func (a *Adapter) Directions() app.Directions { return app.BothDirections }
func (a *Adapter) Guard() *guard.Guard        { return a.guard }

// GetQuote returns the rival dialect with a single hop split by source
// proportion.
func (a *Adapter) GetQuote(ctx context.Context, req app.QuoteRequest) (domain.RawQuote, error) {
	if err := req.Validate(a.cfg.Name, a.Directions()); err != nil {
		return nil, err
	}
	sell, err := a.registry.Lookup(req.From)
	if err != nil {
		return nil, err
	}
	buy, err := a.registry.Lookup(req.To)
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"sellToken": wireToken(sell),
		"buyToken":  wireToken(buy),
	}
	if req.FromAmount != nil {
		i, err := a.registry.ToInteger(*req.FromAmount, sell.Symbol())
		if err != nil {
			return nil, err
		}
		params["sellAmount"] = i.String()
	} else {
		i, err := a.registry.ToInteger(*req.ToAmount, buy.Symbol())
		if err != nil {
			return nil, err
		}
		params["buyAmount"] = i.String()
	}

	ctx, span := a.tracer.Start(ctx, "zeroex.get_quote",
		trace.WithAttributes(
			attribute.String("sell_token", sell.Symbol()),
			attribute.String("buy_token", buy.Symbol()),
			attribute.String("side", string(req.Side())),
		),
	)
	defer span.End()

	resp, err := guard.Call(ctx, a.guard, func(ctx context.Context) (*priceResponse, error) {
		return a.fetchPrice(ctx, params)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	q, err := a.toRival(resp, sell, buy)
	if err != nil {
		span.RecordError(err)
		return nil, a.guard.Settle(ctx, err)
	}
	return q, nil
}

func (a *Adapter) fetchPrice(ctx context.Context, params map[string]string) (*priceResponse, error) {
	resp, err := a.client.NewRequestWithOptions(
		httpclient.WithLabels(httpclient.NewLabel("endpoint", "price")),
		httpclient.WithResponseErrorHandler(a.errorHandler()),
	).
		SetQueryParams(params).
		Get(ctx, priceEndpoint)
	if err != nil {
		if apperror.IsAppError(err) {
			return nil, err
		}
		return nil, httpclient.TransportError(a.cfg.Name, err)
	}

	var out priceResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, apperror.VenueInternal(a.cfg.Name, "undecodable price response", err)
	}
	return &out, nil
}

// errorHandler reports validation reasons such as INSUFFICIENT_ASSET_LIQUIDITY.
func (a *Adapter) errorHandler() httpclient.ResponseErrorHandler {
	base := httpclient.StatusErrorHandler(a.cfg.Name)
	return func(statusCode int, body []byte) error {
		if statusCode >= 400 && statusCode < 500 && statusCode != 429 {
			var e errorResponse
			if json.Unmarshal(body, &e) == nil && e.Reason != "" {
				reasons := []string{e.Reason}
				for _, v := range e.ValidationErrors {
					reasons = append(reasons, v.Field+": "+v.Reason)
				}
				return apperror.Unavailable(a.cfg.Name, strings.Join(reasons, "; "), nil)
			}
		}
		return base(statusCode, body)
	}
}

func (a *Adapter) toRival(r *priceResponse, sell, buy *asset.Asset) (domain.RivalAgg, error) {
	src, err := a.amount(r.SellAmount, sell)
	if err != nil {
		return domain.RivalAgg{}, err
	}
	dst, err := a.amount(r.BuyAmount, buy)
	if err != nil {
		return domain.RivalAgg{}, err
	}
	if !src.IsPositive() || !dst.IsPositive() {
		return domain.RivalAgg{}, apperror.Unavailable(a.cfg.Name, "zero amount quoted", nil)
	}

	hop := domain.RivalHop{From: sell.Symbol(), To: buy.Symbol()}
	for _, s := range r.Sources {
		if s.Proportion.IsPositive() {
			hop.Parts = append(hop.Parts, domain.Weight{Exchange: s.Name, Value: s.Proportion.Mul(hundred)})
		}
	}

	q := domain.RivalAgg{
		Venue:        a.cfg.Name,
		SourceToken:  sell.Symbol(),
		SourceAmount: src,
		DestToken:    buy.Symbol(),
		DestAmount:   dst,
	}
	if len(hop.Parts) > 0 {
		q.Hops = []domain.RivalHop{hop}
	}
	if r.Price.IsPositive() {
		q.AdvertisedPrice = asset.Ratio(decimal.NewFromInt(1), r.Price)
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

// wireToken is the symbol for ETH and the address otherwise.
func wireToken(a *asset.Asset) string {
	if a.IsNative() {
		return "ETH"
	}
	return a.AddressHex()
}
