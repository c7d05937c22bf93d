// Package aggregator is the adapter for the primary DEX aggregator: the
// swap API whose prices every other venue is compared against. It emits the
// single-trade, multi-hop and DEX-whitelist dialects.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
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
	tracerName = "github.com/fd1az/savings-bench/business/pricing/infra/aggregator"

	swapEndpoint      = "/swap"
	exchangesEndpoint = "/exchanges"

	defaultTimeout = 15 * time.Second
)

var _ app.WhitelistAdapter = (*Adapter)(nil)

// Config configures the primary aggregator adapter.
type Config struct {
	Name    string
	BaseURL string
	APIKey  string
	// FeePct is the aggregator's own fee in percent, reported for display.
	FeePct  decimal.Decimal
	Timeout time.Duration
	Guard   guard.Config
}

// Adapter quotes the primary aggregator.
type Adapter struct {
	cfg      Config
	client   httpclient.Client
	registry *asset.Registry
	names    *domain.ExchangeNameMap
	guard    *guard.Guard
	logger   logger.LoggerInterface
	tracer   trace.Tracer

	exMu      sync.Mutex
	exchanges []string // cached GET /exchanges names
}

// New creates the adapter and its instrumented HTTP client.
func New(cfg Config, reg *asset.Registry, names *domain.ExchangeNameMap, log logger.LoggerInterface) (*Adapter, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.Configuration("primary aggregator base_url is empty")
	}
	if cfg.Name == "" {
		cfg.Name = "Primary"
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
		headers["X-API-KEY"] = cfg.APIKey
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
		names:    names,
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

// GetQuote posts a swap request. With an exchange constraint the route is
// whitelisted to that DEX and the DexWhitelist dialect is returned.
func (a *Adapter) GetQuote(ctx context.Context, req app.QuoteRequest) (domain.RawQuote, error) {
	if err := req.Validate(a.cfg.Name, a.Directions()); err != nil {
		return nil, err
	}

	ctx, span := a.tracer.Start(ctx, "aggregator.get_quote",
		trace.WithAttributes(
			attribute.String("from", req.From),
			attribute.String("to", req.To),
			attribute.String("amount", req.Amount().String()),
			attribute.String("exchange", req.Constraint.Exchange),
		),
	)
	defer span.End()

	body, err := a.buildRequest(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	summary, err := guard.Call(ctx, a.guard, func(ctx context.Context) (*wireSummary, error) {
		return a.postSwap(ctx, body)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s, err := a.toSummary(summary, req)
	if err != nil {
		span.RecordError(err)
		return nil, a.guard.Settle(ctx, err)
	}
	span.SetAttributes(attribute.Int("trades", len(s.Trades)))

	switch {
	case !req.Constraint.IsZero():
		return domain.DexWhitelist{
			Venue:    a.cfg.Name,
			Exchange: req.Constraint.Exchange,
			Side:     req.Side(),
			Summary:  s,
		}, nil
	case len(s.Trades) == 1:
		return domain.SingleTradeAgg{Venue: a.cfg.Name, Summary: s}, nil
	default:
		return domain.MultiHopAgg{Venue: a.cfg.Name, Summary: s}, nil
	}
}

func (a *Adapter) buildRequest(ctx context.Context, req app.QuoteRequest) (swapRequest, error) {
	from, err := a.registry.Lookup(req.From)
	if err != nil {
		return swapRequest{}, err
	}
	to, err := a.registry.Lookup(req.To)
	if err != nil {
		return swapRequest{}, err
	}

	params := swapParams{SourceAsset: from.AddressHex(), DestinationAsset: to.AddressHex()}
	if req.FromAmount != nil {
		raw, err := a.registry.ToInteger(*req.FromAmount, from.Symbol())
		if err != nil {
			return swapRequest{}, err
		}
		params.SourceAmount = raw.String()
	} else {
		raw, err := a.registry.ToInteger(*req.ToAmount, to.Symbol())
		if err != nil {
			return swapRequest{}, err
		}
		params.DestinationAmount = raw.String()
	}

	body := swapRequest{Swap: params}
	if !req.Constraint.IsZero() {
		spelling, err := a.exchangeSpelling(ctx, req.Constraint.Exchange)
		if err != nil {
			return swapRequest{}, err
		}
		body.Config = &swapConfig{Exchanges: exchangeFilter{List: []string{spelling}, Type: "white"}}
	}
	return body, nil
}

func (a *Adapter) postSwap(ctx context.Context, body swapRequest) (*wireSummary, error) {
	resp, err := a.client.NewRequestWithOptions(
		httpclient.WithLabels(httpclient.NewLabel("endpoint", "swap")),
		httpclient.WithResponseErrorHandler(httpclient.StatusErrorHandler(a.cfg.Name)),
	).
		SetBody(body).
		Post(ctx, swapEndpoint)
	if err != nil {
		if apperror.IsAppError(err) {
			return nil, err
		}
		return nil, httpclient.TransportError(a.cfg.Name, err)
	}

	var out swapResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, apperror.VenueInternal(a.cfg.Name, "undecodable swap response", err)
	}
	if !out.Success {
		return nil, apperror.Unavailable(a.cfg.Name, "swap refused: "+out.Error, nil)
	}
	if out.Summary == nil {
		return nil, apperror.VenueInternal(a.cfg.Name, "swap response without summary", nil)
	}
	return out.Summary, nil
}

// Exchanges returns the DEX names the aggregator accepts, fetched once.
func (a *Adapter) Exchanges(ctx context.Context) ([]string, error) {
	a.exMu.Lock()
	defer a.exMu.Unlock()
	if a.exchanges != nil {
		return a.exchanges, nil
	}

	list, err := guard.Call(ctx, a.guard, func(ctx context.Context) ([]wireExchange, error) {
		resp, err := a.client.NewRequestWithOptions(
			httpclient.WithLabels(httpclient.NewLabel("endpoint", "exchanges")),
			httpclient.WithResponseErrorHandler(httpclient.StatusErrorHandler(a.cfg.Name)),
		).Get(ctx, exchangesEndpoint)
		if err != nil {
			if apperror.IsAppError(err) {
				return nil, err
			}
			return nil, httpclient.TransportError(a.cfg.Name, err)
		}
		var out []wireExchange
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return nil, apperror.VenueInternal(a.cfg.Name, "undecodable exchanges response", err)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(list))
	for _, ex := range list {
		if ex.Name != "" {
			names = append(names, ex.Name)
		}
	}
	a.exchanges = names
	a.logger.Debug(ctx, "loaded aggregator exchanges", "venue", a.cfg.Name, "count", len(names))
	return names, nil
}

// exchangeSpelling finds the aggregator's own name for dex.
func (a *Adapter) exchangeSpelling(ctx context.Context, dex string) (string, error) {
	list, err := a.Exchanges(ctx)
	if err != nil {
		return "", err
	}
	want := a.names.Canonical(dex)
	for _, name := range list {
		if a.names.Canonical(name) == want {
			return name, nil
		}
	}
	return "", apperror.Unavailable(a.cfg.Name, fmt.Sprintf("exchange %s cannot be whitelisted", dex), nil)
}

// toSummary converts wire amounts to real ones. The summary must be for the
// requested pair; trade tokens the registry does not know keep integer
// amounts, which only serve as route weights within their trade.
func (a *Adapter) toSummary(w *wireSummary, req app.QuoteRequest) (domain.Summary, error) {
	src, err := a.registry.Resolve(w.SourceAsset.Address, w.SourceAsset.Symbol)
	if err != nil {
		return domain.Summary{}, apperror.Malformed(a.cfg.Name, "summary source: "+err.Error())
	}
	dst, err := a.registry.Resolve(w.DestinationAsset.Address, w.DestinationAsset.Symbol)
	if err != nil {
		return domain.Summary{}, apperror.Malformed(a.cfg.Name, "summary destination: "+err.Error())
	}
	from, _ := a.registry.Canonical(req.From)
	to, _ := a.registry.Canonical(req.To)
	if src.Symbol() != from || dst.Symbol() != to {
		return domain.Summary{}, apperror.Malformed(a.cfg.Name,
			fmt.Sprintf("quoted %s->%s for %s->%s", src.Symbol(), dst.Symbol(), from, to))
	}

	s := domain.Summary{SourceToken: src.Symbol(), DestToken: dst.Symbol()}
	if s.SourceAmount, err = a.real(w.SourceAmount, src); err != nil {
		return domain.Summary{}, err
	}
	if s.DestAmount, err = a.real(w.DestinationAmount, dst); err != nil {
		return domain.Summary{}, err
	}

	for _, f := range w.Fees {
		charge, err := a.fee(f)
		if err != nil {
			return domain.Summary{}, err
		}
		switch f.Type {
		case feeAggregator:
			s.Fees.Aggregator = charge
		case feeExchange:
			s.Fees.Exchange = charge
		case feePartner:
			s.Fees.Partner = charge
		}
	}

	for _, t := range w.Trades {
		tr, err := a.trade(t)
		if err != nil {
			return domain.Summary{}, err
		}
		s.Trades = append(s.Trades, tr)
	}
	if len(s.Trades) == 0 {
		return domain.Summary{}, apperror.Malformed(a.cfg.Name, "summary without trades")
	}
	return s, nil
}

func (a *Adapter) trade(t wireTrade) (domain.Trade, error) {
	srcSym, srcAsset := a.tokenOf(t.SourceAsset)
	dstSym, dstAsset := a.tokenOf(t.DestinationAsset)

	tr := domain.Trade{SourceToken: srcSym, DestToken: dstSym}
	var err error
	if tr.SourceAmount, err = a.weight(t.SourceAmount, srcAsset); err != nil {
		return domain.Trade{}, err
	}
	if tr.DestAmount, err = a.weight(t.DestinationAmount, dstAsset); err != nil {
		return domain.Trade{}, err
	}
	for _, o := range t.Orders {
		ord := domain.Order{Exchange: o.Exchange}
		if ord.SourceAmount, err = a.weight(o.SourceAmount, srcAsset); err != nil {
			return domain.Trade{}, err
		}
		if ord.DestAmount, err = a.weight(o.DestinationAmount, dstAsset); err != nil {
			return domain.Trade{}, err
		}
		tr.Orders = append(tr.Orders, ord)
	}
	return tr, nil
}

func (a *Adapter) fee(f wireFee) (*domain.FeeCharge, error) {
	sym, tok := a.tokenOf(f.Asset)
	charge := &domain.FeeCharge{Token: sym, Pct: f.Percentage}
	if f.Amount == "" {
		return charge, nil
	}
	if tok == nil {
		// amount in an unknown token is unusable; keep the percentage
		return charge, nil
	}
	amt, err := a.real(f.Amount, tok)
	if err != nil {
		return nil, err
	}
	charge.Amount = amt
	return charge, nil
}

// tokenOf returns the registry symbol, or the wire spelling when unknown.
func (a *Adapter) tokenOf(w wireAsset) (string, *asset.Asset) {
	if tok, err := a.registry.Resolve(w.Address, w.Symbol); err == nil {
		return tok.Symbol(), tok
	}
	if w.Symbol != "" {
		return asset.CanonicalSymbol(w.Symbol), nil
	}
	return w.Address, nil
}

func (a *Adapter) real(s string, tok *asset.Asset) (decimal.Decimal, error) {
	i, ok := new(big.Int).SetString(s, 10)
	if !ok || i.Sign() < 0 {
		return decimal.Zero, apperror.VenueInternal(a.cfg.Name, fmt.Sprintf("bad amount %q", s), nil)
	}
	return asset.NewAmount(tok, i).ToDecimal(), nil
}

// weight is a real amount for known tokens and the raw integer otherwise.
func (a *Adapter) weight(s string, tok *asset.Asset) (decimal.Decimal, error) {
	if tok != nil {
		return a.real(s, tok)
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, apperror.VenueInternal(a.cfg.Name, fmt.Sprintf("bad amount %q", s), nil)
	}
	return d, nil
}
