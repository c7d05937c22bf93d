// Package uniswap quotes Uniswap V3 pools on chain through the QuoterV2
// contract. It is a single-DEX comparison venue: the pool fee is already
// in the quoted amounts and the route is the venue itself.
package uniswap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/savings-bench/business/pricing/app"
	"github.com/fd1az/savings-bench/business/pricing/domain"
	"github.com/fd1az/savings-bench/business/pricing/infra/guard"
	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/asset"
	"github.com/fd1az/savings-bench/internal/logger"
)

const (
	tracerName = "github.com/fd1az/savings-bench/business/pricing/infra/uniswap"
	meterName  = "uniswap"
)

var _ app.QuoteAdapter = (*Adapter)(nil)

// feeTierDenominator turns a fee tier into percent: 3000 -> 0.3.
var feeTierDenominator = decimal.NewFromInt(10000)

// ContractCaller is the eth_call subset of ethclient.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config configures the adapter.
type Config struct {
	Name     string
	Quoter   common.Address
	FeeTiers []int
	Guard    guard.Config
}

type adapterMetrics struct {
	quotes  metric.Int64Counter
	latency metric.Float64Histogram
}

// Adapter quotes every configured fee tier and keeps the best pool.
type Adapter struct {
	cfg      Config
	caller   ContractCaller
	abi      abi.ABI
	registry *asset.Registry
	guard    *guard.Guard
	logger   logger.LoggerInterface
	tracer   trace.Tracer
	metrics  adapterMetrics
}

// New creates the adapter.
func New(caller ContractCaller, cfg Config, reg *asset.Registry, log logger.LoggerInterface) (*Adapter, error) {
	if caller == nil {
		return nil, apperror.Configuration("uniswap venue needs an ethereum client")
	}
	if cfg.Name == "" {
		cfg.Name = "Uniswap V3"
	}
	if cfg.Quoter == (common.Address{}) {
		cfg.Quoter = DefaultQuoterV2
	}
	if len(cfg.FeeTiers) == 0 {
		cfg.FeeTiers = []int{FeeTier005, FeeTier030, FeeTier100, FeeTier001}
	}
	if cfg.Guard.Venue == "" {
		cfg.Guard.Venue = cfg.Name
	}

	parsed, err := abi.JSON(strings.NewReader(QuoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}

	a := &Adapter{
		cfg:      cfg,
		caller:   caller,
		abi:      parsed,
		registry: reg,
		guard:    guard.New(cfg.Guard, log),
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}

	meter := otel.Meter(meterName)
	if a.metrics.quotes, err = meter.Int64Counter("uniswap_quotes_total",
		metric.WithDescription("Total quoter calls")); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	if a.metrics.latency, err = meter.Float64Histogram("uniswap_quote_latency_ms",
		metric.WithDescription("Quote latency across fee tiers"), metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return a, nil
}

func (a *Adapter) Name() string               { return a.cfg.Name }
func (a *Adapter) Kind() app.Kind             { return app.KindDEX }
func (a *Adapter) FeePct() decimal.Decimal    { return decimal.Zero }
func (a *Adapter) Directions() app.Directions { return app.BothDirections }
func (a *Adapter) Guard() *guard.Guard        { return a.guard }

// GetQuote quotes exact input for a fixed source amount and exact output for
// a fixed destination amount, keeping the fee tier that is best for the
// trader.
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
	tokenIn, err := a.poolToken(from)
	if err != nil {
		return nil, err
	}
	tokenOut, err := a.poolToken(to)
	if err != nil {
		return nil, err
	}
	if tokenIn == tokenOut {
		return nil, apperror.Unavailable(a.cfg.Name, from.Symbol()+" and "+to.Symbol()+" share a pool token", nil)
	}

	exactIn := req.Direction() == app.DirectionFrom
	fixedSymbol := from.Symbol()
	if !exactIn {
		fixedSymbol = to.Symbol()
	}
	fixed, err := a.registry.ToInteger(req.Amount(), fixedSymbol)
	if err != nil {
		return nil, err
	}

	ctx, span := a.tracer.Start(ctx, "uniswap.get_quote",
		trace.WithAttributes(
			attribute.String("token_in", tokenIn.Hex()),
			attribute.String("token_out", tokenOut.Hex()),
			attribute.String("amount", fixed.String()),
			attribute.Bool("exact_input", exactIn),
		),
	)
	defer span.End()

	start := time.Now()
	best, err := a.bestTier(ctx, tokenIn, tokenOut, fixed, exactIn, span)
	a.metrics.latency.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	srcInt, dstInt := fixed, best.Amount
	if !exactIn {
		srcInt, dstInt = best.Amount, fixed
	}
	src, err := a.registry.ToReal(srcInt, from.Symbol())
	if err != nil {
		return nil, apperror.VenueInternal(a.cfg.Name, "bad quoter amount", err)
	}
	dst, err := a.registry.ToReal(dstInt, to.Symbol())
	if err != nil {
		return nil, apperror.VenueInternal(a.cfg.Name, "bad quoter amount", err)
	}

	feePct := decimal.NewFromInt(int64(best.FeeTier)).Div(feeTierDenominator)
	span.SetAttributes(
		attribute.Int("fee_tier", best.FeeTier),
		attribute.String("quoted", best.Amount.String()),
	)
	a.logger.Debug(ctx, "uniswap quote",
		"from", from.Symbol(), "to", to.Symbol(),
		"src", src.String(), "dst", dst.String(), "fee_tier", best.FeeTier)

	return domain.RivalAgg{
		Venue:        a.cfg.Name,
		SourceToken:  from.Symbol(),
		SourceAmount: src,
		DestToken:    to.Symbol(),
		DestAmount:   dst,
		Fees: domain.Fees{
			Exchange: &domain.FeeCharge{Token: from.Symbol(), Pct: feePct},
		},
	}, nil
}

// bestTier quotes each fee tier. Tiers without a pool revert and are
// skipped; when none quotes, the first non-refusal error wins over a plain
// QuoteUnavailable.
func (a *Adapter) bestTier(ctx context.Context, tokenIn, tokenOut common.Address, amount *big.Int, exactIn bool, span trace.Span) (*QuoteResult, error) {
	var (
		best    *QuoteResult
		lastErr error
	)
	for _, tier := range a.cfg.FeeTiers {
		a.metrics.quotes.Add(ctx, 1, metric.WithAttributes(attribute.Int("fee_tier", tier)))
		res, err := guard.Call(ctx, a.guard, func(ctx context.Context) (*QuoteResult, error) {
			return a.quoteTier(ctx, tokenIn, tokenOut, amount, tier, exactIn)
		})
		if err != nil {
			span.AddEvent("fee_tier_failed", trace.WithAttributes(
				attribute.Int("fee_tier", tier),
				attribute.String("error", err.Error()),
			))
			if lastErr == nil || apperror.HasCode(lastErr, apperror.CodeQuoteUnavailable) {
				lastErr = err
			}
			continue
		}
		if res.Amount.Sign() <= 0 {
			continue
		}
		// exact input: most out; exact output: least in
		if best == nil ||
			(exactIn && res.Amount.Cmp(best.Amount) > 0) ||
			(!exactIn && res.Amount.Cmp(best.Amount) < 0) {
			best = res
		}
	}

	if best != nil {
		return best, nil
	}
	if lastErr != nil && !apperror.HasCode(lastErr, apperror.CodeQuoteUnavailable) {
		return nil, lastErr
	}
	return nil, apperror.Unavailable(a.cfg.Name, "no pool quotes the pair", lastErr)
}

func (a *Adapter) quoteTier(ctx context.Context, tokenIn, tokenOut common.Address, amount *big.Int, tier int, exactIn bool) (*QuoteResult, error) {
	var (
		method = methodExactInputSingle
		params any
	)
	if exactIn {
		params = QuoteExactInputSingleParams{
			TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: amount,
			Fee: big.NewInt(int64(tier)), SqrtPriceLimitX96: big.NewInt(0),
		}
	} else {
		method = methodExactOutputSingle
		params = QuoteExactOutputSingleParams{
			TokenIn: tokenIn, TokenOut: tokenOut, Amount: amount,
			Fee: big.NewInt(int64(tier)), SqrtPriceLimitX96: big.NewInt(0),
		}
	}

	data, err := a.abi.Pack(method, params)
	if err != nil {
		return nil, apperror.VenueInternal(a.cfg.Name, "failed to encode quoter call", err)
	}

	out, err := a.caller.CallContract(ctx, ethereum.CallMsg{To: &a.cfg.Quoter, Data: data}, nil)
	if err != nil {
		return nil, a.callError(tier, err)
	}

	values, err := a.abi.Unpack(method, out)
	if err != nil || len(values) < 4 {
		return nil, apperror.VenueInternal(a.cfg.Name, fmt.Sprintf("undecodable quoter output for tier %d", tier), err)
	}
	res := &QuoteResult{FeeTier: tier}
	var ok1, ok2, ok3, ok4 bool
	res.Amount, ok1 = values[0].(*big.Int)
	res.SqrtPriceX96After, ok2 = values[1].(*big.Int)
	res.InitializedTicksCrossed, ok3 = values[2].(uint32)
	res.GasEstimate, ok4 = values[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, apperror.VenueInternal(a.cfg.Name, "unexpected quoter output types", nil)
	}
	return res, nil
}

// callError separates reverts (no pool, not enough liquidity) from node
// failures. Only the latter are retried.
func (a *Adapter) callError(tier int, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperror.New(apperror.CodeServiceTimeout, apperror.WithVenue(a.cfg.Name), apperror.WithCause(err))
	}
	if strings.Contains(err.Error(), "execution reverted") {
		return apperror.Unavailable(a.cfg.Name, fmt.Sprintf("tier %d reverted", tier), err)
	}
	return apperror.New(apperror.CodeServiceUnavailable,
		apperror.WithVenue(a.cfg.Name),
		apperror.WithContext(fmt.Sprintf("quoter call failed for fee tier %d", tier)),
		apperror.WithCause(err))
}

// poolToken maps ETH to WETH; pools hold the wrapped token.
func (a *Adapter) poolToken(t *asset.Asset) (common.Address, error) {
	if !t.IsNative() {
		return t.Address(), nil
	}
	weth, err := a.registry.Lookup("WETH")
	if err != nil {
		return asset.AddrWETH, nil
	}
	return weth.Address(), nil
}
