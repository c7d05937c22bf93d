package binance

import (
	"context"
	"fmt"
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
	"github.com/fd1az/savings-bench/internal/logger"
)

var _ app.BookAdapter = (*Adapter)(nil)

// DefaultAssetAliases maps registry symbols to Binance assets. WETH is
// unlisted and redeems 1:1 for ETH.
var DefaultAssetAliases = map[string]string{"WETH": "ETH"}

// Config configures the Binance venue.
type Config struct {
	Name      string
	BaseURL   string
	StreamURL string
	// Stream keeps Pairs live over the depth stream; other markets and stale
	// books are fetched over REST.
	Stream bool
	Pairs  []string

	TakerFeePct decimal.Decimal
	// MinQty overrides the market's LOT_SIZE minimum when positive.
	MinQty       decimal.Decimal
	DepthLimit   int
	StaleAfter   time.Duration
	AssetAliases map[string]string
	Timeout      time.Duration
	Guard        guard.Config
}

// DefaultConfig returns the public endpoints, a 0.1% taker fee and 20-level
// books considered stale after 5s.
func DefaultConfig() Config {
	return Config{
		Name:         "Binance",
		BaseURL:      BaseAPIURL,
		StreamURL:    BaseWSURL,
		TakerFeePct:  decimal.RequireFromString("0.1"),
		DepthLimit:   20,
		StaleAfter:   5 * time.Second,
		AssetAliases: DefaultAssetAliases,
		Timeout:      httpTimeout,
		Guard:        guard.DefaultConfig("Binance"),
	}
}

type book struct {
	bids    []domain.BookLevel
	asks    []domain.BookLevel
	updated time.Time
	source  string
}

// Adapter quotes Binance by handing its book to the normalizer's walk.
type Adapter struct {
	cfg    Config
	rest   *RESTClient
	stream *StreamClient
	guard  *guard.Guard
	logger logger.LoggerInterface
	tracer trace.Tracer

	booksMu sync.RWMutex
	books   map[string]book

	marketsMu sync.Mutex
	markets   map[string]SymbolInfo

	now func() time.Time
}

// New creates the adapter. Call Connect to start the depth stream.
func New(cfg Config, log logger.LoggerInterface) (*Adapter, error) {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.DepthLimit == 0 {
		cfg.DepthLimit = def.DepthLimit
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.AssetAliases == nil {
		cfg.AssetAliases = def.AssetAliases
	}
	if cfg.Guard.Venue == "" {
		cfg.Guard.Venue = cfg.Name
	}
	if cfg.TakerFeePct.IsNegative() {
		return nil, apperror.Configuration(fmt.Sprintf("%s taker fee %s is negative", cfg.Name, cfg.TakerFeePct))
	}

	tracer := otel.Tracer(tracerName)
	rest, err := NewRESTClient(RESTConfig{Venue: cfg.Name, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}, tracer, log)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		cfg:    cfg,
		rest:   rest,
		guard:  guard.New(cfg.Guard, log),
		logger: log,
		tracer: tracer,
		books:  make(map[string]book),
		now:    time.Now,
	}

	if cfg.Stream && len(cfg.Pairs) > 0 {
		levels := 20
		if cfg.DepthLimit == 5 || cfg.DepthLimit == 10 {
			levels = cfg.DepthLimit
		}
		a.stream, err = NewStreamClient(StreamConfig{
			BaseURL: cfg.StreamURL,
			Symbols: cfg.Pairs,
			Levels:  levels,
		}, log)
		if err != nil {
			return nil, err
		}
		a.stream.OnDepth(a.handleDepth)
	}
	return a, nil
}

func (a *Adapter) Name() string               { return a.cfg.Name }
func (a *Adapter) Kind() app.Kind             { return app.KindCEXBook }
func (a *Adapter) FeePct() decimal.Decimal    { return a.cfg.TakerFeePct }
func (a *Adapter) Directions() app.Directions { return app.BothDirections }
func (a *Adapter) Guard() *guard.Guard        { return a.guard }

// Connect starts the depth stream when configured. A failed stream is logged
// and quotes fall back to REST.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.stream == nil {
		return nil
	}
	if err := a.stream.Connect(ctx); err != nil {
		a.logger.Warn(ctx, "binance depth stream unavailable, using REST", "error", err)
	}
	return nil
}

// Close stops the depth stream.
func (a *Adapter) Close() error {
	if a.stream == nil {
		return nil
	}
	return a.stream.Close()
}

// GetQuote returns the book side the trade would consume. A buy spends the
// fixed source amount (the quote asset) on asks of the destination; a sell
// receives the fixed destination amount by selling the source into bids.
func (a *Adapter) GetQuote(ctx context.Context, req app.QuoteRequest) (domain.RawQuote, error) {
	if err := req.Validate(a.cfg.Name, a.Directions()); err != nil {
		return nil, err
	}

	side := req.Side()
	base, quote := asset.CanonicalSymbol(req.To), asset.CanonicalSymbol(req.From)
	if side == domain.SideSell {
		base, quote = quote, base
	}

	ctx, span := a.tracer.Start(ctx, "binance.get_quote",
		trace.WithAttributes(
			attribute.String("base", base),
			attribute.String("quote", quote),
			attribute.String("side", string(side)),
			attribute.String("size", req.Amount().String()),
		),
	)
	defer span.End()

	info, inverted, err := a.market(ctx, base, quote)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	bids, asks, err := a.bookFor(ctx, info.Symbol, inverted)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	levels := asks
	if side == domain.SideSell {
		levels = bids
	}

	minQty := a.cfg.MinQty
	if !minQty.IsPositive() {
		minQty = info.MinQty()
		// LOT_SIZE of an inverted market is in our quote asset.
		if inverted && minQty.IsPositive() && len(levels) > 0 {
			minQty = asset.Ratio(minQty, levels[0].Price)
		}
	}

	span.SetAttributes(
		attribute.String("symbol", info.Symbol),
		attribute.Bool("inverted", inverted),
		attribute.Int("levels", len(levels)),
	)
	return domain.CexWalk{
		Venue:       a.cfg.Name,
		Side:        side,
		Base:        base,
		Quote:       quote,
		TradeSize:   req.Amount(),
		Levels:      levels,
		TakerFeePct: a.cfg.TakerFeePct,
		MinQty:      minQty,
	}, nil
}

// GetDepth returns the book of base priced in quote, inverting the listed
// market when Binance only lists quote/base.
func (a *Adapter) GetDepth(ctx context.Context, base, quote string) (bids, asks []domain.BookLevel, err error) {
	info, inverted, err := a.market(ctx, asset.CanonicalSymbol(base), asset.CanonicalSymbol(quote))
	if err != nil {
		return nil, nil, err
	}
	return a.bookFor(ctx, info.Symbol, inverted)
}

func (a *Adapter) bookFor(ctx context.Context, symbol string, inverted bool) (bids, asks []domain.BookLevel, err error) {
	b, err := a.depth(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}
	if inverted {
		return invertLevels(b.asks), invertLevels(b.bids), nil
	}
	return b.bids, b.asks, nil
}

// depth serves a fresh streamed book or fetches one over REST.
func (a *Adapter) depth(ctx context.Context, symbol string) (book, error) {
	a.booksMu.RLock()
	b, ok := a.books[symbol]
	a.booksMu.RUnlock()
	if ok && a.now().Sub(b.updated) <= a.cfg.StaleAfter && len(b.bids) > 0 && len(b.asks) > 0 {
		return b, nil
	}

	resp, err := guard.Call(ctx, a.guard, func(ctx context.Context) (*DepthResponse, error) {
		return a.rest.GetDepth(ctx, symbol, a.cfg.DepthLimit)
	})
	if err != nil {
		return book{}, err
	}

	b, err = parseBook(resp.Bids, resp.Asks)
	if err != nil {
		return book{}, a.guard.Settle(ctx, apperror.Malformed(a.cfg.Name, fmt.Sprintf("%s depth: %v", symbol, err)))
	}
	b.updated = a.now()
	b.source = "rest"

	a.booksMu.Lock()
	a.books[symbol] = b
	a.booksMu.Unlock()

	a.logger.Debug(ctx, "book fetched via REST", "symbol", symbol, "bids", len(b.bids), "asks", len(b.asks))
	return b, nil
}

func (a *Adapter) handleDepth(event *PartialDepthEvent) {
	b, err := parseBook(event.Bids, event.Asks)
	if err != nil {
		a.logger.Debug(context.Background(), "dropping bad depth snapshot", "symbol", event.Symbol, "error", err)
		return
	}
	b.updated = a.now()
	b.source = "stream"

	a.booksMu.Lock()
	a.books[event.Symbol] = b
	a.booksMu.Unlock()
}

// market finds base+quote, or quote+base when only the inverse is listed.
func (a *Adapter) market(ctx context.Context, base, quote string) (SymbolInfo, bool, error) {
	markets, err := a.loadMarkets(ctx)
	if err != nil {
		return SymbolInfo{}, false, err
	}
	b, q := a.binanceAsset(base), a.binanceAsset(quote)
	if b == q {
		return SymbolInfo{}, false, apperror.Unavailable(a.cfg.Name, fmt.Sprintf("%s and %s are the same Binance asset", base, quote), nil)
	}
	if info, ok := markets[b+q]; ok && info.Trading() {
		return info, false, nil
	}
	if info, ok := markets[q+b]; ok && info.Trading() {
		return info, true, nil
	}
	return SymbolInfo{}, false, apperror.Unavailable(a.cfg.Name, fmt.Sprintf("no market for %s/%s", base, quote), nil)
}

// loadMarkets fetches exchangeInfo once. A failed load is retried on the
// next call.
func (a *Adapter) loadMarkets(ctx context.Context) (map[string]SymbolInfo, error) {
	a.marketsMu.Lock()
	defer a.marketsMu.Unlock()
	if a.markets != nil {
		return a.markets, nil
	}

	info, err := guard.Call(ctx, a.guard, func(ctx context.Context) (*ExchangeInfo, error) {
		return a.rest.ExchangeInfo(ctx)
	})
	if err != nil {
		return nil, err
	}
	markets := make(map[string]SymbolInfo, len(info.Symbols))
	for _, s := range info.Symbols {
		markets[s.Symbol] = s
	}
	a.markets = markets
	a.logger.Debug(ctx, "loaded binance markets", "count", len(markets))
	return markets, nil
}

func (a *Adapter) binanceAsset(symbol string) string {
	if alias, ok := a.cfg.AssetAliases[symbol]; ok {
		return alias
	}
	return symbol
}

func parseBook(rawBids, rawAsks [][]string) (book, error) {
	bids, err := ParseLevels(rawBids)
	if err != nil {
		return book{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := ParseLevels(rawAsks)
	if err != nil {
		return book{}, fmt.Errorf("asks: %w", err)
	}
	return book{bids: bids, asks: asks}, nil
}

// invertLevels re-prices a side of a Q/B market as B priced in Q. Price
// becomes 1/p and size becomes s*p; the ordering flips with the price, so
// bids become asks and asks become bids.
func invertLevels(levels []domain.BookLevel) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(levels))
	for _, l := range levels {
		if !l.Price.IsPositive() {
			continue
		}
		out = append(out, domain.BookLevel{
			Price: asset.Ratio(decimal.NewFromInt(1), l.Price),
			Size:  l.Size.Mul(l.Price),
		})
	}
	return out
}
