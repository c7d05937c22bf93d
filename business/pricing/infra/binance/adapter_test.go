package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/shopspring/decimal"

	"github.com/fd1az/savings-bench/business/pricing/app"
	"github.com/fd1az/savings-bench/business/pricing/domain"
	"github.com/fd1az/savings-bench/business/pricing/infra/guard"
	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/circuitbreaker"
	"github.com/fd1az/savings-bench/internal/logger"
	"github.com/fd1az/savings-bench/internal/retry"
)

// mockLogger implements logger.LoggerInterface for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var testExchangeInfo = ExchangeInfo{Symbols: []SymbolInfo{
	{
		Symbol: "ETHUSDT", Status: "TRADING", BaseAsset: "ETH", QuoteAsset: "USDT",
		Filters: []SymbolFilter{{FilterType: "PRICE_FILTER"}, {FilterType: "LOT_SIZE", MinQty: "0.00010000", StepSize: "0.00010000"}},
	},
	{Symbol: "ETHDAI", Status: "TRADING", BaseAsset: "ETH", QuoteAsset: "DAI"},
	{Symbol: "LINKUSDT", Status: "BREAK", BaseAsset: "LINK", QuoteAsset: "USDT"},
}}

var testDepth = map[string]DepthResponse{
	"ETHUSDT": {
		LastUpdateID: 1,
		Bids:         [][]string{{"1990.00", "1.0"}, {"1980.00", "2.0"}},
		Asks:         [][]string{{"2000.00", "1.0"}, {"2010.00", "2.0"}, {"2020.00", "0"}},
	},
	"ETHDAI": {
		LastUpdateID: 2,
		Bids:         [][]string{{"2000", "1"}},
		Asks:         [][]string{{"2500", "1"}},
	},
}

type fakeBinance struct {
	depthCalls atomic.Int32
	infoCalls  atomic.Int32
}

func (f *fakeBinance) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case exchangeInfoEndpoint:
			f.infoCalls.Add(1)
			_ = json.NewEncoder(w).Encode(testExchangeInfo)
		case depthEndpoint:
			f.depthCalls.Add(1)
			if r.URL.Query().Get("limit") != "20" {
				t.Errorf("limit = %s, want 20", r.URL.Query().Get("limit"))
			}
			resp, ok := testDepth[r.URL.Query().Get("symbol")]
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
				return
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestAdapter(t *testing.T, h http.Handler) *Adapter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	a, err := New(Config{
		BaseURL:     srv.URL,
		TakerFeePct: d("0.1"),
		Guard: guard.Config{
			Retry:   retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, RateLimitDelay: time.Millisecond},
			Breaker: circuitbreaker.DefaultConfig("Binance"),
		},
	}, &mockLogger{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestGetQuote_BuyWalksAsks(t *testing.T) {
	f := &fakeBinance{}
	a := newTestAdapter(t, f.handler(t))

	raw, err := a.GetQuote(context.Background(), app.BuyRequest("USDT", "ETH", d("3000")))
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	w, ok := raw.(domain.CexWalk)
	if !ok {
		t.Fatalf("dialect = %T, want CexWalk", raw)
	}
	if w.Side != domain.SideBuy || w.Base != "ETH" || w.Quote != "USDT" {
		t.Errorf("walk = %s %s/%s", w.Side, w.Base, w.Quote)
	}
	if len(w.Levels) != 2 || !w.Levels[0].Price.Equal(d("2000")) {
		t.Errorf("levels = %+v, want the two non-empty asks", w.Levels)
	}
	if !w.MinQty.Equal(d("0.0001")) || !w.TakerFeePct.Equal(d("0.1")) {
		t.Errorf("minQty = %s, fee = %s", w.MinQty, w.TakerFeePct)
	}

	pq, err := app.NewNormalizer(nil).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !pq.SourceAmount.Equal(d("3000")) || pq.SourceToken != "USDT" || pq.DestToken != "ETH" {
		t.Errorf("quote = %s %s -> %s", pq.SourceAmount, pq.SourceToken, pq.DestToken)
	}
	if got := pq.Route.String(); got != "{Binance: 100}" {
		t.Errorf("route = %s", got)
	}
}

func TestGetQuote_SellUsesBids(t *testing.T) {
	f := &fakeBinance{}
	a := newTestAdapter(t, f.handler(t))

	raw, err := a.GetQuote(context.Background(), app.SellRequest("ETH", "USDT", d("1000")))
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	w := raw.(domain.CexWalk)
	if w.Side != domain.SideSell || w.Base != "ETH" || w.Quote != "USDT" || !w.TradeSize.Equal(d("1000")) {
		t.Errorf("walk = %s %s/%s size %s", w.Side, w.Base, w.Quote, w.TradeSize)
	}
	if len(w.Levels) != 2 || !w.Levels[0].Price.Equal(d("1990")) {
		t.Errorf("levels = %+v, want bids", w.Levels)
	}
}

func TestGetQuote_InvertedMarket(t *testing.T) {
	f := &fakeBinance{}
	a := newTestAdapter(t, f.handler(t))

	// DAI priced in ETH is only listed as ETHDAI.
	raw, err := a.GetQuote(context.Background(), app.BuyRequest("ETH", "DAI", d("0.5")))
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	w := raw.(domain.CexWalk)
	if w.Base != "DAI" || w.Quote != "ETH" || len(w.Levels) != 1 {
		t.Fatalf("walk = %+v", w)
	}
	// buying DAI with ETH sells ETH into the ETHDAI bids
	if !w.Levels[0].Price.Equal(d("0.0005")) || !w.Levels[0].Size.Equal(d("2000")) {
		t.Errorf("level = %s x %s, want 0.0005 x 2000", w.Levels[0].Price, w.Levels[0].Size)
	}

	pq, err := app.NewNormalizer(nil).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	// 0.5 ETH buys 1000 DAI before the 0.1% fee
	want := d("1000").Div(d("1.001"))
	if pq.DestAmount.Sub(want).Abs().GreaterThan(d("0.000001")) {
		t.Errorf("dest = %s, want %s", pq.DestAmount, want)
	}
}

func TestGetQuote_UsesCachedBookUntilStale(t *testing.T) {
	f := &fakeBinance{}
	a := newTestAdapter(t, f.handler(t))
	now := time.Now()
	a.now = func() time.Time { return now }

	req := app.BuyRequest("USDT", "ETH", d("100"))
	for i := 0; i < 3; i++ {
		if _, err := a.GetQuote(context.Background(), req); err != nil {
			t.Fatalf("GetQuote() error = %v", err)
		}
	}
	if f.depthCalls.Load() != 1 || f.infoCalls.Load() != 1 {
		t.Errorf("depth calls = %d, info calls = %d, want 1 and 1", f.depthCalls.Load(), f.infoCalls.Load())
	}

	now = now.Add(10 * time.Second)
	if _, err := a.GetQuote(context.Background(), req); err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if f.depthCalls.Load() != 2 {
		t.Errorf("depth calls = %d after staleness, want 2", f.depthCalls.Load())
	}
}

func TestGetQuote_StreamedBookSkipsREST(t *testing.T) {
	f := &fakeBinance{}
	a := newTestAdapter(t, f.handler(t))

	a.handleDepth(&PartialDepthEvent{
		Symbol: "ETHUSDT",
		Bids:   [][]string{{"1500", "3"}},
		Asks:   [][]string{{"1510", "3"}},
	})
	raw, err := a.GetQuote(context.Background(), app.BuyRequest("USDT", "ETH", d("100")))
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if w := raw.(domain.CexWalk); !w.Levels[0].Price.Equal(d("1510")) {
		t.Errorf("best ask = %s, want streamed 1510", w.Levels[0].Price)
	}
	if f.depthCalls.Load() != 0 {
		t.Errorf("depth calls = %d, want 0", f.depthCalls.Load())
	}
}

func TestGetQuote_Unavailable(t *testing.T) {
	tests := []struct {
		name string
		req  app.QuoteRequest
	}{
		{"no_market", app.BuyRequest("USDT", "MKR", d("100"))},
		{"market_halted", app.BuyRequest("USDT", "LINK", d("100"))},
		{"same_asset", app.BuyRequest("WETH", "ETH", d("1"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeBinance{}
			a := newTestAdapter(t, f.handler(t))
			_, err := a.GetQuote(context.Background(), tt.req)
			if !apperror.HasCode(err, apperror.CodeQuoteUnavailable) {
				t.Errorf("error = %v, want QuoteUnavailable", err)
			}
		})
	}
}

func TestGetQuote_InvalidSymbolFromDepth(t *testing.T) {
	info := ExchangeInfo{Symbols: []SymbolInfo{{Symbol: "MKRUSDT", Status: "TRADING"}}}
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == exchangeInfoEndpoint {
			_ = json.NewEncoder(w).Encode(info)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))

	_, err := a.GetQuote(context.Background(), app.BuyRequest("USDT", "MKR", d("100")))
	if !apperror.HasCode(err, apperror.CodeQuoteUnavailable) {
		t.Errorf("error = %v, want QuoteUnavailable", err)
	}
}

func TestGetDepth(t *testing.T) {
	f := &fakeBinance{}
	a := newTestAdapter(t, f.handler(t))

	bids, asks, err := a.GetDepth(context.Background(), "eth", "usdt")
	if err != nil {
		t.Fatalf("GetDepth() error = %v", err)
	}
	if len(bids) != 2 || len(asks) != 2 {
		t.Fatalf("bids = %d, asks = %d", len(bids), len(asks))
	}
	if !bids[0].Price.GreaterThan(bids[1].Price) || !asks[0].Price.LessThan(asks[1].Price) {
		t.Errorf("book out of order: bids %+v asks %+v", bids, asks)
	}
}

func TestStreamClient_DeliversDepth(t *testing.T) {
	msg := `{"stream":"ethusdt@depth20@100ms","data":{"lastUpdateId":7,"bids":[["1990.1","2"]],"asks":[["1990.2","3"]]}}`
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case paths <- r.URL.Path + "?" + r.URL.RawQuery:
		default:
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := context.Background()
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"result":null,"id":1}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(msg))
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c, err := NewStreamClient(StreamConfig{
		BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols: []string{"ETHUSDT"},
	}, &mockLogger{})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	got := make(chan *PartialDepthEvent, 1)
	c.OnDepth(func(e *PartialDepthEvent) {
		select {
		case got <- e:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	select {
	case e := <-got:
		if e.Symbol != "ETHUSDT" || e.LastUpdateID != 7 || len(e.Asks) != 1 {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for depth event")
	}
	if p := <-paths; p != "/stream?streams=ethusdt@depth20@100ms" {
		t.Errorf("stream url = %s", p)
	}
}

func TestParseLevels(t *testing.T) {
	tests := []struct {
		name    string
		raw     [][]string
		want    int
		wantErr bool
	}{
		{"drops_empty_levels", [][]string{{"1", "2"}, {"1.1", "0"}}, 1, false},
		{"short_level", [][]string{{"1"}}, 0, true},
		{"bad_price", [][]string{{"x", "1"}}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevels(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("levels = %d, want %d", len(got), tt.want)
			}
		})
	}
}
