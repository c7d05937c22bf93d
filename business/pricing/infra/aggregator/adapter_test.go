package aggregator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/savings-bench/business/pricing/app"
	"github.com/fd1az/savings-bench/business/pricing/domain"
	"github.com/fd1az/savings-bench/business/pricing/infra/guard"
	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/asset"
	"github.com/fd1az/savings-bench/internal/circuitbreaker"
	"github.com/fd1az/savings-bench/internal/retry"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

const (
	addrETH = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
	addrDAI = "0x6b175474e89094c44da98b954eedeac495271d0f"
	addrPAX = "0x8e870d67f660d95d5be530380d0ec0bd388289e1"
	addrBAT = "0x0d8775f648430679a709e98d2b0cb6250d2887ef"

	oneEther = "1000000000000000000"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := New(Config{
		Name:    "Primary",
		BaseURL: srv.URL,
		FeePct:  decimal.RequireFromString("0.25"),
		Timeout: 2 * time.Second,
		Guard: guard.Config{
			Venue:   "Primary",
			Retry:   retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, RateLimitDelay: time.Millisecond},
			Breaker: circuitbreaker.DefaultConfig("Primary"),
		},
	}, asset.DefaultRegistry(), domain.DefaultExchangeNameMap(), &mockLogger{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func ethDaiSummary() map[string]any {
	return map[string]any{
		"success": true,
		"summary": map[string]any{
			"sourceAsset":       map[string]string{"address": addrETH, "symbol": "ETH"},
			"sourceAmount":      oneEther,
			"destinationAsset":  map[string]string{"address": addrDAI, "symbol": "DAI"},
			"destinationAmount": "150000000000000000000",
			"fees": []map[string]any{
				{"type": "aggregator", "asset": map[string]string{"address": addrDAI}, "amount": "375000000000000000", "percentage": 0.25},
			},
			"trades": []map[string]any{{
				"sourceAsset":       map[string]string{"address": addrETH},
				"sourceAmount":      oneEther,
				"destinationAsset":  map[string]string{"address": addrDAI},
				"destinationAmount": "150375000000000000000",
				"orders": []map[string]string{
					{"exchange": "UNISWAP_V2", "sourceAmount": "700000000000000000", "destinationAmount": "105262500000000000000"},
					{"exchange": "Kyber", "sourceAmount": "300000000000000000", "destinationAmount": "45112500000000000000"},
				},
			}},
		},
	}
}

func TestGetQuote_SingleTrade(t *testing.T) {
	var got swapRequest
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/swap" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, ethDaiSummary())
	})

	raw, err := a.GetQuote(context.Background(), app.BuyRequest("ETH", "DAI", decimal.NewFromInt(1)))
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}

	if got.Swap.SourceAmount != oneEther || got.Swap.DestinationAmount != "" {
		t.Errorf("request amounts = %q / %q", got.Swap.SourceAmount, got.Swap.DestinationAmount)
	}
	if got.Swap.SourceAsset != "0x0000000000000000000000000000000000000000" || got.Swap.DestinationAsset != addrDAI {
		t.Errorf("request assets = %s -> %s", got.Swap.SourceAsset, got.Swap.DestinationAsset)
	}
	if got.Config != nil {
		t.Errorf("unexpected exchange filter %+v", got.Config)
	}

	q, ok := raw.(domain.SingleTradeAgg)
	if !ok {
		t.Fatalf("dialect = %T, want SingleTradeAgg", raw)
	}
	s := q.Summary
	if s.SourceToken != "ETH" || s.DestToken != "DAI" {
		t.Errorf("tokens = %s -> %s", s.SourceToken, s.DestToken)
	}
	if !s.SourceAmount.Equal(decimal.NewFromInt(1)) || !s.DestAmount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("amounts = %s -> %s", s.SourceAmount, s.DestAmount)
	}
	if s.Fees.Aggregator == nil || !s.Fees.Aggregator.Amount.Equal(decimal.RequireFromString("0.375")) ||
		s.Fees.Aggregator.Token != "DAI" {
		t.Errorf("aggregator fee = %+v", s.Fees.Aggregator)
	}

	pq, err := app.NewNormalizer(nil).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if r := pq.Route.String(); r != "{Kyber: 30, Uniswap V2: 70}" {
		t.Errorf("route = %s", r)
	}
}

func TestGetQuote_MultiHopWithUnknownIntermediate(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"success": true,
			"summary": map[string]any{
				"sourceAsset":       map[string]string{"address": addrETH},
				"sourceAmount":      "10" + oneEther[1:],
				"destinationAsset":  map[string]string{"address": addrPAX},
				"destinationAmount": "1500000000000000000000",
				"trades": []map[string]any{
					{
						"sourceAsset":       map[string]string{"address": addrETH},
						"sourceAmount":      "10" + oneEther[1:],
						"destinationAsset":  map[string]string{"address": "0x1234567890123456789012345678901234567890", "symbol": "xyz"},
						"destinationAmount": "1500000000",
						"orders": []map[string]string{
							{"exchange": "Uniswap", "sourceAmount": "10" + oneEther[1:], "destinationAmount": "1500000000"},
						},
					},
					{
						"sourceAsset":       map[string]string{"address": "0x1234567890123456789012345678901234567890", "symbol": "xyz"},
						"sourceAmount":      "1500000000",
						"destinationAsset":  map[string]string{"address": addrPAX},
						"destinationAmount": "1500000000000000000000",
						"orders": []map[string]string{
							{"exchange": "CURVE", "sourceAmount": "900000000", "destinationAmount": "900000000000000000000"},
							{"exchange": "Eth2Dai", "sourceAmount": "600000000", "destinationAmount": "600000000000000000000"},
						},
					},
				},
			},
		})
	})

	raw, err := a.GetQuote(context.Background(), app.BuyRequest("ETH", "PAX", decimal.NewFromInt(10)))
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if _, ok := raw.(domain.MultiHopAgg); !ok {
		t.Fatalf("dialect = %T, want MultiHopAgg", raw)
	}
	pq, err := app.NewNormalizer(nil).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	want := "{PAX/XYZ: {Curve: 60, Oasis: 40}, XYZ/ETH: {Uniswap: 100}}"
	if r := pq.Route.String(); r != want {
		t.Errorf("route = %s, want %s", r, want)
	}
	if !pq.DestAmount.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("dest = %s", pq.DestAmount)
	}
}

func TestGetQuote_Whitelist(t *testing.T) {
	var exchangeCalls atomic.Int32
	var got swapRequest
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/exchanges":
			exchangeCalls.Add(1)
			writeJSON(w, []map[string]string{{"id": "kyber", "name": "Kyber Network"}, {"id": "uni", "name": "Uniswap V2"}})
		case "/swap":
			_ = json.NewDecoder(r.Body).Decode(&got)
			writeJSON(w, map[string]any{
				"success": true,
				"summary": map[string]any{
					"sourceAsset":       map[string]string{"address": addrETH},
					"sourceAmount":      oneEther,
					"destinationAsset":  map[string]string{"address": addrBAT},
					"destinationAmount": "100000000000000000000",
					"fees": []map[string]any{
						{"type": "aggregator", "asset": map[string]string{"address": addrBAT}, "percentage": "0.25"},
					},
					"trades": []map[string]any{{
						"sourceAsset":       map[string]string{"address": addrETH},
						"sourceAmount":      oneEther,
						"destinationAsset":  map[string]string{"address": addrBAT},
						"destinationAmount": "100000000000000000000",
						"orders": []map[string]string{
							{"exchange": "Kyber Network", "sourceAmount": oneEther, "destinationAmount": "100000000000000000000"},
						},
					}},
				},
			})
		}
	})

	req := app.BuyRequest("ETH", "BAT", decimal.NewFromInt(1)).WithExchange("Kyber")
	for i := 0; i < 2; i++ {
		raw, err := a.GetQuote(context.Background(), req)
		if err != nil {
			t.Fatalf("GetQuote() error = %v", err)
		}
		wl, ok := raw.(domain.DexWhitelist)
		if !ok {
			t.Fatalf("dialect = %T, want DexWhitelist", raw)
		}
		if wl.Side != domain.SideBuy || wl.Exchange != "Kyber" {
			t.Errorf("whitelist = %+v", wl)
		}

		pq, err := app.NewNormalizer(nil).Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		// S4: 100 BAT less the 0.25% aggregator fee
		if !pq.DestAmount.Equal(decimal.RequireFromString("99.75")) {
			t.Errorf("dest = %s, want 99.75", pq.DestAmount)
		}
	}

	if got.Config == nil || got.Config.Exchanges.Type != "white" ||
		len(got.Config.Exchanges.List) != 1 || got.Config.Exchanges.List[0] != "Kyber Network" {
		t.Errorf("exchange filter = %+v", got.Config)
	}
	if exchangeCalls.Load() != 1 {
		t.Errorf("/exchanges fetched %d times, want 1", exchangeCalls.Load())
	}
}

func TestGetQuote_SellSetsDestinationAmount(t *testing.T) {
	var got swapRequest
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, map[string]any{"success": false, "error": "no route"})
	})

	_, err := a.GetQuote(context.Background(), app.SellRequest("DAI", "ETH", decimal.RequireFromString("0.5")))
	if !apperror.HasCode(err, apperror.CodeQuoteUnavailable) {
		t.Errorf("error = %v, want QuoteUnavailable", err)
	}
	if got.Swap.DestinationAmount != "500000000000000000" || got.Swap.SourceAmount != "" {
		t.Errorf("request amounts = %q / %q", got.Swap.SourceAmount, got.Swap.DestinationAmount)
	}
}

func TestGetQuote_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		req       app.QuoteRequest
		wantCode  apperror.Code
		wantCalls int32
	}{
		{"server_error_retried", http.StatusInternalServerError, `oops`, app.BuyRequest("ETH", "DAI", decimal.NewFromInt(1)), apperror.CodeVenueInternalError, 3},
		{"rate_limited", http.StatusTooManyRequests, `slow down`, app.BuyRequest("ETH", "DAI", decimal.NewFromInt(1)), apperror.CodeQuoteUnavailable, 3},
		{"bad_request", http.StatusBadRequest, `{"error":"amount too small"}`, app.BuyRequest("ETH", "DAI", decimal.NewFromInt(1)), apperror.CodeQuoteUnavailable, 1},
		{"garbage_json", http.StatusOK, `{"success":`, app.BuyRequest("ETH", "DAI", decimal.NewFromInt(1)), apperror.CodeVenueInternalError, 3},
		{"unknown_token", http.StatusOK, `{}`, app.BuyRequest("ETH", "NOPE", decimal.NewFromInt(1)), apperror.CodeUnknownToken, 0},
		{"wrong_pair", http.StatusOK, `{"success":true,"summary":{"sourceAsset":{"address":"` + addrETH + `"},"sourceAmount":"1","destinationAsset":{"address":"` + addrBAT + `"},"destinationAmount":"1","trades":[]}}`, app.BuyRequest("ETH", "DAI", decimal.NewFromInt(1)), apperror.CodeMalformedQuote, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := a.GetQuote(context.Background(), tt.req)
			if apperror.GetCode(err) != tt.wantCode {
				t.Errorf("code = %s, want %s (%v)", apperror.GetCode(err), tt.wantCode, err)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestGetQuote_WhitelistUnknownExchange(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/exchanges" {
			writeJSON(w, []map[string]string{{"id": "uni", "name": "Uniswap V2"}})
			return
		}
		t.Errorf("unexpected call to %s", r.URL.Path)
	})

	_, err := a.GetQuote(context.Background(), app.BuyRequest("ETH", "DAI", decimal.NewFromInt(1)).WithExchange("Bancor"))
	if !apperror.HasCode(err, apperror.CodeQuoteUnavailable) {
		t.Errorf("error = %v, want QuoteUnavailable", err)
	}
}

func TestGetQuote_DirectionChecks(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call")
	})
	one := decimal.NewFromInt(1)
	_, err := a.GetQuote(context.Background(), app.QuoteRequest{From: "ETH", To: "DAI", FromAmount: &one, ToAmount: &one})
	if !apperror.HasCode(err, apperror.CodeAmountDirectionUnsupported) {
		t.Errorf("error = %v, want AmountDirectionUnsupported", err)
	}
}
