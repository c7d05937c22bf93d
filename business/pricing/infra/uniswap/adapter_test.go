package uniswap

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
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

// fakeQuoter answers QuoterV2 calls from a fee tier -> amount table. Tiers
// missing from the table revert.
type fakeQuoter struct {
	abi     abi.ABI
	amounts map[int64]*big.Int
	err     error
	raw     []byte

	mu       sync.Mutex
	calls    int
	tokenIn  common.Address
	tokenOut common.Address
	methods  []string
}

func newFakeQuoter(t *testing.T, amounts map[int64]*big.Int) *fakeQuoter {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(QuoterV2ABI))
	if err != nil {
		t.Fatalf("abi.JSON() error = %v", err)
	}
	return &fakeQuoter{abi: parsed, amounts: amounts}
}

func (f *fakeQuoter) CallContract(ctx context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.err != nil {
		return nil, f.err
	}
	method, err := f.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	f.methods = append(f.methods, method.Name)

	var fee *big.Int
	switch method.Name {
	case methodExactInputSingle:
		p := *abi.ConvertType(args[0], new(QuoteExactInputSingleParams)).(*QuoteExactInputSingleParams)
		fee, f.tokenIn, f.tokenOut = p.Fee, p.TokenIn, p.TokenOut
	case methodExactOutputSingle:
		p := *abi.ConvertType(args[0], new(QuoteExactOutputSingleParams)).(*QuoteExactOutputSingleParams)
		fee, f.tokenIn, f.tokenOut = p.Fee, p.TokenIn, p.TokenOut
	}

	if f.raw != nil {
		return f.raw, nil
	}
	amount, ok := f.amounts[fee.Int64()]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return method.Outputs.Pack(amount, big.NewInt(1), uint32(2), big.NewInt(120000))
}

func newTestAdapter(t *testing.T, caller ContractCaller) *Adapter {
	t.Helper()
	a, err := New(caller, Config{
		FeeTiers: []int{FeeTier005, FeeTier030},
		Guard: guard.Config{
			Retry:   retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, RateLimitDelay: time.Millisecond},
			Breaker: circuitbreaker.DefaultConfig("Uniswap V3"),
		},
	}, asset.DefaultRegistry(), &mockLogger{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestAdapter_ExactInputPicksMostOutput(t *testing.T) {
	q := newFakeQuoter(t, map[int64]*big.Int{
		FeeTier005: ether(2990),
		FeeTier030: ether(3000),
	})
	a := newTestAdapter(t, q)

	raw, err := a.GetQuote(context.Background(), app.BuyRequest("ETH", "DAI", decimal.NewFromInt(1)))
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	got, ok := raw.(domain.RivalAgg)
	if !ok {
		t.Fatalf("GetQuote() returned %T, want RivalAgg", raw)
	}

	if got.Venue != "Uniswap V3" {
		t.Errorf("Venue = %q", got.Venue)
	}
	if !got.SourceAmount.Equal(decimal.NewFromInt(1)) {
		t.Errorf("SourceAmount = %s, want 1", got.SourceAmount)
	}
	if !got.DestAmount.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("DestAmount = %s, want 3000", got.DestAmount)
	}
	if len(got.Hops) != 0 {
		t.Errorf("Hops = %v, want none", got.Hops)
	}
	if got.Fees.Exchange == nil || !got.Fees.Exchange.Pct.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("Fees.Exchange = %+v, want 0.3%%", got.Fees.Exchange)
	}
	if q.tokenIn != asset.AddrWETH {
		t.Errorf("tokenIn = %s, want WETH", q.tokenIn.Hex())
	}
	for _, m := range q.methods {
		if m != methodExactInputSingle {
			t.Errorf("called %s, want %s", m, methodExactInputSingle)
		}
	}
}

func TestAdapter_ExactOutputPicksLeastInput(t *testing.T) {
	q := newFakeQuoter(t, map[int64]*big.Int{
		FeeTier005: ether(3010),
		FeeTier030: ether(3005),
	})
	a := newTestAdapter(t, q)

	raw, err := a.GetQuote(context.Background(), app.SellRequest("DAI", "ETH", decimal.NewFromInt(1)))
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	got := raw.(domain.RivalAgg)

	if !got.SourceAmount.Equal(decimal.NewFromInt(3005)) {
		t.Errorf("SourceAmount = %s, want 3005", got.SourceAmount)
	}
	if !got.DestAmount.Equal(decimal.NewFromInt(1)) {
		t.Errorf("DestAmount = %s, want 1", got.DestAmount)
	}
	if q.tokenOut != asset.AddrWETH {
		t.Errorf("tokenOut = %s, want WETH", q.tokenOut.Hex())
	}
	if q.methods[0] != methodExactOutputSingle {
		t.Errorf("called %s, want %s", q.methods[0], methodExactOutputSingle)
	}
}

func TestAdapter_SkipsRevertingTier(t *testing.T) {
	q := newFakeQuoter(t, map[int64]*big.Int{FeeTier030: ether(3000)})
	a := newTestAdapter(t, q)

	raw, err := a.GetQuote(context.Background(), app.BuyRequest("ETH", "DAI", decimal.NewFromInt(1)))
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if got := raw.(domain.RivalAgg).DestAmount; !got.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("DestAmount = %s, want 3000", got)
	}
	// reverts are answers, not retried
	if q.calls != 2 {
		t.Errorf("calls = %d, want 2", q.calls)
	}
}

func TestAdapter_Errors(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(q *fakeQuoter)
		req       app.QuoteRequest
		wantCode  apperror.Code
		wantCalls int
	}{
		{
			name:      "no pool in any tier",
			setup:     func(q *fakeQuoter) {},
			req:       app.BuyRequest("ETH", "DAI", decimal.NewFromInt(1)),
			wantCode:  apperror.CodeQuoteUnavailable,
			wantCalls: 2,
		},
		{
			name:      "node unreachable",
			setup:     func(q *fakeQuoter) { q.err = errors.New("dial tcp: connection refused") },
			req:       app.BuyRequest("ETH", "DAI", decimal.NewFromInt(1)),
			wantCode:  apperror.CodeQuoteUnavailable,
			wantCalls: 4,
		},
		{
			name:      "undecodable output",
			setup:     func(q *fakeQuoter) { q.raw = []byte{0x01, 0x02} },
			req:       app.BuyRequest("ETH", "DAI", decimal.NewFromInt(1)),
			wantCode:  apperror.CodeVenueInternalError,
			wantCalls: 4,
		},
		{
			name:      "ETH and WETH share a pool token",
			setup:     func(q *fakeQuoter) {},
			req:       app.BuyRequest("ETH", "WETH", decimal.NewFromInt(1)),
			wantCode:  apperror.CodeQuoteUnavailable,
			wantCalls: 0,
		},
		{
			name:      "unknown token",
			setup:     func(q *fakeQuoter) {},
			req:       app.BuyRequest("ETH", "NOPE", decimal.NewFromInt(1)),
			wantCode:  apperror.CodeUnknownToken,
			wantCalls: 0,
		},
		{
			name:      "both amounts set",
			setup:     func(q *fakeQuoter) {},
			req:       app.QuoteRequest{From: "ETH", To: "DAI", FromAmount: ptr(decimal.NewFromInt(1)), ToAmount: ptr(decimal.NewFromInt(1))},
			wantCode:  apperror.CodeAmountDirectionUnsupported,
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newFakeQuoter(t, map[int64]*big.Int{})
			tt.setup(q)
			a := newTestAdapter(t, q)

			_, err := a.GetQuote(context.Background(), tt.req)
			if !apperror.HasCode(err, tt.wantCode) {
				t.Fatalf("GetQuote() error = %v, want code %s", err, tt.wantCode)
			}
			if q.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", q.calls, tt.wantCalls)
			}
		})
	}
}

func TestNew_RequiresCaller(t *testing.T) {
	_, err := New(nil, Config{}, asset.DefaultRegistry(), &mockLogger{})
	if !apperror.HasCode(err, apperror.CodeConfigurationError) {
		t.Fatalf("New(nil) error = %v, want configuration error", err)
	}
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }
