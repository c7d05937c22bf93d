package asset_test

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/asset"
)

func boolPtr(b bool) *bool { return &b }

func TestRegistry_Lookups(t *testing.T) {
	r, err := asset.NewRegistryFromSources([]asset.SourceEntry{
		{Symbol: "dai", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
		{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sym, err := r.Canonical(" Dai ")
	if err != nil || sym != "DAI" {
		t.Errorf("Canonical = (%q, %v)", sym, err)
	}

	a, _ := r.Lookup("dai")
	if a.AddressHex() != "0x6b175474e89094c44da98b954eedeac495271d0f" {
		t.Errorf("address not lowercased: %s", a.AddressHex())
	}

	eth, err := r.Lookup("eth")
	if err != nil {
		t.Fatalf("ETH must always be registered: %v", err)
	}
	if eth.Address() != (common.Address{}) || eth.Decimals() != 18 {
		t.Errorf("ETH sentinel = %s/%d", eth.AddressHex(), eth.Decimals())
	}

	dec, _ := r.Decimals("usdc")
	if dec != 6 {
		t.Errorf("USDC decimals = %d", dec)
	}

	byAddr, err := r.ByAddress(common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"))
	if err != nil || byAddr.Symbol() != "USDC" {
		t.Errorf("ByAddress = (%v, %v)", byAddr, err)
	}
}

func TestRegistry_UnknownToken(t *testing.T) {
	r := asset.DefaultRegistry()

	checks := map[string]func() error{
		"Canonical": func() error { _, err := r.Canonical("NOPE"); return err },
		"Address":   func() error { _, err := r.Address("NOPE"); return err },
		"Decimals":  func() error { _, err := r.Decimals("NOPE"); return err },
		"ToInteger": func() error { _, err := r.ToInteger(decimal.NewFromInt(1), "NOPE"); return err },
		"ToReal":    func() error { _, err := r.ToReal(big.NewInt(1), "NOPE"); return err },
	}

	for name, fn := range checks {
		t.Run(name, func(t *testing.T) {
			if code := apperror.GetCode(fn()); code != apperror.CodeUnknownToken {
				t.Errorf("code = %s, want %s", code, apperror.CodeUnknownToken)
			}
		})
	}
}

func TestRegistry_AmountRoundTrip(t *testing.T) {
	r := asset.DefaultRegistry()
	rng := rand.New(rand.NewSource(7))

	for _, sym := range []string{"ETH", "USDC", "WBTC", "DAI"} {
		for i := 0; i < 200; i++ {
			n := new(big.Int).Rand(rng, new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil))

			real, err := r.ToReal(n, sym)
			if err != nil {
				t.Fatalf("ToReal(%s, %s): %v", n, sym, err)
			}
			back, err := r.ToInteger(real, sym)
			if err != nil {
				t.Fatalf("ToInteger(%s, %s): %v", real, sym, err)
			}
			if back.Cmp(n) != 0 {
				t.Fatalf("%s: round trip %s -> %s -> %s", sym, n, real, back)
			}
		}
	}
}

func TestRegistry_ToRealExact(t *testing.T) {
	r := asset.DefaultRegistry()

	got, err := r.ToReal(big.NewInt(1_500_000), "USDC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("ToReal = %s, want 1.5", got)
	}
}

func TestNewRegistryFromSources_Overlay(t *testing.T) {
	primary := []asset.SourceEntry{
		{Symbol: "DAI", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18},
		{Symbol: "OLD", Address: "0x0000000000000000000000000000000000000009", Decimals: 18, Tradable: boolPtr(false)},
	}
	secondary := []asset.SourceEntry{
		// same symbol, different data: primary wins
		{Symbol: "DAI", Address: "0x0000000000000000000000000000000000000001", Decimals: 8},
		// same address, different symbol: primary wins
		{Symbol: "SAI", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18},
		{Symbol: "BAT", Address: "0x0d8775f648430679a709e98d2b0cb6250d2887ef", Decimals: 18},
	}

	r, err := asset.NewRegistryFromSources(primary, secondary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dec, _ := r.Decimals("DAI")
	if dec != 18 {
		t.Errorf("DAI decimals = %d, primary should win", dec)
	}
	if _, err := r.Lookup("SAI"); err == nil {
		t.Error("SAI shares DAI's address and should be skipped")
	}
	if _, err := r.Lookup("BAT"); err != nil {
		t.Errorf("BAT should come from the secondary source: %v", err)
	}

	tradable := r.Tradable()
	want := []string{"BAT", "DAI"}
	if len(tradable) != len(want) || tradable[0] != want[0] || tradable[1] != want[1] {
		t.Errorf("Tradable = %v, want %v", tradable, want)
	}
	if r.Count() != 4 {
		t.Errorf("Count = %d, want 4 (ETH, DAI, OLD, BAT)", r.Count())
	}
}

func TestNewRegistryFromSources_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		primary []asset.SourceEntry
	}{
		{name: "empty", primary: nil},
		{name: "bad address", primary: []asset.SourceEntry{{Symbol: "X", Address: "nope", Decimals: 18}}},
		{name: "zero address", primary: []asset.SourceEntry{{Symbol: "X", Address: "0x0000000000000000000000000000000000000000", Decimals: 18}}},
		{name: "duplicate address", primary: []asset.SourceEntry{
			{Symbol: "A", Address: "0x0000000000000000000000000000000000000001", Decimals: 18},
			{Symbol: "B", Address: "0x0000000000000000000000000000000000000001", Decimals: 18},
		}},
		{name: "duplicate symbol", primary: []asset.SourceEntry{
			{Symbol: "A", Address: "0x0000000000000000000000000000000000000001", Decimals: 18},
			{Symbol: "a", Address: "0x0000000000000000000000000000000000000002", Decimals: 18},
		}},
		{name: "decimals", primary: []asset.SourceEntry{{Symbol: "X", Address: "0x0000000000000000000000000000000000000001", Decimals: 99}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := asset.NewRegistryFromSources(tt.primary, nil)
			if apperror.GetCode(err) != apperror.CodeConfigurationError {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := asset.DefaultRegistry()

	tests := []struct {
		addr    string
		symbol  string
		want    string
		wantErr bool
	}{
		{"0x6B175474E89094C44Da98b954EedeAC495271d0F", "", "DAI", false},
		{"0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee", "", "ETH", false},
		{"0x0000000000000000000000000000000000000000", "", "ETH", false},
		{"", "usdc", "USDC", false},
		{"0x1111111111111111111111111111111111111111", "DAI", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		a, err := r.Resolve(tt.addr, tt.symbol)
		if tt.wantErr {
			if !apperror.HasCode(err, apperror.CodeUnknownToken) {
				t.Errorf("Resolve(%q, %q) error = %v, want UnknownToken", tt.addr, tt.symbol, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Resolve(%q, %q) error = %v", tt.addr, tt.symbol, err)
			continue
		}
		if a.Symbol() != tt.want {
			t.Errorf("Resolve(%q, %q) = %s, want %s", tt.addr, tt.symbol, a.Symbol(), tt.want)
		}
	}
}
