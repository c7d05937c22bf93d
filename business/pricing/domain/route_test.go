package domain

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fd1az/savings-bench/internal/apperror"
)

func w(name, value string) Weight {
	return Weight{Exchange: name, Value: decimal.RequireFromString(value)}
}

func TestSplitFromAmounts(t *testing.T) {
	names := DefaultExchangeNameMap()

	tests := []struct {
		name     string
		weights  []Weight
		want     string
		wantCode apperror.Code
	}{
		{
			name:    "single_dex",
			weights: []Weight{w("KYBER", "3.5")},
			want:    "{Kyber: 100}",
		},
		{
			name:    "two_dexes_sorted",
			weights: []Weight{w("UNISWAP_V2", "6"), w("Curve.fi", "4")},
			want:    "{Curve: 40, Uniswap V2: 60}",
		},
		{
			name:    "same_spelling_summed",
			weights: []Weight{w("KYBER", "1"), w("Uniswap", "2"), w("KYBER", "1")},
			want:    "{Kyber: 50, Uniswap: 50}",
		},
		{
			name:    "zero_dropped",
			weights: []Weight{w("KYBER", "1"), w("Bancor", "0")},
			want:    "{Kyber: 100}",
		},
		{
			name:    "thirds_rounded_in_display",
			weights: []Weight{w("A", "1"), w("B", "1"), w("C", "1")},
			want:    "{A: 33.3333, B: 33.3333, C: 33.3333}",
		},
		{
			name:     "two_spellings_collide",
			weights:  []Weight{w("KYBER", "1"), w("Kyber Network", "1")},
			wantCode: apperror.CodeMalformedQuote,
		},
		{
			name:     "no_volume",
			weights:  []Weight{w("KYBER", "0")},
			wantCode: apperror.CodeMalformedQuote,
		},
		{
			name:     "negative",
			weights:  []Weight{w("KYBER", "-1")},
			wantCode: apperror.CodeMalformedQuote,
		},
		{
			name:     "unnamed",
			weights:  []Weight{w("  ", "1")},
			wantCode: apperror.CodeMalformedQuote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := SplitFromAmounts(names, "Primary", tt.weights)
			if tt.wantCode != "" {
				if apperror.GetCode(err) != tt.wantCode {
					t.Fatalf("error = %v, want %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitFromAmounts() error = %v", err)
			}
			if got := s.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if err := s.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestSplitFromShares(t *testing.T) {
	names := DefaultExchangeNameMap()

	tests := []struct {
		name    string
		shares  []Weight
		want    string
		wantErr bool
	}{
		{"exact", []Weight{w("UNISWAP_V2", "70"), w("SUSHI", "30")}, "{SushiSwap: 30, Uniswap V2: 70}", false},
		{"within_tolerance", []Weight{w("A", "60"), w("B", "40.15")}, "{A: 60, B: 40.15}", false},
		{"outside_tolerance", []Weight{w("A", "60"), w("B", "40.3")}, "", true},
		{"short", []Weight{w("A", "50")}, "", true},
		{"empty", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := SplitFromShares(names, "1inch", tt.shares)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SplitFromShares() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if apperror.GetCode(err) != apperror.CodeMalformedQuote {
					t.Errorf("code = %s", apperror.GetCode(err))
				}
				return
			}
			if got := s.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRoute_String(t *testing.T) {
	tests := []struct {
		name  string
		route Route
		want  string
	}{
		{"single_venue", SingleVenueRoute("Kyber"), "{Kyber: 100}"},
		{
			name: "nested_sorted_labels",
			route: Route{Hops: map[string]Split{
				HopLabel("DAI", "PAX"): {"Curve": decimal.NewFromInt(60), "Oasis": decimal.NewFromInt(40)},
				HopLabel("ETH", "DAI"): {"Uniswap": decimal.NewFromInt(100)},
			}},
			want: "{DAI/ETH: {Uniswap: 100}, PAX/DAI: {Curve: 60, Oasis: 40}}",
		},
		{"empty", Route{}, "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.route.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRoute_ValidateAndExchanges(t *testing.T) {
	r := Route{Hops: map[string]Split{
		"DAI/ETH": {"Uniswap": decimal.NewFromInt(100)},
		"PAX/DAI": {"Curve": decimal.NewFromInt(60), "Uniswap": decimal.NewFromInt(40)},
	}}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !r.IsNested() || r.IsZero() {
		t.Error("nested route misclassified")
	}

	got := r.Exchanges()
	want := []string{"Curve", "Uniswap"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Exchanges() = %v, want %v", got, want)
	}

	r.Hops["PAX/DAI"]["Curve"] = decimal.NewFromInt(10)
	if err := r.Validate(); err == nil {
		t.Error("Validate() accepted a hop summing to 50")
	}

	if err := (Route{}).Validate(); err == nil {
		t.Error("Validate() accepted an empty route")
	}
}
