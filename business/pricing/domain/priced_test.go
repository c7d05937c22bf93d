package domain

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/asset"
)

func TestNewPricedQuote_PriceIdentity(t *testing.T) {
	tests := []struct {
		name string
		src  string
		dst  string
	}{
		{"eth_for_dai", "1", "150"},
		{"multi_hop", "10", "1500"},
		{"tiny_price", "0.000000000000000001", "1000000000"},
		{"huge_price", "5000000000", "0.00000001"},
		{"odd_ratio", "3", "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := decimal.RequireFromString(tt.src)
			dst := decimal.RequireFromString(tt.dst)

			q, err := NewPricedQuote("X", DialectRival, "ETH", src, "DAI", dst, Fees{}, SingleVenueRoute("X"))
			if err != nil {
				t.Fatalf("NewPricedQuote() error = %v", err)
			}
			if err := q.Validate(); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}

			implied := src.DivRound(dst, asset.RatioPrecision)
			rel := q.Price.RelativeDiff(implied)
			if rel.GreaterThanOrEqual(PriceTolerance) {
				t.Errorf("relative diff %s >= %s", rel, PriceTolerance)
			}
			if q.Price.Pair() != "ETH/DAI" {
				t.Errorf("Pair() = %s", q.Price.Pair())
			}
		})
	}
}

func TestPricedQuote_Validate(t *testing.T) {
	good := func() *PricedQuote {
		q, err := NewPricedQuote("X", DialectRival, "ETH", decimal.NewFromInt(1), "DAI", decimal.NewFromInt(150),
			Fees{}, SingleVenueRoute("X"))
		if err != nil {
			t.Fatal(err)
		}
		return q
	}

	tests := []struct {
		name   string
		mutate func(q *PricedQuote)
	}{
		{"dest_changed_after_pricing", func(q *PricedQuote) { q.DestAmount = decimal.NewFromInt(149) }},
		{"zero_source", func(q *PricedQuote) { q.SourceAmount = decimal.Zero }},
		{"negative_dest", func(q *PricedQuote) { q.DestAmount = decimal.NewFromInt(-150) }},
		{"bad_split_sum", func(q *PricedQuote) { q.Route = Route{Split: Split{"X": decimal.NewFromInt(90)}} }},
		{"negative_share", func(q *PricedQuote) {
			q.Route = Route{Split: Split{"X": decimal.NewFromInt(110), "Y": decimal.NewFromInt(-10)}}
		}},
		{"empty_route", func(q *PricedQuote) { q.Route = Route{} }},
		{"advertised_rate_disagrees", func(q *PricedQuote) { q.Advertised = decimal.RequireFromString("0.0067") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := good()
			tt.mutate(q)
			err := q.Validate()
			if !apperror.HasCode(err, apperror.CodeMalformedQuote) {
				t.Errorf("Validate() error = %v, want MalformedQuote", err)
			}
		})
	}
}

func TestPricedQuote_AdvertisedRateAgrees(t *testing.T) {
	q, err := NewPricedQuote("0x", DialectRival, "ETH", decimal.NewFromInt(2), "DAI", decimal.NewFromInt(300),
		Fees{}, SingleVenueRoute("0x"))
	if err != nil {
		t.Fatal(err)
	}
	q.Advertised = asset.Ratio(decimal.NewFromInt(1), decimal.NewFromInt(150))
	if err := q.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestNewPricedQuote_ZeroDest(t *testing.T) {
	_, err := NewPricedQuote("X", DialectRival, "ETH", decimal.NewFromInt(1), "DAI", decimal.Zero, Fees{}, SingleVenueRoute("X"))
	if !apperror.HasCode(err, apperror.CodeMalformedQuote) {
		t.Errorf("error = %v, want MalformedQuote", err)
	}
}
