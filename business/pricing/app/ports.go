// Package app contains application services and port definitions for the pricing context.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fd1az/savings-bench/business/pricing/domain"
	"github.com/fd1az/savings-bench/internal/apperror"
)

// Kind classifies a venue.
type Kind string

const (
	KindAggregator Kind = "aggregator"
	KindDEX        Kind = "dex"
	KindCEXBook    Kind = "cex_book"
)

// Directions is the set of amount directions a venue can be quoted in.
type Directions uint8

const (
	// DirectionFrom means the source amount can be fixed.
	DirectionFrom Directions = 1 << iota
	// DirectionTo means the destination amount can be fixed.
	DirectionTo

	BothDirections = DirectionFrom | DirectionTo
)

// Supports reports whether every direction in want is in d.
func (d Directions) Supports(want Directions) bool {
	return d&want == want
}

func (d Directions) String() string {
	switch d {
	case DirectionFrom:
		return "from_amount"
	case DirectionTo:
		return "to_amount"
	case BothDirections:
		return "from_amount|to_amount"
	default:
		return "none"
	}
}

// Constraint narrows a quote to one venue-side option. An empty Exchange
// means no constraint.
type Constraint struct {
	Exchange string // DEX to whitelist inside an aggregator
}

// IsZero reports whether the constraint is empty.
func (c Constraint) IsZero() bool {
	return c.Exchange == ""
}

// QuoteRequest asks for a swap of From into To. Exactly one of FromAmount
// and ToAmount is set; both are real amounts.
type QuoteRequest struct {
	From       string
	To         string
	FromAmount *decimal.Decimal
	ToAmount   *decimal.Decimal
	Constraint Constraint
}

// BuyRequest fixes the source amount.
func BuyRequest(from, to string, amount decimal.Decimal) QuoteRequest {
	return QuoteRequest{From: from, To: to, FromAmount: &amount}
}

// SellRequest fixes the destination amount.
func SellRequest(from, to string, amount decimal.Decimal) QuoteRequest {
	return QuoteRequest{From: from, To: to, ToAmount: &amount}
}

// WithExchange returns a copy of r whitelisting exchange.
func (r QuoteRequest) WithExchange(exchange string) QuoteRequest {
	r.Constraint = Constraint{Exchange: exchange}
	return r
}

// Direction is DirectionFrom when FromAmount is set and DirectionTo when
// ToAmount is set.
func (r QuoteRequest) Direction() Directions {
	switch {
	case r.FromAmount != nil && r.ToAmount == nil:
		return DirectionFrom
	case r.ToAmount != nil && r.FromAmount == nil:
		return DirectionTo
	default:
		return 0
	}
}

// Side is buy when the source amount is fixed and sell otherwise.
func (r QuoteRequest) Side() domain.Side {
	if r.Direction() == DirectionFrom {
		return domain.SideBuy
	}
	return domain.SideSell
}

// Amount returns whichever amount is set.
func (r QuoteRequest) Amount() decimal.Decimal {
	if r.FromAmount != nil {
		return *r.FromAmount
	}
	if r.ToAmount != nil {
		return *r.ToAmount
	}
	return decimal.Zero
}

// Validate checks the request against what venue accepts. Setting both or
// neither amount, or a direction outside supported, is
// AmountDirectionUnsupported.
func (r QuoteRequest) Validate(venue string, supported Directions) error {
	dir := r.Direction()
	if dir == 0 {
		return apperror.DirectionUnsupported(venue, "exactly one of from_amount and to_amount must be set")
	}
	if !supported.Supports(dir) {
		return apperror.DirectionUnsupported(venue, dir.String()+" not accepted, venue supports "+supported.String())
	}
	if r.From == "" || r.To == "" || r.From == r.To {
		return apperror.New(apperror.CodeInvalidInput, apperror.WithVenue(venue),
			apperror.WithContext("invalid pair "+r.From+"->"+r.To))
	}
	if !r.Amount().IsPositive() {
		return apperror.New(apperror.CodeInvalidInput, apperror.WithVenue(venue),
			apperror.WithContext("amount must be positive"))
	}
	return nil
}

// QuoteAdapter is a venue the engine can quote. GetQuote returns the venue's
// payload in its own dialect. Ordinary refusals (no liquidity, rate limited
// after retries, timeouts) are QuoteUnavailable; malformed or 5xx responses
// after retries are VenueInternalError.
type QuoteAdapter interface {
	Name() string
	Kind() Kind
	FeePct() decimal.Decimal
	Directions() Directions
	GetQuote(ctx context.Context, req QuoteRequest) (domain.RawQuote, error)
}

// BookAdapter is a CEX venue that also exposes its order book. Bids are in
// descending and asks in ascending price order, both in real amounts.
type BookAdapter interface {
	QuoteAdapter
	GetDepth(ctx context.Context, base, quote string) (bids, asks []domain.BookLevel, err error)
}

// WhitelistAdapter is an aggregator that can be restricted to one DEX.
type WhitelistAdapter interface {
	QuoteAdapter
	// Exchanges lists the DEX names the aggregator accepts in a whitelist.
	Exchanges(ctx context.Context) ([]string, error)
}

// Venue is the static description of an adapter.
type Venue struct {
	Name       string
	Kind       Kind
	FeePct     decimal.Decimal
	Directions Directions
}

// Describe returns a's metadata.
func Describe(a QuoteAdapter) Venue {
	return Venue{Name: a.Name(), Kind: a.Kind(), FeePct: a.FeePct(), Directions: a.Directions()}
}
