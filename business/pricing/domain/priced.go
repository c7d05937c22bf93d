package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/asset"
)

// PriceTolerance is the relative slack allowed between a quote's price and
// source/destination.
var PriceTolerance = decimal.New(1, -9)

// PricedQuote is a normalized quote: the real amounts the user would submit
// and receive, with the effective price in source per destination.
type PricedQuote struct {
	Venue        string
	Dialect      Dialect
	SourceToken  string
	SourceAmount decimal.Decimal
	DestToken    string
	DestAmount   decimal.Decimal
	Price        asset.Price
	Fees         Fees
	Route        Route
	// Advertised is a rate the venue stated next to its amounts. When set it
	// must agree with Price.
	Advertised decimal.Decimal
}

// NewPricedQuote prices a quote from its amounts.
func NewPricedQuote(venue string, dialect Dialect, srcToken string, srcAmount decimal.Decimal,
	dstToken string, dstAmount decimal.Decimal, fees Fees, route Route) (*PricedQuote, error) {
	price, err := asset.PriceFromAmounts(srcToken, dstToken, srcAmount, dstAmount)
	if err != nil {
		return nil, apperror.Malformed(venue, fmt.Sprintf("amounts %s/%s: %v", srcAmount, dstAmount, err))
	}
	return &PricedQuote{
		Venue:        venue,
		Dialect:      dialect,
		SourceToken:  srcToken,
		SourceAmount: srcAmount,
		DestToken:    dstToken,
		DestAmount:   dstAmount,
		Price:        price,
		Fees:         fees,
		Route:        route,
	}, nil
}

// Validate runs the integrity checks: positive amounts, price identity
// against the amounts and any advertised rate, and a well-formed route.
func (q *PricedQuote) Validate() error {
	if !q.SourceAmount.IsPositive() || !q.DestAmount.IsPositive() {
		return apperror.Malformed(q.Venue, fmt.Sprintf("non-positive amounts %s -> %s", q.SourceAmount, q.DestAmount))
	}
	implied := asset.Ratio(q.SourceAmount, q.DestAmount)
	if q.Price.IsZero() || q.Price.RelativeDiff(implied).GreaterThanOrEqual(PriceTolerance) {
		return apperror.Malformed(q.Venue, fmt.Sprintf("price %s disagrees with %s/%s", q.Price.Rate(), q.SourceAmount, q.DestAmount))
	}
	if !q.Advertised.IsZero() && q.Price.RelativeDiff(q.Advertised).GreaterThanOrEqual(PriceTolerance) {
		return apperror.Malformed(q.Venue, fmt.Sprintf("advertised price %s disagrees with %s", q.Advertised, q.Price.Rate()))
	}
	if err := q.Route.Validate(); err != nil {
		return apperror.Malformed(q.Venue, "route: "+err.Error())
	}
	return nil
}
