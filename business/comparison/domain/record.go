package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	pricingDomain "github.com/fd1az/savings-bench/business/pricing/domain"
)

// Cell is one point of the experiment matrix. TradeSize is always in Quote
// units.
type Cell struct {
	Base      string
	Quote     string
	TradeSize decimal.Decimal
	Side      pricingDomain.Side
}

// From is the token the user gives up: the quote asset on a buy, the base on
// a sell.
func (c Cell) From() string {
	if c.Side == pricingDomain.SideSell {
		return c.Base
	}
	return c.Quote
}

// To is the token the user receives.
func (c Cell) To() string {
	if c.Side == pricingDomain.SideSell {
		return c.Quote
	}
	return c.Base
}

func (c Cell) String() string {
	return fmt.Sprintf("%s %s %s/%s", c.Side, c.TradeSize, c.Base, c.Quote)
}

// SavingsRecord compares one venue against the primary for one cell.
type SavingsRecord struct {
	RunID        string
	Time         time.Time
	Side         pricingDomain.Side
	TradeSize    decimal.Decimal
	Base         string
	Quote        string
	Venue        string
	VenuePrice   decimal.Decimal
	PrimaryPrice decimal.Decimal
	PrimaryRoute pricingDomain.Route
	VenueRoute   pricingDomain.Route
	PctSavings   decimal.Decimal
}

// Columns is the fixed column order of a serialized record.
var Columns = []string{
	"time", "side", "trade_size", "base", "quote", "venue",
	"venue_price", "primary_price", "primary_route", "venue_route", "pct_savings",
}

// Row renders the record in Columns order. Time is UTC with seconds
// precision; decimals keep full precision.
func (r SavingsRecord) Row() []string {
	return []string{
		r.Time.UTC().Truncate(time.Second).Format(time.RFC3339),
		string(r.Side),
		r.TradeSize.String(),
		r.Base,
		r.Quote,
		r.Venue,
		r.VenuePrice.String(),
		r.PrimaryPrice.String(),
		r.PrimaryRoute.String(),
		r.VenueRoute.String(),
		r.PctSavings.String(),
	}
}

// Verdict classifies the record's savings.
func (r SavingsRecord) Verdict() Verdict {
	return VerdictOf(r.PctSavings)
}
