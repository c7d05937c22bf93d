// Package domain contains the quote model of the pricing context: the raw
// payload dialects venues emit, the normalized PricedQuote, routes and the
// order-book walk.
package domain

import (
	"github.com/shopspring/decimal"
)

// Side is whether the trade size is spent in the quote asset (buy) or
// received in it (sell).
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is buy or sell.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// FeeCharge is a fee in one token. Pct is in percent; either field may be
// zero when the venue does not report it.
type FeeCharge struct {
	Token  string
	Amount decimal.Decimal
	Pct    decimal.Decimal
}

// Fraction returns Pct / 100.
func (f FeeCharge) Fraction() decimal.Decimal {
	return f.Pct.Div(hundred)
}

// Fees is the fee breakdown of a quote. Absent fees are nil.
type Fees struct {
	Exchange   *FeeCharge
	Aggregator *FeeCharge
	Partner    *FeeCharge
}

// Dialect tags the payload shape of a RawQuote.
type Dialect string

const (
	DialectSingleTrade  Dialect = "single_trade"
	DialectMultiHop     Dialect = "multi_hop"
	DialectRival        Dialect = "rival"
	DialectDexWhitelist Dialect = "dex_whitelist"
	DialectCexWalk      Dialect = "cex_walk"
)

// RawQuote is a venue response in its native shape. Adapters build the
// concrete variant; the normalizer dispatches on Dialect.
type RawQuote interface {
	Dialect() Dialect
	VenueName() string
}

// Order is one fill of an aggregator trade on one DEX. Amounts are real.
type Order struct {
	Exchange     string
	SourceAmount decimal.Decimal
	DestAmount   decimal.Decimal
	Fee          *FeeCharge
}

// Trade is one hop of an aggregator route.
type Trade struct {
	SourceToken  string
	DestToken    string
	SourceAmount decimal.Decimal
	DestAmount   decimal.Decimal
	Orders       []Order
}

// Summary is an aggregator's own account of a swap. Its amounts include the
// aggregator fee.
type Summary struct {
	SourceToken  string
	SourceAmount decimal.Decimal
	DestToken    string
	DestAmount   decimal.Decimal
	Fees         Fees
	Trades       []Trade
}

// SingleTradeAgg is a primary aggregator quote routed in one hop.
type SingleTradeAgg struct {
	Venue   string
	Summary Summary
}

func (SingleTradeAgg) Dialect() Dialect    { return DialectSingleTrade }
func (q SingleTradeAgg) VenueName() string { return q.Venue }

// MultiHopAgg is a primary aggregator quote routed through intermediate
// tokens.
type MultiHopAgg struct {
	Venue   string
	Summary Summary
}

func (MultiHopAgg) Dialect() Dialect    { return DialectMultiHop }
func (q MultiHopAgg) VenueName() string { return q.Venue }

// DexWhitelist is a primary aggregator quote restricted to one DEX. Side is
// buy when the source amount was fixed and sell when the destination was.
type DexWhitelist struct {
	Venue    string
	Exchange string
	Side     Side
	Summary  Summary
}

func (DexWhitelist) Dialect() Dialect    { return DialectDexWhitelist }
func (q DexWhitelist) VenueName() string { return q.Venue }

// RivalHop is one hop of a rival aggregator route with percent shares.
type RivalHop struct {
	From  string
	To    string
	Parts []Weight
}

// RivalAgg is a quote from another aggregator or a single DEX. Amounts
// already include the venue's fees. No hops means the venue itself is the
// whole route.
type RivalAgg struct {
	Venue        string
	SourceToken  string
	SourceAmount decimal.Decimal
	DestToken    string
	DestAmount   decimal.Decimal
	Hops         []RivalHop
	Fees         Fees
	// AdvertisedPrice is the venue's own source-per-destination rate, zero
	// when it reports none.
	AdvertisedPrice decimal.Decimal
}

func (RivalAgg) Dialect() Dialect    { return DialectRival }
func (q RivalAgg) VenueName() string { return q.Venue }

// CexWalk is an order-book snapshot to be walked for TradeSize units of the
// quote asset. Levels are asks for a buy and bids for a sell, in base units
// priced in quote units.
type CexWalk struct {
	Venue       string
	Side        Side
	Base        string
	Quote       string
	TradeSize   decimal.Decimal
	Levels      []BookLevel
	TakerFeePct decimal.Decimal
	MinQty      decimal.Decimal
}

func (CexWalk) Dialect() Dialect    { return DialectCexWalk }
func (q CexWalk) VenueName() string { return q.Venue }
