package app

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fd1az/savings-bench/business/pricing/domain"
	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/asset"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Normalizer turns venue payloads into PricedQuotes. It holds no state
// besides the read-only name map and is safe for concurrent use.
type Normalizer struct {
	names *domain.ExchangeNameMap
}

// NewNormalizer creates a Normalizer. A nil map uses the built-in aliases.
func NewNormalizer(names *domain.ExchangeNameMap) *Normalizer {
	if names == nil {
		names = domain.DefaultExchangeNameMap()
	}
	return &Normalizer{names: names}
}

// Names returns the exchange name map.
func (n *Normalizer) Names() *domain.ExchangeNameMap {
	return n.names
}

// Normalize prices raw and runs the integrity checks. Any inconsistency is
// MalformedQuote.
func (n *Normalizer) Normalize(raw domain.RawQuote) (*domain.PricedQuote, error) {
	if raw == nil {
		return nil, apperror.Malformed("", "nil quote")
	}

	var (
		q   *domain.PricedQuote
		err error
	)
	switch v := raw.(type) {
	case domain.SingleTradeAgg:
		q, err = n.singleTrade(v)
	case domain.MultiHopAgg:
		q, err = n.multiHop(v)
	case domain.DexWhitelist:
		q, err = n.whitelist(v)
	case domain.RivalAgg:
		q, err = n.rival(v)
	case domain.CexWalk:
		q, err = n.cexWalk(v)
	default:
		return nil, apperror.Malformed(raw.VenueName(), fmt.Sprintf("unsupported dialect %q", raw.Dialect()))
	}
	if err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// singleTrade uses the summary as-is; the route tallies order source amounts
// per DEX.
func (n *Normalizer) singleTrade(v domain.SingleTradeAgg) (*domain.PricedQuote, error) {
	s := v.Summary
	if len(s.Trades) != 1 {
		return nil, apperror.Malformed(v.Venue, fmt.Sprintf("single-trade quote carries %d trades", len(s.Trades)))
	}
	route, err := n.summaryRoute(v.Venue, s)
	if err != nil {
		return nil, err
	}
	return domain.NewPricedQuote(v.Venue, v.Dialect(), s.SourceToken, s.SourceAmount,
		s.DestToken, s.DestAmount, s.Fees, route)
}

// multiHop uses the summary as-is, so a fee charged in an intermediate token
// is already reflected in the summary destination.
func (n *Normalizer) multiHop(v domain.MultiHopAgg) (*domain.PricedQuote, error) {
	s := v.Summary
	if len(s.Trades) == 0 {
		return nil, apperror.Malformed(v.Venue, "multi-hop quote without trades")
	}
	route, err := n.hopRoute(v.Venue, s.Trades)
	if err != nil {
		return nil, err
	}
	return domain.NewPricedQuote(v.Venue, v.Dialect(), s.SourceToken, s.SourceAmount,
		s.DestToken, s.DestAmount, s.Fees, route)
}

// whitelist removes the aggregator's fee, which the user would not pay
// trading on the DEX directly.
func (n *Normalizer) whitelist(v domain.DexWhitelist) (*domain.PricedQuote, error) {
	s := v.Summary
	if len(s.Trades) == 0 {
		return nil, apperror.Malformed(v.Venue, "whitelist quote without trades")
	}
	if !v.Side.Valid() {
		return nil, apperror.Malformed(v.Venue, fmt.Sprintf("whitelist quote with side %q", v.Side))
	}

	route, err := n.summaryRoute(v.Venue, s)
	if err != nil {
		return nil, err
	}
	dex := n.names.Canonical(v.Exchange)
	for _, name := range route.Exchanges() {
		if name != dex {
			return nil, apperror.Malformed(v.Venue, fmt.Sprintf("whitelisted %s but routed through %s", dex, name))
		}
	}

	src, dst, err := removeAggregatorFee(v.Venue, v.Side, s)
	if err != nil {
		return nil, err
	}

	fees := s.Fees
	fees.Aggregator = nil
	return domain.NewPricedQuote(dex, v.Dialect(), s.SourceToken, src, s.DestToken, dst, fees, route)
}

// removeAggregatorFee adjusts summary amounts by direction and fee
// denomination:
//
//	buy,  fee in destination:  dst - fee
//	buy,  fee in intermediate: dst / (1 - pct)
//	buy,  fee in source:       src - fee
//	sell, any denomination:    src * (1 - pct)
func removeAggregatorFee(venue string, side domain.Side, s domain.Summary) (src, dst decimal.Decimal, err error) {
	src, dst = s.SourceAmount, s.DestAmount
	fee := s.Fees.Aggregator
	if fee == nil || (fee.Amount.IsZero() && fee.Pct.IsZero()) {
		return src, dst, nil
	}
	if fee.Amount.IsNegative() || fee.Pct.IsNegative() || fee.Pct.GreaterThanOrEqual(hundred) {
		return src, dst, apperror.Malformed(venue, fmt.Sprintf("aggregator fee %s (%s%%)", fee.Amount, fee.Pct))
	}

	inSource := sameToken(fee.Token, s.SourceToken)
	inDest := sameToken(fee.Token, s.DestToken)

	// amountOf resolves the fee amount in the denominating summary amount.
	amountOf := func(base decimal.Decimal) decimal.Decimal {
		if !fee.Amount.IsZero() {
			return fee.Amount
		}
		return base.Mul(fee.Fraction())
	}
	// fractionOf resolves the fee fraction relative to base.
	fractionOf := func(base decimal.Decimal) (decimal.Decimal, error) {
		if !fee.Pct.IsZero() {
			return fee.Fraction(), nil
		}
		if base.IsZero() {
			return decimal.Zero, apperror.Malformed(venue, "fee fraction of a zero amount")
		}
		return asset.Ratio(fee.Amount, base), nil
	}

	switch side {
	case domain.SideBuy:
		switch {
		case inDest:
			dst = dst.Sub(amountOf(dst))
		case inSource:
			src = src.Sub(amountOf(src))
		default:
			if fee.Pct.IsZero() {
				return src, dst, apperror.Malformed(venue,
					fmt.Sprintf("fee in intermediate token %s without a percentage", fee.Token))
			}
			dst = asset.Ratio(dst, one.Sub(fee.Fraction()))
		}
	case domain.SideSell:
		var frac decimal.Decimal
		switch {
		case inSource:
			frac, err = fractionOf(src)
		case inDest:
			frac, err = fractionOf(dst)
		default:
			if fee.Pct.IsZero() {
				err = apperror.Malformed(venue,
					fmt.Sprintf("fee in intermediate token %s without a percentage", fee.Token))
			}
			frac = fee.Fraction()
		}
		if err != nil {
			return src, dst, err
		}
		src = src.Mul(one.Sub(frac))
	}

	if !src.IsPositive() || !dst.IsPositive() {
		return src, dst, apperror.Malformed(venue, fmt.Sprintf("fee removal left %s -> %s", src, dst))
	}
	return src, dst, nil
}

// rival keeps the venue's amounts; its fees are already folded in.
func (n *Normalizer) rival(v domain.RivalAgg) (*domain.PricedQuote, error) {
	var route domain.Route
	switch len(v.Hops) {
	case 0:
		route = domain.SingleVenueRoute(n.names.Canonical(v.Venue))
	case 1:
		split, err := domain.SplitFromShares(n.names, v.Venue, v.Hops[0].Parts)
		if err != nil {
			return nil, err
		}
		route = domain.Route{Split: split}
	default:
		hops, err := n.rivalHops(v)
		if err != nil {
			return nil, err
		}
		route = domain.Route{Hops: hops}
	}
	q, err := domain.NewPricedQuote(v.Venue, v.Dialect(), v.SourceToken, v.SourceAmount,
		v.DestToken, v.DestAmount, v.Fees, route)
	if err != nil {
		return nil, err
	}
	q.Advertised = v.AdvertisedPrice
	return q, nil
}

// rivalHops builds one split per hop label. Parts of a label seen once are
// shares; a label repeated across parallel paths is merged and renormalized.
func (n *Normalizer) rivalHops(v domain.RivalAgg) (map[string]domain.Split, error) {
	parts := make(map[string][]domain.Weight, len(v.Hops))
	seen := make(map[string]int, len(v.Hops))
	for _, h := range v.Hops {
		label := domain.HopLabel(h.From, h.To)
		parts[label] = append(parts[label], h.Parts...)
		seen[label]++
	}

	hops := make(map[string]domain.Split, len(parts))
	for label, ws := range parts {
		var (
			s   domain.Split
			err error
		)
		if seen[label] > 1 {
			s, err = domain.SplitFromAmounts(n.names, v.Venue, ws)
		} else {
			s, err = domain.SplitFromShares(n.names, v.Venue, ws)
		}
		if err != nil {
			return nil, apperror.Malformed(v.Venue, fmt.Sprintf("hop %s: %v", label, err))
		}
		hops[label] = s
	}
	return hops, nil
}

// cexWalk walks the book and folds the taker fee into the amounts so that
// source/destination equals VWAP * (1 + fee).
func (n *Normalizer) cexWalk(v domain.CexWalk) (*domain.PricedQuote, error) {
	if !v.Side.Valid() {
		return nil, apperror.Malformed(v.Venue, fmt.Sprintf("book walk with side %q", v.Side))
	}
	walk, err := domain.WalkBook(v.Venue, v.Side, v.TradeSize, v.Levels, v.MinQty)
	if err != nil {
		return nil, err
	}

	feeFactor := one.Add(v.TakerFeePct.Div(hundred))
	fees := domain.Fees{}
	route := domain.SingleVenueRoute(n.names.Canonical(v.Venue))

	if v.Side == domain.SideBuy {
		// quote spent, base received net of fee
		dst := asset.Ratio(walk.Base, feeFactor)
		if v.TakerFeePct.IsPositive() {
			fees.Exchange = &domain.FeeCharge{Token: v.Base, Amount: walk.Base.Sub(dst), Pct: v.TakerFeePct}
		}
		return domain.NewPricedQuote(v.Venue, v.Dialect(), v.Quote, walk.Quote, v.Base, dst, fees, route)
	}

	// base given up including fee, quote received
	src := walk.Base.Mul(feeFactor)
	if v.TakerFeePct.IsPositive() {
		fees.Exchange = &domain.FeeCharge{Token: v.Base, Amount: src.Sub(walk.Base), Pct: v.TakerFeePct}
	}
	return domain.NewPricedQuote(v.Venue, v.Dialect(), v.Base, src, v.Quote, walk.Quote, fees, route)
}

// summaryRoute is a flat split for one trade and per-hop splits otherwise.
func (n *Normalizer) summaryRoute(venue string, s domain.Summary) (domain.Route, error) {
	if len(s.Trades) == 1 {
		split, err := domain.SplitFromAmounts(n.names, venue, orderWeights(s.Trades[0]))
		if err != nil {
			return domain.Route{}, err
		}
		return domain.Route{Split: split}, nil
	}
	return n.hopRoute(venue, s.Trades)
}

// hopRoute tallies each trade under "<dst>/<src>". Trades sharing a label
// contribute to one split.
func (n *Normalizer) hopRoute(venue string, trades []domain.Trade) (domain.Route, error) {
	weights := make(map[string][]domain.Weight, len(trades))
	for _, t := range trades {
		if t.SourceToken == "" || t.DestToken == "" {
			return domain.Route{}, apperror.Malformed(venue, "trade without tokens")
		}
		label := domain.HopLabel(t.SourceToken, t.DestToken)
		weights[label] = append(weights[label], orderWeights(t)...)
	}

	hops := make(map[string]domain.Split, len(weights))
	for label, ws := range weights {
		s, err := domain.SplitFromAmounts(n.names, venue, ws)
		if err != nil {
			return domain.Route{}, apperror.Malformed(venue, fmt.Sprintf("hop %s: %v", label, err))
		}
		hops[label] = s
	}
	return domain.Route{Hops: hops}, nil
}

func orderWeights(t domain.Trade) []domain.Weight {
	ws := make([]domain.Weight, 0, len(t.Orders))
	for _, o := range t.Orders {
		ws = append(ws, domain.Weight{Exchange: o.Exchange, Value: o.SourceAmount})
	}
	return ws
}

func sameToken(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
