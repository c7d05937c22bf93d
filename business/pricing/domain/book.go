package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/asset"
)

// BookLevel is one order-book level: Price in quote units per base unit,
// Size in base units.
type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// WalkResult is the outcome of walking a book for a quote-denominated size.
type WalkResult struct {
	Base   decimal.Decimal // base units bought or sold
	Quote  decimal.Decimal // quote units spent or received
	Levels int             // levels touched
}

// VWAP returns quote per base.
func (w WalkResult) VWAP() decimal.Decimal {
	if w.Base.IsZero() {
		return decimal.Zero
	}
	return asset.Ratio(w.Quote, w.Base)
}

// ValidateBook checks that levels are positive and ordered best first:
// ascending prices for asks (buy), descending for bids (sell).
func ValidateBook(side Side, levels []BookLevel) error {
	for i, l := range levels {
		if !l.Price.IsPositive() || !l.Size.IsPositive() {
			return fmt.Errorf("level %d: non-positive price or size", i)
		}
		if i == 0 {
			continue
		}
		prev := levels[i-1].Price
		if side == SideBuy && l.Price.LessThan(prev) {
			return fmt.Errorf("asks not ascending at level %d", i)
		}
		if side == SideSell && l.Price.GreaterThan(prev) {
			return fmt.Errorf("bids not descending at level %d", i)
		}
	}
	return nil
}

// WalkBook consumes levels until tradeSize quote units are spent (buy, on
// asks) or received (sell, on bids). The last level is taken partially. A
// book too thin for tradeSize, or a fill under minQty base units, is
// QuoteUnavailable.
func WalkBook(venue string, side Side, tradeSize decimal.Decimal, levels []BookLevel, minQty decimal.Decimal) (WalkResult, error) {
	if !tradeSize.IsPositive() {
		return WalkResult{}, apperror.Malformed(venue, "trade size must be positive")
	}
	if err := ValidateBook(side, levels); err != nil {
		return WalkResult{}, apperror.New(apperror.CodeMalformedQuote,
			apperror.WithVenue(venue), apperror.WithContext("invalid order book: "+err.Error()))
	}

	remaining := tradeSize
	res := WalkResult{}
	for _, l := range levels {
		if !remaining.IsPositive() {
			break
		}
		notional := l.Price.Mul(l.Size)
		res.Levels++
		if notional.LessThanOrEqual(remaining) {
			res.Base = res.Base.Add(l.Size)
			res.Quote = res.Quote.Add(notional)
			remaining = remaining.Sub(notional)
			continue
		}
		res.Base = res.Base.Add(asset.Ratio(remaining, l.Price))
		res.Quote = res.Quote.Add(remaining)
		remaining = decimal.Zero
	}

	if remaining.IsPositive() {
		return WalkResult{}, apperror.New(apperror.CodeQuoteUnavailable,
			apperror.WithVenue(venue),
			apperror.WithContext(fmt.Sprintf("book covers %s of %s", res.Quote, tradeSize)),
			apperror.WithCause(apperror.New(apperror.CodeInsufficientLiquidity)))
	}
	if minQty.IsPositive() && res.Base.LessThan(minQty) {
		return WalkResult{}, apperror.Unavailable(venue,
			fmt.Sprintf("fill of %s below minimum quantity %s", res.Base, minQty), nil)
	}
	return res, nil
}
