package asset

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RatioPrecision is the number of decimal places kept when dividing real
// amounts. It keeps relative error far below 1e-9 for tiny prices.
const RatioPrecision = 36

var hundred = decimal.NewFromInt(100)

// Ratio divides num by den at RatioPrecision. Panics on a zero den.
func Ratio(num, den decimal.Decimal) decimal.Decimal {
	return num.DivRound(den, RatioPrecision)
}

// Price is an effective rate in source units paid per destination unit.
type Price struct {
	rate   decimal.Decimal
	source string
	dest   string
}

// NewPrice creates a price from a rate.
func NewPrice(source, dest string, rate decimal.Decimal) Price {
	if rate.IsNegative() {
		panic("asset: negative price rate")
	}
	return Price{rate: rate, source: source, dest: dest}
}

// PriceFromAmounts returns sourceAmount / destAmount.
func PriceFromAmounts(source, dest string, sourceAmount, destAmount decimal.Decimal) (Price, error) {
	if !destAmount.IsPositive() {
		return Price{}, ErrDivisionByZero
	}
	if sourceAmount.IsNegative() {
		return Price{}, ErrNegativeAmount
	}
	return NewPrice(source, dest, Ratio(sourceAmount, destAmount)), nil
}

func (p Price) Rate() decimal.Decimal {
	return p.rate
}

func (p Price) Source() string {
	return p.source
}

func (p Price) Dest() string {
	return p.dest
}

// Pair renders the price unit, e.g. "ETH/DAI" for ETH paid per DAI.
func (p Price) Pair() string {
	return fmt.Sprintf("%s/%s", p.source, p.dest)
}

func (p Price) IsZero() bool {
	return p.rate.IsZero()
}

// Invert returns destination units per source unit.
func (p Price) Invert() Price {
	if p.IsZero() {
		return Price{rate: decimal.Zero, source: p.dest, dest: p.source}
	}
	return Price{rate: Ratio(decimal.NewFromInt(1), p.rate), source: p.dest, dest: p.source}
}

// WithFee scales the rate by (1 + pct/100).
func (p Price) WithFee(pct decimal.Decimal) Price {
	return Price{rate: p.rate.Mul(decimal.NewFromInt(1).Add(pct.Div(hundred))), source: p.source, dest: p.dest}
}

// RelativeDiff returns |p - other| / p. A zero price yields zero only when
// other is zero too.
func (p Price) RelativeDiff(other decimal.Decimal) decimal.Decimal {
	if p.rate.IsZero() {
		if other.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(1)
	}
	return Ratio(p.rate.Sub(other).Abs(), p.rate)
}

func (p Price) String() string {
	return fmt.Sprintf("%s %s", p.rate.String(), p.Pair())
}
