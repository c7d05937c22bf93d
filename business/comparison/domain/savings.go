// Package domain contains the core domain types for the comparison context.
package domain

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/fd1az/savings-bench/internal/asset"
)

var hundred = decimal.NewFromInt(100)

// ErrZeroPrice is returned when either side of a comparison has no price.
var ErrZeroPrice = errors.New("comparison: zero price")

// PctSavings is 100 * (1 - primary / comparison). Both prices are source per
// destination, so a positive value means the primary was cheaper on either
// side.
func PctSavings(primary, comparison decimal.Decimal) (decimal.Decimal, error) {
	if !primary.IsPositive() || !comparison.IsPositive() {
		return decimal.Zero, ErrZeroPrice
	}
	return hundred.Sub(asset.Ratio(primary.Mul(hundred), comparison)), nil
}

// Verdict classifies a savings figure.
type Verdict string

const (
	VerdictPrimaryBetter    Verdict = "PRIMARY_BETTER"    // primary paid less per unit
	VerdictComparisonBetter Verdict = "COMPARISON_BETTER" // comparison venue paid less
	VerdictTie              Verdict = "TIE"
)

// VerdictOf returns the verdict for pct.
func VerdictOf(pct decimal.Decimal) Verdict {
	switch {
	case pct.IsPositive():
		return VerdictPrimaryBetter
	case pct.IsNegative():
		return VerdictComparisonBetter
	default:
		return VerdictTie
	}
}
