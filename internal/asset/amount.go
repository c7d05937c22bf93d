package asset

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrNilAsset       = errors.New("asset: nil asset")
	ErrNilRaw         = errors.New("asset: nil raw value")
	ErrNegativeAmount = errors.New("asset: negative amount")
	ErrDivisionByZero = errors.New("asset: division by zero")
)

// Amount is a token quantity in integer units, the form venues put on the
// wire. Real amounts are decimal.Decimal; Amount only exists at the boundary.
type Amount struct {
	units *big.Int
	token *Asset
}

// NewAmount copies units. A nil token, nil units or negative units is a
// programming error and panics.
func NewAmount(token *Asset, units *big.Int) Amount {
	switch {
	case token == nil:
		panic(ErrNilAsset)
	case units == nil:
		panic(ErrNilRaw)
	case units.Sign() < 0:
		panic(ErrNegativeAmount)
	}
	return Amount{units: new(big.Int).Set(units), token: token}
}

// FromReal scales real by 10^decimals and drops the fraction.
func FromReal(token *Asset, real decimal.Decimal) (Amount, error) {
	if token == nil {
		return Amount{}, ErrNilAsset
	}
	if real.Sign() < 0 {
		return Amount{}, ErrNegativeAmount
	}
	return NewAmount(token, real.Shift(int32(token.Decimals())).Truncate(0).BigInt()), nil
}

// ParseString is FromReal on a decimal string.
func ParseString(token *Asset, s string) (Amount, error) {
	real, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("asset: parse %q: %w", s, err)
	}
	return FromReal(token, real)
}

func (a Amount) Raw() *big.Int {
	if a.units == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.units)
}

func (a Amount) Asset() *Asset { return a.token }
func (a Amount) IsZero() bool  { return a.units == nil || a.units.Sign() == 0 }

// ToDecimal is units / 10^decimals, exact.
func (a Amount) ToDecimal() decimal.Decimal {
	if a.units == nil || a.token == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(a.units, -int32(a.token.Decimals()))
}

func (a Amount) String() string {
	if a.token == nil {
		return a.ToDecimal().String()
	}
	return a.ToDecimal().String() + " " + a.token.Symbol()
}
