// Package di contains dependency injection tokens for the pricing context.
package di

import (
	"github.com/fd1az/savings-bench/business/pricing/app"
	"github.com/fd1az/savings-bench/business/pricing/domain"
	"github.com/fd1az/savings-bench/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Normalizer       = di.NewToken[*app.Normalizer]("pricing.Normalizer")
	PrimaryAdapter   = di.NewToken[app.WhitelistAdapter]("pricing.PrimaryAdapter")
	ComparisonVenues = di.NewToken[[]app.QuoteAdapter]("pricing.ComparisonVenues")
)

// Private dependency tokens - internal to pricing module
var (
	ExchangeNames = di.NewToken[*domain.ExchangeNameMap]("pricing:exchangeNames")
)

// Helper functions for type-safe access
func GetNormalizer(c di.ServiceRegistry) *app.Normalizer {
	return di.GetToken(c, Normalizer)
}

func GetPrimaryAdapter(c di.ServiceRegistry) app.WhitelistAdapter {
	return di.GetToken(c, PrimaryAdapter)
}

func GetComparisonVenues(c di.ServiceRegistry) []app.QuoteAdapter {
	return di.GetToken(c, ComparisonVenues)
}

func GetExchangeNames(c di.ServiceRegistry) *domain.ExchangeNameMap {
	return di.GetToken(c, ExchangeNames)
}
