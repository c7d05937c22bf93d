// Package pricing implements the pricing bounded context: venue adapters and
// the normalizer that turns their quotes into comparable prices.
package pricing

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/fd1az/savings-bench/business/pricing/app"
	pricingDI "github.com/fd1az/savings-bench/business/pricing/di"
	"github.com/fd1az/savings-bench/business/pricing/domain"
	"github.com/fd1az/savings-bench/business/pricing/infra/aggregator"
	"github.com/fd1az/savings-bench/business/pricing/infra/binance"
	"github.com/fd1az/savings-bench/business/pricing/infra/guard"
	"github.com/fd1az/savings-bench/business/pricing/infra/oneinch"
	"github.com/fd1az/savings-bench/business/pricing/infra/uniswap"
	"github.com/fd1az/savings-bench/business/pricing/infra/zeroex"
	"github.com/fd1az/savings-bench/internal/asset"
	"github.com/fd1az/savings-bench/internal/circuitbreaker"
	"github.com/fd1az/savings-bench/internal/config"
	"github.com/fd1az/savings-bench/internal/di"
	"github.com/fd1az/savings-bench/internal/logger"
	"github.com/fd1az/savings-bench/internal/monolith"
	"github.com/fd1az/savings-bench/internal/retry"
)

// Module implements the pricing bounded context.
type Module struct{}

// RegisterServices registers all pricing services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	cfg := c.Get("config").(*config.Config)

	// The alias table is built eagerly so a conflicting config fails
	// registration instead of panicking on first use.
	names, err := BuildNameMap(cfg.AliasGroups())
	if err != nil {
		return err
	}
	di.RegisterToken(c, pricingDI.ExchangeNames, func(di.ServiceRegistry) *domain.ExchangeNameMap {
		return names
	})

	di.RegisterToken(c, pricingDI.Normalizer, func(sr di.ServiceRegistry) *app.Normalizer {
		return app.NewNormalizer(pricingDI.GetExchangeNames(sr))
	})

	// Register the primary aggregator (public)
	di.RegisterToken(c, pricingDI.PrimaryAdapter, func(sr di.ServiceRegistry) app.WhitelistAdapter {
		log := sr.Get("logger").(logger.LoggerInterface)
		reg := sr.Get("assetRegistry").(*asset.Registry)

		a, err := aggregator.New(aggregator.Config{
			Name:    cfg.Primary.Name,
			BaseURL: cfg.Primary.BaseURL,
			APIKey:  cfg.Primary.APIKey,
			FeePct:  cfg.Primary.FeePctDecimal(),
			Timeout: cfg.Primary.Timeout,
			Guard:   GuardConfig(cfg.Primary),
		}, reg, pricingDI.GetExchangeNames(sr), log)
		if err != nil {
			panic("failed to create primary aggregator: " + err.Error())
		}
		return a
	})

	// Register comparison venues in reporting order (public)
	di.RegisterToken(c, pricingDI.ComparisonVenues, func(sr di.ServiceRegistry) []app.QuoteAdapter {
		venues, err := buildComparisonVenues(sr, cfg)
		if err != nil {
			panic("failed to create comparison venues: " + err.Error())
		}
		return venues
	})

	return nil
}

func buildComparisonVenues(sr di.ServiceRegistry, cfg *config.Config) ([]app.QuoteAdapter, error) {
	log := sr.Get("logger").(logger.LoggerInterface)
	reg := sr.Get("assetRegistry").(*asset.Registry)

	var venues []app.QuoteAdapter
	add := func(a app.QuoteAdapter, err error) error {
		if err != nil {
			return err
		}
		venues = append(venues, a)
		return nil
	}

	if vc := cfg.Venues.OneInch; vc.Enabled {
		a, err := oneinch.New(oneinch.Config{
			Name: vc.Name, BaseURL: vc.BaseURL, APIKey: vc.APIKey,
			FeePct: vc.FeePctDecimal(), Timeout: vc.Timeout, Guard: GuardConfig(vc),
		}, reg, log)
		if err := add(a, err); err != nil {
			return nil, fmt.Errorf("%s: %w", vc.Name, err)
		}
	}

	if vc := cfg.Venues.ZeroEx; vc.Enabled {
		a, err := zeroex.New(zeroex.Config{
			Name: vc.Name, BaseURL: vc.BaseURL, APIKey: vc.APIKey,
			FeePct: vc.FeePctDecimal(), Timeout: vc.Timeout, Guard: GuardConfig(vc),
		}, reg, log)
		if err := add(a, err); err != nil {
			return nil, fmt.Errorf("%s: %w", vc.Name, err)
		}
	}

	if uc := cfg.Venues.Uniswap; uc.Enabled {
		client, _ := sr.Get("ethClient").(*ethclient.Client)
		if client == nil {
			return nil, fmt.Errorf("%s: no ethereum client", uc.Name)
		}
		a, err := uniswap.New(client, uniswap.Config{
			Name:     uc.Name,
			Quoter:   uc.QuoterAddressHex(),
			FeeTiers: uc.FeeTiers,
			Guard:    GuardConfig(uc.VenueConfig),
		}, reg, log)
		if err := add(a, err); err != nil {
			return nil, fmt.Errorf("%s: %w", uc.Name, err)
		}
	}

	if bc := cfg.Venues.Binance; bc.Enabled {
		bcfg := binance.DefaultConfig()
		bcfg.Name = bc.Name
		bcfg.BaseURL = bc.BaseURL
		bcfg.StreamURL = bc.StreamURL
		bcfg.Stream = bc.Stream
		bcfg.Pairs = bc.Pairs
		bcfg.TakerFeePct = bc.FeePctDecimal()
		bcfg.MinQty = decimal.NewFromFloat(bc.MinQty)
		bcfg.DepthLimit = bc.DepthLimit
		bcfg.StaleAfter = bc.StaleAfter
		bcfg.Timeout = bc.Timeout
		bcfg.Guard = GuardConfig(bc.VenueConfig)

		a, err := binance.New(bcfg, log)
		if err := add(a, err); err != nil {
			return nil, fmt.Errorf("%s: %w", bc.Name, err)
		}
	}

	return venues, nil
}

// BuildNameMap merges configured aliases over the built-in table.
func BuildNameMap(groups map[string][]string) (*domain.ExchangeNameMap, error) {
	names := domain.DefaultExchangeNameMap()
	if err := names.RegisterAll(groups); err != nil {
		return nil, err
	}
	return names, nil
}

// GuardConfig maps a venue's config section to its resilience settings.
func GuardConfig(vc config.VenueConfig) guard.Config {
	policy := retry.DefaultPolicy()
	if vc.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = vc.Retry.MaxAttempts
	}
	if vc.Retry.BaseDelay > 0 {
		policy.BaseDelay = vc.Retry.BaseDelay
	}
	if vc.Retry.RateLimitDelay > 0 {
		policy.RateLimitDelay = vc.Retry.RateLimitDelay
	}
	return guard.Config{
		Venue:             vc.Name,
		RequestsPerMinute: vc.RequestsPerMinute,
		Retry:             policy,
		Breaker:           circuitbreaker.DefaultConfig(vc.Name),
	}
}

// Startup builds every adapter and connects streaming venues. A stream that
// fails to connect is not fatal; those venues quote over REST.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	primary := pricingDI.GetPrimaryAdapter(mono.Services())
	venues := pricingDI.GetComparisonVenues(mono.Services())

	for _, v := range venues {
		connector, ok := v.(interface{ Connect(context.Context) error })
		if !ok {
			continue
		}
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := connector.Connect(connectCtx); err != nil {
			log.Warn(ctx, "venue stream connection failed, using REST", "venue", v.Name(), "error", err)
		}
		cancel()
		if c, ok := v.(io.Closer); ok {
			mono.OnClose("venue:"+v.Name(), c.Close)
		}
	}

	names := make([]string, 0, len(venues))
	for _, v := range venues {
		names = append(names, v.Name())
	}
	log.Info(ctx, "pricing module started", "primary", primary.Name(), "venues", names)
	return nil
}
