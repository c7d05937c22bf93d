// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/asset"
	"github.com/fd1az/savings-bench/internal/config"
	"github.com/fd1az/savings-bench/internal/di"
	"github.com/fd1az/savings-bench/internal/httpclient"
	"github.com/fd1az/savings-bench/internal/logger"
)

// Monolith is what a module sees at startup: shared infrastructure plus the
// service registry filled during registration.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	// EthClient is nil unless an on-chain venue is enabled.
	EthClient() *ethclient.Client
	AssetRegistry() *asset.Registry
	Services() di.ServiceRegistry
	// OnClose registers a release hook. Close runs hooks in reverse order.
	OnClose(name string, fn func() error)
}

// Module is one bounded context. RegisterServices runs for every module
// before any Startup, so a module may depend on services of the ones before it.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

type app struct {
	config        *config.Config
	logger        logger.LoggerInterface
	ethClient     *ethclient.Client
	assetRegistry *asset.Registry
	container     di.Container

	mu      sync.Mutex
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// New creates a new Monolith instance. It loads the token sources and dials
// the Ethereum node when the uniswap venue needs it.
func New(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	registry, err := LoadRegistry(ctx, cfg.Tokens, log)
	if err != nil {
		return nil, err
	}

	var ethClient *ethclient.Client
	if cfg.Venues.Uniswap.Enabled {
		ethClient, err = ethclient.DialContext(ctx, cfg.Ethereum.HTTPURL)
		if err != nil {
			return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
				apperror.WithContext(cfg.Ethereum.HTTPURL), apperror.WithCause(err))
		}
	}

	container := di.NewContainer()
	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("ethClient", ethClient)
	container.Register("assetRegistry", registry)

	log.Info(ctx, "token registry loaded",
		"tokens", registry.Count(), "tradable", len(registry.Tradable()))

	return &app{
		config:        cfg,
		logger:        log,
		ethClient:     ethClient,
		assetRegistry: registry,
		container:     container,
	}, nil
}

// LoadRegistry builds the token registry from the configured sources. The
// built-in list stands in for a missing secondary source.
func LoadRegistry(ctx context.Context, cfg config.TokensConfig, log logger.LoggerInterface) (*asset.Registry, error) {
	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("tokens"),
		httpclient.WithRequestTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	primary, err := asset.LoadSource(ctx, cfg.Primary, client)
	if err != nil {
		return nil, err
	}

	secondary := asset.WellKnown
	if cfg.Secondary != "" {
		if secondary, err = asset.LoadSource(ctx, cfg.Secondary, client); err != nil {
			return nil, err
		}
	}

	return asset.NewRegistryFromSources(primary, secondary, asset.WithLogger(log))
}

func (a *app) Config() *config.Config         { return a.config }
func (a *app) Logger() logger.LoggerInterface { return a.logger }
func (a *app) EthClient() *ethclient.Client   { return a.ethClient }
func (a *app) AssetRegistry() *asset.Registry { return a.assetRegistry }
func (a *app) Services() di.ServiceRegistry   { return a.container }

// RegisterModules stops at the first module that fails.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts modules in order; the first error aborts the rest.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) OnClose(name string, fn func() error) {
	a.mu.Lock()
	a.closers = append(a.closers, closer{name: name, fn: fn})
	a.mu.Unlock()
}

// Close runs the registered hooks, last registered first, then drops the
// Ethereum connection. Every hook runs; failures are joined.
func (a *app) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(); err != nil {
			a.logger.Warn(context.Background(), "close failed", "resource", closers[i].name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", closers[i].name, err))
		}
	}
	if a.ethClient != nil {
		a.ethClient.Close()
	}
	return errors.Join(errs...)
}
