// Package comparison implements the comparison bounded context: the runner
// that sweeps the experiment matrix and the sinks that keep its records.
package comparison

import (
	"context"
	"time"

	"github.com/fd1az/savings-bench/business/comparison/app"
	comparisonDI "github.com/fd1az/savings-bench/business/comparison/di"
	"github.com/fd1az/savings-bench/business/comparison/infra"
	"github.com/fd1az/savings-bench/business/comparison/infra/csvsink"
	"github.com/fd1az/savings-bench/business/comparison/infra/sqlitesink"
	pricingDI "github.com/fd1az/savings-bench/business/pricing/di"
	pricingDomain "github.com/fd1az/savings-bench/business/pricing/domain"
	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/asset"
	"github.com/fd1az/savings-bench/internal/config"
	"github.com/fd1az/savings-bench/internal/di"
	"github.com/fd1az/savings-bench/internal/logger"
	"github.com/fd1az/savings-bench/internal/monolith"
)

// Module implements the comparison bounded context.
type Module struct{}

// RegisterServices opens the sinks and registers the runner. Sinks are
// opened eagerly so an unwritable path fails before any quote is taken.
func (m *Module) RegisterServices(c di.Container) error {
	cfg := c.Get("config").(*config.Config)

	sinks, err := OpenSinks(context.Background(), cfg.Output)
	if err != nil {
		return err
	}
	di.RegisterToken(c, comparisonDI.Sinks, func(di.ServiceRegistry) []app.Sink {
		return sinks
	})

	di.RegisterToken(c, comparisonDI.Reporter, func(di.ServiceRegistry) app.Reporter {
		if cfg.Experiment.TUIMode {
			return infra.NewTUIReporter()
		}
		return infra.NewConsoleReporter(cfg.Log.Level == "debug")
	})

	di.RegisterToken(c, comparisonDI.Runner, func(sr di.ServiceRegistry) *app.Runner {
		log := sr.Get("logger").(logger.LoggerInterface)

		runner, err := app.NewRunner(
			pricingDI.GetPrimaryAdapter(sr),
			pricingDI.GetComparisonVenues(sr),
			pricingDI.GetNormalizer(sr),
			app.MultiSink(comparisonDI.GetSinks(sr)),
			RunnerConfig(cfg),
			log,
			app.WithReporter(comparisonDI.GetReporter(sr)),
		)
		if err != nil {
			panic("failed to create runner: " + err.Error())
		}
		return runner
	})

	return nil
}

// OpenSinks opens the CSV sink and, when configured, the SQLite sink.
func OpenSinks(ctx context.Context, cfg config.OutputConfig) ([]app.Sink, error) {
	if cfg.CSVPath == "" && cfg.SQLitePath == "" {
		return nil, apperror.Configuration("no output configured")
	}

	var sinks []app.Sink
	if cfg.CSVPath != "" {
		s, err := csvsink.Open(cfg.CSVPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.SQLitePath != "" {
		s, err := sqlitesink.Open(ctx, cfg.SQLitePath)
		if err != nil {
			app.MultiSink(sinks).Close()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// RunnerConfig maps the experiment section and venue timeouts.
func RunnerConfig(cfg *config.Config) app.Config {
	rc := app.Config{
		Concurrency:        cfg.Experiment.Concurrency,
		WhitelistProbe:     cfg.Experiment.WhitelistProbe,
		MaxPrimaryFailures: cfg.Experiment.MaxPrimaryFailures,
		DefaultTimeout:     cfg.Primary.Timeout,
		Timeouts:           make(map[string]time.Duration),
	}
	for _, vc := range append([]config.VenueConfig{cfg.Primary}, cfg.ComparisonVenues()...) {
		if vc.Timeout > 0 {
			rc.Timeouts[vc.Name] = vc.Timeout
		}
	}
	return rc
}

// BuildExperiment turns the experiment section into the run matrix. An empty
// token list sweeps every tradable token in the registry.
func BuildExperiment(cfg config.ExperimentConfig, reg *asset.Registry) (app.Experiment, error) {
	quote, err := reg.Canonical(cfg.Quote)
	if err != nil {
		return app.Experiment{}, err
	}

	tokens := cfg.Tokens
	if len(tokens) == 0 {
		tokens = reg.Tradable()
	}
	canonical := make([]string, 0, len(tokens))
	for _, t := range tokens {
		sym, err := reg.Canonical(t)
		if err != nil {
			return app.Experiment{}, err
		}
		canonical = append(canonical, sym)
	}

	exp := app.Experiment{
		Quote:       quote,
		Tokens:      canonical,
		TradeSizes:  cfg.TradeSizesDecimal(),
		Side:        pricingDomain.Side(cfg.Side),
		TokensOuter: cfg.TokensOuter,
	}
	return exp, exp.Validate()
}

// Startup builds the runner and checks that every venue can quote the
// configured side before the first cell.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()

	runner := comparisonDI.GetRunner(mono.Services())
	if err := runner.CheckDirections(pricingDomain.Side(cfg.Experiment.Side)); err != nil {
		return err
	}

	var paths []string
	if cfg.Output.CSVPath != "" {
		paths = append(paths, cfg.Output.CSVPath)
	}
	if cfg.Output.SQLitePath != "" {
		paths = append(paths, cfg.Output.SQLitePath)
	}
	log.Info(ctx, "comparison module started", "outputs", paths)
	return nil
}
