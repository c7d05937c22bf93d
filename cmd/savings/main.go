// Package main is the entry point for the savings bench.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fd1az/savings-bench/business/comparison"
	comparisonApp "github.com/fd1az/savings-bench/business/comparison/app"
	comparisonDI "github.com/fd1az/savings-bench/business/comparison/di"
	"github.com/fd1az/savings-bench/business/pricing"
	pricingDI "github.com/fd1az/savings-bench/business/pricing/di"
	"github.com/fd1az/savings-bench/business/pricing/infra/guard"
	"github.com/fd1az/savings-bench/internal/apm"
	"github.com/fd1az/savings-bench/internal/config"
	"github.com/fd1az/savings-bench/internal/health"
	"github.com/fd1az/savings-bench/internal/logger"
	"github.com/fd1az/savings-bench/internal/metrics"
	"github.com/fd1az/savings-bench/internal/monolith"
	"github.com/fd1az/savings-bench/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	tui := flag.Bool("tui", false, "Show the live dashboard instead of log output")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("savings-bench %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !*tui {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, *configPath, *tui); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, tuiMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Experiment.TUIMode = tuiMode

	// The dashboard owns the terminal, so logs only reach the file.
	var console io.Writer = os.Stderr
	if tuiMode {
		console = io.Discard
	}
	out, logFile := logger.Tee(console, logger.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer logFile.Close()

	log := logger.New(out, logger.ParseLevel(cfg.Log.Level), cfg.App.Name, logger.OtelTraceID)
	log.Info(ctx, "starting savings bench",
		"version", version,
		"environment", cfg.App.Environment,
	)

	traceProvider := setupTelemetry(ctx, cfg, log)
	defer func() {
		if err := traceProvider.Stop(); err != nil {
			log.Warn(ctx, "trace provider stop failed", "error", err)
		}
	}()

	mono, err := monolith.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	modules := []monolith.Module{
		&pricing.Module{},    // venue adapters
		&comparison.Module{}, // runner and sinks, depends on pricing
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	mono.OnClose("sinks", comparisonApp.MultiSink(comparisonDI.GetSinks(mono.Services())).Close)

	if cfg.Health.Enabled {
		healthServer := newHealthServer(cfg.Health.Port, mono)
		if err := healthServer.Start(); err != nil {
			log.Warn(ctx, "failed to start health server", "error", err)
		} else {
			log.Info(ctx, "health server started", "port", cfg.Health.Port)
		}
		defer healthServer.Stop(ctx)
	}

	exp, err := comparison.BuildExperiment(cfg.Experiment, mono.AssetRegistry())
	if err != nil {
		return fmt.Errorf("invalid experiment: %w", err)
	}

	startFunc := func() (comparisonApp.Summary, error) {
		if err := mono.StartModules(ctx, modules...); err != nil {
			return comparisonApp.Summary{}, fmt.Errorf("failed to start modules: %w", err)
		}
		return comparisonDI.GetRunner(mono.Services()).Run(ctx, exp)
	}

	if tuiMode {
		return runTUI(ctx, startFunc)
	}
	return runCLI(ctx, startFunc, log)
}

func setupTelemetry(ctx context.Context, cfg *config.Config, log *logger.Logger) apm.TraceProvider {
	if !cfg.Telemetry.Enabled {
		return apm.NewEmptyTraceProvider()
	}

	ep := apm.Endpoint{URL: cfg.Telemetry.OTLPEndpoint, Headers: cfg.Telemetry.OTLPHeaders}
	tp := apm.NewTraceProvider(log,
		apm.WithServiceName(cfg.Telemetry.ServiceName),
		apm.WithProvider(apm.Provider(cfg.Telemetry.TraceExporter), ep, log),
	)
	log.Info(ctx, "tracing initialized", "exporter", cfg.Telemetry.TraceExporter, "endpoint", cfg.Telemetry.OTLPEndpoint)

	opts := []metrics.OptionFn{
		metrics.WithServiceName(cfg.Telemetry.ServiceName),
		metrics.WithProviderConfig(metrics.ProviderCfg{Provider: metrics.PrometheusProvider}),
	}
	if apm.Provider(cfg.Telemetry.TraceExporter) == apm.OTLPGRPCProvider && cfg.Telemetry.OTLPEndpoint != "" {
		opts = append(opts, metrics.WithProviderConfig(metrics.NewOtelCollectorConfig(
			cfg.Telemetry.OTLPEndpoint, apm.ParseHeaders(cfg.Telemetry.OTLPHeaders), metrics.SecureOtel)))
	}
	if _, err := metrics.NewMetricProvider(opts...); err != nil {
		log.Warn(ctx, "metrics disabled", "error", err)
		return tp
	}

	port := cfg.Telemetry.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go metrics.ServePrometheusMetrics(ctx, metrics.WithPort(strconv.Itoa(port)), metrics.WithLogger(log))

	return tp
}

type guarded interface {
	Guard() *guard.Guard
}

// newHealthServer reports every venue breaker and every sink that can ping.
func newHealthServer(port int, mono monolith.Monolith) *health.Server {
	s := health.NewServer(port, version)
	sr := mono.Services()

	primary := pricingDI.GetPrimaryAdapter(sr)
	for _, v := range pricingDI.GetComparisonVenues(sr) {
		if g, ok := v.(guarded); ok {
			s.RegisterCheck("venue:"+v.Name(), health.BreakerCheck(g.Guard()))
		}
	}
	if g, ok := primary.(guarded); ok {
		s.RegisterCheck("venue:"+primary.Name(), health.BreakerCheck(g.Guard()))
	}

	for i, sink := range comparisonDI.GetSinks(sr) {
		if p, ok := sink.(health.Pinger); ok {
			s.RegisterCheck(fmt.Sprintf("sink:%d", i), health.PingCheck(p), health.Critical())
		}
	}
	return s
}

func runCLI(ctx context.Context, startFunc func() (comparisonApp.Summary, error), log *logger.Logger) error {
	summary, err := startFunc()
	if err != nil {
		return err
	}
	log.Info(ctx, "run complete", "run_id", summary.RunID, "records", summary.Records)
	return nil
}

func runTUI(ctx context.Context, startFunc func() (comparisonApp.Summary, error)) error {
	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	p := tea.NewProgram(ui.New(), tea.WithAltScreen())
	ui.Program = p

	errCh := make(chan error, 1)
	go func() {
		// Wait for the welcome screen to hand over.
		select {
		case <-startSignal:
		case <-ctx.Done():
			errCh <- nil
			return
		}

		if _, err := startFunc(); err != nil {
			ui.Send(ui.ErrorMsg{Error: err})
			errCh <- err
			return
		}
		errCh <- nil
	}()

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
