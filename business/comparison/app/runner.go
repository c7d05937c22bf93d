package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/savings-bench/business/comparison/domain"
	pricingApp "github.com/fd1az/savings-bench/business/pricing/app"
	pricingDomain "github.com/fd1az/savings-bench/business/pricing/domain"
	"github.com/fd1az/savings-bench/internal/apm"
	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/logger"
)

const (
	tracerName = "github.com/fd1az/savings-bench/business/comparison/app"
	meterName  = "comparison"
)

// Config tunes a Runner.
type Config struct {
	// Concurrency caps in-flight comparison quotes per cell.
	Concurrency int
	// WhitelistProbe quotes the primary restricted to each DEX it routed
	// through. Needs a primary that accepts exchange constraints.
	WhitelistProbe bool
	// MaxPrimaryFailures consecutive VenueInternalErrors from the primary
	// end the run.
	MaxPrimaryFailures int
	// DefaultTimeout bounds a venue call without its own entry in Timeouts.
	DefaultTimeout time.Duration
	Timeouts       map[string]time.Duration
}

// DefaultConfig returns 8-way fan-out with probing on, five primary failures
// and a 15s venue budget.
func DefaultConfig() Config {
	return Config{
		Concurrency:        8,
		WhitelistProbe:     true,
		MaxPrimaryFailures: 5,
		DefaultTimeout:     15 * time.Second,
	}
}

type runnerMetrics struct {
	cells    metric.Int64Counter
	records  metric.Int64Counter
	failures metric.Int64Counter
	pct      metric.Float64Histogram
	latency  metric.Float64Histogram
}

// Runner sweeps an experiment: it quotes the primary for each cell, fans out
// to the comparison venues and appends one record per well-formed quote.
type Runner struct {
	primary    pricingApp.QuoteAdapter
	venues     []pricingApp.QuoteAdapter
	normalizer *pricingApp.Normalizer
	sink       Sink
	reporter   Reporter
	cfg        Config
	logger     logger.LoggerInterface
	tracer     apm.Tracer
	metrics    runnerMetrics

	now      func() time.Time
	newRunID func() string
}

// Option customizes a Runner.
type Option func(*Runner)

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(run *Runner) {
		if r != nil {
			run.reporter = r
		}
	}
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner. Venues keep the given order in every cell.
func NewRunner(
	primary pricingApp.QuoteAdapter,
	venues []pricingApp.QuoteAdapter,
	normalizer *pricingApp.Normalizer,
	sink Sink,
	cfg Config,
	log logger.LoggerInterface,
	opts ...Option,
) (*Runner, error) {
	if primary == nil {
		return nil, apperror.Configuration("no primary venue")
	}
	if normalizer == nil || sink == nil {
		return nil, apperror.Configuration("runner needs a normalizer and a sink")
	}

	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxPrimaryFailures <= 0 {
		cfg.MaxPrimaryFailures = def.MaxPrimaryFailures
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.WhitelistProbe {
		if _, ok := primary.(pricingApp.WhitelistAdapter); !ok {
			log.Warn(context.Background(), "primary cannot be whitelisted, probing disabled", "venue", primary.Name())
			cfg.WhitelistProbe = false
		}
	}
	if len(venues) == 0 && !cfg.WhitelistProbe {
		return nil, apperror.Configuration("empty venue list")
	}

	seen := map[string]bool{primary.Name(): true}
	for _, v := range venues {
		if seen[v.Name()] {
			return nil, apperror.Configuration(fmt.Sprintf("venue %q configured twice", v.Name()))
		}
		seen[v.Name()] = true
	}

	r := &Runner{
		primary:    primary,
		venues:     venues,
		normalizer: normalizer,
		sink:       sink,
		reporter:   nopReporter{},
		cfg:        cfg,
		logger:     log,
		tracer:     apm.NewTracer(tracerName),
		now:        time.Now,
		newRunID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}

	meter := otel.Meter(meterName)
	var err error
	if r.metrics.cells, err = meter.Int64Counter("savings_cells_total",
		metric.WithDescription("Cells processed by final state")); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	if r.metrics.records, err = meter.Int64Counter("savings_records_total",
		metric.WithDescription("Savings records emitted")); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	if r.metrics.failures, err = meter.Int64Counter("savings_quote_failures_total",
		metric.WithDescription("Venue quotes that produced no record")); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	if r.metrics.pct, err = meter.Float64Histogram("savings_pct",
		metric.WithDescription("Percent savings of the primary over a venue")); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	if r.metrics.latency, err = meter.Float64Histogram("savings_quote_latency_ms",
		metric.WithDescription("Venue quote latency including normalization"), metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return r, nil
}

// CheckDirections fails with AmountDirectionUnsupported when the primary or
// any venue cannot be quoted for side.
func (r *Runner) CheckDirections(side pricingDomain.Side) error {
	want := RequiredDirection(side)
	for _, a := range append([]pricingApp.QuoteAdapter{r.primary}, r.venues...) {
		if !a.Directions().Supports(want) {
			return apperror.DirectionUnsupported(a.Name(),
				fmt.Sprintf("%s side needs %s, venue supports %s", side, want, a.Directions()))
		}
	}
	return nil
}

// Run sweeps exp. It stops early on a configuration or direction error, on
// too many consecutive primary failures, on a sink failure, or when ctx ends.
func (r *Runner) Run(ctx context.Context, exp Experiment) (Summary, error) {
	if err := exp.Validate(); err != nil {
		return Summary{}, err
	}
	if err := r.CheckDirections(exp.Side); err != nil {
		return Summary{}, err
	}

	summary := newSummary(r.newRunID(), r.now())
	cells := exp.Cells()

	ctx, span := r.tracer.StartSpanFromContext(ctx, "comparison.run",
		trace.WithAttributes(
			attribute.String("run_id", summary.RunID),
			attribute.String("quote", exp.Quote),
			attribute.String("side", string(exp.Side)),
			attribute.Int("cells", len(cells)),
			attribute.Int("venues", len(r.venues)),
		),
	)
	defer span.End()

	r.logger.Info(ctx, "starting comparison run",
		"run_id", summary.RunID, "primary", r.primary.Name(),
		"cells", len(cells), "venues", len(r.venues), "side", exp.Side)

	venues := make([]string, 0, len(r.venues))
	for _, v := range r.venues {
		venues = append(venues, v.Name())
	}
	info := RunInfo{RunID: summary.RunID, Primary: r.primary.Name(), Venues: venues, Side: exp.Side, Cells: len(cells)}
	if err := r.reporter.Start(ctx, info); err != nil {
		return summary, err
	}
	defer func() {
		if err := r.reporter.Stop(); err != nil {
			r.logger.Warn(ctx, "reporter stop failed", "error", err)
		}
	}()

	primaryFailures := 0
	var runErr error
	for _, cell := range cells {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := r.runCell(ctx, summary.RunID, cell, &summary, &primaryFailures); err != nil {
			runErr = err
			break
		}
	}

	summary.Duration = r.now().Sub(summary.Started)
	r.reporter.ReportSummary(summary)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		span.NoticeError(runErr)
		r.logger.Error(ctx, "comparison run aborted",
			"run_id", summary.RunID, "code", string(apperror.GetCode(runErr)), "error", runErr)
	} else {
		r.logger.Info(ctx, "comparison run finished",
			"run_id", summary.RunID, "cells", summary.Cells, "skipped", summary.Skipped,
			"records", summary.Records, "duration", summary.Duration.String())
	}
	return summary, runErr
}

type target struct {
	adapter pricingApp.QuoteAdapter
	req     pricingApp.QuoteRequest
	label   string
}

type outcome struct {
	quote *pricingDomain.PricedQuote
	err   error
}

func (r *Runner) runCell(ctx context.Context, runID string, cell domain.Cell, sum *Summary, primaryFailures *int) error {
	start := r.now()
	ctx, span := r.tracer.StartSpanFromContext(ctx, "comparison.cell",
		trace.WithAttributes(
			attribute.String("base", cell.Base),
			attribute.String("quote", cell.Quote),
			attribute.String("side", string(cell.Side)),
			attribute.String("trade_size", cell.TradeSize.String()),
		),
	)
	defer span.End()

	sum.Cells++
	report := CellReport{Cell: cell, State: CellPrimaryPending, Failures: make(map[string]apperror.Code)}
	span.AddEvent(string(CellPrimaryPending))

	req := requestFor(cell)
	primary, err := r.quote(ctx, r.primary, req)
	if err != nil {
		code := apperror.GetCode(err)
		r.recordFailure(ctx, sum, r.primary.Name(), code)
		if isFatal(code) {
			return err
		}
		if code == apperror.CodeVenueInternalError {
			*primaryFailures++
			if *primaryFailures >= r.cfg.MaxPrimaryFailures {
				return apperror.New(apperror.CodeVenueInternalError,
					apperror.WithVenue(r.primary.Name()),
					apperror.WithContext(fmt.Sprintf("%d consecutive primary failures", *primaryFailures)),
					apperror.WithCause(err))
			}
		}

		sum.Skipped++
		report.State, report.Err = CellPrimaryAbsent, err
		report.Failures[r.primary.Name()] = code
		report.Duration = r.now().Sub(start)
		span.AddEvent(string(CellPrimaryAbsent), trace.WithAttributes(attribute.String("code", string(code))))
		r.metrics.cells.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(CellPrimaryAbsent))))
		r.logger.Info(ctx, "skipping cell without primary quote",
			"cell", cell.String(), "code", string(code), "error", err)
		r.reporter.ReportCell(report)
		return nil
	}
	*primaryFailures = 0

	report.State, report.Primary = CellPrimaryQuoted, primary
	span.AddEvent(string(CellPrimaryQuoted), trace.WithAttributes(
		attribute.String("price", primary.Price.Rate().String()),
		attribute.String("route", primary.Route.String()),
	))

	targets := r.targets(req, primary)
	report.State = CellFanOut
	span.AddEvent(string(CellFanOut), trace.WithAttributes(attribute.Int("targets", len(targets))))

	outcomes, err := r.fanOut(ctx, targets)
	if err != nil {
		return err
	}

	at := r.now()
	for i, o := range outcomes {
		t := targets[i]
		if o.err != nil {
			r.omit(ctx, cell, t.label, o.err, sum, &report)
			continue
		}
		pct, ok := r.savings(ctx, cell, t.label, primary, o.quote, sum, &report)
		if !ok {
			continue
		}

		rec := domain.SavingsRecord{
			RunID:        runID,
			Time:         at,
			Side:         cell.Side,
			TradeSize:    cell.TradeSize,
			Base:         cell.Base,
			Quote:        cell.Quote,
			Venue:        t.label,
			VenuePrice:   o.quote.Price.Rate(),
			PrimaryPrice: primary.Price.Rate(),
			PrimaryRoute: primary.Route,
			VenueRoute:   o.quote.Route,
			PctSavings:   pct,
		}
		if err := r.sink.Append(ctx, rec); err != nil {
			if !apperror.HasCode(err, apperror.CodeSinkWriteFailed) {
				err = apperror.New(apperror.CodeSinkWriteFailed, apperror.WithCause(err))
			}
			return err
		}

		report.Records++
		r.recordSavings(ctx, sum, rec)
		r.reporter.Report(rec)
	}

	report.State = CellRecordsEmitted
	report.Duration = r.now().Sub(start)
	span.AddEvent(string(CellRecordsEmitted), trace.WithAttributes(attribute.Int("records", report.Records)))
	r.metrics.cells.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(CellRecordsEmitted))))
	r.reporter.ReportCell(report)
	return nil
}

// savings compares one venue against the primary. A price the formula cannot
// use drops the comparison as MalformedQuote.
func (r *Runner) savings(ctx context.Context, cell domain.Cell, label string, primary, venue *pricingDomain.PricedQuote,
	sum *Summary, report *CellReport) (decimal.Decimal, bool) {
	pct, err := domain.PctSavings(primary.Price.Rate(), venue.Price.Rate())
	if err != nil {
		r.omit(ctx, cell, label, apperror.Malformed(label, err.Error()), sum, report)
		return decimal.Zero, false
	}
	return pct, true
}

// omit drops one comparison from the cell and logs why.
func (r *Runner) omit(ctx context.Context, cell domain.Cell, label string, err error, sum *Summary, report *CellReport) {
	code := apperror.GetCode(err)
	report.Failures[label] = code
	r.recordFailure(ctx, sum, label, code)
	r.logger.Warn(ctx, "comparison quote failed",
		"cell", cell.String(), "venue", label, "code", string(code), "error", err)
}

// targets lists the configured venues, then one whitelist probe per DEX in
// the primary's route. Probes are labelled "<primary>[<dex>]" so they never
// collide with a configured venue of the same name.
func (r *Runner) targets(req pricingApp.QuoteRequest, primary *pricingDomain.PricedQuote) []target {
	out := make([]target, 0, len(r.venues))
	for _, v := range r.venues {
		out = append(out, target{adapter: v, req: req, label: v.Name()})
	}
	if !r.cfg.WhitelistProbe {
		return out
	}
	for _, dex := range primary.Route.Exchanges() {
		if dex == r.primary.Name() {
			continue
		}
		out = append(out, target{adapter: r.primary, req: req.WithExchange(dex), label: ProbeLabel(r.primary.Name(), dex)})
	}
	return out
}

// ProbeLabel names the record of the primary restricted to dex.
func ProbeLabel(primary, dex string) string {
	return primary + "[" + dex + "]"
}

// fanOut quotes every target with at most Concurrency in flight. Outcomes
// keep target order. Only fatal errors are returned.
func (r *Runner) fanOut(ctx context.Context, targets []target) ([]outcome, error) {
	outcomes := make([]outcome, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, t := range targets {
		g.Go(func() error {
			q, err := r.quote(gctx, t.adapter, t.req)
			if err != nil && isFatal(apperror.GetCode(err)) {
				return err
			}
			outcomes[i] = outcome{quote: q, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// quote calls a under its timeout and normalizes the answer.
func (r *Runner) quote(ctx context.Context, a pricingApp.QuoteAdapter, req pricingApp.QuoteRequest) (*pricingDomain.PricedQuote, error) {
	timeout := r.cfg.DefaultTimeout
	if d, ok := r.cfg.Timeouts[a.Name()]; ok && d > 0 {
		timeout = d
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	raw, err := callWithin(ctx, a, req)
	if err == nil && raw == nil {
		err = apperror.Unavailable(a.Name(), "venue returned no quote", nil)
	}
	var q *pricingDomain.PricedQuote
	if err == nil {
		q, err = r.normalizer.Normalize(raw)
	}
	r.metrics.latency.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("venue", a.Name())))

	if err != nil {
		return nil, classify(a.Name(), err)
	}
	return q, nil
}

type rawResult struct {
	raw pricingDomain.RawQuote
	err error
}

// callWithin abandons the call when ctx ends, even if the adapter is blocked
// somewhere that does not watch ctx. The buffered channel lets the late
// goroutine finish without a reader.
func callWithin(ctx context.Context, a pricingApp.QuoteAdapter, req pricingApp.QuoteRequest) (pricingDomain.RawQuote, error) {
	done := make(chan rawResult, 1)
	go func() {
		raw, err := a.GetQuote(ctx, req)
		done <- rawResult{raw: raw, err: err}
	}()

	select {
	case res := <-done:
		return res.raw, res.err
	case <-ctx.Done():
		return nil, apperror.Unavailable(a.Name(), "venue exceeded its time budget", ctx.Err())
	}
}

// classify maps what an adapter returned onto the engine's error kinds.
func classify(venue string, err error) error {
	switch code := apperror.GetCode(err); code {
	case apperror.CodeUnknownToken,
		apperror.CodeQuoteUnavailable,
		apperror.CodeMalformedQuote,
		apperror.CodeVenueInternalError,
		apperror.CodeAmountDirectionUnsupported,
		apperror.CodeConfigurationError:
		return err
	case apperror.CodeRateLimitExceeded,
		apperror.CodeCircuitOpen,
		apperror.CodeServiceTimeout,
		apperror.CodeServiceUnavailable,
		apperror.CodeExternalServiceError,
		apperror.CodeInsufficientLiquidity:
		return apperror.Unavailable(venue, string(code), err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperror.Unavailable(venue, "timed out", err)
	}
	return apperror.VenueInternal(venue, "unexpected failure", err)
}

func isFatal(code apperror.Code) bool {
	return code == apperror.CodeConfigurationError || code == apperror.CodeAmountDirectionUnsupported
}

func (r *Runner) recordFailure(ctx context.Context, sum *Summary, venue string, code apperror.Code) {
	sum.venue(venue).Failures[code]++
	r.metrics.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("venue", venue),
		attribute.String("code", string(code)),
	))
}

func (r *Runner) recordSavings(ctx context.Context, sum *Summary, rec domain.SavingsRecord) {
	sum.Records++
	v := sum.venue(rec.Venue)
	v.Records++
	v.SumPct = v.SumPct.Add(rec.PctSavings)
	switch rec.Verdict() {
	case domain.VerdictPrimaryBetter:
		v.PrimaryBetter++
	case domain.VerdictComparisonBetter:
		v.ComparisonBetter++
	}

	attrs := metric.WithAttributes(attribute.String("venue", rec.Venue))
	r.metrics.records.Add(ctx, 1, attrs)
	pct, _ := rec.PctSavings.Float64()
	r.metrics.pct.Record(ctx, pct, attrs)
}
