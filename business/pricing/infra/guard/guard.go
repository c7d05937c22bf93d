// Package guard wraps venue calls with the per-adapter rate limit, retry
// policy and circuit breaker, and folds their failures into the quote error
// kinds the engine understands.
package guard

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/circuitbreaker"
	"github.com/fd1az/savings-bench/internal/logger"
	"github.com/fd1az/savings-bench/internal/ratelimit"
	"github.com/fd1az/savings-bench/internal/retry"
)

// Config configures a Guard.
type Config struct {
	Venue             string
	RequestsPerMinute int // <= 0 disables limiting
	Retry             retry.Policy
	Breaker           circuitbreaker.Config
}

// DefaultConfig returns the default retry policy and breaker for venue with
// no rate limit.
func DefaultConfig(venue string) Config {
	return Config{
		Venue:   venue,
		Retry:   retry.DefaultPolicy(),
		Breaker: circuitbreaker.DefaultConfig(venue),
	}
}

// Guard owns one adapter's resilience state. It is safe for concurrent use.
type Guard struct {
	venue   string
	limiter *ratelimit.Limiter
	policy  retry.Policy
	breaker *circuitbreaker.CircuitBreaker[any]
	log     logger.LoggerInterface
}

// New creates a Guard.
func New(cfg Config, log logger.LoggerInterface) *Guard {
	g := &Guard{
		venue:   cfg.Venue,
		limiter: ratelimit.New(cfg.RequestsPerMinute),
		policy:  cfg.Retry,
		log:     log,
	}

	bcfg := cfg.Breaker
	if bcfg.Name == "" {
		bcfg.Name = cfg.Venue
	}
	// Refusals and malformed payloads are answers; only transport faults,
	// 5xx and throttling count against the breaker.
	bcfg.IsSuccessful = func(err error) bool {
		return err == nil || !retry.IsRetryable(err)
	}
	userHook := bcfg.OnStateChange
	bcfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "venue circuit breaker state change",
			"venue", name, "from", from.String(), "to", to.String())
		if userHook != nil {
			userHook(name, from, to)
		}
	}
	g.breaker = circuitbreaker.New[any](bcfg)

	policy := g.policy
	userRetry := policy.OnRetry
	g.policy.OnRetry = func(err error, next time.Duration) {
		log.Debug(context.Background(), "retrying venue call",
			"venue", g.venue, "code", string(apperror.GetCode(err)), "wait", next.String())
		if userRetry != nil {
			userRetry(err, next)
		}
	}
	return g
}

// Venue returns the guarded venue name.
func (g *Guard) Venue() string {
	return g.venue
}

// State reports the breaker state.
func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}

// Healthy reports whether the breaker lets calls through.
func (g *Guard) Healthy() bool {
	return g.breaker.State() != gobreaker.StateOpen
}

// Call runs op under the rate limit, retry policy and breaker. Failures come
// back as QuoteUnavailable, VenueInternalError, MalformedQuote or
// AmountDirectionUnsupported; see Settle.
func Call[T any](ctx context.Context, g *Guard, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	res, err := g.breaker.Execute(func() (any, error) {
		return retry.Do(ctx, g.policy, func(ctx context.Context) (any, error) {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return op(ctx)
		})
	})
	if err != nil {
		return zero, g.Settle(ctx, err)
	}
	v, ok := res.(T)
	if !ok {
		return zero, apperror.VenueInternal(g.venue, "unexpected result type", nil)
	}
	return v, nil
}

// Settle converts a failure that survived retries into an engine error kind
// and logs it. Transport faults, throttling, an open breaker and timeouts are
// QuoteUnavailable. Errors already carrying an engine kind pass through.
func (g *Guard) Settle(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var out error
	switch code := apperror.GetCode(err); code {
	case apperror.CodeQuoteUnavailable,
		apperror.CodeMalformedQuote,
		apperror.CodeVenueInternalError,
		apperror.CodeAmountDirectionUnsupported,
		apperror.CodeUnknownToken,
		apperror.CodeConfigurationError:
		out = err
	case apperror.CodeRateLimitExceeded:
		out = apperror.Unavailable(g.venue, "rate limited after retries", err)
	case apperror.CodeCircuitOpen:
		out = apperror.Unavailable(g.venue, "circuit open", err)
	case apperror.CodeServiceTimeout:
		out = apperror.Unavailable(g.venue, "timed out", err)
	case apperror.CodeServiceUnavailable, apperror.CodeExternalServiceError:
		out = apperror.Unavailable(g.venue, "transport failure", err)
	default:
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			out = apperror.Unavailable(g.venue, "timed out", err)
		} else {
			out = apperror.VenueInternal(g.venue, "unexpected failure", err)
		}
	}

	g.log.Warnc(ctx, 3, "venue quote failed",
		"venue", g.venue, "code", string(apperror.GetCode(out)), "error", err.Error())
	return out
}
