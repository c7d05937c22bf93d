// Package retry runs idempotent venue calls under a fixed-backoff policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fd1az/savings-bench/internal/apperror"
)

// Policy is the per-adapter retry budget.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean one attempt.
	MaxAttempts int
	// BaseDelay is the pause between ordinary attempts.
	BaseDelay time.Duration
	// RateLimitDelay replaces BaseDelay after a rate-limited attempt.
	RateLimitDelay time.Duration
	// Retryable overrides the default error classification.
	Retryable func(err error) bool
	// OnRetry is called before sleeping.
	OnRetry func(err error, next time.Duration)
}

// DefaultPolicy returns three attempts with a 500ms pause and a 5s pause
// after rate limiting.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		RateLimitDelay: 5 * time.Second,
	}
}

// IsRetryable reports whether err is worth another attempt: transport
// failures, 5xx responses and rate limiting.
func IsRetryable(err error) bool {
	return apperror.HasCode(err,
		apperror.CodeVenueInternalError,
		apperror.CodeExternalServiceError,
		apperror.CodeServiceUnavailable,
		apperror.CodeServiceTimeout,
		apperror.CodeRateLimitExceeded,
	)
}

// IsRateLimited reports whether err signals rate limiting.
func IsRateLimited(err error) bool {
	return apperror.HasCode(err, apperror.CodeRateLimitExceeded)
}

// policyBackOff yields BaseDelay, or RateLimitDelay after a rate-limited attempt.
type policyBackOff struct {
	base        time.Duration
	rateLimit   time.Duration
	rateLimited bool
}

func (b *policyBackOff) NextBackOff() time.Duration {
	if b.rateLimited {
		return b.rateLimit
	}
	return b.base
}

func (b *policyBackOff) Reset() { b.rateLimited = false }

// Do calls op until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	rlDelay := p.RateLimitDelay
	if rlDelay < p.BaseDelay {
		rlDelay = p.BaseDelay
	}

	bo := &policyBackOff{base: p.BaseDelay, rateLimit: rlDelay}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if p.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(backoff.Notify(p.OnRetry)))
	}

	return backoff.Retry(ctx, func() (T, error) {
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		if !retryable(err) {
			return res, backoff.Permanent(err)
		}
		bo.rateLimited = IsRateLimited(err)
		return res, err
	}, opts...)
}
