// Package ratelimit provides a wrapper around golang.org/x/time/rate.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/fd1az/savings-bench/internal/apperror"
)

// Limiter paces outbound venue requests.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerMinute with a burst of 10% of
// the rate. A non-positive rate means unlimited.
func New(requestsPerMinute int) *Limiter {
	if requestsPerMinute <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}

	rps := float64(requestsPerMinute) / 60.0
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// NewWithBurst creates a limiter with an explicit per-second rate and burst.
func NewWithBurst(requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until a request may proceed. A context that ends first yields
// a rate-limit error so callers classify it with the other venue failures.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return apperror.New(apperror.CodeRateLimitExceeded,
			apperror.WithContext("waiting for rate limiter"), apperror.WithCause(err))
	}
	return nil
}

// Allow reports whether a request may happen now.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SetLimit updates the rate.
func (l *Limiter) SetLimit(requestsPerMinute int) {
	if requestsPerMinute <= 0 {
		l.limiter.SetLimit(rate.Inf)
		return
	}
	l.limiter.SetLimit(rate.Limit(float64(requestsPerMinute) / 60.0))
}
