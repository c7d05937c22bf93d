package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fd1az/savings-bench/internal/apperror"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, RateLimitDelay: 2 * time.Millisecond}
}

func TestDo(t *testing.T) {
	transient := apperror.New(apperror.CodeVenueInternalError)
	permanent := apperror.New(apperror.CodeQuoteUnavailable)

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantCode  apperror.Code
		wantOK    bool
	}{
		{name: "first try", errs: []error{nil}, wantCalls: 1, wantOK: true},
		{name: "recovers", errs: []error{transient, transient, nil}, wantCalls: 3, wantOK: true},
		{name: "exhausted", errs: []error{transient, transient, transient, nil}, wantCalls: 3, wantCode: apperror.CodeVenueInternalError},
		{name: "permanent stops", errs: []error{permanent, nil}, wantCalls: 1, wantCode: apperror.CodeQuoteUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := Do(context.Background(), fastPolicy(), func(context.Context) (int, error) {
				e := tt.errs[calls]
				calls++
				if e != nil {
					return 0, e
				}
				return 42, nil
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantOK {
				if err != nil || got != 42 {
					t.Errorf("got (%d, %v), want (42, nil)", got, err)
				}
				return
			}
			if apperror.GetCode(err) != tt.wantCode {
				t.Errorf("code = %s, want %s", apperror.GetCode(err), tt.wantCode)
			}
		})
	}
}

func TestDo_RateLimitUsesLongerDelay(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, RateLimitDelay: 30 * time.Millisecond}

	var delays []time.Duration
	p.OnRetry = func(_ error, next time.Duration) { delays = append(delays, next) }

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", apperror.New(apperror.CodeRateLimitExceeded)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delays) != 1 || delays[0] != 30*time.Millisecond {
		t.Errorf("delays = %v, want [30ms]", delays)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour}

	calls := 0
	_, err := Do(ctx, p, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, apperror.New(apperror.CodeServiceUnavailable)
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
