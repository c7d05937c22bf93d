package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/savings-bench/internal/apperror"
)

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("venue")
	cfg.ConsecutiveFailures = 2
	cfg.Timeout = time.Hour
	cb := New[int](cfg)

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected boom, got %v", i, err)
		}
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	called := false
	_, err := cb.Execute(func() (int, error) {
		called = true
		return 1, nil
	})
	if called {
		t.Error("fn must not run while open")
	}
	if apperror.GetCode(err) != apperror.CodeCircuitOpen {
		t.Errorf("code = %s, want %s", apperror.GetCode(err), apperror.CodeCircuitOpen)
	}
}

func TestCircuitBreaker_IsSuccessfulIgnoresOrdinaryMisses(t *testing.T) {
	cfg := DefaultConfig("venue")
	cfg.ConsecutiveFailures = 1
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || apperror.HasCode(err, apperror.CodeQuoteUnavailable)
	}
	cb := New[int](cfg)

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(func() (int, error) {
			return 0, apperror.New(apperror.CodeQuoteUnavailable)
		})
	}

	if cb.State() != gobreaker.StateClosed {
		t.Errorf("state = %s, want closed", cb.State())
	}
	if cb.Name() != "venue" {
		t.Errorf("name = %q", cb.Name())
	}
}
