package monolith

import (
	"context"
	"errors"
	"testing"

	"github.com/fd1az/savings-bench/internal/di"
)

type mockLogger struct{}

func (mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

func TestClose_ReverseOrderAndJoinedErrors(t *testing.T) {
	a := &app{logger: mockLogger{}, container: di.NewContainer()}

	var order []string
	boom := errors.New("boom")
	a.OnClose("sinks", func() error { order = append(order, "sinks"); return nil })
	a.OnClose("venue:Binance", func() error { order = append(order, "venue"); return boom })

	err := a.Close()
	if !errors.Is(err, boom) {
		t.Errorf("Close() error = %v, want boom", err)
	}
	if len(order) != 2 || order[0] != "venue" || order[1] != "sinks" {
		t.Errorf("order = %v", order)
	}

	order = nil
	if err := a.Close(); err != nil || len(order) != 0 {
		t.Errorf("second Close() ran hooks again: %v %v", err, order)
	}
}

type fakeModule struct {
	registered, started *int
	err                 error
}

func (m fakeModule) RegisterServices(di.Container) error { *m.registered++; return m.err }
func (m fakeModule) Startup(context.Context, Monolith) error {
	*m.started++
	return nil
}

func TestRegisterModules_StopsAtFirstError(t *testing.T) {
	a := &app{logger: mockLogger{}, container: di.NewContainer()}
	var reg, start int
	failing := errors.New("bad output path")

	err := a.RegisterModules(fakeModule{&reg, &start, nil}, fakeModule{&reg, &start, failing}, fakeModule{&reg, &start, nil})
	if !errors.Is(err, failing) || reg != 2 {
		t.Errorf("err = %v, registered = %d", err, reg)
	}

	if err := a.StartModules(context.Background(), fakeModule{&reg, &start, nil}); err != nil || start != 1 {
		t.Errorf("StartModules err = %v, started = %d", err, start)
	}
}
