package apm

import (
	"context"
	"testing"
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

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]string
	}{
		{"", map[string]string{}},
		{"api-key=abc", map[string]string{"api-key": "abc"}},
		{"a=1, b=2", map[string]string{"a": "1", "b": "2"}},
		{"broken,=x,c=3", map[string]string{"c": "3"}},
		{"x=a=b", map[string]string{"x": "a=b"}},
	}

	for _, tt := range tests {
		got := ParseHeaders(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("ParseHeaders(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for k, v := range tt.want {
			if got[k] != v {
				t.Errorf("ParseHeaders(%q)[%q] = %q, want %q", tt.in, k, got[k], v)
			}
		}
	}
}

func TestNewTraceProvider_EmptyFallbacks(t *testing.T) {
	for _, p := range []Provider{EmptyProvider, "", "jaeger"} {
		tp := NewTraceProvider(mockLogger{}, WithProvider(p, Endpoint{}, mockLogger{}))
		if _, ok := tp.(ConsoleTraceProvider); !ok {
			t.Errorf("provider %q: got %T, want empty provider", p, tp)
		}
		if err := tp.Stop(); err != nil {
			t.Errorf("provider %q: Stop() error = %v", p, err)
		}
	}
}

func TestNewTraceProvider_Stdout(t *testing.T) {
	tp := NewTraceProvider(mockLogger{},
		WithServiceName("savings-bench"),
		WithProvider(StdoutProvider, Endpoint{}, mockLogger{}),
	)
	if _, ok := tp.(*traceProvider); !ok {
		t.Fatalf("got %T, want *traceProvider", tp)
	}

	_, span := NewTracer("test").StartSpanFromContext(context.Background(), "op")
	if !span.IsRecording() {
		t.Error("span is not recording")
	}
	span.End()

	if err := tp.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
