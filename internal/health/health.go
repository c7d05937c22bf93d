// Package health provides HTTP health check endpoints.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// Status represents the health check response.
type Status struct {
	Status    string           `json:"status"`
	Checks    map[string]Check `json:"checks"`
	Version   string           `json:"version,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// Check represents an individual health check.
type Check struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// CheckFunc is a function that performs a health check.
type CheckFunc func(ctx context.Context) (bool, string)

// Pinger is anything that can report its own reachability, such as an
// output sink.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) (bool, string) {
		if err := p.Ping(ctx); err != nil {
			return false, err.Error()
		}
		return true, "ok"
	}
}

// Breaker reports whether a circuit breaker lets calls through.
type Breaker interface {
	Healthy() bool
}

// BreakerCheck reports an open breaker as unhealthy.
func BreakerCheck(b Breaker) CheckFunc {
	return func(context.Context) (bool, string) {
		if !b.Healthy() {
			return false, "circuit open"
		}
		return true, "closed"
	}
}

type check struct {
	fn       CheckFunc
	critical bool
}

// CheckOption configures a registered check.
type CheckOption func(*check)

// Critical makes a failing check fail /ready as well as /health.
func Critical() CheckOption {
	return func(c *check) { c.critical = true }
}

// Server serves /health, /ready and /live. A venue whose breaker is open
// degrades /health, but the run can still write records, so only critical
// checks such as the sinks gate /ready.
type Server struct {
	port    int
	version string

	mu     sync.RWMutex
	checks map[string]check
	server *http.Server
}

func NewServer(port int, version string) *Server {
	return &Server{
		port:    port,
		version: version,
		checks:  make(map[string]check),
	}
}

func (s *Server) RegisterCheck(name string, fn CheckFunc, opts ...CheckOption) {
	c := check{fn: fn}
	for _, opt := range opts {
		opt(&c)
	}
	s.mu.Lock()
	s.checks[name] = c
	s.mu.Unlock()
}

// Handler returns the endpoint mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("alive"))
	})
	return mux
}

// Start binds the port and serves in the background. A bind failure is
// returned; the caller decides whether it matters.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go s.server.Serve(ln)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type result struct {
	Check
	critical bool
}

// evaluate runs every check concurrently under a shared deadline.
func (s *Server) evaluate(ctx context.Context) map[string]result {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s.mu.RLock()
	checks := make(map[string]check, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.RUnlock()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]result, len(checks))
	)
	for name, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			healthy, msg := c.fn(ctx)
			mu.Lock()
			out[name] = result{Check: Check{Healthy: healthy, Message: msg}, critical: c.critical}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	results := s.evaluate(r.Context())

	status := Status{
		Status:    "ok",
		Checks:    make(map[string]Check, len(results)),
		Version:   s.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	for name, res := range results {
		status.Checks[name] = res.Check
		if !res.Healthy {
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	for name, res := range s.evaluate(r.Context()) {
		if res.critical && !res.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "not ready: %s", name)
			return
		}
	}
	w.Write([]byte("ready"))
}
