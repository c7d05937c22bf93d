package wsconn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// streamServer accepts one websocket per request and hands it to serve.
func streamServer(t *testing.T, serve func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Logf("accept: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// dial connects a client to serve. tune adjusts the config and hook sets
// handlers before Connect; either may be nil.
func dial(t *testing.T, serve func(conn *websocket.Conn), tune func(*Config), hook func(*Client)) (*Client, context.Context) {
	t.Helper()
	cfg := DefaultConfig(streamServer(t, serve), "test")
	cfg.PingInterval = 0
	if tune != nil {
		tune(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if hook != nil {
		hook(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return c, ctx
}

func eventually(t *testing.T, within time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(within)
	for !cond() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return true
}

func echo(conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(context.Background())
		if err != nil || conn.Write(context.Background(), typ, data) != nil {
			return
		}
	}
}

func discard(conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(context.Background()); err != nil {
			return
		}
	}
}

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty url")
	}
}

func TestClient_StateTransitions(t *testing.T) {
	var (
		mu     sync.Mutex
		states []State
	)
	c, _ := dial(t, discard, nil, func(c *Client) {
		c.OnStateChange(func(s State, _ error) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		})
	})

	if !c.IsConnected() {
		t.Errorf("state = %s, want connected", c.State())
	}
	mu.Lock()
	if len(states) < 2 || states[0] != StateConnecting || states[1] != StateConnected {
		t.Errorf("states = %v, want connecting then connected", states)
	}
	mu.Unlock()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.State() != StateClosed {
		t.Errorf("state = %s, want closed", c.State())
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := c.Send(context.Background(), []byte("x")); err == nil {
		t.Error("Send after Close should fail")
	}
}

func TestClient_ConnectFailure(t *testing.T) {
	cfg := DefaultConfig("ws://127.0.0.1:1", "test")
	cfg.PingInterval = 0
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Fatal("expected Connect to fail")
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", c.State())
	}
}

func TestClient_DepthSubscription(t *testing.T) {
	got := make(chan []byte, 1)
	c, ctx := dial(t, echo, nil, func(c *Client) {
		c.OnMessage(func(_ context.Context, msg []byte) {
			select {
			case got <- msg:
			default:
			}
		})
	})

	sub := map[string]any{"method": "SUBSCRIBE", "params": []string{"ethusdt@depth20@100ms"}, "id": 7}
	if err := c.SendJSON(ctx, sub); err != nil {
		t.Fatalf("SendJSON() error = %v", err)
	}

	select {
	case msg := <-got:
		var echoed struct {
			Method string   `json:"method"`
			Params []string `json:"params"`
			ID     int      `json:"id"`
		}
		if err := json.Unmarshal(msg, &echoed); err != nil {
			t.Fatalf("echo is not JSON: %v (%s)", err, msg)
		}
		if echoed.Method != "SUBSCRIBE" || echoed.ID != 7 || len(echoed.Params) != 1 {
			t.Errorf("echo = %+v", echoed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no echo")
	}
}

func TestClient_ConcurrentSend(t *testing.T) {
	const senders, each = 8, 5

	var received atomic.Int32
	c, ctx := dial(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.Read(context.Background()); err != nil {
				return
			}
			received.Add(1)
		}
	}, nil, nil)

	var wg sync.WaitGroup
	for i := range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range each {
				if err := c.SendJSON(ctx, map[string]int{"sender": i, "n": n}); err != nil {
					t.Errorf("SendJSON() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if !eventually(t, 2*time.Second, func() bool { return received.Load() == senders*each }) {
		t.Errorf("server received %d messages, want %d", received.Load(), senders*each)
	}
}

func TestClient_OversizedMessageDisconnects(t *testing.T) {
	c, _ := dial(t, func(conn *websocket.Conn) {
		_ = conn.Write(context.Background(), websocket.MessageText, []byte(strings.Repeat("A", 4096)))
		time.Sleep(100 * time.Millisecond)
	}, func(cfg *Config) {
		cfg.MaxMessageSize = 100
		cfg.InitialBackoff = time.Minute
	}, nil)

	if !eventually(t, time.Second, func() bool { return !c.IsConnected() }) {
		t.Error("expected client to drop the connection after an oversized message")
	}
}

func TestClient_Reconnects(t *testing.T) {
	var accepts atomic.Int32
	c, _ := dial(t, func(conn *websocket.Conn) {
		if accepts.Add(1) == 1 {
			return
		}
		discard(conn)
	}, func(cfg *Config) {
		cfg.InitialBackoff = 10 * time.Millisecond
		cfg.MaxBackoff = 20 * time.Millisecond
	}, nil)

	if !eventually(t, 2*time.Second, func() bool { return accepts.Load() >= 2 && c.IsConnected() }) {
		t.Errorf("accepts = %d, state = %s; want a live second connection", accepts.Load(), c.State())
	}
}
