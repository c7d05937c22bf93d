// Package wsconn is a WebSocket client with ping keepalive and automatic
// reconnection, built on coder/websocket.
package wsconn

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/logger"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL  string
	Name string
	// Headers are sent with the handshake.
	Headers http.Header

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
	AutoReconnect  bool

	PingInterval time.Duration // 0 disables pings
	PongTimeout  time.Duration
	// ReadTimeout drops a connection that stays silent this long. 0 disables.
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64

	Logger logger.LoggerInterface
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		AutoReconnect:  true,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

// Client is a reconnecting WebSocket client. Send and SendJSON are safe for
// concurrent use.
type Client struct {
	cfg Config

	mu            sync.RWMutex
	conn          *websocket.Conn
	state         State
	onMessage     func(ctx context.Context, msg []byte)
	onStateChange func(state State, err error)

	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a client. It does not connect.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("websocket url is empty"))
	}
	if cfg.Name == "" {
		cfg.Name = cfg.URL
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:    cfg,
		state:  StateDisconnected,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// OnMessage sets the handler for inbound messages. Handlers run on the read
// goroutine and must not block for long.
func (c *Client) OnMessage(fn func(ctx context.Context, msg []byte)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// OnStateChange sets the handler called on every state transition.
func (c *Client) OnStateChange(fn func(state State, err error)) {
	c.mu.Lock()
	c.onStateChange = fn
	c.mu.Unlock()
}

// Connect dials once and starts the read and ping loops.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.cfg.Name))
	}

	c.setState(StateConnecting, nil)

	conn, _, err := websocket.Dial(ctx, c.cfg.URL, &websocket.DialOptions{HTTPHeader: c.cfg.Headers})
	if err != nil {
		werr := apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithContext(c.cfg.Name), apperror.WithCause(err))
		c.setState(StateDisconnected, werr)
		return werr
	}
	if c.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(c.cfg.MaxMessageSize)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected, nil)

	c.wg.Add(1)
	go c.readLoop(conn)

	if c.cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop(conn)
	}
	return nil
}

// ConnectWithRetry dials with exponential backoff until it succeeds,
// MaxReconnects attempts fail or ctx is done.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.MaxInterval = c.cfg.MaxBackoff

	opts := []backoff.RetryOption{backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(0)}
	if c.cfg.MaxReconnects > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(c.cfg.MaxReconnects)))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if c.closed.Load() {
			return struct{}{}, backoff.Permanent(apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.cfg.Name)))
		}
		return struct{}{}, c.Connect(ctx)
	}, opts...)
	return err
}

// Send writes a text message.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	conn := c.current()
	if conn == nil {
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.cfg.Name))
	}

	if c.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()
	}

	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return apperror.New(apperror.CodeWebSocketSendError, apperror.WithContext(c.cfg.Name), apperror.WithCause(err))
	}
	return nil
}

// SendJSON marshals v and sends it as a text message.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperror.New(apperror.CodeWebSocketSendError, apperror.WithContext("marshal"), apperror.WithCause(err))
	}
	return c.Send(ctx, data)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Close performs a normal closure and stops reconnecting. It is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			if err := conn.Close(websocket.StatusNormalClosure, "client closing"); err != nil {
				c.debug("websocket close handshake failed", "error", err)
			}
		}
		c.cancel()
		c.wg.Wait()
		c.setState(StateClosed, nil)
	})
	return nil
}

func (c *Client) current() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		readCtx, cancel := c.ctx, context.CancelFunc(func() {})
		if c.cfg.ReadTimeout > 0 {
			readCtx, cancel = context.WithTimeout(c.ctx, c.cfg.ReadTimeout)
		}
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		c.mu.RLock()
		handler := c.onMessage
		c.mu.RUnlock()
		if handler != nil {
			handler(c.ctx, data)
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.current() != conn {
				return
			}
			timeout := c.cfg.PongTimeout
			if timeout <= 0 {
				timeout = c.cfg.PingInterval
			}
			ctx, cancel := context.WithTimeout(c.ctx, timeout)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				c.debug("websocket ping failed", "error", err)
				// The read loop observes the closed conn and handles reconnection.
				_ = conn.CloseNow()
				return
			}
		}
	}
}

func (c *Client) handleDisconnect(conn *websocket.Conn, err error) {
	if c.closed.Load() {
		return
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.CloseNow()

	werr := apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.cfg.Name), apperror.WithCause(err))
	c.setState(StateDisconnected, werr)

	if !c.cfg.AutoReconnect {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.setState(StateReconnecting, werr)
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.cfg.InitialBackoff):
		}
		if err := c.ConnectWithRetry(c.ctx); err != nil && !c.closed.Load() {
			if c.cfg.Logger != nil {
				c.cfg.Logger.Warn(c.ctx, "websocket reconnect gave up", "name", c.cfg.Name, "error", err)
			}
		}
	}()
}

func (c *Client) setState(s State, err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = s
	handler := c.onStateChange
	c.mu.Unlock()

	if handler != nil {
		handler(s, err)
	}
}

func (c *Client) debug(msg string, args ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Debug(c.ctx, msg, append([]any{"name", c.cfg.Name}, args...)...)
	}
}
