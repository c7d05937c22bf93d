package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/savings-bench/internal/apperror"
	"github.com/fd1az/savings-bench/internal/logger"
	"github.com/fd1az/savings-bench/internal/wsconn"
)

const (
	tracerName = "github.com/fd1az/savings-bench/business/pricing/infra/binance"
	meterName  = "binance"

	// BaseWSURL is the public market-data stream endpoint.
	BaseWSURL = "wss://stream.binance.com:9443"

	// Binance drops connections that send nothing for 3 minutes.
	keepAliveInterval = 2 * time.Minute
)

// StreamConfig configures the depth stream.
type StreamConfig struct {
	BaseURL      string
	Symbols      []string
	Levels       int // 5, 10 or 20
	SpeedMs      int // 100 or 1000
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type streamMetrics struct {
	messages     metric.Int64Counter
	depthUpdates metric.Int64Counter
	parseErrors  metric.Int64Counter
}

// StreamClient subscribes to partial depth streams and hands every snapshot
// to the registered handler.
type StreamClient struct {
	config StreamConfig
	logger logger.LoggerInterface

	conn   *wsconn.Client
	connMu sync.RWMutex

	onDepth   func(*PartialDepthEvent)
	handlerMu sync.RWMutex

	nextID        atomic.Int64
	stopKeepAlive chan struct{}
	stopOnce      sync.Once

	tracer  trace.Tracer
	metrics streamMetrics
}

// NewStreamClient creates a client. It does not connect.
func NewStreamClient(cfg StreamConfig, log logger.LoggerInterface) (*StreamClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseWSURL
	}
	if cfg.Levels == 0 {
		cfg.Levels = 20
	}
	if cfg.SpeedMs == 0 {
		cfg.SpeedMs = 100
	}

	c := &StreamClient{
		config:        cfg,
		logger:        log,
		stopKeepAlive: make(chan struct{}),
		tracer:        otel.Tracer(tracerName),
	}

	meter := otel.Meter(meterName)
	var err error
	if c.metrics.messages, err = meter.Int64Counter("binance_messages_total",
		metric.WithDescription("Total stream messages received")); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	if c.metrics.depthUpdates, err = meter.Int64Counter("binance_depth_updates_total",
		metric.WithDescription("Total depth snapshots received")); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	if c.metrics.parseErrors, err = meter.Int64Counter("binance_parse_errors_total",
		metric.WithDescription("Stream message parse errors")); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return c, nil
}

// OnDepth registers the snapshot handler.
func (c *StreamClient) OnDepth(handler func(*PartialDepthEvent)) {
	c.handlerMu.Lock()
	c.onDepth = handler
	c.handlerMu.Unlock()
}

// Connect dials the combined stream for all configured symbols.
func (c *StreamClient) Connect(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "binance.stream.connect",
		trace.WithAttributes(attribute.StringSlice("symbols", c.config.Symbols)),
	)
	defer span.End()

	wsURL, err := c.streamURL()
	if err != nil {
		return err
	}

	wsCfg := wsconn.DefaultConfig(wsURL, "binance")
	if c.config.ReadTimeout > 0 {
		wsCfg.ReadTimeout = c.config.ReadTimeout
	}
	if c.config.WriteTimeout > 0 {
		wsCfg.WriteTimeout = c.config.WriteTimeout
	}
	wsCfg.Logger = c.logger

	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return err
	}
	conn.OnMessage(c.handleMessage)

	if err := conn.ConnectWithRetry(ctx); err != nil {
		span.RecordError(err)
		return apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithVenue("Binance"),
			apperror.WithCause(err),
			apperror.WithContext("failed to connect depth stream"))
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	go c.keepAlive(ctx)

	c.logger.Info(ctx, "binance depth stream connected", "symbols", c.config.Symbols)
	return nil
}

// streamURL builds /stream?streams=a@depth20@100ms/b@depth20@100ms.
func (c *StreamClient) streamURL() (string, error) {
	if len(c.config.Symbols) == 0 {
		return "", apperror.Configuration("binance stream has no symbols")
	}
	streams := make([]string, 0, len(c.config.Symbols))
	for _, sym := range c.config.Symbols {
		streams = append(streams, DepthStream(sym, c.config.Levels, c.config.SpeedMs))
	}

	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", apperror.Configuration("invalid binance stream url: " + err.Error())
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

func (c *StreamClient) handleMessage(ctx context.Context, data []byte) {
	c.metrics.messages.Add(ctx, 1)

	var event StreamEvent
	if err := json.Unmarshal(data, &event); err != nil || event.Stream == "" {
		var resp WSResponse
		if json.Unmarshal(data, &resp) == nil && resp.ID != 0 {
			return
		}
		c.metrics.parseErrors.Add(ctx, 1)
		c.logger.Debug(ctx, "unparseable stream message", "data", string(data[:min(len(data), 200)]))
		return
	}
	if !strings.Contains(event.Stream, "@depth") {
		return
	}

	var depth PartialDepthEvent
	if err := json.Unmarshal(event.Data, &depth); err != nil {
		c.metrics.parseErrors.Add(ctx, 1)
		c.logger.Warn(ctx, "failed to parse partial depth", "stream", event.Stream, "error", err)
		return
	}
	depth.Symbol = symbolFromStream(event.Stream)
	c.metrics.depthUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", depth.Symbol)))

	c.handlerMu.RLock()
	handler := c.onDepth
	c.handlerMu.RUnlock()
	if handler != nil {
		handler(&depth)
	}
}

// keepAlive sends LIST_SUBSCRIPTIONS periodically.
func (c *StreamClient) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopKeepAlive:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				continue
			}
			req := WSRequest{Method: "LIST_SUBSCRIPTIONS", ID: c.nextID.Add(1)}
			if err := conn.SendJSON(ctx, req); err != nil {
				c.logger.Warn(ctx, "binance keep-alive failed", "error", err)
			}
		}
	}
}

// IsConnected reports whether the stream is up.
func (c *StreamClient) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close stops the stream. It is idempotent.
func (c *StreamClient) Close() error {
	c.stopOnce.Do(func() { close(c.stopKeepAlive) })

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
