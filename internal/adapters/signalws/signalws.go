package signalws

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"statArbExecutor/internal/ports"
)

const writeWait = 10 * time.Second

// Feed subscribes to the signal producer's WebSocket endpoint and delivers
// raw frames to the registered handler. It implements ports.SignalFeed.
//
// Reconnection is handled internally: when the connection drops, the feed
// reports the error and redials with exponential backoff. Messages are
// delivered in arrival order from a single goroutine.
type Feed struct {
	url    string
	logger ports.Logger

	handshakeTimeout     time.Duration
	pingInterval         time.Duration
	pongWait             time.Duration
	maxMessageBytes      int64
	reconnectMin         time.Duration
	reconnectMax         time.Duration
	maxReconnectAttempts int
}

// Config holds configuration for the WebSocket signal feed.
type Config struct {
	URL    string // ws:// or wss:// endpoint of the signal producer
	Logger ports.Logger

	HandshakeTimeout time.Duration // Default 10s
	PingInterval     time.Duration // Default 20s, must stay below PongWait
	PongWait         time.Duration // Default 60s
	MaxMessageBytes  int64         // Default 1 MiB

	ReconnectMin time.Duration // Default 1s
	ReconnectMax time.Duration // Default 30s
	// MaxReconnectAttempts bounds consecutive failed redials before the feed
	// gives up and closes its done channel. Zero retries forever, matching
	// the transport behavior signal producers expect from subscribers.
	MaxReconnectAttempts int
}

// New creates a WebSocket signal feed client.
func New(cfg Config) (*Feed, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for signal feed", ports.ErrConfigurationError)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: signal feed URL is required", ports.ErrConfigurationError)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signal feed URL %q: %v", ports.ErrConfigurationError, cfg.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: signal feed URL scheme must be ws or wss, got %q", ports.ErrConfigurationError, u.Scheme)
	}

	f := &Feed{
		url:                  cfg.URL,
		logger:               cfg.Logger,
		handshakeTimeout:     cfg.HandshakeTimeout,
		pingInterval:         cfg.PingInterval,
		pongWait:             cfg.PongWait,
		maxMessageBytes:      cfg.MaxMessageBytes,
		reconnectMin:         cfg.ReconnectMin,
		reconnectMax:         cfg.ReconnectMax,
		maxReconnectAttempts: cfg.MaxReconnectAttempts,
	}
	if f.handshakeTimeout <= 0 {
		f.handshakeTimeout = 10 * time.Second
	}
	if f.pingInterval <= 0 {
		f.pingInterval = 20 * time.Second
	}
	if f.pongWait <= 0 {
		f.pongWait = 60 * time.Second
	}
	if f.maxMessageBytes <= 0 {
		f.maxMessageBytes = 1 << 20
	}
	if f.reconnectMin <= 0 {
		f.reconnectMin = time.Second
	}
	if f.reconnectMax <= 0 {
		f.reconnectMax = 30 * time.Second
	}
	return f, nil
}

// Subscribe dials the producer and starts the delivery loop. The initial dial
// is synchronous so callers learn immediately when the endpoint is down;
// subsequent drops are retried internally.
func (f *Feed) Subscribe(ctx context.Context, handler func(raw []byte), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	conn, err := f.dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	f.logger.Info(ctx, "Signal feed connected", map[string]interface{}{"url": f.url})

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})
	go f.run(ctx, conn, handler, errHandler, doneCh, stopCh)
	return doneCh, stopCh, nil
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: f.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ports.ErrConnectionFailed, f.url, err)
	}
	conn.SetReadLimit(f.maxMessageBytes)
	return conn, nil
}

// run owns the connection for its whole lifetime, reconnecting as needed.
// doneCh closes only when run returns, so it always closes after a stop
// request has been honored.
func (f *Feed) run(ctx context.Context, conn *websocket.Conn, handler func(raw []byte), errHandler func(err error), doneCh, stopCh chan struct{}) {
	defer close(doneCh)

	b := &backoff.Backoff{
		Min:    f.reconnectMin,
		Max:    f.reconnectMax,
		Factor: 2,
		Jitter: true,
	}

	for {
		readErr := f.readLoop(ctx, conn, handler, stopCh)
		conn.Close()

		if stopRequested(ctx, stopCh) {
			f.logger.Info(ctx, "Signal feed stopped", map[string]interface{}{"url": f.url})
			return
		}
		errHandler(readErr)

		attempt := 0
		for {
			attempt++
			if f.maxReconnectAttempts > 0 && attempt > f.maxReconnectAttempts {
				f.logger.Error(ctx, readErr, "Signal feed giving up after repeated reconnect failures", map[string]interface{}{
					"url":         f.url,
					"maxAttempts": f.maxReconnectAttempts,
				})
				return
			}

			delay := b.Duration()
			f.logger.Warn(ctx, "Signal feed reconnecting", map[string]interface{}{
				"url":     f.url,
				"attempt": attempt,
				"delay":   delay.String(),
			})
			select {
			case <-time.After(delay):
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}

			newConn, err := f.dial(ctx)
			if err != nil {
				f.logger.Warn(ctx, "Signal feed reconnect attempt failed", map[string]interface{}{
					"url":     f.url,
					"attempt": attempt,
					"error":   err.Error(),
				})
				continue
			}
			conn = newConn
			b.Reset()
			f.logger.Info(ctx, "Signal feed reconnected", map[string]interface{}{"url": f.url, "attempt": attempt})
			break
		}
	}
}

// readLoop reads frames from one connection until it fails or a stop is
// requested. A companion goroutine keeps the connection alive with pings and
// closes it when asked to stop, which unblocks the blocking read.
func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn, handler func(raw []byte), stopCh chan struct{}) error {
	readerDone := make(chan struct{})
	defer close(readerDone)

	go func() {
		ticker := time.NewTicker(f.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-stopCh:
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				conn.Close()
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-readerDone:
				return
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(f.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(f.pongWait))
		handler(raw)
	}
}

func stopRequested(ctx context.Context, stopCh chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
	}
	return ctx.Err() != nil
}
