// Package websocket provides a reconnecting WebSocket client for venue feeds.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// State is the connection lifecycle state.
type State string

const (
	// StateDisconnected means no connection and no retry in progress.
	StateDisconnected State = "disconnected"
	// StateConnected means the connection is established.
	StateConnected State = "connected"
	// StateReconnecting means a backoff retry loop is running.
	StateReconnecting State = "reconnecting"
)

// Client is a WebSocket client with supervised reconnection: a bounded
// exponential backoff loop that is cancellable on shutdown.
type Client struct {
	url           string
	conn          *websocket.Conn
	connMu        sync.RWMutex
	reconnectWait time.Duration
	maxWait       time.Duration
	maxRetries    int
	pingInterval  time.Duration
	pongWait      time.Duration
	writeWait     time.Duration
	logger        zerolog.Logger
	headers       http.Header

	send chan []byte
	done chan struct{}

	onMessage    func([]byte)
	onConnect    func()
	onDisconnect func(error)

	state   State
	attempt int
	stateMu sync.RWMutex

	closed  bool
	closeMu sync.Mutex

	// ctx is the supervision context passed to Start; reconnect attempts
	// stop when it is canceled.
	ctx context.Context
}

// Config holds WebSocket client configuration.
type Config struct {
	URL           string
	ReconnectWait time.Duration // initial backoff, doubled up to MaxWait
	MaxWait       time.Duration
	MaxRetries    int // <=0 means retry forever
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	Logger        zerolog.Logger
	Headers       http.Header
}

// NewClient creates a new WebSocket client.
func NewClient(cfg Config) *Client {
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 60 * time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait == 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait == 0 {
		cfg.WriteWait = 10 * time.Second
	}

	return &Client{
		url:           cfg.URL,
		reconnectWait: cfg.ReconnectWait,
		maxWait:       cfg.MaxWait,
		maxRetries:    cfg.MaxRetries,
		pingInterval:  cfg.PingInterval,
		pongWait:      cfg.PongWait,
		writeWait:     cfg.WriteWait,
		logger:        cfg.Logger,
		headers:       cfg.Headers,
		send:          make(chan []byte, 256),
		done:          make(chan struct{}),
		state:         StateDisconnected,
		ctx:           context.Background(),
	}
}

// SetHandlers sets the event handlers.
func (c *Client) SetHandlers(onMessage func([]byte), onConnect func(), onDisconnect func(error)) {
	c.onMessage = onMessage
	c.onConnect = onConnect
	c.onDisconnect = onDisconnect
}

// Start connects with retry and supervises the connection until Close or
// context cancellation. The handshake of the first connection is attempted
// inline so a misconfigured endpoint surfaces at startup.
func (c *Client) Start(ctx context.Context) error {
	c.ctx = ctx
	return c.connectWithRetry(ctx)
}

// State returns the connection state and the current retry attempt.
func (c *Client) State() (State, int) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state, c.attempt
}

// IsConnected reports whether the connection is established.
func (c *Client) IsConnected() bool {
	state, _ := c.State()
	return state == StateConnected
}

// Send queues a message for delivery.
func (c *Client) Send(data []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	select {
	case c.send <- data:
		return nil
	case <-time.After(c.writeWait):
		return ErrSendTimeout
	}
}

// SendJSON writes a JSON message directly, serialized against other writers.
func (c *Client) SendJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteJSON(v)
}

// Close tears down the connection and stops all retries.
func (c *Client) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	c.setState(StateDisconnected, 0)
	close(c.done)

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
		return err
	}

	return nil
}

func (c *Client) connect(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, c.url, c.headers)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.setState(StateConnected, 0)

	if c.onConnect != nil {
		c.onConnect()
	}

	c.logger.Info().Str("url", c.url).Msg("WebSocket connected")

	go c.readPump(conn)
	go c.writePump()
	go c.pingPump()

	return nil
}

// connectWithRetry runs the bounded exponential backoff loop.
func (c *Client) connectWithRetry(ctx context.Context) error {
	wait := c.reconnectWait
	attempt := 0

	for {
		err := c.connect(ctx)
		if err == nil {
			return nil
		}

		attempt++
		if c.maxRetries > 0 && attempt >= c.maxRetries {
			return ErrMaxRetriesExceeded
		}

		c.setState(StateReconnecting, attempt)
		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("WebSocket connection failed, retrying")

		select {
		case <-ctx.Done():
			c.setState(StateDisconnected, 0)
			return ctx.Err()
		case <-c.done:
			c.setState(StateDisconnected, 0)
			return ErrConnectionLost
		case <-time.After(wait):
			wait *= 2
			if wait > c.maxWait {
				wait = c.maxWait
			}
		}
	}
}

func (c *Client) setState(state State, attempt int) {
	c.stateMu.Lock()
	c.state = state
	c.attempt = attempt
	c.stateMu.Unlock()
}

// readPump reads messages from the WebSocket until the connection drops,
// then hands control to the reconnect supervisor.
func (c *Client) readPump(conn *websocket.Conn) {
	defer c.reconnect()

	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("WebSocket read error")
			}
			return
		}

		if c.onMessage != nil {
			c.onMessage(message)
		}
	}
}

// writePump writes queued messages to the WebSocket.
func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.connMu.Lock()
			conn := c.conn
			if conn == nil {
				c.connMu.Unlock()
				continue
			}

			_ = conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			err := conn.WriteMessage(websocket.TextMessage, message)
			c.connMu.Unlock()

			if err != nil {
				c.logger.Error().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

// pingPump sends periodic ping messages.
func (c *Client) pingPump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			if conn == nil {
				c.connMu.Unlock()
				continue
			}

			_ = conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.connMu.Unlock()

			if err != nil {
				c.logger.Warn().Err(err).Msg("WebSocket ping failed")
				return
			}
		}
	}
}

// reconnect re-enters the retry loop after a dropped connection, unless the
// client or its supervision context is shutting down.
func (c *Client) reconnect() {
	select {
	case <-c.done:
		return
	case <-c.ctx.Done():
		c.setState(StateDisconnected, 0)
		return
	default:
	}

	c.setState(StateReconnecting, 0)

	if c.onDisconnect != nil {
		c.onDisconnect(ErrConnectionLost)
	}

	c.logger.Warn().Msg("WebSocket disconnected, attempting to reconnect")

	if err := c.connectWithRetry(c.ctx); err != nil {
		c.logger.Error().Err(err).Msg("WebSocket reconnection failed")
	}
}
