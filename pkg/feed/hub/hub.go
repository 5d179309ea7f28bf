package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JirA44/obelisk-dex-sub013/pkg/feed"
	"github.com/JirA44/obelisk-dex-sub013/pkg/logging"
	"github.com/JirA44/obelisk-dex-sub013/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
)

// Hub is the WebSocket fan-out server. Every aggregated price that reaches
// Publish is broadcast to all subscribed clients in publish order. New
// clients receive a snapshot of the latest known prices on connect, so
// they never start from a blank state.
type Hub struct {
	addr         string
	clientBuffer int
	logger       *logging.Logger
	upgrader     websocket.Upgrader

	// mu guards clients and latest together: snapshot-on-connect and
	// broadcast take the same lock, so a client sees the snapshot
	// followed by every later update with no gap and no duplicate.
	mu      sync.Mutex
	clients map[*Client]bool
	latest  map[string]feed.AggregatedPrice

	updates chan feed.AggregatedPrice

	ctx    context.Context
	cancel context.CancelFunc
}

// Client represents a connected WebSocket subscriber.
type Client struct {
	conn          *websocket.Conn
	send          chan []byte
	hub           *Hub
	subscribedAll bool
	assets        map[string]bool
	closed        bool
	mu            sync.RWMutex
	closeOnce     sync.Once
}

// clientMessage is a message received from a subscriber.
type clientMessage struct {
	Type   string   `json:"type"`   // "subscribe", "unsubscribe", "ping"
	Assets []string `json:"assets"` // asset symbols, empty or ["*"] for all
}

// snapshotMessage is sent once on connect.
type snapshotMessage struct {
	Type string                          `json:"type"` // "snapshot"
	Data map[string]feed.AggregatedPrice `json:"data"`
}

// priceMessage is sent for every aggregation the client is subscribed to.
type priceMessage struct {
	Type  string               `json:"type"` // "price"
	Asset string               `json:"asset"`
	Data  feed.AggregatedPrice `json:"data"`
}

// New creates a distribution hub listening on addr.
func New(addr string, clientBuffer int, logger *logging.Logger) *Hub {
	if clientBuffer <= 0 {
		clientBuffer = 256
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		addr:         addr,
		clientBuffer: clientBuffer,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		clients: make(map[*Client]bool),
		latest:  make(map[string]feed.AggregatedPrice),
		updates: make(chan feed.AggregatedPrice, 1024),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Name identifies the hub as a dispatch sink.
func (h *Hub) Name() string { return "hub" }

// Publish enqueues an aggregated price for broadcast. It never blocks the
// caller: when the broadcast queue is saturated the update is dropped and
// counted, the pipeline is not stalled.
func (h *Hub) Publish(_ context.Context, price feed.AggregatedPrice) error {
	select {
	case h.updates <- price:
		return nil
	default:
		metrics.RecordHubDrop()
		h.logger.Warn("Hub broadcast queue full, dropping update", "asset", price.Asset)
		return nil
	}
}

// Start begins serving WebSocket connections and broadcasting updates. It
// blocks until Stop is called or the parent context is cancelled.
func (h *Hub) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)

	server := &http.Server{
		Addr:              h.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go h.broadcastLoop()

	h.logger.Info("Starting distribution hub", "addr", h.addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("Hub server error", "error", err)
		}
	}()

	select {
	case <-h.ctx.Done():
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Stop shuts the hub down.
func (h *Hub) Stop() {
	h.cancel()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcastLoop() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case price := <-h.updates:
			h.broadcast(price)
		}
	}
}

// broadcast records the price as the latest for its asset and sends it to
// every subscribed client. A client whose send buffer is full is pruned:
// one slow consumer must not hold back the rest.
func (h *Hub) broadcast(price feed.AggregatedPrice) {
	data, err := json.Marshal(priceMessage{
		Type:  "price",
		Asset: price.Asset,
		Data:  price,
	})
	if err != nil {
		h.logger.Error("Failed to marshal price message", "error", err)
		return
	}

	h.mu.Lock()
	h.latest[price.Asset] = price

	var pruned []*Client
	for client := range h.clients {
		if !client.wants(price.Asset) {
			continue
		}
		if client.trySend(data) {
			metrics.RecordHubMessage()
		} else {
			pruned = append(pruned, client)
		}
	}
	for _, client := range pruned {
		delete(h.clients, client)
	}
	metrics.RecordHubClients(len(h.clients))
	h.mu.Unlock()

	for _, client := range pruned {
		metrics.RecordHubDrop()
		h.logger.Warn("Pruning slow client", "remote", client.conn.RemoteAddr())
		client.close()
	}
}

// handleWebSocket upgrades the connection, applies the optional ?assets=
// filter and registers the client. The snapshot is queued under the same
// lock that serializes broadcasts, so the first frame a client reads is
// the snapshot and every later frame is an update it has not seen.
func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := &Client{
		conn:          conn,
		send:          make(chan []byte, h.clientBuffer),
		hub:           h,
		subscribedAll: true,
		assets:        make(map[string]bool),
	}

	if filter := r.URL.Query().Get("assets"); filter != "" {
		client.setSubscription(strings.Split(filter, ","))
	}

	h.mu.Lock()
	snapshot := make(map[string]feed.AggregatedPrice, len(h.latest))
	for asset, price := range h.latest {
		if client.wants(asset) {
			snapshot[asset] = price
		}
	}
	if data, err := json.Marshal(snapshotMessage{Type: "snapshot", Data: snapshot}); err == nil {
		client.send <- data
	}
	h.clients[client] = true
	metrics.RecordHubClients(len(h.clients))
	h.mu.Unlock()

	go client.writePump()
	go client.readPump()

	h.logger.Info("Client connected", "remote", conn.RemoteAddr())
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		metrics.RecordHubClients(len(h.clients))
	}
	h.mu.Unlock()
	client.close()
}

// wants reports whether the client is subscribed to the asset.
func (c *Client) wants(asset string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribedAll || c.assets[asset]
}

// setSubscription replaces the client's asset filter. Empty or ["*"]
// means all assets.
func (c *Client) setSubscription(assets []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(assets) == 0 || (len(assets) == 1 && assets[0] == "*") {
		c.subscribedAll = true
		c.assets = make(map[string]bool)
		return
	}

	c.subscribedAll = false
	c.assets = make(map[string]bool, len(assets))
	for _, asset := range assets {
		asset = strings.TrimSpace(asset)
		if asset != "" {
			c.assets[asset] = true
		}
	}
}

func (c *Client) unsubscribeFrom(assets []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscribedAll {
		return
	}
	for _, asset := range assets {
		delete(c.assets, strings.TrimSpace(asset))
	}
}

// close marks the client closed before closing its send channel. The read
// pump may still be handling an inbound message when the hub prunes the
// client, so every writer to c.send goes through trySend, which checks the
// flag under the same lock.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
	})
}

// trySend queues a message without blocking. It reports false when the
// client is closed or its buffer is full.
func (c *Client) trySend(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("Client read error", "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.hub.logger.Warn("Invalid client message", "error", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.setSubscription(msg.Assets)
	case "unsubscribe":
		c.unsubscribeFrom(msg.Assets)
	case "ping":
		if data, err := json.Marshal(map[string]string{"type": "pong"}); err == nil {
			c.trySend(data)
		}
	default:
		c.hub.logger.Warn("Unknown message type", "type", msg.Type)
	}
}
