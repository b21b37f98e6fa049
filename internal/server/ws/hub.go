// Package ws streams flow state transitions to front-end clients over
// WebSocket. Each client watches one wallet; the hub bridges the Redis flow
// bus so a client sees transitions no matter which server instance executes
// the flow.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aurumfi/goldvault/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 1024

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 64
)

// FlowStream is the subscription side of the flow bus.
type FlowStream interface {
	Subscribe(ctx context.Context, wallet string) (<-chan domain.FlowState, error)
}

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS policy is enforced at the HTTP middleware layer.
		return true
	},
}

// client represents a single WebSocket connection watching one wallet.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	wallet string
	send   chan []byte
	cancel context.CancelFunc
}

// Hub manages connected WebSocket clients and their flow subscriptions.
type Hub struct {
	stream     FlowStream
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	startedAt  time.Time
}

// Config captures runtime metadata included in the status envelope sent to
// clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// NewHub creates a Hub that serves flow transitions from the given stream.
func NewHub(stream FlowStream, logger *slog.Logger, cfg Config) *Hub {
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	mode := cfg.Mode
	if mode == "" {
		mode = "unknown"
	}

	return &Hub{
		stream:     stream,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger.With(slog.String("component", "ws")),
		mode:       mode,
		startedAt:  startedAt,
	}
}

// Run starts the hub's bookkeeping loop. It should be called in a goroutine
// and exits when the context is cancelled, closing every client.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.cancel()
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("client connected",
				slog.String("wallet", c.wallet),
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.cancel()
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected",
				slog.String("wallet", c.wallet),
				slog.Int("total_clients", h.clientCount()),
			)
		}
	}
}

// HandleWS upgrades the request and starts streaming the wallet's flow
// transitions.
// GET /ws?wallet=0x...
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if err := domain.ValidateWallet(wallet); err != nil {
		http.Error(w, "valid wallet query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		hub:    h,
		conn:   conn,
		wallet: wallet,
		send:   make(chan []byte, sendBufferSize),
		cancel: cancel,
	}

	h.register <- c
	c.sendStatus()

	go c.streamFlows(ctx)
	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// streamFlows subscribes to the wallet's flow channel and forwards each
// transition as a JSON text frame.
func (c *client) streamFlows(ctx context.Context) {
	states, err := c.hub.stream.Subscribe(ctx, c.wallet)
	if err != nil {
		c.hub.logger.Error("flow subscribe failed",
			slog.String("wallet", c.wallet),
			slog.String("error", err.Error()),
		)
		return
	}

	for state := range states {
		msg, err := json.Marshal(map[string]any{
			"type":    "flow_state",
			"payload": state,
		})
		if err != nil {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// Slow client; drop the frame rather than stall the stream.
			c.hub.logger.Warn("dropping flow frame for slow client",
				slog.String("wallet", c.wallet),
			)
		}
	}
}

// sendStatus pushes a status envelope so clients can mark the connection
// healthy before any flow is running.
func (c *client) sendStatus() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	msg, err := json.Marshal(map[string]any{
		"type": "status",
		"payload": map[string]any{
			"mode":           c.hub.mode,
			"wallet":         c.wallet,
			"connected":      true,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// readPump consumes the connection to detect closure and keep pong handling
// alive. Clients send no application messages.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close",
					slog.String("wallet", c.wallet),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection as JSON
// text frames, with periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
