// Package ws streams spike events to WebSocket clients. The hub satisfies the
// alert sender contract, so it sits in the notifier fan-out next to the
// console and webhook senders whenever the HTTP server is enabled.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message. Clients are
	// not expected to send anything beyond control frames.
	maxMessageSize = 512

	// sendBufferSize is the channel buffer for outgoing messages per client.
	// It must hold at least a full backlog plus the status frame.
	sendBufferSize = 64

	// backlogSize is how many recent spike frames are replayed to a client
	// that connects after the excitement happened.
	backlogSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The status API binds locally; allow all origins.
		return true
	},
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// envelope is the framing for every message pushed to clients.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub fans spike events out to connected WebSocket clients. The run loop is
// the sole owner of the client set and the replay backlog; registration,
// disconnects, and broadcasts all pass through its channels, so none of that
// state needs locking.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	// done is closed when Run returns, releasing goroutines blocked on the
	// channels above.
	done chan struct{}

	// Owned by Run.
	clients map[*client]bool
	backlog [][]byte

	logger    *slog.Logger
	startedAt time.Time
}

// NewHub creates a hub ready to accept connections once Run is started.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		clients:    make(map[*client]bool),
		logger:     logger.With(slog.String("component", "ws")),
		startedAt:  time.Now().UTC(),
	}
}

// Send queues one spike event for broadcast. It satisfies the alert sender
// contract; a hub with no connected clients accepts events and discards them.
func (h *Hub) Send(_ context.Context, ev domain.SpikeEvent) error {
	msg, err := json.Marshal(envelope{Type: "spike", Payload: ev})
	if err != nil {
		return fmt.Errorf("ws: marshal spike event %s: %w", ev.ID, err)
	}

	select {
	case h.broadcast <- msg:
	default:
		// The hub loop is stalled or not running; drop rather than block the
		// scan cycle.
		h.logger.Warn("ws: dropping spike event, broadcast buffer full",
			slog.String("ticker", ev.Ticker),
		)
	}
	return nil
}

// Name identifies the hub in notifier logs.
func (h *Hub) Name() string {
	return "ws"
}

// Run drives the hub until ctx is cancelled: it admits and removes clients,
// fans broadcast frames out, and maintains the replay backlog. Call it in a
// goroutine before serving connections.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return ctx.Err()

		case c := <-h.register:
			h.clients[c] = true
			h.greet(c)
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", len(h.clients)),
			)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", len(h.clients)),
			)

		case msg := <-h.broadcast:
			h.backlog = append(h.backlog, msg)
			if len(h.backlog) > backlogSize {
				h.backlog = h.backlog[len(h.backlog)-backlogSize:]
			}

			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("ws: dropping message for slow client")
				}
			}
		}
	}
}

// greet queues the connection status frame followed by the spike backlog for
// a client that just registered, so late joiners see recent activity before
// the next live event.
func (h *Hub) greet(c *client) {
	status, err := json.Marshal(envelope{
		Type: "status",
		Payload: map[string]any{
			"connected":      true,
			"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
			"backlog":        len(h.backlog),
		},
	})
	if err == nil {
		c.trySend(status)
	}

	for _, msg := range h.backlog {
		c.trySend(msg)
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// trySend queues a frame without blocking. The run loop calls this; a full
// client buffer loses the frame instead of stalling every other client.
func (c *client) trySend(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

// readPump drains the WebSocket connection. Inbound frames carry nothing the
// hub acts on; the loop exists to service pongs and to notice the close.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
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
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection as JSON
// text frames, with periodic ping frames for keepalive.
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
				// The hub closed the channel.
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
