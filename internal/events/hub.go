package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 64
)

// wsEvent is the JSON envelope sent to WebSocket clients.
type wsEvent struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id"`
	Text      string `json:"text,omitempty"`
	FullText  string `json:"full_text"`
}

// Hub bridges bus events to WebSocket subscribers. Every connected client
// receives every transcript event; clients too slow to keep up are
// disconnected rather than allowed to stall the broadcast.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	bus      *Bus

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub subscribed to the bus's transcript topics.
func NewHub(bus *Bus, logger *slog.Logger) (*Hub, error) {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		bus:     bus,
		clients: make(map[*client]struct{}),
	}

	if err := bus.SubscribeLine(h.onLine); err != nil {
		return nil, err
	}

	if err := bus.SubscribeComplete(h.onComplete); err != nil {
		return nil, err
	}

	return h, nil
}

func (h *Hub) onLine(ev LineEvent) {
	h.broadcast(wsEvent{
		Event:     "transcription_update",
		SessionID: ev.SessionID,
		Text:      ev.Text,
		FullText:  ev.FullText,
	})
}

func (h *Hub) onComplete(ev CompleteEvent) {
	h.broadcast(wsEvent{
		Event:     "transcription_complete",
		SessionID: ev.SessionID,
		FullText:  ev.FullText,
	})
}

// broadcast sends an event to all connected clients.
func (h *Hub) broadcast(ev wsEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to marshal event", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Slow consumer; drop the connection.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket subscription.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, clientSendSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("WebSocket client connected",
		slog.String("remote", conn.RemoteAddr().String()),
		slog.Int("clients", count),
	)

	go h.writePump(c)
	go h.readPump(c)
}

// writePump drains the client's send queue and keeps the connection alive
// with pings.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.drop(c)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readPump discards inbound messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// drop unregisters a client if it is still registered.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Close disconnects all clients and stops accepting new ones.
func (h *Hub) Close() {
	h.bus.UnsubscribeLine(h.onLine)
	h.bus.UnsubscribeComplete(h.onComplete)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
