package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"token-swap-escrow/internal/domain"
	"token-swap-escrow/internal/escrow"
	"token-swap-escrow/internal/observability"
)

const (
	// writeWait is the deadline for a single frame write.
	writeWait = 10 * time.Second
	// pingInterval must be shorter than pongWait.
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	// sendBuffer is the per-subscriber outbound queue. A subscriber that
	// falls this far behind is dropped rather than blocking the broadcast.
	sendBuffer = 64
)

// Hub broadcasts swap events to WebSocket subscribers. It implements
// escrow.EventSink, so the engine pushes every transition through it.
type Hub struct {
	logger *log.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// Compile-time interface check.
var _ escrow.EventSink = (*Hub)(nil)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Emit marshals the event and queues it to every connected subscriber.
// Subscribers with a full queue are disconnected.
func (h *Hub) Emit(_ context.Context, e *domain.SwapEvent) error {
	msg, err := json.Marshal(eventResponse{
		SwapID:    e.SwapID,
		Kind:      e.Kind,
		PartyA:    string(e.PartyA),
		PartyB:    string(e.PartyB),
		AmountA:   e.AmountA,
		AmountB:   e.AmountB,
		Deadline:  e.Deadline,
		Timestamp: e.Timestamp,
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Printf("dropping slow websocket subscriber")
		h.remove(c)
	}

	observability.RecordEventBroadcast()
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is read-only and carries no credentials.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeHTTP upgrades the request and streams events until the peer
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade: %v", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	observability.DefaultMetrics.WSSubscribers.Inc()

	go h.writeLoop(c)
	go h.readLoop(c)
}

// writeLoop drains the send queue and keeps the connection alive with pings.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readLoop discards inbound frames; its job is detecting disconnects and
// answering pongs.
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

// remove unregisters the client and closes its queue.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if ok {
		observability.DefaultMetrics.WSSubscribers.Dec()
	}
}

// Close disconnects all subscribers; later upgrades are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
		observability.DefaultMetrics.WSSubscribers.Dec()
	}
}
