package annotations

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gridd.sh/internal/metrics"
	"gridd.sh/internal/store"
)

// EventType describes an annotation change.
type EventType string

const (
	EventInsert EventType = "insert"
	EventDelete EventType = "delete"
)

// Event is broadcast to all feed subscribers on any change. Clients are
// expected to reload the recent annotation window when one arrives.
type Event struct {
	Type       EventType         `json:"type"`
	Annotation *store.Annotation `json:"annotation,omitempty"`
	ID         string            `json:"id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Hub fans annotation change events out to connected websocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		logger:  slog.Default().With("component", "annotation-hub"),
	}
}

// Register adds a client connection to the feed.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSClientsConnected.WithLabelValues("annotations").Set(float64(total))
	h.logger.Info("feed client connected", "total", total)
}

// Unregister drops a client connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	total := len(h.clients)
	h.mu.Unlock()

	conn.Close()
	metrics.WSClientsConnected.WithLabelValues("annotations").Set(float64(total))
	h.logger.Info("feed client disconnected", "total", total)
}

// Clients returns the number of connected feed clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every connected client. Clients that fail
// a write are dropped.
func (h *Hub) Broadcast(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal feed event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
	metrics.WSClientsConnected.WithLabelValues("annotations").Set(float64(len(h.clients)))
}

// Close drops all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	metrics.WSClientsConnected.WithLabelValues("annotations").Set(0)
}
