package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"gridd.sh/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Same-origin policy is handled by the CORS layer; the dashboard
	// connects from the page the daemon serves.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func muxVar(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}

// handleMetricsLive streams ticker snapshots over a websocket until the
// client goes away. Disconnecting unsubscribes, so no ticks are
// delivered to a closed connection.
func (s *Server) handleMetricsLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	snapshots, cancel := s.ticker.Subscribe()
	defer cancel()
	defer conn.Close()

	metrics.WSClientsConnected.WithLabelValues("metrics").Inc()
	defer metrics.WSClientsConnected.WithLabelValues("metrics").Dec()

	// Reader goroutine exists only to notice the client closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send the current state immediately so the panel is not blank
	// until the first tick.
	if err := s.writeSnapshot(conn, s.ticker.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := s.writeSnapshot(conn, snap); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeSnapshot(conn *websocket.Conn, snap map[string]float64) error {
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(map[string]any{
		"timestamp": time.Now().Format(time.RFC3339),
		"series":    snap,
	})
}

// handleAnnotationFeed subscribes a client to annotation change events.
func (s *Server) handleAnnotationFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	s.annotHub.Register(conn)

	// Block reading until the client disconnects, then unregister.
	go func() {
		defer s.annotHub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
