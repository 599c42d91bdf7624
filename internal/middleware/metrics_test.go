package middleware

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

// The wrapper must keep the upgrade path alive: gorilla/websocket
// requires the ResponseWriter it sees to implement http.Hijacker.
var (
	_ http.Hijacker = (*metricsResponseWriter)(nil)
	_ http.Flusher  = (*metricsResponseWriter)(nil)
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/presets", "/api/v1/presets"},
		{"/api/v1/annotations/42", "/api/v1/annotations/:id"},
		{"/api/v1/annotations/550e8400-e29b-41d4-a716-446655440000", "/api/v1/annotations/:id"},
		{"/health", "/health"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanPath(tt.path), tt.path)
	}
}
