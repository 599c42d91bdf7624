package inference

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridd.sh/internal/gerrors"
)

func newTestClient(url string) *Client {
	return NewClient(&Config{BaseURL: url, APIKey: "test-key", Timeout: 5 * time.Second})
}

func TestChatParsesChoicesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"grid looks stable"}}]}`))
	}))
	defer srv.Close()

	reply, err := newTestClient(srv.URL).Chat(context.Background(), []Message{
		{Role: "user", Content: "how is the grid?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "grid looks stable", reply)
}

func TestChatParsesPlainStringBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"plain reply"`))
	}))
	defer srv.Close()

	reply, err := newTestClient(srv.URL).Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "plain reply", reply)
}

func TestChatParsesRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("  raw text reply\n"))
	}))
	defer srv.Close()

	reply, err := newTestClient(srv.URL).Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "raw text reply", reply)
}

func TestChatRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, gerrors.ErrCodeRateLimited, gerrors.CodeOf(err))
}

func TestChatRateLimitedFromBody(t *testing.T) {
	// Some gateways hide the 429 inside a 500 body.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`upstream said: 429 too many requests`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, gerrors.ErrCodeRateLimited, gerrors.CodeOf(err))
}

func TestChatQuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, gerrors.ErrCodeQuotaExceeded, gerrors.CodeOf(err))
}

func TestChatUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, gerrors.ErrCodeUpstream, gerrors.CodeOf(err))
}

func TestChatUnconfiguredEndpoint(t *testing.T) {
	_, err := NewClient(nil).Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, gerrors.ErrCodeUpstream, gerrors.CodeOf(err))
}

func TestChatIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnalyzeRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"anomaly traced to plant outage"}}]}`))
	}))
	defer srv.Close()

	reply, err := newTestClient(srv.URL).Analyze(context.Background(), map[string]any{
		"gridStress": 87.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "anomaly traced to plant outage", reply)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnalyzeDoesNotRetryQuotaExceeded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Analyze(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Equal(t, gerrors.ErrCodeQuotaExceeded, gerrors.CodeOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestChatCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can detect the
		// client disconnect and cancel r.Context(); otherwise srv.Close
		// deadlocks waiting for this handler.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv.URL).Chat(ctx, []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, gerrors.ErrCodeTimeout, gerrors.CodeOf(err))
}
