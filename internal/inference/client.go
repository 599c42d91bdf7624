package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gridd.sh/internal/gerrors"
	"gridd.sh/internal/metrics"
)

// Message is one entry of a chat exchange sent to the inference endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config holds inference client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the remote inference endpoint. Chat calls are never
// retried automatically: a duplicate send would duplicate the message.
// Analysis calls are idempotent and get one bounded retry.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// NewClient creates an inference client with a 30s default timeout.
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		logger:     slog.Default().With("component", "inference-client"),
	}
}

type chatRequest struct {
	Messages []Message `json:"messages"`
}

type analyzeRequest struct {
	ContextData map[string]any `json:"contextData"`
}

// choicesResponse is the OpenAI-style response shape.
type choicesResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat sends the full message history and returns the assistant reply.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	return c.post(ctx, "chat", chatRequest{Messages: messages})
}

// Analyze submits arbitrary context data for analysis commentary, e.g.
// anomaly explanations or optimization recommendations. Retried once
// with backoff on transient failure since the call is idempotent.
func (c *Client) Analyze(ctx context.Context, contextData map[string]any) (string, error) {
	var reply string
	cfg := &gerrors.RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		Multiplier:    2.0,
		Jitter:        0.1,
		RetryableFunc: gerrors.IsRetryable,
	}
	err := gerrors.Retry(ctx, cfg, func() error {
		var callErr error
		reply, callErr = c.post(ctx, "analyze", analyzeRequest{ContextData: contextData})
		return callErr
	})
	return reply, err
}

func (c *Client) post(ctx context.Context, operation string, payload any) (string, error) {
	if c.baseURL == "" {
		return "", gerrors.New(gerrors.ErrCodeUpstream, "inference endpoint not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", gerrors.Wrap(err, gerrors.ErrCodeInternal, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", gerrors.Wrap(err, gerrors.ErrCodeInternal, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.InferenceRequestDuration.WithLabelValues(operation, "error").Observe(time.Since(start).Seconds())
		if ctx.Err() != nil {
			return "", gerrors.Wrap(ctx.Err(), gerrors.ErrCodeTimeout, "inference call cancelled")
		}
		return "", gerrors.Wrap(err, gerrors.ErrCodeUpstream, "inference endpoint unreachable")
	}
	defer resp.Body.Close()

	metrics.InferenceRequestDuration.WithLabelValues(operation, fmt.Sprintf("%d", resp.StatusCode)).Observe(time.Since(start).Seconds())

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", gerrors.Wrap(err, gerrors.ErrCodeUpstream, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, raw)
	}

	return parseReply(raw), nil
}

// statusError maps upstream failures to distinct codes. Rate limiting
// and quota exhaustion must not collapse into a generic failure.
func statusError(status int, body []byte) error {
	text := string(body)
	switch {
	case status == http.StatusTooManyRequests || strings.Contains(text, "429"):
		return gerrors.New(gerrors.ErrCodeRateLimited,
			"inference rate limit exceeded, try again shortly").WithRetryAfter(10 * time.Second)
	case status == http.StatusPaymentRequired || strings.Contains(text, "402"):
		return gerrors.New(gerrors.ErrCodeQuotaExceeded,
			"inference quota exhausted")
	default:
		return gerrors.Newf(gerrors.ErrCodeUpstream, "inference endpoint returned status %d", status)
	}
}

// parseReply accepts either the OpenAI-style choices envelope or a plain
// string body.
func parseReply(raw []byte) string {
	var envelope choicesResponse
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Choices) > 0 {
		return envelope.Choices[0].Message.Content
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	return strings.TrimSpace(string(raw))
}
