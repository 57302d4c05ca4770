// Package ollama implements the interpreter model over Ollama's native HTTP API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/geoquery/internal/domain"
	"github.com/kailas-cloud/geoquery/internal/metrics"
)

const provider = "ollama"

var (
	_ domain.ChatModel   = (*Client)(nil)
	_ domain.ModelLister = (*Client)(nil)
)

// Config holds Ollama connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client calls /api/chat and /api/tags.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// New creates an Ollama client. Timeout bounds each HTTP exchange.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []chatMessage   `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// Chat runs a non-streaming chat completion. The schema, when present, is sent
// as the structured-output format.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Stream:  false,
		Format:  json.RawMessage(req.Schema),
		Options: map[string]any{"temperature": req.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	start := time.Now()
	data, err := c.do(ctx, http.MethodPost, "/api/chat", body)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(provider, req.Model, "error").Inc()
		return "", err
	}
	metrics.LLMRequestDuration.WithLabelValues(provider, req.Model).Observe(time.Since(start).Seconds())

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(provider, req.Model, "error").Inc()
		return "", fmt.Errorf("decode /api/chat response: %v: %w", err, domain.ErrMalformedModelOutput)
	}
	if resp.Error != "" {
		metrics.LLMRequestsTotal.WithLabelValues(provider, req.Model, "error").Inc()
		return "", fmt.Errorf("ollama: %s: %w", resp.Error, domain.ErrModelUnreachable)
	}
	metrics.LLMRequestsTotal.WithLabelValues(provider, req.Model, "success").Inc()

	c.logger.Debug("ollama chat completed",
		zap.String("model", req.Model),
		zap.Int("reply_bytes", len(resp.Message.Content)),
		zap.Duration("latency", time.Since(start)),
	)
	return resp.Message.Content, nil
}

// ListModels returns the locally available model names from /api/tags.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	var tags tagsResponse
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("decode /api/tags response: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		names = append(names, name)
	}
	return names, nil
}

// HealthCheck reports whether /api/tags answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama %s: %v: %w", path, err, domain.ErrModelUnreachable)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama %s: read body: %v: %w", path, err, domain.ErrModelUnreachable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama %s returned %s: %s: %w",
			path, resp.Status, strings.TrimSpace(string(data)), domain.ErrModelUnreachable)
	}
	return data, nil
}
