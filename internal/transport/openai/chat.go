package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/geoquery/internal/domain"
	"github.com/kailas-cloud/geoquery/internal/metrics"
)

var _ domain.ChatModel = (*ChatModel)(nil)

// ChatModel is an interpreter model backed by an OpenAI-compatible chat completions endpoint.
type ChatModel struct {
	client   *openai.Client
	provider string
	logger   *zap.Logger
}

// NewChatModel creates an OpenAI-compatible chat model. cfg.Model and cfg.Dimensions are unused.
func NewChatModel(cfg *Config) *ChatModel {
	return &ChatModel{
		client:   newClient(cfg),
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// Chat sends a system+user prompt and returns the raw assistant text.
// A schema, when present, is passed as a non-strict json_schema response format.
func (m *ChatModel) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	creq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: float32(req.Temperature),
	}
	if len(req.Schema) > 0 {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "interpretation",
				Schema: json.RawMessage(req.Schema),
				Strict: false,
			},
		}
	}

	start := time.Now()
	resp, err := m.client.CreateChatCompletion(ctx, creq)
	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(m.provider, req.Model, "error").Inc()
		return "", parseAPIError(err, domain.ErrModelUnreachable)
	}
	metrics.LLMRequestDuration.WithLabelValues(m.provider, req.Model).Observe(duration.Seconds())

	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(m.provider, req.Model, "empty").Inc()
		return "", fmt.Errorf("chat completion returned no choices: %w", domain.ErrMalformedModelOutput)
	}
	metrics.LLMRequestsTotal.WithLabelValues(m.provider, req.Model, "success").Inc()

	return resp.Choices[0].Message.Content, nil
}

// ListModels returns the model IDs the endpoint serves.
func (m *ChatModel) ListModels(ctx context.Context) ([]string, error) {
	list, err := m.client.ListModels(ctx)
	if err != nil {
		return nil, parseAPIError(err, domain.ErrModelUnreachable)
	}
	ids := make([]string, len(list.Models))
	for i, model := range list.Models {
		ids[i] = model.ID
	}
	return ids, nil
}

// HealthCheck verifies the endpoint answers ListModels.
func (m *ChatModel) HealthCheck(ctx context.Context) error {
	if _, err := m.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
