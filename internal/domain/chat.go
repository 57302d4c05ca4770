package domain

import "context"

// ChatRequest is a single-turn call to a generative model with a structured-output constraint.
type ChatRequest struct {
	Model       string
	System      string
	User        string
	Schema      []byte // JSON Schema the reply should follow
	Temperature float64
}

// ChatModel generates a reply for a single-turn request.
// Connectivity failures are wrapped with ErrModelUnreachable.
type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// ModelLister reports the models a provider can serve.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}
