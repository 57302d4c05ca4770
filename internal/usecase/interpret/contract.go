package interpret

import (
	"context"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

// ChatModel is the generative model used to read queries.
type ChatModel interface {
	Chat(ctx context.Context, req domain.ChatRequest) (string, error)
}
