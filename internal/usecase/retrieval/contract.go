package retrieval

import (
	"context"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

// Store exposes the loaded evidence snippets.
type Store interface {
	Loaded() bool
	Reason() error
	Snippets() []domain.Snippet
}

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
