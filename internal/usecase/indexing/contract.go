package indexing

import (
	"context"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

// Embedder embeds chunks in batches and identifies the model it runs.
type Embedder interface {
	domain.BatchEmbedder
	Fingerprint() domain.EmbeddingFingerprint
}

// Writer persists a built evidence store.
type Writer interface {
	Save(ctx context.Context, fp domain.EmbeddingFingerprint, snippets []domain.Snippet) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, fp domain.EmbeddingFingerprint, snippets []domain.Snippet) error

// Save calls f.
func (f WriterFunc) Save(ctx context.Context, fp domain.EmbeddingFingerprint, snippets []domain.Snippet) error {
	return f(ctx, fp, snippets)
}
