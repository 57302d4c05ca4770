package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

// Service ranks evidence snippets by cosine similarity to a query.
type Service struct {
	store Store
	embed Embedder
}

// New creates a retrieval service.
func New(store Store, embed Embedder) *Service {
	return &Service{store: store, embed: embed}
}

// Retrieve returns at most k snippets ordered by non-increasing score.
// Equal scores keep insertion order.
func (s *Service) Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error) {
	if !s.store.Loaded() {
		reason := s.store.Reason()
		if errors.Is(reason, domain.ErrIndexUnavailable) {
			return nil, reason
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, reason)
	}
	if k <= 0 {
		return domain.RetrievalResult{}, nil
	}

	res, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	snippets := s.store.Snippets()
	qNorm := vectorNorm(res.Embedding)
	scored := make(domain.RetrievalResult, 0, len(snippets))
	for _, sn := range snippets {
		if len(sn.Embedding) != len(res.Embedding) {
			return nil, fmt.Errorf("snippet %s has %d dimensions, query has %d: %w",
				sn.ID, len(sn.Embedding), len(res.Embedding), domain.ErrEmbeddingMismatch)
		}
		scored = append(scored, domain.ScoredSnippet{
			Snippet: sn,
			Score:   cosine(res.Embedding, qNorm, sn.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// cosine returns 0 for zero-length vectors so NaN never reaches the sort.
func cosine(q []float32, qNorm float64, v []float32) float64 {
	vNorm := vectorNorm(v)
	if qNorm == 0 || vNorm == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	return dot / (qNorm * vNorm)
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
