package embcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/geoquery/internal/db"
	"github.com/kailas-cloud/geoquery/internal/domain"
	"github.com/kailas-cloud/geoquery/internal/usecase/indexing"
)

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 10,
		TotalTokens:  10,
	}}
	ce, ms := newTestCachedEmbedder(t, inner)

	var gotTTL time.Duration
	ms.setFn = func(_ context.Context, _ string, _ []byte, ttl time.Duration) error {
		gotTTL = ttl
		return nil
	}

	result, err := ce.Embed(context.Background(), "cafes in Malmö")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", result.Embedding)
	}
	if result.TotalTokens != 10 {
		t.Fatalf("expected TotalTokens=10, got %d", result.TotalTokens)
	}
	if gotTTL != time.Hour {
		t.Fatalf("expected cache put with 1h ttl, got %v", gotTTL)
	}
}

func TestEmbed_CacheHit(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	cached := vectorToCacheBytes([]float32{0.4, 0.5, 0.6})
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	result, err := ce.Embed(context.Background(), "cafes in Malmö")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.4 {
		t.Fatalf("expected cached vector, got: %v", result.Embedding)
	}
	if result.TotalTokens != 0 {
		t.Fatalf("expected TotalTokens=0 on cache hit, got %d", result.TotalTokens)
	}
	if inner.embedCalls != 0 {
		t.Fatalf("inner should not be called on hit, got %d calls", inner.embedCalls)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	ce, _ := newTestCachedEmbedder(t, &mockEmbedder{err: errors.New("provider down")})

	if _, err := ce.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error from inner embedder")
	}
}

func TestEmbed_StoreErrorFallsThrough(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, &db.Error{Op: db.OpGet, Err: errors.New("conn refused")}
	}
	ms.setFn = func(_ context.Context, _ string, _ []byte, _ time.Duration) error {
		return errors.New("conn refused")
	}

	res, err := ce.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("cache failures must not fail the embed: %v", err)
	}
	if len(res.Embedding) != 1 || inner.embedCalls != 1 {
		t.Fatalf("expected inner result, got %v (calls=%d)", res.Embedding, inner.embedCalls)
	}
}

func TestEmbed_WrongDimensionsIgnored(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 2}}}
	ms := &mockKVStore{getFn: func(_ context.Context, _ string) ([]byte, error) {
		return vectorToCacheBytes([]float32{9, 9, 9}), nil
	}}
	ce := New(inner, ms, domain.EmbeddingFingerprint{Model: "m", Dimensions: 2}, 0, nil, zap.NewNop())

	res, err := ce.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 2 || inner.embedCalls != 1 {
		t.Fatalf("expected fresh 2-d vector, got %v", res.Embedding)
	}
}

func TestCacheKey_DependsOnFingerprint(t *testing.T) {
	a := New(nil, nil, domain.EmbeddingFingerprint{Model: "a"}, 0, nil, zap.NewNop())
	b := New(nil, nil, domain.EmbeddingFingerprint{Model: "b"}, 0, nil, zap.NewNop())
	if a.cacheKey("x") == b.cacheKey("x") {
		t.Fatal("keys for different models must differ")
	}
	if a.cacheKey("x") != a.cacheKey("x") {
		t.Fatal("keys must be deterministic")
	}
}

func TestBatchEmbed_MixedHitsMisses(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.5},
		PromptTokens: 3,
		TotalTokens:  3,
	}}
	ce, ms := newTestCachedEmbedder(t, inner)

	hitKey := ce.cacheKey("hit")
	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		if key == hitKey {
			return vectorToCacheBytes([]float32{0.9}), nil
		}
		return nil, db.ErrKeyNotFound
	}
	var puts int
	ms.setFn = func(_ context.Context, _ string, _ []byte, _ time.Duration) error {
		puts++
		return nil
	}

	res, err := ce.BatchEmbed(context.Background(), []string{"miss1", "hit", "miss2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if res.Embeddings[1][0] != 0.9 {
		t.Errorf("expected cached vec for index 1, got %v", res.Embeddings[1])
	}
	if res.Embeddings[0][0] != 0.5 || res.Embeddings[2][0] != 0.5 {
		t.Errorf("expected inner vec for misses, got %v, %v", res.Embeddings[0], res.Embeddings[2])
	}
	if res.TotalTokens != 6 {
		t.Errorf("expected TotalTokens=6, got %d", res.TotalTokens)
	}
	if inner.batchCalls != 1 || len(inner.batchTexts) != 2 {
		t.Errorf("expected one batch call with 2 misses, got %d calls %v", inner.batchCalls, inner.batchTexts)
	}
	if puts != 2 {
		t.Errorf("expected 2 cache puts, got %d", puts)
	}
}

var _ indexing.Embedder = (*CachedEmbedder)(nil)

func TestBatchEmbed_ReindexServedFromCache(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.5}, TotalTokens: 4}}
	ce, ms := newTestCachedEmbedder(t, inner)
	kv := map[string][]byte{}
	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		if v, ok := kv[key]; ok {
			return v, nil
		}
		return nil, db.ErrKeyNotFound
	}
	ms.setFn = func(_ context.Context, key string, value []byte, _ time.Duration) error {
		kv[key] = value
		return nil
	}

	var saved []domain.Snippet
	writer := indexing.WriterFunc(func(_ context.Context, _ domain.EmbeddingFingerprint, s []domain.Snippet) error {
		saved = s
		return nil
	})
	svc := indexing.New(ce, writer, indexing.Config{MinChunk: 1})
	docs := []indexing.Document{{
		URL:  "https://wiki.openstreetmap.org/wiki/Tag:amenity%3Dcafe",
		Text: "A cafe is a place that serves coffee and light meals.",
	}}

	if _, err := svc.Build(context.Background(), docs); err != nil {
		t.Fatalf("first build: %v", err)
	}
	if inner.batchCalls != 1 {
		t.Fatalf("expected one provider call on the first build, got %d", inner.batchCalls)
	}

	stats, err := svc.Build(context.Background(), docs)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if inner.batchCalls != 1 {
		t.Errorf("unchanged chunks must come from the cache, got %d provider calls", inner.batchCalls)
	}
	if stats.Tokens != 0 || len(saved) != 1 || saved[0].Embedding[0] != 0.5 {
		t.Errorf("unexpected rebuild: tokens=%d snippets=%+v", stats.Tokens, saved)
	}
}

func TestBatchEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{batchErr: errors.New("api down")}
	ce, _ := newTestCachedEmbedder(t, inner)

	if _, err := ce.BatchEmbed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error from inner batch embedder")
	}
}

func TestBatchEmbed_Empty(t *testing.T) {
	ce, _ := newTestCachedEmbedder(t, &mockEmbedder{})

	res, err := ce.BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Embeddings != nil {
		t.Errorf("expected nil for empty input")
	}
}

func TestBytesToVector_Invalid(t *testing.T) {
	if _, err := bytesToVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated data")
	}
}
