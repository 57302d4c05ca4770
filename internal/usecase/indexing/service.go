// Package indexing builds the evidence store from scraped wiki pages.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/geoquery/internal/domain"
	"github.com/kailas-cloud/geoquery/internal/logger"
)

// ErrNoChunks means cleaning and chunking left nothing to index.
var ErrNoChunks = errors.New("no chunks generated")

// Document is a scraped source page.
type Document struct {
	URL   string
	Title string
	Text  string
}

// Config controls chunking and batching.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunk     int
	BatchSize    int
}

// Stats summarizes a build.
type Stats struct {
	Documents   int
	Chunks      int
	Tagged      int
	Fingerprint domain.EmbeddingFingerprint
	Tokens      int
	Elapsed     time.Duration
}

// Service builds evidence stores.
type Service struct {
	embed  Embedder
	writer Writer
	cfg    Config
}

// New creates an indexing service.
func New(embed Embedder, writer Writer, cfg Config) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1200
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Service{embed: embed, writer: writer, cfg: cfg}
}

// Build cleans and chunks docs, embeds every chunk and saves the store.
func (s *Service) Build(ctx context.Context, docs []Document) (Stats, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	var snippets []domain.Snippet
	tagged := 0
	for _, d := range docs {
		tag := TagFromURL(d.URL)
		for i, c := range Chunk(Clean(d.Text), s.cfg.ChunkSize, s.cfg.ChunkOverlap, s.cfg.MinChunk) {
			snippets = append(snippets, domain.Snippet{
				ID:        snippetID(d.URL, i),
				SourceURL: d.URL,
				Title:     d.Title,
				Tag:       tag,
				Text:      c,
			})
			if tag.Valid() {
				tagged++
			}
		}
	}
	if len(snippets) == 0 {
		return Stats{}, fmt.Errorf("%d documents: %w", len(docs), ErrNoChunks)
	}
	log.Info("Chunked documents", zap.Int("documents", len(docs)), zap.Int("chunks", len(snippets)))

	tokens := 0
	for lo := 0; lo < len(snippets); lo += s.cfg.BatchSize {
		hi := min(lo+s.cfg.BatchSize, len(snippets))
		texts := make([]string, hi-lo)
		for i := range texts {
			texts[i] = snippets[lo+i].Text
		}
		res, err := s.embed.BatchEmbed(ctx, texts)
		if err != nil {
			return Stats{}, fmt.Errorf("embed chunks %d-%d: %w", lo, hi, err)
		}
		if len(res.Embeddings) != len(texts) {
			return Stats{}, fmt.Errorf("embed chunks %d-%d: got %d vectors: %w",
				lo, hi, len(res.Embeddings), domain.ErrEmbeddingProviderError)
		}
		for i, v := range res.Embeddings {
			snippets[lo+i].Embedding = v
		}
		tokens += res.TotalTokens
		log.Debug("Embedded batch", zap.Int("from", lo), zap.Int("to", hi))
	}

	fp, err := fingerprint(s.embed.Fingerprint(), snippets)
	if err != nil {
		return Stats{}, err
	}
	if err := s.writer.Save(ctx, fp, snippets); err != nil {
		return Stats{}, fmt.Errorf("save evidence store: %w", err)
	}

	return Stats{
		Documents:   len(docs),
		Chunks:      len(snippets),
		Tagged:      tagged,
		Fingerprint: fp,
		Tokens:      tokens,
		Elapsed:     time.Since(start),
	}, nil
}

// fingerprint pins the dimensions the provider actually returned, so a store
// built with a provider default still refuses a differently sized embedder.
func fingerprint(fp domain.EmbeddingFingerprint, snippets []domain.Snippet) (domain.EmbeddingFingerprint, error) {
	dims := len(snippets[0].Embedding)
	for _, s := range snippets {
		if len(s.Embedding) != dims {
			return fp, fmt.Errorf("chunk %s has %d dimensions, want %d: %w",
				s.ID, len(s.Embedding), dims, domain.ErrEmbeddingMismatch)
		}
	}
	if fp.Dimensions != 0 && fp.Dimensions != dims {
		return fp, fmt.Errorf("provider returned %d dimensions, configured %d: %w",
			dims, fp.Dimensions, domain.ErrEmbeddingMismatch)
	}
	fp.Dimensions = dims
	return fp, nil
}

func snippetID(url string, i int) string {
	return url + "#" + strconv.Itoa(i)
}
