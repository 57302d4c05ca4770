package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/geoquery/internal/domain"
	"github.com/kailas-cloud/geoquery/internal/metrics"
)

// Inner is the wrapped embedder. Transport metrics are recorded there.
type Inner interface {
	domain.Embedder
	domain.BatchEmbedder
	Fingerprint() domain.EmbeddingFingerprint
}

// InstrumentedEmbedder enforces the token budget around an embedder and logs
// each call. It serves both the query path and index builds.
type InstrumentedEmbedder struct {
	inner    Inner
	provider string
	budget   *Budget
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps inner. A nil budget disables enforcement.
func NewInstrumentedEmbedder(inner Inner, provider string, budget *Budget, logger *zap.Logger) *InstrumentedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedEmbedder{inner: inner, provider: provider, budget: budget, logger: logger}
}

// Fingerprint identifies the wrapped model.
func (p *InstrumentedEmbedder) Fingerprint() domain.EmbeddingFingerprint {
	return p.inner.Fingerprint()
}

// Embed checks the budget, delegates, and records usage.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := p.check(1); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	p.record(result.TotalTokens)

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.Duration("duration", time.Since(start)),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// BatchEmbed checks the budget once per batch, delegates, and records usage.
func (p *InstrumentedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if err := p.check(len(texts)); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.BatchEmbed(ctx, texts)
	if err != nil {
		p.logger.Error("Batch embedding request failed",
			zap.String("provider", p.provider),
			zap.Int("batch_size", len(texts)),
			zap.Error(err),
		)
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	p.record(result.TotalTokens)

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

func (p *InstrumentedEmbedder) check(batch int) error {
	exceeded, err := p.budget.Check()
	if err != nil {
		p.logger.Error("Embedding budget exceeded",
			zap.String("provider", p.provider),
			zap.Int("batch_size", batch),
			zap.Error(err),
		)
		return err
	}
	if exceeded {
		p.logger.Warn("Embedding budget exceeded, continuing", zap.String("provider", p.provider))
	}
	return nil
}

func (p *InstrumentedEmbedder) record(tokens int) {
	if p.budget == nil {
		return
	}
	p.budget.Record(int64(tokens))
	if remaining := p.budget.Remaining(); remaining >= 0 {
		metrics.EmbeddingBudgetTokensRemaining.WithLabelValues(p.provider).Set(float64(remaining))
	}
}
