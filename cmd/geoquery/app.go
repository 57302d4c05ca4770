package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/geoquery/internal/config"
	dbValkey "github.com/kailas-cloud/geoquery/internal/db/valkey"
	"github.com/kailas-cloud/geoquery/internal/domain"
	logpkg "github.com/kailas-cloud/geoquery/internal/logger"
	"github.com/kailas-cloud/geoquery/internal/metrics"
	"github.com/kailas-cloud/geoquery/internal/repository/embcache"
	"github.com/kailas-cloud/geoquery/internal/repository/evidence"
	"github.com/kailas-cloud/geoquery/internal/repository/geocache"
	"github.com/kailas-cloud/geoquery/internal/repository/osmfile"
	"github.com/kailas-cloud/geoquery/internal/repository/output"
	"github.com/kailas-cloud/geoquery/internal/transport/nominatim"
	"github.com/kailas-cloud/geoquery/internal/transport/ollama"
	openaiTransport "github.com/kailas-cloud/geoquery/internal/transport/openai"
	"github.com/kailas-cloud/geoquery/internal/transport/osmium"
	"github.com/kailas-cloud/geoquery/internal/usecase/embedding"
	"github.com/kailas-cloud/geoquery/internal/usecase/filter"
	healthuc "github.com/kailas-cloud/geoquery/internal/usecase/health"
	"github.com/kailas-cloud/geoquery/internal/usecase/indexing"
	"github.com/kailas-cloud/geoquery/internal/usecase/interpret"
	"github.com/kailas-cloud/geoquery/internal/usecase/pipeline"
	"github.com/kailas-cloud/geoquery/internal/usecase/retrieval"
)

// chatModel is what the interpreter and /status need from a provider.
type chatModel interface {
	domain.ChatModel
	domain.ModelLister
}

// app is the composition root shared by every subcommand.
type app struct {
	env    string
	cfg    config.Config
	logger *zap.Logger
	cache  *dbValkey.Store // nil when caching is disabled or unreachable
}

func loadApp(flags *rootFlags) (*app, error) {
	env := flags.env
	if env == "" {
		env = config.GetEnv()
	}

	var cfg config.Config
	var err error
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	return &app{env: env, cfg: cfg, logger: logger}, nil
}

// connectCache opens the Valkey store. A cache that is not configured or not
// ready is skipped: every cached component works without it.
func (a *app) connectCache(ctx context.Context) {
	if len(a.cfg.Cache.Addrs) == 0 {
		a.logger.Info("Cache disabled")
		return
	}
	store, err := dbValkey.NewStore(dbValkey.Config{
		Addrs:    a.cfg.Cache.Addrs,
		Password: a.cfg.Cache.Password,
	})
	if err != nil {
		a.logger.Warn("Failed to create cache store, continuing without cache", zap.Error(err))
		return
	}
	timeout := time.Duration(a.cfg.Cache.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, timeout); err != nil {
		store.Close()
		a.logger.Warn("Cache not ready, continuing without cache", zap.Error(err))
		return
	}
	a.cache = store
	a.logger.Info("Connected to cache", zap.Strings("addrs", a.cfg.Cache.Addrs))
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
	_ = a.logger.Sync()
}

func (a *app) baseEmbedder() *openaiTransport.Embedder {
	return openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     a.cfg.Embedding.APIKey,
		BaseURL:    a.cfg.Embedding.BaseURL,
		Model:      a.cfg.Embedding.Model,
		Dimensions: a.cfg.Embedding.Dimensions,
		Provider:   a.cfg.Embedding.Provider,
		Logger:     a.logger,
	})
}

// meteredEmbedder puts the daily token budget in front of base.
func (a *app) meteredEmbedder(base *openaiTransport.Embedder) *embedding.InstrumentedEmbedder {
	budget := embedding.NewBudget(a.cfg.Embedding.DailyTokenBudget, embedding.BudgetAction(a.cfg.Embedding.BudgetAction))
	return embedding.NewInstrumentedEmbedder(base, a.cfg.Embedding.Provider, budget, a.logger)
}

// indexEmbedder is the index-build chain: OpenAI -> Budget -> Cached. With a
// cache connected, re-indexing only embeds chunks whose text changed.
func (a *app) indexEmbedder(base *openaiTransport.Embedder) indexing.Embedder {
	metered := a.meteredEmbedder(base)
	if a.cache == nil {
		return metered
	}
	return embcache.New(metered, a.cache, base.Fingerprint(),
		time.Duration(a.cfg.Cache.EmbeddingTTLHours)*time.Hour, metrics.EmbeddingCacheTotal, a.logger)
}

// queryEmbedder assembles the decorator chain: OpenAI -> Budget -> Cached -> Instruction.
func (a *app) queryEmbedder(base *openaiTransport.Embedder) domain.Embedder {
	metered := a.meteredEmbedder(base)
	var embedder domain.Embedder = metered
	if a.cache != nil {
		embedder = embcache.New(metered, a.cache, base.Fingerprint(),
			time.Duration(a.cfg.Cache.EmbeddingTTLHours)*time.Hour, metrics.EmbeddingCacheTotal, a.logger)
	}
	// Outermost, so the cache key includes the instruction.
	if a.cfg.Embedding.QueryInstruction != "" {
		return domain.NewInstructionEmbedder(embedder, a.cfg.Embedding.QueryInstruction)
	}
	return embedder
}

func (a *app) chatModel() chatModel {
	timeout := time.Duration(a.cfg.LLM.TimeoutSec) * time.Second
	if a.cfg.LLM.Provider == "openai" {
		return openaiTransport.NewChatModel(&openaiTransport.Config{
			APIKey:   a.cfg.LLM.APIKey,
			BaseURL:  a.cfg.LLM.BaseURL,
			Provider: a.cfg.LLM.Provider,
			Logger:   a.logger,
		})
	}
	return ollama.New(ollama.Config{BaseURL: a.cfg.LLM.BaseURL, Timeout: timeout, Logger: a.logger})
}

// openEvidence loads the store. A missing or incompatible store is not fatal:
// the service starts and reports index_unavailable per request.
func (a *app) openEvidence(fp domain.EmbeddingFingerprint) *evidence.Store {
	store, err := evidence.Open(a.cfg.Evidence.Dir, fp)
	if err != nil {
		a.logger.Warn("Evidence store unavailable", zap.String("dir", a.cfg.Evidence.Dir), zap.Error(err))
		if !errors.Is(err, domain.ErrIndexUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
		}
		return evidence.Unavailable(err)
	}
	m := store.Manifest()
	a.logger.Info("Evidence store loaded",
		zap.Int("snippets", store.Count()),
		zap.String("embedding", m.Fingerprint.String()),
		zap.String("format", string(m.Format)),
		zap.Time("created_at", m.CreatedAt),
	)
	return store
}

func (a *app) geocoder() pipeline.Geocoder {
	client := nominatim.New(nominatim.Config{
		BaseURL:           a.cfg.Geocoder.BaseURL,
		UserAgent:         a.cfg.Geocoder.UserAgent,
		Email:             a.cfg.Geocoder.Email,
		Timeout:           time.Duration(a.cfg.Geocoder.TimeoutSec) * time.Second,
		Retries:           *a.cfg.Geocoder.Retries,
		RequestsPerSecond: a.cfg.Geocoder.RequestsPerSecond,
		FallbackDelta:     a.cfg.Geocoder.FallbackDeltaDeg,
		Logger:            a.logger,
	})
	if a.cache == nil {
		return client
	}
	return geocache.New(client, a.cache, time.Duration(a.cfg.Cache.GeocodeTTLHours)*time.Hour,
		metrics.GeocodeCacheTotal, a.logger)
}

func (a *app) defaultBBox() *domain.BoundingBox {
	b := a.cfg.Pipeline.DefaultBBox
	if len(b) != 4 {
		return nil
	}
	return &domain.BoundingBox{MinLon: b[0], MinLat: b[1], MaxLon: b[2], MaxLat: b[3]}
}

// services is the wired query path.
type services struct {
	pipeline *pipeline.Service
	health   *healthuc.Service
	outputs  *output.Store
}

func (a *app) buildServices(ctx context.Context) *services {
	a.connectCache(ctx)

	base := a.baseEmbedder()
	store := a.openEvidence(base.Fingerprint())
	chat := a.chatModel()

	opener := osmfile.Opener{NodesOnly: true}
	outputs := output.New(output.Config{
		Dir:       a.cfg.Output.Dir,
		URLPrefix: a.cfg.Output.URLPrefix,
		MaxAge:    time.Duration(a.cfg.Output.MaxAgeHours) * time.Hour,
		Logger:    a.logger,
	})

	svc := pipeline.New(pipeline.Deps{
		Retriever: retrieval.New(store, a.queryEmbedder(base)),
		Interpreter: interpret.New(chat, interpret.Config{
			Model:       a.cfg.LLM.Model,
			Temperature: *a.cfg.LLM.Temperature,
			Timeout:     time.Duration(a.cfg.LLM.TimeoutSec) * time.Second,
		}),
		Geocoder: a.geocoder(),
		Extractor: osmium.New(osmium.Config{
			Binary:  a.cfg.Extractor.Binary,
			Source:  a.cfg.Extractor.Source,
			Timeout: time.Duration(a.cfg.Extractor.TimeoutSec) * time.Second,
			Logger:  a.logger,
		}),
		Filter: filter.New(filter.OpenerFunc(func(ctx context.Context, path string) (filter.Scanner, error) {
			r, err := opener.Open(ctx, path)
			if err != nil {
				return nil, err
			}
			return r, nil
		})),
		Output: outputs,
	}, pipeline.Config{
		TopK:                     a.cfg.Evidence.TopK,
		EvidenceChars:            a.cfg.Pipeline.EvidenceChars,
		MaxConcurrentExtractions: int64(a.cfg.Pipeline.MaxConcurrentExtractions),
		WorkDir:                  a.cfg.Extractor.WorkDir,
		DefaultPlace:             a.cfg.Pipeline.DefaultPlace,
		DefaultBBox:              a.defaultBBox(),
	})

	deps := healthuc.Deps{
		Evidence:  store,
		LLM:       chat,
		Embedding: base,
		Model:     a.cfg.LLM.Model,
	}
	// Pass a nil interface, not a typed nil pointer.
	if a.cache != nil {
		deps.Cache = a.cache
	}

	return &services{pipeline: svc, health: healthuc.New(deps), outputs: outputs}
}
