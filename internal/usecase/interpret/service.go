// Package interpret turns a free-text query and retrieved evidence into a
// place and an OSM tag.
package interpret

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/geoquery/internal/domain"
	"github.com/kailas-cloud/geoquery/internal/logger"
	"github.com/kailas-cloud/geoquery/internal/metrics"
)

// Config controls model calls.
type Config struct {
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Service interprets queries with a chat model and falls back to local parsing.
type Service struct {
	model ChatModel
	cfg   Config
}

// New creates an interpreter. model can be nil, in which case every query
// takes the heuristic path.
func New(model ChatModel, cfg Config) *Service {
	return &Service{model: model, cfg: cfg}
}

// Interpret never fails: model errors and malformed replies degrade to the
// heuristic reading, recorded in Provenance and FallbackReason.
func (s *Service) Interpret(
	ctx context.Context, query domain.Query, evidence domain.RetrievalResult,
) domain.InterpretedQuery {
	log := logger.FromContext(ctx)

	raw, err := s.ask(ctx, query, evidence)
	if err != nil {
		reason := domain.FallbackModelUnreachable
		if errors.Is(err, domain.ErrMalformedModelOutput) {
			reason = domain.FallbackMalformedOutput
		}
		log.Warn("interpreter model call failed, using heuristic", zap.Error(err))
		return s.fallback(query.Text, evidence, reason, raw)
	}

	q, err := parseStrict(raw)
	if err == nil {
		q.Provenance = domain.ProvenanceStrict
		q.RawOutput = raw
		return s.finish(withQueryPlace(q, query.Text))
	}
	log.Debug("strict parse rejected model output", zap.Error(err))

	if lq, ok := parseLenient(raw); ok {
		lq.Provenance = domain.ProvenanceLenient
		lq.RawOutput = raw
		return s.finish(withQueryPlace(lq, query.Text))
	}

	log.Warn("model output unparseable, using heuristic", zap.Int("raw_len", len(raw)))
	return s.fallback(query.Text, evidence, domain.FallbackMalformedOutput, raw)
}

func (s *Service) ask(ctx context.Context, query domain.Query, evidence domain.RetrievalResult) (string, error) {
	if s.model == nil {
		return "", domain.ErrModelUnreachable
	}
	model := s.cfg.Model
	if query.Model != "" {
		model = query.Model
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	return s.model.Chat(ctx, domain.ChatRequest{
		Model:       model,
		System:      systemPrompt,
		User:        userPrompt(query.Text, evidence),
		Schema:      []byte(outputSchema),
		Temperature: s.cfg.Temperature,
	})
}

func (s *Service) fallback(
	text string, evidence domain.RetrievalResult, reason domain.FallbackReason, raw string,
) domain.InterpretedQuery {
	q := heuristic(text, evidence)
	q.FallbackReason = reason
	q.RawOutput = raw
	return s.finish(q)
}

// withQueryPlace reads the place from the query when the model left it out.
func withQueryPlace(q domain.InterpretedQuery, text string) domain.InterpretedQuery {
	if q.Place != nil && strings.TrimSpace(*q.Place) != "" {
		return q
	}
	p, ok := guessPlace(text)
	if !ok {
		return q
	}
	q.Place = &p
	q.PlaceFromQuery = true
	note := "place " + p + " taken from query wording"
	if strings.TrimSpace(q.Explanation) == "" {
		q.Explanation = note
	} else {
		q.Explanation = strings.TrimSpace(q.Explanation) + "; " + note
	}
	return q
}

func (s *Service) finish(q domain.InterpretedQuery) domain.InterpretedQuery {
	q = normalize(q)
	metrics.InterpretationsTotal.WithLabelValues(string(q.Provenance), string(q.FallbackReason)).Inc()
	return q
}
