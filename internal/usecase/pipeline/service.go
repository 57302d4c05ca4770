// Package pipeline resolves a free-text query into a filtered set of point
// features: retrieve evidence, interpret, geocode, extract, filter.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/geoquery/internal/domain"
	"github.com/kailas-cloud/geoquery/internal/logger"
	"github.com/kailas-cloud/geoquery/internal/metrics"
)

const tracerName = "github.com/kailas-cloud/geoquery/internal/usecase/pipeline"

// Run modes.
const (
	ModeChat   = "chat"
	ModeDirect = "direct"
)

// Stage names used for spans, metrics and diagnostics.
const (
	StageRetrieve  = "retrieve"
	StageInterpret = "interpret"
	StageGeocode   = "geocode"
	StageExtract   = "extract"
	StageFilter    = "filter"
	StageOutput    = "output"
)

const regionFile = "region.osm.pbf"

// Config controls orchestration.
type Config struct {
	TopK                     int
	EvidenceChars            int
	MaxConcurrentExtractions int64
	WorkDir                  string
	DefaultPlace             string
	DefaultBBox              *domain.BoundingBox
}

// Deps are the collaborators of a run.
type Deps struct {
	Retriever   Retriever
	Interpreter Interpreter
	Geocoder    Geocoder
	Extractor   Extractor
	Filter      Filter
	Output      OutputWriter
	// Tracer defaults to the global provider.
	Tracer trace.TracerProvider
}

// Request is a free-text query.
type Request struct {
	Query         string
	Model         string
	MinConfidence *float64
	DefaultBBox   *domain.BoundingBox
}

// DirectRequest skips retrieval and interpretation.
type DirectRequest struct {
	Query string
	Place string
	Tag   domain.TagPair
}

// Service orchestrates runs. Extraction plus filtering is bounded by a
// process-wide semaphore; every other stage runs concurrently.
type Service struct {
	deps   Deps
	cfg    Config
	sem    *semaphore.Weighted
	tracer trace.Tracer
}

// New creates a pipeline service.
func New(deps Deps, cfg Config) *Service {
	if cfg.MaxConcurrentExtractions <= 0 {
		cfg.MaxConcurrentExtractions = 1
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	tp := deps.Tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Service{
		deps:   deps,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrentExtractions),
		tracer: tp.Tracer(tracerName),
	}
}

// run carries per-request state through the stages.
type run struct {
	id   ulid.ULID
	resp Response
}

func (s *Service) begin(ctx context.Context, mode, query string) (context.Context, trace.Span, *run) {
	r := &run{id: ulid.Make()}
	r.resp = Response{
		RequestID:   r.id.String(),
		Query:       query,
		Evidence:    []Evidence{},
		Diagnostics: Diagnostics{Mode: mode, StageMillis: map[string]int64{}},
	}
	ctx, span := s.tracer.Start(ctx, "pipeline."+mode, trace.WithAttributes(
		attribute.String("geoquery.request_id", r.resp.RequestID),
	))
	ctx = logger.WithFields(ctx, zap.String("request_id", r.resp.RequestID), zap.String("mode", mode))
	return ctx, span, r
}

// Run executes the full pipeline. The returned Response is complete whether
// or not err is nil; err carries the terminal domain error.
func (s *Service) Run(ctx context.Context, req Request) (Response, error) {
	ctx, span, r := s.begin(ctx, ModeChat, req.Query)
	defer span.End()

	err := s.run(ctx, r, req)
	return s.finish(ctx, span, r, err)
}

// RunDirect executes geocode, extract and filter for an explicit place and tag.
func (s *Service) RunDirect(ctx context.Context, req DirectRequest) (Response, error) {
	ctx, span, r := s.begin(ctx, ModeDirect, req.Query)
	defer span.End()

	err := s.runDirect(ctx, r, req)
	return s.finish(ctx, span, r, err)
}

func (s *Service) run(ctx context.Context, r *run, req Request) error {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return fmt.Errorf("query is empty: %w", domain.ErrInvalidRequest)
	}
	if req.MinConfidence != nil && (*req.MinConfidence < 0 || *req.MinConfidence > 1) {
		return fmt.Errorf("min_confidence %v outside [0,1]: %w", *req.MinConfidence, domain.ErrInvalidRequest)
	}
	if req.DefaultBBox != nil {
		if err := req.DefaultBBox.Validate(); err != nil {
			return fmt.Errorf("default_bbox: %w", err)
		}
	}

	var evidence domain.RetrievalResult
	err := s.stage(ctx, r, StageRetrieve, func(ctx context.Context) error {
		var err error
		evidence, err = s.deps.Retriever.Retrieve(ctx, query, s.cfg.TopK)
		return err
	})
	if err != nil {
		return fmt.Errorf("retrieve evidence: %w", err)
	}
	r.resp.Evidence = toEvidence(evidence, s.cfg.EvidenceChars)

	var iq domain.InterpretedQuery
	_ = s.stage(ctx, r, StageInterpret, func(ctx context.Context) error {
		iq = s.deps.Interpreter.Interpret(ctx, domain.Query{Text: query, Model: req.Model}, evidence)
		return nil
	})
	// A cancelled request must not continue on the heuristic reading.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interpret: %w", err)
	}
	r.resp.LLMOK = iq.UsedModel
	r.resp.LLMConfidence = iq.Confidence
	r.resp.LLMProvenance = iq.Provenance
	r.resp.LLMExplanation = iq.Explanation
	r.resp.Diagnostics.FallbackReason = iq.FallbackReason
	r.resp.Diagnostics.RawModelOutput = iq.RawOutput

	if !iq.HasTag() {
		return fmt.Errorf("%w: neither the model nor the fallback produced a key=value tag", domain.ErrNoTagResolved)
	}
	tag := *iq.Tag
	r.resp.ChosenTag = ptr(tag.String())

	if req.MinConfidence != nil && iq.Confidence < *req.MinConfidence {
		return fmt.Errorf("%w: confidence %.2f below requested %.2f",
			domain.ErrLowConfidence, iq.Confidence, *req.MinConfidence)
	}

	bbox, err := s.resolvePlace(ctx, r, iq, req.DefaultBBox)
	if err != nil {
		return err
	}
	return s.extractAndFilter(ctx, r, bbox, tag)
}

func (s *Service) runDirect(ctx context.Context, r *run, req DirectRequest) error {
	place := strings.TrimSpace(req.Place)
	if place == "" {
		return fmt.Errorf("place is empty: %w", domain.ErrInvalidRequest)
	}
	tag := domain.TagPair{Key: strings.TrimSpace(req.Tag.Key), Value: strings.TrimSpace(req.Tag.Value)}
	if !tag.Valid() {
		return fmt.Errorf("tag %q: %w", tag.String(), domain.ErrInvalidRequest)
	}
	r.resp.ChosenTag = ptr(tag.String())
	r.resp.Place = ptr(place)
	r.resp.Diagnostics.PlaceSource = PlaceFromRequest

	bbox, err := s.geocode(ctx, r, place)
	if err != nil {
		return err
	}
	return s.extractAndFilter(ctx, r, bbox, tag)
}

// resolvePlace picks the search area: interpreted place, then the request's
// bbox, then the configured default bbox or place.
func (s *Service) resolvePlace(
	ctx context.Context, r *run, iq domain.InterpretedQuery, requestBBox *domain.BoundingBox,
) (domain.BoundingBox, error) {
	switch {
	case iq.HasPlace():
		r.resp.Place = ptr(*iq.Place)
		r.resp.Diagnostics.PlaceSource = PlaceFromHeuristic
		if iq.UsedModel && !iq.PlaceFromQuery {
			r.resp.Diagnostics.PlaceSource = PlaceFromModel
		}
		return s.geocode(ctx, r, *iq.Place)
	case requestBBox != nil:
		r.resp.Diagnostics.PlaceSource = PlaceFromRequestBBox
		r.resp.BBox = ptr(*requestBBox)
		return *requestBBox, nil
	case s.cfg.DefaultBBox != nil:
		r.resp.Diagnostics.PlaceSource = PlaceFromDefaultBBox
		r.resp.BBox = ptr(*s.cfg.DefaultBBox)
		return *s.cfg.DefaultBBox, nil
	case s.cfg.DefaultPlace != "":
		r.resp.Place = ptr(s.cfg.DefaultPlace)
		r.resp.Diagnostics.PlaceSource = PlaceFromDefaultPlace
		return s.geocode(ctx, r, s.cfg.DefaultPlace)
	default:
		return domain.BoundingBox{}, fmt.Errorf("%w: the query names no place and no default region is configured",
			domain.ErrNoPlaceResolved)
	}
}

func (s *Service) geocode(ctx context.Context, r *run, place string) (domain.BoundingBox, error) {
	var bbox domain.BoundingBox
	err := s.stage(ctx, r, StageGeocode, func(ctx context.Context) error {
		var err error
		bbox, err = s.deps.Geocoder.Geocode(ctx, place)
		if err == nil {
			err = bbox.Validate()
		}
		return err
	})
	if err != nil {
		return domain.BoundingBox{}, fmt.Errorf("%w: %q: %w", domain.ErrPlaceNotResolved, place, err)
	}
	r.resp.BBox = ptr(bbox)
	return bbox, nil
}

// extractAndFilter holds an extraction slot for the clip, the scan and the
// output write. The per-request work directory is removed on return.
func (s *Service) extractAndFilter(ctx context.Context, r *run, bbox domain.BoundingBox, tag domain.TagPair) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for extraction slot: %w", err)
	}
	metrics.ExtractionsInFlight.Inc()
	defer func() {
		metrics.ExtractionsInFlight.Dec()
		s.sem.Release(1)
	}()

	workDir := filepath.Join(s.cfg.WorkDir, r.resp.RequestID)
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.FromContext(ctx).Warn("Failed to remove work dir", zap.String("dir", workDir), zap.Error(err))
		}
	}()

	region := filepath.Join(workDir, regionFile)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Float64("bbox.diagonal_m", bbox.DiagonalMeters()))
	err := s.stage(ctx, r, StageExtract, func(ctx context.Context) error {
		return s.deps.Extractor.Extract(ctx, bbox, region)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrExtractionFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrExtractionFailed, err)
		}
		return err
	}

	var features []domain.Feature
	err = s.stage(ctx, r, StageFilter, func(ctx context.Context) error {
		var err error
		features, err = s.deps.Filter.Filter(ctx, region, tag)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: scan clipped region: %w", domain.ErrExtractionFailed, err)
	}
	features = insideBBox(features, bbox, r)

	var url string
	err = s.stage(ctx, r, StageOutput, func(ctx context.Context) error {
		var err error
		url, err = s.deps.Output.Write(ctx, r.id, features)
		return err
	})
	if err != nil {
		return fmt.Errorf("write feature collection: %w", err)
	}

	r.resp.Count = len(features)
	r.resp.GeoJSONURL = url
	return nil
}

func (s *Service) stage(ctx context.Context, r *run, name string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	metrics.PipelineStageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	r.resp.Diagnostics.StageMillis[name] = elapsed.Milliseconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	logger.FromContext(ctx).Debug("pipeline stage finished",
		zap.String("stage", name), zap.Duration("elapsed", elapsed), zap.Error(err))
	return err
}

func (s *Service) finish(ctx context.Context, span trace.Span, r *run, err error) (Response, error) {
	log := logger.FromContext(ctx)
	mode := r.resp.Diagnostics.Mode

	if err != nil {
		// The caller went away: whatever stage noticed first, the run was cancelled.
		if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
			err = fmt.Errorf("%w: %w", cerr, err)
		}
		r.resp.Status = StatusError
		r.resp.ErrorCode = ErrorCode(err)
		if ctx.Err() != nil {
			r.resp.ErrorCode = CodeCancelled
		}
		r.resp.Message = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, r.resp.ErrorCode)
		span.SetAttributes(attribute.String("geoquery.error_code", r.resp.ErrorCode))
		metrics.PipelineRunsTotal.WithLabelValues(mode, r.resp.ErrorCode).Inc()
		log.Warn("pipeline run failed", zap.String("error_code", r.resp.ErrorCode), zap.Error(err))
		return r.resp, err
	}

	r.resp.Status = StatusSuccess
	r.resp.Message = successMessage(r.resp)
	span.SetAttributes(
		attribute.Int("geoquery.count", r.resp.Count),
		attribute.String("geoquery.tag", deref(r.resp.ChosenTag)),
	)
	metrics.PipelineRunsTotal.WithLabelValues(mode, string(StatusSuccess)).Inc()
	metrics.PipelineFeaturesReturned.Observe(float64(r.resp.Count))
	log.Info("pipeline run completed",
		zap.String("tag", deref(r.resp.ChosenTag)),
		zap.String("place", deref(r.resp.Place)),
		zap.Int("count", r.resp.Count),
	)
	return r.resp, nil
}

// insideBBox drops features outside bbox. A clip keeps whole ways, so member
// nodes past the edge can carry the tag too.
func insideBBox(features []domain.Feature, bbox domain.BoundingBox, r *run) []domain.Feature {
	kept := features[:0:0]
	for _, f := range features {
		if bbox.Contains(f.Lon, f.Lat) {
			kept = append(kept, f)
		}
	}
	r.resp.Diagnostics.OutsideBBox = len(features) - len(kept)
	return kept
}

func successMessage(resp Response) string {
	where := "the selected area"
	if resp.Place != nil {
		where = *resp.Place
	}
	noun := "features"
	if resp.Count == 1 {
		noun = "feature"
	}
	return fmt.Sprintf("Found %d %s tagged %s in %s.", resp.Count, noun, deref(resp.ChosenTag), where)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
