package pipeline

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

// Status is the terminal outcome of a run.
type Status string

const (
	// StatusSuccess means features were extracted, possibly zero.
	StatusSuccess Status = "success"
	// StatusError means the run stopped in an error state.
	StatusError Status = "error"
)

// Error codes reported in Response.ErrorCode.
const (
	CodeInvalidRequest   = "invalid_request"
	CodeIndexUnavailable = "index_unavailable"
	CodeEmbeddingFailed  = "embedding_failed"
	CodeNoTagResolved    = "no_tag_resolved"
	CodeNoPlaceResolved  = "no_place_resolved"
	CodePlaceNotResolved = "place_not_resolved"
	CodeExtractionFailed = "extraction_failed"
	CodeLowConfidence    = "low_confidence"
	CodeCancelled        = "cancelled"
	CodeInternal         = "internal"
)

// Response is the terminal artifact of one run. It is always complete, also
// when the run ends in an error state.
type Response struct {
	Status         Status              `json:"status"`
	Message        string              `json:"message"`
	RequestID      string              `json:"request_id"`
	Query          string              `json:"query"`
	Place          *string             `json:"place"`
	ChosenTag      *string             `json:"chosen_tag"`
	Count          int                 `json:"count"`
	GeoJSONURL     string              `json:"geojson_url"`
	BBox           *domain.BoundingBox `json:"bbox,omitempty"`
	Evidence       []Evidence          `json:"evidence"`
	LLMOK          bool                `json:"llm_ok"`
	LLMConfidence  float64             `json:"llm_confidence"`
	LLMProvenance  domain.Provenance   `json:"llm_provenance,omitempty"`
	LLMExplanation string              `json:"llm_explanation,omitempty"`
	ErrorCode      string              `json:"error_code,omitempty"`
	Diagnostics    Diagnostics         `json:"diagnostics"`
}

// Evidence is a retrieved snippet as shown to the caller.
type Evidence struct {
	SourceURL string  `json:"source_url"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
	Tag       string  `json:"tag,omitempty"`
}

// Diagnostics explains how the run reached its result.
type Diagnostics struct {
	Mode           string                `json:"mode"`
	PlaceSource    string                `json:"place_source,omitempty"`
	FallbackReason domain.FallbackReason `json:"fallback_reason,omitempty"`
	RawModelOutput string                `json:"raw_model_output,omitempty"`
	StageMillis    map[string]int64      `json:"stage_ms"`
	// OutsideBBox counts matching nodes the clip carried in from ways that
	// cross the box edge. They are not returned.
	OutsideBBox int `json:"outside_bbox,omitempty"`
}

// Place sources recorded in Diagnostics.PlaceSource.
const (
	PlaceFromModel        = "model"
	PlaceFromHeuristic    = "heuristic"
	PlaceFromRequest      = "request"
	PlaceFromRequestBBox  = "request_bbox"
	PlaceFromDefaultBBox  = "default_bbox"
	PlaceFromDefaultPlace = "default_place"
)

// ErrorCode classifies a terminal error. A collaborator's own timeout keeps
// its stage code; Service reports cancelled when the request context is done.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrExtractionFailed):
		return CodeExtractionFailed
	case errors.Is(err, domain.ErrPlaceNotResolved):
		return CodePlaceNotResolved
	case errors.Is(err, domain.ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, domain.ErrIndexUnavailable), errors.Is(err, domain.ErrEmbeddingMismatch):
		return CodeIndexUnavailable
	case errors.Is(err, domain.ErrEmbeddingProviderError), errors.Is(err, domain.ErrBudgetExceeded):
		return CodeEmbeddingFailed
	case errors.Is(err, domain.ErrNoTagResolved):
		return CodeNoTagResolved
	case errors.Is(err, domain.ErrNoPlaceResolved):
		return CodeNoPlaceResolved
	case errors.Is(err, domain.ErrLowConfidence):
		return CodeLowConfidence
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	default:
		return CodeInternal
	}
}

func toEvidence(rr domain.RetrievalResult, maxChars int) []Evidence {
	out := make([]Evidence, 0, len(rr))
	for _, s := range rr {
		e := Evidence{
			SourceURL: s.Snippet.SourceURL,
			Text:      excerpt(s.Snippet.Text, maxChars),
			Score:     math.Round(s.Score*1e4) / 1e4,
		}
		if s.Snippet.Tag.Valid() {
			e.Tag = s.Snippet.Tag.String()
		}
		out = append(out, e)
	}
	return out
}

// excerpt flattens whitespace and cuts to n runes. n <= 0 keeps the full text.
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

func ptr[T any](v T) *T { return &v }
