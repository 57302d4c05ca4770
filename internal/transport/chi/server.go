// Package chi serves the query pipeline over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/geoquery/internal/domain"
	"github.com/kailas-cloud/geoquery/internal/logger"
	healthuc "github.com/kailas-cloud/geoquery/internal/usecase/health"
	"github.com/kailas-cloud/geoquery/internal/usecase/pipeline"
)

const maxBodyBytes = 64 << 10

// Pipeline runs queries.
type Pipeline interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
	RunDirect(ctx context.Context, req pipeline.DirectRequest) (pipeline.Response, error)
}

// Health reports component status.
type Health interface {
	Check(ctx context.Context) healthuc.Report
	Status(ctx context.Context) healthuc.StatusReport
}

// OutputResolver maps a served file name to its path on disk.
type OutputResolver interface {
	Resolve(name string) (string, error)
}

// Server holds the HTTP handlers.
type Server struct {
	pipeline Pipeline
	health   Health
	outputs  OutputResolver
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(p Pipeline, health Health, outputs OutputResolver, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{pipeline: p, health: health, outputs: outputs, logger: logger}
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/chat", s.Chat)
	r.Post("/chat_simple", s.ChatSimple)
	r.Get("/status", s.Status)
	r.Get("/health", s.Health)
	r.Get("/metrics", s.Metrics)
	r.Get("/output/{file}", s.Output)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})
}

type chatRequest struct {
	Query         string    `json:"query"`
	Model         string    `json:"model"`
	MinConfidence *float64  `json:"min_confidence"`
	DefaultBBox   []float64 `json:"default_bbox"`
}

type chatSimpleRequest struct {
	Query string `json:"query"`
	Place string `json:"place"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type statusResponse struct {
	Status          healthuc.Status                 `json:"status"`
	LLMAvailable    bool                            `json:"llm_available"`
	Model           string                          `json:"model"`
	AvailableModels []string                        `json:"available_models"`
	EvidenceLoaded  bool                            `json:"evidence_loaded"`
	EvidenceCount   int                             `json:"evidence_count"`
	EvidenceError   string                          `json:"evidence_error,omitempty"`
	Checks          map[string]healthuc.CheckResult `json:"checks"`
}

type errorResponse struct {
	Status    pipeline.Status `json:"status"`
	ErrorCode string          `json:"error_code"`
	Message   string          `json:"message"`
}

// Chat handles POST /chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, pipeline.CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, pipeline.CodeInvalidRequest, "Missing 'query' parameter")
		return
	}

	preq := pipeline.Request{Query: req.Query, Model: req.Model, MinConfidence: req.MinConfidence}
	if req.DefaultBBox != nil {
		if len(req.DefaultBBox) != 4 {
			writeError(w, http.StatusBadRequest, pipeline.CodeInvalidRequest,
				"default_bbox must be [min_lon, min_lat, max_lon, max_lat]")
			return
		}
		b := req.DefaultBBox
		preq.DefaultBBox = &domain.BoundingBox{MinLon: b[0], MinLat: b[1], MaxLon: b[2], MaxLat: b[3]}
	}

	resp, err := s.pipeline.Run(r.Context(), preq)
	s.writeRun(w, r, resp, err)
}

// ChatSimple handles POST /chat_simple.
func (s *Server) ChatSimple(w http.ResponseWriter, r *http.Request) {
	var req chatSimpleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, pipeline.CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Key == "" || req.Value == "" {
		writeError(w, http.StatusBadRequest, pipeline.CodeInvalidRequest, "Missing 'key' or 'value' parameter")
		return
	}
	if strings.TrimSpace(req.Place) == "" {
		writeError(w, http.StatusBadRequest, pipeline.CodeInvalidRequest, "Missing 'place' parameter")
		return
	}

	resp, err := s.pipeline.RunDirect(r.Context(), pipeline.DirectRequest{
		Query: req.Query,
		Place: req.Place,
		Tag:   domain.TagPair{Key: req.Key, Value: req.Value},
	})
	s.writeRun(w, r, resp, err)
}

// Status handles GET /status.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	rep := s.health.Status(r.Context())
	models := rep.Models
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:          rep.Status,
		LLMAvailable:    rep.LLMReachable,
		Model:           rep.Model,
		AvailableModels: models,
		EvidenceLoaded:  rep.EvidenceLoaded,
		EvidenceCount:   rep.EvidenceCount,
		EvidenceError:   rep.EvidenceProblem,
		Checks:          rep.Checks,
	})
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	rep := s.health.Check(r.Context())
	status := http.StatusOK
	if rep.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": rep.Status,
		"checks": rep.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// Output handles GET /output/{file}.
func (s *Server) Output(w http.ResponseWriter, r *http.Request) {
	path, err := s.outputs.Resolve(chi.URLParam(r, "file"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "Not found")
		return
	}
	f, err := os.Open(path) //nolint:gosec // path is built from a validated ULID name
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "not_found", "Not found")
			return
		}
		logger.FromContext(r.Context()).Error("open output", zap.Error(err))
		writeError(w, http.StatusInternalServerError, pipeline.CodeInternal, "internal error")
		return
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, pipeline.CodeInternal, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}

// writeRun answers with the pipeline response, which is complete on error too.
func (s *Server) writeRun(w http.ResponseWriter, r *http.Request, resp pipeline.Response, err error) {
	status := http.StatusOK
	if err != nil {
		status = httpStatus(resp.ErrorCode)
		if status == http.StatusInternalServerError {
			logger.FromContext(r.Context()).Error("pipeline failed", zap.Error(err))
			resp.Message = "internal error"
		}
	}
	writeJSON(w, status, resp)
}

// httpStatus maps a pipeline error code to an HTTP status.
func httpStatus(code string) int {
	switch code {
	case pipeline.CodeInvalidRequest:
		return http.StatusBadRequest
	case pipeline.CodeNoTagResolved, pipeline.CodeNoPlaceResolved,
		pipeline.CodePlaceNotResolved, pipeline.CodeLowConfidence:
		return http.StatusUnprocessableEntity
	case pipeline.CodeExtractionFailed, pipeline.CodeEmbeddingFailed:
		return http.StatusBadGateway
	case pipeline.CodeIndexUnavailable:
		return http.StatusServiceUnavailable
	case pipeline.CodeCancelled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty body")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Status:    pipeline.StatusError,
		ErrorCode: code,
		Message:   message,
	})
}
