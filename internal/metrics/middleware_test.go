package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddleware_RecordsDurationAndCount(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/status", http.NoBody))

	if rr.Code != 200 {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if v := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/status", "200")); v < 1 {
		t.Errorf("expected http_requests_total >= 1, got %f", v)
	}
	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected http_request_duration_seconds to have observations")
	}
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/output/{file}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, f := range []string{"a.geojson", "b.geojson"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest("GET", "/output/"+f, http.NoBody))
	}

	if v := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/output/{file}", "404")); v < 2 {
		t.Errorf("expected both requests under one pattern label, got %f", v)
	}
}

func TestMetricsMiddleware_StatusCodes(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Post("/chat", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	r.Post("/chat_simple", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	r.Get("/silent", func(http.ResponseWriter, *http.Request) {})

	tests := []struct {
		method, path, status string
	}{
		{"POST", "/chat", "422"},
		{"POST", "/chat_simple", "502"},
		{"GET", "/silent", "200"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, http.NoBody))

			if v := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(tc.method, tc.path, tc.status)); v < 1 {
				t.Errorf("expected requests_total for %s %s >= 1, got %f", tc.path, tc.status, v)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unknown"},
		{"/chat", "/chat"},
		{"/output/{file}", "/output/{file}"},
	}
	for _, tc := range tests {
		if got := normalizePath(tc.input); got != tc.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestRegister_Idempotent(t *testing.T) {
	RegisterEmbeddingMetrics()
	RegisterEmbeddingMetrics()
	RegisterPipelineMetrics()
	RegisterPipelineMetrics()
}
