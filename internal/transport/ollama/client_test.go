package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/kailas-cloud/geoquery/internal/domain"
	"github.com/kailas-cloud/geoquery/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

func TestChat_SendsNonStreamingRequestWithSchema(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			Model:   got.Model,
			Message: chatMessage{Role: "assistant", Content: `{"place":"Malmö"}`},
			Done:    true,
		})
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL + "/", Timeout: time.Second})
	out, err := c.Chat(context.Background(), domain.ChatRequest{
		Model:       "llama3.1:8b",
		System:      "sys",
		User:        "cafes in Malmö",
		Schema:      []byte(`{"type":"object"}`),
		Temperature: 0.1,
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if out != `{"place":"Malmö"}` {
		t.Errorf("unexpected content: %q", out)
	}
	if got.Stream {
		t.Error("expected stream=false")
	}
	if string(got.Format) != `{"type":"object"}` {
		t.Errorf("expected schema as format, got %s", got.Format)
	}
	if got.Options["temperature"] != 0.1 {
		t.Errorf("expected temperature 0.1, got %v", got.Options["temperature"])
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "cafes in Malmö" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
}

func TestChat_NoSchemaOmitsFormat(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"hi"},"done":true}`))
	}))
	defer server.Close()

	if _, err := New(Config{BaseURL: server.URL}).Chat(context.Background(), domain.ChatRequest{Model: "m"}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if _, ok := raw["format"]; ok {
		t.Errorf("format should be omitted, got %v", raw["format"])
	}
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			want: domain.ErrModelUnreachable,
		},
		{
			name: "model missing",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"error":"model 'x' not found"}`))
			},
			want: domain.ErrModelUnreachable,
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			want: domain.ErrMalformedModelOutput,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			_, err := New(Config{BaseURL: server.URL}).Chat(context.Background(), domain.ChatRequest{Model: "x"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestChat_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := New(Config{BaseURL: url, Timeout: time.Second}).Chat(context.Background(), domain.ChatRequest{Model: "m"})
	if !errors.Is(err, domain.ErrModelUnreachable) {
		t.Fatalf("expected ErrModelUnreachable, got %v", err)
	}
}

func TestChat_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	_, err := New(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}).
		Chat(context.Background(), domain.ChatRequest{Model: "m"})
	if !errors.Is(err, domain.ErrModelUnreachable) {
		t.Fatalf("expected ErrModelUnreachable on timeout, got %v", err)
	}
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.1:8b"},{"model":"qwen2.5:7b"}]}`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 || models[0] != "llama3.1:8b" || models[1] != "qwen2.5:7b" {
		t.Errorf("unexpected models: %v", models)
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
