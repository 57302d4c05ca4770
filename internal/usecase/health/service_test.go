package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockChecker struct {
	err error
}

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

type mockLister struct {
	models []string
	err    error
}

func (m *mockLister) ListModels(_ context.Context) ([]string, error) { return m.models, m.err }

type mockEvidence struct {
	count  int
	reason error
}

func (m *mockEvidence) Loaded() bool  { return m.reason == nil }
func (m *mockEvidence) Count() int    { return m.count }
func (m *mockEvidence) Reason() error { return m.reason }

func healthyDeps() Deps {
	return Deps{
		Evidence:  &mockEvidence{count: 412},
		LLM:       &mockLister{models: []string{"llama3.1:8b"}},
		Embedding: &mockChecker{},
		Cache:     &mockPinger{},
		Model:     "llama3.1:8b",
	}
}

// --- Tests ---

func TestStatus_AllHealthy(t *testing.T) {
	r := New(healthyDeps()).Status(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	for _, name := range []string{"evidence", "llm", "embedding", "cache"} {
		if r.Checks[name] != CheckOK {
			t.Errorf("expected %s %q, got %q", name, CheckOK, r.Checks[name])
		}
	}
	if !r.LLMReachable || len(r.Models) != 1 || r.Model != "llama3.1:8b" {
		t.Errorf("unexpected model info: %+v", r)
	}
	if !r.EvidenceLoaded || r.EvidenceCount != 412 {
		t.Errorf("unexpected evidence info: loaded=%v count=%d", r.EvidenceLoaded, r.EvidenceCount)
	}
}

func TestStatus_LLMDown(t *testing.T) {
	deps := healthyDeps()
	deps.LLM = &mockLister{err: errors.New("connection refused")}
	r := New(deps).Status(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["llm"] != CheckError || r.LLMReachable {
		t.Errorf("expected llm error, got %q", r.Checks["llm"])
	}
}

func TestStatus_CacheError(t *testing.T) {
	deps := healthyDeps()
	deps.Cache = &mockPinger{err: errors.New("timeout")}
	r := New(deps).Status(context.Background())

	if r.Status != Degraded || r.Checks["cache"] != CheckError {
		t.Errorf("expected degraded with cache error, got %q %q", r.Status, r.Checks["cache"])
	}
}

func TestStatus_CacheDisabled(t *testing.T) {
	deps := healthyDeps()
	deps.Cache = nil
	deps.Embedding = nil
	r := New(deps).Status(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["cache"] != CheckDisabled {
		t.Errorf("expected cache %q, got %q", CheckDisabled, r.Checks["cache"])
	}
	if _, ok := r.Checks["embedding"]; ok {
		t.Error("embedding check should be skipped when nil")
	}
}

func TestCheck_EvidenceMissing(t *testing.T) {
	deps := healthyDeps()
	deps.Evidence = &mockEvidence{reason: errors.New("no manifest")}
	svc := New(deps)

	r := svc.Check(context.Background())
	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["evidence"] != CheckError {
		t.Errorf("expected evidence %q, got %q", CheckError, r.Checks["evidence"])
	}

	sr := svc.Status(context.Background())
	if sr.EvidenceProblem != "no manifest" || sr.EvidenceLoaded {
		t.Errorf("unexpected evidence detail: %+v", sr)
	}
}
