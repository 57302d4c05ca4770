package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates the service cannot answer queries.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckDisabled indicates an optional component that is not configured.
	CheckDisabled CheckResult = "disabled"
)

const checkTimeout = 5 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// StatusReport is the detailed report served on /status.
type StatusReport struct {
	Report
	LLMReachable    bool
	Model           string
	Models          []string
	EvidenceLoaded  bool
	EvidenceCount   int
	EvidenceProblem string
}

// Deps are the components under check. Cache and Embedding may be nil.
type Deps struct {
	Evidence  EvidenceStore
	LLM       ModelLister
	Embedding Checker
	Cache     CachePinger
	Model     string
}

// Service coordinates health checks.
type Service struct {
	deps Deps
}

// New creates a Service.
func New(deps Deps) *Service {
	return &Service{deps: deps}
}

// Check returns the aggregated status. A missing evidence store is fatal,
// any other failing component degrades.
func (s *Service) Check(ctx context.Context) Report {
	return s.Status(ctx).Report
}

// Status probes every component concurrently.
func (s *Service) Status(ctx context.Context) StatusReport {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	r := StatusReport{Model: s.deps.Model}
	checks := make(map[string]CheckResult)
	var mu sync.Mutex
	set := func(name string, res CheckResult) {
		mu.Lock()
		checks[name] = res
		mu.Unlock()
	}

	if s.deps.Evidence != nil && s.deps.Evidence.Loaded() {
		r.EvidenceLoaded = true
		r.EvidenceCount = s.deps.Evidence.Count()
		checks["evidence"] = CheckOK
	} else {
		checks["evidence"] = CheckError
		if s.deps.Evidence != nil {
			r.EvidenceProblem = s.deps.Evidence.Reason().Error()
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		models, err := s.deps.LLM.ListModels(ctx)
		if err != nil {
			set("llm", CheckError)
			return
		}
		r.LLMReachable = true
		r.Models = models
		set("llm", CheckOK)
	}()
	probe := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				set(name, CheckError)
				return
			}
			set(name, CheckOK)
		}()
	}
	if s.deps.Embedding != nil {
		probe("embedding", s.deps.Embedding.HealthCheck)
	}
	if s.deps.Cache != nil {
		probe("cache", s.deps.Cache.Ping)
	} else {
		set("cache", CheckDisabled)
	}
	wg.Wait()

	r.Checks = checks
	r.Status = aggregate(checks)
	return r
}

func aggregate(checks map[string]CheckResult) Status {
	if checks["evidence"] == CheckError {
		return Unhealthy
	}
	for _, v := range checks {
		if v == CheckError {
			return Degraded
		}
	}
	return Healthy
}
