package health

import "context"

// CachePinger checks cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// Checker checks a remote provider's availability.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// ModelLister lists the models a chat provider can serve.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// EvidenceStore reports whether the evidence store is loaded.
type EvidenceStore interface {
	Loaded() bool
	Count() int
	Reason() error
}
