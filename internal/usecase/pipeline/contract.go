package pipeline

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

// Retriever returns evidence for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error)
}

// Interpreter reads a query against evidence. It never fails.
type Interpreter interface {
	Interpret(ctx context.Context, query domain.Query, evidence domain.RetrievalResult) domain.InterpretedQuery
}

// Geocoder resolves a place name to a bounding box.
type Geocoder interface {
	Geocode(ctx context.Context, place string) (domain.BoundingBox, error)
}

// Extractor clips bbox out of the source dataset into dst.
type Extractor interface {
	Extract(ctx context.Context, bbox domain.BoundingBox, dst string) error
}

// Filter selects point features tagged exactly tag.
type Filter interface {
	Filter(ctx context.Context, path string, tag domain.TagPair) ([]domain.Feature, error)
}

// OutputWriter persists a run's features and returns their public URL.
type OutputWriter interface {
	Write(ctx context.Context, id ulid.ULID, features []domain.Feature) (string, error)
}
