package filter

import (
	"context"

	"github.com/paulmach/osm"
)

// Scanner iterates OSM objects and releases its resources on Close.
type Scanner interface {
	osm.Scanner
}

// Opener opens a clipped region for scanning.
type Opener interface {
	Open(ctx context.Context, path string) (Scanner, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (Scanner, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, path string) (Scanner, error) { return f(ctx, path) }
