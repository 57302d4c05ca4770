// Package osmfile opens OSM extracts as object scanners.
package osmfile

import (
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
)

// ErrUnknownFormat signals a file extension with no matching decoder.
var ErrUnknownFormat = errors.New("osmfile: unknown format")

// Opener opens .osm.pbf, .osm/.xml and .osm.bz2 files.
type Opener struct {
	// Procs is the number of PBF decoding goroutines. Zero means GOMAXPROCS.
	Procs int
	// NodesOnly skips ways and relations at decode time where the format allows it.
	NodesOnly bool
}

// Reader scans OSM objects and owns the underlying file.
type Reader struct {
	osm.Scanner
	file *os.File
}

// Close stops the scanner and closes the file.
func (r *Reader) Close() error {
	return errors.Join(r.Scanner.Close(), r.file.Close())
}

// Open picks a decoder from the file extension.
func (o Opener) Open(ctx context.Context, path string) (*Reader, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var scanner osm.Scanner
	switch lower := strings.ToLower(path); {
	case strings.HasSuffix(lower, ".pbf"):
		procs := o.Procs
		if procs <= 0 {
			procs = runtime.GOMAXPROCS(0)
		}
		s := osmpbf.New(ctx, f, procs)
		s.SkipWays = o.NodesOnly
		s.SkipRelations = o.NodesOnly
		scanner = s
	case strings.HasSuffix(lower, ".osm.bz2"):
		scanner = osmxml.New(ctx, bzip2.NewReader(f))
	case strings.HasSuffix(lower, ".osm"), strings.HasSuffix(lower, ".xml"):
		scanner = osmxml.New(ctx, io.Reader(f))
	default:
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
	return &Reader{Scanner: scanner, file: f}, nil
}
