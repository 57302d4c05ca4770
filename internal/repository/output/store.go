// Package output persists per-request GeoJSON feature collections.
package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

const ext = ".geojson"

// ErrInvalidName signals a file name that is not a request output.
var ErrInvalidName = errors.New("output: invalid file name")

// Config holds output settings.
type Config struct {
	Dir       string
	URLPrefix string        // public path the files are served under
	MaxAge    time.Duration // files older than this are pruned on write; zero keeps everything
	Logger    *zap.Logger
}

// Store writes one file per request id. Distinct ids never share a path.
type Store struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a store rooted at cfg.Dir.
func New(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.URLPrefix = strings.TrimRight(cfg.URLPrefix, "/")
	return &Store{cfg: cfg, logger: logger, now: time.Now}
}

// Write encodes features as a FeatureCollection of points and returns the URL
// the file is served under.
func (s *Store) Write(ctx context.Context, id ulid.ULID, features []domain.Feature) (string, error) {
	if err := os.MkdirAll(s.cfg.Dir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	data, err := json.Marshal(toCollection(features))
	if err != nil {
		return "", fmt.Errorf("encode geojson: %w", err)
	}

	name := id.String() + ext
	path := filepath.Join(s.cfg.Dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("write geojson: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename geojson: %w", err)
	}

	s.prune(ctx, name)
	return s.cfg.URLPrefix + "/" + name, nil
}

// Resolve maps a served file name back to its path. Only names produced by
// Write are accepted.
func (s *Store) Resolve(name string) (string, error) {
	id, ok := strings.CutSuffix(name, ext)
	if !ok {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return filepath.Join(s.cfg.Dir, name), nil
}

func (s *Store) prune(ctx context.Context, keep string) {
	if s.cfg.MaxAge <= 0 {
		return
	}
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		s.logger.Warn("Failed to list output dir", zap.Error(err))
		return
	}
	cutoff := s.now().Add(-s.cfg.MaxAge)
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if e.IsDir() || e.Name() == keep || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.Dir, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("pruned old outputs", zap.Int("removed", removed))
	}
}

func toCollection(features []domain.Feature) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(features))}
	for _, f := range features {
		var name any
		if n := f.Name(); n != "" {
			name = n
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: geom.NewPointFlat(geom.XY, []float64{f.Lon, f.Lat}),
			Properties: map[string]any{
				"osm_type": "node",
				"osm_id":   f.ID,
				"name":     name,
				"tags":     f.Tags,
			},
		})
	}
	return fc
}
