// Package filter selects point features carrying an exact OSM tag.
package filter

import (
	"context"
	"fmt"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/kailas-cloud/geoquery/internal/domain"
	"github.com/kailas-cloud/geoquery/internal/domain/geo"
	"github.com/kailas-cloud/geoquery/internal/logger"
)

// Service scans clipped regions.
type Service struct {
	open Opener
}

// New creates a filter service.
func New(open Opener) *Service {
	return &Service{open: open}
}

// Filter returns the nodes in path tagged exactly key=value, in file order.
// Ways and relations are skipped. No match yields an empty, non-nil slice.
func (s *Service) Filter(ctx context.Context, path string, tag domain.TagPair) ([]domain.Feature, error) {
	if !tag.Valid() {
		return nil, fmt.Errorf("filter tag %q: %w", tag.String(), domain.ErrInvalidRequest)
	}

	sc, err := s.open.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open region: %w", err)
	}
	defer func() { _ = sc.Close() }()

	features := []domain.Feature{}
	var scanned, skipped int
	for sc.Scan() {
		node, ok := sc.Object().(*osm.Node)
		if !ok {
			continue
		}
		scanned++
		if !hasTag(node.Tags, tag) {
			continue
		}
		if !geo.ValidLocation(node.Lon, node.Lat) {
			skipped++
			continue
		}
		features = append(features, domain.Feature{
			ID:   int64(node.ID),
			Lon:  node.Lon,
			Lat:  node.Lat,
			Tags: node.Tags.Map(),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan region: %w", err)
	}

	logger.FromContext(ctx).Debug("filtered region",
		zap.String("tag", tag.String()),
		zap.Int("nodes_scanned", scanned),
		zap.Int("matched", len(features)),
		zap.Int("skipped_invalid_location", skipped),
	)
	return features, nil
}

// hasTag matches key and value exactly, case-sensitive.
func hasTag(tags osm.Tags, want domain.TagPair) bool {
	for _, t := range tags {
		if t.Key == want.Key && t.Value == want.Value {
			return true
		}
	}
	return false
}
