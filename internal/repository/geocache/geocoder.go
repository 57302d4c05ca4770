// Package geocache caches geocoder results in a key-value store.
package geocache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/geoquery/internal/db"
	"github.com/kailas-cloud/geoquery/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "geo:"

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Geocoder resolves place names to bounding boxes.
type Geocoder interface {
	Geocode(ctx context.Context, place string) (domain.BoundingBox, error)
}

// CachedGeocoder serves repeated places from the store. Only successful
// lookups are cached; misses and failures always reach the inner geocoder.
type CachedGeocoder struct {
	inner      Geocoder
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. cacheTotal has label "result" ("hit"/"miss").
func New(inner Geocoder, s store, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *CachedGeocoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedGeocoder{inner: inner, store: s, ttl: ttl, cacheTotal: cacheTotal, logger: logger}
}

// Geocode returns a cached box or calls the inner geocoder.
func (c *CachedGeocoder) Geocode(ctx context.Context, place string) (domain.BoundingBox, error) {
	key := cacheKey(place)

	if bbox, ok := c.get(ctx, key); ok {
		c.inc("hit")
		return bbox, nil
	}
	c.inc("miss")

	bbox, err := c.inner.Geocode(ctx, place)
	if err != nil {
		return domain.BoundingBox{}, err
	}

	if data, err := json.Marshal(bbox); err == nil {
		if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("Failed to cache geocode", zap.String("place", place), zap.Error(err))
		}
	}
	return bbox, nil
}

func (c *CachedGeocoder) get(ctx context.Context, key string) (domain.BoundingBox, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached geocode", zap.String("key", key), zap.Error(err))
		}
		return domain.BoundingBox{}, false
	}
	var bbox domain.BoundingBox
	if err := json.Unmarshal(data, &bbox); err != nil {
		c.logger.Warn("Failed to parse cached geocode", zap.String("key", key), zap.Error(err))
		return domain.BoundingBox{}, false
	}
	if err := bbox.Validate(); err != nil {
		c.logger.Warn("Cached geocode is invalid", zap.String("key", key), zap.Error(err))
		return domain.BoundingBox{}, false
	}
	return bbox, true
}

func (c *CachedGeocoder) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// cacheKey folds case and surrounding space so "Malmö" and " malmö " share an entry.
func cacheKey(place string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(place))))
	return fmt.Sprintf("%s%s", cacheKeyPrefix, hex.EncodeToString(sum[:]))
}
