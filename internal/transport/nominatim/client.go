// Package nominatim resolves place names to bounding boxes with the
// OpenStreetMap Nominatim search API.
package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/geoquery/internal/domain"
	"github.com/kailas-cloud/geoquery/internal/metrics"
)

// Config holds Nominatim settings.
type Config struct {
	BaseURL           string
	UserAgent         string
	Email             string
	Timeout           time.Duration // per attempt
	Retries           int           // extra attempts on transient failures
	RequestsPerSecond float64
	FallbackDelta     float64 // half-size in degrees of the box built around a bare centre
	Logger            *zap.Logger
}

// Client is a rate-limited Nominatim client. Safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a Nominatim client.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

type searchResult struct {
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	DisplayName string   `json:"display_name"`
	BoundingBox []string `json:"boundingbox"` // south, north, west, east
}

// transientError marks a failure worth another attempt.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Geocode returns the bounding box of the best match for place.
// An empty result is domain.ErrPlaceNotFound and is never retried.
func (c *Client) Geocode(ctx context.Context, place string) (domain.BoundingBox, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.BoundingBox{}, fmt.Errorf("geocode %q: %w", place, err)
		}

		bbox, err := c.search(ctx, place)
		if err == nil {
			metrics.GeocoderAttemptsTotal.WithLabelValues("ok").Inc()
			return bbox, nil
		}

		var te *transientError
		switch {
		case errors.Is(err, domain.ErrPlaceNotFound):
			metrics.GeocoderAttemptsTotal.WithLabelValues("not_found").Inc()
			return domain.BoundingBox{}, err
		case errors.As(err, &te) && ctx.Err() == nil:
			metrics.GeocoderAttemptsTotal.WithLabelValues("retryable").Inc()
			c.logger.Warn("geocoder attempt failed",
				zap.String("place", place), zap.Int("attempt", attempt+1), zap.Error(err))
			lastErr = err
		default:
			metrics.GeocoderAttemptsTotal.WithLabelValues("error").Inc()
			return domain.BoundingBox{}, err
		}
	}
	return domain.BoundingBox{}, fmt.Errorf("geocode %q: giving up after %d attempts: %w",
		place, c.cfg.Retries+1, lastErr)
}

func (c *Client) search(ctx context.Context, place string) (domain.BoundingBox, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("q", place)
	q.Set("format", "json")
	q.Set("limit", "1")
	if c.cfg.Email != "" {
		q.Set("email", c.cfg.Email)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return domain.BoundingBox{}, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.BoundingBox{}, &transientError{fmt.Errorf("nominatim: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.BoundingBox{}, &transientError{fmt.Errorf("nominatim: read body: %w", err)}
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return domain.BoundingBox{}, &transientError{fmt.Errorf("nominatim returned %s", resp.Status)}
	}
	if resp.StatusCode != http.StatusOK {
		return domain.BoundingBox{}, fmt.Errorf("nominatim returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return domain.BoundingBox{}, fmt.Errorf("decode nominatim response: %w", err)
	}
	if len(results) == 0 {
		return domain.BoundingBox{}, fmt.Errorf("%q: %w", place, domain.ErrPlaceNotFound)
	}

	bbox, err := c.toBoundingBox(results[0])
	if err != nil {
		return domain.BoundingBox{}, fmt.Errorf("nominatim result for %q: %w", place, err)
	}
	c.logger.Debug("geocoded place",
		zap.String("place", place),
		zap.String("display_name", results[0].DisplayName),
		zap.Stringer("bbox", bbox),
	)
	return bbox, nil
}

func (c *Client) toBoundingBox(r searchResult) (domain.BoundingBox, error) {
	if len(r.BoundingBox) >= 4 {
		v, err := parseFloats(r.BoundingBox[:4])
		if err == nil {
			bbox := domain.BoundingBox{MinLat: v[0], MaxLat: v[1], MinLon: v[2], MaxLon: v[3]}
			if err := bbox.Validate(); err == nil {
				return bbox, nil
			}
		}
	}
	centre, err := parseFloats([]string{r.Lon, r.Lat})
	if err != nil {
		return domain.BoundingBox{}, fmt.Errorf("no usable bounding box or centre: %w", err)
	}
	return domain.BoundingBoxAround(centre[0], centre[1], c.cfg.FallbackDelta), nil
}

func parseFloats(ss []string) ([]float64, error) {
	out := make([]float64, len(ss))
	for i, s := range ss {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
