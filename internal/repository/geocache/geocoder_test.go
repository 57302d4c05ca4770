package geocache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/geoquery/internal/db"
	"github.com/kailas-cloud/geoquery/internal/domain"
)

type mockGeocoder struct {
	bbox  domain.BoundingBox
	err   error
	calls int
}

func (m *mockGeocoder) Geocode(_ context.Context, _ string) (domain.BoundingBox, error) {
	m.calls++
	return m.bbox, m.err
}

type memStore struct {
	data   map[string][]byte
	ttl    time.Duration
	getErr error
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttl = ttl
	return nil
}

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_geocode_cache_total"}, []string{"result"})
}

var lund = domain.BoundingBox{MinLon: 13.1, MinLat: 55.6, MaxLon: 13.3, MaxLat: 55.8}

func TestGeocode_MissThenHit(t *testing.T) {
	inner := &mockGeocoder{bbox: lund}
	store := newMemStore()
	counter := newCounter()
	g := New(inner, store, 24*time.Hour, counter, nil)

	for _, place := range []string{"Lund", " lund "} {
		got, err := g.Geocode(context.Background(), place)
		if err != nil {
			t.Fatalf("Geocode(%q): %v", place, err)
		}
		if got != lund {
			t.Errorf("Geocode(%q) = %+v", place, got)
		}
	}
	if inner.calls != 1 {
		t.Errorf("expected one inner call, got %d", inner.calls)
	}
	if store.ttl != 24*time.Hour {
		t.Errorf("expected 24h ttl, got %v", store.ttl)
	}
	if v := testutil.ToFloat64(counter.WithLabelValues("hit")); v != 1 {
		t.Errorf("expected 1 hit, got %v", v)
	}
	if v := testutil.ToFloat64(counter.WithLabelValues("miss")); v != 1 {
		t.Errorf("expected 1 miss, got %v", v)
	}
}

func TestGeocode_ErrorsNotCached(t *testing.T) {
	inner := &mockGeocoder{err: domain.ErrPlaceNotFound}
	store := newMemStore()
	g := New(inner, store, time.Hour, nil, nil)

	for range 2 {
		if _, err := g.Geocode(context.Background(), "Atlantis"); !errors.Is(err, domain.ErrPlaceNotFound) {
			t.Fatalf("expected ErrPlaceNotFound, got %v", err)
		}
	}
	if inner.calls != 2 || len(store.data) != 0 {
		t.Errorf("failures must not be cached: calls=%d entries=%d", inner.calls, len(store.data))
	}
}

func TestGeocode_StoreErrorFallsThrough(t *testing.T) {
	inner := &mockGeocoder{bbox: lund}
	store := newMemStore()
	store.getErr = errors.New("connection refused")
	g := New(inner, store, time.Hour, nil, nil)

	if _, err := g.Geocode(context.Background(), "Lund"); err != nil {
		t.Fatalf("store errors must not fail geocoding: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected inner call, got %d", inner.calls)
	}
}

func TestGeocode_CorruptEntryIgnored(t *testing.T) {
	inner := &mockGeocoder{bbox: lund}
	store := newMemStore()
	store.data[cacheKey("Lund")] = []byte(`{"min_lon":5,"max_lon":1}`)
	g := New(inner, store, time.Hour, nil, nil)

	got, err := g.Geocode(context.Background(), "Lund")
	if err != nil || got != lund {
		t.Fatalf("expected fresh lookup, got %+v, %v", got, err)
	}
}
