package output

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

type featureCollection struct {
	Type     string `json:"type"`
	Features []struct {
		Type     string `json:"type"`
		Geometry struct {
			Type        string    `json:"type"`
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

func TestWrite_FeatureCollection(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{Dir: dir, URLPrefix: "/output/"})
	id := ulid.Make()

	url, err := s.Write(context.Background(), id, []domain.Feature{
		{ID: 101, Lon: 13.191, Lat: 55.7047, Tags: map[string]string{"amenity": "cafe", "name": "Lundagård Café"}},
		{ID: 104, Lon: 13.21, Lat: 55.72, Tags: map[string]string{"amenity": "cafe"}},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if url != "/output/"+id.String()+".geojson" {
		t.Errorf("unexpected URL %q", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, id.String()+".geojson"))
	if err != nil {
		t.Fatal(err)
	}
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		t.Fatalf("invalid geojson: %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("unexpected collection: %s", data)
	}
	f := fc.Features[0]
	if f.Type != "Feature" || f.Geometry.Type != "Point" {
		t.Errorf("unexpected feature types: %s / %s", f.Type, f.Geometry.Type)
	}
	if len(f.Geometry.Coordinates) != 2 || f.Geometry.Coordinates[0] != 13.191 || f.Geometry.Coordinates[1] != 55.7047 {
		t.Errorf("coordinates must be [lon, lat], got %v", f.Geometry.Coordinates)
	}
	if f.Properties["osm_type"] != "node" || f.Properties["osm_id"] != float64(101) {
		t.Errorf("unexpected properties %v", f.Properties)
	}
	if f.Properties["name"] != "Lundagård Café" {
		t.Errorf("expected name, got %v", f.Properties["name"])
	}
	if fc.Features[1].Properties["name"] != nil {
		t.Errorf("expected null name, got %v", fc.Features[1].Properties["name"])
	}
}

func TestWrite_Empty(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{Dir: dir})
	id := ulid.Make()
	if _, err := s.Write(context.Background(), id, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, id.String()+".geojson"))
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		t.Fatalf("invalid geojson: %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 0 {
		t.Errorf("expected empty collection, got %s", data)
	}
}

func TestWrite_DistinctIDsDistinctFiles(t *testing.T) {
	s := New(Config{Dir: t.TempDir()})
	a, _ := s.Write(context.Background(), ulid.Make(), nil)
	b, _ := s.Write(context.Background(), ulid.Make(), nil)
	if a == b {
		t.Fatal("two requests shared an output path")
	}
}

func TestWrite_PrunesOldOutputs(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, ulid.Make().String()+".geojson")
	fresh := filepath.Join(dir, ulid.Make().String()+".geojson")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{stale, fresh, other} {
		if err := os.WriteFile(p, []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-48 * time.Hour)
	for _, p := range []string{stale, other} {
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatal(err)
		}
	}

	s := New(Config{Dir: dir, MaxAge: 24 * time.Hour})
	if _, err := s.Write(context.Background(), ulid.Make(), nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Error("stale output should be pruned")
	}
	for _, p := range []string{fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s should be kept: %v", filepath.Base(p), err)
		}
	}
}

func TestResolve(t *testing.T) {
	s := New(Config{Dir: "/srv/out"})
	id := ulid.Make().String()

	p, err := s.Resolve(id + ".geojson")
	if err != nil || p != filepath.Join("/srv/out", id+".geojson") {
		t.Fatalf("Resolve valid name: %q, %v", p, err)
	}
	for _, bad := range []string{"../etc/passwd", id, id + ".json", "x.geojson", "../" + id + ".geojson"} {
		if _, err := s.Resolve(bad); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Resolve(%q): expected ErrInvalidName, got %v", bad, err)
		}
	}
}
