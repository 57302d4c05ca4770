package domain

import (
	"fmt"
	"math"
	"strconv"

	"github.com/kailas-cloud/geoquery/internal/domain/geo"
)

// BoundingBox is a WGS84 rectangle in degrees.
type BoundingBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Validate checks ordering and coordinate ranges.
func (b BoundingBox) Validate() error {
	for _, v := range []float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bbox %s: non-finite coordinate: %w", b, ErrInvalidRequest)
		}
	}
	if !geo.ValidLocation(b.MinLon, b.MinLat) || !geo.ValidLocation(b.MaxLon, b.MaxLat) {
		return fmt.Errorf("bbox %s: coordinate out of range: %w", b, ErrInvalidRequest)
	}
	if b.MinLon > b.MaxLon || b.MinLat > b.MaxLat {
		return fmt.Errorf("bbox %s: min exceeds max: %w", b, ErrInvalidRequest)
	}
	return nil
}

// Contains reports whether the point lies inside the box, edges included.
func (b BoundingBox) Contains(lon, lat float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// DiagonalMeters returns the great-circle length of the box diagonal.
func (b BoundingBox) DiagonalMeters() float64 {
	return geo.Haversine(b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// String renders "minlon,minlat,maxlon,maxlat", the form extraction tools accept.
func (b BoundingBox) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(b.MinLon) + "," + f(b.MinLat) + "," + f(b.MaxLon) + "," + f(b.MaxLat)
}

// BoundingBoxAround builds a square box of ±delta degrees around a centre,
// clamped to valid coordinate ranges.
func BoundingBoxAround(lon, lat, delta float64) BoundingBox {
	return BoundingBox{
		MinLon: math.Max(lon-delta, -180),
		MinLat: math.Max(lat-delta, -90),
		MaxLon: math.Min(lon+delta, 180),
		MaxLat: math.Min(lat+delta, 90),
	}
}
