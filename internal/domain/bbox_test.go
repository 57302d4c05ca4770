package domain

import (
	"errors"
	"math"
	"testing"
)

func TestBoundingBox_Validate(t *testing.T) {
	tests := []struct {
		name    string
		box     BoundingBox
		wantErr bool
	}{
		{"lund", BoundingBox{13.15, 55.68, 13.25, 55.73}, false},
		{"degenerate point", BoundingBox{13, 55, 13, 55}, false},
		{"swapped lon", BoundingBox{13.25, 55.68, 13.15, 55.73}, true},
		{"swapped lat", BoundingBox{13.15, 55.73, 13.25, 55.68}, true},
		{"out of range", BoundingBox{-181, 0, 0, 1}, true},
		{"nan", BoundingBox{math.NaN(), 0, 1, 1}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.box.Validate()
			if tc.wantErr && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestBoundingBox_String(t *testing.T) {
	b := BoundingBox{MinLon: 13.15, MinLat: 55.68, MaxLon: 13.25, MaxLat: 55.73}
	if got := b.String(); got != "13.15,55.68,13.25,55.73" {
		t.Errorf("String() = %q", got)
	}
}

func TestBoundingBoxAround_Clamps(t *testing.T) {
	b := BoundingBoxAround(179.99, 89.99, 0.05)
	if b.MaxLon != 180 || b.MaxLat != 90 {
		t.Errorf("expected clamped max, got %+v", b)
	}
	if err := b.Validate(); err != nil {
		t.Errorf("clamped box should be valid: %v", err)
	}
	if !b.Contains(179.99, 89.99) {
		t.Error("box should contain its centre")
	}
}
