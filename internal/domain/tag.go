package domain

import (
	"fmt"
	"strings"
)

// TagPair is an OSM key/value pair such as amenity=cafe.
type TagPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// String renders the canonical "key=value" form.
func (t TagPair) String() string {
	return t.Key + "=" + t.Value
}

// Valid reports whether both sides are non-empty after trimming.
func (t TagPair) Valid() bool {
	return strings.TrimSpace(t.Key) != "" && strings.TrimSpace(t.Value) != ""
}

// ParseTagPair parses "key=value". The key is split at the first '=', so values
// may themselves contain '='.
func ParseTagPair(s string) (TagPair, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return TagPair{}, fmt.Errorf("tag %q: missing '=': %w", s, ErrInvalidRequest)
	}
	tp := TagPair{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)}
	if !tp.Valid() {
		return TagPair{}, fmt.Errorf("tag %q: empty key or value: %w", s, ErrInvalidRequest)
	}
	return tp, nil
}

// PrimaryKeys is the built-in vocabulary of top-level OSM feature keys.
var PrimaryKeys = []string{
	"aeroway", "amenity", "building", "craft", "emergency", "healthcare",
	"highway", "historic", "landuse", "leisure", "man_made", "natural",
	"office", "public_transport", "railway", "shop", "sport", "tourism",
}
