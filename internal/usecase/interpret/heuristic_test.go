package interpret

import (
	"testing"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

func TestGuessPlace(t *testing.T) {
	tests := []struct {
		query string
		want  string
		ok    bool
	}{
		{"Find all cafes in Malmö", "Malmö", true},
		{"restaurants in Lund", "Lund", true},
		{"Show me cafés around Gamla Stan?", "Gamla Stan", true},
		{"bus stops near the Central Station.", "Central Station", true},
		{"where are the toilets at Stortorget", "Stortorget", true},
		{"Pharmacies Copenhagen", "Copenhagen", true},
		{"Show bus stops", "", false},
		{"where can I buy bread", "", false},
		{"cafes open at night", "", false},
		{"cafes open at night in Lund", "Lund", true},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			got, ok := guessPlace(tc.query)
			if ok != tc.ok || got != tc.want {
				t.Errorf("guessPlace(%q) = %q, %v; want %q, %v", tc.query, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestLiteralTag(t *testing.T) {
	evidence := domain.RetrievalResult{
		{Snippet: domain.Snippet{Tag: domain.TagPair{Key: "cuisine", Value: "pizza"}}, Score: 0.5},
	}
	tests := []struct {
		query string
		want  domain.TagPair
		ok    bool
	}{
		{"shop=bakery in Lund", domain.TagPair{Key: "shop", Value: "bakery"}, true},
		{"nodes with highway = bus_stop", domain.TagPair{Key: "highway", Value: "bus_stop"}, true},
		{"Amenity=cafe", domain.TagPair{Key: "amenity", Value: "cafe"}, true},
		{"cuisine=pizza places", domain.TagPair{Key: "cuisine", Value: "pizza"}, true},
		{"x=y and foo=bar", domain.TagPair{}, false},
		{"just cafes", domain.TagPair{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			got, ok := literalTag(tc.query, evidence)
			if ok != tc.ok || got != tc.want {
				t.Errorf("literalTag(%q) = %v, %v; want %v, %v", tc.query, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestVoteTag(t *testing.T) {
	cafe := domain.TagPair{Key: "amenity", Value: "cafe"}
	bar := domain.TagPair{Key: "amenity", Value: "bar"}

	evidence := domain.RetrievalResult{
		{Snippet: domain.Snippet{Tag: bar}, Score: 0.6},
		{Snippet: domain.Snippet{Tag: cafe}, Score: 0.4},
		{Snippet: domain.Snippet{}, Score: 0.9},
		{Snippet: domain.Snippet{Tag: cafe}, Score: 0.3},
	}
	got, ok := voteTag(evidence)
	if !ok || got != cafe {
		t.Errorf("expected weighted winner cafe, got %v", got)
	}

	tie := domain.RetrievalResult{
		{Snippet: domain.Snippet{Tag: bar}, Score: 0.5},
		{Snippet: domain.Snippet{Tag: cafe}, Score: 0.5},
	}
	if got, _ := voteTag(tie); got != bar {
		t.Errorf("expected tie to go to first seen, got %v", got)
	}

	if _, ok := voteTag(domain.RetrievalResult{{Score: 1}}); ok {
		t.Error("expected no vote without tags")
	}
}

func TestBalancedObject(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1} tail`, `{"a":1}`},
		{`{"a":{"b":"}"}} x`, `{"a":{"b":"}"}}`},
		{`{"a":"\\"} rest"}`, `{"a":"\\"}`},
		{`{"a":"\"}"}`, `{"a":"\"}"}`},
		{`{"open":`, ""},
	}
	for _, tc := range tests {
		if got := balancedObject(tc.in); got != tc.want {
			t.Errorf("balancedObject(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
