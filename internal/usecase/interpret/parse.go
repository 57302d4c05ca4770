package interpret

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

type modelReply struct {
	Place *string `json:"place"`
	Tag   *struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"tag"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// parseStrict accepts output only if the whole trimmed text satisfies the schema.
func parseStrict(raw string) (domain.InterpretedQuery, error) {
	doc := []byte(strings.TrimSpace(raw))
	if err := validate(doc); err != nil {
		return domain.InterpretedQuery{}, err
	}
	return decode(doc)
}

// parseLenient accepts the first balanced JSON object in the text that satisfies the schema.
func parseLenient(raw string) (domain.InterpretedQuery, bool) {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			continue
		}
		candidate := balancedObject(raw[i:])
		if candidate == "" || validate([]byte(candidate)) != nil {
			continue
		}
		q, err := decode([]byte(candidate))
		if err == nil {
			return q, true
		}
	}
	return domain.InterpretedQuery{}, false
}

// balancedObject returns the prefix of s that closes the object opened at s[0],
// honoring string literals and escapes. It returns "" if the object never closes.
func balancedObject(s string) string {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

func decode(doc []byte) (domain.InterpretedQuery, error) {
	var r modelReply
	if err := json.Unmarshal(doc, &r); err != nil {
		return domain.InterpretedQuery{}, err
	}
	q := domain.InterpretedQuery{
		Place:       r.Place,
		Confidence:  r.Confidence,
		Explanation: r.Explanation,
		UsedModel:   true,
	}
	if r.Tag != nil {
		q.Tag = &domain.TagPair{Key: r.Tag.Key, Value: r.Tag.Value}
	}
	return q, nil
}

// normalize enforces the output invariants: trimmed non-empty place and tag,
// confidence within [0,1].
func normalize(q domain.InterpretedQuery) domain.InterpretedQuery {
	if q.Place != nil {
		p := strings.TrimSpace(*q.Place)
		if p == "" {
			q.Place = nil
		} else {
			q.Place = &p
		}
	}
	if q.Tag != nil {
		t := domain.TagPair{Key: strings.TrimSpace(q.Tag.Key), Value: strings.TrimSpace(q.Tag.Value)}
		if t.Valid() {
			q.Tag = &t
		} else {
			q.Tag = nil
		}
	}
	switch {
	case math.IsNaN(q.Confidence) || q.Confidence < 0:
		q.Confidence = 0
	case q.Confidence > 1:
		q.Confidence = 1
	}
	q.Explanation = strings.TrimSpace(q.Explanation)
	return q
}
