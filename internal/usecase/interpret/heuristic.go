package interpret

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

// heuristicConfidence marks a locally inferred reading as unreliable.
const heuristicConfidence = 0.3

var (
	tagLiteral = regexp.MustCompile(`([A-Za-z_:]+)\s*=\s*([A-Za-z0-9_:;\-]+)`)

	// Place phrase anchored at the end of the query: "cafes in Malmö", "shops near Lund?".
	// The captured name must start upper-case: "open at night" names no place.
	placePhrase = regexp.MustCompile(`(?i)(?:^|\s)(?:in|at|near|around|from)\s+([\p{L}][\p{L}\p{M}'\- ]*?)[\s?.!]*$`)
)

var placeStopwords = map[string]bool{
	"find": true, "show": true, "list": true, "get": true, "where": true, "which": true,
	"what": true, "all": true, "the": true, "me": true, "please": true, "i": true,
}

// heuristic reads the query without a model. Tag comes from a key=value literal
// with a known key, else from a score-weighted vote over the evidence tags.
func heuristic(query string, evidence domain.RetrievalResult) domain.InterpretedQuery {
	q := domain.InterpretedQuery{Provenance: domain.ProvenanceHeuristic}

	var reasons []string
	if t, ok := literalTag(query, evidence); ok {
		q.Tag = &t
		reasons = append(reasons, "tag "+t.String()+" written in the query")
	} else if t, ok := voteTag(evidence); ok {
		q.Tag = &t
		reasons = append(reasons, "tag "+t.String()+" voted from evidence")
	}
	if p, ok := guessPlace(query); ok {
		q.Place = &p
		reasons = append(reasons, "place "+p+" taken from query wording")
	}

	if len(reasons) == 0 {
		q.Explanation = "no tag or place could be inferred without the model"
		return q
	}
	q.Confidence = heuristicConfidence
	q.Explanation = "heuristic: " + strings.Join(reasons, "; ")
	return q
}

func literalTag(query string, evidence domain.RetrievalResult) (domain.TagPair, bool) {
	known := make(map[string]bool, len(domain.PrimaryKeys))
	for _, k := range domain.PrimaryKeys {
		known[k] = true
	}
	for _, t := range evidence.Tags() {
		known[t.Key] = true
	}
	for _, m := range tagLiteral.FindAllStringSubmatch(query, -1) {
		key := strings.ToLower(m[1])
		if known[key] {
			return domain.TagPair{Key: key, Value: m[2]}, true
		}
	}
	return domain.TagPair{}, false
}

// voteTag sums scores per tag. Ties go to the tag seen first.
func voteTag(evidence domain.RetrievalResult) (domain.TagPair, bool) {
	votes := make(map[domain.TagPair]float64)
	var order []domain.TagPair
	for _, e := range evidence {
		t := e.Snippet.Tag
		if !t.Valid() {
			continue
		}
		if _, seen := votes[t]; !seen {
			order = append(order, t)
		}
		votes[t] += e.Score
	}
	if len(order) == 0 {
		return domain.TagPair{}, false
	}
	best := order[0]
	for _, t := range order[1:] {
		if votes[t] > votes[best] {
			best = t
		}
	}
	return best, true
}

func guessPlace(query string) (string, bool) {
	q := strings.TrimSpace(query)
	if m := placePhrase.FindStringSubmatch(q); m != nil {
		p := strings.TrimSpace(m[1])
		p = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(p, "the "), "The "))
		if r := []rune(p); len(r) >= 2 && unicode.IsUpper(r[0]) {
			return p, true
		}
	}
	return capitalizedRun(q)
}

// capitalizedRun returns the last run of capitalized words, ignoring the
// sentence-initial word and common command words.
func capitalizedRun(q string) (string, bool) {
	words := strings.Fields(q)
	var runs [][]string
	var cur []string
	for i, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && r != '-' })
		r := []rune(w)
		capital := len(r) > 0 && unicode.IsUpper(r[0])
		if capital && (i == 0 || placeStopwords[strings.ToLower(w)]) {
			capital = false
		}
		if capital {
			cur = append(cur, w)
			continue
		}
		if len(cur) > 0 {
			runs = append(runs, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}
	if len(runs) == 0 {
		return "", false
	}
	return strings.Join(runs[len(runs)-1], " "), true
}
