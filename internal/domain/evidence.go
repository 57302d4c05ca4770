package domain

// Snippet is a unit of tag documentation with its precomputed embedding.
// Snippets are created by the indexer and read-only afterwards.
type Snippet struct {
	ID        string
	SourceURL string
	Title     string
	Tag       TagPair // zero when the source page names no tag
	Text      string
	Embedding []float32
}

// ScoredSnippet is a snippet with its similarity to the query.
type ScoredSnippet struct {
	Snippet Snippet
	Score   float64
}

// RetrievalResult holds snippets ordered by non-increasing score.
type RetrievalResult []ScoredSnippet

// Tags returns the distinct non-empty tags in result order.
func (r RetrievalResult) Tags() []TagPair {
	seen := make(map[TagPair]struct{}, len(r))
	var out []TagPair
	for _, s := range r {
		if !s.Snippet.Tag.Valid() {
			continue
		}
		if _, ok := seen[s.Snippet.Tag]; ok {
			continue
		}
		seen[s.Snippet.Tag] = struct{}{}
		out = append(out, s.Snippet.Tag)
	}
	return out
}
