package domain

// Query is a free-text user request. Model optionally overrides the configured
// interpreter model for this request.
type Query struct {
	Text  string
	Model string
}

// Provenance records which parsing stage produced an interpretation.
type Provenance string

const (
	// ProvenanceStrict means the whole model output matched the schema.
	ProvenanceStrict Provenance = "strict"
	// ProvenanceLenient means a JSON object embedded in the output matched the schema.
	ProvenanceLenient Provenance = "lenient"
	// ProvenanceHeuristic means the result came from local parsing of the query.
	ProvenanceHeuristic Provenance = "heuristic"
)

// FallbackReason explains why the heuristic path was taken.
type FallbackReason string

const (
	// FallbackNone means no fallback happened.
	FallbackNone FallbackReason = ""
	// FallbackModelUnreachable means the model call failed or timed out.
	FallbackModelUnreachable FallbackReason = "model_unreachable"
	// FallbackMalformedOutput means the model answered but nothing parseable was found.
	FallbackMalformedOutput FallbackReason = "malformed_output"
)

// InterpretedQuery is the structured reading of a Query.
// Place and Tag are absent when nil. Confidence is always in [0,1].
type InterpretedQuery struct {
	Place          *string
	Tag            *TagPair
	Confidence     float64
	Explanation    string
	UsedModel      bool
	// PlaceFromQuery is set when the model named no place and Place was read
	// from the query wording instead.
	PlaceFromQuery bool
	Provenance     Provenance
	FallbackReason FallbackReason
	RawOutput      string
}

// HasTag reports whether a usable tag was resolved.
func (q InterpretedQuery) HasTag() bool {
	return q.Tag != nil && q.Tag.Valid()
}

// HasPlace reports whether a usable place was resolved.
func (q InterpretedQuery) HasPlace() bool {
	return q.Place != nil && *q.Place != ""
}
