package interpret

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

const systemPrompt = `You are a careful GIS assistant for OpenStreetMap.
You MUST base decisions on the provided evidence (OSM Wiki snippets).
Return ONLY valid JSON. No extra text, no markdown, no explanation outside JSON.

Required JSON object:
{
  "place": "<string or null>",
  "tag": {"key": "<string>", "value": "<string>"},
  "confidence": <number between 0.0 and 1.0>,
  "explanation": "<short reason for your choice>"
}

Rules:
1. If the query mentions a place (city, region, area), put it in "place". Otherwise set "place" to null.
2. Choose tag.key and tag.value from the evidence. It must be a single OSM tag such as amenity=cafe,
   highway=bus_stop or shop=supermarket.
3. Only pick tags that appear in the evidence. Do not invent tags.
4. Set confidence by how well the evidence matches the query.

Examples:
- "Find all cafes in Malmö" -> {"place": "Malmö", "tag": {"key": "amenity", "value": "cafe"}, ...}
- "Show bus stops" -> {"place": null, "tag": {"key": "highway", "value": "bus_stop"}, ...}
- "restaurants in Lund" -> {"place": "Lund", "tag": {"key": "amenity", "value": "restaurant"}, ...}`

// maxEvidenceChars bounds each snippet in the prompt.
const maxEvidenceChars = 600

func userPrompt(query string, evidence domain.RetrievalResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User query:\n%q\n\n", query)
	b.WriteString("Evidence from the OSM Wiki (retrieved by semantic search):\n")
	if len(evidence) == 0 {
		b.WriteString("(none)\n")
	}
	for i, e := range evidence {
		tag := "unknown"
		if e.Snippet.Tag.Valid() {
			tag = e.Snippet.Tag.String()
		}
		fmt.Fprintf(&b, "[Evidence %d]\n  Tag: %s\n  URL: %s\n  Score: %.3f\n  Content: %s\n\n",
			i+1, tag, e.Snippet.SourceURL, e.Score, flatten(e.Snippet.Text, maxEvidenceChars))
	}
	b.WriteString("Return ONLY the JSON object, nothing else.")
	return b.String()
}

// flatten joins lines and cuts s to at most n runes.
func flatten(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
