package evidence

import (
	"time"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

// Format selects the on-disk encoding of snippet rows.
type Format string

const (
	// FormatJSONL stores one JSON object per line.
	FormatJSONL Format = "jsonl"
	// FormatParquet stores rows in a single Parquet file.
	FormatParquet Format = "parquet"
)

const (
	manifestFile  = "manifest.json"
	schemaVersion = 1
)

// Manifest describes a built evidence store.
type Manifest struct {
	Version     int                         `json:"version"`
	Fingerprint domain.EmbeddingFingerprint `json:"embedding"`
	Format      Format                      `json:"format"`
	Count       int                         `json:"count"`
	CreatedAt   time.Time                   `json:"created_at"`
}

// row is the persisted form of a snippet, shared by both encodings.
type row struct {
	ID        string    `json:"id" parquet:"id"`
	SourceURL string    `json:"source_url" parquet:"source_url"`
	Title     string    `json:"title" parquet:"title"`
	TagKey    string    `json:"tag_key,omitempty" parquet:"tag_key"`
	TagValue  string    `json:"tag_value,omitempty" parquet:"tag_value"`
	Text      string    `json:"text" parquet:"text"`
	Embedding []float32 `json:"embedding" parquet:"embedding,list"`
}

func toRow(s domain.Snippet) row {
	return row{
		ID:        s.ID,
		SourceURL: s.SourceURL,
		Title:     s.Title,
		TagKey:    s.Tag.Key,
		TagValue:  s.Tag.Value,
		Text:      s.Text,
		Embedding: s.Embedding,
	}
}

func (r row) toDomain() domain.Snippet {
	return domain.Snippet{
		ID:        r.ID,
		SourceURL: r.SourceURL,
		Title:     r.Title,
		Tag:       domain.TagPair{Key: r.TagKey, Value: r.TagValue},
		Text:      r.Text,
		Embedding: r.Embedding,
	}
}

func snippetsFile(f Format) string {
	return "snippets." + string(f)
}
