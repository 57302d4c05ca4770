package evidence

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

// Store is a loaded, immutable evidence store. It is safe for concurrent reads.
// The zero value is an unloaded store.
type Store struct {
	manifest Manifest
	snippets []domain.Snippet
	loaded   bool
	reason   error
}

// Unavailable returns an unloaded store that reports reason.
func Unavailable(reason error) *Store {
	return &Store{reason: reason}
}

// Open loads the store in dir and checks it was built with an embedding
// capability compatible with want.
func Open(dir string, want domain.EmbeddingFingerprint) (*Store, error) {
	m, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	if m.Version != schemaVersion {
		return nil, fmt.Errorf("evidence store %s: unsupported version %d", dir, m.Version)
	}
	if !m.Fingerprint.Compatible(want) {
		return nil, &domain.FingerprintMismatchError{Index: m.Fingerprint, Embedder: want}
	}

	path := filepath.Join(dir, snippetsFile(m.Format))
	var rows []row
	switch m.Format {
	case FormatJSONL:
		rows, err = readJSONL(path)
	case FormatParquet:
		rows, err = parquet.ReadFile[row](path)
	default:
		return nil, fmt.Errorf("evidence store %s: unknown format %q", dir, m.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) != m.Count {
		return nil, fmt.Errorf("evidence store %s: manifest says %d snippets, found %d", dir, m.Count, len(rows))
	}

	snippets := make([]domain.Snippet, len(rows))
	for i, r := range rows {
		if m.Fingerprint.Dimensions > 0 && len(r.Embedding) != m.Fingerprint.Dimensions {
			return nil, fmt.Errorf("evidence store %s: snippet %s has %d dimensions, want %d: %w",
				dir, r.ID, len(r.Embedding), m.Fingerprint.Dimensions, domain.ErrEmbeddingMismatch)
		}
		snippets[i] = r.toDomain()
	}

	return &Store{manifest: m, snippets: snippets, loaded: true}, nil
}

// Loaded reports whether snippets are available for retrieval.
func (s *Store) Loaded() bool { return s != nil && s.loaded }

// Reason explains why an unloaded store is unavailable.
func (s *Store) Reason() error {
	if s == nil || s.reason == nil {
		return domain.ErrIndexUnavailable
	}
	return s.reason
}

// Snippets returns the stored snippets in insertion order. Callers must not modify them.
func (s *Store) Snippets() []domain.Snippet {
	if !s.Loaded() {
		return nil
	}
	return s.snippets
}

// Count returns the number of loaded snippets.
func (s *Store) Count() int { return len(s.Snippets()) }

// Manifest returns the manifest of a loaded store.
func (s *Store) Manifest() Manifest { return s.manifest }

// Save writes snippets and a manifest to dir, replacing any previous store.
// Files are written under temporary names and renamed into place.
func Save(dir string, fp domain.EmbeddingFingerprint, format Format, snippets []domain.Snippet) (Manifest, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Manifest{}, fmt.Errorf("create evidence dir: %w", err)
	}

	rows := make([]row, len(snippets))
	for i, s := range snippets {
		rows[i] = toRow(s)
	}

	final := filepath.Join(dir, snippetsFile(format))
	tmp := final + ".tmp"
	var err error
	switch format {
	case FormatJSONL:
		err = writeJSONL(tmp, rows)
	case FormatParquet:
		err = parquet.WriteFile(tmp, rows)
	default:
		return Manifest{}, fmt.Errorf("unknown evidence format %q", format)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return Manifest{}, fmt.Errorf("write snippets: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return Manifest{}, fmt.Errorf("rename snippets: %w", err)
	}

	m := Manifest{
		Version:     schemaVersion,
		Fingerprint: fp,
		Format:      format,
		Count:       len(rows),
		CreatedAt:   time.Now().UTC(),
	}
	if err := writeManifest(dir, m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func readManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Clean(filepath.Join(dir, manifestFile)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{}, fmt.Errorf("evidence store %s has no manifest: %w", dir, domain.ErrIndexUnavailable)
		}
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

func writeManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(dir, manifestFile)
	if err := os.WriteFile(path+".tmp", data, 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(path+".tmp", path); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

func readJSONL(path string) ([]row, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var rows []row
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r row
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		rows = append(rows, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func writeJSONL(path string, rows []row) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
