package index

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/cloo-solutions/changichirp/internal/domain"
)

// Bundle file names, relative to a generation directory or key prefix.
const (
	ManifestFile = "manifest.json"
	ChunksFile   = "chunks.jsonl"
	VectorsFile  = "vectors.f32"
	CurrentFile  = "CURRENT"
)

// Bundle is the serialized form of an index.
type Bundle struct {
	Manifest []byte
	Chunks   []byte
	Vectors  []byte
}

// Files returns the bundle contents keyed by file name.
func (b *Bundle) Files() map[string][]byte {
	return map[string][]byte{
		ManifestFile: b.Manifest,
		ChunksFile:   b.Chunks,
		VectorsFile:  b.Vectors,
	}
}

type chunkRecord struct {
	ID         string `json:"id"`
	SourceURL  string `json:"source_url"`
	Title      string `json:"title,omitempty"`
	Text       string `json:"text"`
	Position   int    `json:"position"`
	TokenCount int    `json:"token_count"`
}

// Encode serializes an index: a JSON manifest, one JSON chunk per line in
// index order, and the vectors as little-endian float32 rows.
func Encode(ix *Index) (*Bundle, error) {
	manifest, err := json.MarshalIndent(ix.manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}

	var chunks bytes.Buffer
	enc := json.NewEncoder(&chunks)
	for _, c := range ix.chunks {
		if err := enc.Encode(chunkRecord{
			ID:         c.ID,
			SourceURL:  c.DocumentRef,
			Title:      c.Title,
			Text:       c.Text,
			Position:   c.Position,
			TokenCount: c.TokenCount,
		}); err != nil {
			return nil, fmt.Errorf("failed to marshal chunk %s: %w", c.ID, err)
		}
	}

	vectors := make([]byte, 4*len(ix.vectors))
	for i, f := range ix.vectors {
		binary.LittleEndian.PutUint32(vectors[4*i:], math.Float32bits(f))
	}

	return &Bundle{Manifest: manifest, Chunks: chunks.Bytes(), Vectors: vectors}, nil
}

// Decode restores an index from its bundle. Any inconsistency between the
// manifest, the chunk table and the vector data is reported as
// domain.ErrIndexCorrupt.
func Decode(b *Bundle) (*Index, error) {
	var m Manifest
	if err := json.Unmarshal(b.Manifest, &m); err != nil {
		return nil, corrupt("failed to unmarshal manifest: %w", err)
	}
	if m.Dimensions <= 0 || !IsValidMetric(m.Metric) || m.Count < 0 {
		return nil, corrupt("invalid manifest for generation %q", m.Generation)
	}

	chunks := make([]domain.Chunk, 0, m.Count)
	scanner := bufio.NewScanner(bytes.NewReader(b.Chunks))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec chunkRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, corrupt("failed to unmarshal chunk %d: %w", len(chunks), err)
		}
		if rec.ID == "" {
			return nil, corrupt("chunk %d has no id", len(chunks))
		}
		if n := len(chunks); n > 0 && chunks[n-1].ID >= rec.ID {
			return nil, corrupt("chunk %s out of order", rec.ID)
		}
		chunks = append(chunks, domain.Chunk{
			ID:          rec.ID,
			DocumentRef: rec.SourceURL,
			Title:       rec.Title,
			Text:        rec.Text,
			Position:    rec.Position,
			TokenCount:  rec.TokenCount,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, corrupt("failed to read chunks: %w", err)
	}
	if len(chunks) != m.Count {
		return nil, corrupt("manifest declares %d chunks, found %d", m.Count, len(chunks))
	}

	if len(b.Vectors) != 4*m.Count*m.Dimensions {
		return nil, corrupt("vector data has %d bytes, expected %d", len(b.Vectors), 4*m.Count*m.Dimensions)
	}
	vectors := make([]float32, m.Count*m.Dimensions)
	for i := range vectors {
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(b.Vectors[4*i:]))
	}

	return newIndex(m, chunks, vectors), nil
}

func corrupt(format string, args ...any) error {
	return domain.WithCause(domain.ErrIndexCorrupt, fmt.Errorf(format, args...))
}
