package index

import (
	"cmp"
	"fmt"
	"iter"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/cloo-solutions/changichirp/internal/domain"
)

// Metric is the similarity function an index was built for.
type Metric string

const (
	MetricCosine       Metric = "cosine"
	MetricInnerProduct Metric = "inner_product"
)

// IsValidMetric checks if a Metric is supported
func IsValidMetric(m Metric) bool {
	return m == MetricCosine || m == MetricInnerProduct
}

// Manifest describes one built index generation.
type Manifest struct {
	Generation string    `json:"generation"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Metric     Metric    `json:"metric"`
	Count      int       `json:"count"`
	BuiltAt    time.Time `json:"built_at"`
}

// Entry is one chunk and its embedding, the unit an index is built from.
type Entry struct {
	Chunk  domain.Chunk
	Vector []float32
}

type BuildOptions struct {
	Dimensions int
	Metric     Metric
	Model      string
	// Generation defaults to a fresh time-ordered UUID.
	Generation string
	// BuiltAt defaults to now.
	BuiltAt time.Time
}

// Hit is one search result.
type Hit struct {
	ChunkID string
	Score   float32
}

// Index is an immutable flat vector index. Entries are kept sorted by chunk
// ID so that builds from the same entries are identical.
type Index struct {
	manifest Manifest
	chunks   []domain.Chunk
	vectors  []float32 // len(chunks) * dimensions, row-major
	byID     map[string]int
}

// Build creates an index from entries. Cosine indexes store unit vectors.
func Build(entries []Entry, opts BuildOptions) (*Index, error) {
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", opts.Dimensions)
	}
	if opts.Metric == "" {
		opts.Metric = MetricCosine
	}
	if !IsValidMetric(opts.Metric) {
		return nil, fmt.Errorf("unsupported metric %q", opts.Metric)
	}
	if opts.Generation == "" {
		opts.Generation = NewGeneration()
	}
	if opts.BuiltAt.IsZero() {
		opts.BuiltAt = time.Now().UTC()
	}

	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int { return cmp.Compare(a.Chunk.ID, b.Chunk.ID) })

	chunks := make([]domain.Chunk, len(sorted))
	vectors := make([]float32, 0, len(sorted)*opts.Dimensions)
	for i, e := range sorted {
		if err := domain.ValidateChunk(&e.Chunk); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInvalidOperation, "invalid chunk", err)
		}
		if i > 0 && sorted[i-1].Chunk.ID == e.Chunk.ID {
			return nil, domain.WithCause(domain.ErrDuplicateChunk, fmt.Errorf("chunk %s", e.Chunk.ID))
		}
		if len(e.Vector) != opts.Dimensions {
			return nil, domain.WithCause(domain.ErrIndexDimensionMismatch,
				fmt.Errorf("chunk %s has %d dimensions, expected %d", e.Chunk.ID, len(e.Vector), opts.Dimensions))
		}
		chunks[i] = e.Chunk
		v := e.Vector
		if opts.Metric == MetricCosine {
			v = normalize(v)
		}
		vectors = append(vectors, v...)
	}

	return newIndex(Manifest{
		Generation: opts.Generation,
		Model:      opts.Model,
		Dimensions: opts.Dimensions,
		Metric:     opts.Metric,
		Count:      len(chunks),
		BuiltAt:    opts.BuiltAt,
	}, chunks, vectors), nil
}

// Restore recreates a persisted index from its manifest and stored entries.
// Vectors are taken as stored; entries must be in ascending chunk ID order.
func Restore(m Manifest, entries []Entry) (*Index, error) {
	if m.Dimensions <= 0 || !IsValidMetric(m.Metric) {
		return nil, corrupt("invalid manifest for generation %q", m.Generation)
	}
	if len(entries) != m.Count {
		return nil, corrupt("manifest declares %d chunks, found %d", m.Count, len(entries))
	}
	chunks := make([]domain.Chunk, len(entries))
	vectors := make([]float32, 0, len(entries)*m.Dimensions)
	for i, e := range entries {
		if e.Chunk.ID == "" || (i > 0 && entries[i-1].Chunk.ID >= e.Chunk.ID) {
			return nil, corrupt("chunk %d (%q) is empty or out of order", i, e.Chunk.ID)
		}
		if len(e.Vector) != m.Dimensions {
			return nil, corrupt("chunk %s has %d dimensions, expected %d", e.Chunk.ID, len(e.Vector), m.Dimensions)
		}
		chunks[i] = e.Chunk
		vectors = append(vectors, e.Vector...)
	}
	return newIndex(m, chunks, vectors), nil
}

func newIndex(m Manifest, chunks []domain.Chunk, vectors []float32) *Index {
	byID := make(map[string]int, len(chunks))
	for i, c := range chunks {
		byID[c.ID] = i
	}
	return &Index{manifest: m, chunks: chunks, vectors: vectors, byID: byID}
}

// NewGeneration returns a new time-ordered generation identifier.
func NewGeneration() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Manifest returns the index manifest.
func (ix *Index) Manifest() Manifest {
	return ix.manifest
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	return len(ix.chunks)
}

// Chunk resolves a chunk ID.
func (ix *Index) Chunk(id string) (domain.Chunk, bool) {
	i, ok := ix.byID[id]
	if !ok {
		return domain.Chunk{}, false
	}
	return ix.chunks[i], true
}

// All yields every entry in chunk ID order. Vectors alias index storage and
// must not be modified.
func (ix *Index) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for i, c := range ix.chunks {
			if !yield(Entry{Chunk: c, Vector: ix.row(i)}) {
				return
			}
		}
	}
}

func (ix *Index) row(i int) []float32 {
	d := ix.manifest.Dimensions
	return ix.vectors[i*d : (i+1)*d : (i+1)*d]
}

// Search returns at most k hits ordered by descending score, ties broken by
// ascending chunk ID.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != ix.manifest.Dimensions {
		return nil, domain.WithCause(domain.ErrIndexDimensionMismatch,
			fmt.Errorf("query has %d dimensions, index has %d", len(query), ix.manifest.Dimensions))
	}
	if k <= 0 || len(ix.chunks) == 0 {
		return []Hit{}, nil
	}
	if ix.manifest.Metric == MetricCosine {
		query = normalize(query)
	}

	hits := make([]Hit, len(ix.chunks))
	for i, c := range ix.chunks {
		hits[i] = Hit{ChunkID: c.ID, Score: dot(query, ix.row(i))}
	}
	slices.SortFunc(hits, func(a, b Hit) int {
		if a.Score != b.Score {
			return cmp.Compare(b.Score, a.Score)
		}
		return cmp.Compare(a.ChunkID, b.ChunkID)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Validate checks that the index can serve vectors from the given embedder.
func (ix *Index) Validate(dimensions int, model string) error {
	if dimensions > 0 && ix.manifest.Dimensions != dimensions {
		return domain.WithCause(domain.ErrIndexDimensionMismatch,
			fmt.Errorf("index %s has %d dimensions, embedder produces %d", ix.manifest.Generation, ix.manifest.Dimensions, dimensions))
	}
	if model != "" && ix.manifest.Model != "" && ix.manifest.Model != model {
		return domain.WithCause(domain.ErrIndexModelMismatch,
			fmt.Errorf("index %s was built with %q, embedder is %q", ix.manifest.Generation, ix.manifest.Model, model))
	}
	return nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
