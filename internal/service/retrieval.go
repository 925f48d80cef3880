package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/changichirp/internal/domain"
	"github.com/cloo-solutions/changichirp/internal/index"
)

const DefaultRetrievalK = 5

// QueryEmbedder embeds questions with the same model the index was built with.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Model() string
}

type RetrieverConfig struct {
	// K is used when a caller asks for k <= 0.
	K int
	// SimilarityFloor drops hits scoring below it. Zero keeps every hit
	// with a non-negative score.
	SimilarityFloor float32
}

// Retriever finds the passages most relevant to a question in the served index.
type Retriever struct {
	embedder QueryEmbedder
	holder   *index.Holder
	cfg      RetrieverConfig
}

// NewRetriever creates a new Retriever
func NewRetriever(embedder QueryEmbedder, holder *index.Holder, cfg RetrieverConfig) *Retriever {
	if cfg.K <= 0 {
		cfg.K = DefaultRetrievalK
	}
	return &Retriever{embedder: embedder, holder: holder, cfg: cfg}
}

// Retrieve embeds query and returns up to k ranked passages scoring at or
// above the similarity floor. Nothing above the floor yields an empty result,
// not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return domain.RetrievalResult{}, domain.ErrEmptyQuestion
	}
	if k <= 0 {
		k = r.cfg.K
	}

	ix := r.holder.Current()
	if ix == nil {
		return domain.RetrievalResult{}, domain.ErrIndexNotLoaded
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return domain.RetrievalResult{}, err
	}

	hits, err := ix.Search(vector, k)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("failed to search index: %w", err)
	}

	items := make([]domain.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < r.cfg.SimilarityFloor {
			// hits are sorted, everything after is lower
			break
		}
		chunk, ok := ix.Chunk(hit.ChunkID)
		if !ok {
			continue
		}
		items = append(items, domain.ScoredChunk{
			Chunk: chunk,
			Score: hit.Score,
			Rank:  len(items) + 1,
		})
	}
	return domain.RetrievalResult{Items: items, Generation: ix.Manifest().Generation}, nil
}
