package openai

import (
	"context"
	"fmt"
	"slices"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/changichirp/internal/retry"
)

// Embedder generates embeddings through the OpenAI embeddings endpoint
type Embedder struct {
	api   EmbeddingAPI
	model openai.EmbeddingModel
}

// NewEmbedder creates a new Embedder
func NewEmbedder(api EmbeddingAPI, model string) *Embedder {
	if model == "" {
		model = string(DefaultEmbeddingModel)
	}
	return &Embedder{
		api:   api,
		model: openai.EmbeddingModel(model),
	}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return string(e.model)
}

// EmbedBatch embeds all texts in a single request.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create embeddings: %w", err))
	}
	if len(resp.Data) == 0 {
		// an empty 200 will not fill in on a second try
		return nil, retry.Permanent(ErrNoData)
	}

	data := slices.Clone(resp.Data)
	slices.SortFunc(data, func(a, b openai.Embedding) int { return a.Index - b.Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}
