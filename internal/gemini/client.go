package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/cloo-solutions/changichirp/internal/retry"
)

const (
	DefaultEmbeddingModel      = "text-embedding-004"
	DefaultEmbeddingDimensions = 768
	DefaultChatModel           = "gemini-2.0-flash"
)

var (
	// ErrNoAPIKey is returned when no Gemini API key is configured
	ErrNoAPIKey = errors.New("gemini api key not set")
	// ErrNoCandidates is returned when the model produced nothing usable
	ErrNoCandidates = errors.New("no candidates returned")
)

// ModelsAPI is the subset of genai.Models used here
type ModelsAPI interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewModels connects to the Gemini API and returns its models service.
func NewModels(ctx context.Context, apiKey string) (ModelsAPI, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return client.Models, nil
}

// Embedder generates embeddings with a Gemini embedding model
type Embedder struct {
	models ModelsAPI
	model  string
}

// NewEmbedder creates a new Embedder
func NewEmbedder(models ModelsAPI, model string) *Embedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{models: models, model: model}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.model
}

// EmbedBatch embeds all texts in one request.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.Text(t)...)
	}

	resp, err := e.models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to embed content: %w", err))
	}
	if resp == nil || len(resp.Embeddings) == 0 {
		return nil, ErrNoCandidates
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb != nil {
			out[i] = emb.Values
		}
	}
	return out, nil
}

type ChatConfig struct {
	Model       string
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// Generator produces answers with a Gemini generative model
type Generator struct {
	models ModelsAPI
	cfg    ChatConfig
}

// NewGenerator creates a new Generator
func NewGenerator(models ModelsAPI, cfg ChatConfig) *Generator {
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	return &Generator{models: models, cfg: cfg}
}

// Model returns the generative model name.
func (g *Generator) Model() string {
	return g.cfg.Model
}

// Generate sends prompt with system as the system instruction and returns the
// concatenated text parts of the first candidate.
func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.cfg.Temperature),
		TopP:            genai.Ptr(g.cfg.TopP),
		MaxOutputTokens: int32(g.cfg.MaxTokens),
	}
	if system != "" {
		cfg.SystemInstruction = genai.Text(system)[0]
	}

	resp, err := g.models.GenerateContent(ctx, g.cfg.Model, genai.Text(prompt), cfg)
	if err != nil {
		return "", classify(fmt.Errorf("failed to generate content: %w", err))
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoCandidates
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrNoCandidates
	}
	return text, nil
}

// classify marks errors that a retry cannot fix as permanent.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return retry.Permanent(err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return retry.Permanent(err)
		}
	}
	return err
}
