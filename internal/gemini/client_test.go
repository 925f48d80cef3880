package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/cloo-solutions/changichirp/internal/retry"
)

// MockModels is a mock for the genai models service
type MockModels struct {
	mock.Mock
}

func (m *MockModels) EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	args := m.Called(ctx, model, contents, config)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*genai.EmbedContentResponse), args.Error(1)
}

func (m *MockModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, model, contents, config)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*genai.GenerateContentResponse), args.Error(1)
}

func TestEmbedder_EmbedBatch(t *testing.T) {
	models := new(MockModels)
	embedder := NewEmbedder(models, "")

	resp := &genai.EmbedContentResponse{Embeddings: []*genai.ContentEmbedding{
		{Values: []float32{1, 0}},
		{Values: []float32{0, 1}},
	}}
	models.On("EmbedContent", mock.Anything, DefaultEmbeddingModel, mock.MatchedBy(func(c []*genai.Content) bool {
		return len(c) == 2 && c[0].Parts[0].Text == "a" && c[1].Parts[0].Text == "b"
	}), (*genai.EmbedContentConfig)(nil)).Return(resp, nil)

	got, err := embedder.EmbedBatch(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, got)
	assert.Equal(t, DefaultEmbeddingModel, embedder.Model())
	models.AssertExpectations(t)
}

func TestEmbedder_EmbedBatch_Errors(t *testing.T) {
	models := new(MockModels)
	embedder := NewEmbedder(models, "gemini-embedding-001")

	models.On("EmbedContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&genai.EmbedContentResponse{}, nil).Once()
	_, err := embedder.EmbedBatch(context.Background(), []string{"a"})
	assert.Equal(t, ErrNoCandidates, err)

	models.On("EmbedContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, genai.APIError{Code: http.StatusUnauthorized, Message: "API key not valid"}).Once()
	_, err = embedder.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))

	models.On("EmbedContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, genai.APIError{Code: http.StatusTooManyRequests, Message: "quota"}).Once()
	_, err = embedder.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))
}

func TestGenerator_Generate(t *testing.T) {
	models := new(MockModels)
	gen := NewGenerator(models, ChatConfig{Temperature: 0.3, TopP: 0.9, MaxTokens: 1024})

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []*genai.Part{{Text: "The garden is "}, {Text: "on level 1. "}}}},
	}}
	models.On("GenerateContent", mock.Anything, DefaultChatModel, mock.Anything, mock.MatchedBy(func(cfg *genai.GenerateContentConfig) bool {
		return *cfg.Temperature == 0.3 && cfg.MaxOutputTokens == 1024 && cfg.SystemInstruction != nil
	})).Return(resp, nil)

	got, err := gen.Generate(context.Background(), "answer from context", "Where is the butterfly garden?")

	require.NoError(t, err)
	assert.Equal(t, "The garden is on level 1.", got)
	assert.Equal(t, DefaultChatModel, gen.Model())
	models.AssertExpectations(t)
}

func TestGenerator_Generate_Empty(t *testing.T) {
	models := new(MockModels)
	gen := NewGenerator(models, ChatConfig{})

	models.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&genai.GenerateContentResponse{}, nil)

	_, err := gen.Generate(context.Background(), "", "q")

	assert.Equal(t, ErrNoCandidates, err)
}

func TestClassify(t *testing.T) {
	assert.True(t, retry.IsPermanent(classify(fmt.Errorf("x: %w", context.Canceled))))
	assert.False(t, retry.IsPermanent(classify(errors.New("connection refused"))))
	assert.True(t, retry.IsPermanent(classify(fmt.Errorf("x: %w", genai.APIError{Code: http.StatusNotFound}))))
}

func TestNewModels_NoAPIKey(t *testing.T) {
	models, err := NewModels(context.Background(), "")

	assert.Nil(t, models)
	assert.Equal(t, ErrNoAPIKey, err)
}
