package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/changichirp/internal/retry"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	args := m.Called(ctx, conv)
	return args.Get(0).(openai.EmbeddingResponse), args.Error(1)
}

func (m *MockOpenAIAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func TestEmbedder_EmbedBatch_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	embedder := NewEmbedder(mockAPI, "")

	ctx := context.Background()
	texts := []string{"Jewel opens at 10am.", "Terminal 3 has a movie theatre."}
	// Results arrive out of order and must be re-ordered by index.
	resp := openai.EmbeddingResponse{Data: []openai.Embedding{
		{Index: 1, Embedding: []float32{0, 1}},
		{Index: 0, Embedding: []float32{1, 0}},
	}}

	mockAPI.On("CreateEmbeddings", ctx, openai.EmbeddingRequest{Input: texts, Model: DefaultEmbeddingModel}).Return(resp, nil)

	got, err := embedder.EmbedBatch(ctx, texts)

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, got)
	assert.Equal(t, string(DefaultEmbeddingModel), embedder.Model())
	mockAPI.AssertExpectations(t)
}

func TestEmbedder_EmbedBatch_NoData(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	embedder := NewEmbedder(mockAPI, "text-embedding-3-large")

	mockAPI.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(openai.EmbeddingResponse{}, nil)

	got, err := embedder.EmbedBatch(context.Background(), []string{"a"})

	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrNoData)
	assert.True(t, retry.IsPermanent(err))
	assert.Equal(t, "text-embedding-3-large", embedder.Model())
}

func TestEmbedder_EmbedBatch_NoDataIsNotRetried(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	embedder := NewEmbedder(mockAPI, "")
	mockAPI.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(openai.EmbeddingResponse{}, nil)

	policy := retry.Policy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, AttemptTimeout: time.Second}
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		_, err := embedder.EmbedBatch(ctx, []string{"Jewel has a butterfly garden."})
		return err
	})

	assert.ErrorIs(t, err, ErrNoData)
	mockAPI.AssertNumberOfCalls(t, "CreateEmbeddings", 1)
}

func TestEmbedder_EmbedBatch_APIError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"unauthorized", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "too long"}, true},
		{"not found", &openai.RequestError{HTTPStatusCode: http.StatusNotFound, Err: errors.New("no model")}, true},
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}, false},
		{"server error", &openai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}, false},
		{"network", errors.New("connection reset by peer"), false},
		{"cancelled", context.Canceled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAPI := new(MockOpenAIAPI)
			embedder := NewEmbedder(mockAPI, "")
			mockAPI.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(openai.EmbeddingResponse{}, tt.err)

			_, err := embedder.EmbedBatch(context.Background(), []string{"a"})

			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to create embeddings")
			assert.Equal(t, tt.permanent, retry.IsPermanent(err))
		})
	}
}

func TestChatGenerator_Generate(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	gen := NewChatGenerator(mockAPI, ChatConfig{Temperature: 0.3, TopP: 0.9, MaxTokens: 1024})

	ctx := context.Background()
	want := openai.ChatCompletionRequest{
		Model: DefaultChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "answer from context"},
			{Role: openai.ChatMessageRoleUser, Content: "Where is the butterfly garden?"},
		},
		Temperature: 0.3,
		TopP:        0.9,
		MaxTokens:   1024,
	}
	resp := openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Content: "  It is on level 1. \n"}},
	}}
	mockAPI.On("CreateChatCompletion", ctx, want).Return(resp, nil)

	got, err := gen.Generate(ctx, "answer from context", "Where is the butterfly garden?")

	require.NoError(t, err)
	assert.Equal(t, "It is on level 1.", got)
	assert.Equal(t, DefaultChatModel, gen.Model())
	mockAPI.AssertExpectations(t)
}

func TestChatGenerator_Generate_Errors(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	gen := NewChatGenerator(mockAPI, ChatConfig{Model: "gpt-4o"})

	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(openai.ChatCompletionResponse{}, nil).Once()
	_, err := gen.Generate(context.Background(), "", "q")
	assert.ErrorIs(t, err, ErrNoData)
	assert.True(t, retry.IsPermanent(err))

	apiErr := &openai.APIError{HTTPStatusCode: http.StatusForbidden}
	mockAPI.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(openai.ChatCompletionResponse{}, apiErr).Once()
	_, err = gen.Generate(context.Background(), "", "q")
	assert.True(t, retry.IsPermanent(err))
	assert.ErrorIs(t, err, apiErr)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	wrapped := fmt.Errorf("outer: %w", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized})
	assert.True(t, retry.IsPermanent(classify(wrapped)))
	assert.False(t, retry.IsPermanent(classify(context.DeadlineExceeded)))
}

func TestNewAPIClient(t *testing.T) {
	assert.NotNil(t, NewAPIClient(Config{APIKey: "test-api-key"}))
	assert.NotNil(t, NewAPIClient(Config{APIKey: "test-api-key", BaseURL: "http://localhost:11434/v1"}))
}
