package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/changichirp/internal/domain"
	"github.com/cloo-solutions/changichirp/internal/index"
)

// MockQueryEmbedder mocks the query embedder
type MockQueryEmbedder struct {
	mock.Mock
}

func (m *MockQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockQueryEmbedder) Dimensions() int {
	return 3
}

func (m *MockQueryEmbedder) Model() string {
	return "test-embedding"
}

func testChunk(id, url, text string) domain.Chunk {
	return domain.Chunk{ID: id, DocumentRef: url, Title: "Test", Text: text, TokenCount: 1}
}

func testHolder(t *testing.T) *index.Holder {
	t.Helper()
	ix, err := index.Build([]index.Entry{
		{Chunk: testChunk("a", "https://a", "alpha"), Vector: []float32{1, 0, 0}},
		{Chunk: testChunk("b", "https://b", "beta"), Vector: []float32{0.8, 0.6, 0}},
		{Chunk: testChunk("c", "https://c", "gamma"), Vector: []float32{0, 0, 1}},
	}, index.BuildOptions{Dimensions: 3, Model: "test-embedding"})
	require.NoError(t, err)
	return index.NewHolder(ix)
}

func TestRetriever_RanksAndAppliesFloor(t *testing.T) {
	embedder := new(MockQueryEmbedder)
	embedder.On("EmbedQuery", mock.Anything, "where is alpha").Return([]float32{1, 0, 0}, nil)
	r := NewRetriever(embedder, testHolder(t), RetrieverConfig{K: 5, SimilarityFloor: 0.5})

	result, err := r.Retrieve(context.Background(), "where is alpha", 0)

	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "a", result.Items[0].Chunk.ID)
	assert.Equal(t, 1, result.Items[0].Rank)
	assert.InDelta(t, 1.0, result.Items[0].Score, 1e-6)
	assert.Equal(t, "b", result.Items[1].Chunk.ID)
	assert.Equal(t, 2, result.Items[1].Rank)
	assert.InDelta(t, 0.8, result.Items[1].Score, 1e-6)
	assert.Equal(t, "beta", result.Items[1].Chunk.Text)
}

func TestRetriever_ReportsSearchedGeneration(t *testing.T) {
	embedder := new(MockQueryEmbedder)
	embedder.On("EmbedQuery", mock.Anything, "q").Return([]float32{1, 0, 0}, nil)
	holder := testHolder(t)
	r := NewRetriever(embedder, holder, RetrieverConfig{})

	result, err := r.Retrieve(context.Background(), "q", 1)

	require.NoError(t, err)
	assert.NotEmpty(t, result.Generation)
	assert.Equal(t, holder.Current().Manifest().Generation, result.Generation)
}

func TestRetriever_RespectsK(t *testing.T) {
	embedder := new(MockQueryEmbedder)
	embedder.On("EmbedQuery", mock.Anything, "q").Return([]float32{1, 0, 0}, nil)
	r := NewRetriever(embedder, testHolder(t), RetrieverConfig{})

	result, err := r.Retrieve(context.Background(), "q", 1)

	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "a", result.Items[0].Chunk.ID)
}

func TestRetriever_AllBelowFloorIsEmpty(t *testing.T) {
	embedder := new(MockQueryEmbedder)
	embedder.On("EmbedQuery", mock.Anything, "q").Return([]float32{0, -1, 0}, nil)
	r := NewRetriever(embedder, testHolder(t), RetrieverConfig{SimilarityFloor: 0.1})

	result, err := r.Retrieve(context.Background(), "q", 3)

	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
}

func TestRetriever_NoIndex(t *testing.T) {
	embedder := new(MockQueryEmbedder)
	r := NewRetriever(embedder, index.NewHolder(nil), RetrieverConfig{})

	_, err := r.Retrieve(context.Background(), "q", 3)

	assert.ErrorIs(t, err, domain.ErrIndexNotLoaded)
	embedder.AssertNotCalled(t, "EmbedQuery", mock.Anything, mock.Anything)
}

func TestRetriever_EmbeddingFailure(t *testing.T) {
	embedder := new(MockQueryEmbedder)
	embedder.On("EmbedQuery", mock.Anything, "q").Return(nil, domain.ErrEmbeddingUnavailable)
	r := NewRetriever(embedder, testHolder(t), RetrieverConfig{})

	_, err := r.Retrieve(context.Background(), "q", 3)

	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestRetriever_EmptyQuery(t *testing.T) {
	r := NewRetriever(new(MockQueryEmbedder), testHolder(t), RetrieverConfig{})

	_, err := r.Retrieve(context.Background(), "  ", 3)

	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
}

func TestRetriever_WrongQueryDimensions(t *testing.T) {
	embedder := new(MockQueryEmbedder)
	embedder.On("EmbedQuery", mock.Anything, "q").Return([]float32{1, 0}, nil)
	r := NewRetriever(embedder, testHolder(t), RetrieverConfig{})

	_, err := r.Retrieve(context.Background(), "q", 3)

	assert.ErrorIs(t, err, domain.ErrIndexDimensionMismatch)
}
