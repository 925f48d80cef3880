package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/changichirp/internal/domain"
	"github.com/cloo-solutions/changichirp/internal/index"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockStore is a mock implementation of index.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Save(ctx context.Context, ix *index.Index) error {
	args := m.Called(ctx, ix)
	return args.Error(0)
}

func (m *MockStore) Load(ctx context.Context) (*index.Index, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*index.Index), args.Error(1)
}

func (m *MockStore) Current(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func runWorker(ctx context.Context, t *testing.T, w *Worker) *sync.WaitGroup {
	t.Helper()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Start(ctx)
	}()
	return &wg
}

func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := runWorker(ctx, t, worker)
	time.Sleep(150 * time.Millisecond)
	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	wg := runWorker(ctx, t, worker)
	time.Sleep(150 * time.Millisecond)
	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestWorker_KeepsPollingAfterError(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(errors.New("store unreachable"))

	worker := NewWorker(mockProcessor, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := runWorker(ctx, t, worker)
	time.Sleep(150 * time.Millisecond)
	worker.Stop()
	wg.Wait()

	assert.GreaterOrEqual(t, len(mockProcessor.Calls), 2)
}

func buildIndex(t *testing.T, generation string, dims int, model string) *index.Index {
	t.Helper()
	vec := make([]float32, dims)
	vec[0] = 1
	ix, err := index.Build([]index.Entry{{
		Chunk:  domain.Chunk{ID: "chunk-1", DocumentRef: "https://a", Text: "Terminal 1", TokenCount: 2},
		Vector: vec,
	}}, index.BuildOptions{Dimensions: dims, Model: model, Generation: generation})
	require.NoError(t, err)
	return ix
}

func TestIndexReloader_SwapsNewGeneration(t *testing.T) {
	ctx := context.Background()
	store := index.NewFileStore(t.TempDir())
	holder := index.NewHolder(buildIndex(t, "gen-1", 4, "m"))
	reloader := NewIndexReloader(store, holder, 4, "m")

	require.NoError(t, store.Save(ctx, buildIndex(t, "gen-2", 4, "m")))

	require.NoError(t, reloader.ProcessJobs(ctx))
	assert.Equal(t, "gen-2", holder.Current().Manifest().Generation)

	// unchanged generation is a no-op
	require.NoError(t, reloader.ProcessJobs(ctx))
	assert.Equal(t, "gen-2", holder.Current().Manifest().Generation)
}

func TestIndexReloader_NothingPublished(t *testing.T) {
	store := new(MockStore)
	store.On("Current", mock.Anything).Return("", domain.ErrIndexNotFound)
	holder := index.NewHolder(nil)

	err := NewIndexReloader(store, holder, 4, "m").ProcessJobs(context.Background())

	assert.NoError(t, err)
	assert.Nil(t, holder.Current())
	store.AssertNotCalled(t, "Load", mock.Anything)
}

func TestIndexReloader_SkipsLoadedGeneration(t *testing.T) {
	store := new(MockStore)
	store.On("Current", mock.Anything).Return("gen-1", nil)
	holder := index.NewHolder(buildIndex(t, "gen-1", 4, "m"))

	err := NewIndexReloader(store, holder, 4, "m").ProcessJobs(context.Background())

	assert.NoError(t, err)
	store.AssertNotCalled(t, "Load", mock.Anything)
}

func TestIndexReloader_KeepsCurrentOnIncompatibleIndex(t *testing.T) {
	store := new(MockStore)
	store.On("Current", mock.Anything).Return("gen-2", nil)
	store.On("Load", mock.Anything).Return(buildIndex(t, "gen-2", 8, "m"), nil)
	current := buildIndex(t, "gen-1", 4, "m")
	holder := index.NewHolder(current)
	reloader := NewIndexReloader(store, holder, 4, "m")

	for range MaxRetries {
		err := reloader.ProcessJobs(context.Background())
		assert.ErrorIs(t, err, domain.ErrIndexDimensionMismatch)
		assert.Same(t, current, holder.Current())
	}

	// the generation is given up on
	assert.NoError(t, reloader.ProcessJobs(context.Background()))
	store.AssertNumberOfCalls(t, "Load", MaxRetries)
}

func TestIndexReloader_StoreError(t *testing.T) {
	store := new(MockStore)
	store.On("Current", mock.Anything).Return("", domain.ErrStorageOperationFail)

	err := NewIndexReloader(store, index.NewHolder(nil), 4, "m").ProcessJobs(context.Background())

	assert.ErrorIs(t, err, domain.ErrStorageOperationFail)
}
