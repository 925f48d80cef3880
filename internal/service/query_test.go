package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/changichirp/internal/domain"
)

// MockRetriever mocks the context retriever
type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error) {
	args := m.Called(ctx, query, k)
	return args.Get(0).(domain.RetrievalResult), args.Error(1)
}

// MockDrafter mocks the answer drafter
type MockDrafter struct {
	mock.Mock
}

func (m *MockDrafter) Generate(ctx context.Context, question string, result domain.RetrievalResult) (domain.Answer, error) {
	args := m.Called(ctx, question, result)
	return args.Get(0).(domain.Answer), args.Error(1)
}

func newTestQueryService(r *MockRetriever, d *MockDrafter) *QueryService {
	return NewQueryService(r, d, NewVerifier(VerifierConfig{}), QueryConfig{K: 4})
}

func TestQueryService_Ask_Grounded(t *testing.T) {
	r, d := new(MockRetriever), new(MockDrafter)
	svc := newTestQueryService(r, d)
	result := butterflyResult()

	r.On("Retrieve", mock.Anything, "Where is the butterfly garden?", 4).Return(result, nil)
	d.On("Generate", mock.Anything, "Where is the butterfly garden?", result).
		Return(draft("The butterfly garden is on level 1 of Jewel."), nil)

	answer := svc.Ask(context.Background(), "  Where   is the\tbutterfly garden?  ")

	assert.Equal(t, domain.ConfidenceGrounded, answer.Confidence)
	assert.Equal(t, []string{butterflyURL}, answer.Citations)
	r.AssertExpectations(t)
	d.AssertExpectations(t)
}

func TestQueryService_Ask_EmptyQuestion(t *testing.T) {
	r, d := new(MockRetriever), new(MockDrafter)
	svc := newTestQueryService(r, d)

	answer := svc.Ask(context.Background(), " \n\t ")

	assert.Equal(t, domain.NewRefusal(EmptyQuestionMessage), answer)
	r.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything, mock.Anything)
}

func TestQueryService_Ask_SmallTalk(t *testing.T) {
	r, d := new(MockRetriever), new(MockDrafter)
	svc := newTestQueryService(r, d)

	answer := svc.Ask(context.Background(), "Hello!")

	assert.Equal(t, smallTalk["hello"], answer.Text)
	assert.Equal(t, domain.ConfidenceRefused, answer.Confidence)
	assert.Empty(t, answer.Citations)
	r.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything, mock.Anything)
}

func TestQueryService_Ask_Failures(t *testing.T) {
	tests := []struct {
		name        string
		retrieveErr error
		generateErr error
		want        string
	}{
		{"embedding unavailable", domain.WithCause(domain.ErrEmbeddingUnavailable, fmt.Errorf("503")), nil, UnavailableMessage},
		{"no index", domain.ErrIndexNotLoaded, nil, UnavailableMessage},
		{"timeout", fmt.Errorf("failed to embed batch: %w", context.DeadlineExceeded), nil, TimeoutMessage},
		{"cancelled", context.Canceled, nil, UnavailableMessage},
		{"generation unavailable", nil, domain.ErrGenerationUnavailable, UnavailableMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, d := new(MockRetriever), new(MockDrafter)
			svc := newTestQueryService(r, d)

			r.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).Return(butterflyResult(), tt.retrieveErr)
			d.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(domain.Answer{}, tt.generateErr)

			answer := svc.Ask(context.Background(), "Where is the butterfly garden?")

			assert.Equal(t, domain.ConfidenceRefused, answer.Confidence)
			assert.Equal(t, tt.want, answer.Text)
			assert.NotNil(t, answer.Citations)
			assert.Empty(t, answer.Citations)
		})
	}
}

func TestQueryService_Ask_CallerCancelled(t *testing.T) {
	r, d := new(MockRetriever), new(MockDrafter)
	svc := newTestQueryService(r, d)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.On("Retrieve", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.RetrievalResult{}, context.Canceled)

	answer := svc.Ask(ctx, "Where is the butterfly garden?")

	assert.Equal(t, domain.ConfidenceRefused, answer.Confidence)
	d.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestNormalizeQuestion(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeQuestion("  a \n b\t\tc "))
	assert.Equal(t, "", NormalizeQuestion("   "))
}
