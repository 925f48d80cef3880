package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/changichirp/internal/domain"
)

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) Ask(ctx context.Context, question string) domain.Answer {
	args := m.Called(ctx, question)
	return args.Get(0).(domain.Answer)
}

type chatEnvelope struct {
	Data ChatResponse `json:"data"`
}

func postChat(t *testing.T, h *ChatHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Chat(w, req)
	return w
}

func TestChatHandler_Chat_Success(t *testing.T) {
	svc := new(MockQueryService)
	h := NewChatHandler(svc)

	svc.On("Ask", mock.Anything, "Where is the butterfly garden?").Return(domain.Answer{
		Text:       "The butterfly garden is on level 1 of Jewel.",
		Citations:  []string{"https://www.jewelchangiairport.com/en/attractions/butterfly-garden.html"},
		Confidence: domain.ConfidenceGrounded,
	})

	w := postChat(t, h, `{"question": "Where is the butterfly garden?"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp chatEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "The butterfly garden is on level 1 of Jewel.", resp.Data.Answer)
	assert.Equal(t, "grounded", resp.Data.Confidence)
	assert.Len(t, resp.Data.Citations, 1)
	svc.AssertExpectations(t)
}

func TestChatHandler_Chat_RefusalHasEmptyCitations(t *testing.T) {
	svc := new(MockQueryService)
	h := NewChatHandler(svc)

	svc.On("Ask", mock.Anything, "").Return(domain.Answer{Text: "Please ask a question.", Confidence: domain.ConfidenceRefused})

	w := postChat(t, h, `{}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"citations":[]`)
	assert.Contains(t, w.Body.String(), `"confidence":"refused"`)
}

func TestChatHandler_Chat_InvalidBody(t *testing.T) {
	svc := new(MockQueryService)
	h := NewChatHandler(svc)

	w := postChat(t, h, `{"question": `)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Ask", mock.Anything, mock.Anything)
}

func TestChatHandler_Chat_QuestionTooLong(t *testing.T) {
	svc := new(MockQueryService)
	h := NewChatHandler(svc)

	w := postChat(t, h, `{"question": "`+strings.Repeat("a", maxQuestionLength+1)+`"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Ask", mock.Anything, mock.Anything)
}
