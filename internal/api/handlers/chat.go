package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/changichirp/internal/api"
	"github.com/cloo-solutions/changichirp/internal/domain"
)

const maxQuestionLength = 2000

type QueryService interface {
	Ask(ctx context.Context, question string) domain.Answer
}

type ChatHandler struct {
	svc QueryService
}

func NewChatHandler(svc QueryService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type ChatRequest struct {
	Question string `json:"question"`
}

type ChatResponse struct {
	Answer     string   `json:"answer"`
	Citations  []string `json:"citations"`
	Confidence string   `json:"confidence"`
}

func answerToResponse(a domain.Answer) *ChatResponse {
	citations := a.Citations
	if citations == nil {
		citations = []string{}
	}
	return &ChatResponse{
		Answer:     a.Text,
		Citations:  citations,
		Confidence: string(a.Confidence),
	}
}

// Chat answers one question. Answering never fails: outages come back as a
// refused answer with status 200.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Question) > maxQuestionLength {
		api.Error(w, http.StatusBadRequest, "question is too long")
		return
	}

	answer := h.svc.Ask(r.Context(), req.Question)
	api.Success(w, http.StatusOK, answerToResponse(answer))
}
