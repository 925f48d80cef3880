package handlers

import (
	"net/http"
	"time"

	"github.com/cloo-solutions/changichirp/internal/api"
	"github.com/cloo-solutions/changichirp/internal/domain"
	"github.com/cloo-solutions/changichirp/internal/index"
)

type IndexSource interface {
	Current() *index.Index
}

type IndexHandler struct {
	source IndexSource
}

func NewIndexHandler(source IndexSource) *IndexHandler {
	return &IndexHandler{source: source}
}

type IndexResponse struct {
	Generation string `json:"generation"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Metric     string `json:"metric"`
	Count      int    `json:"count"`
	BuiltAt    string `json:"built_at"`
}

func manifestToResponse(m index.Manifest) *IndexResponse {
	return &IndexResponse{
		Generation: m.Generation,
		Model:      m.Model,
		Dimensions: m.Dimensions,
		Metric:     string(m.Metric),
		Count:      m.Count,
		BuiltAt:    m.BuiltAt.UTC().Format(time.RFC3339),
	}
}

// Get describes the index generation being served.
func (h *IndexHandler) Get(w http.ResponseWriter, r *http.Request) {
	ix := h.source.Current()
	if ix == nil {
		api.HandleError(w, domain.ErrIndexNotLoaded)
		return
	}
	api.Success(w, http.StatusOK, manifestToResponse(ix.Manifest()))
}

// Ready reports whether an index is loaded and questions can be answered.
func (h *IndexHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.source.Current() == nil {
		api.HandleError(w, domain.ErrIndexNotLoaded)
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "ready"})
}
