package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/changichirp/internal/domain"
	"github.com/cloo-solutions/changichirp/internal/index"
)

func testIndex(t *testing.T) *index.Index {
	t.Helper()
	ix, err := index.Build([]index.Entry{{
		Chunk:  domain.Chunk{ID: "c1", DocumentRef: "https://a", Text: "Terminal 1", TokenCount: 2},
		Vector: []float32{1, 0},
	}}, index.BuildOptions{
		Dimensions: 2,
		Model:      "text-embedding-3-small",
		Generation: "gen-1",
		BuiltAt:    time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return ix
}

func TestIndexHandler_Get(t *testing.T) {
	h := NewIndexHandler(index.NewHolder(testIndex(t)))

	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/index", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data IndexResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, IndexResponse{
		Generation: "gen-1",
		Model:      "text-embedding-3-small",
		Dimensions: 2,
		Metric:     "cosine",
		Count:      1,
		BuiltAt:    "2025-03-01T08:00:00Z",
	}, resp.Data)
}

func TestIndexHandler_NotLoaded(t *testing.T) {
	h := NewIndexHandler(index.NewHolder(nil))

	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/index", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIndexHandler_Ready(t *testing.T) {
	h := NewIndexHandler(index.NewHolder(testIndex(t)))

	w := httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
