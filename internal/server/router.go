package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/changichirp/internal/api"
	"github.com/cloo-solutions/changichirp/internal/api/handlers"
	"github.com/cloo-solutions/changichirp/internal/api/middleware"
)

const defaultMaxBodyBytes int64 = 64 * 1024

type RouterConfig struct {
	ChatHandler  *handlers.ChatHandler
	IndexHandler *handlers.IndexHandler
	MaxBodyBytes int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", cfg.IndexHandler.Ready)

	r.Post("/chat", cfg.ChatHandler.Chat)
	r.Get("/index", cfg.IndexHandler.Get)

	return r
}
