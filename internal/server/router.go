package server

import (
	"net/http"

	"github.com/cloo-solutions/docchat/internal/api"
	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type RouterConfig struct {
	ChatHandler   *handlers.ChatHandler
	HealthHandler *handlers.HealthHandler
	Logger        *zap.Logger
	// MaxBodyBytes defaults to middleware.DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = middleware.DefaultMaxBodyBytes
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Sentry)
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.MaxBodyBytes(maxBody))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.Error(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		api.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", cfg.HealthHandler.Health)

	r.Route("/chat/{session_id}", func(r chi.Router) {
		r.Post("/", cfg.ChatHandler.Chat)
		r.Get("/history", cfg.ChatHandler.History)
	})

	return r
}
