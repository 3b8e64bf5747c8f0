package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// defaultWebSocketPath is used when websocket.path is not configured.
const defaultWebSocketPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/hubs", func(r chi.Router) {
			r.Get("/", s.handleListHubs)
			r.Post("/{hubID}/reconcile", s.handleReconcile)
		})

		r.Route("/accessories", func(r chi.Router) {
			r.Get("/", s.handleListAccessories)
			r.Get("/{id}", s.handleGetAccessory)
		})
	})

	path := s.wsCfg.Path
	if path == "" {
		path = defaultWebSocketPath
	}
	r.Get(path, s.handleWebSocket)

	return r
}
