package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Device registry (read-only; writes flow through discovery)
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/stats", s.handleDeviceStats)
			r.Get("/{id}", s.handleGetDevice)
			r.Put("/{id}/enabled", s.handleSetDeviceEnabled)
			r.Put("/{id}/credentials", s.handleSetDeviceCredentials)
		})

		// Bridge lifecycle and live inventory
		r.Route("/bridge", func(r chi.Router) {
			r.Get("/", s.handleBridgeStatus)
			r.Post("/start", s.handleBridgeStart)
			r.Post("/stop", s.handleBridgeStop)
			r.Post("/restart", s.handleBridgeRestart)
		})

		// Commissioning probe
		r.Post("/probe", s.handleProbe)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
