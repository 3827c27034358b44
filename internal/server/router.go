package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/sgtv/livestatus/internal/metrics"
)

// NewRouter assembles the public surface: the live-status endpoint, the
// health probe, and the Prometheus scrape target. CORS is deliberately
// permissive; the service exposes no credentials and browser dashboards are
// an expected caller.
func NewRouter(h *Handler, rec *metrics.Recorder) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/live-status", h.ServeLiveStatus)
	r.Options("/live-status", h.ServeOptions)
	r.Get("/healthz", h.ServeHealth)
	r.Method(http.MethodGet, "/metrics", rec.Handler())

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
