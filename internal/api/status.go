package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/circuitbreaker"
)

// Health handles GET /health. It pings the database when one is configured.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Health.Health(ctx); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("UNAVAILABLE"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ChannelBreakers handles GET /v1/channels
func (h *Handler) ChannelBreakers(w http.ResponseWriter, r *http.Request) {
	stats := []circuitbreaker.Stats{}
	if h.deps.Breakers != nil {
		stats = h.deps.Breakers.Stats()
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"breakers": stats})
}

// ResetChannelBreaker handles POST /v1/channels/{name}/reset
func (h *Handler) ResetChannelBreaker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.deps.Breakers == nil || !h.deps.Breakers.Reset(name) {
		h.writeError(w, http.StatusNotFound, "not_found", "Unknown channel", "no circuit breaker named "+name)
		return
	}
	h.logger.Info("channel circuit breaker reset", zap.String("channel", name))
	w.WriteHeader(http.StatusNoContent)
}
