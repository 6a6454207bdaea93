package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/metrics"
)

// NewRouter mounts the API. limiter may be nil.
func NewRouter(h *Handler, limiter Limiter, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(RequestLogger(logger))

	r.Route("/v1", func(r chi.Router) {
		r.Use(RateLimitMiddleware(limiter, logger, ClientKeyFunc))

		r.Get("/rules", h.ListRules)
		r.Post("/rules", h.CreateRule)
		r.Get("/rules/{id}", h.GetRule)
		r.Put("/rules/{id}", h.PutRule)
		r.Delete("/rules/{id}", h.DeleteRule)

		r.Post("/events", h.PostEvent)

		r.Post("/jobs", h.EnqueueJob)
		r.Get("/scheduler", h.SchedulerState)

		r.Get("/channels", h.ChannelBreakers)
		r.Post("/channels/{name}/reset", h.ResetChannelBreaker)
		r.Put("/contacts/{recipientType}/{recipientId}", h.PutContacts)

		r.Post("/notifications", h.SendNotification)
		r.Get("/notifications", h.ListNotifications)
		r.Patch("/notifications/{id}/read", h.MarkNotificationRead)
	})

	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	return r
}
