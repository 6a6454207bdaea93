package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type EventRequest struct {
	EventType string         `json:"eventType"`
	Facts     map[string]any `json:"facts"`
}

// PostEvent handles POST /v1/events. An optional Idempotency-Key header
// makes retries of the same event a no-op.
func (h *Handler) PostEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req EventRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.EventType) == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing eventType", "eventType is required")
		return
	}

	if key := r.Header.Get("Idempotency-Key"); key != "" && h.deps.Deduper != nil {
		fresh, err := h.deps.Deduper.Reserve(ctx, "event", key)
		switch {
		case err != nil:
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", key),
			)
		case !fresh:
			h.writeError(w, http.StatusConflict, "duplicate_request",
				"Event already processed",
				"An event with this idempotency key was already accepted")
			return
		}
	}

	outcome := h.deps.Events.HandleEvent(ctx, req.EventType, req.Facts)

	h.logger.Info("event processed",
		zap.String("event_type", req.EventType),
		zap.Int("actions", len(outcome.Actions)),
	)
	h.writeJSON(w, http.StatusOK, outcome)
}
