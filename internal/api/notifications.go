package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/db"
	"github.com/lalithlochan/crmflow/internal/notify"
)

// SendNotification handles POST /v1/notifications
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req notify.Request
	if !h.decode(w, r, &req) {
		return
	}

	if req.RecipientID == "" || len(req.Channels) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "recipientId and channels are required")
		return
	}
	if req.RecipientType == "" {
		req.RecipientType = notify.RecipientUser
	}
	if req.RecipientType != notify.RecipientUser && req.RecipientType != notify.RecipientCustomer {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid recipientType", "recipientType must be user or customer")
		return
	}

	results := h.deps.Notifier.Send(r.Context(), req)
	h.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// ListNotifications handles GET /v1/notifications?recipient_id=xxx&unread=true&limit=20
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recipientID := q.Get("recipient_id")
	if recipientID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing recipient_id", "recipient_id query parameter is required")
		return
	}

	limit := 20
	if s := q.Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	unread, _ := strconv.ParseBool(q.Get("unread"))

	list, err := h.deps.Notifications.ListByRecipient(r.Context(), recipientID, unread, limit)
	if err != nil {
		h.logger.Error("failed to list notifications",
			zap.Error(err),
			zap.String("recipient_id", recipientID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list notifications", "")
		return
	}
	if list == nil {
		list = []*db.Notification{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"data":  list,
		"limit": limit,
		"count": len(list),
	})
}

// MarkNotificationRead handles PATCH /v1/notifications/{id}/read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return
	}

	err = h.deps.Notifications.MarkRead(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to mark notification read", zap.Error(err), zap.String("id", idStr))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update notification", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"id": idStr, "read": true})
}
