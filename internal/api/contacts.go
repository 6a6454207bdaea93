package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/notify"
)

// PutContacts handles PUT /v1/contacts/{recipientType}/{recipientId}. Empty
// fields clear the stored value.
func (h *Handler) PutContacts(w http.ResponseWriter, r *http.Request) {
	if h.deps.Contacts == nil {
		h.writeError(w, http.StatusServiceUnavailable, "contacts_unavailable", "Contacts are read-only", "contact storage requires the database")
		return
	}

	typ := chi.URLParam(r, "recipientType")
	id := chi.URLParam(r, "recipientId")
	if typ != notify.RecipientUser && typ != notify.RecipientCustomer {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid recipientType", "recipientType must be user or customer")
		return
	}

	var c notify.Contacts
	if !h.decode(w, r, &c) {
		return
	}

	if err := h.deps.Contacts.Save(r.Context(), id, typ, c); err != nil {
		h.logger.Error("failed to save contacts",
			zap.Error(err),
			zap.String("recipient_id", id),
			zap.String("recipient_type", typ),
		)
		h.writeError(w, http.StatusInternalServerError, "contacts_error", "Failed to save contacts", "")
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}
