package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/rules"
)

// ListRules handles GET /v1/rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	list := h.deps.Rules.GetRules()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"data":  list,
		"count": len(list),
	})
}

// GetRule handles GET /v1/rules/{id}
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rule, ok := h.deps.Rules.GetRule(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found", "Rule not found", "")
		return
	}
	h.writeJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /v1/rules. A body with an existing id replaces
// that rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if !h.decode(w, r, &rule) {
		return
	}
	h.saveRule(w, r, rule, http.StatusCreated)
}

// PutRule handles PUT /v1/rules/{id}
func (h *Handler) PutRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if !h.decode(w, r, &rule) {
		return
	}
	rule.ID = chi.URLParam(r, "id")
	h.saveRule(w, r, rule, http.StatusOK)
}

func (h *Handler) saveRule(w http.ResponseWriter, r *http.Request, rule rules.Rule, status int) {
	if err := rules.Validate(rule); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_rule", "Invalid rule", err.Error())
		return
	}

	saved, err := h.deps.Rules.CreateOrUpdateRule(r.Context(), rule)
	if err != nil {
		h.logger.Error("failed to save rule", zap.Error(err), zap.String("rule_id", rule.ID))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to save rule", "")
		return
	}

	h.logger.Info("rule saved",
		zap.String("rule_id", saved.ID),
		zap.String("event_type", saved.EventType),
		zap.Bool("active", saved.IsActive),
	)
	h.writeJSON(w, status, saved)
}

// DeleteRule handles DELETE /v1/rules/{id}
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	removed, err := h.deps.Rules.DeleteRule(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to delete rule", zap.Error(err), zap.String("rule_id", id))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to delete rule", "")
		return
	}
	if !removed {
		h.writeError(w, http.StatusNotFound, "not_found", "Rule not found", "")
		return
	}

	h.logger.Info("rule deleted", zap.String("rule_id", id))
	w.WriteHeader(http.StatusNoContent)
}
