package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/automation"
	"github.com/lalithlochan/crmflow/internal/circuitbreaker"
	"github.com/lalithlochan/crmflow/internal/db"
	"github.com/lalithlochan/crmflow/internal/jobs"
	"github.com/lalithlochan/crmflow/internal/notify"
	"github.com/lalithlochan/crmflow/internal/rules"
)

// RuleService manages automation rules. *rules.Engine satisfies it.
type RuleService interface {
	GetRules() []rules.Rule
	GetRule(id string) (rules.Rule, bool)
	CreateOrUpdateRule(ctx context.Context, rule rules.Rule) (rules.Rule, error)
	DeleteRule(ctx context.Context, id string) (bool, error)
}

type EventHandler interface {
	HandleEvent(ctx context.Context, eventType string, facts map[string]any) automation.Outcome
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, queue jobs.Queue, name string, payload map[string]any, opts jobs.EnqueueOptions) (*jobs.Job, error)
}

type Notifier interface {
	Send(ctx context.Context, req notify.Request) []notify.ChannelResult
}

// NotificationReader is the in-app inbox read path.
type NotificationReader interface {
	ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]*db.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
}

type SchedulerStatus interface {
	State() jobs.State
}

// Deduper reserves idempotency keys. *redis.Deduper satisfies it.
type Deduper interface {
	Reserve(ctx context.Context, scope, key string) (bool, error)
}

// HealthChecker reports whether a backing store is reachable. *db.DB
// satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Breakers exposes the channel circuit breakers. *circuitbreaker.Registry
// satisfies it.
type Breakers interface {
	Stats() []circuitbreaker.Stats
	Reset(name string) bool
}

// ContactSaver stores recipient contact details. *notify.ContactBook
// satisfies it.
type ContactSaver interface {
	Save(ctx context.Context, id, typ string, c notify.Contacts) error
}

// Deps are the services behind the API. Deduper, Health, Breakers and
// Contacts may be nil.
type Deps struct {
	Rules         RuleService
	Events        EventHandler
	Jobs          JobEnqueuer
	Notifier      Notifier
	Notifications NotificationReader
	Scheduler     SchedulerStatus
	Deduper       Deduper
	Health        HealthChecker
	Breakers      Breakers
	Contacts      ContactSaver
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	deps   Deps
	logger *zap.Logger
}

func NewHandler(logger *zap.Logger, deps Deps) *Handler {
	return &Handler{deps: deps, logger: logger}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	writeProblem(w, status, errType, title, detail)
}

func writeProblem(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
