package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Recipient types
const (
	RecipientUser     = "user"
	RecipientCustomer = "customer"
)

// Priority constants
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Notification is an in-app notification shown to a staff user.
type Notification struct {
	ID            uuid.UUID      `json:"id"`
	RecipientID   string         `json:"recipient_id"`
	RecipientType string         `json:"recipient_type"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Type          string         `json:"type"`
	Priority      string         `json:"priority"`
	Link          string         `json:"link,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Read          bool           `json:"read"`
	CreatedAt     time.Time      `json:"created_at"`
}
