// Package notify fans a notification out to delivery channels. In-app
// notifications are stored and published first; every other channel is
// attempted independently so one failing channel never affects another.
package notify

import (
	"context"
	"errors"

	"github.com/lalithlochan/crmflow/internal/db"
)

// Channel is a delivery channel name.
type Channel string

const (
	ChannelInApp    Channel = "in_app"
	ChannelEmail    Channel = "email"
	ChannelPush     Channel = "push"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelChat     Channel = "chat"
)

// Recipient types
const (
	RecipientUser     = db.RecipientUser
	RecipientCustomer = db.RecipientCustomer
)

// ContactKind is the contact detail an adapter needs to deliver.
type ContactKind int

const (
	ContactNone ContactKind = iota
	ContactEmail
	ContactPhone
	ContactPushEndpoint
)

func (k ContactKind) String() string {
	switch k {
	case ContactEmail:
		return "email"
	case ContactPhone:
		return "phone"
	case ContactPushEndpoint:
		return "push_endpoint"
	default:
		return "none"
	}
}

// Contacts are contact details supplied with a request. They take precedence
// over ContactLookup.
type Contacts struct {
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	PushEndpoint string `json:"pushEndpoint,omitempty"`
}

func (c Contacts) get(kind ContactKind) string {
	switch kind {
	case ContactEmail:
		return c.Email
	case ContactPhone:
		return c.Phone
	case ContactPushEndpoint:
		return c.PushEndpoint
	default:
		return ""
	}
}

// Request describes one notification to send. Title and Message override the
// template's; Variables fill {{name}} placeholders in either.
type Request struct {
	RecipientID   string         `json:"recipientId"`
	RecipientType string         `json:"recipientType"`
	Type          string         `json:"type"`
	Priority      string         `json:"priority,omitempty"`
	Template      string         `json:"template,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Title         string         `json:"title,omitempty"`
	Message       string         `json:"message,omitempty"`
	Link          string         `json:"link,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Channels      []Channel      `json:"channels"`
	Contacts      Contacts       `json:"contacts,omitempty"`
}

// Message is the rendered content handed to adapters.
type Message struct {
	Type     string
	Priority string
	Title    string
	Body     string
	Link     string
	Metadata map[string]any
}

// Recipient is who an adapter delivers to. Contact holds the detail the
// adapter asked for through Requires.
type Recipient struct {
	ID      string
	Type    string
	Contact string
}

// ChannelResult is the outcome of one channel.
type ChannelResult struct {
	Channel Channel `json:"channel"`
	Success bool    `json:"success"`
	Skipped bool    `json:"skipped,omitempty"`
	Err     error   `json:"-"`
	Error   string  `json:"error,omitempty"`
}

// ChannelAdapter delivers a message over one channel.
type ChannelAdapter interface {
	Channel() Channel
	Requires() ContactKind
	Deliver(ctx context.Context, to Recipient, msg Message) error
}

// ContactLookup resolves contact details. An empty string with a nil error
// means the recipient has no such contact.
type ContactLookup interface {
	Email(ctx context.Context, recipientID, recipientType string) (string, error)
	Phone(ctx context.Context, recipientID, recipientType string) (string, error)
	PushEndpoint(ctx context.Context, recipientID, recipientType string) (string, error)
}

// Publisher pushes real-time events to subscribers of a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *db.Notification) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// Publishers sends every event to each publisher in turn and joins their
// errors.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, topic string, payload any) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Topic is the real-time topic of a recipient's in-app notifications.
func Topic(recipientID string) string {
	return "notification:" + recipientID
}
