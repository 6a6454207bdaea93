package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalithlochan/crmflow/internal/db"
	"github.com/lalithlochan/crmflow/internal/metrics"
)

// Dispatcher sends a Request to every channel it names.
type Dispatcher struct {
	store     NotificationStore
	publisher Publisher
	contacts  ContactLookup
	templates Templates
	logger    *zap.Logger

	concurrent bool

	mu       sync.RWMutex
	adapters map[Channel]ChannelAdapter
}

type Option func(*Dispatcher)

// WithConcurrent attempts the channels of a request in parallel.
func WithConcurrent(on bool) Option {
	return func(d *Dispatcher) { d.concurrent = on }
}

func WithTemplates(t Templates) Option {
	return func(d *Dispatcher) { d.templates = t }
}

func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) {
		if p != nil {
			d.publisher = p
		}
	}
}

func WithContacts(c ContactLookup) Option {
	return func(d *Dispatcher) { d.contacts = c }
}

// NewDispatcher creates a dispatcher persisting in-app notifications to store.
func NewDispatcher(store NotificationStore, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		publisher: NopPublisher{},
		templates: DefaultTemplates(),
		logger:    logger,
		adapters:  make(map[Channel]ChannelAdapter),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds the adapter for its channel, replacing any previous one.
func (d *Dispatcher) Register(a ChannelAdapter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.adapters[a.Channel()] = a
}

func (d *Dispatcher) adapter(ch Channel) (ChannelAdapter, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.adapters[ch]
	return a, ok
}

// Channels returns in_app followed by the channels with a registered
// adapter, sorted by name.
func (d *Dispatcher) Channels() []Channel {
	d.mu.RLock()
	registered := make([]Channel, 0, len(d.adapters))
	for ch := range d.adapters {
		registered = append(registered, ch)
	}
	d.mu.RUnlock()

	slices.Sort(registered)
	return append([]Channel{ChannelInApp}, registered...)
}

// Send delivers req and returns one result per requested channel, in request
// order. It never fails as a whole: problems are logged and reported per
// channel.
//
// The in-app notification, when requested for a user, is persisted and
// published before any other channel is attempted.
func (d *Dispatcher) Send(ctx context.Context, req Request) []ChannelResult {
	msg := d.render(req)
	results := make([]ChannelResult, len(req.Channels))

	var inApp *ChannelResult
	for i, ch := range req.Channels {
		if ch != ChannelInApp {
			continue
		}
		if inApp != nil {
			results[i] = *inApp
			continue
		}
		r := d.sendInApp(ctx, req, msg)
		inApp = &r
		results[i] = r
	}

	if d.concurrent {
		var g errgroup.Group
		for i, ch := range req.Channels {
			if ch == ChannelInApp {
				continue
			}
			g.Go(func() error {
				results[i] = d.deliver(ctx, ch, req, msg)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, ch := range req.Channels {
			if ch == ChannelInApp {
				continue
			}
			results[i] = d.deliver(ctx, ch, req, msg)
		}
	}

	return results
}

// sendInApp persists and publishes the in-app notification. A panicking
// store fails the channel instead of the whole Send.
func (d *Dispatcher) sendInApp(ctx context.Context, req Request, msg Message) (res ChannelResult) {
	res = ChannelResult{Channel: ChannelInApp}
	defer func() {
		if r := recover(); r != nil {
			res = d.fail(ChannelResult{Channel: ChannelInApp}, req, fmt.Errorf("in-app panicked: %v", r))
		}
	}()

	if req.RecipientType != RecipientUser {
		d.logger.Debug("in-app skipped for non-user recipient",
			zap.String("recipient_id", req.RecipientID),
			zap.String("recipient_type", req.RecipientType),
		)
		res.Skipped = true
		metrics.RecordChannelDelivery(string(ChannelInApp), "skipped")
		return res
	}
	if d.store == nil {
		return d.fail(res, req, errors.New("no notification store configured"))
	}

	n := &db.Notification{
		RecipientID:   req.RecipientID,
		RecipientType: req.RecipientType,
		Title:         msg.Title,
		Message:       msg.Body,
		Type:          msg.Type,
		Priority:      msg.Priority,
		Link:          msg.Link,
		Metadata:      msg.Metadata,
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		return d.fail(res, req, fmt.Errorf("persist in-app notification: %w", err))
	}

	if err := d.publish(ctx, n); err != nil {
		// the record is stored; the client picks it up on next fetch
		d.logger.Warn("failed to publish in-app notification",
			zap.String("notification_id", n.ID.String()),
			zap.String("recipient_id", req.RecipientID),
			zap.Error(err),
		)
	}

	res.Success = true
	metrics.RecordChannelDelivery(string(ChannelInApp), "sent")
	return res
}

func (d *Dispatcher) publish(ctx context.Context, n *db.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panicked: %v", r)
		}
	}()
	return d.publisher.Publish(ctx, Topic(n.RecipientID), n)
}

// deliver attempts one external channel. It recovers from adapter panics.
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, req Request, msg Message) (res ChannelResult) {
	res = ChannelResult{Channel: ch}
	defer func() {
		if r := recover(); r != nil {
			res = d.fail(ChannelResult{Channel: ch}, req, fmt.Errorf("adapter panicked: %v", r))
		}
	}()

	a, ok := d.adapter(ch)
	if !ok {
		d.logger.Warn("channel not implemented",
			zap.String("channel", string(ch)),
			zap.String("notification_type", req.Type),
		)
		res.Skipped = true
		metrics.RecordChannelDelivery(string(ch), "skipped")
		return res
	}

	kind := a.Requires()
	contact, err := d.contact(ctx, kind, req)
	if err != nil {
		return d.fail(res, req, fmt.Errorf("lookup %s: %w", kind, err))
	}
	if kind != ContactNone && contact == "" {
		d.logger.Debug("no contact for channel, skipping",
			zap.String("channel", string(ch)),
			zap.String("recipient_id", req.RecipientID),
			zap.String("contact", kind.String()),
		)
		res.Skipped = true
		metrics.RecordChannelDelivery(string(ch), "skipped")
		return res
	}

	to := Recipient{ID: req.RecipientID, Type: req.RecipientType, Contact: contact}
	if err := a.Deliver(ctx, to, msg); err != nil {
		return d.fail(res, req, err)
	}

	res.Success = true
	metrics.RecordChannelDelivery(string(ch), "sent")
	return res
}

func (d *Dispatcher) contact(ctx context.Context, kind ContactKind, req Request) (string, error) {
	if kind == ContactNone {
		return "", nil
	}
	if c := req.Contacts.get(kind); c != "" {
		return c, nil
	}
	if d.contacts == nil {
		return "", nil
	}

	switch kind {
	case ContactEmail:
		return d.contacts.Email(ctx, req.RecipientID, req.RecipientType)
	case ContactPhone:
		return d.contacts.Phone(ctx, req.RecipientID, req.RecipientType)
	case ContactPushEndpoint:
		return d.contacts.PushEndpoint(ctx, req.RecipientID, req.RecipientType)
	default:
		return "", nil
	}
}

func (d *Dispatcher) fail(res ChannelResult, req Request, err error) ChannelResult {
	d.logger.Error("channel delivery failed",
		zap.String("channel", string(res.Channel)),
		zap.String("notification_type", req.Type),
		zap.String("recipient_id", req.RecipientID),
		zap.Error(err),
	)
	res.Success = false
	res.Skipped = false
	res.Err = err
	res.Error = err.Error()
	metrics.RecordChannelDelivery(string(res.Channel), "failed")
	return res
}

func (d *Dispatcher) render(req Request) Message {
	var tmpl Template
	if req.Template != "" {
		t, ok := d.templates[req.Template]
		if !ok {
			d.logger.Warn("unknown notification template", zap.String("template", req.Template))
		}
		tmpl = t
	}

	title := firstNonEmpty(req.Title, tmpl.Title)
	body := firstNonEmpty(req.Message, tmpl.Message)
	link := firstNonEmpty(req.Link, tmpl.Link)

	msg := Message{
		Type:     req.Type,
		Priority: firstNonEmpty(req.Priority, db.PriorityNormal),
		Title:    Render(title, req.Variables),
		Body:     Render(body, req.Variables),
		Link:     Render(link, req.Variables),
		Metadata: req.Metadata,
	}
	if msg.Title == "" {
		msg.Title = req.Type
	}
	return msg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
