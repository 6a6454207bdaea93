// Package automation runs the actions of the rules an event matches.
package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/jobs"
	"github.com/lalithlochan/crmflow/internal/notify"
	"github.com/lalithlochan/crmflow/internal/rules"
)

// Built-in action types.
const (
	ActionEnqueueJob       = "enqueue_job"
	ActionSendNotification = "send_notification"
)

// Action statuses.
const (
	StatusDone    = "done"
	StatusFailed  = "failed"
	StatusPending = "pending"
)

type Evaluator interface {
	Evaluate(eventType string, facts map[string]any) []rules.Action
}

type Enqueuer interface {
	Enqueue(ctx context.Context, queue jobs.Queue, name string, payload map[string]any, opts jobs.EnqueueOptions) (*jobs.Job, error)
}

type Notifier interface {
	Send(ctx context.Context, req notify.Request) []notify.ChannelResult
}

// ActionExecutor runs an action type the pipeline does not know itself,
// for example apply_discount_percentage.
type ActionExecutor interface {
	Execute(ctx context.Context, action rules.Action, facts map[string]any) error
}

type ExecutorFunc func(ctx context.Context, action rules.Action, facts map[string]any) error

func (f ExecutorFunc) Execute(ctx context.Context, action rules.Action, facts map[string]any) error {
	return f(ctx, action, facts)
}

// ActionResult is what happened to one action.
type ActionResult struct {
	Type     string                 `json:"type"`
	Params   map[string]any         `json:"params,omitempty"`
	Status   string                 `json:"status"`
	Error    string                 `json:"error,omitempty"`
	JobID    string                 `json:"jobId,omitempty"`
	Channels []notify.ChannelResult `json:"channels,omitempty"`
}

// Outcome of one event.
type Outcome struct {
	EventType string         `json:"eventType"`
	Actions   []ActionResult `json:"actions"`
}

// Pending returns the actions no executor handled, for the caller to run.
func (o Outcome) Pending() []ActionResult {
	var out []ActionResult
	for _, a := range o.Actions {
		if a.Status == StatusPending {
			out = append(out, a)
		}
	}
	return out
}

type Pipeline struct {
	rules    Evaluator
	producer Enqueuer
	notifier Notifier
	logger   *zap.Logger

	mu        sync.RWMutex
	executors map[string]ActionExecutor
}

// NewPipeline wires the pipeline. producer and notifier may be nil, in which
// case their actions fail.
func NewPipeline(rules Evaluator, producer Enqueuer, notifier Notifier, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		rules:     rules,
		producer:  producer,
		notifier:  notifier,
		logger:    logger,
		executors: make(map[string]ActionExecutor),
	}
}

// RegisterExecutor binds an action type. Built-in types cannot be replaced.
func (p *Pipeline) RegisterExecutor(actionType string, e ActionExecutor) error {
	if actionType == ActionEnqueueJob || actionType == ActionSendNotification {
		return fmt.Errorf("action type %q is built in", actionType)
	}
	if e == nil {
		return errors.New("nil executor")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.executors[actionType] = e
	return nil
}

// HandleEvent evaluates the rules for eventType and runs every resulting
// action in order. A failing action never stops the ones after it.
func (p *Pipeline) HandleEvent(ctx context.Context, eventType string, facts map[string]any) Outcome {
	actions := p.rules.Evaluate(eventType, facts)
	out := Outcome{EventType: eventType, Actions: make([]ActionResult, 0, len(actions))}

	for _, a := range actions {
		res := p.run(ctx, eventType, a, facts)
		if res.Status == StatusFailed {
			p.logger.Error("automation action failed",
				zap.String("event_type", eventType),
				zap.String("action", a.Type),
				zap.String("error", res.Error),
			)
		}
		out.Actions = append(out.Actions, res)
	}

	p.logger.Debug("event handled",
		zap.String("event_type", eventType),
		zap.Int("actions", len(out.Actions)),
	)
	return out
}

func (p *Pipeline) run(ctx context.Context, eventType string, a rules.Action, facts map[string]any) (res ActionResult) {
	prm, _ := interpolate(a.Params, facts).(map[string]any)
	if prm == nil {
		prm = map[string]any{}
	}
	res = ActionResult{Type: a.Type, Params: prm}

	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusFailed
			res.Error = fmt.Sprintf("action panicked: %v", r)
		}
	}()

	var err error
	switch a.Type {
	case ActionEnqueueJob:
		res.JobID, err = p.enqueue(ctx, params(prm))
	case ActionSendNotification:
		res.Channels, err = p.notify(ctx, eventType, params(prm))
	default:
		p.mu.RLock()
		e, ok := p.executors[a.Type]
		p.mu.RUnlock()
		if !ok {
			res.Status = StatusPending
			return res
		}
		err = e.Execute(ctx, rules.Action{Type: a.Type, Params: prm}, facts)
	}

	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		return res
	}
	res.Status = StatusDone
	return res
}

func (p *Pipeline) enqueue(ctx context.Context, prm params) (string, error) {
	if p.producer == nil {
		return "", errors.New("job producer not configured")
	}

	queue := jobs.Queue(prm.str("queue"))
	if queue == "" {
		queue = jobs.QueueDefault
	}
	name := prm.str("job")
	if name == "" {
		name = prm.str("name")
	}
	payload, err := prm.object("payload")
	if err != nil {
		return "", err
	}
	delayMs, err := prm.number("delayMs")
	if err != nil {
		return "", err
	}

	job, err := p.producer.Enqueue(ctx, queue, name, payload, jobs.EnqueueOptions{
		Delay: time.Duration(delayMs) * time.Millisecond,
		JobID: prm.str("jobId"),
	})
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

func (p *Pipeline) notify(ctx context.Context, eventType string, prm params) ([]notify.ChannelResult, error) {
	if p.notifier == nil {
		return nil, errors.New("notifier not configured")
	}

	req := notify.Request{
		RecipientID:   prm.str("recipientId"),
		RecipientType: prm.str("recipientType"),
		Type:          prm.str("type"),
		Priority:      prm.str("priority"),
		Template:      prm.str("template"),
		Title:         prm.str("title"),
		Message:       prm.str("message"),
		Link:          prm.str("link"),
		Contacts: notify.Contacts{
			Email: prm.str("email"),
			Phone: prm.str("phone"),
		},
	}
	if req.RecipientID == "" {
		return nil, errors.New("recipientId is required")
	}
	if req.RecipientType == "" {
		req.RecipientType = notify.RecipientUser
	}
	if req.Type == "" {
		req.Type = eventType
	}
	for _, ch := range prm.list("channels") {
		req.Channels = append(req.Channels, notify.Channel(ch))
	}
	if len(req.Channels) == 0 {
		req.Channels = []notify.Channel{notify.ChannelInApp}
	}

	var err error
	if req.Variables, err = prm.object("variables"); err != nil {
		return nil, err
	}
	if req.Metadata, err = prm.object("metadata"); err != nil {
		return nil, err
	}

	results := p.notifier.Send(ctx, req)
	for _, r := range results {
		if r.Success {
			return results, nil
		}
	}
	if len(results) > 0 && allSkipped(results) {
		return results, nil
	}
	return results, errors.New("no channel delivered the notification")
}

func allSkipped(results []notify.ChannelResult) bool {
	for _, r := range results {
		if !r.Skipped {
			return false
		}
	}
	return true
}
