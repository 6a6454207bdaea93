package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/jobs"
	"github.com/lalithlochan/crmflow/internal/notify"
	"github.com/lalithlochan/crmflow/internal/rules"
)

type harness struct {
	engine   *rules.Engine
	broker   *jobs.MemoryBroker
	store    *notify.MemoryStore
	pipeline *Pipeline
}

func newHarness(t *testing.T, seed ...rules.Rule) *harness {
	t.Helper()
	logger := zap.NewNop()

	engine := rules.NewEngine(rules.NewMemoryStore(seed...), logger)
	require.NoError(t, engine.Refresh(context.Background()))

	broker := jobs.NewMemoryBroker()
	t.Cleanup(func() { _ = broker.Close() })

	store := notify.NewMemoryStore()
	dispatcher := notify.NewDispatcher(store, logger)

	return &harness{
		engine:   engine,
		broker:   broker,
		store:    store,
		pipeline: NewPipeline(engine, jobs.NewProducer(broker, logger), dispatcher, logger),
	}
}

func cartDiscount() rules.Rule {
	return rules.Rule{
		ID:        "cart-10",
		EventType: "cart.total_change",
		Conditions: []rules.Condition{
			{Fact: "cart.total", Operator: rules.OperatorGreaterThanInclusive, Value: 500},
		},
		Actions: []rules.Action{
			{Type: "apply_discount_percentage", Params: map[string]any{"percentage": 10}},
		},
		IsActive: true,
	}
}

func TestHandleEvent_CartDiscountEndToEnd(t *testing.T) {
	h := newHarness(t, cartDiscount())
	ctx := context.Background()

	var applied []any
	require.NoError(t, h.pipeline.RegisterExecutor("apply_discount_percentage",
		ExecutorFunc(func(_ context.Context, a rules.Action, f map[string]any) error {
			applied = append(applied, a.Params["percentage"])
			return nil
		})))

	out := h.pipeline.HandleEvent(ctx, "cart.total_change", map[string]any{"cart": map[string]any{"total": 500}})
	require.Len(t, out.Actions, 1)
	assert.Equal(t, StatusDone, out.Actions[0].Status)
	assert.Equal(t, []any{10}, applied)

	out = h.pipeline.HandleEvent(ctx, "cart.total_change", map[string]any{"cart": map[string]any{"total": 499}})
	assert.Empty(t, out.Actions)
	assert.Len(t, applied, 1)
}

func TestHandleEvent_UnknownActionIsPending(t *testing.T) {
	h := newHarness(t, cartDiscount())

	out := h.pipeline.HandleEvent(context.Background(), "cart.total_change", map[string]any{"cart": map[string]any{"total": 900}})

	pending := out.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "apply_discount_percentage", pending[0].Type)
	assert.Equal(t, 10, pending[0].Params["percentage"])
}

func TestHandleEvent_EnqueueJob(t *testing.T) {
	h := newHarness(t, rules.Rule{
		ID:        "survey-after-sale",
		EventType: "sale.completed",
		Actions: []rules.Action{
			{Type: ActionEnqueueJob, Params: map[string]any{"queue": "badge", "job": jobs.JobAwardBadges}},
			{Type: ActionEnqueueJob, Params: map[string]any{
				"job":     jobs.JobSendSurveyEmail,
				"delayMs": 0,
				"jobId":   "survey-{{sale.id}}",
				"payload": map[string]any{
					"saleId":        "{{sale.id}}",
					"customerId":    "{{customer.id}}",
					"customerEmail": "{{customer.email}}",
				},
			}},
		},
		IsActive: true,
	})
	ctx := context.Background()

	out := h.pipeline.HandleEvent(ctx, "sale.completed", map[string]any{
		"sale":     map[string]any{"id": "S-9", "total": 120.5},
		"customer": map[string]any{"id": "c1", "email": "carl@example.com"},
	})

	require.Len(t, out.Actions, 2)
	assert.Equal(t, StatusDone, out.Actions[0].Status)
	assert.Equal(t, "survey-S-9", out.Actions[1].JobID)
	assert.Equal(t, 1, h.broker.Len(jobs.QueueBadge))
	require.Equal(t, 1, h.broker.Len(jobs.QueueDefault))

	dctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	job, err := h.broker.Dequeue(dctx, jobs.QueueDefault)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobSendSurveyEmail, job.Name)
	assert.Equal(t, "carl@example.com", job.Payload["customerEmail"])
}

type failingProducer struct{}

func (failingProducer) Enqueue(context.Context, jobs.Queue, string, map[string]any, jobs.EnqueueOptions) (*jobs.Job, error) {
	return nil, errors.New("broker unreachable")
}

func TestHandleEvent_FailuresDoNotStopSiblings(t *testing.T) {
	engine := rules.NewEngine(rules.NewMemoryStore(rules.Rule{
		ID:        "r",
		EventType: "customer.created",
		Actions: []rules.Action{
			{Type: ActionEnqueueJob, Params: map[string]any{"job": jobs.JobUpdateCustomerTiers}},
			{Type: "boom"},
			{Type: ActionEnqueueJob, Params: map[string]any{"queue": "nope", "job": "x"}},
			{Type: "tag_customer"},
		},
		IsActive: true,
	}), zap.NewNop())
	require.NoError(t, engine.Refresh(context.Background()))

	p := NewPipeline(engine, failingProducer{}, nil, zap.NewNop())
	require.NoError(t, p.RegisterExecutor("boom", ExecutorFunc(func(context.Context, rules.Action, map[string]any) error {
		panic("executor bug")
	})))
	var tagged bool
	require.NoError(t, p.RegisterExecutor("tag_customer", ExecutorFunc(func(context.Context, rules.Action, map[string]any) error {
		tagged = true
		return nil
	})))

	out := p.HandleEvent(context.Background(), "customer.created", nil)

	require.Len(t, out.Actions, 4)
	assert.Equal(t, StatusFailed, out.Actions[0].Status)
	assert.Contains(t, out.Actions[0].Error, "broker unreachable")
	assert.Contains(t, out.Actions[1].Error, "action panicked")
	assert.Equal(t, StatusFailed, out.Actions[2].Status)
	assert.Equal(t, StatusDone, out.Actions[3].Status)
	assert.True(t, tagged)
}

func TestHandleEvent_SendNotification(t *testing.T) {
	h := newHarness(t, rules.Rule{
		ID:        "vip",
		EventType: "customer.tier_changed",
		Conditions: []rules.Condition{
			{Fact: "customer.tier", Operator: rules.OperatorEqual, Value: "vip"},
		},
		Actions: []rules.Action{{Type: ActionSendNotification, Params: map[string]any{
			"recipientId": "{{customer.ownerId}}",
			"channels":    []any{"in_app"},
			"template":    "vip_welcome",
			"variables":   map[string]any{"customerName": "{{customer.name}}"},
		}}},
		IsActive: true,
	})
	ctx := context.Background()

	out := h.pipeline.HandleEvent(ctx, "customer.tier_changed", map[string]any{
		"customer": map[string]any{"tier": "vip", "ownerId": "u7", "name": "Carla"},
	})

	require.Len(t, out.Actions, 1)
	assert.Equal(t, StatusDone, out.Actions[0].Status)
	require.Len(t, out.Actions[0].Channels, 1)
	assert.True(t, out.Actions[0].Channels[0].Success)

	list, err := h.store.ListByRecipient(ctx, "u7", false, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Hi Carla, you are now a VIP customer.", list[0].Message)
	assert.Equal(t, "customer.tier_changed", list[0].Type)
}

func TestHandleEvent_SendNotificationNeedsRecipient(t *testing.T) {
	h := newHarness(t, rules.Rule{
		ID:        "r",
		EventType: "e",
		Actions:   []rules.Action{{Type: ActionSendNotification, Params: map[string]any{"recipientId": "{{missing.id}}"}}},
		IsActive:  true,
	})

	out := h.pipeline.HandleEvent(context.Background(), "e", nil)
	require.Len(t, out.Actions, 1)
	// the unresolved placeholder is kept, so the dispatcher is still called
	assert.Equal(t, StatusDone, out.Actions[0].Status)

	h2 := newHarness(t, rules.Rule{
		ID:        "r",
		EventType: "e",
		Actions:   []rules.Action{{Type: ActionSendNotification}},
		IsActive:  true,
	})
	out = h2.pipeline.HandleEvent(context.Background(), "e", nil)
	assert.Equal(t, "recipientId is required", out.Actions[0].Error)
}

func TestRegisterExecutor_RejectsBuiltins(t *testing.T) {
	p := NewPipeline(rules.NewEngine(rules.NewMemoryStore(), zap.NewNop()), nil, nil, zap.NewNop())
	noop := ExecutorFunc(func(context.Context, rules.Action, map[string]any) error { return nil })

	assert.Error(t, p.RegisterExecutor(ActionEnqueueJob, noop))
	assert.Error(t, p.RegisterExecutor(ActionSendNotification, noop))
	assert.Error(t, p.RegisterExecutor("x", nil))
	assert.NoError(t, p.RegisterExecutor("x", noop))
}
