package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/automation"
	"github.com/lalithlochan/crmflow/internal/db"
	"github.com/lalithlochan/crmflow/internal/jobs"
	"github.com/lalithlochan/crmflow/internal/notify"
	"github.com/lalithlochan/crmflow/internal/rules"
)

type stubScheduler struct{ state jobs.State }

func (s stubScheduler) State() jobs.State { return s.state }

type memDeduper struct {
	seen map[string]bool
	err  error
}

func (d *memDeduper) Reserve(_ context.Context, scope, key string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	k := scope + ":" + key
	if d.seen[k] {
		return false, nil
	}
	d.seen[k] = true
	return true, nil
}

type testServer struct {
	handler  http.Handler
	engine   *rules.Engine
	broker   *jobs.MemoryBroker
	inbox    *notify.MemoryStore
	deduper  *memDeduper
	executed int
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	engine := rules.NewEngine(rules.NewMemoryStore(), logger)
	broker := jobs.NewMemoryBroker()
	t.Cleanup(func() { _ = broker.Close() })
	producer := jobs.NewProducer(broker, logger)
	inbox := notify.NewMemoryStore()
	dispatcher := notify.NewDispatcher(inbox, logger)
	pipeline := automation.NewPipeline(engine, producer, dispatcher, logger)

	s := &testServer{
		engine:  engine,
		broker:  broker,
		inbox:   inbox,
		deduper: &memDeduper{seen: map[string]bool{}},
	}
	require.NoError(t, pipeline.RegisterExecutor("apply_discount_percentage",
		automation.ExecutorFunc(func(context.Context, rules.Action, map[string]any) error {
			s.executed++
			return nil
		})))

	h := NewHandler(logger, Deps{
		Rules:         engine,
		Events:        pipeline,
		Jobs:          producer,
		Notifier:      dispatcher,
		Notifications: inbox,
		Scheduler:     stubScheduler{state: jobs.StateRunning},
		Deduper:       s.deduper,
	})
	s.handler = NewRouter(h, nil, logger)
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func cartRule() map[string]any {
	return map[string]any{
		"id":        "cart-10",
		"name":      "10% off large carts",
		"eventType": "cart.total_change",
		"isActive":  true,
		"conditions": []any{
			map[string]any{"fact": "cart.total", "operator": "greaterThanInclusive", "value": 500},
		},
		"actions": []any{
			map[string]any{"type": "apply_discount_percentage", "params": map[string]any{"percentage": 10}},
		},
	}
}

func TestRulesCRUD(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/rules", cartRule())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/v1/rules/cart-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got rules.Rule
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "cart.total_change", got.EventType)
	assert.Equal(t, rules.OperatorGreaterThanInclusive, got.Conditions[0].Operator)

	update := cartRule()
	update["isActive"] = false
	rec = s.do(t, http.MethodPut, "/v1/rules/cart-10", update)
	require.Equal(t, http.StatusOK, rec.Code)
	r, _ := s.engine.GetRule("cart-10")
	assert.False(t, r.IsActive)

	rec = s.do(t, http.MethodGet, "/v1/rules", nil)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = s.do(t, http.MethodDelete, "/v1/rules/cart-10", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/v1/rules/cart-10", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/v1/rules/cart-10", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRule_Invalid(t *testing.T) {
	s := newTestServer(t)

	bad := cartRule()
	bad["conditions"] = []any{map[string]any{"fact": "cart.total", "operator": "between", "value": 1}}
	rec := s.do(t, http.MethodPost, "/v1/rules", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "unknown operator")

	rec = s.do(t, http.MethodPost, "/v1/rules", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.engine.GetRules())
}

func TestPostEvent(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/rules", cartRule()).Code)

	rec := s.do(t, http.MethodPost, "/v1/events", map[string]any{
		"eventType": "cart.total_change",
		"facts":     map[string]any{"cart": map[string]any{"total": 500}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var out automation.Outcome
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Len(t, out.Actions, 1)
	assert.Equal(t, automation.StatusDone, out.Actions[0].Status)
	assert.Equal(t, 1, s.executed)

	rec = s.do(t, http.MethodPost, "/v1/events", map[string]any{
		"eventType": "cart.total_change",
		"facts":     map[string]any{"cart": map[string]any{"total": 499}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"actions":[]`)
	assert.Equal(t, 1, s.executed)

	rec = s.do(t, http.MethodPost, "/v1/events", map[string]any{"facts": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostEvent_IdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/rules", cartRule()).Code)
	event := map[string]any{
		"eventType": "cart.total_change",
		"facts":     map[string]any{"cart": map[string]any{"total": 800}},
	}

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/events", event, "Idempotency-Key", "evt-1").Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/v1/events", event, "Idempotency-Key", "evt-1").Code)
	assert.Equal(t, 1, s.executed)

	s.deduper.err = errors.New("redis down")
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/events", event, "Idempotency-Key", "evt-1").Code)
	assert.Equal(t, 2, s.executed)
}

func TestEnqueueJob(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/jobs", map[string]any{
		"queue":   "default",
		"name":    jobs.JobSyncMarketplaceOrders,
		"payload": map[string]any{"integrationId": "shopee-1"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var job jobs.Job
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, 1, s.broker.Len(jobs.QueueDefault))

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad queue", map[string]any{"queue": "emails", "name": "x"}},
		{"missing name", map[string]any{"queue": "badge"}},
		{"negative delay", map[string]any{"queue": "badge", "name": "awardBadges", "delayMs": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/jobs", tt.body).Code)
		})
	}
}

func TestSchedulerState(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/scheduler", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"RUNNING"}`, rec.Body.String())
}

func TestNotifications(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/notifications", map[string]any{
		"recipientId": "u1",
		"type":        "sale_completed",
		"title":       "Sale closed",
		"message":     "Order 42 was paid",
		"channels":    []string{"in_app", "whatsapp"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sent struct {
		Results []notify.ChannelResult `json:"results"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sent))
	require.Len(t, sent.Results, 2)
	assert.True(t, sent.Results[0].Success)
	assert.True(t, sent.Results[1].Skipped)
	assert.Empty(t, sent.Results[1].Error)

	rec = s.do(t, http.MethodGet, "/v1/notifications?recipient_id=u1&unread=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Data  []db.Notification `json:"data"`
		Count int               `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Equal(t, 1, listed.Count)
	assert.Equal(t, "Sale closed", listed.Data[0].Title)

	id := listed.Data[0].ID
	rec = s.do(t, http.MethodPatch, "/v1/notifications/"+id.String()+"/read", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/notifications?recipient_id=u1&unread=true", nil)
	assert.Contains(t, rec.Body.String(), `"count":0`)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestNotifications_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing channels", http.MethodPost, "/v1/notifications", map[string]any{"recipientId": "u1"}, http.StatusBadRequest},
		{"bad recipient type", http.MethodPost, "/v1/notifications", map[string]any{"recipientId": "u1", "recipientType": "robot", "channels": []string{"email"}}, http.StatusBadRequest},
		{"list without recipient", http.MethodGet, "/v1/notifications", nil, http.StatusBadRequest},
		{"bad id", http.MethodPatch, "/v1/notifications/not-a-uuid/read", nil, http.StatusBadRequest},
		{"unknown id", http.MethodPatch, "/v1/notifications/" + uuid.NewString() + "/read", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.do(t, tt.method, tt.path, tt.body).Code)
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crmflow_")
}
