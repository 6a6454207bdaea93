package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, seed ...Rule) *Engine {
	t.Helper()
	e := NewEngine(NewMemoryStore(seed...), zap.NewNop())
	require.NoError(t, e.Refresh(context.Background()))
	return e
}

func cartDiscountRule() Rule {
	return Rule{
		ID:        "cart-10",
		Name:      "10% off large carts",
		EventType: "cart.total_change",
		Conditions: []Condition{
			{Fact: "cart.total", Operator: OperatorGreaterThanInclusive, Value: 500},
		},
		Actions: []Action{
			{Type: "apply_discount_percentage", Params: map[string]any{"percentage": 10}},
		},
		IsActive: true,
	}
}

func TestEvaluate_CartDiscount(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateOrUpdateRule(context.Background(), cartDiscountRule())
	require.NoError(t, err)

	actions := e.Evaluate("cart.total_change", map[string]any{"cart": map[string]any{"total": 500}})
	require.Len(t, actions, 1)
	assert.Equal(t, "apply_discount_percentage", actions[0].Type)
	assert.Equal(t, 10, actions[0].Params["percentage"])

	actions = e.Evaluate("cart.total_change", map[string]any{"cart": map[string]any{"total": 499}})
	assert.Empty(t, actions)
}

func TestEvaluate_EmptyConditionsAlwaysFire(t *testing.T) {
	e := newTestEngine(t, Rule{
		ID:        "welcome",
		EventType: "customer.created",
		Actions:   []Action{{Type: "send_notification"}},
		IsActive:  true,
	})

	assert.Len(t, e.Evaluate("customer.created", nil), 1)
	assert.Len(t, e.Evaluate("customer.created", map[string]any{"any": "thing"}), 1)
}

func TestEvaluate_EventTypeMismatchNeverFires(t *testing.T) {
	e := newTestEngine(t,
		Rule{ID: "a", EventType: "sale.completed", Actions: []Action{{Type: "x"}}, IsActive: true},
		Rule{
			ID:         "b",
			EventType:  "sale.completed",
			Conditions: []Condition{{Fact: "sale.total", Operator: OperatorNotEqual, Value: 0}},
			Actions:    []Action{{Type: "y"}},
			IsActive:   true,
		},
	)

	assert.Empty(t, e.Evaluate("customer.created", map[string]any{"sale": map[string]any{"total": 10}}))
}

func TestEvaluate_InactiveRuleIgnored(t *testing.T) {
	r := cartDiscountRule()
	r.IsActive = false
	e := newTestEngine(t, r)

	assert.Empty(t, e.Evaluate("cart.total_change", map[string]any{"cart": map[string]any{"total": 900}}))
}

func TestEvaluate_AllConditionsMustHold(t *testing.T) {
	e := newTestEngine(t, Rule{
		ID:        "vip-big-sale",
		EventType: "sale.completed",
		Conditions: []Condition{
			{Fact: "customer.loyaltyLevel", Operator: OperatorEqual, Value: "gold"},
			{Fact: "sale.total", Operator: OperatorGreaterThan, Value: 1000},
		},
		Actions:  []Action{{Type: "enqueue_job"}},
		IsActive: true,
	})

	both := map[string]any{
		"customer": map[string]any{"loyaltyLevel": "gold"},
		"sale":     map[string]any{"total": 1500.0},
	}
	assert.Len(t, e.Evaluate("sale.completed", both), 1)

	onlyOne := map[string]any{
		"customer": map[string]any{"loyaltyLevel": "silver"},
		"sale":     map[string]any{"total": 1500.0},
	}
	assert.Empty(t, e.Evaluate("sale.completed", onlyOne))

	missing := map[string]any{"sale": map[string]any{"total": 1500.0}}
	assert.Empty(t, e.Evaluate("sale.completed", missing))
}

func TestEvaluate_UndefinedFactWithNotEqualFires(t *testing.T) {
	e := newTestEngine(t, Rule{
		ID:         "no-tier",
		EventType:  "customer.created",
		Conditions: []Condition{{Fact: "customer.tier", Operator: OperatorNotEqual, Value: "gold"}},
		Actions:    []Action{{Type: "assign_tier"}},
		IsActive:   true,
	})

	assert.Len(t, e.Evaluate("customer.created", map[string]any{}), 1)
}

func TestEvaluate_UnknownOperatorDoesNotFire(t *testing.T) {
	e := newTestEngine(t, Rule{
		ID:         "bad-op",
		EventType:  "sale.completed",
		Conditions: []Condition{{Fact: "sale.total", Operator: "between", Value: 1}},
		Actions:    []Action{{Type: "x"}},
		IsActive:   true,
	})

	assert.Empty(t, e.Evaluate("sale.completed", map[string]any{"sale": map[string]any{"total": 1}}))
}

func TestEvaluate_OrderedUnionOfActions(t *testing.T) {
	e := newTestEngine(t,
		Rule{ID: "first", EventType: "sale.completed", IsActive: true,
			Actions: []Action{{Type: "a1"}, {Type: "a2"}}},
		Rule{ID: "second", EventType: "sale.completed", IsActive: true,
			Actions: []Action{{Type: "b1"}}},
	)

	actions := e.Evaluate("sale.completed", nil)
	require.Len(t, actions, 3)
	assert.Equal(t, []string{"a1", "a2", "b1"}, []string{actions[0].Type, actions[1].Type, actions[2].Type})
}

func TestEvaluate_IsPure(t *testing.T) {
	e := newTestEngine(t, cartDiscountRule())
	input := map[string]any{"cart": map[string]any{"total": 700}}

	before := e.GetRules()
	first := e.Evaluate("cart.total_change", input)
	first[0].Params["percentage"] = 99
	second := e.Evaluate("cart.total_change", input)

	assert.Equal(t, 10, second[0].Params["percentage"])
	assert.Equal(t, before, e.GetRules())
	assert.Equal(t, map[string]any{"cart": map[string]any{"total": 700}}, input)
}

func TestCreateOrUpdateRule_UpsertsInPlace(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t,
		Rule{ID: "a", EventType: "e", IsActive: true},
		Rule{ID: "b", EventType: "e", IsActive: true},
	)

	_, err := e.CreateOrUpdateRule(ctx, Rule{ID: "a", Name: "renamed", EventType: "e"})
	require.NoError(t, err)

	created, err := e.CreateOrUpdateRule(ctx, Rule{Name: "new", EventType: "e"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	got := e.GetRules()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "renamed", got[0].Name)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, created.ID, got[2].ID)
}

func TestDeleteRule(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, cartDiscountRule())

	removed, err := e.DeleteRule(ctx, "cart-10")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = e.DeleteRule(ctx, "cart-10")
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Empty(t, e.GetRules())
	assert.Empty(t, e.Evaluate("cart.total_change", map[string]any{"cart": map[string]any{"total": 900}}))
}

type failingStore struct{ *MemoryStore }

func (failingStore) Upsert(ctx context.Context, rule Rule) error {
	return errors.New("database unavailable")
}

func TestCreateOrUpdateRule_StoreFailureKeepsSnapshot(t *testing.T) {
	e := NewEngine(failingStore{NewMemoryStore()}, zap.NewNop())

	_, err := e.CreateOrUpdateRule(context.Background(), cartDiscountRule())
	require.Error(t, err)
	assert.Empty(t, e.GetRules())
}

func TestEngine_ConcurrentEvaluateAndWrite(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, cartDiscountRule())
	input := map[string]any{"cart": map[string]any{"total": 800}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = e.CreateOrUpdateRule(ctx, Rule{
					ID:        fmt.Sprintf("r-%d-%d", i, j%5),
					EventType: "cart.total_change",
					IsActive:  j%2 == 0,
					Actions:   []Action{{Type: "noop"}},
				})
				_, _ = e.DeleteRule(ctx, fmt.Sprintf("r-%d-%d", i, (j+2)%5))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				actions := e.Evaluate("cart.total_change", input)
				if assert.NotEmpty(t, actions) {
					assert.Equal(t, "apply_discount_percentage", actions[0].Type)
				}
			}
		}()
	}
	wg.Wait()
}

func TestRefresh_LoadsFromStore(t *testing.T) {
	store := NewMemoryStore()
	e := NewEngine(store, zap.NewNop())
	require.NoError(t, store.Upsert(context.Background(), cartDiscountRule()))

	assert.Empty(t, e.GetRules())
	require.NoError(t, e.Refresh(context.Background()))

	r, ok := e.GetRule("cart-10")
	require.True(t, ok)
	assert.Equal(t, "cart.total_change", r.EventType)
}
