package rules

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/facts"
	"github.com/lalithlochan/crmflow/internal/metrics"
)

// Engine evaluates events against the rule set.
//
// Evaluate reads an immutable snapshot and never blocks on writers. Writes go
// through the store first and then publish a new snapshot, so a failed store
// write leaves the evaluated rule set unchanged.
type Engine struct {
	store  Store
	logger *zap.Logger

	writeMu  sync.Mutex
	snapshot atomic.Pointer[[]Rule]
}

// NewEngine creates an engine with an empty snapshot. Call Refresh to load
// the rules already held by store.
func NewEngine(store Store, logger *zap.Logger) *Engine {
	e := &Engine{store: store, logger: logger}
	e.snapshot.Store(&[]Rule{})
	return e
}

// Refresh reloads the snapshot from the store.
func (e *Engine) Refresh(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	list, err := e.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	e.snapshot.Store(&list)

	e.logger.Info("rules loaded", zap.Int("count", len(list)))
	return nil
}

// Evaluate returns, in registration order, the actions of every active rule
// for eventType whose conditions all hold against facts.
func (e *Engine) Evaluate(eventType string, f map[string]any) []Action {
	rules := *e.snapshot.Load()

	actions := []Action{}
	for i := range rules {
		rule := &rules[i]
		if !rule.IsActive || rule.EventType != eventType {
			continue
		}
		if !e.conditionsHold(rule, f) {
			continue
		}

		e.logger.Debug("rule fired",
			zap.String("rule_id", rule.ID),
			zap.String("rule_name", rule.Name),
			zap.String("event_type", eventType),
		)
		for _, a := range rule.Actions {
			actions = append(actions, a.Clone())
		}
	}

	metrics.RecordRuleEvaluation(eventType, len(actions))
	return actions
}

func (e *Engine) conditionsHold(rule *Rule, f map[string]any) bool {
	for i := range rule.Conditions {
		if !e.evaluateCondition(rule, &rule.Conditions[i], f) {
			return false
		}
	}
	return true
}

// evaluateCondition fails closed: a comparison that panics counts as false.
func (e *Engine) evaluateCondition(rule *Rule, cond *Condition, f map[string]any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("condition evaluation panicked",
				zap.String("rule_id", rule.ID),
				zap.String("fact", cond.Fact),
				zap.String("operator", string(cond.Operator)),
				zap.Any("panic", r),
			)
			ok = false
		}
	}()

	value, defined := facts.Resolve(f, cond.Fact)
	return compare(cond.Operator, value, defined, cond.Value)
}

// CreateOrUpdateRule upserts rule by id. A rule without id gets a new UUID.
func (e *Engine) CreateOrUpdateRule(ctx context.Context, rule Rule) (Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule = rule.Clone()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.store.Upsert(ctx, rule); err != nil {
		return Rule{}, fmt.Errorf("store rule %s: %w", rule.ID, err)
	}

	current := *e.snapshot.Load()
	next := make([]Rule, len(current), len(current)+1)
	copy(next, current)
	next = upsert(next, rule)
	e.snapshot.Store(&next)

	e.logger.Info("rule saved",
		zap.String("rule_id", rule.ID),
		zap.String("event_type", rule.EventType),
		zap.Bool("active", rule.IsActive),
	)
	return rule.Clone(), nil
}

// DeleteRule removes the rule with id and reports whether one was removed.
func (e *Engine) DeleteRule(ctx context.Context, id string) (bool, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	removed, err := e.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete rule %s: %w", id, err)
	}

	current := *e.snapshot.Load()
	next := make([]Rule, len(current))
	copy(next, current)
	next, inSnapshot := remove(next, id)
	if inSnapshot {
		e.snapshot.Store(&next)
	}

	if removed {
		e.logger.Info("rule deleted", zap.String("rule_id", id))
	}
	return removed, nil
}

// GetRules returns a copy of the current rule set.
func (e *Engine) GetRules() []Rule {
	current := *e.snapshot.Load()
	out := make([]Rule, len(current))
	for i, r := range current {
		out[i] = r.Clone()
	}
	return out
}

// GetRule returns a copy of the rule with id.
func (e *Engine) GetRule(id string) (Rule, bool) {
	for _, r := range *e.snapshot.Load() {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return Rule{}, false
}
