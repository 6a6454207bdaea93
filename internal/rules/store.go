package rules

import (
	"context"
	"sync"
)

// Store persists rules in registration order.
type Store interface {
	List(ctx context.Context) ([]Rule, error)
	Upsert(ctx context.Context, rule Rule) error
	Delete(ctx context.Context, id string) (bool, error)
}

// MemoryStore keeps rules in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewMemoryStore creates a store seeded with the given rules.
func NewMemoryStore(seed ...Rule) *MemoryStore {
	s := &MemoryStore{}
	for _, r := range seed {
		s.rules = upsert(s.rules, r.Clone())
	}
	return s
}

func (s *MemoryStore) List(ctx context.Context) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Clone()
	}
	return out, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, rule Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules = upsert(s.rules, rule.Clone())
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed bool
	s.rules, removed = remove(s.rules, id)
	return removed, nil
}

// upsert replaces the rule with the same id in place or appends it.
func upsert(list []Rule, rule Rule) []Rule {
	for i := range list {
		if list[i].ID == rule.ID {
			list[i] = rule
			return list
		}
	}
	return append(list, rule)
}

func remove(list []Rule, id string) ([]Rule, bool) {
	for i := range list {
		if list[i].ID == id {
			return append(list[:i:i], list[i+1:]...), true
		}
	}
	return list, false
}
