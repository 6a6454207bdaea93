package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/crmflow/internal/db"
)

// MemoryStore keeps in-app notifications in process memory. It serves
// development setups without a database.
type MemoryStore struct {
	mu    sync.RWMutex
	items []*db.Notification
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) CreateNotification(_ context.Context, n *db.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Priority == "" {
		n.Priority = db.PriorityNormal
	}
	n.CreatedAt = s.now()

	cp := *n
	s.items = append(s.items, &cp)
	return nil
}

// ListByRecipient returns the newest notifications of a recipient first.
func (s *MemoryStore) ListByRecipient(_ context.Context, recipientID string, unreadOnly bool, limit int) ([]*db.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*db.Notification
	for i := len(s.items) - 1; i >= 0; i-- {
		n := s.items[i]
		if n.RecipientID != recipientID || (unreadOnly && n.Read) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.items {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, db.ErrNotFound)
}
