// Package memory provides an in-process event store, used for local runs
// and tests.
package memory

import (
	"context"
	"sync"

	"github.com/boddenberg/account-actor-go/internal/domain"
)

// Store keeps every account's events in append order.
type Store struct {
	mu     sync.RWMutex
	events map[string][]domain.Event
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{events: make(map[string][]domain.Event)}
}

// Append adds events to the end of the account's log.
func (s *Store) Append(ctx context.Context, accountID string, events []domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if accountID == "" {
		return &domain.ErrValidation{Field: "account_id", Message: "is required"}
	}
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[accountID] = append(s.events[accountID], events...)
	return nil
}

// Load returns a copy of the account's events, oldest first.
func (s *Store) Load(ctx context.Context, accountID string) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.events[accountID]
	out := make([]domain.Event, len(stored))
	copy(out, stored)
	return out, nil
}
