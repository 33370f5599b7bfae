package cache

import (
	"sync"

	"github.com/boddenberg/account-actor-go/internal/domain"
	"github.com/boddenberg/account-actor-go/internal/infra/observability"
	"github.com/boddenberg/account-actor-go/internal/port"

	"go.uber.org/zap"
)

// Registry is the in-process directory of live account actors.
// It implements port.Registry.
type Registry struct {
	mu      sync.RWMutex
	actors  map[string]port.Mailbox
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(metrics *observability.Metrics, logger *zap.Logger) *Registry {
	return &Registry{
		actors:  make(map[string]port.Mailbox),
		metrics: metrics,
		logger:  logger,
	}
}

// Register links accountID to ref, replacing any previous entry.
func (r *Registry) Register(accountID string, ref port.Mailbox) error {
	if accountID == "" {
		return &domain.ErrValidation{Field: "account_id", Message: "is required"}
	}
	if ref == nil {
		return &domain.ErrValidation{Field: "ref", Message: "is required"}
	}

	r.mu.Lock()
	r.actors[accountID] = ref
	n := len(r.actors)
	r.mu.Unlock()

	r.metrics.SetLiveActors(n)
	r.logger.Debug("registry: account registered", zap.String("account_id", accountID))
	return nil
}

// Deregister removes accountID when it still points at ref.
// An entry owned by a newer actor is left untouched.
func (r *Registry) Deregister(accountID string, ref port.Mailbox) error {
	r.mu.Lock()
	current, ok := r.actors[accountID]
	if !ok || current != ref {
		r.mu.Unlock()
		return &domain.ErrNotFound{Resource: "registered account", ID: accountID}
	}
	delete(r.actors, accountID)
	n := len(r.actors)
	r.mu.Unlock()

	r.metrics.SetLiveActors(n)
	r.logger.Debug("registry: account deregistered", zap.String("account_id", accountID))
	return nil
}

// Lookup returns the actor registered for accountID.
func (r *Registry) Lookup(accountID string) (port.Mailbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, ok := r.actors[accountID]
	return ref, ok
}

// Snapshot returns a copy of the current registrations.
func (r *Registry) Snapshot() map[string]port.Mailbox {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]port.Mailbox, len(r.actors))
	for id, ref := range r.actors {
		out[id] = ref
	}
	return out
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actors)
}
