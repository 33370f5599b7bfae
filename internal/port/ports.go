// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the account actors
// from the registry and persistence implementations.
package port

import (
	"context"

	"github.com/boddenberg/account-actor-go/internal/domain"
)

// Mailbox accepts messages for one account actor. Delivery is
// fire-and-forget: the only error is a failure to hand the message over.
type Mailbox interface {
	Tell(ctx context.Context, msg any) error
}

// Registry maps live account identifiers to their running actor.
type Registry interface {
	Register(accountID string, ref Mailbox) error
	Deregister(accountID string, ref Mailbox) error
	Lookup(accountID string) (Mailbox, bool)
	Snapshot() map[string]Mailbox
}

// EventSaver persists an ordered (oldest-first) batch of events.
type EventSaver func(ctx context.Context, accountID string, events []domain.Event) error

// EventStore is the durable, append-only event log.
type EventStore interface {
	Append(ctx context.Context, accountID string, events []domain.Event) error
	Load(ctx context.Context, accountID string) ([]domain.Event, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
