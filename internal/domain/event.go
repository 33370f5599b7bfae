package domain

import "time"

// Event type names, also used as the persisted discriminator.
const (
	EventTypeCreated         = "account.created"
	EventTypeDeposited       = "account.deposited"
	EventTypeWithdrawn       = "account.withdrawn"
	EventTypePaymentDeclined = "account.payment_declined"
)

// Event is an immutable fact about an account.
// Implemented by Created, Deposited, Withdrawn and PaymentDeclined only.
type Event interface {
	EventType() string
	AccountID() string
	OccurredAt() time.Time
}

// ============================================================
// Variants
// ============================================================

// Created establishes the account identity.
type Created struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Deposited records funds added. NewBalance is computed when the event is
// created and is never re-derived.
type Deposited struct {
	ID            string    `json:"id"`
	Amount        int64     `json:"amount"`
	NewBalance    int64     `json:"new_balance"`
	TransactionAt time.Time `json:"transaction_at"`
}

// Withdrawn records funds removed.
type Withdrawn struct {
	ID            string    `json:"id"`
	Amount        int64     `json:"amount"`
	NewBalance    int64     `json:"new_balance"`
	TransactionAt time.Time `json:"transaction_at"`
}

// PaymentDeclined records a rejected withdrawal. It never changes the balance.
type PaymentDeclined struct {
	ID            string    `json:"id"`
	Amount        int64     `json:"amount"`
	TransactionAt time.Time `json:"transaction_at"`
}

func (Created) EventType() string           { return EventTypeCreated }
func (e Created) AccountID() string         { return e.ID }
func (e Created) OccurredAt() time.Time     { return e.CreatedAt }
func (Deposited) EventType() string         { return EventTypeDeposited }
func (e Deposited) AccountID() string       { return e.ID }
func (e Deposited) OccurredAt() time.Time   { return e.TransactionAt }
func (Withdrawn) EventType() string         { return EventTypeWithdrawn }
func (e Withdrawn) AccountID() string       { return e.ID }
func (e Withdrawn) OccurredAt() time.Time   { return e.TransactionAt }
func (PaymentDeclined) EventType() string   { return EventTypePaymentDeclined }
func (e PaymentDeclined) AccountID() string { return e.ID }
func (e PaymentDeclined) OccurredAt() time.Time {
	return e.TransactionAt
}
