package domain

import "time"

// ============================================================
// Account state
// ============================================================

// AccountState is the in-memory snapshot derived from events plus the
// buffer of events that were not persisted yet.
//
// pending is kept most-recent-first; Pending returns it oldest-first.
type AccountState struct {
	ID        string
	CreatedAt time.Time
	Balance   int64

	pending []Event
}

// Active reports whether a Created event has been applied.
func (s AccountState) Active() bool {
	return s.ID != ""
}

// Pending returns a copy of the unsaved events in chronological order.
func (s AccountState) Pending() []Event {
	out := make([]Event, len(s.pending))
	for i, e := range s.pending {
		out[len(s.pending)-1-i] = e
	}
	return out
}

// PendingCount returns the number of unsaved events.
func (s AccountState) PendingCount() int {
	return len(s.pending)
}

// WithPending returns a copy of s with e prepended to the unsaved buffer.
func (s AccountState) WithPending(e Event) AccountState {
	next := make([]Event, 0, len(s.pending)+1)
	next = append(next, e)
	next = append(next, s.pending...)
	s.pending = next
	return s
}

// WithoutPending returns a copy of s with an empty unsaved buffer.
// Identity and balance are retained.
func (s AccountState) WithoutPending() AccountState {
	s.pending = nil
	return s
}

// ============================================================
// Read model
// ============================================================

// AccountView is the persisted view of an account, rebuilt by replaying the
// stored events.
type AccountView struct {
	ID             string    `json:"account_id"`
	CreatedAt      time.Time `json:"created_at"`
	Balance        int64     `json:"balance"`
	BalanceDisplay string    `json:"balance_display"`
	EventCount     int       `json:"event_count"`
	Live           bool      `json:"live"`
}

// StoredEvent is an event as returned by the history endpoint.
type StoredEvent struct {
	Type       string    `json:"type"`
	AccountID  string    `json:"account_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       Event     `json:"data"`
}
