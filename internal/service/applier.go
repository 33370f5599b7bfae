package service

import "github.com/boddenberg/account-actor-go/internal/domain"

// Apply is the account transition function. It is the only code that
// changes identity or balance, and it has no side effects.
func Apply(state domain.AccountState, evt domain.Event) domain.AccountState {
	switch e := evt.(type) {
	case domain.Created:
		state.ID = e.ID
		state.CreatedAt = e.CreatedAt
	case domain.Deposited:
		state.Balance += e.Amount
	case domain.Withdrawn:
		state.Balance -= e.Amount
	case domain.PaymentDeclined:
		// audit record only
	}
	return state
}

// ApplyNew applies a self-generated event and buffers it for persistence.
func ApplyNew(state domain.AccountState, evt domain.Event) domain.AccountState {
	return Apply(state, evt).WithPending(evt)
}

// ApplyMany folds events over a fresh state, oldest first. The result has
// an empty pending buffer.
func ApplyMany(events []domain.Event) domain.AccountState {
	var state domain.AccountState
	for _, evt := range events {
		state = Apply(state, evt)
	}
	return state
}
