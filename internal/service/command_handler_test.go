package service_test

import (
	"errors"
	"testing"

	"github.com/boddenberg/account-actor-go/internal/domain"
	"github.com/boddenberg/account-actor-go/internal/service"
)

type unsupportedCommand struct{}

func (unsupportedCommand) CommandName() string { return "close" }

func activeState(balance int64) domain.AccountState {
	state := service.Apply(domain.AccountState{}, domain.Created{ID: "acc-1", CreatedAt: t0})
	if balance > 0 {
		state = service.Apply(state, domain.Deposited{ID: "acc-1", Amount: balance, NewBalance: balance})
	}
	return state
}

func TestHandleCommand_Create(t *testing.T) {
	evt, err := service.HandleCommand(domain.Create{ID: "  acc-9 "}, domain.AccountState{}, t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	created, ok := evt.(domain.Created)
	if !ok {
		t.Fatalf("expected Created, got %T", evt)
	}
	if created.ID != "acc-9" || !created.CreatedAt.Equal(t0) {
		t.Errorf("unexpected event %+v", created)
	}
}

func TestHandleCommand_CreateRequiresID(t *testing.T) {
	_, err := service.HandleCommand(domain.Create{ID: "   "}, domain.AccountState{}, t0)

	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if verr.Field != "account_id" {
		t.Errorf("expected field account_id, got %q", verr.Field)
	}
}

func TestHandleCommand_Deposit(t *testing.T) {
	evt, err := service.HandleCommand(domain.Deposit{Amount: 25}, activeState(100), t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := domain.Deposited{ID: "acc-1", Amount: 25, NewBalance: 125, TransactionAt: t0}
	if evt != domain.Event(want) {
		t.Errorf("expected %+v, got %+v", want, evt)
	}
}

func TestHandleCommand_Withdraw(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		amount  int64
		want    domain.Event
	}{
		{"partial", 100, 30, domain.Withdrawn{ID: "acc-1", Amount: 30, NewBalance: 70, TransactionAt: t0}},
		{"exact balance", 100, 100, domain.Withdrawn{ID: "acc-1", Amount: 100, NewBalance: 0, TransactionAt: t0}},
		{"one over", 100, 101, domain.PaymentDeclined{ID: "acc-1", Amount: 101, TransactionAt: t0}},
		{"empty account", 0, 1, domain.PaymentDeclined{ID: "acc-1", Amount: 1, TransactionAt: t0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := activeState(tt.balance)
			evt, err := service.HandleCommand(domain.Withdraw{Amount: tt.amount}, state, t0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if evt != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, evt)
			}
			if state.Balance != tt.balance {
				t.Errorf("handler mutated state: balance %d", state.Balance)
			}
		})
	}
}

func TestHandleCommand_RejectsNonPositiveAmounts(t *testing.T) {
	for _, cmd := range []domain.Command{
		domain.Deposit{Amount: 0},
		domain.Deposit{Amount: -5},
		domain.Withdraw{Amount: 0},
		domain.Withdraw{Amount: -1},
	} {
		_, err := service.HandleCommand(cmd, activeState(100), t0)
		var verr *domain.ErrValidation
		if !errors.As(err, &verr) {
			t.Errorf("%#v: expected ErrValidation, got %v", cmd, err)
		}
	}
}

func TestHandleCommand_UnknownCommand(t *testing.T) {
	_, err := service.HandleCommand(unsupportedCommand{}, activeState(0), t0)

	var uerr *domain.ErrUnknownCommand
	if !errors.As(err, &uerr) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}
