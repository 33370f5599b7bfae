package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/account-actor-go/internal/domain"
)

// HandleCommand validates cmd against state and returns the event it
// produces. It never mutates state. A declined withdrawal is a successful
// outcome and yields PaymentDeclined.
func HandleCommand(cmd domain.Command, state domain.AccountState, now time.Time) (domain.Event, error) {
	switch c := cmd.(type) {
	case domain.Create:
		id := strings.TrimSpace(c.ID)
		if id == "" {
			return nil, &domain.ErrValidation{Field: "account_id", Message: "is required"}
		}
		return domain.Created{ID: id, CreatedAt: now}, nil

	case domain.Deposit:
		if c.Amount <= 0 {
			return nil, &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
		}
		return domain.Deposited{
			ID:            state.ID,
			Amount:        c.Amount,
			NewBalance:    state.Balance + c.Amount,
			TransactionAt: now,
		}, nil

	case domain.Withdraw:
		if c.Amount <= 0 {
			return nil, &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
		}
		tentative := state.Balance - c.Amount
		if tentative < 0 {
			return domain.PaymentDeclined{ID: state.ID, Amount: c.Amount, TransactionAt: now}, nil
		}
		return domain.Withdrawn{
			ID:            state.ID,
			Amount:        c.Amount,
			NewBalance:    tentative,
			TransactionAt: now,
		}, nil

	default:
		return nil, &domain.ErrUnknownCommand{Type: fmt.Sprintf("%T", cmd)}
	}
}
