package domain

// Command is a request to attempt a change on an account.
// A command is translated into at most one Event.
type Command interface {
	CommandName() string
}

// Create establishes the account identity.
type Create struct {
	ID string `json:"account_id"`
}

// Deposit adds Amount minor units to the balance.
type Deposit struct {
	Amount int64 `json:"amount"`
}

// Withdraw removes Amount minor units when the balance allows it.
type Withdraw struct {
	Amount int64 `json:"amount"`
}

func (Create) CommandName() string   { return "create" }
func (Deposit) CommandName() string  { return "deposit" }
func (Withdraw) CommandName() string { return "withdraw" }
