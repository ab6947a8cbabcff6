package ledger

import (
	"TxLedger/internal/event"
	fpmath "TxLedger/internal/math"

	"github.com/shopspring/decimal"
)

// Account is a client's balance sheet. Total always equals Available + Held;
// the three fields are only ever changed together through MutateBalance.
type Account struct {
	Client    event.ClientID
	Available decimal.Decimal
	Held      decimal.Decimal
	Total     decimal.Decimal
	Locked    bool
}

// NewAccount returns a zeroed, unlocked account for client.
func NewAccount(client event.ClientID) Account {
	return Account{
		Client:    client,
		Available: decimal.Zero,
		Held:      decimal.Zero,
		Total:     decimal.Zero,
	}
}

// BalanceFields exposes the balance triple to fpmath.MutateBalance.
func (a *Account) BalanceFields() (available, held, total *decimal.Decimal) {
	return &a.Available, &a.Held, &a.Total
}

// MutateBalance applies matched deltas and truncates to store precision.
func (a *Account) MutateBalance(availableDelta, heldDelta, totalDelta decimal.Decimal) {
	fpmath.MutateBalance(a, availableDelta, heldDelta, totalDelta)
}

// TransactionRecord remembers an applied deposit (positive amount) or
// withdrawal (negative amount) so later dispute events can reference it.
type TransactionRecord struct {
	Client   event.ClientID
	Amount   decimal.Decimal
	Disputed bool
}

// IsDeposit reports whether the record can take part in a dispute.
func (r TransactionRecord) IsDeposit() bool {
	return r.Amount.IsPositive()
}
