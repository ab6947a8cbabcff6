package query

import (
	"TxLedger/internal/ledger"
	"time"

	"github.com/google/uuid"
)

// AccountResponse is the JSON view of one client account.
type AccountResponse struct {
	Client    uint16 `json:"client"`
	Available string `json:"available"`
	Held      string `json:"held"`
	Total     string `json:"total"`
	Locked    bool   `json:"locked"`
}

// NewAccountResponse renders balances with the same formatting as the CSV output.
func NewAccountResponse(a ledger.Account) AccountResponse {
	return AccountResponse{
		Client:    uint16(a.Client),
		Available: a.Available.String(),
		Held:      a.Held.String(),
		Total:     a.Total.String(),
		Locked:    a.Locked,
	}
}

// AccountsResponse lists accounts ordered by client.
type AccountsResponse struct {
	RunID    string            `json:"run_id,omitempty"`
	Accounts []AccountResponse `json:"accounts"`
	// Live is true when balances come from a run still in progress.
	Live bool `json:"live"`
}

// RunSummary describes one run persisted by the Postgres sink.
type RunSummary struct {
	RunID     uuid.UUID `json:"run_id"`
	Accounts  int       `json:"accounts"`
	Locked    int       `json:"locked"`
	WrittenAt time.Time `json:"written_at"`
}

// IntegrityReport is the result of re-checking a persisted run.
type IntegrityReport struct {
	RunID      uuid.UUID   `json:"run_id"`
	Checked    int         `json:"checked"`
	IsHealthy  bool        `json:"is_healthy"`
	Violations []Violation `json:"violations,omitempty"`
}

// Violation is an account whose stored balances break an invariant.
type Violation struct {
	Client uint16 `json:"client"`
	Detail string `json:"detail"`
}
