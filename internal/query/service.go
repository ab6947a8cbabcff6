package query

import (
	"TxLedger/internal/event"
	"TxLedger/internal/ledger"
	"TxLedger/internal/persistence"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a run or account has no stored rows.
var ErrNotFound = errors.New("not found")

// QueryService provides read-only access to balances written by the
// Postgres sink.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// ListRuns returns the most recent runs, newest first.
func (qs *QueryService) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := qs.db.QueryContext(ctx, `
		SELECT run_id, COUNT(*), COUNT(*) FILTER (WHERE locked), MAX(written_at)
		FROM ledger.account_balances
		GROUP BY run_id
		ORDER BY MAX(written_at) DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Accounts, &r.Locked, &r.WrittenAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns every account stored for runID.
func (qs *QueryService) GetRun(ctx context.Context, runID uuid.UUID) (*AccountsResponse, error) {
	accounts, err := persistence.LoadRun(ctx, qs.db, runID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}

	resp := &AccountsResponse{RunID: runID.String()}
	for _, a := range accounts {
		resp.Accounts = append(resp.Accounts, NewAccountResponse(a))
	}
	return resp, nil
}

// GetAccount returns one client's balances from runID.
func (qs *QueryService) GetAccount(ctx context.Context, runID uuid.UUID, client event.ClientID) (*AccountResponse, error) {
	a := ledger.Account{Client: client}
	err := qs.db.QueryRowContext(ctx, `
		SELECT available, held, total, locked
		FROM ledger.account_balances
		WHERE run_id = $1 AND client = $2
	`, runID, int(client)).Scan(&a.Available, &a.Held, &a.Total, &a.Locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s client %d: %w", runID, client, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	resp := NewAccountResponse(a)
	return &resp, nil
}

// VerifyIntegrity re-checks the balance invariants of a stored run.
func (qs *QueryService) VerifyIntegrity(ctx context.Context, runID uuid.UUID) (*IntegrityReport, error) {
	accounts, err := persistence.LoadRun(ctx, qs.db, runID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return CheckAccounts(runID, accounts), nil
}

// CheckAccounts validates each account and collects the failures.
func CheckAccounts(runID uuid.UUID, accounts []ledger.Account) *IntegrityReport {
	report := &IntegrityReport{RunID: runID, Checked: len(accounts)}
	for _, a := range accounts {
		if err := ledger.ValidateAccount(a); err != nil {
			report.Violations = append(report.Violations, Violation{
				Client: uint16(a.Client),
				Detail: err.Error(),
			})
		}
	}
	report.IsHealthy = len(report.Violations) == 0
	return report
}
