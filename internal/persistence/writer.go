package persistence

import (
	"TxLedger/internal/event"
	"TxLedger/internal/ledger"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// DefaultBatchSize is the number of accounts per multi-row INSERT.
const DefaultBatchSize = 500

// AccountWriter stores a run's final balances in ledger.account_balances.
// All rows of one run are written in a single transaction, so a run is
// either fully visible or absent.
type AccountWriter struct {
	db        *sql.DB
	runID     uuid.UUID
	batchSize int
}

func NewAccountWriter(db *sql.DB, runID uuid.UUID, batchSize int) *AccountWriter {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &AccountWriter{
		db:        db,
		runID:     runID,
		batchSize: batchSize,
	}
}

func (w *AccountWriter) Name() string { return "postgres" }

func (w *AccountWriter) Write(ctx context.Context, accounts []ledger.Account) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(accounts); start += w.batchSize {
		end := start + w.batchSize
		if end > len(accounts) {
			end = len(accounts)
		}
		if err := w.writeBatch(ctx, tx, accounts[start:end]); err != nil {
			return fmt.Errorf("write accounts %d-%d: %w", start, end, err)
		}
	}

	return tx.Commit()
}

// writeBatch inserts accounts using a multi-row INSERT.
func (w *AccountWriter) writeBatch(ctx context.Context, tx *sql.Tx, accounts []ledger.Account) error {
	const cols = 6

	values := make([]string, 0, len(accounts))
	args := make([]interface{}, 0, len(accounts)*cols)

	for i, a := range accounts {
		base := i * cols
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args,
			w.runID, int(a.Client), a.Available, a.Held, a.Total, a.Locked,
		)
	}

	query := `INSERT INTO ledger.account_balances
		(run_id, client, available, held, total, locked)
		VALUES ` + strings.Join(values, ", ") +
		` ON CONFLICT (run_id, client) DO UPDATE SET
			available = EXCLUDED.available,
			held = EXCLUDED.held,
			total = EXCLUDED.total,
			locked = EXCLUDED.locked,
			written_at = NOW()`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LoadRun reads back the balances stored for runID, ordered by client.
func LoadRun(ctx context.Context, db *sql.DB, runID uuid.UUID) ([]ledger.Account, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT client, available, held, total, locked
		FROM ledger.account_balances
		WHERE run_id = $1
		ORDER BY client
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		var client int
		var a ledger.Account
		if err := rows.Scan(&client, &a.Available, &a.Held, &a.Total, &a.Locked); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		a.Client = event.ClientID(client)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}
