package core_test

import (
	"TxLedger/internal/core"
	"TxLedger/internal/event"
	"TxLedger/internal/ledger"
	"TxLedger/internal/observability"
	"TxLedger/internal/testutil"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// --- Test helpers ---

func newTestEngine() (*core.Engine, *ledger.Store) {
	store := ledger.NewStore()
	return core.NewEngine(store, zerolog.Nop(), nil), store
}

func mustApply(t *testing.T, e *core.Engine, evt event.Transaction) {
	t.Helper()
	if err := e.Apply(evt); err != nil {
		t.Fatalf("Apply(%s) failed: %v", evt, err)
	}
}

func mustReject(t *testing.T, e *core.Engine, evt event.Transaction, want core.RejectReason) {
	t.Helper()
	err := e.Apply(evt)
	if err == nil {
		t.Fatalf("Apply(%s): expected rejection %s, got nil", evt, want)
	}
	if !errors.Is(err, core.ErrRejected) {
		t.Fatalf("Apply(%s): error %v does not wrap ErrRejected", evt, err)
	}
	if got := core.ReasonOf(err); got != want {
		t.Errorf("Apply(%s) reason: got %s, want %s", evt, got, want)
	}
}

func mustAccount(t *testing.T, store *ledger.Store, client event.ClientID) ledger.Account {
	t.Helper()
	acct, ok := store.Accounts.Peek(client)
	if !ok {
		t.Fatalf("account %d not found", client)
	}
	return acct
}

func dec(t *testing.T, s string) decimal.Decimal {
	return testutil.Dec(t, s)
}

// ============================================================================
// Test: Reference Scenarios
// ============================================================================

func TestDeposit_CreditsAccount(t *testing.T) {
	e, store := newTestEngine()

	mustApply(t, e, event.NewDeposit(1, 100, dec(t, "100")))

	testutil.AssertAccount(t, mustAccount(t, store, 1), "100", "0", "100", false)
}

func TestWithdrawal_InsufficientFunds_LeavesBalances(t *testing.T) {
	e, store := newTestEngine()

	mustApply(t, e, event.NewDeposit(1, 100, dec(t, "100")))
	mustReject(t, e, event.NewWithdrawal(1, 101, dec(t, "150")), core.ReasonInsufficientFunds)

	testutil.AssertAccount(t, mustAccount(t, store, 1), "100", "0", "100", false)
	if _, ok := store.Transactions.Peek(101); ok {
		t.Error("rejected withdrawal must not be recorded")
	}
}

func TestDispute_MovesFundsToHeld(t *testing.T) {
	e, store := newTestEngine()

	mustApply(t, e, event.NewDeposit(1, 100, dec(t, "100")))
	mustApply(t, e, event.NewDispute(1, 100))

	testutil.AssertAccount(t, mustAccount(t, store, 1), "0", "100", "100", false)
	rec, _ := store.Transactions.Peek(100)
	if !rec.Disputed {
		t.Error("record should be disputed")
	}
}

func TestChargeback_LocksAccount(t *testing.T) {
	e, store := newTestEngine()

	mustApply(t, e, event.NewDeposit(1, 100, dec(t, "100")))
	mustApply(t, e, event.NewDispute(1, 100))
	mustApply(t, e, event.NewChargeback(1, 100))

	testutil.AssertAccount(t, mustAccount(t, store, 1), "0", "0", "0", true)

	mustReject(t, e, event.NewDeposit(1, 101, dec(t, "50")), core.ReasonAccountLocked)
	testutil.AssertAccount(t, mustAccount(t, store, 1), "0", "0", "0", true)
	if _, ok := store.Transactions.Peek(101); ok {
		t.Error("deposit on locked account must not be recorded")
	}
}

func TestDuplicateDeposit_Ignored(t *testing.T) {
	e, store := newTestEngine()

	mustApply(t, e, event.NewDeposit(1, 100, dec(t, "100")))
	mustReject(t, e, event.NewDeposit(1, 100, dec(t, "200")), core.ReasonDuplicateTransaction)

	testutil.AssertAccount(t, mustAccount(t, store, 1), "100", "0", "100", false)
	rec, _ := store.Transactions.Peek(100)
	if !rec.Amount.Equal(dec(t, "100")) {
		t.Errorf("record amount: got %s, want 100", rec.Amount)
	}
}

func TestWithdrawal_NoPriorAccount_CreatesZeroedAccount(t *testing.T) {
	e, store := newTestEngine()

	mustReject(t, e, event.NewWithdrawal(1, 100, dec(t, "50")), core.ReasonInsufficientFunds)

	testutil.AssertAccount(t, mustAccount(t, store, 1), "0", "0", "0", false)
	if store.Transactions.Len() != 0 {
		t.Errorf("transactions: got %d, want 0", store.Transactions.Len())
	}
}

// ============================================================================
// Test: Amount Validation
// ============================================================================

func TestInvalidAmount_NeverCreatesAccount(t *testing.T) {
	tests := []struct {
		name string
		evt  event.Transaction
	}{
		{"negative deposit", event.NewDeposit(1, 1, decimal.RequireFromString("-5"))},
		{"zero deposit", event.NewDeposit(1, 2, decimal.Zero)},
		{"sub-precision deposit", event.NewDeposit(1, 3, decimal.RequireFromString("0.00009"))},
		{"missing amount", event.Transaction{Type: event.EventTypeDeposit, Client: 1, Tx: 4}},
		{"negative withdrawal", event.NewWithdrawal(1, 5, decimal.RequireFromString("-1"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, store := newTestEngine()
			mustReject(t, e, tt.evt, core.ReasonInvalidAmount)
			if store.Accounts.Len() != 0 {
				t.Errorf("accounts: got %d, want 0", store.Accounts.Len())
			}
			if store.Transactions.Len() != 0 {
				t.Errorf("transactions: got %d, want 0", store.Transactions.Len())
			}
		})
	}
}

func TestDeposit_TruncatesAmount(t *testing.T) {
	e, store := newTestEngine()

	mustApply(t, e, event.NewDeposit(1, 1, dec(t, "1.23456789")))
	mustApply(t, e, event.NewDeposit(1, 2, dec(t, "0.00019")))

	testutil.AssertAccount(t, mustAccount(t, store, 1), "1.2346", "0", "1.2346", false)
	rec, _ := store.Transactions.Peek(1)
	if rec.Amount.String() != "1.2345" {
		t.Errorf("recorded amount: got %s, want 1.2345", rec.Amount)
	}
}

func TestDeposit_SubPrecisionAmountDoesNotReserveTxID(t *testing.T) {
	e, store := newTestEngine()

	mustReject(t, e, event.NewDeposit(1, 5, dec(t, "0.00001")), core.ReasonInvalidAmount)
	if _, ok := store.Transactions.Peek(5); ok {
		t.Fatal("tx 5 should not be recorded after an invalid amount")
	}

	// The id is still free, so a later deposit with it is applied.
	mustApply(t, e, event.NewDeposit(1, 5, dec(t, "1")))
	testutil.AssertAccount(t, mustAccount(t, store, 1), "1", "0", "1", false)
}

func TestWithdrawal_ExactBalance(t *testing.T) {
	e, store := newTestEngine()

	mustApply(t, e, event.NewDeposit(2, 1, dec(t, "10.5")))
	mustApply(t, e, event.NewWithdrawal(2, 2, dec(t, "10.5")))

	testutil.AssertAccount(t, mustAccount(t, store, 2), "0", "0", "0", false)
	rec, _ := store.Transactions.Peek(2)
	if !rec.Amount.Equal(dec(t, "-10.5")) {
		t.Errorf("withdrawal record: got %s, want -10.5", rec.Amount)
	}
}

func TestWithdrawal_DuplicateID(t *testing.T) {
	e, store := newTestEngine()

	mustApply(t, e, event.NewDeposit(1, 1, dec(t, "10")))
	mustReject(t, e, event.NewWithdrawal(1, 1, dec(t, "5")), core.ReasonDuplicateTransaction)

	testutil.AssertAccount(t, mustAccount(t, store, 1), "10", "0", "10", false)
}

// ============================================================================
// Test: Dispute Lifecycle
// ============================================================================

func TestResolve_ReleasesHeldFunds(t *testing.T) {
	e, store := newTestEngine()

	mustApply(t, e, event.NewDeposit(1, 100, dec(t, "40")))
	mustApply(t, e, event.NewDispute(1, 100))
	mustApply(t, e, event.NewResolve(1, 100))

	testutil.AssertAccount(t, mustAccount(t, store, 1), "40", "0", "40", false)

	// A resolved deposit can be disputed again.
	mustApply(t, e, event.NewDispute(1, 100))
	testutil.AssertAccount(t, mustAccount(t, store, 1), "0", "40", "40", false)
}

func TestDispute_Rejections(t *testing.T) {
	e, store := newTestEngine()

	mustApply(t, e, event.NewDeposit(1, 100, dec(t, "10")))
	mustApply(t, e, event.NewDeposit(2, 200, dec(t, "10")))
	mustApply(t, e, event.NewWithdrawal(1, 101, dec(t, "3")))

	mustReject(t, e, event.NewDispute(1, 999), core.ReasonTransactionNotFound)
	mustReject(t, e, event.NewDispute(1, 200), core.ReasonClientMismatch)
	mustReject(t, e, event.NewDispute(1, 101), core.ReasonNotADeposit)
	mustReject(t, e, event.NewResolve(1, 100), core.ReasonNotDisputed)
	mustReject(t, e, event.NewChargeback(1, 100), core.ReasonNotDisputed)

	mustApply(t, e, event.NewDispute(1, 100))
	mustReject(t, e, event.NewDispute(1, 100), core.ReasonAlreadyDisputed)

	testutil.AssertAccount(t, mustAccount(t, store, 1), "-3", "10", "7", false)
	testutil.AssertAccount(t, mustAccount(t, store, 2), "10", "0", "10", false)
}

func TestResolveAndChargeback_Rejections(t *testing.T) {
	tests := []struct {
		name string
		evt  event.Transaction
		want core.RejectReason
	}{
		{"resolve unknown tx", event.NewResolve(1, 999), core.ReasonTransactionNotFound},
		{"chargeback unknown tx", event.NewChargeback(1, 999), core.ReasonTransactionNotFound},
		{"resolve by other client", event.NewResolve(2, 100), core.ReasonClientMismatch},
		{"chargeback by other client", event.NewChargeback(2, 100), core.ReasonClientMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, store := newTestEngine()

			mustApply(t, e, event.NewDeposit(1, 100, dec(t, "10")))
			mustApply(t, e, event.NewDeposit(2, 200, dec(t, "4")))
			mustApply(t, e, event.NewDispute(1, 100))

			mustReject(t, e, tt.evt, tt.want)

			testutil.AssertAccount(t, mustAccount(t, store, 1), "0", "10", "10", false)
			testutil.AssertAccount(t, mustAccount(t, store, 2), "4", "0", "4", false)
			rec, ok := store.Transactions.Peek(100)
			if !ok || !rec.Disputed {
				t.Errorf("tx 100 disputed: got %v (found %v), want true", rec.Disputed, ok)
			}

			// The owner can still settle the dispute afterwards.
			mustApply(t, e, event.NewChargeback(1, 100))
			testutil.AssertAccount(t, mustAccount(t, store, 1), "0", "0", "0", true)
		})
	}
}

func TestDispute_CanDriveAvailableNegative(t *testing.T) {
	e, store := newTestEngine()

	mustApply(t, e, event.NewDeposit(1, 1, dec(t, "100")))
	mustApply(t, e, event.NewWithdrawal(1, 2, dec(t, "80")))
	mustApply(t, e, event.NewDispute(1, 1))

	testutil.AssertAccount(t, mustAccount(t, store, 1), "-80", "100", "20", false)
}

func TestDisputeLifecycle_AllowedOnLockedAccount(t *testing.T) {
	e, store := newTestEngine()

	mustApply(t, e, event.NewDeposit(1, 1, dec(t, "10")))
	mustApply(t, e, event.NewDeposit(1, 2, dec(t, "5")))
	mustApply(t, e, event.NewDispute(1, 1))
	mustApply(t, e, event.NewChargeback(1, 1))

	mustReject(t, e, event.NewWithdrawal(1, 3, dec(t, "1")), core.ReasonAccountLocked)
	mustApply(t, e, event.NewDispute(1, 2))
	mustApply(t, e, event.NewResolve(1, 2))

	testutil.AssertAccount(t, mustAccount(t, store, 1), "5", "0", "5", true)
}

func TestChargeback_OnlyOnce(t *testing.T) {
	e, store := newTestEngine()

	mustApply(t, e, event.NewDeposit(1, 1, dec(t, "10")))
	mustApply(t, e, event.NewDispute(1, 1))
	mustApply(t, e, event.NewChargeback(1, 1))
	mustReject(t, e, event.NewChargeback(1, 1), core.ReasonNotDisputed)

	testutil.AssertAccount(t, mustAccount(t, store, 1), "0", "0", "0", true)
}

func TestDispute_UnknownClientCreatesAccount(t *testing.T) {
	e, store := newTestEngine()

	mustReject(t, e, event.NewDispute(9, 1), core.ReasonTransactionNotFound)

	testutil.AssertAccount(t, mustAccount(t, store, 9), "0", "0", "0", false)
}

func TestApply_UnknownType(t *testing.T) {
	e, _ := newTestEngine()
	mustReject(t, e, event.Transaction{Client: 1, Tx: 1}, core.ReasonUnsupportedType)
}

// ============================================================================
// Test: Concurrency
// ============================================================================

func TestApply_ClientsInParallel(t *testing.T) {
	e, store := newTestEngine()

	const clients = 32
	const perClient = 200

	var wg sync.WaitGroup
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(client event.ClientID) {
			defer wg.Done()
			base := event.TxID(uint32(client) * perClient)
			for i := 0; i < perClient; i++ {
				tx := base + event.TxID(i)
				if err := e.Apply(event.NewDeposit(client, tx, decimal.RequireFromString("1.0001"))); err != nil {
					t.Errorf("deposit %d: %v", tx, err)
				}
				if i%4 == 3 {
					e.Apply(event.NewDispute(client, tx))
				}
			}
		}(event.ClientID(c))
	}
	wg.Wait()

	accounts := store.Accounts.Snapshot()
	if len(accounts) != clients {
		t.Fatalf("accounts: got %d, want %d", len(accounts), clients)
	}
	for _, a := range accounts {
		testutil.AssertAccount(t, a, "150.015", "50.005", "200.02", false)
	}
}

// ============================================================================
// Test: Metrics and Logging
// ============================================================================

func TestApply_RecordsMetrics(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	e := core.NewEngine(ledger.NewStore(), zerolog.New(io.Discard), m)

	e.Apply(event.NewDeposit(1, 1, decimal.NewFromInt(5)))
	e.Apply(event.NewDeposit(1, 1, decimal.NewFromInt(5)))
	e.Apply(event.NewWithdrawal(1, 2, decimal.NewFromInt(50)))

	if got := promtest.ToFloat64(m.EventsApplied.WithLabelValues("deposit")); got != 1 {
		t.Errorf("applied deposits: got %v, want 1", got)
	}
	if got := promtest.ToFloat64(m.EventsRejected.WithLabelValues("deposit", "duplicate_transaction")); got != 1 {
		t.Errorf("duplicate rejections: got %v, want 1", got)
	}
	if got := promtest.ToFloat64(m.EventsRejected.WithLabelValues("withdrawal", "insufficient_funds")); got != 1 {
		t.Errorf("insufficient rejections: got %v, want 1", got)
	}
}

func TestRejection_ErrorMessage(t *testing.T) {
	e, _ := newTestEngine()
	err := e.Apply(event.NewWithdrawal(3, 7, decimal.NewFromInt(1)))

	var rej *core.Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("expected *core.Rejection, got %T", err)
	}
	want := "withdrawal(client=3, tx=7, amount=1) rejected: insufficient_funds"
	if rej.Error() != want {
		t.Errorf("message: got %q, want %q", rej.Error(), want)
	}
}
