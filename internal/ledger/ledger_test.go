package ledger_test

import (
	"TxLedger/internal/event"
	"TxLedger/internal/ledger"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
)

// ============================================================================
// Test: Account
// ============================================================================

func TestNewAccount_Zeroed(t *testing.T) {
	a := ledger.NewAccount(7)

	if a.Client != 7 {
		t.Errorf("client: got %d, want 7", a.Client)
	}
	if !a.Available.IsZero() || !a.Held.IsZero() || !a.Total.IsZero() {
		t.Errorf("new account should be zeroed, got %+v", a)
	}
	if a.Locked {
		t.Error("new account should be unlocked")
	}
}

func TestAccount_MutateBalanceKeepsIdentity(t *testing.T) {
	a := ledger.NewAccount(1)
	hundred := decimal.NewFromInt(100)

	a.MutateBalance(hundred, decimal.Zero, hundred)
	a.MutateBalance(hundred.Neg(), hundred, decimal.Zero)

	if !a.Available.IsZero() {
		t.Errorf("available: got %s, want 0", a.Available)
	}
	if !a.Held.Equal(hundred) {
		t.Errorf("held: got %s, want 100", a.Held)
	}
	if err := ledger.ValidateAccount(a); err != nil {
		t.Errorf("unexpected invariant violation: %v", err)
	}
}

func TestValidateAccount_DetectsBrokenIdentity(t *testing.T) {
	a := ledger.NewAccount(3)
	a.Available = decimal.NewFromInt(10)

	if err := ledger.ValidateAccount(a); err == nil {
		t.Fatal("expected invariant violation for total != available + held")
	}
}

func TestTransactionRecord_IsDeposit(t *testing.T) {
	if !(ledger.TransactionRecord{Amount: decimal.NewFromInt(5)}).IsDeposit() {
		t.Error("positive amount should be a deposit")
	}
	if (ledger.TransactionRecord{Amount: decimal.NewFromInt(-5)}).IsDeposit() {
		t.Error("negative amount should not be a deposit")
	}
}

// ============================================================================
// Test: AccountStore
// ============================================================================

func TestAccountStore_GetOrCreateReturnsSameHandle(t *testing.T) {
	s := ledger.NewAccountStore()

	first := s.GetOrCreate(9)
	second := s.GetOrCreate(9)

	if first != second {
		t.Fatal("GetOrCreate should return the same handle for the same client")
	}
	if s.Len() != 1 {
		t.Errorf("len: got %d, want 1", s.Len())
	}
}

func TestAccountStore_PeekDoesNotCreate(t *testing.T) {
	s := ledger.NewAccountStore()

	if _, ok := s.Peek(4); ok {
		t.Fatal("peek on empty store should report missing")
	}
	if s.Len() != 0 {
		t.Errorf("peek must not create accounts, len=%d", s.Len())
	}
}

func TestAccountStore_SnapshotOrderedByClient(t *testing.T) {
	s := ledger.NewAccountStore()
	for _, c := range []event.ClientID{300, 2, 65535, 70, 1} {
		s.GetOrCreate(c)
	}

	snap := s.Snapshot()
	want := []event.ClientID{1, 2, 70, 300, 65535}
	if len(snap) != len(want) {
		t.Fatalf("snapshot len: got %d, want %d", len(snap), len(want))
	}
	for i, c := range want {
		if snap[i].Client != c {
			t.Errorf("snapshot[%d]: got client %d, want %d", i, snap[i].Client, c)
		}
	}
}

func TestAccountStore_ConcurrentGetOrCreateSingleEntry(t *testing.T) {
	s := ledger.NewAccountStore()
	refs := make([]*ledger.Ref[ledger.Account], 64)

	var wg sync.WaitGroup
	for i := range refs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			refs[i] = s.GetOrCreate(42)
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(refs); i++ {
		if refs[i] != refs[0] {
			t.Fatalf("goroutine %d got a different handle", i)
		}
	}
}

func TestAccountStore_ConcurrentUpdatesAreAtomic(t *testing.T) {
	s := ledger.NewAccountStore()
	ref := s.GetOrCreate(1)
	one := decimal.NewFromInt(1)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref.Update(func(a *ledger.Account) {
				a.MutateBalance(one, decimal.Zero, one)
			})
		}()
	}
	wg.Wait()

	a, _ := s.Peek(1)
	if !a.Total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("total: got %s, want 100", a.Total)
	}
}

// ============================================================================
// Test: TransactionStore
// ============================================================================

func TestTransactionStore_InsertIfAbsent(t *testing.T) {
	s := ledger.NewTransactionStore()

	if !s.InsertIfAbsent(100, 1, decimal.NewFromInt(100)) {
		t.Fatal("first insert should succeed")
	}
	if s.InsertIfAbsent(100, 2, decimal.NewFromInt(200)) {
		t.Fatal("second insert with the same id should fail")
	}

	rec, ok := s.Peek(100)
	if !ok {
		t.Fatal("record should exist")
	}
	if rec.Client != 1 || !rec.Amount.Equal(decimal.NewFromInt(100)) || rec.Disputed {
		t.Errorf("record overwritten or malformed: %+v", rec)
	}
}

func TestTransactionStore_ConcurrentInsertSingleWinner(t *testing.T) {
	s := ledger.NewTransactionStore()
	var wins atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if s.InsertIfAbsent(7, event.ClientID(i), decimal.NewFromInt(int64(i+1))) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly one successful insert, got %d", wins.Load())
	}
	if s.Len() != 1 {
		t.Errorf("len: got %d, want 1", s.Len())
	}
}

func TestTransactionStore_UpdateDisputedFlag(t *testing.T) {
	s := ledger.NewTransactionStore()
	s.InsertIfAbsent(5, 1, decimal.NewFromInt(10))

	ref, ok := s.Get(5)
	if !ok {
		t.Fatal("record should exist")
	}
	ref.Update(func(r *ledger.TransactionRecord) { r.Disputed = true })

	rec, _ := s.Peek(5)
	if !rec.Disputed {
		t.Error("disputed flag should be set")
	}
}

func TestTransactionStore_GetMissing(t *testing.T) {
	s := ledger.NewTransactionStore()
	if _, ok := s.Get(1); ok {
		t.Error("get on empty store should report missing")
	}
}
