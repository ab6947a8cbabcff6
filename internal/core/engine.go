package core

import (
	"TxLedger/internal/event"
	"TxLedger/internal/ledger"
	fpmath "TxLedger/internal/math"
	"TxLedger/internal/observability"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Engine applies ledger events to the store.
//
// Apply is safe to call from many goroutines as long as events for the same
// client are never applied concurrently; the dispatcher guarantees that by
// giving every client its own sequential worker.
//
// Lock order: an account entry may be held while a transaction shard is
// touched (withdrawal/deposit insert), but a transaction entry is never held
// while an account entry is taken.
type Engine struct {
	store   *ledger.Store
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewEngine(store *ledger.Store, logger zerolog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// Store returns the backing store.
func (e *Engine) Store() *ledger.Store {
	return e.store
}

// Apply runs evt through the rules for its type. It returns nil when the
// ledger changed and a *Rejection when a rule declined the event.
func (e *Engine) Apply(evt event.Transaction) error {
	start := time.Now()
	eventType := evt.Type.String()

	var reason RejectReason
	switch evt.Type {
	case event.EventTypeDeposit:
		reason = e.deposit(evt)
	case event.EventTypeWithdrawal:
		reason = e.withdraw(evt)
	case event.EventTypeDispute:
		reason = e.dispute(evt)
	case event.EventTypeResolve:
		reason = e.resolve(evt)
	case event.EventTypeChargeback:
		reason = e.chargeback(evt)
	default:
		reason = ReasonUnsupportedType
	}

	if reason != ReasonNone {
		e.logger.Warn().
			Str("type", eventType).
			Uint16("client", uint16(evt.Client)).
			Uint32("tx", uint32(evt.Tx)).
			Str("reason", reason.String()).
			Msg("event rejected")
		if e.metrics != nil {
			e.metrics.EventsRejected.WithLabelValues(eventType, reason.String()).Inc()
		}
		return &Rejection{Reason: reason, Event: evt}
	}

	if e.metrics != nil {
		e.metrics.EventsApplied.WithLabelValues(eventType).Inc()
		e.metrics.ApplyDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}
	return nil
}

// amountOf returns the event amount brought down to store precision, or false
// when it is absent or not strictly positive.
func amountOf(evt event.Transaction) (decimal.Decimal, bool) {
	if !evt.Amount.Valid || !fpmath.IsPositive(evt.Amount.Decimal) {
		return decimal.Zero, false
	}
	return fpmath.Truncate(evt.Amount.Decimal), true
}

func (e *Engine) isLocked(client event.ClientID) bool {
	acct, ok := e.store.Accounts.Peek(client)
	return ok && acct.Locked
}

func (e *Engine) deposit(evt event.Transaction) RejectReason {
	amount, ok := amountOf(evt)
	if !ok {
		return ReasonInvalidAmount
	}
	if e.isLocked(evt.Client) {
		return ReasonAccountLocked
	}

	reason := ReasonNone
	e.store.Accounts.GetOrCreate(evt.Client).Update(func(a *ledger.Account) {
		if !e.store.Transactions.InsertIfAbsent(evt.Tx, evt.Client, amount) {
			reason = ReasonDuplicateTransaction
			return
		}
		a.MutateBalance(amount, decimal.Zero, amount)
		mustHold(*a)
	})
	return reason
}

func (e *Engine) withdraw(evt event.Transaction) RejectReason {
	amount, ok := amountOf(evt)
	if !ok {
		return ReasonInvalidAmount
	}
	if e.isLocked(evt.Client) {
		return ReasonAccountLocked
	}

	reason := ReasonNone
	e.store.Accounts.GetOrCreate(evt.Client).Update(func(a *ledger.Account) {
		if a.Available.LessThan(amount) {
			reason = ReasonInsufficientFunds
			return
		}
		if !e.store.Transactions.InsertIfAbsent(evt.Tx, evt.Client, amount.Neg()) {
			reason = ReasonDuplicateTransaction
			return
		}
		a.MutateBalance(amount.Neg(), decimal.Zero, amount.Neg())
		mustHold(*a)
	})
	return reason
}

// transition validates the referenced record and, when check passes, lets
// flip update its dispute flag. It returns the record amount on success.
// The record lock is released before the caller touches the account.
func (e *Engine) transition(
	evt event.Transaction,
	check func(r ledger.TransactionRecord) RejectReason,
	flip func(r *ledger.TransactionRecord),
) (decimal.Decimal, RejectReason) {
	ref, ok := e.store.Transactions.Get(evt.Tx)
	if !ok {
		return decimal.Zero, ReasonTransactionNotFound
	}

	var amount decimal.Decimal
	reason := ReasonNone
	ref.Update(func(r *ledger.TransactionRecord) {
		if r.Client != evt.Client {
			reason = ReasonClientMismatch
			return
		}
		if reason = check(*r); reason != ReasonNone {
			return
		}
		if !r.IsDeposit() {
			reason = ReasonNotADeposit
			return
		}
		flip(r)
		amount = r.Amount
	})
	return amount, reason
}

func requireUndisputed(r ledger.TransactionRecord) RejectReason {
	if r.Disputed {
		return ReasonAlreadyDisputed
	}
	return ReasonNone
}

func requireDisputed(r ledger.TransactionRecord) RejectReason {
	if !r.Disputed {
		return ReasonNotDisputed
	}
	return ReasonNone
}

func (e *Engine) dispute(evt event.Transaction) RejectReason {
	account := e.store.Accounts.GetOrCreate(evt.Client)

	amount, reason := e.transition(evt, requireUndisputed, func(r *ledger.TransactionRecord) {
		r.Disputed = true
	})
	if reason != ReasonNone {
		return reason
	}

	account.Update(func(a *ledger.Account) {
		a.MutateBalance(amount.Neg(), amount, decimal.Zero)
		mustHold(*a)
	})
	return ReasonNone
}

func (e *Engine) resolve(evt event.Transaction) RejectReason {
	account := e.store.Accounts.GetOrCreate(evt.Client)

	amount, reason := e.transition(evt, requireDisputed, func(r *ledger.TransactionRecord) {
		r.Disputed = false
	})
	if reason != ReasonNone {
		return reason
	}

	account.Update(func(a *ledger.Account) {
		a.MutateBalance(amount, amount.Neg(), decimal.Zero)
		mustHold(*a)
	})
	return ReasonNone
}

func (e *Engine) chargeback(evt event.Transaction) RejectReason {
	account := e.store.Accounts.GetOrCreate(evt.Client)

	amount, reason := e.transition(evt, requireDisputed, func(r *ledger.TransactionRecord) {
		r.Disputed = false
	})
	if reason != ReasonNone {
		return reason
	}

	account.Update(func(a *ledger.Account) {
		a.MutateBalance(decimal.Zero, amount.Neg(), amount.Neg())
		a.Locked = true
		mustHold(*a)
	})
	return ReasonNone
}

// mustHold panics if the balance identity is broken. Continuing would
// publish corrupt balances.
func mustHold(a ledger.Account) {
	if err := ledger.ValidateAccount(a); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}
}
