package core

import (
	"TxLedger/internal/event"
	"errors"
	"fmt"
)

// ErrRejected matches every *Rejection via errors.Is.
var ErrRejected = errors.New("event rejected")

// RejectReason is the closed set of business-rule outcomes that leave the
// ledger untouched.
type RejectReason int32

const (
	ReasonNone RejectReason = iota
	ReasonInvalidAmount
	ReasonAccountLocked
	ReasonDuplicateTransaction
	ReasonInsufficientFunds
	ReasonTransactionNotFound
	ReasonClientMismatch
	ReasonAlreadyDisputed
	ReasonNotDisputed
	ReasonNotADeposit
	ReasonUnsupportedType
)

func (r RejectReason) String() string {
	switch r {
	case ReasonInvalidAmount:
		return "invalid_amount"
	case ReasonAccountLocked:
		return "account_locked"
	case ReasonDuplicateTransaction:
		return "duplicate_transaction"
	case ReasonInsufficientFunds:
		return "insufficient_funds"
	case ReasonTransactionNotFound:
		return "transaction_not_found"
	case ReasonClientMismatch:
		return "client_mismatch"
	case ReasonAlreadyDisputed:
		return "already_disputed"
	case ReasonNotDisputed:
		return "not_disputed"
	case ReasonNotADeposit:
		return "not_a_deposit"
	case ReasonUnsupportedType:
		return "unsupported_type"
	default:
		return "none"
	}
}

// Rejection is returned by Engine.Apply when a rule declines an event.
type Rejection struct {
	Reason RejectReason
	Event  event.Transaction
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s rejected: %s", r.Event, r.Reason)
}

func (r *Rejection) Unwrap() error {
	return ErrRejected
}

// ReasonOf extracts the reject reason from err, or ReasonNone when err is not
// a rejection.
func ReasonOf(err error) RejectReason {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ReasonNone
}
