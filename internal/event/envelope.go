package event

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// EventType discriminator for ledger events
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDeposit
	EventTypeWithdrawal
	EventTypeDispute
	EventTypeResolve
	EventTypeChargeback
)

// ClientID identifies an account holder and is the partition key for ordering.
type ClientID uint16

// TxID is globally unique across clients for deposits and withdrawals.
type TxID uint32

// Transaction is one immutable input record.
// Amount is only valid for deposits and withdrawals.
type Transaction struct {
	Type   EventType
	Client ClientID
	Tx     TxID
	Amount decimal.NullDecimal
}

func (et EventType) String() string {
	switch et {
	case EventTypeDeposit:
		return "deposit"
	case EventTypeWithdrawal:
		return "withdrawal"
	case EventTypeDispute:
		return "dispute"
	case EventTypeResolve:
		return "resolve"
	case EventTypeChargeback:
		return "chargeback"
	default:
		return "unknown"
	}
}

// ParseEventType maps the lowercase wire name to an EventType.
func ParseEventType(s string) (EventType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deposit":
		return EventTypeDeposit, nil
	case "withdrawal":
		return EventTypeWithdrawal, nil
	case "dispute":
		return EventTypeDispute, nil
	case "resolve":
		return EventTypeResolve, nil
	case "chargeback":
		return EventTypeChargeback, nil
	default:
		return EventTypeUnknown, fmt.Errorf("unknown event type: %q", s)
	}
}

// CarriesAmount reports whether the event type moves funds in or out.
func (et EventType) CarriesAmount() bool {
	return et == EventTypeDeposit || et == EventTypeWithdrawal
}

// IsDisputeLifecycle reports whether the event references an earlier
// transaction. These stay allowed on locked accounts.
func (et EventType) IsDisputeLifecycle() bool {
	return et == EventTypeDispute || et == EventTypeResolve || et == EventTypeChargeback
}

func (t Transaction) String() string {
	if t.Amount.Valid {
		return fmt.Sprintf("%s(client=%d, tx=%d, amount=%s)", t.Type, t.Client, t.Tx, t.Amount.Decimal)
	}
	return fmt.Sprintf("%s(client=%d, tx=%d)", t.Type, t.Client, t.Tx)
}
