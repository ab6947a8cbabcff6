package ingestion

import (
	"TxLedger/internal/event"
	fpmath "TxLedger/internal/math"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseRecord converts one CSV record (type, client, tx[, amount]) into an
// event. Fields are trimmed. The amount column may be absent or empty; it is
// ignored for dispute, resolve and chargeback.
func ParseRecord(fields []string) (event.Transaction, error) {
	if len(fields) < 3 || len(fields) > 4 {
		return event.Transaction{}, decodeErr(KindFieldCount,
			fmt.Errorf("expected 3 or 4 fields, got %d", len(fields)))
	}

	typ, err := event.ParseEventType(fields[0])
	if err != nil {
		return event.Transaction{}, decodeErr(KindType, err)
	}

	client, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 16)
	if err != nil {
		return event.Transaction{}, decodeErr(KindClient, err)
	}

	tx, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 32)
	if err != nil {
		return event.Transaction{}, decodeErr(KindTx, err)
	}

	evt := event.Transaction{
		Type:   typ,
		Client: event.ClientID(client),
		Tx:     event.TxID(tx),
	}

	if len(fields) == 4 && typ.CarriesAmount() {
		raw := strings.TrimSpace(fields[3])
		if raw != "" {
			amount, err := decimal.NewFromString(raw)
			if err != nil {
				return event.Transaction{}, decodeErr(KindAmount, err)
			}
			if err := checkAmount(amount); err != nil {
				return event.Transaction{}, err
			}
			evt.Amount = decimal.NewNullDecimal(amount)
		}
	}

	return evt, nil
}

// --- JSON wire format ---
// Used for NATS payloads. amount may be a JSON string or number.

type transactionJSON struct {
	Type   string              `json:"type"`
	Client *uint16             `json:"client"`
	Tx     *uint32             `json:"tx"`
	Amount decimal.NullDecimal `json:"amount"`
}

// ParseJSON converts a NATS payload into an event.
func ParseJSON(data []byte) (event.Transaction, error) {
	var j transactionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return event.Transaction{}, decodeErr(KindSyntax, err)
	}

	typ, err := event.ParseEventType(j.Type)
	if err != nil {
		return event.Transaction{}, decodeErr(KindType, err)
	}
	if j.Client == nil {
		return event.Transaction{}, decodeErr(KindClient, fmt.Errorf("missing client"))
	}
	if j.Tx == nil {
		return event.Transaction{}, decodeErr(KindTx, fmt.Errorf("missing tx"))
	}

	evt := event.Transaction{
		Type:   typ,
		Client: event.ClientID(*j.Client),
		Tx:     event.TxID(*j.Tx),
	}
	if typ.CarriesAmount() {
		if j.Amount.Valid {
			if err := checkAmount(j.Amount.Decimal); err != nil {
				return event.Transaction{}, err
			}
		}
		evt.Amount = j.Amount
	}
	return evt, nil
}

func checkAmount(amount decimal.Decimal) error {
	if !fpmath.WithinBounds(amount) {
		return decodeErr(KindAmount, fmt.Errorf("amount exceeds %d digits", fpmath.MaxDigits))
	}
	return nil
}

// MarshalJSON renders an event in the NATS wire format.
func MarshalJSON(evt event.Transaction) ([]byte, error) {
	client := uint16(evt.Client)
	tx := uint32(evt.Tx)
	data, err := json.Marshal(transactionJSON{
		Type:   evt.Type.String(),
		Client: &client,
		Tx:     &tx,
		Amount: evt.Amount,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", evt, err)
	}
	return data, nil
}
