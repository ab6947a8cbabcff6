// internal/event/deposit.go
package event

import "github.com/shopspring/decimal"

// NewDeposit builds a deposit event crediting amount to client.
func NewDeposit(client ClientID, tx TxID, amount decimal.Decimal) Transaction {
	return Transaction{
		Type:   EventTypeDeposit,
		Client: client,
		Tx:     tx,
		Amount: decimal.NewNullDecimal(amount),
	}
}

// NewWithdrawal builds a withdrawal event debiting amount from client.
func NewWithdrawal(client ClientID, tx TxID, amount decimal.Decimal) Transaction {
	return Transaction{
		Type:   EventTypeWithdrawal,
		Client: client,
		Tx:     tx,
		Amount: decimal.NewNullDecimal(amount),
	}
}

// NewDispute opens a dispute against an earlier deposit.
func NewDispute(client ClientID, tx TxID) Transaction {
	return Transaction{Type: EventTypeDispute, Client: client, Tx: tx}
}

// NewResolve closes an open dispute and releases the held funds.
func NewResolve(client ClientID, tx TxID) Transaction {
	return Transaction{Type: EventTypeResolve, Client: client, Tx: tx}
}

// NewChargeback reverses a disputed deposit and locks the account.
func NewChargeback(client ClientID, tx TxID) Transaction {
	return Transaction{Type: EventTypeChargeback, Client: client, Tx: tx}
}
