// Package ledger holds the rules that decide whether a candidate transaction
// is admissible and the fold that turns an address's history into a balance.
// Everything here is pure: callers fetch history first and hand it in.
package ledger

import (
	"github.com/richardliu001/address-ledger/internal/model"
	"github.com/shopspring/decimal"
)

// side is the queried address's relationship to a record, as seen by the sign
// rule of that record's type.
type side int

const (
	counterparty side = iota
	// owner is the receiver for a deposit and the sender for a withdrawal.
	owner
)

func sideOf(address string, tx model.Transaction) side {
	switch tx.Type {
	case model.Deposit:
		if tx.AddressTo == address {
			return owner
		}
	case model.Withdrawal:
		if tx.AddressFrom == address {
			return owner
		}
	}
	return counterparty
}

// delta is the signed contribution of one record to address's balance.
func delta(address string, tx model.Transaction) decimal.Decimal {
	switch tx.Type {
	case model.Deposit:
		switch sideOf(address, tx) {
		case owner:
			return tx.Amount
		case counterparty:
			return tx.Amount.Neg()
		}
	case model.Withdrawal:
		switch sideOf(address, tx) {
		case owner:
			return tx.Amount.Neg()
		case counterparty:
			return tx.Amount
		}
	}
	return decimal.Zero
}

// RawBalance folds history without the non-negative floor.
// Records where address is neither party contribute nothing.
func RawBalance(address string, history []model.Transaction) decimal.Decimal {
	balance := decimal.Zero
	for _, tx := range history {
		if tx.AddressFrom != address && tx.AddressTo != address {
			continue
		}
		balance = balance.Add(delta(address, tx))
	}
	return balance
}

// ComputeBalance returns address's balance over history, never below zero.
func ComputeBalance(address string, history []model.Transaction) decimal.Decimal {
	balance := RawBalance(address, history)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}
