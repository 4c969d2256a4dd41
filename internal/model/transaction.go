package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType decides the sign a record carries when folded into a balance.
type TransactionType string

const (
	Deposit    TransactionType = "deposit"
	Withdrawal TransactionType = "withdrawal"
)

// ParseTransactionType accepts the wire names case-insensitively.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToLower(strings.TrimSpace(s))) {
	case Deposit:
		return Deposit, nil
	case Withdrawal:
		return Withdrawal, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

func (t TransactionType) String() string { return string(t) }

// UnmarshalJSON rejects anything but the two known variants.
func (t *TransactionType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("transaction_type: %w", err)
	}
	v, err := ParseTransactionType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Scan implements sql.Scanner.
func (t *TransactionType) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("transaction type: unsupported column type %T", src)
	}
	v, err := ParseTransactionType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Value implements driver.Valuer.
func (t TransactionType) Value() (driver.Value, error) {
	if _, err := ParseTransactionType(string(t)); err != nil {
		return nil, err
	}
	return string(t), nil
}

// Amounts are stored as numeric(38,18); anything finer or larger would be
// rounded or refused by the column.
const (
	AmountScale         = 18
	AmountIntegerDigits = 20
)

// ErrAmountOutOfRange is returned for amounts the amount column cannot hold exactly.
var ErrAmountOutOfRange = errors.New("amount out of range")

var amountLimit = decimal.New(1, AmountIntegerDigits)

// CheckAmount reports whether d fits the amount column without rounding.
func CheckAmount(d decimal.Decimal) error {
	if !d.Truncate(AmountScale).Equal(d) {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrAmountOutOfRange, d, AmountScale)
	}
	if d.Abs().Cmp(amountLimit) >= 0 {
		return fmt.Errorf("%w: %s has more than %d integer digits", ErrAmountOutOfRange, d, AmountIntegerDigits)
	}
	return nil
}

// Transaction is a single value transfer between two addresses. A zero ID marks
// an unpersisted candidate; persisted rows are immutable history.
type Transaction struct {
	ID          uint64          `gorm:"primaryKey" json:"id,omitempty"`
	AddressFrom string          `gorm:"size:42;not null;index" json:"address_from"`
	AddressTo   string          `gorm:"size:42;not null;index" json:"address_to"`
	Amount      decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"amount"`
	Type        TransactionType `gorm:"column:type;size:16;not null" json:"transaction_type"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"-"`
}

func (Transaction) TableName() string { return "transactions" }

// Persisted reports whether the record already has a store-assigned identity.
func (t Transaction) Persisted() bool { return t.ID != 0 }

// MarshalJSON renders created_at with sub-second precision and no zone, the
// format existing clients parse.
func (t Transaction) MarshalJSON() ([]byte, error) {
	type alias Transaction
	out := struct {
		alias
		CreatedAt *string `json:"created_at,omitempty"`
	}{alias: alias(t)}
	if !t.CreatedAt.IsZero() {
		s := t.CreatedAt.UTC().Format(CreatedAtLayout)
		out.CreatedAt = &s
	}
	return json.Marshal(out)
}

// CreatedAtLayout is the wire layout of created_at.
const CreatedAtLayout = "2006-01-02 15:04:05.000000"
