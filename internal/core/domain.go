package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// DateLayout is the on-disk and on-wire date format.
const DateLayout = "2006-01-02"

type (
	TransactionType string

	// Transaction is a single ledger entry. ID is assigned by the ledger when the
	// entry enters memory and is never persisted.
	Transaction struct {
		ID          string
		Type        TransactionType
		Date        string // YYYY-MM-DD
		Description string
		Amount      Amount
	}
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyDate        = errors.New("empty date")
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidAmount    = errors.New("invalid amount")

	ErrMalformedStorage = errors.New("malformed storage")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrNotFound         = errors.New("transaction not found")
)

// Valid reports whether t is one of the two known types.
func (t TransactionType) Valid() bool {
	switch t {
	case Income, Expense:
		return true
	default:
		return false
	}
}

func (t TransactionType) String() string {
	return string(t)
}

// ParseTransactionType accepts the stored names case-insensitively.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrInvalidType
	}
	return t, nil
}

// Validate checks the fields required before a transaction may be persisted.
// Only presence is checked; the date is not parsed.
func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.Date) == "" {
		return ErrEmptyDate
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	return nil
}

// Today returns the current UTC date in DateLayout.
func Today() string {
	return time.Now().UTC().Format(DateLayout)
}
