// Package view derives what is shown from the canonical transaction list: the
// filtered rows and the aggregate totals. Everything here is pure.
package view

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"wallet/internal/core"
)

// TypeFilter narrows rows by transaction type.
type TypeFilter string

const (
	All     TypeFilter = "all"
	Income  TypeFilter = TypeFilter(core.Income)
	Expense TypeFilter = TypeFilter(core.Expense)
)

var ErrInvalidFilter = errors.New("invalid type filter")

// ParseTypeFilter accepts all, income or expense in any case. Empty means all.
func ParseTypeFilter(s string) (TypeFilter, error) {
	switch f := TypeFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return All, nil
	case All, Income, Expense:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFilter, s)
	}
}

// Criteria is the transient filter state.
type Criteria struct {
	Type    TypeFilter `json:"type"`
	Keyword string     `json:"keyword"`
}

// Match reports whether t passes both the type and keyword filters. The
// keyword is a case-insensitive substring of the description.
func (c Criteria) Match(t core.Transaction) bool {
	if c.Type != "" && c.Type != All && core.TransactionType(c.Type) != t.Type {
		return false
	}
	if c.Keyword == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Description), strings.ToLower(c.Keyword))
}

// Row is a filtered transaction together with its position in the full list.
type Row struct {
	Index       int
	Transaction core.Transaction
}

// Project keeps the transactions matching c, in their original order.
func Project(list []core.Transaction, c Criteria) []Row {
	rows := make([]Row, 0, len(list))
	for i, t := range list {
		if c.Match(t) {
			rows = append(rows, Row{Index: i, Transaction: t})
		}
	}
	return rows
}

// Totals are income, expense and balance over the full list.
type Totals = core.Totals

// Aggregate sums every transaction in list regardless of any filter.
func Aggregate(list []core.Transaction) (Totals, error) {
	income := decimal.Zero
	expense := decimal.Zero
	for i, t := range list {
		if err := t.Amount.Validate(); err != nil {
			return Totals{}, fmt.Errorf("transaction %d amount %s: %w", i, t.Amount, err)
		}
		switch t.Type {
		case core.Income:
			income = income.Add(t.Amount.Decimal())
		case core.Expense:
			expense = expense.Add(t.Amount.Decimal())
		}
	}
	return Totals{
		Income:  income,
		Expense: expense,
		Balance: income.Sub(expense),
	}, nil
}
