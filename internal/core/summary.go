package core

import "github.com/shopspring/decimal"

// Totals are the aggregate sums over every transaction in the ledger.
type Totals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal
}

// FormattedTotals is Totals rendered for display, two fraction digits each.
type FormattedTotals struct {
	Income  string `json:"income"`
	Expense string `json:"expense"`
	Balance string `json:"balance"`
}

// Format rounds for presentation only.
func (t Totals) Format() FormattedTotals {
	return FormattedTotals{
		Income:  t.Income.StringFixed(2),
		Expense: t.Expense.StringFixed(2),
		Balance: t.Balance.StringFixed(2),
	}
}
