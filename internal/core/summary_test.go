package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestTotalsFormat(t *testing.T) {
	tests := []struct {
		name                         string
		income, expense              string
		wantIncome, wantExp, wantBal string
	}{
		{"zero", "0", "0", "0.00", "0.00", "0.00"},
		{"whole", "1000", "300", "1000.00", "300.00", "700.00"},
		{"negative balance", "10", "12.5", "10.00", "12.50", "-2.50"},
		{"rounds half up", "0.005", "0", "0.01", "0.00", "0.01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := decimal.RequireFromString(tt.income)
			ex := decimal.RequireFromString(tt.expense)
			f := Totals{Income: in, Expense: ex, Balance: in.Sub(ex)}.Format()
			if f.Income != tt.wantIncome || f.Expense != tt.wantExp || f.Balance != tt.wantBal {
				t.Fatalf("Format() = %+v", f)
			}
		})
	}
}
