package view

import (
	"errors"
	"testing"

	"wallet/internal/core"
)

func mk(typ core.TransactionType, desc string, cents int64) core.Transaction {
	return core.Transaction{Type: typ, Date: "2024-01-01", Description: desc, Amount: core.AmountFromCents(cents)}
}

func descriptions(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Transaction.Description
	}
	return out
}

func TestParseTypeFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    TypeFilter
		wantErr bool
	}{
		{"", All, false},
		{"all", All, false},
		{" Income ", Income, false},
		{"EXPENSE", Expense, false},
		{"transfer", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTypeFilter(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseTypeFilter(%q) err=%v, wantErr=%v", tt.in, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidFilter) {
			t.Fatalf("ParseTypeFilter(%q) err=%v, want ErrInvalidFilter", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseTypeFilter(%q)=%q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTotalsAfterFirstIncome(t *testing.T) {
	list := []core.Transaction{mk(core.Income, "Salary", 100000)}
	got, err := Aggregate(list)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	f := got.Format()
	if f.Income != "1000.00" || f.Expense != "0.00" || f.Balance != "1000.00" {
		t.Fatalf("unexpected totals %+v", f)
	}
}

func TestTypeFilterDoesNotChangeTotals(t *testing.T) {
	list := []core.Transaction{
		mk(core.Income, "Salary", 100000),
		mk(core.Expense, "Rent", 30000),
	}
	rows := Project(list, Criteria{Type: Expense})
	if len(rows) != 1 || rows[0].Transaction.Type != core.Expense || rows[0].Index != 1 {
		t.Fatalf("unexpected rows %+v", rows)
	}

	got, err := Aggregate(list)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	f := got.Format()
	if f.Income != "1000.00" || f.Expense != "300.00" || f.Balance != "700.00" {
		t.Fatalf("unexpected totals %+v", f)
	}
}

func TestKeywordIsCaseInsensitiveSubstring(t *testing.T) {
	list := []core.Transaction{
		mk(core.Expense, "Rent - Jan", 100),
		mk(core.Expense, "Groceries", 100),
		mk(core.Expense, "RENT deposit", 100),
	}
	rows := Project(list, Criteria{Type: All, Keyword: "rent"})
	if len(rows) != 2 || rows[0].Index != 0 || rows[1].Index != 2 {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestProjectSoundCompleteStable(t *testing.T) {
	list := []core.Transaction{
		mk(core.Income, "Salary March", 100),
		mk(core.Expense, "Coffee", 100),
		mk(core.Expense, "coffee beans", 100),
		mk(core.Income, "Coffee refund", 100),
		mk(core.Expense, "Train", 100),
	}
	criteria := []Criteria{
		{},
		{Type: All},
		{Type: Income},
		{Type: Expense},
		{Type: Expense, Keyword: "COFFEE"},
		{Type: All, Keyword: "coffee"},
		{Type: Income, Keyword: "nothing"},
	}
	for _, c := range criteria {
		rows := Project(list, c)

		// soundness and stability
		prev := -1
		for _, r := range rows {
			if !c.Match(r.Transaction) {
				t.Fatalf("%+v: row %d should not match", c, r.Index)
			}
			if r.Index <= prev {
				t.Fatalf("%+v: rows out of order", c)
			}
			if list[r.Index].Description != r.Transaction.Description {
				t.Fatalf("%+v: row index %d does not point back to its source", c, r.Index)
			}
			prev = r.Index
		}

		// completeness
		want := 0
		for _, tx := range list {
			if c.Match(tx) {
				want++
			}
		}
		if len(rows) != want {
			t.Fatalf("%+v: got %d rows, want %d", c, len(rows), want)
		}
	}

	if got := descriptions(Project(list, Criteria{Type: All, Keyword: "coffee"})); len(got) != 3 || got[0] != "Coffee" || got[2] != "Coffee refund" {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestAggregateExact(t *testing.T) {
	list := []core.Transaction{
		mk(core.Income, "a", 10),
		mk(core.Income, "b", 20),
		mk(core.Expense, "c", 3),
	}
	got, err := Aggregate(list)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got.Income.String() != "0.3" {
		t.Fatalf("income = %s, want 0.3", got.Income)
	}
	if got.Balance.String() != "0.27" {
		t.Fatalf("balance = %s, want 0.27", got.Balance)
	}
	if !got.Balance.Equal(got.Income.Sub(got.Expense)) {
		t.Fatal("balance must equal income minus expense")
	}
}

func TestAggregateEmpty(t *testing.T) {
	got, err := Aggregate(nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if f := got.Format(); f.Income != "0.00" || f.Expense != "0.00" || f.Balance != "0.00" {
		t.Fatalf("unexpected totals %+v", f)
	}
}

func TestAggregateRejectsUnreadableAmount(t *testing.T) {
	bad := core.Transaction{Type: core.Expense, Date: "2024-01-01", Description: "x", Amount: core.AmountFromJSON([]byte(`"12"`))}
	_, err := Aggregate([]core.Transaction{mk(core.Income, "ok", 100), bad})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestAggregateRejectsNonFiniteAmount(t *testing.T) {
	for _, tok := range []string{`1e400`, `-1e400`, `1e50000000`} {
		bad := core.Transaction{Type: core.Income, Date: "2024-01-01", Description: "x", Amount: core.AmountFromJSON([]byte(tok))}
		_, err := Aggregate([]core.Transaction{mk(core.Income, "ok", 100), bad})
		if !errors.Is(err, core.ErrInvalidAmount) {
			t.Fatalf("%s: err = %v, want ErrInvalidAmount", tok, err)
		}
		if got := bad.Amount.String(); got != tok {
			t.Fatalf("%s: rendered as %q", tok, got)
		}
	}
}

func TestAggregateTreatsUnderflowAsZero(t *testing.T) {
	tiny := core.Transaction{Type: core.Expense, Date: "2024-01-01", Description: "x", Amount: core.AmountFromJSON([]byte(`1e-50000000`))}
	got, err := Aggregate([]core.Transaction{mk(core.Income, "ok", 100), tiny})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if f := got.Format(); f.Expense != "0.00" || f.Balance != "1.00" {
		t.Fatalf("unexpected totals %+v", f)
	}
}
