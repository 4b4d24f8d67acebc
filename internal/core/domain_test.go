package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestTransactionValidate(t *testing.T) {
	base := Transaction{
		AccountID:  "acc-1",
		CategoryID: "cat-1",
		Type:       Expense,
		Amount:     MustAmount("10.00"),
		Date:       NewDate(2025, 3, 15),
		Source:     SourceManual,
	}

	tests := []struct {
		name    string
		mutate  func(tr *Transaction)
		wantErr error
	}{
		{name: "valid expense", mutate: func(tr *Transaction) {}},
		{name: "valid income without category", mutate: func(tr *Transaction) {
			tr.Type = Income
			tr.CategoryID = ""
		}},
		{name: "zero amount", mutate: func(tr *Transaction) {
			tr.Amount = MustAmount("1").Sub(MustAmount("1"))
		}, wantErr: ErrInvalidAmount},
		{name: "bad type", mutate: func(tr *Transaction) {
			tr.Type = "refund"
		}, wantErr: ErrInvalidType},
		{name: "zero date", mutate: func(tr *Transaction) {
			tr.Date = Date{}
		}, wantErr: ErrInvalidDate},
		{name: "expense without category", mutate: func(tr *Transaction) {
			tr.CategoryID = ""
		}, wantErr: ErrMissingCategory},
		{name: "transfer leg may omit category", mutate: func(tr *Transaction) {
			tr.CategoryID = ""
			tr.Source = SourceTransfer
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := base
			tt.mutate(&tr)
			err := tr.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBudgetCoversAndMatches(t *testing.T) {
	b := Budget{
		CategoryID: "food",
		StartDate:  NewDate(2025, 3, 1),
		EndDate:    NewDate(2025, 3, 31),
	}

	if !b.Covers(NewDate(2025, 3, 1)) || !b.Covers(NewDate(2025, 3, 31)) {
		t.Error("window bounds should be inclusive")
	}
	if b.Covers(NewDate(2025, 2, 28)) || b.Covers(NewDate(2025, 4, 1)) {
		t.Error("dates outside the window should not be covered")
	}
	if !b.MatchesCategory("food") {
		t.Error("budget should match its own category")
	}
	if b.MatchesCategory("rent") {
		t.Error("budget should not match another category")
	}

	overall := Budget{Overall: true}
	if !overall.MatchesCategory("anything") {
		t.Error("overall budget should match every category")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name    string
		current string
		target  string
		want    GoalStatus
	}{
		{name: "below target", current: "50", target: "100", want: GoalInProgress},
		{name: "at target", current: "100", target: "100", want: GoalCompleted},
		{name: "over target", current: "150", target: "100", want: GoalCompleted},
		{name: "zero target never completes", current: "0", target: "0", want: GoalInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StatusFor(mustDecimal(tt.current), mustDecimal(tt.target))
			if got != tt.want {
				t.Errorf("StatusFor(%s, %s) = %s, want %s", tt.current, tt.target, got, tt.want)
			}
		})
	}
}

func TestDateAddMonthsClampsDay(t *testing.T) {
	tests := []struct {
		name  string
		start Date
		n     int
		want  Date
	}{
		{name: "jan 31 plus one month", start: NewDate(2025, 1, 31), n: 1, want: NewDate(2025, 2, 28)},
		{name: "jan 31 plus one month leap year", start: NewDate(2024, 1, 31), n: 1, want: NewDate(2024, 2, 29)},
		{name: "mar 31 minus one month", start: NewDate(2025, 3, 31), n: -1, want: NewDate(2025, 2, 28)},
		{name: "mid month unchanged", start: NewDate(2025, 5, 15), n: 3, want: NewDate(2025, 8, 15)},
		{name: "year rollover", start: NewDate(2025, 12, 31), n: 2, want: NewDate(2026, 2, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.start.AddMonths(tt.n)
			if !got.Equal(tt.want.Time) {
				t.Errorf("AddMonths(%d) = %s, want %s", tt.n, got, tt.want)
			}
		})
	}
}

func TestTransactionPatchApplyTo(t *testing.T) {
	orig := Transaction{
		ID:          "tx-1",
		UserID:      "u-1",
		AccountID:   "acc-1",
		CategoryID:  "food",
		Type:        Expense,
		Amount:      MustAmount("25.00"),
		Date:        NewDate(2025, 3, 10),
		Description: "groceries",
		Source:      SourceManual,
	}

	if !(TransactionPatch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}

	amount := MustAmount("30.00")
	category := "rent"
	patch := TransactionPatch{Amount: &amount, CategoryID: &category}
	got := patch.ApplyTo(orig)

	if got.Amount.String() != "30" || got.CategoryID != "rent" {
		t.Errorf("patched fields not applied: amount=%s category=%s", got.Amount, got.CategoryID)
	}
	if got.ID != orig.ID || got.AccountID != orig.AccountID || got.Description != orig.Description {
		t.Error("unpatched fields must be preserved")
	}

	empty := ""
	cleared := (TransactionPatch{GoalID: &empty}).ApplyTo(Transaction{GoalID: "g-1"})
	if cleared.GoalID != "" {
		t.Error("pointer-to-empty should clear the link")
	}
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
