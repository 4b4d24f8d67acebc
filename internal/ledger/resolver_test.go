package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"conti/internal/core"
)

// fakeBudgetSource serves canned budgets and templates and sums expenses
// from a fixed list.
type fakeBudgetSource struct {
	budgets   []core.Budget
	templates []core.RecurringBudgetTemplate
	expenses  []core.Transaction
}

func (f *fakeBudgetSource) ListBudgetsCovering(_ context.Context, userID string, date core.Date) ([]core.Budget, error) {
	var out []core.Budget
	for _, b := range f.budgets {
		if b.UserID == userID && b.Covers(date) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBudgetSource) ListBudgetTemplates(_ context.Context, userID string) ([]core.RecurringBudgetTemplate, error) {
	var out []core.RecurringBudgetTemplate
	for _, tpl := range f.templates {
		if tpl.UserID == userID {
			out = append(out, tpl)
		}
	}
	return out, nil
}

func (f *fakeBudgetSource) SumExpenses(_ context.Context, userID string, q SpentQuery) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, t := range f.expenses {
		if t.UserID != userID || t.Type != core.Expense || t.IsTransferLeg() {
			continue
		}
		if t.Date.Before(q.Start.Time) || t.Date.After(q.End.Time) {
			continue
		}
		if !q.Overall && t.CategoryID != q.CategoryID {
			continue
		}
		total = total.Add(t.Amount)
	}
	return total, nil
}

func TestResolveWindows_ExplicitOnly(t *testing.T) {
	src := &fakeBudgetSource{
		budgets: []core.Budget{
			{
				ID: "b-food", UserID: "u-1", CategoryID: "food",
				Amount:    dec("300"),
				StartDate: core.NewDate(2025, 6, 1), EndDate: core.NewDate(2025, 6, 30),
			},
			{
				ID: "b-rent", UserID: "u-1", CategoryID: "rent",
				Amount:    dec("900"),
				StartDate: core.NewDate(2025, 6, 1), EndDate: core.NewDate(2025, 6, 30),
			},
			{
				ID: "b-overall", UserID: "u-1", Overall: true,
				Amount:    dec("2000"),
				StartDate: core.NewDate(2025, 6, 1), EndDate: core.NewDate(2025, 6, 30),
			},
		},
	}

	windows, err := ResolveWindows(context.Background(), src, "u-1", "food", core.NewDate(2025, 6, 15))
	if err != nil {
		t.Fatalf("ResolveWindows error: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("got %d windows, want 2 (category + overall)", len(windows))
	}
	ids := map[string]bool{}
	for _, w := range windows {
		ids[w.ID] = true
	}
	if !ids["b-food"] || !ids["b-overall"] {
		t.Errorf("wrong windows resolved: %v", ids)
	}
}

func TestResolveWindows_VirtualFromTemplate(t *testing.T) {
	src := &fakeBudgetSource{
		templates: []core.RecurringBudgetTemplate{{
			ID: "tpl-1", UserID: "u-1", CategoryID: "food",
			Amount:    dec("250"),
			Frequency: core.Monthly,
			StartDate: core.NewDate(2025, 1, 1),
		}},
		expenses: []core.Transaction{
			{
				UserID: "u-1", CategoryID: "food", Type: core.Expense,
				Amount: dec("40"), Date: core.NewDate(2025, 6, 5), Source: core.SourceManual,
			},
			{
				UserID: "u-1", CategoryID: "food", Type: core.Expense,
				Amount: dec("25"), Date: core.NewDate(2025, 6, 20), Source: core.SourceManual,
			},
			// Different month, must not count.
			{
				UserID: "u-1", CategoryID: "food", Type: core.Expense,
				Amount: dec("99"), Date: core.NewDate(2025, 5, 20), Source: core.SourceManual,
			},
		},
	}

	windows, err := ResolveWindows(context.Background(), src, "u-1", "food", core.NewDate(2025, 6, 15))
	if err != nil {
		t.Fatalf("ResolveWindows error: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("got %d windows, want 1 virtual", len(windows))
	}
	w := windows[0]
	if !w.Virtual || w.TemplateID != "tpl-1" {
		t.Errorf("expected a virtual window from tpl-1, got %+v", w)
	}
	if !w.StartDate.Equal(core.NewDate(2025, 6, 1).Time) || !w.EndDate.Equal(core.NewDate(2025, 6, 30).Time) {
		t.Errorf("virtual window must span the month, got [%s, %s]", w.StartDate, w.EndDate)
	}
	if w.Amount.String() != "250" {
		t.Errorf("Amount = %s, want 250", w.Amount)
	}
	if w.SpentAmount.String() != "65" {
		t.Errorf("SpentAmount = %s, want 65 (recomputed for the month)", w.SpentAmount)
	}
}

func TestResolveWindows_ExplicitShadowsVirtual(t *testing.T) {
	src := &fakeBudgetSource{
		budgets: []core.Budget{{
			ID: "b-food", UserID: "u-1", CategoryID: "food",
			Amount:    dec("400"),
			StartDate: core.NewDate(2025, 6, 1), EndDate: core.NewDate(2025, 6, 30),
		}},
		templates: []core.RecurringBudgetTemplate{
			{
				// Same selector as the explicit row: shadowed.
				ID: "tpl-food", UserID: "u-1", CategoryID: "food",
				Amount: dec("250"), Frequency: core.Monthly, StartDate: core.NewDate(2025, 1, 1),
			},
			{
				// Overall template: different selector, still materializes.
				ID: "tpl-overall", UserID: "u-1", Overall: true,
				Amount: dec("1500"), Frequency: core.Monthly, StartDate: core.NewDate(2025, 1, 1),
			},
		},
	}

	windows, err := ResolveWindows(context.Background(), src, "u-1", "food", core.NewDate(2025, 6, 15))
	if err != nil {
		t.Fatalf("ResolveWindows error: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("got %d windows, want explicit row + overall virtual", len(windows))
	}
	var sawExplicit, sawOverall bool
	for _, w := range windows {
		switch {
		case w.ID == "b-food" && !w.Virtual:
			sawExplicit = true
		case w.Virtual && w.TemplateID == "tpl-overall":
			sawOverall = true
		case w.Virtual && w.TemplateID == "tpl-food":
			t.Error("shadowed template must not materialize")
		}
	}
	if !sawExplicit || !sawOverall {
		t.Errorf("missing expected windows: explicit=%v overall=%v", sawExplicit, sawOverall)
	}
}

func TestResolveWindows_InactiveTemplateSkipped(t *testing.T) {
	src := &fakeBudgetSource{
		templates: []core.RecurringBudgetTemplate{{
			ID: "tpl-1", UserID: "u-1", CategoryID: "food",
			Amount:    dec("250"),
			Frequency: core.Monthly,
			StartDate: core.NewDate(2025, 8, 1),
		}},
	}

	windows, err := ResolveWindows(context.Background(), src, "u-1", "food", core.NewDate(2025, 6, 15))
	if err != nil {
		t.Fatalf("ResolveWindows error: %v", err)
	}
	if len(windows) != 0 {
		t.Errorf("template starting in August must not produce a June window, got %d", len(windows))
	}
}
