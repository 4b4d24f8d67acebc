package ledger

import (
	"context"

	"conti/internal/core"
	"conti/internal/recurrence"
)

// ResolveWindows returns every budget window of the user that covers date
// and applies to the given category: explicit rows first, then virtual
// windows materialized from recurring templates via the recurrence
// expander. Overall rows and templates always apply. An explicit row
// shadows a virtual window with the same category selector for the same
// period, so one expense is never counted twice for one selector.
//
// Virtual windows span the whole target month, carry the template's amount
// and a spent total recomputed from transactions; they are read-only
// projections and are never persisted by this call.
func ResolveWindows(ctx context.Context, src BudgetSource, userID, categoryID string, date core.Date) ([]core.Budget, error) {
	explicit, err := src.ListBudgetsCovering(ctx, userID, date)
	if err != nil {
		return nil, core.WrapErr(core.KindInternal, "list budgets", err)
	}

	windows := make([]core.Budget, 0, len(explicit))
	for _, b := range explicit {
		if b.MatchesCategory(categoryID) {
			windows = append(windows, b)
		}
	}

	templates, err := src.ListBudgetTemplates(ctx, userID)
	if err != nil {
		return nil, core.WrapErr(core.KindInternal, "list budget templates", err)
	}

	year, month := date.Year(), date.Month()
	for _, tpl := range templates {
		if !tpl.MatchesCategory(categoryID) {
			continue
		}
		if shadowed(windows, tpl) {
			continue
		}
		res, err := recurrence.ExpandMonth(tpl, year, month)
		if err != nil {
			return nil, err
		}
		if !res.Active {
			continue
		}
		virtual := core.Budget{
			UserID:     userID,
			CategoryID: tpl.CategoryID,
			Overall:    tpl.Overall,
			Amount:     res.Amount,
			StartDate:  core.MonthStart(year, month),
			EndDate:    core.MonthEnd(year, month),
			TemplateID: tpl.ID,
			Virtual:    true,
		}
		spent, err := src.SumExpenses(ctx, userID, SpentQuery{
			CategoryID: virtual.CategoryID,
			Overall:    virtual.Overall,
			Start:      virtual.StartDate,
			End:        virtual.EndDate,
		})
		if err != nil {
			return nil, core.WrapErr(core.KindInternal, "sum virtual budget spending", err)
		}
		virtual.SpentAmount = spent
		windows = append(windows, virtual)
	}

	return windows, nil
}

// shadowed reports whether an explicit window with the template's exact
// category selector is already present.
func shadowed(explicit []core.Budget, tpl core.RecurringBudgetTemplate) bool {
	for _, b := range explicit {
		if b.Overall == tpl.Overall && b.CategoryID == tpl.CategoryID {
			return true
		}
	}
	return false
}
