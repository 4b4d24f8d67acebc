package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
)

// docSet is the working copy of every document an operation touches. The
// read phase fills it, the compute phase mutates it in memory, and the
// write phase persists it. Keying by ID makes repeated reads of the same
// document (say, an update that keeps the account) land on one copy, so a
// reversal and a re-application compose correctly.
type docSet struct {
	accounts map[string]core.Account
	budgets  map[string]core.Budget
	goals    map[string]core.Goal
	loans    map[string]core.LoanTracker
	savings  map[string]core.SavingsTracker
}

func newDocSet() *docSet {
	return &docSet{
		accounts: make(map[string]core.Account),
		budgets:  make(map[string]core.Budget),
		goals:    make(map[string]core.Goal),
		loans:    make(map[string]core.LoanTracker),
		savings:  make(map[string]core.SavingsTracker),
	}
}

// readEffectDocs fetches every document transaction t can affect into ds:
// the account, candidate explicit budget windows for t's category and date,
// and any linked goal or tracker. It reports whether t counts against
// budgets at all (expense, categorized, category budgetable, not a transfer
// leg). Ownership is enforced on every fetched document.
func (c *Coordinator) readEffectDocs(ctx context.Context, tx Tx, userID string, t core.Transaction, ds *docSet) (bool, error) {
	if _, ok := ds.accounts[t.AccountID]; !ok {
		a, err := tx.GetAccount(ctx, t.AccountID)
		if err != nil {
			return false, err
		}
		if a.UserID != userID {
			return false, core.Errorf(core.KindUnauthorized, "account %s does not belong to caller", t.AccountID)
		}
		ds.accounts[a.ID] = a
	}

	budgeted := false
	if t.Type == core.Expense && t.CategoryID != "" && !t.IsTransferLeg() {
		ok, err := tx.Budgetable(ctx, userID, t.CategoryID)
		if err != nil {
			return false, core.WrapErr(core.KindInternal, "category lookup", err)
		}
		if ok {
			budgeted = true
			windows, err := ResolveWindows(ctx, tx, userID, t.CategoryID, t.Date)
			if err != nil {
				return false, err
			}
			for _, w := range windows {
				// Virtual windows have no stored counter to maintain;
				// their spent total is recomputed on read.
				if w.Virtual {
					continue
				}
				if _, ok := ds.budgets[w.ID]; !ok {
					ds.budgets[w.ID] = w
				}
			}
		}
	}

	if t.GoalID != "" {
		if _, ok := ds.goals[t.GoalID]; !ok {
			g, err := tx.GetGoal(ctx, t.GoalID)
			if err != nil {
				return false, err
			}
			if g.UserID != userID {
				return false, core.Errorf(core.KindUnauthorized, "goal %s does not belong to caller", t.GoalID)
			}
			ds.goals[g.ID] = g
		}
	}
	if t.LoanTrackerID != "" {
		if _, ok := ds.loans[t.LoanTrackerID]; !ok {
			lt, err := tx.GetLoanTracker(ctx, t.LoanTrackerID)
			if err != nil {
				return false, err
			}
			if lt.UserID != userID {
				return false, core.Errorf(core.KindUnauthorized, "loan tracker %s does not belong to caller", t.LoanTrackerID)
			}
			ds.loans[lt.ID] = lt
		}
	}
	if t.SavingsTrackerID != "" {
		if _, ok := ds.savings[t.SavingsTrackerID]; !ok {
			st, err := tx.GetSavingsTracker(ctx, t.SavingsTrackerID)
			if err != nil {
				return false, err
			}
			if st.UserID != userID {
				return false, core.Errorf(core.KindUnauthorized, "savings tracker %s does not belong to caller", t.SavingsTrackerID)
			}
			ds.savings[st.ID] = st
		}
	}

	return budgeted, nil
}

// applyEffect folds transaction t into the working copies with the given
// direction: +1 applies it, -1 reverses a prior application. Pure in-memory
// compute; nothing is persisted here.
func (c *Coordinator) applyEffect(ds *docSet, t *core.Transaction, budgeted bool, direction int) {
	amount := t.Amount
	if direction < 0 {
		amount = amount.Neg()
	}

	acct := ds.accounts[t.AccountID]
	acct.Balance = acct.Balance.Add(BalanceDelta(acct.Class, t.Type, amount))
	ds.accounts[t.AccountID] = acct

	if budgeted {
		for id, b := range ds.budgets {
			if b.Covers(t.Date) && b.MatchesCategory(t.CategoryID) {
				b.SpentAmount = b.SpentAmount.Add(amount)
				ds.budgets[id] = b
			}
		}
	}

	if t.GoalID != "" {
		// Expenses put money toward the goal; incomes take it back out.
		contribution := amount
		if t.Type == core.Income {
			contribution = contribution.Neg()
		}
		ds.goals[t.GoalID] = ApplyGoal(ds.goals[t.GoalID], contribution)
	}

	if t.LoanTrackerID != "" {
		lt := ds.loans[t.LoanTrackerID]
		if direction > 0 {
			next, principal := ApplyLoanPayment(lt, t.Amount)
			ds.loans[t.LoanTrackerID] = next
			t.LoanPrincipal = principal
		} else {
			ds.loans[t.LoanTrackerID] = ReverseLoanPayment(lt, t.LoanPrincipal)
		}
	} else if direction > 0 {
		// A patch can drop the loan link; the recorded principal split
		// belongs to the link, not the transaction.
		t.LoanPrincipal = decimal.Zero
	}
}

// writeEffectDocs persists every working copy. All reads are already done
// by the time this runs, so the store's reads-before-writes discipline
// holds for the whole operation.
func (c *Coordinator) writeEffectDocs(ctx context.Context, tx Tx, ds *docSet, now time.Time) error {
	for _, a := range ds.accounts {
		a.UpdatedAt = now
		if err := tx.PutAccount(ctx, a); err != nil {
			return core.WrapErr(core.KindInternal, "update account", err)
		}
	}
	for _, b := range ds.budgets {
		if err := tx.UpdateBudgetSpent(ctx, b.ID, b.SpentAmount, now); err != nil {
			return core.WrapErr(core.KindInternal, "update budget spent total", err)
		}
	}
	for _, g := range ds.goals {
		g.UpdatedAt = now
		if err := tx.PutGoal(ctx, g); err != nil {
			return core.WrapErr(core.KindInternal, "update goal", err)
		}
	}
	for _, lt := range ds.loans {
		lt.UpdatedAt = now
		if err := tx.PutLoanTracker(ctx, lt); err != nil {
			return core.WrapErr(core.KindInternal, "update loan tracker", err)
		}
	}
	for id := range ds.savings {
		if err := tx.TouchSavingsTracker(ctx, id, now); err != nil {
			return core.WrapErr(core.KindInternal, "touch savings tracker", err)
		}
	}
	return nil
}
