// Package memory provides an in-memory ledger.Store. It backs tests and the
// memory data backend, mirroring the SQLite repository's behavior without a
// database file.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/ledger"
)

// Store keeps every entity in maps guarded by one mutex. RunTransaction
// serializes writers and applies fn's writes to a staged copy, so a failed
// fn leaves nothing behind.
type Store struct {
	mu           sync.Mutex
	accounts     map[string]core.Account
	transactions map[string]core.Transaction
	budgets      map[string]core.Budget
	templates    map[string]core.RecurringBudgetTemplate
	goals        map[string]core.Goal
	loans        map[string]core.LoanTracker
	savings      map[string]core.SavingsTracker
	categories   map[string]category
	aggregates   map[string]core.MonthlyAggregate
}

type category struct {
	userID     string
	name       string
	budgetable bool
}

var _ ledger.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		accounts:     make(map[string]core.Account),
		transactions: make(map[string]core.Transaction),
		budgets:      make(map[string]core.Budget),
		templates:    make(map[string]core.RecurringBudgetTemplate),
		goals:        make(map[string]core.Goal),
		loans:        make(map[string]core.LoanTracker),
		savings:      make(map[string]core.SavingsTracker),
		categories:   make(map[string]category),
		aggregates:   make(map[string]core.MonthlyAggregate),
	}
}

// memTx implements ledger.Tx over a snapshot of the store. Reads see the
// snapshot plus the transaction's own writes; writes land on the snapshot
// and replace the live maps only on commit.
type memTx struct {
	s *snapshot
}

type snapshot struct {
	accounts     map[string]core.Account
	transactions map[string]core.Transaction
	budgets      map[string]core.Budget
	templates    map[string]core.RecurringBudgetTemplate
	goals        map[string]core.Goal
	loans        map[string]core.LoanTracker
	savings      map[string]core.SavingsTracker
	categories   map[string]category
}

func cloneMap[T any](src map[string]T) map[string]T {
	dst := make(map[string]T, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (st *Store) RunTransaction(ctx context.Context, fn func(tx ledger.Tx) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	// Templates and categories are read-only inside the engine, so the
	// snapshot shares them instead of cloning.
	snap := &snapshot{
		accounts:     cloneMap(st.accounts),
		transactions: cloneMap(st.transactions),
		budgets:      cloneMap(st.budgets),
		templates:    st.templates,
		goals:        cloneMap(st.goals),
		loans:        cloneMap(st.loans),
		savings:      cloneMap(st.savings),
		categories:   st.categories,
	}
	if err := fn(memTx{snap}); err != nil {
		return err
	}
	st.accounts = snap.accounts
	st.transactions = snap.transactions
	st.budgets = snap.budgets
	st.goals = snap.goals
	st.loans = snap.loans
	st.savings = snap.savings
	return nil
}

func (tx memTx) GetAccount(_ context.Context, id string) (core.Account, error) {
	a, ok := tx.s.accounts[id]
	if !ok {
		return core.Account{}, core.Errorf(core.KindNotFound, "account not found")
	}
	return a, nil
}

func (tx memTx) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	t, ok := tx.s.transactions[id]
	if !ok {
		return core.Transaction{}, core.Errorf(core.KindNotFound, "transaction not found")
	}
	return t, nil
}

func (tx memTx) GetGoal(_ context.Context, id string) (core.Goal, error) {
	g, ok := tx.s.goals[id]
	if !ok {
		return core.Goal{}, core.Errorf(core.KindNotFound, "goal not found")
	}
	return g, nil
}

func (tx memTx) GetLoanTracker(_ context.Context, id string) (core.LoanTracker, error) {
	lt, ok := tx.s.loans[id]
	if !ok {
		return core.LoanTracker{}, core.Errorf(core.KindNotFound, "loan tracker not found")
	}
	return lt, nil
}

func (tx memTx) GetSavingsTracker(_ context.Context, id string) (core.SavingsTracker, error) {
	st, ok := tx.s.savings[id]
	if !ok {
		return core.SavingsTracker{}, core.Errorf(core.KindNotFound, "savings tracker not found")
	}
	return st, nil
}

func (tx memTx) InsertTransaction(_ context.Context, t core.Transaction) error {
	tx.s.transactions[t.ID] = t
	return nil
}

func (tx memTx) UpdateTransaction(_ context.Context, t core.Transaction) error {
	if _, ok := tx.s.transactions[t.ID]; !ok {
		return core.Errorf(core.KindNotFound, "transaction not found")
	}
	tx.s.transactions[t.ID] = t
	return nil
}

func (tx memTx) DeleteTransaction(_ context.Context, id string) error {
	if _, ok := tx.s.transactions[id]; !ok {
		return core.Errorf(core.KindNotFound, "transaction not found")
	}
	delete(tx.s.transactions, id)
	return nil
}

func (tx memTx) PutAccount(_ context.Context, a core.Account) error {
	if _, ok := tx.s.accounts[a.ID]; !ok {
		return core.Errorf(core.KindNotFound, "account not found")
	}
	tx.s.accounts[a.ID] = a
	return nil
}

func (tx memTx) UpdateBudgetSpent(_ context.Context, id string, spent decimal.Decimal, at time.Time) error {
	b, ok := tx.s.budgets[id]
	if !ok {
		return core.Errorf(core.KindNotFound, "budget not found")
	}
	b.SpentAmount = spent
	b.UpdatedAt = at
	tx.s.budgets[id] = b
	return nil
}

func (tx memTx) PutGoal(_ context.Context, g core.Goal) error {
	if _, ok := tx.s.goals[g.ID]; !ok {
		return core.Errorf(core.KindNotFound, "goal not found")
	}
	tx.s.goals[g.ID] = g
	return nil
}

func (tx memTx) PutLoanTracker(_ context.Context, lt core.LoanTracker) error {
	if _, ok := tx.s.loans[lt.ID]; !ok {
		return core.Errorf(core.KindNotFound, "loan tracker not found")
	}
	tx.s.loans[lt.ID] = lt
	return nil
}

func (tx memTx) TouchSavingsTracker(_ context.Context, id string, at time.Time) error {
	st, ok := tx.s.savings[id]
	if !ok {
		return core.Errorf(core.KindNotFound, "savings tracker not found")
	}
	st.UpdatedAt = at
	tx.s.savings[id] = st
	return nil
}

func (tx memTx) ListBudgetsCovering(_ context.Context, userID string, date core.Date) ([]core.Budget, error) {
	return budgetsCovering(tx.s.budgets, userID, date), nil
}

func (tx memTx) ListBudgetTemplates(_ context.Context, userID string) ([]core.RecurringBudgetTemplate, error) {
	return templatesFor(tx.s.templates, userID), nil
}

func (tx memTx) SumExpenses(_ context.Context, userID string, q ledger.SpentQuery) (decimal.Decimal, error) {
	return sumExpenses(tx.s.transactions, userID, q), nil
}

func (tx memTx) Budgetable(_ context.Context, userID, categoryID string) (bool, error) {
	c, ok := tx.s.categories[categoryID]
	if !ok || c.userID != userID {
		// Unknown categories default to budgetable.
		return true, nil
	}
	return c.budgetable, nil
}

// Plain read path.

func (st *Store) GetAccount(_ context.Context, id string) (core.Account, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	a, ok := st.accounts[id]
	if !ok {
		return core.Account{}, core.Errorf(core.KindNotFound, "account not found")
	}
	return a, nil
}

func (st *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	t, ok := st.transactions[id]
	if !ok {
		return core.Transaction{}, core.Errorf(core.KindNotFound, "transaction not found")
	}
	return t, nil
}

func (st *Store) ListTransactions(_ context.Context, userID string, f ledger.TransactionFilter) ([]core.Transaction, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []core.Transaction
	for _, t := range st.transactions {
		if t.UserID != userID {
			continue
		}
		if f.Year != 0 && t.Date.Year() != f.Year {
			continue
		}
		if f.Month != 0 && t.Date.Month() != f.Month {
			continue
		}
		if f.CategoryID != "" && t.CategoryID != f.CategoryID {
			continue
		}
		if f.AccountID != "" && t.AccountID != f.AccountID {
			continue
		}
		out = append(out, t)
	}
	sortTransactions(out)
	return out, nil
}

func (st *Store) ListBudgetsCovering(_ context.Context, userID string, date core.Date) ([]core.Budget, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return budgetsCovering(st.budgets, userID, date), nil
}

func (st *Store) ListBudgetsOverlapping(_ context.Context, userID string, start, end core.Date) ([]core.Budget, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []core.Budget
	for _, b := range st.budgets {
		if b.UserID != userID {
			continue
		}
		if b.StartDate.After(end.Time) || b.EndDate.Before(start.Time) {
			continue
		}
		out = append(out, b)
	}
	sortBudgets(out)
	return out, nil
}

func (st *Store) ListBudgetTemplates(_ context.Context, userID string) ([]core.RecurringBudgetTemplate, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return templatesFor(st.templates, userID), nil
}

func (st *Store) SumExpenses(_ context.Context, userID string, q ledger.SpentQuery) (decimal.Decimal, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return sumExpenses(st.transactions, userID, q), nil
}

func (st *Store) GetAggregate(_ context.Context, userID string, year, month int) (core.MonthlyAggregate, bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	agg, ok := st.aggregates[aggKey(userID, year, month)]
	return agg, ok, nil
}

func (st *Store) PutAggregate(_ context.Context, agg core.MonthlyAggregate) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.aggregates[aggKey(agg.UserID, agg.Year, agg.Month)] = agg
	return nil
}

// Seeding helpers for tests and the memory backend.

func (st *Store) CreateAccount(_ context.Context, a core.Account) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.accounts[a.ID] = a
	return nil
}

func (st *Store) CreateCategory(_ context.Context, id, userID, name string, budgetable bool, _ time.Time) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.categories[id] = category{userID: userID, name: name, budgetable: budgetable}
	return nil
}

func (st *Store) CreateBudget(_ context.Context, b core.Budget) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.budgets[b.ID] = b
	return nil
}

func (st *Store) CreateBudgetTemplate(_ context.Context, tpl core.RecurringBudgetTemplate) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.templates[tpl.ID] = tpl
	return nil
}

func (st *Store) CreateGoal(_ context.Context, g core.Goal) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.goals[g.ID] = g
	return nil
}

func (st *Store) CreateLoanTracker(_ context.Context, lt core.LoanTracker) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.loans[lt.ID] = lt
	return nil
}

func (st *Store) CreateSavingsTracker(_ context.Context, tr core.SavingsTracker) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.savings[tr.ID] = tr
	return nil
}

func (st *Store) GetGoal(_ context.Context, id string) (core.Goal, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	g, ok := st.goals[id]
	if !ok {
		return core.Goal{}, core.Errorf(core.KindNotFound, "goal not found")
	}
	return g, nil
}

func (st *Store) GetLoanTracker(_ context.Context, id string) (core.LoanTracker, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	lt, ok := st.loans[id]
	if !ok {
		return core.LoanTracker{}, core.Errorf(core.KindNotFound, "loan tracker not found")
	}
	return lt, nil
}

func (st *Store) GetSavingsTracker(_ context.Context, id string) (core.SavingsTracker, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	tr, ok := st.savings[id]
	if !ok {
		return core.SavingsTracker{}, core.Errorf(core.KindNotFound, "savings tracker not found")
	}
	return tr, nil
}

// Shared filter logic between the transactional and plain read paths.

func budgetsCovering(budgets map[string]core.Budget, userID string, date core.Date) []core.Budget {
	var out []core.Budget
	for _, b := range budgets {
		if b.UserID != userID || !b.Covers(date) {
			continue
		}
		out = append(out, b)
	}
	sortBudgets(out)
	return out
}

func templatesFor(templates map[string]core.RecurringBudgetTemplate, userID string) []core.RecurringBudgetTemplate {
	var out []core.RecurringBudgetTemplate
	for _, tpl := range templates {
		if tpl.UserID == userID {
			out = append(out, tpl)
		}
	}
	sortTemplates(out)
	return out
}

func sumExpenses(transactions map[string]core.Transaction, userID string, q ledger.SpentQuery) decimal.Decimal {
	total := decimal.Zero
	for _, t := range transactions {
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
	return total
}
