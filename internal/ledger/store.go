// Package ledger implements the ledger consistency engine: whenever a
// transaction or transfer is created, edited or deleted, the coordinator
// atomically keeps account balances, budget spent totals, goal progress,
// loan payoff progress and savings tracker bookkeeping in agreement with it.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
)

// TransactionFilter narrows ListTransactions. Zero values mean "any".
type TransactionFilter struct {
	Year       int
	Month      int
	CategoryID string
	AccountID  string
}

// SpentQuery selects the expense transactions whose amounts make up a
// budget's spent total: expenses inside [Start, End], matching the category
// selector, transfer legs always excluded.
type SpentQuery struct {
	CategoryID string
	Overall    bool
	Start      core.Date
	End        core.Date
}

// BudgetSource is the slice of the store the budget resolver needs. Both a
// live transaction and the plain read path satisfy it, so the same resolver
// serves writes and recomputing read paths.
type BudgetSource interface {
	ListBudgetsCovering(ctx context.Context, userID string, date core.Date) ([]core.Budget, error)
	ListBudgetTemplates(ctx context.Context, userID string) ([]core.RecurringBudgetTemplate, error)
	SumExpenses(ctx context.Context, userID string, q SpentQuery) (decimal.Decimal, error)
}

// Tx is one atomic unit against the store. The coordinator issues every
// read it needs before the first write; implementations may rely on that
// ordering. Budgetable must run on the transaction's own snapshot or
// connection: implementations whose RunTransaction holds a lock or pins
// the sole pooled connection would deadlock against a lookup routed
// through the plain read path.
type Tx interface {
	BudgetSource

	// Budgetable answers whether a category participates in budgeting.
	// Unknown categories count as budgetable.
	Budgetable(ctx context.Context, userID, categoryID string) (bool, error)

	GetAccount(ctx context.Context, id string) (core.Account, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	GetGoal(ctx context.Context, id string) (core.Goal, error)
	GetLoanTracker(ctx context.Context, id string) (core.LoanTracker, error)
	GetSavingsTracker(ctx context.Context, id string) (core.SavingsTracker, error)

	InsertTransaction(ctx context.Context, t core.Transaction) error
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	PutAccount(ctx context.Context, a core.Account) error
	UpdateBudgetSpent(ctx context.Context, id string, spent decimal.Decimal, at time.Time) error
	PutGoal(ctx context.Context, g core.Goal) error
	PutLoanTracker(ctx context.Context, lt core.LoanTracker) error
	TouchSavingsTracker(ctx context.Context, id string, at time.Time) error
}

// Store is the transactional store boundary the engine is built against.
// RunTransaction runs fn as one atomic commit and retries it from scratch,
// up to a bounded count, when a concurrent writer conflicts; exhausting the
// retries surfaces a conflict-kinded error. Nothing fn wrote is visible
// unless it returns nil.
type Store interface {
	BudgetSource

	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	GetAccount(ctx context.Context, id string) (core.Account, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, userID string, f TransactionFilter) ([]core.Transaction, error)
	ListBudgetsOverlapping(ctx context.Context, userID string, start, end core.Date) ([]core.Budget, error)
	GetAggregate(ctx context.Context, userID string, year, month int) (core.MonthlyAggregate, bool, error)
	PutAggregate(ctx context.Context, agg core.MonthlyAggregate) error
}

// Event describes a committed ledger operation. Consumers use it to refresh
// derived read models such as monthly aggregate snapshots.
type Event struct {
	Op            string
	TransactionID string
	UserID        string
	Periods       []Period
}

// Period is one (year, month) affected by a ledger event.
type Period struct {
	Year  int
	Month int
}

// EventPublisher fans committed ledger events out to interested consumers.
// Publishing happens after commit and is best effort.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev Event) error
}
