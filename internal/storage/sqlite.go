// Package storage provides the SQLite persistence layer behind the ledger
// engine. It uses the pure-Go modernc.org/sqlite driver, so no cgo.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/log"
)

const defaultRetryLimit = 5

// Repository is the SQLite-backed ledger.Store. A single write transaction
// runs at a time; concurrent writers hit SQLITE_BUSY, which RunTransaction
// absorbs with a bounded retry before reporting a conflict.
type Repository struct {
	db         *sql.DB
	q          *queries
	retryLimit int
	logger     *log.Logger
}

var _ ledger.Store = (*Repository)(nil)

// NewRepository opens the database at path, applies pending migrations and
// returns the repository. retryLimit bounds transaction retries on busy
// errors; zero or negative selects the default.
func NewRepository(path string, retryLimit int, logger *log.Logger) (*Repository, error) {
	if err := RunMigrations(path); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc's driver serializes writes per connection; a single connection
	// avoids busy errors between our own goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if retryLimit <= 0 {
		retryLimit = defaultRetryLimit
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Repository{
		db:         db,
		q:          &queries{db: db},
		retryLimit: retryLimit,
		logger:     logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// sqliteTx adapts queries over a live *sql.Tx to ledger.Tx.
type sqliteTx struct {
	*queries
}

// RunTransaction runs fn inside an immediate transaction and retries it from
// scratch while the database is busy. Exhausting the retries reports a
// conflict so callers can surface it like any other write contention.
func (r *Repository) RunTransaction(ctx context.Context, fn func(tx ledger.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < r.retryLimit; attempt++ {
		err := r.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		lastErr = err
		r.logger.WarnContext(ctx, "transaction busy, retrying",
			log.FieldAttempt, attempt+1, log.FieldError, err.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return core.WrapErr(core.KindConflict, "transaction retries exhausted", lastErr)
}

func (r *Repository) runOnce(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(sqliteTx{&queries{db: tx}}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// Plain read path, delegated to the shared query set.

func (r *Repository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return r.q.GetAccount(ctx, id)
}

func (r *Repository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return r.q.GetTransaction(ctx, id)
}

func (r *Repository) ListTransactions(ctx context.Context, userID string, f ledger.TransactionFilter) ([]core.Transaction, error) {
	return r.q.ListTransactions(ctx, userID, f)
}

func (r *Repository) ListBudgetsCovering(ctx context.Context, userID string, date core.Date) ([]core.Budget, error) {
	return r.q.ListBudgetsCovering(ctx, userID, date)
}

func (r *Repository) ListBudgetsOverlapping(ctx context.Context, userID string, start, end core.Date) ([]core.Budget, error) {
	return r.q.ListBudgetsOverlapping(ctx, userID, start, end)
}

func (r *Repository) ListBudgetTemplates(ctx context.Context, userID string) ([]core.RecurringBudgetTemplate, error) {
	return r.q.ListBudgetTemplates(ctx, userID)
}

func (r *Repository) SumExpenses(ctx context.Context, userID string, sq ledger.SpentQuery) (decimal.Decimal, error) {
	return r.q.SumExpenses(ctx, userID, sq)
}

func (r *Repository) GetAggregate(ctx context.Context, userID string, year, month int) (core.MonthlyAggregate, bool, error) {
	return r.q.GetAggregate(ctx, userID, year, month)
}

func (r *Repository) PutAggregate(ctx context.Context, agg core.MonthlyAggregate) error {
	return r.q.PutAggregate(ctx, agg)
}

// Collaborator CRUD. Accounts, categories, budgets and trackers are owned by
// their own endpoints; the ledger engine only mutates them through effects.

func (r *Repository) CreateAccount(ctx context.Context, a core.Account) error {
	return r.q.InsertAccount(ctx, a)
}

func (r *Repository) CreateCategory(ctx context.Context, id, userID, name string, budgetable bool, at time.Time) error {
	return r.q.InsertCategory(ctx, id, userID, name, budgetable, at)
}

func (r *Repository) CreateBudget(ctx context.Context, b core.Budget) error {
	return r.q.InsertBudget(ctx, b)
}

func (r *Repository) CreateBudgetTemplate(ctx context.Context, tpl core.RecurringBudgetTemplate) error {
	return r.q.InsertBudgetTemplate(ctx, tpl)
}

func (r *Repository) CreateGoal(ctx context.Context, g core.Goal) error {
	return r.q.InsertGoal(ctx, g)
}

func (r *Repository) CreateLoanTracker(ctx context.Context, lt core.LoanTracker) error {
	return r.q.InsertLoanTracker(ctx, lt)
}

func (r *Repository) CreateSavingsTracker(ctx context.Context, st core.SavingsTracker) error {
	return r.q.InsertSavingsTracker(ctx, st)
}

func (r *Repository) GetGoal(ctx context.Context, id string) (core.Goal, error) {
	return r.q.GetGoal(ctx, id)
}

func (r *Repository) GetLoanTracker(ctx context.Context, id string) (core.LoanTracker, error) {
	return r.q.GetLoanTracker(ctx, id)
}

func (r *Repository) GetSavingsTracker(ctx context.Context, id string) (core.SavingsTracker, error) {
	return r.q.GetSavingsTracker(ctx, id)
}
