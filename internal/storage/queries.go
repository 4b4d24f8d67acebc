package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/ledger"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so one query set serves the
// plain read path and transactional access.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

func timeToCol(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func timeFromCol(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func dateToCol(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func dateFromCol(s string) core.Date {
	if s == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}
	}
	return d
}

func decFromCol(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

const accountCols = `id, user_id, name, class, currency, balance, created_at, updated_at`

func (q *queries) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (core.Account, error) {
	var a core.Account
	var balance, createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.UserID, &a.Name, (*string)(&a.Class), &a.Currency, &balance, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return core.Account{}, core.Errorf(core.KindNotFound, "account not found")
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("scan account: %w", err)
	}
	a.Balance = decFromCol(balance)
	a.CreatedAt = timeFromCol(createdAt)
	a.UpdatedAt = timeFromCol(updatedAt)
	return a, nil
}

func (q *queries) InsertAccount(ctx context.Context, a core.Account) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, string(a.Class), a.Currency, a.Balance.String(),
		timeToCol(a.CreatedAt), timeToCol(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (q *queries) PutAccount(ctx context.Context, a core.Account) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE accounts SET name = ?, currency = ?, balance = ?, updated_at = ?
		WHERE id = ?`,
		a.Name, a.Currency, a.Balance.String(), timeToCol(a.UpdatedAt), a.ID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return requireRow(res, "account")
}

const transactionCols = `id, user_id, account_id, category_id, type, amount, date, description,
	goal_id, loan_tracker_id, savings_tracker_id, transfer_peer_id, loan_principal, source,
	created_at, updated_at`

func (q *queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+transactionCols+` FROM transactions WHERE id = ?`, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
		}
		return core.Transaction{}, core.Errorf(core.KindNotFound, "transaction not found")
	}
	return scanTransaction(rows)
}

func scanTransaction(rows *sql.Rows) (core.Transaction, error) {
	var t core.Transaction
	var amount, date, principal, createdAt, updatedAt string
	err := rows.Scan(&t.ID, &t.UserID, &t.AccountID, &t.CategoryID, (*string)(&t.Type),
		&amount, &date, &t.Description, &t.GoalID, &t.LoanTrackerID, &t.SavingsTrackerID,
		&t.TransferPeerID, &principal, (*string)(&t.Source), &createdAt, &updatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Amount = decFromCol(amount)
	t.Date = dateFromCol(date)
	t.LoanPrincipal = decFromCol(principal)
	t.CreatedAt = timeFromCol(createdAt)
	t.UpdatedAt = timeFromCol(updatedAt)
	return t, nil
}

func (q *queries) InsertTransaction(ctx context.Context, t core.Transaction) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.AccountID, t.CategoryID, string(t.Type), t.Amount.String(),
		dateToCol(t.Date), t.Description, t.GoalID, t.LoanTrackerID, t.SavingsTrackerID,
		t.TransferPeerID, t.LoanPrincipal.String(), string(t.Source),
		timeToCol(t.CreatedAt), timeToCol(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (q *queries) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE transactions SET account_id = ?, category_id = ?, type = ?, amount = ?,
			date = ?, description = ?, goal_id = ?, loan_tracker_id = ?,
			savings_tracker_id = ?, loan_principal = ?, updated_at = ?
		WHERE id = ?`,
		t.AccountID, t.CategoryID, string(t.Type), t.Amount.String(), dateToCol(t.Date),
		t.Description, t.GoalID, t.LoanTrackerID, t.SavingsTrackerID,
		t.LoanPrincipal.String(), timeToCol(t.UpdatedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return requireRow(res, "transaction")
}

func (q *queries) DeleteTransaction(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return requireRow(res, "transaction")
}

func (q *queries) ListTransactions(ctx context.Context, userID string, f ledger.TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + transactionCols + ` FROM transactions WHERE user_id = ?`
	args := []any{userID}
	if f.Year != 0 && f.Month != 0 {
		query += ` AND date >= ? AND date <= ?`
		args = append(args, core.MonthStart(f.Year, f.Month).String(), core.MonthEnd(f.Year, f.Month).String())
	} else if f.Year != 0 {
		query += ` AND date >= ? AND date <= ?`
		args = append(args, core.NewDate(f.Year, 1, 1).String(), core.NewDate(f.Year, 12, 31).String())
	}
	if f.CategoryID != "" {
		query += ` AND category_id = ?`
		args = append(args, f.CategoryID)
	}
	if f.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, f.AccountID)
	}
	query += ` ORDER BY date DESC, created_at DESC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SumExpenses sums in Go over decimal strings; SQLite's SUM would coerce
// the text amounts to floats.
func (q *queries) SumExpenses(ctx context.Context, userID string, sq ledger.SpentQuery) (decimal.Decimal, error) {
	query := `SELECT amount FROM transactions
		WHERE user_id = ? AND type = 'expense' AND source != 'transfer'
		AND date >= ? AND date <= ?`
	args := []any{userID, sq.Start.String(), sq.End.String()}
	if !sq.Overall {
		query += ` AND category_id = ?`
		args = append(args, sq.CategoryID)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("scan expense amount: %w", err)
		}
		total = total.Add(decFromCol(amount))
	}
	return total, rows.Err()
}

const budgetCols = `id, user_id, category_id, overall, amount, spent_amount, start_date, end_date,
	template_id, created_at, updated_at`

func scanBudget(rows *sql.Rows) (core.Budget, error) {
	var b core.Budget
	var overall int
	var amount, spent, start, end, createdAt, updatedAt string
	err := rows.Scan(&b.ID, &b.UserID, &b.CategoryID, &overall, &amount, &spent,
		&start, &end, &b.TemplateID, &createdAt, &updatedAt)
	if err != nil {
		return core.Budget{}, fmt.Errorf("scan budget: %w", err)
	}
	b.Overall = overall != 0
	b.Amount = decFromCol(amount)
	b.SpentAmount = decFromCol(spent)
	b.StartDate = dateFromCol(start)
	b.EndDate = dateFromCol(end)
	b.CreatedAt = timeFromCol(createdAt)
	b.UpdatedAt = timeFromCol(updatedAt)
	return b, nil
}

func (q *queries) listBudgets(ctx context.Context, query string, args ...any) ([]core.Budget, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q *queries) ListBudgetsCovering(ctx context.Context, userID string, date core.Date) ([]core.Budget, error) {
	return q.listBudgets(ctx, `SELECT `+budgetCols+` FROM budgets
		WHERE user_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date`, userID, date.String(), date.String())
}

func (q *queries) ListBudgetsOverlapping(ctx context.Context, userID string, start, end core.Date) ([]core.Budget, error) {
	return q.listBudgets(ctx, `SELECT `+budgetCols+` FROM budgets
		WHERE user_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date`, userID, end.String(), start.String())
}

func (q *queries) InsertBudget(ctx context.Context, b core.Budget) error {
	overall := 0
	if b.Overall {
		overall = 1
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO budgets (`+budgetCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.CategoryID, overall, b.Amount.String(), b.SpentAmount.String(),
		dateToCol(b.StartDate), dateToCol(b.EndDate), b.TemplateID,
		timeToCol(b.CreatedAt), timeToCol(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert budget: %w", err)
	}
	return nil
}

func (q *queries) UpdateBudgetSpent(ctx context.Context, id string, spent decimal.Decimal, at time.Time) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE budgets SET spent_amount = ?, updated_at = ? WHERE id = ?`,
		spent.String(), timeToCol(at), id)
	if err != nil {
		return fmt.Errorf("update budget spent: %w", err)
	}
	return requireRow(res, "budget")
}

const templateCols = `id, user_id, category_id, overall, amount, frequency, start_date, end_date,
	created_at, updated_at`

func (q *queries) ListBudgetTemplates(ctx context.Context, userID string) ([]core.RecurringBudgetTemplate, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+templateCols+` FROM recurring_budgets
		WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budget templates: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringBudgetTemplate
	for rows.Next() {
		var tpl core.RecurringBudgetTemplate
		var overall int
		var amount, start, end, createdAt, updatedAt string
		err := rows.Scan(&tpl.ID, &tpl.UserID, &tpl.CategoryID, &overall, &amount,
			(*string)(&tpl.Frequency), &start, &end, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan budget template: %w", err)
		}
		tpl.Overall = overall != 0
		tpl.Amount = decFromCol(amount)
		tpl.StartDate = dateFromCol(start)
		tpl.EndDate = dateFromCol(end)
		tpl.CreatedAt = timeFromCol(createdAt)
		tpl.UpdatedAt = timeFromCol(updatedAt)
		out = append(out, tpl)
	}
	return out, rows.Err()
}

func (q *queries) InsertBudgetTemplate(ctx context.Context, tpl core.RecurringBudgetTemplate) error {
	overall := 0
	if tpl.Overall {
		overall = 1
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO recurring_budgets (`+templateCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tpl.ID, tpl.UserID, tpl.CategoryID, overall, tpl.Amount.String(), string(tpl.Frequency),
		dateToCol(tpl.StartDate), dateToCol(tpl.EndDate),
		timeToCol(tpl.CreatedAt), timeToCol(tpl.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert budget template: %w", err)
	}
	return nil
}

const goalCols = `id, user_id, name, target_amount, current_amount, target_date, status,
	created_at, updated_at`

func (q *queries) GetGoal(ctx context.Context, id string) (core.Goal, error) {
	var g core.Goal
	var target, current, targetDate, createdAt, updatedAt string
	err := q.db.QueryRowContext(ctx, `SELECT `+goalCols+` FROM goals WHERE id = ?`, id).
		Scan(&g.ID, &g.UserID, &g.Name, &target, &current, &targetDate,
			(*string)(&g.Status), &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return core.Goal{}, core.Errorf(core.KindNotFound, "goal not found")
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("get goal: %w", err)
	}
	g.TargetAmount = decFromCol(target)
	g.CurrentAmount = decFromCol(current)
	g.TargetDate = dateFromCol(targetDate)
	g.CreatedAt = timeFromCol(createdAt)
	g.UpdatedAt = timeFromCol(updatedAt)
	return g, nil
}

func (q *queries) InsertGoal(ctx context.Context, g core.Goal) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO goals (`+goalCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Name, g.TargetAmount.String(), g.CurrentAmount.String(),
		dateToCol(g.TargetDate), string(g.Status), timeToCol(g.CreatedAt), timeToCol(g.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

func (q *queries) PutGoal(ctx context.Context, g core.Goal) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE goals SET name = ?, target_amount = ?, current_amount = ?, target_date = ?,
			status = ?, updated_at = ?
		WHERE id = ?`,
		g.Name, g.TargetAmount.String(), g.CurrentAmount.String(), dateToCol(g.TargetDate),
		string(g.Status), timeToCol(g.UpdatedAt), g.ID)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return requireRow(res, "goal")
}

const loanCols = `id, user_id, name, total_amount, emi_amount, interest_rate, tenure_months,
	paid_installments, remaining_balance, next_due_date, created_at, updated_at`

func (q *queries) GetLoanTracker(ctx context.Context, id string) (core.LoanTracker, error) {
	var lt core.LoanTracker
	var total, emi, rate, remaining, nextDue, createdAt, updatedAt string
	err := q.db.QueryRowContext(ctx, `SELECT `+loanCols+` FROM loan_trackers WHERE id = ?`, id).
		Scan(&lt.ID, &lt.UserID, &lt.Name, &total, &emi, &rate, &lt.TenureMonths,
			&lt.PaidInstallments, &remaining, &nextDue, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return core.LoanTracker{}, core.Errorf(core.KindNotFound, "loan tracker not found")
	}
	if err != nil {
		return core.LoanTracker{}, fmt.Errorf("get loan tracker: %w", err)
	}
	lt.TotalAmount = decFromCol(total)
	lt.EMIAmount = decFromCol(emi)
	lt.InterestRate = decFromCol(rate)
	lt.RemainingBalance = decFromCol(remaining)
	lt.NextDueDate = dateFromCol(nextDue)
	lt.CreatedAt = timeFromCol(createdAt)
	lt.UpdatedAt = timeFromCol(updatedAt)
	return lt, nil
}

func (q *queries) InsertLoanTracker(ctx context.Context, lt core.LoanTracker) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO loan_trackers (`+loanCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lt.ID, lt.UserID, lt.Name, lt.TotalAmount.String(), lt.EMIAmount.String(),
		lt.InterestRate.String(), lt.TenureMonths, lt.PaidInstallments,
		lt.RemainingBalance.String(), dateToCol(lt.NextDueDate),
		timeToCol(lt.CreatedAt), timeToCol(lt.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert loan tracker: %w", err)
	}
	return nil
}

func (q *queries) PutLoanTracker(ctx context.Context, lt core.LoanTracker) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE loan_trackers SET paid_installments = ?, remaining_balance = ?,
			next_due_date = ?, updated_at = ?
		WHERE id = ?`,
		lt.PaidInstallments, lt.RemainingBalance.String(), dateToCol(lt.NextDueDate),
		timeToCol(lt.UpdatedAt), lt.ID)
	if err != nil {
		return fmt.Errorf("update loan tracker: %w", err)
	}
	return requireRow(res, "loan tracker")
}

const savingsCols = `id, user_id, account_id, goal_id, monthly_target, overall_target,
	created_at, updated_at`

func (q *queries) GetSavingsTracker(ctx context.Context, id string) (core.SavingsTracker, error) {
	var st core.SavingsTracker
	var monthly, overall, createdAt, updatedAt string
	err := q.db.QueryRowContext(ctx, `SELECT `+savingsCols+` FROM savings_trackers WHERE id = ?`, id).
		Scan(&st.ID, &st.UserID, &st.AccountID, &st.GoalID, &monthly, &overall, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return core.SavingsTracker{}, core.Errorf(core.KindNotFound, "savings tracker not found")
	}
	if err != nil {
		return core.SavingsTracker{}, fmt.Errorf("get savings tracker: %w", err)
	}
	st.MonthlyTarget = decFromCol(monthly)
	st.OverallTarget = decFromCol(overall)
	st.CreatedAt = timeFromCol(createdAt)
	st.UpdatedAt = timeFromCol(updatedAt)
	return st, nil
}

func (q *queries) InsertSavingsTracker(ctx context.Context, st core.SavingsTracker) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO savings_trackers (`+savingsCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.UserID, st.AccountID, st.GoalID, st.MonthlyTarget.String(),
		st.OverallTarget.String(), timeToCol(st.CreatedAt), timeToCol(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert savings tracker: %w", err)
	}
	return nil
}

func (q *queries) TouchSavingsTracker(ctx context.Context, id string, at time.Time) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE savings_trackers SET updated_at = ? WHERE id = ?`, timeToCol(at), id)
	if err != nil {
		return fmt.Errorf("touch savings tracker: %w", err)
	}
	return requireRow(res, "savings tracker")
}

func (q *queries) InsertCategory(ctx context.Context, id, userID, name string, budgetable bool, at time.Time) error {
	b := 0
	if budgetable {
		b = 1
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO categories (id, user_id, name, budgetable, created_at)
		VALUES (?, ?, ?, ?, ?)`, id, userID, name, b, timeToCol(at))
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// Budgetable implements the category gate: unknown categories default to
// budgetable so the engine degrades to counting everything.
func (q *queries) Budgetable(ctx context.Context, userID, categoryID string) (bool, error) {
	var b int
	err := q.db.QueryRowContext(ctx, `
		SELECT budgetable FROM categories WHERE id = ? AND user_id = ?`, categoryID, userID).Scan(&b)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("category lookup: %w", err)
	}
	return b != 0, nil
}

func (q *queries) GetAggregate(ctx context.Context, userID string, year, month int) (core.MonthlyAggregate, bool, error) {
	var payload, computedAt string
	err := q.db.QueryRowContext(ctx, `
		SELECT payload, computed_at FROM monthly_aggregates
		WHERE user_id = ? AND year = ? AND month = ?`, userID, year, month).
		Scan(&payload, &computedAt)
	if err == sql.ErrNoRows {
		return core.MonthlyAggregate{}, false, nil
	}
	if err != nil {
		return core.MonthlyAggregate{}, false, fmt.Errorf("get aggregate: %w", err)
	}
	var agg core.MonthlyAggregate
	if err := json.Unmarshal([]byte(payload), &agg); err != nil {
		return core.MonthlyAggregate{}, false, fmt.Errorf("decode aggregate payload: %w", err)
	}
	agg.ComputedAt = timeFromCol(computedAt)
	return agg, true, nil
}

func (q *queries) PutAggregate(ctx context.Context, agg core.MonthlyAggregate) error {
	payload, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("encode aggregate payload: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO monthly_aggregates (user_id, year, month, payload, computed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, year, month) DO UPDATE SET
			payload = excluded.payload, computed_at = excluded.computed_at`,
		agg.UserID, agg.Year, agg.Month, string(payload), timeToCol(agg.ComputedAt))
	if err != nil {
		return fmt.Errorf("put aggregate: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.Errorf(core.KindNotFound, "%s not found", entity)
	}
	return nil
}
