package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	AssetAccount     AccountClass = "asset"
	LiabilityAccount AccountClass = "liability"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	SourceManual         TransactionSource = "manual"
	SourceTransfer       TransactionSource = "transfer"
	SourceGoal           TransactionSource = "goal_contribution"
	SourceLoanPayment    TransactionSource = "loan_payment"
	SourceSavings        TransactionSource = "savings_contribution"
	SourceReconciliation TransactionSource = "reconciliation"
)

const (
	GoalInProgress GoalStatus = "in_progress"
	GoalCompleted  GoalStatus = "completed"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

type (
	AccountClass      string
	TransactionType   string
	TransactionSource string
	GoalStatus        string
	Frequency         string

	// Date is a day-granular calendar date. The time component is always
	// midnight UTC.
	Date struct {
		time.Time
	}

	Account struct {
		ID        string
		UserID    string
		Name      string
		Class     AccountClass
		Currency  string
		Balance   decimal.Decimal
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// Transaction is an immutable ledger fact. It is created, edited and
	// deleted only through the ledger coordinator, which keeps every
	// dependent record (account balance, budget spent totals, goal and
	// tracker progress) in agreement with it.
	Transaction struct {
		ID               string
		UserID           string
		AccountID        string
		CategoryID       string // empty when uncategorized or a transfer leg
		Type             TransactionType
		Amount           decimal.Decimal
		Date             Date
		Description      string
		GoalID           string
		LoanTrackerID    string
		SavingsTrackerID string
		TransferPeerID   string // the paired leg, set only on transfers
		// LoanPrincipal is the principal portion actually applied to the
		// linked loan tracker, recorded at apply time so a delete can
		// reverse exactly what was applied.
		LoanPrincipal    decimal.Decimal
		Source           TransactionSource
		CreatedAt        time.Time
		UpdatedAt        time.Time
	}

	// Budget is an explicit budgeted amount for a category (or overall)
	// over a [StartDate, EndDate] window. Virtual windows materialized from
	// a RecurringBudgetTemplate carry Virtual=true and an empty ID; their
	// SpentAmount is always recomputed from transactions, never stored.
	Budget struct {
		ID          string
		UserID      string
		CategoryID  string // empty when Overall
		Overall     bool
		Amount      decimal.Decimal
		SpentAmount decimal.Decimal
		StartDate   Date
		EndDate     Date
		TemplateID  string
		Virtual     bool
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	RecurringBudgetTemplate struct {
		ID         string
		UserID     string
		CategoryID string // empty when Overall
		Overall    bool
		Amount     decimal.Decimal
		Frequency  Frequency
		StartDate  Date
		EndDate    Date // zero when open-ended
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	Goal struct {
		ID            string
		UserID        string
		Name          string
		TargetAmount  decimal.Decimal
		CurrentAmount decimal.Decimal
		TargetDate    Date
		Status        GoalStatus
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	LoanTracker struct {
		ID               string
		UserID           string
		Name             string
		TotalAmount      decimal.Decimal
		EMIAmount        decimal.Decimal
		InterestRate     decimal.Decimal // annual percentage
		TenureMonths     int
		PaidInstallments int
		RemainingBalance decimal.Decimal
		NextDueDate      Date
		CreatedAt        time.Time
		UpdatedAt        time.Time
	}

	// SavingsTracker links an account to an optional goal with optional
	// targets. Its balance is always the linked account's balance at read
	// time; the row stores no money of its own.
	SavingsTracker struct {
		ID            string
		UserID        string
		AccountID     string
		GoalID        string
		MonthlyTarget decimal.Decimal
		OverallTarget decimal.Decimal
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}
)

var (
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidDate     = errors.New("invalid date")
	ErrMissingCategory = errors.New("expense requires a category")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidClass    = errors.New("invalid account class")
	ErrInvalidRule     = errors.New("invalid recurrence rule")
)

// NewDate builds a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

// Day returns the day of the month.
func (d Date) Day() int { return d.Time.Day() }

// Month returns the month as an int.
func (d Date) Month() int { return int(d.Time.Month()) }

// Year returns the year.
func (d Date) Year() int { return d.Time.Year() }

// AddDays returns the date shifted by n days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

// AddMonths returns the date shifted by n months, clamping the day to the
// last day of the resulting month so Jan 31 + 1 month is Feb 28/29.
func (d Date) AddMonths(n int) Date {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return NewDate(first.Year(), int(first.Month()), day)
}

// MonthStart returns the first day of (year, month).
func MonthStart(year, month int) Date {
	return NewDate(year, month, 1)
}

// MonthEnd returns the last day of (year, month).
func MonthEnd(year, month int) Date {
	return Date{Time: time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)}
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (c AccountClass) Valid() bool {
	return c == AssetAccount || c == LiabilityAccount
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// IsTransferLeg reports whether the transaction is one half of a transfer.
// Transfer legs never count against any budget.
func (t Transaction) IsTransferLeg() bool {
	return t.Source == SourceTransfer
}

// Validate checks the transaction invariants: a positive amount, a valid
// type, a real date, and a category on every expense that is not a transfer
// leg.
func (t Transaction) Validate() error {
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if t.Type == Expense && t.CategoryID == "" && !t.IsTransferLeg() {
		return ErrMissingCategory
	}
	return nil
}

// Covers reports whether the budget window contains d.
func (b Budget) Covers(d Date) bool {
	return !d.Before(b.StartDate.Time) && !d.After(b.EndDate.Time)
}

// MatchesCategory reports whether the budget applies to the given category.
// An overall budget matches every budgeted category.
func (b Budget) MatchesCategory(categoryID string) bool {
	if b.Overall {
		return true
	}
	return b.CategoryID == categoryID
}

// StatusFor derives the goal status from progress. Completed once current
// reaches target; there is no overdue state.
func StatusFor(current, target decimal.Decimal) GoalStatus {
	if current.GreaterThanOrEqual(target) && target.IsPositive() {
		return GoalCompleted
	}
	return GoalInProgress
}

// MatchesCategory mirrors Budget.MatchesCategory for templates.
func (re RecurringBudgetTemplate) MatchesCategory(categoryID string) bool {
	if re.Overall {
		return true
	}
	return re.CategoryID == categoryID
}

func (re RecurringBudgetTemplate) Validate() error {
	if !re.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !re.Frequency.Valid() {
		return ErrInvalidRule
	}
	if re.StartDate.IsZero() {
		return ErrInvalidDate
	}
	if !re.EndDate.IsZero() && re.EndDate.Before(re.StartDate.Time) {
		return ErrInvalidRule
	}
	return nil
}
