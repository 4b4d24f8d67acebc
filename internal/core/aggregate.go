package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyAggregate is the dashboard snapshot of budgeted vs spent for one
// (user, year, month). It is recomputable from budgets and transactions and
// carries the time it was computed so readers can judge freshness.
type MonthlyAggregate struct {
	UserID        string
	Year          int
	Month         int
	TotalBudgeted decimal.Decimal
	TotalSpent    decimal.Decimal
	PerCategory   []CategoryAggregate
	ComputedAt    time.Time
}

// CategoryAggregate is one category's line in a monthly aggregate. Virtual
// marks lines whose budget exists only as a recurring template expansion.
type CategoryAggregate struct {
	CategoryID string // empty for the overall line
	Overall    bool
	Budgeted   decimal.Decimal
	Spent      decimal.Decimal
	Virtual    bool
}
