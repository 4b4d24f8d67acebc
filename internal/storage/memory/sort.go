package memory

import (
	"fmt"
	"sort"

	"conti/internal/core"
)

func aggKey(userID string, year, month int) string {
	return fmt.Sprintf("%s/%04d-%02d", userID, year, month)
}

// Map iteration order is random; the read paths sort so listings are stable.

func sortTransactions(ts []core.Transaction) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].Date.Equal(ts[j].Date.Time) {
			return ts[i].Date.After(ts[j].Date.Time)
		}
		if !ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].CreatedAt.After(ts[j].CreatedAt)
		}
		return ts[i].ID < ts[j].ID
	})
}

func sortBudgets(bs []core.Budget) {
	sort.Slice(bs, func(i, j int) bool {
		if !bs[i].StartDate.Equal(bs[j].StartDate.Time) {
			return bs[i].StartDate.Before(bs[j].StartDate.Time)
		}
		return bs[i].ID < bs[j].ID
	})
}

func sortTemplates(tpls []core.RecurringBudgetTemplate) {
	sort.Slice(tpls, func(i, j int) bool {
		if !tpls[i].CreatedAt.Equal(tpls[j].CreatedAt) {
			return tpls[i].CreatedAt.Before(tpls[j].CreatedAt)
		}
		return tpls[i].ID < tpls[j].ID
	})
}
