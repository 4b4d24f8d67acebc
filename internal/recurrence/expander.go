// Package recurrence decides whether a recurrence rule produces an
// occurrence inside a target (year, month) and with what amount.
//
// Each frequency type (daily, weekly, monthly, yearly) has its own finder
// that encapsulates the occurrence arithmetic for that frequency.
package recurrence

import (
	"github.com/shopspring/decimal"

	"conti/internal/core"
)

// OccurrenceFinder is the strategy interface for one recurrence frequency.
type OccurrenceFinder interface {
	// Next returns the earliest occurrence of a rule anchored at start
	// that falls strictly after the given date.
	Next(start, after core.Date) core.Date
}

// DailyFinder implements OccurrenceFinder for daily rules.
type DailyFinder struct{}

func (DailyFinder) Next(start, after core.Date) core.Date {
	if start.After(after.Time) {
		return start
	}
	return after.AddDays(1)
}

// WeeklyFinder implements OccurrenceFinder for weekly rules. Occurrences
// fall on the start date's weekday every seven days.
type WeeklyFinder struct{}

func (WeeklyFinder) Next(start, after core.Date) core.Date {
	if start.After(after.Time) {
		return start
	}
	days := int(after.Sub(start.Time).Hours() / 24)
	weeks := days/7 + 1
	return start.AddDays(weeks * 7)
}

// MonthlyFinder implements OccurrenceFinder for monthly rules. The
// occurrence day is the start date's day of month, clamped to shorter
// months.
type MonthlyFinder struct{}

func (MonthlyFinder) Next(start, after core.Date) core.Date {
	if start.After(after.Time) {
		return start
	}
	candidate := occurrenceInMonth(after.Year(), after.Month(), start.Day())
	if candidate.After(after.Time) {
		return candidate
	}
	next := core.MonthStart(after.Year(), after.Month()).AddMonths(1)
	return occurrenceInMonth(next.Year(), next.Month(), start.Day())
}

// YearlyFinder implements OccurrenceFinder for yearly rules. The occurrence
// is the start date's month and day each year, day clamped (Feb 29 rules
// fire on Feb 28 outside leap years).
type YearlyFinder struct{}

func (YearlyFinder) Next(start, after core.Date) core.Date {
	if start.After(after.Time) {
		return start
	}
	candidate := occurrenceInMonth(after.Year(), start.Month(), start.Day())
	if candidate.After(after.Time) {
		return candidate
	}
	return occurrenceInMonth(after.Year()+1, start.Month(), start.Day())
}

func occurrenceInMonth(year, month, day int) core.Date {
	last := core.MonthEnd(year, month).Day()
	if day > last {
		day = last
	}
	return core.NewDate(year, month, day)
}

// finders maps frequencies to their occurrence finders. The registry keeps
// lookup O(1) and lets new frequencies be added without touching the
// expander.
var finders = map[core.Frequency]OccurrenceFinder{
	core.Daily:   DailyFinder{},
	core.Weekly:  WeeklyFinder{},
	core.Monthly: MonthlyFinder{},
	core.Yearly:  YearlyFinder{},
}

// GetFinder returns the occurrence finder for a frequency.
func GetFinder(freq core.Frequency) (OccurrenceFinder, error) {
	f, ok := finders[freq]
	if !ok {
		return nil, core.Errorf(core.KindValidation, "unknown recurrence frequency %q", freq)
	}
	return f, nil
}

// RegisterFinder registers a custom finder for a new frequency type.
func RegisterFinder(freq core.Frequency, f OccurrenceFinder) {
	finders[freq] = f
}

// Result is the outcome of expanding a rule against one month.
type Result struct {
	Active bool
	Amount decimal.Decimal
}

// ActiveInMonth reports whether a rule with the given frequency, start date
// and optional end date produces an occurrence inside (year, month).
//
// The rule is evaluated day-granularly: the next occurrence on or after the
// first day of the target month decides activity. A rule whose start date
// is after the month's last day, or whose end date is before the month's
// first day, is inactive outright.
func ActiveInMonth(freq core.Frequency, start, end core.Date, year, month int) (bool, error) {
	finder, err := GetFinder(freq)
	if err != nil {
		return false, err
	}

	monthStart := core.MonthStart(year, month)
	monthEnd := core.MonthEnd(year, month)

	if start.After(monthEnd.Time) {
		return false, nil
	}
	if !end.IsZero() && end.Before(monthStart.Time) {
		return false, nil
	}

	// Search from the day before the month's first day; the first
	// occurrence after that anchor lands inside the month exactly when
	// the rule is active for it.
	next := finder.Next(start, monthStart.AddDays(-1))
	if next.Year() != year || next.Month() != month {
		return false, nil
	}
	if !end.IsZero() && next.After(end.Time) {
		return false, nil
	}
	return true, nil
}

// ExpandMonth runs a recurring budget template against a target month and
// yields the occurrence amount when the template is active there.
func ExpandMonth(tpl core.RecurringBudgetTemplate, year, month int) (Result, error) {
	if err := tpl.Validate(); err != nil {
		return Result{}, core.WrapErr(core.KindValidation, "recurring budget template", err)
	}
	active, err := ActiveInMonth(tpl.Frequency, tpl.StartDate, tpl.EndDate, year, month)
	if err != nil {
		return Result{}, err
	}
	if !active {
		return Result{}, nil
	}
	return Result{Active: true, Amount: tpl.Amount}, nil
}
