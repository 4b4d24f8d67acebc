package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
)

// ApplyGoal applies a signed contribution delta to a goal. The current
// amount is floored at zero so reversing contributions in any order never
// drives it negative, and the status is re-derived from the new progress.
func ApplyGoal(g core.Goal, delta decimal.Decimal) core.Goal {
	g.CurrentAmount = g.CurrentAmount.Add(delta)
	if g.CurrentAmount.IsNegative() {
		g.CurrentAmount = decimal.Zero
	}
	g.Status = core.StatusFor(g.CurrentAmount, g.TargetAmount)
	return g
}

// monthlyRate converts an annual percentage rate to a monthly fraction.
func monthlyRate(annualPct decimal.Decimal) decimal.Decimal {
	return annualPct.Div(decimal.NewFromInt(1200))
}

// LoanPrincipal splits a payment into its principal portion given the
// balance outstanding before the payment: the month's interest accrual is
// deducted first and the remainder pays the balance down. A payment smaller
// than the accrued interest pays no principal.
func LoanPrincipal(t core.LoanTracker, payment decimal.Decimal) decimal.Decimal {
	interest := t.RemainingBalance.Mul(monthlyRate(t.InterestRate)).Round(2)
	principal := payment.Sub(interest)
	if principal.IsNegative() {
		return decimal.Zero
	}
	if principal.GreaterThan(t.RemainingBalance) {
		return t.RemainingBalance
	}
	return principal
}

// ApplyLoanPayment records one installment: the principal portion comes off
// the remaining balance (floored at zero), the installment count goes up,
// and the next due date advances one billing cycle. The principal actually
// applied is returned so a later reversal can undo exactly this effect.
func ApplyLoanPayment(t core.LoanTracker, payment decimal.Decimal) (core.LoanTracker, decimal.Decimal) {
	principal := LoanPrincipal(t, payment)
	t.RemainingBalance = t.RemainingBalance.Sub(principal)
	if t.RemainingBalance.IsNegative() {
		t.RemainingBalance = decimal.Zero
	}
	t.PaidInstallments++
	if !t.NextDueDate.IsZero() {
		t.NextDueDate = t.NextDueDate.AddMonths(1)
	}
	return t, principal
}

// ReverseLoanPayment is the exact inverse of ApplyLoanPayment for the given
// principal portion: the balance is restored, the installment count drops
// (floored at zero) and the next due date shifts back one cycle.
func ReverseLoanPayment(t core.LoanTracker, principal decimal.Decimal) core.LoanTracker {
	t.RemainingBalance = t.RemainingBalance.Add(principal)
	if t.PaidInstallments > 0 {
		t.PaidInstallments--
	}
	if !t.NextDueDate.IsZero() {
		t.NextDueDate = t.NextDueDate.AddMonths(-1)
	}
	return t
}

// TouchSavings bumps the tracker's update timestamp. The tracker's true
// balance is always read from its linked account; nothing else changes
// here.
func TouchSavings(t core.SavingsTracker, at time.Time) core.SavingsTracker {
	t.UpdatedAt = at
	return t
}
