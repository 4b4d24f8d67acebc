package core

import "github.com/shopspring/decimal"

// TransactionPatch enumerates every field an update may change. Each field
// is applied only when non-nil, so a patch never clobbers fields the caller
// did not mention. Pointer-to-empty clears an optional link.
type TransactionPatch struct {
	AccountID        *string
	CategoryID       *string
	Type             *TransactionType
	Amount           *decimal.Decimal
	Date             *Date
	Description      *string
	GoalID           *string
	LoanTrackerID    *string
	SavingsTrackerID *string
}

// IsEmpty reports whether the patch changes nothing.
func (p TransactionPatch) IsEmpty() bool {
	return p.AccountID == nil && p.CategoryID == nil && p.Type == nil &&
		p.Amount == nil && p.Date == nil && p.Description == nil &&
		p.GoalID == nil && p.LoanTrackerID == nil && p.SavingsTrackerID == nil
}

// ApplyTo returns a copy of t with the patched fields replaced, field by
// field. ID, owner, source and transfer pairing are never patchable.
func (p TransactionPatch) ApplyTo(t Transaction) Transaction {
	if p.AccountID != nil {
		t.AccountID = *p.AccountID
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.GoalID != nil {
		t.GoalID = *p.GoalID
	}
	if p.LoanTrackerID != nil {
		t.LoanTrackerID = *p.LoanTrackerID
	}
	if p.SavingsTrackerID != nil {
		t.SavingsTrackerID = *p.SavingsTrackerID
	}
	return t
}
