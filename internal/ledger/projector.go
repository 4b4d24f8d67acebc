package ledger

import (
	"github.com/shopspring/decimal"

	"conti/internal/core"
)

// BalanceDelta maps (account class, transaction type, amount) to the signed
// change applied to the account's balance. For assets the balance is money
// held; for liabilities it is money owed, where an income is a credit that
// increases the debt and an expense is a payment that decreases it.
//
//	asset     income   +amount
//	asset     expense  -amount
//	liability income   +amount
//	liability expense  -amount
//
// Deterministic and side-effect free; negate the amount to reverse a prior
// application.
func BalanceDelta(class core.AccountClass, typ core.TransactionType, amount decimal.Decimal) decimal.Decimal {
	switch class {
	case core.AssetAccount:
		if typ == core.Income {
			return amount
		}
		return amount.Neg()
	case core.LiabilityAccount:
		if typ == core.Income {
			return amount
		}
		return amount.Neg()
	}
	return decimal.Zero
}
