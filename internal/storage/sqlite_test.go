package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/storage"
)

func newTestRepository(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "ledger.db"), 3, nil)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// The repository runs on a single pooled connection; while a transaction is
// open, any query routed through the plain read path would wait on that
// connection forever. The category lookup therefore has to go through the
// live transaction, and the timeout turns a regression into a fast failure.
func TestRepository_CategoryLookupInsideTransaction(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 20, 10, 0, 0, 0, time.UTC)

	if err := repo.CreateAccount(ctx, core.Account{
		ID: "acc-1", UserID: "u-1", Name: "checking",
		Class: core.AssetAccount, Currency: "EUR", Balance: dec("1000"),
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateCategory(ctx, "food", "u-1", "Food", true, now); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateCategory(ctx, "internal-moves", "u-1", "Internal", false, now); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateBudget(ctx, core.Budget{
		ID: "b-food", UserID: "u-1", CategoryID: "food",
		Amount: dec("300"), SpentAmount: dec("0"),
		StartDate: core.NewDate(2025, 6, 1), EndDate: core.NewDate(2025, 6, 30),
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}

	coordinator := ledger.NewCoordinator(repo, nil, nil)

	create := func(category string) error {
		done := make(chan error, 1)
		go func() {
			_, err := coordinator.CreateTransaction(ctx, "u-1", ledger.CreateTransactionInput{
				AccountID:  "acc-1",
				CategoryID: category,
				Type:       core.Expense,
				Amount:     dec("40"),
				Date:       core.NewDate(2025, 6, 15),
			})
			done <- err
		}()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("CreateTransaction blocked: category lookup must use the open transaction's connection")
			return nil
		}
	}

	if err := create("food"); err != nil {
		t.Fatalf("budgetable expense: %v", err)
	}
	if err := create("internal-moves"); err != nil {
		t.Fatalf("non-budgetable expense: %v", err)
	}

	account, err := repo.GetAccount(ctx, "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if account.Balance.String() != "920" {
		t.Errorf("balance = %s, want 920", account.Balance)
	}
	budgets, err := repo.ListBudgetsCovering(ctx, "u-1", core.NewDate(2025, 6, 15))
	if err != nil {
		t.Fatal(err)
	}
	if len(budgets) != 1 || budgets[0].SpentAmount.String() != "40" {
		t.Errorf("budget spent = %+v, want one window with spent 40", budgets)
	}
}
