package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"conti/internal/core"
	"conti/internal/log"
)

// Coordinator is the only writer of ledger state. Every operation runs as
// validate -> read phase -> compute -> write phase inside one store
// transaction: all documents an operation could touch are fetched before
// the first mutation is issued, reversals are computed against the fetched
// copies, and either every write commits or none does.
type Coordinator struct {
	store  Store
	events EventPublisher
	logger *log.Logger

	// Now and NewID are swappable in tests.
	Now   func() time.Time
	NewID func() string
}

// NewCoordinator wires a coordinator. events may be nil to skip event
// fanout.
func NewCoordinator(store Store, events EventPublisher, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Coordinator{
		store:  store,
		events: events,
		logger: logger.WithComponent(log.ComponentLedger),
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

// CreateTransactionInput carries everything a new transaction needs.
type CreateTransactionInput struct {
	AccountID        string
	CategoryID       string
	Type             core.TransactionType
	Amount           decimal.Decimal
	Date             core.Date
	Description      string
	GoalID           string
	LoanTrackerID    string
	SavingsTrackerID string
	Source           core.TransactionSource
}

// TransferInput describes a transfer between two accounts of one user.
type TransferInput struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Date          core.Date
	Description   string
}

// Transfer is the pair of cross-referencing legs a transfer commits.
type Transfer struct {
	From core.Transaction
	To   core.Transaction
}

// CreateTransaction validates, applies and commits a new transaction along
// with every cascading effect.
func (c *Coordinator) CreateTransaction(ctx context.Context, userID string, in CreateTransactionInput) (core.Transaction, error) {
	now := c.Now()
	t := core.Transaction{
		ID:               c.NewID(),
		UserID:           userID,
		AccountID:        in.AccountID,
		CategoryID:       in.CategoryID,
		Type:             in.Type,
		Amount:           in.Amount,
		Date:             in.Date,
		Description:      in.Description,
		GoalID:           in.GoalID,
		LoanTrackerID:    in.LoanTrackerID,
		SavingsTrackerID: in.SavingsTrackerID,
		Source:           in.Source,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if t.Source == "" {
		t.Source = core.SourceManual
	}
	if t.Source == core.SourceTransfer {
		return core.Transaction{}, core.Errorf(core.KindValidation, "transfer legs are created through CreateTransfer")
	}
	if err := c.validate(t); err != nil {
		return core.Transaction{}, err
	}

	err := c.store.RunTransaction(ctx, func(tx Tx) error {
		ds := newDocSet()
		budgeted, err := c.readEffectDocs(ctx, tx, userID, t, ds)
		if err != nil {
			return err
		}
		c.applyEffect(ds, &t, budgeted, +1)
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return core.WrapErr(core.KindInternal, "insert transaction", err)
		}
		return c.writeEffectDocs(ctx, tx, ds, now)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	c.logger.InfoContext(ctx, "Transaction created",
		log.FieldTransaction, t.ID,
		log.FieldUserID, userID,
		"type", t.Type,
		log.FieldAmount, t.Amount.String())
	c.publish(ctx, log.OpCreate, t.ID, userID, periodOf(t.Date))
	return t, nil
}

// UpdateTransaction reverses the stored transaction's old effect and
// applies the patched one inside the same commit, leaving state as if only
// the new version had ever existed.
func (c *Coordinator) UpdateTransaction(ctx context.Context, userID, id string, patch core.TransactionPatch) (core.Transaction, error) {
	now := c.Now()
	var out core.Transaction
	var periods []Period
	err := c.store.RunTransaction(ctx, func(tx Tx) error {
		old, err := c.ownedTransaction(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if old.IsTransferLeg() {
			return core.Errorf(core.KindValidation, "transfer legs cannot be edited; delete and recreate the transfer")
		}
		if patch.IsEmpty() {
			out = old
			return nil
		}
		next := patch.ApplyTo(old)
		next.UpdatedAt = now
		if err := c.validate(next); err != nil {
			return err
		}

		ds := newDocSet()
		oldBudgeted, err := c.readEffectDocs(ctx, tx, userID, old, ds)
		if err != nil {
			return err
		}
		newBudgeted, err := c.readEffectDocs(ctx, tx, userID, next, ds)
		if err != nil {
			return err
		}

		c.applyEffect(ds, &old, oldBudgeted, -1)
		c.applyEffect(ds, &next, newBudgeted, +1)

		if err := tx.UpdateTransaction(ctx, next); err != nil {
			return core.WrapErr(core.KindInternal, "update transaction", err)
		}
		if err := c.writeEffectDocs(ctx, tx, ds, now); err != nil {
			return err
		}
		out = next
		periods = mergePeriods(periodOf(old.Date), periodOf(next.Date))
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	c.logger.InfoContext(ctx, "Transaction updated",
		log.FieldTransaction, id,
		log.FieldUserID, userID)
	c.publish(ctx, log.OpUpdate, id, userID, periods...)
	return out, nil
}

// DeleteTransaction reverses every effect of the transaction and removes
// it. Deleting a transfer leg reverses and removes both legs.
func (c *Coordinator) DeleteTransaction(ctx context.Context, userID, id string) error {
	now := c.Now()
	var periods []Period
	err := c.store.RunTransaction(ctx, func(tx Tx) error {
		t, err := c.ownedTransaction(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		ds := newDocSet()
		budgeted, err := c.readEffectDocs(ctx, tx, userID, t, ds)
		if err != nil {
			return err
		}

		var peer core.Transaction
		hasPeer := false
		if t.IsTransferLeg() && t.TransferPeerID != "" {
			peer, err = c.ownedTransaction(ctx, tx, userID, t.TransferPeerID)
			if err != nil {
				return err
			}
			if _, err := c.readEffectDocs(ctx, tx, userID, peer, ds); err != nil {
				return err
			}
			hasPeer = true
		}

		c.applyEffect(ds, &t, budgeted, -1)
		if hasPeer {
			c.applyEffect(ds, &peer, false, -1)
		}

		if err := tx.DeleteTransaction(ctx, t.ID); err != nil {
			return core.WrapErr(core.KindInternal, "delete transaction", err)
		}
		if hasPeer {
			if err := tx.DeleteTransaction(ctx, peer.ID); err != nil {
				return core.WrapErr(core.KindInternal, "delete transfer peer", err)
			}
		}
		if err := c.writeEffectDocs(ctx, tx, ds, now); err != nil {
			return err
		}
		periods = []Period{periodOf(t.Date)}
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldTransaction, id,
		log.FieldUserID, userID)
	c.publish(ctx, log.OpDelete, id, userID, periods...)
	return nil
}

// CreateTransfer commits both legs of a transfer and both balance updates
// as one atomic unit. Legs cross-reference each other, carry no category
// and never count against any budget.
func (c *Coordinator) CreateTransfer(ctx context.Context, userID string, in TransferInput) (Transfer, error) {
	if !in.Amount.IsPositive() {
		return Transfer{}, core.WrapErr(core.KindValidation, "transfer", core.ErrInvalidAmount)
	}
	if in.FromAccountID == "" || in.ToAccountID == "" || in.FromAccountID == in.ToAccountID {
		return Transfer{}, core.Errorf(core.KindValidation, "transfer requires two distinct accounts")
	}
	if in.Date.IsZero() {
		return Transfer{}, core.WrapErr(core.KindValidation, "transfer", core.ErrInvalidDate)
	}

	now := c.Now()
	from := core.Transaction{
		ID:          c.NewID(),
		UserID:      userID,
		AccountID:   in.FromAccountID,
		Type:        core.Expense,
		Amount:      in.Amount,
		Date:        in.Date,
		Description: in.Description,
		Source:      core.SourceTransfer,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	to := core.Transaction{
		ID:          c.NewID(),
		UserID:      userID,
		AccountID:   in.ToAccountID,
		Type:        core.Income,
		Amount:      in.Amount,
		Date:        in.Date,
		Description: in.Description,
		Source:      core.SourceTransfer,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	from.TransferPeerID = to.ID
	to.TransferPeerID = from.ID

	err := c.store.RunTransaction(ctx, func(tx Tx) error {
		ds := newDocSet()
		if _, err := c.readEffectDocs(ctx, tx, userID, from, ds); err != nil {
			return err
		}
		if _, err := c.readEffectDocs(ctx, tx, userID, to, ds); err != nil {
			return err
		}
		c.applyEffect(ds, &from, false, +1)
		c.applyEffect(ds, &to, false, +1)
		if err := tx.InsertTransaction(ctx, from); err != nil {
			return core.WrapErr(core.KindInternal, "insert transfer source leg", err)
		}
		if err := tx.InsertTransaction(ctx, to); err != nil {
			return core.WrapErr(core.KindInternal, "insert transfer destination leg", err)
		}
		return c.writeEffectDocs(ctx, tx, ds, now)
	})
	if err != nil {
		return Transfer{}, err
	}

	c.logger.InfoContext(ctx, "Transfer created",
		"from_transaction_id", from.ID,
		"to_transaction_id", to.ID,
		log.FieldUserID, userID,
		log.FieldAmount, in.Amount.String())
	c.publish(ctx, log.OpTransfer, from.ID, userID, periodOf(in.Date))
	return Transfer{From: from, To: to}, nil
}

// ListTransactions returns the user's transactions narrowed by filter.
func (c *Coordinator) ListTransactions(ctx context.Context, userID string, f TransactionFilter) ([]core.Transaction, error) {
	return c.store.ListTransactions(ctx, userID, f)
}

// validate applies the transaction-level invariants plus link constraints.
func (c *Coordinator) validate(t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return core.WrapErr(core.KindValidation, "transaction", err)
	}
	if t.LoanTrackerID != "" && t.Type != core.Expense {
		return core.Errorf(core.KindValidation, "loan payments must be expense transactions")
	}
	return nil
}

// ownedTransaction fetches a transaction and enforces ownership.
func (c *Coordinator) ownedTransaction(ctx context.Context, tx Tx, userID, id string) (core.Transaction, error) {
	t, err := tx.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.UserID != userID {
		return core.Transaction{}, core.Errorf(core.KindUnauthorized, "transaction %s does not belong to caller", id)
	}
	return t, nil
}

func (c *Coordinator) publish(ctx context.Context, op, transactionID, userID string, periods ...Period) {
	if c.events == nil {
		return
	}
	ev := Event{Op: op, TransactionID: transactionID, UserID: userID, Periods: periods}
	if err := c.events.PublishLedgerEvent(ctx, ev); err != nil {
		// Fanout is best effort; the commit already succeeded.
		c.logger.WarnContext(ctx, "Failed to publish ledger event",
			log.FieldOperation, op,
			log.FieldTransaction, transactionID,
			log.FieldError, err)
	}
}

func periodOf(d core.Date) Period {
	return Period{Year: d.Year(), Month: d.Month()}
}

func mergePeriods(ps ...Period) []Period {
	out := ps[:0:0]
	for _, p := range ps {
		dup := false
		for _, q := range out {
			if p == q {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}
