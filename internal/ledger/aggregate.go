package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"conti/internal/cache"
	"conti/internal/core"
	"conti/internal/log"
)

// AggregateService serves the monthly budgeted/spent snapshot for a (user,
// year, month). Reads go memory cache -> persisted snapshot -> full
// recompute; a snapshot older than the freshness window is rebuilt lazily.
// The write path never invalidates this cache synchronously; the worker
// refreshes snapshots from ledger events instead.
type AggregateService struct {
	store  Store
	memory *cache.LRU[core.MonthlyAggregate]
	ttl    time.Duration
	group  singleflight.Group
	logger *log.Logger

	// Now is swappable in tests.
	Now func() time.Time
}

// NewAggregateService builds the service. ttl is the freshness window for
// both the in-memory entries and the persisted snapshots.
func NewAggregateService(store Store, cacheSize int, ttl time.Duration, logger *log.Logger) *AggregateService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &AggregateService{
		store:  store,
		memory: cache.NewLRU[core.MonthlyAggregate](cacheSize, ttl),
		ttl:    ttl,
		logger: logger.WithComponent(log.ComponentAggregate),
		Now:    time.Now,
	}
}

// RunJanitor sweeps expired cache entries every interval until ctx is done.
func (s *AggregateService) RunJanitor(ctx context.Context, interval time.Duration) {
	s.memory.RunJanitor(ctx, interval)
}

func aggregateKey(userID string, year, month int) string {
	return fmt.Sprintf("%s/%04d-%02d", userID, year, month)
}

// GetOrBuild returns a fresh-enough aggregate, recomputing and persisting a
// new snapshot when none qualifies. Concurrent callers for the same period
// share one rebuild.
func (s *AggregateService) GetOrBuild(ctx context.Context, userID string, year, month int) (core.MonthlyAggregate, error) {
	key := aggregateKey(userID, year, month)
	if agg, ok := s.memory.Get(key); ok {
		return agg, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		if snap, ok, err := s.store.GetAggregate(ctx, userID, year, month); err != nil {
			return core.MonthlyAggregate{}, core.WrapErr(core.KindInternal, "load aggregate snapshot", err)
		} else if ok && s.Now().Sub(snap.ComputedAt) < s.ttl {
			s.memory.Set(key, snap)
			return snap, nil
		}
		return s.Rebuild(ctx, userID, year, month)
	})
	if err != nil {
		return core.MonthlyAggregate{}, err
	}
	return v.(core.MonthlyAggregate), nil
}

// Rebuild recomputes the aggregate from budgets and transactions, persists
// the snapshot and refreshes the memory cache.
func (s *AggregateService) Rebuild(ctx context.Context, userID string, year, month int) (core.MonthlyAggregate, error) {
	start := core.MonthStart(year, month)
	end := core.MonthEnd(year, month)

	// The resolver at mid-window yields explicit rows covering the month
	// plus active virtual windows, each with a recomputed spent total.
	explicit, err := s.store.ListBudgetsOverlapping(ctx, userID, start, end)
	if err != nil {
		return core.MonthlyAggregate{}, core.WrapErr(core.KindInternal, "list budgets", err)
	}

	agg := core.MonthlyAggregate{
		UserID:        userID,
		Year:          year,
		Month:         month,
		TotalBudgeted: decimal.Zero,
		TotalSpent:    decimal.Zero,
		ComputedAt:    s.Now(),
	}

	seen := make(map[string]bool)
	for _, b := range explicit {
		agg.PerCategory = append(agg.PerCategory, lineFor(b))
		seen[selectorKey(b.Overall, b.CategoryID)] = true
	}

	templates, err := s.store.ListBudgetTemplates(ctx, userID)
	if err != nil {
		return core.MonthlyAggregate{}, core.WrapErr(core.KindInternal, "list budget templates", err)
	}
	for _, tpl := range templates {
		if seen[selectorKey(tpl.Overall, tpl.CategoryID)] {
			continue
		}
		window, err := virtualWindow(ctx, s.store, userID, tpl, year, month)
		if err != nil {
			return core.MonthlyAggregate{}, err
		}
		if window == nil {
			continue
		}
		agg.PerCategory = append(agg.PerCategory, lineFor(*window))
		seen[selectorKey(tpl.Overall, tpl.CategoryID)] = true
	}

	for _, line := range agg.PerCategory {
		agg.TotalBudgeted = agg.TotalBudgeted.Add(line.Budgeted)
	}
	// Total spent is the month's expense volume, transfer legs excluded,
	// regardless of budget coverage.
	spent, err := s.store.SumExpenses(ctx, userID, SpentQuery{Overall: true, Start: start, End: end})
	if err != nil {
		return core.MonthlyAggregate{}, core.WrapErr(core.KindInternal, "sum monthly spending", err)
	}
	agg.TotalSpent = spent

	if err := s.store.PutAggregate(ctx, agg); err != nil {
		return core.MonthlyAggregate{}, core.WrapErr(core.KindInternal, "persist aggregate snapshot", err)
	}
	s.memory.Set(aggregateKey(userID, year, month), agg)

	s.logger.DebugContext(ctx, "Monthly aggregate rebuilt",
		"user_id", userID,
		"year", year,
		"month", month,
		"categories", len(agg.PerCategory))
	return agg, nil
}

// Invalidate drops the in-memory entry for a period, forcing the next read
// through to the snapshot or a rebuild.
func (s *AggregateService) Invalidate(userID string, year, month int) {
	s.memory.Delete(aggregateKey(userID, year, month))
}

// lineFor produces one aggregate line for a budget window. Explicit rows
// report their stored counter, which the coordinator maintains; virtual
// rows carry the spent total the resolver recomputed from transactions.
func lineFor(b core.Budget) core.CategoryAggregate {
	return core.CategoryAggregate{
		CategoryID: b.CategoryID,
		Overall:    b.Overall,
		Budgeted:   b.Amount,
		Spent:      b.SpentAmount,
		Virtual:    b.Virtual,
	}
}

// virtualWindow expands one template against the month, returning nil when
// the template is inactive there.
func virtualWindow(ctx context.Context, src BudgetSource, userID string, tpl core.RecurringBudgetTemplate, year, month int) (*core.Budget, error) {
	windows, err := ResolveWindows(ctx, src, userID, tpl.CategoryID, core.MonthStart(year, month))
	if err != nil {
		return nil, err
	}
	for _, w := range windows {
		if w.Virtual && w.TemplateID == tpl.ID {
			return &w, nil
		}
	}
	return nil, nil
}

func selectorKey(overall bool, categoryID string) string {
	if overall {
		return "overall"
	}
	return "category/" + categoryID
}
