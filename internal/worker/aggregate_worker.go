// Package worker rebuilds monthly aggregate snapshots in response to ledger
// events, keeping the dashboard read model fresh without putting the rebuild
// on the write path.
package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/export"
	"conti/internal/ledger"
	"conti/internal/log"
)

// AggregateWorker consumes ledger events and rebuilds the aggregate for every
// affected (user, year, month). When an exporter is configured the rebuilt
// snapshot is mirrored out as well.
type AggregateWorker struct {
	aggregates *ledger.AggregateService
	exporter   export.AggregateExporter
	logger     *log.Logger
}

// NewAggregateWorker builds a worker. exporter may be nil to disable
// mirroring.
func NewAggregateWorker(aggregates *ledger.AggregateService, exporter export.AggregateExporter, logger *log.Logger) *AggregateWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &AggregateWorker{
		aggregates: aggregates,
		exporter:   exporter,
		logger:     logger.WithComponent(log.ComponentWorker),
	}
}

// HandleLedgerEvent rebuilds every period the event touched. Rebuilds run
// concurrently per period; any failure requeues the whole message.
func (w *AggregateWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	ev := msg.Event()
	w.logger.InfoContext(ctx, "processing ledger event",
		log.FieldOperation, ev.Op,
		log.FieldTransaction, ev.TransactionID,
		log.FieldUserID, ev.UserID,
		"periods", len(ev.Periods))

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range ev.Periods {
		p := p
		g.Go(func() error {
			if err := w.rebuild(gctx, ev.UserID, p.Year, p.Month); err != nil {
				return fmt.Errorf("rebuild %04d-%02d: %w", p.Year, p.Month, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *AggregateWorker) rebuild(ctx context.Context, userID string, year, month int) error {
	start := time.Now()
	agg, err := w.aggregates.Rebuild(ctx, userID, year, month)
	if err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "aggregate rebuilt",
		log.FieldOperation, log.OpRebuild,
		log.FieldUserID, userID,
		log.FieldYear, year,
		log.FieldMonth, month,
		log.FieldDuration, time.Since(start).Milliseconds())

	if w.exporter != nil {
		if err := w.export(ctx, agg); err != nil {
			// The snapshot in the store is already fresh; a failed mirror
			// only logs, it never requeues the event.
			w.logger.WarnContext(ctx, "aggregate export failed",
				log.FieldError, err.Error(),
				log.FieldUserID, userID,
				log.FieldYear, year,
				log.FieldMonth, month)
		}
	}
	return nil
}

func (w *AggregateWorker) export(ctx context.Context, agg core.MonthlyAggregate) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := w.exporter.ExportAggregate(ctx, agg); err != nil {
		return fmt.Errorf("export aggregate: %w", err)
	}
	return nil
}
