package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"reisekosten/internal/amqp"
	"reisekosten/internal/core"
	"reisekosten/internal/log"
	"reisekosten/internal/sheets"
)

// EventSource delivers expense events until ctx is done. A handler error
// asks the source to deliver the event again.
type EventSource interface {
	ConsumeExpenseEvents(ctx context.Context, handler func(context.Context, *amqp.ExpenseEvent) error) error
}

// ExpenseLister is the authoritative collection the mirror is reconciled against.
type ExpenseLister interface {
	List(ctx context.Context) ([]core.Expense, error)
}

// RedeliveryWindow is how long the timestamp of an applied delete is kept.
// A redelivery of an older event for that id arriving later is applied again.
const RedeliveryWindow = time.Hour

// MirrorWorker applies expense events to a spreadsheet mirror.
type MirrorWorker struct {
	mirror sheets.Mirror
	logger *log.Logger

	mu sync.Mutex
	// applied holds the timestamp of the newest event applied per expense id.
	// Redelivered events older than that are dropped.
	applied map[string]time.Time
	// deletedAt holds when a delete was applied, for pruning applied.
	deletedAt map[string]time.Time
	now       func() time.Time

	processed atomic.Int64
	stale     atomic.Int64
	failed    atomic.Int64
}

// Stats counts handled events since the worker started.
type Stats struct {
	Processed int64 `json:"processed"`
	Stale     int64 `json:"stale"`
	Failed    int64 `json:"failed"`
}

// ReconcileResult reports what a reconciliation pass changed.
type ReconcileResult struct {
	Upserted int
	Deleted  int
}

func NewMirrorWorker(mirror sheets.Mirror, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.NewForComponent(log.ComponentWorker, "info")
	}
	return &MirrorWorker{
		mirror:    mirror,
		logger:    logger.WithComponent(log.ComponentWorker),
		applied:   make(map[string]time.Time),
		deletedAt: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Run consumes events from src until ctx is cancelled.
func (w *MirrorWorker) Run(ctx context.Context, src EventSource) error {
	w.logger.InfoContext(ctx, "Mirror worker started")
	err := src.ConsumeExpenseEvents(ctx, w.HandleEvent)
	w.logger.InfoContext(ctx, "Mirror worker stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load())
	return err
}

// HandleEvent mirrors one committed change. Created and updated events
// overwrite the expense row, deleted events clear it.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev *amqp.ExpenseEvent) error {
	logger := w.logger.With(log.FieldExpenseID, ev.ID, log.FieldEventType, string(ev.Type))

	if w.isStale(ev) {
		w.stale.Add(1)
		logger.DebugContext(ctx, "Dropping stale event", "timestamp", ev.Timestamp)
		return nil
	}

	var err error
	switch ev.Type {
	case amqp.EventCreated, amqp.EventUpdated:
		if ev.Expense == nil {
			err = fmt.Errorf("%s event without expense", ev.Type)
			break
		}
		err = w.mirror.Upsert(ctx, ev.Expense.Expense())
	case amqp.EventDeleted:
		err = w.mirror.Delete(ctx, ev.ID)
	default:
		err = fmt.Errorf("unknown event type %q", ev.Type)
	}
	if err != nil {
		w.failed.Add(1)
		logger.ErrorContext(ctx, "Failed to mirror expense",
			log.FieldOperation, log.OpMirror,
			log.FieldError, err)
		return err
	}

	w.markApplied(ev)
	w.processed.Add(1)
	logger.InfoContext(ctx, "Expense mirrored", log.FieldOperation, log.OpMirror)
	return nil
}

func (w *MirrorWorker) isStale(ev *amqp.ExpenseEvent) bool {
	if ev.Timestamp.IsZero() {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.applied[ev.ID]
	return ok && ev.Timestamp.Before(last)
}

func (w *MirrorWorker) markApplied(ev *amqp.ExpenseEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.pruneLocked(now)
	if ev.Timestamp.IsZero() {
		return
	}
	if ev.Timestamp.After(w.applied[ev.ID]) {
		w.applied[ev.ID] = ev.Timestamp
	}
	if ev.Type == amqp.EventDeleted {
		w.deletedAt[ev.ID] = now
	} else {
		delete(w.deletedAt, ev.ID)
	}
}

// pruneLocked forgets deleted expenses once the redelivery window has passed.
func (w *MirrorWorker) pruneLocked(now time.Time) {
	for id, at := range w.deletedAt {
		if now.Sub(at) > RedeliveryWindow {
			delete(w.deletedAt, id)
			delete(w.applied, id)
		}
	}
}

// Reconcile brings the mirror in line with src: missing or outdated rows
// are written and rows for expenses that no longer exist are cleared.
func (w *MirrorWorker) Reconcile(ctx context.Context, src ExpenseLister) (ReconcileResult, error) {
	var res ReconcileResult

	want, err := src.List(ctx)
	if err != nil {
		return res, fmt.Errorf("list expenses: %w", err)
	}
	have, err := w.mirror.List(ctx)
	if err != nil {
		return res, fmt.Errorf("list mirror: %w", err)
	}

	mirrored := make(map[string]core.Expense, len(have))
	for _, e := range have {
		mirrored[e.ID] = e
	}
	for _, e := range want {
		if m, ok := mirrored[e.ID]; ok && sameRow(m, e) {
			delete(mirrored, e.ID)
			continue
		}
		delete(mirrored, e.ID)
		if err := w.mirror.Upsert(ctx, e); err != nil {
			return res, fmt.Errorf("upsert %s: %w", e.ID, err)
		}
		res.Upserted++
	}
	for id := range mirrored {
		if err := w.mirror.Delete(ctx, id); err != nil {
			return res, fmt.Errorf("delete %s: %w", id, err)
		}
		res.Deleted++
	}

	w.logger.InfoContext(ctx, "Mirror reconciled",
		"expenses", len(want),
		"upserted", res.Upserted,
		"deleted", res.Deleted)
	return res, nil
}

// sameRow compares the fields a mirror row carries.
func sameRow(a, b core.Expense) bool {
	if a.ID != b.ID || a.Amount != b.Amount || a.Category != b.Category ||
		a.Description != b.Description || a.Date.String() != b.Date.String() {
		return false
	}
	ka, kb := a.EffectiveKilometers(), b.EffectiveKilometers()
	if ka == nil || kb == nil {
		return ka == nil && kb == nil
	}
	return ka.Equal(kb.Decimal)
}

func (w *MirrorWorker) Stats() Stats {
	return Stats{
		Processed: w.processed.Load(),
		Stale:     w.stale.Load(),
		Failed:    w.failed.Load(),
	}
}
