package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"financeflow/internal/core"
	"financeflow/internal/events"
	applog "financeflow/internal/log"
	"financeflow/internal/sheets"
	"financeflow/internal/storage"
)

// EventWorker consumes ledger events. It keeps the spreadsheet mirror in step
// with the ledger and writes each event once to the activity log.
type EventWorker struct {
	store  storage.Store
	mirror sheets.EntryMirror
	logger *applog.Logger
}

// NewEventWorker returns a worker. mirror may be nil when no spreadsheet is
// configured.
func NewEventWorker(store storage.Store, mirror sheets.EntryMirror) *EventWorker {
	return &EventWorker{
		store:  store,
		mirror: mirror,
		logger: applog.New(applog.Config{Handler: slog.Default().Handler(), Component: applog.ComponentWorker}),
	}
}

// HandleEvent is an events.Handler. Mirror updates are upserts, so a
// redelivered event converges to the same sheet state; the activity log
// ignores event ids it has already stored.
func (w *EventWorker) HandleEvent(ctx context.Context, ev events.LedgerEvent) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		applog.FieldEventID, ev.ID,
		applog.FieldEventKind, ev.Kind,
		applog.FieldOwnerID, ev.OwnerID,
		applog.FieldEntryID, ev.EntryID)

	if err := w.mirrorEvent(ctx, ev); err != nil {
		return fmt.Errorf("mirror event: %w", err)
	}

	var inserted bool
	err := w.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		inserted, err = tx.RecordActivity(ctx, ev.Activity())
		return err
	})
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	if !inserted {
		w.logger.InfoContext(ctx, "Event already recorded, skipping", applog.FieldEventID, ev.ID)
	}
	return nil
}

func (w *EventWorker) mirrorEvent(ctx context.Context, ev events.LedgerEvent) error {
	if w.mirror == nil {
		return nil
	}

	switch ev.Kind {
	case events.EntryCreated, events.EntryPaid, events.EntryRetitled:
		e, err := w.loadEntry(ctx, ev.EntryID)
		if errors.Is(err, core.ErrNotFound) {
			// Deleted after this event was published.
			return w.mirror.RemoveEntry(ctx, ev.EntryID)
		}
		if err != nil {
			return err
		}
		if err := w.mirror.UpdateEntry(ctx, sheets.RowFromEntry(e)); err != nil {
			return err
		}
		w.logger.InfoContext(ctx, "Mirrored entry to sheet", applog.FieldEntryID, e.ID, "status", e.Status())
	case events.EntryDeleted:
		if err := w.mirror.RemoveEntry(ctx, ev.EntryID); err != nil {
			return err
		}
		w.logger.InfoContext(ctx, "Removed entry from sheet", applog.FieldEntryID, ev.EntryID)
	}
	return nil
}

func (w *EventWorker) loadEntry(ctx context.Context, id int64) (core.Entry, error) {
	var e core.Entry
	err := w.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		e, err = tx.GetEntry(ctx, id)
		return err
	})
	return e, err
}

// Run consumes from c until ctx is cancelled.
func (w *EventWorker) Run(ctx context.Context, c events.Consumer) error {
	err := c.Consume(ctx, w.HandleEvent)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
