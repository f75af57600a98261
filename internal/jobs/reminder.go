// Package jobs holds scheduled background work.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"financeflow/internal/core"
	"financeflow/internal/events"
	"financeflow/internal/storage"
)

// DefaultSchedule runs the reminder every day at 08:00.
const DefaultSchedule = "0 8 * * *"

// Reminder publishes an entry.overdue event for every pending entry whose
// date has passed. It never changes ledger state.
type Reminder struct {
	store     storage.Store
	publisher events.Publisher
	schedule  string
	loc       *time.Location
	now       func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewReminder(store storage.Store, publisher events.Publisher, schedule string, loc *time.Location) *Reminder {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Reminder{
		store:     store,
		publisher: publisher,
		schedule:  schedule,
		loc:       loc,
		now:       time.Now,
	}
}

// Start schedules the job. It returns an error if already running or the
// schedule does not parse.
func (r *Reminder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("reminder is already running")
	}

	c := cron.New(cron.WithLocation(r.loc))
	if _, err := c.AddFunc(r.schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			slog.ErrorContext(ctx, "Overdue reminder run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule reminder %q: %w", r.schedule, err)
	}
	c.Start()

	r.cron = c
	r.running = true
	slog.InfoContext(ctx, "Overdue reminder started", "schedule", r.schedule, "timezone", r.loc.String())
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (r *Reminder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	c := r.cron
	r.running = false
	r.cron = nil
	r.mu.Unlock()

	select {
	case <-c.Stop().Done():
		slog.InfoContext(ctx, "Overdue reminder stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Overdue reminder stop timed out")
		return ctx.Err()
	}
}

func (r *Reminder) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// RunOnce publishes reminders for entries pending since before today and
// returns how many were sent. A failed publish is logged and skipped.
func (r *Reminder) RunOnce(ctx context.Context) (int, error) {
	now := r.now().In(r.loc)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)

	var overdue []core.Entry
	err := r.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		overdue, err = tx.PendingBefore(ctx, startOfDay)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list overdue entries: %w", err)
	}

	sent := 0
	for _, e := range overdue {
		if err := r.publisher.Publish(ctx, events.ForEntry(events.EntryOverdue, e, now)); err != nil {
			slog.WarnContext(ctx, "Failed to publish overdue reminder",
				"entry_id", e.ID, "owner_id", e.OwnerID, "error", err)
			continue
		}
		sent++
	}

	slog.InfoContext(ctx, "Overdue reminder run completed", "found", len(overdue), "sent", sent)
	return sent, nil
}
