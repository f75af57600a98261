package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"financeflow/internal/analytics"
	"financeflow/internal/core"
	"financeflow/internal/events"
	"financeflow/internal/ledger"
	applog "financeflow/internal/log"
	"financeflow/internal/storage"
)

// DefaultActivityLimit caps the activity feed when the caller gives no limit.
const DefaultActivityLimit = 50

// LedgerService runs every ledger operation as one storage transaction and
// publishes an event once the transaction has committed.
type LedgerService struct {
	store     storage.Store
	publisher events.Publisher
	now       func() time.Time
}

func NewLedgerService(store storage.Store, publisher events.Publisher) *LedgerService {
	return &LedgerService{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Tests pin it to a fixed instant.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// NewEntry is the input of AddEntry. A zero OccurredAt means now.
type NewEntry struct {
	Title      string
	Category   string
	Amount     decimal.Decimal
	OccurredAt time.Time
}

type BalanceResult struct {
	NewBalance decimal.Decimal
	Totals     ledger.Totals
	// Removed counts entries deleted by a reset.
	Removed int64
}

type EntryResult struct {
	Entry  core.Entry
	Totals ledger.Totals
}

type Dashboard struct {
	User    core.User
	Totals  ledger.Totals
	Entries []core.Entry // newest first
}

// SetBalance replaces the declared balance. With reset, every entry of the
// owner is deleted in the same transaction.
func (s *LedgerService) SetBalance(ctx context.Context, requesterID int64, balance decimal.Decimal, reset bool) (BalanceResult, error) {
	const op = "set balance"
	var res BalanceResult

	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetUser(ctx, requesterID); err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, requesterID, balance); err != nil {
			return err
		}
		if reset {
			n, err := tx.DeleteEntries(ctx, requesterID)
			if err != nil {
				return err
			}
			res.Removed = n
		}
		totals, err := reconcile(ctx, tx, requesterID)
		if err != nil {
			return err
		}
		res.NewBalance = totals.Balance
		res.Totals = totals
		return nil
	})
	if err != nil {
		return BalanceResult{}, core.Persistence(op, err)
	}

	slog.InfoContext(ctx, "Balance updated",
		"owner_id", requesterID,
		"balance", balance.String(),
		"reset", reset,
		"removed", res.Removed)
	s.publish(ctx, events.ForBalance(requesterID, balance, s.now()))
	return res, nil
}

// AddEntry records a pending entry. It fails with an insufficient funds error
// when the amount exceeds what remains of the declared balance.
func (s *LedgerService) AddEntry(ctx context.Context, requesterID int64, in NewEntry) (EntryResult, error) {
	const op = "add entry"

	e := core.Entry{
		OwnerID:    requesterID,
		Title:      strings.TrimSpace(in.Title),
		Category:   strings.TrimSpace(in.Category),
		Amount:     in.Amount,
		OccurredAt: in.OccurredAt,
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now()
	}
	if err := e.Validate(); err != nil {
		return EntryResult{}, withOp(op, err)
	}

	var res EntryResult
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		user, err := tx.GetUser(ctx, requesterID)
		if err != nil {
			return err
		}
		entries, err := tx.ListEntries(ctx, requesterID, core.EntryFilter{})
		if err != nil {
			return err
		}
		if err := ledger.Reconcile(user.DeclaredBalance, entries).CheckFunds(op, e.Amount); err != nil {
			return err
		}

		created, err := tx.CreateEntry(ctx, e)
		if err != nil {
			return err
		}
		res.Entry = created
		res.Totals = ledger.Reconcile(user.DeclaredBalance, append(entries, created))
		return nil
	})
	if err != nil {
		return EntryResult{}, core.Persistence(op, err)
	}

	s.logEntry(ctx, op, res)
	s.publish(ctx, events.ForEntry(events.EntryCreated, res.Entry, s.now()))
	return res, nil
}

// MarkPaid moves an entry to covered. Marking a covered entry again succeeds
// without a write or an event.
func (s *LedgerService) MarkPaid(ctx context.Context, requesterID, entryID int64) (EntryResult, error) {
	const op = "mark paid"
	var res EntryResult
	var changed bool

	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		e, err := ownedEntry(ctx, tx, op, requesterID, entryID)
		if err != nil {
			return err
		}
		if changed = e.MarkPaid(); changed {
			if err := tx.MarkCovered(ctx, entryID); err != nil {
				return err
			}
		}
		res.Entry = e
		res.Totals, err = reconcile(ctx, tx, requesterID)
		return err
	})
	if err != nil {
		return EntryResult{}, core.Persistence(op, err)
	}

	if changed {
		s.logEntry(ctx, op, res)
		s.publish(ctx, events.ForEntry(events.EntryPaid, res.Entry, s.now()))
	}
	return res, nil
}

// UpdateTitle changes an entry's title. It has no financial effect.
func (s *LedgerService) UpdateTitle(ctx context.Context, requesterID, entryID int64, title string) (EntryResult, error) {
	const op = "update title"
	title = strings.TrimSpace(title)
	if err := core.ValidateTitle(title); err != nil {
		return EntryResult{}, withOp(op, err)
	}

	var res EntryResult
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		e, err := ownedEntry(ctx, tx, op, requesterID, entryID)
		if err != nil {
			return err
		}
		if err := tx.UpdateEntryTitle(ctx, entryID, title); err != nil {
			return err
		}
		e.Title = title
		res.Entry = e
		res.Totals, err = reconcile(ctx, tx, requesterID)
		return err
	})
	if err != nil {
		return EntryResult{}, core.Persistence(op, err)
	}

	s.logEntry(ctx, op, res)
	s.publish(ctx, events.ForEntry(events.EntryRetitled, res.Entry, s.now()))
	return res, nil
}

// DeleteEntry removes an entry in any state. The declared balance is left
// untouched; remaining grows by the entry amount on the next reconcile.
func (s *LedgerService) DeleteEntry(ctx context.Context, requesterID, entryID int64) (EntryResult, error) {
	const op = "delete entry"
	var res EntryResult

	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		e, err := ownedEntry(ctx, tx, op, requesterID, entryID)
		if err != nil {
			return err
		}
		if err := tx.DeleteEntry(ctx, entryID); err != nil {
			return err
		}
		res.Entry = e
		res.Totals, err = reconcile(ctx, tx, requesterID)
		return err
	})
	if err != nil {
		return EntryResult{}, core.Persistence(op, err)
	}

	s.logEntry(ctx, op, res)
	s.publish(ctx, events.ForEntry(events.EntryDeleted, res.Entry, s.now()))
	return res, nil
}

func (s *LedgerService) Dashboard(ctx context.Context, requesterID int64) (Dashboard, error) {
	var d Dashboard
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		user, err := tx.GetUser(ctx, requesterID)
		if err != nil {
			return err
		}
		entries, err := tx.ListEntries(ctx, requesterID, core.EntryFilter{})
		if err != nil {
			return err
		}
		d.User = user
		d.Totals = ledger.Reconcile(user.DeclaredBalance, entries)
		d.Entries = newestFirst(entries)
		return nil
	})
	if err != nil {
		return Dashboard{}, core.Persistence("dashboard", err)
	}
	return d, nil
}

// Entries lists the requester's entries oldest first.
func (s *LedgerService) Entries(ctx context.Context, requesterID int64, f core.EntryFilter) ([]core.Entry, error) {
	var out []core.Entry
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetUser(ctx, requesterID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListEntries(ctx, requesterID, f)
		return err
	})
	if err != nil {
		return nil, core.Persistence("list entries", err)
	}
	return out, nil
}

// Analytics builds the read-side report as of the service clock.
func (s *LedgerService) Analytics(ctx context.Context, requesterID int64) (analytics.Report, error) {
	var report analytics.Report
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		user, err := tx.GetUser(ctx, requesterID)
		if err != nil {
			return err
		}
		entries, err := tx.ListEntries(ctx, requesterID, core.EntryFilter{})
		if err != nil {
			return err
		}
		budgets, err := tx.ListBudgets(ctx, requesterID)
		if err != nil {
			return err
		}
		report = analytics.Compute(s.now(), user.DeclaredBalance, entries, budgets)
		return nil
	})
	if err != nil {
		return analytics.Report{}, core.Persistence("analytics", err)
	}
	return report, nil
}

// SetBudget creates or replaces the allocation for one category.
func (s *LedgerService) SetBudget(ctx context.Context, requesterID int64, category string, allocated decimal.Decimal) (core.Budget, error) {
	const op = "set budget"
	b := core.Budget{OwnerID: requesterID, Category: strings.TrimSpace(category), Allocated: allocated}
	if err := b.Validate(); err != nil {
		return core.Budget{}, withOp(op, err)
	}

	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetUser(ctx, requesterID); err != nil {
			return err
		}
		var err error
		b, err = tx.UpsertBudget(ctx, b)
		return err
	})
	if err != nil {
		return core.Budget{}, core.Persistence(op, err)
	}
	return b, nil
}

func (s *LedgerService) Budgets(ctx context.Context, requesterID int64) ([]core.Budget, error) {
	var out []core.Budget
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetUser(ctx, requesterID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListBudgets(ctx, requesterID)
		return err
	})
	if err != nil {
		return nil, core.Persistence("list budgets", err)
	}
	return out, nil
}

// Activity returns the most recent activity records, newest first.
func (s *LedgerService) Activity(ctx context.Context, requesterID int64, limit int) ([]core.Activity, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	var out []core.Activity
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetUser(ctx, requesterID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListActivity(ctx, requesterID, limit)
		return err
	})
	if err != nil {
		return nil, core.Persistence("list activity", err)
	}
	return out, nil
}

func (s *LedgerService) publish(ctx context.Context, ev events.LedgerEvent) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping event", "kind", ev.Kind)
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		fields := applog.NewFields()
		fields[applog.FieldEventID] = ev.ID.String()
		fields[applog.FieldEventKind] = string(ev.Kind)
		fields[applog.FieldOwnerID] = ev.OwnerID
		applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx,
			"Failed to publish ledger event", err, applog.ComponentLedger, applog.OpPublish, fields)
	}
}

func (s *LedgerService) logEntry(ctx context.Context, op string, res EntryResult) {
	applog.NewStructuredLogger(applog.FromContext(ctx)).LogEntryChanged(ctx, op,
		res.Entry.OwnerID, res.Entry.ID, res.Entry.Category,
		res.Entry.Amount.String(), res.Totals.Remaining.String())
}

// Close releases the store and the publisher.
func (s *LedgerService) Close() error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}

func ownedEntry(ctx context.Context, tx storage.Tx, op string, requesterID, entryID int64) (core.Entry, error) {
	e, err := tx.GetEntry(ctx, entryID)
	if err != nil {
		return core.Entry{}, err
	}
	if err := e.Authorize(op, requesterID); err != nil {
		return core.Entry{}, err
	}
	return e, nil
}

func reconcile(ctx context.Context, tx storage.Tx, ownerID int64) (ledger.Totals, error) {
	user, err := tx.GetUser(ctx, ownerID)
	if err != nil {
		return ledger.Totals{}, err
	}
	entries, err := tx.ListEntries(ctx, ownerID, core.EntryFilter{})
	if err != nil {
		return ledger.Totals{}, err
	}
	return ledger.Reconcile(user.DeclaredBalance, entries), nil
}

func newestFirst(entries []core.Entry) []core.Entry {
	out := make([]core.Entry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

// withOp stamps op on a validation error built without one.
func withOp(op string, err error) error {
	if e, ok := err.(*core.Error); ok && e.Op == "" {
		c := *e
		c.Op = op
		return &c
	}
	return err
}
