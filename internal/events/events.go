// Package events defines the ledger events published after a committed
// mutation and the Publisher contract brokers implement.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"financeflow/internal/core"
)

type Kind string

const (
	BalanceSet    Kind = "balance.set"
	EntryCreated  Kind = "entry.created"
	EntryPaid     Kind = "entry.paid"
	EntryRetitled Kind = "entry.retitled"
	EntryDeleted  Kind = "entry.deleted"
	EntryOverdue  Kind = "entry.overdue"
)

// LedgerEvent describes one committed change. For BalanceSet, Amount carries
// the new declared balance and EntryID is zero.
type LedgerEvent struct {
	ID         uuid.UUID       `json:"id"`
	Kind       Kind            `json:"kind"`
	OwnerID    int64           `json:"owner_id"`
	EntryID    int64           `json:"entry_id,omitempty"`
	Title      string          `json:"title,omitempty"`
	Category   string          `json:"category,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Publisher delivers events to a broker. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev LedgerEvent) error
	Close() error
}

// Handler processes one delivered event. Returning an error asks the broker
// to redeliver it.
type Handler func(ctx context.Context, ev LedgerEvent) error

// Consumer delivers events to a Handler until ctx is cancelled.
type Consumer interface {
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// ForEntry builds an event for an entry change stamped with now.
func ForEntry(kind Kind, e core.Entry, now time.Time) LedgerEvent {
	return LedgerEvent{
		ID:         uuid.New(),
		Kind:       kind,
		OwnerID:    e.OwnerID,
		EntryID:    e.ID,
		Title:      e.Title,
		Category:   e.Category,
		Amount:     e.Amount,
		OccurredAt: now,
	}
}

func ForBalance(ownerID int64, balance decimal.Decimal, now time.Time) LedgerEvent {
	return LedgerEvent{
		ID:         uuid.New(),
		Kind:       BalanceSet,
		OwnerID:    ownerID,
		Amount:     balance,
		OccurredAt: now,
	}
}

// Activity converts the event into the audit record the worker stores.
func (ev LedgerEvent) Activity() core.Activity {
	return core.Activity{
		EventID:    ev.ID.String(),
		OwnerID:    ev.OwnerID,
		Kind:       string(ev.Kind),
		EntryID:    ev.EntryID,
		Title:      ev.Title,
		Amount:     ev.Amount,
		RecordedAt: ev.OccurredAt,
	}
}

func (ev LedgerEvent) Marshal() ([]byte, error) {
	return json.Marshal(ev)
}

func Unmarshal(data []byte) (LedgerEvent, error) {
	var ev LedgerEvent
	err := json.Unmarshal(data, &ev)
	return ev, err
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(ctx context.Context, ev LedgerEvent) error {
	slog.DebugContext(ctx, "No event broker configured, skipping event",
		"event_id", ev.ID, "kind", ev.Kind)
	return nil
}

func (Nop) Close() error { return nil }

// Recorder keeps published events in memory. Tests use it to assert on what
// a service emitted.
type Recorder struct {
	mu     sync.Mutex
	Events []LedgerEvent
	Err    error
}

func (r *Recorder) Publish(_ context.Context, ev LedgerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Events = append(r.Events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Kinds lists the kinds recorded so far in publish order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.Events))
	for i, ev := range r.Events {
		out[i] = ev.Kind
	}
	return out
}
