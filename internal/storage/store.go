package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"financeflow/internal/core"
)

// Store runs ledger reads and writes inside a single transaction. If fn
// returns an error every write it made is discarded.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of operations available inside a transaction. Lookups of
// absent rows return errors matching core.ErrNotFound; driver failures match
// core.ErrPersistence.
type Tx interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
	UpdateBalance(ctx context.Context, userID int64, balance decimal.Decimal) error

	CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error)
	GetEntry(ctx context.Context, id int64) (core.Entry, error)
	// ListEntries returns the owner's entries ordered by OccurredAt, then ID.
	ListEntries(ctx context.Context, ownerID int64, f core.EntryFilter) ([]core.Entry, error)
	// PendingBefore lists pending entries of every owner that occurred before t.
	PendingBefore(ctx context.Context, t time.Time) ([]core.Entry, error)
	MarkCovered(ctx context.Context, id int64) error
	UpdateEntryTitle(ctx context.Context, id int64, title string) error
	DeleteEntry(ctx context.Context, id int64) error
	DeleteEntries(ctx context.Context, ownerID int64) (int64, error)

	UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error)
	ListBudgets(ctx context.Context, ownerID int64) ([]core.Budget, error)

	// RecordActivity stores a at most once per EventID. It reports whether a
	// row was written.
	RecordActivity(ctx context.Context, a core.Activity) (bool, error)
	ListActivity(ctx context.Context, ownerID int64, limit int) ([]core.Activity, error)
}
