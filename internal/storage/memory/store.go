// Package memory is an in-process Store. Transactions are serialized and run
// against a private copy of the data that replaces the live copy only on
// commit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"financeflow/internal/core"
	"financeflow/internal/storage"
)

type data struct {
	users    map[int64]core.User
	entries  map[int64]core.Entry
	budgets  map[int64]core.Budget
	activity []core.Activity

	nextUser, nextEntry, nextBudget, nextActivity int64
}

func (d *data) clone() *data {
	c := *d
	c.users = make(map[int64]core.User, len(d.users))
	for k, v := range d.users {
		c.users[k] = v
	}
	c.entries = make(map[int64]core.Entry, len(d.entries))
	for k, v := range d.entries {
		c.entries[k] = v
	}
	c.budgets = make(map[int64]core.Budget, len(d.budgets))
	for k, v := range d.budgets {
		c.budgets[k] = v
	}
	c.activity = append([]core.Activity(nil), d.activity...)
	return &c
}

type Store struct {
	mu   sync.Mutex
	data *data
}

func New() *Store {
	return &Store{data: &data{
		users:   make(map[int64]core.User),
		entries: make(map[int64]core.Entry),
		budgets: make(map[int64]core.Budget),
	}}
}

func (s *Store) WithTx(ctx context.Context, fn func(storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return core.Persistence("begin transaction", err)
	}
	work := s.data.clone()
	if err := fn(&tx{d: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

type tx struct {
	d *data
}

func (t *tx) CreateUser(_ context.Context, u core.User) (core.User, error) {
	for _, existing := range t.d.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return core.User{}, core.Invalid("create user", "email already registered")
		}
	}
	t.d.nextUser++
	u.ID = t.d.nextUser
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.BaseCurrency == "" {
		u.BaseCurrency = core.DefaultCurrency
	}
	t.d.users[u.ID] = u
	return u, nil
}

func (t *tx) GetUser(_ context.Context, id int64) (core.User, error) {
	u, ok := t.d.users[id]
	if !ok {
		return core.User{}, core.NotFound("get user", "user", id)
	}
	return u, nil
}

func (t *tx) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	for _, u := range t.d.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return core.User{}, &core.Error{Kind: core.ErrNotFound, Op: "get user by email", Msg: "user " + email + " not found"}
}

func (t *tx) UpdateBalance(_ context.Context, userID int64, balance decimal.Decimal) error {
	u, ok := t.d.users[userID]
	if !ok {
		return core.NotFound("update balance", "user", userID)
	}
	u.DeclaredBalance = balance
	t.d.users[userID] = u
	return nil
}

func (t *tx) CreateEntry(_ context.Context, e core.Entry) (core.Entry, error) {
	if _, ok := t.d.users[e.OwnerID]; !ok {
		return core.Entry{}, core.NotFound("create entry", "user", e.OwnerID)
	}
	t.d.nextEntry++
	e.ID = t.d.nextEntry
	t.d.entries[e.ID] = e
	return e, nil
}

func (t *tx) GetEntry(_ context.Context, id int64) (core.Entry, error) {
	e, ok := t.d.entries[id]
	if !ok {
		return core.Entry{}, core.NotFound("get entry", "entry", id)
	}
	return e, nil
}

func (t *tx) ListEntries(_ context.Context, ownerID int64, f core.EntryFilter) ([]core.Entry, error) {
	return t.filter(func(e core.Entry) bool {
		if e.OwnerID != ownerID {
			return false
		}
		if f.Category != "" && e.Category != f.Category {
			return false
		}
		if f.PendingOnly && e.Covered {
			return false
		}
		return f.Before.IsZero() || e.OccurredAt.Before(f.Before)
	}), nil
}

func (t *tx) PendingBefore(_ context.Context, before time.Time) ([]core.Entry, error) {
	return t.filter(func(e core.Entry) bool {
		return !e.Covered && e.OccurredAt.Before(before)
	}), nil
}

func (t *tx) filter(keep func(core.Entry) bool) []core.Entry {
	var out []core.Entry
	for _, e := range t.d.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *tx) MarkCovered(_ context.Context, id int64) error {
	e, ok := t.d.entries[id]
	if !ok {
		return core.NotFound("mark covered", "entry", id)
	}
	e.Covered = true
	t.d.entries[id] = e
	return nil
}

func (t *tx) UpdateEntryTitle(_ context.Context, id int64, title string) error {
	e, ok := t.d.entries[id]
	if !ok {
		return core.NotFound("update entry title", "entry", id)
	}
	e.Title = title
	t.d.entries[id] = e
	return nil
}

func (t *tx) DeleteEntry(_ context.Context, id int64) error {
	if _, ok := t.d.entries[id]; !ok {
		return core.NotFound("delete entry", "entry", id)
	}
	delete(t.d.entries, id)
	return nil
}

func (t *tx) DeleteEntries(_ context.Context, ownerID int64) (int64, error) {
	var n int64
	for id, e := range t.d.entries {
		if e.OwnerID == ownerID {
			delete(t.d.entries, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) UpsertBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	for id, existing := range t.d.budgets {
		if existing.OwnerID == b.OwnerID && existing.Category == b.Category {
			b.ID = id
			t.d.budgets[id] = b
			return b, nil
		}
	}
	t.d.nextBudget++
	b.ID = t.d.nextBudget
	t.d.budgets[b.ID] = b
	return b, nil
}

func (t *tx) ListBudgets(_ context.Context, ownerID int64) ([]core.Budget, error) {
	var out []core.Budget
	for _, b := range t.d.budgets {
		if b.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (t *tx) RecordActivity(_ context.Context, a core.Activity) (bool, error) {
	for _, existing := range t.d.activity {
		if existing.EventID == a.EventID {
			return false, nil
		}
	}
	t.d.nextActivity++
	a.ID = t.d.nextActivity
	if a.RecordedAt.IsZero() {
		a.RecordedAt = time.Now().UTC()
	}
	t.d.activity = append(t.d.activity, a)
	return true, nil
}

func (t *tx) ListActivity(_ context.Context, ownerID int64, limit int) ([]core.Activity, error) {
	var out []core.Activity
	for i := len(t.d.activity) - 1; i >= 0 && len(out) < limit; i-- {
		if a := t.d.activity[i]; a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	return out, nil
}
