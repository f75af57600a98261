package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"financeflow/internal/core"
	"financeflow/internal/events"
	"financeflow/internal/storage"
	"financeflow/internal/storage/memory"
)

var fixedNow = time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type fixture struct {
	svc   *LedgerService
	store *memory.Store
	rec   *events.Recorder
	owner int64
	other int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: memory.New(), rec: &events.Recorder{}}
	err := f.store.WithTx(ctx, func(tx storage.Tx) error {
		u, err := tx.CreateUser(ctx, core.User{Email: "owner@example.com"})
		if err != nil {
			return err
		}
		o, err := tx.CreateUser(ctx, core.User{Email: "other@example.com"})
		f.owner, f.other = u.ID, o.ID
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	f.svc = NewLedgerService(f.store, f.rec).WithClock(func() time.Time { return fixedNow })
	return f
}

func (f *fixture) add(t *testing.T, title, category string, amount int64) EntryResult {
	t.Helper()
	res, err := f.svc.AddEntry(context.Background(), f.owner, NewEntry{Title: title, Category: category, Amount: d(amount)})
	if err != nil {
		t.Fatalf("add %s: %v", title, err)
	}
	return res
}

func TestLedgerScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.SetBalance(ctx, f.owner, d(1_000_000), false); err != nil {
		t.Fatal(err)
	}

	res := f.add(t, "Market", "Food", 200_000)
	if !res.Totals.Remaining.Equal(d(800_000)) {
		t.Fatalf("remaining = %s, want 800000", res.Totals.Remaining)
	}
	if res.Entry.Covered {
		t.Error("new entries start pending")
	}

	savings := f.add(t, "Emergency fund", core.SavingsCategory, 100_000)
	if tot := savings.Totals; !tot.Remaining.Equal(d(700_000)) || !tot.Spent.Equal(d(200_000)) || !tot.Saved.Equal(d(100_000)) {
		t.Fatalf("totals = %+v", tot)
	}

	_, err := f.svc.AddEntry(ctx, f.owner, NewEntry{Title: "Feast", Category: "Food", Amount: d(800_001)})
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want insufficient funds", err)
	}
	dash, err := f.svc.Dashboard(ctx, f.owner)
	if err != nil {
		t.Fatal(err)
	}
	if !dash.Totals.Remaining.Equal(d(700_000)) || len(dash.Entries) != 2 {
		t.Fatalf("rejected entry changed state: %+v", dash.Totals)
	}

	del, err := f.svc.DeleteEntry(ctx, f.owner, savings.Entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !del.Totals.Remaining.Equal(d(800_000)) || !del.Totals.Saved.IsZero() {
		t.Fatalf("after delete totals = %+v", del.Totals)
	}
	if !del.Totals.Balance.Equal(d(1_000_000)) {
		t.Errorf("declared balance drifted to %s", del.Totals.Balance)
	}

	want := []events.Kind{events.BalanceSet, events.EntryCreated, events.EntryCreated, events.EntryDeleted}
	if got := f.rec.Kinds(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestAddEntryExactRemainingAllowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.svc.SetBalance(ctx, f.owner, d(500), false); err != nil {
		t.Fatal(err)
	}
	res := f.add(t, "All in", "Rent", 500)
	if !res.Totals.Remaining.IsZero() {
		t.Errorf("remaining = %s, want 0", res.Totals.Remaining)
	}
}

func TestAddEntryValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.svc.SetBalance(ctx, f.owner, d(1000), false)

	tests := []struct {
		name string
		in   NewEntry
	}{
		{"zero amount", NewEntry{Title: "x", Category: "Food", Amount: decimal.Zero}},
		{"negative amount", NewEntry{Title: "x", Category: "Food", Amount: d(-5)}},
		{"blank title", NewEntry{Title: "  ", Category: "Food", Amount: d(5)}},
		{"missing category", NewEntry{Title: "x", Amount: d(5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddEntry(ctx, f.owner, tt.in)
			if !errors.Is(err, core.ErrValidation) {
				t.Errorf("err = %v, want validation", err)
			}
		})
	}
	if len(f.rec.Events) != 1 {
		t.Errorf("failed adds published events: %v", f.rec.Kinds())
	}
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.svc.SetBalance(ctx, f.owner, d(1000), false)
	e := f.add(t, "Water bill", "Utilities", 300)

	first, err := f.svc.MarkPaid(ctx, f.owner, e.Entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.MarkPaid(ctx, f.owner, e.Entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Entry.Covered || !second.Entry.Covered {
		t.Error("entry should be covered")
	}
	if !first.Totals.Remaining.Equal(second.Totals.Remaining) || !first.Totals.Remaining.Equal(d(700)) {
		t.Errorf("remaining %s / %s, want 700", first.Totals.Remaining, second.Totals.Remaining)
	}
	paid := 0
	for _, k := range f.rec.Kinds() {
		if k == events.EntryPaid {
			paid++
		}
	}
	if paid != 1 {
		t.Errorf("entry.paid published %d times, want 1", paid)
	}
}

func TestOwnershipAndNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.svc.SetBalance(ctx, f.owner, d(1000), false)
	e := f.add(t, "Books", "Education", 100)

	if _, err := f.svc.UpdateTitle(ctx, f.other, e.Entry.ID, "Stolen"); !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("UpdateTitle by other: %v", err)
	}
	if _, err := f.svc.DeleteEntry(ctx, f.other, e.Entry.ID); !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("DeleteEntry by other: %v", err)
	}
	if _, err := f.svc.MarkPaid(ctx, f.other, e.Entry.ID); !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("MarkPaid by other: %v", err)
	}
	if _, err := f.svc.UpdateTitle(ctx, f.owner, 999, "Ghost"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateTitle missing: %v", err)
	}
	if _, err := f.svc.DeleteEntry(ctx, f.owner, 999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteEntry missing: %v", err)
	}
	if _, err := f.svc.AddEntry(ctx, 404, NewEntry{Title: "x", Category: "Food", Amount: d(1)}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("AddEntry unknown user: %v", err)
	}
	if _, err := f.svc.Budgets(ctx, 404); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Budgets unknown user: %v", err)
	}
	if _, err := f.svc.Activity(ctx, 404, 10); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Activity unknown user: %v", err)
	}

	res, err := f.svc.UpdateTitle(ctx, f.owner, e.Entry.ID, "  Textbooks ")
	if err != nil {
		t.Fatal(err)
	}
	if res.Entry.Title != "Textbooks" || !res.Totals.Remaining.Equal(d(900)) {
		t.Errorf("retitle result = %+v", res)
	}
}

func TestSetBalanceReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.svc.SetBalance(ctx, f.owner, d(1000), false)
	f.add(t, "a", "Food", 100)
	f.add(t, "b", core.SavingsCategory, 200)

	keep, err := f.svc.SetBalance(ctx, f.owner, d(2000), false)
	if err != nil {
		t.Fatal(err)
	}
	if !keep.Totals.Remaining.Equal(d(1700)) || keep.Removed != 0 {
		t.Errorf("without reset: %+v", keep)
	}

	reset, err := f.svc.SetBalance(ctx, f.owner, d(50), true)
	if err != nil {
		t.Fatal(err)
	}
	if reset.Removed != 2 || !reset.Totals.Remaining.Equal(d(50)) || !reset.NewBalance.Equal(d(50)) {
		t.Errorf("with reset: %+v", reset)
	}
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rec.Err = errors.New("broker down")

	if _, err := f.svc.SetBalance(ctx, f.owner, d(100), false); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	res := f.add(t, "Snacks", "Food", 10)
	if res.Entry.ID == 0 {
		t.Error("entry not persisted")
	}
}

func TestNilPublisherSkipsEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewLedgerService(f.store, nil)
	if _, err := svc.SetBalance(ctx, f.owner, d(100), false); err != nil {
		t.Fatal(err)
	}
}

func TestDashboardNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.svc.SetBalance(ctx, f.owner, d(1000), false)
	for i, title := range []string{"old", "mid", "new"} {
		_, err := f.svc.AddEntry(ctx, f.owner, NewEntry{
			Title: title, Category: "Food", Amount: d(1),
			OccurredAt: fixedNow.AddDate(0, 0, i-3),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	dash, err := f.svc.Dashboard(ctx, f.owner)
	if err != nil {
		t.Fatal(err)
	}
	if dash.Entries[0].Title != "new" || dash.Entries[2].Title != "old" {
		t.Errorf("order = %s, %s, %s", dash.Entries[0].Title, dash.Entries[1].Title, dash.Entries[2].Title)
	}
}

func TestAnalyticsRunway(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.svc.SetBalance(ctx, f.owner, d(500_000), false)
	_, err := f.svc.AddEntry(ctx, f.owner, NewEntry{
		Title: "Laptop repair", Category: "Electronics", Amount: d(100_000),
		OccurredAt: fixedNow.AddDate(0, 0, -2),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SetBudget(ctx, f.owner, "Electronics", d(200_000)); err != nil {
		t.Fatal(err)
	}

	r, err := f.svc.Analytics(ctx, f.owner)
	if err != nil {
		t.Fatal(err)
	}
	if r.DaysLeft != 12 {
		t.Errorf("DaysLeft = %d, want 12", r.DaysLeft)
	}
	if len(r.Budgets) != 1 || !r.Budgets[0].Percent.Equal(d(50)) {
		t.Errorf("budgets = %+v", r.Budgets)
	}
}

func TestSetBudgetValidation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.SetBudget(context.Background(), f.owner, "Food", d(-1)); !errors.Is(err, core.ErrValidation) {
		t.Errorf("err = %v", err)
	}
	b, err := f.svc.SetBudget(context.Background(), f.owner, "Food", d(0))
	if err != nil || !b.Allocated.IsZero() {
		t.Errorf("zero budget = %+v, %v", b, err)
	}
}
