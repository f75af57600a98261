package ledger

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"financeflow/internal/core"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func entry(id int64, category string, amount int64, covered bool) core.Entry {
	return core.Entry{
		ID:         id,
		OwnerID:    1,
		Title:      "entry",
		Category:   category,
		Amount:     d(amount),
		OccurredAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Covered:    covered,
	}
}

func TestReconcileScenario(t *testing.T) {
	balance := d(1_000_000)
	var entries []core.Entry

	food := entry(1, "Food", 200_000, false)
	entries = append(entries, food)
	if got := Reconcile(balance, entries).Remaining; !got.Equal(d(800_000)) {
		t.Fatalf("after food: remaining=%s want 800000", got)
	}

	savings := entry(2, core.SavingsCategory, 100_000, false)
	entries = append(entries, savings)
	tot := Reconcile(balance, entries)
	if !tot.Remaining.Equal(d(700_000)) || !tot.Spent.Equal(d(200_000)) || !tot.Saved.Equal(d(100_000)) {
		t.Fatalf("after savings: %+v", tot)
	}

	err := tot.CheckFunds("add entry", d(800_001))
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if !Reconcile(balance, entries).Remaining.Equal(d(700_000)) {
		t.Fatal("a rejected check must not change remaining")
	}

	entries = entries[:1]
	tot = Reconcile(balance, entries)
	if !tot.Remaining.Equal(d(800_000)) || !tot.Saved.IsZero() {
		t.Fatalf("after deleting savings: %+v", tot)
	}
}

func TestCheckFundsBoundary(t *testing.T) {
	tot := Reconcile(d(500), []core.Entry{entry(1, "Food", 200, false)})
	if err := tot.CheckFunds("add", d(300)); err != nil {
		t.Fatalf("amount equal to remaining should pass: %v", err)
	}
	if err := tot.CheckFunds("add", decimal.RequireFromString("300.01")); err == nil {
		t.Fatal("amount above remaining should fail")
	}
}

func TestReconcileIgnoresCoveredFlag(t *testing.T) {
	balance := d(1000)
	pending := []core.Entry{entry(1, "Rent", 300, false), entry(2, core.SavingsCategory, 100, false)}
	covered := []core.Entry{entry(1, "Rent", 300, true), entry(2, core.SavingsCategory, 100, true)}

	a := Reconcile(balance, pending)
	b := Reconcile(balance, covered)
	if !a.Remaining.Equal(b.Remaining) || !a.Spent.Equal(b.Spent) || !a.Saved.Equal(b.Saved) {
		t.Fatalf("covered flag changed ledger inclusion: %+v vs %+v", a, b)
	}
	if a.PendingCount != 2 || b.CoveredCount != 2 || !b.CoveredAmount.Equal(d(400)) {
		t.Fatalf("unexpected status counters: %+v %+v", a, b)
	}
}

func TestReconcileAllowsNegativeBalance(t *testing.T) {
	tot := Reconcile(d(-50), nil)
	if !tot.Remaining.Equal(d(-50)) {
		t.Fatalf("remaining=%s want -50", tot.Remaining)
	}
	if err := tot.CheckFunds("add", d(1)); !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds on negative balance, got %v", err)
	}
}

// Remaining must equal balance - spent - saved for any ordering of the same
// entry set, and must never depend on the order mutations happened in.
func TestReconcileOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	balance := d(10_000_000)
	var entries []core.Entry
	for i := 0; i < 50; i++ {
		cat := "Food"
		if i%4 == 0 {
			cat = core.SavingsCategory
		}
		entries = append(entries, entry(int64(i+1), cat, int64(rng.Intn(50_000)+1), rng.Intn(2) == 0))
	}
	want := Reconcile(balance, entries)
	if !want.Remaining.Equal(balance.Sub(want.Spent).Sub(want.Saved)) {
		t.Fatalf("invariant broken: %+v", want)
	}
	for round := 0; round < 10; round++ {
		rng.Shuffle(len(entries), func(i, j int) { entries[i], entries[j] = entries[j], entries[i] })
		got := Reconcile(balance, entries)
		if !got.Remaining.Equal(want.Remaining) {
			t.Fatalf("round %d: remaining=%s want %s", round, got.Remaining, want.Remaining)
		}
	}
}
