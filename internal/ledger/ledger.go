// Package ledger reconciles a declared balance against a set of entries.
//
// The balance is the user's stated ceiling and is never rewritten by entry
// operations; everything else is derived on read:
//
//	spent     = Σ amount of entries outside the Savings category
//	saved     = Σ amount of Savings entries
//	remaining = balance − (spent + saved)
//
// Covered and pending entries are included alike. The covered flag is a
// workflow marker only.
package ledger

import (
	"github.com/shopspring/decimal"

	"financeflow/internal/core"
)

// Totals is the reconciled view of one user's ledger.
type Totals struct {
	Balance   decimal.Decimal
	Spent     decimal.Decimal
	Saved     decimal.Decimal
	Remaining decimal.Decimal

	PendingCount  int
	PendingAmount decimal.Decimal
	CoveredCount  int
	CoveredAmount decimal.Decimal
}

// Reconcile computes totals from scratch. It keeps no state between calls.
func Reconcile(balance decimal.Decimal, entries []core.Entry) Totals {
	t := Totals{
		Balance:       balance,
		Spent:         decimal.Zero,
		Saved:         decimal.Zero,
		PendingAmount: decimal.Zero,
		CoveredAmount: decimal.Zero,
	}
	for _, e := range entries {
		if e.IsSavings() {
			t.Saved = t.Saved.Add(e.Amount)
		} else {
			t.Spent = t.Spent.Add(e.Amount)
		}
		if e.Covered {
			t.CoveredCount++
			t.CoveredAmount = t.CoveredAmount.Add(e.Amount)
		} else {
			t.PendingCount++
			t.PendingAmount = t.PendingAmount.Add(e.Amount)
		}
	}
	t.Remaining = balance.Sub(t.Spent.Add(t.Saved))
	return t
}

// CheckFunds rejects an amount larger than what is currently remaining.
// An amount exactly equal to the remaining balance is allowed.
func (t Totals) CheckFunds(op string, amount decimal.Decimal) error {
	if amount.GreaterThan(t.Remaining) {
		return core.InsufficientFunds(op, amount, t.Remaining)
	}
	return nil
}
