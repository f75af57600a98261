// Package analytics derives read-side figures from a user's ledger: burn rate,
// runway, ratios, category breakdown and the daily spend limit. Nothing here is
// persisted; a Report is rebuilt on every request.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"financeflow/internal/core"
	"financeflow/internal/ledger"
)

// NotApplicable is reported as the depletion date when there is no burn.
const NotApplicable = "N/A"

const dateLayout = "2006-01-02"

var hundred = decimal.NewFromInt(100)

// BurnPoint is the cumulative non-savings spend at the end of a calendar date.
type BurnPoint struct {
	Date       string
	Cumulative decimal.Decimal
}

// BudgetUsage compares a category allocation with what was recorded against it.
type BudgetUsage struct {
	Category  string
	Allocated decimal.Decimal
	Spent     decimal.Decimal
	Remaining decimal.Decimal
	Percent   decimal.Decimal
}

type Report struct {
	Totals ledger.Totals

	Burn         []BurnPoint
	TotalBurn    decimal.Decimal
	DaysElapsed  int
	AvgDailyBurn decimal.Decimal

	DaysLeft           int
	ProjectedDepletion string

	SavingsRatio decimal.Decimal
	SpendRatio   decimal.Decimal

	Breakdown []core.CategoryAmount

	DaysRemainingInMonth int
	DailyLimit           decimal.Decimal

	Budgets []BudgetUsage
}

// Compute builds the report for the given balance and entries as of now.
// Calendar dates are taken in now's location.
func Compute(now time.Time, balance decimal.Decimal, entries []core.Entry, budgets []core.Budget) Report {
	sorted := make([]core.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
	})

	r := Report{Totals: ledger.Reconcile(balance, sorted)}
	today := truncateDay(now)

	r.Burn, r.TotalBurn = cumulativeBurn(sorted, now.Location())
	r.DaysElapsed = 1
	if len(sorted) > 0 {
		first := truncateDay(sorted[0].OccurredAt.In(now.Location()))
		r.DaysElapsed = max(daysBetween(first, today)+1, 1)
	}
	r.AvgDailyBurn = r.TotalBurn.Div(decimal.NewFromInt(int64(r.DaysElapsed)))

	r.ProjectedDepletion = NotApplicable
	if r.AvgDailyBurn.IsPositive() {
		r.DaysLeft = max(int(r.Totals.Remaining.Div(r.AvgDailyBurn).Round(0).IntPart()), 0)
		r.ProjectedDepletion = today.AddDate(0, 0, r.DaysLeft).Format(dateLayout)
	}

	r.SavingsRatio = decimal.Zero
	if balance.IsPositive() {
		r.SavingsRatio = r.Totals.Remaining.Add(r.Totals.Saved).Div(balance).Mul(hundred).Round(2)
	}
	r.SpendRatio = hundred.Sub(r.SavingsRatio)

	r.Breakdown = Breakdown(sorted)

	r.DaysRemainingInMonth = DaysRemainingInMonth(today)
	r.DailyLimit = r.Totals.Remaining.Div(decimal.NewFromInt(int64(r.DaysRemainingInMonth))).Round(2)

	r.Budgets = Usage(budgets, sorted)
	return r
}

func cumulativeBurn(entries []core.Entry, loc *time.Location) ([]BurnPoint, decimal.Decimal) {
	var points []BurnPoint
	total := decimal.Zero
	for _, e := range entries {
		if e.IsSavings() {
			continue
		}
		total = total.Add(e.Amount.Abs())
		date := e.OccurredAt.In(loc).Format(dateLayout)
		if n := len(points); n > 0 && points[n-1].Date == date {
			points[n-1].Cumulative = total
			continue
		}
		points = append(points, BurnPoint{Date: date, Cumulative: total})
	}
	return points, total
}

// Breakdown totals non-savings entries per category, largest first.
func Breakdown(entries []core.Entry) []core.CategoryAmount {
	sums := make(map[string]decimal.Decimal)
	for _, e := range entries {
		if e.IsSavings() {
			continue
		}
		sums[e.Category] = sums[e.Category].Add(e.Amount.Abs())
	}
	out := make([]core.CategoryAmount, 0, len(sums))
	for name, amount := range sums {
		out = append(out, core.CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Usage reports each budget against the entries recorded in its category.
func Usage(budgets []core.Budget, entries []core.Entry) []BudgetUsage {
	if len(budgets) == 0 {
		return nil
	}
	spent := make(map[string]decimal.Decimal)
	for _, e := range entries {
		spent[e.Category] = spent[e.Category].Add(e.Amount)
	}
	out := make([]BudgetUsage, 0, len(budgets))
	for _, b := range budgets {
		u := BudgetUsage{
			Category:  b.Category,
			Allocated: b.Allocated,
			Spent:     spent[b.Category],
			Percent:   decimal.Zero,
		}
		u.Remaining = b.Allocated.Sub(u.Spent)
		if b.Allocated.IsPositive() {
			u.Percent = u.Spent.Div(b.Allocated).Mul(hundred).Round(2)
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// DaysRemainingInMonth counts the days left in day's month, day included.
func DaysRemainingInMonth(day time.Time) int {
	lastDay := time.Date(day.Year(), day.Month()+1, 0, 0, 0, 0, 0, day.Location()).Day()
	return max(lastDay-day.Day()+1, 1)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts civil days from a to b.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
