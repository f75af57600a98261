package http

import (
	"time"

	"github.com/shopspring/decimal"

	"financeflow/internal/analytics"
	"financeflow/internal/core"
	"financeflow/internal/ledger"
)

type entryView struct {
	ID         int64            `json:"id"`
	Title      string           `json:"title"`
	Category   string           `json:"category"`
	Amount     decimal.Decimal  `json:"amount"`
	OccurredAt time.Time        `json:"occurred_at"`
	Status     core.EntryStatus `json:"status"`
	IsCovered  bool             `json:"is_covered"`
}

func toEntryView(e core.Entry) entryView {
	return entryView{
		ID:         e.ID,
		Title:      e.Title,
		Category:   e.Category,
		Amount:     e.Amount,
		OccurredAt: e.OccurredAt,
		Status:     e.Status(),
		IsCovered:  e.Covered,
	}
}

func toEntryViews(entries []core.Entry) []entryView {
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryView(e))
	}
	return out
}

type totalsView struct {
	Balance       decimal.Decimal `json:"total_balance"`
	Spent         decimal.Decimal `json:"total_spent"`
	Saved         decimal.Decimal `json:"amount_saved"`
	Remaining     decimal.Decimal `json:"total_remaining"`
	PendingCount  int             `json:"pending_count"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
	CoveredCount  int             `json:"covered_count"`
	CoveredAmount decimal.Decimal `json:"covered_amount"`
}

func toTotalsView(t ledger.Totals) totalsView {
	return totalsView{
		Balance:       t.Balance,
		Spent:         t.Spent,
		Saved:         t.Saved,
		Remaining:     t.Remaining,
		PendingCount:  t.PendingCount,
		PendingAmount: t.PendingAmount,
		CoveredCount:  t.CoveredCount,
		CoveredAmount: t.CoveredAmount,
	}
}

type userView struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Currency string `json:"currency"`
}

func toUserView(u core.User) userView {
	return userView{ID: u.ID, Email: u.Email, FullName: u.FullName, Currency: u.Currency()}
}

type categoryView struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type burnView struct {
	Date       string          `json:"date"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

type budgetUsageView struct {
	Category  string          `json:"category"`
	Allocated decimal.Decimal `json:"allocated"`
	Spent     decimal.Decimal `json:"spent"`
	Remaining decimal.Decimal `json:"remaining"`
	Percent   decimal.Decimal `json:"percent"`
}

type reportView struct {
	Totals               totalsView        `json:"totals"`
	Burn                 []burnView        `json:"burn"`
	TotalBurn            decimal.Decimal   `json:"total_burn"`
	DaysElapsed          int               `json:"days_elapsed"`
	AvgDailyBurn         decimal.Decimal   `json:"avg_daily_burn"`
	DaysLeft             int               `json:"days_left"`
	ProjectedDepletion   string            `json:"projected_depletion"`
	SavingsRatio         decimal.Decimal   `json:"savings_ratio"`
	SpendRatio           decimal.Decimal   `json:"spend_ratio"`
	Breakdown            []categoryView    `json:"breakdown"`
	DaysRemainingInMonth int               `json:"days_remaining_in_month"`
	DailyLimit           decimal.Decimal   `json:"daily_limit"`
	Budgets              []budgetUsageView `json:"budgets"`
}

func toReportView(r analytics.Report) reportView {
	v := reportView{
		Totals:               toTotalsView(r.Totals),
		Burn:                 make([]burnView, 0, len(r.Burn)),
		TotalBurn:            r.TotalBurn,
		DaysElapsed:          r.DaysElapsed,
		AvgDailyBurn:         r.AvgDailyBurn.Round(2),
		DaysLeft:             r.DaysLeft,
		ProjectedDepletion:   r.ProjectedDepletion,
		SavingsRatio:         r.SavingsRatio,
		SpendRatio:           r.SpendRatio,
		Breakdown:            make([]categoryView, 0, len(r.Breakdown)),
		DaysRemainingInMonth: r.DaysRemainingInMonth,
		DailyLimit:           r.DailyLimit,
		Budgets:              make([]budgetUsageView, 0, len(r.Budgets)),
	}
	for _, p := range r.Burn {
		v.Burn = append(v.Burn, burnView(p))
	}
	for _, c := range r.Breakdown {
		v.Breakdown = append(v.Breakdown, categoryView(c))
	}
	for _, b := range r.Budgets {
		v.Budgets = append(v.Budgets, budgetUsageView(b))
	}
	return v
}

type budgetView struct {
	Category  string          `json:"category"`
	Allocated decimal.Decimal `json:"allocated"`
}

type activityView struct {
	EventID    string          `json:"event_id"`
	Kind       string          `json:"kind"`
	EntryID    int64           `json:"entry_id,omitempty"`
	Title      string          `json:"title,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	RecordedAt time.Time       `json:"recorded_at"`
}

func toActivityView(a core.Activity) activityView {
	return activityView{
		EventID:    a.EventID,
		Kind:       a.Kind,
		EntryID:    a.EntryID,
		Title:      a.Title,
		Amount:     a.Amount,
		RecordedAt: a.RecordedAt,
	}
}
