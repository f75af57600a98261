package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"financeflow/internal/core"
)

func amt(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func at(day int) time.Time {
	return time.Date(2026, 3, day, 10, 0, 0, 0, time.UTC)
}

func TestComputeRunway(t *testing.T) {
	now := at(12)
	entries := []core.Entry{
		{ID: 1, OwnerID: 1, Title: "Groceries", Category: "Food", Amount: amt("100000"), OccurredAt: now.AddDate(0, 0, -2)},
	}

	r := Compute(now, amt("500000"), entries, nil)

	if r.DaysElapsed != 3 {
		t.Errorf("DaysElapsed = %d, want 3", r.DaysElapsed)
	}
	if got := r.AvgDailyBurn.Round(2); !got.Equal(amt("33333.33")) {
		t.Errorf("AvgDailyBurn = %s, want 33333.33", got)
	}
	if r.DaysLeft != 12 {
		t.Errorf("DaysLeft = %d, want 12", r.DaysLeft)
	}
	if r.ProjectedDepletion != "2026-03-24" {
		t.Errorf("ProjectedDepletion = %q, want 2026-03-24", r.ProjectedDepletion)
	}
}

func TestComputeNoBurn(t *testing.T) {
	now := at(5)
	entries := []core.Entry{
		{ID: 1, OwnerID: 1, Title: "Piggy bank", Category: core.SavingsCategory, Amount: amt("1000"), OccurredAt: at(1)},
	}

	r := Compute(now, amt("5000"), entries, nil)

	if !r.TotalBurn.IsZero() || len(r.Burn) != 0 {
		t.Fatalf("savings must not burn: total=%s points=%d", r.TotalBurn, len(r.Burn))
	}
	if r.DaysLeft != 0 || r.ProjectedDepletion != NotApplicable {
		t.Errorf("runway = %d/%q, want 0/N/A", r.DaysLeft, r.ProjectedDepletion)
	}
	if !r.SavingsRatio.Equal(amt("100")) || !r.SpendRatio.IsZero() {
		t.Errorf("ratios = %s/%s, want 100/0", r.SavingsRatio, r.SpendRatio)
	}
}

func TestComputeEmpty(t *testing.T) {
	r := Compute(at(30), decimal.Zero, nil, nil)
	if r.DaysElapsed != 1 {
		t.Errorf("DaysElapsed = %d, want 1", r.DaysElapsed)
	}
	if !r.SavingsRatio.IsZero() || !r.SpendRatio.Equal(amt("100")) {
		t.Errorf("ratios = %s/%s, want 0/100", r.SavingsRatio, r.SpendRatio)
	}
	if r.ProjectedDepletion != NotApplicable {
		t.Errorf("ProjectedDepletion = %q", r.ProjectedDepletion)
	}
}

func TestComputeNegativeRemainingClampsRunway(t *testing.T) {
	now := at(10)
	entries := []core.Entry{
		{ID: 1, OwnerID: 1, Title: "Rent", Category: "Housing", Amount: amt("900"), OccurredAt: at(10)},
	}
	r := Compute(now, amt("500"), entries, nil)
	if r.DaysLeft != 0 {
		t.Errorf("DaysLeft = %d, want 0", r.DaysLeft)
	}
	if r.ProjectedDepletion != "2026-03-10" {
		t.Errorf("ProjectedDepletion = %q, want today", r.ProjectedDepletion)
	}
}

func TestCumulativeBurnStepFunction(t *testing.T) {
	entries := []core.Entry{
		{Category: "Food", Amount: amt("10"), OccurredAt: at(1)},
		{Category: "Transport", Amount: amt("5"), OccurredAt: at(1).Add(3 * time.Hour)},
		{Category: core.SavingsCategory, Amount: amt("50"), OccurredAt: at(2)},
		{Category: "Food", Amount: amt("20"), OccurredAt: at(3)},
	}
	r := Compute(at(3), amt("1000"), entries, nil)

	want := []BurnPoint{
		{Date: "2026-03-01", Cumulative: amt("15")},
		{Date: "2026-03-03", Cumulative: amt("35")},
	}
	if len(r.Burn) != len(want) {
		t.Fatalf("got %d points, want %d: %+v", len(r.Burn), len(want), r.Burn)
	}
	for i := range want {
		if r.Burn[i].Date != want[i].Date || !r.Burn[i].Cumulative.Equal(want[i].Cumulative) {
			t.Errorf("point %d = %+v, want %+v", i, r.Burn[i], want[i])
		}
	}
}

func TestBreakdownOrdering(t *testing.T) {
	entries := []core.Entry{
		{Category: "Transport", Amount: amt("30")},
		{Category: "Food", Amount: amt("50")},
		{Category: "Airtime", Amount: amt("50")},
		{Category: core.SavingsCategory, Amount: amt("500")},
		{Category: "Food", Amount: amt("10")},
	}
	got := Breakdown(entries)
	want := []core.CategoryAmount{
		{Name: "Food", Amount: amt("60")},
		{Name: "Airtime", Amount: amt("50")},
		{Name: "Transport", Amount: amt("30")},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i].Name != want[i].Name || !got[i].Amount.Equal(want[i].Amount) {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDaysRemainingInMonth(t *testing.T) {
	tests := []struct {
		day  time.Time
		want int
	}{
		{time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 31},
		{time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC), 1},
		{time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), 9},
		{time.Date(2028, 2, 20, 0, 0, 0, 0, time.UTC), 10},
	}
	for _, tt := range tests {
		if got := DaysRemainingInMonth(tt.day); got != tt.want {
			t.Errorf("DaysRemainingInMonth(%s) = %d, want %d", tt.day.Format(dateLayout), got, tt.want)
		}
	}
}

func TestDailyLimit(t *testing.T) {
	r := Compute(time.Date(2026, 4, 21, 9, 0, 0, 0, time.UTC), amt("1000"), nil, nil)
	if r.DaysRemainingInMonth != 10 {
		t.Fatalf("DaysRemainingInMonth = %d", r.DaysRemainingInMonth)
	}
	if !r.DailyLimit.Equal(amt("100")) {
		t.Errorf("DailyLimit = %s, want 100", r.DailyLimit)
	}
}

func TestUsage(t *testing.T) {
	budgets := []core.Budget{
		{Category: "Food", Allocated: amt("200")},
		{Category: "Books", Allocated: decimal.Zero},
	}
	entries := []core.Entry{
		{Category: "Food", Amount: amt("50")},
		{Category: "Food", Amount: amt("100")},
	}
	got := Usage(budgets, entries)
	if len(got) != 2 || got[0].Category != "Books" || got[1].Category != "Food" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if !got[0].Percent.IsZero() || !got[0].Spent.IsZero() {
		t.Errorf("empty budget usage = %+v", got[0])
	}
	food := got[1]
	if !food.Spent.Equal(amt("150")) || !food.Remaining.Equal(amt("50")) || !food.Percent.Equal(amt("75")) {
		t.Errorf("food usage = %+v", food)
	}
}
