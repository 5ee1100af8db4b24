package subscription

import (
	"errors"
	"testing"
	"time"

	"github.com/kavanet/billing/id"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCycleAdvance(t *testing.T) {
	tests := []struct {
		name  string
		cycle Cycle
		from  time.Time
		want  time.Time
	}{
		{"monthly", CycleMonthly, date(2025, 1, 15), date(2025, 2, 15)},
		{"quarterly", CycleQuarterly, date(2025, 1, 15), date(2025, 4, 15)},
		{"yearly", CycleYearly, date(2025, 1, 15), date(2026, 1, 15)},
		{"month end spill", CycleMonthly, date(2025, 1, 31), date(2025, 3, 3)},
		{"unknown defaults monthly", Cycle("weekly"), date(2025, 1, 15), date(2025, 2, 15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cycle.Advance(tt.from); !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRollForward(t *testing.T) {
	today := date(2025, 6, 10)

	tests := []struct {
		name  string
		due   time.Time
		cycle Cycle
		want  time.Time
	}{
		{"future date unchanged", date(2025, 7, 1), CycleMonthly, date(2025, 7, 1)},
		{"today unchanged", today, CycleMonthly, today},
		{"one hop", date(2025, 5, 15), CycleMonthly, date(2025, 6, 15)},
		{"several hops", date(2025, 1, 5), CycleMonthly, date(2025, 7, 5)},
		{"quarterly hop", date(2025, 1, 5), CycleQuarterly, date(2025, 7, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RollForward(tt.due, tt.cycle, today)
			if err != nil {
				t.Fatalf("RollForward: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRollForwardBounded(t *testing.T) {
	// More than 24 monthly hops in the past.
	_, err := RollForward(date(2020, 1, 1), CycleMonthly, date(2025, 6, 10))
	if !errors.Is(err, ErrBillingDateCorrupt) {
		t.Fatalf("expected ErrBillingDateCorrupt, got %v", err)
	}
}

func TestDaysUntil(t *testing.T) {
	today := date(2025, 6, 10)

	tests := []struct {
		name string
		due  time.Time
		want int
	}{
		{"same day", today, 0},
		{"a week out", date(2025, 6, 17), 7},
		{"past", date(2025, 6, 8), -2},
		{"time of day ignored", time.Date(2025, 6, 17, 23, 59, 0, 0, time.UTC), 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysUntil(today, tt.due); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPeriodForAndRef(t *testing.T) {
	sub := &Subscription{ID: id.NewSubscriptionID(), Cycle: CycleMonthly}
	due := time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)

	start, end := sub.PeriodFor(due)
	if !start.Equal(date(2025, 6, 15)) {
		t.Errorf("start: got %v", start)
	}
	if !end.Equal(date(2025, 7, 15)) {
		t.Errorf("end: got %v", end)
	}

	want := "sub:" + sub.ID.String() + ":2025-06-15"
	if got := sub.PeriodRef(due); got != want {
		t.Errorf("ref: got %q, want %q", got, want)
	}
}
