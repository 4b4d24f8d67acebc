package recurrence

import (
	"testing"

	"conti/internal/core"
)

func TestMonthlyFinder_Next(t *testing.T) {
	finder := MonthlyFinder{}

	tests := []struct {
		name  string
		start core.Date
		after core.Date
		want  core.Date
	}{
		{
			name:  "before start returns start",
			start: core.NewDate(2025, 3, 10),
			after: core.NewDate(2025, 1, 1),
			want:  core.NewDate(2025, 3, 10),
		},
		{
			name:  "same month later day",
			start: core.NewDate(2025, 1, 20),
			after: core.NewDate(2025, 3, 5),
			want:  core.NewDate(2025, 3, 20),
		},
		{
			name:  "rolls into next month",
			start: core.NewDate(2025, 1, 5),
			after: core.NewDate(2025, 3, 5),
			want:  core.NewDate(2025, 4, 5),
		},
		{
			name:  "day 31 clamps in february",
			start: core.NewDate(2025, 1, 31),
			after: core.NewDate(2025, 2, 1),
			want:  core.NewDate(2025, 2, 28),
		},
		{
			name:  "day 31 clamps in leap february",
			start: core.NewDate(2024, 1, 31),
			after: core.NewDate(2024, 2, 1),
			want:  core.NewDate(2024, 2, 29),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := finder.Next(tt.start, tt.after)
			if !got.Equal(tt.want.Time) {
				t.Errorf("Next(%s, %s) = %s, want %s", tt.start, tt.after, got, tt.want)
			}
		})
	}
}

// A monthly rule must fire in every month from its start onward, clamping
// notwithstanding.
func TestMonthlyFinder_EveryMonthHasOccurrence(t *testing.T) {
	start := core.NewDate(2025, 1, 31)
	for month := 1; month <= 12; month++ {
		active, err := ActiveInMonth(core.Monthly, start, core.Date{}, 2025, month)
		if err != nil {
			t.Fatalf("ActiveInMonth(2025, %d) error: %v", month, err)
		}
		if !active {
			t.Errorf("monthly rule starting %s inactive in 2025-%02d", start, month)
		}
	}
}

func TestWeeklyFinder_Next(t *testing.T) {
	finder := WeeklyFinder{}
	start := core.NewDate(2025, 3, 3) // a Monday

	tests := []struct {
		name  string
		after core.Date
		want  core.Date
	}{
		{name: "day after start", after: core.NewDate(2025, 3, 3), want: core.NewDate(2025, 3, 10)},
		{name: "mid week", after: core.NewDate(2025, 3, 6), want: core.NewDate(2025, 3, 10)},
		{name: "several weeks out", after: core.NewDate(2025, 3, 24), want: core.NewDate(2025, 3, 31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := finder.Next(start, tt.after)
			if !got.Equal(tt.want.Time) {
				t.Errorf("Next(%s, %s) = %s, want %s", start, tt.after, got, tt.want)
			}
		})
	}
}

func TestYearlyFinder_Next(t *testing.T) {
	finder := YearlyFinder{}

	got := finder.Next(core.NewDate(2024, 2, 29), core.NewDate(2025, 1, 1))
	want := core.NewDate(2025, 2, 28)
	if !got.Equal(want.Time) {
		t.Errorf("feb 29 rule outside leap year: got %s, want %s", got, want)
	}

	got = finder.Next(core.NewDate(2023, 6, 15), core.NewDate(2025, 7, 1))
	want = core.NewDate(2026, 6, 15)
	if !got.Equal(want.Time) {
		t.Errorf("past anniversary rolls to next year: got %s, want %s", got, want)
	}
}

func TestActiveInMonth(t *testing.T) {
	tests := []struct {
		name  string
		freq  core.Frequency
		start core.Date
		end   core.Date
		year  int
		month int
		want  bool
	}{
		{
			name: "daily always active after start",
			freq: core.Daily, start: core.NewDate(2025, 1, 1),
			year: 2025, month: 6, want: true,
		},
		{
			name: "starts after month",
			freq: core.Monthly, start: core.NewDate(2025, 7, 1),
			year: 2025, month: 6, want: false,
		},
		{
			name: "starts mid month",
			freq: core.Monthly, start: core.NewDate(2025, 6, 20),
			year: 2025, month: 6, want: true,
		},
		{
			name: "ended before month",
			freq: core.Monthly, start: core.NewDate(2025, 1, 10),
			end:  core.NewDate(2025, 4, 30),
			year: 2025, month: 6, want: false,
		},
		{
			name: "end date cuts off occurrence",
			freq: core.Monthly, start: core.NewDate(2025, 1, 20),
			end:  core.NewDate(2025, 6, 10),
			year: 2025, month: 6, want: false,
		},
		{
			name: "end date after occurrence keeps it",
			freq: core.Monthly, start: core.NewDate(2025, 1, 20),
			end:  core.NewDate(2025, 6, 25),
			year: 2025, month: 6, want: true,
		},
		{
			name: "yearly only in anniversary month",
			freq: core.Yearly, start: core.NewDate(2023, 9, 12),
			year: 2025, month: 6, want: false,
		},
		{
			name: "yearly active in anniversary month",
			freq: core.Yearly, start: core.NewDate(2023, 9, 12),
			year: 2025, month: 9, want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ActiveInMonth(tt.freq, tt.start, tt.end, tt.year, tt.month)
			if err != nil {
				t.Fatalf("ActiveInMonth error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ActiveInMonth(%s) = %v, want %v", tt.freq, got, tt.want)
			}
		})
	}
}

func TestActiveInMonth_UnknownFrequency(t *testing.T) {
	_, err := ActiveInMonth("quarterly", core.NewDate(2025, 1, 1), core.Date{}, 2025, 6)
	if err == nil {
		t.Fatal("expected error for unknown frequency")
	}
}

func TestExpandMonth(t *testing.T) {
	tpl := core.RecurringBudgetTemplate{
		ID:         "tpl-1",
		UserID:     "u-1",
		CategoryID: "food",
		Amount:     core.MustAmount("300.00"),
		Frequency:  core.Monthly,
		StartDate:  core.NewDate(2025, 1, 1),
	}

	res, err := ExpandMonth(tpl, 2025, 6)
	if err != nil {
		t.Fatalf("ExpandMonth error: %v", err)
	}
	if !res.Active {
		t.Fatal("template should be active in 2025-06")
	}
	if res.Amount.String() != "300" {
		t.Errorf("amount = %s, want 300", res.Amount)
	}

	res, err = ExpandMonth(tpl, 2024, 12)
	if err != nil {
		t.Fatalf("ExpandMonth error: %v", err)
	}
	if res.Active {
		t.Error("template should be inactive before its start date")
	}

	bad := tpl
	bad.Frequency = "fortnightly"
	if _, err := ExpandMonth(bad, 2025, 6); err == nil {
		t.Error("expected validation error for bad frequency")
	}
}
