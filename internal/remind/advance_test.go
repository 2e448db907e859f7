package remind

import (
	"testing"
	"time"
)

func TestAdvanceSteps(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		pattern Pattern
		want    time.Time
		ok      bool
	}{
		{name: "none retires", pattern: Pattern{}, ok: false},
		{name: "daily", pattern: Pattern{Kind: KindDaily}, want: base.AddDate(0, 0, 1), ok: true},
		{name: "weekly", pattern: Pattern{Kind: KindWeekly}, want: base.AddDate(0, 0, 7), ok: true},
		{name: "hourly", pattern: Pattern{Kind: KindHourly}, want: base.Add(time.Hour), ok: true},
		{name: "every 3 hours", pattern: Pattern{Kind: KindEveryHours, N: 3}, want: base.Add(3 * time.Hour), ok: true},
		{name: "every 10 days", pattern: Pattern{Kind: KindEveryDays, N: 10}, want: base.AddDate(0, 0, 10), ok: true},
		{name: "every 0 hours retires", pattern: Pattern{Kind: KindEveryHours}, ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Advance(base, tt.pattern)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Fatalf("next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdvanceMonthlyClampsEndOfMonth(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "jan 31 clamps to feb 29 on leap year",
			in:   time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC),
			want: time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "jan 31 clamps to feb 28 off leap year",
			in:   time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC),
			want: time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "mid-month keeps the day",
			in:   time.Date(2024, 5, 15, 18, 45, 0, 0, time.UTC),
			want: time.Date(2024, 6, 15, 18, 45, 0, 0, time.UTC),
		},
		{
			name: "dec rolls into next year",
			in:   time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC),
			want: time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Advance(tt.in, Pattern{Kind: KindMonthly})
			if !ok {
				t.Fatal("monthly must not retire")
			}
			if !got.Equal(tt.want) {
				t.Fatalf("next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdvanceWeeklyComposes(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	weekly := Pattern{Kind: KindWeekly}

	one, _ := Advance(start, weekly)
	two, _ := Advance(one, weekly)
	if want := one.AddDate(0, 0, 7); !two.Equal(want) {
		t.Fatalf("advance twice = %v, want %v", two, want)
	}
}

func TestPatternRoundTrip(t *testing.T) {
	t.Parallel()
	patterns := []Pattern{
		{},
		{Kind: KindDaily},
		{Kind: KindWeekly},
		{Kind: KindMonthly},
		{Kind: KindHourly},
		{Kind: KindEveryHours, N: 6},
		{Kind: KindEveryDays, N: 2},
	}
	for _, p := range patterns {
		got := ParsePattern(p.String())
		if got != p {
			t.Fatalf("ParsePattern(%q) = %+v, want %+v", p.String(), got, p)
		}
	}
	if got := ParsePattern("every_x_days"); !got.IsZero() {
		t.Fatalf("malformed pattern parsed as %+v", got)
	}
}
