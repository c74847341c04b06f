package rollup

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 15, 4, 5, 0, time.UTC)
}

func TestWeekBounds(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name       string
		today      time.Time
		start, end string
	}{
		{"monday", date(2026, time.August, 31), "2026-08-31", "2026-09-06"},
		{"midweek", date(2026, time.September, 2), "2026-08-31", "2026-09-06"},
		{"sunday", date(2026, time.September, 6), "2026-08-31", "2026-09-06"},
		{"year boundary", date(2026, time.January, 1), "2025-12-29", "2026-01-04"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := CurrentWeek(tc.today)
			if p.StartKey() != tc.start || p.EndKey() != tc.end {
				t.Fatalf("got %s..%s, want %s..%s", p.StartKey(), p.EndKey(), tc.start, tc.end)
			}
			if p.Days() != 7 {
				t.Fatalf("week length = %d", p.Days())
			}
		})
	}
}

func TestPreviousWeek(t *testing.T) {
	t.Parallel()
	// Monday firing covers the week that just ended.
	p := PreviousWeek(date(2026, time.August, 31))
	if p.StartKey() != "2026-08-24" || p.EndKey() != "2026-08-30" {
		t.Fatalf("got %s..%s", p.StartKey(), p.EndKey())
	}
}

func TestMonthBounds(t *testing.T) {
	t.Parallel()
	p := CurrentMonth(date(2026, time.February, 14))
	if p.StartKey() != "2026-02-01" || p.EndKey() != "2026-02-28" || p.Days() != 28 {
		t.Fatalf("feb: %s..%s days=%d", p.StartKey(), p.EndKey(), p.Days())
	}

	// First-of-month firing covers the month that just ended.
	p = PreviousMonth(date(2026, time.March, 1))
	if p.StartKey() != "2026-02-01" || p.EndKey() != "2026-02-28" {
		t.Fatalf("prev from mar 1: %s..%s", p.StartKey(), p.EndKey())
	}
	p = PreviousMonth(date(2026, time.January, 1))
	if p.StartKey() != "2025-12-01" || p.EndKey() != "2025-12-31" {
		t.Fatalf("prev across year: %s..%s", p.StartKey(), p.EndKey())
	}
}

func TestClampEnd(t *testing.T) {
	t.Parallel()
	today := date(2026, time.September, 2)
	p := CurrentWeek(today).ClampEnd(today)
	if p.EndKey() != "2026-09-02" || p.Days() != 3 {
		t.Fatalf("clamped: %s..%s days=%d", p.StartKey(), p.EndKey(), p.Days())
	}
	// Clamping past the end changes nothing.
	p = CurrentWeek(today).ClampEnd(date(2026, time.December, 1))
	if p.EndKey() != "2026-09-06" {
		t.Fatalf("over-clamp: %s", p.EndKey())
	}
}
