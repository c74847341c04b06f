package rollup

import "time"

// Period is an inclusive aggregation window. Its Start doubles as the
// period key: a Monday for weeks, the first of the month for months.
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) StartKey() string { return DayKey(p.Start) }
func (p Period) EndKey() string   { return DayKey(p.End) }

// Days is the inclusive length of the period in calendar days.
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// ClampEnd caps the period's end at the given day (for live previews
// of a period still in progress).
func (p Period) ClampEnd(day time.Time) Period {
	day = midnight(day)
	if day.Before(p.End) {
		p.End = day
	}
	return p
}

// DayKey formats a date as the ISO day key used throughout the store.
func DayKey(t time.Time) string { return t.Format("2006-01-02") }

// CurrentWeek returns the Monday–Sunday week containing today.
func CurrentWeek(today time.Time) Period {
	monday := midnight(today).AddDate(0, 0, -mondayOffset(today))
	return Period{Start: monday, End: monday.AddDate(0, 0, 6)}
}

// PreviousWeek returns the Monday–Sunday week before the one containing today.
func PreviousWeek(today time.Time) Period {
	cur := CurrentWeek(today)
	return Period{Start: cur.Start.AddDate(0, 0, -7), End: cur.Start.AddDate(0, 0, -1)}
}

// CurrentMonth returns the calendar month containing today.
func CurrentMonth(today time.Time) Period {
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	return Period{Start: first, End: first.AddDate(0, 1, -1)}
}

// PreviousMonth returns the calendar month before the one containing today.
func PreviousMonth(today time.Time) Period {
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	return Period{Start: first.AddDate(0, -1, 0), End: first.AddDate(0, 0, -1)}
}

func mondayOffset(t time.Time) int {
	// time.Weekday has Sunday=0; our weeks start on Monday.
	return (int(t.Weekday()) + 6) % 7
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
