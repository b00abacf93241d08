package guard402

import "time"

// DayWindow returns the inclusive bounds of the local calendar day containing t.
// The end bound is the last representable instant before the next midnight.
func DayWindow(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}

// MonthWindow returns the inclusive bounds of the calendar month containing t.
// A record stamped at the last instant of a month belongs to that month, not
// the next.
func MonthWindow(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}

// InWindow reports whether ts falls within [from, to] inclusive.
func InWindow(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}
