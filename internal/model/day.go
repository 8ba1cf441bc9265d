package model

import "time"

// DayFormat is the canonical date layout used throughout the engine.
const DayFormat = "2006-01-02"

// Day truncates a time to its UTC calendar day. All engine dates are
// normalized this way so map keys and comparisons never depend on the
// time-of-day or zone an input arrived with.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayKey returns the canonical string form of a day, for use as a map key.
func DayKey(t time.Time) string {
	return Day(t).Format(DayFormat)
}

// ParseDay parses a DayFormat string into a normalized day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayFormat, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// SameDay reports whether two times fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}
