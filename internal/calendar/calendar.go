// Package calendar classifies dates as working days and shifts payment
// dates forward past weekends and holidays.
package calendar

import (
	"fmt"
	"time"

	"github.com/runway-dev/runway/internal/model"
)

// HolidaySource supplies jurisdiction-specific non-working dates. The
// source and jurisdiction are deliberately pluggable; the engine never
// hard-codes a holiday table.
type HolidaySource interface {
	Holidays() ([]time.Time, error)
}

// Policy decides whether a date is a working day. A nil or empty holiday
// source degrades to weekend-only skipping.
type Policy struct {
	holidays map[string]struct{}
}

// NewPolicy builds a Policy from a holiday source. src may be nil.
func NewPolicy(src HolidaySource) (*Policy, error) {
	p := &Policy{holidays: make(map[string]struct{})}
	if src == nil {
		return p, nil
	}

	days, err := src.Holidays()
	if err != nil {
		return nil, fmt.Errorf("loading holidays: %w", err)
	}
	for _, d := range days {
		p.holidays[model.DayKey(d)] = struct{}{}
	}
	return p, nil
}

// IsWorkingDay reports whether t is neither a weekend nor a holiday.
func (p *Policy) IsWorkingDay(t time.Time) bool {
	d := model.Day(t)
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := p.holidays[model.DayKey(d)]
	return !holiday
}

// NextWorkingDayOnOrAfter returns t itself if it is a working day,
// otherwise the first working day after it.
func (p *Policy) NextWorkingDayOnOrAfter(t time.Time) time.Time {
	d := model.Day(t)
	for !p.IsWorkingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
