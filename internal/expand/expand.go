// Package expand turns a recurring rule into its concrete occurrence dates.
package expand

import (
	"fmt"
	"time"

	"github.com/runway-dev/runway/internal/calendar"
	"github.com/runway-dev/runway/internal/model"
)

// DefaultMaxOccurrences bounds how many occurrences a single rule may
// generate. Roughly ten years of a daily rule.
const DefaultMaxOccurrences = 4000

// Dates returns the ordered occurrence dates of a rule, stepping by its
// frequency from StartDate up to and including the last step on or before
// EndDate.
//
// Incoming occurrences are shifted to the next working day; expenses are
// never shifted. The step bound is checked against the unshifted date, so
// a shift may carry the final incoming occurrence past EndDate. Shifting
// can also land several occurrences of a daily rule on the same Monday;
// the result is then non-decreasing rather than strictly increasing.
//
// The result depends only on the rule and the calendar policy, never on
// wall-clock time. Rules whose window would exceed maxOccurrences are
// rejected rather than expanded.
func Dates(rule model.RecurringRule, cal *calendar.Policy, maxOccurrences int) ([]time.Time, error) {
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}

	start := model.Day(rule.StartDate)
	end := model.Day(rule.EndDate)

	var dates []time.Time
	for i := 0; ; i++ {
		d := step(start, rule.Frequency, i)
		if d.After(end) {
			break
		}
		if len(dates) >= maxOccurrences {
			return nil, model.ValidationError{
				Field:   "endDate",
				Message: fmt.Sprintf("rule would generate more than %d occurrences", maxOccurrences),
			}
		}
		if rule.Direction == model.DirectionIncoming {
			d = cal.NextWorkingDayOnOrAfter(d)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// step returns the i-th occurrence date (0-based) for a frequency anchored
// at start.
func step(start time.Time, f model.Frequency, i int) time.Time {
	switch f {
	case model.FrequencyDaily:
		return start.AddDate(0, 0, i)
	case model.FrequencyWeekly:
		return start.AddDate(0, 0, 7*i)
	case model.FrequencyMonthly:
		return addMonthsClamped(start, i)
	case model.FrequencyQuarterly:
		return addMonthsClamped(start, 3*i)
	case model.FrequencyBiannual:
		return addMonthsClamped(start, 6*i)
	case model.FrequencyAnnual:
		return addMonthsClamped(start, 12*i)
	}
	// Frequencies are validated before expansion; an unknown one here is a
	// programming error.
	panic(fmt.Sprintf("unknown frequency %q", f))
}

// addMonthsClamped advances by whole months keeping the anchor's
// day-of-month, clamped to the target month's length. A rule anchored on
// the 31st lands on Feb 28 (29 in leap years) and back on the 31st in
// March, never skipping a month the way naive AddDate rollover would.
func addMonthsClamped(start time.Time, months int) time.Time {
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	first = first.AddDate(0, months, 0)

	day := start.Day()
	if last := daysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
