package rules

import (
	"fmt"
	"sort"

	"github.com/runway-dev/runway/internal/model"
)

// validateRule checks a rule definition before anything is expanded or
// persisted. The first violation is returned as a ValidationError naming
// the offending field.
func validateRule(p RuleParams) error {
	if p.Name == "" {
		return model.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if p.AccountID == "" {
		return model.ValidationError{Field: "bankAccount", Message: "must not be empty"}
	}
	if !p.Value.IsPositive() {
		return model.ValidationError{Field: "value", Message: "must be strictly positive"}
	}
	if !p.Direction.Valid() {
		return model.ValidationError{Field: "direction", Message: fmt.Sprintf("unknown direction %q", p.Direction)}
	}
	if !p.Certainty.Valid() {
		return model.ValidationError{Field: "certainty", Message: fmt.Sprintf("unknown certainty %q", p.Certainty)}
	}
	if !p.Frequency.Valid() {
		return model.ValidationError{Field: "frequency", Message: fmt.Sprintf("unknown frequency %q", p.Frequency)}
	}
	if p.StartDate.IsZero() {
		return model.ValidationError{Field: "startDate", Message: "must be set"}
	}
	if !model.Day(p.EndDate).After(model.Day(p.StartDate)) {
		return model.ValidationError{Field: "endDate", Message: "must be strictly after startDate"}
	}
	return nil
}

// validateEvent checks a one-off event definition.
func validateEvent(p EventParams) error {
	if p.Name == "" {
		return model.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if p.AccountID == "" {
		return model.ValidationError{Field: "bankAccount", Message: "must not be empty"}
	}
	if !p.Value.IsPositive() {
		return model.ValidationError{Field: "value", Message: "must be strictly positive"}
	}
	if !p.Direction.Valid() {
		return model.ValidationError{Field: "direction", Message: fmt.Sprintf("unknown direction %q", p.Direction)}
	}
	if !p.Certainty.Valid() {
		return model.ValidationError{Field: "certainty", Message: fmt.Sprintf("unknown certainty %q", p.Certainty)}
	}
	if p.Date.IsZero() {
		return model.ValidationError{Field: "date", Message: "must be set"}
	}
	return nil
}

// validateChain verifies a revision chain's windows: sorted by start date
// they must neither overlap nor leave a gap. A violation here is an
// internal fault, not bad user input.
func validateChain(chain []model.RecurringRule) error {
	if len(chain) < 2 {
		return nil
	}

	sorted := make([]model.RecurringRule, len(chain))
	copy(sorted, chain)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartDate.Before(sorted[j].StartDate) })

	for i := 1; i < len(sorted); i++ {
		prevEnd := model.Day(sorted[i-1].EndDate)
		next := model.Day(sorted[i].StartDate)
		expected := prevEnd.AddDate(0, 0, 1)
		switch {
		case next.Before(expected):
			return model.ConsistencyError{Message: fmt.Sprintf(
				"revision windows overlap: rule %s ends %s, rule %s starts %s",
				sorted[i-1].ID, prevEnd.Format(model.DayFormat), sorted[i].ID, next.Format(model.DayFormat))}
		case next.After(expected):
			return model.ConsistencyError{Message: fmt.Sprintf(
				"gap in revision chain: rule %s ends %s, rule %s starts %s",
				sorted[i-1].ID, prevEnd.Format(model.DayFormat), sorted[i].ID, next.Format(model.DayFormat))}
		}
	}
	return nil
}
