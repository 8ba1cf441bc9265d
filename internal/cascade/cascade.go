// Package cascade folds a starting balance and the active event set into a
// day-by-day projected balance series.
package cascade

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/runway-dev/runway/internal/model"
	"github.com/runway-dev/runway/internal/scenario"
)

// Input is everything a balance fold depends on. Compute reads nothing
// else, so identical inputs always produce identical output and switching
// scenarios is a safe re-run with no shared state.
type Input struct {
	Account model.Account
	Start   time.Time
	End     time.Time
	// Events for the account covering at least [Account.OpeningDate, End].
	// Events outside the folded window are ignored.
	Events []model.ProjectionEvent
	// Actuals maps day keys to user-confirmed balances.
	Actuals map[string]decimal.Decimal
	State   scenario.State
}

// Compute produces the ordered, gap-free balance series for [Start, End].
//
// The fold anchors on the actual balance of the day before Start when one
// is set; otherwise it replays from the account's opening balance, letting
// any intermediate actuals re-anchor along the way. Days strictly before
// the opening date have no anchor at all and are rejected.
//
// Each day's expected balance is the running value after that day's active
// events. An actual balance on day D replaces the running value carried
// into D+1 but never the computed expected value for D itself.
func Compute(in Input) ([]model.DailyBalance, error) {
	start := model.Day(in.Start)
	end := model.Day(in.End)
	if end.Before(start) {
		return nil, model.ValidationError{Field: "endDate", Message: "must be on or after startDate"}
	}

	opening := model.Day(in.Account.OpeningDate)
	if start.Before(opening) {
		return nil, model.ValidationError{
			Field: "startDate",
			Message: fmt.Sprintf("is before the account's opening date %s; no anchor exists for earlier days",
				opening.Format(model.DayFormat)),
		}
	}

	running := in.Account.OpeningBalance
	foldFrom := opening
	if prev, ok := in.Actuals[model.DayKey(start.AddDate(0, 0, -1))]; ok {
		running = prev
		foldFrom = start
	}

	perDay := eventsByDay(in.Events, in.State)

	var rows []model.DailyBalance
	for d := foldFrom; !d.After(end); d = d.AddDate(0, 0, 1) {
		for _, e := range perDay[model.DayKey(d)] {
			running = running.Add(e.Signed())
		}

		if !d.Before(start) {
			row := model.DailyBalance{AccountID: in.Account.ID, Date: d, Expected: running}
			if actual, ok := in.Actuals[model.DayKey(d)]; ok {
				v := actual
				row.Actual = &v
			}
			rows = append(rows, row)
		}

		// Re-anchor for the next day. Expected above keeps the computed
		// value regardless.
		if actual, ok := in.Actuals[model.DayKey(d)]; ok {
			running = actual
		}
	}

	if err := checkSeries(rows, start, end); err != nil {
		return nil, err
	}
	return rows, nil
}

// eventsByDay indexes the active events by day key. Unlikely events are
// excluded unconditionally: "unlikely" is advisory annotation, never a
// projection input. Scenario filtering happens here too, so the fold body
// only ever sees events that count.
func eventsByDay(events []model.ProjectionEvent, state scenario.State) map[string][]model.ProjectionEvent {
	perDay := make(map[string][]model.ProjectionEvent)
	for _, e := range events {
		if e.Certainty == model.CertaintyUnlikely {
			continue
		}
		if !scenario.IsEventActive(e, state) {
			continue
		}
		key := model.DayKey(e.Date)
		perDay[key] = append(perDay[key], e)
	}
	return perDay
}

// checkSeries verifies the produced series is complete and strictly
// consecutive. A violation is an internal fault and aborts the whole
// recalculation.
func checkSeries(rows []model.DailyBalance, start, end time.Time) error {
	wantDays := int(end.Sub(start).Hours()/24) + 1
	if len(rows) != wantDays {
		return model.ConsistencyError{Message: fmt.Sprintf(
			"balance series has %d rows, want %d for %s..%s",
			len(rows), wantDays, start.Format(model.DayFormat), end.Format(model.DayFormat))}
	}
	for i := 1; i < len(rows); i++ {
		if !rows[i].Date.Equal(rows[i-1].Date.AddDate(0, 0, 1)) {
			return model.ConsistencyError{Message: fmt.Sprintf(
				"gap in balance series between %s and %s",
				rows[i-1].Date.Format(model.DayFormat), rows[i].Date.Format(model.DayFormat))}
		}
	}
	return nil
}
