package rules

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runway-dev/runway/internal/calendar"
	"github.com/runway-dev/runway/internal/model"
	"github.com/runway-dev/runway/internal/store"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newFixture(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	require.NoError(t, st.UpsertAccount(context.Background(), model.Account{
		ID:             "a1",
		Name:           "Current",
		OpeningBalance: dec("1000"),
		OpeningDate:    date(2026, 1, 1),
	}))
	cal, err := calendar.NewPolicy(nil)
	require.NoError(t, err)
	return NewService(st, cal, 0, quietLogger()), st
}

func monthlyRent(value string) RuleParams {
	return RuleParams{
		Name:      "rent",
		Value:     dec(value),
		Direction: model.DirectionExpense,
		Certainty: model.CertaintyCertain,
		StartDate: date(2026, 1, 5),
		EndDate:   date(2026, 12, 31),
		Frequency: model.FrequencyMonthly,
		AccountID: "a1",
	}
}

func TestCreateRule_MaterializesEvents(t *testing.T) {
	ctx := context.Background()
	svc, st := newFixture(t)

	rule, count, err := svc.CreateRule(ctx, monthlyRent("850"))
	require.NoError(t, err)
	assert.Equal(t, 12, count)
	assert.True(t, rule.IsBaseRule)

	events, err := st.EventsInRange(ctx, "a1", date(2026, 1, 1), date(2026, 12, 31))
	require.NoError(t, err)
	require.Len(t, events, 12)
	for _, e := range events {
		assert.Equal(t, rule.ID, e.RuleID)
		assert.Equal(t, "rent", e.Name)
		assert.True(t, e.Value.Equal(dec("850")))
	}
}

func TestCreateRule_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(t)

	cases := []struct {
		name   string
		mutate func(*RuleParams)
		field  string
	}{
		{"end before start", func(p *RuleParams) { p.EndDate = date(2025, 12, 1) }, "endDate"},
		{"end equals start", func(p *RuleParams) { p.EndDate = p.StartDate }, "endDate"},
		{"zero value", func(p *RuleParams) { p.Value = decimal.Zero }, "value"},
		{"negative value", func(p *RuleParams) { p.Value = dec("-5") }, "value"},
		{"missing name", func(p *RuleParams) { p.Name = "" }, "name"},
		{"bad frequency", func(p *RuleParams) { p.Frequency = "fortnightly" }, "frequency"},
		{"bad direction", func(p *RuleParams) { p.Direction = "sideways" }, "direction"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := monthlyRent("850")
			tc.mutate(&p)
			_, _, err := svc.CreateRule(ctx, p)
			var ve model.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestCreateRule_UnknownAccount(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(t)

	p := monthlyRent("850")
	p.AccountID = "missing"
	_, _, err := svc.CreateRule(ctx, p)
	assert.True(t, model.IsNotFound(err))
}

func TestCreateRule_UnknownDecisionPath(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(t)

	p := monthlyRent("850")
	p.DecisionPathID = "missing"
	_, _, err := svc.CreateRule(ctx, p)
	assert.True(t, model.IsNotFound(err))
}

func TestUpdateRule_RegeneratesAtomically(t *testing.T) {
	ctx := context.Background()
	svc, st := newFixture(t)

	rule, _, err := svc.CreateRule(ctx, monthlyRent("850"))
	require.NoError(t, err)

	p := monthlyRent("900")
	p.EndDate = date(2026, 6, 30)
	updated, count, err := svc.UpdateRule(ctx, rule.ID, p)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
	assert.Equal(t, rule.ID, updated.ID)

	events, err := st.EventsInRange(ctx, "a1", date(2026, 1, 1), date(2026, 12, 31))
	require.NoError(t, err)
	require.Len(t, events, 6, "no stale events from the previous definition")
	for _, e := range events {
		assert.True(t, e.Value.Equal(dec("900")))
	}
}

func TestUpdateRule_InvalidInputLeavesEventsUntouched(t *testing.T) {
	ctx := context.Background()
	svc, st := newFixture(t)

	rule, _, err := svc.CreateRule(ctx, monthlyRent("850"))
	require.NoError(t, err)

	p := monthlyRent("900")
	p.EndDate = p.StartDate
	_, _, err = svc.UpdateRule(ctx, rule.ID, p)
	require.Error(t, err)

	events, err := st.EventsInRange(ctx, "a1", date(2026, 1, 1), date(2026, 12, 31))
	require.NoError(t, err)
	require.Len(t, events, 12)
	assert.True(t, events[0].Value.Equal(dec("850")))
}

func TestCreateRevision_TruncatesAndChains(t *testing.T) {
	ctx := context.Background()
	svc, st := newFixture(t)

	base, _, err := svc.CreateRule(ctx, monthlyRent("850"))
	require.NoError(t, err)

	res, err := svc.CreateRevision(ctx, base.ID, date(2026, 7, 1), dec("925"), Overrides{})
	require.NoError(t, err)
	assert.Equal(t, base.ID, res.Revision.BaseRuleID)
	assert.False(t, res.Revision.IsBaseRule)
	assert.Equal(t, date(2026, 7, 1), res.Revision.StartDate)
	assert.Equal(t, date(2026, 12, 31), res.Revision.EndDate, "revision inherits the original end")
	assert.Equal(t, 6, res.BaseEventCount, "Jan through Jun")
	assert.Equal(t, 6, res.RevisionEventCount, "Jul through Dec")

	truncated, err := st.Rule(ctx, base.ID)
	require.NoError(t, err)
	assert.Equal(t, date(2026, 6, 30), truncated.EndDate)

	events, err := st.EventsInRange(ctx, "a1", date(2026, 1, 1), date(2026, 12, 31))
	require.NoError(t, err)
	require.Len(t, events, 12)
	for _, e := range events {
		if e.Date.Before(date(2026, 7, 1)) {
			assert.True(t, e.Value.Equal(dec("850")), "pre-revision occurrences keep the old value")
		} else {
			assert.True(t, e.Value.Equal(dec("925")), "post-revision occurrences carry the new value")
		}
	}
}

func TestCreateRevision_ChainWindowsCoverOriginalSpan(t *testing.T) {
	ctx := context.Background()
	svc, st := newFixture(t)

	base, _, err := svc.CreateRule(ctx, monthlyRent("850"))
	require.NoError(t, err)

	_, err = svc.CreateRevision(ctx, base.ID, date(2026, 5, 1), dec("900"), Overrides{})
	require.NoError(t, err)

	chain, err := st.RulesInChain(ctx, base.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, date(2026, 1, 5), chain[0].StartDate)
	assert.Equal(t, date(2026, 4, 30), chain[0].EndDate)
	assert.Equal(t, date(2026, 5, 1), chain[1].StartDate)
	assert.Equal(t, date(2026, 12, 31), chain[1].EndDate)
}

func TestCreateRevision_OfARevisionPropagatesRoot(t *testing.T) {
	ctx := context.Background()
	svc, st := newFixture(t)

	base, _, err := svc.CreateRule(ctx, monthlyRent("850"))
	require.NoError(t, err)

	first, err := svc.CreateRevision(ctx, base.ID, date(2026, 5, 1), dec("900"), Overrides{})
	require.NoError(t, err)

	second, err := svc.CreateRevision(ctx, first.Revision.ID, date(2026, 9, 1), dec("950"), Overrides{})
	require.NoError(t, err)
	assert.Equal(t, base.ID, second.Revision.BaseRuleID, "root is propagated, not re-nested")

	chain, err := st.RulesInChain(ctx, base.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
}

func TestCreateRevision_WindowValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(t)

	base, _, err := svc.CreateRule(ctx, monthlyRent("850"))
	require.NoError(t, err)

	for _, start := range []time.Time{
		date(2026, 1, 5),  // equals base start
		date(2025, 6, 1),  // before base start
		date(2027, 1, 1),  // after base end
	} {
		_, err := svc.CreateRevision(ctx, base.ID, start, dec("900"), Overrides{})
		var ve model.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "revisionStartDate", ve.Field)
	}
}

func TestCreateRevision_Overrides(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(t)

	base, _, err := svc.CreateRule(ctx, monthlyRent("850"))
	require.NoError(t, err)

	name := "rent (new landlord)"
	cparty := "Acme Lettings"
	res, err := svc.CreateRevision(ctx, base.ID, date(2026, 7, 1), dec("925"), Overrides{
		Name:         &name,
		Counterparty: &cparty,
	})
	require.NoError(t, err)
	assert.Equal(t, name, res.Revision.Name)
	assert.Equal(t, cparty, res.Revision.Counterparty)
	assert.Equal(t, base.Certainty, res.Revision.Certainty, "unset attributes inherit")
}

func TestDeleteRule_RootCascadesToRevisions(t *testing.T) {
	ctx := context.Background()
	svc, st := newFixture(t)

	base, _, err := svc.CreateRule(ctx, monthlyRent("850"))
	require.NoError(t, err)
	_, err = svc.CreateRevision(ctx, base.ID, date(2026, 7, 1), dec("925"), Overrides{})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRule(ctx, base.ID))

	chain, err := st.RulesInChain(ctx, base.ID)
	require.NoError(t, err)
	assert.Empty(t, chain)
	events, err := st.EventsInRange(ctx, "a1", date(2026, 1, 1), date(2026, 12, 31))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestUpdateRule_RejectsChainOverlap(t *testing.T) {
	ctx := context.Background()
	svc, st := newFixture(t)

	base, _, err := svc.CreateRule(ctx, monthlyRent("850"))
	require.NoError(t, err)
	_, err = svc.CreateRevision(ctx, base.ID, date(2026, 7, 1), dec("925"), Overrides{})
	require.NoError(t, err)

	// Re-extending the truncated base back over the revision's window must
	// fail, or Jul-Dec occurrences would be double-counted by every fold.
	p := monthlyRent("850") // EndDate Dec 31 overlaps the Jul 1 revision
	_, _, err = svc.UpdateRule(ctx, base.ID, p)
	var ce model.ConsistencyError
	require.ErrorAs(t, err, &ce)

	events, err := st.EventsInRange(ctx, "a1", date(2026, 1, 1), date(2026, 12, 31))
	require.NoError(t, err)
	assert.Len(t, events, 12, "rejected update must leave the event set untouched")
}

func TestUpdateRule_RejectsChainGap(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(t)

	base, _, err := svc.CreateRule(ctx, monthlyRent("850"))
	require.NoError(t, err)
	res, err := svc.CreateRevision(ctx, base.ID, date(2026, 7, 1), dec("925"), Overrides{})
	require.NoError(t, err)

	// Pushing the revision's start past Jul 1 leaves July uncovered.
	p := monthlyRent("925")
	p.StartDate = date(2026, 8, 1)
	_, _, err = svc.UpdateRule(ctx, res.Revision.ID, p)
	var ce model.ConsistencyError
	require.ErrorAs(t, err, &ce)
}

func TestUpdateRule_ChainMemberKeepingWindowSucceeds(t *testing.T) {
	ctx := context.Background()
	svc, st := newFixture(t)

	base, _, err := svc.CreateRule(ctx, monthlyRent("850"))
	require.NoError(t, err)
	_, err = svc.CreateRevision(ctx, base.ID, date(2026, 7, 1), dec("925"), Overrides{})
	require.NoError(t, err)

	p := monthlyRent("800")
	p.EndDate = date(2026, 6, 30)
	_, count, err := svc.UpdateRule(ctx, base.ID, p)
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	events, err := st.EventsInRange(ctx, "a1", date(2026, 1, 1), date(2026, 6, 30))
	require.NoError(t, err)
	for _, e := range events {
		assert.True(t, e.Value.Equal(dec("800")))
	}
}

func TestDeleteRule_RefusesRevision(t *testing.T) {
	ctx := context.Background()
	svc, st := newFixture(t)

	base, _, err := svc.CreateRule(ctx, monthlyRent("850"))
	require.NoError(t, err)
	first, err := svc.CreateRevision(ctx, base.ID, date(2026, 5, 1), dec("900"), Overrides{})
	require.NoError(t, err)
	_, err = svc.CreateRevision(ctx, first.Revision.ID, date(2026, 9, 1), dec("950"), Overrides{})
	require.NoError(t, err)

	err = svc.DeleteRule(ctx, first.Revision.ID)
	var ve model.ValidationError
	require.ErrorAs(t, err, &ve)

	chain, err := st.RulesInChain(ctx, base.ID)
	require.NoError(t, err)
	assert.Len(t, chain, 3, "refused delete must leave the chain intact")
}

func TestCreateRevision_UnknownDecisionPathOverride(t *testing.T) {
	ctx := context.Background()
	svc, st := newFixture(t)

	base, _, err := svc.CreateRule(ctx, monthlyRent("850"))
	require.NoError(t, err)

	path := "no-such-path"
	_, err = svc.CreateRevision(ctx, base.ID, date(2026, 7, 1), dec("925"), Overrides{
		DecisionPathID: &path,
	})
	var nf model.NotFoundError
	require.ErrorAs(t, err, &nf)

	stored, err := st.Rule(ctx, base.ID)
	require.NoError(t, err)
	assert.Equal(t, date(2026, 12, 31), stored.EndDate, "failed revision must not truncate the base")
}

func TestOneOffEvents(t *testing.T) {
	ctx := context.Background()
	svc, st := newFixture(t)

	event, err := svc.CreateOneOff(ctx, EventParams{
		Name:      "car repair",
		Value:     dec("320"),
		Direction: model.DirectionExpense,
		Certainty: model.CertaintyLikely,
		Date:      date(2026, 3, 14),
		AccountID: "a1",
	})
	require.NoError(t, err)
	assert.Empty(t, event.RuleID)

	require.NoError(t, svc.DeleteEvent(ctx, event.ID))
	events, err := st.EventsInRange(ctx, "a1", date(2026, 1, 1), date(2026, 12, 31))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDeleteEvent_RefusesGeneratedEvents(t *testing.T) {
	ctx := context.Background()
	svc, st := newFixture(t)

	_, _, err := svc.CreateRule(ctx, monthlyRent("850"))
	require.NoError(t, err)

	events, err := st.EventsInRange(ctx, "a1", date(2026, 1, 1), date(2026, 12, 31))
	require.NoError(t, err)
	require.NotEmpty(t, events)

	err = svc.DeleteEvent(ctx, events[0].ID)
	var ve model.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestValidateChain_DetectsOverlapAndGap(t *testing.T) {
	mk := func(start, end time.Time) model.RecurringRule {
		return model.RecurringRule{ID: start.Format(model.DayFormat), StartDate: start, EndDate: end}
	}

	require.NoError(t, validateChain([]model.RecurringRule{
		mk(date(2026, 1, 1), date(2026, 6, 30)),
		mk(date(2026, 7, 1), date(2026, 12, 31)),
	}))

	err := validateChain([]model.RecurringRule{
		mk(date(2026, 1, 1), date(2026, 6, 30)),
		mk(date(2026, 6, 30), date(2026, 12, 31)),
	})
	var ce model.ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Error(), "overlap")

	err = validateChain([]model.RecurringRule{
		mk(date(2026, 1, 1), date(2026, 6, 30)),
		mk(date(2026, 7, 3), date(2026, 12, 31)),
	})
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Error(), "gap")
}
