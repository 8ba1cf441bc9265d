package cascade

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runway-dev/runway/internal/model"
	"github.com/runway-dev/runway/internal/runlog"
	"github.com/runway-dev/runway/internal/scenario"
	"github.com/runway-dev/runway/internal/store"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func seedAccount(t *testing.T, st *store.Memory, day0 time.Time) {
	t.Helper()
	require.NoError(t, st.UpsertAccount(context.Background(), model.Account{
		ID:             "a1",
		Name:           "Current",
		OpeningBalance: dec("1000"),
		OpeningDate:    day0,
	}))
}

func TestRecalculate_PersistsSeries(t *testing.T) {
	ctx := context.Background()
	day0 := date(2026, 3, 2)
	st := store.NewMemory()
	seedAccount(t, st, day0)
	for _, e := range weeklyExpenses(day0) {
		require.NoError(t, st.InsertEvent(ctx, e))
	}
	svc := NewService(st, quietLogger(), "")

	n, err := svc.Recalculate(ctx, "test", "a1", day0, day0.AddDate(0, 0, 27), nil)
	require.NoError(t, err)
	assert.Equal(t, 28, n)

	rows, err := st.DailyBalances(ctx, "a1", day0, day0.AddDate(0, 0, 27))
	require.NoError(t, err)
	require.Len(t, rows, 28)
	assert.True(t, rows[27].Expected.Equal(dec("600")))
}

func TestSetActualBalance_RecalculatesForward(t *testing.T) {
	ctx := context.Background()
	day0 := date(2026, 3, 2)
	st := store.NewMemory()
	seedAccount(t, st, day0)
	for _, e := range weeklyExpenses(day0) {
		require.NoError(t, st.InsertEvent(ctx, e))
	}
	svc := NewService(st, quietLogger(), "")

	_, err := svc.Recalculate(ctx, "initial", "a1", day0, day0.AddDate(0, 0, 27), nil)
	require.NoError(t, err)

	day14 := day0.AddDate(0, 0, 14)
	require.NoError(t, svc.SetActualBalance(ctx, "a1", day14, dec("550"), nil))

	rows, err := st.DailyBalances(ctx, "a1", day0, day0.AddDate(0, 0, 27))
	require.NoError(t, err)
	require.Len(t, rows, 28)
	assert.True(t, rows[13].Expected.Equal(dec("800")), "rows before the anchor are untouched")
	assert.True(t, rows[14].Expected.Equal(dec("700")), "anchor day keeps its computed value")
	require.NotNil(t, rows[14].Actual)
	assert.True(t, rows[21].Expected.Equal(dec("450")))

	require.NoError(t, svc.ClearActualBalance(ctx, "a1", day14, nil))
	rows, err = st.DailyBalances(ctx, "a1", day0, day0.AddDate(0, 0, 27))
	require.NoError(t, err)
	assert.True(t, rows[21].Expected.Equal(dec("600")))
	assert.Nil(t, rows[14].Actual)
}

func TestSetActualBalance_NoSeriesMaterialized(t *testing.T) {
	ctx := context.Background()
	day0 := date(2026, 3, 2)
	st := store.NewMemory()
	seedAccount(t, st, day0)
	svc := NewService(st, quietLogger(), "")

	// No balance rows exist yet; setting an anchor just records it.
	require.NoError(t, svc.SetActualBalance(ctx, "a1", day0.AddDate(0, 0, 3), dec("900"), nil))

	rows, err := st.DailyBalances(ctx, "a1", day0, day0.AddDate(0, 0, 27))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestScenarioState_FromStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.UpsertDecisionPath(ctx, model.DecisionPath{ID: "p1", Name: "take the job"}))
	require.NoError(t, st.UpsertDecisionPath(ctx, model.DecisionPath{ID: "p2", Name: "buy the house"}))
	require.NoError(t, st.UpsertScenarioSet(ctx, model.ScenarioSet{
		ID: "s1", Name: "no house", Default: true, Flags: map[string]bool{"p2": false},
	}))
	svc := NewService(st, quietLogger(), "")

	state, err := svc.ScenarioState(ctx)
	require.NoError(t, err)
	assert.Equal(t, scenario.State{"p1": true, "p2": false}, state)
}

func TestRecalculate_WritesRunLog(t *testing.T) {
	ctx := context.Background()
	day0 := date(2026, 3, 2)
	st := store.NewMemory()
	seedAccount(t, st, day0)
	dir := t.TempDir()
	svc := NewService(st, quietLogger(), dir)

	_, err := svc.Recalculate(ctx, "rule-created", "a1", day0, day0.AddDate(0, 0, 6), nil)
	require.NoError(t, err)

	entries, err := runlog.Read(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "rule-created", entries[0].Trigger)
	assert.Equal(t, "a1", entries[0].AccountID)
	assert.Equal(t, 7, entries[0].Rows)
}

func TestWriteAndReadSeries(t *testing.T) {
	day0 := date(2026, 3, 2)
	actual := dec("550")
	rows := []model.DailyBalance{
		{AccountID: "a1", Date: day0, Expected: dec("900")},
		{AccountID: "a1", Date: day0.AddDate(0, 0, 1), Expected: dec("900"), Actual: &actual},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSeries(&buf, rows))

	parsed, err := ReadSeries(&buf)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.True(t, parsed[0].Expected.Equal(dec("900")))
	assert.Nil(t, parsed[0].Actual)
	require.NotNil(t, parsed[1].Actual)
	assert.True(t, parsed[1].Actual.Equal(dec("550")))
}
