package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/flexitime-engine/flexitime"
	"github.com/warp/flexitime-engine/generic"
)

func day(m time.Month, d int) generic.TimePoint { return generic.NewTimePoint(2025, m, d) }

func week(id string, entity generic.EntityID, start generic.TimePoint, status flexitime.DocStatus) flexitime.WeeklyBalance {
	return flexitime.WeeklyBalance{
		ID:        id,
		EntityID:  entity,
		WeekStart: start,
		WeekEnd:   start.AddDays(6),
		DocStatus: status,
		Days:      []flexitime.DailyRecord{{Date: start, Actual: generic.NewHours(8)}},
	}
}

func TestWithTx_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	m := New()
	require.NoError(t, m.SaveEmployee(ctx, flexitime.Employee{ID: "e1", CurrentBalance: generic.NewHours(1)}))

	// Rollback: the error drops every write made inside fn.
	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx flexitime.Store) error {
		require.NoError(t, tx.UpdateCurrentBalance(ctx, "e1", generic.NewHours(5)))
		got, err := tx.GetEmployee(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, "5", got.CurrentBalance.String(), "tx sees its own write")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := m.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "1", got.CurrentBalance.String())

	// Commit
	err = m.WithTx(ctx, func(tx flexitime.Store) error {
		return tx.UpdateCurrentBalance(ctx, "e1", generic.NewHours(7))
	})
	require.NoError(t, err)
	got, err = m.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "7", got.CurrentBalance.String())
}

func TestSaveWeek_UniquePerEmployeeAndStart(t *testing.T) {
	ctx := context.Background()
	m := New()
	require.NoError(t, m.SaveWeek(ctx, week("w1", "e1", day(time.January, 6), flexitime.StatusDraft)))

	err := m.SaveWeek(ctx, week("w2", "e1", day(time.January, 6), flexitime.StatusDraft))
	assert.ErrorIs(t, err, generic.ErrConflict)

	// Same id is an update.
	require.NoError(t, m.SaveWeek(ctx, week("w1", "e1", day(time.January, 6), flexitime.StatusSubmitted)))
	// Another employee may use the same week.
	require.NoError(t, m.SaveWeek(ctx, week("w3", "e2", day(time.January, 6), flexitime.StatusDraft)))
}

func TestWeeks_ReturnedCopiesAreDetached(t *testing.T) {
	ctx := context.Background()
	m := New()
	require.NoError(t, m.SaveWeek(ctx, week("w1", "e1", day(time.January, 6), flexitime.StatusDraft)))

	got, err := m.GetWeekByID(ctx, "w1")
	require.NoError(t, err)
	got.Days[0].Actual = generic.NewHours(99)

	again, err := m.GetWeekByID(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "8", again.Days[0].Actual.String())
}

func TestListWeeks_FilterAndOrder(t *testing.T) {
	ctx := context.Background()
	m := New()
	for _, w := range []flexitime.WeeklyBalance{
		week("c", "e1", day(time.January, 20), flexitime.StatusSubmitted),
		week("a", "e1", day(time.January, 6), flexitime.StatusSubmitted),
		week("b", "e1", day(time.January, 13), flexitime.StatusDraft),
		week("x", "e2", day(time.January, 6), flexitime.StatusSubmitted),
	} {
		require.NoError(t, m.SaveWeek(ctx, w))
	}

	e1 := generic.EntityID("e1")
	from := day(time.January, 7)
	got, err := m.ListWeeks(ctx, flexitime.WeekFilter{EntityID: &e1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))

	got, err = m.ListWeeks(ctx, flexitime.WeekFilter{EntityID: &e1, From: &from, Statuses: []flexitime.DocStatus{flexitime.StatusSubmitted}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(got))

	unlocked := false
	got, err = m.ListWeeks(ctx, flexitime.WeekFilter{Locked: &unlocked, Statuses: []flexitime.DocStatus{flexitime.StatusSubmitted}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "x", "c"}, ids(got))
}

func ids(weeks []flexitime.WeeklyBalance) []string {
	out := make([]string, 0, len(weeks))
	for _, w := range weeks {
		out = append(out, w.ID)
	}
	return out
}

func TestLockPresenceBefore(t *testing.T) {
	ctx := context.Background()
	m := New()
	for _, d := range []generic.TimePoint{day(time.January, 6), day(time.January, 7), day(time.January, 13)} {
		require.NoError(t, m.SavePresence(ctx, flexitime.PresenceEntry{EntityID: "e1", Date: d, PresenceType: "office"}))
	}

	n, err := m.LockPresenceBefore(ctx, day(time.January, 13))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = m.LockPresenceBefore(ctx, day(time.January, 13))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	open, err := m.GetPresence(ctx, "e1", day(time.January, 13))
	require.NoError(t, err)
	assert.False(t, open.IsLocked)
}

func TestHolidays_RecurringAndPerCalendar(t *testing.T) {
	ctx := context.Background()
	m := New()
	require.NoError(t, m.SaveHoliday(ctx, generic.Holiday{ID: "nat", CalendarID: "CH",
		Date: generic.NewTimePoint(2000, time.August, 1), Name: "Bundesfeier", Recurring: true}))
	require.NoError(t, m.SaveHoliday(ctx, generic.Holiday{ID: "zh", CalendarID: "ZH",
		Date: day(time.April, 28), Name: "Sechseläuten"}))

	ok, err := m.IsHoliday(ctx, "CH", day(time.August, 1))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.IsHoliday(ctx, "CH", day(time.April, 28))
	require.NoError(t, err)
	assert.False(t, ok)

	dates, err := m.HolidaysIn(ctx, "ZH", generic.Period{Start: day(time.April, 1), End: day(time.April, 30)})
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.True(t, dates[0].Equal(day(time.April, 28)))

	require.NoError(t, m.DeleteHoliday(ctx, "zh"))
	list, err := m.ListHolidays(ctx, "ZH")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSavePresenceType_Validates(t *testing.T) {
	err := New().SavePresenceType(context.Background(), flexitime.PresenceType{})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestQueryAudit_LimitKeepsNewest(t *testing.T) {
	ctx := context.Background()
	m := New()
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, m.AppendAudit(ctx, generic.AuditEntry{ID: id, EntityID: "e1", Action: generic.AuditWeekSubmitted}))
	}
	require.NoError(t, m.AppendAudit(ctx, generic.AuditEntry{ID: "4", EntityID: "e2", Action: generic.AuditWeekLocked}))

	e1 := generic.EntityID("e1")
	got, err := m.QueryAudit(ctx, generic.AuditFilter{EntityID: &e1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
}

func TestUpdateCurrentBalance_UnknownEmployee(t *testing.T) {
	err := New().UpdateCurrentBalance(context.Background(), "ghost", generic.NewHours(1))
	assert.True(t, generic.IsNotFound(err))
}
