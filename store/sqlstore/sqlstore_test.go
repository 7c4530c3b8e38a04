package sqlstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/flexitime-engine/flexitime"
	"github.com/warp/flexitime-engine/generic"
	"github.com/warp/flexitime-engine/store/sqlstore"
)

func openStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.Open(sqlstore.DriverSQLite, ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func day(m time.Month, d int) generic.TimePoint { return generic.NewTimePoint(2025, m, d) }

func week(id string, entity generic.EntityID, start generic.TimePoint, status flexitime.DocStatus) flexitime.WeeklyBalance {
	return flexitime.WeeklyBalance{
		ID:             id,
		EntityID:       entity,
		WeekStart:      start,
		WeekEnd:        start.AddDays(6),
		TotalActual:    generic.NewHours(8),
		TotalExpected:  generic.NewHours(40),
		WeeklyDelta:    generic.NewHours(-32),
		RunningBalance: generic.NewHours(-32),
		DocStatus:      status,
		Days: []flexitime.DailyRecord{
			{Date: start, PresenceType: "office", Expected: generic.NewHours(8), Actual: generic.NewHours(8), Difference: generic.ZeroHours()},
			{Date: start.AddDays(1), PresenceType: "vacation", LeaveApplication: "app-1", IsHalfDay: true,
				Expected: generic.NewHours(8), Actual: generic.ZeroHours(), Difference: generic.NewHours(-8)},
		},
	}
}

func ids(weeks []flexitime.WeeklyBalance) []string {
	out := make([]string, 0, len(weeks))
	for _, w := range weeks {
		out = append(out, w.ID)
	}
	return out
}

func TestWithTx_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.SaveEmployee(ctx, flexitime.Employee{ID: "e1", CurrentBalance: generic.NewHours(1)}))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx flexitime.Store) error {
		require.NoError(t, tx.UpdateCurrentBalance(ctx, "e1", generic.NewHours(5)))
		got, err := tx.GetEmployee(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, "5", got.CurrentBalance.String(), "tx sees its own write")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "1", got.CurrentBalance.String())
	assert.Equal(t, flexitime.EmployeeActive, got.Status, "status defaults to active")

	err = s.WithTx(ctx, func(tx flexitime.Store) error {
		return tx.UpdateCurrentBalance(ctx, "e1", generic.NewHours(7.25))
	})
	require.NoError(t, err)
	got, err = s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "7.25", got.CurrentBalance.String())
}

func TestSaveWeek_RoundTripsDays(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	w := week("w1", "e1", day(time.January, 6), flexitime.StatusSubmitted)
	submitted := time.Date(2025, time.January, 13, 9, 30, 0, 0, time.UTC)
	w.SubmittedAt = &submitted
	require.NoError(t, s.SaveWeek(ctx, w))

	got, err := s.GetWeek(ctx, "e1", day(time.January, 6))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "w1", got.ID)
	assert.True(t, got.WeekEnd.Equal(day(time.January, 12)))
	assert.Equal(t, "-32", got.RunningBalance.String())
	require.NotNil(t, got.SubmittedAt)
	assert.True(t, got.SubmittedAt.Equal(submitted))
	assert.Nil(t, got.LockedAt)

	require.Len(t, got.Days, 2)
	assert.Equal(t, "vacation", got.Days[1].PresenceType)
	assert.Equal(t, "app-1", got.Days[1].LeaveApplication)
	assert.True(t, got.Days[1].IsHalfDay)
	assert.Equal(t, "-8", got.Days[1].Difference.String())

	// Saving again replaces the daily rows.
	w.Days = w.Days[:1]
	require.NoError(t, s.SaveWeek(ctx, w))
	got, err = s.GetWeekByID(ctx, "w1")
	require.NoError(t, err)
	assert.Len(t, got.Days, 1)

	missing, err := s.GetWeekByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveWeek_UniquePerEmployeeAndStart(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.SaveWeek(ctx, week("w1", "e1", day(time.January, 6), flexitime.StatusDraft)))

	err := s.SaveWeek(ctx, week("w2", "e1", day(time.January, 6), flexitime.StatusDraft))
	assert.ErrorIs(t, err, generic.ErrConflict)

	got, err := s.GetWeekByID(ctx, "w2")
	require.NoError(t, err)
	assert.Nil(t, got, "failed save leaves nothing behind")

	require.NoError(t, s.SaveWeek(ctx, week("w1", "e1", day(time.January, 6), flexitime.StatusSubmitted)))
	require.NoError(t, s.SaveWeek(ctx, week("w3", "e2", day(time.January, 6), flexitime.StatusDraft)))
}

func TestListWeeks_FilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	for _, w := range []flexitime.WeeklyBalance{
		week("c", "e1", day(time.January, 20), flexitime.StatusSubmitted),
		week("a", "e1", day(time.January, 6), flexitime.StatusSubmitted),
		week("b", "e1", day(time.January, 13), flexitime.StatusDraft),
		week("x", "e2", day(time.January, 6), flexitime.StatusSubmitted),
	} {
		require.NoError(t, s.SaveWeek(ctx, w))
	}

	e1 := generic.EntityID("e1")
	from := day(time.January, 7)
	got, err := s.ListWeeks(ctx, flexitime.WeekFilter{EntityID: &e1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
	for _, w := range got {
		assert.Len(t, w.Days, 2, "days loaded for %s", w.ID)
	}

	got, err = s.ListWeeks(ctx, flexitime.WeekFilter{EntityID: &e1, From: &from, Statuses: []flexitime.DocStatus{flexitime.StatusSubmitted}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(got))

	unlocked := false
	got, err = s.ListWeeks(ctx, flexitime.WeekFilter{
		Locked:   &unlocked,
		Statuses: []flexitime.DocStatus{flexitime.StatusSubmitted, flexitime.StatusCancelled},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "x", "c"}, ids(got))

	to := day(time.January, 1)
	got, err = s.ListWeeks(ctx, flexitime.WeekFilter{To: &to})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWorkPattern_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	end := day(time.December, 31)
	p := flexitime.NormalizePattern(flexitime.WorkPattern{
		ID:             "wp-1",
		EntityID:       "e1",
		FTEPercentage:  decimal.NewFromInt(80),
		ValidFrom:      day(time.January, 1),
		ValidTo:        &end,
		Hours:          flexitime.UniformWeek(8).Set(time.Friday, generic.ZeroHours()),
		InitialBalance: generic.NewHours(2.5),
		CreatedAt:      time.Date(2025, time.January, 2, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, s.SaveWorkPattern(ctx, p))
	require.NoError(t, s.SaveWorkPattern(ctx, flexitime.NormalizePattern(flexitime.WorkPattern{
		ID: "wp-0", EntityID: "e1", FTEPercentage: decimal.NewFromInt(100), ValidFrom: day(time.January, 1).AddDays(-365),
		Hours: flexitime.UniformWeek(8),
	})))

	got, err := s.GetWorkPattern(ctx, "wp-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.FTEPercentage.Equal(decimal.NewFromInt(80)))
	assert.Equal(t, "32", got.WeeklyExpected.String())
	assert.Equal(t, "16", got.FlexitimeLimit.String())
	assert.Equal(t, "2.5", got.InitialBalance.String())
	assert.True(t, got.Hours.Friday.IsZero())
	require.NotNil(t, got.ValidTo)
	assert.True(t, got.ValidTo.Equal(end))
	assert.True(t, got.CreatedAt.Equal(p.CreatedAt))

	list, err := s.ListWorkPatterns(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "wp-0", list[0].ID)
	assert.Nil(t, list[0].ValidTo)
}

func TestPresence_PriorStateAndLocking(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	manual := flexitime.PresenceEntry{EntityID: "e1", Date: day(time.January, 7), PresenceType: "office", Source: flexitime.ManualSource()}
	require.NoError(t, s.SavePresence(ctx, manual))
	require.NoError(t, s.SavePresence(ctx, flexitime.ApplyLeave(&manual, "e1", manual.Date, "vacation", "app-1", true)))
	require.NoError(t, s.SavePresence(ctx, flexitime.PresenceEntry{EntityID: "e1", Date: day(time.January, 13), PresenceType: "home", Source: flexitime.ManualSource()}))

	got, err := s.GetPresence(ctx, "e1", day(time.January, 7))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "vacation", got.PresenceType)
	assert.True(t, got.IsHalfDay)
	require.NotNil(t, got.Source.Prior)
	assert.Equal(t, flexitime.PriorState{Kind: flexitime.SourceManual, PresenceType: "office"}, *got.Source.Prior)

	restored := flexitime.RevertEntry(*got)
	require.NotNil(t, restored)
	require.NoError(t, s.SavePresence(ctx, *restored))
	got, err = s.GetPresence(ctx, "e1", day(time.January, 7))
	require.NoError(t, err)
	assert.Nil(t, got.Source.Prior)
	assert.Equal(t, "office", got.PresenceType)

	n, err := s.LockPresenceBefore(ctx, day(time.January, 13))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = s.LockPresenceBefore(ctx, day(time.January, 13))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	list, err := s.ListPresence(ctx, "e1", generic.Period{Start: day(time.January, 1), End: day(time.January, 31)})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].IsLocked)
	assert.False(t, list[1].IsLocked)

	require.NoError(t, s.DeletePresence(ctx, "e1", day(time.January, 13)))
	gone, err := s.GetPresence(ctx, "e1", day(time.January, 13))
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestPresenceTypes(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	assert.ErrorIs(t, s.SavePresenceType(ctx, flexitime.PresenceType{}), generic.ErrValidation)

	require.NoError(t, s.SavePresenceType(ctx, flexitime.PresenceType{
		Name: "flex_off", Category: flexitime.CategoryLeave, RequiresLeaveApplication: true,
		LeaveType: "Flex Off", DeductsFromBalance: true,
	}))
	require.NoError(t, s.SavePresenceType(ctx, flexitime.PresenceType{
		Name: "holiday", Category: flexitime.CategoryScheduled, IsSystem: true, SystemRole: flexitime.RoleHoliday,
	}))

	pt, err := s.GetPresenceType(ctx, "flex_off")
	require.NoError(t, err)
	require.NotNil(t, pt)
	assert.True(t, pt.DeductsFromBalance)
	assert.Equal(t, "Flex Off", pt.LeaveType)

	all, err := s.ListPresenceTypes(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "flex_off", all[0].Name)
	assert.Equal(t, flexitime.RoleHoliday, all[1].SystemRole)
}

func TestLeave_ApplicationsOverlapAndAllocations(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	half := day(time.January, 10)
	require.NoError(t, s.SaveLeaveType(ctx, flexitime.LeaveType{Name: "Sick Leave", AllowZeroAllocation: true}))
	for _, app := range []flexitime.LeaveApplication{
		{ID: "a1", EntityID: "e1", LeaveType: "Vacation", From: day(time.January, 6), To: day(time.January, 10),
			HalfDay: true, HalfDayDate: &half, Status: flexitime.LeaveApproved},
		{ID: "a2", EntityID: "e1", LeaveType: "Vacation", From: day(time.February, 3), To: day(time.February, 3), Status: flexitime.LeaveOpen},
		{ID: "a3", EntityID: "e2", LeaveType: "Vacation", From: day(time.January, 6), To: day(time.January, 6), Status: flexitime.LeaveOpen},
	} {
		require.NoError(t, s.SaveLeaveApplication(ctx, app))
	}

	got, err := s.ListLeaveApplications(ctx, "e1", generic.Period{Start: day(time.January, 10), End: day(time.January, 31)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	assert.True(t, got[0].IsHalfDayOn(half))

	app, err := s.GetLeaveApplication(ctx, "a2")
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.Nil(t, app.HalfDayDate)

	lt, err := s.GetLeaveType(ctx, "Sick Leave")
	require.NoError(t, err)
	require.NotNil(t, lt)
	assert.True(t, lt.AllowZeroAllocation)

	alloc, err := flexitime.ValidateAllocation(*lt, flexitime.LeaveAllocation{
		ID: "al-1", EntityID: "e1", LeaveType: "Sick Leave", From: day(time.January, 1), To: day(time.December, 31),
		NewLeaves: generic.NewAmount(0, generic.UnitDays),
	})
	require.NoError(t, err)
	require.NoError(t, s.SaveLeaveAllocation(ctx, alloc))
	allocs, err := s.ListLeaveAllocations(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, generic.UnitDays, allocs[0].TotalAllocated.Unit)
	assert.True(t, allocs[0].TotalAllocated.IsZero())
}

func TestHolidays_RecurringAndPerCalendar(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.SaveHoliday(ctx, generic.Holiday{ID: "nat", CalendarID: "CH",
		Date: generic.NewTimePoint(2000, time.August, 1), Name: "Bundesfeier", Recurring: true}))
	require.NoError(t, s.SaveHoliday(ctx, generic.Holiday{ID: "zh", CalendarID: "ZH",
		Date: day(time.April, 28), Name: "Sechseläuten"}))

	ok, err := s.IsHoliday(ctx, "CH", day(time.August, 1))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsHoliday(ctx, "CH", day(time.April, 28))
	require.NoError(t, err)
	assert.False(t, ok)

	dates, err := s.HolidaysIn(ctx, "ZH", generic.Period{Start: day(time.April, 1), End: day(time.April, 30)})
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.True(t, dates[0].Equal(day(time.April, 28)))

	require.NoError(t, s.DeleteHoliday(ctx, "zh"))
	list, err := s.ListHolidays(ctx, "ZH")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestQueryAudit_FilterAndLimit(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	base := time.Date(2025, time.January, 13, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.AppendAudit(ctx, generic.AuditEntry{
			ID: id, Timestamp: base.Add(time.Duration(i) * time.Second), ActorID: "hr-1",
			EntityID: "e1", Action: generic.AuditWeekSubmitted, Reference: "w1",
			Payload: map[string]any{"running_balance": "5"},
		}))
	}
	require.NoError(t, s.AppendAudit(ctx, generic.AuditEntry{
		ID: "4", Timestamp: base.Add(time.Minute), EntityID: "e2", Action: generic.AuditWeekLocked,
	}))

	e1 := generic.EntityID("e1")
	got, err := s.QueryAudit(ctx, generic.AuditFilter{EntityID: &e1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
	assert.Equal(t, "5", got[1].Payload["running_balance"])

	got, err = s.QueryAudit(ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditWeekLocked}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "4", got[0].ID)
	assert.Nil(t, got[0].Payload)
}

func TestUpdateCurrentBalance_UnknownEmployee(t *testing.T) {
	err := openStore(t).UpdateCurrentBalance(context.Background(), "ghost", generic.NewHours(1))
	assert.True(t, generic.IsNotFound(err))
}
