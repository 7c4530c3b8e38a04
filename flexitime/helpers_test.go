package flexitime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/flexitime-engine/flexitime"
	"github.com/warp/flexitime-engine/generic"
	"github.com/warp/flexitime-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const emp = generic.EntityID("emp-1")

var (
	employee = flexitime.Actor{ID: "emp-1"}
	hr       = flexitime.Actor{ID: "hr-1", Privileged: true}
)

func jan(day int) generic.TimePoint { return generic.NewTimePoint(2025, time.January, day) }

func hours(v float64) generic.Amount { return generic.NewHours(v) }

func assertHours(t *testing.T, want string, got generic.Amount, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, generic.MustParseDecimal(want).Equal(got.Value),
		"expected %s hours, got %s %v", want, got, msgAndArgs)
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var ve *generic.ValidationError
	var ves generic.ValidationErrors
	switch {
	case errors.As(err, &ve):
		assert.Equal(t, code, ve.Code, ve.Error())
	case errors.As(err, &ves):
		codes := make([]string, 0, len(ves))
		for _, e := range ves {
			codes = append(codes, e.Code)
		}
		assert.Contains(t, codes, code)
	default:
		t.Fatalf("expected validation error %q, got %v", code, err)
	}
}

// actualsFor maps hours onto Monday.. of the week starting at weekStart.
func actualsFor(weekStart generic.TimePoint, perDay ...float64) flexitime.Actuals {
	out := flexitime.Actuals{}
	for i, h := range perDay {
		out[weekStart.AddDays(i).String()] = hours(h)
	}
	return out
}

type recordedEvent struct {
	Type string
	Data any
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Publish(_ context.Context, eventType string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Data: data})
	return nil
}

func (r *recorder) ofType(eventType string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Memory
	now      time.Time
	events   *recorder
	settings flexitime.Settings
	patterns *flexitime.PatternService
	weeks    *flexitime.WeekService
	leaves   *flexitime.LeaveService
	jobs     *flexitime.Jobs
}

// newFixture seeds one employee in org unit "ch" (40h base, holiday
// calendar "CH") and the Swiss presence catalog. The clock is pinned to
// 09:00 on today.
func newFixture(t *testing.T, today generic.TimePoint) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    memory.New(),
		now:      today.Time.Add(9 * time.Hour),
		events:   &recorder{},
		settings: flexitime.DefaultSettings(),
	}
	clock := flexitime.Clock(func() time.Time { return f.now })
	logger := zerolog.Nop()

	f.patterns = flexitime.NewPatternService(f.store, f.settings, f.events, logger)
	f.patterns.Clock = clock
	f.weeks = flexitime.NewWeekService(f.store, f.settings, f.events, logger)
	f.weeks.Clock = clock
	f.leaves = flexitime.NewLeaveService(f.store, f.settings, f.events, logger)
	f.leaves.Clock = clock
	f.jobs = flexitime.NewJobs(f.store, f.weeks, f.settings, f.events, logger)
	f.jobs.Clock = clock

	ctx := f.ctx
	require.NoError(t, f.store.SaveOrgUnit(ctx, flexitime.OrgUnit{
		ID: "ch", Name: "Switzerland", BaseWeeklyHours: hours(40), HolidayCalendarID: "CH",
	}))
	require.NoError(t, f.store.SaveEmployee(ctx, flexitime.Employee{
		ID: emp, Name: "Anna Muster", OrgUnit: "ch", Status: flexitime.EmployeeActive, CurrentBalance: hours(0),
	}))

	types := []flexitime.PresenceType{
		{Name: "office", Label: "Office", Category: flexitime.CategoryWorking},
		{Name: "home", Label: "Home office", Category: flexitime.CategoryWorking},
		{Name: "vacation", Category: flexitime.CategoryLeave, RequiresLeaveApplication: true, LeaveType: "Vacation"},
		{Name: "sick", Category: flexitime.CategoryLeave, RequiresLeaveApplication: true, LeaveType: "Sick Leave"},
		{Name: "flex_off", Category: flexitime.CategoryLeave, RequiresLeaveApplication: true, LeaveType: "Flex Off",
			DeductsFromBalance: true},
		{Name: "holiday", Category: flexitime.CategoryScheduled, IsSystem: true, SystemRole: flexitime.RoleHoliday},
		{Name: "day_off", Category: flexitime.CategoryScheduled, IsSystem: true, SystemRole: flexitime.RoleDayOff},
	}
	for _, pt := range types {
		require.NoError(t, f.store.SavePresenceType(ctx, pt))
	}
	for _, lt := range []flexitime.LeaveType{
		{Name: "Vacation"}, {Name: "Sick Leave", AllowZeroAllocation: true}, {Name: "Flex Off", AllowZeroAllocation: true},
	} {
		require.NoError(t, f.store.SaveLeaveType(ctx, lt))
	}
	return f
}

func (f *fixture) engine() *flexitime.Engine {
	return flexitime.NewEngine(f.store, f.settings, zerolog.Nop())
}

func (f *fixture) commitPattern(hoursPerWeek flexitime.WeekHours, fte float64, from generic.TimePoint,
	to *generic.TimePoint, initialBalance float64) flexitime.WorkPattern {

	f.t.Helper()
	p, err := f.patterns.Save(f.ctx, flexitime.WorkPattern{
		EntityID:       emp,
		FTEPercentage:  decimal.NewFromFloat(fte),
		ValidFrom:      from,
		ValidTo:        to,
		Hours:          hoursPerWeek,
		InitialBalance: hours(initialBalance),
	})
	require.NoError(f.t, err)
	committed, err := f.patterns.Commit(f.ctx, p.ID, hr)
	require.NoError(f.t, err)
	return *committed
}

func (f *fixture) approveLeave(leaveType string, from, to generic.TimePoint, halfDay bool) flexitime.LeaveApplication {
	f.t.Helper()
	app, err := f.leaves.Apply(f.ctx, flexitime.LeaveApplication{
		EntityID: emp, LeaveType: leaveType, From: from, To: to, HalfDay: halfDay,
	})
	require.NoError(f.t, err)
	approved, err := f.leaves.Approve(f.ctx, app.ID, hr)
	require.NoError(f.t, err)
	return *approved
}

func (f *fixture) addHoliday(date generic.TimePoint, name string) {
	f.t.Helper()
	require.NoError(f.t, f.store.SaveHoliday(f.ctx, generic.Holiday{
		ID: "h-" + date.String(), CalendarID: "CH", Date: date, Name: name,
	}))
}

// submitWeek creates, fills and submits a week as the employee.
func (f *fixture) submitWeek(weekStart generic.TimePoint, perDay ...float64) flexitime.WeeklyBalance {
	f.t.Helper()
	w, err := f.weeks.CreateWeek(f.ctx, emp, weekStart)
	require.NoError(f.t, err)
	_, err = f.weeks.UpdateActuals(f.ctx, w.ID, actualsFor(weekStart, perDay...), employee)
	require.NoError(f.t, err)
	submitted, err := f.weeks.Submit(f.ctx, w.ID, employee)
	require.NoError(f.t, err)
	return *submitted
}

func (f *fixture) week(id string) flexitime.WeeklyBalance {
	f.t.Helper()
	w, err := f.store.GetWeekByID(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, w)
	return *w
}

func (f *fixture) currentBalance() generic.Amount {
	f.t.Helper()
	e, err := f.store.GetEmployee(f.ctx, emp)
	require.NoError(f.t, err)
	return e.CurrentBalance
}
