package flexitime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/flexitime-engine/flexitime"
	"github.com/warp/flexitime-engine/generic"
)

// =============================================================================
// LEAVE OVERLAY
// =============================================================================

func TestApplyLeave_RemembersWhatItReplaced(t *testing.T) {
	manual := &flexitime.PresenceEntry{
		EntityID: emp, Date: jan(7), PresenceType: "office", Source: flexitime.ManualSource(), IsLocked: true,
	}

	entry := flexitime.ApplyLeave(manual, emp, jan(7), "vacation", "app-1", false)

	assert.Equal(t, "vacation", entry.PresenceType)
	assert.Equal(t, "app-1", entry.LeaveApplication)
	assert.True(t, entry.IsLocked, "lock is carried over")
	require.NotNil(t, entry.Source.Prior)
	assert.Equal(t, flexitime.PriorState{Kind: flexitime.SourceManual, PresenceType: "office"}, *entry.Source.Prior)
}

func TestApplyLeave_OverLeaveKeepsFirstPrior(t *testing.T) {
	system := &flexitime.PresenceEntry{EntityID: emp, Date: jan(7), PresenceType: "day_off", Source: flexitime.SystemSource()}
	first := flexitime.ApplyLeave(system, emp, jan(7), "vacation", "app-1", false)
	second := flexitime.ApplyLeave(&first, emp, jan(7), "sick", "app-2", true)

	assert.Equal(t, "sick", second.PresenceType)
	assert.True(t, second.IsHalfDay)
	require.NotNil(t, second.Source.Prior)
	assert.Equal(t, flexitime.SourceSystem, second.Source.Prior.Kind)
	assert.Equal(t, "day_off", second.Source.Prior.PresenceType)
}

func TestRevertEntry(t *testing.T) {
	t.Run("restores prior", func(t *testing.T) {
		leave := flexitime.ApplyLeave(&flexitime.PresenceEntry{
			EntityID: emp, Date: jan(7), PresenceType: "home", Source: flexitime.ManualSource(),
		}, emp, jan(7), "vacation", "app-1", false)

		restored := flexitime.RevertEntry(leave)
		require.NotNil(t, restored)
		assert.Equal(t, "home", restored.PresenceType)
		assert.Equal(t, flexitime.SourceManual, restored.Source.Kind)
		assert.Nil(t, restored.Source.Prior)
		assert.Empty(t, restored.LeaveApplication)
	})

	t.Run("nothing to restore", func(t *testing.T) {
		leave := flexitime.ApplyLeave(nil, emp, jan(7), "vacation", "app-1", false)
		assert.Nil(t, flexitime.RevertEntry(leave))
	})

	t.Run("non-leave entry untouched", func(t *testing.T) {
		manual := flexitime.PresenceEntry{EntityID: emp, Date: jan(7), PresenceType: "office", Source: flexitime.ManualSource()}
		got := flexitime.RevertEntry(manual)
		require.NotNil(t, got)
		assert.Equal(t, manual, *got)
	})
}

// =============================================================================
// PRESENCE SERVICE
// =============================================================================

func TestSetManual_Rules(t *testing.T) {
	f := newFixture(t, march3())
	presence := f.jobs.Presence

	_, err := presence.SetManual(f.ctx, emp, jan(7), "holiday", employee)
	requireCode(t, err, "not_selectable")

	_, err = presence.SetManual(f.ctx, emp, jan(7), "vacation", employee)
	requireCode(t, err, "not_selectable")

	_, err = presence.SetManual(f.ctx, emp, jan(7), "beach", employee)
	assert.True(t, generic.IsNotFound(err))

	entry, err := presence.SetManual(f.ctx, emp, jan(7), "office", employee)
	require.NoError(t, err)
	assert.Equal(t, flexitime.SourceManual, entry.Source.Kind)
}

func TestSetManual_LockedAndLeaveDays(t *testing.T) {
	f := newFixture(t, march3())
	presence := f.jobs.Presence
	require.NoError(t, f.store.SavePresence(f.ctx, flexitime.PresenceEntry{
		EntityID: emp, Date: jan(7), PresenceType: "office", Source: flexitime.ManualSource(), IsLocked: true,
	}))

	_, err := presence.SetManual(f.ctx, emp, jan(7), "home", employee)
	assert.ErrorIs(t, err, generic.ErrLocked)

	entry, err := presence.SetManual(f.ctx, emp, jan(7), "home", hr)
	require.NoError(t, err)
	assert.True(t, entry.IsLocked)

	f.approveLeave("Vacation", jan(9), jan(9), false)
	_, err = presence.SetManual(f.ctx, emp, jan(9), "office", hr)
	requireCode(t, err, "leave_day")
}

func TestAutoPresence_LeaveBeforeHoliday(t *testing.T) {
	f := newFixture(t, march3())
	f.addHoliday(jan(6), "Dreikönigstag")
	app := f.approveLeave("Vacation", jan(7), jan(7), false)
	e, err := f.store.GetEmployee(f.ctx, emp)
	require.NoError(t, err)
	holidays := flexitime.EmployeeHolidays{Employees: f.store, Calendar: f.store}
	presence := f.jobs.Presence

	pt, source, ref, err := presence.AutoPresence(f.ctx, *e, jan(6), holidays)
	require.NoError(t, err)
	assert.Equal(t, "holiday", pt)
	assert.Equal(t, flexitime.SourceSystem, source.Kind)
	assert.Empty(t, ref)

	pt, source, ref, err = presence.AutoPresence(f.ctx, *e, jan(7), holidays)
	require.NoError(t, err)
	assert.Equal(t, "vacation", pt)
	assert.Equal(t, flexitime.SourceLeave, source.Kind)
	assert.Equal(t, app.ID, ref)

	pt, _, _, err = presence.AutoPresence(f.ctx, *e, jan(11), holidays)
	require.NoError(t, err)
	assert.Empty(t, pt, "weekends get no entry")
}

func TestPresenceType_Validate(t *testing.T) {
	err := flexitime.PresenceType{Name: "sick", RequiresLeaveApplication: true}.Validate()
	requireCode(t, err, "required")

	err = flexitime.PresenceType{Name: "x", IsSystem: true, RequiresLeaveApplication: true, LeaveType: "Vacation"}.Validate()
	requireCode(t, err, "conflict")

	assert.NoError(t, flexitime.PresenceType{Name: "office"}.Validate())
}
