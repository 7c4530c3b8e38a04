package flexitime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/flexitime-engine/flexitime"
	"github.com/warp/flexitime-engine/generic"
)

// March 3 2025 is a Monday; every January week has elapsed.
func march3() generic.TimePoint { return jan(31).AddDays(31) }

func TestBalance_ChainAcrossWeeks(t *testing.T) {
	// GIVEN: 40h full-time pattern, week 1 at 9h/day, week 2 at 8,8,8,8,5
	// WHEN: Both are submitted and week 3 is drafted
	// THEN: +5, then -3, week 3 starts from 2

	f := newFixture(t, march3())
	f.commitPattern(flexitime.UniformWeek(8), 100, jan(1), nil, 0)

	w1 := f.submitWeek(jan(6), 9, 9, 9, 9, 9)
	assertHours(t, "5", w1.WeeklyDelta)
	assertHours(t, "0", w1.PreviousBalance)
	assertHours(t, "5", w1.RunningBalance)

	w2 := f.submitWeek(jan(13), 8, 8, 8, 8, 5)
	assertHours(t, "-3", w2.WeeklyDelta)
	assertHours(t, "5", w2.PreviousBalance)
	assertHours(t, "2", w2.RunningBalance)

	w3, err := f.weeks.CreateWeek(f.ctx, emp, jan(20))
	require.NoError(t, err)
	assert.Equal(t, flexitime.StatusDraft, w3.DocStatus)
	assertHours(t, "2", w3.PreviousBalance)

	assertHours(t, "2", f.currentBalance())
}

func TestBalance_InitialBalanceSeedsTheChain(t *testing.T) {
	f := newFixture(t, march3())
	f.commitPattern(flexitime.UniformWeek(8), 100, jan(1), nil, 3)

	f.submitWeek(jan(6), 9, 9, 9, 9, 9)
	f.submitWeek(jan(13), 8, 8, 8, 8, 5)
	w3 := f.submitWeek(jan(20), 8, 8, 8, 8, 9)

	// 3 + 5 - 3 + 1
	assertHours(t, "6", w3.RunningBalance)
	assertHours(t, "6", f.currentBalance())
}

func TestBalance_AmendCascadesToLaterWeeks(t *testing.T) {
	// GIVEN: Three submitted weeks with deltas +5, -3, 0
	// WHEN: HR amends Friday of week 1 from 9h to 11h
	// THEN: Every later running balance moves by +2

	f := newFixture(t, march3())
	f.commitPattern(flexitime.UniformWeek(8), 100, jan(1), nil, 0)
	w1 := f.submitWeek(jan(6), 9, 9, 9, 9, 9)
	w2 := f.submitWeek(jan(13), 8, 8, 8, 8, 5)
	w3 := f.submitWeek(jan(20), 8, 8, 8, 8, 8)
	assertHours(t, "2", w3.RunningBalance)

	amended, err := f.weeks.Amend(f.ctx, w1.ID, flexitime.Actuals{jan(10).String(): hours(11)}, hr)
	require.NoError(t, err)
	assertHours(t, "7", amended.WeeklyDelta)
	assertHours(t, "7", amended.RunningBalance)

	got2 := f.week(w2.ID)
	assertHours(t, "7", got2.PreviousBalance)
	assertHours(t, "4", got2.RunningBalance)

	got3 := f.week(w3.ID)
	assertHours(t, "4", got3.PreviousBalance)
	assertHours(t, "4", got3.RunningBalance)

	assertHours(t, "4", f.currentBalance())
	assert.Len(t, f.events.ofType(flexitime.EventWeekAmended), 1)
}

func TestBalance_AmendRequiresPrivilege(t *testing.T) {
	f := newFixture(t, march3())
	f.commitPattern(flexitime.UniformWeek(8), 100, jan(1), nil, 0)
	w1 := f.submitWeek(jan(6), 8, 8, 8, 8, 8)

	_, err := f.weeks.Amend(f.ctx, w1.ID, flexitime.Actuals{jan(10).String(): hours(11)}, employee)
	assert.ErrorIs(t, err, generic.ErrForbidden)
}

func TestBalance_CancelMiddleWeekFallsBackToInitialBalance(t *testing.T) {
	// GIVEN: Initial balance 1 and three submitted weeks (+5, -3, 0)
	// WHEN: The middle week is cancelled
	// THEN: Week 3 no longer has a submitted predecessor and restarts
	//       from the pattern's initial balance

	f := newFixture(t, march3())
	f.commitPattern(flexitime.UniformWeek(8), 100, jan(1), nil, 1)
	w1 := f.submitWeek(jan(6), 9, 9, 9, 9, 9)
	w2 := f.submitWeek(jan(13), 8, 8, 8, 8, 5)
	w3 := f.submitWeek(jan(20), 8, 8, 8, 8, 8)
	assertHours(t, "3", w3.RunningBalance)

	cancelled, err := f.weeks.Cancel(f.ctx, w2.ID, employee)
	require.NoError(t, err)
	assert.Equal(t, flexitime.StatusCancelled, cancelled.DocStatus)

	assertHours(t, "6", f.week(w1.ID).RunningBalance)
	got3 := f.week(w3.ID)
	assertHours(t, "1", got3.PreviousBalance)
	assertHours(t, "1", got3.RunningBalance)
	assertHours(t, "1", f.currentBalance())
}

func TestBalance_CacheUntouchedWhenNoSubmittedWeeksRemain(t *testing.T) {
	f := newFixture(t, march3())
	f.commitPattern(flexitime.UniformWeek(8), 100, jan(1), nil, 0)
	w1 := f.submitWeek(jan(6), 9, 9, 9, 9, 9)
	assertHours(t, "5", f.currentBalance())

	_, err := f.weeks.Cancel(f.ctx, w1.ID, employee)
	require.NoError(t, err)

	assertHours(t, "5", f.currentBalance())
}

func TestBalance_RecalculateEmployeeRepairsStaleChain(t *testing.T) {
	// GIVEN: Submitted weeks written around the services with wrong balances
	// WHEN: Recalculating the employee
	// THEN: The chain is rebuilt, and a second run changes nothing

	f := newFixture(t, march3())
	f.commitPattern(flexitime.UniformWeek(8), 100, jan(1), nil, 3)
	for i, delta := range []float64{5, -3, 1} {
		start := jan(6).AddDays(7 * i)
		require.NoError(t, f.store.SaveWeek(f.ctx, flexitime.WeeklyBalance{
			ID:              "w" + start.String(),
			EntityID:        emp,
			WeekStart:       start,
			WeekEnd:         start.AddDays(6),
			WeeklyDelta:     hours(delta),
			PreviousBalance: hours(100),
			RunningBalance:  hours(100),
			DocStatus:       flexitime.StatusSubmitted,
		}))
	}

	chain := f.engine().Chain
	n, err := chain.RecalculateEmployee(f.ctx, emp)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assertHours(t, "8", f.week("w2025-01-06").RunningBalance)
	assertHours(t, "5", f.week("w2025-01-13").RunningBalance)
	assertHours(t, "6", f.week("w2025-01-20").RunningBalance)
	assertHours(t, "6", f.currentBalance())

	n, err = chain.RecalculateEmployee(f.ctx, emp)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBalance_RecomputeWeekIsPure(t *testing.T) {
	f := newFixture(t, march3())
	f.commitPattern(flexitime.UniformWeek(8), 100, jan(1), nil, 2)
	w, err := f.weeks.CreateWeek(f.ctx, emp, jan(6))
	require.NoError(t, err)

	chain := f.engine().Chain
	first, err := chain.RecomputeWeek(f.ctx, *w)
	require.NoError(t, err)
	second, err := chain.RecomputeWeek(f.ctx, *w)
	require.NoError(t, err)

	assert.True(t, first.PreviousBalance.Equal(second.PreviousBalance))
	assert.True(t, first.RunningBalance.Equal(second.RunningBalance))
	assertHours(t, "2", first.PreviousBalance)
	// Nothing entered yet: 2 - 40
	assertHours(t, "-38", first.RunningBalance)
}
