package flexitime_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/flexitime-engine/flexitime"
	"github.com/warp/flexitime-engine/generic"
)

func patternOf(fte float64, week flexitime.WeekHours) flexitime.WorkPattern {
	return flexitime.WorkPattern{
		EntityID:      emp,
		FTEPercentage: decimal.NewFromFloat(fte),
		ValidFrom:     jan(1),
		Hours:         week,
		DocStatus:     flexitime.StatusSubmitted,
	}
}

// threeDayWeek works 8h Monday to Wednesday.
func threeDayWeek() flexitime.WeekHours {
	return flexitime.UniformWeek(8).
		Set(time.Thursday, generic.ZeroHours()).
		Set(time.Friday, generic.ZeroHours())
}

// Week of Monday Jan 6 2025.
var monday = jan(6)

// =============================================================================
// WEEKLY FORMULA
// =============================================================================

func TestAdjustedWeeklyExpected_Examples(t *testing.T) {
	base := hours(40)
	tests := []struct {
		name   string
		fte    float64
		leaves []flexitime.LeaveDay
		want   string
	}{
		{
			name:   "full time, one full regular leave day",
			fte:    100,
			leaves: []flexitime.LeaveDay{{Date: jan(8)}},
			want:   "32",
		},
		{
			name:   "80 percent, one sick day",
			fte:    80,
			leaves: []flexitime.LeaveDay{{Date: jan(8)}},
			want:   "25.6",
		},
		{
			name:   "full time, half-day regular leave",
			fte:    100,
			leaves: []flexitime.LeaveDay{{Date: jan(8), IsHalfDay: true}},
			want:   "36",
		},
		{
			name:   "full time, flex off full day",
			fte:    100,
			leaves: []flexitime.LeaveDay{{Date: jan(8), DeductsFromBalance: true}},
			want:   "40",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := patternOf(tt.fte, flexitime.UniformWeek(8))
			got := flexitime.AdjustedWeeklyExpected(base, p, monday, nil, tt.leaves)
			assertHours(t, tt.want, got)
		})
	}
}

func TestAdjustedWeeklyExpected_OnlyPatternWorkDaysCount(t *testing.T) {
	// GIVEN: Mon..Thu 10h, Friday off, holiday and leave on the Friday
	// WHEN: Computing the weekly figure
	// THEN: Neither reduces the total

	week := flexitime.UniformWeek(10).Set(jan(10).Weekday(), hours(0))
	p := patternOf(100, week)

	got := flexitime.AdjustedWeeklyExpected(hours(40), p, monday,
		[]generic.TimePoint{jan(10)}, []flexitime.LeaveDay{{Date: jan(10)}})

	assertHours(t, "40", got)
}

func TestAdjustedWeeklyExpected_HolidayAndLeaveOnSameDayCountTwice(t *testing.T) {
	p := patternOf(100, flexitime.UniformWeek(8))

	got := flexitime.AdjustedWeeklyExpected(hours(40), p, monday,
		[]generic.TimePoint{jan(8)}, []flexitime.LeaveDay{{Date: jan(8)}})

	assertHours(t, "24", got)
}

func TestAdjustedWeeklyExpected_EdgeCases(t *testing.T) {
	t.Run("no work days", func(t *testing.T) {
		p := patternOf(100, flexitime.WeekHours{})
		assertHours(t, "0", flexitime.AdjustedWeeklyExpected(hours(40), p, monday, nil, nil))
	})

	t.Run("fte 0 counts as full time", func(t *testing.T) {
		p := patternOf(0, flexitime.UniformWeek(8))
		assertHours(t, "40", flexitime.AdjustedWeeklyExpected(hours(40), p, monday, nil, nil))
	})

	t.Run("floored at zero", func(t *testing.T) {
		p := patternOf(100, flexitime.UniformWeek(8))
		var leaves []flexitime.LeaveDay
		for _, d := range generic.WeekOf(monday).Days()[:5] {
			leaves = append(leaves, flexitime.LeaveDay{Date: d})
		}
		holidays := []generic.TimePoint{jan(6), jan(7)}
		assertHours(t, "0", flexitime.AdjustedWeeklyExpected(hours(40), p, monday, holidays, leaves))
	})

	t.Run("three day week with every work day a holiday", func(t *testing.T) {
		p := patternOf(100, threeDayWeek())
		holidays := []generic.TimePoint{jan(6), jan(7), jan(8)}
		got := flexitime.AdjustedWeeklyExpected(hours(40), p, monday, holidays, nil)
		assert.True(t, got.IsZero(), "got %s", got)
	})

	t.Run("three day week keeps exact multiples of the daily average", func(t *testing.T) {
		// 40 * 1.5 / 3 = 20
		p := patternOf(100, threeDayWeek())
		got := flexitime.AdjustedWeeklyExpected(hours(40), p, monday,
			[]generic.TimePoint{jan(6)}, []flexitime.LeaveDay{{Date: jan(7), IsHalfDay: true}})
		assertHours(t, "20", got)
	})

	t.Run("days outside the week are ignored", func(t *testing.T) {
		p := patternOf(100, flexitime.UniformWeek(8))
		got := flexitime.AdjustedWeeklyExpected(hours(40), p, monday,
			[]generic.TimePoint{jan(13)}, []flexitime.LeaveDay{{Date: jan(3)}})
		assertHours(t, "40", got)
	})
}

// =============================================================================
// CALCULATOR (store-backed)
// =============================================================================

func TestWeeklyExpectedHoursAdjusted_PartTimeSickDay(t *testing.T) {
	// GIVEN: 80% FTE (32h of 40h base) over 5 days, approved sick leave Wednesday
	// WHEN: Computing the adjusted weekly expectation
	// THEN: 32 - 6.4 = 25.6

	f := newFixture(t, jan(31))
	f.commitPattern(flexitime.UniformWeek(6.4), 80, jan(1), nil, 0)
	f.approveLeave("Sick Leave", jan(8), jan(8), false)

	got, err := f.engine().Calc.WeeklyExpectedHoursAdjusted(f.ctx, emp, monday)
	require.NoError(t, err)
	assertHours(t, "25.6", got)
}

func TestWeeklyExpectedHoursAdjusted_UsesOrgUnitBaseHours(t *testing.T) {
	f := newFixture(t, jan(31))
	require.NoError(t, f.store.SaveOrgUnit(f.ctx, flexitime.OrgUnit{ID: "ch", BaseWeeklyHours: hours(42), HolidayCalendarID: "CH"}))
	f.commitPattern(flexitime.UniformWeek(8.4), 100, jan(1), nil, 0)
	f.addHoliday(jan(6), "Dreikönigstag")

	got, err := f.engine().Calc.WeeklyExpectedHoursAdjusted(f.ctx, emp, monday)
	require.NoError(t, err)
	assertHours(t, "33.6", got)
}

func TestWeeklyExpectedHoursAdjusted_Errors(t *testing.T) {
	f := newFixture(t, jan(31))
	calc := f.engine().Calc

	_, err := calc.WeeklyExpectedHoursAdjusted(f.ctx, emp, jan(7))
	requireCode(t, err, "not_monday")

	_, err = calc.WeeklyExpectedHoursAdjusted(f.ctx, emp, monday)
	assert.True(t, generic.IsConfigurationMissing(err))
}
