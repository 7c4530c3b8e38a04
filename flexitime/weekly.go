package flexitime

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/flexitime-engine/generic"
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// FTE-ADJUSTED WEEKLY EXPECTED HOURS
// =============================================================================
//
//   fte_weekly = base * fte / 100                 (fte 0 counts as 100)
//   remaining  = work_days - holidays - full leaves - half leaves / 2
//   expected   = fte_weekly * remaining / work_days  (work_days = 0 -> 0)
//
// This is fte_weekly less daily_average per missed day, with the single
// division done last so an exhausted week comes out as exactly 0.
//
// Holidays and leaves are only counted on pattern work days, and leaves
// only when they do not deduct from the balance. Floored at 0. This total
// is authoritative for the balance even when it differs from the sum of
// the daily expectations.

// AdjustedWeeklyExpected evaluates the weekly formula.
func AdjustedWeeklyExpected(base generic.Amount, pattern WorkPattern, weekStart generic.TimePoint,
	holidays []generic.TimePoint, leaves []LeaveDay) generic.Amount {

	fteWeekly := base.Mul(pattern.FTE()).Div(hundred)

	workDays := pattern.Hours.WorkDays()
	if workDays == 0 {
		return generic.ZeroHours()
	}
	week := generic.WeekOf(weekStart)
	onWorkDay := func(date generic.TimePoint) bool {
		return week.Contains(date) && pattern.HoursFor(date).IsPositive()
	}

	holidayCount := 0
	seen := map[string]bool{}
	for _, h := range holidays {
		if onWorkDay(h) && !seen[h.String()] {
			seen[h.String()] = true
			holidayCount++
		}
	}

	fullLeaves, halfLeaves := 0, 0
	for _, l := range leaves {
		if !onWorkDay(l.Date) || l.DeductsFromBalance {
			continue
		}
		if l.IsHalfDay {
			halfLeaves++
		} else {
			fullLeaves++
		}
	}

	remaining := decimal.NewFromInt(int64(workDays - holidayCount - fullLeaves)).
		Sub(decimal.NewFromInt(int64(halfLeaves)).Div(decimal.NewFromInt(2)))
	if !remaining.IsPositive() {
		return generic.ZeroHours()
	}
	return fteWeekly.Mul(remaining).Div(decimal.NewFromInt(int64(workDays))).FloorZero()
}

// WeeklyExpectedHoursAdjusted resolves the inputs of AdjustedWeeklyExpected
// for one employee. No pattern at weekStart is a ConfigurationMissingError.
func (c *Calculator) WeeklyExpectedHoursAdjusted(ctx context.Context, entityID generic.EntityID,
	weekStart generic.TimePoint) (generic.Amount, error) {

	if !weekStart.IsMonday() {
		return generic.ZeroHours(), generic.NewValidationError("week_start", "not_monday",
			"week start %s is not a Monday", weekStart)
	}

	pattern, err := c.Patterns.WorkPatternAt(ctx, entityID, weekStart)
	if err != nil {
		return generic.ZeroHours(), fmt.Errorf("resolve work pattern: %w", err)
	}
	if pattern == nil {
		return generic.ZeroHours(), &generic.ConfigurationMissingError{
			EntityID: entityID, Date: weekStart, What: "work pattern",
		}
	}

	orgUnit := ""
	if c.Employees != nil {
		emp, err := c.Employees.GetEmployee(ctx, entityID)
		if err != nil {
			return generic.ZeroHours(), fmt.Errorf("get employee: %w", err)
		}
		if emp != nil {
			orgUnit = emp.OrgUnit
		}
	}
	base := DefaultBaseWeeklyHours
	if c.BaseHours != nil {
		base, err = c.BaseHours.BaseWeeklyHours(ctx, orgUnit)
		if err != nil {
			return generic.ZeroHours(), fmt.Errorf("base weekly hours: %w", err)
		}
	}

	week := generic.WeekOf(weekStart)
	var holidays []generic.TimePoint
	if c.Holidays != nil {
		holidays, err = c.Holidays.HolidaysBetween(ctx, entityID, week)
		if err != nil {
			return generic.ZeroHours(), fmt.Errorf("holiday lookup: %w", err)
		}
	}
	var leaves []LeaveDay
	if c.Leaves != nil {
		leaves, err = c.Leaves.ApprovedLeaveDays(ctx, entityID, week)
		if err != nil {
			return generic.ZeroHours(), fmt.Errorf("leave lookup: %w", err)
		}
	}

	return AdjustedWeeklyExpected(base, *pattern, weekStart, holidays, leaves), nil
}
