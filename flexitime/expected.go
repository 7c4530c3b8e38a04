/*
expected.go - Expected hours for a single day

PURPOSE:
  Answers "how many hours did the employee owe on this date?" from the
  work pattern, the holiday calendar and approved leave.

PRECEDENCE (first match wins):
  1. Holiday                          -> 0, leave or not
  2. Leave that deducts from balance  -> normal (normal/2 on a half day)
  3. Other approved leave             -> normal/2 on a half day, else 0
  4. Working day                      -> normal

  Deducting leave ("flex off") still owes the hours: the deficit is paid
  from the banked balance instead of being forgiven.

MISSING PATTERN:
  normal = 0 and a debug line. The daily calculator never raises for a
  missing pattern; the 8h fallback is an explicit API option only.

SEE ALSO:
  - weekly.go: FTE-adjusted weekly total
  - week.go: Uses both to build DailyRecords
*/
package flexitime

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warp/flexitime-engine/generic"
)

// ExpectedForDay applies the day-level precedence to normal hours.
func ExpectedForDay(normal generic.Amount, isHoliday bool, leave *LeaveDay) generic.Amount {
	switch {
	case isHoliday:
		return generic.ZeroHours()
	case leave == nil:
		return normal
	case leave.DeductsFromBalance:
		if leave.IsHalfDay {
			return normal.Half()
		}
		return normal
	case leave.IsHalfDay:
		return normal.Half()
	default:
		return generic.ZeroHours()
	}
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator evaluates expected hours against its data providers.
type Calculator struct {
	Patterns  PatternSource
	Holidays  HolidaySource
	Leaves    LeaveSource
	BaseHours BaseHoursSource
	Employees EmployeeStore
	Logger    zerolog.Logger
}

// NewCalculator wires store-backed providers.
func NewCalculator(store Store, settings Settings, logger zerolog.Logger) *Calculator {
	settings = settings.withDefaults()
	return &Calculator{
		Patterns:  StorePatterns{Store: store},
		Holidays:  EmployeeHolidays{Employees: store, Calendar: store},
		Leaves:    LeaveCalendar{Store: store},
		BaseHours: OrgUnitBaseHours{Store: store, Default: settings.BaseWeeklyHours},
		Employees: store,
		Logger:    logger,
	}
}

// NormalHours returns the pattern's hours for date's weekday, or 0 when no
// pattern covers date.
func (c *Calculator) NormalHours(ctx context.Context, entityID generic.EntityID, date generic.TimePoint) (generic.Amount, error) {
	pattern, err := c.Patterns.WorkPatternAt(ctx, entityID, date)
	if err != nil {
		return generic.ZeroHours(), fmt.Errorf("resolve work pattern: %w", err)
	}
	if pattern == nil {
		c.Logger.Debug().
			Str("employee", string(entityID)).
			Str("date", date.String()).
			Msg("no work pattern, normal hours 0")
		return generic.ZeroHours(), nil
	}
	return pattern.HoursFor(date), nil
}

// ExpectedHours is the boolean form: approved leave here never deducts
// from the balance.
func (c *Calculator) ExpectedHours(ctx context.Context, entityID generic.EntityID, date generic.TimePoint,
	hasApprovedLeave, isHalfDay bool) (generic.Amount, error) {

	var leave *LeaveDay
	if hasApprovedLeave {
		leave = &LeaveDay{Date: date, IsHalfDay: isHalfDay}
	}
	return c.ExpectedHoursForDay(ctx, entityID, date, leave)
}

// ExpectedHoursForDay takes the full leave descriptor (nil for no leave).
func (c *Calculator) ExpectedHoursForDay(ctx context.Context, entityID generic.EntityID, date generic.TimePoint,
	leave *LeaveDay) (generic.Amount, error) {

	normal, err := c.NormalHours(ctx, entityID, date)
	if err != nil {
		return generic.ZeroHours(), err
	}
	isHoliday := false
	if c.Holidays != nil {
		isHoliday, err = c.Holidays.IsHoliday(ctx, entityID, date)
		if err != nil {
			return generic.ZeroHours(), fmt.Errorf("holiday lookup: %w", err)
		}
	}
	return ExpectedForDay(normal, isHoliday, leave), nil
}
