package flexitime

import (
	"context"
	"fmt"

	"github.com/warp/flexitime-engine/generic"
)

// =============================================================================
// DATA PROVIDERS - What the calculators consume
// =============================================================================

// PatternSource resolves the work pattern valid on a date (nil if none).
type PatternSource interface {
	WorkPatternAt(ctx context.Context, entityID generic.EntityID, date generic.TimePoint) (*WorkPattern, error)
}

// HolidaySource answers holiday questions for an employee.
type HolidaySource interface {
	IsHoliday(ctx context.Context, entityID generic.EntityID, date generic.TimePoint) (bool, error)
	HolidaysBetween(ctx context.Context, entityID generic.EntityID, period generic.Period) ([]generic.TimePoint, error)
}

// LeaveSource returns approved leave days inside a period, ascending.
type LeaveSource interface {
	ApprovedLeaveDays(ctx context.Context, entityID generic.EntityID, period generic.Period) ([]LeaveDay, error)
}

// BaseHoursSource returns the organisation-wide weekly baseline.
type BaseHoursSource interface {
	BaseWeeklyHours(ctx context.Context, orgUnit string) (generic.Amount, error)
}

// =============================================================================
// STORE-BACKED PROVIDERS
// =============================================================================

// StorePatterns resolves patterns from a PatternStore.
type StorePatterns struct {
	Store PatternStore
}

func (s StorePatterns) WorkPatternAt(ctx context.Context, entityID generic.EntityID, date generic.TimePoint) (*WorkPattern, error) {
	patterns, err := s.Store.ListWorkPatterns(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("list work patterns: %w", err)
	}
	return ResolvePattern(patterns, entityID, date), nil
}

// EmployeeHolidays uses the employee's own holiday calendar, falling back
// to the calendar of the employee's org unit.
type EmployeeHolidays struct {
	Employees EmployeeStore
	Calendar  generic.HolidayCalendar
}

func (h EmployeeHolidays) calendarFor(ctx context.Context, entityID generic.EntityID) (string, error) {
	emp, err := h.Employees.GetEmployee(ctx, entityID)
	if err != nil {
		return "", err
	}
	if emp == nil {
		return "", nil
	}
	if emp.HolidayCalendarID != "" {
		return emp.HolidayCalendarID, nil
	}
	if emp.OrgUnit == "" {
		return "", nil
	}
	unit, err := h.Employees.GetOrgUnit(ctx, emp.OrgUnit)
	if err != nil || unit == nil {
		return "", err
	}
	return unit.HolidayCalendarID, nil
}

func (h EmployeeHolidays) IsHoliday(ctx context.Context, entityID generic.EntityID, date generic.TimePoint) (bool, error) {
	calendarID, err := h.calendarFor(ctx, entityID)
	if err != nil || calendarID == "" {
		return false, err
	}
	return h.Calendar.IsHoliday(ctx, calendarID, date)
}

func (h EmployeeHolidays) HolidaysBetween(ctx context.Context, entityID generic.EntityID, period generic.Period) ([]generic.TimePoint, error) {
	calendarID, err := h.calendarFor(ctx, entityID)
	if err != nil || calendarID == "" {
		return nil, err
	}
	return h.Calendar.HolidaysIn(ctx, calendarID, period)
}

// OrgUnitBaseHours reads OrgUnit.BaseWeeklyHours with a configured default.
type OrgUnitBaseHours struct {
	Store   EmployeeStore
	Default generic.Amount
}

func (b OrgUnitBaseHours) BaseWeeklyHours(ctx context.Context, orgUnit string) (generic.Amount, error) {
	fallback := b.Default
	if fallback.IsZero() {
		fallback = DefaultBaseWeeklyHours
	}
	if orgUnit == "" {
		return fallback, nil
	}
	unit, err := b.Store.GetOrgUnit(ctx, orgUnit)
	if err != nil {
		return fallback, err
	}
	if unit == nil || !unit.BaseWeeklyHours.IsPositive() {
		return fallback, nil
	}
	return unit.BaseWeeklyHours, nil
}

// LeaveCalendar expands approved leave applications into days. Flags come
// from the presence type mapped to the application's leave type;
// applications whose leave type has no presence type are skipped.
type LeaveCalendar struct {
	Store Store
}

func (c LeaveCalendar) ApprovedLeaveDays(ctx context.Context, entityID generic.EntityID, period generic.Period) ([]LeaveDay, error) {
	apps, err := c.Store.ListLeaveApplications(ctx, entityID, period)
	if err != nil {
		return nil, fmt.Errorf("list leave applications: %w", err)
	}
	if len(apps) == 0 {
		return nil, nil
	}
	types, err := c.Store.ListPresenceTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list presence types: %w", err)
	}

	byDate := map[string]LeaveDay{}
	for _, app := range apps {
		if app.Status != LeaveApproved {
			continue
		}
		pt := PresenceTypeForLeave(types, app.LeaveType)
		if pt == nil {
			continue
		}
		for _, day := range app.Period().Days() {
			if !period.Contains(day) {
				continue
			}
			byDate[day.String()] = LeaveDay{
				Date:               day,
				IsHalfDay:          app.IsHalfDayOn(day),
				DeductsFromBalance: pt.DeductsFromBalance,
				ApplicationID:      app.ID,
				PresenceType:       pt.Name,
			}
		}
	}

	var days []LeaveDay
	for _, day := range period.Days() {
		if ld, ok := byDate[day.String()]; ok {
			days = append(days, ld)
		}
	}
	return days, nil
}
