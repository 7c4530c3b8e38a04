package flexitime

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warp/flexitime-engine/generic"
)

// =============================================================================
// WEEK BUILDER - Mon..Fri records and weekly totals
// =============================================================================

type WeekBuilder struct {
	Store     PresenceStore
	Calc      *Calculator
	Tolerance generic.Amount
	Logger    zerolog.Logger
}

func NewWeekBuilder(store PresenceStore, calc *Calculator, settings Settings, logger zerolog.Logger) *WeekBuilder {
	return &WeekBuilder{Store: store, Calc: calc, Tolerance: settings.withDefaults().Tolerance, Logger: logger}
}

// workWeek is Monday..Friday of the week starting at weekStart.
func workWeek(weekStart generic.TimePoint) generic.Period {
	return generic.Period{Start: weekStart, End: weekStart.AddDays(4)}
}

// BuildWeek assembles a Draft week with expected hours per day. Actual
// hours start at 0 and are only ever entered by the employee.
func (b *WeekBuilder) BuildWeek(ctx context.Context, entityID generic.EntityID, weekStart generic.TimePoint) (*WeeklyBalance, error) {
	if !weekStart.IsMonday() {
		return nil, generic.NewValidationError("week_start", "not_monday", "week start %s is not a Monday", weekStart)
	}
	days := workWeek(weekStart)

	entries, err := b.Store.ListPresence(ctx, entityID, days)
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	presence := map[string]PresenceEntry{}
	for _, e := range entries {
		presence[e.Date.String()] = e
	}

	var leaves []LeaveDay
	if b.Calc.Leaves != nil {
		leaves, err = b.Calc.Leaves.ApprovedLeaveDays(ctx, entityID, days)
		if err != nil {
			return nil, fmt.Errorf("leave lookup: %w", err)
		}
	}
	leaveOn := map[string]*LeaveDay{}
	for i := range leaves {
		leaveOn[leaves[i].Date.String()] = &leaves[i]
	}

	week := &WeeklyBalance{
		EntityID:  entityID,
		WeekStart: weekStart,
		WeekEnd:   weekStart.AddDays(6),
		DocStatus: StatusDraft,
	}
	for _, day := range days.Days() {
		leave := leaveOn[day.String()]
		expected, err := b.Calc.ExpectedHoursForDay(ctx, entityID, day, leave)
		if err != nil {
			return nil, err
		}
		record := DailyRecord{
			Date:     day,
			Expected: expected,
			Actual:   generic.ZeroHours(),
		}
		if e, ok := presence[day.String()]; ok {
			record.PresenceType = e.PresenceType
			record.LeaveApplication = e.LeaveApplication
			record.IsHalfDay = e.IsHalfDay
		}
		if leave != nil {
			record.PresenceType = leave.PresenceType
			record.LeaveApplication = leave.ApplicationID
			record.IsHalfDay = leave.IsHalfDay
		}
		week.Days = append(week.Days, record)
	}

	if err := b.Totals(ctx, week); err != nil {
		return nil, err
	}
	return week, nil
}

// Totals recomputes per-day differences and the weekly totals. The total
// expected is the FTE-adjusted weekly figure, or the sum of the daily
// expectations when no pattern covers the week.
func (b *WeekBuilder) Totals(ctx context.Context, week *WeeklyBalance) error {
	actual := generic.ZeroHours()
	dailySum := generic.ZeroHours()
	for i := range week.Days {
		d := &week.Days[i]
		d.Difference = d.Actual.Sub(d.Expected)
		actual = actual.Add(d.Actual)
		dailySum = dailySum.Add(d.Expected)
	}

	week.Inconsistency = nil
	expected, err := b.Calc.WeeklyExpectedHoursAdjusted(ctx, week.EntityID, week.WeekStart)
	switch {
	case generic.IsConfigurationMissing(err):
		b.Logger.Debug().
			Str("employee", string(week.EntityID)).
			Str("week_start", week.WeekStart.String()).
			Msg("no work pattern for week, using daily sum")
		expected = dailySum
	case err != nil:
		return err
	default:
		if expected.Sub(dailySum).Abs().GreaterThan(b.Tolerance) {
			warning := &generic.InconsistencyWarning{
				EntityID:  week.EntityID,
				WeekStart: week.WeekStart,
				Adjusted:  expected,
				DailySum:  dailySum,
			}
			week.Inconsistency = warning
			b.Logger.Warn().
				Str("employee", string(week.EntityID)).
				Str("week_start", week.WeekStart.String()).
				Str("adjusted", expected.String()).
				Str("daily_sum", dailySum.String()).
				Msg("weekly expected hours differ from daily sum")
		}
	}

	week.TotalActual = actual
	week.TotalExpected = expected
	week.WeeklyDelta = actual.Sub(expected)
	return nil
}

// =============================================================================
// DRAFT REFRESH
// =============================================================================

// RefreshDraftWeeks rebuilds the Draft weeks of entityID overlapping period
// from current presence, leave and patterns. Actual hours are kept, except
// on days now covered by leave, where they are cleared.
func (e *Engine) RefreshDraftWeeks(ctx context.Context, entityID generic.EntityID, period generic.Period) ([]WeeklyBalance, error) {
	from := generic.MondayOf(period.Start)
	to := period.End
	weeks, err := e.Store.ListWeeks(ctx, WeekFilter{
		EntityID: &entityID,
		From:     &from,
		To:       &to,
		Statuses: []DocStatus{StatusDraft},
	})
	if err != nil {
		return nil, fmt.Errorf("list draft weeks: %w", err)
	}

	refreshed := make([]WeeklyBalance, 0, len(weeks))
	for _, old := range weeks {
		rebuilt, err := e.Weeks.BuildWeek(ctx, entityID, old.WeekStart)
		if err != nil {
			return nil, err
		}
		for i := range rebuilt.Days {
			day := &rebuilt.Days[i]
			prev := old.Day(day.Date)
			if prev == nil {
				continue
			}
			if day.LeaveApplication != "" && prev.Actual.IsPositive() {
				e.Logger.Warn().
					Str("employee", string(entityID)).
					Str("date", day.Date.String()).
					Str("actual", prev.Actual.String()).
					Msg("clearing hours recorded on a leave day")
				continue
			}
			day.Actual = prev.Actual
		}
		if err := e.Weeks.Totals(ctx, rebuilt); err != nil {
			return nil, err
		}

		rebuilt.ID = old.ID
		rebuilt.IsLocked = old.IsLocked
		rebuilt.LockedAt = old.LockedAt
		result, err := e.Chain.RecomputeWeek(ctx, *rebuilt)
		if err != nil {
			return nil, err
		}
		result.Apply(rebuilt)
		if err := e.Store.SaveWeek(ctx, *rebuilt); err != nil {
			return nil, fmt.Errorf("save week: %w", err)
		}
		refreshed = append(refreshed, *rebuilt)
	}
	return refreshed, nil
}
