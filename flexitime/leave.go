/*
leave.go - Leave types, allocations and applications

PURPOSE:
  Leave enters the balance through LeaveCalendar (sources.go). This file
  owns the records behind it and the side effects of approving or
  cancelling leave.

APPROVAL:
  1. No actual hours recorded on the leave dates (any week)
  2. No Submitted week overlaps the leave
  3. Presence entries overlaid with a Leave source that remembers what it
     replaced (overrides locks)
  4. Draft weeks in range rebuilt
  5. Audit, leave.approved event

CANCELLATION:
  Presence entries are reverted first, then Draft weeks are rebuilt from
  the restored presence.

ZERO ALLOCATION:
  Some leave types (sick, military) need no pre-allocated days but must
  still be allocatable. LeaveType.AllowZeroAllocation permits an
  allocation of 0 new days; every other allocation must total > 0.
*/
package flexitime

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/warp/flexitime-engine/generic"
)

// =============================================================================
// LEAVE TYPE / ALLOCATION
// =============================================================================

type LeaveType struct {
	Name                string
	AllowZeroAllocation bool
}

type LeaveAllocation struct {
	ID             string
	EntityID       generic.EntityID
	LeaveType      string
	From           generic.TimePoint
	To             generic.TimePoint
	NewLeaves      generic.Amount
	CarryForwarded generic.Amount
	TotalAllocated generic.Amount
	Unused         generic.Amount
}

// ValidateAllocation computes the allocation totals and applies the
// zero-allocation policy of the leave type.
func ValidateAllocation(lt LeaveType, a LeaveAllocation) (LeaveAllocation, error) {
	var errs generic.ValidationErrors
	if a.EntityID == "" {
		errs = append(errs, generic.NewValidationError("employee", "required", "employee is required"))
	}
	if a.To.Before(a.From) {
		errs = append(errs, generic.NewValidationError("to", "before_from", "allocation ends before it starts"))
	}
	if a.NewLeaves.IsNegative() || a.CarryForwarded.IsNegative() {
		errs = append(errs, generic.NewValidationError("new_leaves", "negative", "allocated days cannot be negative"))
	}
	if len(errs) > 0 {
		return a, errs
	}

	days := func(x generic.Amount) generic.Amount {
		return generic.Amount{Value: x.Value, Unit: generic.UnitDays}
	}
	if a.NewLeaves.IsZero() && lt.AllowZeroAllocation {
		a.NewLeaves = days(a.NewLeaves)
		a.CarryForwarded = days(a.CarryForwarded)
		a.TotalAllocated = generic.NewAmount(0, generic.UnitDays)
		a.Unused = generic.NewAmount(0, generic.UnitDays)
		return a, nil
	}

	total := days(a.NewLeaves.Add(a.CarryForwarded))
	if !total.IsPositive() {
		return a, generic.NewValidationError("new_leaves", "zero_allocation",
			"total leaves allocated must be greater than 0 for leave type %s", lt.Name)
	}
	a.NewLeaves = days(a.NewLeaves)
	a.CarryForwarded = days(a.CarryForwarded)
	a.TotalAllocated = total
	a.Unused = days(a.CarryForwarded)
	return a, nil
}

// =============================================================================
// LEAVE APPLICATION
// =============================================================================

type LeaveStatus string

const (
	LeaveOpen      LeaveStatus = "open"
	LeaveApproved  LeaveStatus = "approved"
	LeaveRejected  LeaveStatus = "rejected"
	LeaveCancelled LeaveStatus = "cancelled"
)

type LeaveApplication struct {
	ID          string
	EntityID    generic.EntityID
	LeaveType   string
	From        generic.TimePoint
	To          generic.TimePoint
	HalfDay     bool
	HalfDayDate *generic.TimePoint
	Status      LeaveStatus
	Reason      string
}

func (a LeaveApplication) Period() generic.Period { return generic.Period{Start: a.From, End: a.To} }

// IsHalfDayOn reports whether date is the half day of the application. A
// single-day half-day application without HalfDayDate is half on that day.
func (a LeaveApplication) IsHalfDayOn(date generic.TimePoint) bool {
	if !a.HalfDay {
		return false
	}
	if a.HalfDayDate != nil {
		return a.HalfDayDate.Equal(date)
	}
	return a.From.Equal(a.To) && a.From.Equal(date)
}

func (a LeaveApplication) Validate() error {
	var errs generic.ValidationErrors
	if a.EntityID == "" {
		errs = append(errs, generic.NewValidationError("employee", "required", "employee is required"))
	}
	if a.LeaveType == "" {
		errs = append(errs, generic.NewValidationError("leave_type", "required", "leave type is required"))
	}
	if a.To.Before(a.From) {
		errs = append(errs, generic.NewValidationError("to", "before_from", "leave ends before it starts"))
	}
	if a.HalfDayDate != nil && !a.Period().Contains(*a.HalfDayDate) {
		errs = append(errs, generic.NewValidationError("half_day_date", "outside_leave",
			"half day %s is outside the leave period", a.HalfDayDate))
	}
	return errs.OrNil()
}

// =============================================================================
// LEAVE SERVICE
// =============================================================================

type LeaveService struct {
	Store     TxStore
	Settings  Settings
	Publisher EventPublisher
	Logger    zerolog.Logger
	Clock     Clock
}

func NewLeaveService(store TxStore, settings Settings, publisher EventPublisher, logger zerolog.Logger) *LeaveService {
	return &LeaveService{
		Store:     store,
		Settings:  settings.withDefaults(),
		Publisher: publisher,
		Logger:    logger.With().Str("component", "leave").Logger(),
	}
}

// hoursRecordedOn lists "date: hours" for days of the period carrying
// actual hours in any Draft or Submitted week.
func hoursRecordedOn(ctx context.Context, store Store, entityID generic.EntityID, period generic.Period) ([]string, error) {
	from := generic.MondayOf(period.Start)
	to := period.End
	weeks, err := store.ListWeeks(ctx, WeekFilter{
		EntityID: &entityID,
		From:     &from,
		To:       &to,
		Statuses: []DocStatus{StatusDraft, StatusSubmitted},
	})
	if err != nil {
		return nil, fmt.Errorf("list weeks: %w", err)
	}
	var conflicts []string
	for _, w := range weeks {
		for _, d := range w.Days {
			if period.Contains(d.Date) && d.Actual.IsPositive() {
				conflicts = append(conflicts, fmt.Sprintf("%s: %s hours", d.Date, d.Actual))
			}
		}
	}
	return conflicts, nil
}

// Apply stores a new open leave application.
func (s *LeaveService) Apply(ctx context.Context, app LeaveApplication) (*LeaveApplication, error) {
	if err := app.Validate(); err != nil {
		return nil, err
	}
	lt, err := s.Store.GetLeaveType(ctx, app.LeaveType)
	if err != nil {
		return nil, err
	}
	if lt == nil {
		return nil, &generic.NotFoundError{Kind: "leave type", ID: app.LeaveType}
	}
	conflicts, err := hoursRecordedOn(ctx, s.Store, app.EntityID, app.Period())
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, generic.NewValidationError("from", "hours_recorded",
			"hours already recorded for %s, clear them first", strings.Join(conflicts, ", "))
	}

	if app.ID == "" {
		app.ID = newID()
	}
	app.Status = LeaveOpen
	if err := s.Store.SaveLeaveApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("save leave application: %w", err)
	}
	return &app, nil
}

// Approve approves an open application and overlays its presence.
func (s *LeaveService) Approve(ctx context.Context, id string, actor Actor) (*LeaveApplication, error) {
	var approved LeaveApplication
	err := s.Store.WithTx(ctx, func(tx Store) error {
		app, err := s.loadApplication(ctx, tx, id)
		if err != nil {
			return err
		}
		if app.Status != LeaveOpen {
			return fmt.Errorf("leave application %s is %s: %w", id, app.Status, generic.ErrConflict)
		}

		conflicts, err := hoursRecordedOn(ctx, tx, app.EntityID, app.Period())
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return generic.NewValidationError("from", "hours_recorded",
				"hours already recorded for %s", strings.Join(conflicts, ", "))
		}
		if err := s.checkNoSubmittedWeeks(ctx, tx, *app); err != nil {
			return err
		}

		app.Status = LeaveApproved
		if err := tx.SaveLeaveApplication(ctx, *app); err != nil {
			return fmt.Errorf("save leave application: %w", err)
		}
		if err := s.overlayPresence(ctx, tx, *app); err != nil {
			return err
		}
		if _, err := NewEngine(tx, s.Settings, s.Logger).RefreshDraftWeeks(ctx, app.EntityID, app.Period()); err != nil {
			return err
		}
		approved = *app
		return appendAudit(ctx, tx, s.Clock.Now(), actor, generic.AuditLeaveApproved, app.EntityID, app.ID,
			map[string]any{"leave_type": app.LeaveType, "from": app.From.String(), "to": app.To.String()})
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.Publisher, s.Logger, EventLeaveApproved, leaveEvent(approved))
	return &approved, nil
}

// Reject closes an open application without side effects.
func (s *LeaveService) Reject(ctx context.Context, id string, actor Actor) (*LeaveApplication, error) {
	app, err := s.loadApplication(ctx, s.Store, id)
	if err != nil {
		return nil, err
	}
	if app.Status != LeaveOpen {
		return nil, fmt.Errorf("leave application %s is %s: %w", id, app.Status, generic.ErrConflict)
	}
	app.Status = LeaveRejected
	if err := s.Store.SaveLeaveApplication(ctx, *app); err != nil {
		return nil, fmt.Errorf("save leave application: %w", err)
	}
	s.Logger.Info().Str("application", id).Str("actor", actor.ID).Msg("leave rejected")
	return app, nil
}

// Cancel withdraws an approved application and restores presence.
func (s *LeaveService) Cancel(ctx context.Context, id string, actor Actor) (*LeaveApplication, error) {
	var cancelled LeaveApplication
	err := s.Store.WithTx(ctx, func(tx Store) error {
		app, err := s.loadApplication(ctx, tx, id)
		if err != nil {
			return err
		}
		if app.Status != LeaveApproved && app.Status != LeaveOpen {
			return fmt.Errorf("leave application %s is %s: %w", id, app.Status, generic.ErrConflict)
		}
		wasApproved := app.Status == LeaveApproved
		app.Status = LeaveCancelled
		if err := tx.SaveLeaveApplication(ctx, *app); err != nil {
			return fmt.Errorf("save leave application: %w", err)
		}
		cancelled = *app
		if !wasApproved {
			return nil
		}

		if err := s.revertPresence(ctx, tx, *app); err != nil {
			return err
		}
		if _, err := NewEngine(tx, s.Settings, s.Logger).RefreshDraftWeeks(ctx, app.EntityID, app.Period()); err != nil {
			return err
		}
		return appendAudit(ctx, tx, s.Clock.Now(), actor, generic.AuditLeaveCancelled, app.EntityID, app.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.Publisher, s.Logger, EventLeaveCancelled, leaveEvent(cancelled))
	return &cancelled, nil
}

// Allocate validates and stores an allocation.
func (s *LeaveService) Allocate(ctx context.Context, a LeaveAllocation) (*LeaveAllocation, error) {
	lt, err := s.Store.GetLeaveType(ctx, a.LeaveType)
	if err != nil {
		return nil, err
	}
	if lt == nil {
		return nil, &generic.NotFoundError{Kind: "leave type", ID: a.LeaveType}
	}
	a, err = ValidateAllocation(*lt, a)
	if err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = newID()
	}
	if err := s.Store.SaveLeaveAllocation(ctx, a); err != nil {
		return nil, fmt.Errorf("save leave allocation: %w", err)
	}
	return &a, nil
}

func (s *LeaveService) loadApplication(ctx context.Context, store Store, id string) (*LeaveApplication, error) {
	app, err := store.GetLeaveApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, &generic.NotFoundError{Kind: "leave application", ID: id}
	}
	return app, nil
}

func (s *LeaveService) checkNoSubmittedWeeks(ctx context.Context, store Store, app LeaveApplication) error {
	from := generic.MondayOf(app.From)
	to := app.To
	weeks, err := store.ListWeeks(ctx, WeekFilter{
		EntityID: &app.EntityID,
		From:     &from,
		To:       &to,
		Statuses: []DocStatus{StatusSubmitted},
	})
	if err != nil {
		return fmt.Errorf("list submitted weeks: %w", err)
	}
	if len(weeks) == 0 {
		return nil
	}
	spans := make([]string, 0, len(weeks))
	for _, w := range weeks {
		spans = append(spans, w.Period().String())
	}
	return generic.NewValidationError("from", "week_submitted",
		"cannot approve leave for dates with submitted weeks: %s", strings.Join(spans, ", "))
}

func (s *LeaveService) overlayPresence(ctx context.Context, store Store, app LeaveApplication) error {
	types, err := store.ListPresenceTypes(ctx)
	if err != nil {
		return fmt.Errorf("list presence types: %w", err)
	}
	pt := PresenceTypeForLeave(types, app.LeaveType)
	if pt == nil {
		s.Logger.Warn().
			Str("leave_type", app.LeaveType).
			Msg("no presence type for leave type, presence not updated")
		return nil
	}

	for _, day := range app.Period().Days() {
		existing, err := store.GetPresence(ctx, app.EntityID, day)
		if err != nil {
			return err
		}
		entry := ApplyLeave(existing, app.EntityID, day, pt.Name, app.ID, app.IsHalfDayOn(day))
		if err := store.SavePresence(ctx, entry); err != nil {
			return fmt.Errorf("save presence: %w", err)
		}
	}
	return nil
}

func (s *LeaveService) revertPresence(ctx context.Context, store Store, app LeaveApplication) error {
	entries, err := store.ListPresence(ctx, app.EntityID, app.Period())
	if err != nil {
		return fmt.Errorf("list presence: %w", err)
	}
	for _, e := range entries {
		if !e.Source.IsLeave() || e.LeaveApplication != app.ID {
			continue
		}
		restored := RevertEntry(e)
		if restored == nil {
			if err := store.DeletePresence(ctx, e.EntityID, e.Date); err != nil {
				return fmt.Errorf("delete presence: %w", err)
			}
			continue
		}
		if err := store.SavePresence(ctx, *restored); err != nil {
			return fmt.Errorf("save presence: %w", err)
		}
	}
	return nil
}

func leaveEvent(app LeaveApplication) LeaveEvent {
	return LeaveEvent{
		ApplicationID: app.ID,
		EmployeeID:    string(app.EntityID),
		LeaveType:     app.LeaveType,
		From:          app.From.String(),
		To:            app.To.String(),
	}
}
