/*
submit.go - Weekly balance lifecycle

PURPOSE:
  Moves a week through Draft -> Submitted -> (Cancelled) and keeps the
  balance chain consistent after every transition.

STATE MACHINE:
  ┌───────┐  Submit   ┌───────────┐  Cancel  ┌───────────┐
  │ Draft │ ────────▶ │ Submitted │ ───────▶ │ Cancelled │
  └───────┘           └───────────┘          └───────────┘
     ▲ UpdateActuals     │ Amend (HR)
     └─ recompute        └─ recompute + cascade
                         │ Lock / Unlock (HR)

SUBMIT GATES:
  1. week_end < today                                  (HR bypass)
  2. no earlier Draft; latest earlier week Submitted   (HR bypass)
  3. a work pattern covers week_start                  (always)
  4. no actual hours on a leave-linked day             (always)

  Gate check, submit and cascade run in one transaction, so two weeks of
  the same employee cannot be submitted out of order.

SEE ALSO:
  - balance.go: Chain and cascade
  - week.go: Totals
*/
package flexitime

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/flexitime-engine/generic"
)

type WeekService struct {
	Store     TxStore
	Settings  Settings
	Publisher EventPublisher
	Logger    zerolog.Logger
	Clock     Clock
}

func NewWeekService(store TxStore, settings Settings, publisher EventPublisher, logger zerolog.Logger) *WeekService {
	return &WeekService{
		Store:     store,
		Settings:  settings.withDefaults(),
		Publisher: publisher,
		Logger:    logger.With().Str("component", "weeks").Logger(),
	}
}

func (s *WeekService) engine(store Store) *Engine {
	return NewEngine(store, s.Settings, s.Logger)
}

// Actuals maps a date to the hours worked that day.
type Actuals map[string]generic.Amount

func loadWeek(ctx context.Context, store Store, id string) (*WeeklyBalance, error) {
	week, err := store.GetWeekByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if week == nil {
		return nil, &generic.NotFoundError{Kind: "weekly balance", ID: id}
	}
	return week, nil
}

// =============================================================================
// DRAFTS
// =============================================================================

// CreateWeek returns the employee's week, building a Draft when none exists
// or the existing one was cancelled.
func (s *WeekService) CreateWeek(ctx context.Context, entityID generic.EntityID, weekStart generic.TimePoint) (*WeeklyBalance, error) {
	var created WeeklyBalance
	err := s.Store.WithTx(ctx, func(tx Store) error {
		emp, err := tx.GetEmployee(ctx, entityID)
		if err != nil {
			return err
		}
		if emp == nil {
			return &generic.NotFoundError{Kind: "employee", ID: string(entityID)}
		}

		existing, err := tx.GetWeek(ctx, entityID, weekStart)
		if err != nil {
			return err
		}
		if existing != nil && existing.DocStatus != StatusCancelled {
			created = *existing
			return nil
		}

		eng := s.engine(tx)
		week, err := eng.Weeks.BuildWeek(ctx, entityID, weekStart)
		if err != nil {
			return err
		}
		week.ID = newID()
		if existing != nil {
			week.ID = existing.ID
		}
		result, err := eng.Chain.RecomputeWeek(ctx, *week)
		if err != nil {
			return err
		}
		result.Apply(week)
		if err := tx.SaveWeek(ctx, *week); err != nil {
			return fmt.Errorf("save week: %w", err)
		}
		created = *week
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func applyActuals(week *WeeklyBalance, actuals Actuals) error {
	var errs generic.ValidationErrors
	for date, hours := range actuals {
		d, err := generic.ParseDate(date)
		if err != nil {
			errs = append(errs, generic.NewValidationError("date", "invalid_date", "%s", err.Error()))
			continue
		}
		day := week.Day(d)
		if day == nil {
			errs = append(errs, generic.NewValidationError("date", "outside_week",
				"%s is not a working day of week %s", date, week.WeekStart))
			continue
		}
		if hours.IsNegative() {
			errs = append(errs, generic.NewValidationError("actual_hours", "negative_hours",
				"hours on %s cannot be negative", date))
			continue
		}
		day.Actual = generic.ZeroHours().Add(hours)
	}
	return errs.OrNil()
}

// UpdateActuals records hours worked on a Draft week and refreshes its
// totals and balance preview.
func (s *WeekService) UpdateActuals(ctx context.Context, weekID string, actuals Actuals, actor Actor) (*WeeklyBalance, error) {
	var updated WeeklyBalance
	err := s.Store.WithTx(ctx, func(tx Store) error {
		week, err := loadWeek(ctx, tx, weekID)
		if err != nil {
			return err
		}
		if week.IsLocked && !actor.Privileged {
			return &generic.LockedError{Kind: "weekly balance", ID: weekID}
		}
		if !week.IsDraft() {
			return fmt.Errorf("week %s is %s, amend instead: %w", weekID, week.DocStatus, generic.ErrConflict)
		}
		if err := applyActuals(week, actuals); err != nil {
			return err
		}

		eng := s.engine(tx)
		if err := eng.Weeks.Totals(ctx, week); err != nil {
			return err
		}
		result, err := eng.Chain.RecomputeWeek(ctx, *week)
		if err != nil {
			return err
		}
		result.Apply(week)
		if err := tx.SaveWeek(ctx, *week); err != nil {
			return fmt.Errorf("save week: %w", err)
		}
		updated = *week
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// =============================================================================
// SUBMIT / CANCEL / AMEND
// =============================================================================

// checkSequence enforces gates 1 and 2.
func checkSequence(ctx context.Context, store Store, week WeeklyBalance, today generic.TimePoint) error {
	if !week.WeekEnd.Before(today) {
		return generic.NewValidationError("week_end", "not_elapsed",
			"week %s has not ended yet", week.WeekStart)
	}

	before := week.WeekStart.AddDays(-1)
	earlier, err := store.ListWeeks(ctx, WeekFilter{
		EntityID: &week.EntityID,
		To:       &before,
		Statuses: []DocStatus{StatusDraft, StatusSubmitted},
	})
	if err != nil {
		return fmt.Errorf("list earlier weeks: %w", err)
	}
	for _, w := range earlier {
		if w.IsDraft() {
			return generic.NewValidationError("week_start", "out_of_order",
				"week %s is still a draft, submit it first", w.WeekStart)
		}
	}
	if n := len(earlier); n > 0 && !earlier[n-1].IsSubmitted() {
		return generic.NewValidationError("week_start", "out_of_order",
			"previous week %s is not submitted", earlier[n-1].WeekStart)
	}
	return nil
}

// checkLeaveHours enforces gate 4.
func checkLeaveHours(week WeeklyBalance) error {
	var errs generic.ValidationErrors
	for _, d := range week.Days {
		if d.LeaveApplication != "" && d.Actual.IsPositive() {
			errs = append(errs, generic.NewValidationError("actual_hours", "hours_on_leave",
				"%s is covered by leave %s but has %s hours", d.Date, d.LeaveApplication, d.Actual))
		}
	}
	return errs.OrNil()
}

// Submit commits a Draft week to the balance chain.
func (s *WeekService) Submit(ctx context.Context, weekID string, actor Actor) (*WeeklyBalance, error) {
	var submitted WeeklyBalance
	err := s.Store.WithTx(ctx, func(tx Store) error {
		week, err := loadWeek(ctx, tx, weekID)
		if err != nil {
			return err
		}
		if !week.IsDraft() {
			return fmt.Errorf("week %s is %s: %w", weekID, week.DocStatus, generic.ErrConflict)
		}

		if !actor.Privileged {
			if err := checkSequence(ctx, tx, *week, s.Clock.Today()); err != nil {
				return err
			}
		}

		eng := s.engine(tx)
		pattern, err := eng.Calc.Patterns.WorkPatternAt(ctx, week.EntityID, week.WeekStart)
		if err != nil {
			return fmt.Errorf("resolve work pattern: %w", err)
		}
		if pattern == nil {
			return &generic.ConfigurationMissingError{EntityID: week.EntityID, Date: week.WeekStart, What: "work pattern"}
		}
		if err := checkLeaveHours(*week); err != nil {
			return err
		}

		if err := eng.Weeks.Totals(ctx, week); err != nil {
			return err
		}
		result, err := eng.Chain.RecomputeWeek(ctx, *week)
		if err != nil {
			return err
		}
		result.Apply(week)
		now := s.Clock.Now()
		week.DocStatus = StatusSubmitted
		week.SubmittedAt = &now
		if err := tx.SaveWeek(ctx, *week); err != nil {
			return fmt.Errorf("save week: %w", err)
		}
		if err := eng.Chain.CascadeRecompute(ctx, week.EntityID, week.WeekStart); err != nil {
			return err
		}
		submitted = *week
		return appendAudit(ctx, tx, now, actor, generic.AuditWeekSubmitted, week.EntityID, week.ID,
			map[string]any{"weekly_delta": week.WeeklyDelta.String(), "running_balance": week.RunningBalance.String()})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info().
		Str("week", submitted.ID).
		Str("employee", string(submitted.EntityID)).
		Str("week_start", submitted.WeekStart.String()).
		Str("running_balance", submitted.RunningBalance.String()).
		Msg("week submitted")
	publish(ctx, s.Publisher, s.Logger, EventWeekSubmitted, weekEvent(submitted, actor))
	return &submitted, nil
}

// Cancel withdraws a Submitted week and re-chains the weeks after it.
func (s *WeekService) Cancel(ctx context.Context, weekID string, actor Actor) (*WeeklyBalance, error) {
	var cancelled WeeklyBalance
	err := s.Store.WithTx(ctx, func(tx Store) error {
		week, err := loadWeek(ctx, tx, weekID)
		if err != nil {
			return err
		}
		if !week.IsSubmitted() {
			return fmt.Errorf("week %s is %s: %w", weekID, week.DocStatus, generic.ErrConflict)
		}
		if week.IsLocked && !actor.Privileged {
			return &generic.LockedError{Kind: "weekly balance", ID: weekID}
		}

		week.DocStatus = StatusCancelled
		week.IsLocked = false
		week.LockedAt = nil
		if err := tx.SaveWeek(ctx, *week); err != nil {
			return fmt.Errorf("save week: %w", err)
		}
		if err := s.engine(tx).Chain.CascadeRecompute(ctx, week.EntityID, week.WeekStart); err != nil {
			return err
		}
		cancelled = *week
		return appendAudit(ctx, tx, s.Clock.Now(), actor, generic.AuditWeekCancelled, week.EntityID, week.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.Publisher, s.Logger, EventWeekCancelled, weekEvent(cancelled, actor))
	return &cancelled, nil
}

// Amend changes actual hours of a Submitted week. HR only.
func (s *WeekService) Amend(ctx context.Context, weekID string, actuals Actuals, actor Actor) (*WeeklyBalance, error) {
	if !actor.Privileged {
		return nil, fmt.Errorf("amending a submitted week: %w", generic.ErrForbidden)
	}
	var amended WeeklyBalance
	err := s.Store.WithTx(ctx, func(tx Store) error {
		week, err := loadWeek(ctx, tx, weekID)
		if err != nil {
			return err
		}
		if !week.IsSubmitted() {
			return fmt.Errorf("week %s is %s: %w", weekID, week.DocStatus, generic.ErrConflict)
		}
		if err := applyActuals(week, actuals); err != nil {
			return err
		}
		if err := checkLeaveHours(*week); err != nil {
			return err
		}

		eng := s.engine(tx)
		oldDelta := week.WeeklyDelta
		if err := eng.Weeks.Totals(ctx, week); err != nil {
			return err
		}
		result, err := eng.Chain.RecomputeWeek(ctx, *week)
		if err != nil {
			return err
		}
		result.Apply(week)
		if err := tx.SaveWeek(ctx, *week); err != nil {
			return fmt.Errorf("save week: %w", err)
		}
		if err := eng.Chain.CascadeRecompute(ctx, week.EntityID, week.WeekStart); err != nil {
			return err
		}
		amended = *week
		return appendAudit(ctx, tx, s.Clock.Now(), actor, generic.AuditWeekAmended, week.EntityID, week.ID,
			map[string]any{"old_delta": oldDelta.String(), "new_delta": week.WeeklyDelta.String()})
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.Publisher, s.Logger, EventWeekAmended, weekEvent(amended, actor))
	return &amended, nil
}

func weekEvent(w WeeklyBalance, actor Actor) WeekEvent {
	return WeekEvent{
		WeekID:         w.ID,
		EmployeeID:     string(w.EntityID),
		WeekStart:      w.WeekStart.String(),
		WeeklyDelta:    w.WeeklyDelta.String(),
		RunningBalance: w.RunningBalance.String(),
		ActorID:        actor.ID,
	}
}

// =============================================================================
// LOCKING
// =============================================================================

// Lock freezes a Submitted week. HR only.
func (s *WeekService) Lock(ctx context.Context, weekID string, actor Actor) (*WeeklyBalance, error) {
	return s.setLocked(ctx, weekID, actor, true)
}

// Unlock reopens a locked week for HR corrections. HR only.
func (s *WeekService) Unlock(ctx context.Context, weekID string, actor Actor) (*WeeklyBalance, error) {
	return s.setLocked(ctx, weekID, actor, false)
}

func (s *WeekService) setLocked(ctx context.Context, weekID string, actor Actor, locked bool) (*WeeklyBalance, error) {
	if !actor.Privileged {
		return nil, fmt.Errorf("locking weeks: %w", generic.ErrForbidden)
	}
	var result WeeklyBalance
	err := s.Store.WithTx(ctx, func(tx Store) error {
		week, err := loadWeek(ctx, tx, weekID)
		if err != nil {
			return err
		}
		if locked && !week.IsSubmitted() {
			return generic.NewValidationError("docstatus", "not_submitted", "only submitted weeks can be locked")
		}
		now := s.Clock.Now()
		action := generic.AuditWeekUnlocked
		week.IsLocked = locked
		week.LockedAt = nil
		if locked {
			action = generic.AuditWeekLocked
			week.LockedAt = &now
		}
		if err := tx.SaveWeek(ctx, *week); err != nil {
			return fmt.Errorf("save week: %w", err)
		}
		result = *week
		return appendAudit(ctx, tx, now, actor, action, week.EntityID, week.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// AutoLockSubmitted locks Submitted weeks submitted at least afterDays ago.
func (s *WeekService) AutoLockSubmitted(ctx context.Context, afterDays int) (int, error) {
	unlocked := false
	now := s.Clock.Now()
	cutoff := now.Add(-time.Duration(afterDays) * 24 * time.Hour)
	locked := 0
	err := s.Store.WithTx(ctx, func(tx Store) error {
		weeks, err := tx.ListWeeks(ctx, WeekFilter{Statuses: []DocStatus{StatusSubmitted}, Locked: &unlocked})
		if err != nil {
			return fmt.Errorf("list submitted weeks: %w", err)
		}
		for _, w := range weeks {
			if w.SubmittedAt == nil || w.SubmittedAt.After(cutoff) {
				continue
			}
			w.IsLocked = true
			w.LockedAt = &now
			if err := tx.SaveWeek(ctx, w); err != nil {
				return fmt.Errorf("save week: %w", err)
			}
			if err := appendAudit(ctx, tx, now, SystemActor, generic.AuditWeekLocked, w.EntityID, w.ID,
				map[string]any{"auto": true}); err != nil {
				return err
			}
			locked++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if locked > 0 {
		s.Logger.Info().Int("locked", locked).Int("after_days", afterDays).Msg("auto-locked submitted weeks")
	}
	return locked, nil
}

// RefreshDraftWeeks rebuilds Draft weeks of entityID overlapping period.
func (s *WeekService) RefreshDraftWeeks(ctx context.Context, entityID generic.EntityID, period generic.Period) ([]WeeklyBalance, error) {
	var refreshed []WeeklyBalance
	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		refreshed, err = s.engine(tx).RefreshDraftWeeks(ctx, entityID, period)
		return err
	})
	return refreshed, err
}
