/*
pattern.go - Work pattern validation, resolution and lifecycle

PURPOSE:
  A work pattern says how many hours an employee owes per weekday during
  a validity window. Drafts can be edited freely; committing makes the
  pattern authoritative for the calculators.

RESOLUTION:
  Among committed patterns of the employee covering the date, the one with
  the greatest ValidFrom wins. Overlap is rejected on commit, so ties only
  happen with data written around the service.

DERIVED FIELDS (NormalizePattern):
  WeeklyExpected = sum of the seven day-hours
  FlexitimeLimit = 20h * fte / 100 unless FlexitimeLimitOverride

COMMIT SIDE EFFECTS:
  - Stale System day-off markers removed, new ones created (dayoff.go)
  - Audit entry, pattern.committed event

SEE ALSO:
  - expected.go, weekly.go: Consumers of the resolved pattern
*/
package flexitime

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/flexitime-engine/generic"
)

// FullTimeFlexitimeLimit is the limit at 100% FTE.
var FullTimeFlexitimeLimit = generic.NewHours(20)

// NormalizePattern fills derived fields and defaults.
func NormalizePattern(p WorkPattern) WorkPattern {
	for _, d := range Weekdays {
		p.Hours = p.Hours.Set(d, p.Hours.For(d))
	}
	p.WeeklyExpected = p.Hours.Total()
	if !p.FlexitimeLimitOverride {
		p.FlexitimeLimit = FullTimeFlexitimeLimit.Mul(p.FTEPercentage).Div(hundred)
	}
	if p.FlexitimeLimit.Unit == "" {
		p.FlexitimeLimit.Unit = generic.UnitHours
	}
	if p.InitialBalance.Unit == "" {
		p.InitialBalance.Unit = generic.UnitHours
	}
	if p.Status == "" {
		p.Status = PatternActive
	}
	if p.DocStatus == "" {
		p.DocStatus = StatusDraft
	}
	return p
}

// Validate checks the single-record invariants. Overlap is checked on commit.
func (p WorkPattern) Validate() error {
	var errs generic.ValidationErrors
	if p.EntityID == "" {
		errs = append(errs, generic.NewValidationError("employee", "required", "employee is required"))
	}
	if p.ValidFrom.IsZero() {
		errs = append(errs, generic.NewValidationError("valid_from", "required", "valid from is required"))
	}
	if p.ValidTo != nil && p.ValidTo.Before(p.ValidFrom) {
		errs = append(errs, generic.NewValidationError("valid_to", "before_valid_from",
			"valid to %s is before valid from %s", p.ValidTo, p.ValidFrom))
	}
	if p.FTEPercentage.IsNegative() {
		errs = append(errs, generic.NewValidationError("fte_percentage", "negative", "FTE cannot be negative"))
	}
	for _, d := range Weekdays {
		if p.Hours.For(d).IsNegative() {
			errs = append(errs, generic.NewValidationError(d.String(), "negative_hours",
				"%s hours cannot be negative", d))
		}
	}
	return errs.OrNil()
}

// ResolvePattern picks the committed pattern of entityID valid on date.
func ResolvePattern(patterns []WorkPattern, entityID generic.EntityID, date generic.TimePoint) *WorkPattern {
	var best *WorkPattern
	for i := range patterns {
		p := &patterns[i]
		if p.EntityID != entityID || !p.IsCommitted() || !p.Covers(date) {
			continue
		}
		if best == nil || p.ValidFrom.After(best.ValidFrom) {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	found := *best
	return &found
}

// overlappingPattern returns a committed pattern (other than p) whose
// validity overlaps p's.
func overlappingPattern(patterns []WorkPattern, p WorkPattern) *WorkPattern {
	for i := range patterns {
		other := patterns[i]
		if other.ID == p.ID || !other.IsCommitted() {
			continue
		}
		if other.Validity().Overlaps(p.Validity()) {
			return &other
		}
	}
	return nil
}

// =============================================================================
// PATTERN SERVICE
// =============================================================================

type PatternService struct {
	Store     TxStore
	Settings  Settings
	Publisher EventPublisher
	Logger    zerolog.Logger
	Clock     Clock
}

func NewPatternService(store TxStore, settings Settings, publisher EventPublisher, logger zerolog.Logger) *PatternService {
	return &PatternService{
		Store:     store,
		Settings:  settings.withDefaults(),
		Publisher: publisher,
		Logger:    logger.With().Str("component", "pattern").Logger(),
	}
}

// Save stores a draft pattern. Committed patterns cannot be edited.
func (s *PatternService) Save(ctx context.Context, p WorkPattern) (*WorkPattern, error) {
	p.DocStatus = ""
	p = NormalizePattern(p)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = newID()
		p.CreatedAt = s.Clock.Now()
	} else {
		existing, err := s.Store.GetWorkPattern(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.DocStatus != StatusDraft {
				return nil, fmt.Errorf("pattern %s is %s: %w", p.ID, existing.DocStatus, generic.ErrConflict)
			}
			p.CreatedAt = existing.CreatedAt
		}
	}

	s.warnOnBaseHoursMismatch(ctx, p)

	if err := s.Store.SaveWorkPattern(ctx, p); err != nil {
		return nil, fmt.Errorf("save work pattern: %w", err)
	}
	return &p, nil
}

// warnOnBaseHoursMismatch logs when the pattern total is off the FTE share
// of the org unit baseline by more than the tolerance.
func (s *PatternService) warnOnBaseHoursMismatch(ctx context.Context, p WorkPattern) {
	emp, err := s.Store.GetEmployee(ctx, p.EntityID)
	if err != nil || emp == nil {
		return
	}
	base, err := OrgUnitBaseHours{Store: s.Store, Default: s.Settings.BaseWeeklyHours}.BaseWeeklyHours(ctx, emp.OrgUnit)
	if err != nil {
		return
	}
	fteWeekly := base.Mul(p.FTE()).Div(hundred)
	if p.WeeklyExpected.Sub(fteWeekly).Abs().GreaterThan(s.Settings.Tolerance) {
		s.Logger.Warn().
			Str("employee", string(p.EntityID)).
			Str("weekly_hours", p.WeeklyExpected.String()).
			Str("fte_weekly_hours", fteWeekly.String()).
			Msg("pattern hours differ from FTE share of base hours, expected hours use the FTE figure")
	}
}

// Commit makes a draft authoritative.
func (s *PatternService) Commit(ctx context.Context, id string, actor Actor) (*WorkPattern, error) {
	var committed WorkPattern
	var markers int
	err := s.Store.WithTx(ctx, func(tx Store) error {
		p, err := tx.GetWorkPattern(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return &generic.NotFoundError{Kind: "work pattern", ID: id}
		}
		if p.DocStatus != StatusDraft {
			return fmt.Errorf("pattern %s is %s: %w", id, p.DocStatus, generic.ErrConflict)
		}
		if err := p.Validate(); err != nil {
			return err
		}

		patterns, err := tx.ListWorkPatterns(ctx, p.EntityID)
		if err != nil {
			return fmt.Errorf("list work patterns: %w", err)
		}
		if other := overlappingPattern(patterns, *p); other != nil {
			return generic.NewValidationError("valid_from", "overlap",
				"work pattern overlaps with %s (valid from %s)", other.ID, other.ValidFrom)
		}

		p.DocStatus = StatusSubmitted
		if err := tx.SaveWorkPattern(ctx, *p); err != nil {
			return fmt.Errorf("save work pattern: %w", err)
		}
		markers, err = syncDayOffMarkers(ctx, tx, *p, s.Clock.Today(), s.Settings.DayOffHorizonDays)
		if err != nil {
			return err
		}
		committed = *p
		return appendAudit(ctx, tx, s.Clock.Now(), actor, generic.AuditPatternCommitted, p.EntityID, p.ID,
			map[string]any{"valid_from": p.ValidFrom.String(), "day_off_markers": markers})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info().
		Str("pattern", committed.ID).
		Str("employee", string(committed.EntityID)).
		Int("day_off_markers", markers).
		Msg("work pattern committed")
	publish(ctx, s.Publisher, s.Logger, EventPatternCommitted, PatternEvent{
		PatternID:     committed.ID,
		EmployeeID:    string(committed.EntityID),
		ValidFrom:     committed.ValidFrom.String(),
		DayOffMarkers: markers,
	})
	return &committed, nil
}

// Cancel withdraws a committed pattern and its unlocked day-off markers.
func (s *PatternService) Cancel(ctx context.Context, id string, actor Actor) (*WorkPattern, error) {
	var cancelled WorkPattern
	err := s.Store.WithTx(ctx, func(tx Store) error {
		p, err := tx.GetWorkPattern(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return &generic.NotFoundError{Kind: "work pattern", ID: id}
		}
		if p.DocStatus != StatusSubmitted {
			return fmt.Errorf("pattern %s is %s: %w", id, p.DocStatus, generic.ErrConflict)
		}
		p.DocStatus = StatusCancelled
		if err := tx.SaveWorkPattern(ctx, *p); err != nil {
			return fmt.Errorf("save work pattern: %w", err)
		}
		removed, err := removeDayOffMarkers(ctx, tx, *p, s.Clock.Today(), s.Settings.DayOffHorizonDays)
		if err != nil {
			return err
		}
		cancelled = *p
		return appendAudit(ctx, tx, s.Clock.Now(), actor, generic.AuditPatternCancelled, p.EntityID, p.ID,
			map[string]any{"day_off_markers_removed": removed})
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.Publisher, s.Logger, EventPatternCancelled, PatternEvent{
		PatternID:  cancelled.ID,
		EmployeeID: string(cancelled.EntityID),
		ValidFrom:  cancelled.ValidFrom.String(),
	})
	return &cancelled, nil
}

// Resolve returns the committed pattern valid on date, nil when none.
func (s *PatternService) Resolve(ctx context.Context, entityID generic.EntityID, date generic.TimePoint) (*WorkPattern, error) {
	return StorePatterns{Store: s.Store}.WorkPatternAt(ctx, entityID, date)
}

// FTE returns the FTE percentage as a decimal, treating 0 as full time.
func (p WorkPattern) FTE() decimal.Decimal {
	if p.FTEPercentage.IsZero() {
		return hundred
	}
	return p.FTEPercentage
}
