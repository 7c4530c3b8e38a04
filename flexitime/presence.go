package flexitime

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warp/flexitime-engine/generic"
)

// =============================================================================
// PRESENCE TYPES
// =============================================================================

type PresenceCategory string

const (
	CategoryWorking   PresenceCategory = "working"
	CategoryLeave     PresenceCategory = "leave"
	CategoryScheduled PresenceCategory = "scheduled"
)

// System roles pick the presence type the engine assigns on its own.
const (
	RoleHoliday = "holiday"
	RoleDayOff  = "day_off"
	RoleWeekend = "weekend"
)

// PresenceType tags what a day "is" (office, home, vacation, day off...).
type PresenceType struct {
	Name                     string
	Label                    string
	Icon                     string
	Category                 PresenceCategory
	IsSystem                 bool
	SystemRole               string
	RequiresLeaveApplication bool
	LeaveType                string

	// DeductsFromBalance marks leave that consumes banked hours (flex off).
	DeductsFromBalance bool
}

func (pt PresenceType) Validate() error {
	var errs generic.ValidationErrors
	if pt.Name == "" {
		errs = append(errs, generic.NewValidationError("name", "required", "presence type name is required"))
	}
	if pt.RequiresLeaveApplication && pt.LeaveType == "" {
		errs = append(errs, generic.NewValidationError("leave_type", "required",
			"leave type is required when a leave application is required"))
	}
	if pt.IsSystem && pt.RequiresLeaveApplication {
		errs = append(errs, generic.NewValidationError("is_system", "conflict",
			"system presence types cannot require a leave application"))
	}
	return errs.OrNil()
}

// PresenceTypeForLeave returns the presence type mapped to leaveType.
func PresenceTypeForLeave(types []PresenceType, leaveType string) *PresenceType {
	for i := range types {
		if types[i].RequiresLeaveApplication && types[i].LeaveType == leaveType {
			return &types[i]
		}
	}
	return nil
}

// SystemPresenceType returns the system presence type with role.
func SystemPresenceType(types []PresenceType, role string) *PresenceType {
	for i := range types {
		if types[i].IsSystem && types[i].SystemRole == role {
			return &types[i]
		}
	}
	return nil
}

// =============================================================================
// PRESENCE SOURCE - Who put an entry there
// =============================================================================

type SourceKind string

const (
	SourceManual  SourceKind = "manual"
	SourceSystem  SourceKind = "system"
	SourceLeave   SourceKind = "leave"
	SourcePattern SourceKind = "pattern"
)

// PriorState is what a leave overlay replaced.
type PriorState struct {
	Kind         SourceKind
	PresenceType string
}

// PresenceSource is Manual | System | Pattern | Leave{Prior}. Prior is
// only meaningful for Leave and is nil when the leave created the entry.
type PresenceSource struct {
	Kind  SourceKind
	Prior *PriorState
}

func ManualSource() PresenceSource        { return PresenceSource{Kind: SourceManual} }
func SystemSource() PresenceSource        { return PresenceSource{Kind: SourceSystem} }
func PatternDerivedSource() PresenceSource { return PresenceSource{Kind: SourcePattern} }

func LeaveSourceOver(prior *PriorState) PresenceSource {
	return PresenceSource{Kind: SourceLeave, Prior: prior}
}

func (s PresenceSource) IsLeave() bool { return s.Kind == SourceLeave }

// Revert returns the source to restore once the leave is cancelled. The
// boolean is false when there is nothing to restore.
func (s PresenceSource) Revert() (PresenceSource, bool) {
	if s.Kind != SourceLeave {
		return s, true
	}
	if s.Prior == nil {
		return PresenceSource{}, false
	}
	return PresenceSource{Kind: s.Prior.Kind}, true
}

// =============================================================================
// PRESENCE ENTRY (roll call)
// =============================================================================

type PresenceEntry struct {
	EntityID         generic.EntityID
	Date             generic.TimePoint
	PresenceType     string
	Source           PresenceSource
	LeaveApplication string
	IsHalfDay        bool
	IsLocked         bool
}

// ApplyLeave overlays approved leave on an existing entry (or none). Leave
// overrides locks. When leave overlays leave, the first prior is kept.
func ApplyLeave(existing *PresenceEntry, entityID generic.EntityID, date generic.TimePoint,
	presenceType, applicationID string, halfDay bool) PresenceEntry {

	entry := PresenceEntry{
		EntityID:         entityID,
		Date:             date,
		PresenceType:     presenceType,
		LeaveApplication: applicationID,
		IsHalfDay:        halfDay,
	}
	switch {
	case existing == nil:
		entry.Source = LeaveSourceOver(nil)
	case existing.Source.IsLeave():
		entry.Source = LeaveSourceOver(existing.Source.Prior)
		entry.IsLocked = existing.IsLocked
	default:
		entry.Source = LeaveSourceOver(&PriorState{Kind: existing.Source.Kind, PresenceType: existing.PresenceType})
		entry.IsLocked = existing.IsLocked
	}
	return entry
}

// RevertEntry undoes a leave overlay. Nil means the entry should be deleted.
func RevertEntry(entry PresenceEntry) *PresenceEntry {
	if !entry.Source.IsLeave() {
		return &entry
	}
	restored, ok := entry.Source.Revert()
	if !ok {
		return nil
	}
	return &PresenceEntry{
		EntityID:     entry.EntityID,
		Date:         entry.Date,
		PresenceType: entry.Source.Prior.PresenceType,
		Source:       restored,
		IsLocked:     entry.IsLocked,
	}
}

// =============================================================================
// PRESENCE SERVICE
// =============================================================================

type PresenceService struct {
	Store  Store
	Leaves LeaveSource
	Logger zerolog.Logger
}

func NewPresenceService(store Store, leaves LeaveSource, logger zerolog.Logger) *PresenceService {
	return &PresenceService{Store: store, Leaves: leaves, Logger: logger.With().Str("component", "presence").Logger()}
}

// SetManual records an employee-chosen presence type for a day.
func (s *PresenceService) SetManual(ctx context.Context, entityID generic.EntityID, date generic.TimePoint,
	presenceType string, actor Actor) (*PresenceEntry, error) {

	pt, err := s.Store.GetPresenceType(ctx, presenceType)
	if err != nil {
		return nil, err
	}
	if pt == nil {
		return nil, &generic.NotFoundError{Kind: "presence type", ID: presenceType}
	}
	if pt.IsSystem || pt.RequiresLeaveApplication {
		return nil, generic.NewValidationError("presence_type", "not_selectable",
			"%s cannot be selected manually", presenceType)
	}

	existing, err := s.Store.GetPresence(ctx, entityID, date)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.IsLocked && !actor.Privileged {
			return nil, &generic.LockedError{Kind: "presence entry", ID: fmt.Sprintf("%s/%s", entityID, date)}
		}
		if existing.Source.IsLeave() {
			return nil, generic.NewValidationError("date", "leave_day",
				"%s is covered by leave application %s", date, existing.LeaveApplication)
		}
	}

	entry := PresenceEntry{EntityID: entityID, Date: date, PresenceType: presenceType, Source: ManualSource()}
	if existing != nil {
		entry.IsLocked = existing.IsLocked
	}
	if err := s.Store.SavePresence(ctx, entry); err != nil {
		return nil, fmt.Errorf("save presence: %w", err)
	}
	return &entry, nil
}

// AutoPresence returns the presence type the engine would assign on its
// own: approved leave first, then holidays.
func (s *PresenceService) AutoPresence(ctx context.Context, emp Employee, date generic.TimePoint,
	holidays HolidaySource) (presenceType string, source PresenceSource, leaveApp string, err error) {

	types, err := s.Store.ListPresenceTypes(ctx)
	if err != nil {
		return "", PresenceSource{}, "", err
	}

	if s.Leaves != nil {
		days, err := s.Leaves.ApprovedLeaveDays(ctx, emp.ID, generic.Period{Start: date, End: date})
		if err != nil {
			return "", PresenceSource{}, "", err
		}
		if len(days) > 0 && days[0].PresenceType != "" {
			return days[0].PresenceType, LeaveSourceOver(nil), days[0].ApplicationID, nil
		}
	}

	if holidays != nil {
		isHoliday, err := holidays.IsHoliday(ctx, emp.ID, date)
		if err != nil {
			return "", PresenceSource{}, "", err
		}
		if isHoliday {
			if pt := SystemPresenceType(types, RoleHoliday); pt != nil {
				return pt.Name, SystemSource(), "", nil
			}
		}
	}
	return "", PresenceSource{}, "", nil
}
