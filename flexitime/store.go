/*
store.go - Persistence interfaces for the flexitime domain

PURPOSE:
  Defines the boundary between domain logic and the database. Lookups
  return (nil, nil) when a record is missing; services turn that into a
  NotFoundError where the record is required.

KEY INTERFACES:
  Store:   Every read/write the services need
  TxStore: Store plus WithTx for atomic multi-record changes
           (submit + cascade, leave approval + presence overlay)

ORDERING CONTRACT:
  - ListWorkPatterns: ascending ValidFrom
  - ListWeeks:        ascending WeekStart (then employee)
  - ListPresence:     ascending Date

IMPLEMENTATIONS:
  - store/sqlstore: sqlite3 / postgres
  - store/memory:   In-memory for tests

SEE ALSO:
  - generic/store.go: AuditLog
*/
package flexitime

import (
	"context"

	"github.com/warp/flexitime-engine/generic"
)

type EmployeeStore interface {
	SaveEmployee(ctx context.Context, emp Employee) error
	GetEmployee(ctx context.Context, id generic.EntityID) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	UpdateCurrentBalance(ctx context.Context, id generic.EntityID, balance generic.Amount) error

	SaveOrgUnit(ctx context.Context, unit OrgUnit) error
	GetOrgUnit(ctx context.Context, id string) (*OrgUnit, error)
}

type PatternStore interface {
	SaveWorkPattern(ctx context.Context, p WorkPattern) error
	GetWorkPattern(ctx context.Context, id string) (*WorkPattern, error)
	ListWorkPatterns(ctx context.Context, entityID generic.EntityID) ([]WorkPattern, error)
}

// WeekFilter narrows ListWeeks. Zero values mean "any".
type WeekFilter struct {
	EntityID *generic.EntityID
	From     *generic.TimePoint // week_start >= From
	To       *generic.TimePoint // week_start <= To
	Statuses []DocStatus
	Locked   *bool
}

type WeekStore interface {
	// SaveWeek upserts the week and replaces its daily records.
	SaveWeek(ctx context.Context, w WeeklyBalance) error
	GetWeek(ctx context.Context, entityID generic.EntityID, weekStart generic.TimePoint) (*WeeklyBalance, error)
	GetWeekByID(ctx context.Context, id string) (*WeeklyBalance, error)
	ListWeeks(ctx context.Context, filter WeekFilter) ([]WeeklyBalance, error)
}

type PresenceStore interface {
	SavePresence(ctx context.Context, entry PresenceEntry) error
	GetPresence(ctx context.Context, entityID generic.EntityID, date generic.TimePoint) (*PresenceEntry, error)
	ListPresence(ctx context.Context, entityID generic.EntityID, period generic.Period) ([]PresenceEntry, error)
	DeletePresence(ctx context.Context, entityID generic.EntityID, date generic.TimePoint) error

	// LockPresenceBefore locks every unlocked entry dated before date.
	LockPresenceBefore(ctx context.Context, date generic.TimePoint) (int64, error)

	SavePresenceType(ctx context.Context, pt PresenceType) error
	GetPresenceType(ctx context.Context, name string) (*PresenceType, error)
	ListPresenceTypes(ctx context.Context) ([]PresenceType, error)
}

type LeaveStore interface {
	SaveLeaveType(ctx context.Context, lt LeaveType) error
	GetLeaveType(ctx context.Context, name string) (*LeaveType, error)
	ListLeaveTypes(ctx context.Context) ([]LeaveType, error)

	SaveLeaveApplication(ctx context.Context, app LeaveApplication) error
	GetLeaveApplication(ctx context.Context, id string) (*LeaveApplication, error)
	// ListLeaveApplications returns applications of entityID overlapping period.
	ListLeaveApplications(ctx context.Context, entityID generic.EntityID, period generic.Period) ([]LeaveApplication, error)

	SaveLeaveAllocation(ctx context.Context, a LeaveAllocation) error
	ListLeaveAllocations(ctx context.Context, entityID generic.EntityID) ([]LeaveAllocation, error)
}

// Store is everything the services persist.
type Store interface {
	EmployeeStore
	PatternStore
	WeekStore
	PresenceStore
	LeaveStore
	generic.HolidayStore
	generic.AuditLog
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
