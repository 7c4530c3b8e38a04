/*
Package flexitime computes expected hours and running flexitime balances.

PURPOSE:
  Given an employee's work pattern, holidays, approved leave and FTE
  percentage, the package derives how many hours were owed for a day or a
  week and chains a signed overtime/undertime balance week over week,
  recomputing later weeks whenever an earlier one changes.

KEY CONCEPTS IN THIS FILE (types.go):
  - WorkPattern: contracted hours per weekday for a validity window
  - WeeklyBalance / DailyRecord: one week of actual vs expected hours
  - Employee / OrgUnit: who the balance belongs to, base weekly hours
  - LeaveDay: one approved leave day as seen by the calculators
  - Actor: who is acting, and whether gates may be bypassed

DATA FLOW:
  PatternSource + HolidaySource + LeaveSource
      -> Calculator (expected.go, weekly.go)
      -> WeekBuilder (week.go)
      -> BalanceChain (balance.go)

SEE ALSO:
  - pattern.go: validation and resolution of work patterns
  - submit.go: week lifecycle and gates
  - presence.go: presence entries and their source variant
*/
package flexitime

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/flexitime-engine/generic"
)

// DefaultBaseWeeklyHours applies when an org unit has no baseline.
var DefaultBaseWeeklyHours = generic.NewHours(40)

// DocStatus is the commit state shared by patterns and weeks.
type DocStatus string

const (
	StatusDraft     DocStatus = "draft"
	StatusSubmitted DocStatus = "submitted"
	StatusCancelled DocStatus = "cancelled"
)

// =============================================================================
// EMPLOYEE / ORG UNIT
// =============================================================================

type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeInactive EmployeeStatus = "inactive"
)

type Employee struct {
	ID                generic.EntityID
	Name              string
	Email             string
	OrgUnit           string
	HolidayCalendarID string
	Status            EmployeeStatus

	// CurrentBalance caches the running balance of the latest submitted
	// week. Only the balance chain writes it.
	CurrentBalance generic.Amount
}

func (e Employee) IsActive() bool { return e.Status != EmployeeInactive }

// OrgUnit carries the organisation-wide baseline for its members.
type OrgUnit struct {
	ID                string
	Name              string
	BaseWeeklyHours   generic.Amount
	HolidayCalendarID string
}

// =============================================================================
// WORK PATTERN
// =============================================================================

// WeekHours holds contracted hours per weekday.
type WeekHours struct {
	Monday    generic.Amount
	Tuesday   generic.Amount
	Wednesday generic.Amount
	Thursday  generic.Amount
	Friday    generic.Amount
	Saturday  generic.Amount
	Sunday    generic.Amount
}

// UniformWeek returns Mon..Fri at perDay and a free weekend.
func UniformWeek(perDay float64) WeekHours {
	h := generic.NewHours(perDay)
	z := generic.ZeroHours()
	return WeekHours{Monday: h, Tuesday: h, Wednesday: h, Thursday: h, Friday: h, Saturday: z, Sunday: z}
}

func (w WeekHours) For(day time.Weekday) generic.Amount {
	var a generic.Amount
	switch day {
	case time.Monday:
		a = w.Monday
	case time.Tuesday:
		a = w.Tuesday
	case time.Wednesday:
		a = w.Wednesday
	case time.Thursday:
		a = w.Thursday
	case time.Friday:
		a = w.Friday
	case time.Saturday:
		a = w.Saturday
	case time.Sunday:
		a = w.Sunday
	}
	if a.Unit == "" {
		a.Unit = generic.UnitHours
	}
	return a
}

// Set returns a copy with day set to hours.
func (w WeekHours) Set(day time.Weekday, hours generic.Amount) WeekHours {
	switch day {
	case time.Monday:
		w.Monday = hours
	case time.Tuesday:
		w.Tuesday = hours
	case time.Wednesday:
		w.Wednesday = hours
	case time.Thursday:
		w.Thursday = hours
	case time.Friday:
		w.Friday = hours
	case time.Saturday:
		w.Saturday = hours
	case time.Sunday:
		w.Sunday = hours
	}
	return w
}

// Weekdays lists Monday..Sunday in order.
var Weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

func (w WeekHours) Total() generic.Amount {
	total := generic.ZeroHours()
	for _, d := range Weekdays {
		total = total.Add(w.For(d))
	}
	return total
}

// WorkDays counts weekdays with contracted hours > 0.
func (w WeekHours) WorkDays() int {
	n := 0
	for _, d := range Weekdays {
		if w.For(d).IsPositive() {
			n++
		}
	}
	return n
}

type PatternStatus string

const (
	PatternActive   PatternStatus = "active"
	PatternInactive PatternStatus = "inactive"
)

type WorkPattern struct {
	ID            string
	EntityID      generic.EntityID
	FTEPercentage decimal.Decimal
	ValidFrom     generic.TimePoint
	ValidTo       *generic.TimePoint
	Hours         WeekHours

	FlexitimeLimit         generic.Amount
	FlexitimeLimitOverride bool
	WeeklyExpected         generic.Amount
	InitialBalance         generic.Amount

	Status    PatternStatus
	DocStatus DocStatus
	CreatedAt time.Time
}

func (p WorkPattern) Validity() generic.Validity {
	return generic.Validity{From: p.ValidFrom, To: p.ValidTo}
}

func (p WorkPattern) Covers(date generic.TimePoint) bool { return p.Validity().Contains(date) }

func (p WorkPattern) HoursFor(date generic.TimePoint) generic.Amount {
	return p.Hours.For(date.Weekday())
}

func (p WorkPattern) IsCommitted() bool { return p.DocStatus == StatusSubmitted }

// =============================================================================
// WEEKLY BALANCE
// =============================================================================

// DailyRecord is one Mon..Fri row of a week.
type DailyRecord struct {
	Date             generic.TimePoint
	PresenceType     string
	LeaveApplication string
	IsHalfDay        bool
	Expected         generic.Amount
	Actual           generic.Amount
	Difference       generic.Amount
}

type WeeklyBalance struct {
	ID              string
	EntityID        generic.EntityID
	WeekStart       generic.TimePoint
	WeekEnd         generic.TimePoint
	TotalActual     generic.Amount
	TotalExpected   generic.Amount
	WeeklyDelta     generic.Amount
	PreviousBalance generic.Amount
	RunningBalance  generic.Amount
	DocStatus       DocStatus
	IsLocked        bool
	LockedAt        *time.Time
	SubmittedAt     *time.Time
	Days            []DailyRecord

	// Inconsistency is set by Totals when the adjusted total and the daily
	// sum disagree. Not persisted.
	Inconsistency *generic.InconsistencyWarning
}

func (w WeeklyBalance) Period() generic.Period { return generic.WeekOf(w.WeekStart) }

func (w WeeklyBalance) IsSubmitted() bool { return w.DocStatus == StatusSubmitted }

func (w WeeklyBalance) IsDraft() bool { return w.DocStatus == StatusDraft }

// Day returns the record for date, or nil.
func (w *WeeklyBalance) Day(date generic.TimePoint) *DailyRecord {
	for i := range w.Days {
		if w.Days[i].Date.Equal(date) {
			return &w.Days[i]
		}
	}
	return nil
}

// =============================================================================
// LEAVE DAY / ACTOR
// =============================================================================

// LeaveDay is one approved leave day inside a queried range.
type LeaveDay struct {
	Date               generic.TimePoint
	IsHalfDay          bool
	DeductsFromBalance bool
	ApplicationID      string
	PresenceType       string
}

// Actor identifies who triggers a mutation. Privileged actors (HR) bypass
// the submission gates and may lock, unlock and amend.
type Actor struct {
	ID         string
	Privileged bool
}

// SystemActor is used by scheduled jobs.
var SystemActor = Actor{ID: "system", Privileged: true}
