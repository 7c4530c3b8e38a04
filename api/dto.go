/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the flexitime domain model from the external API contract. Hours travel
  as JSON numbers, dates as "YYYY-MM-DD".

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. decodeRequest runs
  them and folds field errors into the 400 response details. Business
  rules stay in the flexitime services.

SEE ALSO:
  - handlers.go: Uses these types
  - flexitime/types.go: Domain types
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/flexitime-engine/flexitime"
	"github.com/warp/flexitime-engine/generic"
)

// =============================================================================
// DECODING / VALIDATION
// =============================================================================

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// requestError is a malformed or invalid request body.
type requestError struct {
	message string
	details map[string]string
}

func (e *requestError) Error() string { return e.message }

// decodeRequest decodes the JSON body into v and validates it.
func decodeRequest(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &requestError{message: fmt.Sprintf("Invalid request body: %v", err)}
	}
	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return &requestError{message: err.Error()}
		}
		details := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[jsonFieldPath(fe)] = formatValidationError(fe)
		}
		return &requestError{message: "Invalid request", details: details}
	}
	return nil
}

// jsonFieldPath drops the struct name: "hours.monday".
func jsonFieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "datetime":
		return "must be a date (YYYY-MM-DD)"
	case "gte":
		return "must be at least " + e.Param()
	case "lte":
		return "must be at most " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "url":
		return "must be a valid URL"
	default:
		return "invalid value"
	}
}

func parseDate(field, s string) (generic.TimePoint, error) {
	tp, err := generic.ParseDate(s)
	if err != nil {
		return generic.TimePoint{}, generic.NewValidationError(field, "invalid_date", "%q is not a date (YYYY-MM-DD)", s)
	}
	return tp, nil
}

func parseOptionalDate(field, s string) (*generic.TimePoint, error) {
	if s == "" {
		return nil, nil
	}
	tp, err := parseDate(field, s)
	if err != nil {
		return nil, err
	}
	return &tp, nil
}

func optionalDateString(tp *generic.TimePoint) *string {
	if tp == nil {
		return nil
	}
	s := tp.String()
	return &s
}

func optionalTimeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// FieldErrorDTO is one rejected field of a domain validation error.
type FieldErrorDTO struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// EMPLOYEES / ORG UNITS
// =============================================================================

type EmployeeDTO struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Email             string  `json:"email,omitempty"`
	OrgUnit           string  `json:"org_unit,omitempty"`
	HolidayCalendarID string  `json:"holiday_calendar_id,omitempty"`
	Status            string  `json:"status"`
	CurrentBalance    float64 `json:"current_balance"`
}

func toEmployeeDTO(e flexitime.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:                string(e.ID),
		Name:              e.Name,
		Email:             e.Email,
		OrgUnit:           e.OrgUnit,
		HolidayCalendarID: e.HolidayCalendarID,
		Status:            string(e.Status),
		CurrentBalance:    e.CurrentBalance.Float(),
	}
}

type CreateEmployeeRequest struct {
	ID                string `json:"id" validate:"required,max=64"`
	Name              string `json:"name" validate:"required"`
	Email             string `json:"email" validate:"omitempty,email"`
	OrgUnit           string `json:"org_unit"`
	HolidayCalendarID string `json:"holiday_calendar_id"`
	Status            string `json:"status" validate:"omitempty,oneof=active inactive"`
}

type OrgUnitDTO struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	BaseWeeklyHours   float64 `json:"base_weekly_hours"`
	HolidayCalendarID string  `json:"holiday_calendar_id,omitempty"`
}

type CreateOrgUnitRequest struct {
	ID                string  `json:"id" validate:"required,max=64"`
	Name              string  `json:"name" validate:"required"`
	BaseWeeklyHours   float64 `json:"base_weekly_hours" validate:"gte=0,lte=168"`
	HolidayCalendarID string  `json:"holiday_calendar_id"`
}

// BalanceDTO summarises the running balance against the flexitime limit
// of the pattern active today.
type BalanceDTO struct {
	EmployeeID      string   `json:"employee_id"`
	CurrentBalance  float64  `json:"current_balance"`
	FlexitimeLimit  *float64 `json:"flexitime_limit,omitempty"`
	Level           string   `json:"level"`
	LatestWeekStart *string  `json:"latest_week_start,omitempty"`
}

type ExpectedHoursDTO struct {
	EmployeeID string  `json:"employee_id"`
	Date       string  `json:"date"`
	Expected   float64 `json:"expected"`
	// Source is "pattern", or "default" when the default_daily_hours
	// option stood in for a missing pattern.
	Source string `json:"source"`
}

type WeeklyExpectedDTO struct {
	EmployeeID string  `json:"employee_id"`
	WeekStart  string  `json:"week_start"`
	Expected   float64 `json:"expected"`
}

// =============================================================================
// WORK PATTERNS
// =============================================================================

type WeekHoursDTO struct {
	Monday    float64 `json:"monday" validate:"gte=0,lte=24"`
	Tuesday   float64 `json:"tuesday" validate:"gte=0,lte=24"`
	Wednesday float64 `json:"wednesday" validate:"gte=0,lte=24"`
	Thursday  float64 `json:"thursday" validate:"gte=0,lte=24"`
	Friday    float64 `json:"friday" validate:"gte=0,lte=24"`
	Saturday  float64 `json:"saturday" validate:"gte=0,lte=24"`
	Sunday    float64 `json:"sunday" validate:"gte=0,lte=24"`
}

func (d WeekHoursDTO) toWeekHours() flexitime.WeekHours {
	return flexitime.WeekHours{
		Monday:    generic.NewHours(d.Monday),
		Tuesday:   generic.NewHours(d.Tuesday),
		Wednesday: generic.NewHours(d.Wednesday),
		Thursday:  generic.NewHours(d.Thursday),
		Friday:    generic.NewHours(d.Friday),
		Saturday:  generic.NewHours(d.Saturday),
		Sunday:    generic.NewHours(d.Sunday),
	}
}

func toWeekHoursDTO(w flexitime.WeekHours) WeekHoursDTO {
	return WeekHoursDTO{
		Monday:    w.Monday.Float(),
		Tuesday:   w.Tuesday.Float(),
		Wednesday: w.Wednesday.Float(),
		Thursday:  w.Thursday.Float(),
		Friday:    w.Friday.Float(),
		Saturday:  w.Saturday.Float(),
		Sunday:    w.Sunday.Float(),
	}
}

type WorkPatternDTO struct {
	ID                     string       `json:"id"`
	EmployeeID             string       `json:"employee_id"`
	FTEPercentage          float64      `json:"fte_percentage"`
	ValidFrom              string       `json:"valid_from"`
	ValidTo                *string      `json:"valid_to,omitempty"`
	Hours                  WeekHoursDTO `json:"hours"`
	FlexitimeLimit         float64      `json:"flexitime_limit"`
	FlexitimeLimitOverride bool         `json:"flexitime_limit_override"`
	WeeklyExpected         float64      `json:"weekly_expected"`
	InitialBalance         float64      `json:"initial_balance"`
	Status                 string       `json:"status"`
	DocStatus              string       `json:"docstatus"`
	CreatedAt              string       `json:"created_at,omitempty"`
}

func toWorkPatternDTO(p flexitime.WorkPattern) WorkPatternDTO {
	dto := WorkPatternDTO{
		ID:                     p.ID,
		EmployeeID:             string(p.EntityID),
		FTEPercentage:          p.FTEPercentage.InexactFloat64(),
		ValidFrom:              p.ValidFrom.String(),
		ValidTo:                optionalDateString(p.ValidTo),
		Hours:                  toWeekHoursDTO(p.Hours),
		FlexitimeLimit:         p.FlexitimeLimit.Float(),
		FlexitimeLimitOverride: p.FlexitimeLimitOverride,
		WeeklyExpected:         p.WeeklyExpected.Float(),
		InitialBalance:         p.InitialBalance.Float(),
		Status:                 string(p.Status),
		DocStatus:              string(p.DocStatus),
	}
	if !p.CreatedAt.IsZero() {
		dto.CreatedAt = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

// SavePatternRequest creates a draft pattern, or updates the draft named
// by ID. FlexitimeLimit set overrides the derived limit.
type SavePatternRequest struct {
	ID             string       `json:"id"`
	FTEPercentage  float64      `json:"fte_percentage" validate:"gte=0,lte=200"`
	ValidFrom      string       `json:"valid_from" validate:"required,datetime=2006-01-02"`
	ValidTo        string       `json:"valid_to" validate:"omitempty,datetime=2006-01-02"`
	Hours          WeekHoursDTO `json:"hours"`
	FlexitimeLimit *float64     `json:"flexitime_limit" validate:"omitempty,gte=0"`
	InitialBalance float64      `json:"initial_balance"`
	Status         string       `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (req SavePatternRequest) toWorkPattern(entityID generic.EntityID) (flexitime.WorkPattern, error) {
	from, err := parseDate("valid_from", req.ValidFrom)
	if err != nil {
		return flexitime.WorkPattern{}, err
	}
	to, err := parseOptionalDate("valid_to", req.ValidTo)
	if err != nil {
		return flexitime.WorkPattern{}, err
	}
	p := flexitime.WorkPattern{
		ID:             req.ID,
		EntityID:       entityID,
		FTEPercentage:  decimal.NewFromFloat(req.FTEPercentage),
		ValidFrom:      from,
		ValidTo:        to,
		Hours:          req.Hours.toWeekHours(),
		InitialBalance: generic.NewHours(req.InitialBalance),
		Status:         flexitime.PatternStatus(req.Status),
	}
	if req.FlexitimeLimit != nil {
		p.FlexitimeLimit = generic.NewHours(*req.FlexitimeLimit)
		p.FlexitimeLimitOverride = true
	}
	return p, nil
}

// =============================================================================
// WEEKS
// =============================================================================

type DayDTO struct {
	Date             string  `json:"date"`
	Weekday          string  `json:"weekday"`
	PresenceType     string  `json:"presence_type,omitempty"`
	LeaveApplication string  `json:"leave_application,omitempty"`
	IsHalfDay        bool    `json:"is_half_day"`
	Expected         float64 `json:"expected"`
	Actual           float64 `json:"actual"`
	Difference       float64 `json:"difference"`
}

type WeekDTO struct {
	ID              string   `json:"id"`
	EmployeeID      string   `json:"employee_id"`
	WeekStart       string   `json:"week_start"`
	WeekEnd         string   `json:"week_end"`
	TotalActual     float64  `json:"total_actual"`
	TotalExpected   float64  `json:"total_expected"`
	WeeklyDelta     float64  `json:"weekly_delta"`
	PreviousBalance float64  `json:"previous_balance"`
	RunningBalance  float64  `json:"running_balance"`
	DocStatus       string   `json:"docstatus"`
	IsLocked        bool     `json:"is_locked"`
	LockedAt        *string  `json:"locked_at,omitempty"`
	SubmittedAt     *string  `json:"submitted_at,omitempty"`
	Days            []DayDTO `json:"days"`
	Warning         string   `json:"warning,omitempty"`
}

func toWeekDTO(w flexitime.WeeklyBalance) WeekDTO {
	dto := WeekDTO{
		ID:              w.ID,
		EmployeeID:      string(w.EntityID),
		WeekStart:       w.WeekStart.String(),
		WeekEnd:         w.WeekEnd.String(),
		TotalActual:     w.TotalActual.Float(),
		TotalExpected:   w.TotalExpected.Float(),
		WeeklyDelta:     w.WeeklyDelta.Float(),
		PreviousBalance: w.PreviousBalance.Float(),
		RunningBalance:  w.RunningBalance.Float(),
		DocStatus:       string(w.DocStatus),
		IsLocked:        w.IsLocked,
		LockedAt:        optionalTimeString(w.LockedAt),
		SubmittedAt:     optionalTimeString(w.SubmittedAt),
		Days:            make([]DayDTO, len(w.Days)),
	}
	for i, d := range w.Days {
		dto.Days[i] = DayDTO{
			Date:             d.Date.String(),
			Weekday:          d.Date.Weekday().String(),
			PresenceType:     d.PresenceType,
			LeaveApplication: d.LeaveApplication,
			IsHalfDay:        d.IsHalfDay,
			Expected:         d.Expected.Float(),
			Actual:           d.Actual.Float(),
			Difference:       d.Difference.Float(),
		}
	}
	if w.Inconsistency != nil {
		dto.Warning = w.Inconsistency.String()
	}
	return dto
}

type CreateWeekRequest struct {
	WeekStart string `json:"week_start" validate:"required,datetime=2006-01-02"`
}

// ActualsRequest maps "YYYY-MM-DD" to hours worked that day.
type ActualsRequest struct {
	Actuals map[string]float64 `json:"actuals" validate:"required,dive,keys,datetime=2006-01-02,endkeys,gte=0,lte=24"`
}

func (req ActualsRequest) toActuals() flexitime.Actuals {
	out := make(flexitime.Actuals, len(req.Actuals))
	for date, h := range req.Actuals {
		out[date] = generic.NewHours(h)
	}
	return out
}

// =============================================================================
// PRESENCE
// =============================================================================

type PresenceEntryDTO struct {
	EmployeeID        string `json:"employee_id"`
	Date              string `json:"date"`
	PresenceType      string `json:"presence_type"`
	Source            string `json:"source"`
	PriorSource       string `json:"prior_source,omitempty"`
	PriorPresenceType string `json:"prior_presence_type,omitempty"`
	LeaveApplication  string `json:"leave_application,omitempty"`
	IsHalfDay         bool   `json:"is_half_day"`
	IsLocked          bool   `json:"is_locked"`
}

func toPresenceEntryDTO(e flexitime.PresenceEntry) PresenceEntryDTO {
	dto := PresenceEntryDTO{
		EmployeeID:       string(e.EntityID),
		Date:             e.Date.String(),
		PresenceType:     e.PresenceType,
		Source:           string(e.Source.Kind),
		LeaveApplication: e.LeaveApplication,
		IsHalfDay:        e.IsHalfDay,
		IsLocked:         e.IsLocked,
	}
	if e.Source.Prior != nil {
		dto.PriorSource = string(e.Source.Prior.Kind)
		dto.PriorPresenceType = e.Source.Prior.PresenceType
	}
	return dto
}

type SetPresenceRequest struct {
	PresenceType string `json:"presence_type" validate:"required"`
}

type PresenceTypeDTO struct {
	Name                     string `json:"name"`
	Label                    string `json:"label,omitempty"`
	Icon                     string `json:"icon,omitempty"`
	Category                 string `json:"category"`
	IsSystem                 bool   `json:"is_system"`
	SystemRole               string `json:"system_role,omitempty"`
	RequiresLeaveApplication bool   `json:"requires_leave_application"`
	LeaveType                string `json:"leave_type,omitempty"`
	DeductsFromBalance       bool   `json:"deducts_from_balance"`
}

func toPresenceTypeDTO(pt flexitime.PresenceType) PresenceTypeDTO {
	return PresenceTypeDTO{
		Name:                     pt.Name,
		Label:                    pt.Label,
		Icon:                     pt.Icon,
		Category:                 string(pt.Category),
		IsSystem:                 pt.IsSystem,
		SystemRole:               pt.SystemRole,
		RequiresLeaveApplication: pt.RequiresLeaveApplication,
		LeaveType:                pt.LeaveType,
		DeductsFromBalance:       pt.DeductsFromBalance,
	}
}

// =============================================================================
// LEAVE
// =============================================================================

type LeaveTypeDTO struct {
	Name                string `json:"name"`
	AllowZeroAllocation bool   `json:"allow_zero_allocation"`
}

type LeaveApplicationDTO struct {
	ID          string  `json:"id"`
	EmployeeID  string  `json:"employee_id"`
	LeaveType   string  `json:"leave_type"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	HalfDay     bool    `json:"half_day"`
	HalfDayDate *string `json:"half_day_date,omitempty"`
	Status      string  `json:"status"`
	Reason      string  `json:"reason,omitempty"`
}

func toLeaveApplicationDTO(a flexitime.LeaveApplication) LeaveApplicationDTO {
	return LeaveApplicationDTO{
		ID:          a.ID,
		EmployeeID:  string(a.EntityID),
		LeaveType:   a.LeaveType,
		From:        a.From.String(),
		To:          a.To.String(),
		HalfDay:     a.HalfDay,
		HalfDayDate: optionalDateString(a.HalfDayDate),
		Status:      string(a.Status),
		Reason:      a.Reason,
	}
}

type ApplyLeaveRequest struct {
	LeaveType   string `json:"leave_type" validate:"required"`
	From        string `json:"from" validate:"required,datetime=2006-01-02"`
	To          string `json:"to" validate:"required,datetime=2006-01-02"`
	HalfDay     bool   `json:"half_day"`
	HalfDayDate string `json:"half_day_date" validate:"omitempty,datetime=2006-01-02"`
	Reason      string `json:"reason" validate:"max=500"`
}

func (req ApplyLeaveRequest) toApplication(entityID generic.EntityID) (flexitime.LeaveApplication, error) {
	from, err := parseDate("from", req.From)
	if err != nil {
		return flexitime.LeaveApplication{}, err
	}
	to, err := parseDate("to", req.To)
	if err != nil {
		return flexitime.LeaveApplication{}, err
	}
	halfDayDate, err := parseOptionalDate("half_day_date", req.HalfDayDate)
	if err != nil {
		return flexitime.LeaveApplication{}, err
	}
	return flexitime.LeaveApplication{
		EntityID:    entityID,
		LeaveType:   req.LeaveType,
		From:        from,
		To:          to,
		HalfDay:     req.HalfDay || halfDayDate != nil,
		HalfDayDate: halfDayDate,
		Reason:      req.Reason,
	}, nil
}

type AllocationDTO struct {
	ID             string  `json:"id"`
	EmployeeID     string  `json:"employee_id"`
	LeaveType      string  `json:"leave_type"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	NewLeaves      float64 `json:"new_leaves"`
	CarryForwarded float64 `json:"carry_forwarded"`
	TotalAllocated float64 `json:"total_allocated"`
	Unused         float64 `json:"unused"`
}

func toAllocationDTO(a flexitime.LeaveAllocation) AllocationDTO {
	return AllocationDTO{
		ID:             a.ID,
		EmployeeID:     string(a.EntityID),
		LeaveType:      a.LeaveType,
		From:           a.From.String(),
		To:             a.To.String(),
		NewLeaves:      a.NewLeaves.Float(),
		CarryForwarded: a.CarryForwarded.Float(),
		TotalAllocated: a.TotalAllocated.Float(),
		Unused:         a.Unused.Float(),
	}
}

type AllocateRequest struct {
	LeaveType      string  `json:"leave_type" validate:"required"`
	From           string  `json:"from" validate:"required,datetime=2006-01-02"`
	To             string  `json:"to" validate:"required,datetime=2006-01-02"`
	NewLeaves      float64 `json:"new_leaves" validate:"gte=0"`
	CarryForwarded float64 `json:"carry_forwarded" validate:"gte=0"`
}

// =============================================================================
// HOLIDAYS / AUDIT
// =============================================================================

type HolidayDTO struct {
	ID         string `json:"id"`
	CalendarID string `json:"calendar_id"`
	Date       string `json:"date"`
	Name       string `json:"name"`
	Recurring  bool   `json:"recurring"`
}

func toHolidayDTO(h generic.Holiday) HolidayDTO {
	return HolidayDTO{
		ID:         h.ID,
		CalendarID: h.CalendarID,
		Date:       h.Date.String(),
		Name:       h.Name,
		Recurring:  h.Recurring,
	}
}

type CreateHolidayRequest struct {
	ID         string `json:"id"`
	CalendarID string `json:"calendar_id" validate:"required"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	Name       string `json:"name" validate:"required"`
	Recurring  bool   `json:"recurring"`
}

// ImportCalendarRequest names an iCalendar feed to download.
type ImportCalendarRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type ImportResultDTO struct {
	CalendarID string `json:"calendar_id"`
	Imported   int    `json:"imported"`
}

type AuditEntryDTO struct {
	ID         string         `json:"id"`
	Timestamp  string         `json:"timestamp"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	EmployeeID string         `json:"employee_id"`
	Reference  string         `json:"reference,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func toAuditEntryDTO(e generic.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:         e.ID,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339),
		ActorID:    e.ActorID,
		Action:     string(e.Action),
		EmployeeID: string(e.EntityID),
		Reference:  e.Reference,
		Payload:    e.Payload,
	}
}

// =============================================================================
// ADMIN / SCENARIOS
// =============================================================================

type JobReportDTO struct {
	PresenceLocked   int64 `json:"presence_locked"`
	PresenceCreated  int   `json:"presence_created"`
	WeeksLocked      int   `json:"weeks_locked"`
	DraftsCreated    int   `json:"drafts_created"`
	BalancesUpdated  int   `json:"balances_updated"`
	TimesheetNotices int   `json:"timesheet_notices"`
	BalanceAlerts    int   `json:"balance_alerts"`
	Reminders        int   `json:"reminders"`
}

func toJobReportDTO(r flexitime.JobReport) JobReportDTO {
	return JobReportDTO(r)
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}
