/*
handlers.go - HTTP API handlers for the flexitime engine

PURPOSE:
  Exposes the flexitime services via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the domain
  services in package flexitime.

ENDPOINTS:
  Employees:
    GET    /api/employees                          List employees
    POST   /api/employees                          Create or update employee (HR)
    GET    /api/employees/{id}                     Employee details
    GET    /api/employees/{id}/balance             Running balance vs. limit
    GET    /api/employees/{id}/expected-hours      Expected hours for a date
    GET    /api/employees/{id}/weekly-expected     Adjusted weekly expected hours
    GET    /api/employees/{id}/patterns            Work patterns
    POST   /api/employees/{id}/patterns            Save draft pattern (HR)
    GET    /api/employees/{id}/weeks               Weekly balances
    POST   /api/employees/{id}/weeks               Create (or fetch) a week
    GET    /api/employees/{id}/weeks/export        Weekly balances as xlsx
    GET    /api/employees/{id}/presence            Roll call entries
    PUT    /api/employees/{id}/presence/{date}     Choose presence type
    GET    /api/employees/{id}/leave               Leave applications
    POST   /api/employees/{id}/leave               Apply for leave
    GET    /api/employees/{id}/allocations         Leave allocations
    POST   /api/employees/{id}/allocations         Allocate leave (HR)

  Weeks:
    GET    /api/weeks/{id}                         Week with daily records
    PUT    /api/weeks/{id}/actuals                 Record hours (draft)
    POST   /api/weeks/{id}/submit|cancel           Lifecycle
    POST   /api/weeks/{id}/amend                   Change submitted week (HR)
    POST   /api/weeks/{id}/lock|unlock             Lock control (HR)

  Patterns, leave, catalog, holidays, audit, admin: see server.go.

ERROR HANDLING:
  Errors are returned as ErrorResponse with status from the error taxonomy
  in generic/errors.go:
  - 400: Validation errors, invalid input
  - 401: Missing or invalid credentials
  - 403: Forbidden or locked
  - 404: Not found
  - 409: Conflict
  - 422: Configuration missing (no work pattern)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Actor resolution
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/warp/flexitime-engine/calendar"
	"github.com/warp/flexitime-engine/export"
	"github.com/warp/flexitime-engine/factory"
	"github.com/warp/flexitime-engine/flexitime"
	"github.com/warp/flexitime-engine/generic"
)

// maxCalendarUpload bounds iCalendar bodies posted directly.
const maxCalendarUpload = 5 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the API needs: the engine store plus Reset for
// demo scenarios.
type Store interface {
	flexitime.TxStore
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Store
	Settings flexitime.Settings
	Catalog  *factory.Catalog
	Auth     *Authenticator
	Logger   zerolog.Logger

	Patterns *flexitime.PatternService
	Weeks    *flexitime.WeekService
	Leaves   *flexitime.LeaveService
	Presence *flexitime.PresenceService
	Jobs     *flexitime.Jobs

	// CORSOrigins allowed by the router. Empty means localhost dev origins.
	CORSOrigins []string

	clock flexitime.Clock

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the services over store. Auth defaults to demo mode.
func NewHandler(store Store, settings flexitime.Settings, catalog *factory.Catalog,
	publisher flexitime.EventPublisher, logger zerolog.Logger) *Handler {

	if publisher == nil {
		publisher = flexitime.NopPublisher{}
	}
	if catalog == nil {
		catalog = factory.DefaultCatalog()
	}
	weeks := flexitime.NewWeekService(store, settings, publisher, logger)
	return &Handler{
		Store:    store,
		Settings: settings,
		Catalog:  catalog,
		Auth:     &Authenticator{PrivilegedRole: "hr_manager"},
		Logger:   logger.With().Str("component", "api").Logger(),
		Patterns: flexitime.NewPatternService(store, settings, publisher, logger),
		Weeks:    weeks,
		Leaves:   flexitime.NewLeaveService(store, settings, publisher, logger),
		Presence: flexitime.NewPresenceService(store, flexitime.LeaveCalendar{Store: store}, logger),
		Jobs:     flexitime.NewJobs(store, weeks, settings, publisher, logger),
	}
}

// SetClock pins the clock of every service.
func (h *Handler) SetClock(clock flexitime.Clock) {
	h.clock = clock
	h.Patterns.Clock = clock
	h.Weeks.Clock = clock
	h.Leaves.Clock = clock
	h.Jobs.Clock = clock
}

func (h *Handler) today() generic.TimePoint { return h.clock.Today() }

func (h *Handler) engine() *flexitime.Engine {
	return flexitime.NewEngine(h.Store, h.Settings, h.Logger)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *requestError
	var validationErrs generic.ValidationErrors
	var validationErr *generic.ValidationError

	switch {
	case errors.As(err, &reqErr):
		var details any
		if len(reqErr.details) > 0 {
			details = reqErr.details
		}
		writeError(w, http.StatusBadRequest, "bad_request", reqErr.message, details)
	case errors.As(err, &validationErrs):
		details := make([]FieldErrorDTO, len(validationErrs))
		for i, e := range validationErrs {
			details[i] = FieldErrorDTO{Field: e.Field, Code: e.Code, Message: e.Message}
		}
		writeError(w, http.StatusBadRequest, "validation", err.Error(), details)
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation", err.Error(),
			[]FieldErrorDTO{{Field: validationErr.Field, Code: validationErr.Code, Message: validationErr.Message}})
	case errors.Is(err, generic.ErrInvalidPeriod):
		writeError(w, http.StatusBadRequest, "invalid_period", err.Error(), nil)
	case errors.Is(err, errUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", err.Error())
	case errors.Is(err, generic.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, generic.ErrLocked):
		writeError(w, http.StatusForbidden, "locked", err.Error(), nil)
	case errors.Is(err, generic.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, generic.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, generic.ErrConfigurationMissing):
		writeError(w, http.StatusUnprocessableEntity, "configuration_missing", err.Error(), nil)
	default:
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal", "Internal error", nil)
	}
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

func (h *Handler) requirePrivileged(w http.ResponseWriter, r *http.Request) (flexitime.Actor, bool) {
	actor := ActorFrom(r.Context())
	if !actor.Privileged {
		h.writeServiceError(w, r, fmt.Errorf("%s requires the HR role: %w", r.URL.Path, generic.ErrForbidden))
		return actor, false
	}
	return actor, true
}

// requireSelf lets employees act on their own records and HR on all.
func (h *Handler) requireSelf(w http.ResponseWriter, r *http.Request, entityID generic.EntityID) (flexitime.Actor, bool) {
	actor := ActorFrom(r.Context())
	if !actor.Privileged && actor.ID != string(entityID) {
		h.writeServiceError(w, r, fmt.Errorf("records of %s: %w", entityID, generic.ErrForbidden))
		return actor, false
	}
	return actor, true
}

func employeeParam(r *http.Request) generic.EntityID {
	return generic.EntityID(chi.URLParam(r, "id"))
}

// loadEmployee fetches the path employee after the access check.
func (h *Handler) loadEmployee(w http.ResponseWriter, r *http.Request) (*flexitime.Employee, flexitime.Actor, bool) {
	entityID := employeeParam(r)
	actor, ok := h.requireSelf(w, r, entityID)
	if !ok {
		return nil, actor, false
	}
	emp, err := h.Store.GetEmployee(r.Context(), entityID)
	if err == nil && emp == nil {
		err = &generic.NotFoundError{Kind: "employee", ID: string(entityID)}
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return nil, actor, false
	}
	return emp, actor, true
}

// loadWeek fetches the path week after the access check.
func (h *Handler) loadWeek(w http.ResponseWriter, r *http.Request) (*flexitime.WeeklyBalance, flexitime.Actor, bool) {
	id := chi.URLParam(r, "id")
	week, err := h.Store.GetWeekByID(r.Context(), id)
	if err == nil && week == nil {
		err = &generic.NotFoundError{Kind: "week", ID: id}
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return nil, flexitime.Actor{}, false
	}
	actor, ok := h.requireSelf(w, r, week.EntityID)
	return week, actor, ok
}

func (h *Handler) loadLeave(w http.ResponseWriter, r *http.Request) (*flexitime.LeaveApplication, flexitime.Actor, bool) {
	id := chi.URLParam(r, "id")
	app, err := h.Store.GetLeaveApplication(r.Context(), id)
	if err == nil && app == nil {
		err = &generic.NotFoundError{Kind: "leave application", ID: id}
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return nil, flexitime.Actor{}, false
	}
	actor, ok := h.requireSelf(w, r, app.EntityID)
	return app, actor, ok
}

// queryPeriod reads from/to query parameters, defaulting to def.
func queryPeriod(r *http.Request, def generic.Period) (generic.Period, error) {
	p := def
	if s := r.URL.Query().Get("from"); s != "" {
		from, err := parseDate("from", s)
		if err != nil {
			return p, err
		}
		p.Start = from
	}
	if s := r.URL.Query().Get("to"); s != "" {
		to, err := parseDate("to", s)
		if err != nil {
			return p, err
		}
		p.End = to
	}
	return p, p.Validate()
}

// Health reports liveness and, when the store supports it, connectivity.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if pinger, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		if err := pinger.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "Store unreachable", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns every employee to HR and the caller's own record
// to everybody else.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	actor := ActorFrom(r.Context())
	dtos := make([]EmployeeDTO, 0, len(employees))
	for _, e := range employees {
		if actor.Privileged || string(e.ID) == actor.ID {
			dtos = append(dtos, toEmployeeDTO(e))
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, _, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// CreateEmployee creates or updates an employee. The balance cache is
// owned by the balance chain and kept on update.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePrivileged(w, r); !ok {
		return
	}
	var req CreateEmployeeRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	ctx := r.Context()
	if req.OrgUnit != "" {
		unit, err := h.Store.GetOrgUnit(ctx, req.OrgUnit)
		if err == nil && unit == nil {
			err = generic.NewValidationError("org_unit", "unknown", "org unit %s does not exist", req.OrgUnit)
		}
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
	}

	emp := flexitime.Employee{
		ID:                generic.EntityID(req.ID),
		Name:              req.Name,
		Email:             req.Email,
		OrgUnit:           req.OrgUnit,
		HolidayCalendarID: req.HolidayCalendarID,
		Status:            flexitime.EmployeeStatus(req.Status),
		CurrentBalance:    generic.ZeroHours(),
	}
	if emp.Status == "" {
		emp.Status = flexitime.EmployeeActive
	}
	status := http.StatusCreated
	existing, err := h.Store.GetEmployee(ctx, emp.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if existing != nil {
		emp.CurrentBalance = existing.CurrentBalance
		status = http.StatusOK
	}
	if err := h.Store.SaveEmployee(ctx, emp); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, status, toEmployeeDTO(emp))
}

// GetBalance classifies the cached balance against today's flexitime limit.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	emp, _, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	dto := BalanceDTO{EmployeeID: string(emp.ID), CurrentBalance: emp.CurrentBalance.Float(), Level: "ok"}

	pattern, err := h.Patterns.Resolve(ctx, emp.ID, h.today())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if pattern != nil {
		limit := pattern.FlexitimeLimit.Float()
		dto.FlexitimeLimit = &limit
		if level := flexitime.CheckBalanceLimit(emp.CurrentBalance, pattern.FlexitimeLimit, h.Settings.BalanceWarningRatio); level != "" {
			dto.Level = string(level)
		}
	}

	weeks, err := h.Store.ListWeeks(ctx, flexitime.WeekFilter{
		EntityID: &emp.ID,
		Statuses: []flexitime.DocStatus{flexitime.StatusSubmitted},
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if n := len(weeks); n > 0 {
		start := weeks[n-1].WeekStart.String()
		dto.LatestWeekStart = &start
	}
	writeJSON(w, http.StatusOK, dto)
}

// ExpectedHours answers the expected hours of one date.
//
// Query: date (required); leave, half_day, deducts to describe a leave
// explicitly (otherwise approved leave is looked up); default_daily_hours
// stands in when no committed pattern covers the date.
func (h *Handler) ExpectedHours(w http.ResponseWriter, r *http.Request) {
	emp, _, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()
	date, err := parseDate("date", q.Get("date"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	engine := h.engine()

	var leave *flexitime.LeaveDay
	if q.Has("leave") {
		if q.Get("leave") == "true" {
			leave = &flexitime.LeaveDay{
				Date:               date,
				IsHalfDay:          q.Get("half_day") == "true",
				DeductsFromBalance: q.Get("deducts") == "true",
			}
		}
	} else {
		days, err := engine.Calc.Leaves.ApprovedLeaveDays(ctx, emp.ID, generic.Period{Start: date, End: date})
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if len(days) > 0 {
			leave = &days[0]
		}
	}

	dto := ExpectedHoursDTO{EmployeeID: string(emp.ID), Date: date.String(), Source: "pattern"}
	if s := q.Get("default_daily_hours"); s != "" {
		fallback, err := generic.ParseHours(s)
		if err != nil || fallback.IsNegative() {
			h.writeServiceError(w, r, generic.NewValidationError("default_daily_hours", "invalid", "%q is not a number of hours", s))
			return
		}
		pattern, err := h.Patterns.Resolve(ctx, emp.ID, date)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if pattern == nil {
			holiday, err := engine.Calc.Holidays.IsHoliday(ctx, emp.ID, date)
			if err != nil {
				h.writeServiceError(w, r, err)
				return
			}
			dto.Expected = flexitime.ExpectedForDay(fallback, holiday, leave).Float()
			dto.Source = "default"
			writeJSON(w, http.StatusOK, dto)
			return
		}
	}

	expected, err := engine.Calc.ExpectedHoursForDay(ctx, emp.ID, date, leave)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dto.Expected = expected.Float()
	writeJSON(w, http.StatusOK, dto)
}

// WeeklyExpected returns the adjusted weekly expected hours.
func (h *Handler) WeeklyExpected(w http.ResponseWriter, r *http.Request) {
	emp, _, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	weekStart, err := parseDate("week_start", r.URL.Query().Get("week_start"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	expected, err := h.engine().Calc.WeeklyExpectedHoursAdjusted(r.Context(), emp.ID, weekStart)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WeeklyExpectedDTO{
		EmployeeID: string(emp.ID), WeekStart: weekStart.String(), Expected: expected.Float(),
	})
}

// =============================================================================
// ORG UNIT HANDLERS
// =============================================================================

func (h *Handler) CreateOrgUnit(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePrivileged(w, r); !ok {
		return
	}
	var req CreateOrgUnitRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	unit := flexitime.OrgUnit{
		ID:                req.ID,
		Name:              req.Name,
		BaseWeeklyHours:   generic.NewHours(req.BaseWeeklyHours),
		HolidayCalendarID: req.HolidayCalendarID,
	}
	if unit.BaseWeeklyHours.IsZero() {
		unit.BaseWeeklyHours = h.Settings.BaseWeeklyHours
	}
	if err := h.Store.SaveOrgUnit(r.Context(), unit); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrgUnitDTO(unit))
}

func (h *Handler) GetOrgUnit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	unit, err := h.Store.GetOrgUnit(r.Context(), id)
	if err == nil && unit == nil {
		err = &generic.NotFoundError{Kind: "org unit", ID: id}
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrgUnitDTO(*unit))
}

func toOrgUnitDTO(u flexitime.OrgUnit) OrgUnitDTO {
	return OrgUnitDTO{
		ID:                u.ID,
		Name:              u.Name,
		BaseWeeklyHours:   u.BaseWeeklyHours.Float(),
		HolidayCalendarID: u.HolidayCalendarID,
	}
}

// =============================================================================
// WORK PATTERN HANDLERS
// =============================================================================

func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	emp, _, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	patterns, err := h.Store.ListWorkPatterns(r.Context(), emp.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]WorkPatternDTO, len(patterns))
	for i, p := range patterns {
		dtos[i] = toWorkPatternDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SavePattern stores a draft pattern. HR only.
func (h *Handler) SavePattern(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePrivileged(w, r); !ok {
		return
	}
	emp, _, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	var req SavePatternRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	pattern, err := req.toWorkPattern(emp.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if pattern.ID != "" {
		existing, err := h.Store.GetWorkPattern(r.Context(), pattern.ID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if existing != nil && existing.EntityID != emp.ID {
			h.writeServiceError(w, r, fmt.Errorf("pattern %s belongs to another employee: %w", pattern.ID, generic.ErrConflict))
			return
		}
	}
	saved, err := h.Patterns.Save(r.Context(), pattern)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkPatternDTO(*saved))
}

func (h *Handler) GetPattern(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pattern, err := h.Store.GetWorkPattern(r.Context(), id)
	if err == nil && pattern == nil {
		err = &generic.NotFoundError{Kind: "work pattern", ID: id}
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if _, ok := h.requireSelf(w, r, pattern.EntityID); !ok {
		return
	}
	writeJSON(w, http.StatusOK, toWorkPatternDTO(*pattern))
}

// CommitPattern makes a draft pattern authoritative. HR only.
func (h *Handler) CommitPattern(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePrivileged(w, r)
	if !ok {
		return
	}
	pattern, err := h.Patterns.Commit(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkPatternDTO(*pattern))
}

// CancelPattern withdraws a committed pattern. HR only.
func (h *Handler) CancelPattern(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePrivileged(w, r)
	if !ok {
		return
	}
	pattern, err := h.Patterns.Cancel(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkPatternDTO(*pattern))
}

// =============================================================================
// WEEK HANDLERS
// =============================================================================

// ListWeeks returns weeks of an employee, optionally filtered by
// ?status=draft,submitted and ?from / ?to on the week start.
func (h *Handler) ListWeeks(w http.ResponseWriter, r *http.Request) {
	emp, _, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	filter, err := weekFilter(r, emp.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	weeks, err := h.Store.ListWeeks(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]WeekDTO, len(weeks))
	for i, wk := range weeks {
		dtos[i] = toWeekDTO(wk)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func weekFilter(r *http.Request, entityID generic.EntityID) (flexitime.WeekFilter, error) {
	filter := flexitime.WeekFilter{EntityID: &entityID}
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		for _, st := range strings.Split(s, ",") {
			status := flexitime.DocStatus(strings.TrimSpace(st))
			switch status {
			case flexitime.StatusDraft, flexitime.StatusSubmitted, flexitime.StatusCancelled:
				filter.Statuses = append(filter.Statuses, status)
			default:
				return filter, generic.NewValidationError("status", "unknown", "unknown status %q", st)
			}
		}
	}
	var err error
	if filter.From, err = parseOptionalDate("from", q.Get("from")); err != nil {
		return filter, err
	}
	if filter.To, err = parseOptionalDate("to", q.Get("to")); err != nil {
		return filter, err
	}
	return filter, nil
}

// CreateWeek returns the week starting at week_start, creating the draft
// when missing.
func (h *Handler) CreateWeek(w http.ResponseWriter, r *http.Request) {
	emp, _, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	var req CreateWeekRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	weekStart, err := parseDate("week_start", req.WeekStart)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	week, err := h.Weeks.CreateWeek(r.Context(), emp.ID, weekStart)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWeekDTO(*week))
}

// ExportWeeks streams the weeks of an employee as an xlsx workbook.
func (h *Handler) ExportWeeks(w http.ResponseWriter, r *http.Request) {
	emp, _, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	filter, err := weekFilter(r, emp.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	weeks, err := h.Store.ListWeeks(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": export.Filename(*emp)}))
	if err := export.WriteWeeksWorkbook(w, *emp, weeks); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("employee", string(emp.ID)).Msg("export failed")
	}
}

func (h *Handler) GetWeek(w http.ResponseWriter, r *http.Request) {
	week, _, ok := h.loadWeek(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toWeekDTO(*week))
}

// UpdateActuals records hours on a draft week.
func (h *Handler) UpdateActuals(w http.ResponseWriter, r *http.Request) {
	week, actor, ok := h.loadWeek(w, r)
	if !ok {
		return
	}
	var req ActualsRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	updated, err := h.Weeks.UpdateActuals(r.Context(), week.ID, req.toActuals(), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWeekDTO(*updated))
}

// AmendWeek changes the hours of a submitted week and cascades. HR only.
func (h *Handler) AmendWeek(w http.ResponseWriter, r *http.Request) {
	week, actor, ok := h.loadWeek(w, r)
	if !ok {
		return
	}
	var req ActualsRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	amended, err := h.Weeks.Amend(r.Context(), week.ID, req.toActuals(), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWeekDTO(*amended))
}

type weekTransition func(ctx context.Context, weekID string, actor flexitime.Actor) (*flexitime.WeeklyBalance, error)

func (h *Handler) weekAction(w http.ResponseWriter, r *http.Request, transition weekTransition) {
	week, actor, ok := h.loadWeek(w, r)
	if !ok {
		return
	}
	result, err := transition(r.Context(), week.ID, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWeekDTO(*result))
}

func (h *Handler) SubmitWeek(w http.ResponseWriter, r *http.Request) { h.weekAction(w, r, h.Weeks.Submit) }

func (h *Handler) CancelWeek(w http.ResponseWriter, r *http.Request) { h.weekAction(w, r, h.Weeks.Cancel) }

func (h *Handler) LockWeek(w http.ResponseWriter, r *http.Request) { h.weekAction(w, r, h.Weeks.Lock) }

func (h *Handler) UnlockWeek(w http.ResponseWriter, r *http.Request) { h.weekAction(w, r, h.Weeks.Unlock) }

// =============================================================================
// PRESENCE HANDLERS
// =============================================================================

// ListPresence returns roll call entries, by default of the current week.
func (h *Handler) ListPresence(w http.ResponseWriter, r *http.Request) {
	emp, _, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	period, err := queryPeriod(r, generic.WeekOf(generic.MondayOf(h.today())))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	entries, err := h.Store.ListPresence(r.Context(), emp.ID, period)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]PresenceEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toPresenceEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SetPresence records the presence type the employee chose for a day.
func (h *Handler) SetPresence(w http.ResponseWriter, r *http.Request) {
	emp, actor, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	date, err := parseDate("date", chi.URLParam(r, "date"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	var req SetPresenceRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	entry, err := h.Presence.SetManual(r.Context(), emp.ID, date, req.PresenceType, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPresenceEntryDTO(*entry))
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// ListLeave returns applications overlapping ?from..?to, by default the
// current calendar year.
func (h *Handler) ListLeave(w http.ResponseWriter, r *http.Request) {
	emp, _, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	year := h.today().Year()
	def := generic.Period{
		Start: generic.NewTimePoint(year, 1, 1),
		End:   generic.NewTimePoint(year, 12, 31),
	}
	period, err := queryPeriod(r, def)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apps, err := h.Store.ListLeaveApplications(r.Context(), emp.ID, period)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]LeaveApplicationDTO, len(apps))
	for i, a := range apps {
		dtos[i] = toLeaveApplicationDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ApplyLeave(w http.ResponseWriter, r *http.Request) {
	emp, _, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	var req ApplyLeaveRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	app, err := req.toApplication(emp.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	created, err := h.Leaves.Apply(r.Context(), app)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveApplicationDTO(*created))
}

func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	app, _, ok := h.loadLeave(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toLeaveApplicationDTO(*app))
}

// ApproveLeave approves an open application. HR only.
func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePrivileged(w, r)
	if !ok {
		return
	}
	app, err := h.Leaves.Approve(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveApplicationDTO(*app))
}

// RejectLeave rejects an open application. HR only.
func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePrivileged(w, r)
	if !ok {
		return
	}
	app, err := h.Leaves.Reject(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveApplicationDTO(*app))
}

func (h *Handler) CancelLeave(w http.ResponseWriter, r *http.Request) {
	app, actor, ok := h.loadLeave(w, r)
	if !ok {
		return
	}
	cancelled, err := h.Leaves.Cancel(r.Context(), app.ID, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveApplicationDTO(*cancelled))
}

func (h *Handler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	emp, _, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	allocations, err := h.Store.ListLeaveAllocations(r.Context(), emp.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]AllocationDTO, len(allocations))
	for i, a := range allocations {
		dtos[i] = toAllocationDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Allocate grants leave days. HR only.
func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePrivileged(w, r); !ok {
		return
	}
	emp, _, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	var req AllocateRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	from, err := parseDate("from", req.From)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	to, err := parseDate("to", req.To)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	allocation, err := h.Leaves.Allocate(r.Context(), flexitime.LeaveAllocation{
		EntityID:       emp.ID,
		LeaveType:      req.LeaveType,
		From:           from,
		To:             to,
		NewLeaves:      generic.NewAmount(req.NewLeaves, generic.UnitDays),
		CarryForwarded: generic.NewAmount(req.CarryForwarded, generic.UnitDays),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAllocationDTO(*allocation))
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// GetCatalog returns the installed presence/leave catalog as JSON.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.NewCatalogFactory().ToJSON(h.Catalog))
}

func (h *Handler) ListPresenceTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Store.ListPresenceTypes(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]PresenceTypeDTO, len(types))
	for i, pt := range types {
		dtos[i] = toPresenceTypeDTO(pt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Store.ListLeaveTypes(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]LeaveTypeDTO, len(types))
	for i, lt := range types {
		dtos[i] = LeaveTypeDTO{Name: lt.Name, AllowZeroAllocation: lt.AllowZeroAllocation}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns the holidays of one calendar.
// GET /api/calendars/{id}/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Store.ListHolidays(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = toHolidayDTO(hol)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday adds or replaces one holiday. HR only.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePrivileged(w, r); !ok {
		return
	}
	var req CreateHolidayRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	holiday := generic.Holiday{
		ID:         req.ID,
		CalendarID: req.CalendarID,
		Date:       date,
		Name:       req.Name,
		Recurring:  req.Recurring,
	}
	if holiday.ID == "" {
		holiday.ID = fmt.Sprintf("%s-%s", holiday.CalendarID, date)
	}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTO(holiday))
}

// DeleteHoliday removes a holiday. HR only.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePrivileged(w, r); !ok {
		return
	}
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportCalendar loads holidays from an iCalendar feed into a calendar.
// The body is either the feed itself (Content-Type text/calendar) or
// {"url": "..."} naming a feed to download. HR only.
// POST /api/calendars/{id}/import
func (h *Handler) ImportCalendar(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePrivileged(w, r); !ok {
		return
	}
	ctx := r.Context()
	calendarID := chi.URLParam(r, "id")

	var feed io.Reader
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/calendar" {
		feed = http.MaxBytesReader(w, r.Body, maxCalendarUpload)
	} else {
		var req ImportCalendarRequest
		if err := decodeRequest(r, &req); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		body, err := calendar.Fetch(ctx, req.URL)
		if err != nil {
			writeError(w, http.StatusBadGateway, "fetch_failed", "Could not download calendar", err.Error())
			return
		}
		defer body.Close()
		feed = body
	}

	n, err := calendar.Import(ctx, h.Store, calendarID, feed)
	if err != nil {
		if errors.Is(err, generic.ErrValidation) || errors.Is(err, generic.ErrNotFound) {
			h.writeServiceError(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_calendar", "Could not import calendar", err.Error())
		return
	}
	hlog.FromRequest(r).Info().Str("calendar", calendarID).Int("holidays", n).Msg("calendar imported")
	writeJSON(w, http.StatusOK, ImportResultDTO{CalendarID: calendarID, Imported: n})
}

// =============================================================================
// AUDIT / ADMIN HANDLERS
// =============================================================================

// ListAudit queries the audit log. HR only.
// Query: employee_id, reference, action (repeatable), limit (default 100).
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePrivileged(w, r); !ok {
		return
	}
	q := r.URL.Query()
	filter := generic.AuditFilter{Limit: 100}
	if s := q.Get("employee_id"); s != "" {
		id := generic.EntityID(s)
		filter.EntityID = &id
	}
	if s := q.Get("reference"); s != "" {
		filter.Reference = &s
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, generic.AuditAction(a))
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			h.writeServiceError(w, r, generic.NewValidationError("limit", "invalid", "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	entries, err := h.Store.QueryAudit(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RunJobs triggers the scheduled jobs now. HR only.
func (h *Handler) RunJobs(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePrivileged(w, r); !ok {
		return
	}
	report, err := h.Jobs.RunDaily(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobReportDTO(report))
}
