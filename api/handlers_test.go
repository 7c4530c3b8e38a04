/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Pattern save/commit and the week create/actuals/submit flow
- Balance endpoint after submission
- Authorization (HR-only routes, own records only)
- Error mapping (validation, not found, gates)
- Calendar import and xlsx export
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/flexitime-engine/flexitime"
	"github.com/warp/flexitime-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// Wednesday; the week of 2025-03-03 has elapsed.
var testNow = time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store := memory.New()
	h := NewHandler(store, flexitime.DefaultSettings(), nil, nil, zerolog.Nop())
	h.SetClock(func() time.Time { return testNow })
	require.NoError(t, h.Catalog.Install(context.Background(), store))
	return h
}

type header func(*http.Request)

func asHR(req *http.Request) {
	req.Header.Set("X-Employee-ID", "hr-1")
	req.Header.Set("X-Role", "hr_manager")
}

func asEmployee(id string) header {
	return func(req *http.Request) { req.Header.Set("X-Employee-ID", id) }
}

func do(t *testing.T, router http.Handler, method, path string, body any, headers ...header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, set := range headers {
		set(req)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var fullTimeHours = map[string]float64{
	"monday": 8, "tuesday": 8, "wednesday": 8, "thursday": 8, "friday": 8,
}

// seedAnna creates employee anna with a committed 40h pattern from 2025-03-03.
func seedAnna(t *testing.T, router http.Handler) WorkPatternDTO {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/employees",
		map[string]any{"id": "anna", "name": "Anna Keller", "email": "anna@example.ch"}, asHR)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/employees/anna/patterns", map[string]any{
		"fte_percentage": 100,
		"valid_from":     "2025-03-03",
		"hours":          fullTimeHours,
	}, asHR)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	draft := decode[WorkPatternDTO](t, rec)
	assert.Equal(t, "draft", draft.DocStatus)

	rec = do(t, router, http.MethodPost, "/api/patterns/"+draft.ID+"/commit", nil, asHR)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[WorkPatternDTO](t, rec)
}

// =============================================================================
// WEEK FLOW
// =============================================================================

func TestHealth(t *testing.T) {
	router := NewRouter(newTestHandler(t))

	rec := do(t, router, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestWeekFlow_CreateFillSubmit(t *testing.T) {
	// GIVEN: anna with a committed 40h pattern
	router := NewRouter(newTestHandler(t))
	pattern := seedAnna(t, router)
	assert.Equal(t, "submitted", pattern.DocStatus)
	assert.Equal(t, 40.0, pattern.WeeklyExpected)
	assert.Equal(t, 20.0, pattern.FlexitimeLimit)

	// WHEN: anna creates the week of 2025-03-03
	rec := do(t, router, http.MethodPost, "/api/employees/anna/weeks",
		map[string]string{"week_start": "2025-03-03"}, asEmployee("anna"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	week := decode[WeekDTO](t, rec)

	// THEN: it is a draft owing 40 hours over five days
	assert.Equal(t, "draft", week.DocStatus)
	assert.Equal(t, 40.0, week.TotalExpected)
	assert.Len(t, week.Days, 5)

	// WHEN: she records 8.5h per day
	actuals := map[string]float64{}
	for _, d := range week.Days {
		actuals[d.Date] = 8.5
	}
	rec = do(t, router, http.MethodPut, "/api/weeks/"+week.ID+"/actuals",
		map[string]any{"actuals": actuals}, asEmployee("anna"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	week = decode[WeekDTO](t, rec)
	assert.Equal(t, 42.5, week.TotalActual)
	assert.Equal(t, 2.5, week.WeeklyDelta)

	// AND: submits the week
	rec = do(t, router, http.MethodPost, "/api/weeks/"+week.ID+"/submit", nil, asEmployee("anna"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	week = decode[WeekDTO](t, rec)

	// THEN: the running balance carries the overtime
	assert.Equal(t, "submitted", week.DocStatus)
	assert.Equal(t, 2.5, week.RunningBalance)
	assert.NotNil(t, week.SubmittedAt)

	// AND: the balance endpoint reports it against the limit
	rec = do(t, router, http.MethodGet, "/api/employees/anna/balance", nil, asEmployee("anna"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	balance := decode[BalanceDTO](t, rec)
	assert.Equal(t, 2.5, balance.CurrentBalance)
	require.NotNil(t, balance.FlexitimeLimit)
	assert.Equal(t, 20.0, *balance.FlexitimeLimit)
	assert.Equal(t, "ok", balance.Level)
	require.NotNil(t, balance.LatestWeekStart)
	assert.Equal(t, "2025-03-03", *balance.LatestWeekStart)

	// AND: a second submit conflicts
	rec = do(t, router, http.MethodPost, "/api/weeks/"+week.ID+"/submit", nil, asEmployee("anna"))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitWeek_NotElapsed(t *testing.T) {
	// GIVEN: anna's draft for the current week
	router := NewRouter(newTestHandler(t))
	seedAnna(t, router)
	rec := do(t, router, http.MethodPost, "/api/employees/anna/weeks",
		map[string]string{"week_start": "2025-03-10"}, asEmployee("anna"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	week := decode[WeekDTO](t, rec)

	// WHEN: she submits before the week ended
	rec = do(t, router, http.MethodPost, "/api/weeks/"+week.ID+"/submit", nil, asEmployee("anna"))

	// THEN: the gate rejects it with a field error
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[struct {
		Code    string          `json:"code"`
		Details []FieldErrorDTO `json:"details"`
	}](t, rec)
	assert.Equal(t, "validation", resp.Code)
	require.Len(t, resp.Details, 1)
	assert.Equal(t, "not_elapsed", resp.Details[0].Code)
}

func TestExpectedHours_WithoutPattern(t *testing.T) {
	// GIVEN: an employee without any pattern
	router := NewRouter(newTestHandler(t))
	rec := do(t, router, http.MethodPost, "/api/employees",
		map[string]any{"id": "ben", "name": "Ben Meier"}, asHR)
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: expected hours are requested
	rec = do(t, router, http.MethodGet, "/api/employees/ben/expected-hours?date=2025-03-03", nil, asHR)

	// THEN: nothing is owed
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0.0, decode[ExpectedHoursDTO](t, rec).Expected)

	// WHEN: a default daily value is given
	rec = do(t, router, http.MethodGet,
		"/api/employees/ben/expected-hours?date=2025-03-03&default_daily_hours=8", nil, asHR)

	// THEN: the default stands in
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	expected := decode[ExpectedHoursDTO](t, rec)
	assert.Equal(t, 8.0, expected.Expected)
	assert.Equal(t, "default", expected.Source)
}

func TestExpectedHours_ExplicitLeave(t *testing.T) {
	router := NewRouter(newTestHandler(t))
	seedAnna(t, router)

	// Half-day leave not deducting from the balance halves the day
	rec := do(t, router, http.MethodGet,
		"/api/employees/anna/expected-hours?date=2025-03-04&leave=true&half_day=true", nil, asEmployee("anna"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 4.0, decode[ExpectedHoursDTO](t, rec).Expected)

	// Flex off keeps the full day owed
	rec = do(t, router, http.MethodGet,
		"/api/employees/anna/expected-hours?date=2025-03-04&leave=true&deducts=true", nil, asEmployee("anna"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 8.0, decode[ExpectedHoursDTO](t, rec).Expected)

	// Weekly expected
	rec = do(t, router, http.MethodGet, "/api/employees/anna/weekly-expected?week_start=2025-03-03", nil, asEmployee("anna"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 40.0, decode[WeeklyExpectedDTO](t, rec).Expected)
}

// =============================================================================
// AUTHORIZATION / ERRORS
// =============================================================================

func TestAuthorization(t *testing.T) {
	router := NewRouter(newTestHandler(t))
	pattern := seedAnna(t, router)

	t.Run("employee cannot cancel patterns", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/patterns/"+pattern.ID+"/cancel", nil, asEmployee("anna"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "forbidden", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("employee cannot read someone else", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/employees/anna/balance", nil, asEmployee("ben"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("employee only lists themselves", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/employees", nil, asEmployee("anna"))
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[[]EmployeeDTO](t, rec)
		require.Len(t, list, 1)
		assert.Equal(t, "anna", list[0].ID)
	})

	t.Run("audit is HR only", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/audit", nil, asEmployee("anna"))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, router, http.MethodGet, "/api/audit?employee_id=anna", nil, asHR)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, decode[[]AuditEntryDTO](t, rec))
	})
}

func TestRequestErrors(t *testing.T) {
	router := NewRouter(newTestHandler(t))
	seedAnna(t, router)

	t.Run("unknown field", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/employees",
			map[string]any{"id": "x", "name": "X", "salary": 1}, asHR)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "bad_request", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("missing required field", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/employees", map[string]any{"id": "x"}, asHR)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "bad_request", resp.Code)
		assert.Contains(t, resp.Details, "name")
	})

	t.Run("hours above a day", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/employees/anna/weeks",
			map[string]string{"week_start": "2025-03-03"}, asEmployee("anna"))
		require.Equal(t, http.StatusOK, rec.Code)
		week := decode[WeekDTO](t, rec)

		rec = do(t, router, http.MethodPut, "/api/weeks/"+week.ID+"/actuals",
			map[string]any{"actuals": map[string]float64{"2025-03-03": 25}}, asEmployee("anna"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("week start not a monday", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/employees/anna/weeks",
			map[string]string{"week_start": "2025-03-04"}, asEmployee("anna"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("unknown week", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/weeks/nope", nil, asHR)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("unknown employee", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/employees/ghost", nil, asHR)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// =============================================================================
// HOLIDAYS / EXPORT
// =============================================================================

const testFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//holidays//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:sechselaeuten@test\r\n" +
	"SUMMARY:Sechselaeuten\r\n" +
	"DTSTART;VALUE=DATE:20250428\r\n" +
	"DTEND;VALUE=DATE:20250429\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestImportCalendar_ICSBody(t *testing.T) {
	// GIVEN: a feed with a single holiday
	router := NewRouter(newTestHandler(t))
	req := httptest.NewRequest(http.MethodPost, "/api/calendars/ZH/import", strings.NewReader(testFeed))
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	asHR(req)

	// WHEN: HR imports it
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// THEN: it lands in the calendar
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[ImportResultDTO](t, rec)
	assert.Equal(t, "ZH", result.CalendarID)
	assert.Equal(t, 1, result.Imported)

	rec = do(t, router, http.MethodGet, "/api/calendars/ZH/holidays", nil, asHR)
	require.Equal(t, http.StatusOK, rec.Code)
	holidays := decode[[]HolidayDTO](t, rec)
	require.Len(t, holidays, 1)
	assert.Equal(t, "2025-04-28", holidays[0].Date)
}

func TestHolidayLowersExpectedHours(t *testing.T) {
	// GIVEN: anna on calendar CH with a holiday on Tuesday
	router := NewRouter(newTestHandler(t))
	seedAnna(t, router)
	rec := do(t, router, http.MethodPost, "/api/employees",
		map[string]any{"id": "anna", "name": "Anna Keller", "holiday_calendar_id": "CH"}, asHR)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, router, http.MethodPost, "/api/holidays",
		map[string]any{"calendar_id": "CH", "date": "2025-03-04", "name": "Test holiday"}, asHR)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: the week is created
	rec = do(t, router, http.MethodPost, "/api/employees/anna/weeks",
		map[string]string{"week_start": "2025-03-03"}, asEmployee("anna"))

	// THEN: the holiday is not owed
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 32.0, decode[WeekDTO](t, rec).TotalExpected)
}

func TestExportWeeks(t *testing.T) {
	router := NewRouter(newTestHandler(t))
	seedAnna(t, router)
	rec := do(t, router, http.MethodPost, "/api/employees/anna/weeks",
		map[string]string{"week_start": "2025-03-03"}, asEmployee("anna"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/employees/anna/weeks/export", nil, asEmployee("anna"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	// xlsx is a zip archive
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}
