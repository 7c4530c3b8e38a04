/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data: an org unit with its Swiss holiday calendar, employees with
	committed work patterns, several weeks of submitted hours and, for
	some, approved leave ahead.

AVAILABLE SCENARIOS:

	full-time:     42h week, six submitted weeks with small overtime
	part-time-80:  80% FTE, Fridays off, one undertime week
	flex-off:      Full time with a positive balance, Flex Off and
	               Vacation approved for the coming weeks

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Reinstall the catalog (leave and presence types)
 3. Create org unit and holidays
 4. Create employee, save and commit its pattern
 5. Create, fill and submit past weeks in order
 6. Optionally apply and approve leave

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "part-time-80"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and its services
  - factory/catalog.go: Default catalog
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"
	"github.com/shopspring/decimal"
	"github.com/warp/flexitime-engine/flexitime"
	"github.com/warp/flexitime-engine/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "full-time",
		Name:        "Full Time",
		Description: "42h week, six submitted weeks with small overtime",
	},
	{
		ID:          "part-time-80",
		Name:        "Part Time 80%",
		Description: "Monday to Thursday, Fridays off, one undertime week",
	},
	{
		ID:          "flex-off",
		Name:        "Flex Off",
		Description: "Positive balance with Flex Off and Vacation approved ahead",
	},
}

const (
	scenarioOrgUnit  = "ch"
	scenarioCalendar = "CH"
	scenarioWeeks    = 6
)

// swissHolidays are the federal and widely observed holidays that fall on
// a fixed date.
var swissHolidays = []struct {
	month time.Month
	day   int
	name  string
}{
	{time.January, 1, "Neujahr"},
	{time.January, 2, "Berchtoldstag"},
	{time.August, 1, "Bundesfeiertag"},
	{time.December, 25, "Weihnachten"},
	{time.December, 26, "Stephanstag"},
}

type scenarioLoader func(ctx context.Context, h *Handler) error

var scenarioLoaders = map[string]scenarioLoader{
	"full-time":    loadFullTimeScenario,
	"part-time-80": loadPartTimeScenario,
	"flex-off":     loadFlexOffScenario,
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the id of the last loaded scenario.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": current})
}

// LoadScenario resets the store and seeds a scenario. HR only.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePrivileged(w, r); !ok {
		return
	}
	var req LoadScenarioRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	hlog.FromRequest(r).Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": req.ScenarioID, "status": "loaded"})
}

// ResetDatabase clears the store and reinstalls the catalog. HR only.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePrivileged(w, r); !ok {
		return
	}
	if err := h.reset(r.Context()); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// LoadScenarioByID resets the store and runs the loader of id.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	load, ok := scenarioLoaders[id]
	if !ok {
		return &generic.NotFoundError{Kind: "scenario", ID: id}
	}
	if err := h.reset(ctx); err != nil {
		return err
	}
	if err := seedOrgUnit(ctx, h); err != nil {
		return err
	}
	if err := load(ctx, h); err != nil {
		return fmt.Errorf("load scenario %s: %w", id, err)
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	return nil
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	if err := h.Catalog.Install(ctx, h.Store); err != nil {
		return fmt.Errorf("install catalog: %w", err)
	}
	return nil
}

// =============================================================================
// SEED HELPERS
// =============================================================================

func seedOrgUnit(ctx context.Context, h *Handler) error {
	if err := h.Store.SaveOrgUnit(ctx, flexitime.OrgUnit{
		ID:                scenarioOrgUnit,
		Name:              "Zürich",
		BaseWeeklyHours:   generic.NewHours(42),
		HolidayCalendarID: scenarioCalendar,
	}); err != nil {
		return fmt.Errorf("save org unit: %w", err)
	}
	for _, hol := range swissHolidays {
		date := generic.NewTimePoint(2000, hol.month, hol.day)
		if err := h.Store.SaveHoliday(ctx, generic.Holiday{
			ID:         fmt.Sprintf("%s-%02d-%02d", scenarioCalendar, hol.month, hol.day),
			CalendarID: scenarioCalendar,
			Date:       date,
			Name:       hol.name,
			Recurring:  true,
		}); err != nil {
			return fmt.Errorf("save holiday %s: %w", hol.name, err)
		}
	}
	return nil
}

// firstScenarioWeek is the Monday scenarioWeeks before the current week.
func (h *Handler) firstScenarioWeek() generic.TimePoint {
	return generic.MondayOf(h.today()).AddDays(-7 * scenarioWeeks)
}

func seedEmployee(ctx context.Context, h *Handler, id, name string, fte int64, hours flexitime.WeekHours) error {
	if err := h.Store.SaveEmployee(ctx, flexitime.Employee{
		ID:                generic.EntityID(id),
		Name:              name,
		Email:             id + "@example.ch",
		OrgUnit:           scenarioOrgUnit,
		HolidayCalendarID: scenarioCalendar,
		Status:            flexitime.EmployeeActive,
		CurrentBalance:    generic.ZeroHours(),
	}); err != nil {
		return fmt.Errorf("save employee: %w", err)
	}

	pattern, err := h.Patterns.Save(ctx, flexitime.WorkPattern{
		EntityID:      generic.EntityID(id),
		FTEPercentage: decimal.NewFromInt(fte),
		ValidFrom:     h.firstScenarioWeek(),
		Hours:         hours,
	})
	if err != nil {
		return err
	}
	_, err = h.Patterns.Commit(ctx, pattern.ID, flexitime.SystemActor)
	return err
}

// seedWeeks submits the past weeks in order. deltas[i] is added to the
// first working day of week i.
func seedWeeks(ctx context.Context, h *Handler, id string, deltas []float64) error {
	start := h.firstScenarioWeek()
	for i := 0; i < scenarioWeeks; i++ {
		weekStart := start.AddDays(7 * i)
		week, err := h.Weeks.CreateWeek(ctx, generic.EntityID(id), weekStart)
		if err != nil {
			return err
		}

		var delta float64
		if i < len(deltas) {
			delta = deltas[i]
		}
		actuals := flexitime.Actuals{}
		for _, d := range week.Days {
			if d.LeaveApplication != "" || !d.Expected.IsPositive() {
				continue
			}
			actual := d.Expected.Add(generic.NewHours(delta)).FloorZero()
			delta = 0
			actuals[d.Date.String()] = actual
		}
		if _, err := h.Weeks.UpdateActuals(ctx, week.ID, actuals, flexitime.SystemActor); err != nil {
			return err
		}
		if _, err := h.Weeks.Submit(ctx, week.ID, flexitime.SystemActor); err != nil {
			return err
		}
	}
	return nil
}

func seedLeave(ctx context.Context, h *Handler, id, leaveType string, from, to generic.TimePoint) error {
	app, err := h.Leaves.Apply(ctx, flexitime.LeaveApplication{
		EntityID:  generic.EntityID(id),
		LeaveType: leaveType,
		From:      from,
		To:        to,
		Reason:    "demo",
	})
	if err != nil {
		return err
	}
	_, err = h.Leaves.Approve(ctx, app.ID, flexitime.SystemActor)
	return err
}

// =============================================================================
// LOADERS
// =============================================================================

func loadFullTimeScenario(ctx context.Context, h *Handler) error {
	if err := seedEmployee(ctx, h, "anna", "Anna Keller", 100, flexitime.UniformWeek(8.4)); err != nil {
		return err
	}
	return seedWeeks(ctx, h, "anna", []float64{0.5, 1, -0.25, 0, 0.75, 0.5})
}

func loadPartTimeScenario(ctx context.Context, h *Handler) error {
	hours := flexitime.UniformWeek(8.4).Set(time.Friday, generic.ZeroHours())
	if err := seedEmployee(ctx, h, "ben", "Ben Meier", 80, hours); err != nil {
		return err
	}
	return seedWeeks(ctx, h, "ben", []float64{0, 0.5, -2, 0.25, 0, 0})
}

func loadFlexOffScenario(ctx context.Context, h *Handler) error {
	if err := seedEmployee(ctx, h, "carla", "Carla Rossi", 100, flexitime.UniformWeek(8.4)); err != nil {
		return err
	}
	if err := seedWeeks(ctx, h, "carla", []float64{2, 1.5, 2, 1, 2.5, 1}); err != nil {
		return err
	}

	thisMonday := generic.MondayOf(h.today())
	if _, err := h.Leaves.Allocate(ctx, flexitime.LeaveAllocation{
		EntityID:  "carla",
		LeaveType: "Vacation",
		From:      generic.NewTimePoint(thisMonday.Year(), time.January, 1),
		To:        generic.NewTimePoint(thisMonday.Year(), time.December, 31),
		NewLeaves: generic.NewAmount(25, generic.UnitDays),
	}); err != nil {
		return err
	}

	nextMonday := thisMonday.AddDays(7)
	if err := seedLeave(ctx, h, "carla", "Flex Off", nextMonday, nextMonday); err != nil {
		return err
	}
	return seedLeave(ctx, h, "carla", "Vacation", nextMonday.AddDays(7), nextMonday.AddDays(11))
}
