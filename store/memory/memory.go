// Package memory provides an in-memory flexitime.TxStore for tests and demos.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/flexitime-engine/flexitime"
	"github.com/warp/flexitime-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type presenceKey struct {
	EntityID generic.EntityID
	Date     string
}

type state struct {
	employees     map[generic.EntityID]flexitime.Employee
	orgUnits      map[string]flexitime.OrgUnit
	patterns      map[string]flexitime.WorkPattern
	weeks         map[string]flexitime.WeeklyBalance
	presence      map[presenceKey]flexitime.PresenceEntry
	presenceTypes map[string]flexitime.PresenceType
	leaveTypes    map[string]flexitime.LeaveType
	leaveApps     map[string]flexitime.LeaveApplication
	allocations   map[string]flexitime.LeaveAllocation
	holidays      map[string]generic.Holiday
	audit         []generic.AuditEntry
}

func newState() *state {
	return &state{
		employees:     map[generic.EntityID]flexitime.Employee{},
		orgUnits:      map[string]flexitime.OrgUnit{},
		patterns:      map[string]flexitime.WorkPattern{},
		weeks:         map[string]flexitime.WeeklyBalance{},
		presence:      map[presenceKey]flexitime.PresenceEntry{},
		presenceTypes: map[string]flexitime.PresenceType{},
		leaveTypes:    map[string]flexitime.LeaveType{},
		leaveApps:     map[string]flexitime.LeaveApplication{},
		allocations:   map[string]flexitime.LeaveAllocation{},
		holidays:      map[string]generic.Holiday{},
	}
}

func cloneMap[K comparable, V any](m map[K]V, copyValue func(V) V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func same[V any](v V) V { return v }

func (s *state) clone() *state {
	return &state{
		employees:     cloneMap(s.employees, same[flexitime.Employee]),
		orgUnits:      cloneMap(s.orgUnits, same[flexitime.OrgUnit]),
		patterns:      cloneMap(s.patterns, same[flexitime.WorkPattern]),
		weeks:         cloneMap(s.weeks, copyWeek),
		presence:      cloneMap(s.presence, same[flexitime.PresenceEntry]),
		presenceTypes: cloneMap(s.presenceTypes, same[flexitime.PresenceType]),
		leaveTypes:    cloneMap(s.leaveTypes, same[flexitime.LeaveType]),
		leaveApps:     cloneMap(s.leaveApps, same[flexitime.LeaveApplication]),
		allocations:   cloneMap(s.allocations, same[flexitime.LeaveAllocation]),
		holidays:      cloneMap(s.holidays, same[generic.Holiday]),
		audit:         append([]generic.AuditEntry(nil), s.audit...),
	}
}

func copyWeek(w flexitime.WeeklyBalance) flexitime.WeeklyBalance {
	w.Days = append([]flexitime.DailyRecord(nil), w.Days...)
	w.Inconsistency = nil
	return w
}

// Memory is safe for concurrent use. Transactions run on a private copy of
// the state that replaces the shared one when fn succeeds; fn must only use
// the Store it is handed.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

func New() *Memory {
	return &Memory{s: newState()}
}

var _ flexitime.TxStore = (*Memory)(nil)

func (m *Memory) WithTx(ctx context.Context, fn func(flexitime.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := &Memory{s: m.s.clone()}
	if err := fn(view); err != nil {
		return err
	}
	m.s = view.s
	return nil
}

// Reset drops every record.
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = newState()
	return nil
}

// =============================================================================
// EMPLOYEES / ORG UNITS
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, emp flexitime.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.employees[emp.ID] = emp
	return nil
}

func (m *Memory) GetEmployee(_ context.Context, id generic.EntityID) (*flexitime.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	emp, ok := m.s.employees[id]
	if !ok {
		return nil, nil
	}
	return &emp, nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]flexitime.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]flexitime.Employee, 0, len(m.s.employees))
	for _, e := range m.s.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateCurrentBalance(_ context.Context, id generic.EntityID, balance generic.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	emp, ok := m.s.employees[id]
	if !ok {
		return &generic.NotFoundError{Kind: "employee", ID: string(id)}
	}
	emp.CurrentBalance = balance
	m.s.employees[id] = emp
	return nil
}

func (m *Memory) SaveOrgUnit(_ context.Context, unit flexitime.OrgUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.orgUnits[unit.ID] = unit
	return nil
}

func (m *Memory) GetOrgUnit(_ context.Context, id string) (*flexitime.OrgUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	unit, ok := m.s.orgUnits[id]
	if !ok {
		return nil, nil
	}
	return &unit, nil
}

// =============================================================================
// WORK PATTERNS
// =============================================================================

func (m *Memory) SaveWorkPattern(_ context.Context, p flexitime.WorkPattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.patterns[p.ID] = p
	return nil
}

func (m *Memory) GetWorkPattern(_ context.Context, id string) (*flexitime.WorkPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.s.patterns[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) ListWorkPatterns(_ context.Context, entityID generic.EntityID) ([]flexitime.WorkPattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []flexitime.WorkPattern
	for _, p := range m.s.patterns {
		if p.EntityID == entityID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ValidFrom.Equal(out[j].ValidFrom) {
			return out[i].ID < out[j].ID
		}
		return out[i].ValidFrom.Before(out[j].ValidFrom)
	})
	return out, nil
}

// =============================================================================
// WEEKS
// =============================================================================

func (m *Memory) SaveWeek(_ context.Context, w flexitime.WeeklyBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, other := range m.s.weeks {
		if id != w.ID && other.EntityID == w.EntityID && other.WeekStart.Equal(w.WeekStart) {
			return fmt.Errorf("week %s of %s exists as %s: %w", w.WeekStart, w.EntityID, id, generic.ErrConflict)
		}
	}
	m.s.weeks[w.ID] = copyWeek(w)
	return nil
}

func (m *Memory) GetWeek(_ context.Context, entityID generic.EntityID, weekStart generic.TimePoint) (*flexitime.WeeklyBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.s.weeks {
		if w.EntityID == entityID && w.WeekStart.Equal(weekStart) {
			found := copyWeek(w)
			return &found, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetWeekByID(_ context.Context, id string) (*flexitime.WeeklyBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.s.weeks[id]
	if !ok {
		return nil, nil
	}
	found := copyWeek(w)
	return &found, nil
}

func (m *Memory) ListWeeks(_ context.Context, f flexitime.WeekFilter) ([]flexitime.WeeklyBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []flexitime.WeeklyBalance
	for _, w := range m.s.weeks {
		if matchWeek(f, w) {
			out = append(out, copyWeek(w))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WeekStart.Equal(out[j].WeekStart) {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].WeekStart.Before(out[j].WeekStart)
	})
	return out, nil
}

func matchWeek(f flexitime.WeekFilter, w flexitime.WeeklyBalance) bool {
	if f.EntityID != nil && w.EntityID != *f.EntityID {
		return false
	}
	if f.From != nil && w.WeekStart.Before(*f.From) {
		return false
	}
	if f.To != nil && w.WeekStart.After(*f.To) {
		return false
	}
	if f.Locked != nil && w.IsLocked != *f.Locked {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if s == w.DocStatus {
			return true
		}
	}
	return false
}

// =============================================================================
// PRESENCE
// =============================================================================

func (m *Memory) SavePresence(_ context.Context, entry flexitime.PresenceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.presence[presenceKey{entry.EntityID, entry.Date.String()}] = entry
	return nil
}

func (m *Memory) GetPresence(_ context.Context, entityID generic.EntityID, date generic.TimePoint) (*flexitime.PresenceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.s.presence[presenceKey{entityID, date.String()}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) ListPresence(_ context.Context, entityID generic.EntityID, period generic.Period) ([]flexitime.PresenceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []flexitime.PresenceEntry
	for _, e := range m.s.presence {
		if e.EntityID == entityID && period.Contains(e.Date) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) DeletePresence(_ context.Context, entityID generic.EntityID, date generic.TimePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.s.presence, presenceKey{entityID, date.String()})
	return nil
}

func (m *Memory) LockPresenceBefore(_ context.Context, date generic.TimePoint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.s.presence {
		if e.Date.Before(date) && !e.IsLocked {
			e.IsLocked = true
			m.s.presence[k] = e
			n++
		}
	}
	return n, nil
}

func (m *Memory) SavePresenceType(_ context.Context, pt flexitime.PresenceType) error {
	if err := pt.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.presenceTypes[pt.Name] = pt
	return nil
}

func (m *Memory) GetPresenceType(_ context.Context, name string) (*flexitime.PresenceType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pt, ok := m.s.presenceTypes[name]
	if !ok {
		return nil, nil
	}
	return &pt, nil
}

func (m *Memory) ListPresenceTypes(_ context.Context) ([]flexitime.PresenceType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]flexitime.PresenceType, 0, len(m.s.presenceTypes))
	for _, pt := range m.s.presenceTypes {
		out = append(out, pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// LEAVE
// =============================================================================

func (m *Memory) SaveLeaveType(_ context.Context, lt flexitime.LeaveType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.leaveTypes[lt.Name] = lt
	return nil
}

func (m *Memory) GetLeaveType(_ context.Context, name string) (*flexitime.LeaveType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lt, ok := m.s.leaveTypes[name]
	if !ok {
		return nil, nil
	}
	return &lt, nil
}

func (m *Memory) ListLeaveTypes(_ context.Context) ([]flexitime.LeaveType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]flexitime.LeaveType, 0, len(m.s.leaveTypes))
	for _, lt := range m.s.leaveTypes {
		out = append(out, lt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) SaveLeaveApplication(_ context.Context, app flexitime.LeaveApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.leaveApps[app.ID] = app
	return nil
}

func (m *Memory) GetLeaveApplication(_ context.Context, id string) (*flexitime.LeaveApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.s.leaveApps[id]
	if !ok {
		return nil, nil
	}
	return &app, nil
}

func (m *Memory) ListLeaveApplications(_ context.Context, entityID generic.EntityID, period generic.Period) ([]flexitime.LeaveApplication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []flexitime.LeaveApplication
	for _, app := range m.s.leaveApps {
		if app.EntityID == entityID && app.Period().Overlaps(period) {
			out = append(out, app)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From.Equal(out[j].From) {
			return out[i].ID < out[j].ID
		}
		return out[i].From.Before(out[j].From)
	})
	return out, nil
}

func (m *Memory) SaveLeaveAllocation(_ context.Context, a flexitime.LeaveAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.allocations[a.ID] = a
	return nil
}

func (m *Memory) ListLeaveAllocations(_ context.Context, entityID generic.EntityID) ([]flexitime.LeaveAllocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []flexitime.LeaveAllocation
	for _, a := range m.s.allocations {
		if a.EntityID == entityID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From.Before(out[j].From) })
	return out, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (m *Memory) SaveHoliday(_ context.Context, h generic.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.holidays[h.ID] = h
	return nil
}

func (m *Memory) DeleteHoliday(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.s.holidays, id)
	return nil
}

func (m *Memory) ListHolidays(_ context.Context, calendarID string) ([]generic.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.holidaysOf(calendarID), nil
}

func (m *Memory) holidaysOf(calendarID string) []generic.Holiday {
	var out []generic.Holiday
	for _, h := range m.s.holidays {
		if h.CalendarID == calendarID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (m *Memory) IsHoliday(_ context.Context, calendarID string, date generic.TimePoint) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.holidaysOf(calendarID) {
		if h.OccursOn(date) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) HolidaysIn(_ context.Context, calendarID string, period generic.Period) ([]generic.TimePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return generic.HolidayDates(m.holidaysOf(calendarID), period), nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.audit = append(m.s.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []generic.AuditEntry
	for _, e := range m.s.audit {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}
