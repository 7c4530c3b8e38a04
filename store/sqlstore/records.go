package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/warp/flexitime-engine/flexitime"
	"github.com/warp/flexitime-engine/generic"
)

// =============================================================================
// WEEKS
// =============================================================================

type weekRow struct {
	ID              string         `db:"id"`
	EntityID        string         `db:"entity_id"`
	WeekStart       string         `db:"week_start"`
	WeekEnd         string         `db:"week_end"`
	TotalActual     string         `db:"total_actual"`
	TotalExpected   string         `db:"total_expected"`
	WeeklyDelta     string         `db:"weekly_delta"`
	PreviousBalance string         `db:"previous_balance"`
	RunningBalance  string         `db:"running_balance"`
	DocStatus       string         `db:"docstatus"`
	IsLocked        bool           `db:"is_locked"`
	LockedAt        sql.NullString `db:"locked_at"`
	SubmittedAt     sql.NullString `db:"submitted_at"`
}

type dayRow struct {
	WeekID           string `db:"week_id"`
	Date             string `db:"date"`
	PresenceType     string `db:"presence_type"`
	LeaveApplication string `db:"leave_application"`
	IsHalfDay        bool   `db:"is_half_day"`
	ExpectedHours    string `db:"expected_hours"`
	ActualHours      string `db:"actual_hours"`
	Difference       string `db:"difference"`
}

func (r weekRow) toWeek() (flexitime.WeeklyBalance, error) {
	p := hoursParser()
	w := flexitime.WeeklyBalance{
		ID:              r.ID,
		EntityID:        generic.EntityID(r.EntityID),
		TotalActual:     p.parse(r.TotalActual),
		TotalExpected:   p.parse(r.TotalExpected),
		WeeklyDelta:     p.parse(r.WeeklyDelta),
		PreviousBalance: p.parse(r.PreviousBalance),
		RunningBalance:  p.parse(r.RunningBalance),
		DocStatus:       flexitime.DocStatus(r.DocStatus),
		IsLocked:        r.IsLocked,
	}
	if p.err != nil {
		return w, p.err
	}
	var err error
	if w.WeekStart, err = parseDate(r.WeekStart); err != nil {
		return w, err
	}
	if w.WeekEnd, err = parseDate(r.WeekEnd); err != nil {
		return w, err
	}
	if w.LockedAt, err = parseNullTime(r.LockedAt); err != nil {
		return w, err
	}
	if w.SubmittedAt, err = parseNullTime(r.SubmittedAt); err != nil {
		return w, err
	}
	return w, nil
}

func (r dayRow) toRecord() (flexitime.DailyRecord, error) {
	p := hoursParser()
	rec := flexitime.DailyRecord{
		PresenceType:     r.PresenceType,
		LeaveApplication: r.LeaveApplication,
		IsHalfDay:        r.IsHalfDay,
		Expected:         p.parse(r.ExpectedHours),
		Actual:           p.parse(r.ActualHours),
		Difference:       p.parse(r.Difference),
	}
	if p.err != nil {
		return rec, p.err
	}
	date, err := parseDate(r.Date)
	rec.Date = date
	return rec, err
}

// SaveWeek upserts the header and replaces the daily rows atomically.
func (s *Store) SaveWeek(ctx context.Context, w flexitime.WeeklyBalance) error {
	return s.inTx(ctx, func(tx *Store) error {
		_, err := tx.exec(ctx, `
			INSERT INTO weekly_balances (id, entity_id, week_start, week_end, total_actual, total_expected,
				weekly_delta, previous_balance, running_balance, docstatus, is_locked, locked_at, submitted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				entity_id = excluded.entity_id,
				week_start = excluded.week_start,
				week_end = excluded.week_end,
				total_actual = excluded.total_actual,
				total_expected = excluded.total_expected,
				weekly_delta = excluded.weekly_delta,
				previous_balance = excluded.previous_balance,
				running_balance = excluded.running_balance,
				docstatus = excluded.docstatus,
				is_locked = excluded.is_locked,
				locked_at = excluded.locked_at,
				submitted_at = excluded.submitted_at
		`, w.ID, w.EntityID, dateText(w.WeekStart), dateText(w.WeekEnd),
			hoursText(w.TotalActual), hoursText(w.TotalExpected), hoursText(w.WeeklyDelta),
			hoursText(w.PreviousBalance), hoursText(w.RunningBalance), string(w.DocStatus),
			w.IsLocked, nullTime(w.LockedAt), nullTime(w.SubmittedAt))
		if err != nil {
			return fmt.Errorf("failed to save week %s: %w", w.ID, err)
		}

		if _, err := tx.exec(ctx, `DELETE FROM week_days WHERE week_id = ?`, w.ID); err != nil {
			return fmt.Errorf("failed to clear week days: %w", err)
		}
		for _, d := range w.Days {
			_, err := tx.exec(ctx, `
				INSERT INTO week_days (week_id, date, presence_type, leave_application, is_half_day,
					expected_hours, actual_hours, difference)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, w.ID, dateText(d.Date), d.PresenceType, d.LeaveApplication, d.IsHalfDay,
				hoursText(d.Expected), hoursText(d.Actual), hoursText(d.Difference))
			if err != nil {
				return fmt.Errorf("failed to save week day %s: %w", d.Date, err)
			}
		}
		return nil
	})
}

func (s *Store) GetWeek(ctx context.Context, entityID generic.EntityID, weekStart generic.TimePoint) (*flexitime.WeeklyBalance, error) {
	return s.getWeek(ctx, `SELECT * FROM weekly_balances WHERE entity_id = ? AND week_start = ?`, entityID, dateText(weekStart))
}

func (s *Store) GetWeekByID(ctx context.Context, id string) (*flexitime.WeeklyBalance, error) {
	return s.getWeek(ctx, `SELECT * FROM weekly_balances WHERE id = ?`, id)
}

func (s *Store) getWeek(ctx context.Context, query string, args ...any) (*flexitime.WeeklyBalance, error) {
	var row weekRow
	found, err := s.get(ctx, &row, query, args...)
	if err != nil || !found {
		return nil, err
	}
	weeks, err := s.withDays(ctx, []weekRow{row})
	if err != nil {
		return nil, err
	}
	return &weeks[0], nil
}

func (s *Store) ListWeeks(ctx context.Context, f flexitime.WeekFilter) ([]flexitime.WeeklyBalance, error) {
	var (
		where []string
		args  []any
	)
	if f.EntityID != nil {
		where = append(where, "entity_id = ?")
		args = append(args, *f.EntityID)
	}
	if f.From != nil {
		where = append(where, "week_start >= ?")
		args = append(args, dateText(*f.From))
	}
	if f.To != nil {
		where = append(where, "week_start <= ?")
		args = append(args, dateText(*f.To))
	}
	if f.Locked != nil {
		where = append(where, "is_locked = ?")
		args = append(args, *f.Locked)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		where = append(where, "docstatus IN (?)")
		args = append(args, statuses)
	}

	query := `SELECT * FROM weekly_balances`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY week_start, entity_id`
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}

	var rows []weekRow
	if err := s.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list weeks: %w", err)
	}
	return s.withDays(ctx, rows)
}

// withDays converts rows and loads their daily records in one query.
func (s *Store) withDays(ctx context.Context, rows []weekRow) ([]flexitime.WeeklyBalance, error) {
	out := make([]flexitime.WeeklyBalance, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	query, args, err := sqlx.In(`SELECT * FROM week_days WHERE week_id IN (?) ORDER BY week_id, date`, ids)
	if err != nil {
		return nil, err
	}
	var days []dayRow
	if err := s.selectAll(ctx, &days, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load week days: %w", err)
	}
	byWeek := make(map[string][]flexitime.DailyRecord, len(rows))
	for _, d := range days {
		rec, err := d.toRecord()
		if err != nil {
			return nil, err
		}
		byWeek[d.WeekID] = append(byWeek[d.WeekID], rec)
	}

	for _, r := range rows {
		w, err := r.toWeek()
		if err != nil {
			return nil, err
		}
		w.Days = byWeek[r.ID]
		out = append(out, w)
	}
	return out, nil
}

// =============================================================================
// PRESENCE
// =============================================================================

type presenceRow struct {
	EntityID          string         `db:"entity_id"`
	Date              string         `db:"date"`
	PresenceType      string         `db:"presence_type"`
	Source            string         `db:"source"`
	PriorSource       sql.NullString `db:"prior_source"`
	PriorPresenceType sql.NullString `db:"prior_presence_type"`
	LeaveApplication  string         `db:"leave_application"`
	IsHalfDay         bool           `db:"is_half_day"`
	IsLocked          bool           `db:"is_locked"`
}

func (r presenceRow) toEntry() (flexitime.PresenceEntry, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return flexitime.PresenceEntry{}, err
	}
	source := flexitime.PresenceSource{Kind: flexitime.SourceKind(r.Source)}
	if r.PriorSource.Valid {
		source.Prior = &flexitime.PriorState{
			Kind:         flexitime.SourceKind(r.PriorSource.String),
			PresenceType: r.PriorPresenceType.String,
		}
	}
	return flexitime.PresenceEntry{
		EntityID:         generic.EntityID(r.EntityID),
		Date:             date,
		PresenceType:     r.PresenceType,
		Source:           source,
		LeaveApplication: r.LeaveApplication,
		IsHalfDay:        r.IsHalfDay,
		IsLocked:         r.IsLocked,
	}, nil
}

func (s *Store) SavePresence(ctx context.Context, e flexitime.PresenceEntry) error {
	var priorKind, priorType sql.NullString
	if e.Source.Prior != nil {
		priorKind = sql.NullString{String: string(e.Source.Prior.Kind), Valid: true}
		priorType = sql.NullString{String: e.Source.Prior.PresenceType, Valid: true}
	}
	_, err := s.exec(ctx, `
		INSERT INTO presence_entries (entity_id, date, presence_type, source, prior_source,
			prior_presence_type, leave_application, is_half_day, is_locked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, date) DO UPDATE SET
			presence_type = excluded.presence_type,
			source = excluded.source,
			prior_source = excluded.prior_source,
			prior_presence_type = excluded.prior_presence_type,
			leave_application = excluded.leave_application,
			is_half_day = excluded.is_half_day,
			is_locked = excluded.is_locked
	`, e.EntityID, dateText(e.Date), e.PresenceType, string(e.Source.Kind), priorKind, priorType,
		e.LeaveApplication, e.IsHalfDay, e.IsLocked)
	if err != nil {
		return fmt.Errorf("failed to save presence: %w", err)
	}
	return nil
}

func (s *Store) GetPresence(ctx context.Context, entityID generic.EntityID, date generic.TimePoint) (*flexitime.PresenceEntry, error) {
	var row presenceRow
	found, err := s.get(ctx, &row, `SELECT * FROM presence_entries WHERE entity_id = ? AND date = ?`, entityID, dateText(date))
	if err != nil || !found {
		return nil, err
	}
	entry, err := row.toEntry()
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) ListPresence(ctx context.Context, entityID generic.EntityID, period generic.Period) ([]flexitime.PresenceEntry, error) {
	var rows []presenceRow
	err := s.selectAll(ctx, &rows, `
		SELECT * FROM presence_entries
		WHERE entity_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, entityID, dateText(period.Start), dateText(period.End))
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}
	out := make([]flexitime.PresenceEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) DeletePresence(ctx context.Context, entityID generic.EntityID, date generic.TimePoint) error {
	if _, err := s.exec(ctx, `DELETE FROM presence_entries WHERE entity_id = ? AND date = ?`, entityID, dateText(date)); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	return nil
}

func (s *Store) LockPresenceBefore(ctx context.Context, date generic.TimePoint) (int64, error) {
	res, err := s.exec(ctx, `UPDATE presence_entries SET is_locked = ? WHERE date < ? AND is_locked = ?`,
		true, dateText(date), false)
	if err != nil {
		return 0, fmt.Errorf("failed to lock presence: %w", err)
	}
	return res.RowsAffected()
}

type presenceTypeRow struct {
	Name                     string `db:"name"`
	Label                    string `db:"label"`
	Icon                     string `db:"icon"`
	Category                 string `db:"category"`
	IsSystem                 bool   `db:"is_system"`
	SystemRole               string `db:"system_role"`
	RequiresLeaveApplication bool   `db:"requires_leave_application"`
	LeaveType                string `db:"leave_type"`
	DeductsFromBalance       bool   `db:"deducts_from_balance"`
}

func (r presenceTypeRow) toPresenceType() flexitime.PresenceType {
	return flexitime.PresenceType{
		Name:                     r.Name,
		Label:                    r.Label,
		Icon:                     r.Icon,
		Category:                 flexitime.PresenceCategory(r.Category),
		IsSystem:                 r.IsSystem,
		SystemRole:               r.SystemRole,
		RequiresLeaveApplication: r.RequiresLeaveApplication,
		LeaveType:                r.LeaveType,
		DeductsFromBalance:       r.DeductsFromBalance,
	}
}

func (s *Store) SavePresenceType(ctx context.Context, pt flexitime.PresenceType) error {
	if err := pt.Validate(); err != nil {
		return err
	}
	_, err := s.exec(ctx, `
		INSERT INTO presence_types (name, label, icon, category, is_system, system_role,
			requires_leave_application, leave_type, deducts_from_balance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			label = excluded.label,
			icon = excluded.icon,
			category = excluded.category,
			is_system = excluded.is_system,
			system_role = excluded.system_role,
			requires_leave_application = excluded.requires_leave_application,
			leave_type = excluded.leave_type,
			deducts_from_balance = excluded.deducts_from_balance
	`, pt.Name, pt.Label, pt.Icon, string(pt.Category), pt.IsSystem, pt.SystemRole,
		pt.RequiresLeaveApplication, pt.LeaveType, pt.DeductsFromBalance)
	if err != nil {
		return fmt.Errorf("failed to save presence type: %w", err)
	}
	return nil
}

func (s *Store) GetPresenceType(ctx context.Context, name string) (*flexitime.PresenceType, error) {
	var row presenceTypeRow
	found, err := s.get(ctx, &row, `SELECT * FROM presence_types WHERE name = ?`, name)
	if err != nil || !found {
		return nil, err
	}
	pt := row.toPresenceType()
	return &pt, nil
}

func (s *Store) ListPresenceTypes(ctx context.Context) ([]flexitime.PresenceType, error) {
	var rows []presenceTypeRow
	if err := s.selectAll(ctx, &rows, `SELECT * FROM presence_types ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list presence types: %w", err)
	}
	out := make([]flexitime.PresenceType, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toPresenceType())
	}
	return out, nil
}

// =============================================================================
// LEAVE
// =============================================================================

type leaveTypeRow struct {
	Name                string `db:"name"`
	AllowZeroAllocation bool   `db:"allow_zero_allocation"`
}

func (s *Store) SaveLeaveType(ctx context.Context, lt flexitime.LeaveType) error {
	_, err := s.exec(ctx, `
		INSERT INTO leave_types (name, allow_zero_allocation) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET allow_zero_allocation = excluded.allow_zero_allocation
	`, lt.Name, lt.AllowZeroAllocation)
	if err != nil {
		return fmt.Errorf("failed to save leave type: %w", err)
	}
	return nil
}

func (s *Store) GetLeaveType(ctx context.Context, name string) (*flexitime.LeaveType, error) {
	var row leaveTypeRow
	found, err := s.get(ctx, &row, `SELECT * FROM leave_types WHERE name = ?`, name)
	if err != nil || !found {
		return nil, err
	}
	return &flexitime.LeaveType{Name: row.Name, AllowZeroAllocation: row.AllowZeroAllocation}, nil
}

func (s *Store) ListLeaveTypes(ctx context.Context) ([]flexitime.LeaveType, error) {
	var rows []leaveTypeRow
	if err := s.selectAll(ctx, &rows, `SELECT * FROM leave_types ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list leave types: %w", err)
	}
	out := make([]flexitime.LeaveType, 0, len(rows))
	for _, r := range rows {
		out = append(out, flexitime.LeaveType{Name: r.Name, AllowZeroAllocation: r.AllowZeroAllocation})
	}
	return out, nil
}

type leaveAppRow struct {
	ID          string         `db:"id"`
	EntityID    string         `db:"entity_id"`
	LeaveType   string         `db:"leave_type"`
	FromDate    string         `db:"from_date"`
	ToDate      string         `db:"to_date"`
	HalfDay     bool           `db:"half_day"`
	HalfDayDate sql.NullString `db:"half_day_date"`
	Status      string         `db:"status"`
	Reason      string         `db:"reason"`
}

func (r leaveAppRow) toApplication() (flexitime.LeaveApplication, error) {
	app := flexitime.LeaveApplication{
		ID:        r.ID,
		EntityID:  generic.EntityID(r.EntityID),
		LeaveType: r.LeaveType,
		HalfDay:   r.HalfDay,
		Status:    flexitime.LeaveStatus(r.Status),
		Reason:    r.Reason,
	}
	var err error
	if app.From, err = parseDate(r.FromDate); err != nil {
		return app, err
	}
	if app.To, err = parseDate(r.ToDate); err != nil {
		return app, err
	}
	app.HalfDayDate, err = parseNullDate(r.HalfDayDate)
	return app, err
}

func (s *Store) SaveLeaveApplication(ctx context.Context, app flexitime.LeaveApplication) error {
	_, err := s.exec(ctx, `
		INSERT INTO leave_applications (id, entity_id, leave_type, from_date, to_date,
			half_day, half_day_date, status, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entity_id = excluded.entity_id,
			leave_type = excluded.leave_type,
			from_date = excluded.from_date,
			to_date = excluded.to_date,
			half_day = excluded.half_day,
			half_day_date = excluded.half_day_date,
			status = excluded.status,
			reason = excluded.reason
	`, app.ID, app.EntityID, app.LeaveType, dateText(app.From), dateText(app.To),
		app.HalfDay, nullDate(app.HalfDayDate), string(app.Status), app.Reason)
	if err != nil {
		return fmt.Errorf("failed to save leave application: %w", err)
	}
	return nil
}

func (s *Store) GetLeaveApplication(ctx context.Context, id string) (*flexitime.LeaveApplication, error) {
	var row leaveAppRow
	found, err := s.get(ctx, &row, `SELECT * FROM leave_applications WHERE id = ?`, id)
	if err != nil || !found {
		return nil, err
	}
	app, err := row.toApplication()
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *Store) ListLeaveApplications(ctx context.Context, entityID generic.EntityID, period generic.Period) ([]flexitime.LeaveApplication, error) {
	var rows []leaveAppRow
	err := s.selectAll(ctx, &rows, `
		SELECT * FROM leave_applications
		WHERE entity_id = ? AND from_date <= ? AND to_date >= ?
		ORDER BY from_date, id
	`, entityID, dateText(period.End), dateText(period.Start))
	if err != nil {
		return nil, fmt.Errorf("failed to list leave applications: %w", err)
	}
	out := make([]flexitime.LeaveApplication, 0, len(rows))
	for _, r := range rows {
		app, err := r.toApplication()
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, nil
}

type allocationRow struct {
	ID             string `db:"id"`
	EntityID       string `db:"entity_id"`
	LeaveType      string `db:"leave_type"`
	FromDate       string `db:"from_date"`
	ToDate         string `db:"to_date"`
	NewLeaves      string `db:"new_leaves"`
	CarryForwarded string `db:"carry_forwarded"`
	TotalAllocated string `db:"total_allocated"`
	Unused         string `db:"unused"`
}

func (s *Store) SaveLeaveAllocation(ctx context.Context, a flexitime.LeaveAllocation) error {
	_, err := s.exec(ctx, `
		INSERT INTO leave_allocations (id, entity_id, leave_type, from_date, to_date,
			new_leaves, carry_forwarded, total_allocated, unused)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entity_id = excluded.entity_id,
			leave_type = excluded.leave_type,
			from_date = excluded.from_date,
			to_date = excluded.to_date,
			new_leaves = excluded.new_leaves,
			carry_forwarded = excluded.carry_forwarded,
			total_allocated = excluded.total_allocated,
			unused = excluded.unused
	`, a.ID, a.EntityID, a.LeaveType, dateText(a.From), dateText(a.To),
		a.NewLeaves.String(), a.CarryForwarded.String(), a.TotalAllocated.String(), a.Unused.String())
	if err != nil {
		return fmt.Errorf("failed to save leave allocation: %w", err)
	}
	return nil
}

func (s *Store) ListLeaveAllocations(ctx context.Context, entityID generic.EntityID) ([]flexitime.LeaveAllocation, error) {
	var rows []allocationRow
	err := s.selectAll(ctx, &rows, `SELECT * FROM leave_allocations WHERE entity_id = ? ORDER BY from_date, id`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list leave allocations: %w", err)
	}
	out := make([]flexitime.LeaveAllocation, 0, len(rows))
	for _, r := range rows {
		p := &amounts{unit: generic.UnitDays}
		a := flexitime.LeaveAllocation{
			ID:             r.ID,
			EntityID:       generic.EntityID(r.EntityID),
			LeaveType:      r.LeaveType,
			NewLeaves:      p.parse(r.NewLeaves),
			CarryForwarded: p.parse(r.CarryForwarded),
			TotalAllocated: p.parse(r.TotalAllocated),
			Unused:         p.parse(r.Unused),
		}
		if p.err != nil {
			return nil, p.err
		}
		var err error
		if a.From, err = parseDate(r.FromDate); err != nil {
			return nil, err
		}
		if a.To, err = parseDate(r.ToDate); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
