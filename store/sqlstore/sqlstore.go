/*
Package sqlstore provides a SQL-backed implementation of flexitime.TxStore.

PURPOSE:
  Implements every persistence interface of the flexitime package on top
  of sqlx. The same schema and queries run on SQLite (single binary, demo,
  tests) and PostgreSQL (production); queries are written with `?` and
  rebound to the driver's placeholder style.

KEY TABLES:
  employees, org_units:     Who owns a balance, base weekly hours
  work_patterns:            Contracted hours per weekday, one row per version
  weekly_balances:          One row per (employee, week_start)
  week_days:                Mon..Fri records of a week, replaced on save
  presence_entries:         Roll call, one row per (employee, date)
  presence_types, leave_types, leave_applications, leave_allocations
  holidays:                 Named holiday lists (calendar_id)
  audit_log:                Append-only transition log

STORAGE FORMAT:
  Dates are TEXT "YYYY-MM-DD" so range filters compare lexicographically
  on both engines. Hours and days are TEXT decimals (no float rounding).
  Timestamps are fixed-width RFC3339 TEXT in UTC.

TRANSACTIONS:
  WithTx hands fn a Store bound to one *sqlx.Tx. Multi-row writes made
  outside WithTx (SaveWeek) open their own transaction.

USAGE:
  store, err := sqlstore.Open(sqlstore.DriverSQLite, "./data/flexitime.db", logger)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - flexitime/store.go: Interface definitions and ordering contract
  - store/memory: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/flexitime-engine/flexitime"
	"github.com/warp/flexitime-engine/generic"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store implements flexitime.TxStore.
type Store struct {
	db     *sqlx.DB
	q      sqlx.ExtContext
	tx     *sqlx.Tx
	logger zerolog.Logger
}

var _ flexitime.TxStore = (*Store)(nil)

// Open connects to the database and migrates the schema. Use
// DriverSQLite with ":memory:" for a throwaway database.
func Open(driver, dsn string, logger zerolog.Logger) (*Store, error) {
	if driver == DriverSQLite && dsn != ":memory:" && !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// One writer; also keeps ":memory:" on a single connection.
		db.SetMaxOpenConns(1)
	}

	store := NewWithDB(db, logger)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an existing connection without migrating.
func NewWithDB(db *sqlx.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, q: db, logger: logger.With().Str("component", "sqlstore").Logger()}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetMaxOpenConns caps the pool. SQLite stays on one connection.
func (s *Store) SetMaxOpenConns(n int) {
	if n > 0 && s.db.DriverName() != DriverSQLite {
		s.db.SetMaxOpenConns(n)
	}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS org_units (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	base_weekly_hours TEXT NOT NULL DEFAULT '0',
	holiday_calendar_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS employees (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	org_unit TEXT NOT NULL DEFAULT '',
	holiday_calendar_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	current_balance TEXT NOT NULL DEFAULT '0'
);

CREATE TABLE IF NOT EXISTS work_patterns (
	id TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL,
	fte_percentage TEXT NOT NULL,
	valid_from TEXT NOT NULL,
	valid_to TEXT,
	monday TEXT NOT NULL,
	tuesday TEXT NOT NULL,
	wednesday TEXT NOT NULL,
	thursday TEXT NOT NULL,
	friday TEXT NOT NULL,
	saturday TEXT NOT NULL,
	sunday TEXT NOT NULL,
	flexitime_limit TEXT NOT NULL,
	flexitime_limit_override BOOLEAN NOT NULL DEFAULT FALSE,
	weekly_expected TEXT NOT NULL,
	initial_balance TEXT NOT NULL,
	status TEXT NOT NULL,
	docstatus TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_work_patterns_entity
	ON work_patterns(entity_id, valid_from);

CREATE TABLE IF NOT EXISTS weekly_balances (
	id TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL,
	week_start TEXT NOT NULL,
	week_end TEXT NOT NULL,
	total_actual TEXT NOT NULL,
	total_expected TEXT NOT NULL,
	weekly_delta TEXT NOT NULL,
	previous_balance TEXT NOT NULL,
	running_balance TEXT NOT NULL,
	docstatus TEXT NOT NULL,
	is_locked BOOLEAN NOT NULL DEFAULT FALSE,
	locked_at TEXT,
	submitted_at TEXT
);

-- One week per employee and Monday
CREATE UNIQUE INDEX IF NOT EXISTS idx_weekly_balances_entity_week
	ON weekly_balances(entity_id, week_start);
CREATE INDEX IF NOT EXISTS idx_weekly_balances_status
	ON weekly_balances(docstatus, is_locked);

CREATE TABLE IF NOT EXISTS week_days (
	week_id TEXT NOT NULL,
	date TEXT NOT NULL,
	presence_type TEXT NOT NULL DEFAULT '',
	leave_application TEXT NOT NULL DEFAULT '',
	is_half_day BOOLEAN NOT NULL DEFAULT FALSE,
	expected_hours TEXT NOT NULL,
	actual_hours TEXT NOT NULL,
	difference TEXT NOT NULL,
	PRIMARY KEY (week_id, date)
);

CREATE TABLE IF NOT EXISTS presence_entries (
	entity_id TEXT NOT NULL,
	date TEXT NOT NULL,
	presence_type TEXT NOT NULL,
	source TEXT NOT NULL,
	prior_source TEXT,
	prior_presence_type TEXT,
	leave_application TEXT NOT NULL DEFAULT '',
	is_half_day BOOLEAN NOT NULL DEFAULT FALSE,
	is_locked BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (entity_id, date)
);

CREATE INDEX IF NOT EXISTS idx_presence_entries_date
	ON presence_entries(date, is_locked);

CREATE TABLE IF NOT EXISTS presence_types (
	name TEXT PRIMARY KEY,
	label TEXT NOT NULL DEFAULT '',
	icon TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	is_system BOOLEAN NOT NULL DEFAULT FALSE,
	system_role TEXT NOT NULL DEFAULT '',
	requires_leave_application BOOLEAN NOT NULL DEFAULT FALSE,
	leave_type TEXT NOT NULL DEFAULT '',
	deducts_from_balance BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS leave_types (
	name TEXT PRIMARY KEY,
	allow_zero_allocation BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS leave_applications (
	id TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL,
	leave_type TEXT NOT NULL,
	from_date TEXT NOT NULL,
	to_date TEXT NOT NULL,
	half_day BOOLEAN NOT NULL DEFAULT FALSE,
	half_day_date TEXT,
	status TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_leave_applications_entity
	ON leave_applications(entity_id, from_date, to_date);

CREATE TABLE IF NOT EXISTS leave_allocations (
	id TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL,
	leave_type TEXT NOT NULL,
	from_date TEXT NOT NULL,
	to_date TEXT NOT NULL,
	new_leaves TEXT NOT NULL,
	carry_forwarded TEXT NOT NULL,
	total_allocated TEXT NOT NULL,
	unused TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS holidays (
	id TEXT PRIMARY KEY,
	calendar_id TEXT NOT NULL,
	date TEXT NOT NULL,
	name TEXT NOT NULL,
	recurring BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_holidays_calendar
	ON holidays(calendar_id, date);

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	ts TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	action TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	reference TEXT NOT NULL DEFAULT '',
	payload_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_log_entity
	ON audit_log(entity_id, ts);
`

// Migrate creates the schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *Store) error {
		for _, table := range resetOrder {
			if _, err := tx.exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
		}
		return nil
	})
}

var resetOrder = []string{
	"audit_log", "week_days", "weekly_balances", "presence_entries", "leave_allocations",
	"leave_applications", "work_patterns", "employees", "org_units", "holidays",
	"presence_types", "leave_types",
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn on a Store bound to one transaction. Inside an existing
// transaction fn joins it.
func (s *Store) WithTx(ctx context.Context, fn func(flexitime.Store) error) error {
	return s.inTx(ctx, func(tx *Store) error { return fn(tx) })
}

func (s *Store) inTx(ctx context.Context, fn func(*Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	txStore := &Store{db: s.db, q: tx, tx: tx, logger: s.logger}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.q.ExecContext(ctx, s.q.Rebind(query), args...)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%v: %w", err, generic.ErrConflict)
	}
	return res, err
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	err := sqlx.GetContext(ctx, s.q, dest, s.q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, s.q, dest, s.q.Rebind(query), args...)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// =============================================================================
// VALUE CONVERSION
// =============================================================================

func hoursText(a generic.Amount) string { return a.Value.String() }

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// amounts parses TEXT decimals into Amounts of unit, stopping at the
// first error.
type amounts struct {
	unit generic.Unit
	err  error
}

func (a *amounts) parse(s string) generic.Amount {
	d, err := parseDecimal(s)
	if err != nil && a.err == nil {
		a.err = err
	}
	return generic.Amount{Value: d, Unit: a.unit}
}

func hoursParser() *amounts { return &amounts{unit: generic.UnitHours} }

func dateText(tp generic.TimePoint) string { return tp.String() }

func parseDate(s string) (generic.TimePoint, error) { return generic.ParseDate(s) }

func nullDate(tp *generic.TimePoint) sql.NullString {
	if tp == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: tp.String(), Valid: true}
}

func parseNullDate(ns sql.NullString) (*generic.TimePoint, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	tp, err := generic.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &tp, nil
}

// timeLayout has a fixed width so TEXT timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timeText(t time.Time) string { return t.UTC().Format(timeLayout) }

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: timeText(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", ns.String, err)
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// =============================================================================
// EMPLOYEES / ORG UNITS
// =============================================================================

type employeeRow struct {
	ID                string `db:"id"`
	Name              string `db:"name"`
	Email             string `db:"email"`
	OrgUnit           string `db:"org_unit"`
	HolidayCalendarID string `db:"holiday_calendar_id"`
	Status            string `db:"status"`
	CurrentBalance    string `db:"current_balance"`
}

func (r employeeRow) toEmployee() (flexitime.Employee, error) {
	p := hoursParser()
	e := flexitime.Employee{
		ID:                generic.EntityID(r.ID),
		Name:              r.Name,
		Email:             r.Email,
		OrgUnit:           r.OrgUnit,
		HolidayCalendarID: r.HolidayCalendarID,
		Status:            flexitime.EmployeeStatus(r.Status),
		CurrentBalance:    p.parse(r.CurrentBalance),
	}
	return e, p.err
}

func (s *Store) SaveEmployee(ctx context.Context, emp flexitime.Employee) error {
	status := emp.Status
	if status == "" {
		status = flexitime.EmployeeActive
	}
	_, err := s.exec(ctx, `
		INSERT INTO employees (id, name, email, org_unit, holiday_calendar_id, status, current_balance)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			org_unit = excluded.org_unit,
			holiday_calendar_id = excluded.holiday_calendar_id,
			status = excluded.status,
			current_balance = excluded.current_balance
	`, emp.ID, emp.Name, emp.Email, emp.OrgUnit, emp.HolidayCalendarID, status, hoursText(emp.CurrentBalance))
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id generic.EntityID) (*flexitime.Employee, error) {
	var row employeeRow
	found, err := s.get(ctx, &row, `SELECT * FROM employees WHERE id = ?`, id)
	if err != nil || !found {
		return nil, err
	}
	emp, err := row.toEmployee()
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]flexitime.Employee, error) {
	var rows []employeeRow
	if err := s.selectAll(ctx, &rows, `SELECT * FROM employees ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	out := make([]flexitime.Employee, 0, len(rows))
	for _, r := range rows {
		emp, err := r.toEmployee()
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, nil
}

func (s *Store) UpdateCurrentBalance(ctx context.Context, id generic.EntityID, balance generic.Amount) error {
	res, err := s.exec(ctx, `UPDATE employees SET current_balance = ? WHERE id = ?`, hoursText(balance), id)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &generic.NotFoundError{Kind: "employee", ID: string(id)}
	}
	return nil
}

type orgUnitRow struct {
	ID                string `db:"id"`
	Name              string `db:"name"`
	BaseWeeklyHours   string `db:"base_weekly_hours"`
	HolidayCalendarID string `db:"holiday_calendar_id"`
}

func (s *Store) SaveOrgUnit(ctx context.Context, unit flexitime.OrgUnit) error {
	_, err := s.exec(ctx, `
		INSERT INTO org_units (id, name, base_weekly_hours, holiday_calendar_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			base_weekly_hours = excluded.base_weekly_hours,
			holiday_calendar_id = excluded.holiday_calendar_id
	`, unit.ID, unit.Name, hoursText(unit.BaseWeeklyHours), unit.HolidayCalendarID)
	if err != nil {
		return fmt.Errorf("failed to save org unit: %w", err)
	}
	return nil
}

func (s *Store) GetOrgUnit(ctx context.Context, id string) (*flexitime.OrgUnit, error) {
	var row orgUnitRow
	found, err := s.get(ctx, &row, `SELECT * FROM org_units WHERE id = ?`, id)
	if err != nil || !found {
		return nil, err
	}
	p := hoursParser()
	unit := flexitime.OrgUnit{
		ID:                row.ID,
		Name:              row.Name,
		BaseWeeklyHours:   p.parse(row.BaseWeeklyHours),
		HolidayCalendarID: row.HolidayCalendarID,
	}
	return &unit, p.err
}

// =============================================================================
// WORK PATTERNS
// =============================================================================

type patternRow struct {
	ID                     string         `db:"id"`
	EntityID               string         `db:"entity_id"`
	FTEPercentage          string         `db:"fte_percentage"`
	ValidFrom              string         `db:"valid_from"`
	ValidTo                sql.NullString `db:"valid_to"`
	Monday                 string         `db:"monday"`
	Tuesday                string         `db:"tuesday"`
	Wednesday              string         `db:"wednesday"`
	Thursday               string         `db:"thursday"`
	Friday                 string         `db:"friday"`
	Saturday               string         `db:"saturday"`
	Sunday                 string         `db:"sunday"`
	FlexitimeLimit         string         `db:"flexitime_limit"`
	FlexitimeLimitOverride bool           `db:"flexitime_limit_override"`
	WeeklyExpected         string         `db:"weekly_expected"`
	InitialBalance         string         `db:"initial_balance"`
	Status                 string         `db:"status"`
	DocStatus              string         `db:"docstatus"`
	CreatedAt              string         `db:"created_at"`
}

func (r patternRow) toPattern() (flexitime.WorkPattern, error) {
	p := hoursParser()
	pattern := flexitime.WorkPattern{
		ID:       r.ID,
		EntityID: generic.EntityID(r.EntityID),
		Hours: flexitime.WeekHours{
			Monday:    p.parse(r.Monday),
			Tuesday:   p.parse(r.Tuesday),
			Wednesday: p.parse(r.Wednesday),
			Thursday:  p.parse(r.Thursday),
			Friday:    p.parse(r.Friday),
			Saturday:  p.parse(r.Saturday),
			Sunday:    p.parse(r.Sunday),
		},
		FlexitimeLimit:         p.parse(r.FlexitimeLimit),
		FlexitimeLimitOverride: r.FlexitimeLimitOverride,
		WeeklyExpected:         p.parse(r.WeeklyExpected),
		InitialBalance:         p.parse(r.InitialBalance),
		Status:                 flexitime.PatternStatus(r.Status),
		DocStatus:              flexitime.DocStatus(r.DocStatus),
	}
	if p.err != nil {
		return pattern, p.err
	}
	var err error
	if pattern.FTEPercentage, err = parseDecimal(r.FTEPercentage); err != nil {
		return pattern, err
	}
	if pattern.ValidFrom, err = parseDate(r.ValidFrom); err != nil {
		return pattern, err
	}
	if pattern.ValidTo, err = parseNullDate(r.ValidTo); err != nil {
		return pattern, err
	}
	if created, err := parseNullTime(nullString(r.CreatedAt)); err == nil && created != nil {
		pattern.CreatedAt = *created
	}
	return pattern, nil
}

func (s *Store) SaveWorkPattern(ctx context.Context, p flexitime.WorkPattern) error {
	h := p.Hours
	_, err := s.exec(ctx, `
		INSERT INTO work_patterns (id, entity_id, fte_percentage, valid_from, valid_to,
			monday, tuesday, wednesday, thursday, friday, saturday, sunday,
			flexitime_limit, flexitime_limit_override, weekly_expected, initial_balance,
			status, docstatus, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entity_id = excluded.entity_id,
			fte_percentage = excluded.fte_percentage,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to,
			monday = excluded.monday,
			tuesday = excluded.tuesday,
			wednesday = excluded.wednesday,
			thursday = excluded.thursday,
			friday = excluded.friday,
			saturday = excluded.saturday,
			sunday = excluded.sunday,
			flexitime_limit = excluded.flexitime_limit,
			flexitime_limit_override = excluded.flexitime_limit_override,
			weekly_expected = excluded.weekly_expected,
			initial_balance = excluded.initial_balance,
			status = excluded.status,
			docstatus = excluded.docstatus
	`,
		p.ID, p.EntityID, p.FTEPercentage.String(), dateText(p.ValidFrom), nullDate(p.ValidTo),
		hoursText(h.Monday), hoursText(h.Tuesday), hoursText(h.Wednesday), hoursText(h.Thursday),
		hoursText(h.Friday), hoursText(h.Saturday), hoursText(h.Sunday),
		hoursText(p.FlexitimeLimit), p.FlexitimeLimitOverride, hoursText(p.WeeklyExpected),
		hoursText(p.InitialBalance), string(p.Status), string(p.DocStatus),
		timeText(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save work pattern: %w", err)
	}
	return nil
}

func (s *Store) GetWorkPattern(ctx context.Context, id string) (*flexitime.WorkPattern, error) {
	var row patternRow
	found, err := s.get(ctx, &row, `SELECT * FROM work_patterns WHERE id = ?`, id)
	if err != nil || !found {
		return nil, err
	}
	p, err := row.toPattern()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListWorkPatterns(ctx context.Context, entityID generic.EntityID) ([]flexitime.WorkPattern, error) {
	var rows []patternRow
	err := s.selectAll(ctx, &rows, `SELECT * FROM work_patterns WHERE entity_id = ? ORDER BY valid_from, id`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list work patterns: %w", err)
	}
	out := make([]flexitime.WorkPattern, 0, len(rows))
	for _, r := range rows {
		p, err := r.toPattern()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

type holidayRow struct {
	ID         string `db:"id"`
	CalendarID string `db:"calendar_id"`
	Date       string `db:"date"`
	Name       string `db:"name"`
	Recurring  bool   `db:"recurring"`
}

func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	_, err := s.exec(ctx, `
		INSERT INTO holidays (id, calendar_id, date, name, recurring)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			calendar_id = excluded.calendar_id,
			date = excluded.date,
			name = excluded.name,
			recurring = excluded.recurring
	`, h.ID, h.CalendarID, dateText(h.Date), h.Name, h.Recurring)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM holidays WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete holiday: %w", err)
	}
	return nil
}

func (s *Store) ListHolidays(ctx context.Context, calendarID string) ([]generic.Holiday, error) {
	var rows []holidayRow
	err := s.selectAll(ctx, &rows, `SELECT * FROM holidays WHERE calendar_id = ? ORDER BY date, id`, calendarID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	out := make([]generic.Holiday, 0, len(rows))
	for _, r := range rows {
		date, err := parseDate(r.Date)
		if err != nil {
			return nil, err
		}
		out = append(out, generic.Holiday{ID: r.ID, CalendarID: r.CalendarID, Date: date, Name: r.Name, Recurring: r.Recurring})
	}
	return out, nil
}

// IsHoliday loads the calendar; recurring holidays rule out a date-only query.
func (s *Store) IsHoliday(ctx context.Context, calendarID string, date generic.TimePoint) (bool, error) {
	holidays, err := s.ListHolidays(ctx, calendarID)
	if err != nil {
		return false, err
	}
	for _, h := range holidays {
		if h.OccursOn(date) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) HolidaysIn(ctx context.Context, calendarID string, period generic.Period) ([]generic.TimePoint, error) {
	holidays, err := s.ListHolidays(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	return generic.HolidayDates(holidays, period), nil
}

// =============================================================================
// AUDIT
// =============================================================================

type auditRow struct {
	ID          string         `db:"id"`
	Timestamp   string         `db:"ts"`
	ActorID     string         `db:"actor_id"`
	Action      string         `db:"action"`
	EntityID    string         `db:"entity_id"`
	Reference   string         `db:"reference"`
	PayloadJSON sql.NullString `db:"payload_json"`
}

func (s *Store) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	var payload sql.NullString
	if entry.Payload != nil {
		raw, err := json.Marshal(entry.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode audit payload: %w", err)
		}
		payload = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := s.exec(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, entity_id, reference, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, timeText(entry.Timestamp), entry.ActorID, string(entry.Action),
		entry.EntityID, entry.Reference, payload)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// QueryAudit returns matching entries oldest first. With a Limit only the
// newest Limit entries are returned.
func (s *Store) QueryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.EntityID != nil {
		where = append(where, "entity_id = ?")
		args = append(args, *filter.EntityID)
	}
	if filter.Reference != nil {
		where = append(where, "reference = ?")
		args = append(args, *filter.Reference)
	}
	if len(filter.Actions) > 0 {
		actions := make([]string, 0, len(filter.Actions))
		for _, a := range filter.Actions {
			actions = append(actions, string(a))
		}
		where = append(where, "action IN (?)")
		args = append(args, actions)
	}

	query := `SELECT * FROM audit_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ts DESC, id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}

	var rows []auditRow
	if err := s.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	out := make([]generic.AuditEntry, len(rows))
	for i, r := range rows {
		ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("invalid audit timestamp %q: %w", r.Timestamp, err)
		}
		entry := generic.AuditEntry{
			ID:        r.ID,
			Timestamp: ts,
			ActorID:   r.ActorID,
			Action:    generic.AuditAction(r.Action),
			EntityID:  generic.EntityID(r.EntityID),
			Reference: r.Reference,
		}
		if r.PayloadJSON.Valid && r.PayloadJSON.String != "" {
			if err := json.Unmarshal([]byte(r.PayloadJSON.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("invalid audit payload: %w", err)
			}
		}
		// Reverse into ascending order.
		out[len(rows)-1-i] = entry
	}
	return out, nil
}
