package flexitime

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/flexitime-engine/generic"
)

// =============================================================================
// SCHEDULED JOBS
// =============================================================================
//
// Jobs are the periodic tasks of the engine. api.Scheduler triggers them;
// each one is safe to run more than once per day.
//
//   Daily:    LockPastPresence, AutoCreatePresence, AutoLock
//   Monday:   CreateWeeklyDrafts, RecalculateBalances,
//             MissingTimesheetAlerts, CheckBalanceLimits
//   Reminder: SubmissionReminders (configured weekday)

type Jobs struct {
	Store     TxStore
	Weeks     *WeekService
	Presence  *PresenceService
	Settings  Settings
	Publisher EventPublisher
	Logger    zerolog.Logger
	Clock     Clock
}

func NewJobs(store TxStore, weeks *WeekService, settings Settings, publisher EventPublisher, logger zerolog.Logger) *Jobs {
	return &Jobs{
		Store:     store,
		Weeks:     weeks,
		Presence:  NewPresenceService(store, LeaveCalendar{Store: store}, logger),
		Settings:  settings.withDefaults(),
		Publisher: publisher,
		Logger:    logger.With().Str("component", "jobs").Logger(),
	}
}

// JobReport summarises one run.
type JobReport struct {
	PresenceLocked   int64
	PresenceCreated  int
	WeeksLocked      int
	DraftsCreated    int
	BalancesUpdated  int
	TimesheetNotices int
	BalanceAlerts    int
	Reminders        int
}

// RunDaily runs the daily jobs, and the Monday and reminder jobs when
// today matches.
func (j *Jobs) RunDaily(ctx context.Context) (JobReport, error) {
	var report JobReport
	var err error
	today := j.Clock.Today()

	if report.PresenceLocked, err = j.LockPastPresence(ctx); err != nil {
		return report, err
	}
	if report.PresenceCreated, err = j.AutoCreatePresence(ctx); err != nil {
		return report, err
	}
	if j.Settings.AutoLockEnabled {
		if report.WeeksLocked, err = j.Weeks.AutoLockSubmitted(ctx, j.Settings.AutoLockAfterDays); err != nil {
			return report, err
		}
	}
	if today.IsMonday() {
		if report.DraftsCreated, err = j.CreateWeeklyDrafts(ctx); err != nil {
			return report, err
		}
		if report.BalancesUpdated, err = j.RecalculateBalances(ctx); err != nil {
			return report, err
		}
		if report.TimesheetNotices, err = j.MissingTimesheetAlerts(ctx); err != nil {
			return report, err
		}
		if report.BalanceAlerts, err = j.CheckBalanceLimits(ctx); err != nil {
			return report, err
		}
	}
	if j.Settings.SubmissionRemindersEnabled && today.Weekday() == j.Settings.ReminderWeekday {
		if report.Reminders, err = j.SubmissionReminders(ctx); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (j *Jobs) activeEmployees(ctx context.Context) ([]Employee, error) {
	all, err := j.Store.ListEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	active := all[:0]
	for _, e := range all {
		if e.IsActive() {
			active = append(active, e)
		}
	}
	return active, nil
}

// LockPastPresence locks presence entries before the current Monday.
func (j *Jobs) LockPastPresence(ctx context.Context) (int64, error) {
	monday := generic.MondayOf(j.Clock.Today())
	n, err := j.Store.LockPresenceBefore(ctx, monday)
	if err != nil {
		return 0, fmt.Errorf("lock presence: %w", err)
	}
	j.Logger.Info().Int64("locked", n).Str("before", monday.String()).Msg("locked past presence")
	return n, nil
}

// AutoCreatePresence creates System presence entries (holidays) for the
// next PresenceHorizonDays on dates without an entry.
func (j *Jobs) AutoCreatePresence(ctx context.Context) (int, error) {
	employees, err := j.activeEmployees(ctx)
	if err != nil {
		return 0, err
	}
	today := j.Clock.Today()
	window := generic.Period{Start: today, End: today.AddDays(j.Settings.PresenceHorizonDays)}
	holidays := EmployeeHolidays{Employees: j.Store, Calendar: j.Store}

	created := 0
	for _, emp := range employees {
		existing, err := j.Store.ListPresence(ctx, emp.ID, window)
		if err != nil {
			return created, fmt.Errorf("list presence: %w", err)
		}
		taken := map[string]bool{}
		for _, e := range existing {
			taken[e.Date.String()] = true
		}
		for _, day := range window.Days() {
			if taken[day.String()] {
				continue
			}
			presenceType, source, leaveApp, err := j.Presence.AutoPresence(ctx, emp, day, holidays)
			if err != nil {
				j.Logger.Error().Err(err).Str("employee", string(emp.ID)).Str("date", day.String()).
					Msg("auto presence failed")
				continue
			}
			if presenceType == "" || source.Kind != SourceSystem {
				continue
			}
			entry := PresenceEntry{EntityID: emp.ID, Date: day, PresenceType: presenceType, Source: source,
				LeaveApplication: leaveApp}
			if err := j.Store.SavePresence(ctx, entry); err != nil {
				return created, fmt.Errorf("save presence: %w", err)
			}
			created++
		}
	}
	j.Logger.Info().Int("created", created).Msg("auto-created presence entries")
	return created, nil
}

// CreateWeeklyDrafts creates this week's Draft for every active employee.
func (j *Jobs) CreateWeeklyDrafts(ctx context.Context) (int, error) {
	employees, err := j.activeEmployees(ctx)
	if err != nil {
		return 0, err
	}
	monday := generic.MondayOf(j.Clock.Today())
	created := 0
	for _, emp := range employees {
		existing, err := j.Store.GetWeek(ctx, emp.ID, monday)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}
		if _, err := j.Weeks.CreateWeek(ctx, emp.ID, monday); err != nil {
			j.Logger.Error().Err(err).Str("employee", string(emp.ID)).Msg("weekly draft not created")
			continue
		}
		created++
	}
	j.Logger.Info().Int("created", created).Str("week_start", monday.String()).Msg("created weekly drafts")
	return created, nil
}

// RecalculateBalances re-chains every active employee.
func (j *Jobs) RecalculateBalances(ctx context.Context) (int, error) {
	employees, err := j.activeEmployees(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, emp := range employees {
		err := j.Store.WithTx(ctx, func(tx Store) error {
			n, err := NewEngine(tx, j.Settings, j.Logger).Chain.RecalculateEmployee(ctx, emp.ID)
			updated += n
			if err != nil || n == 0 {
				return err
			}
			return appendAudit(ctx, tx, j.Clock.Now(), SystemActor, generic.AuditBalanceRecompute, emp.ID, "",
				map[string]any{"weeks_updated": n})
		})
		if err != nil {
			return updated, err
		}
	}
	j.Logger.Info().Int("employees", len(employees)).Int("weeks_updated", updated).Msg("recalculated balances")
	return updated, nil
}

// lastWeekStatus is "missing", "draft" or "" for last week of emp.
func (j *Jobs) lastWeekStatus(ctx context.Context, emp Employee) (generic.TimePoint, string, error) {
	lastWeek := generic.MondayOf(j.Clock.Today()).AddDays(-7)
	week, err := j.Store.GetWeek(ctx, emp.ID, lastWeek)
	if err != nil {
		return lastWeek, "", err
	}
	switch {
	case week == nil:
		return lastWeek, "missing", nil
	case week.IsDraft():
		return lastWeek, "draft", nil
	default:
		return lastWeek, "", nil
	}
}

// MissingTimesheetAlerts publishes a notice per employee whose last week
// is missing or still a Draft.
func (j *Jobs) MissingTimesheetAlerts(ctx context.Context) (int, error) {
	return j.noticeLastWeek(ctx, EventTimesheetMissing)
}

// SubmissionReminders publishes reminders for last week's unsubmitted weeks.
func (j *Jobs) SubmissionReminders(ctx context.Context) (int, error) {
	return j.noticeLastWeek(ctx, EventSubmissionReminder)
}

func (j *Jobs) noticeLastWeek(ctx context.Context, eventType string) (int, error) {
	employees, err := j.activeEmployees(ctx)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, emp := range employees {
		weekStart, status, err := j.lastWeekStatus(ctx, emp)
		if err != nil {
			return sent, err
		}
		if status == "" {
			continue
		}
		publish(ctx, j.Publisher, j.Logger, eventType, TimesheetNotice{
			EmployeeID: string(emp.ID),
			WeekStart:  weekStart.String(),
			Status:     status,
		})
		sent++
	}
	j.Logger.Info().Str("event_type", eventType).Int("sent", sent).Msg("timesheet notices")
	return sent, nil
}

// CheckBalanceLimit classifies a balance against a flexitime limit. The
// empty level means within bounds.
func CheckBalanceLimit(balance, limit generic.Amount, warningRatio decimal.Decimal) AlertLevel {
	if !limit.IsPositive() {
		return ""
	}
	abs := balance.Abs()
	switch {
	case abs.GreaterThan(limit):
		return AlertExceed
	case abs.GreaterThan(limit.Mul(warningRatio)):
		return AlertWarning
	default:
		return ""
	}
}

// CheckBalanceLimits publishes an alert per employee over the limit of the
// pattern active today, or above the warning ratio of it.
func (j *Jobs) CheckBalanceLimits(ctx context.Context) (int, error) {
	employees, err := j.activeEmployees(ctx)
	if err != nil {
		return 0, err
	}
	patterns := StorePatterns{Store: j.Store}
	today := j.Clock.Today()
	alerts := 0
	for _, emp := range employees {
		pattern, err := patterns.WorkPatternAt(ctx, emp.ID, today)
		if err != nil {
			return alerts, err
		}
		if pattern == nil {
			continue
		}
		level := CheckBalanceLimit(emp.CurrentBalance, pattern.FlexitimeLimit, j.Settings.BalanceWarningRatio)
		if level == "" {
			continue
		}
		publish(ctx, j.Publisher, j.Logger, EventBalanceAlert, BalanceAlert{
			EmployeeID: string(emp.ID),
			Balance:    emp.CurrentBalance.String(),
			Limit:      pattern.FlexitimeLimit.String(),
			Level:      level,
		})
		alerts++
	}
	j.Logger.Info().Int("alerts", alerts).Msg("checked balance limits")
	return alerts, nil
}
