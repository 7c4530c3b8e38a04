package flexitime

import (
	"context"

	"github.com/rs/zerolog"
)

// EventPublisher delivers domain events to subscribers (mail, calendar
// sync, dashboards). pkg/messaging.Publisher satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// Routing keys.
const (
	EventPatternCommitted   = "flexitime.pattern.committed"
	EventPatternCancelled   = "flexitime.pattern.cancelled"
	EventWeekSubmitted      = "flexitime.week.submitted"
	EventWeekCancelled      = "flexitime.week.cancelled"
	EventWeekAmended        = "flexitime.week.amended"
	EventLeaveApproved      = "flexitime.leave.approved"
	EventLeaveCancelled     = "flexitime.leave.cancelled"
	EventBalanceAlert       = "flexitime.balance.alert"
	EventTimesheetMissing   = "flexitime.timesheet.missing"
	EventSubmissionReminder = "flexitime.timesheet.reminder"
)

type PatternEvent struct {
	PatternID     string `json:"pattern_id"`
	EmployeeID    string `json:"employee_id"`
	ValidFrom     string `json:"valid_from"`
	DayOffMarkers int    `json:"day_off_markers"`
}

type WeekEvent struct {
	WeekID         string `json:"week_id"`
	EmployeeID     string `json:"employee_id"`
	WeekStart      string `json:"week_start"`
	WeeklyDelta    string `json:"weekly_delta"`
	RunningBalance string `json:"running_balance"`
	ActorID        string `json:"actor_id"`
}

type LeaveEvent struct {
	ApplicationID string `json:"application_id"`
	EmployeeID    string `json:"employee_id"`
	LeaveType     string `json:"leave_type"`
	From          string `json:"from"`
	To            string `json:"to"`
}

// AlertLevel of a balance alert.
type AlertLevel string

const (
	AlertWarning AlertLevel = "warning"
	AlertExceed  AlertLevel = "exceeded"
)

type BalanceAlert struct {
	EmployeeID string     `json:"employee_id"`
	Balance    string     `json:"balance"`
	Limit      string     `json:"limit"`
	Level      AlertLevel `json:"level"`
}

type TimesheetNotice struct {
	EmployeeID string `json:"employee_id"`
	WeekStart  string `json:"week_start"`
	Status     string `json:"status"` // "missing" or "draft"
}

// publish delivers an event after the state change is committed. Failures
// are logged; the change itself stands.
func publish(ctx context.Context, p EventPublisher, logger zerolog.Logger, eventType string, data any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, eventType, data); err != nil {
		logger.Warn().Err(err).Str("event_type", eventType).Msg("event not published")
	}
}
