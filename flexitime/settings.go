package flexitime

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/flexitime-engine/generic"
)

// Settings are the tenant-wide knobs of the engine.
type Settings struct {
	// BaseWeeklyHours applies to org units without their own baseline.
	BaseWeeklyHours generic.Amount

	// Tolerance is the allowed gap between the adjusted weekly total and
	// the sum of daily expectations before a warning is logged.
	Tolerance generic.Amount

	AutoLockEnabled   bool
	AutoLockAfterDays int

	SubmissionRemindersEnabled bool
	ReminderWeekday            time.Weekday

	// PresenceHorizonDays is how far ahead the daily job creates System
	// presence entries.
	PresenceHorizonDays int

	// DayOffHorizonDays bounds day-off markers of open-ended patterns.
	DayOffHorizonDays int

	// BalanceWarningRatio of the flexitime limit triggers a warning alert.
	BalanceWarningRatio decimal.Decimal
}

func DefaultSettings() Settings {
	return Settings{
		BaseWeeklyHours:            DefaultBaseWeeklyHours,
		Tolerance:                  generic.NewHours(0.5),
		AutoLockEnabled:            true,
		AutoLockAfterDays:          14,
		SubmissionRemindersEnabled: true,
		ReminderWeekday:            time.Monday,
		PresenceHorizonDays:        14,
		DayOffHorizonDays:          365,
		BalanceWarningRatio:        decimal.NewFromFloat(0.8),
	}
}

// withDefaults fills zero fields from DefaultSettings.
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.BaseWeeklyHours.IsZero() {
		s.BaseWeeklyHours = d.BaseWeeklyHours
	}
	if s.Tolerance.IsZero() {
		s.Tolerance = d.Tolerance
	}
	if s.AutoLockAfterDays <= 0 {
		s.AutoLockAfterDays = d.AutoLockAfterDays
	}
	if s.PresenceHorizonDays <= 0 {
		s.PresenceHorizonDays = d.PresenceHorizonDays
	}
	if s.DayOffHorizonDays <= 0 {
		s.DayOffHorizonDays = d.DayOffHorizonDays
	}
	if s.BalanceWarningRatio.IsZero() {
		s.BalanceWarningRatio = d.BalanceWarningRatio
	}
	return s
}
