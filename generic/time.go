package generic

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Date-granular time abstraction
// =============================================================================

type TimePoint struct {
	Time        time.Time
	Granularity Granularity
}

type Granularity int

const (
	GranularityDay Granularity = iota
	GranularityHour
	GranularityMinute
)

const DateLayout = "2006-01-02"

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), Granularity: GranularityDay}
}

func DateOf(t time.Time) TimePoint { return NewTimePoint(t.Year(), t.Month(), t.Day()) }

func Today() TimePoint { return DateOf(time.Now()) }

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

func (tp TimePoint) normalize() time.Time {
	switch tp.Granularity {
	case GranularityDay:
		return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
	case GranularityHour:
		return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), tp.Time.Hour(), 0, 0, 0, time.UTC)
	default:
		return tp.Time
	}
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint {
	return TimePoint{Time: tp.Time.AddDate(0, 0, n), Granularity: tp.Granularity}
}

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsWeekend() bool       { wd := tp.Weekday(); return wd == time.Saturday || wd == time.Sunday }
func (tp TimePoint) IsWorkday() bool       { return !tp.IsWeekend() }
func (tp TimePoint) IsMonday() bool        { return tp.Weekday() == time.Monday }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	switch tp.Granularity {
	case GranularityDay:
		return tp.Time.Format(DateLayout)
	case GranularityHour:
		return tp.Time.Format("2006-01-02 15:00")
	default:
		return tp.Time.Format(time.RFC3339)
	}
}

// MondayOf returns the Monday of the ISO week containing tp.
func MondayOf(tp TimePoint) TimePoint {
	offset := (int(tp.Weekday()) + 6) % 7
	return DateOf(tp.Time).AddDays(-offset)
}

// =============================================================================
// HOLIDAY CALENDAR - Named holiday lists
// =============================================================================

// Holiday is one entry of a holiday list. Recurring holidays repeat on the
// same month/day every year.
type Holiday struct {
	ID         string
	CalendarID string
	Date       TimePoint
	Name       string
	Recurring  bool
}

// OccursOn reports whether the holiday falls on date.
func (h Holiday) OccursOn(date TimePoint) bool {
	if h.Recurring {
		return h.Date.Month() == date.Month() && h.Date.Day() == date.Day()
	}
	return h.Date.Equal(date)
}

// HolidayCalendar provides holiday lookup for a named calendar.
type HolidayCalendar interface {
	IsHoliday(ctx context.Context, calendarID string, date TimePoint) (bool, error)

	// HolidaysIn returns the dates in period that are holidays, ascending.
	HolidaysIn(ctx context.Context, calendarID string, period Period) ([]TimePoint, error)
}

// HolidayStore manages holiday lists.
type HolidayStore interface {
	HolidayCalendar
	SaveHoliday(ctx context.Context, h Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
	ListHolidays(ctx context.Context, calendarID string) ([]Holiday, error)
}

// HolidayDates expands holidays into the concrete dates they cover in period.
func HolidayDates(holidays []Holiday, period Period) []TimePoint {
	var dates []TimePoint
	for _, day := range period.Days() {
		for _, h := range holidays {
			if h.OccursOn(day) {
				dates = append(dates, day)
				break
			}
		}
	}
	return dates
}
