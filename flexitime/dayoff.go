package flexitime

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/flexitime-engine/generic"
)

// DayOffDates lists the Mon..Fri dates inside the pattern's validity with
// no contracted hours. Open-ended patterns stop at today + horizonDays.
// Weekends are not day-off markers.
func DayOffDates(pattern WorkPattern, today generic.TimePoint, horizonDays int) []generic.TimePoint {
	offDays := dayOffWeekdays(pattern)
	if len(offDays) == 0 {
		return nil
	}
	var dates []generic.TimePoint
	for _, day := range pattern.Validity().Clip(today.AddDays(horizonDays)).Days() {
		if offDays[day.Weekday()] {
			dates = append(dates, day)
		}
	}
	return dates
}

func dayOffWeekdays(pattern WorkPattern) map[time.Weekday]bool {
	off := map[time.Weekday]bool{}
	for _, d := range Weekdays[:5] {
		if !pattern.Hours.For(d).IsPositive() {
			off[d] = true
		}
	}
	return off
}

// syncDayOffMarkers removes unlocked System day-off entries that the
// pattern no longer calls for, then creates markers on dates without an
// entry. Returns the number created.
func syncDayOffMarkers(ctx context.Context, store Store, pattern WorkPattern, today generic.TimePoint,
	horizonDays int) (int, error) {

	types, err := store.ListPresenceTypes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list presence types: %w", err)
	}
	dayOff := SystemPresenceType(types, RoleDayOff)
	if dayOff == nil {
		return 0, nil
	}

	window := pattern.Validity().Clip(today.AddDays(horizonDays))
	offDays := dayOffWeekdays(pattern)

	existing, err := store.ListPresence(ctx, pattern.EntityID, window)
	if err != nil {
		return 0, fmt.Errorf("list presence: %w", err)
	}
	taken := map[string]bool{}
	for _, e := range existing {
		stale := e.PresenceType == dayOff.Name && e.Source.Kind == SourceSystem &&
			!e.IsLocked && !offDays[e.Date.Weekday()]
		if stale {
			if err := store.DeletePresence(ctx, e.EntityID, e.Date); err != nil {
				return 0, fmt.Errorf("delete stale day off: %w", err)
			}
			continue
		}
		taken[e.Date.String()] = true
	}

	created := 0
	for _, day := range DayOffDates(pattern, today, horizonDays) {
		if taken[day.String()] {
			continue
		}
		entry := PresenceEntry{
			EntityID:     pattern.EntityID,
			Date:         day,
			PresenceType: dayOff.Name,
			Source:       SystemSource(),
		}
		if err := store.SavePresence(ctx, entry); err != nil {
			return created, fmt.Errorf("save day off: %w", err)
		}
		created++
	}
	return created, nil
}

// removeDayOffMarkers deletes unlocked System day-off entries inside the
// pattern's validity.
func removeDayOffMarkers(ctx context.Context, store Store, pattern WorkPattern, today generic.TimePoint,
	horizonDays int) (int, error) {

	types, err := store.ListPresenceTypes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list presence types: %w", err)
	}
	dayOff := SystemPresenceType(types, RoleDayOff)
	if dayOff == nil {
		return 0, nil
	}
	entries, err := store.ListPresence(ctx, pattern.EntityID, pattern.Validity().Clip(today.AddDays(horizonDays)))
	if err != nil {
		return 0, fmt.Errorf("list presence: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.PresenceType != dayOff.Name || e.Source.Kind != SourceSystem || e.IsLocked {
			continue
		}
		if err := store.DeletePresence(ctx, e.EntityID, e.Date); err != nil {
			return removed, fmt.Errorf("delete day off: %w", err)
		}
		removed++
	}
	return removed, nil
}
