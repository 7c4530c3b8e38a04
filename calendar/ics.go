/*
ics.go - Holiday import from iCalendar feeds

PURPOSE:
  Cantonal and national holiday lists are published as .ics feeds. This
  file turns such a feed into generic.Holiday records for one calendar.

MAPPING:
  - Every VEVENT with a SUMMARY is a holiday named after it
  - All-day events: one holiday per date from DTSTART up to DTEND
    (exclusive); a missing DTEND means a single day
  - Timed events count on the date of DTSTART
  - RRULE with FREQ=YEARLY marks the holiday recurring (same month/day)
  - Holiday IDs are "<calendar>-<date>" so re-importing a feed upserts

SEE ALSO:
  - generic/time.go: Holiday, OccursOn
  - api/handlers.go: POST /api/calendars/{id}/import
*/
package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/warp/flexitime-engine/generic"
)

const (
	maxFeedSize  = 5 * 1024 * 1024
	fetchTimeout = 30 * time.Second

	// maxEventDays bounds a single multi-day event.
	maxEventDays = 31
)

var dateLayouts = []string{
	"20060102T150405Z",
	"20060102T150405",
	"20060102",
}

// ParseHolidays reads an iCalendar feed into holidays of calendarID,
// ordered as they appear in the feed.
func ParseHolidays(r io.Reader, calendarID string) ([]generic.Holiday, error) {
	if calendarID == "" {
		return nil, generic.NewValidationError("calendar_id", "required", "calendar id is required")
	}
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse iCalendar feed: %w", err)
	}

	seen := map[string]bool{}
	var out []generic.Holiday
	for _, evt := range cal.Events() {
		summary := evt.GetProperty(ics.ComponentPropertySummary)
		if summary == nil || strings.TrimSpace(summary.Value) == "" {
			continue
		}
		dates, err := eventDates(evt)
		if err != nil {
			return nil, err
		}
		recurring := isYearly(evt)
		for _, d := range dates {
			id := calendarID + "-" + d.String()
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, generic.Holiday{
				ID:         id,
				CalendarID: calendarID,
				Date:       d,
				Name:       strings.TrimSpace(summary.Value),
				Recurring:  recurring,
			})
		}
	}
	return out, nil
}

func eventDates(evt *ics.VEvent) ([]generic.TimePoint, error) {
	start, allDay, err := propertyDate(evt, ics.ComponentPropertyDtStart)
	if err != nil {
		return nil, err
	}
	if !allDay {
		return []generic.TimePoint{start}, nil
	}
	end, _, err := propertyDate(evt, ics.ComponentPropertyDtEnd)
	if err != nil || !end.After(start) {
		return []generic.TimePoint{start}, nil
	}

	var dates []generic.TimePoint
	for d := start; d.Before(end) && len(dates) < maxEventDays; d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return dates, nil
}

// propertyDate returns the calendar date of a DTSTART/DTEND property. The
// boolean reports a date-only value. Times keep their wall-clock date,
// UTC values are taken as UTC.
func propertyDate(evt *ics.VEvent, name ics.ComponentProperty) (generic.TimePoint, bool, error) {
	prop := evt.GetProperty(name)
	if prop == nil {
		return generic.TimePoint{}, false, fmt.Errorf("event %q: missing %s", evt.Id(), name)
	}
	value := strings.TrimSpace(prop.Value)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		return generic.DateOf(t), layout == "20060102", nil
	}
	return generic.TimePoint{}, false, fmt.Errorf("event %q: unparseable %s %q", evt.Id(), name, value)
}

func isYearly(evt *ics.VEvent) bool {
	rrule := evt.GetProperty(ics.ComponentPropertyRrule)
	if rrule == nil {
		return false
	}
	for _, part := range strings.Split(strings.ToUpper(rrule.Value), ";") {
		if part == "FREQ=YEARLY" {
			return true
		}
	}
	return false
}

// Fetch downloads a feed. webcal:// is fetched over https and the body is
// capped at 5MB. The caller closes the reader.
func Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u := rawURL
	if strings.HasPrefix(u, "webcal://") {
		u = "https://" + strings.TrimPrefix(u, "webcal://")
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid feed url: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("failed to fetch feed: HTTP %d", resp.StatusCode)
	}
	return &limitedBody{
		Reader: io.LimitReader(resp.Body, maxFeedSize),
		body:   resp.Body,
		cancel: cancel,
	}, nil
}

type limitedBody struct {
	io.Reader
	body   io.Closer
	cancel context.CancelFunc
}

func (b *limitedBody) Close() error {
	defer b.cancel()
	return b.body.Close()
}

// Import parses a feed and upserts every holiday into store. It returns the
// number of holidays written.
func Import(ctx context.Context, store generic.HolidayStore, calendarID string, r io.Reader) (int, error) {
	holidays, err := ParseHolidays(r, calendarID)
	if err != nil {
		return 0, err
	}
	for _, h := range holidays {
		if err := store.SaveHoliday(ctx, h); err != nil {
			return 0, fmt.Errorf("failed to save holiday %s: %w", h.ID, err)
		}
	}
	return len(holidays), nil
}
