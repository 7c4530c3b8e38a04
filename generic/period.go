package generic

// =============================================================================
// PERIOD - Closed date interval
// =============================================================================

// Period is the closed interval [Start, End].
type Period struct {
	Start TimePoint
	End   TimePoint
}

// WeekOf returns the Monday..Sunday period starting at weekStart.
func WeekOf(weekStart TimePoint) Period {
	return Period{Start: weekStart, End: weekStart.AddDays(6)}
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Overlaps reports whether two closed periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// VALIDITY - Interval with an optional end
// =============================================================================

// Validity is [From, To] where a nil To means open-ended.
type Validity struct {
	From TimePoint
	To   *TimePoint
}

func (v Validity) Contains(t TimePoint) bool {
	if t.Before(v.From) {
		return false
	}
	return v.To == nil || t.BeforeOrEqual(*v.To)
}

func (v Validity) Overlaps(other Validity) bool {
	if v.To != nil && v.To.Before(other.From) {
		return false
	}
	if other.To != nil && other.To.Before(v.From) {
		return false
	}
	return true
}

// Clip bounds an open validity with horizon and returns it as a Period.
func (v Validity) Clip(horizon TimePoint) Period {
	end := horizon
	if v.To != nil {
		end = *v.To
	}
	return Period{Start: v.From, End: end}
}
