/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages return these (or wrap them with %w) so the HTTP layer
  can map them to status codes with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Validation errors - Business rule violations, raised at the point of
     mutation and never coerced
  2. Configuration missing - No work pattern or settings for a date.
     Calculators fall back to a safe default, gates raise.
  3. Lock / permission errors - Cooperative is_locked guard, privileged
     actions
  4. Inconsistency warnings - Logged, not raised

SEE ALSO:
  - flexitime/submit.go: Gates returning these errors
  - api/handlers.go: HTTP mapping
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrConfigurationMissing is returned when no work pattern or setting
	// covers the date a gate needs.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrLocked is returned when a locked record is mutated by a
	// non-privileged actor.
	ErrLocked = errors.New("record is locked")

	// ErrForbidden is returned when an action needs a privileged actor.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when a write collides with existing state.
	ErrConflict = errors.New("conflict")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes one rejected field or rule.
type ValidationError struct {
	Field   string
	Code    string // e.g. "negative_hours", "not_monday", "out_of_order"
	Message string
}

func NewValidationError(field, code, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ValidationErrors collects several violations found in one pass.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, 0, len(es))
	for _, e := range es {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (es ValidationErrors) Unwrap() error { return ErrValidation }

// OrNil returns nil for an empty collection.
func (es ValidationErrors) OrNil() error {
	if len(es) == 0 {
		return nil
	}
	return es
}

// ConfigurationMissingError names the missing configuration.
type ConfigurationMissingError struct {
	EntityID EntityID
	Date     TimePoint
	What     string // e.g. "work pattern"
}

func (e *ConfigurationMissingError) Error() string {
	return fmt.Sprintf("no %s for %s on %s", e.What, e.EntityID, e.Date)
}

func (e *ConfigurationMissingError) Unwrap() error { return ErrConfigurationMissing }

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// LockedError names the locked record.
type LockedError struct {
	Kind string
	ID   string
}

func (e *LockedError) Error() string { return fmt.Sprintf("%s %s is locked", e.Kind, e.ID) }

func (e *LockedError) Unwrap() error { return ErrLocked }

// =============================================================================
// WARNINGS - Logged, never returned
// =============================================================================

// InconsistencyWarning flags a weekly adjusted total that differs from the
// sum of the daily expectations. The adjusted figure stays authoritative.
type InconsistencyWarning struct {
	EntityID  EntityID
	WeekStart TimePoint
	Adjusted  Amount
	DailySum  Amount
}

func (w InconsistencyWarning) Difference() Amount { return w.Adjusted.Sub(w.DailySum).Abs() }

func (w InconsistencyWarning) String() string {
	return fmt.Sprintf("week %s for %s: adjusted %s vs daily sum %s",
		w.WeekStart, w.EntityID, w.Adjusted, w.DailySum)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConfigurationMissing(err error) bool {
	return errors.Is(err, ErrConfigurationMissing)
}
