/*
store.go - Persistence contracts shared by every domain package

PURPOSE:
  Holds the pieces of the storage layer that are not specific to
  flexitime: the audit log. Domain stores (flexitime.Store) embed it, so
  every implementation records who did what, and when, next to the data
  it changed.

IMPLEMENTATIONS:
  - store/sqlstore: sqlite3 / postgres through sqlx
  - store/memory:   In-memory for tests and demos

SEE ALSO:
  - flexitime/store.go: Domain store interfaces
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// AUDIT LOG - Tracks who did what when (append-only)
// =============================================================================

// AuditEntry records one state transition.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	ActorID   string
	Action    AuditAction
	EntityID  EntityID
	Reference string         // id of the record the action touched
	Payload   map[string]any // action-specific data
}

type AuditAction string

const (
	AuditPatternCommitted AuditAction = "pattern_committed"
	AuditPatternCancelled AuditAction = "pattern_cancelled"
	AuditWeekSubmitted    AuditAction = "week_submitted"
	AuditWeekCancelled    AuditAction = "week_cancelled"
	AuditWeekAmended      AuditAction = "week_amended"
	AuditWeekLocked       AuditAction = "week_locked"
	AuditWeekUnlocked     AuditAction = "week_unlocked"
	AuditLeaveApproved    AuditAction = "leave_approved"
	AuditLeaveCancelled   AuditAction = "leave_cancelled"
	AuditBalanceRecompute AuditAction = "balance_recomputed"
)

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	EntityID  *EntityID
	Reference *string
	Actions   []AuditAction
	Limit     int
}

// Matches reports whether entry passes the filter.
func (f AuditFilter) Matches(entry AuditEntry) bool {
	if f.EntityID != nil && entry.EntityID != *f.EntityID {
		return false
	}
	if f.Reference != nil && entry.Reference != *f.Reference {
		return false
	}
	if len(f.Actions) == 0 {
		return true
	}
	for _, a := range f.Actions {
		if a == entry.Action {
			return true
		}
	}
	return false
}
