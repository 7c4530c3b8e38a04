package flexitime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/flexitime-engine/generic"
)

// Engine bundles the calculators over one Store. Services build a fresh
// Engine on the transaction store inside WithTx so every read sees the
// writes made earlier in the same transaction.
type Engine struct {
	Store    Store
	Settings Settings
	Calc     *Calculator
	Weeks    *WeekBuilder
	Chain    *BalanceChain
	Logger   zerolog.Logger
}

func NewEngine(store Store, settings Settings, logger zerolog.Logger) *Engine {
	settings = settings.withDefaults()
	calc := NewCalculator(store, settings, logger)
	return &Engine{
		Store:    store,
		Settings: settings,
		Calc:     calc,
		Weeks:    NewWeekBuilder(store, calc, settings, logger),
		Chain:    NewBalanceChain(store, calc.Patterns, logger),
		Logger:   logger,
	}
}

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

func (c Clock) Today() generic.TimePoint { return generic.DateOf(c.Now()) }

func newID() string { return uuid.NewString() }

// appendAudit records one state transition in the same transaction.
func appendAudit(ctx context.Context, store Store, now time.Time, actor Actor, action generic.AuditAction,
	entityID generic.EntityID, reference string, payload map[string]any) error {

	entry := generic.AuditEntry{
		ID:        newID(),
		Timestamp: now,
		ActorID:   actor.ID,
		Action:    action,
		EntityID:  entityID,
		Reference: reference,
		Payload:   payload,
	}
	if err := store.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}
