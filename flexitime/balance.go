/*
balance.go - Running flexitime balance chained week over week

PURPOSE:
  Each submitted week carries previous_balance and running_balance:

    previous_balance = running_balance of the Submitted week starting
                       week_start - 7 days
                       else initial_balance of the pattern active at
                       week_start
                       else 0
    running_balance  = previous_balance + weekly_delta

CASCADE:
  When a week is submitted, cancelled or amended, every later Submitted
  week of the employee is recomputed in week_start order, each persisted
  before the next reads it. The employee's CurrentBalance is then copied
  from the latest Submitted week; with none left it stays as it was.

  CurrentBalance is a cache. Nothing but this file writes it.

SEE ALSO:
  - submit.go: Triggers the cascade
  - jobs.go: Weekly full recalculation
*/
package flexitime

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warp/flexitime-engine/generic"
)

// BalanceResult is the outcome of RecomputeWeek.
type BalanceResult struct {
	PreviousBalance generic.Amount
	RunningBalance  generic.Amount
}

// ChainStore is what the chain reads and writes.
type ChainStore interface {
	WeekStore
	EmployeeStore
}

type BalanceChain struct {
	Store    ChainStore
	Patterns PatternSource
	Logger   zerolog.Logger
}

func NewBalanceChain(store ChainStore, patterns PatternSource, logger zerolog.Logger) *BalanceChain {
	return &BalanceChain{Store: store, Patterns: patterns, Logger: logger}
}

// RecomputeWeek derives the balance pair of week from stored data. It does
// not write; calling it twice on unchanged data gives the same result.
func (c *BalanceChain) RecomputeWeek(ctx context.Context, week WeeklyBalance) (BalanceResult, error) {
	previous, err := c.previousBalance(ctx, week.EntityID, week.WeekStart)
	if err != nil {
		return BalanceResult{}, err
	}
	return BalanceResult{
		PreviousBalance: previous,
		RunningBalance:  previous.Add(week.WeeklyDelta),
	}, nil
}

func (c *BalanceChain) previousBalance(ctx context.Context, entityID generic.EntityID, weekStart generic.TimePoint) (generic.Amount, error) {
	prior, err := c.Store.GetWeek(ctx, entityID, weekStart.AddDays(-7))
	if err != nil {
		return generic.ZeroHours(), fmt.Errorf("get previous week: %w", err)
	}
	if prior != nil && prior.IsSubmitted() {
		return prior.RunningBalance, nil
	}

	if c.Patterns == nil {
		return generic.ZeroHours(), nil
	}
	pattern, err := c.Patterns.WorkPatternAt(ctx, entityID, weekStart)
	if err != nil {
		return generic.ZeroHours(), fmt.Errorf("resolve work pattern: %w", err)
	}
	if pattern == nil {
		return generic.ZeroHours(), nil
	}
	return generic.ZeroHours().Add(pattern.InitialBalance), nil
}

// Apply copies a result onto week.
func (r BalanceResult) Apply(week *WeeklyBalance) {
	week.PreviousBalance = r.PreviousBalance
	week.RunningBalance = r.RunningBalance
}

func (r BalanceResult) changes(week WeeklyBalance) bool {
	return !r.PreviousBalance.Equal(week.PreviousBalance) || !r.RunningBalance.Equal(week.RunningBalance)
}

// CascadeRecompute recomputes every Submitted week after fromWeekStart and
// refreshes the employee's balance cache.
func (c *BalanceChain) CascadeRecompute(ctx context.Context, entityID generic.EntityID, fromWeekStart generic.TimePoint) error {
	after := fromWeekStart.AddDays(1)
	weeks, err := c.Store.ListWeeks(ctx, WeekFilter{
		EntityID: &entityID,
		From:     &after,
		Statuses: []DocStatus{StatusSubmitted},
	})
	if err != nil {
		return fmt.Errorf("list later weeks: %w", err)
	}

	updated, err := c.recomputeInOrder(ctx, weeks)
	if err != nil {
		return err
	}
	if updated > 0 {
		c.Logger.Debug().
			Str("employee", string(entityID)).
			Str("from", fromWeekStart.String()).
			Int("updated", updated).
			Msg("cascaded balance recompute")
	}
	return c.refreshCache(ctx, entityID)
}

// RecalculateEmployee recomputes the whole chain of an employee. Returns the
// number of weeks whose balance changed.
func (c *BalanceChain) RecalculateEmployee(ctx context.Context, entityID generic.EntityID) (int, error) {
	weeks, err := c.Store.ListWeeks(ctx, WeekFilter{
		EntityID: &entityID,
		Statuses: []DocStatus{StatusSubmitted},
	})
	if err != nil {
		return 0, fmt.Errorf("list weeks: %w", err)
	}
	updated, err := c.recomputeInOrder(ctx, weeks)
	if err != nil {
		return updated, err
	}
	return updated, c.refreshCache(ctx, entityID)
}

func (c *BalanceChain) recomputeInOrder(ctx context.Context, weeks []WeeklyBalance) (int, error) {
	updated := 0
	for _, week := range weeks {
		result, err := c.RecomputeWeek(ctx, week)
		if err != nil {
			return updated, err
		}
		if !result.changes(week) {
			continue
		}
		result.Apply(&week)
		if err := c.Store.SaveWeek(ctx, week); err != nil {
			return updated, fmt.Errorf("save week %s: %w", week.WeekStart, err)
		}
		updated++
	}
	return updated, nil
}

// refreshCache copies the latest Submitted running balance to the employee.
func (c *BalanceChain) refreshCache(ctx context.Context, entityID generic.EntityID) error {
	weeks, err := c.Store.ListWeeks(ctx, WeekFilter{
		EntityID: &entityID,
		Statuses: []DocStatus{StatusSubmitted},
	})
	if err != nil {
		return fmt.Errorf("list weeks: %w", err)
	}
	if len(weeks) == 0 {
		return nil
	}
	latest := weeks[len(weeks)-1]
	if err := c.Store.UpdateCurrentBalance(ctx, entityID, latest.RunningBalance); err != nil {
		return fmt.Errorf("update current balance: %w", err)
	}
	return nil
}
