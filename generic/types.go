/*
Package generic provides the domain-agnostic building blocks of the
flexitime engine.

PURPOSE:
  Hours, dates, validity windows, holiday calendars, audit entries and the
  error taxonomy live here. Nothing in this package knows about work
  patterns or weekly balances; the flexitime package builds on top of it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (8 hours, 0.5 days)
  - EntityID: Type-safe employee identifier

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, so 32 - 6.4 is exactly 25.6
  2. Type Safety: Strong typing for IDs prevents mixing identifiers

USAGE:
  normal := generic.NewHours(8.4)
  half := normal.Half()
  delta := actual.Sub(expected)

SEE ALSO:
  - time.go: TimePoint and holiday calendars
  - period.go: Period and open-ended validity ranges
  - errors.go: Error taxonomy
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit (hours for everything balance related)
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitHours Unit = "hours"
	UnitDays  Unit = "days"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewHours(value float64) Amount { return NewAmount(value, UnitHours) }

func HoursFromDecimal(d decimal.Decimal) Amount { return Amount{Value: d, Unit: UnitHours} }

func ZeroHours() Amount { return Amount{Value: decimal.Zero, Unit: UnitHours} }

// ParseHours parses a decimal string such as "8.25".
func ParseHours(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroHours(), err
	}
	return HoursFromDecimal(d), nil
}

// MustParseDecimal is decimal.RequireFromString: it panics on malformed
// input. Use it for literals only.
func MustParseDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.unit()} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.unit()} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.unit()} }
func (a Amount) Div(s decimal.Decimal) Amount { return Amount{Value: a.Value.Div(s), Unit: a.unit()} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.unit()} }
func (a Amount) Abs() Amount                  { return Amount{Value: a.Value.Abs(), Unit: a.unit()} }
func (a Amount) Half() Amount                 { return a.Div(decimal.NewFromInt(2)) }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Float() float64               { return a.Value.InexactFloat64() }
func (a Amount) String() string               { return a.Value.String() }

// FloorZero clamps negative amounts to zero.
func (a Amount) FloorZero() Amount {
	if a.IsNegative() {
		return a.Zero()
	}
	return a
}

func (a Amount) unit() Unit {
	if a.Unit == "" {
		return UnitHours
	}
	return a.Unit
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// EntityID identifies the person a record belongs to.
type EntityID string
