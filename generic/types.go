/*
Package generic provides the domain-agnostic building blocks of the leave ledger.

PURPOSE:
  This package holds the small value types every aggregate in the leave
  package is built from. None of them know what a policy or a balance is;
  they only know how to count days, compare dates, classify errors and
  describe a change for the audit trail.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A fixed-precision quantity with a unit (5.5 days, 1200.00 money)
  - Unit: What an Amount counts

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so half days never drift
  2. Value semantics: Every operation returns a new Amount
  3. Unit carried along: adding days to money is a programming error

USAGE:
  entitlement := generic.Days(15)
  used := generic.Days(3)
  remaining := entitlement.Sub(used) // 12 days

SEE ALSO:
  - time.go: TimePoint and day-count helpers
  - period.go: Inclusive date windows
  - errors.go: Error taxonomy shared by all aggregates
*/
package generic

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays  Unit = "days"
	UnitMoney Unit = "money"
)

// DayPrecision is the number of decimal places kept for day counts.
const DayPrecision = 4

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromDecimal(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

// Days is shorthand for NewAmount(value, UnitDays).
func Days(value float64) Amount { return NewAmount(value, UnitDays) }

// ZeroDays is an empty day amount.
func ZeroDays() Amount { return Amount{Value: decimal.Zero, Unit: UnitDays} }

// ParseDays parses a decimal string into a day amount.
func ParseDays(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse days %q: %w", s, err)
	}
	return Amount{Value: d, Unit: UnitDays}, nil
}

// MustParseDecimal is decimal.NewFromString for literals; it panics on bad input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Errorf("parse decimal %q: %w", s, err))
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.unit(b)} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.unit(b)} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) Abs() Amount                  { return Amount{Value: a.Value.Abs(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Clamp bounds a to [lo, hi].
func (a Amount) Clamp(lo, hi Amount) Amount {
	return a.Max(lo).Min(hi)
}

// Round rounds to DayPrecision decimal places.
func (a Amount) Round() Amount {
	return Amount{Value: a.Value.Round(DayPrecision), Unit: a.Unit}
}

func (a Amount) String() string {
	return a.Value.String() + " " + string(a.Unit)
}

// unit keeps the receiver's unit, falling back to the operand's when the
// receiver is an uninitialised zero value.
func (a Amount) unit(b Amount) Unit {
	if a.Unit == "" {
		return b.Unit
	}
	return a.Unit
}

// MarshalJSON encodes the value as a decimal string; the unit is implied by the field.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Value.String())
}

// UnmarshalJSON accepts both "1.5" and 1.5. The unit defaults to days.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	a.Value = d
	if a.Unit == "" {
		a.Unit = UnitDays
	}
	return nil
}
