// Package types provides common types used across the billing engine.
package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money represents a USD monetary value with fixed-point decimal arithmetic.
// Internal accumulation is unrounded; Round is applied once per externally
// observable figure (persisted snapshots, reported totals), half-up to two
// fractional digits. The ledger is single-currency — Convert exists for
// display conversion only and never feeds back into stored amounts.
type Money struct {
	dec decimal.Decimal
}

// Constructors

// Zero returns the zero Money value.
func Zero() Money { return Money{} }

// FromDecimal wraps a decimal value as Money.
func FromDecimal(d decimal.Decimal) Money { return Money{dec: d} }

// FromInt creates a Money value from whole dollars.
func FromInt(dollars int64) Money { return Money{dec: decimal.NewFromInt(dollars)} }

// FromCents creates a Money value from an integer number of cents.
func FromCents(cents int64) Money { return Money{dec: decimal.New(cents, -2)} }

// Parse parses a decimal string ("49.00", "-12.5") into Money.
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return Money{dec: d}, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded values.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Sum calculates the sum of multiple Money values.
func Sum(values ...Money) Money {
	var total Money
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Arithmetic operations

// Add adds two Money values.
func (m Money) Add(other Money) Money { return Money{dec: m.dec.Add(other.dec)} }

// Subtract subtracts another Money value.
func (m Money) Subtract(other Money) Money { return Money{dec: m.dec.Sub(other.dec)} }

// Multiply multiplies the Money by an integer quantity.
func (m Money) Multiply(qty int64) Money {
	return Money{dec: m.dec.Mul(decimal.NewFromInt(qty))}
}

// Scale multiplies the Money by an arbitrary decimal factor without rounding.
func (m Money) Scale(factor decimal.Decimal) Money { return Money{dec: m.dec.Mul(factor)} }

// Percent returns rate% of the Money, unrounded (rate=16 means 16%).
func (m Money) Percent(rate decimal.Decimal) Money {
	return Money{dec: m.dec.Mul(rate).Div(decimal.NewFromInt(100))}
}

// Ratio returns m/denominator as an unrounded decimal factor.
// Panics if denominator is zero.
func (m Money) Ratio(denominator Money) decimal.Decimal {
	if denominator.dec.IsZero() {
		panic("money: ratio with zero denominator")
	}
	return m.dec.Div(denominator.dec)
}

// Negate returns the negative of the Money value.
func (m Money) Negate() Money { return Money{dec: m.dec.Neg()} }

// Abs returns the absolute value.
func (m Money) Abs() Money { return Money{dec: m.dec.Abs()} }

// Round rounds to two fractional digits, half-up. Every externally
// observable figure passes through here exactly once.
func (m Money) Round() Money { return Money{dec: m.dec.Round(2)} }

// Convert applies a display FX rate and rounds to two digits.
// Display-only: converted values must never be posted to the ledger.
func (m Money) Convert(rate decimal.Decimal) Money {
	return Money{dec: m.dec.Mul(rate).Round(2)}
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.dec.IsZero() }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.dec.IsPositive() }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.dec.IsNegative() }

// Equal returns true if both Money values are numerically equal.
func (m Money) Equal(other Money) bool { return m.dec.Equal(other.dec) }

// LessThan returns true if this Money is less than other.
func (m Money) LessThan(other Money) bool { return m.dec.LessThan(other.dec) }

// GreaterThan returns true if this Money is greater than other.
func (m Money) GreaterThan(other Money) bool { return m.dec.GreaterThan(other.dec) }

// Min returns the smaller of two Money values.
func (m Money) Min(other Money) Money {
	if m.dec.LessThan(other.dec) {
		return m
	}
	return other
}

// Max returns the larger of two Money values.
func (m Money) Max(other Money) Money {
	if m.dec.GreaterThan(other.dec) {
		return m
	}
	return other
}

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.dec }

// Formatting

// FormatMajor returns the amount as a plain two-digit decimal string ("49.00").
func (m Money) FormatMajor() string { return m.dec.StringFixed(2) }

// String returns a human-readable USD string ("$49.00", "-$12.50").
func (m Money) String() string {
	if m.dec.IsNegative() {
		return "-$" + m.dec.Neg().StringFixed(2)
	}
	return "$" + m.dec.StringFixed(2)
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount  string `json:"amount"`
		Display string `json:"display"`
	}{
		Amount:  m.dec.String(),
		Display: m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. Accepts either the object
// form produced by MarshalJSON or a bare decimal string/number.
func (m *Money) UnmarshalJSON(data []byte) error {
	var obj struct {
		Amount string `json:"amount"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Amount != "" {
		parsed, perr := Parse(obj.Amount)
		if perr != nil {
			return perr
		}
		*m = parsed
		return nil
	}

	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("money: unmarshal %s: %w", string(data), err)
	}
	*m = Money{dec: d}
	return nil
}

// Value implements driver.Valuer for database storage.
func (m Money) Value() (driver.Value, error) {
	return m.dec.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (m *Money) Scan(src any) error {
	if src == nil {
		*m = Money{}
		return nil
	}
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("money: cannot scan %T: %w", src, err)
	}
	*m = Money{dec: d}
	return nil
}
