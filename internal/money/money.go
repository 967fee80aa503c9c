package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrDivisionByZero is returned when dividing a Money by zero.
var ErrDivisionByZero = errors.New("money: division by zero")

// DisplayPlaces is the number of fractional digits money is rounded to at the
// storage and display boundary. All intermediate arithmetic stays exact.
const DisplayPlaces = 2

// Money is an exact decimal amount. The zero value is 0.00.
//
// Arithmetic never rounds; rounding to two places happens only in String,
// StoredDecimal, Float64 and Equal. Rounding is half away from zero, so
// 10.125 stores as 10.13.
type Money struct {
	d decimal.Decimal
}

// Zero returns a zero amount.
func Zero() Money {
	return Money{}
}

// FromInt builds a Money from a whole number of currency units.
func FromInt(v int64) Money {
	return Money{d: decimal.NewFromInt(v)}
}

// FromDecimal wraps an already-exact decimal.
func FromDecimal(d decimal.Decimal) Money {
	return Money{d: d}
}

// FromString parses a decimal string such as "19.99" or "-0.5".
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return Money{d: d}, nil
}

// MustFromString is FromString for literals in tests and seed data.
func MustFromString(s string) Money {
	m, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(other Money) Money {
	return Money{d: m.d.Add(other.d)}
}

func (m Money) Sub(other Money) Money {
	return Money{d: m.d.Sub(other.d)}
}

func (m Money) Mul(other Money) Money {
	return Money{d: m.d.Mul(other.d)}
}

// MulInt scales the amount by a quantity.
func (m Money) MulInt(n int64) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(n))}
}

// MulBps applies a basis-point rate (10000 bps = 100%) exactly.
func (m Money) MulBps(bps int64) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000))}
}

// Div divides by other, failing on a zero divisor.
func (m Money) Div(other Money) (Money, error) {
	if other.d.IsZero() {
		return Money{}, ErrDivisionByZero
	}
	return Money{d: m.d.Div(other.d)}, nil
}

func (m Money) Neg() Money {
	return Money{d: m.d.Neg()}
}

// Cmp compares the exact, unrounded values: -1 if m < other, 0 if equal, 1 if greater.
func (m Money) Cmp(other Money) int {
	return m.d.Cmp(other.d)
}

// Equal reports cent equality: both sides are rounded to two places first, so
// 0.1+0.2 equals 0.3 even though the exact intermediates differ in scale.
func (m Money) Equal(other Money) bool {
	return m.StoredDecimal(DisplayPlaces).Equal(other.StoredDecimal(DisplayPlaces))
}

func (m Money) LessThan(other Money) bool {
	return m.d.Cmp(other.d) < 0
}

func (m Money) GreaterThan(other Money) bool {
	return m.d.Cmp(other.d) > 0
}

func (m Money) IsZero() bool {
	return m.d.IsZero()
}

func (m Money) IsNegative() bool {
	return m.d.IsNegative()
}

// StoredDecimal rounds half away from zero to the given number of places,
// producing the value persisted to NUMERIC columns.
func (m Money) StoredDecimal(places int32) decimal.Decimal {
	return m.d.Round(places)
}

// Exact exposes the unrounded decimal for further exact arithmetic.
func (m Money) Exact() decimal.Decimal {
	return m.d
}

// Float64 returns a rounded approximation for display convenience only; never
// feed it back into arithmetic.
func (m Money) Float64() float64 {
	f, _ := m.d.Round(DisplayPlaces).Float64()
	return f
}

// String renders the amount rounded half-up with exactly two fractional
// digits, e.g. "0.30", "-12.05", "0.00".
func (m Money) String() string {
	return m.d.StringFixed(DisplayPlaces)
}

// MarshalJSON renders the rounded display form as a JSON string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a bare number literal. The
// number path is parsed from its textual form, never via float64.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
