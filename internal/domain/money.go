package domain

import (
	"database/sql/driver"
	"fmt"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Fraction digits for the two fixed-point kinds. Money is currency
// (2 digits); Quantity supports fractional shares (4 digits).
const (
	MoneyPlaces    int32 = 2
	QuantityPlaces int32 = 4
)

// Money is an exact base-10 monetary amount with 2 fraction digits.
// All ledger mutations go through this type; float64 is never persisted
// or compared against a balance.
type Money struct {
	d decimal.Decimal
}

// NewMoneyFromString parses a decimal string into Money, rounding to
// 2 fraction digits (half away from zero).
func NewMoneyFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid monetary amount %q: %w", s, err)
	}
	return Money{d: d.Round(MoneyPlaces)}, nil
}

// MustMoney parses a decimal string and panics on failure. For constants
// and tests only.
func MustMoney(s string) Money {
	m, err := NewMoneyFromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyZero is the zero amount.
var MoneyZero = Money{}

func (m Money) Add(n Money) Money { return Money{d: m.d.Add(n.d)} }
func (m Money) Sub(n Money) Money { return Money{d: m.d.Sub(n.d)} }
func (m Money) Neg() Money        { return Money{d: m.d.Neg()} }

// MulQuantity computes m × q rounded to 2 fraction digits, half away
// from zero. This is the only rounding rule in the ledger.
func (m Money) MulQuantity(q Quantity) Money {
	return Money{d: m.d.Mul(q.d).Round(MoneyPlaces)}
}

// DivQuantity computes m ÷ q rounded to 2 fraction digits, half away
// from zero. Returns ErrDivisionByZero when q is zero; callers never
// reach that branch when the position invariants hold, but the guard is
// mandatory.
func (m Money) DivQuantity(q Quantity) (Money, error) {
	if q.IsZero() {
		return Money{}, ErrDivisionByZero
	}
	return Money{d: m.d.DivRound(q.d, MoneyPlaces)}, nil
}

func (m Money) Cmp(n Money) int                 { return m.d.Cmp(n.d) }
func (m Money) LessThan(n Money) bool           { return m.d.LessThan(n.d) }
func (m Money) GreaterThan(n Money) bool        { return m.d.GreaterThan(n.d) }
func (m Money) GreaterThanOrEqual(n Money) bool { return m.d.GreaterThanOrEqual(n.d) }
func (m Money) IsZero() bool                    { return m.d.IsZero() }
func (m Money) IsNegative() bool                { return m.d.IsNegative() }
func (m Money) IsPositive() bool                { return m.d.IsPositive() }
func (m Money) Equal(n Money) bool              { return m.d.Equal(n.d) }

// String returns the plain decimal representation with 2 fraction digits
// (e.g. "1234.50"). This is also the persisted form.
func (m Money) String() string {
	return m.d.StringFixed(MoneyPlaces)
}

// Display returns a human-readable USD rendering (e.g. "$1,234.50").
func (m Money) Display() string {
	cents := m.d.Shift(MoneyPlaces).IntPart()
	return gomoney.New(cents, gomoney.USD).Display()
}

// Value implements driver.Valuer; Money round-trips through SQL as TEXT.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner.
func (m *Money) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = Money{}
		return nil
	case string:
		parsed, err := NewMoneyFromString(v)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case []byte:
		return m.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Money", src)
	}
}

// MarshalJSON encodes Money as a JSON string to keep exactness on the wire.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare decimal values.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := NewMoneyFromString(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Quantity is an exact base-10 share count with 4 fraction digits,
// supporting fractional shares.
type Quantity struct {
	d decimal.Decimal
}

// NewQuantityFromString parses a decimal string into Quantity, rounding
// to 4 fraction digits (half away from zero).
func NewQuantityFromString(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	return Quantity{d: d.Round(QuantityPlaces)}, nil
}

// NewQuantityFromInt builds a whole-share Quantity.
func NewQuantityFromInt(n int64) Quantity {
	return Quantity{d: decimal.NewFromInt(n)}
}

// MustQuantity parses a decimal string and panics on failure. For tests.
func MustQuantity(s string) Quantity {
	q, err := NewQuantityFromString(s)
	if err != nil {
		panic(err)
	}
	return q
}

// QuantityZero is the zero quantity.
var QuantityZero = Quantity{}

func (q Quantity) Add(p Quantity) Quantity { return Quantity{d: q.d.Add(p.d)} }
func (q Quantity) Sub(p Quantity) Quantity { return Quantity{d: q.d.Sub(p.d)} }

func (q Quantity) Cmp(p Quantity) int        { return q.d.Cmp(p.d) }
func (q Quantity) LessThan(p Quantity) bool  { return q.d.LessThan(p.d) }
func (q Quantity) GreaterThan(p Quantity) bool { return q.d.GreaterThan(p.d) }
func (q Quantity) IsZero() bool              { return q.d.IsZero() }
func (q Quantity) IsPositive() bool          { return q.d.IsPositive() }
func (q Quantity) IsNegative() bool          { return q.d.IsNegative() }
func (q Quantity) Equal(p Quantity) bool     { return q.d.Equal(p.d) }

// String returns the plain decimal representation (trailing zeros
// trimmed), which is also the persisted form.
func (q Quantity) String() string {
	return q.d.String()
}

// Value implements driver.Valuer; Quantity round-trips through SQL as TEXT.
func (q Quantity) Value() (driver.Value, error) {
	return q.String(), nil
}

// Scan implements sql.Scanner.
func (q *Quantity) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*q = Quantity{}
		return nil
	case string:
		parsed, err := NewQuantityFromString(v)
		if err != nil {
			return err
		}
		*q = parsed
		return nil
	case []byte:
		return q.Scan(string(v))
	case int64:
		*q = NewQuantityFromInt(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Quantity", src)
	}
}

// MarshalJSON encodes Quantity as a JSON string.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + q.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare decimal values.
func (q *Quantity) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := NewQuantityFromString(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
