package pharmacy

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Exact fixed-point currency, two fractional digits
// =============================================================================

// MoneyScale is the number of fractional digits carried by every Money value.
const MoneyScale = 2

// Money is a currency amount with exactly two fractional digits.
// Arithmetic is exact; binary floating point never touches a Money value.
//
// In storage Money is persisted as integer minor units (cents), which is
// what Value/Scan produce and consume.
type Money struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{d: decimal.Zero}

// ErrMoneyOutOfRange is returned for amounts whose cents do not fit in an int64.
var ErrMoneyOutOfRange = errors.New("money amount out of range")

var (
	minCents = decimal.NewFromInt(math.MinInt64)
	maxCents = decimal.NewFromInt(math.MaxInt64)
)

// ParseMoney parses a decimal string such as "5.99". Values with more than two
// fractional digits are rounded half away from zero. Amounts that cannot be
// stored as int64 cents are rejected with ErrMoneyOutOfRange.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid money amount %q: %w", s, err)
	}
	m := Money{d: d.Round(MoneyScale)}
	if !m.InRange() {
		return Money{}, fmt.Errorf("%q: %w", s, ErrMoneyOutOfRange)
	}
	return m, nil
}

// MustMoney is ParseMoney for literals known to be valid. Panics otherwise.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyFromCents builds an amount from integer minor units.
func MoneyFromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -MoneyScale)}
}

// Cents returns the amount in minor units. Only meaningful when InRange.
func (m Money) Cents() int64 { return m.d.Shift(MoneyScale).IntPart() }

// InRange reports whether the amount fits in int64 cents.
func (m Money) InRange() bool {
	c := m.d.Shift(MoneyScale)
	return c.GreaterThanOrEqual(minCents) && c.LessThanOrEqual(maxCents)
}

func (m Money) Decimal() decimal.Decimal { return m.d }
func (m Money) Add(o Money) Money        { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money        { return Money{d: m.d.Sub(o.d)} }
func (m Money) Mul(qty int64) Money      { return Money{d: m.d.Mul(decimal.NewFromInt(qty))} }
func (m Money) IsZero() bool             { return m.d.IsZero() }
func (m Money) IsPositive() bool         { return m.d.IsPositive() }
func (m Money) IsNegative() bool         { return m.d.IsNegative() }
func (m Money) Equal(o Money) bool       { return m.d.Equal(o.d) }
func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }
func (m Money) String() string           { return m.d.StringFixed(MoneyScale) }

// Sum adds a list of amounts.
func Sum(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// MarshalJSON renders the amount as a JSON number with two decimals (11.98).
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string. A malformed
// or out of range amount is a ValidationError.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = Zero
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	parsed, err := ParseMoney(string(b))
	if err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	*m = parsed
	return nil
}

// Value stores the amount as integer cents.
func (m Money) Value() (driver.Value, error) {
	if !m.InRange() {
		return nil, fmt.Errorf("%s: %w", m, ErrMoneyOutOfRange)
	}
	return m.Cents(), nil
}

// Scan reads integer cents. Text values are hand-written rows and hold a
// decimal amount ("5.99"), not cents.
func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*m = MoneyFromCents(v)
	case []byte:
		return m.scanText(string(v))
	case string:
		return m.scanText(v)
	case nil:
		*m = Zero
	default:
		return fmt.Errorf("cannot scan %T into Money", src)
	}
	return nil
}

func (m *Money) scanText(s string) error {
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
