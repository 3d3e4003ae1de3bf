// Package types provides the fixed-point value types of the ledger.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact monetary amount (unit costs, stock values).
type Money = decimal.Decimal

// MustMoney parses s, panicking on error. Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// CostScale is the number of fractional digits kept for unit costs.
const CostScale int32 = 6

// RoundCost rounds a unit cost to CostScale digits.
func RoundCost(m Money) Money {
	return m.Round(CostScale)
}

// Quantity is a fixed-point stock quantity with 4 fractional digits.
//
// Stored as BIGINT (scaled integer); JSON is a number with 4 decimals.
// Food stock is counted in fractional units (kg, l), hence no plain int.
type Quantity int64

// QuantityScale is 10^4, the number of scaled units in one whole unit.
const QuantityScale int64 = 10_000

const quantityExp = -4

func NewQuantityFromFloat64(v float64) Quantity {
	return Quantity(math.Round(v * float64(QuantityScale)))
}

// NewQuantityFromDecimal converts a decimal, truncating beyond 4 fractional digits.
func NewQuantityFromDecimal(d decimal.Decimal) Quantity {
	return Quantity(d.Shift(-quantityExp).IntPart())
}

func (q Quantity) Int64Scaled() int64 { return int64(q) }

func (q Quantity) Float64() float64 { return float64(q) / float64(QuantityScale) }

func (q Quantity) IsZero() bool { return q == 0 }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) IsNegative() bool { return q < 0 }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// Decimal converts the quantity to an exact decimal value.
func (q Quantity) Decimal() decimal.Decimal {
	return decimal.New(int64(q), quantityExp)
}

// MulMoney returns q × m, e.g. the total cost of a movement.
func (q Quantity) MulMoney(m Money) Money {
	return q.Decimal().Mul(m)
}

// MinQuantity returns the smaller of a and b.
func MinQuantity(a, b Quantity) Quantity {
	if a < b {
		return a
	}
	return b
}

// String returns a decimal string with 4 fractional digits.
func (q Quantity) String() string {
	return q.Decimal().StringFixed(-quantityExp)
}

// MarshalJSON writes a JSON number, not a string.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	parsed, err := ParseQuantity(raw)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// ParseQuantity parses a decimal string such as "12.5" into a Quantity.
// Digits beyond the fourth fractional one are truncated.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	return NewQuantityFromDecimal(d), nil
}
