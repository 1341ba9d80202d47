package store

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is an amount in minor units (cents). It maps to numeric(10,2).
type Money int64

func Cents(c int64) Money { return Money(c) }

// ParseMoney accepts decimal text such as "12", "12.5" or "-3.75". More than
// two fraction digits are rounded half away from zero.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("money: empty amount")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}

	var cents int64
	if frac != "" {
		for _, r := range frac {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("money: parse %q: invalid fraction", s)
			}
		}
		padded := (frac + "00")[:2]
		cents, _ = strconv.ParseInt(padded, 10, 64)
		if len(frac) > 2 && frac[2] >= '5' {
			cents++
		}
	}

	total := units*100 + cents
	if neg {
		total = -total
	}
	return Money(total), nil
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Mul multiplies by a whole quantity.
func (m Money) Mul(qty int) Money {
	return m * Money(qty)
}

// Scale multiplies by a factor such as a serving multiplier, rounding to the
// nearest cent.
func (m Money) Scale(f float64) Money {
	return Money(math.Round(float64(m) * f))
}

// Percent returns p percent of m, rounded to the nearest cent.
func (m Money) Percent(p float64) Money {
	return m.Scale(p / 100)
}

func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = 0
		return nil
	case []byte:
		return m.parseInto(string(v))
	case string:
		return m.parseInto(v)
	case int64:
		*m = Money(v * 100)
		return nil
	case float64:
		*m = Money(math.Round(v * 100))
		return nil
	default:
		return fmt.Errorf("money: unsupported scan type %T", src)
	}
}

func (m *Money) parseInto(s string) error {
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*m = 0
		return nil
	}
	return m.parseInto(s)
}
