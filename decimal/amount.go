// Package decimal provides Amount, the exact fixed-scale number used for every
// monetary and quantity value in the ledger. It wraps shopspring/decimal and adds
// the precision budget, canonical string form, and rounding rules the engine
// requires so that no caller ever touches a binary float.
package decimal

import (
	"database/sql/driver"
	"fmt"

	shopspring "github.com/shopspring/decimal"
)

// maxIntegerDigits and maxFractionalDigits bound the precision budget described
// in spec §4.A: at least 15 integer and 4 fractional digits must be representable
// without overflow. shopspring/decimal is arbitrary-precision, so the budget is
// enforced explicitly rather than relied upon implicitly.
const (
	maxIntegerDigits    = 15
	maxFractionalDigits = 4

	// defaultDivisionScale is the banker's-rounding scale used by Div when the
	// caller does not request a different scale (spec §4.A, §6.5 decimal_division_precision).
	defaultDivisionScale = 10
)

// Amount is a signed, exact fixed-point decimal. The zero value is zero.
type Amount struct {
	d shopspring.Decimal
}

// Zero is the additive identity.
var Zero = Amount{d: shopspring.Zero}

// NewFromString parses a decimal string (integer or real form) into an Amount,
// validating it against the precision budget. Both "50" and "50.0000" decode to
// the same Amount per spec §4.A.
func NewFromString(s string) (Amount, error) {
	d, err := shopspring.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("decimal: parse %q: %w", s, err)
	}
	a := Amount{d: d}
	if err := a.checkPrecision(); err != nil {
		return Amount{}, err
	}
	return a, nil
}

// MustFromString is NewFromString but panics on error; intended for literals in
// tests and compiled-in defaults, never for untrusted input.
func MustFromString(s string) Amount {
	a, err := NewFromString(s)
	if err != nil {
		panic(err)
	}
	return a
}

// NewFromInt builds an Amount from an integer quantity (shares, whole units).
func NewFromInt(v int64) Amount {
	return Amount{d: shopspring.NewFromInt(v)}
}

func (a Amount) checkPrecision() error {
	digits := a.d.NumDigits()
	exp := -a.d.Exponent()
	if exp < 0 {
		exp = 0
	}
	intDigits := digits - int(exp)
	if intDigits > maxIntegerDigits {
		return fmt.Errorf("decimal: %s exceeds %d integer digits: %w", a.d.String(), maxIntegerDigits, ErrOverflow)
	}
	if exp > maxFractionalDigits*4 {
		// Intermediate computations may carry extra scale (e.g. division at
		// defaultDivisionScale); only reject truly unreasonable scales here.
		// Final persisted values are rounded to maxFractionalDigits by callers.
		return fmt.Errorf("decimal: %s exceeds sane fractional scale: %w", a.d.String(), ErrOverflow)
	}
	return nil
}

// ErrOverflow is returned when an Amount would exceed the precision budget.
var ErrOverflow = fmt.Errorf("amount precision overflow")

// String returns the canonical, lossless textual form used for persistence.
func (a Amount) String() string {
	return a.d.String()
}

// Add returns a+b.
func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

// Sub returns a-b.
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

// Mul returns a*b.
func (a Amount) Mul(b Amount) Amount { return Amount{d: a.d.Mul(b.d)} }

// Div returns a/b rounded half-even at the given scale. Division by zero
// returns Zero with an error rather than panicking.
func (a Amount) Div(b Amount, scale int32) (Amount, error) {
	if b.IsZero() {
		return Zero, fmt.Errorf("decimal: division by zero")
	}
	// QuoRem truncates toward zero; the remainder then decides the last digit,
	// with ties going to the even neighbour (shopspring's DivRound would round
	// ties away from zero).
	q, r := a.d.QuoRem(b.d, scale)
	c := r.Abs().Mul(shopspring.New(2, scale)).Cmp(b.d.Abs())
	if c > 0 || (c == 0 && q.Mul(shopspring.New(1, scale)).BigInt().Bit(0) == 1) {
		step := shopspring.New(1, -scale)
		if a.d.Sign()*b.d.Sign() < 0 {
			q = q.Sub(step)
		} else {
			q = q.Add(step)
		}
	}
	return Amount{d: q}, nil
}

// DivDefault divides using the configured default division precision
// (spec §6.5 decimal_division_precision, default 10).
func (a Amount) DivDefault(b Amount) (Amount, error) {
	return a.Div(b, defaultDivisionScale)
}

// Neg returns -a.
func (a Amount) Neg() Amount { return Amount{d: a.d.Neg()} }

// Abs returns |a|.
func (a Amount) Abs() Amount { return Amount{d: a.d.Abs()} }

// Sign returns -1, 0, or 1.
func (a Amount) Sign() int { return a.d.Sign() }

// IsZero reports whether a equals zero exactly.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// Equal is exact equality, normalizing scale (1.0 == 1.00).
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

// LessThan reports a < b.
func (a Amount) LessThan(b Amount) bool { return a.d.LessThan(b.d) }

// LessThanOrEqual reports a <= b.
func (a Amount) LessThanOrEqual(b Amount) bool { return a.d.LessThanOrEqual(b.d) }

// GreaterThan reports a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }

// GreaterThanOrEqual reports a >= b.
func (a Amount) GreaterThanOrEqual(b Amount) bool { return a.d.GreaterThanOrEqual(b.d) }

// Round rounds to scale decimal places using banker's rounding (round-half-even),
// matching spec §4.A/§9's rounding rule for persisted and reported values.
func (a Amount) Round(scale int32) Amount {
	return Amount{d: a.d.RoundBank(scale)}
}

// Min returns the lesser of a and b.
func Min(a, b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the greater of a and b.
func Max(a, b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Sum adds a list of amounts, returning Zero for an empty list.
func Sum(amounts ...Amount) Amount {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// ReconcileToZero returns Zero if a is within one fractional ulp of zero at the
// given scale, and a otherwise. Used at position-close reconciliation (spec §4.E,
// §8.1 "Cost round-trip") where rounding residue must not be mistaken for a
// real balance.
func ReconcileToZero(a Amount, scale int32) Amount {
	ulp := shopspring.New(1, -scale)
	if a.d.Abs().LessThanOrEqual(ulp) {
		return Zero
	}
	return a
}

// Value implements driver.Valuer so an Amount persists as its canonical string.
func (a Amount) Value() (driver.Value, error) {
	return a.d.String(), nil
}

// Scan implements sql.Scanner, accepting either the textual or numeric form
// Postgres returns for a NUMERIC column.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = Zero
		return nil
	case string:
		parsed, err := NewFromString(v)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case []byte:
		parsed, err := NewFromString(string(v))
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case float64:
		*a = Amount{d: shopspring.NewFromFloat(v)}
		return nil
	default:
		return fmt.Errorf("decimal: unsupported scan source %T", src)
	}
}

// MarshalJSON renders the canonical string form, never a JSON number, so
// round-tripping never goes through a binary float.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.d.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted string or a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := NewFromString(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
