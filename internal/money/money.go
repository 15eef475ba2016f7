// Package money normalizes user-entered currency amounts into exact decimal
// values so comparisons against limits and balances never suffer from binary
// floating-point drift. All amounts in the system carry two-decimal semantics.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/govalues/decimal"
)

var ErrInvalidAmount = errors.New("amount is not a valid number")

// halfCent is added before truncation to get half-up rounding at two decimals.
var halfCent = decimal.MustParse("0.005")

// ParseAmount turns raw user input into a non-negative decimal rounded to two
// decimal places. It accepts both comma and point as the decimal separator and
// ignores grouping characters, so "1.234,56", "1,234.56" and "1234.56" all
// parse to the same value. The last separator in the string is taken to be the
// decimal point.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Decimal{}, ErrInvalidAmount
	}

	s = strings.ReplaceAll(s, ",", ".")

	var b strings.Builder
	lastDot := strings.LastIndex(s, ".")
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && i == lastDot:
			b.WriteRune(r)
		case r == '.':
			// grouping separator, dropped
		default:
			// stray currency symbols and spaces are dropped
		}
	}

	cleaned := b.String()
	if cleaned == "" || cleaned == "." {
		return decimal.Decimal{}, ErrInvalidAmount
	}

	d, err := decimal.Parse(cleaned)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmount
	}

	return Round2(d)
}

// Round2 rounds half-up to two decimal places. Rounding twice is a no-op,
// which keeps re-validation while the user types idempotent.
func Round2(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsNeg() {
		neg, err := Round2(d.Neg())
		if err != nil {
			return decimal.Decimal{}, err
		}
		return neg.Neg(), nil
	}

	shifted, err := d.Add(halfCent)
	if err != nil {
		return decimal.Decimal{}, err
	}

	return shifted.Trunc(2), nil
}

// FromFloat converts a stored float value (balances and limits are kept as
// NUMERIC(12,2) and scanned into float64) into a two-decimal value so both
// sides of a comparison are rounded the same way.
func FromFloat(f float64) (decimal.Decimal, error) {
	d, err := decimal.NewFromFloat64(f)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmount
	}

	return Round2(d)
}

// Format renders a decimal with exactly two decimal places, e.g. "50.00".
func Format(d decimal.Decimal) string {
	f, ok := d.Float64()
	if !ok {
		return d.String()
	}

	return fmt.Sprintf("%.2f", f)
}
