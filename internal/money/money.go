// Package money implements exact decimal arithmetic for currency amounts and quantities.
//
// Values are shopspring decimals end to end. Rounding to the currency minor unit
// happens only when a value is persisted or displayed (Round, Format).
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept for currency amounts.
const Scale int32 = 2

// ErrDivisionByZero is returned by Div when the divisor is zero.
var ErrDivisionByZero = errors.New("money: division by zero")

// ErrInvalidAmount is returned by Parse for input that holds no number.
var ErrInvalidAmount = errors.New("money: invalid amount")

// Add returns a + b.
func Add(a, b decimal.Decimal) decimal.Decimal { return a.Add(b) }

// Mul returns a × b without rounding.
func Mul(a, b decimal.Decimal) decimal.Decimal { return a.Mul(b) }

// Div returns a ÷ b at decimal.DivisionPrecision digits.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return a.Div(b), nil
}

// Percent returns base × rate ÷ 100. The shift keeps it exact.
func Percent(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Shift(-2)
}

// Sum adds values in the order given.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Round rounds to the currency minor unit, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal { return d.Round(Scale) }

// Format renders d with exactly two decimal places ("550.00").
func Format(d decimal.Decimal) string { return d.StringFixed(Scale) }

// Parse reads an amount as written on an invoice: "1,234.50", "$99", "€ 12.00",
// "1 250,00", "8%". Thousands separators, currency symbols and a trailing percent
// sign are dropped. A comma followed by one or two digits, with no dot after it,
// is the decimal separator.
func Parse(s string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '$', '€', '£', '¥':
			return -1
		}
		return r
	}, strings.TrimSuffix(strings.TrimSpace(s), "%"))
	cleaned = normalizeSeparators(cleaned)
	if cleaned == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// normalizeSeparators rewrites s to use a dot decimal point and no grouping.
func normalizeSeparators(s string) string {
	comma := strings.LastIndexByte(s, ',')
	if comma >= 0 && comma > strings.LastIndexByte(s, '.') {
		if frac := len(s) - comma - 1; frac == 1 || frac == 2 {
			s = strings.ReplaceAll(s[:comma], ".", "") + "." + s[comma+1:]
		}
	}
	return strings.ReplaceAll(s, ",", "")
}
