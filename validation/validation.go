// Package validation collects per-field violations as field -> code pairs.
package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Add records code for field unless the field already has a violation.
func (v Violations) Add(field, code string) {
	if _, exists := v[field]; !exists {
		v[field] = code
	}
}

// Merge copies other into v, prefixing each field.
func (v Violations) Merge(prefix string, other Violations) {
	for field, code := range other {
		v.Add(prefix+field, code)
	}
}

var (
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, "required")
	}
}

func MinLength(field, value string, n int, v Violations) {
	if utf8.RuneCountInString(strings.TrimSpace(value)) < n {
		v.Add(field, "too_short")
	}
}

func MaxLength(field, value string, n int, v Violations) {
	if utf8.RuneCountInString(value) > n {
		v.Add(field, "too_long")
	}
}

// Email accepts an empty value; combine with Required when the field is mandatory.
func Email(field, value string, v Violations) {
	if value != "" && !emailRe.MatchString(value) {
		v.Add(field, "invalid_email")
	}
}

func Currency(field, value string, v Violations) {
	if !currencyRe.MatchString(value) {
		v.Add(field, "invalid_currency")
	}
}

func OneOf(field, value string, allowed []string, v Violations) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.Add(field, "invalid")
}

func PositiveDecimal(field string, val decimal.Decimal, v Violations) {
	if !val.IsPositive() {
		v.Add(field, "must_be_positive")
	}
}

func NonNegativeDecimal(field string, val decimal.Decimal, v Violations) {
	if val.IsNegative() {
		v.Add(field, "must_not_be_negative")
	}
}

func RangeDecimal(field string, val, minVal, maxVal decimal.Decimal, v Violations) {
	if val.LessThan(minVal) || val.GreaterThan(maxVal) {
		v.Add(field, "out_of_range")
	}
}

// MaxPlaces rejects values with more fractional digits than the column stores.
func MaxPlaces(field string, val decimal.Decimal, places int32, v Violations) {
	if !val.Equal(val.Truncate(places)) {
		v.Add(field, "too_precise")
	}
}

func RangeFloat(field string, val, minVal, maxVal float64, v Violations) {
	if val < minVal || val > maxVal {
		v.Add(field, "out_of_range")
	}
}

func RangeInt(field string, val, minVal, maxVal int, v Violations) {
	if val < minVal || val > maxVal {
		v.Add(field, "out_of_range")
	}
}
