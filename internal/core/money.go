// Package core holds the transaction model and the dashboard aggregation.
//
// This file contains parsing and formatting of monetary amounts. Amounts are
// decimal magnitudes in currency units; rounding is half-up to cents.
package core

import (
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest amount a transaction may carry. It keeps every
// stored amount, and any sum of a user's amounts, well inside int64 cents.
var MaxAmount = decimal.New(1_000_000_000_000, 0).Sub(decimal.New(1, -2))

// ParseAmount converts a user-typed amount to a decimal rounded to cents.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted. When
// both appear, the last one is the decimal separator and the other is
// treated as thousands grouping ("1.234,56" and "1,234.56"). Negative values
// and anything that is not a plain number are rejected with ErrInvalidAmount,
// as are amounts above MaxAmount.
//
// Examples:
//
//	ParseAmount("12,34")    -> 12.34
//	ParseAmount("1.234,56") -> 1234.56
//	ParseAmount("12.345")   -> 12.35 (half-up)
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return decimal.Zero, ErrInvalidAmount
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = strings.ReplaceAll(s, ",", ".")
	}

	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if s == "." {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if d.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ToCents returns the amount as an integer number of cents, rounding half-up.
// Amounts whose cents do not fit in an int64 yield ErrAmountOutOfRange.
func ToCents(d decimal.Decimal) (int64, error) {
	cents := d.Round(2).Shift(2).BigInt()
	if !cents.IsInt64() {
		return 0, ErrAmountOutOfRange
	}
	return cents.Int64(), nil
}

// LogCents is ToCents for log fields, where an out-of-range amount is
// reported as math.MaxInt64 instead of failing.
func LogCents(d decimal.Decimal) int64 {
	cents, err := ToCents(d)
	if err != nil {
		return math.MaxInt64
	}
	return cents
}

// FromCents is the inverse of ToCents.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatBRL renders an amount the way the app displays money: "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	neg := d.IsNegative()
	fixed := d.Abs().StringFixed(2)

	intPart, frac := fixed, "00"
	if i := strings.IndexByte(fixed, '.'); i >= 0 {
		intPart, frac = fixed[:i], fixed[i+1:]
	}

	var b strings.Builder
	if neg {
		b.WriteString("-")
	}
	b.WriteString("R$ ")
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}
