// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between pence and pound representations.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseDecimalToPence converts a decimal string to pence with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive pence.
// Returns an error for invalid formats, negative values, or zero amounts.
//
// Examples:
//   ParseDecimalToPence("12.34") -> 1234, nil
//   ParseDecimalToPence("12,34") -> 1234, nil
//   ParseDecimalToPence("12.345") -> 1234, nil (rounds down)
//   ParseDecimalToPence("12.346") -> 1235, nil (rounds up)
func ParseDecimalToPence(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "£")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only positive values allowed
		return 0, ErrInvalidAmount
	}
	// Split into integer and fractional part
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	// Convert integer part - check for overflow
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	// Take first two fractional digits; then half-up rounding on third
	var fracPence int64 = 0
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracPence = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracPence += d2
			if len(fracPart) > 2 {
				if fracPart[2] >= '5' {
					fracPence++
				}
			}
		}
	}
	pence := iv*100 + fracPence
	if pence <= 0 {
		return 0, ErrInvalidAmount
	}
	return pence, nil
}

// ParseStatementAmount converts a bank-statement amount string to signed pence.
//
// Statement exports carry signed values (negative = money out), currency
// symbols, thousands separators and sometimes parentheses for debits:
// "-1,234.56", "£12.00", "(45.00)". In this form the dot is always the
// decimal separator; commas are thousands separators and are stripped.
func ParseStatementAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
		s = strings.TrimSpace(s)
	}
	s = strings.TrimPrefix(s, "£")
	if strings.HasPrefix(s, "-") {
		neg = !neg
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "£")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	var fracPence int64
	if len(fracPart) > 0 {
		fracPence = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracPence += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracPence++
			}
		}
	}
	pence := iv*100 + fracPence
	if neg {
		pence = -pence
	}
	return pence, nil
}

// Pounds returns the pound value as a float64 for display purposes.
// This method is primarily used for formatting money amounts in user interfaces.
// Note: use pence for calculations to avoid floating-point precision issues.
func (m Money) Pounds() float64 {
	return float64(m.Pence) / 100.0
}

// Abs returns the absolute amount.
func (m Money) Abs() Money {
	if m.Pence < 0 {
		return Money{Pence: -m.Pence}
	}
	return m
}
