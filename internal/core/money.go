// Package core provides money parsing and handling utilities.
//
// This file contains the Amount type, which keeps transaction amounts as exact
// decimals, and the parser used for user-entered amounts.
package core

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Amount is a transaction amount held as an exact decimal.
//
// Stored numbers are normalised on write (1000.00 is written back as 1000).
// Anything else read from storage (a string, null, an object, a number too
// large for a float64) is kept verbatim so that a later write puts back
// exactly what was read. Such amounts fail Validate and are reported by
// aggregation.
type Amount struct {
	value decimal.Decimal
	raw   json.RawMessage
}

// AmountFromCents builds an amount from an integer number of cents.
func AmountFromCents(cents int64) Amount {
	return Amount{value: decimal.New(cents, -2)}
}

// ParseAmount converts a user-entered decimal string into an Amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs and
// exponents are rejected; zero is allowed. No rounding is applied.
//
// Examples:
//   ParseAmount("12.34")  -> 12.34, nil
//   ParseAmount("12,345") -> 12.345, nil
//   ParseAmount("-1")     -> error
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Amount{}, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Amount{}, ErrInvalidAmount
	}
	if parts[0] == "" && (len(parts) == 1 || parts[1] == "") {
		return Amount{}, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) || r > unicode.MaxASCII {
				return Amount{}, ErrInvalidAmount
			}
		}
	}
	intPart := parts[0]
	if intPart == "" {
		intPart = "0"
	}
	if len(parts) == 2 && parts[1] != "" {
		s = intPart + "." + parts[1]
	} else {
		s = intPart
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, ErrInvalidAmount
	}
	return Amount{value: d}, nil
}

// AmountFromJSON reads a stored JSON token. It never fails: anything that is
// not a finite number is retained as-is and surfaces later through Validate.
func AmountFromJSON(b []byte) Amount {
	tok := bytes.TrimSpace(b)
	if len(tok) == 0 {
		return Amount{raw: json.RawMessage("null")}
	}
	if tok[0] == '-' || (tok[0] >= '0' && tok[0] <= '9') {
		// The float check bounds the exponent before decimal sees it; 1e400
		// overflows to ±Inf and 1e-400 underflows to zero.
		f, err := strconv.ParseFloat(string(tok), 64)
		if err == nil && !math.IsInf(f, 0) {
			if f == 0 {
				return Amount{value: decimal.Zero}
			}
			if d, err := decimal.NewFromString(string(tok)); err == nil {
				return Amount{value: d}
			}
		}
	}
	raw := make(json.RawMessage, len(tok))
	copy(raw, tok)
	return Amount{raw: raw}
}

// Decimal returns the numeric value. It is zero for unreadable amounts.
func (a Amount) Decimal() decimal.Decimal {
	return a.value
}

// Validate reports ErrInvalidAmount unless the amount is a finite,
// non-negative number.
func (a Amount) Validate() error {
	if a.raw != nil || a.value.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// String formats the amount with exactly two fraction digits.
func (a Amount) String() string {
	if a.raw != nil {
		return string(a.raw)
	}
	return a.value.StringFixed(2)
}

// Equal compares numerically; unreadable amounts compare by their raw token.
func (a Amount) Equal(b Amount) bool {
	if a.raw != nil || b.raw != nil {
		return bytes.Equal(a.raw, b.raw)
	}
	return a.value.Equal(b.value)
}

// MarshalJSON writes the amount as a bare JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	if a.raw != nil {
		return a.raw, nil
	}
	return []byte(a.value.String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	*a = AmountFromJSON(b)
	return nil
}
