package money

import (
	"errors"
	"fmt"
	"strings"
)

// Cents represents a monetary value stored in minor units.
type Cents = int64

// ErrInvalidAmount is returned when a decimal input cannot be parsed into a
// non-negative amount of cents.
var ErrInvalidAmount = errors.New("money: invalid amount")

// ToCents parses a decimal string (e.g. "12.99") into integer cents.
// Fraction digits beyond the second are rounded half-up. Negative and
// non-numeric inputs are rejected.
func ToCents(value string) (Cents, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("empty input: %w", ErrInvalidAmount)
	}
	if strings.HasPrefix(trimmed, "+") {
		trimmed = trimmed[1:]
	}
	if strings.HasPrefix(trimmed, "-") {
		return 0, fmt.Errorf("negative amount %q: %w", value, ErrInvalidAmount)
	}
	whole := trimmed
	frac := ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole = trimmed[:idx]
		frac = trimmed[idx+1:]
		if strings.IndexByte(frac, '.') >= 0 {
			return 0, fmt.Errorf("malformed decimal %q: %w", value, ErrInvalidAmount)
		}
	}
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("malformed decimal %q: %w", value, ErrInvalidAmount)
	}
	if whole == "" {
		whole = "0"
	}
	var cents Cents
	for _, r := range whole {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("malformed decimal %q: %w", value, ErrInvalidAmount)
		}
		digit := Cents(r - '0')
		if cents > (1<<62)/10 {
			return 0, fmt.Errorf("amount overflow %q: %w", value, ErrInvalidAmount)
		}
		cents = cents*10 + digit
	}
	if cents > (1<<62)/100 {
		return 0, fmt.Errorf("amount overflow %q: %w", value, ErrInvalidAmount)
	}
	cents *= 100
	for i, r := range frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("malformed decimal %q: %w", value, ErrInvalidAmount)
		}
		digit := Cents(r - '0')
		switch i {
		case 0:
			cents += digit * 10
		case 1:
			cents += digit
		case 2:
			// Third fraction digit decides the half-up rounding.
			if digit >= 5 {
				cents++
			}
		}
	}
	return cents, nil
}

// FromCents renders cents as a decimal string with exactly two fraction
// digits. FromCents(ToCents(x)) reproduces x for inputs with at most two
// fraction digits.
func FromCents(cents Cents) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ApplyBps computes the basis-point fraction of the provided amount, rounding
// half-up. Both the processing-fee and percent-discount paths use this single
// rounding step so no value is ever rounded twice.
func ApplyBps(amount Cents, bps int) Cents {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return (amount*Cents(bps) + 5000) / 10000
}
