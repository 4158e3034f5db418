package utils

import (
	"errors"
	"strings"
)

// CountryPrefix is prepended to every phone number that lacks it.
const CountryPrefix = "55"

// MinPhoneDigits is the shortest raw number accepted by ValidatePhone.
const MinPhoneDigits = 10

var ErrInvalidPhone = errors.New("invalid phone number")

// DigitsOnly strips every non-digit character.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone returns the country-coded digit string for a raw phone.
// Empty input stays empty.
func NormalizePhone(raw string) string {
	digits := DigitsOnly(raw)
	if digits == "" {
		return ""
	}
	if !strings.HasPrefix(digits, CountryPrefix) {
		digits = CountryPrefix + digits
	}
	return digits
}

// ValidatePhone normalizes raw and rejects numbers with fewer than
// MinPhoneDigits digits before normalization.
func ValidatePhone(raw string) (string, error) {
	if len(DigitsOnly(raw)) < MinPhoneDigits {
		return "", ErrInvalidPhone
	}
	return NormalizePhone(raw), nil
}
