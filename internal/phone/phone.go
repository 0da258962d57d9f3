// Package phone normalises free-form phone numbers into the digit-only
// international form the gateways address chats by.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidNumber is returned for input that cannot be a phone number.
var ErrInvalidNumber = errors.New("invalid phone number")

// DefaultCountryCode is applied to numbers written in national form.
const DefaultCountryCode = "972"

// Normalize strips formatting and returns digits with the country code,
// e.g. "054-123 4567" -> "972541234567". A leading "+" or "00" marks an
// international number; a single leading "0" is replaced by countryCode.
func Normalize(raw, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	s := strings.TrimSpace(raw)
	// Personal chat ids reduce to their number; group and other ids are
	// not phone numbers.
	if i := strings.IndexByte(s, '@'); i >= 0 {
		switch s[i+1:] {
		case "c.us", "s.whatsapp.net":
			s = s[:i]
		default:
			return "", fmt.Errorf("%q: not a personal chat id: %w", raw, ErrInvalidNumber)
		}
	}

	international := strings.HasPrefix(s, "+")
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')' || r == '.':
		default:
			return "", fmt.Errorf("%q: unexpected %q: %w", raw, r, ErrInvalidNumber)
		}
	}
	digits := b.String()

	switch {
	case international:
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case strings.HasPrefix(digits, "0"):
		digits = countryCode + digits[1:]
	}

	if len(digits) < 8 || len(digits) > 15 {
		return "", fmt.Errorf("%q: %d digits: %w", raw, len(digits), ErrInvalidNumber)
	}
	return digits, nil
}
