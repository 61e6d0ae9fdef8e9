// internal/phone/phone.go
package phone

import (
	"errors"
	"fmt"
	"strings"
)

// Brazilian dialing constants. A canonical number is country code + area
// code + subscriber number, 12 to 15 digits.
const (
	countryCode     = "55"
	defaultAreaCode = "11"
	minCanonicalLen = 12
	maxCanonicalLen = 15
)

// ErrInvalid marks a phone number that cannot be normalized into a dialable
// identifier.
var ErrInvalid = errors.New("invalid phone number")

// Normalize converts a raw phone string into its canonical dialable form.
// It is pure: both validation and dispatch rely on byte-identical results
// for the same input.
func Normalize(raw string) (string, error) {
	cleaned := digits(raw)

	switch {
	case len(cleaned) == 11 && strings.HasPrefix(cleaned, defaultAreaCode):
		cleaned = countryCode + cleaned
	case len(cleaned) == 10:
		cleaned = countryCode + defaultAreaCode + cleaned
	case len(cleaned) == 11 && !strings.HasPrefix(cleaned, countryCode):
		cleaned = countryCode + cleaned
	}

	if len(cleaned) < minCanonicalLen || len(cleaned) > maxCanonicalLen {
		return "", ErrInvalid
	}
	return cleaned, nil
}

// IsValid reports whether raw normalizes to a canonical number.
func IsValid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}

// Format renders a 13-digit canonical number as +55 (11) 99999-9999.
// Anything else is returned unchanged.
func Format(canonical string) string {
	if len(canonical) != 13 || !strings.HasPrefix(canonical, countryCode) {
		return canonical
	}
	return fmt.Sprintf("+%s (%s) %s-%s",
		canonical[0:2], canonical[2:4], canonical[4:9], canonical[9:])
}

func digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
