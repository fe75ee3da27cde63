// ABOUTME: Channel address normalization to canonical digits-only form
// ABOUTME: Applies country-code heuristics and rejects implausible lengths

package identity

import (
	"errors"
	"strings"
)

// ErrInvalidAddress is returned when an address cannot be normalized to a
// plausible phone number. Surfaced to the user as a validation failure.
var ErrInvalidAddress = errors.New("invalid channel address")

// NormalizeAddress reduces a channel address to canonical digits-only form.
// Bare 10-digit numbers get the NANP country code; 11 digits starting with 1
// and 12 digits starting with 91 are treated as already carrying a country
// code. Anything else between 10 and 15 digits passes through as an
// international number; outside that range the address is rejected.
func NormalizeAddress(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		// US number with country code
	case len(digits) == 10:
		// Assume US number without country code
		digits = "1" + digits
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		// India number with country code
	case len(digits) >= 10 && len(digits) <= 15:
		// International number, assume it already includes a country code
	default:
		return "", ErrInvalidAddress
	}

	return digits, nil
}
