// Package phone normalises phone numbers to E.164.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a number carries no country code.
const DefaultRegion = "IN"

// NormalizeE164 formats a phone number to E.164 using region for national
// numbers. If parsing fails, it returns the trimmed input.
func NormalizeE164(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// FromWhatsAppID converts a WhatsApp wa_id (digits with country code, no
// plus sign) into E.164.
func FromWhatsAppID(waID string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, waID)
	if digits == "" {
		return strings.TrimSpace(waID)
	}
	return NormalizeE164("+"+digits, DefaultRegion)
}
