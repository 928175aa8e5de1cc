package utils

import (
	"os"
	"strings"

	"github.com/ttacon/libphonenumber"
)

func phoneRegion() string {
	region := strings.TrimSpace(os.Getenv("PHONE_REGION"))
	if region == "" {
		return "UZ"
	}
	return region
}

// NormalizePhone formats a raw phone number to E.164. The CRM feeds carry
// local-format numbers; unparseable input is returned trimmed as-is so a
// bad number never blocks a sync.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := libphonenumber.Parse(raw, phoneRegion())
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return raw
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}
