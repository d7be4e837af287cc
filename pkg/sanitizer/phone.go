package sanitizer

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var (
	supportedRegions = []string{
		"PL",
		"US",
		"IL",
	}

	rePhoneChars = regexp.MustCompile(`^\+?[0-9\s().\-]+$`)
)

// NormalizePhone returns phone in E.164, or "" when it cannot be parsed.
// A number valid in one of the supported regions wins over a merely
// parseable one.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)

	if phone == "" || !rePhoneChars.MatchString(phone) {
		return ""
	}

	var fallback string
	for _, region := range supportedRegions {
		parsedNumber, err := phonenumbers.Parse(phone, region)
		if err != nil {
			continue
		}
		formatted := phonenumbers.Format(parsedNumber, phonenumbers.E164)
		if phonenumbers.IsValidNumber(parsedNumber) {
			return formatted
		}
		if fallback == "" {
			fallback = formatted
		}
	}
	return fallback
}
