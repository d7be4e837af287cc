package sanitizer

import (
	"strings"

	"slotkeeper/pkg/model"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

// SanitizePhone normalizes to E.164 and leaves unparseable input trimmed but
// otherwise untouched.
func SanitizePhone(phone string) string {
	if normalized := NormalizePhone(phone); normalized != "" {
		return normalized
	}
	return strings.TrimSpace(phone)
}

func SanitizeClientInfo(c model.ClientInfo) model.ClientInfo {
	return model.ClientInfo{
		Name:  NormalizeName(c.Name),
		Email: NormalizeEmail(c.Email),
		Phone: SanitizePhone(c.Phone),
	}
}

// SanitizeIdentifier trims an opaque identifier such as a session or slot id.
func SanitizeIdentifier(id string) string {
	return Pipeline{strings.TrimSpace}.Apply(id)
}
