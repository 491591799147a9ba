package email

import (
	"strings"
	"unicode"
)

// DisplayName derives a greeting name from an address's local part, e.g.
// "dinali.silva@example.com" -> "Dinali". Non-address input is used whole.
func DisplayName(address string) string {
	first, _ := DeriveNameFromEmail(address)
	return first
}

func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

// Mask hides most of the local part so the address can appear in logs and
// responses: "dinali@example.com" -> "d****@example.com".
func Mask(address string) string {
	at := strings.IndexByte(address, '@')
	if at <= 0 {
		return address
	}
	local := []rune(address[:at])
	return string(local[0]) + strings.Repeat("*", len(local)-1) + address[at:]
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
