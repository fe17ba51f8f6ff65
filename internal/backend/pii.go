package backend

import (
	"regexp"
	"strings"
)

var (
	phonePattern = regexp.MustCompile(`\+?\d[\d\s-]{7,}\d`)
	emailPattern = regexp.MustCompile(`([A-Za-z0-9._%+-])[A-Za-z0-9._%+-]*@([A-Za-z0-9.-]+\.[A-Za-z]{2,})`)
	nonDigit     = regexp.MustCompile(`\D`)
)

// MaskPII hides phone numbers and e-mail addresses before text reaches the logs.
func MaskPII(text string) string {
	text = emailPattern.ReplaceAllString(text, "$1***@$2")
	return phonePattern.ReplaceAllStringFunc(text, func(m string) string {
		digits := nonDigit.ReplaceAllString(m, "")
		if len(digits) <= 3 {
			return m
		}
		return strings.Repeat("*", len(digits)-3) + digits[len(digits)-3:]
	})
}

// NormalizePhone keeps the last 9 digits, the national number length the backend stores.
func NormalizePhone(phone string) string {
	digits := nonDigit.ReplaceAllString(phone, "")
	if len(digits) > 9 {
		digits = digits[len(digits)-9:]
	}
	return digits
}
