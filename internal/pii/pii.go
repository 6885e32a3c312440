// Package pii detects personally identifiable values by shape and produces
// their redacted forms.
//
// Detection is structural only and independent of any column type. Every
// redaction is stable: applying it to its own output leaves the value
// unchanged.
package pii

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/ShiraazMoollatjie/goluhn"
)

var (
	emailPattern = regexp.MustCompile(`(?i)^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)
	ssnPattern   = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)
	ipv4Pattern  = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

// Redaction literals.
const (
	RedactedSSN   = "XXX-XX-XXXX"
	RedactedEmail = "[EMAIL_REDACTED]"
	RedactedCard  = "****-****-****-****"
	ZeroAddress   = "0.0.0.0"
)

// IsSSN reports whether s is shaped like a US social security number.
func IsSSN(s string) bool {
	return ssnPattern.MatchString(strings.TrimSpace(s))
}

// IsIPv4 reports whether s is a dotted quad with every octet in 0-255.
func IsIPv4(s string) bool {
	t := strings.TrimSpace(s)
	if !ipv4Pattern.MatchString(t) {
		return false
	}
	for _, octet := range strings.Split(t, ".") {
		if _, err := strconv.ParseUint(octet, 10, 8); err != nil {
			return false
		}
	}
	return true
}

// IsEmail reports whether s is shaped like local@domain.tld.
func IsEmail(s string) bool {
	t := strings.TrimSpace(s)
	return t != "" && emailPattern.MatchString(t)
}

// IsCreditCard reports whether s holds 13 to 16 digits that pass the Luhn
// checksum. Any punctuation or whitespace between digits is ignored; letters
// disqualify the value.
func IsCreditCard(s string) bool {
	digits := make([]byte, 0, 16)
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, byte(r))
		case unicode.IsLetter(r):
			return false
		}
	}
	if len(digits) < 13 || len(digits) > 16 {
		return false
	}
	return Luhn(string(digits))
}

// Luhn runs the mod-10 checksum over a string of ASCII digits. Empty or
// non-digit input fails the check.
func Luhn(digits string) bool {
	return digits != "" && goluhn.Validate(digits) == nil
}

// MaskEmail keeps the first character of the local part and the domain:
// jane@example.com becomes j***@example.com.
func MaskEmail(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return ""
	}
	at := strings.IndexByte(t, '@')
	if at <= 0 {
		return RedactedEmail
	}
	first := []rune(t[:at])[0]
	return string(first) + "***@" + t[at+1:]
}

// RedactSSN replaces an SSN with a fixed mask.
func RedactSSN(string) string {
	return RedactedSSN
}

// RedactCreditCard masks all but the last four digits.
func RedactCreditCard(s string) string {
	digits := make([]byte, 0, 16)
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) < 4 {
		return RedactedCard
	}
	return "****-****-****-" + string(digits[len(digits)-4:])
}

// ZeroIPv4 replaces an address with 0.0.0.0.
func ZeroIPv4(string) string {
	return ZeroAddress
}

// RemoveDuplicateAt trims s and drops every '@' after the first.
func RemoveDuplicateAt(s string) string {
	t := strings.TrimSpace(s)
	at := strings.IndexByte(t, '@')
	if at < 0 {
		return t
	}
	return t[:at+1] + strings.ReplaceAll(t[at+1:], "@", "")
}

// NormalizeEmail repairs duplicate '@' signs, trims both halves and
// lowercases the domain. It returns false when the input has no usable
// local part or domain, or when the result is not email-shaped.
func NormalizeEmail(s string) (string, bool) {
	repaired := RemoveDuplicateAt(s)
	local, domain, ok := strings.Cut(repaired, "@")
	if !ok {
		return "", false
	}
	local = strings.TrimSpace(local)
	domain = strings.ToLower(strings.TrimSpace(domain))
	if local == "" || domain == "" {
		return "", false
	}
	out := local + "@" + domain
	if !emailPattern.MatchString(out) {
		return "", false
	}
	return out, true
}
