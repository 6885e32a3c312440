package schema

import (
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// emailPattern is the lenient local@domain.tld grammar accepted alongside
	// RFC 5322 addresses.
	emailPattern = regexp.MustCompile(`(?i)^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)

	// phonePattern matches a North American number with arbitrary non-digit
	// separators and an optional leading country code 1.
	phonePattern = regexp.MustCompile(`^\D*1?\D*([2-9][0-8][0-9])\D*([2-9][0-9]{2})\D*([0-9]{4})\D*$`)
)

// DateLayouts are the accepted Date formats, in the order they are tried.
var DateLayouts = []string{"2006-01-02", "01/02/2006", "02-01-2006", "2006/01/02"}

// TimeLayouts are the accepted Time formats.
var TimeLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04:05 PM"}

// currencyStripper removes the symbols and separators ignored by the
// Currency rule.
var currencyStripper = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", ",", "", " ", "")

// IsValid reports whether value is valid for the type.
func (t Type) IsValid(value string) bool {
	return IsValid(t, value)
}

// IsValid reports whether value is valid for type t. The empty string is
// valid for every type.
func IsValid(t Type, value string) bool {
	if value == "" {
		return true
	}

	switch t {
	case Text:
		return true
	case Integer:
		return isInteger(value)
	case Float:
		_, ok := ParseDecimal(value)
		return ok
	case Boolean:
		return value == "true" || value == "false"
	case Email:
		return isEmail(value)
	case PhoneUS:
		return phonePattern.MatchString(value)
	case Date:
		_, ok := parseLayouts(strings.TrimSpace(value), DateLayouts)
		return ok
	case Uuid:
		return isUUID(strings.TrimSpace(value))
	case Time:
		_, ok := parseLayouts(value, TimeLayouts)
		return ok
	case Currency:
		_, ok := ParseDecimal(currencyStripper.Replace(value))
		return ok
	case Percentage:
		f, ok := ParseDecimal(strings.TrimSuffix(strings.TrimSpace(value), "%"))
		return ok && f >= 0 && f <= 100
	default:
		return false
	}
}

func isInteger(v string) bool {
	if v[0] == '+' {
		return false
	}
	_, err := strconv.ParseInt(v, 10, 64)
	return err == nil
}

func isEmail(v string) bool {
	if emailPattern.MatchString(v) {
		return true
	}
	addr, err := mail.ParseAddress(v)
	return err == nil && addr.Name == "" && addr.Address == v
}

func isUUID(v string) bool {
	switch len(v) {
	case 32:
		for i := 0; i < len(v); i++ {
			if !isHex(v[i]) {
				return false
			}
		}
		return true
	case 36:
		for i := 0; i < len(v); i++ {
			switch i {
			case 8, 13, 18, 23:
				if v[i] != '-' {
					return false
				}
			default:
				if !isHex(v[i]) {
					return false
				}
			}
		}
		if v[14] < '1' || v[14] > '5' {
			return false
		}
		switch v[19] {
		case '8', '9', 'a', 'b', 'A', 'B':
			return true
		}
		return false
	default:
		return false
	}
}

func isHex(b byte) bool {
	return ('0' <= b && b <= '9') || ('a' <= b && b <= 'f') || ('A' <= b && b <= 'F')
}

func parseLayouts(v string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
