package schema

// convert.go provides lenient coercions used when repairing values.
//
// The validity rules in rules.go are strict. The functions here accept the
// messier shapes users actually type (single-digit months, lowercase am/pm,
// accounting negatives, currency codes) so a repair can produce a value the
// strict rules accept:
//   - ParseDecimal: the shared float grammar behind Float, Currency, Percentage
//   - ParseMoney / FormatMoney: exact decimal handling via pgtype.Numeric
//   - ParseLooseDate / ParseLooseTime: lenient calendar and clock parsing
//   - ParseBoolSynonym: the extended true/false vocabulary

import (
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// numericPattern validates a plain decimal number.
// Matches integers, decimals, and scientific notation.
var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// LooseDateLayouts are tried in order when repairing dates. They mirror
// DateLayouts but accept one-digit months and days.
var LooseDateLayouts = []string{"2006-1-2", "1/2/2006", "2-1-2006", "2006/1/2"}

var looseTimeLayouts = []string{
	"15:04", "15:04:05", "15:04:05.000",
	"3:04 PM", "3:04:05 PM", "3:04PM", "3:04:05PM", "3PM", "3 PM",
}

// currencyCodes are ISO codes stripped before money parsing.
var currencyCodes = []string{"USD", "EUR", "GBP", "JPY", "CAD", "AUD"}

// ParseDecimal parses s under the plain decimal grammar. Values that match
// the grammar but overflow float64 are rejected.
func ParseDecimal(s string) (float64, bool) {
	if !numericPattern.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseMoney parses a monetary amount.
// Handles currency symbols and codes, thousands separators, and accounting
// format (parentheses for negative).
func ParseMoney(s string) (pgtype.Numeric, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Numeric{}, false
	}

	// Detect negative accounting format "(123.45)"
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	upper := strings.ToUpper(s)
	for _, code := range currencyCodes {
		upper = strings.ReplaceAll(upper, code, "")
	}
	s = currencyStripper.Replace(upper)

	if negative {
		if strings.HasPrefix(s, "-") {
			return pgtype.Numeric{}, false
		}
		s = "-" + s
	}

	if !numericPattern.MatchString(s) {
		return pgtype.Numeric{}, false
	}

	var n pgtype.Numeric
	if err := n.ScanScientific(s); err != nil || !n.Valid {
		return pgtype.Numeric{}, false
	}
	return n, true
}

// FormatMoney renders n with exactly places decimal digits, rounding half
// away from zero.
func FormatMoney(n pgtype.Numeric, places int) string {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return ""
	}
	r := new(big.Rat).SetInt(n.Int)
	if n.Exp != 0 {
		exp := int64(n.Exp)
		if exp < 0 {
			exp = -exp
		}
		scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil))
		if n.Exp > 0 {
			r.Mul(r, scale)
		} else {
			r.Quo(r, scale)
		}
	}
	return r.FloatString(places)
}

// ParseLooseDate tries LooseDateLayouts in order.
func ParseLooseDate(s string) (time.Time, bool) {
	return parseLayouts(strings.TrimSpace(s), LooseDateLayouts)
}

// ParseLooseTime parses clock values with optional seconds, milliseconds and
// a case-insensitive AM/PM suffix.
func ParseLooseTime(s string) (time.Time, bool) {
	return parseLayouts(strings.ToUpper(strings.TrimSpace(s)), looseTimeLayouts)
}

// ParseBoolSynonym maps the extended boolean vocabulary to a value.
// Accepts t/yes/y/1/on/enabled and f/no/n/0/off/disabled, case-insensitive.
// The canonical literals themselves are not synonyms.
func ParseBoolSynonym(s string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "yes", "y", "1", "on", "enabled":
		return true, true
	case "f", "no", "n", "0", "off", "disabled":
		return false, true
	default:
		return false, false
	}
}
