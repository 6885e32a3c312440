package mechanic

// suggestion.go defines the closed set of mechanical transforms.
//
// Each transform is its own type holding only the parameters it needs. The
// interface carries an unexported method so no type outside this package
// can satisfy it. Transforms fall into two groups:
//   - repairs, which fix values that fail the column's declared type
//   - cross-cutting transforms (PII redaction, categorical and format
//     normalization), which apply regardless of type validity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/JonMunkholm/wrangle/internal/pii"
	"github.com/JonMunkholm/wrangle/internal/schema"
)

// ErrUnknownSuggestion is returned by Decode for an unrecognised kind or
// unusable parameters.
var ErrUnknownSuggestion = errors.New("unknown suggestion")

// Kind names a transform on the wire.
type Kind string

const (
	KindTrimWhitespace           Kind = "TrimWhitespace"
	KindRemoveChars              Kind = "RemoveChars"
	KindDigitsOnly               Kind = "DigitsOnly"
	KindPhoneStripToTenDigits    Kind = "PhoneStripToTenDigits"
	KindPhoneFormatUS            Kind = "PhoneFormatUS"
	KindNormalizeDateToISO       Kind = "NormalizeDateToISO"
	KindCascadeDate              Kind = "CascadeDate"
	KindNormalizeBooleanCase     Kind = "NormalizeBooleanCase"
	KindNormalizeBooleanSynonyms Kind = "NormalizeBooleanSynonyms"
	KindNormalizeUUID            Kind = "NormalizeUUID"
	KindNormalizeTime            Kind = "NormalizeTime"
	KindNormalizeCurrency        Kind = "NormalizeCurrency"
	KindNormalizePercentage      Kind = "NormalizePercentage"

	KindMaskEmail             Kind = "MaskEmail"
	KindRedactSSN             Kind = "RedactSSN"
	KindRedactCreditCard      Kind = "RedactCreditCard"
	KindZeroIPv4              Kind = "ZeroIPv4"
	KindFuzzyMatchCategorical Kind = "FuzzyMatchCategorical"
	KindNormalizeEmail        Kind = "NormalizeEmail"
	KindNormalizePhoneE164    Kind = "NormalizePhoneE164"
	KindPadZip                Kind = "PadZip"
	KindStateToAbbreviation   Kind = "StateToAbbreviation"
)

// Kinds lists every kind in reporting order.
var Kinds = []Kind{
	KindTrimWhitespace, KindRemoveChars, KindDigitsOnly, KindPhoneStripToTenDigits,
	KindPhoneFormatUS, KindNormalizeDateToISO, KindCascadeDate, KindNormalizeBooleanCase,
	KindNormalizeBooleanSynonyms, KindNormalizeUUID, KindNormalizeTime, KindNormalizeCurrency,
	KindNormalizePercentage, KindMaskEmail, KindRedactSSN, KindRedactCreditCard, KindZeroIPv4,
	KindFuzzyMatchCategorical, KindNormalizeEmail, KindNormalizePhoneE164, KindPadZip,
	KindStateToAbbreviation,
}

// IsRepair reports whether k only ever touches cells that fail the column's
// declared type.
func (k Kind) IsRepair() bool {
	switch k {
	case KindMaskEmail, KindRedactSSN, KindRedactCreditCard, KindZeroIPv4,
		KindFuzzyMatchCategorical, KindNormalizeEmail, KindNormalizePhoneE164,
		KindPadZip, KindStateToAbbreviation:
		return false
	}
	return true
}

// Suggestion is one mechanical transform.
type Suggestion interface {
	Kind() Kind
	// Apply returns the transformed value, or v itself when the transform
	// does not apply.
	Apply(v string) string

	describe(n int) string
}

// Report is a suggestion backed by a concrete example and the number of
// sampled rows it would change.
type Report struct {
	Kind          Kind       `json:"kind"`
	Suggestion    Suggestion `json:"params"`
	Description   string     `json:"description"`
	AffectedRows  int        `json:"affectedRowsCount"`
	ExampleBefore string     `json:"exampleBefore"`
	ExampleAfter  string     `json:"exampleAfter"`
}

type (
	TrimWhitespace struct{}

	// RemoveChars deletes every occurrence of Chars.
	RemoveChars struct {
		Chars string `json:"chars"`
	}

	DigitsOnly struct{}

	// PhoneStripToTenDigits keeps ten digits when a number clearly carries an
	// extension. Eleven-digit numbers are ambiguous and left alone.
	PhoneStripToTenDigits struct{}

	PhoneFormatUS            struct{}
	NormalizeDateToISO       struct{}
	CascadeDate              struct{}
	NormalizeBooleanCase     struct{}
	NormalizeBooleanSynonyms struct{}
	NormalizeUUID            struct{}
	NormalizeTime            struct{}
	NormalizeCurrency        struct{}
	NormalizePercentage      struct{}

	MaskEmail        struct{}
	RedactSSN        struct{}
	RedactCreditCard struct{}
	ZeroIPv4         struct{}

	NormalizeEmail      struct{}
	NormalizePhoneE164  struct{}
	StateToAbbreviation struct{}

	// PadZip left-pads all-digit values with zeros to Width.
	PadZip struct {
		Width int `json:"width"`
	}
)

// CascadeFallback is what CascadeDate writes when no layout matches.
const CascadeFallback = "1970-01-01"

func (TrimWhitespace) Kind() Kind { return KindTrimWhitespace }
func (TrimWhitespace) Apply(v string) string { return strings.TrimSpace(v) }
func (TrimWhitespace) describe(n int) string { return fmt.Sprintf("Trim whitespace from %d cells", n) }

func (RemoveChars) Kind() Kind { return KindRemoveChars }
func (s RemoveChars) Apply(v string) string {
	if s.Chars == "" {
		return v
	}
	return strings.ReplaceAll(v, s.Chars, "")
}
func (s RemoveChars) describe(n int) string {
	if s.Chars == " " {
		return fmt.Sprintf("Remove spaces from %d emails", n)
	}
	return fmt.Sprintf("Remove character '%s' from %d cells", s.Chars, n)
}

func (DigitsOnly) Kind() Kind { return KindDigitsOnly }
func (DigitsOnly) Apply(v string) string { return digits(v) }
func (DigitsOnly) describe(n int) string {
	return fmt.Sprintf("Remove formatting from %d phone numbers", n)
}

func (PhoneStripToTenDigits) Kind() Kind { return KindPhoneStripToTenDigits }
func (PhoneStripToTenDigits) Apply(v string) string {
	d := digits(v)
	switch {
	case len(d) == 10:
		return d
	case len(d) > 11:
		d = strings.TrimPrefix(d, "1")
		return d[:10]
	default:
		return v
	}
}
func (PhoneStripToTenDigits) describe(n int) string {
	return fmt.Sprintf("Strip to 10 digits (drop extension) for %d phone numbers", n)
}

func (PhoneFormatUS) Kind() Kind { return KindPhoneFormatUS }
func (PhoneFormatUS) Apply(v string) string {
	d := tenDigits(v)
	if d == "" {
		return v
	}
	return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
}
func (PhoneFormatUS) describe(n int) string {
	return fmt.Sprintf("Format %d phone numbers as (XXX) XXX-XXXX", n)
}

func (NormalizeDateToISO) Kind() Kind { return KindNormalizeDateToISO }
func (NormalizeDateToISO) Apply(v string) string {
	t, err := time.Parse("1/2/2006", strings.TrimSpace(v))
	if err != nil {
		return v
	}
	return t.Format("2006-01-02")
}
func (NormalizeDateToISO) describe(n int) string {
	return fmt.Sprintf("Convert dates from MM/DD/YYYY to ISO (YYYY-MM-DD) for %d cells", n)
}

func (CascadeDate) Kind() Kind { return KindCascadeDate }
func (CascadeDate) Apply(v string) string {
	t, ok := schema.ParseLooseDate(v)
	if !ok {
		return CascadeFallback
	}
	return t.Format("2006-01-02")
}
func (CascadeDate) describe(n int) string {
	return fmt.Sprintf("Parse %d dates from any known format to ISO (unparseable become %s)", n, CascadeFallback)
}

func (NormalizeBooleanCase) Kind() Kind { return KindNormalizeBooleanCase }
func (NormalizeBooleanCase) Apply(v string) string {
	lower := strings.ToLower(strings.TrimSpace(v))
	if lower == "true" || lower == "false" {
		return lower
	}
	return v
}
func (NormalizeBooleanCase) describe(n int) string {
	return fmt.Sprintf("Normalize true/false casing in %d cells", n)
}

func (NormalizeBooleanSynonyms) Kind() Kind { return KindNormalizeBooleanSynonyms }
func (NormalizeBooleanSynonyms) Apply(v string) string {
	b, ok := schema.ParseBoolSynonym(v)
	if !ok {
		return v
	}
	return strconv.FormatBool(b)
}
func (NormalizeBooleanSynonyms) describe(n int) string {
	return fmt.Sprintf("Map yes/no style values to true/false in %d cells", n)
}

// The normalizers below return v unchanged unless their output is valid
// for the target type.

func (NormalizeUUID) Kind() Kind { return KindNormalizeUUID }
func (NormalizeUUID) Apply(v string) string {
	id, err := uuid.Parse(strings.TrimSpace(v))
	if err != nil {
		return v
	}
	return validOr(schema.Uuid, id.String(), v)
}
func (NormalizeUUID) describe(n int) string {
	return fmt.Sprintf("Normalize %d UUIDs to lowercase hyphenated form", n)
}

func (NormalizeTime) Kind() Kind { return KindNormalizeTime }
func (NormalizeTime) Apply(v string) string {
	t, ok := schema.ParseLooseTime(v)
	if !ok {
		return v
	}
	return validOr(schema.Time, t.Format("15:04:05"), v)
}
func (NormalizeTime) describe(n int) string {
	return fmt.Sprintf("Normalize %d times to HH:MM:SS", n)
}

func (NormalizeCurrency) Kind() Kind { return KindNormalizeCurrency }
func (NormalizeCurrency) Apply(v string) string {
	amount, ok := schema.ParseMoney(v)
	if !ok {
		return v
	}
	return validOr(schema.Currency, schema.FormatMoney(amount, 2), v)
}
func (NormalizeCurrency) describe(n int) string {
	return fmt.Sprintf("Normalize %d amounts to plain numbers with 2 decimals", n)
}

func (NormalizePercentage) Kind() Kind { return KindNormalizePercentage }
func (NormalizePercentage) Apply(v string) string {
	s := strings.TrimSpace(v)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	f, ok := schema.ParseDecimal(s)
	if !ok {
		return v
	}
	return validOr(schema.Percentage, strconv.FormatFloat(f, 'f', -1, 64), v)
}
func (NormalizePercentage) describe(n int) string {
	return fmt.Sprintf("Normalize %d percentages to plain numbers", n)
}

func (MaskEmail) Kind() Kind { return KindMaskEmail }
func (MaskEmail) Apply(v string) string {
	if !pii.IsEmail(v) {
		return v
	}
	return pii.MaskEmail(v)
}
func (MaskEmail) describe(n int) string { return fmt.Sprintf("Mask %d email addresses", n) }

func (RedactSSN) Kind() Kind { return KindRedactSSN }
func (RedactSSN) Apply(v string) string {
	if !pii.IsSSN(v) {
		return v
	}
	return pii.RedactSSN(v)
}
func (RedactSSN) describe(n int) string {
	return fmt.Sprintf("Redact %d social security numbers", n)
}

func (RedactCreditCard) Kind() Kind { return KindRedactCreditCard }
func (RedactCreditCard) Apply(v string) string {
	if !pii.IsCreditCard(v) {
		return v
	}
	return pii.RedactCreditCard(v)
}
func (RedactCreditCard) describe(n int) string {
	return fmt.Sprintf("Redact %d credit card numbers", n)
}

func (ZeroIPv4) Kind() Kind { return KindZeroIPv4 }
func (ZeroIPv4) Apply(v string) string {
	if !pii.IsIPv4(v) {
		return v
	}
	return pii.ZeroIPv4(v)
}
func (ZeroIPv4) describe(n int) string { return fmt.Sprintf("Zero out %d IPv4 addresses", n) }

func (NormalizeEmail) Kind() Kind { return KindNormalizeEmail }
func (NormalizeEmail) Apply(v string) string {
	out, ok := pii.NormalizeEmail(v)
	if !ok || !schema.Email.IsValid(out) {
		return v
	}
	return out
}
func (NormalizeEmail) describe(n int) string {
	return fmt.Sprintf("Normalize %d email addresses", n)
}

func (NormalizePhoneE164) Kind() Kind { return KindNormalizePhoneE164 }
func (NormalizePhoneE164) Apply(v string) string {
	d := tenDigits(v)
	if d == "" {
		return v
	}
	return "+1" + d
}
func (NormalizePhoneE164) describe(n int) string {
	return fmt.Sprintf("Convert %d phone numbers to E.164 (+1XXXXXXXXXX)", n)
}

func (PadZip) Kind() Kind { return KindPadZip }
func (s PadZip) Apply(v string) string {
	t := strings.TrimSpace(v)
	if t == "" || len(t) >= s.Width || digits(t) != t {
		return v
	}
	return strings.Repeat("0", s.Width-len(t)) + t
}
func (s PadZip) describe(n int) string {
	return fmt.Sprintf("Zero-pad %d ZIP codes to %d digits", n, s.Width)
}

func (StateToAbbreviation) Kind() Kind { return KindStateToAbbreviation }
func (StateToAbbreviation) Apply(v string) string {
	if code, ok := StateCode(v); ok {
		return code
	}
	return v
}
func (StateToAbbreviation) describe(n int) string {
	return fmt.Sprintf("Abbreviate %d US state names", n)
}

// FuzzyMatchCategorical snaps values to the closest entry of MasterList
// within MaxDistance edits. Matching is case-insensitive on NFC-normalised
// text; values shorter than MinFuzzyLength runes are left alone. The first
// minimal-distance entry in list order wins.
//
// A FuzzyMatchCategorical memoises results and is not safe for concurrent
// use.
type FuzzyMatchCategorical struct {
	MasterList  []string `json:"masterList"`
	MaxDistance int      `json:"maxDistance"`

	folded []string
	fold   cases.Caser
	cache  map[string]string
}

// MinFuzzyLength is the shortest value fuzzy matching will consider.
const MinFuzzyLength = 4

// NewStateMatcher returns a matcher over the US state names.
func NewStateMatcher() *FuzzyMatchCategorical {
	return &FuzzyMatchCategorical{MasterList: StateNames(), MaxDistance: 2}
}

func (*FuzzyMatchCategorical) Kind() Kind { return KindFuzzyMatchCategorical }

func (s *FuzzyMatchCategorical) Apply(v string) string {
	if m, ok := s.Match(v); ok {
		return m
	}
	return v
}

// Match returns the master entry v snaps to, if any.
func (s *FuzzyMatchCategorical) Match(v string) (string, bool) {
	t := strings.TrimSpace(v)
	if utf8.RuneCountInString(t) < MinFuzzyLength {
		return "", false
	}
	if s.cache == nil {
		s.fold = cases.Fold()
		s.folded = make([]string, len(s.MasterList))
		for i, m := range s.MasterList {
			s.folded[i] = s.normalize(m)
		}
		s.cache = make(map[string]string)
	}
	if m, ok := s.cache[t]; ok {
		return m, m != ""
	}

	key := s.normalize(t)
	best, bestDist := -1, s.MaxDistance+1
	for i, m := range s.folded {
		if d := levenshtein.ComputeDistance(key, m); d < bestDist {
			best, bestDist = i, d
		}
	}
	match := ""
	if best >= 0 {
		match = s.MasterList[best]
	}
	s.cache[t] = match
	return match, match != ""
}

func (s *FuzzyMatchCategorical) normalize(v string) string {
	return s.fold.String(norm.NFC.String(v))
}

func (s *FuzzyMatchCategorical) describe(n int) string {
	return fmt.Sprintf("Correct %d values to the closest of %d known entries", n, len(s.MasterList))
}

// Decode rebuilds a suggestion from its wire form. params may be empty for
// kinds that carry no data.
func Decode(kind Kind, params json.RawMessage) (Suggestion, error) {
	unmarshal := func(v any) error {
		if len(params) == 0 || string(params) == "null" {
			return nil
		}
		if err := json.Unmarshal(params, v); err != nil {
			return fmt.Errorf("%w: %s params: %v", ErrUnknownSuggestion, kind, err)
		}
		return nil
	}

	switch kind {
	case KindTrimWhitespace:
		return TrimWhitespace{}, nil
	case KindRemoveChars:
		var s RemoveChars
		if err := unmarshal(&s); err != nil {
			return nil, err
		}
		if s.Chars == "" {
			return nil, fmt.Errorf("%w: %s needs chars", ErrUnknownSuggestion, kind)
		}
		return s, nil
	case KindDigitsOnly:
		return DigitsOnly{}, nil
	case KindPhoneStripToTenDigits:
		return PhoneStripToTenDigits{}, nil
	case KindPhoneFormatUS:
		return PhoneFormatUS{}, nil
	case KindNormalizeDateToISO:
		return NormalizeDateToISO{}, nil
	case KindCascadeDate:
		return CascadeDate{}, nil
	case KindNormalizeBooleanCase:
		return NormalizeBooleanCase{}, nil
	case KindNormalizeBooleanSynonyms:
		return NormalizeBooleanSynonyms{}, nil
	case KindNormalizeUUID:
		return NormalizeUUID{}, nil
	case KindNormalizeTime:
		return NormalizeTime{}, nil
	case KindNormalizeCurrency:
		return NormalizeCurrency{}, nil
	case KindNormalizePercentage:
		return NormalizePercentage{}, nil
	case KindMaskEmail:
		return MaskEmail{}, nil
	case KindRedactSSN:
		return RedactSSN{}, nil
	case KindRedactCreditCard:
		return RedactCreditCard{}, nil
	case KindZeroIPv4:
		return ZeroIPv4{}, nil
	case KindFuzzyMatchCategorical:
		s := NewStateMatcher()
		if err := unmarshal(s); err != nil {
			return nil, err
		}
		if len(s.MasterList) == 0 {
			s.MasterList = StateNames()
		}
		if s.MaxDistance < 0 {
			return nil, fmt.Errorf("%w: %s maxDistance must not be negative", ErrUnknownSuggestion, kind)
		}
		return s, nil
	case KindNormalizeEmail:
		return NormalizeEmail{}, nil
	case KindNormalizePhoneE164:
		return NormalizePhoneE164{}, nil
	case KindPadZip:
		s := PadZip{Width: 5}
		if err := unmarshal(&s); err != nil {
			return nil, err
		}
		if s.Width < 1 || s.Width > 10 {
			return nil, fmt.Errorf("%w: %s width %d out of range", ErrUnknownSuggestion, kind, s.Width)
		}
		return s, nil
	case KindStateToAbbreviation:
		return StateToAbbreviation{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSuggestion, kind)
}

func digits(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if c := v[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// tenDigits returns the ten national digits of a North American number, or
// "" when v has neither 10 digits nor 11 starting with 1.
func tenDigits(v string) string {
	d := digits(v)
	switch {
	case len(d) == 10:
		return d
	case len(d) == 11 && d[0] == '1':
		return d[1:]
	}
	return ""
}

func validOr(t schema.Type, out, orig string) string {
	if !t.IsValid(out) {
		return orig
	}
	return out
}
